// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/wire"
	"github.com/xecnode/xecd/internal/blockchain"
)

// unminedHeight is the height assigned to the outputs of transactions that
// are not in a block.  Relative lock calculations treat them as confirmed in
// the next block.
const unminedHeight = 0x7fffffff

// coinsViewMempool is a blockchain.CoinsView that provides the outputs of the
// transactions in the pool layered over the outputs of the current best
// chain.
//
// The mempool lock MUST be held for the lifetime of the view.
type coinsViewMempool struct {
	mp *TxPool
}

// Ensure coinsViewMempool implements the blockchain.CoinsView interface.
var _ blockchain.CoinsView = (*coinsViewMempool)(nil)

// FetchEntry returns the entry for the passed outpoint from the pool when a
// pool transaction created it and from the chain otherwise.  A nil entry is
// returned when neither knows about it.
func (v *coinsViewMempool) FetchEntry(outpoint wire.OutPoint) (*blockchain.UtxoEntry, error) {
	if desc, ok := v.mp.pool[outpoint.Hash]; ok {
		return unminedEntry(desc.Tx, outpoint.Index), nil
	}
	return v.mp.cfg.FetchUtxoEntry(outpoint)
}

// BestHash returns the hash of the block the chain outputs are for.
func (v *coinsViewMempool) BestHash() chainhash.Hash {
	return v.mp.cfg.BestHash()
}

// coinsViewPackage is a blockchain.CoinsView that provides the outputs of the
// members of a package layered over a mempool view.
type coinsViewPackage struct {
	base    blockchain.CoinsView
	members map[chainhash.Hash]*dcrutil.Tx
}

// Ensure coinsViewPackage implements the blockchain.CoinsView interface.
var _ blockchain.CoinsView = (*coinsViewPackage)(nil)

// newCoinsViewPackage returns a view that makes the outputs of the passed
// transactions available on top of the base view.
func newCoinsViewPackage(base blockchain.CoinsView, txns []*dcrutil.Tx) *coinsViewPackage {
	members := make(map[chainhash.Hash]*dcrutil.Tx, len(txns))
	for _, tx := range txns {
		members[*tx.Hash()] = tx
	}
	return &coinsViewPackage{base: base, members: members}
}

// FetchEntry returns the entry for the passed outpoint from the package when
// one of its members created it and from the base view otherwise.
func (v *coinsViewPackage) FetchEntry(outpoint wire.OutPoint) (*blockchain.UtxoEntry, error) {
	if tx, ok := v.members[outpoint.Hash]; ok {
		return unminedEntry(tx, outpoint.Index), nil
	}
	return v.base.FetchEntry(outpoint)
}

// BestHash returns the hash of the block the chain outputs are for.
func (v *coinsViewPackage) BestHash() chainhash.Hash {
	return v.base.BestHash()
}

// unminedEntry returns an entry for the output at the passed index of an
// unconfirmed transaction or nil when there is no such output.
func unminedEntry(tx *dcrutil.Tx, index uint32) *blockchain.UtxoEntry {
	txOuts := tx.MsgTx().TxOut
	if index >= uint32(len(txOuts)) {
		return nil
	}
	return blockchain.NewUtxoEntry(txOuts[index], unminedHeight, false)
}
