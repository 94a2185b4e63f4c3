// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2018 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"time"

	"github.com/decred/dcrd/blockchain/standalone/v2"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/wire"
)

// genesisCoinbaseScript is the signature script of the genesis coinbase.
var genesisCoinbaseScript = hexDecode("04ffff001d0104455468652054696d65732030" +
	"332f4a616e2f32303039204368616e63656c6c6f72206f6e206272696e6b206f6620" +
	"7365636f6e64206261696c6f757420666f722062616e6b73")

// genesisOutputScript is the public key script of the genesis coinbase.  The
// output it guards is never added to the unspent set.
var genesisOutputScript = hexDecode("4104678afdb0fe5548271967f1a67130b7105cd" +
	"6a828e03909a67962e0ea1f61deb649f6bc3f4cef38c4f35504e51ec112de5c384df7ba" +
	"0b8d578a4c702b6bf11d5fac")

// newGenesisBlock returns a genesis block with the provided header values and
// the shared genesis coinbase.
func newGenesisBlock(timestamp time.Time, bits, nonce uint32, subsidy int64) *wire.MsgBlock {
	coinbase := &wire.MsgTx{
		SerType: wire.TxSerializeFull,
		Version: 1,
		TxIn: []*wire.TxIn{{
			// Fully null.
			PreviousOutPoint: wire.OutPoint{
				Hash:  chainhash.Hash{},
				Index: wire.MaxPrevOutIndex,
				Tree:  wire.TxTreeRegular,
			},
			SignatureScript: genesisCoinbaseScript,
			Sequence:        wire.MaxTxInSequenceNum,
			BlockHeight:     wire.NullBlockHeight,
			BlockIndex:      wire.NullBlockIndex,
			ValueIn:         wire.NullValueIn,
		}},
		TxOut: []*wire.TxOut{{
			Version:  0,
			Value:    subsidy,
			PkScript: genesisOutputScript,
		}},
		LockTime: 0,
		Expiry:   wire.NoExpiryValue,
	}

	block := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:   1,
			PrevBlock: chainhash.Hash{}, // All zero.
			// MerkleRoot: Calculated below.
			Timestamp: timestamp,
			Bits:      bits,
			Nonce:     nonce,
			Height:    0,
		},
		Transactions: []*wire.MsgTx{coinbase},
	}
	block.Header.MerkleRoot = standalone.CalcTxTreeMerkleRoot(block.Transactions)
	return block
}
