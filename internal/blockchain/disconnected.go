// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"
)

// maxDisconnectedTxnsSize is the maximum total serialized size of the
// transactions held by a DisconnectedTransactions buffer.
const maxDisconnectedTxnsSize = 20 * 1000 * 1000

// DisconnectedTransactions buffers the non-coinbase transactions of the blocks
// removed from the main chain during a reorganization so they can be returned
// to the memory pool once the new branch is connected.
//
// It is not safe for concurrent access.
type DisconnectedTransactions struct {
	txns      []*dcrutil.Tx
	blockSeq  []int
	index     map[chainhash.Hash]int
	totalSize int64
	numBlocks int
}

// NewDisconnectedTransactions returns an empty buffer.
func NewDisconnectedTransactions() *DisconnectedTransactions {
	return &DisconnectedTransactions{
		index: make(map[chainhash.Hash]int),
	}
}

// AddBlock adds the transactions of a disconnected block.  Blocks are
// disconnected from the tip downward, so every block added is an ancestor of
// the blocks added before it.  The oldest entries are dropped when the buffer
// grows too large.
func (d *DisconnectedTransactions) AddBlock(block *dcrutil.Block) {
	seq := d.numBlocks
	d.numBlocks++
	for _, tx := range block.Transactions()[1:] {
		if _, ok := d.index[*tx.Hash()]; ok {
			continue
		}
		d.index[*tx.Hash()] = len(d.txns)
		d.txns = append(d.txns, tx)
		d.blockSeq = append(d.blockSeq, seq)
		d.totalSize += int64(tx.MsgTx().SerializeSize())
	}

	for d.totalSize > maxDisconnectedTxnsSize && len(d.txns) > 0 {
		d.remove(0)
	}
}

// remove deletes the transaction at the given position.
func (d *DisconnectedTransactions) remove(pos int) {
	tx := d.txns[pos]
	delete(d.index, *tx.Hash())
	d.totalSize -= int64(tx.MsgTx().SerializeSize())
	copy(d.txns[pos:], d.txns[pos+1:])
	d.txns[len(d.txns)-1] = nil
	d.txns = d.txns[:len(d.txns)-1]
	copy(d.blockSeq[pos:], d.blockSeq[pos+1:])
	d.blockSeq = d.blockSeq[:len(d.blockSeq)-1]
	for i := pos; i < len(d.txns); i++ {
		d.index[*d.txns[i].Hash()] = i
	}
}

// RemoveForBlock drops the transactions confirmed by a block connected while
// the buffer is in use.
func (d *DisconnectedTransactions) RemoveForBlock(block *dcrutil.Block) {
	for _, tx := range block.Transactions() {
		if pos, ok := d.index[*tx.Hash()]; ok {
			d.remove(pos)
		}
	}
}

// Len returns the number of buffered transactions.
func (d *DisconnectedTransactions) Len() int {
	return len(d.txns)
}

// Contains returns whether the transaction with the given hash is buffered.
func (d *DisconnectedTransactions) Contains(hash *chainhash.Hash) bool {
	_, ok := d.index[*hash]
	return ok
}

// Transactions returns the buffered transactions ordered so every transaction
// comes after the buffered transactions it spends.  Apart from that, the
// transactions of deeper blocks come first and transactions of the same block
// keep their block order.
func (d *DisconnectedTransactions) Transactions() []*dcrutil.Tx {
	// Blocks were added tip first, so walk the runs of each block in reverse
	// to start with the deepest block.
	ordered := make([]*dcrutil.Tx, 0, len(d.txns))
	end := len(d.txns)
	for end > 0 {
		start := end - 1
		for start > 0 && d.blockSeq[start-1] == d.blockSeq[end-1] {
			start--
		}
		ordered = append(ordered, d.txns[start:end]...)
		end = start
	}
	return sortTopologically(ordered)
}

// sortTopologically returns the passed transactions ordered so every
// transaction comes after the transactions in the set it spends.  The relative
// order of unrelated transactions is preserved.
func sortTopologically(txns []*dcrutil.Tx) []*dcrutil.Tx {
	positions := make(map[chainhash.Hash]int, len(txns))
	for i, tx := range txns {
		positions[*tx.Hash()] = i
	}

	// Count the in-set parents of every transaction and record the children
	// of every parent.
	numParents := make([]int, len(txns))
	children := make([][]int, len(txns))
	for i, tx := range txns {
		seen := make(map[int]struct{})
		for _, txIn := range tx.MsgTx().TxIn {
			parent, ok := positions[txIn.PreviousOutPoint.Hash]
			if !ok {
				continue
			}
			if _, ok := seen[parent]; ok {
				continue
			}
			seen[parent] = struct{}{}
			numParents[i]++
			children[parent] = append(children[parent], i)
		}
	}

	// Emit transactions as soon as all of their parents are emitted.
	sorted := make([]*dcrutil.Tx, 0, len(txns))
	queue := make([]int, 0, len(txns))
	for i := range txns {
		if numParents[i] == 0 {
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		sorted = append(sorted, txns[i])
		for _, child := range children[i] {
			numParents[child]--
			if numParents[child] == 0 {
				queue = append(queue, child)
			}
		}
	}
	return sorted
}
