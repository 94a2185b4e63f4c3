// Copyright (c) 2017-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/wire"
)

// SequenceLock represents the minimum timestamp and minimum block height after
// which a transaction can be included into a block while satisfying the
// relative lock times of all of its input sequence numbers.  It is calculated
// via the CalcSequenceLock function.  Each field may be -1 if none of the input
// sequence numbers require a specific relative lock time for the respective
// type.  Since all valid heights and times are larger than -1, this implies
// that it will not prevent a transaction from being included due to the
// sequence lock, which is the desired behavior.
type SequenceLock struct {
	MinHeight int64
	MinTime   int64
}

// calcSequenceLock computes the relative lock times for the passed transaction
// from the point of view of the block node passed in as the first argument.
// The entries must be the outputs spent by the inputs of the transaction in
// input order.  Entries with a height after the passed node are treated as
// confirmed in the block after it.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) calcSequenceLock(node *blockNode, tx *wire.MsgTx, entries []*UtxoEntry) *SequenceLock {
	// A value of -1 for each lock type allows a transaction to be included in
	// a block at any given height or time.
	sequenceLock := &SequenceLock{MinHeight: -1, MinTime: -1}

	// Sequence locks do not apply if the tx version is less than 2 or the
	// relative lock time rules are not active for the next block.
	nextHeight := int64(0)
	if node != nil {
		nextHeight = node.height + 1
	}
	if tx.Version < 2 || nextHeight < b.chainParams.CSVHeight {
		return sequenceLock
	}

	for txInIndex, txIn := range tx.TxIn {
		// Nothing to calculate for this input when relative time locks are
		// disabled for it.
		sequenceNum := txIn.Sequence
		if sequenceNum&wire.SequenceLockTimeDisabled != 0 {
			continue
		}

		// Outputs that are not yet confirmed are treated as being in the next
		// block.
		inputHeight := nextHeight
		if entry := entries[txInIndex]; entry != nil &&
			entry.BlockHeight() < nextHeight {

			inputHeight = entry.BlockHeight()
		}

		// Calculate the sequence locks from the point of view of the next
		// block for inputs that are in the mempool.
		relativeLock := int64(sequenceNum & wire.SequenceLockTimeMask)
		if sequenceNum&wire.SequenceLockTimeIsSeconds == 0 {
			// The relative lock time is a number of blocks.  The minimum
			// height is the first height at which the input can not be
			// spent.
			minHeight := inputHeight + relativeLock - 1
			if minHeight > sequenceLock.MinHeight {
				sequenceLock.MinHeight = minHeight
			}
			continue
		}

		// The relative lock time is a number of seconds in units of 512.  It
		// is measured from the median time of the block prior to the one
		// that confirmed the spent output.
		prevInputHeight := inputHeight - 1
		if prevInputHeight < 0 {
			prevInputHeight = 0
		}
		var medianTime int64
		if node != nil {
			if blockNode := node.Ancestor(prevInputHeight); blockNode != nil {
				medianTime = blockNode.CalcPastMedianTime().Unix()
			}
		}
		minTime := medianTime +
			relativeLock<<wire.SequenceLockTimeGranularity - 1
		if minTime > sequenceLock.MinTime {
			sequenceLock.MinTime = minTime
		}
	}

	return sequenceLock
}

// CalcSequenceLock computes the minimum block height and time after which the
// passed transaction can be included into a block while satisfying the
// relative lock times of all of its input sequence numbers.  The passed entries
// are the outputs spent by the transaction in input order.  The calculated lock
// is from the point of view of the block after the current best chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) CalcSequenceLock(tx *dcrutil.Tx, entries []*UtxoEntry) *SequenceLock {
	b.chainLock.RLock()
	seqLock := b.calcSequenceLock(b.bestChain.Tip(), tx.MsgTx(), entries)
	b.chainLock.RUnlock()
	return seqLock
}
