// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"context"
	"fmt"
)

// Verification levels accepted by VerifyChain.  Every level includes the
// checks of the levels below it.
const (
	// VerifyReadBlocks ensures the block data can be read back.
	VerifyReadBlocks uint32 = iota

	// VerifyBlockSanity additionally checks the context free rules of the
	// blocks.
	VerifyBlockSanity

	// VerifyUndoData additionally ensures the undo data of the blocks can be
	// read back and decoded.
	VerifyUndoData

	// VerifyDisconnect additionally disconnects the blocks from a scratch
	// view of the utxo set.
	VerifyDisconnect

	// VerifyReconnect additionally reconnects the disconnected blocks to the
	// scratch view with the full set of consensus rules.
	VerifyReconnect
)

// DefaultVerifyLevel and DefaultVerifyDepth are the default arguments used to
// verify the chain at startup.
const (
	DefaultVerifyLevel uint32 = VerifyDisconnect
	DefaultVerifyDepth int64  = 6
)

// verifyError returns a chain verification error for the provided node.
func verifyError(node *blockNode, format string, args ...interface{}) error {
	str := fmt.Sprintf("block %s (height %d): %s", node.hash, node.height,
		fmt.Sprintf(format, args...))
	return contextError(ErrChainVerification, str)
}

// VerifyChain checks the stored data of the most recent blocks of the main
// chain at the provided level.  A depth of zero, or one that exceeds the
// height of the chain, verifies every block except the genesis block.
//
// Blocks are disconnected from, and reconnected to, a scratch view layered
// on top of the utxo cache, so the chain state is never modified.  The
// disconnect stage stops early when the scratch view would grow larger than
// the maximum size of the utxo cache.  Blocks whose data was pruned end the
// verification without an error.
//
// This function is safe for concurrent access.
func (b *BlockChain) VerifyChain(level uint32, depth int64) error {
	b.chainLock.Lock()
	defer b.chainLock.Unlock()

	if level > VerifyReconnect {
		level = VerifyReconnect
	}
	tip := b.bestChain.Tip()
	if depth <= 0 || depth > tip.height {
		depth = tip.height
	}
	if depth == 0 {
		return nil
	}
	log.Infof("Verifying the last %d blocks at level %d", depth, level)

	ctx := context.Background()
	view := NewUtxoCache(b.utxoCache)
	stopHeight := tip.height - depth
	var lastDisconnected *blockNode
	var verified int64
	disconnecting := level >= VerifyDisconnect
	for node := tip; node != nil && node.height > stopHeight; node = node.parent {
		if b.interruptRequested(ctx) {
			return errInterruptRequested
		}

		status := b.index.NodeStatus(node)
		if !status.HaveData() {
			log.Infof("Block data for height %d is pruned, stopping "+
				"verification", node.height)
			break
		}
		block, err := b.fetchBlockByNode(node)
		if err != nil {
			return verifyError(node, "unable to read block: %v", err)
		}

		if level >= VerifyBlockSanity {
			err := checkBlockSanity(block, b.timeSource, BFNone, b.chainParams)
			if err != nil {
				return verifyError(node, "block sanity: %v", err)
			}
		}

		var spent []*UtxoEntry
		if level >= VerifyUndoData {
			if !status.HaveUndo() {
				return verifyError(node, "undo data is missing")
			}
			_, undoPos := b.index.BlockPos(node)
			serialized, err := b.store.ReadUndo(undoPos)
			if err != nil {
				return verifyError(node, "unable to read undo data: %v", err)
			}
			spent, err = deserializeBlockUndo(serialized)
			if err != nil {
				return verifyError(node, "corrupt undo data: %v", err)
			}
		}

		if disconnecting && view.TotalMemoryUsage() > b.utxoCacheMaxSize {
			log.Infof("Scratch view is too large to disconnect block %s "+
				"(height %d), skipping the remaining disconnects", node.hash,
				node.height)
			disconnecting = false
		}
		if disconnecting {
			result, err := disconnectBlock(node, block, spent, view)
			if err != nil {
				return verifyError(node, "unable to disconnect: %v", err)
			}
			if result != DisconnectOK {
				return verifyError(node, "inconsistent undo data")
			}
			lastDisconnected = node
		}
		verified++
	}

	// Reconnect the disconnected blocks in order.
	if level >= VerifyReconnect && lastDisconnected != nil {
		for node := lastDisconnected; node != nil; node = b.bestChain.Next(node) {
			if b.interruptRequested(ctx) {
				return errInterruptRequested
			}
			block, err := b.fetchBlockByNode(node)
			if err != nil {
				return verifyError(node, "unable to read block: %v", err)
			}
			if _, err := b.checkConnectBlock(node, block, view); err != nil {
				return verifyError(node, "unable to reconnect: %v", err)
			}
		}
	}

	log.Infof("Verified %d blocks", verified)
	return nil
}
