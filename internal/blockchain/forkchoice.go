// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"context"
	"errors"
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/math/uint256"
)

// maxBlocksPerActivationStep is the maximum number of blocks connected while
// holding the chain lock before it is released to let other callers in.
const maxBlocksPerActivationStep = 32

// errInterruptRequested indicates that an operation was cancelled due to a
// user-requested interrupt.
var errInterruptRequested = errors.New("interrupt requested")

// interruptRequested returns true when either the passed context or the
// context the chain was created with is done.
func (b *BlockChain) interruptRequested(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-b.interrupt:
		return true
	default:
	}
	return false
}

// unparkRequiredWork returns the cumulative work a branch that forks from the
// main chain at the provided fork point must exceed before it may replace the
// main chain ending at the provided tip.
//
// Replacing up to three blocks requires half a block worth of additional work
// per replaced block, while deeper reorganizations require the branch to carry
// at least as much additional work as the part of the main chain it replaces.
func unparkRequiredWork(tip, fork *blockNode) uint256.Uint256 {
	required := tip.workSum
	depth := tip.height - fork.height
	switch {
	case depth <= 0:
	case depth <= 3:
		extra := calcWork(tip.bits)
		extra.Rsh(1)
		extra.MulUint64(uint64(depth))
		required.Add(&extra)
	default:
		extra := tip.workSum
		extra.Sub(&fork.workSum)
		required.Add(&extra)
	}
	return required
}

// findCommonAncestor returns the most recent block that is an ancestor of, or
// the same as, both of the passed nodes.
func findCommonAncestor(a, b *blockNode) *blockNode {
	if a.height > b.height {
		a = a.Ancestor(b.height)
	} else if b.height > a.height {
		b = b.Ancestor(a.height)
	}
	for a != b && a != nil && b != nil {
		a = a.parent
		b = b.parent
	}
	return a
}

// maybeAutoUnpark unparks the branch of the passed node when it is parked and
// carries enough work to replace the current main chain.
//
// This function MUST be called with the chain lock held (for writes).
func (b *BlockChain) maybeAutoUnpark(node *blockNode) {
	if !b.index.NodeStatus(node).KnownParked() {
		return
	}
	tip := b.bestChain.Tip()
	fork := b.bestChain.FindFork(node)
	if fork == nil {
		return
	}
	required := unparkRequiredWork(tip, fork)
	if !node.workSum.Gt(&required) {
		return
	}

	log.Infof("Unparking block %s (height %d) since its branch has enough "+
		"work to replace the main chain", node.hash, node.height)
	b.index.UnparkBlock(node, tip)
}

// findMostWorkChain returns the tip of the branch with the most cumulative
// work that might be connected to the main chain ending at the provided tip.
// Candidates whose branch turns out to be missing data, known invalid, or
// parked are discarded along the way.  It returns nil when no candidate has
// more work than the tip.
//
// This function MUST be called with the chain lock held (for writes).
func (b *BlockChain) findMostWorkChain(tip *blockNode) *blockNode {
	for {
		candidate := b.index.FindBestChainCandidate()
		if candidate == nil || candidate == tip ||
			!candidate.workSum.Gt(&tip.workSum) {

			return nil
		}

		// Ensure every block between the candidate and the main chain has
		// its data and is neither invalid nor parked.  The deepest offending
		// ancestor is the one that matters.
		var missing, failed, parked *blockNode
		for n := candidate; n != nil && !b.bestChain.Contains(n); n = n.parent {
			status := b.index.NodeStatus(n)
			if !status.HaveData() {
				missing = n
			}
			if status.KnownValidateFailed() {
				failed = n
			}
			if status&statusParked != 0 {
				parked = n
			}
		}

		switch {
		case failed != nil:
			b.index.MarkBlockFailedValidation(failed)
		case parked != nil:
			b.index.MarkBlockParked(parked)
		case missing != nil:
			b.index.UnlinkBranch(candidate, missing)
		default:
			return candidate
		}
		b.index.RemoveBestChainCandidate(candidate)
	}
}

// connectTip connects the passed block node, which must be a child of the
// current tip, to the main chain.  The undo data of the block is written the
// first time it is connected.  Transactions of the block are removed from the
// provided disconnected transactions buffer when it is not nil.
//
// A RuleError is returned when the block is invalid.  The block is not marked
// as such here.
//
// This function MUST be called with the chain lock held (for writes).
func (b *BlockChain) connectTip(node *blockNode, disconnected *DisconnectedTransactions) (*dcrutil.Block, error) {
	tip := b.bestChain.Tip()
	if node.parent != tip {
		return nil, AssertError(fmt.Sprintf("connectTip called with block %s "+
			"whose parent is not the current tip %s", node.hash, tip.hash))
	}

	block, err := b.fetchBlockByNode(node)
	if err != nil {
		return nil, err
	}

	// Check the block against a scratch view on top of the tip cache so a
	// failure leaves the cache untouched.
	view := NewUtxoCache(b.utxoCache)
	spent, err := b.checkConnectBlock(node, block, view)
	if err != nil {
		return nil, err
	}

	if !b.index.NodeStatus(node).HaveUndo() {
		dataPos, _ := b.index.BlockPos(node)
		undoPos, err := b.store.WriteUndo(serializeBlockUndo(spent), dataPos)
		if err != nil {
			return nil, err
		}
		b.index.SetUndoPos(node, undoPos)
	}
	b.index.RaiseValidity(node, validityScripts)
	if err := view.Flush(); err != nil {
		return nil, err
	}

	// Update the main chain and best chain candidates.
	b.bestChain.SetTip(node)
	b.index.RemoveLessWorkCandidates(node)
	b.index.MaybePruneCachedTips(node)

	prevState := b.BestSnapshot()
	numTxns := uint64(len(block.Transactions()))
	blockSize := uint64(block.MsgBlock().SerializeSize())
	b.setBestSnapshot(newBestState(node, blockSize, numTxns,
		prevState.TotalTxns+numTxns, node.CalcPastMedianTime()))

	if disconnected != nil {
		disconnected.RemoveForBlock(block)
	}
	if b.blockConnector != nil {
		if err := b.blockConnector.ConnectBlock(block, node.height); err != nil {
			log.Errorf("Block connector failed to connect block %s "+
				"(height %d): %v", node.hash, node.height, err)
		}
	}

	prometheusBlocksConnected.Inc()
	prometheusTipHeight.Set(float64(node.height))
	wasCurrent := b.isCurrent(tip)
	b.maybeUpdateIsCurrent(node)
	if !wasCurrent {
		b.progressLogger.LogProgress(block.MsgBlock(), node.height,
			b.isCurrent(node), func() float64 {
				return b.verificationProgress(node)
			})
	}
	return block, nil
}

// disconnectTip disconnects the current tip from the main chain using its undo
// data.  The transactions of the block are added to the provided disconnected
// transactions buffer when it is not nil.
//
// This function MUST be called with the chain lock held (for writes).
func (b *BlockChain) disconnectTip(disconnected *DisconnectedTransactions) (*dcrutil.Block, error) {
	node := b.bestChain.Tip()
	if node.parent == nil {
		return nil, AssertError("disconnectTip called with the genesis " +
			"block as the tip")
	}

	block, err := b.fetchBlockByNode(node)
	if err != nil {
		return nil, err
	}
	if !b.index.NodeStatus(node).HaveUndo() {
		str := fmt.Sprintf("no undo data is available for block %s",
			node.hash)
		return nil, contextError(ErrMissingUndoData, str)
	}
	_, undoPos := b.index.BlockPos(node)
	serialized, err := b.store.ReadUndo(undoPos)
	if err != nil {
		return nil, err
	}
	spent, err := deserializeBlockUndo(serialized)
	if err != nil {
		str := fmt.Sprintf("corrupt undo data for block %s: %v", node.hash,
			err)
		return nil, contextError(ErrMissingUndoData, str)
	}

	view := NewUtxoCache(b.utxoCache)
	result, err := disconnectBlock(node, block, spent, view)
	if err != nil {
		return nil, err
	}
	if result == DisconnectUnclean {
		log.Warnf("Block %s (height %d) disconnected with inconsistent "+
			"undo data", node.hash, node.height)
	}
	if err := view.Flush(); err != nil {
		return nil, err
	}

	parent := node.parent
	b.bestChain.SetTip(parent)

	var parentSize uint64
	if parentBlock, err := b.fetchBlockByNode(parent); err == nil {
		parentSize = uint64(parentBlock.MsgBlock().SerializeSize())
	}
	prevState := b.BestSnapshot()
	b.setBestSnapshot(newBestState(parent, parentSize,
		uint64(parent.numTxns), prevState.TotalTxns-uint64(node.numTxns),
		parent.CalcPastMedianTime()))

	if disconnected != nil {
		disconnected.AddBlock(block)
	}
	if b.blockConnector != nil {
		if err := b.blockConnector.DisconnectBlock(block, node.height); err != nil {
			log.Errorf("Block connector failed to disconnect block %s "+
				"(height %d): %v", node.hash, node.height, err)
		}
	}
	b.addRecentBlock(block)

	prometheusBlocksDisconnected.Inc()
	prometheusTipHeight.Set(float64(parent.height))
	return block, nil
}

// chainChange accumulates the effects of moving the tip so they can be
// reported once the chain lock is released.
type chainChange struct {
	startTip     *blockNode
	ntfns        []Notification
	disconnected *DisconnectedTransactions
	numDisconn   int
}

// newChainChange returns a chain change starting at the provided tip.
func newChainChange(startTip *blockNode) *chainChange {
	return &chainChange{
		startTip:     startTip,
		disconnected: NewDisconnectedTransactions(),
	}
}

// flushNotifications sends the notifications collected so far.
//
// This function MUST NOT be called with the chain lock held.
func (b *BlockChain) flushNotifications(change *chainChange) {
	for i := range change.ntfns {
		b.sendNotification(change.ntfns[i].Type, change.ntfns[i].Data)
	}
	change.ntfns = change.ntfns[:0]
}

// finishChainChange sends the final notifications describing the change of
// the tip once it is complete.
//
// This function MUST NOT be called with the chain lock held.
func (b *BlockChain) finishChainChange(change *chainChange) {
	b.flushNotifications(change)

	b.chainLock.RLock()
	newTip := b.bestChain.Tip()
	fork := b.bestChain.FindFork(change.startTip)
	isCurrent := b.isCurrent(newTip)
	b.chainLock.RUnlock()
	if newTip == change.startTip {
		return
	}

	if change.numDisconn > 0 {
		prometheusReorgs.Inc()
		log.Infof("REORGANIZE: Chain forked at %s (height %d)", fork.hash,
			fork.height)
		log.Infof("REORGANIZE: Old best chain tip was %s (height %d)",
			change.startTip.hash, change.startTip.height)
		log.Infof("REORGANIZE: New best chain tip is %s (height %d)",
			newTip.hash, newTip.height)

		b.sendNotification(NTChainReorganized, &ReorganizationNtfnsData{
			OldHash:          change.startTip.hash,
			OldHeight:        change.startTip.height,
			NewHash:          newTip.hash,
			NewHeight:        newTip.height,
			ForkHash:         fork.hash,
			ForkHeight:       fork.height,
			DisconnectedTxns: change.disconnected,
		})
	}

	b.sendNotification(NTTipChanged, &TipChangedNtfnsData{
		OldTip:          change.startTip.hash,
		NewTip:          newTip.hash,
		Fork:            fork.hash,
		NewHeight:       newTip.height,
		InitialDownload: !isCurrent,
	})
}

// ActivateBestChain moves the main chain to the branch with the most
// cumulative work that is neither known to be invalid nor parked.  Blocks
// are connected in steps of a limited number of blocks, releasing the chain
// lock in between so queries and new blocks are not starved.
//
// A branch that would replace more than one block of the main chain without
// enough extra work is parked instead.  Blocks that fail validation are
// marked as such and the next best branch is tried.
//
// This function is safe for concurrent access.
func (b *BlockChain) ActivateBestChain(ctx context.Context) error {
	return b.activateBestChain(ctx, nil)
}

// activateBestChain is the implementation of ActivateBestChain.  The rule
// error of the provided watched block is returned when it fails validation
// while being connected.
func (b *BlockChain) activateBestChain(ctx context.Context, watch *blockNode) error {
	b.activationLock.Lock()
	defer b.activationLock.Unlock()

	var change *chainChange
	var watchErr error
	for {
		if b.interruptRequested(ctx) {
			if change != nil {
				b.finishChainChange(change)
			}
			return errInterruptRequested
		}

		b.chainLock.Lock()
		tip := b.bestChain.Tip()
		if change == nil {
			change = newChainChange(tip)
		}
		candidate := b.findMostWorkChain(tip)
		if candidate == nil {
			b.chainLock.Unlock()
			break
		}

		// Park branches that would reorganize more than one block of the
		// main chain unless they carry enough extra work.  The depth is
		// measured from the tip the activation started from so a failure
		// part way through a reorganization never parks the original chain.
		startTip := change.startTip
		startFork := findCommonAncestor(startTip, candidate)
		if startFork != candidate && startTip.height-startFork.height > 1 {
			required := unparkRequiredWork(startTip, startFork)
			if !candidate.workSum.Gt(&required) {
				parkNode := candidate.Ancestor(startFork.height + 1)
				log.Infof("Parking block %s (height %d) since switching to "+
					"its branch would reorganize %d blocks", parkNode.hash,
					parkNode.height, startTip.height-startFork.height)
				b.index.MarkBlockParked(parkNode)
				prometheusBlocksParked.Inc()
				b.chainLock.Unlock()
				continue
			}
		}

		// Disconnect blocks back to the fork point.
		fork := b.bestChain.FindFork(candidate)
		for b.bestChain.Tip() != fork {
			oldTip := b.bestChain.Tip()
			block, err := b.disconnectTip(change.disconnected)
			if err != nil {
				b.chainLock.Unlock()
				b.finishChainChange(change)
				return err
			}
			change.numDisconn++
			change.ntfns = append(change.ntfns, Notification{
				Type: NTBlockDisconnected,
				Data: &BlockDisconnectedNtfnsData{
					Block:  block,
					Height: oldTip.height,
				},
			})
		}

		// Connect a limited number of blocks toward the candidate.
		target := candidate
		if target.height-fork.height > maxBlocksPerActivationStep {
			target = candidate.Ancestor(fork.height + maxBlocksPerActivationStep)
		}
		attachNodes := make([]*blockNode, target.height-fork.height)
		for n := target; n != fork; n = n.parent {
			attachNodes[n.height-fork.height-1] = n
		}
		for _, n := range attachNodes {
			block, err := b.connectTip(n, change.disconnected)
			if err != nil {
				var rErr RuleError
				if !errors.As(err, &rErr) {
					b.chainLock.Unlock()
					b.finishChainChange(change)
					return err
				}

				log.Infof("Block %s (height %d) failed validation: %v",
					n.hash, n.height, err)
				b.index.MarkBlockFailedValidation(n)
				b.index.AddEligibleCandidates(b.bestChain.Tip())
				prometheusBlocksInvalidated.Inc()
				if n == watch {
					watchErr = err
				}
				break
			}
			change.ntfns = append(change.ntfns, Notification{
				Type: NTBlockConnected,
				Data: &BlockConnectedNtfnsData{
					Block:  block,
					Height: n.height,
				},
			})
		}

		if err := b.flushStateToDisk(FlushPeriodic, 0); err != nil {
			b.chainLock.Unlock()
			b.finishChainChange(change)
			return err
		}
		b.chainLock.Unlock()
		b.flushNotifications(change)
	}

	b.finishChainChange(change)
	return watchErr
}

// setBlockAside disconnects the block with the passed hash from the main
// chain when it is part of it and then either marks it as having failed
// validation or as parked along with all of its descendants.
func (b *BlockChain) setBlockAside(hash *chainhash.Hash, park bool) error {
	b.activationLock.Lock()
	b.chainLock.Lock()
	node := b.index.LookupNode(hash)
	if node == nil {
		b.chainLock.Unlock()
		b.activationLock.Unlock()
		return unknownBlockError(hash)
	}
	if node.parent == nil {
		b.chainLock.Unlock()
		b.activationLock.Unlock()
		str := fmt.Sprintf("block %s is the genesis block", hash)
		return contextError(ErrInvalidateGenesisBlock, str)
	}

	change := newChainChange(b.bestChain.Tip())
	for b.bestChain.Contains(node) {
		oldTip := b.bestChain.Tip()
		block, err := b.disconnectTip(change.disconnected)
		if err != nil {
			b.chainLock.Unlock()
			b.finishChainChange(change)
			b.activationLock.Unlock()
			return err
		}
		change.numDisconn++
		change.ntfns = append(change.ntfns, Notification{
			Type: NTBlockDisconnected,
			Data: &BlockDisconnectedNtfnsData{
				Block:  block,
				Height: oldTip.height,
			},
		})
	}

	if park {
		log.Infof("Parking block %s (height %d)", node.hash, node.height)
		b.index.MarkBlockParked(node)
		prometheusBlocksParked.Inc()
	} else {
		log.Infof("Invalidating block %s (height %d)", node.hash, node.height)
		b.index.MarkBlockFailedValidation(node)
		prometheusBlocksInvalidated.Inc()
	}
	b.index.AddEligibleCandidates(b.bestChain.Tip())
	err := b.flushStateToDisk(FlushPeriodic, 0)
	b.chainLock.Unlock()
	b.finishChainChange(change)
	b.activationLock.Unlock()
	if err != nil {
		return err
	}

	return b.ActivateBestChain(context.Background())
}

// InvalidateBlock marks the block with the passed hash and all of its
// descendants as invalid, disconnecting them from the main chain when needed,
// and then activates the best remaining chain.  The genesis block may not be
// invalidated.
//
// This function is safe for concurrent access.
func (b *BlockChain) InvalidateBlock(hash *chainhash.Hash) error {
	return b.setBlockAside(hash, false)
}

// ParkBlock marks the block with the passed hash as parked and its
// descendants as having a parked ancestor, disconnecting them from the main
// chain when needed, and then activates the best remaining chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) ParkBlock(hash *chainhash.Hash) error {
	return b.setBlockAside(hash, true)
}

// ReconsiderBlock removes the invalid flags from the block with the passed
// hash, its ancestors, and its descendants and then activates the best chain,
// which might switch back to the branch of the block.  Blocks that are really
// invalid will fail validation again.
//
// This function is safe for concurrent access.
func (b *BlockChain) ReconsiderBlock(hash *chainhash.Hash) error {
	b.chainLock.Lock()
	node := b.index.LookupNode(hash)
	if node == nil {
		b.chainLock.Unlock()
		return unknownBlockError(hash)
	}
	b.index.ClearFailureFlags(node, b.bestChain.Tip())
	b.chainLock.Unlock()

	return b.ActivateBestChain(context.Background())
}

// UnparkBlock removes the parked flags from the block with the passed hash,
// its ancestors, and its descendants and then activates the best chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) UnparkBlock(hash *chainhash.Hash) error {
	b.chainLock.Lock()
	node := b.index.LookupNode(hash)
	if node == nil {
		b.chainLock.Unlock()
		return unknownBlockError(hash)
	}
	b.index.UnparkBlock(node, b.bestChain.Tip())
	b.chainLock.Unlock()

	return b.ActivateBestChain(context.Background())
}
