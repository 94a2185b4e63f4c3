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

	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/wire"
)

// BehaviorFlags is a bitmask defining tweaks to the normal behavior when
// performing chain processing and consensus rules checks.
type BehaviorFlags uint32

const (
	// BFNoPoWCheck may be set to indicate the proof of work check which
	// ensures a block hashes to a value less than the required target will
	// not be performed.  It is only used when checking block templates.
	BFNoPoWCheck BehaviorFlags = 1 << iota

	// BFNone is a convenience value to specifically indicate no flags.
	BFNone BehaviorFlags = 0
)

// maybeAcceptBlockHeader potentially accepts the header to the block index
// and, if accepted, returns the block node associated with the header.  It
// performs several context independent checks as well as those which depend
// on its position within the chain.
//
// The flag for check header sanity allows the additional header sanity checks
// to be skipped which is useful for the full block processing path which
// checks the sanity of the entire block, including the header, before
// attempting to accept its header in order to quickly eliminate blocks that
// are obviously incorrect.
//
// In the case the block header is already known, the associated block node is
// examined to determine if the block is already known to be invalid, in which
// case an appropriate error will be returned.
//
// This function MUST be called with the chain lock held (for writes).
func (b *BlockChain) maybeAcceptBlockHeader(header *wire.BlockHeader, flags BehaviorFlags, checkHeaderSanity bool) (*blockNode, error) {
	// Avoid validating the header again if its validation status is already
	// known.  Invalid headers are never added to the block index, so if there
	// is an entry for the block hash, the header itself is known to be valid.
	// However, it might have since been marked invalid either due to the
	// associated block, or an ancestor, later failing validation.
	hash := header.BlockHash()
	if node := b.index.LookupNode(&hash); node != nil {
		if err := b.checkKnownInvalidBlock(node); err != nil {
			return nil, err
		}

		return node, nil
	}

	// Perform context-free sanity checks on the block header.
	if checkHeaderSanity {
		err := checkBlockHeaderSanity(header, b.timeSource, flags,
			b.chainParams)
		if err != nil {
			return nil, err
		}
	}

	// Orphan headers are not allowed and this function should never be called
	// with the genesis block.
	prevHash := &header.PrevBlock
	prevNode := b.index.LookupNode(prevHash)
	if prevNode == nil {
		str := fmt.Sprintf("previous block %s is not known", prevHash)
		return nil, ruleError(ErrMissingParent, str)
	}

	// There is no need to validate the header if an ancestor is already known
	// to be invalid.
	prevNodeStatus := b.index.NodeStatus(prevNode)
	if prevNodeStatus.KnownInvalid() {
		str := fmt.Sprintf("previous block %s is known to be invalid",
			prevHash)
		return nil, ruleError(ErrInvalidAncestorBlock, str)
	}

	// The block header must pass all of the validation rules which depend on
	// its position within the block chain.
	err := b.checkBlockHeaderContext(header, prevNode, flags)
	if err != nil {
		return nil, err
	}

	// Create a new block node for the block and add it to the block index.
	//
	// Note that the additional information for the actual transactions is
	// not yet known since this is only the header and the block inherits the
	// parked state of its parent.
	newNode := newBlockNode(header, prevNode)
	if prevNodeStatus.KnownParked() {
		newNode.status |= statusParkedParent
	}
	b.index.AddNode(newNode)
	b.index.RaiseValidity(newNode, validityTree)
	return newNode, nil
}

// checkKnownInvalidBlock returns an appropriate error when the provided block
// node is known to be invalid either due to failing validation itself or due
// to a known invalid ancestor (aka being part of an invalid branch).
//
// This function is safe for concurrent access.
func (b *BlockChain) checkKnownInvalidBlock(node *blockNode) error {
	status := b.index.NodeStatus(node)
	if status.KnownValidateFailed() {
		str := fmt.Sprintf("block %s is known to be invalid", node.hash)
		return ruleError(ErrKnownInvalidBlock, str)
	}
	if status.KnownInvalidAncestor() {
		str := fmt.Sprintf("block %s is known to be part of an invalid "+
			"branch", node.hash)
		return ruleError(ErrInvalidAncestorBlock, str)
	}

	return nil
}

// ProcessBlockHeader is the main workhorse for handling insertion of new block
// headers into the block chain using headers-first semantics.  It includes
// functionality such as rejecting headers that do not connect to an existing
// known header, ensuring headers follow all rules that do not depend on having
// all ancestor block data available, and insertion into the block index.
//
// Block headers that have already been inserted are ignored, unless they have
// subsequently been marked invalid, in which case an appropriate error is
// returned.
//
// It should be noted that this function intentionally does not accept block
// headers that do not connect to an existing known header or to headers which
// are already known to be a part of an invalid branch.  This means headers must
// be processed in order.
//
// This function is safe for concurrent access.
func (b *BlockChain) ProcessBlockHeader(header *wire.BlockHeader, flags BehaviorFlags) error {
	b.chainLock.Lock()
	defer b.chainLock.Unlock()

	// Potentially accept the header to the block index.  When the header
	// already exists in the block index, this acts as a lookup of the existing
	// node along with a status check to avoid additional work when possible.
	//
	// On the other hand, when the header does not already exist in the block
	// index, validate it according to both context free and context dependent
	// positional checks, and create a block index entry for it.
	const checkHeaderSanity = true
	_, err := b.maybeAcceptBlockHeader(header, flags, checkHeaderSanity)
	return err
}

// maybeAcceptBlockData potentially accepts the data for the given block into
// the block store, updates the block index accordingly, and returns the blocks
// whose data became linked as a result.
//
// The block must pass all of the validation rules which depend on having the
// headers of all ancestors available, but do not rely on having the full block
// data of all ancestors available.  Blocks that fail are marked as having
// failed validation.
//
// This function MUST be called with the chain lock held (for writes).
func (b *BlockChain) maybeAcceptBlockData(node *blockNode, block *dcrutil.Block, flags BehaviorFlags) ([]*blockNode, error) {
	prevNode := node.parent
	if err := b.checkBlockContext(block, prevNode, flags); err != nil {
		var rErr RuleError
		if errors.As(err, &rErr) {
			b.index.MarkBlockFailedValidation(node)
			prometheusBlocksInvalidated.Inc()
		}
		return nil, err
	}
	b.index.RaiseValidity(node, validityTransactions)

	// Write the block data and record where it lives.
	pos, err := b.store.SaveBlock(block.MsgBlock(), node.height)
	if err != nil {
		return nil, err
	}
	b.index.SetDataPos(node, pos, uint32(len(block.Transactions())))
	b.addRecentBlock(block)
	b.checkForPruning = b.pruneTarget > 0

	// Update the block index state to account for the full data for the block
	// becoming available.  This might result in the block, and any others
	// that are descendants of it, becoming fully linked.
	linkedNodes := b.index.AcceptBlockData(node, b.bestChain.Tip())
	for _, n := range linkedNodes {
		b.maybeAutoUnpark(n)
	}
	return linkedNodes, nil
}

// ProcessBlock is the main workhorse for handling insertion of new blocks into
// the block chain.  It includes functionality such as rejecting duplicate
// blocks, ensuring blocks follow all rules, and insertion into the block chain
// along with best chain selection and reorganization.
//
// The accepted block is not necessarily connected.  The best chain is
// activated afterwards, so the block is connected when it is part of the
// branch with the most cumulative work that is not known to be invalid or
// parked.
//
// It returns the length of the side chain the block is part of or zero when
// the block is part of the main chain once the best chain is activated.
//
// This function is safe for concurrent access.
func (b *BlockChain) ProcessBlock(block *dcrutil.Block, flags BehaviorFlags) (int64, error) {
	b.chainLock.Lock()

	// Reject blocks that are already known to be invalid immediately to avoid
	// additional work when possible.
	blockHash := block.Hash()
	if node := b.index.LookupNode(blockHash); node != nil {
		if err := b.checkKnownInvalidBlock(node); err != nil {
			b.chainLock.Unlock()
			return 0, err
		}
	}

	// The block must not already exist in the main chain or side chains.
	if b.index.HaveBlock(blockHash) {
		b.chainLock.Unlock()
		str := fmt.Sprintf("already have block %v", blockHash)
		return 0, ruleError(ErrDuplicateBlock, str)
	}

	// Perform preliminary sanity checks on the block and its transactions.
	// Blocks that were already checked are remembered.  Note that a sanity
	// failure does not mark the header invalid since the block data, as
	// opposed to the header, might have been malleated.
	if !b.checkedBlocks.Contains(*blockHash) {
		err := checkBlockSanity(block, b.timeSource, flags, b.chainParams)
		if err != nil {
			b.chainLock.Unlock()
			return 0, err
		}
		b.checkedBlocks.Put(*blockHash)
	}

	// Potentially accept the header to the block index.  The header sanity
	// was already checked as part of the block sanity.
	const checkHeaderSanity = false
	header := &block.MsgBlock().Header
	node, err := b.maybeAcceptBlockHeader(header, flags, checkHeaderSanity)
	if err != nil {
		b.chainLock.Unlock()
		return 0, err
	}
	b.index.SetStatusFlags(node, statusChecked)

	// Potentially accept the block data into the block store.
	if _, err := b.maybeAcceptBlockData(node, block, flags); err != nil {
		b.chainLock.Unlock()
		return 0, err
	}

	// Notify the caller when the block intends to extend the main chain so it
	// can be relayed before it is fully connected.
	extendsTip := node.parent == b.bestChain.Tip()
	b.chainLock.Unlock()
	if extendsTip {
		b.sendNotification(NTNewTipBlockChecked, block)
	}

	// Connect the best chain, which might now include the block.  The error
	// is the reason the block failed to connect when that is the case.
	if err := b.activateBestChain(context.Background(), node); err != nil {
		return 0, err
	}

	// Report the result of the block now that the best chain is connected.
	b.chainLock.RLock()
	status := b.index.NodeStatus(node)
	var forkLen int64
	if !b.bestChain.Contains(node) {
		if fork := b.bestChain.FindFork(node); fork != nil {
			forkLen = node.height - fork.height
		}
	}
	bestHeight := b.bestChain.Tip().height
	b.chainLock.RUnlock()

	if status.KnownInvalid() {
		if err := b.checkKnownInvalidBlock(node); err != nil {
			return 0, err
		}
	}

	b.sendNotification(NTBlockAccepted, &BlockAcceptedNtfnsData{
		BestHeight: bestHeight,
		ForkLen:    forkLen,
		Block:      block,
	})
	return forkLen, nil
}
