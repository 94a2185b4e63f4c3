// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"time"

	"github.com/decred/dcrd/blockchain/standalone/v2"
)

// asertAnchor returns the parameters of the reference block of the absolutely
// scheduled difficulty algorithm as seen from the passed node.  The anchor is
// either hard-coded in the chain parameters or the parent of the first block
// at the activation height.  The final return value is false when the anchor
// is not an ancestor of the passed node.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) asertAnchor(prevNode *blockNode) (height int64, bits uint32, parentTime int64, ok bool) {
	params := b.chainParams
	if anchor := params.ASERTAnchor; anchor != nil {
		if prevNode.height < anchor.Height {
			return 0, 0, 0, false
		}
		return anchor.Height, anchor.Bits, anchor.PrevBlockTime, true
	}

	anchorNode := prevNode.Ancestor(params.AxionHeight - 1)
	if anchorNode == nil {
		return 0, 0, 0, false
	}

	// The anchor of a chain that activates the algorithm at the genesis block
	// is treated as its own parent.
	parentTime = anchorNode.timestamp
	if anchorNode.parent != nil {
		parentTime = anchorNode.parent.timestamp
	}
	return anchorNode.height, anchorNode.bits, parentTime, true
}

// calcNextRequiredDifficulty calculates the required difficulty for the block
// after the passed previous block node based on the difficulty retarget rules.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) calcNextRequiredDifficulty(prevNode *blockNode, newBlockTime time.Time) uint32 {
	params := b.chainParams

	// Genesis block.
	if prevNode == nil {
		return params.PowLimitBits
	}

	// Networks without retargeting keep the difficulty of the parent.
	if params.NoDifficultyAdjustment {
		return prevNode.bits
	}

	// Test networks allow a minimum difficulty block when no block has been
	// found for long enough.
	if params.ReduceMinDifficulty {
		reductionTime := int64(params.MinDiffReductionTime / time.Second)
		allowMinTime := prevNode.timestamp + reductionTime
		if newBlockTime.Unix() > allowMinTime {
			return params.PowLimitBits
		}
	}

	// The difficulty only changes once the absolutely scheduled algorithm is
	// active.
	nextHeight := prevNode.height + 1
	if nextHeight < params.AxionHeight {
		return prevNode.bits
	}

	anchorHeight, anchorBits, anchorParentTime, ok := b.asertAnchor(prevNode)
	if !ok {
		return prevNode.bits
	}

	targetSecsPerBlock := int64(params.TargetTimePerBlock / time.Second)
	halfLife := int64(params.ASERTHalfLife / time.Second)
	timeDelta := prevNode.timestamp - anchorParentTime
	heightDelta := prevNode.height - anchorHeight + 1
	return standalone.CalcASERTDiff(anchorBits, params.PowLimit,
		targetSecsPerBlock, timeDelta, heightDelta, halfLife)
}

// CalcNextRequiredDifficulty calculates the required difficulty for the block
// after the end of the current best chain based on the difficulty retarget
// rules.
//
// This function is safe for concurrent access.
func (b *BlockChain) CalcNextRequiredDifficulty(timestamp time.Time) uint32 {
	b.chainLock.RLock()
	difficulty := b.calcNextRequiredDifficulty(b.bestChain.Tip(), timestamp)
	b.chainLock.RUnlock()
	return difficulty
}
