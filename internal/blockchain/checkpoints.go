// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/xecnode/xecd/chaincfg"
)

// Checkpoints returns a slice of checkpoints (regardless of whether they are
// already known).  When checkpoints are disabled or there are no checkpoints
// for the active network, it will return nil.
//
// This function is safe for concurrent access.
func (b *BlockChain) Checkpoints() []chaincfg.Checkpoint {
	if b.noCheckpoints || len(b.chainParams.Checkpoints) == 0 {
		return nil
	}
	return b.chainParams.Checkpoints
}

// latestCheckpoint returns the most recent checkpoint (regardless of whether it
// is already known).  When checkpoints are disabled or there are no
// checkpoints for the active network, it will return nil.
func (b *BlockChain) latestCheckpoint() *chaincfg.Checkpoint {
	if b.noCheckpoints {
		return nil
	}
	return b.chainParams.LatestCheckpoint()
}

// verifyCheckpoint returns whether the passed block height and hash combination
// match the checkpoint data.  It also returns true if there is no checkpoint
// data for the passed block height.
func (b *BlockChain) verifyCheckpoint(height int64, hash *chainhash.Hash) bool {
	for i := range b.Checkpoints() {
		checkpoint := &b.chainParams.Checkpoints[i]
		if checkpoint.Height != height {
			continue
		}
		if *checkpoint.Hash != *hash {
			return false
		}
		log.Infof("Verified checkpoint at height %d/block %s", checkpoint.Height,
			checkpoint.Hash)
		return true
	}
	return true
}

// findPreviousCheckpoint finds the most recent checkpoint that is already
// available in the downloaded portion of the block chain and returns the
// associated block node.  It returns nil if a checkpoint can't be found (this
// should really only happen for blocks before the first checkpoint).
//
// This function MUST be called with the chain lock held (for reads).
func (b *BlockChain) findPreviousCheckpoint() *blockNode {
	checkpoints := b.Checkpoints()
	for i := len(checkpoints) - 1; i >= 0; i-- {
		node := b.index.LookupNode(checkpoints[i].Hash)
		if node != nil && !b.index.NodeStatus(node).KnownInvalid() {
			return node
		}
	}
	return nil
}
