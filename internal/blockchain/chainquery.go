// Copyright (c) 2018-2021 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"bytes"
	"sort"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// nodeHeightSorter implements sort.Interface to allow a slice of nodes to
// be sorted by height in ascending order.
type nodeHeightSorter []*blockNode

// Len returns the number of nodes in the slice.  It is part of the
// sort.Interface implementation.
func (s nodeHeightSorter) Len() int {
	return len(s)
}

// Swap swaps the nodes at the passed indices.  It is part of the
// sort.Interface implementation.
func (s nodeHeightSorter) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
}

// Less returns whether the node with index i should sort before the node with
// index j.  It is part of the sort.Interface implementation.
func (s nodeHeightSorter) Less(i, j int) bool {
	if s[i].height == s[j].height {
		return bytes.Compare(s[i].hash[:], s[j].hash[:]) < 0
	}
	return s[i].height < s[j].height
}

// ChainTipInfo models information about a chain tip.
type ChainTipInfo struct {
	// Height specifies the block height of the chain tip.
	Height int64

	// Hash specifies the block hash of the chain tip.
	Hash chainhash.Hash

	// BranchLen specifies the length of the branch that connects the chain tip
	// to the main chain.  It will be zero for the main chain tip.
	BranchLen int64

	// Status specifies the validation status of chain formed by the chain tip.
	//
	// active:
	//   The current best chain tip.
	//
	// invalid:
	//   The block or one of its ancestors is invalid.
	//
	// parked:
	//   The block or one of its ancestors is parked.
	//
	// headers-only:
	//   The block does not have the full block data available which also
	//   means the block can't be validated or connected.
	//
	// valid-fork:
	//   The block is fully validated which implies it was probably part of the
	//   main chain at one point and was reorganized.
	//
	// valid-headers:
	//   The full block data is available and the header is valid, but the block
	//   was never validated.
	Status string
}

// ChainTips returns information about all of the currently known chain tips in
// the block index sorted by descending height.
//
// This function is safe for concurrent access.
func (b *BlockChain) ChainTips() []ChainTipInfo {
	b.chainLock.RLock()
	defer b.chainLock.RUnlock()

	b.index.RLock()
	chainTips := make([]*blockNode, 0, b.index.totalTips)
	b.index.forEachChainTip(func(tip *blockNode) error {
		chainTips = append(chainTips, tip)
		return nil
	})

	sort.Sort(sort.Reverse(nodeHeightSorter(chainTips)))
	results := make([]ChainTipInfo, len(chainTips))
	for i, tip := range chainTips {
		result := &results[i]
		result.Height = tip.height
		result.Hash = tip.hash
		if fork := b.bestChain.FindFork(tip); fork != nil {
			result.BranchLen = tip.height - fork.height
		}

		switch {
		case b.bestChain.Contains(tip):
			result.Status = "active"
		case tip.status.KnownInvalid():
			result.Status = "invalid"
		case tip.status.KnownParked():
			result.Status = "parked"
		case !tip.status.HaveData():
			result.Status = "headers-only"
		case tip.validity < validityScripts:
			result.Status = "valid-headers"
		default:
			result.Status = "valid-fork"
		}
	}
	b.index.RUnlock()
	return results
}

// BestHeader returns the header with the most cumulative work that is NOT
// known to be invalid.
//
// This function is safe for concurrent access.
func (b *BlockChain) BestHeader() (chainhash.Hash, int64) {
	header := b.index.BestHeader()
	return header.hash, header.height
}

// BestInvalidHeader returns the header with the most cumulative work that is
// known to be invalid.  It will be a hash of all zeroes if there is no such
// header.
//
// This function is safe for concurrent access.
func (b *BlockChain) BestInvalidHeader() chainhash.Hash {
	var hash chainhash.Hash
	if node := b.index.BestInvalid(); node != nil {
		hash = node.hash
	}
	return hash
}

// PutNextNeededBlocks populates the provided slice with hashes for the next
// blocks after the current best chain tip that are needed to make progress
// towards the current best known header skipping any blocks that already have
// their data available.
//
// It returns a sub slice of the provided one with its bounds adjusted to the
// number of entries populated.
//
// This function is safe for concurrent access.
func (b *BlockChain) PutNextNeededBlocks(out []chainhash.Hash) []chainhash.Hash {
	maxResults := len(out)
	if maxResults == 0 {
		return out[:0]
	}

	b.chainLock.RLock()
	defer b.chainLock.RUnlock()
	b.index.RLock()
	defer b.index.RUnlock()

	// The needed hashes are produced in forwards order while the index can
	// only be walked backwards, so populate them through a sliding window
	// that moves the fork point forward after every pass.
	const windowSize = 32
	var outputIdx int
	var window [windowSize]chainhash.Hash
	bestHeader := b.index.bestHeader
	fork := b.bestChain.FindFork(bestHeader)
	for outputIdx < maxResults && fork != nil && fork != bestHeader {
		endNode := bestHeader
		if endNode.height-fork.height > windowSize {
			endNode = endNode.Ancestor(fork.height + windowSize)
		}

		windowIdx := windowSize
		for node := endNode; node != nil && node != fork; node = node.parent {
			if node.status.HaveData() {
				continue
			}

			windowIdx--
			window[windowIdx] = node.hash
		}

		outputIdx += copy(out[outputIdx:], window[windowIdx:])
		fork = endNode
	}

	return out[:outputIdx]
}

// IsKnownInvalidBlock returns whether either the provided block is itself known
// to be invalid or to have an invalid ancestor.  A return value of false in no
// way implies the block is valid.
//
// It will also return false when the provided block is unknown.
//
// This function is safe for concurrent access.
func (b *BlockChain) IsKnownInvalidBlock(hash *chainhash.Hash) bool {
	node := b.index.LookupNode(hash)
	if node == nil {
		return false
	}

	return b.index.NodeStatus(node).KnownInvalid()
}
