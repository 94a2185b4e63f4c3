// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2018-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"sort"
	"sync"
	"time"

	"github.com/decred/dcrd/blockchain/standalone/v2"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/math/uint256"
	"github.com/decred/dcrd/wire"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/xecnode/xecd/internal/blockstore"
)

// blockStatus is a bit field representing the validation state of the block.
type blockStatus byte

// The following constants specify possible status bit flags for a block.
//
// NOTE: This section specifically does not use iota since the block status is
// serialized and must be stable for long-term storage.
const (
	// statusNone indicates that the block has no status flags set.
	statusNone blockStatus = 0

	// statusHaveData indicates that the block's payload is stored in the
	// block store.
	statusHaveData blockStatus = 1 << 0

	// statusHaveUndo indicates that the undo data for the block is stored in
	// the block store.
	statusHaveUndo blockStatus = 1 << 1

	// statusFailed indicates that the block has failed validation.
	statusFailed blockStatus = 1 << 2

	// statusFailedParent indicates that one of the ancestors of the block
	// has failed validation, thus the block is also invalid.
	statusFailedParent blockStatus = 1 << 3

	// statusParked indicates that the block was set aside.  Parked blocks
	// are not considered for the best chain, but unlike failed blocks they
	// can be revived without being validated again.
	statusParked blockStatus = 1 << 4

	// statusParkedParent indicates that one of the ancestors of the block is
	// parked.
	statusParkedParent blockStatus = 1 << 5

	// statusAssumedValid indicates that the block was accepted from a
	// snapshot without its scripts being checked.
	statusAssumedValid blockStatus = 1 << 6

	// statusChecked indicates the block passed the context free checks.
	statusChecked blockStatus = 1 << 7
)

// validityLevel describes how far a block made it through validation.  The
// levels are ordered and a block never has a higher level than its parent.
type validityLevel uint8

// NOTE: These values are serialized and must be stable for long-term storage.
const (
	// validityUnknown is the level of a block nothing is known about.
	validityUnknown validityLevel = 0

	// validityTree indicates the header is valid and it connects to a known
	// header.
	validityTree validityLevel = 1

	// validityTransactions indicates the block passed the context free and
	// contextual checks that do not need the utxo set.
	validityTransactions validityLevel = 2

	// validityChain indicates the block passed all checks that need the utxo
	// set other than script execution.
	validityChain validityLevel = 3

	// validityScripts indicates the block has been fully validated.
	validityScripts validityLevel = 4
)

// String returns the validity level in human-readable form.
func (v validityLevel) String() string {
	switch v {
	case validityUnknown:
		return "unknown"
	case validityTree:
		return "tree"
	case validityTransactions:
		return "transactions"
	case validityChain:
		return "chain"
	case validityScripts:
		return "scripts"
	}
	return "invalid"
}

const (
	// cachedTipsPruneInterval is the amount of time to wait in between pruning
	// the cache that tracks the most recent chain tips.
	cachedTipsPruneInterval = time.Minute * 5

	// cachedTipsPruneDepth is the number of blocks before the provided best
	// block hint to prune cached chain tips.  This value is set based on the
	// target block time for the main network such that there is approximately
	// one day of chain tips cached.
	cachedTipsPruneDepth = 144
)

// HaveData returns whether the full block data is stored in the block store.
// This will return false for a block node where only the header is known or
// the data was pruned.
func (status blockStatus) HaveData() bool {
	return status&statusHaveData != 0
}

// HaveUndo returns whether the undo data of the block is stored.
func (status blockStatus) HaveUndo() bool {
	return status&statusHaveUndo != 0
}

// KnownInvalid returns whether either the block itself is known to be invalid
// or to have an invalid ancestor.  A return value of false in no way implies
// the block is valid or only has valid ancestors.
func (status blockStatus) KnownInvalid() bool {
	return status&(statusFailed|statusFailedParent) != 0
}

// KnownInvalidAncestor returns whether the block is known to have an invalid
// ancestor.
func (status blockStatus) KnownInvalidAncestor() bool {
	return status&statusFailedParent != 0
}

// KnownValidateFailed returns whether the block is known to have failed
// validation.
func (status blockStatus) KnownValidateFailed() bool {
	return status&statusFailed != 0
}

// KnownParked returns whether the block or one of its ancestors is parked.
func (status blockStatus) KnownParked() bool {
	return status&(statusParked|statusParkedParent) != 0
}

// IsAssumedValid returns whether the block was accepted without checking its
// scripts.
func (status blockStatus) IsAssumedValid() bool {
	return status&statusAssumedValid != 0
}

// blockNode represents a block within the block chain and is primarily used to
// aid in selecting the best chain to be the main chain.
type blockNode struct {
	// NOTE: Additions, deletions, or modifications to the order of the
	// definitions in this struct should not be changed without considering
	// how it affects alignment on 64-bit platforms.  The current order is
	// specifically crafted to result in minimal padding.  There will be
	// hundreds of thousands of these in memory, so a few extra bytes of
	// padding adds up.

	// parent is the parent block for this node.
	parent *blockNode

	// skipToAncestor is used to provide a skip list to significantly speed up
	// traversal to ancestors deep in history.
	skipToAncestor *blockNode

	// hash is the hash of the block this node represents.
	hash chainhash.Hash

	// workSum is the total amount of work in the chain up to and including
	// this node.
	workSum uint256.Uint256

	// Some fields from block headers to aid in best chain selection and
	// reconstructing headers from memory.  These must be treated as
	// immutable.
	height       int64
	timestamp    int64
	blockVersion int32
	bits         uint32
	nonce        uint32
	merkleRoot   chainhash.Hash

	// The remaining header fields are committed to by the block hash but
	// carry no consensus meaning on this chain.  They are kept so the header
	// can be reconstructed exactly.
	stakeRoot    chainhash.Hash
	extraData    [32]byte
	sbits        int64
	poolSize     uint32
	blockSize    uint32
	stakeVersion uint32
	voteBits     uint16
	voters       uint16
	finalState   [6]byte
	freshStake   uint8
	revocations  uint8

	// status is a bitfield representing the validation state of the block
	// and validity is how far validation progressed.  These fields, unlike
	// most other fields, may be changed after the block node is created, so
	// they must only be accessed or updated using the concurrent-safe
	// methods on blockIndex once the node has been added to the index.
	status   blockStatus
	validity validityLevel

	// isFullyLinked indicates whether or not this block builds on a branch
	// that has the block data for all of its ancestors and is therefore
	// eligible for validation.
	//
	// It is protected by the block index mutex and is not stored in the
	// database.
	isFullyLinked bool

	// receivedOrderID tracks the order block data was received for the node
	// and is only stored in memory.  It is set when the block data for the
	// node and all of its ancestors is known, as opposed to when the header
	// was received in order to ensure that no additional priority in terms of
	// chain selection between competing branches can be gained by submitting
	// the header first.
	//
	// It is protected by the block index mutex.
	receivedOrderID uint32

	// numTxns is the number of transactions in the block.  It is zero until
	// the block data is known.
	numTxns uint32

	// dataPos and undoPos locate the block data and undo data in the block
	// store.  They are protected by the block index mutex.
	dataPos blockstore.FilePos
	undoPos blockstore.FilePos
}

// clearLowestOneBit clears the lowest set bit in the passed value.
func clearLowestOneBit(n int64) int64 {
	return n & (n - 1)
}

// calcSkipListHeight calculates the height of an ancestor block to use when
// constructing the ancestor traversal skip list.
func calcSkipListHeight(height int64) int64 {
	if height < 0 {
		return 0
	}

	// Traditional skip lists create multiple levels to achieve expected average
	// search, insert, and delete costs of O(log n).  Since the blockchain is
	// append only, there is no need to handle random insertions or deletions,
	// so this takes advantage of that to effectively create a deterministic
	// skip list with a single level that is reasonably close to O(log n) in
	// order to reduce the number of pointers and implementation complexity.
	//
	// This calculation is definitely not the most optimal possible in terms of
	// the number of steps in the worst case, however, it is predominantly
	// logarithmic, easy to reason about, deterministic, blazing fast to
	// calculate and can easily be shown to have a worst case performance of
	// 420 steps for heights up to 4,294,967,296 (2^32) and 1580 steps for
	// heights up to 2^63 - 1.
	//
	// Finally, it also satisfies the only real requirement for proper operation
	// of the skip list which is for the calculated height to be less than the
	// provided height.
	return clearLowestOneBit(clearLowestOneBit(height))
}

// calcWork returns the work represented by the passed compact target
// difficulty.
func calcWork(bits uint32) uint256.Uint256 {
	var work uint256.Uint256
	work.SetBig(standalone.CalcWork(bits))
	return work
}

// initBlockNode initializes a block node from the given header and parent
// node.  The workSum is calculated based on the parent, or, in the case no
// parent is provided, it will just be the work for the passed block.
//
// The height is always derived from the parent so a header can't claim a
// position it does not occupy.
//
// This function is NOT safe for concurrent access.  It must only be called when
// initially creating a node.
func initBlockNode(node *blockNode, blockHeader *wire.BlockHeader, parent *blockNode) {
	*node = blockNode{
		hash:         blockHeader.BlockHash(),
		workSum:      calcWork(blockHeader.Bits),
		height:       int64(blockHeader.Height),
		timestamp:    blockHeader.Timestamp.Unix(),
		blockVersion: blockHeader.Version,
		bits:         blockHeader.Bits,
		nonce:        blockHeader.Nonce,
		merkleRoot:   blockHeader.MerkleRoot,
		stakeRoot:    blockHeader.StakeRoot,
		extraData:    blockHeader.ExtraData,
		sbits:        blockHeader.SBits,
		poolSize:     blockHeader.PoolSize,
		blockSize:    blockHeader.Size,
		stakeVersion: blockHeader.StakeVersion,
		voteBits:     blockHeader.VoteBits,
		voters:       blockHeader.Voters,
		finalState:   blockHeader.FinalState,
		freshStake:   blockHeader.FreshStake,
		revocations:  blockHeader.Revocations,
		status:       statusNone,
		dataPos:      blockstore.NullFilePos,
		undoPos:      blockstore.NullFilePos,
	}
	if parent != nil {
		node.parent = parent
		node.height = parent.height + 1
		node.skipToAncestor = parent.Ancestor(calcSkipListHeight(node.height))
		node.workSum.Add(&parent.workSum)
	}
}

// newBlockNode returns a new block node for the given block header and parent
// node.  The workSum is calculated based on the parent, or, in the case no
// parent is provided, it will just be the work for the passed block.
func newBlockNode(blockHeader *wire.BlockHeader, parent *blockNode) *blockNode {
	var node blockNode
	initBlockNode(&node, blockHeader, parent)
	return &node
}

// Header constructs a block header from the node and returns it.
//
// This function is safe for concurrent access.
func (node *blockNode) Header() wire.BlockHeader {
	// No lock is needed because all accessed fields are immutable.
	prevHash := zeroHash
	if node.parent != nil {
		prevHash = &node.parent.hash
	}
	return wire.BlockHeader{
		Version:      node.blockVersion,
		PrevBlock:    *prevHash,
		MerkleRoot:   node.merkleRoot,
		StakeRoot:    node.stakeRoot,
		VoteBits:     node.voteBits,
		FinalState:   node.finalState,
		Voters:       node.voters,
		FreshStake:   node.freshStake,
		Revocations:  node.revocations,
		PoolSize:     node.poolSize,
		Bits:         node.bits,
		SBits:        node.sbits,
		Height:       uint32(node.height),
		Size:         node.blockSize,
		Timestamp:    time.Unix(node.timestamp, 0),
		Nonce:        node.nonce,
		ExtraData:    node.extraData,
		StakeVersion: node.stakeVersion,
	}
}

// Ancestor returns the ancestor block node at the provided height by following
// the chain backwards from this node.  The returned block will be nil when a
// height is requested that is after the height of the passed node or is less
// than zero.
//
// This function is safe for concurrent access.
func (node *blockNode) Ancestor(height int64) *blockNode {
	if height < 0 || height > node.height {
		return nil
	}

	n := node
	for n != nil && n.height != height {
		// Skip to the linked ancestor when it won't overshoot the target
		// height.
		if n.skipToAncestor != nil && calcSkipListHeight(n.height) >= height {
			n = n.skipToAncestor
			continue
		}

		n = n.parent
	}

	return n
}

// RelativeAncestor returns the ancestor block node a relative 'distance' blocks
// before this node.  This is equivalent to calling Ancestor with the node's
// height minus provided distance.
//
// This function is safe for concurrent access.
func (node *blockNode) RelativeAncestor(distance int64) *blockNode {
	return node.Ancestor(node.height - distance)
}

// IsAncestorOf returns whether or not the node is an ancestor of the provided
// target node.  A node is considered an ancestor of itself.
//
// This function is safe for concurrent access.
func (node *blockNode) IsAncestorOf(target *blockNode) bool {
	return target.Ancestor(node.height) == node
}

// CalcPastMedianTime calculates the median time of the previous few blocks
// prior to, and including, the block node.
//
// This function is safe for concurrent access.
func (node *blockNode) CalcPastMedianTime() time.Time {
	// Create a slice of the previous few block timestamps used to calculate
	// the median per the number defined by the constant medianTimeBlocks.
	timestamps := make([]int64, medianTimeBlocks)
	numNodes := 0
	iterNode := node
	for i := 0; i < medianTimeBlocks && iterNode != nil; i++ {
		timestamps[i] = iterNode.timestamp
		numNodes++

		iterNode = iterNode.parent
	}

	// Prune the slice to the actual number of available timestamps which
	// will be fewer than desired near the beginning of the block chain
	// and sort them.
	timestamps = timestamps[:numNodes]
	sort.Slice(timestamps, func(i, j int) bool {
		return timestamps[i] < timestamps[j]
	})

	// NOTE: The consensus rules incorrectly calculate the median for even
	// numbers of blocks.  A true median averages the middle two elements
	// for a set with an even number of elements in it.  Since the constant
	// for the previous number of blocks to be used is odd, this is only an
	// issue for a few blocks near the beginning of the chain.
	//
	// This code follows suit to ensure the same rules are used, however, be
	// aware that should the medianTimeBlocks constant ever be changed to an
	// even number, this code will be wrong.
	medianTimestamp := timestamps[numNodes/2]
	return time.Unix(medianTimestamp, 0)
}

// compareHashesAsUint256LE compares two raw hashes treated as if they were
// little-endian uint256s in a way that is more efficient than converting them
// to big integers first.  It returns 1 when a > b, -1 when a < b, and 0 when a
// == b.
func compareHashesAsUint256LE(a, b *chainhash.Hash) int {
	// Find the index of the first byte that differs.
	index := len(a) - 1
	for ; index >= 0 && a[index] == b[index]; index-- {
		// Nothing to do.
	}
	if index < 0 {
		return 0
	}
	if a[index] > b[index] {
		return 1
	}
	return -1
}

// workSorterLess returns whether node 'a' is a worse candidate than 'b' for the
// purposes of best chain selection.
//
// The criteria for determining what constitutes a worse candidate, in order of
// priority, is as follows:
//
// 1. Less total cumulative work
// 2. Not having block data available
// 3. Receiving data later
// 4. Hash that represents less work (larger value as a little-endian uint256)
//
// This function MUST be called with the block index lock held (for reads).
func workSorterLess(a, b *blockNode) bool {
	// First, sort by the total cumulative work.
	//
	// Blocks with less cumulative work are worse candidates for best chain
	// selection.
	if workCmp := a.workSum.Cmp(&b.workSum); workCmp != 0 {
		return workCmp < 0
	}

	// Then sort according to block data availability.
	//
	// Blocks that do not have all of their data available yet are worse
	// candidates than those that do.  They have the same priority if either
	// both have their data available or neither do.
	if aHasData := a.status.HaveData(); aHasData != b.status.HaveData() {
		return !aHasData
	}

	// Then sort according to blocks that received their data first.  Note that
	// the received order will be 0 for both in the case neither block has its
	// data available.
	//
	// Blocks that receive their data later are worse candidates.
	if a.receivedOrderID != b.receivedOrderID {
		// Using greater than here because data that was received later will
		// have a higher id.
		return a.receivedOrderID > b.receivedOrderID
	}

	// Finally, fall back to sorting based on the hash in the case the work,
	// block data availability, and received order are all the same.  In
	// practice, the order will typically only be the same for blocks loaded
	// from disk since the received order is only stored in memory.
	//
	// Note that it is more difficult to find hashes with more leading zeros
	// when treated as a little-endian uint256, so larger values represent less
	// work and are therefore worse candidates.
	return compareHashesAsUint256LE(&a.hash, &b.hash) > 0
}

// chainTipEntry defines an entry used to track the chain tips and is structured
// such that there is a single statically-allocated field to house a tip, and a
// dynamically-allocated slice for the rare case when there are multiple
// tips at the same height.
type chainTipEntry struct {
	tip       *blockNode
	otherTips []*blockNode
}

// blockIndex provides facilities for keeping track of an in-memory index of the
// block chain.  Although the name block chain suggests a single chain of
// blocks, it is actually a tree-shaped structure where any node can have
// multiple children.  However, there can only be one active branch which does
// indeed form a chain from the tip all the way back to the genesis block.
//
// Nodes are never removed from the index for the lifetime of the process, so
// the other chain structures are free to hold references to them.
type blockIndex struct {
	// The following fields are set when the instance is created and can't
	// be changed afterwards, so there is no need to protect them with a
	// separate mutex.
	db *leveldb.DB

	// These following fields are protected by the embedded mutex.
	//
	// index contains an entry for every known block tracked by the block
	// index.
	//
	// modified contains an entry for all nodes that have been modified
	// since the last time the index was flushed to disk.
	//
	// chainTips contains an entry with the tip of all known side chains.
	//
	// totalTips tracks the total number of all known chain tips.
	sync.RWMutex
	index     map[chainhash.Hash]*blockNode
	modified  map[*blockNode]struct{}
	chainTips map[int64]chainTipEntry
	totalTips uint64

	// These fields are related to selecting the best chain.  They are protected
	// by the embedded mutex.
	//
	// bestHeader tracks the highest work block node in the index that is not
	// known to be invalid.  This is not necessarily the same as the active best
	// chain, especially when block data is not yet known.
	//
	// bestInvalid tracks the highest work block node that was found to be
	// invalid.
	//
	// bestChainCandidates tracks a set of block nodes in the block index that
	// are potential candidates to become the best chain.  It never holds a
	// node that is known invalid or parked.
	//
	// unlinkedChildrenOf maps blocks that do not yet have the full block data
	// available to any immediate children that do have the full block data
	// available.
	//
	// nextReceivedOrderID is assigned to block nodes and incremented each time
	// block data is received in order to aid in chain selection.
	bestHeader          *blockNode
	bestInvalid         *blockNode
	bestChainCandidates map[*blockNode]struct{}
	unlinkedChildrenOf  map[*blockNode][]*blockNode
	nextReceivedOrderID uint32

	// These fields are related to caching the most recent chain tips.  They are
	// protected by the embedded mutex.
	//
	// cachedTips is similar to chainTips except that it only tracks chain tips
	// starting at the height specified by cachedTipsStart.  It is primarily
	// used to optimize the descendant walks when marking blocks.
	cachedTips           map[chainhash.Hash]*blockNode
	cachedTipsStart      int64
	cachedTipsLastPruned time.Time
}

// newBlockIndex returns a new empty instance of a block index.  The index will
// be dynamically populated as block nodes are loaded from the database and
// manually added.
func newBlockIndex(db *leveldb.DB) *blockIndex {
	// Notice the next received ID starts at one since all entries loaded from
	// disk will be zero.
	return &blockIndex{
		db:                  db,
		index:               make(map[chainhash.Hash]*blockNode),
		modified:            make(map[*blockNode]struct{}),
		chainTips:           make(map[int64]chainTipEntry),
		cachedTips:          make(map[chainhash.Hash]*blockNode),
		bestChainCandidates: make(map[*blockNode]struct{}),
		unlinkedChildrenOf:  make(map[*blockNode][]*blockNode),
		nextReceivedOrderID: 1,
	}
}

// HaveBlock returns whether or not the block index contains the provided hash
// and the block data is available.
//
// This function is safe for concurrent access.
func (bi *blockIndex) HaveBlock(hash *chainhash.Hash) bool {
	bi.RLock()
	node := bi.lookupNode(hash)
	hasBlock := node != nil && node.status.HaveData()
	bi.RUnlock()
	return hasBlock
}

// addNode adds the provided node to the block index.  Duplicate entries are not
// checked so it is up to caller to avoid adding them.
//
// This function MUST be called with the block index lock held (for writes).
func (bi *blockIndex) addNode(node *blockNode) {
	bi.index[node.hash] = node

	// Since the block index does not support nodes that do not connect to
	// an existing node (except the genesis block), all new nodes are either
	// extending an existing chain or are on a side chain, but in either
	// case, are a new chain tip.  In the case the node is extending a
	// chain, the parent is no longer a tip.
	bi.addChainTip(node)
	if node.parent != nil {
		bi.removeChainTip(node.parent)
	}

	// Update the header with most known work that is also not known to be
	// invalid to this node if needed.
	if !node.status.KnownInvalid() && (bi.bestHeader == nil ||
		workSorterLess(bi.bestHeader, node)) {

		bi.bestHeader = node
	}
}

// addNodeFromDB adds the provided node, which is expected to have come from
// storage, to the block index and also updates the unlinked block dependencies
// and best known invalid block as needed.
//
// This function is NOT safe for concurrent access and therefore must only be
// called during block index initialization.
func (bi *blockIndex) addNodeFromDB(node *blockNode) {
	bi.addNode(node)

	// Add this node to the map of unlinked blocks that are potentially eligible
	// for connection when it is not already fully linked, but the data for it
	// is already known and its parent is not already known to be invalid.
	if !node.isFullyLinked && node.status.HaveData() && node.parent != nil &&
		!node.parent.status.KnownInvalid() {

		unlinkedChildren := bi.unlinkedChildrenOf[node.parent]
		bi.unlinkedChildrenOf[node.parent] = append(unlinkedChildren, node)
	}

	// Set this node as the best known invalid block when it is invalid and has
	// more work than the current one.
	if node.status.KnownInvalid() {
		bi.maybeUpdateBestInvalid(node)
	}
}

// AddNode adds the provided node to the block index and marks it as modified.
// Duplicate entries are not checked so it is up to caller to avoid adding them.
//
// This function is safe for concurrent access.
func (bi *blockIndex) AddNode(node *blockNode) {
	bi.Lock()
	bi.addNode(node)
	bi.modified[node] = struct{}{}
	bi.Unlock()
}

// addChainTip adds the passed block node as a new chain tip.
//
// This function MUST be called with the block index lock held (for writes).
func (bi *blockIndex) addChainTip(tip *blockNode) {
	bi.totalTips++
	bi.cachedTips[tip.hash] = tip

	// When an entry does not already exist for the given tip height, add an
	// entry to the map with the tip stored in the statically-allocated field.
	entry, ok := bi.chainTips[tip.height]
	if !ok {
		bi.chainTips[tip.height] = chainTipEntry{tip: tip}
		return
	}

	// Otherwise, an entry already exists for the given tip height, so store the
	// tip in the dynamically-allocated slice.
	entry.otherTips = append(entry.otherTips, tip)
	bi.chainTips[tip.height] = entry
}

// removeChainTip removes the passed block node from the available chain tips.
//
// This function MUST be called with the block index lock held (for writes).
func (bi *blockIndex) removeChainTip(tip *blockNode) {
	delete(bi.cachedTips, tip.hash)

	// Nothing to do if no tips exist at the given height.
	entry, ok := bi.chainTips[tip.height]
	if !ok {
		return
	}

	// The most common case is a single tip at the given height, so handle the
	// case where the tip that is being removed is the tip that is stored in the
	// statically-allocated field first.
	if entry.tip == tip {
		bi.totalTips--
		entry.tip = nil

		// Remove the map entry altogether if there are no more tips left.
		if len(entry.otherTips) == 0 {
			delete(bi.chainTips, tip.height)
			return
		}

		// There are still tips stored in the dynamically-allocated slice, so
		// move the first tip from it to the statically-allocated field.
		entry.tip = entry.otherTips[0]
		entry.otherTips = entry.otherTips[1:]
		if len(entry.otherTips) == 0 {
			entry.otherTips = nil
		}
		bi.chainTips[tip.height] = entry
		return
	}

	// The tip being removed is not the tip stored in the statically-allocated
	// field, so attempt to remove it from the dynamically-allocated slice.
	for i, n := range entry.otherTips {
		if n == tip {
			bi.totalTips--

			copy(entry.otherTips[i:], entry.otherTips[i+1:])
			entry.otherTips[len(entry.otherTips)-1] = nil
			entry.otherTips = entry.otherTips[:len(entry.otherTips)-1]
			if len(entry.otherTips) == 0 {
				entry.otherTips = nil
			}
			bi.chainTips[tip.height] = entry
			return
		}
	}
}

// forEachChainTip calls the provided function with each chain tip known to the
// block index.  Returning an error from the provided function will stop the
// iteration early and return said error from this function.
//
// This function MUST be called with the block index lock held (for reads).
func (bi *blockIndex) forEachChainTip(f func(tip *blockNode) error) error {
	for _, tipEntry := range bi.chainTips {
		if err := f(tipEntry.tip); err != nil {
			return err
		}
		for _, tip := range tipEntry.otherTips {
			if err := f(tip); err != nil {
				return err
			}
		}
	}
	return nil
}

// forEachChainTipAfterHeight calls the provided function with each chain tip
// known to the block index that has a height which is greater than the provided
// filter node.
//
// Providing a filter node also makes use of the recent chain tip cache when
// possible which typically further reduces the number of chain tips that need
// to be iterated since all old chain tips are pruned from the cache.
//
// This function MUST be called with the block index lock held (for reads).
func (bi *blockIndex) forEachChainTipAfterHeight(filter *blockNode, f func(tip *blockNode) error) error {
	// Use the cached recent chain tips when the filter height permits it.
	if filter.height >= bi.cachedTipsStart-1 {
		for _, tip := range bi.cachedTips {
			if tip.height <= filter.height {
				continue
			}
			if err := f(tip); err != nil {
				return err
			}
		}
		return nil
	}

	// Fall back to iterating through all chain tips when the filter height is
	// prior to the point the cached recent chain tips are tracking.
	for tipHeight, tipEntry := range bi.chainTips {
		if tipHeight <= filter.height {
			continue
		}

		if err := f(tipEntry.tip); err != nil {
			return err
		}
		for _, tip := range tipEntry.otherTips {
			if err := f(tip); err != nil {
				return err
			}
		}
	}

	return nil
}

// forEachDescendant calls the provided function once with every indexed
// strict descendant of the passed node.
//
// The descendants are discovered by walking back from every chain tip after
// the node's height to the node.  Blocks shared by several branches are only
// visited once.
//
// This function MUST be called with the block index lock held (for reads).
func (bi *blockIndex) forEachDescendant(node *blockNode, f func(n *blockNode)) {
	visited := make(map[*blockNode]struct{})
	bi.forEachChainTipAfterHeight(node, func(tip *blockNode) error {
		// Nothing to do if the node is not an ancestor of the given chain tip.
		if tip.Ancestor(node.height) != node {
			return nil
		}
		for n := tip; n != node; n = n.parent {
			if _, ok := visited[n]; ok {
				break
			}
			visited[n] = struct{}{}
			f(n)
		}
		return nil
	})
}

// lookupNode returns the block node identified by the provided hash.  It will
// return nil if there is no entry for the hash.
//
// This function MUST be called with the block index lock held (for reads).
func (bi *blockIndex) lookupNode(hash *chainhash.Hash) *blockNode {
	return bi.index[*hash]
}

// LookupNode returns the block node identified by the provided hash.  It will
// return nil if there is no entry for the hash.
//
// This function is safe for concurrent access.
func (bi *blockIndex) LookupNode(hash *chainhash.Hash) *blockNode {
	bi.RLock()
	node := bi.lookupNode(hash)
	bi.RUnlock()
	return node
}

// NodeStatus returns the status associated with the provided node.
//
// This function is safe for concurrent access.
func (bi *blockIndex) NodeStatus(node *blockNode) blockStatus {
	bi.RLock()
	status := node.status
	bi.RUnlock()
	return status
}

// NodeValidity returns the validity level of the provided node.
//
// This function is safe for concurrent access.
func (bi *blockIndex) NodeValidity(node *blockNode) validityLevel {
	bi.RLock()
	validity := node.validity
	bi.RUnlock()
	return validity
}

// setStatusFlags sets the provided status flags for the given block node
// regardless of their previous state.  It does not unset any flags.
//
// This function MUST be called with the block index lock held (for writes).
func (bi *blockIndex) setStatusFlags(node *blockNode, flags blockStatus) {
	origStatus := node.status
	node.status |= flags
	if node.status != origStatus {
		bi.modified[node] = struct{}{}
	}
}

// SetStatusFlags sets the provided status flags for the given block node
// regardless of their previous state.  It does not unset any flags.
//
// This function is safe for concurrent access.
func (bi *blockIndex) SetStatusFlags(node *blockNode, flags blockStatus) {
	bi.Lock()
	bi.setStatusFlags(node, flags)
	bi.Unlock()
}

// unsetStatusFlags unsets the provided status flags for the given block node
// regardless of their previous state.
//
// This function MUST be called with the block index lock held (for writes).
func (bi *blockIndex) unsetStatusFlags(node *blockNode, flags blockStatus) {
	origStatus := node.status
	node.status &^= flags
	if node.status != origStatus {
		bi.modified[node] = struct{}{}
	}
}

// UnsetStatusFlags unsets the provided status flags for the given block node
// regardless of their previous state.
//
// This function is safe for concurrent access.
func (bi *blockIndex) UnsetStatusFlags(node *blockNode, flags blockStatus) {
	bi.Lock()
	bi.unsetStatusFlags(node, flags)
	bi.Unlock()
}

// raiseValidity raises the validity level of the node to the provided level.
// The level is never lowered and never raised above the level of the parent.
// It returns whether the level was changed.
//
// This function MUST be called with the block index lock held (for writes).
func (bi *blockIndex) raiseValidity(node *blockNode, level validityLevel) bool {
	if node.parent != nil && level > node.parent.validity {
		level = node.parent.validity
	}
	if level <= node.validity {
		return false
	}
	node.validity = level
	bi.modified[node] = struct{}{}
	return true
}

// RaiseValidity raises the validity level of the node to the provided level.
// See raiseValidity for details.
//
// This function is safe for concurrent access.
func (bi *blockIndex) RaiseValidity(node *blockNode, level validityLevel) bool {
	bi.Lock()
	raised := bi.raiseValidity(node, level)
	bi.Unlock()
	return raised
}

// SetDataPos records the position of the block data and marks the data as
// available.
//
// This function is safe for concurrent access.
func (bi *blockIndex) SetDataPos(node *blockNode, pos blockstore.FilePos, numTxns uint32) {
	bi.Lock()
	node.dataPos = pos
	node.numTxns = numTxns
	bi.setStatusFlags(node, statusHaveData)
	bi.modified[node] = struct{}{}
	bi.Unlock()
}

// SetUndoPos records the position of the undo data of the block and marks it
// as available.
//
// This function is safe for concurrent access.
func (bi *blockIndex) SetUndoPos(node *blockNode, pos blockstore.FilePos) {
	bi.Lock()
	node.undoPos = pos
	bi.setStatusFlags(node, statusHaveUndo)
	bi.modified[node] = struct{}{}
	bi.Unlock()
}

// BlockPos returns the positions of the block data and undo data of the node.
//
// This function is safe for concurrent access.
func (bi *blockIndex) BlockPos(node *blockNode) (blockstore.FilePos, blockstore.FilePos) {
	bi.RLock()
	dataPos, undoPos := node.dataPos, node.undoPos
	bi.RUnlock()
	return dataPos, undoPos
}

// BestHeader returns the header with the most cumulative work that is NOT
// known to be invalid.
//
// This function is safe for concurrent access.
func (bi *blockIndex) BestHeader() *blockNode {
	bi.RLock()
	bestHeader := bi.bestHeader
	bi.RUnlock()
	return bestHeader
}

// BestInvalid returns the block with the most cumulative work that is known
// to be invalid.  It will be nil when there are no known invalid blocks.
//
// This function is safe for concurrent access.
func (bi *blockIndex) BestInvalid() *blockNode {
	bi.RLock()
	bestInvalid := bi.bestInvalid
	bi.RUnlock()
	return bestInvalid
}

// isEligibleCandidate returns whether the node may be added to the set of
// best chain candidates given the provided current best chain tip.
//
// This function MUST be called with the block index lock held (for reads).
func (bi *blockIndex) isEligibleCandidate(node, tip *blockNode) bool {
	return bi.canValidate(node) && !node.status.KnownInvalid() &&
		!node.status.KnownParked() &&
		(tip == nil || node.workSum.Cmp(&tip.workSum) >= 0)
}

// addBestChainCandidate adds the passed block node as a potential candidate
// for becoming the tip of the best chain.
//
// This function MUST be called with the block index lock held (for writes).
func (bi *blockIndex) addBestChainCandidate(node *blockNode) {
	bi.bestChainCandidates[node] = struct{}{}
}

// AddBestChainCandidate adds the passed block node as a potential candidate
// for becoming the tip of the best chain when it is eligible as compared to
// the provided tip.
//
// This function is safe for concurrent access.
func (bi *blockIndex) AddBestChainCandidate(node, tip *blockNode) {
	bi.Lock()
	if bi.isEligibleCandidate(node, tip) {
		bi.addBestChainCandidate(node)
	}
	bi.Unlock()
}

// pruneCachedTips removes old cached chain tips used to optimize descendant
// walks by treating the passed best known block as a reference point.
//
// This function MUST be called with the block index lock held (for writes).
func (bi *blockIndex) pruneCachedTips(bestNode *blockNode) {
	// No blocks exist before height 0.
	height := bestNode.height - cachedTipsPruneDepth
	if height <= 0 {
		bi.cachedTipsLastPruned = time.Now()
		return
	}

	for hash, n := range bi.cachedTips {
		if n.height < height {
			delete(bi.cachedTips, hash)
		}
	}
	bi.cachedTipsStart = height
	bi.cachedTipsLastPruned = time.Now()
}

// MaybePruneCachedTips periodically removes old cached chain tips used to
// optimize descendant walks by treating the passed best known block as a
// reference point.
//
// This function is safe for concurrent access.
func (bi *blockIndex) MaybePruneCachedTips(bestNode *blockNode) {
	bi.Lock()
	if time.Since(bi.cachedTipsLastPruned) >= cachedTipsPruneInterval {
		bi.pruneCachedTips(bestNode)
	}
	bi.Unlock()
}

// removeBestChainCandidate removes the passed block node from the potential
// candidates for becoming the tip of the best chain.
//
// This function MUST be called with the block index lock held (for writes).
func (bi *blockIndex) removeBestChainCandidate(node *blockNode) {
	delete(bi.bestChainCandidates, node)
}

// RemoveBestChainCandidate removes the passed block node from the potential
// candidates for becoming the tip of the best chain.
//
// This function is safe for concurrent access.
func (bi *blockIndex) RemoveBestChainCandidate(node *blockNode) {
	bi.Lock()
	bi.removeBestChainCandidate(node)
	bi.Unlock()
}

// maybeUpdateBestInvalid potentially updates the best known invalid block, as
// determined by having the most cumulative work, by comparing the passed block
// node, which must have already been determined to be invalid, against the
// current one.
//
// This function MUST be called with the block index lock held (for writes).
func (bi *blockIndex) maybeUpdateBestInvalid(invalidNode *blockNode) {
	if bi.bestInvalid == nil || workSorterLess(bi.bestInvalid, invalidNode) {
		bi.bestInvalid = invalidNode
	}
}

// maybeUpdateBestHeaderForTip potentially updates the best known header that is
// not known to be invalid, as determined by having the most cumulative work.
// It works by walking backwards from the provided tip so long as those headers
// have more work than the current best header and selecting the first one that
// is not known to be invalid.
//
// This function MUST be called with the block index lock held (for writes).
func (bi *blockIndex) maybeUpdateBestHeaderForTip(tip *blockNode) {
	for n := tip; n != nil && workSorterLess(bi.bestHeader, n); n = n.parent {
		if !n.status.KnownInvalid() {
			bi.bestHeader = n
			return
		}
	}
}

// recalcBestHeader scours the block tree to find the header with the most
// work that is not known to be invalid.
//
// This function MUST be called with the block index lock held (for writes).
func (bi *blockIndex) recalcBestHeader(lowerBound *blockNode) {
	bi.bestHeader = lowerBound

	// Note that all chain tips must be iterated versus filtering based on
	// the current best header height because, while uncommon, it is
	// possible for lower heights to have more work.
	bi.forEachChainTip(func(tip *blockNode) error {
		bi.maybeUpdateBestHeaderForTip(tip)
		return nil
	})
}

// MarkBlockFailedValidation marks the passed node as having failed validation
// and then marks all of its descendants (if any) as having a failed ancestor.
//
// This function is safe for concurrent access.
func (bi *blockIndex) MarkBlockFailedValidation(node *blockNode) {
	bi.Lock()
	bi.setStatusFlags(node, statusFailed)
	bi.unsetStatusFlags(node, statusFailedParent)
	bi.removeBestChainCandidate(node)
	bi.maybeUpdateBestInvalid(node)
	delete(bi.unlinkedChildrenOf, node)

	// Mark all descendants of the failed block as having a failed ancestor.
	//
	// In order to fairly efficiently determine all of the descendants of the
	// block without having to iterate the entire block index, walk through all
	// of the known chain tips and check if the block being invalidated is an
	// ancestor of the tip.  In the case it is, then all blocks between that tip
	// and the failed block are descendants.  As an additional optimization, a
	// cache of recent tips (those after a recent height) is maintained and used
	// when possible to reduce the number of potential affected chain tips that
	// need to be iterated.
	//
	// In order to help visualize the logic, consider the following block tree
	// with several branches:
	//
	// 100 -> 101  -> 102  -> 103  -> 104  -> 105  -> 106  -> 107  -> 108
	//    \-> 101a -> 102a -> 103a -> 104a -> 105a        \-> 107a
	//    \-> 101b    ----        |       \-> 105b -> 106b
	//                 ^^         \-> 104c -> 105c -> 106c
	//               Failed       \-> 104d -> 105d
	//
	// Further, assume block 102a failed validation.  As can be seen, its
	// descendants are 103a, 104a, 105a, 105b, 106b, 104c, 105c, 106c, 104d, and
	// 105d, and the chain tips of this hypothetical block tree would be 101b,
	// 105a, 105d, 106b, 106c, 107a, and 108.
	//
	// Since the failed block, 102a, is not an ancestor of tips 101b, 107a, or
	// 108, those tips are ignored.  Of the remaining tips, the blocks would be
	// marked as having an invalid ancestor as follows:
	//
	// Tip 105a: 105a, 104a, 103a       (102a is failed block, next)
	// Tip 106b: 106b, 105b             (104a already visited, next)
	// Tip 106c: 106c, 105c, 104c       (103a already visited, next)
	// Tip 105d: 105d, 104d             (103a already visited, next)
	//
	// Note that a block deeper in a branch might already be marked failed
	// before an earlier block is found to be invalid.  The deeper block keeps
	// its own failed flag while every block between it and the newly failed
	// block gains the failed ancestor flag.
	bi.forEachDescendant(node, func(n *blockNode) {
		bi.maybeUpdateBestInvalid(n)
		if !n.status.KnownValidateFailed() {
			bi.setStatusFlags(n, statusFailedParent)
		}
		bi.removeBestChainCandidate(n)

		// Remove any children that depend on the failed block from the set
		// of unlinked blocks accordingly since they are no longer eligible
		// for connection even if the full block data for a block becomes
		// available.
		delete(bi.unlinkedChildrenOf, n)
	})

	// Update the best header if the current one is now invalid which will be
	// the case when the best header is a descendant of the failed block.
	if bi.bestHeader.status.KnownInvalid() {
		// Use the first ancestor of the failed block that is not known to be
		// invalid as the lower bound for the best header.
		n := node.parent
		for n != nil && n.status.KnownInvalid() {
			n = n.parent
		}
		bi.recalcBestHeader(n)
	}
	bi.Unlock()
}

// MarkBlockParked marks the passed node as parked and all of its descendants
// (if any) as having a parked ancestor.  None of them remain candidates for
// the best chain.
//
// This function is safe for concurrent access.
func (bi *blockIndex) MarkBlockParked(node *blockNode) {
	bi.Lock()
	bi.setStatusFlags(node, statusParked)
	bi.removeBestChainCandidate(node)
	bi.forEachDescendant(node, func(n *blockNode) {
		bi.setStatusFlags(n, statusParkedParent)
		bi.removeBestChainCandidate(n)
	})
	bi.Unlock()
}

// clearBranchFlags removes the provided flags from the passed node, all of
// its ancestors, and all of its descendants and then adds every block of the
// affected branches that became eligible back to the best chain candidates.
//
// This function MUST be called with the block index lock held (for writes).
func (bi *blockIndex) clearBranchFlags(node, tip *blockNode, flags blockStatus) {
	bi.unsetStatusFlags(node, flags)
	if bi.isEligibleCandidate(node, tip) {
		bi.addBestChainCandidate(node)
	}
	bi.forEachDescendant(node, func(n *blockNode) {
		bi.unsetStatusFlags(n, flags)
		if bi.isEligibleCandidate(n, tip) {
			bi.addBestChainCandidate(n)
		}
	})
	for n := node.parent; n != nil; n = n.parent {
		bi.unsetStatusFlags(n, flags)
		if bi.isEligibleCandidate(n, tip) {
			bi.addBestChainCandidate(n)
		}
	}
}

// ClearFailureFlags removes the failed flags from the passed node, its
// ancestors, and its descendants so they are considered for the best chain
// again.  Blocks that are actually invalid will fail validation again when
// they are connected.
//
// This function is safe for concurrent access.
func (bi *blockIndex) ClearFailureFlags(node, tip *blockNode) {
	bi.Lock()
	bi.clearBranchFlags(node, tip, statusFailed|statusFailedParent)
	if bi.bestInvalid != nil && !bi.bestInvalid.status.KnownInvalid() {
		bi.bestInvalid = nil
		bi.forEachChainTip(func(t *blockNode) error {
			for n := t; n != nil; n = n.parent {
				if n.status.KnownInvalid() {
					bi.maybeUpdateBestInvalid(n)
					break
				}
			}
			return nil
		})
	}
	bi.recalcBestHeader(bi.bestHeader)
	bi.Unlock()
}

// UnparkBlock removes the parked flags from the passed node, its ancestors,
// and its descendants so they are considered for the best chain again without
// needing to be validated again.
//
// This function is safe for concurrent access.
func (bi *blockIndex) UnparkBlock(node, tip *blockNode) {
	bi.Lock()
	bi.clearBranchFlags(node, tip, statusParked|statusParkedParent)
	bi.Unlock()
}

// canValidate returns whether or not the block associated with the provided
// node can be validated.  In order for a block to be validated, both it, and
// all of its ancestors, must have the block data available.
//
// This function MUST be called with the block index lock held (for reads).
func (bi *blockIndex) canValidate(node *blockNode) bool {
	return node.isFullyLinked && node.status.HaveData()
}

// CanValidate returns whether or not the block associated with the provided
// node can be validated.  In order for a block to be validated, both it, and
// all of its ancestors, must have the block data available.
//
// This function is safe for concurrent access.
func (bi *blockIndex) CanValidate(node *blockNode) bool {
	bi.RLock()
	canValidate := bi.canValidate(node)
	bi.RUnlock()
	return canValidate
}

// removeLessWorkCandidates removes all potential best chain candidates that
// have less work than the provided node, which is typically a newly connected
// best chain tip.
//
// This function MUST be called with the block index lock held (for writes).
func (bi *blockIndex) removeLessWorkCandidates(node *blockNode) {
	// Remove all best chain candidates that have less work than the passed
	// node.
	for n := range bi.bestChainCandidates {
		if n.workSum.Lt(&node.workSum) {
			bi.removeBestChainCandidate(n)
		}
	}

	// The best chain candidates must always contain at least the current best
	// chain tip.  Assert this assumption is true.
	if len(bi.bestChainCandidates) == 0 {
		panicf("best chain candidates list is empty after removing less work " +
			"candidates")
	}
}

// RemoveLessWorkCandidates removes all potential best chain candidates that
// have less work than the provided node, which is typically a newly connected
// best chain tip.
//
// This function is safe for concurrent access.
func (bi *blockIndex) RemoveLessWorkCandidates(node *blockNode) {
	bi.Lock()
	bi.removeLessWorkCandidates(node)
	bi.Unlock()
}

// linkBlockData marks the provided block as fully linked to indicate that both
// it and all of its ancestors have their data available and then determines if
// there are any unlinked blocks which depend on the passed block and links
// those as well until there are no more.  It returns a list of blocks that were
// linked.
//
// It also accounts for the order that the blocks are linked and potentially
// adds the newly-linked blocks as best chain candidates if they have more
// cumulative work than the current best chain tip.
//
// This function MUST be called with the block index lock held (for writes).
func (bi *blockIndex) linkBlockData(node, tip *blockNode) []*blockNode {
	// Start with processing at least the passed node.
	//
	// Note that no additional space is preallocated here because it is fairly
	// rare (after the initial sync) for there to be more than the single block
	// being linked and thus it will typically remain on the stack and avoid an
	// allocation.
	linkedNodes := []*blockNode{node}
	for nodeIndex := 0; nodeIndex < len(linkedNodes); nodeIndex++ {
		linkedNode := linkedNodes[nodeIndex]

		// Mark the block as fully linked to indicate that both it and all of
		// its ancestors have their data available.
		linkedNode.isFullyLinked = true

		// Keep track of the order in which the block data was received to
		// ensure miners gain no advantage by advertising the header first.
		linkedNode.receivedOrderID = bi.nextReceivedOrderID
		bi.nextReceivedOrderID++

		// The block is now a candidate to potentially become the best chain if
		// it has the same or more work than the current best chain tip.
		if bi.isEligibleCandidate(linkedNode, tip) {
			bi.addBestChainCandidate(linkedNode)
		}

		// Add any children of the block that was just linked to the list to be
		// linked and remove them from the set of unlinked blocks accordingly.
		unlinkedChildren := bi.unlinkedChildrenOf[linkedNode]
		if len(unlinkedChildren) > 0 {
			linkedNodes = append(linkedNodes, unlinkedChildren...)
			delete(bi.unlinkedChildrenOf, linkedNode)
		}
	}

	return linkedNodes
}

// AcceptBlockData updates the block index state to account for the full data
// for a block becoming available.  For example, blocks that are currently not
// eligible for validation due to either not having the block data itself or not
// having all ancestor data available might become eligible for validation.  It
// returns a list of all blocks that were linked, if any.
//
// NOTE: It is up to the caller to only call this function when the data was not
// previously available.
//
// This function is safe for concurrent access.
func (bi *blockIndex) AcceptBlockData(node, tip *blockNode) []*blockNode {
	var linkedBlocks []*blockNode
	bi.Lock()
	if node.parent == nil || bi.canValidate(node.parent) {
		linkedBlocks = bi.linkBlockData(node, tip)
	} else if !node.parent.status.KnownInvalid() {
		unlinkedChildren := bi.unlinkedChildrenOf[node.parent]
		bi.unlinkedChildrenOf[node.parent] = append(unlinkedChildren, node)
	}
	bi.Unlock()
	return linkedBlocks
}

// unlinkBranch moves the passed node back to the set of unlinked blocks since
// an ancestor no longer has its data and removes it and the blocks between it
// and the provided ancestor from the best chain candidates.
//
// This function MUST be called with the block index lock held (for writes).
func (bi *blockIndex) unlinkBranch(node, missing *blockNode) {
	for n := node; n != missing; n = n.parent {
		bi.removeBestChainCandidate(n)
		n.isFullyLinked = false
		if n.parent == missing && n.status.HaveData() {
			unlinkedChildren := bi.unlinkedChildrenOf[missing]
			bi.unlinkedChildrenOf[missing] = append(unlinkedChildren, n)
		}
	}
}

// findBestChainCandidate returns the best potentially valid chain tip as
// determined by having the highest cumulative work with fallback to the
// criteria described by workSorterLess in the case of equal work.
//
// This function MUST be called with the block index lock held (for reads).
func (bi *blockIndex) findBestChainCandidate() *blockNode {
	var bestCandidate *blockNode
	for node := range bi.bestChainCandidates {
		if bestCandidate == nil || workSorterLess(bestCandidate, node) {
			bestCandidate = node
		}
	}
	return bestCandidate
}

// FindBestChainCandidate searches the block index for the best potentially
// valid chain that contains the most cumulative work and returns its tip.  In
// order to be potentially valid, all of the block data leading up to a block
// must have already been received and must not be part of a chain that is
// already known to be invalid.  A chain that has not yet been fully validated,
// such as a side chain that has never been the main chain, is neither known to
// be valid nor invalid, so it is possible that the returned candidate will form
// a chain that is invalid.
//
// This function is safe for concurrent access.
func (bi *blockIndex) FindBestChainCandidate() *blockNode {
	bi.RLock()
	defer bi.RUnlock()
	return bi.findBestChainCandidate()
}

// NumCandidates returns the number of best chain candidates.
//
// This function is safe for concurrent access.
func (bi *blockIndex) NumCandidates() int {
	bi.RLock()
	numCandidates := len(bi.bestChainCandidates)
	bi.RUnlock()
	return numCandidates
}

// PruneFileNodes forgets the block and undo data positions of every node whose
// data lives in one of the provided files since the files are about to be
// deleted.
//
// This function is safe for concurrent access.
func (bi *blockIndex) PruneFileNodes(files map[int32]struct{}) {
	bi.Lock()
	for _, node := range bi.index {
		if _, ok := files[node.dataPos.File]; !ok || node.dataPos.IsNull() {
			continue
		}
		bi.unsetStatusFlags(node, statusHaveData|statusHaveUndo)
		node.dataPos = blockstore.NullFilePos
		node.undoPos = blockstore.NullFilePos
		bi.modified[node] = struct{}{}
		bi.removeBestChainCandidate(node)

		// Children waiting on this block will never be linked through it.
		delete(bi.unlinkedChildrenOf, node)
		if parentChildren, ok := bi.unlinkedChildrenOf[node.parent]; ok {
			for i, child := range parentChildren {
				if child == node {
					parentChildren = append(parentChildren[:i],
						parentChildren[i+1:]...)
					break
				}
			}
			if len(parentChildren) == 0 {
				delete(bi.unlinkedChildrenOf, node.parent)
			} else {
				bi.unlinkedChildrenOf[node.parent] = parentChildren
			}
		}
	}
	bi.Unlock()
}

// flush writes all of the modified block nodes to the database and clears the
// set of modified nodes if it succeeds.
//
// This function is safe for concurrent access.
func (bi *blockIndex) flush() error {
	// Nothing to flush if there are no modified nodes.
	bi.Lock()
	defer bi.Unlock()
	if len(bi.modified) == 0 {
		return nil
	}

	// Write all of the nodes in the set of modified nodes to the database in
	// a single atomic batch.
	batch := new(leveldb.Batch)
	for node := range bi.modified {
		if err := dbPutBlockNode(batch, node); err != nil {
			return err
		}
	}
	if err := bi.db.Write(batch, nil); err != nil {
		return convertLdbErr(err, "failed to write block index")
	}

	// Clear the set of modified nodes.
	bi.modified = make(map[*blockNode]struct{})
	return nil
}

// UnlinkBranch moves the passed node back to the set of unlinked blocks since
// the data of the provided ancestor is no longer available.  None of the
// blocks between them remain candidates for the best chain.
//
// This function is safe for concurrent access.
func (bi *blockIndex) UnlinkBranch(node, missing *blockNode) {
	bi.Lock()
	bi.unlinkBranch(node, missing)
	bi.Unlock()
}

// AddEligibleCandidates adds every block in the index that is eligible to
// become the best chain as compared to the provided tip to the set of best
// chain candidates.  It is used when the candidates must be rebuilt, such as
// during initialization and after the tip is moved backwards.
//
// This function is safe for concurrent access.
func (bi *blockIndex) AddEligibleCandidates(tip *blockNode) {
	bi.Lock()
	for _, node := range bi.index {
		if bi.isEligibleCandidate(node, tip) {
			bi.addBestChainCandidate(node)
		}
	}
	bi.Unlock()
}
