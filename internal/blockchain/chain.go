// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package blockchain implements block handling, validation, and chain
// selection rules.
package blockchain

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/container/lru"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/math/uint256"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/wire"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/xecnode/xecd/chaincfg"
	"github.com/xecnode/xecd/internal/blockstore"
	"github.com/xecnode/xecd/internal/progresslog"
)

const (
	// recentBlockCacheSize is the number of recent blocks to keep in memory.
	recentBlockCacheSize = 12

	// checkedBlockCacheSize is the number of recent blocks that passed the
	// context free checks to remember so they are not checked again when the
	// same block is received more than once.
	checkedBlockCacheSize = 50
)

// panicf is a convenience function that formats according to the given format
// specifier and arguments and then logs the result at the critical level and
// panics with it.
func panicf(format string, args ...interface{}) {
	str := fmt.Sprintf(format, args...)
	log.Critical(str)
	panic(str)
}

// BlockLocator is used to help locate a specific block.  The algorithm for
// building the block locator is to add the hashes in reverse order until
// the genesis block is reached.  In order to keep the list of locator hashes
// to a reasonable number of entries, first the most recent previous 12 block
// hashes are added, then the step is doubled each loop iteration to
// exponentially decrease the number of hashes as a function of the distance
// from the block being located.
//
// For example, assume a block chain with a side chain as depicted below:
//
//	genesis -> 1 -> 2 -> ... -> 15 -> 16  -> 17  -> 18
//	                              \-> 16a -> 17a
//
// The block locator for block 17a would be the hashes of blocks:
// [17a 16a 15 14 13 12 11 10 9 8 7 6 4 genesis]
type BlockLocator []*chainhash.Hash

// BestState houses information about the current best block and other info
// related to the state of the main chain as it exists from the point of view of
// the current best block.
//
// The BestSnapshot method can be used to obtain access to this information
// in a concurrent safe manner and the data will not be changed out from under
// the caller when chain state changes occur as the function name implies.
// However, the returned snapshot must be treated as immutable since it is
// shared by all callers.
type BestState struct {
	Hash       chainhash.Hash  // The hash of the block.
	PrevHash   chainhash.Hash  // The previous block hash.
	Height     int64           // The height of the block.
	Bits       uint32          // The difficulty bits of the block.
	BlockSize  uint64          // The size of the block.
	NumTxns    uint64          // The number of txns in the block.
	TotalTxns  uint64          // The total number of txns in the chain.
	MedianTime time.Time       // Median time as per CalcPastMedianTime.
	WorkSum    uint256.Uint256 // The total work of the chain.
}

// newBestState returns a new best stats instance for the given parameters.
func newBestState(node *blockNode, blockSize, numTxns, totalTxns uint64, medianTime time.Time) *BestState {
	prevHash := *zeroHash
	if node.parent != nil {
		prevHash = node.parent.hash
	}
	return &BestState{
		Hash:       node.hash,
		PrevHash:   prevHash,
		Height:     node.height,
		Bits:       node.bits,
		BlockSize:  blockSize,
		NumTxns:    numTxns,
		TotalTxns:  totalTxns,
		MedianTime: medianTime,
		WorkSum:    node.workSum,
	}
}

// BlockChain provides functions for working with the block chain.  It
// includes functionality such as rejecting duplicate blocks, ensuring blocks
// follow all rules, checkpoint handling, parking of suspicious branches, and
// best chain selection with reorganization.
type BlockChain struct {
	// The following fields are set when the instance is created and can't
	// be changed afterwards, so there is no need to protect them with a
	// separate mutex.
	assumeValid    chainhash.Hash
	noCheckpoints  bool
	chainParams    *chaincfg.Params
	timeSource     MedianTimeSource
	notifications  NotificationCallback
	sigCache       *txscript.SigCache
	scriptCache    *ScriptCache
	scriptWorkers  int
	blockConnector BlockConnector
	interrupt      <-chan struct{}
	store          *blockstore.Store
	utxoBackend    UtxoBackend
	progressLogger *progresslog.Logger

	// activationLock serializes best chain activation so only one caller
	// moves the tip at a time while the chain lock is released between
	// steps.
	activationLock sync.Mutex

	// chainLock protects concurrent access to the vast majority of the
	// fields in this struct below this point.
	chainLock sync.RWMutex

	// These fields are related to the memory block index.  They both have
	// their own locks, however they are often also protected by the chain
	// lock to help prevent logic races when blocks are being processed.
	//
	// index houses the entire block index in memory.  The block index is
	// a tree-shaped structure.
	//
	// bestChain tracks the current active chain by making use of an
	// efficient chain view into the block index.
	index     *blockIndex
	bestChain *chainView

	// assumeValidNode is the node of the assumed valid block once its header
	// is known.
	assumeValidNode *blockNode

	// isCurrentLatch tracks whether or not the chain believes it is current in
	// such a way that once it becomes current it latches to that state unless
	// the chain falls too far behind again.
	isCurrentLatch bool

	// These fields house the utxo set cache sitting on top of the backend
	// along with the maximum size the cache may grow to before it is flushed.
	utxoCache        *UtxoCache
	utxoCacheMaxSize uint64

	// These fields are related to pruning and flushing the chain state.
	pruneTarget     uint64
	pruneLocks      map[string]int64
	checkForPruning bool
	lastWrite       time.Time
	lastFlush       time.Time

	// These fields house caches for blocks to facilitate faster access and
	// to avoid checking the same block more than once.
	recentBlocks  *lru.Map[chainhash.Hash, *dcrutil.Block]
	checkedBlocks *lru.Set[chainhash.Hash]

	// These fields are related to handling of the best chain state snapshot.
	// The state lock protects the snapshot.
	stateLock     sync.RWMutex
	stateSnapshot *BestState
}

// HaveHeader returns whether or not the chain instance has the block header
// represented by the passed hash.  Note that this will return true for both the
// main chain and any side chains.
//
// This function is safe for concurrent access.
func (b *BlockChain) HaveHeader(hash *chainhash.Hash) bool {
	return b.index.LookupNode(hash) != nil
}

// HaveBlock returns whether or not the chain instance has the block represented
// by the passed hash.  This includes checking the various places a block can
// be like part of the main chain or on a side chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) HaveBlock(hash *chainhash.Hash) bool {
	return b.index.HaveBlock(hash)
}

// ChainWork returns the total work up to and including the block of the
// provided block hash.
func (b *BlockChain) ChainWork(hash *chainhash.Hash) (uint256.Uint256, error) {
	node := b.index.LookupNode(hash)
	if node == nil {
		return uint256.Uint256{}, unknownBlockError(hash)
	}

	return node.workSum, nil
}

// BlockStatus describes the validation state of a known block.
type BlockStatus struct {
	HaveData             bool
	HaveUndo             bool
	Failed               bool
	FailedAncestor       bool
	Parked               bool
	ParkedAncestor       bool
	FullyValidated       bool
	InMainChain          bool
	CanValidateNextBlock bool
}

// BlockStatusByHash returns the validation state of the block with the given
// hash.
//
// This function is safe for concurrent access.
func (b *BlockChain) BlockStatusByHash(hash *chainhash.Hash) (BlockStatus, error) {
	node := b.index.LookupNode(hash)
	if node == nil {
		return BlockStatus{}, unknownBlockError(hash)
	}

	status := b.index.NodeStatus(node)
	return BlockStatus{
		HaveData:             status.HaveData(),
		HaveUndo:             status.HaveUndo(),
		Failed:               status&statusFailed != 0,
		FailedAncestor:       status&statusFailedParent != 0,
		Parked:               status&statusParked != 0,
		ParkedAncestor:       status&statusParkedParent != 0,
		FullyValidated:       b.index.NodeValidity(node) >= validityScripts,
		InMainChain:          b.bestChain.Contains(node),
		CanValidateNextBlock: b.index.CanValidate(node),
	}, nil
}

// addRecentBlock adds a block to the recent block LRU cache and evicts the
// least recently used item if needed.
//
// This function is safe for concurrent access.
func (b *BlockChain) addRecentBlock(block *dcrutil.Block) {
	b.recentBlocks.Put(*block.Hash(), block)
}

// fetchBlockByNode returns the block associated with the given node all known
// sources such as the internal caches and the block store.  This function
// returns blocks regardless or whether or not they are part of the main chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) fetchBlockByNode(node *blockNode) (*dcrutil.Block, error) {
	// Attempt to load the block from the recent block cache.
	if block, ok := b.recentBlocks.Get(node.hash); ok {
		return block, nil
	}

	dataPos, _ := b.index.BlockPos(node)
	if dataPos.IsNull() {
		str := fmt.Sprintf("no data is available for block %s", node.hash)
		return nil, contextError(ErrNoBlockData, str)
	}
	msgBlock, err := b.store.ReadBlock(dataPos)
	if err != nil {
		return nil, err
	}
	block := dcrutil.NewBlock(msgBlock)
	if *block.Hash() != node.hash {
		str := fmt.Sprintf("block store returned block %s for block %s",
			block.Hash(), node.hash)
		return nil, contextError(ErrBlockIndexCorruption, str)
	}
	return block, nil
}

// fetchMainChainBlockByNode returns the block from the main chain associated
// with the given node.  It first attempts to use cache and then falls back to
// loading it from the block store.
//
// An error is returned if the block is either not found or not in the main
// chain.
//
// This function MUST be called with the chain lock held (for reads).
func (b *BlockChain) fetchMainChainBlockByNode(node *blockNode) (*dcrutil.Block, error) {
	// Ensure the block is in the main chain.
	if !b.bestChain.Contains(node) {
		str := fmt.Sprintf("block %s is not in the main chain", node.hash)
		return nil, contextError(ErrNotInMainChain, str)
	}
	return b.fetchBlockByNode(node)
}

// shouldCheckScripts returns whether the scripts of the block associated with
// the passed node need to be executed when it is connected.  Scripts are
// skipped for blocks that are ancestors of the assumed valid block when it is
// in turn an ancestor of the best known header, and for blocks at or before
// the latest known checkpoint on the same chain.
//
// This function MUST be called with the chain lock held (for reads).
func (b *BlockChain) shouldCheckScripts(node *blockNode) bool {
	if avNode := b.assumeValidNode; avNode != nil {
		bestHeader := b.index.BestHeader()
		if avNode.IsAncestorOf(bestHeader) && node.IsAncestorOf(avNode) {
			return false
		}
	}

	if checkpoint := b.latestCheckpoint(); checkpoint != nil &&
		node.height <= checkpoint.Height {

		checkpointNode := b.index.LookupNode(checkpoint.Hash)
		if checkpointNode != nil && node.IsAncestorOf(checkpointNode) {
			return false
		}
	}
	return true
}

// isOldTimestamp returns whether the given node has a timestamp too far in
// history for the purposes of determining if the chain should be considered
// current.
func (b *BlockChain) isOldTimestamp(node *blockNode) bool {
	minus24Hours := b.timeSource.AdjustedTime().Add(-24 * time.Hour).Unix()
	return node.timestamp < minus24Hours
}

// maybeUpdateIsCurrent potentially updates whether or not the chain believes it
// is current using the provided best chain tip.
//
// It makes use of a latching approach such that once the chain becomes current
// it will only switch back to false in the case no new blocks have been seen
// for an extended period of time.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) maybeUpdateIsCurrent(curBest *blockNode) {
	// Do some additional checks when the chain is not already latched to being
	// current.
	if !b.isCurrentLatch {
		// Not current if the best block is not synced to the header with the
		// most cumulative work that is not known to be invalid.
		bestHeader := b.index.BestHeader()
		syncedToBestHeader := curBest.height == bestHeader.height ||
			bestHeader.IsAncestorOf(curBest)
		if !syncedToBestHeader {
			return
		}
	}

	// Not current if the latest best block has too old of a timestamp.
	//
	// The chain appears to be current if none of the checks reported otherwise.
	wasLatched := b.isCurrentLatch
	b.isCurrentLatch = !b.isOldTimestamp(curBest)
	if !wasLatched && b.isCurrentLatch {
		log.Debugf("Chain latched to current at block %s (height %d)",
			curBest.hash, curBest.height)
	}
}

// MaybeUpdateIsCurrent potentially updates whether or not the chain believes it
// is current.
//
// It makes use of a latching approach such that once the chain becomes current
// it will only switch back to false in the case no new blocks have been seen
// for an extended period of time.
//
// This function is safe for concurrent access.
func (b *BlockChain) MaybeUpdateIsCurrent() {
	b.chainLock.Lock()
	b.maybeUpdateIsCurrent(b.bestChain.Tip())
	b.chainLock.Unlock()
}

// isCurrent returns whether or not the chain believes it is current based on
// the current latched state and an additional check which returns false in the
// case no new blocks have been seen for an extended period of time.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) isCurrent(curBest *blockNode) bool {
	return b.isCurrentLatch && !b.isOldTimestamp(curBest)
}

// IsCurrent returns whether or not the chain believes it is current based on
// the current latched state and an additional check which returns false in the
// case no new blocks have been seen for an extended period of time.
//
// The initial factors that are used to latch the state to current are:
//   - The best chain is synced to the header with the most cumulative work that
//     is not known to be invalid
//   - Latest block has a timestamp newer than 24 hours ago
//
// This function is safe for concurrent access.
func (b *BlockChain) IsCurrent() bool {
	b.chainLock.RLock()
	isCurrent := b.isCurrent(b.bestChain.Tip())
	b.chainLock.RUnlock()
	return isCurrent
}

// verificationProgress returns an estimate of the fraction of the chain that
// is connected when the provided node is the tip.  It assumes blocks keep
// arriving at the target rate from the time of the tip until now.
func (b *BlockChain) verificationProgress(tip *blockNode) float64 {
	remaining := time.Since(time.Unix(tip.timestamp, 0)) /
		b.chainParams.TargetTimePerBlock
	if remaining < 0 {
		remaining = 0
	}
	total := float64(tip.height) + float64(remaining)
	if total <= 0 {
		return 1
	}
	return float64(tip.height) / total
}

// VerificationProgress returns an estimate of the fraction of the chain that
// is connected.
//
// This function is safe for concurrent access.
func (b *BlockChain) VerificationProgress() float64 {
	b.chainLock.RLock()
	progress := b.verificationProgress(b.bestChain.Tip())
	b.chainLock.RUnlock()
	return progress
}

// BestSnapshot returns information about the current best chain block and
// related state as of the current point in time.  The returned instance must be
// treated as immutable since it is shared by all callers.
//
// This function is safe for concurrent access.
func (b *BlockChain) BestSnapshot() *BestState {
	b.stateLock.RLock()
	snapshot := b.stateSnapshot
	b.stateLock.RUnlock()
	return snapshot
}

// setBestSnapshot replaces the best state snapshot.
func (b *BlockChain) setBestSnapshot(state *BestState) {
	b.stateLock.Lock()
	b.stateSnapshot = state
	b.stateLock.Unlock()
}

// UtxoCache returns the cache of unspent transaction outputs at the tip of the
// main chain.  Callers that need a consistent view must hold it only while no
// blocks are being processed or layer their own cache on top of it.
func (b *BlockChain) UtxoCache() *UtxoCache {
	return b.utxoCache
}

// FetchUtxoEntry returns the unspent output for the provided outpoint as of
// the tip of the main chain.  Nil is returned for both the entry and the
// error when the output does not exist or is spent.
//
// This function is safe for concurrent access.
func (b *BlockChain) FetchUtxoEntry(outpoint wire.OutPoint) (*UtxoEntry, error) {
	b.chainLock.RLock()
	entry, err := b.utxoCache.FetchEntry(outpoint)
	b.chainLock.RUnlock()
	if entry != nil {
		entry = entry.Clone()
	}
	return entry, err
}

// HeaderByHash returns the block header identified by the given hash or an
// error if it doesn't exist.  Note that this will return headers from both the
// main chain and any side chains.
//
// This function is safe for concurrent access.
func (b *BlockChain) HeaderByHash(hash *chainhash.Hash) (wire.BlockHeader, error) {
	node := b.index.LookupNode(hash)
	if node == nil {
		return wire.BlockHeader{}, unknownBlockError(hash)
	}

	return node.Header(), nil
}

// HeaderByHeight returns the block header at the given height in the main
// chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) HeaderByHeight(height int64) (wire.BlockHeader, error) {
	node := b.bestChain.NodeByHeight(height)
	if node == nil {
		str := fmt.Sprintf("no block at height %d exists", height)
		return wire.BlockHeader{}, contextError(ErrNotInMainChain, str)
	}

	return node.Header(), nil
}

// BlockByHash searches the internal chain block stores and the block store in
// an attempt to find the requested block and returns it.  This function returns
// blocks regardless of whether or not they are part of the main chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) BlockByHash(hash *chainhash.Hash) (*dcrutil.Block, error) {
	node := b.index.LookupNode(hash)
	if node == nil || !b.index.NodeStatus(node).HaveData() {
		return nil, unknownBlockError(hash)
	}

	// Return the block from either cache or the block store.
	return b.fetchBlockByNode(node)
}

// BlockByHeight returns the block at the given height in the main chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) BlockByHeight(height int64) (*dcrutil.Block, error) {
	// Lookup the block height in the best chain.
	node := b.bestChain.NodeByHeight(height)
	if node == nil {
		str := fmt.Sprintf("no block at height %d exists", height)
		return nil, contextError(ErrNotInMainChain, str)
	}

	// Return the block from either cache or the block store.  Note that this
	// is not using fetchMainChainBlockByNode since the main chain check has
	// already been done.
	return b.fetchBlockByNode(node)
}

// MainChainHasBlock returns whether or not the block with the given hash is in
// the main chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) MainChainHasBlock(hash *chainhash.Hash) bool {
	node := b.index.LookupNode(hash)
	return node != nil && b.bestChain.Contains(node)
}

// MedianTimeByHash returns the median time of a block by the given hash or an
// error if it doesn't exist.  Note that this will return times from both the
// main chain and any side chains.
//
// This function is safe for concurrent access.
func (b *BlockChain) MedianTimeByHash(hash *chainhash.Hash) (time.Time, error) {
	node := b.index.LookupNode(hash)
	if node == nil {
		return time.Time{}, unknownBlockError(hash)
	}
	return node.CalcPastMedianTime(), nil
}

// BlockHeightByHash returns the height of the block with the given hash in the
// main chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) BlockHeightByHash(hash *chainhash.Hash) (int64, error) {
	node := b.index.LookupNode(hash)
	if node == nil || !b.bestChain.Contains(node) {
		str := fmt.Sprintf("block %s is not in the main chain", hash)
		return 0, contextError(ErrNotInMainChain, str)
	}

	return node.height, nil
}

// BlockHashByHeight returns the hash of the block at the given height in the
// main chain.
//
// This function is safe for concurrent access.
func (b *BlockChain) BlockHashByHeight(height int64) (*chainhash.Hash, error) {
	node := b.bestChain.NodeByHeight(height)
	if node == nil {
		str := fmt.Sprintf("no block at height %d exists", height)
		return nil, contextError(ErrNotInMainChain, str)
	}

	return &node.hash, nil
}

// HeightRange returns a range of block hashes for the given start and end
// heights.  It is inclusive of the start height and exclusive of the end
// height.  In other words, it is the half open range [startHeight, endHeight).
//
// The end height will be limited to the current main chain height.
//
// This function is safe for concurrent access.
func (b *BlockChain) HeightRange(startHeight, endHeight int64) ([]chainhash.Hash, error) {
	// Ensure requested heights are sane.
	if startHeight < 0 {
		return nil, fmt.Errorf("start height of fetch range must not "+
			"be less than zero - got %d", startHeight)
	}
	if endHeight < startHeight {
		return nil, fmt.Errorf("end height of fetch range must not "+
			"be less than the start height - got start %d, end %d",
			startHeight, endHeight)
	}

	// There is nothing to do when the start and end heights are the same,
	// so return now to avoid extra work.
	if startHeight == endHeight {
		return nil, nil
	}

	// When the requested start height is after the most recent best chain
	// height, there is nothing to do.
	latestHeight := b.bestChain.Tip().height
	if startHeight > latestHeight {
		return nil, nil
	}

	// Limit the ending height to the latest height of the chain.
	if endHeight > latestHeight+1 {
		endHeight = latestHeight + 1
	}

	// Fetch as many as are available within the specified range.
	hashes := make([]chainhash.Hash, endHeight-startHeight)
	iterNode := b.bestChain.NodeByHeight(endHeight - 1)
	for i := startHeight; i < endHeight; i++ {
		// Since the desired result is from the starting node to the
		// ending node in forward order, but they are iterated in
		// reverse, add them in reverse order.
		hashes[endHeight-i-1] = iterNode.hash
		iterNode = iterNode.parent
	}
	return hashes, nil
}

// locateInventory returns the node of the block after the first known block in
// the locator along with the number of subsequent nodes needed to either reach
// the provided stop hash or the provided max number of entries.
//
// In addition, there are two special cases:
//
//   - When no locators are provided, the stop hash is treated as a request for
//     that block, so it will either return the node associated with the stop
//     hash if it is known, or nil if it is unknown
//   - When locators are provided, but none of them are known, nodes starting
//     after the genesis block will be returned
//
// This is primarily a helper function for the locateBlocks and locateHeaders
// functions.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) locateInventory(locator BlockLocator, hashStop *chainhash.Hash, maxEntries uint32) (*blockNode, uint32) {
	// There are no block locators so a specific block is being requested
	// as identified by the stop hash.
	stopNode := b.index.LookupNode(hashStop)
	if len(locator) == 0 {
		if stopNode == nil {
			// No blocks with the stop hash were found so there is
			// nothing to do.
			return nil, 0
		}
		return stopNode, 1
	}

	// Find the most recent locator block hash in the main chain.  In the
	// case none of the hashes in the locator are in the main chain, fall
	// back to the genesis block.
	startNode := b.bestChain.Genesis()
	for _, hash := range locator {
		node := b.index.LookupNode(hash)
		if node != nil && b.bestChain.Contains(node) {
			startNode = node
			break
		}
	}

	// Start at the block after the most recently known block.  When there
	// is no next block it means the most recently known block is the tip of
	// the best chain, so there is nothing more to do.
	startNode = b.bestChain.Next(startNode)
	if startNode == nil {
		return nil, 0
	}

	// Calculate how many entries are needed.
	total := uint32((b.bestChain.Tip().height - startNode.height) + 1)
	if stopNode != nil && b.bestChain.Contains(stopNode) &&
		stopNode.height >= startNode.height {

		total = uint32((stopNode.height - startNode.height) + 1)
	}
	if total > maxEntries {
		total = maxEntries
	}

	return startNode, total
}

// locateBlocks returns the hashes of the blocks after the first known block in
// the locator until the provided stop hash is reached, or up to the provided
// max number of block hashes.
//
// See the comment on the exported function for more details on special cases.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) locateBlocks(locator BlockLocator, hashStop *chainhash.Hash, maxHashes uint32) []chainhash.Hash {
	// Find the node after the first known block in the locator and the
	// total number of nodes after it needed while respecting the stop hash
	// and max entries.
	node, total := b.locateInventory(locator, hashStop, maxHashes)
	if total == 0 {
		return nil
	}

	// Populate and return the found hashes.
	hashes := make([]chainhash.Hash, 0, total)
	for i := uint32(0); i < total; i++ {
		hashes = append(hashes, node.hash)
		node = b.bestChain.Next(node)
	}
	return hashes
}

// LocateBlocks returns the hashes of the blocks after the first known block in
// the locator until the provided stop hash is reached, or up to the provided
// max number of block hashes.
//
// In addition, there are two special cases:
//
//   - When no locators are provided, the stop hash is treated as a request for
//     that block, so it will either return the stop hash itself if it is known,
//     or nil if it is unknown
//   - When locators are provided, but none of them are known, hashes starting
//     after the genesis block will be returned
//
// This function is safe for concurrent access.
func (b *BlockChain) LocateBlocks(locator BlockLocator, hashStop *chainhash.Hash, maxHashes uint32) []chainhash.Hash {
	b.chainLock.RLock()
	hashes := b.locateBlocks(locator, hashStop, maxHashes)
	b.chainLock.RUnlock()
	return hashes
}

// locateHeaders returns the headers of the blocks after the first known block
// in the locator until the provided stop hash is reached, or up to the provided
// max number of block headers.
//
// See the comment on the exported function for more details on special cases.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) locateHeaders(locator BlockLocator, hashStop *chainhash.Hash, maxHeaders uint32) []wire.BlockHeader {
	// Find the node after the first known block in the locator and the
	// total number of nodes after it needed while respecting the stop hash
	// and max entries.
	node, total := b.locateInventory(locator, hashStop, maxHeaders)
	if total == 0 {
		return nil
	}

	// Populate and return the found headers.
	headers := make([]wire.BlockHeader, 0, total)
	for i := uint32(0); i < total; i++ {
		headers = append(headers, node.Header())
		node = b.bestChain.Next(node)
	}
	return headers
}

// LocateHeaders returns the headers of the blocks after the first known block
// in the locator until the provided stop hash is reached, or up to a max of
// wire.MaxBlockHeadersPerMsg headers.
//
// In addition, there are two special cases:
//
//   - When no locators are provided, the stop hash is treated as a request for
//     that header, so it will either return the header for the stop hash itself
//     if it is known, or nil if it is unknown
//   - When locators are provided, but none of them are known, headers starting
//     after the genesis block will be returned
//
// This function is safe for concurrent access.
func (b *BlockChain) LocateHeaders(locator BlockLocator, hashStop *chainhash.Hash) []wire.BlockHeader {
	b.chainLock.RLock()
	headers := b.locateHeaders(locator, hashStop, wire.MaxBlockHeadersPerMsg)
	b.chainLock.RUnlock()
	return headers
}

// BlockLocatorFromHash returns a block locator for the passed block hash.
// See BlockLocator for details on the algorithm used to create a block locator.
//
// In addition to the general algorithm referenced above, this function will
// return the block locator for the latest known tip of the main (best) chain if
// the passed hash is not currently known.
//
// This function is safe for concurrent access.
func (b *BlockChain) BlockLocatorFromHash(hash *chainhash.Hash) BlockLocator {
	b.chainLock.RLock()
	node := b.index.LookupNode(hash)
	locator := b.bestChain.BlockLocator(node)
	b.chainLock.RUnlock()
	return locator
}

// Config is a descriptor which specifies the blockchain instance configuration.
type Config struct {
	// DB defines the database which houses the block index.
	//
	// This field is required.
	DB *leveldb.DB

	// Store defines the store which houses the block and undo data.
	//
	// This field is required.
	Store *blockstore.Store

	// UtxoBackend defines the backend which houses the UTXO set.
	//
	// This field is required.
	UtxoBackend UtxoBackend

	// ChainParams identifies which chain parameters the chain is associated
	// with.
	//
	// This field is required.
	ChainParams *chaincfg.Params

	// UtxoCacheMaxSize is the maximum number of bytes the utxo cache may
	// use before it is flushed to the backend.  DefaultUtxoCacheMaxSize is
	// used when it is zero.
	UtxoCacheMaxSize uint64

	// PruneTarget is the size in bytes the block store is pruned down to.
	// Zero disables automatic pruning.
	PruneTarget uint64

	// AssumeValid is the hash of a block that has been externally verified to
	// be valid.  It allows the scripts of blocks that are both an ancestor of
	// the assumed valid block and an ancestor of the best header to be
	// skipped.
	//
	// This field may not be set for networks that do not require it.
	AssumeValid chainhash.Hash

	// NoCheckpoints disables the checkpoints of the network.
	NoCheckpoints bool

	// TimeSource defines the median time source to use for things such as
	// block processing and determining whether or not the chain is current.
	//
	// The caller is expected to keep a reference to the time source as well
	// and add time samples from other peers on the network so the local
	// time is adjusted to be in agreement with other peers.  A new median
	// time source is used when it is nil.
	TimeSource MedianTimeSource

	// Notifications defines a callback to which notifications will be sent
	// when various events take place.  See the documentation for
	// Notification and NotificationType for details on the types and
	// contents of notifications.
	//
	// This field can be nil if the caller is not interested in receiving
	// notifications.
	Notifications NotificationCallback

	// SigCache defines a signature cache to use when validating signatures.
	// This is typically most useful when individual transactions are
	// already being validated prior to their inclusion in a block such as
	// what is usually done via a transaction memory pool.
	//
	// This field can be nil if the caller is not interested in using a
	// signature cache.
	SigCache *txscript.SigCache

	// ScriptCache defines a cache of transactions whose scripts are known to
	// be valid under a given set of script flags.
	//
	// This field can be nil if the caller is not interested in using a
	// script cache.
	ScriptCache *ScriptCache

	// ScriptWorkers is the number of goroutines used to check the scripts of
	// a block.  The number of CPUs is used when it is zero.
	ScriptWorkers int

	// BlockConnector is informed of every block connected to and
	// disconnected from the main chain.
	//
	// This field can be nil.
	BlockConnector BlockConnector
}

// New returns a BlockChain instance using the provided configuration details.
//
// Blocks whose data is known but that were not yet connected when the chain
// state was last written are connected before it returns.
func New(ctx context.Context, config *Config) (*BlockChain, error) {
	// Enforce required config fields.
	if config.DB == nil {
		return nil, AssertError("blockchain.New database is nil")
	}
	if config.Store == nil {
		return nil, AssertError("blockchain.New block store is nil")
	}
	if config.UtxoBackend == nil {
		return nil, AssertError("blockchain.New UTXO backend is nil")
	}
	if config.ChainParams == nil {
		return nil, AssertError("blockchain.New chain parameters nil")
	}

	initPrometheusMetrics()

	timeSource := config.TimeSource
	if timeSource == nil {
		timeSource = NewMedianTime()
	}
	utxoCacheMaxSize := config.UtxoCacheMaxSize
	if utxoCacheMaxSize == 0 {
		utxoCacheMaxSize = DefaultUtxoCacheMaxSize
	}

	now := time.Now()
	b := BlockChain{
		assumeValid:      config.AssumeValid,
		noCheckpoints:    config.NoCheckpoints,
		chainParams:      config.ChainParams,
		timeSource:       timeSource,
		notifications:    config.Notifications,
		sigCache:         config.SigCache,
		scriptCache:      config.ScriptCache,
		scriptWorkers:    config.ScriptWorkers,
		blockConnector:   config.BlockConnector,
		interrupt:        ctx.Done(),
		store:            config.Store,
		utxoBackend:      config.UtxoBackend,
		progressLogger:   progresslog.New("Processed", log),
		index:            newBlockIndex(config.DB),
		bestChain:        newChainView(nil),
		utxoCacheMaxSize: utxoCacheMaxSize,
		pruneTarget:      config.PruneTarget,
		pruneLocks:       make(map[string]int64),
		checkForPruning:  config.PruneTarget > 0,
		lastWrite:        now,
		lastFlush:        now,
		recentBlocks: lru.NewMap[chainhash.Hash, *dcrutil.Block](
			recentBlockCacheSize),
		checkedBlocks: lru.NewSet[chainhash.Hash](checkedBlockCacheSize),
	}

	// Load (or create when needed) the UTXO backend versioning info.
	if err := b.utxoBackend.InitInfo(); err != nil {
		return nil, err
	}

	// Initialize the chain state from the passed databases.  When they do
	// not yet contain any chain state, the chain state is initialized to
	// contain only the genesis block.
	if err := b.initChainState(); err != nil {
		return nil, err
	}

	bestHdr := b.index.BestHeader()
	log.Infof("Best known header: height %d, hash %v", bestHdr.height,
		bestHdr.hash)

	tip := b.bestChain.Tip()
	log.Infof("Chain state: height %d, hash %v, total transactions %d, work "+
		"%v", tip.height, tip.hash, b.stateSnapshot.TotalTxns, &tip.workSum)

	// Connect any blocks that were received but not connected before the
	// last shutdown.
	if err := b.ActivateBestChain(ctx); err != nil {
		return nil, err
	}

	return &b, nil
}
