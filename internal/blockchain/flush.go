// Copyright (c) 2021-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"sort"
	"time"
)

const (
	// minBlocksToKeep is the number of blocks below the tip whose data is
	// never pruned automatically so that reorganizations of that depth can
	// always be undone.
	minBlocksToKeep = 288

	// pruneLockBuffer is the number of blocks below the lowest prune lock
	// that are kept as well.
	pruneLockBuffer = 10

	// databaseWriteInterval is the maximum time between writes of the block
	// index and block store.
	databaseWriteInterval = time.Hour

	// databaseFlushInterval is the maximum time between full flushes of the
	// utxo cache.
	databaseFlushInterval = 24 * time.Hour

	// largeCacheSlack is the number of bytes below the cache budget from
	// which the cache is considered large.
	largeCacheSlack = 10 * 1024 * 1024

	// DefaultUtxoCacheMaxSize is the default maximum size in bytes of the utxo
	// cache.
	DefaultUtxoCacheMaxSize = 450 * 1024 * 1024
)

// CacheState describes the memory usage of a utxo cache relative to its
// budget.
type CacheState int

// These constants define the possible cache states.
const (
	// CacheStateOK indicates the cache is comfortably within its budget.
	CacheStateOK CacheState = iota

	// CacheStateLarge indicates the cache is approaching its budget and
	// should be flushed at the next periodic opportunity.
	CacheStateLarge

	// CacheStateCritical indicates the cache exceeds its budget and must be
	// flushed immediately.
	CacheStateCritical
)

// String returns the cache state as a human-readable name.
func (s CacheState) String() string {
	switch s {
	case CacheStateOK:
		return "ok"
	case CacheStateLarge:
		return "large"
	case CacheStateCritical:
		return "critical"
	}
	return fmt.Sprintf("unknown cache state (%d)", int(s))
}

// calcCacheState returns the state of a cache using the given number of bytes
// with the given budget.
func calcCacheState(usage, maxSize uint64) CacheState {
	if usage > maxSize {
		return CacheStateCritical
	}

	largeThreshold := maxSize / 10 * 9
	if maxSize > largeCacheSlack && maxSize-largeCacheSlack > largeThreshold {
		largeThreshold = maxSize - largeCacheSlack
	}
	if usage > largeThreshold {
		return CacheStateLarge
	}
	return CacheStateOK
}

// FlushStateMode defines how eagerly the chain state is written to disk.
type FlushStateMode int

// These constants define the flush modes.
const (
	// FlushNone only writes when pruning is due.
	FlushNone FlushStateMode = iota

	// FlushIfNeeded flushes when the cache is over its budget or pruning
	// is due.
	FlushIfNeeded

	// FlushPeriodic additionally writes the block index hourly and flushes
	// the cache daily or when it is large.
	FlushPeriodic

	// FlushAlways unconditionally writes everything.
	FlushAlways
)

// String returns the flush mode as a human-readable name.
func (m FlushStateMode) String() string {
	switch m {
	case FlushNone:
		return "none"
	case FlushIfNeeded:
		return "if needed"
	case FlushPeriodic:
		return "periodic"
	case FlushAlways:
		return "always"
	}
	return fmt.Sprintf("unknown flush mode (%d)", int(m))
}

// SetPruneLock prevents the data of blocks at or after the given height from
// being pruned until the lock is deleted or moved.  Locks are identified by
// name.
//
// This function is safe for concurrent access.
func (b *BlockChain) SetPruneLock(name string, height int64) {
	b.chainLock.Lock()
	b.pruneLocks[name] = height
	b.chainLock.Unlock()
}

// DeletePruneLock removes the prune lock with the given name.
//
// This function is safe for concurrent access.
func (b *BlockChain) DeletePruneLock(name string) {
	b.chainLock.Lock()
	delete(b.pruneLocks, name)
	b.chainLock.Unlock()
}

// lastPrunableHeight returns the height of the last block whose data may be
// pruned.  It accounts for the blocks that must always be kept below the tip
// and for the prune locks.
//
// This function MUST be called with the chain lock held (for reads).
func (b *BlockChain) lastPrunableHeight() int64 {
	lastPrunable := b.bestChain.Tip().height - minBlocksToKeep
	for name, height := range b.pruneLocks {
		lockHeight := height - pruneLockBuffer
		if lockHeight < lastPrunable {
			log.Debugf("Prune lock %q limits pruning to height %d", name,
				lockHeight)
			lastPrunable = lockHeight
		}
	}
	return lastPrunable
}

// findFilesToPrune returns the block files that may be deleted.  When a
// manual prune height is provided, every file that only holds blocks up to it
// is selected.  Otherwise the oldest files are selected until the store is
// within the configured target size.
//
// This function MUST be called with the chain lock held (for reads).
func (b *BlockChain) findFilesToPrune(manualPruneHeight int64) []int32 {
	tip := b.bestChain.Tip()
	if tip.height <= b.chainParams.PruneAfterHeight {
		return nil
	}

	lastPrunable := b.lastPrunableHeight()
	if manualPruneHeight > 0 && manualPruneHeight < lastPrunable {
		lastPrunable = manualPruneHeight
	}
	if lastPrunable <= 0 {
		return nil
	}

	var target uint64
	if manualPruneHeight <= 0 {
		if b.pruneTarget == 0 {
			return nil
		}
		target = b.pruneTarget
	}

	totalSize := b.store.TotalSize()
	if manualPruneHeight <= 0 && totalSize < target {
		return nil
	}

	var files []int32
	currentFile := b.store.CurrentFile()
	for file := int32(0); file < currentFile; file++ {
		if manualPruneHeight <= 0 && totalSize < target {
			break
		}
		info, ok := b.store.FileInfo(file)
		if !ok || info.Blocks == 0 || b.store.IsPruned(file) {
			continue
		}
		if info.HeightLast > lastPrunable {
			continue
		}
		files = append(files, file)
		totalSize -= info.Size + info.UndoSize
	}
	return files
}

// flushStateToDisk writes the chain state to disk according to the provided
// mode.  Pruning is performed as part of the flush when it is enabled or when
// a manual prune height is provided.
//
// Every failure is wrapped with ErrFlush and must be treated as fatal since
// the on-disk state may no longer match the in-memory state.
//
// This function MUST be called with the chain lock held (for writes).
func (b *BlockChain) flushStateToDisk(mode FlushStateMode, manualPruneHeight int64) error {
	var pruneFiles []int32
	if b.pruneTarget > 0 || manualPruneHeight > 0 {
		if b.checkForPruning || manualPruneHeight > 0 {
			pruneFiles = b.findFilesToPrune(manualPruneHeight)
			b.checkForPruning = false
		}
	}

	now := time.Now()
	cacheState := b.utxoCache.CacheState(b.utxoCacheMaxSize)
	isCacheLarge := mode >= FlushPeriodic && cacheState >= CacheStateLarge
	isCacheCritical := mode >= FlushIfNeeded && cacheState >= CacheStateCritical
	periodicWrite := mode == FlushPeriodic &&
		now.Sub(b.lastWrite) > databaseWriteInterval
	periodicFlush := mode == FlushPeriodic &&
		now.Sub(b.lastFlush) > databaseFlushInterval
	fullFlush := mode == FlushAlways || isCacheLarge || isCacheCritical ||
		periodicFlush || len(pruneFiles) > 0

	if fullFlush || periodicWrite {
		// Make the block and undo data durable first so the block index never
		// refers to data that does not exist.
		if err := b.store.Sync(); err != nil {
			return contextError(ErrFlush, fmt.Sprintf("failed to sync block "+
				"store: %v", err))
		}

		// Forget the data of the blocks in the files that are about to be
		// deleted before writing the index.
		if len(pruneFiles) > 0 {
			fileSet := make(map[int32]struct{}, len(pruneFiles))
			for _, file := range pruneFiles {
				fileSet[file] = struct{}{}
			}
			b.index.PruneFileNodes(fileSet)
		}

		if err := b.index.flush(); err != nil {
			return contextError(ErrFlush, fmt.Sprintf("failed to write block "+
				"index: %v", err))
		}

		if len(pruneFiles) > 0 {
			if err := b.store.PruneFiles(pruneFiles); err != nil {
				return contextError(ErrFlush, fmt.Sprintf("failed to prune "+
					"block files: %v", err))
			}
			sort.Slice(pruneFiles, func(i, j int) bool {
				return pruneFiles[i] < pruneFiles[j]
			})
			log.Infof("Pruned block files %v", pruneFiles)
			prometheusFilesPruned.Add(float64(len(pruneFiles)))
		}
		b.lastWrite = now
		prometheusFlushes.WithLabelValues("index").Inc()
	}

	if fullFlush {
		tip := b.bestChain.Tip()
		if cacheHash := b.utxoCache.BestHash(); cacheHash != tip.hash {
			return AssertError(fmt.Sprintf("utxo cache best block %v does "+
				"not match chain tip %v", cacheHash, tip.hash))
		}

		numEntries := b.utxoCache.Len()
		start := time.Now()
		if err := b.utxoCache.Flush(); err != nil {
			return contextError(ErrFlush, fmt.Sprintf("failed to flush utxo "+
				"cache: %v", err))
		}
		log.Debugf("Flushed %d utxo cache entries at height %d in %v",
			numEntries, tip.height, time.Since(start))
		b.lastFlush = now
		prometheusFlushes.WithLabelValues("full").Inc()
	}

	prometheusUtxoCacheSize.Set(float64(b.utxoCache.TotalMemoryUsage()))
	prometheusUtxoCacheEntries.Set(float64(b.utxoCache.Len()))
	return nil
}

// FlushStateToDisk writes the chain state to disk according to the provided
// mode.
//
// This function is safe for concurrent access.
func (b *BlockChain) FlushStateToDisk(mode FlushStateMode) error {
	b.chainLock.Lock()
	err := b.flushStateToDisk(mode, 0)
	b.chainLock.Unlock()
	return err
}

// PruneBlockFilesManual deletes the block files that only contain blocks up to
// the provided height, subject to the blocks that must always be kept, and
// returns the height up to which blocks were pruned.
//
// This function is safe for concurrent access.
func (b *BlockChain) PruneBlockFilesManual(height int64) (int64, error) {
	if height <= 0 {
		return 0, nil
	}

	b.chainLock.Lock()
	defer b.chainLock.Unlock()

	if lastPrunable := b.lastPrunableHeight(); height > lastPrunable {
		height = lastPrunable
	}
	if height < 0 {
		height = 0
	}
	if height == 0 {
		return 0, nil
	}
	if err := b.flushStateToDisk(FlushAlways, height); err != nil {
		return 0, err
	}
	return height, nil
}
