// Copyright (c) 2021 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"sync"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/wire"
)

const (
	// outpointSize is the size of an outpoint on a 64-bit platform.  It is
	// equivalent to what unsafe.Sizeof(wire.OutPoint{}) returns on a 64-bit
	// platform.
	outpointSize = 40

	// pointerSize is the size of a pointer on a 64-bit platform.
	pointerSize = 8

	// mapOverhead is the number of bytes per entry to use when approximating
	// the memory overhead of the entries map itself.
	mapOverhead = 57
)

// CoinsView is a read-only view of unspent transaction outputs.
type CoinsView interface {
	// FetchEntry returns the unspent output for the provided outpoint.  Nil
	// is returned for both the entry and the error when the output does not
	// exist or is spent in the view.
	//
	// The returned entry must be treated as immutable.
	FetchEntry(outpoint wire.OutPoint) (*UtxoEntry, error)

	// BestHash returns the hash of the block the view represents the state
	// after.
	BestHash() chainhash.Hash
}

// coinsBatchWriter is a view that accepts the modified entries of the layer
// above it.
type coinsBatchWriter interface {
	CoinsView

	// BatchWrite applies the provided modified entries and records the new
	// best block.
	BatchWrite(entries map[wire.OutPoint]*UtxoEntry, bestHash chainhash.Hash, bestHeight int64) error
}

// UtxoCache is a write-back layer of unspent transaction outputs over another
// CoinsView.  Caches stack: the chain tip cache sits over the UTXO backend,
// the per-block scratch view used while connecting a block sits over the tip
// cache, and mempool package evaluation sits over a mempool-aware view.
//
// Reads miss through to the view below and are memoized.  Writes mark the
// entry modified (dirty).  An entry created in this layer that does not exist
// below is fresh; spending a fresh entry drops it entirely since the layer
// below never needs to learn about it.  Flush pushes the modified entries down
// exactly one layer.
//
// All exported methods are safe for concurrent access.
type UtxoCache struct {
	mtx sync.Mutex

	// base is the view this layer reads through to.  It is set when the
	// instance is created and not changed afterward.
	base CoinsView

	// entries holds the memoized and modified entries of this layer.
	// totalEntrySize tracks their approximate memory footprint.
	entries        map[wire.OutPoint]*UtxoEntry
	totalEntrySize uint64

	// bestHash and bestHeight identify the block the layer represents the
	// state after.
	bestHash   chainhash.Hash
	bestHeight int64

	// hits and misses track the cache hit ratio.
	hits   uint64
	misses uint64
}

// NewUtxoCache returns a new empty cache layer over the provided view.  The
// best block is inherited from the base view.
func NewUtxoCache(base CoinsView) *UtxoCache {
	return &UtxoCache{
		base:     base,
		entries:  make(map[wire.OutPoint]*UtxoEntry),
		bestHash: base.BestHash(),
	}
}

// fetchEntry returns the entry for the provided outpoint from this layer,
// memoizing a copy of it from the layer below on a miss.  Spent entries are
// returned as is so callers can distinguish a known spend from a miss.
//
// This function MUST be called with the cache lock held.
func (c *UtxoCache) fetchEntry(outpoint wire.OutPoint) (*UtxoEntry, error) {
	if entry, ok := c.entries[outpoint]; ok {
		c.hits++
		return entry, nil
	}

	c.misses++
	entry, err := c.base.FetchEntry(outpoint)
	if err != nil {
		return nil, err
	}
	if entry == nil || entry.IsSpent() {
		return nil, nil
	}

	// Entries pulled from below are neither modified nor fresh.
	entry = entry.Clone()
	entry.state = 0
	c.entries[outpoint] = entry
	c.totalEntrySize += entry.size()
	return entry, nil
}

// FetchEntry returns the unspent output for the provided outpoint, reading
// through to the layer below when needed.  Nil is returned for both the entry
// and the error when the output does not exist or is spent.
//
// This function is part of the CoinsView interface.
func (c *UtxoCache) FetchEntry(outpoint wire.OutPoint) (*UtxoEntry, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	entry, err := c.fetchEntry(outpoint)
	if err != nil || entry == nil || entry.IsSpent() {
		return nil, err
	}
	return entry, nil
}

// HaveEntry returns whether an unspent output exists for the provided
// outpoint.
func (c *UtxoCache) HaveEntry(outpoint wire.OutPoint) (bool, error) {
	entry, err := c.FetchEntry(outpoint)
	return entry != nil, err
}

// addEntry adds the provided entry for the given outpoint.
//
// When possibleOverwrite is false the caller guarantees that no unspent
// output exists for the outpoint in this layer or below, which allows the new
// entry to be marked fresh.  When it is true, the entry may replace an
// existing unspent one and is never fresh.
//
// This function MUST be called with the cache lock held.
func (c *UtxoCache) addEntry(outpoint wire.OutPoint, entry *UtxoEntry, possibleOverwrite bool) error {
	existing, ok := c.entries[outpoint]
	fresh := false
	if !possibleOverwrite {
		if ok && !existing.IsSpent() {
			str := fmt.Sprintf("attempt to overwrite unspent output %v",
				outpoint)
			return contextError(ErrInconsistentCache, str)
		}

		// An entry spent in this layer may still exist unspent below, so
		// it can't be fresh.
		fresh = !ok || !existing.isModified()
	}

	if ok {
		c.totalEntrySize -= existing.size()
	}
	newEntry := entry.Clone()
	newEntry.state = utxoStateModified
	if fresh {
		newEntry.state |= utxoStateFresh
	}
	c.entries[outpoint] = newEntry
	c.totalEntrySize += newEntry.size()
	return nil
}

// AddEntry adds the provided entry for the given outpoint.  See addEntry for
// the meaning of possibleOverwrite.
func (c *UtxoCache) AddEntry(outpoint wire.OutPoint, entry *UtxoEntry, possibleOverwrite bool) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.addEntry(outpoint, entry, possibleOverwrite)
}

// spendEntry marks the unspent output for the provided outpoint as spent and
// returns a copy of it as it was prior to being spent.  Nil is returned when
// there is no unspent output for the outpoint.
//
// This function MUST be called with the cache lock held.
func (c *UtxoCache) spendEntry(outpoint wire.OutPoint) (*UtxoEntry, error) {
	entry, err := c.fetchEntry(outpoint)
	if err != nil || entry == nil || entry.IsSpent() {
		return nil, err
	}

	spent := entry.Clone()
	spent.state = 0

	// Fresh entries do not exist below, so they are removed entirely.
	if entry.isFresh() {
		c.totalEntrySize -= entry.size()
		delete(c.entries, outpoint)
		return spent, nil
	}

	entry.Spend()
	return spent, nil
}

// SpendEntry marks the unspent output for the provided outpoint as spent and
// returns a copy of it as it was prior to being spent.  Nil is returned for
// both the entry and the error when there is no unspent output to spend.
func (c *UtxoCache) SpendEntry(outpoint wire.OutPoint) (*UtxoEntry, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.spendEntry(outpoint)
}

// Uncache removes the entry for the provided outpoint from this layer when it
// has not been modified.  It is used to bound memory after speculative reads
// such as those performed while evaluating rejected transactions.
func (c *UtxoCache) Uncache(outpoint wire.OutPoint) {
	c.mtx.Lock()
	if entry, ok := c.entries[outpoint]; ok && !entry.isModified() {
		c.totalEntrySize -= entry.size()
		delete(c.entries, outpoint)
	}
	c.mtx.Unlock()
}

// BatchWrite applies the modified entries of a layer stacked above this one
// and records its best block.
//
// This function is part of the coinsBatchWriter interface.
func (c *UtxoCache) BatchWrite(entries map[wire.OutPoint]*UtxoEntry, bestHash chainhash.Hash, bestHeight int64) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	for outpoint, child := range entries {
		// Unmodified entries carry no information for this layer.
		if !child.isModified() {
			continue
		}

		parent, ok := c.entries[outpoint]
		if !ok {
			// A fresh entry that was also spent never needs to exist
			// here.
			if child.isFresh() && child.IsSpent() {
				continue
			}

			// The entry is only fresh here when it was fresh in the
			// child, since it then does not exist in any lower layer
			// either.
			newEntry := child.Clone()
			newEntry.state = utxoStateModified | (child.state & utxoStateSpent)
			if child.isFresh() {
				newEntry.state |= utxoStateFresh
			}
			c.entries[outpoint] = newEntry
			c.totalEntrySize += newEntry.size()
			continue
		}

		// The child only marks an entry fresh when it did not exist unspent
		// below, so an unspent entry here means the flag was misapplied.
		if child.isFresh() && !parent.IsSpent() {
			str := fmt.Sprintf("fresh flag misapplied to output %v that "+
				"exists in the parent cache", outpoint)
			return contextError(ErrInconsistentCache, str)
		}

		// A fresh entry that is now spent can simply be removed since the
		// lower layers never learned of it.
		if parent.isFresh() && child.IsSpent() {
			c.totalEntrySize -= parent.size()
			delete(c.entries, outpoint)
			continue
		}

		c.totalEntrySize -= parent.size()
		newEntry := child.Clone()
		newEntry.state = utxoStateModified | (child.state & utxoStateSpent) |
			(parent.state & utxoStateFresh)
		c.entries[outpoint] = newEntry
		c.totalEntrySize += newEntry.size()
	}

	c.bestHash = bestHash
	c.bestHeight = bestHeight
	return nil
}

// Flush pushes every modified entry down one layer together with the best
// block and clears this layer.  The layer below must accept batched writes.
func (c *UtxoCache) Flush() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	writer, ok := c.base.(coinsBatchWriter)
	if !ok {
		str := "utxo cache layer has no writable base"
		return contextError(ErrInconsistentCache, str)
	}

	if err := writer.BatchWrite(c.entries, c.bestHash, c.bestHeight); err != nil {
		return err
	}

	c.entries = make(map[wire.OutPoint]*UtxoEntry)
	c.totalEntrySize = 0
	return nil
}

// SetBestBlock sets the block the layer represents the state after.
func (c *UtxoCache) SetBestBlock(hash chainhash.Hash, height int64) {
	c.mtx.Lock()
	c.bestHash = hash
	c.bestHeight = height
	c.mtx.Unlock()
}

// BestHash returns the hash of the block the layer represents the state after.
//
// This function is part of the CoinsView interface.
func (c *UtxoCache) BestHash() chainhash.Hash {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.bestHash
}

// BestHeight returns the height of the block the layer represents the state
// after.
func (c *UtxoCache) BestHeight() int64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.bestHeight
}

// totalSize returns the approximate number of bytes used by the layer.
//
// This function MUST be called with the cache lock held.
func (c *UtxoCache) totalSize() uint64 {
	numEntries := uint64(len(c.entries))
	return c.totalEntrySize + numEntries*(outpointSize+pointerSize+mapOverhead)
}

// TotalMemoryUsage returns the approximate number of bytes used by the layer.
func (c *UtxoCache) TotalMemoryUsage() uint64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.totalSize()
}

// Len returns the number of entries held by the layer.
func (c *UtxoCache) Len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return len(c.entries)
}

// hitRatio returns the percentage of reads served by the layer without going
// to the layer below.
//
// This function MUST be called with the cache lock held.
func (c *UtxoCache) hitRatio() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 100
	}
	return float64(c.hits) / float64(total) * 100
}

// CacheState returns the state of the layer relative to the provided memory
// budget.
func (c *UtxoCache) CacheState(maxSize uint64) CacheState {
	return calcCacheState(c.TotalMemoryUsage(), maxSize)
}
