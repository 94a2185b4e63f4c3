// Copyright (c) 2015-2016 The btcsuite developers
// Copyright (c) 2016-2021 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/decred/dcrd/wire"
)

const (
	// baseEntrySize is the base size of a utxo entry on a 64-bit platform.
	// This is equivalent to what unsafe.Sizeof(UtxoEntry{}) returns on a
	// 64-bit platform plus the approximate per-entry overhead of the map
	// that holds it.
	baseEntrySize = 48 + 56
)

// utxoState defines the in-memory state of a utxo entry.
//
// The bit representation is:
//
//	bit  0 - transaction output has been spent
//	bit  1 - transaction output has been modified since it was loaded
//	bit  2 - transaction output is fresh
//	bits 3-7 - unused
type utxoState uint8

const (
	// utxoStateSpent indicates that a txout is spent.
	utxoStateSpent utxoState = 1 << iota

	// utxoStateModified indicates that a txout has been modified since it
	// was loaded from the layer below (dirty).
	utxoStateModified

	// utxoStateFresh indicates that a txout is fresh, which means that it
	// does not exist in the layer below.  A fresh entry that is spent can
	// simply be dropped instead of being written down.
	utxoStateFresh
)

// utxoFlags defines additional information and state for a transaction output
// in a utxo view.  The bit representation is:
//
//	bit  0 - containing transaction is a coinbase
//	bits 1-7 - unused
type utxoFlags uint8

const (
	// utxoFlagCoinBase indicates that a txout was contained in a coinbase tx.
	utxoFlagCoinBase utxoFlags = 1 << iota
)

// UtxoEntry houses details about an individual transaction output in a utxo
// view such as whether or not it was contained in a coinbase tx, the height of
// the block that contains the tx, whether or not it is spent, its public key
// script, and how much it pays.
type UtxoEntry struct {
	// NOTE: Additions, deletions, or modifications to the order of the
	// definitions in this struct should not be changed without considering
	// how it affects alignment on 64-bit platforms.  The current order is
	// specifically crafted to result in minimal padding.  There will be a
	// lot of these in memory, so a few extra bytes of padding adds up.
	amount        int64
	pkScript      []byte
	blockHeight   uint32
	scriptVersion uint16

	// state contains info for the in-memory state of the output as defined
	// by utxoState.
	state utxoState

	// packedFlags contains additional info for the output as defined by
	// utxoFlags.  This approach is used in order to reduce memory usage
	// since there will be a lot of these in memory.
	packedFlags utxoFlags
}

// NewUtxoEntry returns a new unspent entry for the provided transaction output
// created at the given height.
func NewUtxoEntry(txOut *wire.TxOut, blockHeight int64, isCoinBase bool) *UtxoEntry {
	var flags utxoFlags
	if isCoinBase {
		flags |= utxoFlagCoinBase
	}
	return &UtxoEntry{
		amount:        txOut.Value,
		pkScript:      txOut.PkScript,
		blockHeight:   uint32(blockHeight),
		scriptVersion: txOut.Version,
		packedFlags:   flags,
	}
}

// size returns the number of bytes that the entry uses on a 64-bit platform.
func (entry *UtxoEntry) size() uint64 {
	return baseEntrySize + uint64(len(entry.pkScript))
}

// isModified returns whether or not the output has been modified since it was
// loaded.
func (entry *UtxoEntry) isModified() bool {
	return entry.state&utxoStateModified == utxoStateModified
}

// isFresh returns whether or not the output is fresh, meaning it does not
// exist in the layer below.
func (entry *UtxoEntry) isFresh() bool {
	return entry.state&utxoStateFresh == utxoStateFresh
}

// IsCoinBase returns whether or not the output was contained in a coinbase
// transaction.
func (entry *UtxoEntry) IsCoinBase() bool {
	return entry.packedFlags&utxoFlagCoinBase == utxoFlagCoinBase
}

// IsSpent returns whether or not the output has been spent based upon the
// current state of the unspent transaction output view it was obtained from.
func (entry *UtxoEntry) IsSpent() bool {
	return entry.state&utxoStateSpent == utxoStateSpent
}

// BlockHeight returns the height of the block containing the output.
func (entry *UtxoEntry) BlockHeight() int64 {
	return int64(entry.blockHeight)
}

// Spend marks the output as spent.  Spending an output that is already spent
// has no effect.
func (entry *UtxoEntry) Spend() {
	if entry.IsSpent() {
		return
	}
	entry.state |= utxoStateSpent | utxoStateModified
}

// Amount returns the amount of the output.
func (entry *UtxoEntry) Amount() int64 {
	return entry.amount
}

// PkScript returns the public key script for the output.
func (entry *UtxoEntry) PkScript() []byte {
	return entry.pkScript
}

// ScriptVersion returns the public key script version for the output.
func (entry *UtxoEntry) ScriptVersion() uint16 {
	return entry.scriptVersion
}

// Clone returns a copy of the utxo entry.  It performs a deep copy for any
// fields that are mutable and therefore the original and the copy may be
// modified independently.  The public key script is treated as immutable and
// is therefore shared.
func (entry *UtxoEntry) Clone() *UtxoEntry {
	if entry == nil {
		return nil
	}

	newEntry := *entry
	return &newEntry
}

// sameOutput returns whether the entry describes the same output as the
// provided one, ignoring in-memory state.
func (entry *UtxoEntry) sameOutput(other *UtxoEntry) bool {
	return entry.amount == other.amount &&
		entry.blockHeight == other.blockHeight &&
		entry.scriptVersion == other.scriptVersion &&
		entry.packedFlags == other.packedFlags &&
		string(entry.pkScript) == string(other.pkScript)
}
