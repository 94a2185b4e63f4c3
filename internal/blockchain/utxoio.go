// Copyright (c) 2015-2016 The btcsuite developers
// Copyright (c) 2015-2022 The Decred developers
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

// errDeserialize signifies that a problem was encountered when deserializing
// data.
type errDeserialize string

// Error implements the error interface.
func (e errDeserialize) Error() string {
	return string(e)
}

// isDeserializeErr returns whether or not the passed error is an errDeserialize
// error.
func isDeserializeErr(err error) bool {
	_, ok := err.(errDeserialize)
	return ok
}

// -----------------------------------------------------------------------------
// A variable length quantity (VLQ) is an encoding that uses an arbitrary number
// of binary octets to represent an arbitrarily large integer.  The scheme
// employs a most significant byte (MSB) base-128 encoding where the high bit in
// each byte indicates whether or not the byte is the final one.  In addition,
// to ensure there are no redundant encodings, an offset is subtracted every
// time a group of 7 bits is shifted out.  Therefore each integer can be
// represented in exactly one way, and each representation stands for exactly
// one integer.
//
// Example encodings:
//	       0 -> [0x00]
//	     127 -> [0x7f]                 * Max 1-byte value
//	     128 -> [0x80 0x00]
//	     129 -> [0x80 0x01]
//	     255 -> [0x80 0x7f]
//	     256 -> [0x81 0x00]
//	   16511 -> [0xff 0x7f]            * Max 2-byte value
//	   16512 -> [0x80 0x80 0x00]
// -----------------------------------------------------------------------------

// serializeSizeVLQ returns the number of bytes it would take to serialize the
// passed number as a variable-length quantity.
func serializeSizeVLQ(n uint64) int {
	size := 1
	for ; n > 0x7f; n = (n >> 7) - 1 {
		size++
	}

	return size
}

// putVLQ serializes the provided number to a variable-length quantity
// according to the format described above and returns the number of bytes of
// the encoded value.  The result is placed directly into the passed byte slice
// which must be at least large enough to handle the number of bytes returned
// by the serializeSizeVLQ function or it will panic.
func putVLQ(target []byte, n uint64) int {
	offset := 0
	for ; ; offset++ {
		// The high bit is set when another byte follows.
		highBitMask := byte(0x80)
		if offset == 0 {
			highBitMask = 0x00
		}

		target[offset] = byte(n&0x7f) | highBitMask
		if n <= 0x7f {
			break
		}
		n = (n >> 7) - 1
	}

	// Reverse the bytes so it is MSB-encoded.
	for i, j := 0, offset; i < j; i, j = i+1, j-1 {
		target[i], target[j] = target[j], target[i]
	}

	return offset + 1
}

// deserializeVLQ deserializes the provided variable-length quantity according
// to the format described above.  It also returns the number of bytes
// deserialized.
func deserializeVLQ(serialized []byte) (uint64, int) {
	var n uint64
	var size int
	for _, val := range serialized {
		size++
		n = (n << 7) | uint64(val&0x7f)
		if val&0x80 != 0x80 {
			break
		}
		n++
	}

	return n, size
}

// -----------------------------------------------------------------------------
// Amounts are compressed by removing trailing zeros, which are extremely
// common for amounts chosen by humans, and folding the final non-zero digit
// into the exponent:
//
//	0 -> 0
//	otherwise, with n = amount, e = number of trailing zeros (max 9):
//	  e < 9: n' = n / 10^e, d = n' % 10 (1..9), x = 1 + 10*(9*(n'/10) + d - 1) + e
//	  e = 9: x = 1 + 10*(n/10^9 - 1) + 9
// -----------------------------------------------------------------------------

// compressTxOutAmount compresses the passed amount according to the scheme
// described above.
func compressTxOutAmount(amount uint64) uint64 {
	if amount == 0 {
		return 0
	}

	exponent := uint64(0)
	for amount%10 == 0 && exponent < 9 {
		amount /= 10
		exponent++
	}

	if exponent < 9 {
		lastDigit := amount % 10
		amount /= 10
		return 1 + (amount*9+lastDigit-1)*10 + exponent
	}

	return 1 + (amount-1)*10 + 9
}

// decompressTxOutAmount returns the original amount the passed compressed
// amount represents according to the scheme described above.
func decompressTxOutAmount(amount uint64) uint64 {
	if amount == 0 {
		return 0
	}

	amount--
	exponent := amount % 10
	amount /= 10

	var n uint64
	if exponent < 9 {
		lastDigit := amount%9 + 1
		amount /= 9
		n = amount*10 + lastDigit
	} else {
		n = amount + 1
	}

	for ; exponent > 0; exponent-- {
		n *= 10
	}

	return n
}

// -----------------------------------------------------------------------------
// Unspent transaction outputs are keyed by their outpoint:
//
//	<prefix><hash><output index VLQ>
//
// and serialized as:
//
//	<header code><compressed amount><script version><script len><script>
//
//	Field                Type     Size
//	header code          VLQ      variable
//	compressed amount    VLQ      variable
//	script version       VLQ      variable
//	script len           VLQ      variable
//	script               []byte   variable
//
// The header code encodes the block height shifted left by one with the low
// bit set when the containing transaction is a coinbase.
// -----------------------------------------------------------------------------

// maxUint32VLQSerializeSize is the maximum number of bytes a max uint32 takes
// to serialize as a VLQ.
var maxUint32VLQSerializeSize = serializeSizeVLQ(1<<32 - 1)

// outpointKeyPool defines a concurrent safe free list of byte slices used to
// provide temporary buffers for outpoint database keys.
var outpointKeyPool = sync.Pool{
	New: func() interface{} {
		b := make([]byte, len(utxoPrefixUtxoSet)+chainhash.HashSize+
			maxUint32VLQSerializeSize)
		return &b
	},
}

// outpointKey returns a key suitable for use as a database key in the utxo set
// while making use of a free list.  A new buffer is allocated if there are not
// already any available on the free list.  The returned byte slice should be
// returned to the free list by using the recycleOutpointKey function when the
// caller is done with it _unless_ the slice will need to live for longer than
// the caller can calculate such as when used to write to the database.
func outpointKey(outpoint wire.OutPoint) *[]byte {
	key := outpointKeyPool.Get().(*[]byte)
	idx := uint64(outpoint.Index)
	prefixLen := len(utxoPrefixUtxoSet)
	*key = (*key)[:prefixLen+chainhash.HashSize+serializeSizeVLQ(idx)]
	copy(*key, utxoPrefixUtxoSet)
	copy((*key)[prefixLen:], outpoint.Hash[:])
	putVLQ((*key)[prefixLen+chainhash.HashSize:], idx)
	return key
}

// decodeOutpointKey decodes the passed serialized key into the passed outpoint.
func decodeOutpointKey(serialized []byte, outpoint *wire.OutPoint) error {
	prefixLen := len(utxoPrefixUtxoSet)
	if prefixLen+chainhash.HashSize >= len(serialized) {
		return errDeserialize("unexpected length for serialized outpoint key")
	}

	copy(outpoint.Hash[:], serialized[prefixLen:prefixLen+chainhash.HashSize])
	idx, _ := deserializeVLQ(serialized[prefixLen+chainhash.HashSize:])
	if idx > uint64(wire.MaxPrevOutIndex) {
		return errDeserialize(fmt.Sprintf("output index %d exceeds max", idx))
	}
	outpoint.Index = uint32(idx)
	outpoint.Tree = wire.TxTreeRegular
	return nil
}

// recycleOutpointKey puts the provided byte slice, which should have been
// obtained via the outpointKey function, back on the free list.
func recycleOutpointKey(key *[]byte) {
	outpointKeyPool.Put(key)
}

// serializeUtxoEntry returns the entry serialized to a format that is suitable
// for long-term storage.  The format is described in detail above.  Spent
// entries serialize to nil.
func serializeUtxoEntry(entry *UtxoEntry) []byte {
	if entry == nil || entry.IsSpent() {
		return nil
	}

	headerCode := uint64(entry.blockHeight) << 1
	if entry.IsCoinBase() {
		headerCode |= 0x01
	}
	amount := compressTxOutAmount(uint64(entry.amount))
	scriptLen := uint64(len(entry.pkScript))

	size := serializeSizeVLQ(headerCode) + serializeSizeVLQ(amount) +
		serializeSizeVLQ(uint64(entry.scriptVersion)) +
		serializeSizeVLQ(scriptLen) + len(entry.pkScript)
	serialized := make([]byte, size)
	offset := putVLQ(serialized, headerCode)
	offset += putVLQ(serialized[offset:], amount)
	offset += putVLQ(serialized[offset:], uint64(entry.scriptVersion))
	offset += putVLQ(serialized[offset:], scriptLen)
	copy(serialized[offset:], entry.pkScript)
	return serialized
}

// deserializeUtxoEntry decodes a utxo entry from the passed serialized byte
// slice into a new UtxoEntry using a format that is suitable for long-term
// storage.  The format is described in detail above.
func deserializeUtxoEntry(serialized []byte) (*UtxoEntry, error) {
	headerCode, offset := deserializeVLQ(serialized)
	if offset >= len(serialized) {
		return nil, errDeserialize("unexpected end of data after header")
	}

	amount, bytesRead := deserializeVLQ(serialized[offset:])
	offset += bytesRead
	if offset >= len(serialized) {
		return nil, errDeserialize("unexpected end of data after amount")
	}

	scriptVersion, bytesRead := deserializeVLQ(serialized[offset:])
	offset += bytesRead
	if offset >= len(serialized) {
		return nil, errDeserialize("unexpected end of data after script " +
			"version")
	}

	scriptLen, bytesRead := deserializeVLQ(serialized[offset:])
	offset += bytesRead
	if uint64(len(serialized)-offset) != scriptLen {
		return nil, errDeserialize(fmt.Sprintf("unexpected script length "+
			"%d (remaining %d)", scriptLen, len(serialized)-offset))
	}

	var flags utxoFlags
	if headerCode&0x01 != 0 {
		flags |= utxoFlagCoinBase
	}
	pkScript := make([]byte, scriptLen)
	copy(pkScript, serialized[offset:])
	return &UtxoEntry{
		amount:        int64(decompressTxOutAmount(amount)),
		pkScript:      pkScript,
		blockHeight:   uint32(headerCode >> 1),
		scriptVersion: uint16(scriptVersion),
		packedFlags:   flags,
	}, nil
}

// -----------------------------------------------------------------------------
// The utxo set state contains information regarding the current state of the
// utxo set.  In particular, it tracks the block height and block hash of the
// last completed flush.
//
// The serialized format is:
//
//	<block height><block hash>
//
//	Field          Type             Size
//	block height   VLQ              variable
//	block hash     chainhash.Hash   chainhash.HashSize
// -----------------------------------------------------------------------------

// UtxoSetState represents the current state of the utxo set.
type UtxoSetState struct {
	lastFlushHeight uint32
	lastFlushHash   chainhash.Hash
}

// serializeUtxoSetState serializes the provided utxo set state.
func serializeUtxoSetState(state *UtxoSetState) []byte {
	height := uint64(state.lastFlushHeight)
	serialized := make([]byte, serializeSizeVLQ(height)+chainhash.HashSize)
	offset := putVLQ(serialized, height)
	copy(serialized[offset:], state.lastFlushHash[:])
	return serialized
}

// deserializeUtxoSetState deserializes the passed serialized byte slice into
// the utxo set state.
func deserializeUtxoSetState(serialized []byte) (*UtxoSetState, error) {
	height, offset := deserializeVLQ(serialized)
	if len(serialized[offset:]) != chainhash.HashSize {
		return nil, errDeserialize("unexpected length for serialized utxo " +
			"set state")
	}

	var hash chainhash.Hash
	copy(hash[:], serialized[offset:])
	return &UtxoSetState{
		lastFlushHeight: uint32(height),
		lastFlushHash:   hash,
	}, nil
}
