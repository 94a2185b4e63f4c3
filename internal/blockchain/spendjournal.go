// Copyright (c) 2015-2016 The btcsuite developers
// Copyright (c) 2015-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"

	"github.com/decred/dcrd/dcrutil/v4"
)

// -----------------------------------------------------------------------------
// The undo data of a block is the list of every output its transactions spent
// in the order they were spent.  That is, the inputs of the first non-coinbase
// transaction in input order, followed by those of the second, and so on.
// Replaying it in reverse restores the UTXO set to the state prior to the
// block.
//
// The serialized format is:
//
//	<num spent outputs><entry len><entry>...
//
//	Field                Type     Size
//	num spent outputs    VLQ      variable
//	entry len            VLQ      variable
//	entry                []byte   variable, see serializeUtxoEntry
// -----------------------------------------------------------------------------

// countSpentOutputs returns the number of utxos the passed block spends.
func countSpentOutputs(block *dcrutil.Block) int {
	var numSpent int
	for i, tx := range block.MsgBlock().Transactions {
		// The coinbase does not spend anything.
		if i == 0 {
			continue
		}
		numSpent += len(tx.TxIn)
	}
	return numSpent
}

// serializeBlockUndo serializes the passed spent outputs according to the
// format described above.
func serializeBlockUndo(spent []*UtxoEntry) []byte {
	serializedEntries := make([][]byte, len(spent))
	size := serializeSizeVLQ(uint64(len(spent)))
	for i, entry := range spent {
		// Spent copies carry no in-memory state, so they serialize like an
		// unspent entry.
		clean := *entry
		clean.state = 0
		serializedEntries[i] = serializeUtxoEntry(&clean)
		entryLen := uint64(len(serializedEntries[i]))
		size += serializeSizeVLQ(entryLen) + len(serializedEntries[i])
	}

	serialized := make([]byte, size)
	offset := putVLQ(serialized, uint64(len(spent)))
	for _, entry := range serializedEntries {
		offset += putVLQ(serialized[offset:], uint64(len(entry)))
		offset += copy(serialized[offset:], entry)
	}
	return serialized
}

// deserializeBlockUndo decodes the passed serialized undo data.
func deserializeBlockUndo(serialized []byte) ([]*UtxoEntry, error) {
	if len(serialized) == 0 {
		return nil, errDeserialize("empty undo data")
	}

	numSpent, offset := deserializeVLQ(serialized)
	if numSpent > uint64(len(serialized)) {
		return nil, errDeserialize(fmt.Sprintf("undo data claims %d "+
			"entries in %d bytes", numSpent, len(serialized)))
	}

	spent := make([]*UtxoEntry, 0, numSpent)
	for i := uint64(0); i < numSpent; i++ {
		if offset >= len(serialized) {
			return nil, errDeserialize(fmt.Sprintf("unexpected end of undo "+
				"data at entry %d", i))
		}
		entryLen, bytesRead := deserializeVLQ(serialized[offset:])
		offset += bytesRead
		if uint64(len(serialized)-offset) < entryLen {
			return nil, errDeserialize(fmt.Sprintf("unexpected end of undo "+
				"data in entry %d", i))
		}
		entry, err := deserializeUtxoEntry(serialized[offset : offset+int(entryLen)])
		if err != nil {
			return nil, err
		}
		spent = append(spent, entry)
		offset += int(entryLen)
	}
	if offset != len(serialized) {
		return nil, errDeserialize("trailing bytes after undo data")
	}
	return spent, nil
}
