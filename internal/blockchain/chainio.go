// Copyright (c) 2015-2016 The btcsuite developers
// Copyright (c) 2016-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/wire"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/xecnode/xecd/chaincfg"
	"github.com/xecnode/xecd/internal/blockstore"
)

const (
	// blockHdrSize is the size of a block header.  This is simply the
	// constant from wire and is only provided here for convenience since
	// wire.MaxBlockHeaderPayload is quite long.
	blockHdrSize = wire.MaxBlockHeaderPayload

	// blockIndexDbName is the name of the block index database.
	blockIndexDbName = "blockindex"
)

// blockIndexPrefix is the prefix for all block index entries in the block index
// database.
var blockIndexPrefix = []byte{'b'}

// -----------------------------------------------------------------------------
// The block index consists of an entry for every known block.  It consists of
// the block header along with the validation state of the block and where its
// data lives in the block store.
//
// The serialized key format is:
//
//   'b'<block height><block hash>
//
//   Field           Type              Size
//   prefix          byte              1 byte
//   block height    uint32            4 bytes
//   block hash      chainhash.Hash    chainhash.HashSize
//
// The serialized value format is:
//
//   <block header><status><validity><data pos><undo pos><num txns>
//
//   Field              Type                Size
//   block header       wire.BlockHeader    180 bytes
//   status             blockStatus         1 byte
//   validity           validityLevel       1 byte
//   data pos           file, offset        8 bytes
//   undo pos           file, offset        8 bytes
//   num txns           VLQ                 variable
//
// The file numbers of the positions are stored as little-endian uint32s with
// the null position encoded as 0xffffffff.
// -----------------------------------------------------------------------------

// blockIndexEntry represents a block index database entry.
type blockIndexEntry struct {
	header   wire.BlockHeader
	status   blockStatus
	validity validityLevel
	dataPos  blockstore.FilePos
	undoPos  blockstore.FilePos
	numTxns  uint32
}

// blockIndexKey generates the binary key for an entry in the block index
// database.  The key is composed of the block height encoded as a big-endian
// 32-bit unsigned int followed by the 32 byte block hash.  Big endian is used
// here so the entries can easily be iterated by height.
func blockIndexKey(blockHash *chainhash.Hash, blockHeight uint32) []byte {
	indexKey := make([]byte, len(blockIndexPrefix)+chainhash.HashSize+4)
	offset := copy(indexKey, blockIndexPrefix)
	binary.BigEndian.PutUint32(indexKey[offset:offset+4], blockHeight)
	copy(indexKey[offset+4:], blockHash[:])
	return indexKey
}

// blockIndexEntrySerializeSize returns the number of bytes it would take to
// serialize the passed block index entry according to the format described
// above.
func blockIndexEntrySerializeSize(entry *blockIndexEntry) int {
	return blockHdrSize + 2 + 16 + serializeSizeVLQ(uint64(entry.numTxns))
}

// putFilePos serializes the passed position into the target byte slice.
func putFilePos(target []byte, pos blockstore.FilePos) {
	binary.LittleEndian.PutUint32(target[0:4], uint32(pos.File))
	binary.LittleEndian.PutUint32(target[4:8], pos.Offset)
}

// readFilePos deserializes a position from the passed byte slice.
func readFilePos(serialized []byte) blockstore.FilePos {
	return blockstore.FilePos{
		File:   int32(binary.LittleEndian.Uint32(serialized[0:4])),
		Offset: binary.LittleEndian.Uint32(serialized[4:8]),
	}
}

// putBlockIndexEntry serializes the passed block index entry according to the
// format described above directly into the passed target byte slice.  The
// target byte slice must be at least large enough to handle the number of bytes
// returned by the blockIndexEntrySerializeSize function or it will panic.
func putBlockIndexEntry(target []byte, entry *blockIndexEntry) (int, error) {
	// Serialize the entire block header.
	w := bytes.NewBuffer(target[0:0])
	if err := entry.header.Serialize(w); err != nil {
		return 0, err
	}

	// Serialize the status and validity.
	offset := blockHdrSize
	target[offset] = byte(entry.status)
	target[offset+1] = byte(entry.validity)
	offset += 2

	// Serialize the data positions and number of transactions.
	putFilePos(target[offset:], entry.dataPos)
	putFilePos(target[offset+8:], entry.undoPos)
	offset += 16
	offset += putVLQ(target[offset:], uint64(entry.numTxns))
	return offset, nil
}

// serializeBlockIndexEntry serializes the passed block index entry into a
// single byte slice according to the format described in detail above.
func serializeBlockIndexEntry(entry *blockIndexEntry) ([]byte, error) {
	serialized := make([]byte, blockIndexEntrySerializeSize(entry))
	_, err := putBlockIndexEntry(serialized, entry)
	return serialized, err
}

// decodeBlockIndexEntry decodes the passed serialized block index entry into
// the passed struct according to the format described above.  It returns the
// number of bytes read.
func decodeBlockIndexEntry(serialized []byte, entry *blockIndexEntry) (int, error) {
	// Ensure there are enough bytes to decode header.
	if len(serialized) < blockHdrSize {
		return 0, errDeserialize("unexpected end of data while " +
			"reading block header")
	}
	hB := serialized[0:blockHdrSize]

	// Deserialize the header.
	var header wire.BlockHeader
	if err := header.Deserialize(bytes.NewReader(hB)); err != nil {
		return 0, err
	}
	offset := blockHdrSize

	// Deserialize the status and validity.
	if offset+2 > len(serialized) {
		return offset, errDeserialize("unexpected end of data while " +
			"reading status")
	}
	status := blockStatus(serialized[offset])
	validity := validityLevel(serialized[offset+1])
	if validity > validityScripts {
		return offset, errDeserialize(fmt.Sprintf("unknown validity "+
			"level %d", validity))
	}
	offset += 2

	// Deserialize the data positions.
	if offset+16 > len(serialized) {
		return offset, errDeserialize("unexpected end of data while " +
			"reading block positions")
	}
	dataPos := readFilePos(serialized[offset:])
	undoPos := readFilePos(serialized[offset+8:])
	offset += 16

	// Deserialize the number of transactions.
	numTxns, bytesRead := deserializeVLQ(serialized[offset:])
	if bytesRead == 0 {
		return offset, errDeserialize("unexpected end of data while " +
			"reading num txns")
	}
	offset += bytesRead

	entry.header = header
	entry.status = status
	entry.validity = validity
	entry.dataPos = dataPos
	entry.undoPos = undoPos
	entry.numTxns = uint32(numTxns)
	return offset, nil
}

// deserializeBlockIndexEntry decodes the passed serialized byte slice into a
// block index entry according to the format described above.
func deserializeBlockIndexEntry(serialized []byte) (*blockIndexEntry, error) {
	var entry blockIndexEntry
	if _, err := decodeBlockIndexEntry(serialized, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// dbPutBlockNode stores the information needed to reconstruct the provided
// block node in the block index according to the format described above.
func dbPutBlockNode(batch *leveldb.Batch, node *blockNode) error {
	serialized, err := serializeBlockIndexEntry(&blockIndexEntry{
		header:   node.Header(),
		status:   node.status,
		validity: node.validity,
		dataPos:  node.dataPos,
		undoPos:  node.undoPos,
		numTxns:  node.numTxns,
	})
	if err != nil {
		return err
	}

	batch.Put(blockIndexKey(&node.hash, uint32(node.height)), serialized)
	return nil
}

// LoadBlockIndexDB loads (or creates when needed) the block index database and
// returns a handle to it.  The regression test database is removed first so
// every run starts clean.
func LoadBlockIndexDB(params *chaincfg.Params, dataDir string) (*leveldb.DB, error) {
	dbPath := filepath.Join(dataDir, blockIndexDbName)
	_ = removeRegressionDB(params.Net, dbPath)

	log.Infof("Loading block index from '%s'", dbPath)
	db, err := openLevelDB(dbPath)
	if err != nil {
		return nil, convertLdbErr(err, "failed to open block index database")
	}
	return db, nil
}

// loadBlockIndex loads all of the block index entries from the database and
// constructs the block index into the provided index parameter.  It returns
// the number of entries that were loaded.  It is not safe for concurrent
// access as it is only intended to be used during initialization.
func loadBlockIndex(db *leveldb.DB, genesisHash *chainhash.Hash, index *blockIndex) (int, error) {
	// Determine how many blocks will be loaded into the index in order to
	// allocate the right amount as a single alloc versus a whole bunch of
	// little ones to reduce pressure on the GC.
	var blockCount int32
	iter := db.NewIterator(util.BytesPrefix(blockIndexPrefix), nil)
	for iter.Next() {
		blockCount++
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return 0, convertLdbErr(err, "failed to count block index entries")
	}
	if blockCount == 0 {
		return 0, nil
	}
	blockNodes := make([]blockNode, blockCount)

	// Initialize the best header to the node that will become the genesis block
	// below.
	index.bestHeader = &blockNodes[0]

	// Load all of the block index entries and construct the block index
	// accordingly.
	//
	// NOTE: No locks are used on the block index here since this is
	// initialization code.
	var i int32
	var lastNode *blockNode
	iter = db.NewIterator(util.BytesPrefix(blockIndexPrefix), nil)
	defer iter.Release()
	for iter.Next() {
		if i >= blockCount {
			break
		}
		entry, err := deserializeBlockIndexEntry(iter.Value())
		if err != nil {
			str := fmt.Sprintf("corrupt block index entry %x: %v",
				iter.Key(), err)
			return 0, contextError(ErrBlockIndexCorruption, str)
		}
		header := &entry.header

		// Determine the parent block node.  Since the block headers are
		// iterated in order of height, there is a very good chance the
		// previous header processed is the parent.
		var parent *blockNode
		if lastNode == nil {
			blockHash := header.BlockHash()
			if blockHash != *genesisHash {
				str := fmt.Sprintf("loadBlockIndex: expected first entry "+
					"in block index to be genesis block, found %s",
					blockHash)
				return 0, contextError(ErrBlockIndexCorruption, str)
			}
		} else if header.PrevBlock == lastNode.hash {
			parent = lastNode
		} else {
			parent = index.lookupNode(&header.PrevBlock)
			if parent == nil {
				str := fmt.Sprintf("loadBlockIndex: could not find "+
					"parent for block %s", header.BlockHash())
				return 0, contextError(ErrBlockIndexCorruption, str)
			}
		}

		// Initialize the block node, connect it, and add it to the block
		// index.
		//
		// A block is linked when every ancestor received its data at some
		// point.  Pruning removes the data of old blocks, but they keep their
		// transaction count, so descendants stay linked.
		node := &blockNodes[i]
		initBlockNode(node, header, parent)
		node.status = entry.status
		node.validity = entry.validity
		node.dataPos = entry.dataPos
		node.undoPos = entry.undoPos
		node.numTxns = entry.numTxns
		node.isFullyLinked = parent == nil ||
			(parent.isFullyLinked && parent.numTxns > 0)
		index.addNodeFromDB(node)

		lastNode = node
		i++
	}
	if err := iter.Error(); err != nil {
		return 0, convertLdbErr(err, "failed to load block index")
	}

	return int(i), nil
}

// createChainState initializes both the block index and the block store with
// the genesis block.  The UTXO set stays empty since the outputs of the
// genesis block are not spendable.
func (b *BlockChain) createChainState() error {
	genesisBlock := dcrutil.NewBlock(b.chainParams.GenesisBlock)
	msgBlock := genesisBlock.MsgBlock()
	node := newBlockNode(&msgBlock.Header, nil)
	node.status = statusChecked
	node.validity = validityScripts
	b.index.AddNode(node)

	pos, err := b.store.SaveBlock(msgBlock, 0)
	if err != nil {
		return err
	}
	b.index.SetDataPos(node, pos, uint32(len(msgBlock.Transactions)))
	b.index.AcceptBlockData(node, nil)
	b.addRecentBlock(genesisBlock)

	if err := b.store.Sync(); err != nil {
		return err
	}
	return b.index.flush()
}

// initChainState attempts to load and initialize the chain state from the
// block index and the UTXO backend.  When the block index does not yet
// contain any blocks, it is initialized with the genesis block.
//
// The tip of the main chain is the block the UTXO set was last flushed at.
// Blocks after it whose data is known are connected again afterwards.
func (b *BlockChain) initChainState() error {
	genesisHash := &b.chainParams.GenesisHash
	numNodes, err := loadBlockIndex(b.index.db, genesisHash, b.index)
	if err != nil {
		return err
	}
	if numNodes == 0 {
		log.Info("Creating chain state with the genesis block")
		if err := b.createChainState(); err != nil {
			return err
		}
	} else {
		log.Infof("Loaded %d block index entries", numNodes)
	}

	tip := b.index.LookupNode(genesisHash)
	if tip == nil {
		str := fmt.Sprintf("genesis block %s is not in the block index",
			genesisHash)
		return contextError(ErrBlockIndexCorruption, str)
	}
	state, err := b.utxoBackend.FetchState()
	if err != nil {
		return err
	}
	if state != nil && state.lastFlushHash != *zeroHash {
		tip = b.index.LookupNode(&state.lastFlushHash)
		if tip == nil {
			str := fmt.Sprintf("the UTXO set was last flushed at block %s "+
				"(height %d) which is not in the block index",
				state.lastFlushHash, state.lastFlushHeight)
			return contextError(ErrUtxoBackendCorruption, str)
		}
	}

	b.bestChain.SetTip(tip)
	b.utxoCache = NewUtxoCache(b.utxoBackend)
	b.utxoCache.SetBestBlock(tip.hash, tip.height)
	b.index.AddEligibleCandidates(tip)

	if b.assumeValid != *zeroHash {
		b.assumeValidNode = b.index.LookupNode(&b.assumeValid)
	}

	var totalTxns uint64
	for n := tip; n != nil; n = n.parent {
		totalTxns += uint64(n.numTxns)
	}
	var blockSize uint64
	if block, err := b.fetchBlockByNode(tip); err == nil {
		blockSize = uint64(block.MsgBlock().SerializeSize())
	} else {
		log.Warnf("Unable to load tip block %s: %v", tip.hash, err)
	}
	b.stateSnapshot = newBestState(tip, blockSize, uint64(tip.numTxns),
		totalTxns, tip.CalcPastMedianTime())
	b.maybeUpdateIsCurrent(tip)
	prometheusTipHeight.Set(float64(tip.height))
	return nil
}
