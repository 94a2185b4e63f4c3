// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/wire"
	"github.com/jrick/bitset"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	// DefaultMaxFileSize is the default maximum number of block bytes held
	// by a single logical file before a new one is started.
	DefaultMaxFileSize = 128 * 1024 * 1024

	// fileInfoSize is the size of a serialized file info record.
	fileInfoSize = 4 + 8 + 8 + 8 + 8 + 8 + 8

	// checksumSize is the number of checksum bytes prefixed to undo records.
	checksumSize = 4
)

// -----------------------------------------------------------------------------
// The block store keeps every record in a single leveldb database.  Records
// are grouped into numbered logical files so that old history can be deleted
// file by file when pruning:
//
//	Key                                 Value
//	'b' <file uint32> <offset uint32>   serialized block
//	'u' <file uint32> <offset uint32>   <checksum><undo data>
//	'f' <file uint32>                   serialized FileInfo
//	'l'                                 last file number (uint32)
//	'p'                                 bitset of pruned files
//
// All integers in keys are big endian so records of a file are contiguous.
// -----------------------------------------------------------------------------

var (
	blockPrefix    = []byte{'b'}
	undoPrefix     = []byte{'u'}
	fileInfoPrefix = []byte{'f'}
	lastFileKey    = []byte{'l'}
	prunedKey      = []byte{'p'}
)

// FilePos identifies the position of a record within the store.  Records are
// immutable once written; only pruning deletes them.
type FilePos struct {
	File   int32
	Offset uint32
}

// NullFilePos is the position of a record that does not exist.
var NullFilePos = FilePos{File: -1}

// IsNull returns whether the position refers to no record.
func (p FilePos) IsNull() bool {
	return p.File < 0
}

// String returns the position in a human-readable form.
func (p FilePos) String() string {
	return fmt.Sprintf("file %d offset %d", p.File, p.Offset)
}

// FileInfo houses metadata about a logical file.
type FileInfo struct {
	Blocks      uint32
	Size        uint64
	UndoSize    uint64
	HeightFirst int64
	HeightLast  int64
	TimeFirst   int64
	TimeLast    int64
}

// addBlock updates the file info to account for a block with the given height
// and timestamp.
func (fi *FileInfo) addBlock(height int64, timestamp int64) {
	if fi.Blocks == 0 || height < fi.HeightFirst {
		fi.HeightFirst = height
	}
	if fi.Blocks == 0 || timestamp < fi.TimeFirst {
		fi.TimeFirst = timestamp
	}
	fi.Blocks++
	if height > fi.HeightLast {
		fi.HeightLast = height
	}
	if timestamp > fi.TimeLast {
		fi.TimeLast = timestamp
	}
}

// serializeFileInfo returns the serialized form of the passed file info.
func serializeFileInfo(fi *FileInfo) []byte {
	var b [fileInfoSize]byte
	binary.LittleEndian.PutUint32(b[0:4], fi.Blocks)
	binary.LittleEndian.PutUint64(b[4:12], fi.Size)
	binary.LittleEndian.PutUint64(b[12:20], fi.UndoSize)
	binary.LittleEndian.PutUint64(b[20:28], uint64(fi.HeightFirst))
	binary.LittleEndian.PutUint64(b[28:36], uint64(fi.HeightLast))
	binary.LittleEndian.PutUint64(b[36:44], uint64(fi.TimeFirst))
	binary.LittleEndian.PutUint64(b[44:52], uint64(fi.TimeLast))
	return b[:]
}

// deserializeFileInfo decodes a file info from the passed serialized bytes.
func deserializeFileInfo(b []byte) (FileInfo, error) {
	if len(b) != fileInfoSize {
		str := fmt.Sprintf("unexpected file info length %d", len(b))
		return FileInfo{}, storeError(ErrCorruption, str)
	}
	return FileInfo{
		Blocks:      binary.LittleEndian.Uint32(b[0:4]),
		Size:        binary.LittleEndian.Uint64(b[4:12]),
		UndoSize:    binary.LittleEndian.Uint64(b[12:20]),
		HeightFirst: int64(binary.LittleEndian.Uint64(b[20:28])),
		HeightLast:  int64(binary.LittleEndian.Uint64(b[28:36])),
		TimeFirst:   int64(binary.LittleEndian.Uint64(b[36:44])),
		TimeLast:    int64(binary.LittleEndian.Uint64(b[44:52])),
	}, nil
}

// recordKey returns the key of the record at the given position under the
// given prefix.
func recordKey(prefix []byte, pos FilePos) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint32(key[len(prefix):], uint32(pos.File))
	binary.BigEndian.PutUint32(key[len(prefix)+4:], pos.Offset)
	return key
}

// filePrefix returns the prefix shared by every record of the given file under
// the given record prefix.
func filePrefix(prefix []byte, file int32) []byte {
	key := make([]byte, len(prefix)+4)
	copy(key, prefix)
	binary.BigEndian.PutUint32(key[len(prefix):], uint32(file))
	return key
}

// convertLdbErr converts the passed leveldb error into a store error with an
// equivalent error kind and the passed description.
func convertLdbErr(ldbErr error, desc string) Error {
	kind := ErrDriver
	if ldberrors.IsCorrupted(ldbErr) {
		kind = ErrCorruption
	}
	return storeError(kind, fmt.Sprintf("%s: %v", desc, ldbErr))
}

// Store houses blocks and their undo data in numbered logical files.  Writes
// are buffered until Sync is called.
//
// All exported methods are safe for concurrent access.
type Store struct {
	mtx         sync.Mutex
	db          *leveldb.DB
	maxFileSize uint64

	// files contains the info of every logical file indexed by file number.
	// currentFile is the file new blocks are appended to.
	files       []FileInfo
	currentFile int32

	// pending contains records that have been written but not yet synced.
	// pendingRecords mirrors it for reads.  dirtyFiles tracks which file
	// infos changed since the last sync.
	pending        *leveldb.Batch
	pendingRecords map[string][]byte
	dirtyFiles     bitset.Bytes

	// pruned tracks the files whose records have been deleted.
	pruned bitset.Bytes
}

// Open opens (or creates) the block store at the provided path.
func Open(path string, maxFileSize uint64) (*Store, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}
	opts := opt.Options{
		Strict:      opt.DefaultStrict,
		Compression: opt.NoCompression,
	}
	db, err := leveldb.OpenFile(path, &opts)
	if err != nil {
		return nil, convertLdbErr(err, "failed to open block store")
	}
	s, err := New(db, maxFileSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New returns a block store backed by the provided leveldb database, loading
// any existing file metadata from it.
func New(db *leveldb.DB, maxFileSize uint64) (*Store, error) {
	if maxFileSize == 0 {
		maxFileSize = DefaultMaxFileSize
	}
	s := &Store{
		db:             db,
		maxFileSize:    maxFileSize,
		files:          []FileInfo{{}},
		pending:        new(leveldb.Batch),
		pendingRecords: make(map[string][]byte),
		dirtyFiles:     bitset.NewBytes(1),
		pruned:         bitset.NewBytes(1),
	}

	lastFile, err := db.Get(lastFileKey, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return s, nil
	case err != nil:
		return nil, convertLdbErr(err, "failed to load last file number")
	case len(lastFile) != 4:
		return nil, storeError(ErrCorruption, "malformed last file number")
	}

	s.currentFile = int32(binary.LittleEndian.Uint32(lastFile))
	s.files = make([]FileInfo, s.currentFile+1)
	s.dirtyFiles = bitset.NewBytes(len(s.files))
	s.pruned = bitset.NewBytes(len(s.files))
	for file := int32(0); file <= s.currentFile; file++ {
		serialized, err := db.Get(filePrefix(fileInfoPrefix, file), nil)
		if errors.Is(err, leveldb.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, convertLdbErr(err, "failed to load file info")
		}
		fi, err := deserializeFileInfo(serialized)
		if err != nil {
			return nil, err
		}
		s.files[file] = fi
	}

	pruned, err := db.Get(prunedKey, nil)
	if err != nil && !errors.Is(err, leveldb.ErrNotFound) {
		return nil, convertLdbErr(err, "failed to load pruned files")
	}
	copy(s.pruned, pruned)

	log.Debugf("Loaded block store with %d files", len(s.files))
	return s, nil
}

// growSets makes sure the file bitsets can address the current file.
//
// This function MUST be called with the store lock held.
func (s *Store) growSets() {
	numFiles := len(s.files)
	if len(s.dirtyFiles)*8 < numFiles {
		grown := bitset.NewBytes(numFiles)
		copy(grown, s.dirtyFiles)
		s.dirtyFiles = grown
	}
	if len(s.pruned)*8 < numFiles {
		grown := bitset.NewBytes(numFiles)
		copy(grown, s.pruned)
		s.pruned = grown
	}
}

// putPending buffers a record to be written on the next sync.
//
// This function MUST be called with the store lock held.
func (s *Store) putPending(key, value []byte) {
	s.pending.Put(key, value)
	s.pendingRecords[string(key)] = value
}

// get returns the record with the given key from the pending writes or the
// database.
//
// This function MUST be called with the store lock held.
func (s *Store) get(key []byte) ([]byte, error) {
	if value, ok := s.pendingRecords[string(key)]; ok {
		return value, nil
	}
	value, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, storeError(ErrRecordNotFound, "record not found")
	}
	if err != nil {
		return nil, convertLdbErr(err, "failed to read record")
	}
	return value, nil
}

// SaveBlock appends the passed block to the current file, starting a new file
// when the current one is full, and returns its position.
func (s *Store) SaveBlock(block *wire.MsgBlock, height int64) (FilePos, error) {
	var buf bytes.Buffer
	buf.Grow(block.SerializeSize())
	if err := block.Serialize(&buf); err != nil {
		return NullFilePos, err
	}
	serialized := buf.Bytes()

	s.mtx.Lock()
	defer s.mtx.Unlock()

	cur := &s.files[s.currentFile]
	if cur.Blocks > 0 && cur.Size+uint64(len(serialized)) > s.maxFileSize {
		s.currentFile++
		s.files = append(s.files, FileInfo{})
		s.growSets()
		cur = &s.files[s.currentFile]
		log.Debugf("Starting block file %d", s.currentFile)
	}

	pos := FilePos{File: s.currentFile, Offset: uint32(cur.Size)}
	s.putPending(recordKey(blockPrefix, pos), serialized)
	cur.Size += uint64(len(serialized))
	cur.addBlock(height, block.Header.Timestamp.Unix())
	s.dirtyFiles.Set(int(s.currentFile))
	return pos, nil
}

// ReadBlock loads the block at the given position.
func (s *Store) ReadBlock(pos FilePos) (*wire.MsgBlock, error) {
	if pos.IsNull() {
		return nil, storeError(ErrInvalidPos, "null block position")
	}

	s.mtx.Lock()
	serialized, err := s.get(recordKey(blockPrefix, pos))
	s.mtx.Unlock()
	if err != nil {
		return nil, err
	}

	var block wire.MsgBlock
	if err := block.Deserialize(bytes.NewReader(serialized)); err != nil {
		str := fmt.Sprintf("failed to deserialize block at %v: %v", pos, err)
		return nil, storeError(ErrCorruption, str)
	}
	return &block, nil
}

// WriteUndo appends the passed undo data to the file that contains the block
// at the given position and returns the position of the undo record.
func (s *Store) WriteUndo(data []byte, blockPos FilePos) (FilePos, error) {
	if blockPos.IsNull() {
		return NullFilePos, storeError(ErrInvalidPos, "null block position")
	}

	record := make([]byte, checksumSize+len(data))
	checksum := chainhash.HashB(data)
	copy(record, checksum[:checksumSize])
	copy(record[checksumSize:], data)

	s.mtx.Lock()
	defer s.mtx.Unlock()

	if int(blockPos.File) >= len(s.files) {
		return NullFilePos, storeError(ErrInvalidPos, "block file out of range")
	}
	fi := &s.files[blockPos.File]
	pos := FilePos{File: blockPos.File, Offset: uint32(fi.UndoSize)}
	s.putPending(recordKey(undoPrefix, pos), record)
	fi.UndoSize += uint64(len(record))
	s.dirtyFiles.Set(int(blockPos.File))
	return pos, nil
}

// ReadUndo loads the undo data at the given position and verifies its
// checksum.
func (s *Store) ReadUndo(pos FilePos) ([]byte, error) {
	if pos.IsNull() {
		return nil, storeError(ErrInvalidPos, "null undo position")
	}

	s.mtx.Lock()
	record, err := s.get(recordKey(undoPrefix, pos))
	s.mtx.Unlock()
	if err != nil {
		return nil, err
	}

	if len(record) < checksumSize {
		return nil, storeError(ErrCorruption, "truncated undo record")
	}
	data := record[checksumSize:]
	checksum := chainhash.HashB(data)
	if !bytes.Equal(checksum[:checksumSize], record[:checksumSize]) {
		str := fmt.Sprintf("undo checksum mismatch at %v", pos)
		return nil, storeError(ErrCorruption, str)
	}
	return data, nil
}

// Sync durably writes all buffered records along with the modified file
// metadata.
func (s *Store) Sync() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for file := range s.files {
		if !s.dirtyFiles.Get(file) {
			continue
		}
		s.pending.Put(filePrefix(fileInfoPrefix, int32(file)),
			serializeFileInfo(&s.files[file]))
		s.dirtyFiles.Unset(file)
	}
	var lastFile [4]byte
	binary.LittleEndian.PutUint32(lastFile[:], uint32(s.currentFile))
	s.pending.Put(lastFileKey, lastFile[:])

	err := s.db.Write(s.pending, &opt.WriteOptions{Sync: true})
	if err != nil {
		return convertLdbErr(err, "failed to sync block store")
	}
	s.pending.Reset()
	s.pendingRecords = make(map[string][]byte)
	return nil
}

// FileInfo returns the metadata of the given file.
func (s *Store) FileInfo(file int32) (FileInfo, bool) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if file < 0 || int(file) >= len(s.files) {
		return FileInfo{}, false
	}
	return s.files[file], true
}

// CurrentFile returns the number of the file new blocks are appended to.
func (s *Store) CurrentFile() int32 {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.currentFile
}

// IsPruned returns whether the records of the given file have been deleted.
func (s *Store) IsPruned(file int32) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return file >= 0 && int(file) < len(s.files) && s.pruned.Get(int(file))
}

// TotalSize returns the number of block and undo bytes held by unpruned files.
func (s *Store) TotalSize() uint64 {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var total uint64
	for _, fi := range s.files {
		total += fi.Size + fi.UndoSize
	}
	return total
}

// PruneFiles deletes every block and undo record of the given files.  The
// current file is never pruned.  The deletion is durable when the method
// returns.
func (s *Store) PruneFiles(files []int32) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	batch := new(leveldb.Batch)
	for _, file := range files {
		if file < 0 || file >= s.currentFile || s.pruned.Get(int(file)) {
			continue
		}
		for _, prefix := range [][]byte{blockPrefix, undoPrefix} {
			iter := s.db.NewIterator(util.BytesPrefix(filePrefix(prefix, file)), nil)
			for iter.Next() {
				key := iter.Key()
				batch.Delete(append([]byte(nil), key...))
			}
			iter.Release()
			if err := iter.Error(); err != nil {
				return convertLdbErr(err, "failed to iterate file records")
			}
		}
		s.files[file] = FileInfo{}
		s.pruned.Set(int(file))
		batch.Put(filePrefix(fileInfoPrefix, file), serializeFileInfo(&s.files[file]))
		log.Debugf("Pruned block file %d", file)
	}
	if batch.Len() == 0 {
		return nil
	}
	batch.Put(prunedKey, []byte(s.pruned))

	err := s.db.Write(batch, &opt.WriteOptions{Sync: true})
	if err != nil {
		return convertLdbErr(err, "failed to prune block files")
	}
	return nil
}

// Close syncs any buffered records and closes the underlying database.
func (s *Store) Close() error {
	if err := s.Sync(); err != nil {
		return err
	}
	return s.db.Close()
}
