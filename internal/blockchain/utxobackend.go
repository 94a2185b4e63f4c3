// Copyright (c) 2021-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/wire"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/xecnode/xecd/chaincfg"
)

const (
	// currentUtxoDatabaseVersion indicates the current UTXO database version.
	currentUtxoDatabaseVersion = 1

	// utxoDbName is the name of the UTXO database.
	utxoDbName = "utxodb"
)

// -----------------------------------------------------------------------------
// utxoKeySet represents a top level key set in the UTXO backend.  All keys in
// the UTXO backend start with a serialized prefix consisting of the key set
// and version of that key set as follows:
//
//	<key set><version>
//
//	Key        Value    Size      Description
//	key set    uint8    1 byte    The key set identifier, as defined below
//	version    uint8    1 byte    The version of the key set
// -----------------------------------------------------------------------------
type utxoKeySet uint8

// These constants define the available UTXO backend key sets.
const (
	utxoKeySetDbInfo    utxoKeySet = iota + 1 // 1
	utxoKeySetUtxoState                       // 2
	utxoKeySetUtxoSet                         // 3
)

// These variables define the serialized prefix for each key set and associated
// version.
var (
	// utxoPrefixDbInfo is the prefix for all keys in the database info key
	// set.
	utxoPrefixDbInfo = []byte{byte(utxoKeySetDbInfo), 0}

	// utxoPrefixUtxoState is the prefix for all keys in the UTXO state key set.
	utxoPrefixUtxoState = []byte{byte(utxoKeySetUtxoState), 1}

	// utxoPrefixUtxoSet is the prefix for all keys in the UTXO set key set.
	utxoPrefixUtxoSet = []byte{byte(utxoKeySetUtxoSet), 1}
)

// prefixedKey returns a new byte slice that consists of the provided prefix
// appended with the provided key.
func prefixedKey(prefix []byte, key []byte) []byte {
	lenPrefix := len(prefix)
	prefixedKey := make([]byte, lenPrefix+len(key))
	_ = copy(prefixedKey, prefix)
	_ = copy(prefixedKey[lenPrefix:], key)
	return prefixedKey
}

var (
	// utxoDbInfoVersionKey is the database key used to house the database
	// version.
	utxoDbInfoVersionKey = prefixedKey(utxoPrefixDbInfo, []byte("version"))

	// utxoDbInfoCreatedKey is the database key used to house the date the
	// database was created.
	utxoDbInfoCreatedKey = prefixedKey(utxoPrefixDbInfo, []byte("created"))

	// utxoSetStateKey is the database key used to house the state of the
	// unspent transaction output set.
	utxoSetStateKey = prefixedKey(utxoPrefixUtxoState, []byte("utxosetstate"))
)

// UtxoStats represents unspent output statistics on the current utxo set.
type UtxoStats struct {
	Utxos int64
	Size  int64
	Total int64
}

// UtxoBackend represents a persistent storage layer for the UTXO set.  It is
// the bottom layer that UTXO caches flush into.
//
// The interface contract requires that all of these methods are safe for
// concurrent access.
type UtxoBackend interface {
	CoinsView

	// FetchState returns the current state of the UTXO set.
	FetchState() (*UtxoSetState, error)

	// FetchStats returns statistics on the current UTXO set.
	FetchStats() (*UtxoStats, error)

	// PutUtxos atomically updates the UTXO set with the entries from the
	// provided map along with the current state.
	PutUtxos(utxos map[wire.OutPoint]*UtxoEntry, state *UtxoSetState) error

	// InitInfo loads (or creates if necessary) the UTXO backend version
	// info.
	InitInfo() error

	// Close closes the backend.
	Close() error
}

// levelDbUtxoBackend implements the UtxoBackend interface using an underlying
// leveldb database instance.
type levelDbUtxoBackend struct {
	// db is the database that contains the UTXO set.  It is set when the
	// instance is created and is not changed afterward.
	db *leveldb.DB
}

// Ensure levelDbUtxoBackend implements the UtxoBackend interface.
var _ UtxoBackend = (*levelDbUtxoBackend)(nil)

// convertLdbErr converts the passed leveldb error into a context error with an
// equivalent error kind and the passed description.  It also sets the passed
// error as the underlying error and adds its error string to the description.
func convertLdbErr(ldbErr error, desc string) ContextError {
	var kind = ErrUtxoBackend
	switch {
	case ldberrors.IsCorrupted(ldbErr):
		kind = ErrUtxoBackendCorruption
	case errors.Is(ldbErr, leveldb.ErrClosed):
		kind = ErrUtxoBackendNotOpen
	}

	desc = fmt.Sprintf("%s: %v", desc, ldbErr)
	err := contextError(kind, desc)
	err.RawErr = ldbErr
	return err
}

// removeRegressionDB removes the existing regression test database if running
// in regression test mode and it already exists.
func removeRegressionDB(net wire.CurrencyNet, dbPath string) error {
	if net != wire.RegNet {
		return nil
	}

	if _, err := os.Stat(dbPath); err == nil {
		log.Infof("Removing regression test database from '%s'", dbPath)
		return os.RemoveAll(dbPath)
	}
	return nil
}

// openLevelDB opens (or creates when needed) the leveldb database at the
// provided path.
func openLevelDB(dbPath string) (*leveldb.DB, error) {
	_, statErr := os.Stat(dbPath)
	dbExists := statErr == nil
	if !dbExists {
		_ = os.MkdirAll(filepath.Dir(dbPath), 0700)
	}

	opts := opt.Options{
		ErrorIfExist: !dbExists,
		Strict:       opt.DefaultStrict,
		Compression:  opt.NoCompression,
		Filter:       filter.NewBloomFilter(10),
	}
	return leveldb.OpenFile(dbPath, &opts)
}

// LoadUtxoDB loads (or creates when needed) the UTXO database and returns a
// handle to it.  The regression test database is removed first so every run
// starts clean.
func LoadUtxoDB(params *chaincfg.Params, dataDir string) (*leveldb.DB, error) {
	dbPath := filepath.Join(dataDir, utxoDbName)
	_ = removeRegressionDB(params.Net, dbPath)

	log.Infof("Loading UTXO database from '%s'", dbPath)
	db, err := openLevelDB(dbPath)
	if err != nil {
		return nil, convertLdbErr(err, "failed to open UTXO database")
	}
	log.Info("UTXO database loaded")
	return db, nil
}

// NewLevelDbUtxoBackend returns a new instance of a backend that uses the
// provided leveldb database for its underlying storage.
func NewLevelDbUtxoBackend(db *leveldb.DB) UtxoBackend {
	return &levelDbUtxoBackend{db: db}
}

// get gets the value for the given key from the leveldb database.  It returns
// nil for both the value and the error if the database does not contain the
// key.
func (l *levelDbUtxoBackend) get(key []byte) ([]byte, error) {
	serialized, err := l.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, nil
		}
		str := fmt.Sprintf("failed to get key %x from leveldb", key)
		return nil, convertLdbErr(err, str)
	}
	return serialized, nil
}

// FetchEntry returns the specified transaction output from the UTXO set.
//
// When there is no entry for the provided output, nil will be returned for both
// the entry and the error.
//
// This function is part of the CoinsView interface.
func (l *levelDbUtxoBackend) FetchEntry(outpoint wire.OutPoint) (*UtxoEntry, error) {
	key := outpointKey(outpoint)
	serializedUtxo, err := l.get(*key)
	recycleOutpointKey(key)
	if err != nil {
		return nil, err
	}
	if serializedUtxo == nil {
		return nil, nil
	}

	// A non-nil zero-length entry means there is an entry in the database
	// for a spent transaction output which should never be the case.
	if len(serializedUtxo) == 0 {
		return nil, AssertError(fmt.Sprintf("database contains entry for "+
			"spent tx output %v", outpoint))
	}

	entry, err := deserializeUtxoEntry(serializedUtxo)
	if err != nil {
		if isDeserializeErr(err) {
			str := fmt.Sprintf("corrupt utxo entry for %v: %v", outpoint, err)
			return nil, contextError(ErrUtxoBackendCorruption, str)
		}
		return nil, err
	}
	return entry, nil
}

// BestHash returns the hash of the block the UTXO set was last flushed at.
//
// This function is part of the CoinsView interface.
func (l *levelDbUtxoBackend) BestHash() chainhash.Hash {
	state, err := l.FetchState()
	if err != nil || state == nil {
		return chainhash.Hash{}
	}
	return state.lastFlushHash
}

// FetchState returns the current state of the UTXO set.  Nil is returned for
// both the state and the error when no state has been written yet.
func (l *levelDbUtxoBackend) FetchState() (*UtxoSetState, error) {
	serialized, err := l.get(utxoSetStateKey)
	if err != nil {
		return nil, err
	}
	if serialized == nil {
		return nil, nil
	}
	state, err := deserializeUtxoSetState(serialized)
	if err != nil {
		str := fmt.Sprintf("corrupt utxo set state: %v", err)
		return nil, contextError(ErrUtxoBackendCorruption, str)
	}
	return state, nil
}

// FetchStats returns statistics on the current UTXO set.
func (l *levelDbUtxoBackend) FetchStats() (*UtxoStats, error) {
	var stats UtxoStats
	iter := l.db.NewIterator(util.BytesPrefix(utxoPrefixUtxoSet), nil)
	defer iter.Release()
	for iter.Next() {
		entry, err := deserializeUtxoEntry(iter.Value())
		if err != nil {
			str := fmt.Sprintf("corrupt utxo entry with key %x: %v",
				iter.Key(), err)
			return nil, contextError(ErrUtxoBackendCorruption, str)
		}
		stats.Utxos++
		stats.Size += int64(len(iter.Key()) + len(iter.Value()))
		stats.Total += entry.Amount()
	}
	if err := iter.Error(); err != nil {
		return nil, convertLdbErr(err, "failed to iterate utxo set")
	}
	return &stats, nil
}

// PutUtxos atomically updates the UTXO set with the entries from the provided
// map along with the current state.  Entries that are spent are deleted.
func (l *levelDbUtxoBackend) PutUtxos(utxos map[wire.OutPoint]*UtxoEntry, state *UtxoSetState) error {
	// A leveldb transaction is used rather than a batch since it uses
	// significantly less memory when atomically updating a large amount of
	// data.
	ldbTx, err := l.db.OpenTransaction()
	if err != nil {
		return convertLdbErr(err, "failed to open leveldb transaction")
	}

	for outpoint, entry := range utxos {
		// Only modified entries need to be written.
		if entry == nil || !entry.isModified() {
			continue
		}

		key := outpointKey(outpoint)
		if entry.IsSpent() {
			err = ldbTx.Delete(*key, nil)
			recycleOutpointKey(key)
		} else {
			// The key is not recycled since leveldb holds on to it until
			// the transaction commits.
			err = ldbTx.Put(*key, serializeUtxoEntry(entry), nil)
		}
		if err != nil {
			ldbTx.Discard()
			return convertLdbErr(err, "failed to write utxo entry")
		}
	}

	err = ldbTx.Put(utxoSetStateKey, serializeUtxoSetState(state), nil)
	if err != nil {
		ldbTx.Discard()
		return convertLdbErr(err, "failed to write utxo set state")
	}

	if err := ldbTx.Commit(); err != nil {
		ldbTx.Discard()
		return convertLdbErr(err, "failed to commit leveldb transaction")
	}
	return nil
}

// BatchWrite writes the modified entries of a cache layer along with the new
// best block.  It allows the backend to serve as the bottom layer of a stack
// of caches.
func (l *levelDbUtxoBackend) BatchWrite(entries map[wire.OutPoint]*UtxoEntry, bestHash chainhash.Hash, bestHeight int64) error {
	return l.PutUtxos(entries, &UtxoSetState{
		lastFlushHeight: uint32(bestHeight),
		lastFlushHash:   bestHash,
	})
}

// InitInfo loads (or creates if necessary) the UTXO backend version info.
func (l *levelDbUtxoBackend) InitInfo() error {
	serialized, err := l.get(utxoDbInfoVersionKey)
	if err != nil {
		return err
	}

	if serialized == nil {
		var version [4]byte
		binary.LittleEndian.PutUint32(version[:], currentUtxoDatabaseVersion)
		var created [8]byte
		binary.LittleEndian.PutUint64(created[:], uint64(time.Now().Unix()))

		batch := new(leveldb.Batch)
		batch.Put(utxoDbInfoVersionKey, version[:])
		batch.Put(utxoDbInfoCreatedKey, created[:])
		if err := l.db.Write(batch, nil); err != nil {
			return convertLdbErr(err, "failed to write utxo database info")
		}
		log.Infof("UTXO database version info created (version %d)",
			currentUtxoDatabaseVersion)
		return nil
	}

	if len(serialized) != 4 {
		return contextError(ErrUtxoBackendCorruption, "malformed utxo "+
			"database version")
	}
	version := binary.LittleEndian.Uint32(serialized)
	if version > currentUtxoDatabaseVersion {
		str := fmt.Sprintf("the current UTXO database is no longer "+
			"compatible with this version of the software (%d > %d)",
			version, currentUtxoDatabaseVersion)
		return contextError(ErrUtxoBackend, str)
	}
	return nil
}

// Close closes the underlying database.
func (l *levelDbUtxoBackend) Close() error {
	return l.db.Close()
}
