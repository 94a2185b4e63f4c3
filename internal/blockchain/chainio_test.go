// Copyright (c) 2015-2016 The btcsuite developers
// Copyright (c) 2016-2023 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/wire"
	"github.com/xecnode/xecd/chaincfg"
	"github.com/xecnode/xecd/internal/blockstore"
)

// TestBlockIndexEntrySerialization ensures serializing and deserializing block
// index entries works as expected and that truncated entries are detected.
func TestBlockIndexEntrySerialization(t *testing.T) {
	params := chaincfg.RegNetParams()
	header := params.GenesisBlock.Header
	header.Timestamp = time.Unix(1700000000, 0)
	header.Height = 12345

	tests := []struct {
		name  string
		entry blockIndexEntry
	}{{
		name: "header only",
		entry: blockIndexEntry{
			header:   header,
			validity: validityTree,
			dataPos:  blockstore.NullFilePos,
			undoPos:  blockstore.NullFilePos,
		},
	}, {
		name: "fully validated with data",
		entry: blockIndexEntry{
			header:   header,
			status:   statusHaveData | statusHaveUndo | statusChecked,
			validity: validityScripts,
			dataPos:  blockstore.FilePos{File: 3, Offset: 1048576},
			undoPos:  blockstore.FilePos{File: 3, Offset: 2048},
			numTxns:  2500,
		},
	}, {
		name: "parked with failed parent",
		entry: blockIndexEntry{
			header:   header,
			status:   statusHaveData | statusParked | statusFailedParent,
			validity: validityTransactions,
			dataPos:  blockstore.FilePos{File: 0, Offset: 8},
			undoPos:  blockstore.NullFilePos,
			numTxns:  1,
		},
	}}

	for _, test := range tests {
		serialized, err := serializeBlockIndexEntry(&test.entry)
		if err != nil {
			t.Errorf("%q: unexpected serialize error: %v", test.name, err)
			continue
		}
		if len(serialized) != blockIndexEntrySerializeSize(&test.entry) {
			t.Errorf("%q: mismatched serialize size -- got %d, want %d",
				test.name, len(serialized),
				blockIndexEntrySerializeSize(&test.entry))
			continue
		}

		entry, err := deserializeBlockIndexEntry(serialized)
		if err != nil {
			t.Errorf("%q: unexpected deserialize error: %v", test.name, err)
			continue
		}
		if !reflect.DeepEqual(*entry, test.entry) {
			t.Errorf("%q: mismatched entries\ngot: %s\nwant: %s", test.name,
				spew.Sdump(*entry), spew.Sdump(test.entry))
			continue
		}

		// Ensure every truncation up to the number of transactions is
		// detected.
		for i := 0; i <= blockHdrSize+18; i++ {
			if _, err := deserializeBlockIndexEntry(serialized[:i]); err == nil {
				t.Errorf("%q: no error for entry truncated to %d bytes",
					test.name, i)
				break
			}
		}
	}
}

// TestBlockIndexEntryBadValidity ensures entries with an unknown validity level
// are rejected.
func TestBlockIndexEntryBadValidity(t *testing.T) {
	params := chaincfg.RegNetParams()
	entry := blockIndexEntry{
		header:  params.GenesisBlock.Header,
		dataPos: blockstore.NullFilePos,
		undoPos: blockstore.NullFilePos,
	}
	serialized, err := serializeBlockIndexEntry(&entry)
	if err != nil {
		t.Fatalf("unexpected serialize error: %v", err)
	}
	serialized[blockHdrSize+1] = byte(validityScripts + 1)
	_, err = deserializeBlockIndexEntry(serialized)
	if !isDeserializeErr(err) {
		t.Fatalf("unexpected error -- got %v, want deserialize error", err)
	}
}

// TestChainStateRestart ensures the chain tip, the utxo set, and the block
// index state survive flushing the chain state and loading it again.
func TestChainStateRestart(t *testing.T) {
	params := chaincfg.RegNetParams()
	g := newChainHarness(t, params)

	g.NextBlock("b0", "genesis", nil)
	g.AcceptBlock("b0")
	tipName := g.GenerateChain("bm", "b0", int(params.CoinbaseMaturity))
	out0 := g.CoinbaseOut("b0")
	spend := g.CreateSpendTx(&out0, 1000)
	g.NextBlock("bspend", tipName, []*wire.MsgTx{spend})
	g.AcceptBlock("bspend")

	// Create a side chain and an invalid block so their state must be
	// loaded as well.
	g.NextBlock("bside", tipName, nil)
	g.AcceptedToSideChainWithExpectedTip("bside", "bspend")
	g.NextBlock("bbad", "bspend", nil, func(b *wire.MsgBlock) {
		b.Transactions[0].TxOut[0].Value++
	})
	g.RejectBlock("bbad", ErrBadCoinbaseValue)

	wantSnapshot := *g.chain.BestSnapshot()
	g.Restart()

	g.ExpectTip("bspend")
	gotSnapshot := g.chain.BestSnapshot()
	if gotSnapshot.Hash != wantSnapshot.Hash ||
		gotSnapshot.Height != wantSnapshot.Height ||
		gotSnapshot.TotalTxns != wantSnapshot.TotalTxns {

		t.Fatalf("mismatched best state after restart -- got %+v, want %+v",
			gotSnapshot, wantSnapshot)
	}
	g.ExpectUtxo(out0, false)
	g.ExpectUtxo(makeSpendableOut(spend, 0), true)
	if status := g.ExpectStatus("bbad"); !status.Failed {
		t.Fatalf("unexpected status for bbad after restart: %+v", status)
	}
	if status := g.ExpectStatus("bside"); !status.HaveData || status.InMainChain {
		t.Fatalf("unexpected status for bside after restart: %+v", status)
	}
	g.RejectBlock("bbad", ErrKnownInvalidBlock)

	// The undo data must be usable after the restart, so invalidating the
	// tip restores the spent output.  The side chain block has the same work
	// as the invalidated block, so it becomes the tip.
	bspendHash := g.BlockByName("bspend").BlockHash()
	if err := g.chain.InvalidateBlock(&bspendHash); err != nil {
		t.Fatalf("failed to invalidate bspend: %v", err)
	}
	g.ExpectTip("bside")
	g.ExpectUtxo(out0, true)
	g.ExpectUtxo(makeSpendableOut(spend, 0), false)

	// Reconsidering the block also clears the flags of the invalid block
	// built on it.  That block has the most work, so the chain moves back to
	// the reconsidered block before the invalid one fails again.
	if err := g.chain.ReconsiderBlock(&bspendHash); err != nil {
		t.Fatalf("failed to reconsider bspend: %v", err)
	}
	g.ExpectTip("bspend")
	if status := g.ExpectStatus("bbad"); !status.Failed {
		t.Fatalf("unexpected status for bbad after reconsider: %+v", status)
	}
	g.NextBlock("bnext", "bspend", nil)
	g.AcceptBlock("bnext")
	g.ExpectUtxo(out0, false)
	g.ExpectUtxo(makeSpendableOut(spend, 0), true)
}

// TestRestartReconnectsBlocks ensures blocks that were accepted, but whose
// effects on the utxo set were never flushed, are connected again when the
// chain state is loaded.
func TestRestartReconnectsBlocks(t *testing.T) {
	params := chaincfg.RegNetParams()
	g := newChainHarness(t, params)

	g.GenerateChain("b", "genesis", 3)
	if err := g.chain.FlushStateToDisk(FlushAlways); err != nil {
		t.Fatalf("failed to flush chain state: %v", err)
	}

	// Accept more blocks and simulate an unclean shutdown by only flushing
	// the block index and the block store.
	g.GenerateChain("c", "b2", 2)
	if err := g.chain.index.flush(); err != nil {
		t.Fatalf("failed to flush block index: %v", err)
	}
	if err := g.dbs.store.Sync(); err != nil {
		t.Fatalf("failed to sync block store: %v", err)
	}
	g.dbs.close()
	g.dbs = nil
	g.open()

	g.ExpectTip("c1")
}

// TestOpenWithoutDatabases ensures creating a chain without the required
// databases fails.
func TestOpenWithoutDatabases(t *testing.T) {
	_, err := New(context.Background(), &Config{ChainParams: chaincfg.RegNetParams()})
	var aErr AssertError
	if !errors.As(err, &aErr) {
		t.Fatalf("unexpected error -- got %v, want AssertError", err)
	}
}

// TestNewChainGenesis ensures a chain created on top of empty databases starts
// at the genesis block.
func TestNewChainGenesis(t *testing.T) {
	params := chaincfg.RegNetParams()
	chain, err := chainSetup(t, params)
	if err != nil {
		t.Fatalf("failed to create chain instance: %v", err)
	}

	snapshot := chain.BestSnapshot()
	if snapshot.Hash != params.GenesisHash || snapshot.Height != 0 {
		t.Fatalf("unexpected best state -- got %v (height %d), want %v",
			snapshot.Hash, snapshot.Height, params.GenesisHash)
	}
	if got := chain.UtxoCache().BestHash(); got != params.GenesisHash {
		t.Fatalf("unexpected utxo cache best block -- got %v, want %v", got,
			params.GenesisHash)
	}
	if !chain.HaveBlock(&params.GenesisHash) {
		t.Fatal("genesis block data is not available")
	}
}
