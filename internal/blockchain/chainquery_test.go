// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"testing"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/xecnode/xecd/chaincfg"
)

// TestPutNextNeededBlocks ensures the blocks needed to reach the best known
// header are returned in forwards order while skipping the blocks that already
// have their data.
func TestPutNextNeededBlocks(t *testing.T) {
	bc := newFakeChain(chaincfg.RegNetParams())
	nodes := chainedFakeNodes(bc.bestChain.Tip(), 100)
	linked := true
	for i, node := range nodes {
		if i%10 != 3 {
			node.status &^= statusHaveData | statusHaveUndo
			linked = false
		}
		node.isFullyLinked = linked
		bc.index.AddNode(node)
	}

	var want []chainhash.Hash
	for i, node := range nodes {
		if i%10 != 3 {
			want = append(want, node.hash)
		}
	}

	tests := []struct {
		name     string
		numWants int
	}{
		{"no results", 0},
		{"less than the window", 10},
		{"across windows", 40},
		{"more than available", 200},
	}

	for _, test := range tests {
		out := make([]chainhash.Hash, test.numWants)
		got := bc.PutNextNeededBlocks(out)
		wantLen := test.numWants
		if wantLen > len(want) {
			wantLen = len(want)
		}
		if len(got) != wantLen {
			t.Fatalf("%q: unexpected number of results -- got %d, want %d",
				test.name, len(got), wantLen)
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("%q: unexpected hash at index %d -- got %v, want %v",
					test.name, i, got[i], want[i])
			}
		}
	}
}

// TestIsKnownInvalidBlock ensures blocks that failed validation and their
// descendants are reported as invalid while unknown blocks are not.
func TestIsKnownInvalidBlock(t *testing.T) {
	bc := newFakeChain(chaincfg.RegNetParams())
	nodes := chainedFakeNodes(bc.bestChain.Tip(), 5)
	for _, node := range nodes {
		bc.index.AddNode(node)
	}

	bc.index.MarkBlockFailedValidation(nodes[2])
	for i, node := range nodes {
		want := i >= 2
		if got := bc.IsKnownInvalidBlock(&node.hash); got != want {
			t.Errorf("block %d: unexpected invalid state -- got %v, want %v", i,
				got, want)
		}
	}
	if got := bc.BestInvalidHeader(); got != nodes[4].hash {
		t.Fatalf("unexpected best invalid header -- got %v, want %v", got,
			nodes[4].hash)
	}
	if hash, height := bc.BestHeader(); hash != nodes[1].hash || height != 2 {
		t.Fatalf("unexpected best header -- got %v (%d), want %v (2)", hash,
			height, nodes[1].hash)
	}

	var unknown chainhash.Hash
	unknown[0] = 0x01
	if bc.IsKnownInvalidBlock(&unknown) {
		t.Fatal("unknown block reported as invalid")
	}
}
