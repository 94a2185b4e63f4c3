// Copyright (c) 2017 The btcsuite developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"reflect"
	"testing"

	"github.com/xecnode/xecd/chaincfg"
)

// zipLocators is a convenience function that returns a single block locator
// given a variable number of them and is used in the tests.
func zipLocators(locators ...BlockLocator) BlockLocator {
	var hashes BlockLocator
	for _, locator := range locators {
		hashes = append(hashes, locator...)
	}
	return hashes
}

// locatorHashes is a convenience function that returns the hashes for all of
// the passed indexes of the provided nodes.  It is used to construct expected
// block locators in the tests.
func locatorHashes(nodes []*blockNode, indexes ...int) BlockLocator {
	hashes := make(BlockLocator, 0, len(indexes))
	for _, idx := range indexes {
		hashes = append(hashes, &nodes[idx].hash)
	}
	return hashes
}

// TestChainView ensures all of the exported functionality of chain views works
// as intended with the exception of some special cases which are handled in
// other tests.
func TestChainView(t *testing.T) {
	// Construct a synthetic block index consisting of the following
	// structure.
	// 0 -> 1 -> 2  -> 3  -> 4
	//       \-> 2a -> 3a -> 4a  -> 5a -> 6a -> 7a -> ... -> 26a
	//             \-> 3a'-> 4a' -> 5a'
	bc := newFakeChain(chaincfg.RegNetParams())
	genesis := bc.bestChain.Tip()
	branch0Nodes := append([]*blockNode{genesis}, chainedFakeNodes(genesis, 4)...)
	branch1Nodes := chainedFakeNodes(branch0Nodes[1], 25)
	branch2Nodes := chainedFakeNodes(branch1Nodes[0], 3)

	tip := branchTip
	view := newChainView(tip(branch0Nodes))
	sideView := newChainView(tip(branch1Nodes))

	if view.Genesis() != branch0Nodes[0] {
		t.Fatalf("unexpected genesis -- got %v, want %v", view.Genesis(),
			branch0Nodes[0])
	}
	if view.Tip() != tip(branch0Nodes) || view.Height() != 4 {
		t.Fatalf("unexpected tip %v (height %d)", view.Tip(), view.Height())
	}
	if sideView.Height() != 26 {
		t.Fatalf("unexpected side view height -- got %d, want 26",
			sideView.Height())
	}

	// Ensure node lookups and containment checks respect the branch of the
	// view.
	for height, node := range branch0Nodes {
		if got := view.NodeByHeight(int64(height)); got != node {
			t.Fatalf("unexpected node at height %d", height)
		}
		if !view.Contains(node) {
			t.Fatalf("view does not contain node at height %d", height)
		}
	}
	if view.Contains(branch1Nodes[0]) || view.NodeByHeight(5) != nil {
		t.Fatal("view contains a node from another branch")
	}
	if !sideView.Contains(branch0Nodes[1]) || sideView.Contains(branch0Nodes[2]) {
		t.Fatal("side view has unexpected shared nodes")
	}

	// Ensure the next node is only available for nodes in the view.
	if got := view.Next(branch0Nodes[1]); got != branch0Nodes[2] {
		t.Fatalf("unexpected next node -- got %v, want %v", got,
			branch0Nodes[2])
	}
	if view.Next(tip(branch0Nodes)) != nil || view.Next(branch1Nodes[0]) != nil {
		t.Fatal("unexpected next node for the tip or a node outside the view")
	}

	// Ensure the fork points are as expected.
	tests := []struct {
		name string
		view *chainView
		node *blockNode
		want *blockNode
	}{{
		name: "node in the view",
		view: view,
		node: branch0Nodes[3],
		want: branch0Nodes[3],
	}, {
		name: "side chain tip",
		view: view,
		node: tip(branch1Nodes),
		want: branch0Nodes[1],
	}, {
		name: "side chain of side chain",
		view: view,
		node: tip(branch2Nodes),
		want: branch0Nodes[1],
	}, {
		name: "main chain tip from side view",
		view: sideView,
		node: tip(branch0Nodes),
		want: branch0Nodes[1],
	}, {
		name: "nested side chain from side view",
		view: sideView,
		node: tip(branch2Nodes),
		want: branch1Nodes[0],
	}, {
		name: "nil node",
		view: view,
		node: nil,
		want: nil,
	}}
	for _, test := range tests {
		if got := test.view.FindFork(test.node); got != test.want {
			t.Errorf("%q: unexpected fork -- got %v, want %v", test.name, got,
				test.want)
		}
	}

	// Moving the tip of the view to another branch updates every lookup.
	view.SetTip(tip(branch2Nodes))
	if view.Height() != 5 || !view.Contains(branch1Nodes[0]) ||
		view.Contains(branch0Nodes[2]) {

		t.Fatal("view was not updated to the new branch")
	}
	if !view.Equals(newChainView(tip(branch2Nodes))) {
		t.Fatal("views with the same tip are not equal")
	}
	if view.Equals(sideView) {
		t.Fatal("views with different tips are equal")
	}
}

// TestChainViewNil ensures that creating and accessing a nil chain view behaves
// as expected.
func TestChainViewNil(t *testing.T) {
	view := newChainView(nil)
	if view.Height() != -1 {
		t.Fatalf("Height: unexpected height -- got %d, want -1",
			view.Height())
	}
	if view.Genesis() != nil || view.Tip() != nil {
		t.Fatal("nil view has a genesis or tip node")
	}

	genesis := chainedFakeSkipListNodes(nil, 1)[0]
	if view.Contains(genesis) || view.Next(genesis) != nil ||
		view.FindFork(genesis) != nil || view.BlockLocator(nil) != nil {

		t.Fatal("nil view unexpectedly has data")
	}
}

// TestBlockLocator ensures block locators contain the last ten blocks followed
// by exponentially spaced blocks back to the genesis block.
func TestBlockLocator(t *testing.T) {
	bc := newFakeChain(chaincfg.RegNetParams())
	genesis := bc.bestChain.Tip()
	mainNodes := append([]*blockNode{genesis}, chainedFakeNodes(genesis, 40)...)
	sideNodes := chainedFakeNodes(mainNodes[20], 5)
	view := newChainView(branchTip(mainNodes))

	tests := []struct {
		name string
		node *blockNode
		want BlockLocator
	}{{
		name: "genesis",
		node: genesis,
		want: locatorHashes(mainNodes, 0),
	}, {
		name: "short chain",
		node: mainNodes[5],
		want: locatorHashes(mainNodes, 5, 4, 3, 2, 1, 0),
	}, {
		name: "tip of the view",
		node: nil,
		want: locatorHashes(mainNodes, 40, 39, 38, 37, 36, 35, 34, 33,
			32, 31, 30, 29, 27, 23, 15, 0),
	}, {
		name: "side chain",
		node: branchTip(sideNodes),
		want: zipLocators(
			locatorHashes(sideNodes, 4, 3, 2, 1, 0),
			locatorHashes(mainNodes, 20, 19, 18, 17, 16, 15, 14, 12, 8, 0)),
	}}

	for _, test := range tests {
		got := view.BlockLocator(test.node)
		if !reflect.DeepEqual(got, test.want) {
			t.Errorf("%q: unexpected locator -- got %d entries, want %d",
				test.name, len(got), len(test.want))
		}
	}
}
