// Copyright (c) 2014 The btcsuite developers
// Copyright (c) 2015-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"testing"
	"time"

	"github.com/xecnode/xecd/chaincfg"
)

// TestCalcNextRequiredDiffNoRetarget ensures networks without retargeting
// keep the difficulty of the parent and the genesis block uses the proof of
// work limit.
func TestCalcNextRequiredDiffNoRetarget(t *testing.T) {
	params := chaincfg.RegNetParams()
	bc := newFakeChain(params)
	genesis := bc.bestChain.Tip()

	if got := bc.calcNextRequiredDifficulty(nil, time.Now()); got != params.PowLimitBits {
		t.Fatalf("unexpected genesis difficulty -- got %08x, want %08x", got,
			params.PowLimitBits)
	}

	node := newFakeNode(genesis, 4, 0x1e00ffff, time.Unix(genesis.timestamp+600, 0))
	bc.index.AddNode(node)

	// Even a block far in the future keeps the difficulty of the parent.
	blockTime := time.Unix(node.timestamp, 0).Add(24 * time.Hour)
	if got := bc.calcNextRequiredDifficulty(node, blockTime); got != node.bits {
		t.Fatalf("unexpected difficulty -- got %08x, want %08x", got, node.bits)
	}
}

// TestCalcNextRequiredDiffMinDifficulty ensures networks that allow minimum
// difficulty blocks only do so once enough time passed since the parent.
func TestCalcNextRequiredDiffMinDifficulty(t *testing.T) {
	params := chaincfg.RegNetParams()
	params.NoDifficultyAdjustment = false
	params.AxionHeight = 1000
	bc := newFakeChain(params)
	genesis := bc.bestChain.Tip()

	const bits = 0x1e00ffff
	node := newFakeNode(genesis, 4, bits, time.Unix(genesis.timestamp+600, 0))
	bc.index.AddNode(node)
	parentTime := time.Unix(node.timestamp, 0)

	tests := []struct {
		name      string
		blockTime time.Time
		want      uint32
	}{{
		name:      "regular block",
		blockTime: parentTime.Add(params.TargetTimePerBlock),
		want:      bits,
	}, {
		name:      "exactly at the reduction time",
		blockTime: parentTime.Add(params.MinDiffReductionTime),
		want:      bits,
	}, {
		name:      "after the reduction time",
		blockTime: parentTime.Add(params.MinDiffReductionTime + time.Second),
		want:      params.PowLimitBits,
	}}

	for _, test := range tests {
		got := bc.calcNextRequiredDifficulty(node, test.blockTime)
		if got != test.want {
			t.Errorf("%q: unexpected difficulty -- got %08x, want %08x",
				test.name, got, test.want)
		}
	}
}

// TestCalcNextRequiredDiffASERT ensures the absolutely scheduled difficulty
// algorithm keeps the anchor difficulty for blocks that are on schedule and
// doubles or halves the target for every half life the chain is behind or
// ahead of schedule.
func TestCalcNextRequiredDiffASERT(t *testing.T) {
	const anchorBits = 0x1d00ffff
	params := chaincfg.RegNetParams()
	params.NoDifficultyAdjustment = false
	params.ReduceMinDifficulty = false
	genesisTime := params.GenesisBlock.Header.Timestamp.Unix()
	targetSecs := int64(params.TargetTimePerBlock / time.Second)
	halfLife := int64(params.ASERTHalfLife / time.Second)
	params.ASERTAnchor = &chaincfg.ASERTAnchor{
		Height:        0,
		Bits:          anchorBits,
		PrevBlockTime: genesisTime - targetSecs,
	}

	tests := []struct {
		name   string
		offset int64
		want   uint32
	}{{
		name:   "on schedule",
		offset: 0,
		want:   anchorBits,
	}, {
		name:   "one half life behind schedule",
		offset: halfLife,
		want:   0x1d01fffe,
	}, {
		name:   "one half life ahead of schedule",
		offset: -halfLife,
		want:   0x1c7fff80,
	}}

	for _, test := range tests {
		bc := newFakeChain(params)
		node := bc.bestChain.Tip()
		const numBlocks = 10
		for i := int64(1); i <= numBlocks; i++ {
			timestamp := genesisTime + i*targetSecs
			if i == numBlocks {
				timestamp += test.offset
			}
			node = newFakeNode(node, 4, anchorBits, time.Unix(timestamp, 0))
			bc.index.AddNode(node)
		}

		blockTime := time.Unix(node.timestamp+targetSecs, 0)
		got := bc.calcNextRequiredDifficulty(node, blockTime)
		if got != test.want {
			t.Errorf("%q: unexpected difficulty -- got %08x, want %08x",
				test.name, got, test.want)
		}
	}
}
