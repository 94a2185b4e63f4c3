// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2023 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/wire"
	"github.com/xecnode/xecd/chaincfg"
)

// TestCheckTransactionSanity ensures the context free transaction checks
// reject malformed transactions with the expected error kinds.
func TestCheckTransactionSanity(t *testing.T) {
	// spendTx returns a transaction that is sane prior to being modified by
	// the tests.
	spendTx := func() *wire.MsgTx {
		tx := wire.NewMsgTx()
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{0x01}},
			Sequence:         wire.MaxTxInSequenceNum,
		})
		tx.AddTxOut(wire.NewTxOut(1000, opTrueScript))
		return tx
	}

	tests := []struct {
		name  string
		munge func(tx *wire.MsgTx)
		err   error
	}{{
		name:  "sane transaction",
		munge: func(tx *wire.MsgTx) {},
		err:   nil,
	}, {
		name:  "no inputs",
		munge: func(tx *wire.MsgTx) { tx.TxIn = nil },
		err:   ErrNoTxInputs,
	}, {
		name:  "no outputs",
		munge: func(tx *wire.MsgTx) { tx.TxOut = nil },
		err:   ErrNoTxOutputs,
	}, {
		name:  "negative output",
		munge: func(tx *wire.MsgTx) { tx.TxOut[0].Value = -1 },
		err:   ErrBadTxOutValue,
	}, {
		name: "output over max",
		munge: func(tx *wire.MsgTx) {
			tx.TxOut[0].Value = dcrutil.MaxAmount + 1
		},
		err: ErrBadTxOutValue,
	}, {
		name: "total outputs over max",
		munge: func(tx *wire.MsgTx) {
			tx.TxOut[0].Value = dcrutil.MaxAmount
			tx.AddTxOut(wire.NewTxOut(1, opTrueScript))
		},
		err: ErrBadTxOutValue,
	}, {
		name: "duplicate inputs",
		munge: func(tx *wire.MsgTx) {
			tx.AddTxIn(&wire.TxIn{
				PreviousOutPoint: tx.TxIn[0].PreviousOutPoint,
			})
		},
		err: ErrDuplicateTxInputs,
	}, {
		name: "null input of non-coinbase",
		munge: func(tx *wire.MsgTx) {
			tx.AddTxIn(&wire.TxIn{
				PreviousOutPoint: wire.OutPoint{Index: math.MaxUint32},
			})
		},
		err: ErrBadTxInput,
	}, {
		name: "coinbase script too short",
		munge: func(tx *wire.MsgTx) {
			tx.TxIn[0].PreviousOutPoint = wire.OutPoint{Index: math.MaxUint32}
			tx.TxIn[0].SignatureScript = []byte{0x01}
		},
		err: ErrBadCoinbaseScriptLen,
	}, {
		name: "coinbase script too long",
		munge: func(tx *wire.MsgTx) {
			tx.TxIn[0].PreviousOutPoint = wire.OutPoint{Index: math.MaxUint32}
			tx.TxIn[0].SignatureScript = make([]byte, MaxCoinbaseScriptLen+1)
		},
		err: ErrBadCoinbaseScriptLen,
	}, {
		name: "coinbase script at max",
		munge: func(tx *wire.MsgTx) {
			tx.TxIn[0].PreviousOutPoint = wire.OutPoint{Index: math.MaxUint32}
			tx.TxIn[0].SignatureScript = make([]byte, MaxCoinbaseScriptLen)
		},
		err: nil,
	}}

	for _, test := range tests {
		tx := spendTx()
		test.munge(tx)
		err := CheckTransactionSanity(tx)
		if !errors.Is(err, test.err) {
			t.Errorf("%q: unexpected error -- got %v, want %v", test.name, err,
				test.err)
		}
	}
}

// TestIsFinalizedTransaction ensures the lock time of transactions is
// interpreted as a height or a time as expected.
func TestIsFinalizedTransaction(t *testing.T) {
	blockTime := time.Unix(1600000000, 0)
	tests := []struct {
		name     string
		lockTime uint32
		sequence uint32
		height   int64
		want     bool
	}{{
		name:     "zero lock time",
		lockTime: 0,
		sequence: 0,
		height:   100,
		want:     true,
	}, {
		name:     "height lock in the past",
		lockTime: 99,
		sequence: 0,
		height:   100,
		want:     true,
	}, {
		name:     "height lock at the block",
		lockTime: 100,
		sequence: 0,
		height:   100,
		want:     false,
	}, {
		name:     "height lock at the block with final sequence",
		lockTime: 100,
		sequence: wire.MaxTxInSequenceNum,
		height:   100,
		want:     true,
	}, {
		name:     "time lock in the past",
		lockTime: uint32(blockTime.Unix() - 1),
		sequence: 0,
		height:   100,
		want:     true,
	}, {
		name:     "time lock in the future",
		lockTime: uint32(blockTime.Unix() + 1),
		sequence: 0,
		height:   100,
		want:     false,
	}, {
		name:     "lock time threshold boundary is a time",
		lockTime: txscript.LockTimeThreshold,
		sequence: 0,
		height:   math.MaxInt32,
		want:     true,
	}}

	for _, test := range tests {
		tx := wire.NewMsgTx()
		tx.LockTime = test.lockTime
		tx.AddTxIn(&wire.TxIn{Sequence: test.sequence})
		got := IsFinalizedTransaction(dcrutil.NewTx(tx), test.height, blockTime)
		if got != test.want {
			t.Errorf("%q: unexpected result -- got %v, want %v", test.name, got,
				test.want)
		}
	}
}

// TestCanonicalOrdering ensures blocks whose transactions after the coinbase
// are not sorted by hash are rejected.
func TestCanonicalOrdering(t *testing.T) {
	params := chaincfg.RegNetParams()
	g := newChainHarness(t, params)

	g.NextBlock("b0", "genesis", nil)
	g.AcceptBlock("b0")
	g.NextBlock("b1", "b0", nil)
	g.AcceptBlock("b1")
	tipName := g.GenerateChain("bm", "b1", int(params.CoinbaseMaturity))
	out0, out1 := g.CoinbaseOut("b0"), g.CoinbaseOut("b1")
	tx0 := g.CreateSpendTx(&out0, 1000)
	tx1 := g.CreateSpendTx(&out1, 1000)

	// Reverse the canonical order of the two transactions.
	g.NextBlock("bunordered", tipName, []*wire.MsgTx{tx0, tx1},
		func(b *wire.MsgBlock) {
			b.Transactions[1], b.Transactions[2] = b.Transactions[2],
				b.Transactions[1]
		})
	g.RejectBlock("bunordered", ErrUnorderedTxns)
	g.ExpectTip(tipName)

	g.NextBlock("bordered", tipName, []*wire.MsgTx{tx0, tx1})
	g.AcceptBlock("bordered")

	// The transactions in the accepted block are sorted.
	txns := g.BlockByName("bordered").Transactions
	h1, h2 := txns[1].TxHash(), txns[2].TxHash()
	if bytes.Compare(h1[:], h2[:]) >= 0 {
		t.Fatalf("accepted block transactions are not sorted: %v, %v", h1, h2)
	}
}

// TestCanonicalOrderingSpendInBlock ensures a transaction may spend the
// output of a transaction that sorts after it in the same block.
func TestCanonicalOrderingSpendInBlock(t *testing.T) {
	params := chaincfg.RegNetParams()
	g := newChainHarness(t, params)

	g.NextBlock("b0", "genesis", nil)
	g.AcceptBlock("b0")
	tipName := g.GenerateChain("bm", "b0", int(params.CoinbaseMaturity))
	out0 := g.CoinbaseOut("b0")
	parent := g.CreateSpendTx(&out0, 1000)
	parentOut := makeSpendableOut(parent, 0)
	g.outputValues[parentOut.prevOut] = parentOut.amount
	child := g.CreateSpendTx(&parentOut, 1000)

	g.NextBlock("bchain", tipName, []*wire.MsgTx{parent, child})
	g.AcceptBlock("bchain")
	g.ExpectUtxo(makeSpendableOut(child, 0), true)
	g.ExpectUtxo(parentOut, false)
}

// TestCoinbaseHeight ensures blocks whose coinbase does not commit to the
// block height are rejected once the rule is active.
func TestCoinbaseHeight(t *testing.T) {
	params := chaincfg.RegNetParams()
	g := newChainHarness(t, params)

	g.NextBlock("b0", "genesis", nil)
	g.AcceptBlock("b0")

	g.NextBlock("bbadheight", "b0", nil, func(b *wire.MsgBlock) {
		script, err := txscript.NewScriptBuilder().AddInt64(7).
			AddData([]byte("xecd")).Script()
		if err != nil {
			t.Fatalf("unable to build script: %v", err)
		}
		b.Transactions[0].TxIn[0].SignatureScript = script
	})
	g.RejectBlock("bbadheight", ErrBadCoinbaseHeight)
	g.ExpectTip("b0")
}

// TestDuplicateTxOverwrite ensures a block recreating an unspent output is
// rejected before the height the check is bypassed at and accepted after it.
func TestDuplicateTxOverwrite(t *testing.T) {
	// Disable the coinbase height commitment so a coinbase can be repeated
	// and make the overwrite check end at a low height.
	params := chaincfg.RegNetParams()
	params.BIP34Height = 1000
	params.BIP30BypassHeight = 3
	g := newChainHarness(t, params)

	g.NextBlock("b1", "genesis", nil)
	g.AcceptBlock("b1")
	dupCoinbase := g.BlockByName("b1").Transactions[0]
	reuseCoinbase := func(b *wire.MsgBlock) {
		b.Transactions[0] = dupCoinbase.Copy()
	}

	// ---------------------------------------------------------------------
	// A block at height 2 repeating the unspent coinbase of b1 is rejected.
	// ---------------------------------------------------------------------

	g.NextBlock("b2dup", "b1", nil, reuseCoinbase)
	g.RejectBlock("b2dup", ErrOverwriteTx)
	g.ExpectTip("b1")
	g.ExpectUtxo(g.CoinbaseOut("b1"), true)

	// ---------------------------------------------------------------------
	// A block at height 3 doing the same is accepted.
	// ---------------------------------------------------------------------

	g.NextBlock("b2", "b1", nil)
	g.AcceptBlock("b2")
	g.NextBlock("b3dup", "b2", nil, reuseCoinbase)
	g.AcceptBlock("b3dup")

	// The output now belongs to the later block.
	entry, err := g.chain.FetchUtxoEntry(g.CoinbaseOut("b1").prevOut)
	if err != nil {
		t.Fatalf("unable to fetch utxo: %v", err)
	}
	if entry == nil || entry.BlockHeight() != 3 {
		t.Fatalf("unexpected utxo entry for the repeated coinbase: %v", entry)
	}
}
