// Copyright (c) 2016 The btcsuite developers
// Copyright (c) 2017-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"encoding/hex"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/txscript/v4/sign"
	"github.com/decred/dcrd/txscript/v4/stdaddr"
	"github.com/decred/dcrd/wire"
	"github.com/xecnode/xecd/chaincfg"
	"github.com/xecnode/xecd/internal/blockchain"
)

const (
	// defaultTxFee is the fee paid by the transactions created by the pool
	// harness unless a test requests a specific one.  It comfortably covers
	// the minimum relay fee of the harness transactions.
	defaultTxFee = 10000

	// testScriptFlags are the script verification flags used by the fake
	// chain.
	testScriptFlags = blockchain.ScriptVerifyP2SH |
		blockchain.ScriptVerifyStrictEnc | blockchain.ScriptVerifyDERSig |
		blockchain.ScriptVerifyLowS | blockchain.ScriptVerifyMinimalData |
		blockchain.ScriptVerifySigPushOnly | blockchain.ScriptVerifyCleanStack |
		blockchain.ScriptVerifyCheckLockTimeVerify |
		blockchain.ScriptVerifyCheckSequenceVerify |
		blockchain.ScriptReportSigChecks
)

// fakeChain is used by the pool harness to provide generated test utxos and
// a current faked chain height to the pool callbacks.  This, in turn, allows
// transactions to be appear as though they are spending completely valid utxos.
type fakeChain struct {
	sync.RWMutex
	utxos         map[wire.OutPoint]*blockchain.UtxoEntry
	utxoTimes     map[wire.OutPoint]int64
	currentHash   chainhash.Hash
	currentHeight int64
	medianTime    time.Time
	scriptFlags   blockchain.ScriptFlags
}

// FetchUtxoEntry returns a copy of the unspent output for the passed outpoint
// from the fake chain or nil when it does not exist.
func (s *fakeChain) FetchUtxoEntry(outpoint wire.OutPoint) (*blockchain.UtxoEntry, error) {
	s.RLock()
	defer s.RUnlock()

	entry, ok := s.utxos[outpoint]
	if !ok {
		return nil, nil
	}
	return entry.Clone(), nil
}

// AddUtxos adds the outputs of the passed transaction to the fake chain as if
// they were mined at the passed height.
func (s *fakeChain) AddUtxos(tx *dcrutil.Tx, height int64, isCoinBase bool) {
	s.Lock()
	outpoint := wire.OutPoint{Hash: *tx.Hash(), Tree: wire.TxTreeRegular}
	for i, txOut := range tx.MsgTx().TxOut {
		outpoint.Index = uint32(i)
		s.utxos[outpoint] = blockchain.NewUtxoEntry(txOut, height, isCoinBase)
	}
	s.Unlock()
}

// BestHash returns the current best hash associated with the fake chain
// instance.
func (s *fakeChain) BestHash() chainhash.Hash {
	s.RLock()
	hash := s.currentHash
	s.RUnlock()
	return hash
}

// BestHeight returns the current height associated with the fake chain
// instance.
func (s *fakeChain) BestHeight() int64 {
	s.RLock()
	height := s.currentHeight
	s.RUnlock()
	return height
}

// SetHeight sets the current height associated with the fake chain instance.
func (s *fakeChain) SetHeight(height int64) {
	s.Lock()
	s.currentHeight = height
	s.Unlock()
}

// PastMedianTime returns the current median time associated with the fake
// chain instance.
func (s *fakeChain) PastMedianTime() time.Time {
	s.RLock()
	medianTime := s.medianTime
	s.RUnlock()
	return medianTime
}

// SetPastMedianTime sets the current median time associated with the fake
// chain instance.
func (s *fakeChain) SetPastMedianTime(medianTime time.Time) {
	s.Lock()
	s.medianTime = medianTime
	s.Unlock()
}

// CalcSequenceLock returns the current sequence lock for the passed transaction
// associated with the fake chain instance.
func (s *fakeChain) CalcSequenceLock(tx *dcrutil.Tx, entries []*blockchain.UtxoEntry) *blockchain.SequenceLock {
	// A value of -1 for each lock type allows a transaction to be included in a
	// block at any given height or time.
	sequenceLock := &blockchain.SequenceLock{MinHeight: -1, MinTime: -1}

	// Sequence locks do not apply if the tx version is less than 2.
	msgTx := tx.MsgTx()
	if msgTx.Version < 2 {
		return sequenceLock
	}

	nextHeight := s.BestHeight() + 1
	for txInIndex, txIn := range msgTx.TxIn {
		// Nothing to calculate for this input when relative time locks are
		// disabled for it.
		sequenceNum := txIn.Sequence
		if sequenceNum&wire.SequenceLockTimeDisabled != 0 {
			continue
		}

		// Calculate the sequence locks from the point of view of the next block
		// for inputs that are in the mempool.
		inputHeight := entries[txInIndex].BlockHeight()
		if inputHeight > nextHeight {
			inputHeight = nextHeight
		}

		// Mask off the value portion of the sequence number to obtain
		// the time lock delta required before this input can be spent.
		// The relative lock can be time based or block based.
		relativeLock := int64(sequenceNum & wire.SequenceLockTimeMask)

		if sequenceNum&wire.SequenceLockTimeIsSeconds != 0 {
			// Ordinarily time based relative locks determine the median time
			// for the block before the one the input was mined into, however,
			// in order to facilitate testing the fake chain instance instead
			// allows callers to directly set median times associated with fake
			// utxos and looks up those values here.
			medianTime := s.FakeUtxoMedianTime(&txIn.PreviousOutPoint)
			relativeSecs := relativeLock << wire.SequenceLockTimeGranularity
			minTime := medianTime + relativeSecs - 1
			if minTime > sequenceLock.MinTime {
				sequenceLock.MinTime = minTime
			}
		} else {
			minHeight := inputHeight + relativeLock - 1
			if minHeight > sequenceLock.MinHeight {
				sequenceLock.MinHeight = minHeight
			}
		}
	}

	return sequenceLock
}

// StandardVerifyFlags returns the standard verification script flags associated
// with the fake chain instance.
func (s *fakeChain) StandardVerifyFlags() blockchain.ScriptFlags {
	return s.scriptFlags
}

// FakeUtxoMedianTime returns the median time associated with the requested utxo
// from the fake chain instance.
func (s *fakeChain) FakeUtxoMedianTime(prevOut *wire.OutPoint) int64 {
	s.RLock()
	medianTime := s.utxoTimes[*prevOut]
	s.RUnlock()
	return medianTime
}

// AddFakeUtxoMedianTime adds a median time to the fake chain instance that will
// be used when querying the median time for the provided outpoint when
// calculating by-time sequence locks.
func (s *fakeChain) AddFakeUtxoMedianTime(prevOut wire.OutPoint, medianTime time.Time) {
	s.Lock()
	s.utxoTimes[prevOut] = medianTime.Unix()
	s.Unlock()
}

// spendableOutput is a convenience type that houses a particular utxo and the
// amount associated with it.
type spendableOutput struct {
	outPoint wire.OutPoint
	amount   dcrutil.Amount
}

// txOutToSpendableOut returns a spendable output given a transaction and index
// of the output to use.  This is useful as a convenience when creating test
// transactions.
func txOutToSpendableOut(tx *dcrutil.Tx, outputNum uint32) spendableOutput {
	return spendableOutput{
		outPoint: wire.OutPoint{Hash: *tx.Hash(), Index: outputNum,
			Tree: wire.TxTreeRegular},
		amount: dcrutil.Amount(tx.MsgTx().TxOut[outputNum].Value),
	}
}

// poolHarness provides a harness that includes functionality for creating and
// signing transactions as well as a fake chain that provides utxos for use in
// generating valid transactions.
type poolHarness struct {
	// signKey is the signing key used for creating transactions throughout
	// the tests.
	//
	// payScript is the pay-to-pubkey-hash script for the signing key and is
	// used for the payments throughout the tests.
	signKey     []byte
	payScript   []byte
	chainParams *chaincfg.Params

	chain  *fakeChain
	txPool *TxPool

	// removed records the reason each transaction left the pool.
	removed map[chainhash.Hash]RemovalReason

	// undo holds the outputs spent by each connected block.
	undo       map[chainhash.Hash]map[wire.OutPoint]*blockchain.UtxoEntry
	extraNonce int64
}

// CreateCoinbaseTx returns a coinbase transaction with the requested number of
// outputs paying to the script associated with the harness.  It automatically
// uses a standard signature script that starts with the required block height.
func (p *poolHarness) CreateCoinbaseTx(blockHeight int64, numOutputs uint32) (*dcrutil.Tx, error) {
	// Create standard coinbase script.
	p.extraNonce++
	coinbaseScript, err := txscript.NewScriptBuilder().
		AddInt64(blockHeight).AddInt64(p.extraNonce).Script()
	if err != nil {
		return nil, err
	}

	tx := wire.NewMsgTx()
	tx.AddTxIn(&wire.TxIn{
		// Coinbase transactions have no inputs, so previous outpoint is
		// zero hash and max index.
		PreviousOutPoint: *wire.NewOutPoint(&chainhash.Hash{},
			wire.MaxPrevOutIndex, wire.TxTreeRegular),
		SignatureScript: coinbaseScript,
		Sequence:        wire.MaxTxInSequenceNum,
	})
	for i := uint32(0); i < numOutputs; i++ {
		tx.AddTxOut(&wire.TxOut{
			PkScript: p.payScript,
			Value:    1000000000,
		})
	}

	return dcrutil.NewTx(tx), nil
}

// CreateSignedTx creates a new signed transaction that consumes the provided
// inputs and generates the provided number of outputs by evenly splitting the
// total input amount less the passed fee.  All outputs will be to the payment
// script associated with the harness and all inputs are assumed to do the
// same.
//
// Additionally, if one or more munge functions are specified, they will be
// invoked with the transaction prior to signing it.  This provides callers with
// the opportunity to modify the transaction which is especially useful for
// testing.
func (p *poolHarness) CreateSignedTx(inputs []spendableOutput, numOutputs uint32, fee int64, mungers ...func(*wire.MsgTx)) (*dcrutil.Tx, error) {
	// Calculate the total input amount and split it amongst the requested
	// number of outputs.
	var totalInput dcrutil.Amount
	for _, input := range inputs {
		totalInput += input.amount
	}
	totalOutput := int64(totalInput) - fee
	amountPerOutput := totalOutput / int64(numOutputs)
	remainder := totalOutput % int64(numOutputs)

	tx := wire.NewMsgTx()
	for _, input := range inputs {
		tx.AddTxIn(&wire.TxIn{
			PreviousOutPoint: input.outPoint,
			SignatureScript:  nil,
			Sequence:         wire.MaxTxInSequenceNum,
			ValueIn:          int64(input.amount),
		})
	}
	for i := uint32(0); i < numOutputs; i++ {
		// Ensure the final output accounts for any remainder that might
		// be left from splitting the input amount.
		amount := amountPerOutput
		if i == numOutputs-1 {
			amount += remainder
		}
		tx.AddTxOut(&wire.TxOut{
			PkScript: p.payScript,
			Value:    amount,
		})
	}

	// Perform any transaction munging just before signing.
	for _, f := range mungers {
		f(tx)
	}

	// Sign the new transaction.
	for i := range tx.TxIn {
		sigScript, err := sign.SignatureScript(tx, i, p.payScript,
			txscript.SigHashAll, p.signKey, dcrec.STEcdsaSecp256k1, true)
		if err != nil {
			return nil, err
		}
		tx.TxIn[i].SignatureScript = sigScript
	}

	return dcrutil.NewTx(tx), nil
}

// CreateTxChain creates a chain of transactions with the first one spending
// the provided outpoint.  Each transaction spends the entire amount of the
// previous one less the default fee.
func (p *poolHarness) CreateTxChain(firstOutput spendableOutput, numTxns uint32) ([]*dcrutil.Tx, error) {
	txChain := make([]*dcrutil.Tx, 0, numTxns)
	spendable := firstOutput
	for i := uint32(0); i < numTxns; i++ {
		tx, err := p.CreateSignedTx([]spendableOutput{spendable}, 1,
			defaultTxFee)
		if err != nil {
			return nil, err
		}
		txChain = append(txChain, tx)

		// Next transaction uses outputs from this one.
		spendable = txOutToSpendableOut(tx, 0)
	}

	return txChain, nil
}

// CreateTx creates a regular transaction paying the default fee from the
// provided spendable output.
func (p *poolHarness) CreateTx(out spendableOutput) (*dcrutil.Tx, error) {
	return p.CreateSignedTx([]spendableOutput{out}, 1, defaultTxFee)
}

// ConnectBlock connects a block with the passed transactions to the fake chain
// and informs the pool about it.  It returns the block along with the orphans
// the pool accepted as a result.
func (p *poolHarness) ConnectBlock(txns ...*dcrutil.Tx) (*dcrutil.Block, []*dcrutil.Tx, error) {
	height := p.chain.BestHeight() + 1
	coinbase, err := p.CreateCoinbaseTx(height, 1)
	if err != nil {
		return nil, nil, err
	}
	msgBlock := &wire.MsgBlock{
		Header: wire.BlockHeader{
			PrevBlock: p.chain.BestHash(),
			Height:    uint32(height),
		},
	}
	msgBlock.AddTransaction(coinbase.MsgTx())
	for _, tx := range txns {
		msgBlock.AddTransaction(tx.MsgTx())
	}
	block := dcrutil.NewBlock(msgBlock)

	spent := make(map[wire.OutPoint]*blockchain.UtxoEntry)
	p.chain.Lock()
	for _, tx := range txns {
		for _, txIn := range tx.MsgTx().TxIn {
			if entry, ok := p.chain.utxos[txIn.PreviousOutPoint]; ok {
				spent[txIn.PreviousOutPoint] = entry
				delete(p.chain.utxos, txIn.PreviousOutPoint)
			}
		}
	}
	p.chain.currentHash = *block.Hash()
	p.chain.currentHeight = height
	p.chain.Unlock()
	for _, tx := range txns {
		p.chain.AddUtxos(tx, height, false)
	}
	p.undo[*block.Hash()] = spent

	return block, p.txPool.RemoveForBlock(block), nil
}

// DisconnectBlock removes the passed block, which must be the tip, from the
// fake chain and returns a buffer with its transactions.  The pool is not
// informed.
func (p *poolHarness) DisconnectBlock(block *dcrutil.Block) *blockchain.DisconnectedTransactions {
	p.chain.Lock()
	for _, tx := range block.Transactions()[1:] {
		outpoint := wire.OutPoint{Hash: *tx.Hash(), Tree: wire.TxTreeRegular}
		for i := range tx.MsgTx().TxOut {
			outpoint.Index = uint32(i)
			delete(p.chain.utxos, outpoint)
		}
	}
	for outpoint, entry := range p.undo[*block.Hash()] {
		p.chain.utxos[outpoint] = entry
	}
	p.chain.currentHash = block.MsgBlock().Header.PrevBlock
	p.chain.currentHeight--
	p.chain.Unlock()

	disconnected := blockchain.NewDisconnectedTransactions()
	disconnected.AddBlock(block)
	return disconnected
}

// newPoolHarness returns a new instance of a pool harness initialized with a
// fake chain and a TxPool bound to it that is configured with a policy suitable
// for testing.  Also, the fake chain is populated with the returned spendable
// outputs so the caller can easily create new valid transactions which build
// off of it.
func newPoolHarness(chainParams *chaincfg.Params) (*poolHarness, []spendableOutput, error) {
	// Use a hard coded key pair for deterministic results.
	keyBytes, err := hex.DecodeString("700868df1838811ffbdf918fb482c1f7e" +
		"ad62db4b97bd7012c23e726485e577d")
	if err != nil {
		return nil, nil, err
	}
	signPub := secp256k1.PrivKeyFromBytes(keyBytes).PubKey()

	// Generate the associated pay-to-pubkey-hash script.
	h160 := stdaddr.Hash160(signPub.SerializeCompressed())
	payScript, err := txscript.NewScriptBuilder().AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).AddData(h160).
		AddOp(txscript.OP_EQUALVERIFY).AddOp(txscript.OP_CHECKSIG).Script()
	if err != nil {
		return nil, nil, err
	}

	// Create a new fake chain and harness bound to it.
	chain := &fakeChain{
		utxos:       make(map[wire.OutPoint]*blockchain.UtxoEntry),
		utxoTimes:   make(map[wire.OutPoint]int64),
		scriptFlags: testScriptFlags,
	}
	harness := &poolHarness{
		signKey:     keyBytes,
		payScript:   payScript,
		chainParams: chainParams,
		chain:       chain,
		removed:     make(map[chainhash.Hash]RemovalReason),
		undo:        make(map[chainhash.Hash]map[wire.OutPoint]*blockchain.UtxoEntry),
	}
	harness.txPool = New(&Config{
		Policy: Policy{
			MaxTxVersion:        DefaultMaxTxVersion,
			MaxOrphanTxs:        5,
			MaxOrphanTxSize:     1000,
			MaxSigChecksPerTx:   DefaultMaxSigChecksPerTx,
			MinRelayTxFee:       DefaultMinRelayTxFee,
			MempoolExpiry:       DefaultMempoolExpiry,
			StandardVerifyFlags: chain.StandardVerifyFlags,
		},
		ChainParams:      chainParams,
		FetchUtxoEntry:   chain.FetchUtxoEntry,
		BestHash:         chain.BestHash,
		BestHeight:       chain.BestHeight,
		PastMedianTime:   chain.PastMedianTime,
		CalcSequenceLock: chain.CalcSequenceLock,
		OnTxRemoved: func(tx *dcrutil.Tx, reason RemovalReason) {
			harness.removed[*tx.Hash()] = reason
		},
	})

	// Create a single coinbase transaction and add it to the harness
	// chain's utxo set and set the harness chain height such that the
	// coinbase will mature in the next block.  This ensures the txpool
	// accepts transactions which spend immature coinbases that will become
	// mature in the next block.
	numOutputs := uint32(10)
	outputs := make([]spendableOutput, 0, numOutputs)
	coinbase, err := harness.CreateCoinbaseTx(1, numOutputs)
	if err != nil {
		return nil, nil, err
	}
	harness.chain.AddUtxos(coinbase, 1, true)
	for i := uint32(0); i < numOutputs; i++ {
		outputs = append(outputs, txOutToSpendableOut(coinbase, i))
	}
	harness.chain.SetHeight(int64(chainParams.CoinbaseMaturity))
	harness.chain.SetPastMedianTime(time.Unix(1700000000, 0))

	return harness, outputs, nil
}

// testContext houses a test-related state that is useful to pass to helper
// functions as a single argument.
type testContext struct {
	t       *testing.T
	harness *poolHarness
}

// testPoolMembership tests the transaction pool associated with the provided
// test context to determine if the passed transaction matches the provided
// orphan pool and transaction pool status.  It also further determines if it
// should be reported as available by the HaveTransaction function based upon
// the two flags and tests that condition as well.
func testPoolMembership(tc *testContext, tx *dcrutil.Tx, inOrphanPool, inTxPool bool) {
	txHash := tx.Hash()
	gotOrphanPool := tc.harness.txPool.IsOrphanInPool(txHash)
	if inOrphanPool != gotOrphanPool {
		_, file, line, _ := runtime.Caller(1)
		tc.t.Fatalf("%s:%d -- IsOrphanInPool: want %v, got %v", file,
			line, inOrphanPool, gotOrphanPool)
	}

	gotTxPool := tc.harness.txPool.IsTransactionInPool(txHash)
	if inTxPool != gotTxPool {
		_, file, line, _ := runtime.Caller(1)
		tc.t.Fatalf("%s:%d -- IsTransactionInPool: want %v, got %v",
			file, line, inTxPool, gotTxPool)
	}

	gotHaveTx := tc.harness.txPool.HaveTransaction(txHash)
	wantHaveTx := inOrphanPool || inTxPool
	if wantHaveTx != gotHaveTx {
		_, file, line, _ := runtime.Caller(1)
		tc.t.Fatalf("%s:%d -- HaveTransaction: want %v, got %v", file,
			line, wantHaveTx, gotHaveTx)
	}
}

// testRemovalReason ensures the passed transaction left the pool for the
// expected reason.
func testRemovalReason(tc *testContext, tx *dcrutil.Tx, want RemovalReason) {
	got, ok := tc.harness.removed[*tx.Hash()]
	if !ok {
		_, file, line, _ := runtime.Caller(1)
		tc.t.Fatalf("%s:%d -- transaction %v was not removed", file, line,
			tx.Hash())
	}
	if got != want {
		_, file, line, _ := runtime.Caller(1)
		tc.t.Fatalf("%s:%d -- unexpected removal reason for %v: want %v, "+
			"got %v", file, line, tx.Hash(), want, got)
	}
}

// TestSimpleOrphanChain ensures that a simple chain of orphans is handled
// properly.  In particular, it generates a chain of single input, single output
// transactions and inserts them while skipping the first linking transaction so
// they are all orphans.  Finally, it adds the linking transaction and ensures
// the entire orphan chain is moved to the transaction pool.
func TestSimpleOrphanChain(t *testing.T) {
	t.Parallel()

	harness, spendableOuts, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}
	tc := &testContext{t, harness}

	// Create a chain of transactions rooted with the first spendable output
	// provided by the harness.
	maxOrphans := uint32(harness.txPool.cfg.Policy.MaxOrphanTxs)
	chainedTxns, err := harness.CreateTxChain(spendableOuts[0], maxOrphans+1)
	if err != nil {
		t.Fatalf("unable to create transaction chain: %v", err)
	}

	// Ensure the orphans are accepted (only up to the maximum allowed so
	// none are evicted).
	for _, tx := range chainedTxns[1 : maxOrphans+1] {
		acceptedTxns, err := harness.txPool.ProcessTransaction(tx, true,
			false, 0)
		if err != nil {
			t.Fatalf("ProcessTransaction: failed to accept valid "+
				"orphan %v", err)
		}

		// Ensure no transactions were reported as accepted.
		if len(acceptedTxns) != 0 {
			t.Fatalf("ProcessTransaction: reported %d accepted "+
				"transactions from what should be an orphan",
				len(acceptedTxns))
		}

		// Ensure the transaction is in the orphan pool, is not in the
		// transaction pool, and is reported as available.
		testPoolMembership(tc, tx, true, false)
	}

	// Add the transaction which completes the orphan chain and ensure they
	// all get accepted.  Notice the accept orphans flag is also false here
	// to ensure it has no bearing on whether or not already existing
	// orphans in the pool are linked.
	acceptedTxns, err := harness.txPool.ProcessTransaction(chainedTxns[0],
		false, false, 0)
	if err != nil {
		t.Fatalf("ProcessTransaction: failed to accept valid "+
			"orphan %v", err)
	}
	if len(acceptedTxns) != len(chainedTxns) {
		t.Fatalf("ProcessTransaction: reported accepted transactions "+
			"length does not match expected -- got %d, want %d",
			len(acceptedTxns), len(chainedTxns))
	}
	for i, tx := range acceptedTxns {
		// Ensure the transaction is no longer in the orphan pool, is
		// now in the transaction pool, and is reported as available.
		testPoolMembership(tc, tx, false, true)
		if *tx.Hash() != *chainedTxns[i].Hash() {
			t.Fatalf("accepted transaction %d is %v, want %v", i,
				tx.Hash(), chainedTxns[i].Hash())
		}
	}
	if got := harness.txPool.Count(); got != len(chainedTxns) {
		t.Fatalf("unexpected pool count -- got %d, want %d", got,
			len(chainedTxns))
	}
}

// TestOrphanReject ensures that orphans are properly rejected when the allow
// orphans flag is not set on ProcessTransaction.
func TestOrphanReject(t *testing.T) {
	t.Parallel()

	harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}
	tc := &testContext{t, harness}

	// Create a chain of transactions rooted with the first spendable output
	// provided by the harness.
	maxOrphans := uint32(harness.txPool.cfg.Policy.MaxOrphanTxs)
	chainedTxns, err := harness.CreateTxChain(outputs[0], maxOrphans+1)
	if err != nil {
		t.Fatalf("unable to create transaction chain: %v", err)
	}

	// Ensure orphans are rejected when the allow orphans flag is not set.
	for _, tx := range chainedTxns[1:] {
		acceptedTxns, err := harness.txPool.ProcessTransaction(tx, false,
			false, 0)
		if !errors.Is(err, ErrOrphan) {
			t.Fatalf("ProcessTransaction: did not fail on orphan "+
				"%v when allow orphans flag is false", tx.Hash())
		}

		// Ensure no transactions were reported as accepted.
		if len(acceptedTxns) != 0 {
			t.Fatalf("ProcessTransaction: reported %d accepted "+
				"transactions from failed orphan attempt",
				len(acceptedTxns))
		}

		// Ensure the transaction is not in the orphan pool, not in the
		// transaction pool, and not reported as available
		testPoolMembership(tc, tx, false, false)
	}
}

// TestOrphanEviction ensures that exceeding the maximum number of orphans
// evicts entries to make room for the new ones.
func TestOrphanEviction(t *testing.T) {
	t.Parallel()

	harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}
	tc := &testContext{t, harness}

	// Create a chain of transactions rooted with the first spendable output
	// provided by the harness that is long enough to be able to force
	// several orphan evictions.
	maxOrphans := uint32(harness.txPool.cfg.Policy.MaxOrphanTxs)
	chainedTxns, err := harness.CreateTxChain(outputs[0], maxOrphans+5)
	if err != nil {
		t.Fatalf("unable to create transaction chain: %v", err)
	}

	// Add enough orphans to exceed the max allowed while ensuring they are
	// all accepted.  This will cause an eviction.
	for _, tx := range chainedTxns[1:] {
		acceptedTxns, err := harness.txPool.ProcessTransaction(tx, true,
			false, 0)
		if err != nil {
			t.Fatalf("ProcessTransaction: failed to accept valid "+
				"orphan %v", err)
		}

		// Ensure no transactions were reported as accepted.
		if len(acceptedTxns) != 0 {
			t.Fatalf("ProcessTransaction: reported %d accepted "+
				"transactions from what should be an orphan",
				len(acceptedTxns))
		}

		// Ensure the transaction is in the orphan pool, is not in the
		// transaction pool, and is reported as available.
		testPoolMembership(tc, tx, true, false)
	}

	// Figure out which transactions were evicted and make sure the number
	// evicted matches the expected number.
	var evictedTxns []*dcrutil.Tx
	for _, tx := range chainedTxns[1:] {
		if !harness.txPool.IsOrphanInPool(tx.Hash()) {
			evictedTxns = append(evictedTxns, tx)
		}
	}
	expectedEvictions := len(chainedTxns) - 1 - int(maxOrphans)
	if len(evictedTxns) != expectedEvictions {
		t.Fatalf("unexpected number of evictions -- got %d, want %d",
			len(evictedTxns), expectedEvictions)
	}

	// Ensure none of the evicted transactions ended up in the transaction
	// pool.
	for _, tx := range evictedTxns {
		testPoolMembership(tc, tx, false, false)
	}
}

// TestOrphanExpiration ensures that orphans older than their time to live are
// evicted by the next scan of the orphan pool.
func TestOrphanExpiration(t *testing.T) {
	t.Parallel()

	harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}
	tc := &testContext{t, harness}

	now := time.Now()
	harness.txPool.now = func() time.Time { return now }

	chainA, err := harness.CreateTxChain(outputs[0], 2)
	if err != nil {
		t.Fatalf("unable to create transaction chain: %v", err)
	}
	chainB, err := harness.CreateTxChain(outputs[1], 2)
	if err != nil {
		t.Fatalf("unable to create transaction chain: %v", err)
	}

	_, err = harness.txPool.ProcessTransaction(chainA[1], true, false, 0)
	if err != nil {
		t.Fatalf("ProcessTransaction: failed to accept orphan: %v", err)
	}
	testPoolMembership(tc, chainA[1], true, false)

	// Move past the time to live of the first orphan and the scan interval
	// and add another orphan to trigger the scan.
	now = now.Add(orphanTTL + orphanExpireScanInterval)
	_, err = harness.txPool.ProcessTransaction(chainB[1], true, false, 0)
	if err != nil {
		t.Fatalf("ProcessTransaction: failed to accept orphan: %v", err)
	}
	testPoolMembership(tc, chainA[1], false, false)
	testPoolMembership(tc, chainB[1], true, false)
}

// TestRemoveOrphansByTag ensures removing orphans by tag only removes the
// orphans relayed with that tag.
func TestRemoveOrphansByTag(t *testing.T) {
	t.Parallel()

	harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}
	tc := &testContext{t, harness}

	chainA, err := harness.CreateTxChain(outputs[0], 3)
	if err != nil {
		t.Fatalf("unable to create transaction chain: %v", err)
	}
	chainB, err := harness.CreateTxChain(outputs[1], 2)
	if err != nil {
		t.Fatalf("unable to create transaction chain: %v", err)
	}

	for _, tx := range chainA[1:] {
		if _, err := harness.txPool.ProcessTransaction(tx, true, false, 1); err != nil {
			t.Fatalf("ProcessTransaction: failed to accept orphan: %v", err)
		}
	}
	if _, err := harness.txPool.ProcessTransaction(chainB[1], true, false, 2); err != nil {
		t.Fatalf("ProcessTransaction: failed to accept orphan: %v", err)
	}

	if n := harness.txPool.RemoveOrphansByTag(1); n != 2 {
		t.Fatalf("unexpected number of removed orphans -- got %d, want 2", n)
	}
	for _, tx := range chainA[1:] {
		testPoolMembership(tc, tx, false, false)
	}
	testPoolMembership(tc, chainB[1], true, false)

	// Removing a single orphan leaves the others in place.
	harness.txPool.RemoveOrphan(chainB[1])
	testPoolMembership(tc, chainB[1], false, false)
}

// TestMultiInputOrphanDoubleSpend ensures that orphans that spend from an
// output that is spent by another transaction entering the pool are removed.
func TestMultiInputOrphanDoubleSpend(t *testing.T) {
	t.Parallel()

	harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}
	tc := &testContext{t, harness}

	// Create a parent and two orphans that both spend its only output.
	parent, err := harness.CreateTx(outputs[0])
	if err != nil {
		t.Fatalf("unable to create parent: %v", err)
	}
	orphanA, err := harness.CreateSignedTx([]spendableOutput{
		txOutToSpendableOut(parent, 0)}, 1, defaultTxFee)
	if err != nil {
		t.Fatalf("unable to create orphan: %v", err)
	}
	orphanB, err := harness.CreateSignedTx([]spendableOutput{
		txOutToSpendableOut(parent, 0)}, 2, defaultTxFee)
	if err != nil {
		t.Fatalf("unable to create orphan: %v", err)
	}
	for _, tx := range []*dcrutil.Tx{orphanA, orphanB} {
		if _, err := harness.txPool.ProcessTransaction(tx, true, false, 0); err != nil {
			t.Fatalf("ProcessTransaction: failed to accept orphan: %v", err)
		}
		testPoolMembership(tc, tx, true, false)
	}

	// Only one of the orphans can make it into the pool once the parent is
	// added and the other one is removed as a double spend.
	acceptedTxns, err := harness.txPool.ProcessTransaction(parent, false,
		false, 0)
	if err != nil {
		t.Fatalf("ProcessTransaction: failed to accept parent: %v", err)
	}
	if len(acceptedTxns) != 2 {
		t.Fatalf("unexpected number of accepted transactions -- got %d, "+
			"want 2", len(acceptedTxns))
	}
	inPoolA := harness.txPool.IsTransactionInPool(orphanA.Hash())
	inPoolB := harness.txPool.IsTransactionInPool(orphanB.Hash())
	if inPoolA == inPoolB {
		t.Fatalf("exactly one orphan must be accepted (A: %v, B: %v)",
			inPoolA, inPoolB)
	}
	testPoolMembership(tc, orphanA, false, inPoolA)
	testPoolMembership(tc, orphanB, false, inPoolB)
}

// TestMempoolDoubleSpend ensures that the mempool rejects transactions that
// double spend outputs already spent by a pool transaction.
func TestMempoolDoubleSpend(t *testing.T) {
	t.Parallel()

	harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}
	tc := &testContext{t, harness}

	tx, err := harness.CreateTx(outputs[0])
	if err != nil {
		t.Fatalf("unable to create transaction: %v", err)
	}
	doubleSpend, err := harness.CreateSignedTx(outputs[0:1], 2, defaultTxFee)
	if err != nil {
		t.Fatalf("unable to create transaction: %v", err)
	}

	if _, err := harness.txPool.ProcessTransaction(tx, false, false, 0); err != nil {
		t.Fatalf("ProcessTransaction: unexpected error: %v", err)
	}
	_, err = harness.txPool.ProcessTransaction(doubleSpend, false, false, 0)
	if !errors.Is(err, ErrMempoolDoubleSpend) {
		t.Fatalf("ProcessTransaction: unexpected error -- got %v, want %v",
			err, ErrMempoolDoubleSpend)
	}
	testPoolMembership(tc, tx, false, true)
	testPoolMembership(tc, doubleSpend, false, false)

	// A rejected double spend is remembered until the next block.
	_, err = harness.txPool.ProcessTransaction(doubleSpend, false, false, 0)
	if !errors.Is(err, ErrRecentlyRejected) {
		t.Fatalf("ProcessTransaction: unexpected error -- got %v, want %v",
			err, ErrRecentlyRejected)
	}
}

// TestDuplicateTxError ensures that attempting to add a transaction to the
// pool which is an exact duplicate of another transaction fails with the
// appropriate error.
func TestDuplicateTxError(t *testing.T) {
	t.Parallel()

	harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}
	tc := &testContext{t, harness}

	tx, err := harness.CreateTx(outputs[0])
	if err != nil {
		t.Fatalf("unable to create transaction: %v", err)
	}

	// Ensure the transaction is accepted to the pool.
	_, err = harness.txPool.ProcessTransaction(tx, true, false, 0)
	if err != nil {
		t.Fatalf("ProcessTransaction: unexpected error: %v", err)
	}
	testPoolMembership(tc, tx, false, true)

	// Ensure a second attempt to process the tx is rejected with the
	// expected error.
	_, err = harness.txPool.ProcessTransaction(tx, true, false, 0)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Unexpected error -- got %v, want %v", err, ErrDuplicate)
	}

	// An orphan that was already seen is a duplicate as well.
	chainedTxns, err := harness.CreateTxChain(outputs[1], 2)
	if err != nil {
		t.Fatalf("unable to create transaction chain: %v", err)
	}
	if _, err := harness.txPool.ProcessTransaction(chainedTxns[1], true, false, 0); err != nil {
		t.Fatalf("ProcessTransaction: unexpected error: %v", err)
	}
	_, err = harness.txPool.ProcessTransaction(chainedTxns[1], true, false, 0)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("Unexpected error -- got %v, want %v", err, ErrDuplicate)
	}
}

// TestFetchTransaction ensures that the mempool only returns transactions in
// the main pool.
func TestFetchTransaction(t *testing.T) {
	t.Parallel()

	harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}

	chainedTxns, err := harness.CreateTxChain(outputs[0], 2)
	if err != nil {
		t.Fatalf("unable to create transaction chain: %v", err)
	}

	// Add the child as an orphan and make sure it can't be fetched.
	orphan := chainedTxns[1]
	if _, err := harness.txPool.ProcessTransaction(orphan, true, false, 0); err != nil {
		t.Fatalf("ProcessTransaction: unexpected error: %v", err)
	}
	if _, err := harness.txPool.FetchTransaction(orphan.Hash()); err == nil {
		t.Fatalf("FetchTransaction: fetched orphan %v", orphan.Hash())
	}

	// Add the parent which moves the orphan to the main pool.
	if _, err := harness.txPool.ProcessTransaction(chainedTxns[0], false, false, 0); err != nil {
		t.Fatalf("ProcessTransaction: unexpected error: %v", err)
	}
	for _, tx := range chainedTxns {
		fetched, err := harness.txPool.FetchTransaction(tx.Hash())
		if err != nil {
			t.Fatalf("FetchTransaction: unexpected error: %v", err)
		}
		if *fetched.Hash() != *tx.Hash() {
			t.Fatalf("FetchTransaction: fetched %v, want %v",
				fetched.Hash(), tx.Hash())
		}
	}

	have := harness.txPool.HaveTransactions([]*chainhash.Hash{
		chainedTxns[0].Hash(), chainedTxns[1].Hash(), {0x01}})
	if !have[0] || !have[1] || have[2] {
		t.Fatalf("HaveTransactions: unexpected result %v", have)
	}
}

// TestRemoveDoubleSpends ensures that removing double spends removes the
// conflicting transaction and everything that depends on it.
func TestRemoveDoubleSpends(t *testing.T) {
	t.Parallel()

	harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}
	tc := &testContext{t, harness}

	chainedTxns, err := harness.CreateTxChain(outputs[0], 3)
	if err != nil {
		t.Fatalf("unable to create transaction chain: %v", err)
	}
	for _, tx := range chainedTxns {
		if _, err := harness.txPool.ProcessTransaction(tx, false, false, 0); err != nil {
			t.Fatalf("ProcessTransaction: unexpected error: %v", err)
		}
	}

	conflict, err := harness.CreateSignedTx(outputs[0:1], 2, defaultTxFee)
	if err != nil {
		t.Fatalf("unable to create transaction: %v", err)
	}
	harness.txPool.RemoveDoubleSpends(conflict)
	for _, tx := range chainedTxns {
		testPoolMembership(tc, tx, false, false)
		testRemovalReason(tc, tx, RemovalConflict)
	}
	if size := harness.txPool.Size(); size != 0 {
		t.Fatalf("unexpected pool size after removal: %d", size)
	}
}

// TestRemoveTransaction ensures removing a transaction with and without its
// redeemers behaves as expected.
func TestRemoveTransaction(t *testing.T) {
	t.Parallel()

	harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}
	tc := &testContext{t, harness}

	chainedTxns, err := harness.CreateTxChain(outputs[0], 3)
	if err != nil {
		t.Fatalf("unable to create transaction chain: %v", err)
	}
	for _, tx := range chainedTxns {
		if _, err := harness.txPool.ProcessTransaction(tx, false, false, 0); err != nil {
			t.Fatalf("ProcessTransaction: unexpected error: %v", err)
		}
	}

	// Removing the last transaction without its redeemers leaves its
	// ancestors alone.
	harness.txPool.RemoveTransaction(chainedTxns[2], false)
	testPoolMembership(tc, chainedTxns[2], false, false)
	testRemovalReason(tc, chainedTxns[2], RemovalManual)
	testPoolMembership(tc, chainedTxns[1], false, true)

	// Removing the first transaction with its redeemers empties the pool.
	harness.txPool.RemoveTransaction(chainedTxns[0], true)
	if count := harness.txPool.Count(); count != 0 {
		t.Fatalf("unexpected pool count after removal: %d", count)
	}
}

// TestFeePolicy ensures the minimum relay fee and the high fee protection are
// enforced and that fee failures are not remembered as rejections.
func TestFeePolicy(t *testing.T) {
	t.Parallel()

	harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}
	tc := &testContext{t, harness}

	lowFee, err := harness.CreateSignedTx(outputs[0:1], 1, 10)
	if err != nil {
		t.Fatalf("unable to create transaction: %v", err)
	}
	for i := 0; i < 2; i++ {
		_, err = harness.txPool.ProcessTransaction(lowFee, false, false, 0)
		if !errors.Is(err, ErrInsufficientFee) {
			t.Fatalf("attempt %d: unexpected error -- got %v, want %v", i,
				err, ErrInsufficientFee)
		}
	}
	testPoolMembership(tc, lowFee, false, false)

	highFee, err := harness.CreateSignedTx(outputs[1:2], 1, 500000000)
	if err != nil {
		t.Fatalf("unable to create transaction: %v", err)
	}
	_, err = harness.txPool.ProcessTransaction(highFee, false, false, 0)
	if !errors.Is(err, ErrFeeTooHigh) {
		t.Fatalf("unexpected error -- got %v, want %v", err, ErrFeeTooHigh)
	}
	if _, err := harness.txPool.ProcessTransaction(highFee, false, true, 0); err != nil {
		t.Fatalf("ProcessTransaction: unexpected error with high fees "+
			"allowed: %v", err)
	}
	testPoolMembership(tc, highFee, false, true)
}

// TestRecentlyRejected ensures rejected transactions and orphans spending them
// are refused until the next block is connected.
func TestRecentlyRejected(t *testing.T) {
	t.Parallel()

	harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}
	tc := &testContext{t, harness}

	// Create a transaction with a dust output.
	dust, err := harness.CreateSignedTx(outputs[0:1], 2, defaultTxFee,
		func(tx *wire.MsgTx) {
			tx.TxOut[1].Value += tx.TxOut[0].Value - 100
			tx.TxOut[0].Value = 100
		})
	if err != nil {
		t.Fatalf("unable to create transaction: %v", err)
	}
	_, err = harness.txPool.ProcessTransaction(dust, false, false, 0)
	if !errors.Is(err, ErrDustOutput) {
		t.Fatalf("unexpected error -- got %v, want %v", err, ErrDustOutput)
	}
	_, err = harness.txPool.ProcessTransaction(dust, false, false, 0)
	if !errors.Is(err, ErrRecentlyRejected) {
		t.Fatalf("unexpected error -- got %v, want %v", err,
			ErrRecentlyRejected)
	}

	// An orphan spending an output of the rejected transaction can never be
	// accepted.
	child, err := harness.CreateTx(txOutToSpendableOut(dust, 1))
	if err != nil {
		t.Fatalf("unable to create transaction: %v", err)
	}
	_, err = harness.txPool.ProcessTransaction(child, true, false, 0)
	if !errors.Is(err, ErrOrphanPolicyViolation) {
		t.Fatalf("unexpected error -- got %v, want %v", err,
			ErrOrphanPolicyViolation)
	}
	testPoolMembership(tc, child, false, false)

	// Connecting a block resets the rejections, so the transaction is
	// evaluated again.
	if _, _, err := harness.ConnectBlock(); err != nil {
		t.Fatalf("unable to connect block: %v", err)
	}
	_, err = harness.txPool.ProcessTransaction(dust, false, false, 0)
	if !errors.Is(err, ErrDustOutput) {
		t.Fatalf("unexpected error -- got %v, want %v", err, ErrDustOutput)
	}
}

// TestAlreadyConfirmed ensures transactions with unspent outputs in the chain
// are rejected.
func TestAlreadyConfirmed(t *testing.T) {
	t.Parallel()

	harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}

	tx, err := harness.CreateTx(outputs[0])
	if err != nil {
		t.Fatalf("unable to create transaction: %v", err)
	}
	harness.chain.AddUtxos(tx, harness.chain.BestHeight(), false)
	_, err = harness.txPool.ProcessTransaction(tx, false, false, 0)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("unexpected error -- got %v, want %v", err,
			ErrAlreadyExists)
	}
}

// TestSequenceLockAcceptance ensures that transactions which involve both
// height and time based relative locks are accepted or rejected as expected.
func TestSequenceLockAcceptance(t *testing.T) {
	t.Parallel()

	const granularity = wire.SequenceLockTimeGranularity
	tests := []struct {
		name     string // test description.
		txVer    uint16 // transaction version.
		sequence uint32 // sequence number used for input.
		valid    bool   // whether tx is valid when it enters the pool.
	}{{
		name:     "version 1 ignores relative locks",
		txVer:    1,
		sequence: 1000,
		valid:    true,
	}, {
		name:     "disabled relative lock",
		txVer:    2,
		sequence: wire.SequenceLockTimeDisabled | 1000,
		valid:    true,
	}, {
		name:     "height lock satisfied by the next block",
		txVer:    2,
		sequence: 100,
		valid:    true,
	}, {
		name:     "height lock one block short",
		txVer:    2,
		sequence: 101,
		valid:    false,
	}, {
		name:     "time lock satisfied",
		txVer:    2,
		sequence: wire.SequenceLockTimeIsSeconds | 1024>>granularity,
		valid:    true,
	}, {
		name:     "time lock not yet satisfied",
		txVer:    2,
		sequence: wire.SequenceLockTimeIsSeconds | 1536>>granularity,
		valid:    false,
	}}

	for _, test := range tests {
		harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
		if err != nil {
			t.Fatalf("unable to create test pool: %v", err)
		}

		// The spent output was mined in the block at height one and the
		// median time of its previous block is 1024 seconds in the past.
		medianTime := harness.chain.PastMedianTime()
		harness.chain.AddFakeUtxoMedianTime(outputs[0].outPoint,
			medianTime.Add(-1024*time.Second))

		tx, err := harness.CreateSignedTx(outputs[0:1], 1, defaultTxFee,
			func(tx *wire.MsgTx) {
				tx.Version = test.txVer
				tx.TxIn[0].Sequence = test.sequence
			})
		if err != nil {
			t.Fatalf("%s: unable to create transaction: %v", test.name, err)
		}

		_, err = harness.txPool.ProcessTransaction(tx, false, false, 0)
		switch {
		case test.valid && err != nil:
			t.Errorf("%s: unexpected error: %v", test.name, err)
		case !test.valid && !errors.Is(err, ErrSeqLockUnmet):
			t.Errorf("%s: unexpected error -- got %v, want %v", test.name,
				err, ErrSeqLockUnmet)
		}
	}
}

// TestRemoveForBlock ensures transactions confirmed by a block leave the pool
// while their children stay, conflicting transactions are removed together
// with their descendants and orphans of the block transactions are accepted.
func TestRemoveForBlock(t *testing.T) {
	t.Parallel()

	harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}
	tc := &testContext{t, harness}

	// Confirmed parent with a child that stays in the pool.
	confirmed, err := harness.CreateTxChain(outputs[0], 2)
	if err != nil {
		t.Fatalf("unable to create transaction chain: %v", err)
	}

	// Pool chain whose root conflicts with a block transaction.
	conflicted, err := harness.CreateTxChain(outputs[1], 2)
	if err != nil {
		t.Fatalf("unable to create transaction chain: %v", err)
	}
	blockSpend, err := harness.CreateSignedTx(outputs[1:2], 2, defaultTxFee)
	if err != nil {
		t.Fatalf("unable to create transaction: %v", err)
	}

	for _, tx := range append(confirmed, conflicted...) {
		if _, err := harness.txPool.ProcessTransaction(tx, false, false, 0); err != nil {
			t.Fatalf("ProcessTransaction: unexpected error: %v", err)
		}
	}

	// Orphan spending an output of the conflicting block transaction.
	orphan, err := harness.CreateTx(txOutToSpendableOut(blockSpend, 0))
	if err != nil {
		t.Fatalf("unable to create transaction: %v", err)
	}
	if _, err := harness.txPool.ProcessTransaction(orphan, true, false, 0); err != nil {
		t.Fatalf("ProcessTransaction: unexpected error: %v", err)
	}
	testPoolMembership(tc, orphan, true, false)

	_, accepted, err := harness.ConnectBlock(confirmed[0], blockSpend)
	if err != nil {
		t.Fatalf("unable to connect block: %v", err)
	}

	testPoolMembership(tc, confirmed[0], false, false)
	testRemovalReason(tc, confirmed[0], RemovalBlock)
	testPoolMembership(tc, confirmed[1], false, true)
	for _, tx := range conflicted {
		testPoolMembership(tc, tx, false, false)
		testRemovalReason(tc, tx, RemovalConflict)
	}
	if len(accepted) != 1 || *accepted[0].Hash() != *orphan.Hash() {
		t.Fatalf("unexpected accepted orphans: %v", accepted)
	}
	testPoolMembership(tc, orphan, false, true)
}

// TestMaybeAcceptReorgTransactions ensures the transactions of disconnected
// blocks return to the pool ahead of the pool transactions that spend them and
// that transactions which are invalid after the reorganization are removed.
func TestMaybeAcceptReorgTransactions(t *testing.T) {
	t.Parallel()

	harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}
	tc := &testContext{t, harness}

	chainedTxns, err := harness.CreateTxChain(outputs[0], 2)
	if err != nil {
		t.Fatalf("unable to create transaction chain: %v", err)
	}
	forkHeight := harness.chain.BestHeight()
	block, _, err := harness.ConnectBlock(chainedTxns[0])
	if err != nil {
		t.Fatalf("unable to connect block: %v", err)
	}
	if _, err := harness.txPool.ProcessTransaction(chainedTxns[1], false, false, 0); err != nil {
		t.Fatalf("ProcessTransaction: unexpected error: %v", err)
	}

	disconnected := harness.DisconnectBlock(block)
	accepted := harness.txPool.MaybeAcceptReorgTransactions(disconnected,
		forkHeight)
	if len(accepted) != 2 {
		t.Fatalf("unexpected number of accepted transactions -- got %d, "+
			"want 2", len(accepted))
	}
	for i, tx := range accepted {
		if *tx.Hash() != *chainedTxns[i].Hash() {
			t.Fatalf("accepted transaction %d is %v, want %v", i, tx.Hash(),
				chainedTxns[i].Hash())
		}
		testPoolMembership(tc, tx, false, true)
	}

	// The parent must be ordered before its child.
	descs := harness.txPool.TxDescs()
	orders := make(map[chainhash.Hash]uint64)
	for _, desc := range descs {
		orders[*desc.Tx.Hash()] = desc.order
	}
	if orders[*chainedTxns[0].Hash()] >= orders[*chainedTxns[1].Hash()] {
		t.Fatal("parent is not ordered before its child")
	}

	// Rewinding the chain makes the coinbase spend immature again, so the
	// whole chain is removed.
	harness.chain.SetHeight(forkHeight - 1)
	harness.txPool.MaybeAcceptReorgTransactions(
		blockchain.NewDisconnectedTransactions(), forkHeight-2)
	for _, tx := range chainedTxns {
		testPoolMembership(tc, tx, false, false)
		testRemovalReason(tc, tx, RemovalReorg)
	}
}

// TestTrimToSize ensures the pool evicts the transactions with the lowest
// feerate once it exceeds its size limit while accounting for the fees paid
// by descendants.
func TestTrimToSize(t *testing.T) {
	t.Parallel()

	harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}
	tc := &testContext{t, harness}

	// Low fee parent paid for by a high fee child.
	parent, err := harness.CreateSignedTx(outputs[0:1], 1, 300)
	if err != nil {
		t.Fatalf("unable to create transaction: %v", err)
	}
	child, err := harness.CreateSignedTx([]spendableOutput{
		txOutToSpendableOut(parent, 0)}, 1, 50000)
	if err != nil {
		t.Fatalf("unable to create transaction: %v", err)
	}
	for _, tx := range []*dcrutil.Tx{parent, child} {
		if _, err := harness.txPool.ProcessTransaction(tx, false, false, 0); err != nil {
			t.Fatalf("ProcessTransaction: unexpected error: %v", err)
		}
	}

	// A transaction with a feerate between the parent and the parent with
	// its child is the one evicted when the pool is full.
	harness.txPool.cfg.Policy.MaxPoolSize = harness.txPool.Size() + 10
	middle, err := harness.CreateSignedTx(outputs[1:2], 1, 5000)
	if err != nil {
		t.Fatalf("unable to create transaction: %v", err)
	}
	_, err = harness.txPool.ProcessTransaction(middle, false, false, 0)
	if !errors.Is(err, ErrMempoolFull) {
		t.Fatalf("unexpected error -- got %v, want %v", err, ErrMempoolFull)
	}
	testPoolMembership(tc, middle, false, false)
	testRemovalReason(tc, middle, RemovalSizeLimit)
	testPoolMembership(tc, parent, false, true)
	testPoolMembership(tc, child, false, true)

	// A better paying transaction displaces the package.
	harness.txPool.cfg.Policy.MaxPoolSize = harness.txPool.Size() + 10
	better, err := harness.CreateSignedTx(outputs[2:3], 1, 500000)
	if err != nil {
		t.Fatalf("unable to create transaction: %v", err)
	}
	if _, err := harness.txPool.ProcessTransaction(better, false, false, 0); err != nil {
		t.Fatalf("ProcessTransaction: unexpected error: %v", err)
	}
	testPoolMembership(tc, better, false, true)
	testPoolMembership(tc, parent, false, false)
	testPoolMembership(tc, child, false, false)
	testRemovalReason(tc, parent, RemovalSizeLimit)
	testRemovalReason(tc, child, RemovalSizeLimit)
	if size := harness.txPool.Size(); size > harness.txPool.cfg.Policy.MaxPoolSize {
		t.Fatalf("pool size %d exceeds limit %d", size,
			harness.txPool.cfg.Policy.MaxPoolSize)
	}
}

// TestExpire ensures transactions that stay in the pool for longer than the
// expiry policy allows are removed along with their descendants.
func TestExpire(t *testing.T) {
	t.Parallel()

	harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}
	tc := &testContext{t, harness}

	now := time.Now()
	harness.txPool.now = func() time.Time { return now }
	harness.txPool.cfg.Policy.MempoolExpiry = time.Hour

	chainedTxns, err := harness.CreateTxChain(outputs[0], 2)
	if err != nil {
		t.Fatalf("unable to create transaction chain: %v", err)
	}
	for _, tx := range chainedTxns {
		if _, err := harness.txPool.ProcessTransaction(tx, false, false, 0); err != nil {
			t.Fatalf("ProcessTransaction: unexpected error: %v", err)
		}
	}

	now = now.Add(2 * time.Hour)
	tx, err := harness.CreateTx(outputs[1])
	if err != nil {
		t.Fatalf("unable to create transaction: %v", err)
	}
	if _, err := harness.txPool.ProcessTransaction(tx, false, false, 0); err != nil {
		t.Fatalf("ProcessTransaction: unexpected error: %v", err)
	}
	testPoolMembership(tc, tx, false, true)
	for _, tx := range chainedTxns {
		testPoolMembership(tc, tx, false, false)
		testRemovalReason(tc, tx, RemovalExpiry)
	}
	if got := harness.txPool.LastUpdated(); got.Unix() != now.Unix() {
		t.Fatalf("unexpected last updated time -- got %v, want %v", got, now)
	}
}

// TestMiningDescs ensures the descriptors for mining are sorted by descending
// feerate.
func TestMiningDescs(t *testing.T) {
	t.Parallel()

	harness, outputs, err := newPoolHarness(chaincfg.RegNetParams())
	if err != nil {
		t.Fatalf("unable to create test pool: %v", err)
	}

	fees := []int64{1000, 30000, 10000}
	txns := make([]*dcrutil.Tx, 0, len(fees))
	for i, fee := range fees {
		tx, err := harness.CreateSignedTx(outputs[i:i+1], 1, fee)
		if err != nil {
			t.Fatalf("unable to create transaction: %v", err)
		}
		if _, err := harness.txPool.ProcessTransaction(tx, false, false, 0); err != nil {
			t.Fatalf("ProcessTransaction: unexpected error: %v", err)
		}
		txns = append(txns, tx)
	}

	want := []*dcrutil.Tx{txns[1], txns[2], txns[0]}
	wantFees := []int64{fees[1], fees[2], fees[0]}
	descs := harness.txPool.MiningDescs()
	if len(descs) != len(want) {
		t.Fatalf("unexpected number of descriptors -- got %d, want %d",
			len(descs), len(want))
	}
	for i, desc := range descs {
		if *desc.Tx.Hash() != *want[i].Hash() {
			t.Fatalf("descriptor %d is %v, want %v", i, desc.Tx.Hash(),
				want[i].Hash())
		}
		if desc.Fee != wantFees[i] {
			t.Fatalf("descriptor %d has fee %d, want %d", i, desc.Fee,
				wantFees[i])
		}
		if desc.SigChecks != 1 {
			t.Fatalf("descriptor %d has %d signature checks, want 1", i,
				desc.SigChecks)
		}
	}
}
