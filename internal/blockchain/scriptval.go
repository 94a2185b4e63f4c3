// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/container/lru"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/wire"
)

const (
	// DefaultScriptCacheSize is the default number of fully validated
	// transactions remembered by a script cache.
	DefaultScriptCacheSize = 100000

	// inputSigChecksBytesPerCheck and inputSigChecksBonusBytes define the
	// minimum signature script size of an input relative to the number of
	// signature checks it performs.
	inputSigChecksBytesPerCheck = 43
	inputSigChecksBonusBytes    = 60
)

// checkInputSigChecks ensures the passed signature script is large enough for
// the provided number of signature checks performed by its input.
func checkInputSigChecks(sigScript []byte, numSigChecks int64) bool {
	minSize := numSigChecks*inputSigChecksBytesPerCheck -
		inputSigChecksBonusBytes
	return int64(len(sigScript)) >= minSize
}

// PrevScripter defines an interface that provides access to scripts and their
// associated version keyed by an outpoint.  The boolean return indicates
// whether or not the script and version for the provided outpoint was found.
type PrevScripter interface {
	PrevScript(*wire.OutPoint) (uint16, []byte, bool)
}

// PrevOutputs houses the outputs spent by a set of transactions keyed by
// outpoint.  It implements the PrevScripter interface.
type PrevOutputs map[wire.OutPoint]*UtxoEntry

// PrevScript returns the script and script version associated with the
// provided previous outpoint along with a bool that indicates whether or not
// the requested entry exists.
//
// This is part of the PrevScripter interface.
func (p PrevOutputs) PrevScript(prevOut *wire.OutPoint) (uint16, []byte, bool) {
	entry := p[*prevOut]
	if entry == nil {
		return 0, nil, false
	}
	return entry.ScriptVersion(), entry.PkScript(), true
}

// ScriptCache remembers transactions whose scripts were fully validated under a
// given set of script flags along with the number of signature checks they
// performed.
//
// It is safe for concurrent access.
type ScriptCache struct {
	entries *lru.Map[chainhash.Hash, int64]
}

// NewScriptCache returns a script cache that holds up to the provided number
// of transactions.
func NewScriptCache(limit uint32) *ScriptCache {
	return &ScriptCache{entries: lru.NewMap[chainhash.Hash, int64](limit)}
}

// scriptCacheKey returns the key of the passed transaction validated under the
// provided flags.  The key commits to the signature scripts.
func scriptCacheKey(tx *wire.MsgTx, flags ScriptFlags) chainhash.Hash {
	var buf [chainhash.HashSize + 4]byte
	fullHash := tx.TxHashFull()
	copy(buf[:], fullHash[:])
	binary.LittleEndian.PutUint32(buf[chainhash.HashSize:], uint32(flags))
	return chainhash.HashH(buf[:])
}

// lookup returns the number of signature checks of a cached transaction.
func (c *ScriptCache) lookup(key chainhash.Hash) (int64, bool) {
	if c == nil {
		return 0, false
	}
	return c.entries.Get(key)
}

// add records a fully validated transaction.
func (c *ScriptCache) add(key chainhash.Hash, sigChecks int64) {
	if c == nil {
		return
	}
	c.entries.Put(key, sigChecks)
}

// Len returns the number of cached transactions.
func (c *ScriptCache) Len() uint32 {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

// txScriptState tracks the progress of validating the inputs of a single
// transaction across the worker goroutines.
type txScriptState struct {
	tx        *dcrutil.Tx
	cacheKey  chainhash.Hash
	sigChecks atomic.Int64
	remaining atomic.Int32
}

// txValidateItem holds a transaction along with which input to validate.
type txValidateItem struct {
	txInIndex int
	txIn      *wire.TxIn
	state     *txScriptState
}

// txValidator provides a type which asynchronously validates transaction
// inputs.  It provides several channels for communication and a processing
// function that is intended to be in run multiple goroutines.
type txValidator struct {
	validateChan chan *txValidateItem
	resultChan   chan error
	prevScripts  PrevScripter
	flags        ScriptFlags
	engineFlags  txscript.ScriptFlags
	sigCache     *txscript.SigCache
	scriptCache  *ScriptCache
	workers      int

	// sigChecks is the shared counter of signature checks performed by all
	// transactions being validated and maxSigChecks is its limit.
	sigChecks    *atomic.Int64
	maxSigChecks int64
}

// sendResult sends the result of a script pair validation on the internal
// result channel while respecting the context.  The allows orderly
// shutdown when the validation process is aborted early due to a validation
// error in one of the other goroutines.
func (v *txValidator) sendResult(ctx context.Context, result error) {
	select {
	case v.resultChan <- result:
	case <-ctx.Done():
	}
}

// countSigChecks adds the signature checks performed by a validated input to
// the counters of its transaction and of the whole set of transactions and
// ensures neither exceeds its limit.  The transaction is added to the script
// cache once all of its inputs are validated.
func (v *txValidator) countSigChecks(txVI *txValidateItem, sigScript, pkScript []byte) error {
	state := txVI.state
	var numSigChecks int64
	if v.flags&(ScriptReportSigChecks|ScriptVerifyInputSigChecks) != 0 {
		numSigChecks = int64(txscript.GetPreciseSigOpCount(sigScript,
			pkScript, v.flags&ScriptVerifyP2SH != 0))
	}
	if v.flags&ScriptVerifyInputSigChecks != 0 &&
		!checkInputSigChecks(sigScript, numSigChecks) {

		str := fmt.Sprintf("input %s:%d performs %d signature checks with "+
			"a signature script of only %d bytes", state.tx.Hash(),
			txVI.txInIndex, numSigChecks, len(sigScript))
		return ruleError(ErrInputSigChecks, str)
	}
	if v.flags&ScriptReportSigChecks != 0 {
		txSigChecks := state.sigChecks.Add(numSigChecks)
		if txSigChecks > MaxTxSigChecks {
			str := fmt.Sprintf("transaction %s performs too many signature "+
				"checks - got %d, max %d", state.tx.Hash(), txSigChecks,
				MaxTxSigChecks)
			return ruleError(ErrTxTooManySigChecks, str)
		}
		totalSigChecks := v.sigChecks.Add(numSigChecks)
		if totalSigChecks > v.maxSigChecks {
			str := fmt.Sprintf("block performs too many signature checks "+
				"- got at least %d, max %d", totalSigChecks, v.maxSigChecks)
			return ruleError(ErrTooManySigChecks, str)
		}
	}

	if state.remaining.Add(-1) == 0 {
		v.scriptCache.add(state.cacheKey, state.sigChecks.Load())
	}
	return nil
}

// validateHandler consumes items to validate from the internal validate channel
// and returns the result of the validation on the internal result channel. It
// must be run as a goroutine.
func (v *txValidator) validateHandler(ctx context.Context) {
out:
	for {
		select {
		case <-ctx.Done():
			break out

		case txVI := <-v.validateChan:
			// Ensure the referenced input utxo is available.
			txIn := txVI.txIn
			tx := txVI.state.tx
			prevOut := &txIn.PreviousOutPoint
			scriptVersion, pkScript, ok := v.prevScripts.PrevScript(prevOut)
			if !ok {
				str := fmt.Sprintf("unable to find unspent output %v "+
					"referenced from transaction %s:%d", *prevOut,
					tx.Hash(), txVI.txInIndex)
				err := ruleError(ErrMissingTxOut, str)
				v.sendResult(ctx, err)
				break out
			}

			// Create a new script engine for the script pair.
			sigScript := txIn.SignatureScript
			vm, err := txscript.NewEngine(pkScript, tx.MsgTx(),
				txVI.txInIndex, v.engineFlags, scriptVersion, v.sigCache)
			if err != nil {
				str := fmt.Sprintf("failed to parse input %s:%d which "+
					"references output %v - %v (input script bytes %x, prev "+
					"output script bytes %x)", tx.Hash(), txVI.txInIndex,
					*prevOut, err, sigScript, pkScript)
				err := ruleError(ErrScriptMalformed, str)
				v.sendResult(ctx, err)
				break out
			}

			// Execute the script pair.
			if err := vm.Execute(); err != nil {
				str := fmt.Sprintf("failed to validate input %s:%d which "+
					"references output %v - %v (input script bytes %x, prev "+
					"output script bytes %x)", tx.Hash(), txVI.txInIndex,
					*prevOut, err, sigScript, pkScript)
				err := ruleError(ErrScriptValidation, str)
				v.sendResult(ctx, err)
				break out
			}

			// Validation succeeded.
			v.sendResult(ctx, v.countSigChecks(txVI, sigScript, pkScript))
		}
	}
}

// Validate validates the scripts for all of the passed transaction inputs using
// multiple goroutines.
func (v *txValidator) Validate(items []*txValidateItem) error {
	if len(items) == 0 {
		return nil
	}

	// Limit the number of goroutines to do script validation based on the
	// number of processor cores unless configured otherwise.  This help
	// ensure the system stays reasonably responsive under heavy load.
	maxGoRoutines := v.workers
	if maxGoRoutines <= 0 {
		maxGoRoutines = runtime.NumCPU() * 3
	}
	if maxGoRoutines > len(items) {
		maxGoRoutines = len(items)
	}

	// Start up validation handlers that are used to asynchronously
	// validate each transaction input.
	ctx, cancel := context.WithCancel(context.Background())
	for i := 0; i < maxGoRoutines; i++ {
		go v.validateHandler(ctx)
	}

	// Validate each of the inputs.  The context is canceled when any
	// errors occur so all processing goroutines exit regardless of which
	// input had the validation error.
	numInputs := len(items)
	currentItem := 0
	processedItems := 0
	for processedItems < numInputs {
		// Only send items while there are still items that need to
		// be processed.  The select statement will never select a nil
		// channel.
		var validateChan chan *txValidateItem
		var item *txValidateItem
		if currentItem < numInputs {
			validateChan = v.validateChan
			item = items[currentItem]
		}

		select {
		case validateChan <- item:
			currentItem++

		case err := <-v.resultChan:
			processedItems++
			if err != nil {
				cancel()
				return err
			}
		}
	}

	cancel()
	return nil
}

// collectItems appends the inputs of the passed transaction that need to be
// validated to the provided items.  Transactions present in the script cache
// only contribute their recorded signature checks to the shared counter.
func (v *txValidator) collectItems(items []*txValidateItem, tx *dcrutil.Tx) ([]*txValidateItem, error) {
	msgTx := tx.MsgTx()
	cacheKey := scriptCacheKey(msgTx, v.flags)
	if sigChecks, ok := v.scriptCache.lookup(cacheKey); ok {
		if v.flags&ScriptReportSigChecks != 0 {
			totalSigChecks := v.sigChecks.Add(sigChecks)
			if totalSigChecks > v.maxSigChecks {
				str := fmt.Sprintf("block performs too many signature checks "+
					"- got at least %d, max %d", totalSigChecks,
					v.maxSigChecks)
				return nil, ruleError(ErrTooManySigChecks, str)
			}
		}
		return items, nil
	}

	state := &txScriptState{tx: tx, cacheKey: cacheKey}
	for txInIdx, txIn := range msgTx.TxIn {
		// Skip coinbases.
		if txIn.PreviousOutPoint.Index == math.MaxUint32 {
			continue
		}

		items = append(items, &txValidateItem{
			txInIndex: txInIdx,
			txIn:      txIn,
			state:     state,
		})
	}
	state.remaining.Store(int32(len(msgTx.TxIn)))
	return items, nil
}

// newTxValidator returns a new instance of txValidator to be used for
// validating transaction scripts asynchronously.
func newTxValidator(prevScripts PrevScripter, flags ScriptFlags, sigCache *txscript.SigCache, scriptCache *ScriptCache, maxSigChecks int64, workers int) *txValidator {
	return &txValidator{
		validateChan: make(chan *txValidateItem),
		resultChan:   make(chan error),
		prevScripts:  prevScripts,
		flags:        flags,
		engineFlags:  flags.engineFlags(),
		sigCache:     sigCache,
		scriptCache:  scriptCache,
		workers:      workers,
		sigChecks:    new(atomic.Int64),
		maxSigChecks: maxSigChecks,
	}
}

// ValidateTransactionScripts validates the scripts for the passed transaction
// using multiple goroutines.  It returns the number of signature checks the
// transaction performs.
func ValidateTransactionScripts(tx *dcrutil.Tx, prevScripts PrevScripter, flags ScriptFlags, sigCache *txscript.SigCache, scriptCache *ScriptCache) (int64, error) {
	v := newTxValidator(prevScripts, flags, sigCache, scriptCache,
		math.MaxInt64, 0)
	items, err := v.collectItems(nil, tx)
	if err != nil {
		return 0, err
	}

	// Validate all of the inputs.
	if err := v.Validate(items); err != nil {
		return 0, err
	}
	return v.sigChecks.Load(), nil
}

// checkBlockScripts executes and validates the scripts for all transactions in
// the passed block using multiple goroutines.  The signature checks of all of
// the transactions are counted against the block limit.
func (b *BlockChain) checkBlockScripts(block *dcrutil.Block, prevScripts PrevScripter, flags ScriptFlags) error {
	v := newTxValidator(prevScripts, flags, b.sigCache, b.scriptCache,
		b.chainParams.MaxBlockSigChecks(), b.scriptWorkers)

	// Collect all of the transaction inputs and required information for
	// validation for all transactions in the block into a single slice.
	txns := block.Transactions()
	numInputs := 0
	for _, tx := range txns {
		numInputs += len(tx.MsgTx().TxIn)
	}
	items := make([]*txValidateItem, 0, numInputs)
	for _, tx := range txns[1:] {
		var err error
		items, err = v.collectItems(items, tx)
		if err != nil {
			return err
		}
	}

	// Validate all of the inputs.
	return v.Validate(items)
}
