// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2023 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/decred/dcrd/blockchain/standalone/v2"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/wire"
	"github.com/xecnode/xecd/chaincfg"
)

const (
	// MaxTimeOffsetSeconds is the maximum number of seconds a block time
	// is allowed to be ahead of the current time.  This is currently 2
	// hours.
	MaxTimeOffsetSeconds = 2 * 60 * 60

	// MinCoinbaseScriptLen is the minimum length a coinbase script can be.
	MinCoinbaseScriptLen = 2

	// MaxCoinbaseScriptLen is the maximum length a coinbase script can be.
	MaxCoinbaseScriptLen = 100

	// MaxTxSize is the maximum serialized size of a transaction.
	MaxTxSize = 1000000

	// MaxTxSigChecks is the maximum number of signature checks a single
	// transaction may perform.
	MaxTxSigChecks = 3000

	// medianTimeBlocks is the number of previous blocks which should be
	// used to calculate the median time used to validate block timestamps.
	medianTimeBlocks = 11
)

var (
	// zeroHash is the zero value for a chainhash.Hash and is defined as a
	// package level variable to avoid the need to create a new instance
	// every time a check is needed.
	zeroHash = &chainhash.Hash{}
)

// isNullOutpoint determines whether or not a previous transaction output point
// is set.
func isNullOutpoint(outpoint *wire.OutPoint) bool {
	return outpoint.Index == math.MaxUint32 && outpoint.Hash == *zeroHash
}

// IsCoinBaseTx determines whether or not a transaction is a coinbase.  A
// coinbase is a special transaction created by miners that has no inputs.
// This is represented in the block chain by a transaction with a single input
// that has a previous output transaction index set to the maximum value along
// with a zero hash.
func IsCoinBaseTx(tx *wire.MsgTx) bool {
	return standalone.IsCoinBaseTx(tx, false)
}

// isUnspendable returns whether the passed public key script can never be
// spent.  Outputs paying to such scripts are never added to the unspent set.
func isUnspendable(pkScript []byte) bool {
	return (len(pkScript) > 0 && pkScript[0] == txscript.OP_RETURN) ||
		len(pkScript) > txscript.MaxScriptSize
}

// SequenceLockActive determines if all of the inputs to a given transaction
// have achieved a relative age that surpasses the requirements specified by
// their respective sequence locks as calculated by CalcSequenceLock.  A single
// sequence lock is sufficient because the calculated lock selects the minimum
// required time and block height from all of the non-disabled inputs after
// which the transaction can be included.
func SequenceLockActive(lock *SequenceLock, blockHeight int64, medianTime time.Time) bool {
	// The transaction is not yet mature if it has not yet reached the
	// required minimum time and block height according to its sequence
	// locks.
	if blockHeight <= lock.MinHeight || medianTime.Unix() <= lock.MinTime {
		return false
	}

	return true
}

// IsFinalizedTransaction determines whether or not a transaction is finalized.
func IsFinalizedTransaction(tx *dcrutil.Tx, blockHeight int64, blockTime time.Time) bool {
	// Lock time of zero means the transaction is finalized.
	msgTx := tx.MsgTx()
	lockTime := msgTx.LockTime
	if lockTime == 0 {
		return true
	}

	// The lock time field of a transaction is either a block height at
	// which the transaction is finalized or a timestamp depending on if the
	// value is before the txscript.LockTimeThreshold.  When it is under the
	// threshold it is a block height.
	var blockTimeOrHeight int64
	if lockTime < txscript.LockTimeThreshold {
		blockTimeOrHeight = blockHeight
	} else {
		blockTimeOrHeight = blockTime.Unix()
	}
	if int64(lockTime) < blockTimeOrHeight {
		return true
	}

	// At this point, the transaction's lock time hasn't occurred yet, but
	// the transaction might still be finalized if the sequence number
	// for all transaction inputs is maxed out.
	for _, txIn := range msgTx.TxIn {
		if txIn.Sequence != math.MaxUint32 {
			return false
		}
	}
	return true
}

// CheckTransactionSanity performs some preliminary checks on a transaction to
// ensure it is sane.  These checks are context free.
func CheckTransactionSanity(tx *wire.MsgTx) error {
	// A transaction must have at least one input.
	if len(tx.TxIn) == 0 {
		return ruleError(ErrNoTxInputs, "transaction has no inputs")
	}

	// A transaction must have at least one output.
	if len(tx.TxOut) == 0 {
		return ruleError(ErrNoTxOutputs, "transaction has no outputs")
	}

	// A transaction must not exceed the maximum allowed size when serialized.
	serializedTxSize := tx.SerializeSize()
	if serializedTxSize > MaxTxSize {
		str := fmt.Sprintf("serialized transaction is too big - got %d, max "+
			"%d", serializedTxSize, MaxTxSize)
		return ruleError(ErrTxTooBig, str)
	}

	// Ensure the transaction amounts are in range.  Each transaction output
	// must not be negative or more than the max allowed per transaction.  Also,
	// the total of all outputs must abide by the same restrictions.  All
	// amounts in a transaction are in a unit value known as an atom.
	var totalAtoms int64
	for _, txOut := range tx.TxOut {
		atoms := txOut.Value
		if atoms < 0 {
			str := fmt.Sprintf("transaction output has negative value of %v",
				atoms)
			return ruleError(ErrBadTxOutValue, str)
		}
		if atoms > dcrutil.MaxAmount {
			str := fmt.Sprintf("transaction output value of %v is higher than "+
				"max allowed value of %v", atoms, dcrutil.MaxAmount)
			return ruleError(ErrBadTxOutValue, str)
		}

		// Two's complement int64 overflow guarantees that any overflow is
		// detected and reported.
		totalAtoms += atoms
		if totalAtoms < 0 {
			str := fmt.Sprintf("total value of all transaction outputs "+
				"exceeds max allowed value of %v", dcrutil.MaxAmount)
			return ruleError(ErrBadTxOutValue, str)
		}
		if totalAtoms > dcrutil.MaxAmount {
			str := fmt.Sprintf("total value of all transaction outputs is %v "+
				"which is higher than max allowed value of %v", totalAtoms,
				dcrutil.MaxAmount)
			return ruleError(ErrBadTxOutValue, str)
		}
	}

	// Check for duplicate transaction inputs.
	existingTxOut := make(map[wire.OutPoint]struct{}, len(tx.TxIn))
	for _, txIn := range tx.TxIn {
		if _, exists := existingTxOut[txIn.PreviousOutPoint]; exists {
			str := "transaction contains duplicate inputs"
			return ruleError(ErrDuplicateTxInputs, str)
		}
		existingTxOut[txIn.PreviousOutPoint] = struct{}{}
	}

	// Coinbase script length must be between min and max length.
	if IsCoinBaseTx(tx) {
		slen := len(tx.TxIn[0].SignatureScript)
		if slen < MinCoinbaseScriptLen || slen > MaxCoinbaseScriptLen {
			str := fmt.Sprintf("coinbase transaction script length of %d is "+
				"out of range (min: %d, max: %d)", slen, MinCoinbaseScriptLen,
				MaxCoinbaseScriptLen)
			return ruleError(ErrBadCoinbaseScriptLen, str)
		}
		return nil
	}

	// Previous transaction outputs referenced by the inputs to this
	// transaction must not be null.
	for _, txIn := range tx.TxIn {
		if isNullOutpoint(&txIn.PreviousOutPoint) {
			str := "transaction input refers to previous output that is null"
			return ruleError(ErrBadTxInput, str)
		}
	}

	return nil
}

// standaloneToChainRuleError attempts to convert the passed error from a
// standalone package error to a blockchain package error.  When the error is
// not a standalone rule error, the original error is returned.
func standaloneToChainRuleError(err error) error {
	// Convert standalone package rule errors to blockchain rule errors.
	switch {
	case errors.Is(err, standalone.ErrUnexpectedDifficulty):
		return ruleError(ErrUnexpectedDifficulty, err.Error())
	case errors.Is(err, standalone.ErrHighHash):
		return ruleError(ErrHighHash, err.Error())
	}

	return err
}

// checkProofOfWork ensures the block header bits which indicate the target
// difficulty is in min/max range and that the block hash is less than the
// target difficulty as claimed.
//
// The flags modify the behavior of this function as follows:
//   - BFNoPoWCheck: The check to ensure the block hash is less than the target
//     difficulty is not performed.
func checkProofOfWork(header *wire.BlockHeader, powLimit *big.Int, flags BehaviorFlags) error {
	// Only ensure the target difficulty bits are in the valid range when the
	// the flag to avoid proof of work checks is set.
	if flags&BFNoPoWCheck == BFNoPoWCheck {
		err := standalone.CheckProofOfWorkRange(header.Bits, powLimit)
		return standaloneToChainRuleError(err)
	}

	// Perform all proof of work checks (including range) when the flag is not
	// set.
	blockHash := header.BlockHash()
	err := standalone.CheckProofOfWork(&blockHash, header.Bits, powLimit)
	return standaloneToChainRuleError(err)
}

// CheckProofOfWork ensures the block header bits which indicate the target
// difficulty is in min/max range and that the block hash is less than the
// target difficulty as claimed.
func CheckProofOfWork(header *wire.BlockHeader, powLimit *big.Int) error {
	return checkProofOfWork(header, powLimit, BFNone)
}

// checkBlockHeaderSanity performs some preliminary checks on a block header to
// ensure it is sane before continuing with processing.  These checks are
// context free.
//
// The flags do not modify the behavior of this function directly, however they
// are needed to pass along to checkProofOfWork.
func checkBlockHeaderSanity(header *wire.BlockHeader, timeSource MedianTimeSource, flags BehaviorFlags, chainParams *chaincfg.Params) error {
	// Ensure the proof of work bits in the block header is in min/max
	// range and the block hash is less than the target value described by
	// the bits.
	err := checkProofOfWork(header, chainParams.PowLimit, flags)
	if err != nil {
		return err
	}

	// A block timestamp must not have a greater precision than one second.
	// This check is necessary because Go time.Time values support
	// nanosecond precision whereas the consensus rules only apply to
	// seconds and it's much nicer to deal with standard Go time values
	// instead of converting to seconds everywhere.
	if !header.Timestamp.Equal(time.Unix(header.Timestamp.Unix(), 0)) {
		str := fmt.Sprintf("block timestamp of %v has a higher precision than "+
			"one second", header.Timestamp)
		return ruleError(ErrInvalidTime, str)
	}

	// Ensure the block time is not too far in the future.
	maxTimestamp := timeSource.AdjustedTime().Add(time.Second *
		MaxTimeOffsetSeconds)
	if header.Timestamp.After(maxTimestamp) {
		str := fmt.Sprintf("block timestamp of %v is too far in the future",
			header.Timestamp)
		return ruleError(ErrTimeTooNew, str)
	}

	return nil
}

// checkBlockSanity performs some preliminary checks on a block to ensure it is
// sane before continuing with block processing.  These checks are context
// free.
//
// The flags do not modify the behavior of this function directly, however they
// are needed to pass along to checkBlockHeaderSanity.
func checkBlockSanity(block *dcrutil.Block, timeSource MedianTimeSource, flags BehaviorFlags, chainParams *chaincfg.Params) error {
	msgBlock := block.MsgBlock()
	header := &msgBlock.Header
	err := checkBlockHeaderSanity(header, timeSource, flags, chainParams)
	if err != nil {
		return err
	}

	// A block must have at least one regular transaction.
	numTx := len(msgBlock.Transactions)
	if numTx == 0 {
		return ruleError(ErrNoTransactions, "block does not contain any "+
			"transactions")
	}

	// A block must not exceed the maximum allowed block payload when
	// serialized.
	serializedSize := int64(msgBlock.SerializeSize())
	if serializedSize > chainParams.MaxBlockSize {
		str := fmt.Sprintf("serialized block is too big - got %d, max %d",
			serializedSize, chainParams.MaxBlockSize)
		return ruleError(ErrBlockTooBig, str)
	}

	// Build the merkle tree and ensure the calculated merkle root matches the
	// entry in the block header.  This also has the effect of caching all of
	// the transaction hashes in the block to speed up future hash checks.
	wantMerkleRoot := standalone.CalcTxTreeMerkleRoot(msgBlock.Transactions)
	if header.MerkleRoot != wantMerkleRoot {
		str := fmt.Sprintf("block merkle root is invalid - block header "+
			"indicates %v, but calculated value is %v", header.MerkleRoot,
			wantMerkleRoot)
		return ruleError(ErrBadMerkleRoot, str)
	}

	// The first transaction in a block must be a coinbase and no other
	// transaction may be one.
	transactions := block.Transactions()
	if !IsCoinBaseTx(transactions[0].MsgTx()) {
		str := "first transaction in block is not a coinbase"
		return ruleError(ErrFirstTxNotCoinbase, str)
	}
	for i, tx := range transactions[1:] {
		if IsCoinBaseTx(tx.MsgTx()) {
			str := fmt.Sprintf("block contains second coinbase at index %d",
				i+1)
			return ruleError(ErrMultipleCoinbases, str)
		}
	}

	// Do some preliminary checks on each transaction to ensure they are sane
	// before continuing.  Also check for duplicate transactions since a block
	// carrying the same transaction twice has a malleated merkle tree.  The
	// upper bound of signature checks the output scripts could require is
	// accumulated along the way.
	maxSigChecks := chainParams.MaxBlockSigChecks()
	var totalSigChecks int64
	existingTxHashes := make(map[chainhash.Hash]struct{}, numTx)
	for _, tx := range transactions {
		if err := CheckTransactionSanity(tx.MsgTx()); err != nil {
			return err
		}

		hash := tx.Hash()
		if _, exists := existingTxHashes[*hash]; exists {
			str := fmt.Sprintf("block contains duplicate transaction %v", hash)
			return ruleError(ErrDuplicateTx, str)
		}
		existingTxHashes[*hash] = struct{}{}

		for _, txOut := range tx.MsgTx().TxOut {
			totalSigChecks += int64(txscript.GetPreciseSigOpCount(nil,
				txOut.PkScript, false))
		}
		if totalSigChecks > maxSigChecks {
			str := fmt.Sprintf("block contains too many signature checks "+
				"- got at least %d, max %d", totalSigChecks, maxSigChecks)
			return ruleError(ErrTooManySigChecks, str)
		}
	}

	return nil
}

// CheckBlockSanity performs some preliminary checks on a block to ensure it is
// sane before continuing with block processing.  These checks are context
// free.
func CheckBlockSanity(block *dcrutil.Block, timeSource MedianTimeSource, chainParams *chaincfg.Params) error {
	return checkBlockSanity(block, timeSource, BFNone, chainParams)
}

// checkBlockHeaderContext performs several validation checks on the block
// header which depend on its position within the block chain and having the
// headers of all ancestors available.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) checkBlockHeaderContext(header *wire.BlockHeader, prevNode *blockNode, flags BehaviorFlags) error {
	// The genesis block is valid by definition.
	if prevNode == nil {
		return nil
	}

	// Ensure the difficulty specified in the block header matches the
	// calculated difficulty based on the previous block and difficulty
	// retarget rules.
	expDiff := b.calcNextRequiredDifficulty(prevNode, header.Timestamp)
	blockDifficulty := header.Bits
	if blockDifficulty != expDiff {
		str := fmt.Sprintf("block difficulty of %d is not the expected "+
			"value of %d", blockDifficulty, expDiff)
		return ruleError(ErrUnexpectedDifficulty, str)
	}

	// Ensure the timestamp for the block header is after the median time of
	// the last several blocks (medianTimeBlocks).
	medianTime := prevNode.CalcPastMedianTime()
	if !header.Timestamp.After(medianTime) {
		str := fmt.Sprintf("block timestamp of %v is not after expected %v",
			header.Timestamp, medianTime)
		return ruleError(ErrTimeTooOld, str)
	}

	// The height of this block is one more than the referenced previous
	// block.
	blockHeight := prevNode.height + 1

	// Ensure the header commits to the correct height based on the height it
	// actually connects in the blockchain.
	if int64(header.Height) != blockHeight {
		str := fmt.Sprintf("block header commitment to height %d does not "+
			"match chain height %d", header.Height, blockHeight)
		return ruleError(ErrBadBlockHeight, str)
	}

	// Reject outdated block versions once the upgrade that introduced the
	// next version is active.
	params := b.chainParams
	minVersion := int32(1)
	switch {
	case blockHeight >= params.BIP65Height:
		minVersion = 4
	case blockHeight >= params.BIP66Height:
		minVersion = 3
	case blockHeight >= params.BIP34Height:
		minVersion = 2
	}
	if header.Version < minVersion {
		str := fmt.Sprintf("block version %d is older than the minimum "+
			"version %d required at height %d", header.Version, minVersion,
			blockHeight)
		return ruleError(ErrBlockVersionTooOld, str)
	}

	// Ensure chain matches up to predetermined checkpoints.
	blockHash := header.BlockHash()
	if !b.verifyCheckpoint(blockHeight, &blockHash) {
		str := fmt.Sprintf("block at height %d does not match checkpoint hash",
			blockHeight)
		return ruleError(ErrBadCheckpoint, str)
	}

	// Prevent blocks that fork the main chain before the most recently known
	// checkpoint.  This prevents storage of new, otherwise valid, blocks which
	// build off of old blocks that are likely at a much easier difficulty and
	// therefore could be used to waste cache and disk space.
	checkpointNode := b.findPreviousCheckpoint()
	if checkpointNode != nil && blockHeight < checkpointNode.height {
		str := fmt.Sprintf("block at height %d forks the main chain before "+
			"the previous checkpoint at height %d", blockHeight,
			checkpointNode.height)
		return ruleError(ErrForkTooOld, str)
	}

	return nil
}

// checkCoinbaseUniqueHeight checks to ensure that the signature script of the
// coinbase starts with the serialized height of the block.
func checkCoinbaseUniqueHeight(blockHeight int64, block *dcrutil.Block) error {
	want, err := txscript.NewScriptBuilder().AddInt64(blockHeight).Script()
	if err != nil {
		return err
	}
	coinbase := block.MsgBlock().Transactions[0]
	sigScript := coinbase.TxIn[0].SignatureScript
	if !bytes.HasPrefix(sigScript, want) {
		str := fmt.Sprintf("block %s coinbase script does not start with "+
			"the serialized block height %d", block.Hash(), blockHeight)
		return ruleError(ErrBadCoinbaseHeight, str)
	}
	return nil
}

// checkBlockContext performs several validation checks on the block which
// depend on its position within the block chain and having the headers of all
// ancestors available.
//
// This function MUST be called with the chain state lock held (for reads).
func (b *BlockChain) checkBlockContext(block *dcrutil.Block, prevNode *blockNode, flags BehaviorFlags) error {
	// The genesis block is valid by definition.
	if prevNode == nil {
		return nil
	}

	// Perform all block header related validation checks which depend on
	// having the headers of all of its ancestors available.
	msgBlock := block.MsgBlock()
	header := &msgBlock.Header
	err := b.checkBlockHeaderContext(header, prevNode, flags)
	if err != nil {
		return err
	}

	// The height of this block is one more than the referenced previous block.
	params := b.chainParams
	blockHeight := prevNode.height + 1

	// Use the past median time of the previous block as the lock time cutoff
	// once the median time past rules are active.
	blockTime := header.Timestamp
	if blockHeight >= params.CSVHeight {
		blockTime = prevNode.CalcPastMedianTime()
	}

	// Ensure all transactions in the block are finalized.
	for _, tx := range block.Transactions() {
		if !IsFinalizedTransaction(tx, blockHeight, blockTime) {
			str := fmt.Sprintf("block contains unfinalized transaction %v",
				tx.Hash())
			return ruleError(ErrUnfinalizedTx, str)
		}
	}

	// Ensure the transactions after the coinbase are sorted by their hash once
	// canonical transaction ordering is active.
	if blockHeight >= params.MagneticAnomalyHeight {
		txns := block.Transactions()
		for i := 2; i < len(txns); i++ {
			prevHash, hash := txns[i-1].Hash(), txns[i].Hash()
			if bytes.Compare(prevHash[:], hash[:]) >= 0 {
				str := fmt.Sprintf("transaction %v at index %d is not "+
					"sorted after transaction %v", hash, i, prevHash)
				return ruleError(ErrUnorderedTxns, str)
			}
		}
	}

	// Ensure the coinbase starts with the serialized block height.
	if blockHeight >= params.BIP34Height {
		if err := checkCoinbaseUniqueHeight(blockHeight, block); err != nil {
			return err
		}
	}

	return nil
}

// checkDupTxs ensures blocks do not contain duplicate transactions which
// 'overwrite' older transactions that are not fully spent.  This prevents an
// attack where a coinbase and all of its dependent transactions could be
// duplicated to effectively revert the overwritten transactions to a single
// confirmation thereby making them vulnerable to a double spend.
//
// For more details, see https://en.bitcoin.it/wiki/BIP_0030.
func checkDupTxs(txns []*dcrutil.Tx, view CoinsView, blockHeight int64) error {
	for _, tx := range txns {
		prevOut := wire.OutPoint{Hash: *tx.Hash(), Tree: wire.TxTreeRegular}
		for txOutIdx := range tx.MsgTx().TxOut {
			prevOut.Index = uint32(txOutIdx)
			entry, err := view.FetchEntry(prevOut)
			if err != nil {
				return err
			}
			if entry != nil {
				str := fmt.Sprintf("tried to overwrite transaction %v at "+
					"block height %d that is not fully spent", tx.Hash(),
					entry.BlockHeight())
				return ruleError(ErrOverwriteTx, str)
			}
		}
	}

	return nil
}

// connectTransactionOutputs adds all of the spendable outputs of the passed
// transaction to the view.
func connectTransactionOutputs(view *UtxoCache, tx *dcrutil.Tx, blockHeight int64, isCoinBase, possibleOverwrite bool) error {
	outpoint := wire.OutPoint{Hash: *tx.Hash(), Tree: wire.TxTreeRegular}
	for txOutIdx, txOut := range tx.MsgTx().TxOut {
		if isUnspendable(txOut.PkScript) {
			continue
		}
		outpoint.Index = uint32(txOutIdx)
		entry := NewUtxoEntry(txOut, blockHeight, isCoinBase)
		if err := view.AddEntry(outpoint, entry, possibleOverwrite); err != nil {
			return err
		}
	}
	return nil
}

// CheckTransactionInputs performs a series of checks on the inputs to a
// transaction to ensure they are valid.  An example of some of the checks
// include verifying all inputs exist, ensuring the coinbase seasoning
// requirements are met, detecting double spends, validating all values and
// fees are in the legal range and the total output amount doesn't exceed the
// input amount.  The entries referenced by the inputs are returned in input
// order along with the fee.
//
// NOTE: The transaction MUST have already been sanity checked with the
// CheckTransactionSanity function prior to calling this function.
func CheckTransactionInputs(tx *dcrutil.Tx, txHeight int64, view CoinsView, chainParams *chaincfg.Params) (int64, []*UtxoEntry, error) {
	msgTx := tx.MsgTx()
	entries := make([]*UtxoEntry, len(msgTx.TxIn))
	var totalAtomIn int64
	for txInIndex, txIn := range msgTx.TxIn {
		// Ensure the referenced input transaction is available.
		entry, err := view.FetchEntry(txIn.PreviousOutPoint)
		if err != nil {
			return 0, nil, err
		}
		if entry == nil {
			str := fmt.Sprintf("output %v referenced from transaction %s:%d "+
				"either does not exist or has already been spent",
				txIn.PreviousOutPoint, tx.Hash(), txInIndex)
			return 0, nil, ruleError(ErrMissingTxOut, str)
		}

		amount, err := checkInputEntry(tx, txInIndex, entry, txHeight,
			chainParams)
		if err != nil {
			return 0, nil, err
		}

		// The total of all outputs must not be more than the max allowed per
		// transaction.  Also, we could potentially overflow the accumulator so
		// check for overflow.
		lastAtomIn := totalAtomIn
		totalAtomIn += amount
		if totalAtomIn < lastAtomIn || totalAtomIn > dcrutil.MaxAmount {
			str := fmt.Sprintf("total value of all transaction inputs is %v "+
				"which is higher than max allowed value of %v", totalAtomIn,
				dcrutil.MaxAmount)
			return 0, nil, ruleError(ErrBadTxOutValue, str)
		}
		entries[txInIndex] = entry
	}

	fee, err := checkTransactionFee(tx, totalAtomIn)
	if err != nil {
		return 0, nil, err
	}
	return fee, entries, nil
}

// checkInputEntry ensures the provided entry spent by the input at the given
// index of the transaction is mature and carries an amount in range.  It
// returns the amount.
func checkInputEntry(tx *dcrutil.Tx, txInIndex int, entry *UtxoEntry, txHeight int64, chainParams *chaincfg.Params) (int64, error) {
	// Ensure the transaction is not spending coins which have not yet reached
	// the required coinbase maturity.
	if entry.IsCoinBase() {
		originHeight := entry.BlockHeight()
		blocksSincePrev := txHeight - originHeight
		coinbaseMaturity := int64(chainParams.CoinbaseMaturity)
		if blocksSincePrev < coinbaseMaturity {
			str := fmt.Sprintf("tried to spend coinbase output %v from height "+
				"%v at height %v before required maturity of %v blocks",
				tx.MsgTx().TxIn[txInIndex].PreviousOutPoint, originHeight,
				txHeight, coinbaseMaturity)
			return 0, ruleError(ErrImmatureSpend, str)
		}
	}

	// Ensure the transaction amounts are in range.  Each of the output values
	// of the input transactions must not be negative or more than the max
	// allowed per transaction.
	originTxAtom := entry.Amount()
	if originTxAtom < 0 {
		str := fmt.Sprintf("transaction output has negative value of %v",
			originTxAtom)
		return 0, ruleError(ErrBadTxOutValue, str)
	}
	if originTxAtom > dcrutil.MaxAmount {
		str := fmt.Sprintf("transaction output value of %v is higher than max "+
			"allowed value of %v", originTxAtom, dcrutil.MaxAmount)
		return 0, ruleError(ErrBadTxOutValue, str)
	}
	return originTxAtom, nil
}

// checkTransactionFee ensures the total output value of the transaction does
// not exceed the provided total input value and returns the difference, which
// is the fee.
func checkTransactionFee(tx *dcrutil.Tx, totalAtomIn int64) (int64, error) {
	// Calculate the total output amount for this transaction.  It is safe to
	// ignore overflow and out of range errors here because those error
	// conditions would have already been caught by the transaction sanity
	// checks.
	var totalAtomOut int64
	for _, txOut := range tx.MsgTx().TxOut {
		totalAtomOut += txOut.Value
	}

	// Ensure the transaction does not spend more than its inputs.
	if totalAtomIn < totalAtomOut {
		str := fmt.Sprintf("total value of all transaction inputs for "+
			"transaction %v is %v which is less than the amount spent of %v",
			tx.Hash(), totalAtomIn, totalAtomOut)
		return 0, ruleError(ErrSpendTooHigh, str)
	}

	return totalAtomIn - totalAtomOut, nil
}

// checkConnectBlock performs several checks to confirm connecting the passed
// block to the chain represented by the passed view does not violate any
// rules.  In addition, the passed view is updated to spend all of the
// referenced outputs and add all of the new utxos created by block.  Thus, the
// view will represent the state of the chain as if the block were actually
// connected and consequently the best hash for the view is also updated to
// passed block.
//
// The spent outputs are returned in the order they were spent so they can be
// written as the undo data for the block.
//
// This function MUST be called with the chain state lock held (for writes).
func (b *BlockChain) checkConnectBlock(node *blockNode, block *dcrutil.Block, view *UtxoCache) ([]*UtxoEntry, error) {
	// The genesis coinbase is not spendable, so connecting the genesis block
	// only moves the best block of the view.
	if node.parent == nil {
		view.SetBestBlock(node.hash, node.height)
		return nil, nil
	}

	// Ensure the view is for the node being checked.
	if viewHash := view.BestHash(); viewHash != node.parent.hash {
		return nil, AssertError(fmt.Sprintf("inconsistent view when "+
			"checking block connection: best hash is %v instead of expected "+
			"%v", viewHash, node.parent.hash))
	}

	params := b.chainParams
	txns := block.Transactions()
	prevNode := node.parent

	// Ensure no transaction overwrites an unspent output prior to the height
	// where the buried unique coinbase rule makes the check redundant.
	if node.height < params.BIP30BypassHeight {
		if err := checkDupTxs(txns, view, node.height); err != nil {
			return nil, err
		}
	}

	// Add the outputs of every transaction before spending any inputs since
	// transactions are not necessarily topologically ordered once canonical
	// ordering is active.  Prior to that, spends of transactions later in the
	// block are rejected below.
	isCTORActive := node.height >= params.MagneticAnomalyHeight
	txIndexes := make(map[chainhash.Hash]int, len(txns))
	for txIdx, tx := range txns {
		txIndexes[*tx.Hash()] = txIdx
		isCoinBase := txIdx == 0
		err := connectTransactionOutputs(view, tx, node.height, isCoinBase,
			isCoinBase)
		if err != nil {
			return nil, err
		}
	}

	// Spend the inputs of every transaction while performing the input checks
	// that depend on the spent outputs.
	isCSVActive := node.height >= params.CSVHeight
	prevMedianTime := prevNode.CalcPastMedianTime()
	spent := make([]*UtxoEntry, 0, countSpentOutputs(block))
	prevOuts := make(PrevOutputs, cap(spent))
	var totalFees int64
	for txIdx, tx := range txns[1:] {
		txIdx++
		msgTx := tx.MsgTx()
		entries := make([]*UtxoEntry, len(msgTx.TxIn))
		var totalAtomIn int64
		for txInIndex, txIn := range msgTx.TxIn {
			prevOut := txIn.PreviousOutPoint
			if originIdx, ok := txIndexes[prevOut.Hash]; ok && !isCTORActive &&
				originIdx >= txIdx {

				str := fmt.Sprintf("output %v referenced from transaction "+
					"%s:%d is created later in the block", prevOut, tx.Hash(),
					txInIndex)
				return nil, ruleError(ErrMissingTxOut, str)
			}

			entry, err := view.SpendEntry(prevOut)
			if err != nil {
				return nil, err
			}
			if entry == nil {
				str := fmt.Sprintf("output %v referenced from transaction "+
					"%s:%d either does not exist or has already been spent",
					prevOut, tx.Hash(), txInIndex)
				return nil, ruleError(ErrMissingTxOut, str)
			}

			amount, err := checkInputEntry(tx, txInIndex, entry, node.height,
				params)
			if err != nil {
				return nil, err
			}
			lastAtomIn := totalAtomIn
			totalAtomIn += amount
			if totalAtomIn < lastAtomIn || totalAtomIn > dcrutil.MaxAmount {
				str := fmt.Sprintf("total value of all transaction inputs "+
					"is %v which is higher than max allowed value of %v",
					totalAtomIn, dcrutil.MaxAmount)
				return nil, ruleError(ErrBadTxOutValue, str)
			}

			entries[txInIndex] = entry
			spent = append(spent, entry)
			prevOuts[prevOut] = entry
		}

		fee, err := checkTransactionFee(tx, totalAtomIn)
		if err != nil {
			return nil, err
		}

		// Sum the total fees and ensure we don't overflow the accumulator.
		lastTotalFees := totalFees
		totalFees += fee
		if totalFees < lastTotalFees {
			return nil, ruleError(ErrBadFees, "total fees for block overflows "+
				"accumulator")
		}

		// Enforce all relative lock times via sequence numbers.
		if isCSVActive {
			sequenceLock := b.calcSequenceLock(prevNode, msgTx, entries)
			if !SequenceLockActive(sequenceLock, node.height, prevMedianTime) {
				str := fmt.Sprintf("block contains transaction %v whose "+
					"input sequence locks are not met", tx.Hash())
				return nil, ruleError(ErrUnfinalizedTx, str)
			}
		}
	}

	// The total output values of the coinbase transaction must not exceed the
	// expected subsidy value plus total transaction fees gained from mining
	// the block.  It is safe to ignore overflow and out of range errors here
	// because those error conditions would have already been caught by
	// checkTransactionSanity.
	var totalAtomOutRegular int64
	for _, txOut := range txns[0].MsgTx().TxOut {
		totalAtomOutRegular += txOut.Value
	}
	expAtomOut := CalcBlockSubsidy(node.height, params) + totalFees
	if totalAtomOutRegular > expAtomOut {
		str := fmt.Sprintf("coinbase transaction for block %v pays %v which "+
			"is more than expected value of %v", node.hash,
			totalAtomOutRegular, expAtomOut)
		return nil, ruleError(ErrBadCoinbaseValue, str)
	}

	// Don't run scripts if this node is before the latest known good
	// checkpoint or an ancestor of the assumed valid block since the validity
	// is verified via the checkpoints (all transactions are included in the
	// merkle root hash and any changes will therefore be detected by the next
	// checkpoint).
	if b.shouldCheckScripts(node) {
		scriptFlags := b.GetBlockScriptFlags(node)
		err := b.checkBlockScripts(block, prevOuts, scriptFlags)
		if err != nil {
			log.Tracef("checkBlockScripts failed for block %v: %v", node.hash,
				err)
			return nil, err
		}
	}

	// Update the best hash for view to include this block since all of its
	// transactions have been connected.
	view.SetBestBlock(node.hash, node.height)
	return spent, nil
}

// DisconnectResult describes the outcome of undoing the effects of a block on
// the unspent transaction output set.
type DisconnectResult int

// These constants define the possible disconnect results.
const (
	// DisconnectOK indicates the block was disconnected and the resulting
	// state is exactly the one prior to connecting it.
	DisconnectOK DisconnectResult = iota

	// DisconnectUnclean indicates the block was disconnected, but the undo
	// data did not match the state exactly.  The resulting state is usable.
	DisconnectUnclean

	// DisconnectFailed indicates the block could not be disconnected.
	DisconnectFailed
)

// String returns the DisconnectResult as a human-readable name.
func (r DisconnectResult) String() string {
	switch r {
	case DisconnectOK:
		return "ok"
	case DisconnectUnclean:
		return "unclean"
	case DisconnectFailed:
		return "failed"
	}
	return fmt.Sprintf("unknown disconnect result (%d)", int(r))
}

// disconnectBlock undoes the effects of the passed block on the view by
// restoring the provided spent outputs, which must be the undo data for the
// block, and removing every output the block created.  The best block of the
// view is moved to the parent of the block.
//
// Inconsistencies between the undo data and the view do not prevent the
// disconnect and are reported as DisconnectUnclean.  Undo data that does not
// match the shape of the block is reported as DisconnectFailed.
func disconnectBlock(node *blockNode, block *dcrutil.Block, spent []*UtxoEntry, view *UtxoCache) (DisconnectResult, error) {
	txns := block.Transactions()
	if numSpent := countSpentOutputs(block); len(spent) != numSpent {
		str := fmt.Sprintf("undo data for block %s has %d entries instead of "+
			"the expected %d", node.hash, len(spent), numSpent)
		return DisconnectFailed, contextError(ErrMissingUndoData, str)
	}

	// Restore the spent outputs first so outputs both created and spent by the
	// block are removed by the second pass.
	clean := true
	var spentIdx int
	for _, tx := range txns[1:] {
		for _, txIn := range tx.MsgTx().TxIn {
			prevOut := txIn.PreviousOutPoint
			entry := spent[spentIdx]
			spentIdx++

			existing, err := view.FetchEntry(prevOut)
			if err != nil {
				return DisconnectFailed, err
			}
			overwrite := existing != nil
			if overwrite {
				clean = false
			}
			if err := view.AddEntry(prevOut, entry, overwrite); err != nil {
				return DisconnectFailed, err
			}
		}
	}

	// Remove all of the outputs created by the block, ensuring they match the
	// outputs in the block exactly.
	for txIdx := len(txns) - 1; txIdx >= 0; txIdx-- {
		tx := txns[txIdx]
		isCoinBase := txIdx == 0
		outpoint := wire.OutPoint{Hash: *tx.Hash(), Tree: wire.TxTreeRegular}
		for txOutIdx, txOut := range tx.MsgTx().TxOut {
			if isUnspendable(txOut.PkScript) {
				continue
			}
			outpoint.Index = uint32(txOutIdx)
			entry, err := view.SpendEntry(outpoint)
			if err != nil {
				return DisconnectFailed, err
			}
			want := NewUtxoEntry(txOut, node.height, isCoinBase)
			if entry == nil || !entry.sameOutput(want) {
				clean = false
			}
		}
	}

	view.SetBestBlock(node.parent.hash, node.parent.height)
	if !clean {
		return DisconnectUnclean, nil
	}
	return DisconnectOK, nil
}
