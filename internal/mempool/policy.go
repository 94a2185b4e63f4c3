// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2017-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"fmt"

	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/txscript/v4/stdscript"
	"github.com/decred/dcrd/wire"
	"github.com/xecnode/xecd/internal/blockchain"
)

const (
	// maxStandardP2SHSigOps is the maximum number of signature operations
	// that are considered standard in a pay-to-script-hash script.
	maxStandardP2SHSigOps = 15

	// MaxStandardTxSize is the maximum size allowed for transactions that
	// are considered standard and will therefore be relayed and considered
	// for mining.
	MaxStandardTxSize = 100000

	// maxStandardSigScriptSize is the maximum size allowed for a
	// transaction input signature script to be considered standard.  This
	// value allows for a 15-of-15 CHECKMULTISIG pay-to-script-hash with
	// compressed keys.
	//
	// The form of the overall script is: OP_0 <15 signatures> OP_PUSHDATA2
	// <2 bytes len> [OP_15 <15 pubkeys> OP_15 OP_CHECKMULTISIG]
	//
	// (1 + 15*74 + 3) + (15*34 + 3) + 23 = 1650
	maxStandardSigScriptSize = 1650

	// maxStandardNullDataSize is the maximum size of a null data script,
	// including the OP_RETURN, that is considered standard.
	maxStandardNullDataSize = 223

	// maxNullDataOutputs is the maximum number of null data outputs in a
	// transaction, after which it is considered non-standard.
	maxNullDataOutputs = 1

	// DefaultMinRelayTxFee is the minimum fee in atoms per 1000 bytes that is
	// required for a transaction to be relayed and accepted into the pool.
	// It is also used to determine if a transaction output is considered
	// dust.
	DefaultMinRelayTxFee = dcrutil.Amount(1000)

	// maxStandardMultiSigKeys is the maximum number of public keys allowed
	// in a multi-signature transaction output script for it to be
	// considered standard.
	maxStandardMultiSigKeys = 3

	// DefaultMaxSigChecksPerTx is the maximum number of signature checks a
	// standard transaction may perform.
	DefaultMaxSigChecksPerTx = 3000

	// minStandardTxVersion is the minimum transaction version that is
	// considered standard.
	minStandardTxVersion = 1
)

// calcMinRequiredTxRelayFee returns the minimum transaction fee required for a
// transaction with the passed serialized size to be accepted into the memory
// pool and relayed.
func calcMinRequiredTxRelayFee(serializedSize int64, minRelayTxFee dcrutil.Amount) int64 {
	// Calculate the minimum fee for a transaction to be allowed into the
	// mempool and relayed by scaling the base fee.  minRelayTxFee is in
	// Atom/KB, so multiply by serializedSize (which is in bytes) and divide
	// by 1000 to get minimum Atoms.
	minFee := (serializedSize * int64(minRelayTxFee)) / 1000

	if minFee == 0 && minRelayTxFee > 0 {
		minFee = int64(minRelayTxFee)
	}

	// Set the minimum fee to the maximum possible value if the calculated
	// fee is not in the valid range for monetary amounts.
	if minFee < 0 || minFee > dcrutil.MaxAmount {
		minFee = dcrutil.MaxAmount
	}

	return minFee
}

// checkInputsStandard performs a series of checks on a transaction's inputs
// to ensure they are "standard".  A standard transaction input within the
// context of this function is one whose referenced public key script is of a
// standard form and, for pay-to-script-hash, does not have more than
// maxStandardP2SHSigOps signature operations.  The entries are the outputs
// spent by the inputs in input order.
//
// Note: all non-nil errors MUST be TxRuleError instances.
func checkInputsStandard(tx *dcrutil.Tx, entries []*blockchain.UtxoEntry) error {
	for i, txIn := range tx.MsgTx().TxIn {
		// It is safe to elide existence and index checks here since
		// they have already been checked prior to calling this
		// function.
		entry := entries[i]
		originPkScriptVer := entry.ScriptVersion()
		originPkScript := entry.PkScript()
		switch stdscript.DetermineScriptType(originPkScriptVer, originPkScript) {
		case stdscript.STScriptHash:
			numSigOps := txscript.GetPreciseSigOpCount(txIn.SignatureScript,
				originPkScript, false)
			if numSigOps > maxStandardP2SHSigOps {
				str := fmt.Sprintf("transaction input #%d has "+
					"%d signature operations which is more "+
					"than the allowed max amount of %d",
					i, numSigOps, maxStandardP2SHSigOps)
				return txRuleError(ErrNonStandard, str)
			}

		case stdscript.STNonStandard:
			str := fmt.Sprintf("transaction input #%d has a "+
				"non-standard script form", i)
			return txRuleError(ErrNonStandard, str)
		}
	}

	return nil
}

// checkPkScriptStandard performs a series of checks on a transaction output
// script (public key script) to ensure it is a "standard" public key script.
// A standard public key script is one that is a recognized form, and for
// multi-signature scripts, only contains from 1 to maxStandardMultiSigKeys
// public keys.
//
// Note: all non-nil errors MUST be TxRuleError instances.
func checkPkScriptStandard(version uint16, pkScript []byte,
	scriptType stdscript.ScriptType) error {

	// Only version 0 scripts are standard at the current time.
	if version != wire.DefaultPkScriptVersion {
		str := "versions other than default pkscript version are " +
			"currently non-standard"
		return txRuleError(ErrNonStandard, str)
	}

	switch scriptType {
	case stdscript.STPubKeyEcdsaSecp256k1,
		stdscript.STPubKeyHashEcdsaSecp256k1,
		stdscript.STScriptHash:

	case stdscript.STMultiSig:
		// A standard multi-signature public key script must contain
		// from 1 to maxStandardMultiSigKeys public keys.
		details := stdscript.ExtractMultiSigScriptDetailsV0(pkScript, false)
		numPubKeys := details.NumPubKeys
		if numPubKeys < 1 {
			str := "multi-signature script with no pubkeys"
			return txRuleError(ErrNonStandard, str)
		}
		if numPubKeys > maxStandardMultiSigKeys {
			str := fmt.Sprintf("multi-signature script with %d "+
				"public keys which is more than the allowed "+
				"max of %d", numPubKeys, maxStandardMultiSigKeys)
			return txRuleError(ErrNonStandard, str)
		}

		// A standard multi-signature public key script must have at least 1
		// signature and no more signatures than available public keys.
		numSigs := details.RequiredSigs
		if numSigs < 1 {
			return txRuleError(ErrNonStandard,
				"multi-signature script with no signatures")
		}
		if numSigs > numPubKeys {
			str := fmt.Sprintf("multi-signature script with %d "+
				"signatures which is more than the available %d "+
				"public keys", numSigs, numPubKeys)
			return txRuleError(ErrNonStandard, str)
		}

	case stdscript.STNullData:
		if len(pkScript) > maxStandardNullDataSize {
			str := fmt.Sprintf("null data script of %d bytes is larger "+
				"than the max allowed size of %d bytes", len(pkScript),
				maxStandardNullDataSize)
			return txRuleError(ErrNonStandard, str)
		}

	default:
		return txRuleError(ErrNonStandard, "non-standard script form")
	}

	return nil
}

// isDust returns whether or not the passed transaction output amount is
// considered dust or not based on the passed minimum transaction relay fee.
// Dust is defined in terms of the minimum transaction relay fee.  In
// particular, if the cost to the network to spend coins is more than 1/3 of the
// minimum transaction relay fee, it is considered dust.
func isDust(txOut *wire.TxOut, minRelayTxFee dcrutil.Amount) bool {
	// Unspendable outputs are considered dust.
	if txscript.IsUnspendable(txOut.Value, txOut.PkScript) {
		return true
	}

	// The total serialized size consists of the output and the associated
	// input script to redeem it.  Since there is no input script to redeem
	// it yet, use the size of a typical pay-to-pubkey-hash input:
	//
	//   36 prev outpoint, 1 script len, 107 script [1 OP_DATA_72, 72 sig,
	//   1 OP_DATA_33, 33 compressed pubkey], 4 sequence
	totalSize := txOut.SerializeSize() + 148

	// The following is equivalent to (value/totalSize) * (1/3) * 1000
	// without needing to do floating point math.
	return txOut.Value*1000/(3*int64(totalSize)) < int64(minRelayTxFee)
}

// checkTransactionStandard performs a series of checks on a transaction to
// ensure it is a "standard" transaction.  A standard transaction is one that
// conforms to several additional limiting cases over what is considered a
// "sane" transaction such as having a version in the supported range,
// conforming to more stringent size constraints, having scripts of recognized
// forms, and not containing "dust" outputs (those that are so small it costs
// more to process them than they are worth).
//
// Note: all non-nil errors MUST be TxRuleError instances.
func checkTransactionStandard(tx *dcrutil.Tx, minRelayTxFee dcrutil.Amount,
	maxTxVersion uint16) error {

	// The transaction must be a currently supported version and serialize
	// type.
	msgTx := tx.MsgTx()
	if msgTx.Version < minStandardTxVersion || msgTx.Version > maxTxVersion {
		str := fmt.Sprintf("transaction version %d is not in the valid "+
			"range of %d-%d", msgTx.Version, minStandardTxVersion,
			maxTxVersion)
		return txRuleError(ErrNonStandard, str)
	}
	if msgTx.SerType != wire.TxSerializeFull {
		str := fmt.Sprintf("transaction is not serialized with all "+
			"required data -- type %v", msgTx.SerType)
		return txRuleError(ErrNonStandard, str)
	}

	// Since extremely large transactions with a lot of inputs can cost
	// almost as much to process as the sender fees, limit the maximum
	// size of a transaction.  This also helps mitigate CPU exhaustion
	// attacks.
	serializedLen := msgTx.SerializeSize()
	if serializedLen > MaxStandardTxSize {
		str := fmt.Sprintf("transaction size of %v is larger than max "+
			"allowed size of %v", serializedLen, MaxStandardTxSize)
		return txRuleError(ErrNonStandard, str)
	}

	for i, txIn := range msgTx.TxIn {
		// Each transaction input signature script must not exceed the
		// maximum size allowed for a standard transaction.  See
		// the comment on maxStandardSigScriptSize for more details.
		sigScriptLen := len(txIn.SignatureScript)
		if sigScriptLen > maxStandardSigScriptSize {
			str := fmt.Sprintf("transaction input %d: signature "+
				"script size of %d bytes is larger than max "+
				"allowed size of %d bytes", i, sigScriptLen,
				maxStandardSigScriptSize)
			return txRuleError(ErrNonStandard, str)
		}

		// Each transaction input signature script must only contain
		// opcodes which push data onto the stack.
		if !txscript.IsPushOnlyScript(txIn.SignatureScript) {
			str := fmt.Sprintf("transaction input %d: signature "+
				"script is not push only", i)
			return txRuleError(ErrNonStandard, str)
		}
	}

	// None of the output public key scripts can be a non-standard script or
	// be "dust" (except when the script is a null data script).
	numNullDataOutputs := 0
	for i, txOut := range msgTx.TxOut {
		scriptType := stdscript.DetermineScriptType(txOut.Version,
			txOut.PkScript)
		err := checkPkScriptStandard(txOut.Version, txOut.PkScript, scriptType)
		if err != nil {
			str := fmt.Sprintf("transaction output %d: %v", i, err)
			return wrapTxRuleError(ErrNonStandard, str, err)
		}

		// Accumulate the number of outputs which only carry data.  For
		// all other script types, ensure the output value is not
		// "dust".
		if scriptType == stdscript.STNullData {
			numNullDataOutputs++
		} else if isDust(txOut, minRelayTxFee) {
			str := fmt.Sprintf("transaction output %d: payment "+
				"of %d is dust", i, txOut.Value)
			return txRuleError(ErrDustOutput, str)
		}
	}

	// A standard transaction must not have more than one output script that
	// only carries data.
	if numNullDataOutputs > maxNullDataOutputs {
		str := "more than one transaction output in a nulldata script"
		return txRuleError(ErrNonStandard, str)
	}

	return nil
}
