// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"strings"

	"github.com/decred/dcrd/txscript/v4"
	"github.com/xecnode/xecd/chaincfg"
)

// ScriptFlags is a bitmask defining the script verification rules in effect
// for a block or transaction.
type ScriptFlags uint32

const (
	// ScriptVerifyP2SH enables evaluation of pay-to-script-hash outputs
	// (BIP16).
	ScriptVerifyP2SH ScriptFlags = 1 << iota

	// ScriptVerifyStrictEnc requires strictly encoded signatures and public
	// keys.
	ScriptVerifyStrictEnc

	// ScriptVerifyDERSig requires strict DER signatures (BIP66).
	ScriptVerifyDERSig

	// ScriptVerifyLowS requires signatures with a low S value.
	ScriptVerifyLowS

	// ScriptVerifySigPushOnly requires signature scripts to only push data.
	ScriptVerifySigPushOnly

	// ScriptVerifyMinimalData requires minimal data pushes.
	ScriptVerifyMinimalData

	// ScriptVerifyCleanStack requires exactly one true element on the stack
	// after evaluation.
	ScriptVerifyCleanStack

	// ScriptVerifyCheckLockTimeVerify enables OP_CHECKLOCKTIMEVERIFY
	// (BIP65).
	ScriptVerifyCheckLockTimeVerify

	// ScriptVerifyCheckSequenceVerify enables OP_CHECKSEQUENCEVERIFY
	// (BIP112).
	ScriptVerifyCheckSequenceVerify

	// ScriptVerifyInputSigChecks limits the signature checks of each input
	// relative to the size of its signature script.
	ScriptVerifyInputSigChecks

	// ScriptReportSigChecks counts the signature checks of each input
	// against the transaction and block limits.
	ScriptReportSigChecks

	// ScriptDiscourageUpgradableNops rejects reserved no-op opcodes.  It is
	// a policy flag and never applied to blocks.
	ScriptDiscourageUpgradableNops

	// numScriptFlags is the number of defined flags.  It must be the last
	// entry.
	numScriptFlags = iota
)

// scriptFlagNames maps each flag to its name.
var scriptFlagNames = [numScriptFlags]string{
	"P2SH",
	"STRICTENC",
	"DERSIG",
	"LOW_S",
	"SIGPUSHONLY",
	"MINIMALDATA",
	"CLEANSTACK",
	"CHECKLOCKTIMEVERIFY",
	"CHECKSEQUENCEVERIFY",
	"INPUT_SIGCHECKS",
	"REPORT_SIGCHECKS",
	"DISCOURAGE_UPGRADABLE_NOPS",
}

// String returns the set flags as a comma separated list of names.
func (f ScriptFlags) String() string {
	var names []string
	for i := 0; i < numScriptFlags; i++ {
		if f&(1<<i) != 0 {
			names = append(names, scriptFlagNames[i])
		}
	}
	if len(names) == 0 {
		return "NONE"
	}
	return strings.Join(names, ",")
}

// engineFlags converts the flags to the flags understood by the script engine.
// The engine always evaluates pay-to-script-hash and always enforces strict
// encoding, DER and low S signatures, and minimal data pushes, so only the
// flags that change its behavior are mapped.  The signature check flags are
// applied by the validator itself.
func (f ScriptFlags) engineFlags() txscript.ScriptFlags {
	flags := txscript.ScriptVerifySHA256
	if f&ScriptVerifyCheckLockTimeVerify != 0 {
		flags |= txscript.ScriptVerifyCheckLockTimeVerify
	}
	if f&ScriptVerifyCheckSequenceVerify != 0 {
		flags |= txscript.ScriptVerifyCheckSequenceVerify
	}
	if f&ScriptVerifyCleanStack != 0 {
		flags |= txscript.ScriptVerifyCleanStack
	}
	if f&ScriptVerifySigPushOnly != 0 {
		flags |= txscript.ScriptVerifySigPushOnly
	}
	if f&ScriptDiscourageUpgradableNops != 0 {
		flags |= txscript.ScriptDiscourageUpgradableNops
	}
	return flags
}

// scriptFlagsForHeight returns the script flags that apply to a block at the
// given height.  Every upgrade is active from its activation height onward.
func scriptFlagsForHeight(height int64, params *chaincfg.Params) ScriptFlags {
	var flags ScriptFlags
	if height >= params.BIP16Height {
		flags |= ScriptVerifyP2SH
	}
	if height >= params.BIP66Height {
		flags |= ScriptVerifyDERSig
	}
	if height >= params.BIP65Height {
		flags |= ScriptVerifyCheckLockTimeVerify
	}
	if height >= params.CSVHeight {
		flags |= ScriptVerifyCheckSequenceVerify
	}
	if height >= params.UAHFHeight {
		flags |= ScriptVerifyStrictEnc
	}
	if height >= params.DAAHeight {
		flags |= ScriptVerifyLowS
	}
	if height >= params.MagneticAnomalyHeight {
		flags |= ScriptVerifySigPushOnly | ScriptVerifyCleanStack
	}
	if height >= params.GravitonHeight {
		flags |= ScriptVerifyMinimalData
	}
	if height >= params.PhononHeight {
		flags |= ScriptVerifyInputSigChecks | ScriptReportSigChecks
	}
	return flags
}

// GetBlockScriptFlags returns the script flags that apply to the block
// represented by the passed node.
//
// This function is safe for concurrent access.
func (b *BlockChain) GetBlockScriptFlags(node *blockNode) ScriptFlags {
	return scriptFlagsForHeight(node.height, b.chainParams)
}

// StandardVerifyFlags returns the script flags that apply to transactions
// entering the memory pool.  They are the consensus flags of the block after
// the current best chain plus the policy flags.
//
// This function is safe for concurrent access.
func (b *BlockChain) StandardVerifyFlags() ScriptFlags {
	nextHeight := b.BestSnapshot().Height + 1
	return scriptFlagsForHeight(nextHeight, b.chainParams) |
		ScriptVerifyP2SH | ScriptVerifyStrictEnc | ScriptVerifyDERSig |
		ScriptVerifyLowS | ScriptVerifyMinimalData |
		ScriptDiscourageUpgradableNops
}
