// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2020 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"errors"
	"fmt"

	"github.com/xecnode/xecd/internal/blockchain"
)

// ErrorKind identifies a kind of error.  It has full support for errors.Is and
// errors.As, so the caller can directly check against an error kind when
// determining the reason for an error.
type ErrorKind string

const (
	// ErrInvalid indicates the mempool transaction is invalid per consensus.
	ErrInvalid = ErrorKind("ErrInvalid")

	// ErrOrphanPolicyViolation indicates that the orphan transaction violates
	// the prevailing orphan policy.
	ErrOrphanPolicyViolation = ErrorKind("ErrOrphanPolicyViolation")

	// ErrMempoolDoubleSpend indicates the transaction attempts to double spend
	// outputs already spent by another transaction in the pool.
	ErrMempoolDoubleSpend = ErrorKind("ErrMempoolDoubleSpend")

	// ErrDuplicate indicates the transaction already exists in the mempool.
	ErrDuplicate = ErrorKind("ErrDuplicate")

	// ErrCoinbase indicates the transaction is a standalone coinbase
	// transaction.
	ErrCoinbase = ErrorKind("ErrCoinbase")

	// ErrNonStandard indicates a non-standard transaction.
	ErrNonStandard = ErrorKind("ErrNonStandard")

	// ErrDustOutput indicates the transaction has dust outputs.
	ErrDustOutput = ErrorKind("ErrDustOutput")

	// ErrInsufficientFee indicates the transaction does not pay the minimum
	// relay fee for its size.
	ErrInsufficientFee = ErrorKind("ErrInsufficientFee")

	// ErrAlreadyExists indicates the transaction already exists on the main
	// chain and is not fully spent.
	ErrAlreadyExists = ErrorKind("ErrAlreadyExists")

	// ErrSeqLockUnmet indicates the transaction sequence locks are not active.
	ErrSeqLockUnmet = ErrorKind("ErrSeqLockUnmet")

	// ErrFeeTooHigh indicates the transaction pays fees above the maximum
	// allowed by the mempool.
	ErrFeeTooHigh = ErrorKind("ErrFeeTooHigh")

	// ErrOrphan indicates the transaction is an orphan.
	ErrOrphan = ErrorKind("ErrOrphan")

	// ErrRecentlyRejected indicates the transaction was rejected recently and
	// is ignored until the next block is connected.
	ErrRecentlyRejected = ErrorKind("ErrRecentlyRejected")

	// ErrMempoolFull indicates the transaction was accepted, but evicted
	// again because it pays the lowest feerate of a full pool.
	ErrMempoolFull = ErrorKind("ErrMempoolFull")

	// ErrPackagePolicy indicates a package does not have the shape or size
	// required for package acceptance.
	ErrPackagePolicy = ErrorKind("ErrPackagePolicy")

	// ErrPackageInvalid indicates a member of a package failed a rule that is
	// not related to fees or missing inputs, so the package is abandoned.
	ErrPackageInvalid = ErrorKind("ErrPackageInvalid")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}

// RuleError identifies a rule violation.  It is used to indicate that
// processing of a transaction failed due to one of the many validation
// rules.  It has full support for errors.Is and errors.As, so the caller
// can ascertain the specific reason for the error by checking the
// underlying error, which will be either a TxRuleError or a
// blockchain.RuleError.
type RuleError struct {
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e RuleError) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e RuleError) Unwrap() error {
	return e.Err
}

// chainRuleError returns a RuleError that encapsulates the given
// blockchain.RuleError.
func chainRuleError(chainErr blockchain.RuleError) RuleError {
	return RuleError{
		Err:         chainErr.Err,
		Description: chainErr.Description,
	}
}

// convertChainError converts the passed error to a RuleError when it is a
// blockchain.RuleError and returns it unchanged otherwise.
func convertChainError(err error) error {
	var cerr blockchain.RuleError
	if errors.As(err, &cerr) {
		return chainRuleError(cerr)
	}
	return err
}

// TxRuleError identifies a rule violation.  It is used to indicate that
// processing of a transaction failed due to one of the many validation
// rules.  It has full support for errors.Is and errors.As, so the caller
// can ascertain the specific reason for the error by checking the
// underlying error.
type TxRuleError struct {
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e TxRuleError) Error() string {
	return e.Description
}

// Unwrap returns the underlying wrapped error.
func (e TxRuleError) Unwrap() error {
	return e.Err
}

// txRuleError creates an Error given a set of arguments.
func txRuleError(kind ErrorKind, desc string) TxRuleError {
	return TxRuleError{Err: kind, Description: desc}
}

// wrapTxRuleError returns a new TxRuleError, replacing the description with
// the provided one while retaining the error kind from the original error if
// it can be determined.
func wrapTxRuleError(errKind ErrorKind, desc string, err error) error {
	kind := errKind
	var terr TxRuleError
	if errors.As(err, &terr) {
		if k, ok := terr.Err.(ErrorKind); ok {
			kind = k
		}
	}

	// Fill a default error description if empty.
	if desc == "" {
		desc = fmt.Sprintf("rejected: %v", err)
	}

	return txRuleError(kind, desc)
}

// isConsensusError returns whether the passed error indicates the transaction
// violates a consensus rule and can therefore never be valid in the current
// chain context.
func isConsensusError(err error) bool {
	var cerr RuleError
	if !errors.As(err, &cerr) {
		return errors.Is(err, ErrInvalid)
	}
	var berr blockchain.ErrorKind
	return errors.As(cerr.Err, &berr)
}
