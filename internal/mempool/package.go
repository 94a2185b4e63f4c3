// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/wire"
)

const (
	// MaxPackageCount is the maximum number of transactions in a package.
	MaxPackageCount = 50

	// MaxPackageSize is the maximum total serialized size of the
	// transactions in a package.
	MaxPackageSize = 101000
)

// PackageResult describes the outcome of a successfully processed package.
type PackageResult struct {
	// Accepted holds the transactions added to the pool in the order they
	// were added.  It includes orphans that were accepted as a result of the
	// package.
	Accepted []*dcrutil.Tx

	// AlreadyInPool holds the members of the package that were already in
	// the pool.
	AlreadyInPool []*dcrutil.Tx

	// PackageFeeRate is the aggregate feerate in atoms/kB of the members
	// that could only be accepted together.  It is zero when every member
	// was accepted on its own.
	PackageFeeRate int64
}

// checkPackage ensures the passed transactions form a package of a child and
// all of its unconfirmed parents sorted so parents come before children.
func checkPackage(txns []*dcrutil.Tx) error {
	if len(txns) == 0 {
		return txRuleError(ErrPackagePolicy, "package is empty")
	}
	if len(txns) > MaxPackageCount {
		str := fmt.Sprintf("package has %d transactions which is more than "+
			"the max allowed %d", len(txns), MaxPackageCount)
		return txRuleError(ErrPackagePolicy, str)
	}

	var totalSize int
	index := make(map[chainhash.Hash]int, len(txns))
	spent := make(map[wire.OutPoint]struct{})
	for i, tx := range txns {
		totalSize += tx.MsgTx().SerializeSize()
		if _, ok := index[*tx.Hash()]; ok {
			str := fmt.Sprintf("package contains transaction %v more than "+
				"once", tx.Hash())
			return txRuleError(ErrPackagePolicy, str)
		}
		index[*tx.Hash()] = i

		for _, txIn := range tx.MsgTx().TxIn {
			if _, ok := spent[txIn.PreviousOutPoint]; ok {
				str := fmt.Sprintf("package members spend output %v more "+
					"than once", txIn.PreviousOutPoint)
				return txRuleError(ErrPackagePolicy, str)
			}
			spent[txIn.PreviousOutPoint] = struct{}{}
		}
	}
	if totalSize > MaxPackageSize {
		str := fmt.Sprintf("package size of %d bytes is larger than the max "+
			"allowed %d bytes", totalSize, MaxPackageSize)
		return txRuleError(ErrPackagePolicy, str)
	}

	// Every member may only spend outputs of the members before it.
	for i, tx := range txns {
		for _, txIn := range tx.MsgTx().TxIn {
			if j, ok := index[txIn.PreviousOutPoint.Hash]; ok && j >= i {
				str := fmt.Sprintf("package is not sorted: transaction %v "+
					"spends an output of the later transaction %v",
					tx.Hash(), txns[j].Hash())
				return txRuleError(ErrPackagePolicy, str)
			}
		}
	}

	// The last member is the child and every other member must be one of
	// its parents.
	child := txns[len(txns)-1]
	parents := make(map[chainhash.Hash]struct{})
	for _, txIn := range child.MsgTx().TxIn {
		parents[txIn.PreviousOutPoint.Hash] = struct{}{}
	}
	for _, tx := range txns[:len(txns)-1] {
		if _, ok := parents[*tx.Hash()]; !ok {
			str := fmt.Sprintf("package transaction %v is not a parent of "+
				"the child %v", tx.Hash(), child.Hash())
			return txRuleError(ErrPackagePolicy, str)
		}
	}

	return nil
}

// packageMemberError converts an error for a package member into the error
// returned for the whole package.  Members that can never be valid in the
// current chain context are recorded as rejected and cause the package to be
// reported as invalid.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) packageMemberError(tx *dcrutil.Tx, err error) error {
	if !isConsensusError(err) {
		return err
	}
	mp.recordRejection(tx, err)
	str := fmt.Sprintf("package member %v is invalid: %v", tx.Hash(), err)
	return txRuleError(ErrPackageInvalid, str)
}

// ProcessPackage attempts to add a package made of a child transaction and
// its unconfirmed parents to the pool.  The transactions must be sorted so
// parents come before children and the child must be last.
//
// Each member is first checked on its own and added when it is acceptable.
// The members that are rejected only because they pay too little or spend
// outputs of other members that were not added are then checked together and
// accepted when their aggregate feerate meets the minimum relay fee.  This
// allows a child to pay for parents that do not pay enough on their own.
//
// This function is safe for concurrent access.
func (mp *TxPool) ProcessPackage(txns []*dcrutil.Tx) (*PackageResult, error) {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	result, err := mp.processPackage(txns)
	if err != nil {
		prometheusPackagesSeen.WithLabelValues("rejected").Inc()
		log.Debugf("Rejected package with %d %s: %v", len(txns),
			pickNoun(len(txns), "transaction", "transactions"), err)
		return nil, err
	}
	prometheusPackagesSeen.WithLabelValues("accepted").Inc()
	return result, nil
}

// processPackage is the internal function which implements the public
// ProcessPackage.  See the comment for ProcessPackage for more details.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) processPackage(txns []*dcrutil.Tx) (*PackageResult, error) {
	if err := checkPackage(txns); err != nil {
		return nil, err
	}

	members := make(map[chainhash.Hash]struct{}, len(txns))
	for _, tx := range txns {
		members[*tx.Hash()] = struct{}{}
	}

	var result PackageResult
	var deferred []*dcrutil.Tx
	mempoolView := &coinsViewMempool{mp: mp}
	opts := acceptOpts{isNew: true}
	for _, tx := range txns {
		if mp.isTransactionInPool(tx.Hash()) {
			result.AlreadyInPool = append(result.AlreadyInPool, tx)
			continue
		}

		desc, missingParents, err := mp.validateTransaction(tx, mempoolView,
			opts)
		if err != nil {
			if errors.Is(err, ErrInsufficientFee) {
				deferred = append(deferred, tx)
				continue
			}
			return nil, mp.packageMemberError(tx, err)
		}
		if len(missingParents) > 0 {
			for _, parent := range missingParents {
				if _, ok := members[*parent]; !ok {
					str := fmt.Sprintf("package transaction %v references "+
						"outputs of unknown or fully-spent transaction %v",
						tx.Hash(), parent)
					return nil, txRuleError(ErrOrphan, str)
				}
			}
			deferred = append(deferred, tx)
			continue
		}

		mp.addTransaction(desc)
		result.Accepted = append(result.Accepted, tx)
	}

	if len(deferred) > 0 {
		packageView := newCoinsViewPackage(mempoolView, deferred)
		opts.deferFeeCheck = true
		descs := make([]*TxDesc, 0, len(deferred))
		var totalFee, totalSize int64
		for _, tx := range deferred {
			desc, missingParents, err := mp.validateTransaction(tx,
				packageView, opts)
			if err != nil {
				return nil, mp.packageMemberError(tx, err)
			}
			if len(missingParents) > 0 {
				str := fmt.Sprintf("package transaction %v references "+
					"outputs of unknown or fully-spent transaction %v",
					tx.Hash(), missingParents[0])
				return nil, txRuleError(ErrOrphan, str)
			}
			descs = append(descs, desc)
			totalFee += desc.Fee
			totalSize += desc.TxSize
		}

		minFee := calcMinRequiredTxRelayFee(totalSize,
			mp.cfg.Policy.MinRelayTxFee)
		if totalFee < minFee {
			str := fmt.Sprintf("package has %v fees which is under the "+
				"required amount of %v for %d bytes", totalFee, minFee,
				totalSize)
			return nil, txRuleError(ErrInsufficientFee, str)
		}

		for _, desc := range descs {
			mp.addTransaction(desc)
			result.Accepted = append(result.Accepted, desc.Tx)
		}
		result.PackageFeeRate = totalFee * 1000 / totalSize
	}

	mp.limitPoolSize()
	child := txns[len(txns)-1]
	if !mp.isTransactionInPool(child.Hash()) {
		str := fmt.Sprintf("package child %v was evicted because the pool "+
			"is full", child.Hash())
		return nil, txRuleError(ErrMempoolFull, str)
	}

	added := result.Accepted
	for _, tx := range added {
		result.Accepted = append(result.Accepted, mp.processOrphans(tx)...)
	}

	log.Debugf("Accepted package with child %v (%d new, %d already in pool)",
		child.Hash(), len(added), len(result.AlreadyInPool))

	return &result, nil
}
