// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2020 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/container/apbf"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/decred/dcrd/wire"
	"github.com/xecnode/xecd/chaincfg"
	"github.com/xecnode/xecd/internal/blockchain"
)

const (
	// maxRelayFeeMultiplier is the factor that we disallow fees / kB above the
	// minimum tx fee.
	maxRelayFeeMultiplier = 1e4

	// orphanTTL is the maximum amount of time an orphan is allowed to
	// stay in the orphan pool before it expires and is evicted during the
	// next scan.
	orphanTTL = time.Minute * 15

	// orphanExpireScanInterval is the minimum amount of time in between
	// scans of the orphan pool to evict expired transactions.
	orphanExpireScanInterval = time.Minute * 5

	// maxRejectedTxns is the target maximum number of transactions tracked by
	// the recently rejected filter and rejectedTxnsFPRate is its target false
	// positive rate.
	maxRejectedTxns    = 62500
	rejectedTxnsFPRate = 0.000001

	// DefaultMaxOrphanTxs is the default number of orphans kept in the
	// orphan pool.
	DefaultMaxOrphanTxs = 100

	// DefaultMaxOrphanTxSize is the default maximum size of an orphan.
	DefaultMaxOrphanTxSize = 100000

	// DefaultMaxPoolSize is the default maximum total serialized size of the
	// transactions in the pool.
	DefaultMaxPoolSize = 300 * 1000 * 1000

	// DefaultMempoolExpiry is the default amount of time after which
	// transactions that have not been mined are removed from the pool.
	DefaultMempoolExpiry = time.Hour * 336

	// DefaultMaxTxVersion is the default maximum standard transaction
	// version.
	DefaultMaxTxVersion = 2
)

// Tag represents an identifier to use for tagging orphan transactions.  The
// caller may choose any scheme it desires, however it is common to use peer IDs
// so that orphans can be identified by which peer first relayed them.
type Tag uint64

// RemovalReason describes why a transaction left the pool.
type RemovalReason uint8

const (
	// RemovalManual indicates the transaction was removed by a caller of
	// RemoveTransaction.
	RemovalManual RemovalReason = iota

	// RemovalBlock indicates the transaction was confirmed by a block.
	RemovalBlock

	// RemovalConflict indicates the transaction or one of its ancestors
	// spends an output spent by a confirmed transaction.
	RemovalConflict

	// RemovalExpiry indicates the transaction stayed in the pool for longer
	// than the expiry policy allows.
	RemovalExpiry

	// RemovalSizeLimit indicates the transaction was evicted to keep the pool
	// under its size limit.
	RemovalSizeLimit

	// RemovalReorg indicates the transaction is no longer valid after a
	// reorganization.
	RemovalReorg
)

// removalReasonStrings maps each removal reason to a human readable name.
var removalReasonStrings = map[RemovalReason]string{
	RemovalManual:    "manual",
	RemovalBlock:     "block",
	RemovalConflict:  "conflict",
	RemovalExpiry:    "expiry",
	RemovalSizeLimit: "sizelimit",
	RemovalReorg:     "reorg",
}

// String returns the RemovalReason as a human-readable name.
func (r RemovalReason) String() string {
	if s, ok := removalReasonStrings[r]; ok {
		return s
	}
	return fmt.Sprintf("unknown removal reason (%d)", uint8(r))
}

// Config is a descriptor containing the memory pool configuration.
type Config struct {
	// Policy defines the various mempool configuration options related
	// to policy.
	Policy Policy

	// ChainParams identifies which chain parameters the txpool is
	// associated with.
	ChainParams *chaincfg.Params

	// FetchUtxoEntry defines the function to use to fetch the unspent
	// output for an outpoint from the current best chain.  It must return
	// nil for outputs that do not exist or are spent.
	FetchUtxoEntry func(wire.OutPoint) (*blockchain.UtxoEntry, error)

	// BestHash defines the function to use to access the block hash of
	// the current best chain.
	BestHash func() chainhash.Hash

	// BestHeight defines the function to use to access the block height of
	// the current best chain.
	BestHeight func() int64

	// PastMedianTime defines the function to use in order to access the
	// median time calculated from the point-of-view of the current chain
	// tip within the best chain.
	PastMedianTime func() time.Time

	// CalcSequenceLock defines the function to use in order to generate
	// the sequence lock for the given transaction from the point of view of
	// the block after the current best chain.  The entries are the outputs
	// spent by the transaction in input order.
	CalcSequenceLock func(*dcrutil.Tx, []*blockchain.UtxoEntry) *blockchain.SequenceLock

	// SigCache defines a signature cache to use.
	SigCache *txscript.SigCache

	// ScriptCache defines the cache of transactions with valid scripts
	// shared with block validation.
	ScriptCache *blockchain.ScriptCache

	// OnTxAccepted defines an optional function to be called whenever a
	// transaction is added to the pool.
	OnTxAccepted func(tx *dcrutil.Tx)

	// OnTxRemoved defines an optional function to be called whenever a
	// transaction is removed from the pool.
	OnTxRemoved func(tx *dcrutil.Tx, reason RemovalReason)
}

// Policy houses the policy (configuration parameters) which is used to
// control the mempool.
type Policy struct {
	// MaxTxVersion is the max transaction version that the mempool should
	// accept.  All transactions above this version are rejected as
	// non-standard.
	MaxTxVersion uint16

	// AcceptNonStd defines whether to accept and relay non-standard
	// transactions to the network. If true, non-standard transactions
	// will be accepted into the mempool and relayed to the rest of the
	// network. Otherwise, all non-standard transactions will be rejected.
	AcceptNonStd bool

	// MaxOrphanTxs is the maximum number of orphan transactions
	// that can be queued.
	MaxOrphanTxs int

	// MaxOrphanTxSize is the maximum size allowed for orphan transactions.
	// This helps prevent memory exhaustion attacks from sending a lot of
	// of big orphans.
	MaxOrphanTxSize int

	// MaxSigChecksPerTx is the maximum number of signature checks a single
	// transaction may perform to be relayed or mined.
	MaxSigChecksPerTx int64

	// MinRelayTxFee defines the minimum transaction fee in atoms/kB to be
	// considered a non-zero fee.
	MinRelayTxFee dcrutil.Amount

	// MaxPoolSize is the maximum total serialized size of the transactions
	// in the pool.  The lowest feerate transactions are evicted once it is
	// exceeded.  Zero disables the limit.
	MaxPoolSize int64

	// MempoolExpiry is the amount of time after which transactions are
	// removed from the pool.  Zero disables expiration.
	MempoolExpiry time.Duration

	// StandardVerifyFlags defines the function to retrieve the flags to
	// use for verifying scripts for the block after the current best block.
	//
	// This function must be safe for concurrent access.
	StandardVerifyFlags func() blockchain.ScriptFlags
}

// LockPoints houses the relative lock of a pool transaction along with the
// height of the highest confirmed block it depends on.  The lock stays valid
// as long as that block remains in the main chain.
type LockPoints struct {
	MinHeight      int64
	MinTime        int64
	MaxInputHeight int64
}

// TxDesc is a descriptor containing a transaction in the mempool along with
// additional metadata.
type TxDesc struct {
	// Tx is the transaction associated with the entry.
	Tx *dcrutil.Tx

	// Added is the time when the entry was added to the pool.
	Added time.Time

	// Height is the block height when the entry was added to the pool.
	Height int64

	// Fee is the total fee the transaction associated with the entry pays.
	Fee int64

	// TxSize is the size of the transaction.
	TxSize int64

	// SigChecks is the number of signature checks the transaction performs.
	SigChecks int64

	// LockPoints is the cached relative lock of the transaction.
	LockPoints LockPoints

	// order increases with every entry added and therefore sorts the entries
	// so that parents come before their children.
	order uint64
}

// FeePerKB returns the feerate of the entry in atoms per 1000 bytes.
func (d *TxDesc) FeePerKB() int64 {
	return d.Fee * 1000 / d.TxSize
}

// orphanTx is a normal transaction that references an ancestor transaction
// that is not yet available.  It also contains additional information related
// to it such as an expiration time to help prevent caching the orphan forever.
type orphanTx struct {
	tx         *dcrutil.Tx
	tag        Tag
	expiration time.Time
}

// acceptOpts houses the options that control how a transaction is checked for
// acceptance into the pool.
type acceptOpts struct {
	// isNew is false for transactions returned to the pool from disconnected
	// blocks, which skip the fee floor and the recently rejected filter.
	isNew bool

	allowHighFees    bool
	rejectDupOrphans bool

	// deferFeeCheck skips the fee floor because the caller checks the
	// aggregate feerate of a package instead.
	deferFeeCheck bool
}

// TxPool is used as a source of transactions that need to be mined into blocks
// and relayed to other peers.  It is safe for concurrent access from multiple
// peers.
type TxPool struct {
	// lastUpdated is the last time the pool was updated.
	lastUpdated atomic.Int64

	mtx  sync.RWMutex
	cfg  Config
	pool map[chainhash.Hash]*TxDesc

	orphans       map[chainhash.Hash]*orphanTx
	orphansByPrev map[wire.OutPoint]map[chainhash.Hash]*dcrutil.Tx
	outpoints     map[wire.OutPoint]*dcrutil.Tx

	// recentlyRejected tracks the hashes of transactions that failed a
	// rule so they are not validated again until the next block.
	recentlyRejected *apbf.Filter

	// totalSize is the total serialized size of the pool transactions and
	// nextOrder is the order assigned to the next entry.
	totalSize int64
	nextOrder uint64

	// nextExpireScan is the time after which the orphan pool will be
	// scanned in order to evict orphans.  This is NOT a hard deadline as
	// the scan will only run when an orphan is added to the pool as opposed
	// to on an unconditional timer.
	nextExpireScan time.Time

	// now returns the current time.  It is replaced by tests.
	now func() time.Time
}

// removeOrphan is the internal function which implements the public
// RemoveOrphan.  See the comment for RemoveOrphan for more details.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) removeOrphan(tx *dcrutil.Tx, removeRedeemers bool) {
	removeList := []*dcrutil.Tx{tx}
	for len(removeList) > 0 {
		orphan := removeList[0]
		removeList[0] = nil
		removeList = removeList[1:]

		// Nothing to do if the tx does not exist in the orphan pool.
		txHash := orphan.Hash()
		otx, exists := mp.orphans[*txHash]
		if !exists {
			continue
		}

		log.Tracef("Removing orphan transaction %v", txHash)

		// Remove the reference from the previous orphan index.
		for _, txIn := range otx.tx.MsgTx().TxIn {
			orphans, exists := mp.orphansByPrev[txIn.PreviousOutPoint]
			if exists {
				delete(orphans, *txHash)

				// Remove the map entry altogether if there are no
				// longer any orphans which depend on it.
				if len(orphans) == 0 {
					delete(mp.orphansByPrev, txIn.PreviousOutPoint)
				}
			}
		}

		// Queue any orphans that redeem outputs from this one if requested.
		if removeRedeemers {
			prevOut := wire.OutPoint{Hash: *txHash, Tree: wire.TxTreeRegular}
			for txOutIdx := range orphan.MsgTx().TxOut {
				prevOut.Index = uint32(txOutIdx)
				for _, redeemer := range mp.orphansByPrev[prevOut] {
					removeList = append(removeList, redeemer)
				}
			}
		}

		// Remove the transaction from the orphan pool.
		delete(mp.orphans, *txHash)
	}
}

// RemoveOrphan removes the passed orphan transaction from the orphan pool and
// previous orphan index.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveOrphan(tx *dcrutil.Tx) {
	mp.mtx.Lock()
	mp.removeOrphan(tx, false)
	mp.mtx.Unlock()
}

// RemoveOrphansByTag removes all orphan transactions tagged with the provided
// identifier.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveOrphansByTag(tag Tag) uint64 {
	var numEvicted uint64
	mp.mtx.Lock()
	for _, otx := range mp.orphans {
		if otx.tag == tag {
			mp.removeOrphan(otx.tx, true)
			numEvicted++
		}
	}
	mp.mtx.Unlock()
	return numEvicted
}

// limitNumOrphans limits the number of orphan transactions by evicting a random
// orphan if adding a new one would cause it to overflow the max allowed.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) limitNumOrphans() {
	// Scan through the orphan pool and remove any expired orphans when it's
	// time.  This is done for efficiency so the scan only happens periodically
	// instead of on every orphan added to the pool.
	if now := mp.now(); now.After(mp.nextExpireScan) {
		origNumOrphans := len(mp.orphans)
		for _, otx := range mp.orphans {
			if now.After(otx.expiration) {
				// Remove redeemers too because the missing parents are very
				// unlikely to ever materialize since the orphan has already
				// been around more than long enough for them to be delivered.
				mp.removeOrphan(otx.tx, true)
			}
		}

		// Set next expiration scan to occur after the scan interval.
		mp.nextExpireScan = now.Add(orphanExpireScanInterval)

		numOrphans := len(mp.orphans)
		if numExpired := origNumOrphans - numOrphans; numExpired > 0 {
			log.Debugf("Expired %d %s (remaining: %d)", numExpired,
				pickNoun(numExpired, "orphan", "orphans"), numOrphans)
		}
	}

	// Nothing to do if adding another orphan will not cause the pool to
	// exceed the limit.
	if len(mp.orphans)+1 <= mp.cfg.Policy.MaxOrphanTxs {
		return
	}

	// Remove a random entry from the map.  For most compilers, Go's
	// range statement iterates starting at a random item although
	// that is not 100% guaranteed by the spec.  The iteration order
	// is not important here because an adversary would have to be
	// able to pull off preimage attacks on the hashing function in
	// order to target eviction of specific entries anyways.
	for _, otx := range mp.orphans {
		// Don't remove redeemers in the case of a random eviction since
		// it is quite possible it might be needed again shortly.
		mp.removeOrphan(otx.tx, false)
		break
	}
}

// addOrphan adds an orphan transaction to the orphan pool.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) addOrphan(tx *dcrutil.Tx, tag Tag) {
	// Nothing to do if no orphans are allowed.
	if mp.cfg.Policy.MaxOrphanTxs <= 0 {
		return
	}

	// Limit the number orphan transactions to prevent memory exhaustion.
	// This will periodically remove any expired orphans and evict a random
	// orphan if space is still needed.
	mp.limitNumOrphans()

	mp.orphans[*tx.Hash()] = &orphanTx{
		tx:         tx,
		tag:        tag,
		expiration: mp.now().Add(orphanTTL),
	}
	for _, txIn := range tx.MsgTx().TxIn {
		if _, exists := mp.orphansByPrev[txIn.PreviousOutPoint]; !exists {
			mp.orphansByPrev[txIn.PreviousOutPoint] =
				make(map[chainhash.Hash]*dcrutil.Tx)
		}
		mp.orphansByPrev[txIn.PreviousOutPoint][*tx.Hash()] = tx
	}

	log.Debugf("Stored orphan transaction %v (total: %d)", tx.Hash(),
		len(mp.orphans))
}

// maybeAddOrphan potentially adds an orphan to the orphan pool.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) maybeAddOrphan(tx *dcrutil.Tx, tag Tag) error {
	// Ignore orphan transactions that are too large.  This helps avoid
	// a memory exhaustion attack based on sending a lot of really large
	// orphans.  In the case there is a valid transaction larger than this,
	// it will ultimately be rebroadcast after the parent transactions
	// have been mined or otherwise received.
	serializedLen := tx.MsgTx().SerializeSize()
	if serializedLen > mp.cfg.Policy.MaxOrphanTxSize {
		str := fmt.Sprintf("orphan transaction size of %d bytes is "+
			"larger than max allowed size of %d bytes",
			serializedLen, mp.cfg.Policy.MaxOrphanTxSize)
		return txRuleError(ErrOrphanPolicyViolation, str)
	}

	// Add the orphan if the none of the above disqualified it.
	mp.addOrphan(tx, tag)

	return nil
}

// removeOrphanDoubleSpends removes all orphans which spend outputs spent by the
// passed transaction from the orphan pool.  Removing those orphans then leads
// to removing all orphans which rely on them, recursively.  This is necessary
// when a transaction is added to the main pool because it may spend outputs
// that orphans also spend.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) removeOrphanDoubleSpends(tx *dcrutil.Tx) {
	msgTx := tx.MsgTx()
	for _, txIn := range msgTx.TxIn {
		for _, orphan := range mp.orphansByPrev[txIn.PreviousOutPoint] {
			mp.removeOrphan(orphan, true)
		}
	}
}

// isTransactionInPool returns whether or not the passed transaction already
// exists in the main pool.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) isTransactionInPool(hash *chainhash.Hash) bool {
	_, exists := mp.pool[*hash]
	return exists
}

// IsTransactionInPool returns whether or not the passed transaction already
// exists in the main pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) IsTransactionInPool(hash *chainhash.Hash) bool {
	// Protect concurrent access.
	mp.mtx.RLock()
	inPool := mp.isTransactionInPool(hash)
	mp.mtx.RUnlock()

	return inPool
}

// isOrphanInPool returns whether or not the passed transaction already exists
// in the orphan pool.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) isOrphanInPool(hash *chainhash.Hash) bool {
	_, exists := mp.orphans[*hash]
	return exists
}

// IsOrphanInPool returns whether or not the passed transaction already exists
// in the orphan pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) IsOrphanInPool(hash *chainhash.Hash) bool {
	// Protect concurrent access.
	mp.mtx.RLock()
	inPool := mp.isOrphanInPool(hash)
	mp.mtx.RUnlock()

	return inPool
}

// haveTransaction returns whether or not the passed transaction already exists
// in the main pool or in the orphan pool.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) haveTransaction(hash *chainhash.Hash) bool {
	return mp.isTransactionInPool(hash) || mp.isOrphanInPool(hash)
}

// HaveTransaction returns whether or not the passed transaction already exists
// in the main pool or in the orphan pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) HaveTransaction(hash *chainhash.Hash) bool {
	// Protect concurrent access.
	mp.mtx.RLock()
	haveTx := mp.haveTransaction(hash)
	mp.mtx.RUnlock()

	return haveTx
}

// HaveTransactions returns whether or not the passed transactions already exist
// in the main pool or in the orphan pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) HaveTransactions(hashes []*chainhash.Hash) []bool {
	mp.mtx.RLock()
	have := make([]bool, len(hashes))
	for i := range hashes {
		have[i] = mp.haveTransaction(hashes[i])
	}
	mp.mtx.RUnlock()
	return have
}

// forEachRedeemer invokes the passed function with every pool transaction
// that spends an output of the passed transaction.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) forEachRedeemer(tx *dcrutil.Tx, f func(redeemer *dcrutil.Tx)) {
	prevOut := wire.OutPoint{Hash: *tx.Hash(), Tree: wire.TxTreeRegular}
	for i := range tx.MsgTx().TxOut {
		prevOut.Index = uint32(i)
		if redeemer, exists := mp.outpoints[prevOut]; exists {
			f(redeemer)
		}
	}
}

// descendants returns the pool entries that directly or indirectly spend the
// outputs of the passed transaction ordered so parents come before their
// children.  The passed transaction itself is not included.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) descendants(tx *dcrutil.Tx) []*TxDesc {
	seen := make(map[chainhash.Hash]struct{})
	var descs []*TxDesc
	queue := []*dcrutil.Tx{tx}
	for len(queue) > 0 {
		cur := queue[0]
		queue[0] = nil
		queue = queue[1:]
		mp.forEachRedeemer(cur, func(redeemer *dcrutil.Tx) {
			hash := *redeemer.Hash()
			if _, ok := seen[hash]; ok {
				return
			}
			seen[hash] = struct{}{}
			if desc, ok := mp.pool[hash]; ok {
				descs = append(descs, desc)
				queue = append(queue, redeemer)
			}
		})
	}
	sort.Slice(descs, func(i, j int) bool {
		return descs[i].order < descs[j].order
	})
	return descs
}

// removeEntry removes a single pool entry without touching its descendants.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) removeEntry(desc *TxDesc, reason RemovalReason) {
	tx := desc.Tx
	log.Tracef("Removing transaction %v (%v)", tx.Hash(), reason)

	// Mark the referenced outpoints as unspent by the pool.
	for _, txIn := range tx.MsgTx().TxIn {
		delete(mp.outpoints, txIn.PreviousOutPoint)
	}
	delete(mp.pool, *tx.Hash())
	mp.totalSize -= desc.TxSize
	mp.lastUpdated.Store(mp.now().Unix())
	prometheusPoolTxns.Set(float64(len(mp.pool)))
	prometheusPoolBytes.Set(float64(mp.totalSize))
	prometheusTxRemoved.WithLabelValues(reason.String()).Inc()

	if mp.cfg.OnTxRemoved != nil {
		mp.cfg.OnTxRemoved(tx, reason)
	}
}

// removeTransaction is the internal function which implements the public
// RemoveTransaction.  See the comment for RemoveTransaction for more details.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) removeTransaction(tx *dcrutil.Tx, removeRedeemers bool, reason RemovalReason) {
	// Remove any transactions which rely on this one starting with the
	// deepest descendants.
	if removeRedeemers {
		descs := mp.descendants(tx)
		for i := len(descs) - 1; i >= 0; i-- {
			mp.removeEntry(descs[i], reason)
		}
	}

	// Remove the transaction if needed.
	if desc, exists := mp.pool[*tx.Hash()]; exists {
		mp.removeEntry(desc, reason)
	}
}

// RemoveTransaction removes the passed transaction from the mempool. When the
// removeRedeemers flag is set, any transactions that redeem outputs from the
// removed transaction will also be removed recursively from the mempool, as
// they would otherwise become orphans.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveTransaction(tx *dcrutil.Tx, removeRedeemers bool) {
	// Protect concurrent access.
	mp.mtx.Lock()
	mp.removeTransaction(tx, removeRedeemers, RemovalManual)
	mp.mtx.Unlock()
}

// removeDoubleSpends is the internal function which implements the public
// RemoveDoubleSpends.  See the comment for RemoveDoubleSpends for more
// details.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) removeDoubleSpends(tx *dcrutil.Tx) {
	for _, txIn := range tx.MsgTx().TxIn {
		if txRedeemer, ok := mp.outpoints[txIn.PreviousOutPoint]; ok {
			if !txRedeemer.Hash().IsEqual(tx.Hash()) {
				mp.removeTransaction(txRedeemer, true, RemovalConflict)
			}
		}
	}
}

// RemoveDoubleSpends removes all transactions which spend outputs spent by the
// passed transaction from the memory pool.  Removing those transactions then
// leads to removing all transactions which rely on them, recursively.  This is
// necessary when a block is connected to the main chain because the block may
// contain transactions which were previously unknown to the memory pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveDoubleSpends(tx *dcrutil.Tx) {
	// Protect concurrent access.
	mp.mtx.Lock()
	mp.removeDoubleSpends(tx)
	mp.mtx.Unlock()
}

// addTransaction adds the passed transaction to the memory pool.  It should
// not be called directly as it doesn't perform any validation.  This is a
// helper for maybeAcceptTransaction.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) addTransaction(desc *TxDesc) {
	// Add the transaction to the pool and mark the referenced outpoints
	// as spent by the pool.
	tx := desc.Tx
	desc.order = mp.nextOrder
	mp.nextOrder++
	mp.pool[*tx.Hash()] = desc
	for _, txIn := range tx.MsgTx().TxIn {
		mp.outpoints[txIn.PreviousOutPoint] = tx
	}
	mp.totalSize += desc.TxSize
	mp.lastUpdated.Store(mp.now().Unix())
	prometheusPoolTxns.Set(float64(len(mp.pool)))
	prometheusPoolBytes.Set(float64(mp.totalSize))
	prometheusTxAccepted.Inc()

	if mp.cfg.OnTxAccepted != nil {
		mp.cfg.OnTxAccepted(tx)
	}
}

// checkPoolDoubleSpend checks whether or not the passed transaction is
// attempting to spend coins already spent by other transactions in the pool.
// Note it does not check for double spends against transactions already in the
// main chain.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) checkPoolDoubleSpend(tx *dcrutil.Tx) error {
	for _, txIn := range tx.MsgTx().TxIn {
		if txR, exists := mp.outpoints[txIn.PreviousOutPoint]; exists {
			str := fmt.Sprintf("transaction %v in the pool already spends "+
				"the same coins", txR.Hash())
			return txRuleError(ErrMempoolDoubleSpend, str)
		}
	}
	return nil
}

// checkConfirmed returns an error when any output of the passed transaction
// is unspent in the main chain, which means the transaction is already
// confirmed.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) checkConfirmed(tx *dcrutil.Tx) error {
	outpoint := wire.OutPoint{Hash: *tx.Hash(), Tree: wire.TxTreeRegular}
	for i := range tx.MsgTx().TxOut {
		outpoint.Index = uint32(i)
		entry, err := mp.cfg.FetchUtxoEntry(outpoint)
		if err != nil {
			return err
		}
		if entry != nil {
			return txRuleError(ErrAlreadyExists, "transaction already exists")
		}
	}
	return nil
}

// FetchTransaction returns the requested transaction from the transaction pool.
// This only fetches from the main transaction pool and does not include
// orphans.
//
// This function is safe for concurrent access.
func (mp *TxPool) FetchTransaction(txHash *chainhash.Hash) (*dcrutil.Tx, error) {
	// Protect concurrent access.
	mp.mtx.RLock()
	txDesc, exists := mp.pool[*txHash]
	mp.mtx.RUnlock()

	if exists {
		return txDesc.Tx, nil
	}

	return nil, fmt.Errorf("transaction is not in the pool")
}

// validateTransaction performs all of the checks required for the passed
// transaction to enter the pool against the passed view of the outputs it
// spends.  It returns a descriptor ready to be added to the pool or the hashes
// of the missing parents when the transaction is an orphan.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) validateTransaction(tx *dcrutil.Tx, view blockchain.CoinsView, opts acceptOpts) (*TxDesc, []*chainhash.Hash, error) {
	msgTx := tx.MsgTx()
	txHash := tx.Hash()

	// Don't accept the transaction if it already exists in the pool.  This
	// applies to orphan transactions as well when the reject duplicate
	// orphans flag is set.
	if mp.isTransactionInPool(txHash) ||
		(opts.rejectDupOrphans && mp.isOrphanInPool(txHash)) {
		str := fmt.Sprintf("already have transaction %v", txHash)
		return nil, nil, txRuleError(ErrDuplicate, str)
	}
	if opts.isNew && mp.recentlyRejected.Contains(txHash[:]) {
		str := fmt.Sprintf("transaction %v was recently rejected", txHash)
		return nil, nil, txRuleError(ErrRecentlyRejected, str)
	}

	// Perform preliminary validation checks on the transaction.  This makes use
	// of blockchain which contains the invariant rules for what transactions
	// are allowed into blocks.
	if err := blockchain.CheckTransactionSanity(msgTx); err != nil {
		return nil, nil, convertChainError(err)
	}

	// A standalone transaction must not be a coinbase transaction.
	if blockchain.IsCoinBaseTx(msgTx) {
		str := fmt.Sprintf("transaction %v is an individual coinbase",
			txHash)
		return nil, nil, txRuleError(ErrCoinbase, str)
	}

	// Don't allow non-standard transactions if the mempool config forbids
	// their acceptance and relaying.
	policy := &mp.cfg.Policy
	if !policy.AcceptNonStd {
		err := checkTransactionStandard(tx, policy.MinRelayTxFee,
			policy.MaxTxVersion)
		if err != nil {
			str := fmt.Sprintf("transaction %v is not standard: %v",
				txHash, err)
			return nil, nil, wrapTxRuleError(ErrNonStandard, str, err)
		}
	}

	// Get the current height of the main chain.  A standalone transaction
	// will be mined into the next block at best, so its height is at least
	// one more than the current height.
	bestHeight := mp.cfg.BestHeight()
	nextBlockHeight := bestHeight + 1
	medianTime := mp.cfg.PastMedianTime()

	// The transaction must be finalized to be considered for inclusion in
	// the next block.
	if !blockchain.IsFinalizedTransaction(tx, nextBlockHeight, medianTime) {
		str := fmt.Sprintf("transaction %v is not finalized", txHash)
		return nil, nil, txRuleError(ErrNonStandard, str)
	}

	if err := mp.checkConfirmed(tx); err != nil {
		return nil, nil, err
	}

	// The transaction may not use any of the same outputs as other
	// transactions already in the pool as that would ultimately result in a
	// double spend.
	if err := mp.checkPoolDoubleSpend(tx); err != nil {
		return nil, nil, err
	}

	// Transaction is an orphan if any of the inputs don't exist.
	var missingParents []*chainhash.Hash
	for _, txIn := range msgTx.TxIn {
		entry, err := view.FetchEntry(txIn.PreviousOutPoint)
		if err != nil {
			return nil, nil, err
		}
		if entry == nil {
			// Must make a copy of the hash here since the iterator
			// is replaced and taking its address directly would
			// result in all of the entries pointing to the same
			// memory location and thus all be the final hash.
			hashCopy := txIn.PreviousOutPoint.Hash
			missingParents = append(missingParents, &hashCopy)
			log.Tracef("Transaction %v uses unknown input %v and will be "+
				"considered an orphan", txHash, txIn.PreviousOutPoint)
		}
	}
	if len(missingParents) > 0 {
		return nil, missingParents, nil
	}

	// Perform several checks on the transaction inputs using the invariant
	// rules in blockchain for what transactions are allowed into blocks.
	// Also returns the fees associated with the transaction and the spent
	// outputs which will be used later.
	txFee, entries, err := blockchain.CheckTransactionInputs(tx,
		nextBlockHeight, view, mp.cfg.ChainParams)
	if err != nil {
		return nil, nil, convertChainError(err)
	}

	// Don't allow the transaction into the mempool unless its sequence
	// lock is active, meaning that it'll be allowed into the next block
	// with respect to its defined relative lock times.
	seqLock := mp.cfg.CalcSequenceLock(tx, entries)
	if !blockchain.SequenceLockActive(seqLock, nextBlockHeight, medianTime) {
		return nil, nil, txRuleError(ErrSeqLockUnmet,
			"transaction sequence locks on inputs not met")
	}

	// Don't allow transactions with non-standard inputs if the mempool config
	// forbids their acceptance and relaying.
	if !policy.AcceptNonStd {
		if err := checkInputsStandard(tx, entries); err != nil {
			str := fmt.Sprintf("transaction %v has a non-standard "+
				"input: %v", txHash, err)
			return nil, nil, wrapTxRuleError(ErrNonStandard, str, err)
		}
	}

	// Don't allow transactions with fees too low to get into a mined block.
	// Transactions which are being added back to the memory pool from blocks
	// that have been disconnected during a reorg are exempted.
	serializedSize := int64(msgTx.SerializeSize())
	minFee := calcMinRequiredTxRelayFee(serializedSize, policy.MinRelayTxFee)
	if opts.isNew && !opts.deferFeeCheck && txFee < minFee {
		str := fmt.Sprintf("transaction %v has %v fees which is under "+
			"the required amount of %v", txHash, txFee, minFee)
		return nil, nil, txRuleError(ErrInsufficientFee, str)
	}

	// Check whether allowHighFees is set to false (default), if so, then make
	// sure the current fee is sensible.
	if !opts.allowHighFees {
		maxFee := calcMinRequiredTxRelayFee(serializedSize*maxRelayFeeMultiplier,
			policy.MinRelayTxFee)
		if txFee > maxFee {
			str := fmt.Sprintf("transaction %v has %v fee which is above the "+
				"allowHighFee check threshold amount of %v", txHash,
				txFee, maxFee)
			return nil, nil, txRuleError(ErrFeeTooHigh, str)
		}
	}

	// Verify crypto signatures for each input and reject the transaction if
	// any don't verify.
	prevOuts := make(blockchain.PrevOutputs, len(entries))
	var maxInputHeight int64
	for i, txIn := range msgTx.TxIn {
		prevOuts[txIn.PreviousOutPoint] = entries[i]
		if height := entries[i].BlockHeight(); height > maxInputHeight {
			maxInputHeight = height
		}
	}
	sigChecks, err := blockchain.ValidateTransactionScripts(tx, prevOuts,
		policy.StandardVerifyFlags(), mp.cfg.SigCache, mp.cfg.ScriptCache)
	if err != nil {
		return nil, nil, convertChainError(err)
	}
	if policy.MaxSigChecksPerTx > 0 && sigChecks > policy.MaxSigChecksPerTx {
		str := fmt.Sprintf("transaction %v has too many signature checks: "+
			"%d > %d", txHash, sigChecks, policy.MaxSigChecksPerTx)
		return nil, nil, txRuleError(ErrNonStandard, str)
	}

	desc := &TxDesc{
		Tx:        tx,
		Added:     mp.now(),
		Height:    bestHeight,
		Fee:       txFee,
		TxSize:    serializedSize,
		SigChecks: sigChecks,
		LockPoints: LockPoints{
			MinHeight:      seqLock.MinHeight,
			MinTime:        seqLock.MinTime,
			MaxInputHeight: maxInputHeight,
		},
	}
	return desc, nil, nil
}

// maybeAcceptTransaction is the internal function which implements the public
// MaybeAcceptTransaction.  See the comment for MaybeAcceptTransaction for
// more details.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) maybeAcceptTransaction(tx *dcrutil.Tx, opts acceptOpts) ([]*chainhash.Hash, error) {
	desc, missingParents, err := mp.validateTransaction(tx,
		&coinsViewMempool{mp: mp}, opts)
	if err != nil || len(missingParents) > 0 {
		return missingParents, err
	}

	// Add to transaction pool.
	mp.addTransaction(desc)

	// Enforce the size limit right away for new transactions.  Those
	// returned to the pool during a reorg are trimmed once all of them are
	// back.
	if opts.isNew {
		mp.limitPoolSize()
		if !mp.isTransactionInPool(tx.Hash()) {
			str := fmt.Sprintf("transaction %v was evicted because the "+
				"pool is full", tx.Hash())
			return nil, txRuleError(ErrMempoolFull, str)
		}
	}

	log.Debugf("Accepted transaction %v (pool size: %v)", tx.Hash(),
		len(mp.pool))

	return nil, nil
}

// MaybeAcceptTransaction is the main workhorse for handling insertion of new
// free-standing transactions into a memory pool.  It includes functionality
// such as rejecting duplicate transactions, ensuring transactions follow all
// rules and insertion into the memory pool.  It returns the hashes of the
// missing parents when the transaction is an orphan, in which case it is not
// added to the orphan pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) MaybeAcceptTransaction(tx *dcrutil.Tx, isNew bool) ([]*chainhash.Hash, error) {
	// Protect concurrent access.
	mp.mtx.Lock()
	hashes, err := mp.maybeAcceptTransaction(tx, acceptOpts{
		isNew:            isNew,
		allowHighFees:    true,
		rejectDupOrphans: true,
	})
	mp.mtx.Unlock()

	return hashes, err
}

// processOrphans is the internal function which implements the public
// MaybeAcceptDependents.  See the comment for MaybeAcceptDependents for more
// details.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) processOrphans(acceptedTx *dcrutil.Tx) []*dcrutil.Tx {
	var acceptedTxns []*dcrutil.Tx

	// Start with processing at least the passed transaction.
	processList := []*dcrutil.Tx{acceptedTx}
	for len(processList) > 0 {
		// Pop the transaction to process from the front of the list.
		processItem := processList[0]
		processList[0] = nil
		processList = processList[1:]

		prevOut := wire.OutPoint{Hash: *processItem.Hash(),
			Tree: wire.TxTreeRegular}
		for txOutIdx := range processItem.MsgTx().TxOut {
			// Look up all orphans that redeem the output that is
			// now available.  This will typically only be one, but
			// it could be multiple if the orphan pool contains
			// double spends.  While it may seem odd that the orphan
			// pool would allow this since there can only possibly
			// ultimately be a single redeemer, it's important to
			// track it this way to prevent malicious actors from
			// being able to purposely construct orphans that
			// would otherwise make outputs unspendable.
			//
			// Skip to the next available output if there are none.
			prevOut.Index = uint32(txOutIdx)
			orphans, exists := mp.orphansByPrev[prevOut]
			if !exists {
				continue
			}

			// Potentially accept an orphan into the tx pool.
			for _, tx := range orphans {
				missing, err := mp.maybeAcceptTransaction(tx, acceptOpts{
					isNew: true,
				})
				if err != nil {
					// The orphan is now invalid, so there
					// is no way any other orphans which
					// redeem any of its outputs can be
					// accepted.  Remove them.
					mp.recordRejection(tx, err)
					mp.removeOrphan(tx, true)
					break
				}

				// Transaction is still an orphan.  Try the next
				// orphan which redeems this output.
				if len(missing) > 0 {
					continue
				}

				// Transaction was accepted into the main pool.
				//
				// Add it to the list of accepted transactions
				// that are no longer orphans, remove it from
				// the orphan pool, and add it to the list of
				// transactions to process so any orphans that
				// depend on it are handled too.
				acceptedTxns = append(acceptedTxns, tx)
				mp.removeOrphan(tx, false)
				processList = append(processList, tx)

				// Only one transaction for this outpoint can be
				// accepted, so the rest are now double spends
				// and are removed later.
				break
			}
		}
	}

	// Recursively remove any orphans that also redeem any outputs redeemed
	// by the accepted transactions since those are now definitive double
	// spends.
	mp.removeOrphanDoubleSpends(acceptedTx)
	for _, tx := range acceptedTxns {
		mp.removeOrphanDoubleSpends(tx)
	}

	return acceptedTxns
}

// MaybeAcceptDependents determines if there are any orphans which depend on
// the passed transaction (it is possible that they are no longer orphans) and
// potentially accepts them to the memory pool.  It repeats the process for the
// newly accepted transactions (to detect further orphans which may no longer be
// orphans) until there are no more.
//
// It returns a slice of transactions added to the mempool.  A nil slice means
// no transactions were moved from the orphan pool to the mempool.
//
// This function is safe for concurrent access.
func (mp *TxPool) MaybeAcceptDependents(tx *dcrutil.Tx) []*dcrutil.Tx {
	mp.mtx.Lock()
	acceptedTxns := mp.processOrphans(tx)
	mp.mtx.Unlock()
	return acceptedTxns
}

// recordRejection adds the passed transaction to the recently rejected filter
// when the error means it will not become acceptable before the next block.
// Failures due to fees, missing inputs and duplicates are not recorded since
// the same transaction might be accepted later, for example as part of a
// package or with different options.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) recordRejection(tx *dcrutil.Tx, err error) {
	var rerr RuleError
	var terr TxRuleError
	if !errors.As(err, &rerr) && !errors.As(err, &terr) {
		return
	}
	switch {
	case errors.Is(err, ErrInsufficientFee),
		errors.Is(err, ErrFeeTooHigh),
		errors.Is(err, ErrMempoolFull),
		errors.Is(err, ErrOrphan),
		errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrRecentlyRejected),
		errors.Is(err, blockchain.ErrMissingTxOut):
		return
	}

	mp.recentlyRejected.Add(tx.Hash()[:])
	prometheusTxRejected.Inc()
}

// ProcessTransaction is the main workhorse for handling insertion of new
// free-standing transactions into the memory pool.  It includes functionality
// such as rejecting duplicate transactions, ensuring transactions follow all
// rules, orphan transaction handling, and insertion into the memory pool.
//
// It returns a slice of transactions added to the mempool.  When the
// error is nil, the list will include the passed transaction itself along
// with any additional orphan transactions that were added as a result of the
// passed one being accepted.
//
// This function is safe for concurrent access.
func (mp *TxPool) ProcessTransaction(tx *dcrutil.Tx, allowOrphan, allowHighFees bool, tag Tag) ([]*dcrutil.Tx, error) {
	// Protect concurrent access.
	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	// Potentially accept the transaction to the memory pool.
	missingParents, err := mp.maybeAcceptTransaction(tx, acceptOpts{
		isNew:            true,
		allowHighFees:    allowHighFees,
		rejectDupOrphans: true,
	})
	if err != nil {
		log.Tracef("Failed to process transaction %v: %v", tx.Hash(), err)
		mp.recordRejection(tx, err)
		return nil, err
	}

	// If len(missingParents) == 0 then we know the tx is NOT an orphan.
	if len(missingParents) == 0 {
		// Accept any orphan transactions that depend on this
		// transaction (they may no longer be orphans if all inputs
		// are now available) and repeat for those accepted
		// transactions until there are no more.
		newTxs := mp.processOrphans(tx)
		acceptedTxs := make([]*dcrutil.Tx, len(newTxs)+1)

		// Add the parent transaction first so remote nodes
		// do not add orphans.
		acceptedTxs[0] = tx
		copy(acceptedTxs[1:], newTxs)

		return acceptedTxs, nil
	}

	// The transaction is an orphan (has inputs missing).  Reject
	// it if the flag to allow orphans is not set.
	if !allowOrphan {
		// Only use the first missing parent transaction in
		// the error message.
		str := fmt.Sprintf("orphan transaction %v references "+
			"outputs of unknown or fully-spent "+
			"transaction %v", tx.Hash(), missingParents[0])
		return nil, txRuleError(ErrOrphan, str)
	}

	// An orphan with a parent that was recently rejected can never be
	// accepted, so reject it as well.
	for _, parent := range missingParents {
		if mp.recentlyRejected.Contains(parent[:]) {
			str := fmt.Sprintf("orphan transaction %v spends outputs of "+
				"rejected transaction %v", tx.Hash(), parent)
			err := txRuleError(ErrOrphanPolicyViolation, str)
			mp.recordRejection(tx, err)
			return nil, err
		}
	}

	// Potentially add the orphan transaction to the orphan pool.
	return nil, mp.maybeAddOrphan(tx, tag)
}

// expire removes the transactions that have been in the pool for longer than
// the expiry policy allows along with their descendants.  It returns the
// number of removed transactions.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) expire() int {
	expiry := mp.cfg.Policy.MempoolExpiry
	if expiry <= 0 {
		return 0
	}

	cutoff := mp.now().Add(-expiry)
	var expired []*TxDesc
	for _, desc := range mp.pool {
		if desc.Added.Before(cutoff) {
			expired = append(expired, desc)
		}
	}

	origSize := len(mp.pool)
	for _, desc := range expired {
		mp.removeTransaction(desc.Tx, true, RemovalExpiry)
	}
	numExpired := origSize - len(mp.pool)
	if numExpired > 0 {
		log.Debugf("Expired %d %s from the pool", numExpired,
			pickNoun(numExpired, "transaction", "transactions"))
	}
	return numExpired
}

// evictionScore returns the feerate used to choose the transaction to evict
// when the pool is full.  It is the higher of the feerate of the transaction
// alone and of the transaction together with its descendants so transactions
// that are paid for by their children are not evicted first.
//
// This function MUST be called with the mempool lock held (for reads).
func (mp *TxPool) evictionScore(desc *TxDesc) int64 {
	fee, size := desc.Fee, desc.TxSize
	for _, child := range mp.descendants(desc.Tx) {
		fee += child.Fee
		size += child.TxSize
	}
	score := desc.FeePerKB()
	if withDescendants := fee * 1000 / size; withDescendants > score {
		score = withDescendants
	}
	return score
}

// trimToSize evicts the transactions with the lowest eviction score along
// with their descendants until the pool is within its size limit.  It returns
// the number of removed transactions.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) trimToSize() int {
	maxSize := mp.cfg.Policy.MaxPoolSize
	if maxSize <= 0 {
		return 0
	}

	origSize := len(mp.pool)
	for mp.totalSize > maxSize && len(mp.pool) > 0 {
		var worst *TxDesc
		var worstScore int64
		for _, desc := range mp.pool {
			score := mp.evictionScore(desc)
			if worst == nil || score < worstScore ||
				(score == worstScore && desc.order > worst.order) {

				worst, worstScore = desc, score
			}
		}
		log.Debugf("Evicting transaction %v with feerate %d atoms/kB to "+
			"keep the pool under %d bytes", worst.Tx.Hash(), worstScore,
			maxSize)
		mp.removeTransaction(worst.Tx, true, RemovalSizeLimit)
	}
	return origSize - len(mp.pool)
}

// limitPoolSize expires old transactions and then trims the pool to its size
// limit.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) limitPoolSize() {
	mp.expire()
	mp.trimToSize()
}

// RemoveForBlock removes the transactions confirmed by the passed block from
// the pool along with the pool transactions that conflict with them and their
// descendants.  Orphans that depend on the confirmed transactions are then
// processed.  It returns the orphans that were moved to the main pool as a
// result.
//
// The recently rejected filter is reset since transactions that were rejected
// might be valid now.
//
// This function is safe for concurrent access.
func (mp *TxPool) RemoveForBlock(block *dcrutil.Block) []*dcrutil.Tx {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	txns := block.Transactions()
	for _, tx := range txns[1:] {
		// The confirmed transaction no longer belongs in the pool, however
		// its children are still valid since its outputs are now in the
		// chain.
		if desc, ok := mp.pool[*tx.Hash()]; ok {
			mp.removeEntry(desc, RemovalBlock)
		}

		// Remove any pool transactions and orphans that spend the same
		// outputs since they can never be valid now.
		mp.removeDoubleSpends(tx)
		mp.removeOrphan(tx, false)
		mp.removeOrphanDoubleSpends(tx)
	}

	mp.recentlyRejected.Reset()

	var acceptedTxns []*dcrutil.Tx
	for _, tx := range txns[1:] {
		acceptedTxns = append(acceptedTxns, mp.processOrphans(tx)...)
	}
	return acceptedTxns
}

// removeForReorg removes the pool transactions that are no longer valid for
// the block after the new best chain.  These are transactions that are not
// final, spend outputs that no longer exist, spend immature coinbase outputs
// or whose relative locks are no longer met.  The cached relative locks of
// transactions that only depend on blocks at or below the fork height are
// still valid, the others are recalculated.
//
// This function MUST be called with the mempool lock held (for writes).
func (mp *TxPool) removeForReorg(forkHeight int64) {
	nextBlockHeight := mp.cfg.BestHeight() + 1
	medianTime := mp.cfg.PastMedianTime()
	maturity := int64(mp.cfg.ChainParams.CoinbaseMaturity)
	view := &coinsViewMempool{mp: mp}

	descs := make([]*TxDesc, 0, len(mp.pool))
	for _, desc := range mp.pool {
		descs = append(descs, desc)
	}
	sort.Slice(descs, func(i, j int) bool {
		return descs[i].order < descs[j].order
	})

	for _, desc := range descs {
		// Skip entries removed as a descendant of an earlier one.
		tx := desc.Tx
		if !mp.isTransactionInPool(tx.Hash()) {
			continue
		}

		if !blockchain.IsFinalizedTransaction(tx, nextBlockHeight, medianTime) {
			log.Debugf("Removing non-final transaction %v after reorg",
				tx.Hash())
			mp.removeTransaction(tx, true, RemovalReorg)
			continue
		}

		var invalid bool
		msgTx := tx.MsgTx()
		entries := make([]*blockchain.UtxoEntry, len(msgTx.TxIn))
		for i, txIn := range msgTx.TxIn {
			entry, err := view.FetchEntry(txIn.PreviousOutPoint)
			if err != nil || entry == nil {
				invalid = true
				break
			}
			if entry.IsCoinBase() &&
				nextBlockHeight-entry.BlockHeight() < maturity {

				invalid = true
				break
			}
			entries[i] = entry
		}
		if invalid {
			log.Debugf("Removing transaction %v with unavailable or immature "+
				"inputs after reorg", tx.Hash())
			mp.removeTransaction(tx, true, RemovalReorg)
			continue
		}

		if desc.LockPoints.MaxInputHeight > forkHeight {
			seqLock := mp.cfg.CalcSequenceLock(tx, entries)
			desc.LockPoints.MinHeight = seqLock.MinHeight
			desc.LockPoints.MinTime = seqLock.MinTime
			var maxInputHeight int64
			for _, entry := range entries {
				if height := entry.BlockHeight(); height > maxInputHeight {
					maxInputHeight = height
				}
			}
			desc.LockPoints.MaxInputHeight = maxInputHeight
		}
		seqLock := &blockchain.SequenceLock{
			MinHeight: desc.LockPoints.MinHeight,
			MinTime:   desc.LockPoints.MinTime,
		}
		if !blockchain.SequenceLockActive(seqLock, nextBlockHeight, medianTime) {
			log.Debugf("Removing transaction %v with unmet sequence locks "+
				"after reorg", tx.Hash())
			mp.removeTransaction(tx, true, RemovalReorg)
		}
	}
}

// MaybeAcceptReorgTransactions returns the transactions of the blocks that
// were disconnected by a reorganization to the pool.  The pool transactions
// that spend outputs of the disconnected transactions are taken out first and
// added back after them so every transaction follows its parents.  The
// returned transactions skip the fee floor.  Afterwards, the pool
// transactions that are no longer valid on the new best chain, which forked
// from the old one at the passed height, are removed and the pool is trimmed
// to its size limit.
//
// It returns the transactions that were added to the pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) MaybeAcceptReorgTransactions(disconnected *blockchain.DisconnectedTransactions, forkHeight int64) []*dcrutil.Tx {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	txns := disconnected.Transactions()

	// Take the pool transactions that depend on the disconnected ones out of
	// the pool.
	seen := make(map[chainhash.Hash]struct{})
	var dependents []*TxDesc
	for _, tx := range txns {
		for _, desc := range mp.descendants(tx) {
			if _, ok := seen[*desc.Tx.Hash()]; ok {
				continue
			}
			seen[*desc.Tx.Hash()] = struct{}{}
			dependents = append(dependents, desc)
		}
	}
	sort.Slice(dependents, func(i, j int) bool {
		return dependents[i].order < dependents[j].order
	})
	for i := len(dependents) - 1; i >= 0; i-- {
		mp.removeEntry(dependents[i], RemovalReorg)
	}
	for _, desc := range dependents {
		txns = append(txns, desc.Tx)
	}

	var acceptedTxns []*dcrutil.Tx
	for _, tx := range txns {
		if mp.isTransactionInPool(tx.Hash()) {
			continue
		}
		missing, err := mp.maybeAcceptTransaction(tx, acceptOpts{
			allowHighFees: true,
		})
		if err != nil || len(missing) > 0 {
			log.Debugf("Unable to return transaction %v to the pool after "+
				"reorg: %v", tx.Hash(), err)
			continue
		}
		acceptedTxns = append(acceptedTxns, tx)
	}

	mp.removeForReorg(forkHeight)
	mp.limitPoolSize()

	log.Debugf("Returned %d of %d %s to the pool after reorg (pool size: %d)",
		len(acceptedTxns), len(txns), pickNoun(len(txns), "transaction",
			"transactions"), len(mp.pool))

	return acceptedTxns
}

// Count returns the number of transactions in the main pool.  It does not
// include the orphan pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) Count() int {
	mp.mtx.RLock()
	count := len(mp.pool)
	mp.mtx.RUnlock()

	return count
}

// Size returns the total serialized size of the transactions in the main
// pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) Size() int64 {
	mp.mtx.RLock()
	size := mp.totalSize
	mp.mtx.RUnlock()

	return size
}

// TxHashes returns a slice of hashes for all of the transactions in the memory
// pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) TxHashes() []*chainhash.Hash {
	mp.mtx.RLock()
	hashes := make([]*chainhash.Hash, len(mp.pool))
	i := 0
	for hash := range mp.pool {
		hashCopy := hash
		hashes[i] = &hashCopy
		i++
	}
	mp.mtx.RUnlock()

	return hashes
}

// TxDescs returns a slice of descriptors for all the transactions in the pool.
// The descriptors must be treated as read only.
//
// This function is safe for concurrent access.
func (mp *TxPool) TxDescs() []*TxDesc {
	mp.mtx.RLock()
	descs := make([]*TxDesc, len(mp.pool))
	i := 0
	for _, desc := range mp.pool {
		descs[i] = desc
		i++
	}
	mp.mtx.RUnlock()

	return descs
}

// MiningDescs returns the descriptors for all the transactions in the pool
// sorted by descending feerate.  Transactions with the same feerate keep the
// order they were added in.  The descriptors must be treated as read only.
//
// This function is safe for concurrent access.
func (mp *TxPool) MiningDescs() []*TxDesc {
	descs := mp.TxDescs()
	sort.Slice(descs, func(i, j int) bool {
		ri, rj := descs[i].FeePerKB(), descs[j].FeePerKB()
		if ri == rj {
			return descs[i].order < descs[j].order
		}
		return ri > rj
	})
	return descs
}

// LastUpdated returns the last time a transaction was added to or removed from
// the main pool.  It does not include the orphan pool.
//
// This function is safe for concurrent access.
func (mp *TxPool) LastUpdated() time.Time {
	return time.Unix(mp.lastUpdated.Load(), 0)
}

// New returns a new memory pool for validating and storing standalone
// transactions until they are mined into a block.
func New(cfg *Config) *TxPool {
	initPrometheusMetrics()
	return &TxPool{
		cfg:              *cfg,
		pool:             make(map[chainhash.Hash]*TxDesc),
		orphans:          make(map[chainhash.Hash]*orphanTx),
		orphansByPrev:    make(map[wire.OutPoint]map[chainhash.Hash]*dcrutil.Tx),
		outpoints:        make(map[wire.OutPoint]*dcrutil.Tx),
		recentlyRejected: apbf.NewFilter(maxRejectedTxns, rejectedTxnsFPRate),
		nextExpireScan:   time.Now().Add(orphanExpireScanInterval),
		now:              time.Now,
	}
}
