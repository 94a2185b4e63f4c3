// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"encoding/hex"
	"math/big"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/wire"
)

// bigOne is 1 represented as a big.Int.  It is defined here to avoid the
// overhead of creating it multiple times.
var bigOne = big.NewInt(1)

// blockSizeToSigChecksRatio is the number of bytes of maximum block size that
// grant one signature check to a block.
const blockSizeToSigChecksRatio = 141

// Checkpoint identifies a known good point in the block chain.  Using
// checkpoints allows a few optimizations for old blocks during initial download
// and also prevents forks from old blocks.
type Checkpoint struct {
	Height int64
	Hash   *chainhash.Hash
}

// ASERTAnchor identifies the reference block used by the absolutely scheduled
// difficulty algorithm.  The anchor is the parent of the first block whose
// difficulty is calculated with the algorithm.
type ASERTAnchor struct {
	// Height is the height of the anchor block.
	Height int64

	// Bits is the compact target difficulty of the anchor block.
	Bits uint32

	// PrevBlockTime is the timestamp of the anchor block's parent in seconds
	// since the unix epoch.
	PrevBlockTime int64
}

// Params defines a network by its parameters.  These parameters may be used by
// applications to differentiate networks as well as addresses and keys for one
// network from those intended for use on another network.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// Net defines the magic bytes used to identify the network.
	Net wire.CurrencyNet

	// DefaultPort defines the default peer-to-peer port for the network.
	DefaultPort string

	// GenesisBlock defines the first block of the chain.
	GenesisBlock *wire.MsgBlock

	// GenesisHash is the starting block hash.
	GenesisHash chainhash.Hash

	// PowLimit defines the highest allowed proof of work value for a block
	// as a uint256.
	PowLimit *big.Int

	// PowLimitBits defines the highest allowed proof of work value for a
	// block in compact form.
	PowLimitBits uint32

	// NoDifficultyAdjustment disables difficulty retargeting entirely so
	// every block uses the proof of work limit.  Only used by the regression
	// test network.
	NoDifficultyAdjustment bool

	// ReduceMinDifficulty defines whether the network should reduce the
	// minimum required difficulty after a long enough period of time has
	// passed without finding a block.  This is really only useful for test
	// networks and should not be set on a main network.
	ReduceMinDifficulty bool

	// MinDiffReductionTime is the amount of time after which the minimum
	// required difficulty should be reduced when a block hasn't been found.
	//
	// NOTE: This only applies if ReduceMinDifficulty is true.
	MinDiffReductionTime time.Duration

	// TargetTimePerBlock is the desired amount of time to generate each
	// block.
	TargetTimePerBlock time.Duration

	// ASERTHalfLife is the smoothing factor of the absolutely scheduled
	// difficulty algorithm.
	ASERTHalfLife time.Duration

	// ASERTAnchor is the reference block of the absolutely scheduled
	// difficulty algorithm.  When nil, the anchor is taken to be the parent
	// of the block at AxionHeight.
	ASERTAnchor *ASERTAnchor

	// CoinbaseMaturity is the number of blocks required before newly mined
	// coins (coinbase transactions) can be spent.
	CoinbaseMaturity uint16

	// BaseSubsidy is the starting subsidy amount for mined blocks.
	BaseSubsidy int64

	// SubsidyReductionInterval is the interval of blocks before the subsidy
	// is halved.
	SubsidyReductionInterval int64

	// MaxBlockSize is the maximum serialized size of a block.
	MaxBlockSize int64

	// The following define the heights at which each consensus upgrade
	// becomes active.  A block at a height equal to or greater than the
	// given value is subject to the upgrade rules.

	// BIP16Height enables pay-to-script-hash evaluation.
	BIP16Height int64

	// BIP34Height requires the block height in the coinbase and version 2
	// blocks.
	BIP34Height int64

	// BIP34Hash is the hash of the block at BIP34Height, if known.
	BIP34Hash chainhash.Hash

	// BIP65Height enables OP_CHECKLOCKTIMEVERIFY and version 4 blocks.
	BIP65Height int64

	// BIP66Height enables strict DER signatures and version 3 blocks.
	BIP66Height int64

	// CSVHeight enables relative lock times (BIP68, BIP112 and BIP113).
	CSVHeight int64

	// UAHFHeight enables strict encoding and replay protected signature
	// hashes.
	UAHFHeight int64

	// DAAHeight enables low-S and null-fail signature rules.
	DAAHeight int64

	// MagneticAnomalyHeight enables canonical transaction ordering, clean
	// stack and push-only signature scripts.
	MagneticAnomalyHeight int64

	// GravitonHeight enables minimal data pushes and Schnorr multisig.
	GravitonHeight int64

	// PhononHeight replaces signature operation counting with signature
	// check accounting.
	PhononHeight int64

	// AxionHeight activates the absolutely scheduled difficulty algorithm.
	AxionHeight int64

	// BIP30BypassHeight is the height from which the rule against
	// overwriting unspent outputs is no longer checked.  Coinbase heights
	// make duplicate transactions impossible from BIP34 onward.
	BIP30BypassHeight int64

	// Checkpoints are ordered from oldest to newest.
	Checkpoints []Checkpoint

	// AssumeValid is the hash of a block that has been externally verified
	// to be valid.  Scripts in its ancestors are not checked.  The zero hash
	// disables the behavior.
	AssumeValid chainhash.Hash

	// PruneAfterHeight is the height below which block files are never
	// pruned.
	PruneAfterHeight int64

	// RelayNonStdTxs defines whether or not the network relays
	// non-standard transactions by default.
	RelayNonStdTxs bool
}

// LatestCheckpoint returns the most recent checkpoint (regardless of whether it
// is already known).  When there are no defined checkpoints for the active
// network, it will return nil.
func (p *Params) LatestCheckpoint() *Checkpoint {
	if len(p.Checkpoints) == 0 {
		return nil
	}
	return &p.Checkpoints[len(p.Checkpoints)-1]
}

// newHashFromStr converts the passed big-endian hex string into a
// chainhash.Hash.  It only differs from the one available in chainhash in that
// it panics on an error since it will only (and must only) be called with
// hard-coded, and therefore known good, hashes.
func newHashFromStr(hexStr string) *chainhash.Hash {
	hash, err := chainhash.NewHashFromStr(hexStr)
	if err != nil {
		panic(err)
	}
	return hash
}

// hexDecode decodes the passed hex string and returns the resulting bytes.  It
// panics if an error occurs.  This is only used in the hard-coded parameters
// where the error is not possible.
func hexDecode(hexStr string) []byte {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		panic(err)
	}
	return b
}

// hexToBigInt converts the passed hex string into a big integer and will panic
// if there is an error.  This is only provided for the hard-coded constants so
// errors in the source code can be detected. It will only (and must only) be
// called with hard-coded values.
func hexToBigInt(hexStr string) *big.Int {
	val, ok := new(big.Int).SetString(hexStr, 16)
	if !ok {
		panic("failed to parse big integer from hex: " + hexStr)
	}
	return val
}

// MaxBlockSigChecks returns the maximum number of signature checks a block
// may perform.  It scales with the maximum block size.
func (p *Params) MaxBlockSigChecks() int64 {
	return p.MaxBlockSize / blockSizeToSigChecksRatio
}
