// Copyright (c) 2018-2021 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"math/big"
	"time"

	"github.com/decred/dcrd/wire"
)

// RegNetParams returns the network parameters for the regression test network.
// This should not be confused with the public test network.  The purpose of
// this network is primarily for unit tests.
//
// Every consensus upgrade is active from the first block after genesis with
// the exception of the BIP30 bypass, which is deliberately placed at a low but
// non-zero height so both sides of the rule can be exercised.
//
// Since this network is only intended for unit testing, its values are subject
// to change even if it would cause a hard fork.
func RegNetParams() *Params {
	// regNetPowLimit is the highest proof of work value a block can have for
	// the regression test network.  It is the value 2^255 - 1.
	regNetPowLimit := new(big.Int).Sub(new(big.Int).Lsh(bigOne, 255), bigOne)

	genesisBlock := newGenesisBlock(time.Unix(1296688602, 0), 0x207fffff, 2,
		50*1e8)

	return &Params{
		Name:         "regnet",
		Net:          wire.CurrencyNet(0xdab5bffa),
		DefaultPort:  "18444",
		GenesisBlock: genesisBlock,
		GenesisHash:  genesisBlock.BlockHash(),

		// Chain parameters
		PowLimit:                 regNetPowLimit,
		PowLimitBits:             0x207fffff,
		NoDifficultyAdjustment:   true,
		ReduceMinDifficulty:      true,
		MinDiffReductionTime:     time.Minute * 20,
		TargetTimePerBlock:       time.Minute * 10,
		ASERTHalfLife:            time.Hour * 48,
		CoinbaseMaturity:         100,
		BaseSubsidy:              50 * 1e8,
		SubsidyReductionInterval: 150,
		MaxBlockSize:             32000000,

		// Consensus upgrades
		BIP16Height:           0,
		BIP34Height:           1,
		BIP65Height:           1,
		BIP66Height:           1,
		CSVHeight:             1,
		UAHFHeight:            1,
		DAAHeight:             1,
		MagneticAnomalyHeight: 1,
		GravitonHeight:        1,
		PhononHeight:          1,
		AxionHeight:           1,
		BIP30BypassHeight:     1000,

		Checkpoints: nil,

		PruneAfterHeight: 1000,
		RelayNonStdTxs:   true,
	}
}
