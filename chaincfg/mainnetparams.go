// Copyright (c) 2014-2016 The btcsuite developers
// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chaincfg

import (
	"math/big"
	"time"

	"github.com/decred/dcrd/wire"
)

// MainNetParams returns the network parameters for the main network.
func MainNetParams() *Params {
	// mainPowLimit is the highest proof of work value a block can have for
	// the main network.  It is the value 2^224 - 1.
	mainPowLimit := new(big.Int).Sub(new(big.Int).Lsh(bigOne, 224), bigOne)

	genesisBlock := newGenesisBlock(time.Unix(1231006505, 0), 0x1d00ffff,
		2083236893, 50*1e8)

	return &Params{
		Name:         "mainnet",
		Net:          wire.CurrencyNet(0xe8f3e1e3),
		DefaultPort:  "8333",
		GenesisBlock: genesisBlock,
		GenesisHash:  genesisBlock.BlockHash(),

		// Chain parameters
		PowLimit:                 mainPowLimit,
		PowLimitBits:             0x1d00ffff,
		ReduceMinDifficulty:      false,
		MinDiffReductionTime:     0,
		TargetTimePerBlock:       time.Minute * 10,
		ASERTHalfLife:            time.Hour * 48,
		ASERTAnchor:              &ASERTAnchor{Height: 661647, Bits: 0x1804dafe, PrevBlockTime: 1605447844},
		CoinbaseMaturity:         100,
		BaseSubsidy:              50 * 1e8,
		SubsidyReductionInterval: 210000,
		MaxBlockSize:             32000000,

		// Consensus upgrades
		BIP16Height:           173805,
		BIP34Height:           227931,
		BIP65Height:           388381,
		BIP66Height:           363725,
		CSVHeight:             419328,
		UAHFHeight:            478559,
		DAAHeight:             504031,
		MagneticAnomalyHeight: 556767,
		GravitonHeight:        582680,
		PhononHeight:          635259,
		AxionHeight:           661648,
		BIP30BypassHeight:     227931,

		// Checkpoints are populated once the network has history beyond its
		// genesis block.
		Checkpoints: nil,

		PruneAfterHeight: 100000,
		RelayNonStdTxs:   false,
	}
}
