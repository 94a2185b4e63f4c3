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

// TestNetParams returns the network parameters for the test network.
func TestNetParams() *Params {
	// testNetPowLimit is the highest proof of work value a block can have
	// for the test network.  It is the value 2^224 - 1.
	testNetPowLimit := new(big.Int).Sub(new(big.Int).Lsh(bigOne, 224), bigOne)

	genesisBlock := newGenesisBlock(time.Unix(1296688602, 0), 0x1d00ffff,
		414098458, 50*1e8)

	return &Params{
		Name:         "testnet",
		Net:          wire.CurrencyNet(0xf4f3e5f4),
		DefaultPort:  "18333",
		GenesisBlock: genesisBlock,
		GenesisHash:  genesisBlock.BlockHash(),

		// Chain parameters
		PowLimit:                 testNetPowLimit,
		PowLimitBits:             0x1d00ffff,
		ReduceMinDifficulty:      true,
		MinDiffReductionTime:     time.Minute * 20,
		TargetTimePerBlock:       time.Minute * 10,
		ASERTHalfLife:            time.Hour,
		ASERTAnchor:              &ASERTAnchor{Height: 1421481, Bits: 0x1d00ffff, PrevBlockTime: 1605445400},
		CoinbaseMaturity:         100,
		BaseSubsidy:              50 * 1e8,
		SubsidyReductionInterval: 210000,
		MaxBlockSize:             32000000,

		// Consensus upgrades
		BIP16Height:           514,
		BIP34Height:           21111,
		BIP65Height:           581885,
		BIP66Height:           330776,
		CSVHeight:             770112,
		UAHFHeight:            1155876,
		DAAHeight:             1188697,
		MagneticAnomalyHeight: 1267997,
		GravitonHeight:        1303885,
		PhononHeight:          1378461,
		AxionHeight:           1421482,
		BIP30BypassHeight:     21111,

		Checkpoints: nil,

		PruneAfterHeight: 1000,
		RelayNonStdTxs:   true,
	}
}
