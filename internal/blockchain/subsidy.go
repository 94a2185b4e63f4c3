// Copyright (c) 2013-2015 The btcsuite developers
// Copyright (c) 2015-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/xecnode/xecd/chaincfg"
)

// maxSubsidyHalvings is the number of halvings after which the subsidy is
// zero.  Shifting by 64 or more bits is undefined for the subsidy amount.
const maxSubsidyHalvings = 64

// CalcBlockSubsidy returns the subsidy amount a block at the provided height
// should have.  This is mainly used for determining how much the coinbase for
// newly generated blocks awards as well as validating the coinbase for blocks
// has the expected value.
//
// The subsidy is halved every SubsidyReductionInterval blocks.  Mathematically
// this is: baseSubsidy / 2^(height/SubsidyReductionInterval)
func CalcBlockSubsidy(height int64, params *chaincfg.Params) int64 {
	if params.SubsidyReductionInterval == 0 {
		return params.BaseSubsidy
	}

	halvings := height / params.SubsidyReductionInterval
	if halvings >= maxSubsidyHalvings {
		return 0
	}

	// Equivalent to: baseSubsidy / 2^halvings
	return params.BaseSubsidy >> uint(halvings)
}
