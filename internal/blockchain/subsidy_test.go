// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"testing"

	"github.com/xecnode/xecd/chaincfg"
)

// TestBlockSubsidy ensures the subsidy halves at every reduction interval and
// eventually reaches zero.
func TestBlockSubsidy(t *testing.T) {
	params := chaincfg.MainNetParams()
	interval := params.SubsidyReductionInterval

	tests := []struct {
		height int64
		want   int64
	}{
		{0, 50 * 1e8},
		{interval - 1, 50 * 1e8},
		{interval, 25 * 1e8},
		{interval * 2, 1250000000},
		{interval * 33, 0},
		{interval * 100, 0},
	}
	for _, test := range tests {
		got := CalcBlockSubsidy(test.height, params)
		if got != test.want {
			t.Errorf("height %d: got subsidy %d, want %d", test.height, got,
				test.want)
		}
	}
}
