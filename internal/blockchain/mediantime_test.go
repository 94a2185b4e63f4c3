// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2019 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"strconv"
	"testing"
	"time"
)

// TestMedianTime tests the medianTime implementation.
func TestMedianTime(t *testing.T) {
	tests := []struct {
		in         []int64
		wantOffset int64
		useDupID   bool
	}{
		// Not enough samples must result in an offset of 0.
		{in: []int64{1}, wantOffset: 0},
		{in: []int64{1, 2}, wantOffset: 0},
		{in: []int64{1, 2, 3}, wantOffset: 0},
		{in: []int64{1, 2, 3, 4}, wantOffset: 0},

		// Various number of entries.  The expected offset is only
		// updated on odd number of elements.
		{in: []int64{-13, 57, -4, -23, -12}, wantOffset: -12},
		{in: []int64{55, -13, 61, -52, 39, 55}, wantOffset: 39},
		{in: []int64{-62, -58, -30, -62, 51, -30, 15}, wantOffset: -30},

		// Offsets beyond the maximum allowed adjustment are ignored.
		{in: []int64{4201, 4202, 4203, 4204, 4205}, wantOffset: 0},

		// Duplicate sample sources are ignored.
		{in: []int64{-13, 57, -4, -23, -12}, wantOffset: 0, useDupID: true},
	}

	mockNow := time.Unix(1700000000, 0)
	for i, test := range tests {
		src := NewMockableMedianTime()
		src.SetMockTime(mockNow)
		for j, offset := range test.in {
			id := strconv.Itoa(j)
			if test.useDupID {
				id = "dup"
			}
			tOffset := mockNow.Add(time.Duration(offset) * time.Second)
			src.AddTimeSample(id, tOffset)
		}

		gotOffset := src.Offset()
		wantOffset := time.Duration(test.wantOffset) * time.Second
		if gotOffset != wantOffset {
			t.Errorf("Offset #%d: unexpected offset -- got %v, want %v", i,
				gotOffset, wantOffset)
			continue
		}

		adjustedTime := src.AdjustedTime()
		wantTime := mockNow.Add(wantOffset)
		if !adjustedTime.Equal(wantTime) {
			t.Errorf("AdjustedTime #%d: unexpected result -- got %v, "+
				"want %v", i, adjustedTime, wantTime)
			continue
		}
	}
}
