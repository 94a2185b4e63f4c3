// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2019 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"sort"
	"sync"
	"time"
)

const (
	// maxAllowedOffsetSecs is the maximum number of seconds in either
	// direction that local clock will be adjusted.  When the median time
	// of the network is outside of this range, no offset will be applied.
	maxAllowedOffsetSecs = 70 * 60 // 1 hour 10 minutes

	// similarTimeSecs is the number of seconds in either direction from the
	// local clock that is used to determine that it is likely wrong and
	// hence to show a warning.
	similarTimeSecs = 5 * 60 // 5 minutes
)

// maxMedianTimeEntries is the maximum number of entries allowed in the median
// time data.  This is a variable as opposed to a constant so the test code can
// modify it.
var maxMedianTimeEntries = 200

// MedianTimeSource provides a mechanism to add several time samples which are
// used to determine a median time which is then used as an offset to the local
// clock.
type MedianTimeSource interface {
	// AdjustedTime returns the current time adjusted by the median time
	// offset as calculated from the time samples added by AddTimeSample.
	AdjustedTime() time.Time

	// AddTimeSample adds a time sample that is used when determining the
	// median time of the added samples.
	AddTimeSample(id string, timeVal time.Time)

	// Offset returns the number of seconds to adjust the local clock based
	// upon the median of the time samples added by AddTimeData.
	Offset() time.Duration
}

// medianTime provides an implementation of the MedianTimeSource interface.
type medianTime struct {
	mtx                sync.Mutex
	knownIDs           map[string]struct{}
	offsets            []int64
	offsetSecs         int64
	invalidTimeChecked bool

	// mockTime replaces the local clock when it is not the zero time.
	mockTime time.Time
}

// Ensure the medianTime type implements the MedianTimeSource interface.
var _ MedianTimeSource = (*medianTime)(nil)

// now returns the local clock, or the mock time when one is set, truncated to
// one second precision.
//
// This function MUST be called with the mutex held.
func (m *medianTime) now() time.Time {
	if !m.mockTime.IsZero() {
		return time.Unix(m.mockTime.Unix(), 0)
	}
	return time.Unix(time.Now().Unix(), 0)
}

// AdjustedTime returns the current time adjusted by the median time offset as
// calculated from the time samples added by AddTimeSample.
//
// This function is safe for concurrent access and is part of the
// MedianTimeSource interface implementation.
func (m *medianTime) AdjustedTime() time.Time {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return m.now().Add(time.Duration(m.offsetSecs) * time.Second)
}

// AddTimeSample adds a time sample that is used when determining the median
// time of the added samples.
//
// This function is safe for concurrent access and is part of the
// MedianTimeSource interface implementation.
func (m *medianTime) AddTimeSample(sourceID string, timeVal time.Time) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	// Don't add time data from the same source.
	if _, exists := m.knownIDs[sourceID]; exists {
		return
	}
	m.knownIDs[sourceID] = struct{}{}

	// Truncate the provided offset to seconds and append it to the slice of
	// offsets while respecting the maximum number of allowed entries by
	// replacing the oldest entry with the new entry once the maximum number of
	// entries is reached.
	offsetSecs := int64(timeVal.Sub(m.now()).Seconds())
	numOffsets := len(m.offsets)
	if numOffsets == maxMedianTimeEntries && maxMedianTimeEntries > 0 {
		m.offsets = m.offsets[1:]
		numOffsets--
	}
	m.offsets = append(m.offsets, offsetSecs)
	numOffsets++

	sortedOffsets := make([]int64, numOffsets)
	copy(sortedOffsets, m.offsets)
	sort.Slice(sortedOffsets, func(i, j int) bool {
		return sortedOffsets[i] < sortedOffsets[j]
	})

	log.Debugf("Added time sample of %v (total: %v)",
		time.Duration(offsetSecs)*time.Second, numOffsets)

	// The median offset is only updated when there are enough offsets and the
	// number of offsets is odd so the middle value is the true median.
	if numOffsets < 5 || numOffsets&0x01 != 1 {
		return
	}

	median := sortedOffsets[numOffsets/2]
	if abs64(median) < maxAllowedOffsetSecs {
		m.offsetSecs = median
	} else {
		// The median offset of all added time data is larger than the maximum
		// allowed offset, so don't use an offset.
		m.offsetSecs = 0

		if !m.invalidTimeChecked {
			m.invalidTimeChecked = true

			var remoteHasCloseTime bool
			for _, offset := range sortedOffsets {
				if abs64(offset) < similarTimeSecs {
					remoteHasCloseTime = true
					break
				}
			}
			if !remoteHasCloseTime {
				log.Warnf("Please check your date and time are correct!  " +
					"xecd will not work properly with an invalid time")
			}
		}
	}

	log.Debugf("New time offset: %v", time.Duration(m.offsetSecs)*time.Second)
}

// Offset returns the number of seconds to adjust the local clock based upon the
// median of the time samples added by AddTimeData.
//
// This function is safe for concurrent access and is part of the
// MedianTimeSource interface implementation.
func (m *medianTime) Offset() time.Duration {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return time.Duration(m.offsetSecs) * time.Second
}

// SetMockTime replaces the local clock with the provided time.  Passing the
// zero time restores the local clock.
//
// This function is safe for concurrent access.
func (m *medianTime) SetMockTime(t time.Time) {
	m.mtx.Lock()
	m.mockTime = t
	m.mtx.Unlock()
}

// abs64 returns the absolute value of the passed integer.
func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// NewMedianTime returns a new instance of concurrency-safe implementation of
// the MedianTimeSource interface.  The returned implementation contains the
// rules necessary for proper time handling in the chain consensus rules and
// expects the time samples to be added from the timestamp field of the version
// message received from remote peers that successfully connect and negotiate.
func NewMedianTime() MedianTimeSource {
	return &medianTime{
		knownIDs: make(map[string]struct{}),
		offsets:  make([]int64, 0, maxMedianTimeEntries),
	}
}

// MockableTimeSource is a median time source whose local clock can be replaced
// by a fixed time for testing and administrative purposes.
type MockableTimeSource interface {
	MedianTimeSource

	// SetMockTime replaces the local clock with the provided time.  Passing
	// the zero time restores the local clock.
	SetMockTime(t time.Time)
}

// NewMockableMedianTime returns a median time source that supports replacing
// the local clock.
func NewMockableMedianTime() MockableTimeSource {
	return &medianTime{
		knownIDs: make(map[string]struct{}),
		offsets:  make([]int64, 0, maxMedianTimeEntries),
	}
}
