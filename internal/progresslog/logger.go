// Copyright (c) 2015-2021 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package progresslog

import (
	"sync"
	"time"

	"github.com/decred/dcrd/wire"
	"github.com/decred/slog"
)

// logInterval is the minimum amount of time between unforced log messages.
const logInterval = 10 * time.Second

// pickNoun returns the singular or plural form of a noun depending on the
// provided count.
func pickNoun(n uint64, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

// Logger provides periodic logging of progress towards some action such as
// syncing the chain.
type Logger struct {
	sync.Mutex
	subsystemLogger slog.Logger
	progressAction  string

	// lastLogTime tracks the last time a log statement was shown.
	lastLogTime time.Time

	// These fields accumulate information about blocks between log statements.
	receivedBlocks uint64
	receivedTxns   uint64
	receivedBytes  uint64

	// receivedHeaders accumulates the number of headers between log
	// statements.
	receivedHeaders uint64
}

// New returns a new block progress logger.
func New(progressAction string, logger slog.Logger) *Logger {
	return &Logger{
		lastLogTime:     time.Now(),
		progressAction:  progressAction,
		subsystemLogger: logger,
	}
}

// LogProgress accumulates details for the provided block at the provided
// height and periodically (every 10 seconds) logs an information message to
// show progress to the user along with duration and totals included.
//
// The force flag may be used to force a log message to be shown regardless of
// the time the last one was shown.  The progress function reports the
// estimated fraction of the chain that is synced.
//
// The progress message is templated as follows:
//
//	{progressAction} {numProcessed} {blocks|block} in the last {timePeriod}
//	({numTxs} {transactions|transaction}, {numBytes} bytes, height
//	{lastBlockHeight}, {lastBlockTimeStamp}, ~{progress}% done)
func (l *Logger) LogProgress(block *wire.MsgBlock, height int64, forceLog bool, progressFn func() float64) {
	l.Lock()
	defer l.Unlock()

	l.receivedBlocks++
	l.receivedTxns += uint64(len(block.Transactions))
	l.receivedBytes += uint64(block.SerializeSize())
	now := time.Now()
	duration := now.Sub(l.lastLogTime)
	if !forceLog && duration < logInterval {
		return
	}

	// Log information about chain progress.
	l.subsystemLogger.Infof("%s %d %s in the last %0.2fs (%d %s, %d bytes, "+
		"height %d, %s, ~%0.2f%% done)", l.progressAction,
		l.receivedBlocks, pickNoun(l.receivedBlocks, "block", "blocks"),
		duration.Seconds(),
		l.receivedTxns, pickNoun(l.receivedTxns, "transaction", "transactions"),
		l.receivedBytes, height, block.Header.Timestamp, progressFn()*100)

	l.receivedBlocks = 0
	l.receivedTxns = 0
	l.receivedBytes = 0
	l.lastLogTime = now
}

// LogHeaderProgress accumulates the provided number of processed headers and
// periodically (every 10 seconds) logs an information message to show the
// header sync progress to the user along with duration and totals included.
//
// The force flag may be used to force a log message to be shown regardless of
// the time the last one was shown.
func (l *Logger) LogHeaderProgress(processedHeaders uint64, forceLog bool, progressFn func() float64) {
	l.Lock()
	defer l.Unlock()

	l.receivedHeaders += processedHeaders
	now := time.Now()
	duration := now.Sub(l.lastLogTime)
	if !forceLog && duration < logInterval {
		return
	}

	l.subsystemLogger.Infof("%s %d %s in the last %0.2fs (~%0.2f%% done)",
		l.progressAction, l.receivedHeaders,
		pickNoun(l.receivedHeaders, "header", "headers"), duration.Seconds(),
		progressFn()*100)

	l.receivedHeaders = 0
	l.lastLogTime = now
}

// SetLastLogTime updates the last time data was logged to the provided time.
func (l *Logger) SetLastLogTime(time time.Time) {
	l.Lock()
	l.lastLogTime = time
	l.Unlock()
}
