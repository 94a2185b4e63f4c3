// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2017-2020 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"github.com/decred/slog"
)

// log is a logger that is initialized with no output filters.  This
// means the package will not perform any logging by default until the caller
// requests it.
// The default amount of logging is none.
var log = slog.Disabled

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger slog.Logger) {
	log = logger
}

// pickNoun returns the singular or plural form of a noun depending on the
// provided count.
func pickNoun[T ~int | ~int64 | ~uint64](n T, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}
