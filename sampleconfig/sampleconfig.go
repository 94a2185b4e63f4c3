// Copyright (c) 2017-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package sampleconfig provides the commented example configuration file for
// xecd.
package sampleconfig

import (
	_ "embed"
)

// sampleXecdConf is a string containing the commented example config for xecd.
//
//go:embed sample-xecd.conf
var sampleXecdConf string

// Xecd returns a string containing the commented example config for xecd.
func Xecd() string {
	return sampleXecdConf
}
