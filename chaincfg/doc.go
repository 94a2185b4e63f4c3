// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg defines chain configuration parameters.
//
// In addition to the main network, which is intended for the transfer of
// monetary value, there also exist two standard networks: regression test and
// testnet.  These networks are incompatible with each other (each sharing a
// different genesis block) and software should handle errors where input
// intended for one network is used on an application instance running on a
// different network.
//
// Each network defines the heights at which the staged consensus upgrades
// activate.  The chain uses them to derive the script verification flags,
// block version requirements and transaction ordering rules that apply to any
// given block.
//
// For main packages, a (typically global) var may be assigned the result of
// one of the standard Params functions for use as the application's "active"
// network.
package chaincfg
