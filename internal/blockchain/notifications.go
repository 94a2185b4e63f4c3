// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"
)

// NotificationType represents the type of a notification message.
type NotificationType int

// NotificationCallback is used for a caller to provide a callback for
// notifications about various chain events.
//
// The callback is invoked synchronously without the chain lock held and must
// not block.
type NotificationCallback func(*Notification)

// Constants for the type of a notification message.
const (
	// NTNewTipBlockChecked indicates the associated block intends to extend
	// the current main chain and has passed all of the sanity and
	// contextual checks such as having valid proof of work, valid merkle
	// root, and valid timestamps.  It is sent before the block is connected
	// so it can be relayed as early as possible.
	NTNewTipBlockChecked NotificationType = iota

	// NTBlockAccepted indicates the associated block was accepted into
	// the block chain.  Note that this does not necessarily mean it was
	// added to the main chain.  For that, use NTBlockConnected.
	NTBlockAccepted

	// NTBlockConnected indicates the associated block was connected to the
	// main chain.
	NTBlockConnected

	// NTBlockDisconnected indicates the associated block was disconnected
	// from the main chain.
	NTBlockDisconnected

	// NTChainReorganized indicates the main chain switched to another
	// branch.  It is sent once all of the blocks of the new branch that
	// could be connected are connected.
	NTChainReorganized

	// NTTipChanged indicates the tip of the main chain changed.
	NTTipChanged
)

// notificationTypeStrings is a map of notification types back to their
// constant names for pretty printing.
var notificationTypeStrings = map[NotificationType]string{
	NTNewTipBlockChecked: "NTNewTipBlockChecked",
	NTBlockAccepted:      "NTBlockAccepted",
	NTBlockConnected:     "NTBlockConnected",
	NTBlockDisconnected:  "NTBlockDisconnected",
	NTChainReorganized:   "NTChainReorganized",
	NTTipChanged:         "NTTipChanged",
}

// String returns the NotificationType in human-readable form.
func (n NotificationType) String() string {
	if s, ok := notificationTypeStrings[n]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Notification Type (%d)", int(n))
}

// BlockAcceptedNtfnsData is the structure for data indicating information
// about an accepted block.  Note that this does not necessarily mean the block
// that was accepted extended the best chain as it might have created or
// extended a side chain.
type BlockAcceptedNtfnsData struct {
	// BestHeight is the height of the current best chain.  Since the
	// accepted block might be on a side chain, this is not necessarily the
	// same as the height of the accepted block.
	BestHeight int64

	// ForkLen is the length of the side chain the block extended or zero in
	// the case the block extended the main chain.
	ForkLen int64

	// Block is the block that was accepted into the chain.
	Block *dcrutil.Block
}

// BlockConnectedNtfnsData is the structure for data indicating information
// about a connected block.
type BlockConnectedNtfnsData struct {
	Block  *dcrutil.Block
	Height int64
}

// BlockDisconnectedNtfnsData is the structure for data indicating information
// about a disconnected block.
type BlockDisconnectedNtfnsData struct {
	Block  *dcrutil.Block
	Height int64
}

// ReorganizationNtfnsData is the structure for data indicating information
// about a reorganization.
type ReorganizationNtfnsData struct {
	OldHash    chainhash.Hash
	OldHeight  int64
	NewHash    chainhash.Hash
	NewHeight  int64
	ForkHash   chainhash.Hash
	ForkHeight int64

	// DisconnectedTxns holds the transactions of the disconnected blocks
	// that were not included in the new branch.
	DisconnectedTxns *DisconnectedTransactions
}

// TipChangedNtfnsData is the structure for data indicating the tip of the
// main chain changed.
type TipChangedNtfnsData struct {
	OldTip    chainhash.Hash
	NewTip    chainhash.Hash
	Fork      chainhash.Hash
	NewHeight int64

	// InitialDownload is set when the chain does not believe it is current.
	InitialDownload bool
}

// Notification defines notification that is sent to the caller via the
// callback function provided during the call to New and consists of a
// notification type as well as associated data that depends on the type as
// follows:
//   - NTNewTipBlockChecked:   *dcrutil.Block
//   - NTBlockAccepted:        *BlockAcceptedNtfnsData
//   - NTBlockConnected:       *BlockConnectedNtfnsData
//   - NTBlockDisconnected:    *BlockDisconnectedNtfnsData
//   - NTChainReorganized:     *ReorganizationNtfnsData
//   - NTTipChanged:           *TipChangedNtfnsData
type Notification struct {
	Type NotificationType
	Data interface{}
}

// sendNotification sends a notification with the passed type and data if the
// caller requested notifications by providing a callback function in the call
// to New.
func (b *BlockChain) sendNotification(typ NotificationType, data interface{}) {
	// Ignore it if the caller didn't request notifications.
	if b.notifications == nil {
		return
	}

	// Generate and send the notification.
	n := Notification{Type: typ, Data: data}
	b.notifications(&n)
}

// BlockConnector is implemented by overlays that index the transactions of
// the main chain, such as token protocols.  The methods are invoked exactly
// once per block in the order the blocks are connected and disconnected.
// Errors are logged and never affect the validity of a block.
type BlockConnector interface {
	ConnectBlock(block *dcrutil.Block, height int64) error
	DisconnectBlock(block *dcrutil.Block, height int64) error
}
