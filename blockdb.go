// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/wire"
	"github.com/xecnode/xecd/chaincfg"
	"github.com/xecnode/xecd/internal/blockchain"
	"github.com/xecnode/xecd/internal/blockstore"
	"github.com/xecnode/xecd/internal/progresslog"
)

const (
	// blockStoreDirname is the name of the directory within the data
	// directory that houses the block and undo files.
	blockStoreDirname = "blocks"

	// maxImportBlockSize is the largest serialized block accepted from an
	// import file.  It guards against allocating absurd amounts of memory
	// for a corrupt length prefix.
	maxImportBlockSize = 32 * 1000 * 1000
)

// removeRegressionStore removes the existing regression test block store if
// running in regression test mode and it already exists.
func removeRegressionStore(params *chaincfg.Params, path string) error {
	// Don't do anything if not in regression test mode.
	if params.Net != chaincfg.RegNetParams().Net {
		return nil
	}

	// Remove the old regression test store if it already exists.
	if _, err := os.Stat(path); err == nil {
		xecdLog.Infof("Removing regression test block store from '%s'", path)
		return os.RemoveAll(path)
	}

	return nil
}

// loadBlockStore opens the block and undo file store in the data directory of
// the active network, creating it when needed.
func loadBlockStore(params *chaincfg.Params, dataDir string) (*blockstore.Store, error) {
	path := filepath.Join(dataDir, blockStoreDirname)

	// The regression test is special in that it needs a clean store for each
	// run, so remove it now if it already exists.
	if err := removeRegressionStore(params, path); err != nil {
		return nil, err
	}

	xecdLog.Infof("Loading block store from '%s'", path)
	store, err := blockstore.Open(path, blockstore.DefaultMaxFileSize)
	if err != nil {
		return nil, err
	}
	xecdLog.Info("Block store loaded")
	return store, nil
}

// readImportBlock reads the next block record from the passed reader.  Each
// record is the network magic and the size of the serialized block, both as
// little endian uint32s, followed by the block itself.  It returns nil for
// both the block and the error when the end of the input is reached.
func readImportBlock(r io.Reader, net wire.CurrencyNet) (*dcrutil.Block, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	magic := wire.CurrencyNet(binary.LittleEndian.Uint32(hdr[0:4]))
	if magic != net {
		return nil, fmt.Errorf("network mismatch -- got %x, want %x",
			uint32(magic), uint32(net))
	}
	blockLen := binary.LittleEndian.Uint32(hdr[4:8])
	if blockLen > maxImportBlockSize {
		return nil, fmt.Errorf("block size of %d exceeds the max of %d",
			blockLen, maxImportBlockSize)
	}

	serialized := make([]byte, blockLen)
	if _, err := io.ReadFull(r, serialized); err != nil {
		return nil, err
	}
	return dcrutil.NewBlockFromBytes(serialized)
}

// importBlocks processes every block of the passed file of serialized blocks
// in order.  Blocks the chain already has are skipped.  It stops early when the
// context is canceled and returns the number of blocks that were processed.
func importBlocks(ctx context.Context, chain *blockchain.BlockChain, params *chaincfg.Params, path string) (uint64, error) {
	impLog.Infof("Importing blocks from %q.  This might take a while...",
		path)

	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	progressLogger := progresslog.New("Imported", impLog)
	r := bufio.NewReaderSize(file, 1<<20)
	var processed, skipped uint64
	for !shutdownRequested(ctx) {
		block, err := readImportBlock(r, params.Net)
		if err != nil {
			return processed, fmt.Errorf("failed to read block %d: %w",
				processed+skipped+1, err)
		}
		if block == nil {
			break
		}

		_, err = chain.ProcessBlock(block, blockchain.BFNone)
		if err != nil {
			if errors.Is(err, blockchain.ErrDuplicateBlock) {
				skipped++
				continue
			}
			return processed, fmt.Errorf("failed to process block %v: %w",
				block.Hash(), err)
		}
		processed++

		progressLogger.LogProgress(block.MsgBlock(),
			chain.BestSnapshot().Height, false, chain.VerificationProgress)
	}

	impLog.Infof("Imported %d %s (%d already known) from %q", processed,
		pickNoun(processed, "block", "blocks"), skipped, path)
	return processed, nil
}

// dumpBlockChain writes the main chain blocks, excluding the genesis block, to
// the passed file in the format read by importBlocks.
func dumpBlockChain(params *chaincfg.Params, chain *blockchain.BlockChain, path string) error {
	xecdLog.Infof("Writing the blockchain to flat file %q.  This might take a "+
		"while...", path)

	progressLogger := progresslog.New("Wrote", xecdLog)

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	w := bufio.NewWriter(file)

	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(params.Net))
	tipHeight := chain.BestSnapshot().Height
	for i := int64(1); i <= tipHeight; i++ {
		bl, err := chain.BlockByHeight(i)
		if err != nil {
			return err
		}
		blB, err := bl.Bytes()
		if err != nil {
			return err
		}

		binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(blB)))
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := w.Write(blB); err != nil {
			return err
		}

		forceLog := i >= tipHeight
		progressLogger.LogProgress(bl.MsgBlock(), i, forceLog, func() float64 {
			return float64(i) / float64(tipHeight)
		})
	}
	if err := w.Flush(); err != nil {
		return err
	}

	xecdLog.Infof("Successfully dumped the blockchain (%d %s) to %q",
		tipHeight, pickNoun(uint64(tipHeight), "block", "blocks"), path)
	return nil
}
