// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"
	"github.com/decred/dcrd/txscript/v4"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/xecnode/xecd/internal/blockchain"
	"github.com/xecnode/xecd/internal/blockstore"
	"github.com/xecnode/xecd/internal/mempool"
)

// node houses the chain state and the transaction memory pool along with the
// caches they share.
type node struct {
	cfg       *config
	chain     *blockchain.BlockChain
	txMemPool *mempool.TxPool
}

// handleBlockchainNotification keeps the memory pool consistent with the main
// chain as blocks are connected and the chain reorganizes.
func (n *node) handleBlockchainNotification(notification *blockchain.Notification) {
	// The chain connects the blocks of the previous run before the memory
	// pool exists.
	txPool := n.txMemPool
	if txPool == nil {
		return
	}

	switch notification.Type {
	case blockchain.NTBlockConnected:
		data, ok := notification.Data.(*blockchain.BlockConnectedNtfnsData)
		if !ok {
			chanLog.Warnf("Block connected notification is not " +
				"BlockConnectedNtfnsData.")
			break
		}
		removed := txPool.RemoveForBlock(data.Block)
		if len(removed) > 0 {
			txmpLog.Debugf("Removed %d %s for block %v (height %d)",
				len(removed), pickNoun(uint64(len(removed)), "transaction",
					"transactions"), data.Block.Hash(), data.Height)
		}

	case blockchain.NTChainReorganized:
		data, ok := notification.Data.(*blockchain.ReorganizationNtfnsData)
		if !ok {
			chanLog.Warnf("Chain reorganized notification is not " +
				"ReorganizationNtfnsData.")
			break
		}
		if data.DisconnectedTxns == nil {
			break
		}
		accepted := txPool.MaybeAcceptReorgTransactions(data.DisconnectedTxns,
			data.ForkHeight)
		txmpLog.Infof("Reorganize from %v (height %d) to %v (height %d) "+
			"returned %d %s to the memory pool", data.OldHash, data.OldHeight,
			data.NewHash, data.NewHeight, len(accepted),
			pickNoun(uint64(len(accepted)), "transaction", "transactions"))

	case blockchain.NTTipChanged:
		data, ok := notification.Data.(*blockchain.TipChangedNtfnsData)
		if !ok {
			break
		}
		if !data.InitialDownload {
			chanLog.Debugf("New tip %v (height %d)", data.NewTip,
				data.NewHeight)
		}
	}
}

// newNode returns a node that uses the provided databases and block store for
// the chain state of the configured network.  Blocks whose data was stored but
// not yet connected when the node last ran are connected before it returns.
func newNode(ctx context.Context, cfg *config, db, utxoDb *leveldb.DB, store *blockstore.Store) (*node, error) {
	n := node{cfg: cfg}

	sigCache, err := txscript.NewSigCache(cfg.SigCacheMaxSize)
	if err != nil {
		return nil, err
	}
	scriptCache := blockchain.NewScriptCache(defaultScriptCacheSize)

	var pruneTarget uint64
	if cfg.Prune != 0 {
		pruneTarget = cfg.Prune * 1024 * 1024
		chanLog.Infof("Pruning block files to a target of %d MiB", cfg.Prune)
	}

	chain, err := blockchain.New(ctx, &blockchain.Config{
		DB:               db,
		Store:            store,
		UtxoBackend:      blockchain.NewLevelDbUtxoBackend(utxoDb),
		ChainParams:      cfg.params,
		UtxoCacheMaxSize: uint64(cfg.UtxoCacheMaxSize) * 1024 * 1024,
		PruneTarget:      pruneTarget,
		AssumeValid:      cfg.assumeValid,
		NoCheckpoints:    cfg.NoCheckpoints,
		TimeSource:       blockchain.NewMedianTime(),
		Notifications:    n.handleBlockchainNotification,
		SigCache:         sigCache,
		ScriptCache:      scriptCache,
		ScriptWorkers:    cfg.ScriptWorkers,
	})
	if err != nil {
		return nil, err
	}
	n.chain = chain

	n.txMemPool = mempool.New(&mempool.Config{
		Policy: mempool.Policy{
			MaxTxVersion:        mempool.DefaultMaxTxVersion,
			AcceptNonStd:        cfg.AcceptNonStd,
			MaxOrphanTxs:        cfg.MaxOrphanTxs,
			MaxOrphanTxSize:     mempool.DefaultMaxOrphanTxSize,
			MaxSigChecksPerTx:   mempool.DefaultMaxSigChecksPerTx,
			MinRelayTxFee:       cfg.minRelayTxFee,
			MaxPoolSize:         int64(cfg.MaxMempool) * 1e6,
			MempoolExpiry:       cfg.MempoolExpiry,
			StandardVerifyFlags: chain.StandardVerifyFlags,
		},
		ChainParams:    cfg.params,
		FetchUtxoEntry: chain.FetchUtxoEntry,
		BestHash: func() chainhash.Hash {
			return chain.BestSnapshot().Hash
		},
		BestHeight: func() int64 {
			return chain.BestSnapshot().Height
		},
		PastMedianTime: func() time.Time {
			return chain.BestSnapshot().MedianTime
		},
		CalcSequenceLock: chain.CalcSequenceLock,
		SigCache:         sigCache,
		ScriptCache:      scriptCache,
		OnTxAccepted: func(tx *dcrutil.Tx) {
			txmpLog.Tracef("Accepted transaction %v", tx.Hash())
		},
		OnTxRemoved: func(tx *dcrutil.Tx, reason mempool.RemovalReason) {
			txmpLog.Tracef("Removed transaction %v (%v)", tx.Hash(), reason)
		},
	})

	return &n, nil
}

// runAdminActions performs the block status changes requested on the command
// line.
func (n *node) runAdminActions() error {
	for i := range n.cfg.invalidate {
		hash := &n.cfg.invalidate[i]
		xecdLog.Infof("Invalidating block %v", hash)
		if err := n.chain.InvalidateBlock(hash); err != nil {
			return err
		}
	}
	for i := range n.cfg.reconsider {
		hash := &n.cfg.reconsider[i]
		xecdLog.Infof("Reconsidering block %v", hash)
		if err := n.chain.ReconsiderBlock(hash); err != nil {
			return err
		}
	}
	return nil
}

// flushPeriodically writes the chain state to disk when the scheduler deems
// it necessary until the context is canceled.
func (n *node) flushPeriodically(ctx context.Context) error {
	const flushInterval = time.Minute
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := n.chain.FlushStateToDisk(blockchain.FlushPeriodic); err != nil {
				return err
			}

		case <-ctx.Done():
			return nil
		}
	}
}
