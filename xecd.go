// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/xecnode/xecd/internal/blockchain"
	"github.com/xecnode/xecd/internal/version"
	"golang.org/x/sync/errgroup"
)

// xecdMain is the real main function for xecd.  It is necessary to work around
// the fact that deferred functions do not run when os.Exit() is called.
func xecdMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	cfg, _, err := loadConfig(appName, os.Args[1:])
	if err != nil {
		usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
		fmt.Fprintln(os.Stderr, err)
		var e errSuppressUsage
		if !errors.As(err, &e) {
			fmt.Fprintln(os.Stderr, usageMessage)
		}
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a context that will be canceled when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem such as the chain flush loop.
	ctx := shutdownListener()
	defer xecdLog.Info("Shutdown complete")

	// Show version and home dir at startup.
	xecdLog.Infof("Version %s (Go version %s %s/%s)", version.String(),
		runtime.Version(), runtime.GOOS, runtime.GOARCH)
	xecdLog.Infof("Home dir: %s", cfg.HomeDir)
	xecdLog.Infof("Active network: %s", cfg.params.Name)
	if cfg.NoFileLogging {
		xecdLog.Info("File logging disabled")
	}

	// Block and transaction processing can cause bursty allocations.  Enforce
	// a soft memory limit for a base amount along with any extra utxo cache
	// over and above the default max cache size so the garbage collector does
	// not excessively overallocate during bursts.
	const memLimitBase = (15 * (1 << 30)) / 10 // 1.5 GiB
	softMemLimit := int64(memLimitBase)
	if cfg.UtxoCacheMaxSize > defaultUtxoCacheMaxSize {
		extra := int64(cfg.UtxoCacheMaxSize) - defaultUtxoCacheMaxSize
		softMemLimit += extra * (1 << 20)
	}
	debug.SetMemoryLimit(softMemLimit)
	xecdLog.Infof("Soft memory limit: %d MiB", softMemLimit/(1<<20))

	// Enable the http profile and metrics servers if requested.  The stop
	// calls are always deferred since they have no effect when the servers
	// are not running.
	profiler := newHTTPServer("Profiling", profileHandler())
	defer profiler.Stop()
	if cfg.Profile != "" {
		if err := profiler.Start(cfg.Profile); err != nil {
			xecdLog.Warnf("unable to start profile server: %v", err)
			return err
		}
	}
	metrics := newHTTPServer("Metrics", metricsHandler())
	defer metrics.Stop()
	if cfg.Prometheus != "" {
		if err := metrics.Start(cfg.Prometheus); err != nil {
			xecdLog.Warnf("unable to start metrics server: %v", err)
			return err
		}
	}

	// Return now if a shutdown signal was triggered.
	if shutdownRequested(ctx) {
		return nil
	}

	// Load the block index database.
	db, err := blockchain.LoadBlockIndexDB(cfg.params, cfg.DataDir)
	if err != nil {
		xecdLog.Errorf("%v", err)
		return err
	}
	defer func() {
		xecdLog.Infof("Gracefully shutting down the block index database...")
		db.Close()
	}()

	// Load the block and undo file store.
	store, err := loadBlockStore(cfg.params, cfg.DataDir)
	if err != nil {
		xecdLog.Errorf("%v", err)
		return err
	}
	defer func() {
		xecdLog.Infof("Gracefully shutting down the block store...")
		store.Close()
	}()

	// Load the UTXO database.
	utxoDb, err := blockchain.LoadUtxoDB(cfg.params, cfg.DataDir)
	if err != nil {
		xecdLog.Errorf("%v", err)
		return err
	}
	defer func() {
		xecdLog.Infof("Gracefully shutting down the UTXO database...")
		utxoDb.Close()
	}()

	// Return now if a shutdown signal was triggered.
	if shutdownRequested(ctx) {
		return nil
	}

	// Create the chain state and memory pool.
	n, err := newNode(ctx, cfg, db, utxoDb, store)
	if err != nil {
		xecdLog.Errorf("Unable to load the chain state: %v", err)
		return err
	}
	defer func() {
		// Ensure the chain state is written to disk on shutdown.
		xecdLog.Info("Writing the chain state to disk...")
		if err := n.chain.FlushStateToDisk(blockchain.FlushAlways); err != nil {
			xecdLog.Errorf("Unable to write the chain state: %v", err)
		}
	}()
	best := n.chain.BestSnapshot()
	chanLog.Infof("Chain state loaded (height %d, hash %v)", best.Height,
		best.Hash)

	// Manually prune the block files and exit if requested.
	if cfg.PruneHeight > 0 {
		pruned, err := n.chain.PruneBlockFilesManual(cfg.PruneHeight)
		if err != nil {
			xecdLog.Errorf("Unable to prune block files: %v", err)
			return err
		}
		xecdLog.Infof("Pruned block files up to height %d", pruned)
		return nil
	}

	if err := n.runAdminActions(); err != nil {
		xecdLog.Errorf("%v", err)
		return err
	}

	// Verify the most recent blocks of the main chain.
	if cfg.VerifyDepth > 0 && cfg.VerifyLevel > 0 {
		xecdLog.Infof("Verifying the last %d %s at level %d", cfg.VerifyDepth,
			pickNoun(uint64(cfg.VerifyDepth), "block", "blocks"),
			cfg.VerifyLevel)
		if err := n.chain.VerifyChain(cfg.VerifyLevel, cfg.VerifyDepth); err != nil {
			xecdLog.Errorf("Chain verification failed: %v", err)
			return err
		}
	}

	// Dump the blockchain and exit if requested.
	if cfg.DumpBlockchain != "" {
		if err := dumpBlockChain(cfg.params, n.chain, cfg.DumpBlockchain); err != nil {
			xecdLog.Errorf("Unable to dump the blockchain: %v", err)
			return err
		}
		return nil
	}

	if shutdownRequested(ctx) {
		return nil
	}

	// Run the background tasks until shutdown is requested.  A failed task
	// requests shutdown so the remaining ones stop too.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := n.flushPeriodically(gctx)
		if err != nil {
			xecdLog.Criticalf("Unable to write the chain state: %v", err)
			requestShutdown()
		}
		return err
	})
	if cfg.ImportBlocks != "" {
		g.Go(func() error {
			_, err := importBlocks(gctx, n.chain, cfg.params, cfg.ImportBlocks)
			if err != nil {
				impLog.Errorf("Block import failed: %v", err)
				requestShutdown()
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	err = g.Wait()
	xecdLog.Infof("Node shutdown complete")
	return err
}

func main() {
	// Work around defer not working after os.Exit()
	if err := xecdMain(); err != nil {
		os.Exit(1)
	}
}
