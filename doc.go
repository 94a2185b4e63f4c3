// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2022 The Decred developers
// Copyright (c) 2024 The xecd developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
xecd is the chain state and validation engine of an eCash full node written in
Go.

It maintains the block index, validates and connects blocks, keeps the UTXO set
in a write-back cache over a leveldb database, chooses the best chain by
cumulative work, prunes old block files and admits transactions and packages to
the memory pool.

The default options are sane for most users.  This means xecd will work 'out of
the box' for most users.  However, there are also a wide variety of flags that
can be used to control it.

The following section provides a usage overview which enumerates the flags.  An
interesting point to note is that the long form of all of these options
(except -C) can be specified in a configuration file that is automatically
parsed when xecd starts up.  By default, the configuration file is located at
~/.xecd/xecd.conf on POSIX-style operating systems and %LOCALAPPDATA%\xecd\xecd.conf
on Windows.  The -C (--configfile) flag, as shown below, can be used to override
this location.

Usage:

	xecd [OPTIONS]

Application Options:

	-V, --version                Display version information and exit
	-A, --appdata=               Path to application home directory
	-C, --configfile=            Path to configuration file
	-b, --datadir=               Directory to store data
	    --logdir=                Directory to log output
	    --nofilelogging          Disable file logging
	    --maxlogsize=            Maximum size in KiB of a log file before it is
	                             rotated (default: 10240)
	    --maxlogrolls=           Maximum number of rotated log files to keep
	                             (default: 3)
	-d, --debuglevel=            Logging level for all subsystems {trace, debug,
	                             info, warn, error, critical} -- You may also
	                             specify <subsystem>=<level>,<subsystem2>=<level>,...
	                             to set the log level for individual subsystems
	                             -- Use show to list available subsystems
	                             (default: info)
	    --profile=               Enable HTTP profiling on given [addr:]port --
	                             NOTE: port must be between 1024 and 65535
	    --prometheus=            Serve prometheus metrics on the given
	                             [addr:]port
	    --testnet                Use the test network
	    --regnet                 Use the regression test network
	    --utxocachemaxsize=      The maximum size in MiB of the utxo cache
	                             (default: 450, min: 25, max: 32768)
	    --prune=                 Delete old block files so they use at most the
	                             given MiB; 0 disables pruning (min: 550)
	    --scriptworkers=         Number of goroutines that validate block
	                             scripts; 0 uses the number of CPUs
	    --sigcachemaxsize=       The maximum number of entries in the signature
	                             verification cache (default: 100000)
	    --assumevalid=           Hash of an assumed valid block; use 0 to
	                             validate every script
	    --nocheckpoints          Disable built-in checkpoints.  Don't do this
	                             unless you know what you're doing.
	    --minrelaytxfee=         The minimum transaction fee in XEC/kB to be
	                             considered a non-zero fee (default: 1e-05)
	    --maxmempool=            Keep the transaction memory pool below the
	                             given MB (default: 300)
	    --mempoolexpiry=         Remove transactions that stay in the memory
	                             pool for longer than this (default: 336h0m0s)
	    --maxorphantx=           Max number of orphan transactions to keep in
	                             memory (default: 100)
	    --acceptnonstd           Accept and relay non-standard transactions to
	                             the network regardless of the default settings
	                             for the active network
	    --verifylevel=           How thorough the verification of the most
	                             recent blocks is at startup (0-4) (default: 3)
	    --verifydepth=           Number of recent blocks verified at startup; 0
	                             disables the check (default: 6)
	    --pruneheight=           Delete the block files up to the given height
	                             and exit
	    --invalidate=            Permanently mark a block and its descendants
	                             invalid; may be specified multiple times
	    --reconsider=            Remove the invalid status of a block and its
	                             ancestors; may be specified multiple times
	    --importblocks=          Process the blocks of the given file of
	                             serialized blocks and continue running
	    --dumpblockchain=        Write the main chain blocks to the given file
	                             in the format read by --importblocks and exit

Help Options:

	-h, --help           Show this help message
*/
package main
