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
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrutil/v4"
	flags "github.com/jessevdk/go-flags"
	"github.com/xecnode/xecd/chaincfg"
	"github.com/xecnode/xecd/internal/blockchain"
	"github.com/xecnode/xecd/internal/mempool"
	"github.com/xecnode/xecd/internal/version"
	"github.com/xecnode/xecd/sampleconfig"
)

const (
	defaultConfigFilename   = "xecd.conf"
	defaultDataDirname      = "data"
	defaultLogLevel         = "info"
	defaultLogDirname       = "logs"
	defaultLogFilename      = "xecd.log"
	defaultMaxLogSize       = 10 * 1024 // 10 MiB
	defaultMaxLogRolls      = 3
	defaultUtxoCacheMaxSize = blockchain.DefaultUtxoCacheMaxSize / (1 << 20)
	minUtxoCacheMaxSize     = 25
	maxUtxoCacheMaxSize     = 32768
	minPruneTarget          = 550
	defaultMaxMempool       = mempool.DefaultMaxPoolSize / 1e6
	defaultMinRelayTxFee    = 1e-5
	defaultSigCacheMaxSize  = 100000
	defaultScriptCacheSize  = 100000
	defaultVerifyLevel      = 3
	defaultVerifyDepth      = 6
	maxVerifyLevel          = 4
)

var (
	defaultHomeDir    = dcrutil.AppDataDir("xecd", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultDataDir    = filepath.Join(defaultHomeDir, defaultDataDirname)
	defaultLogDir     = filepath.Join(defaultHomeDir, defaultLogDirname)
)

// config defines the configuration options for xecd.
//
// See loadConfig for details on the configuration load process.
type config struct {
	// General application behavior.
	ShowVersion   bool   `short:"V" long:"version" description:"Display version information and exit"`
	HomeDir       string `short:"A" long:"appdata" description:"Path to application home directory"`
	ConfigFile    string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir       string `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir        string `long:"logdir" description:"Directory to log output"`
	NoFileLogging bool   `long:"nofilelogging" description:"Disable file logging"`
	MaxLogSize    int64  `long:"maxlogsize" description:"Maximum size in KiB of a log file before it is rotated"`
	MaxLogRolls   int    `long:"maxlogrolls" description:"Maximum number of rotated log files to keep"`
	DebugLevel    string `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	Profile       string `long:"profile" description:"Enable HTTP profiling on given [addr:]port -- NOTE port must be between 1024 and 65535"`
	Prometheus    string `long:"prometheus" description:"Serve prometheus metrics on the given [addr:]port"`

	// Network settings.
	TestNet bool `long:"testnet" description:"Use the test network"`
	RegNet  bool `long:"regnet" description:"Use the regression test network"`

	// Chain state settings.
	UtxoCacheMaxSize uint   `long:"utxocachemaxsize" description:"The maximum size in MiB of the utxo cache; (min: 25, max: 32768)"`
	Prune            uint64 `long:"prune" description:"Delete old block files so they use at most the given MiB; 0 disables pruning (min: 550)"`
	ScriptWorkers    int    `long:"scriptworkers" description:"Number of goroutines that validate block scripts; 0 uses the number of CPUs"`
	SigCacheMaxSize  uint   `long:"sigcachemaxsize" description:"The maximum number of entries in the signature verification cache"`
	AssumeValid      string `long:"assumevalid" description:"Hash of an assumed valid block; use 0 to validate every script"`
	NoCheckpoints    bool   `long:"nocheckpoints" description:"Disable built-in checkpoints.  Don't do this unless you know what you're doing."`

	// Memory pool policy.
	MinRelayTxFee float64       `long:"minrelaytxfee" description:"The minimum transaction fee in XEC/kB to be considered a non-zero fee"`
	MaxMempool    uint          `long:"maxmempool" description:"Keep the transaction memory pool below the given MB"`
	MempoolExpiry time.Duration `long:"mempoolexpiry" description:"Remove transactions that stay in the memory pool for longer than this"`
	MaxOrphanTxs  int           `long:"maxorphantx" description:"Max number of orphan transactions to keep in memory"`
	AcceptNonStd  bool          `long:"acceptnonstd" description:"Accept and relay non-standard transactions to the network regardless of the default settings for the active network"`

	// Startup checks and administrative actions.
	VerifyLevel    uint32   `long:"verifylevel" description:"How thorough the verification of the most recent blocks is at startup (0-4)"`
	VerifyDepth    int64    `long:"verifydepth" description:"Number of recent blocks verified at startup; 0 disables the check"`
	PruneHeight    int64    `long:"pruneheight" description:"Delete the block files up to the given height and exit"`
	Invalidate     []string `long:"invalidate" description:"Permanently mark a block and its descendants invalid; may be specified multiple times"`
	Reconsider     []string `long:"reconsider" description:"Remove the invalid status of a block and its ancestors; may be specified multiple times"`
	ImportBlocks   string   `long:"importblocks" description:"Process the blocks of the given file of serialized blocks and continue running"`
	DumpBlockchain string   `long:"dumpblockchain" description:"Write the main chain blocks to the given file in the format read by --importblocks and exit"`

	// The following fields are derived from the options above.
	params        *chaincfg.Params
	minRelayTxFee dcrutil.Amount
	assumeValid   chainhash.Hash
	invalidate    []chainhash.Hash
	reconsider    []chainhash.Hash
}

// errSuppressUsage signifies that an error that happened during the initial
// configuration phase should suppress the usage output since it was not caused
// by the user.
type errSuppressUsage string

// Error implements the error interface.
func (e errSuppressUsage) Error() string {
	return string(e)
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Nothing to do when no path is given.
	if path == "" {
		return path
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but the variables can still be expanded via POSIX-style
	// $VARIABLE.
	path = os.ExpandEnv(path)

	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path)
	}

	// Expand initial ~ to the current user's home directory, or ~otheruser
	// to otheruser's home directory.  On Windows, both forward and backward
	// slashes can be used.
	path = path[1:]

	var pathSeparators string
	if runtime.GOOS == "windows" {
		pathSeparators = string(os.PathSeparator) + "/"
	} else {
		pathSeparators = string(os.PathSeparator)
	}

	userName := ""
	if i := strings.IndexAny(path, pathSeparators); i != -1 {
		userName = path[:i]
		path = path[i:]
	}

	homeDir := ""
	var u *user.User
	var err error
	if userName == "" {
		u, err = user.Current()
	} else {
		u, err = user.Lookup(userName)
	}
	if err == nil {
		homeDir = u.HomeDir
	}
	// Fallback to CWD if user lookup fails or user has no home directory.
	if homeDir == "" {
		homeDir = "."
	}

	return filepath.Join(homeDir, path)
}

// parseHashes converts the passed block hash strings into hashes.
func parseHashes(option string, strs []string) ([]chainhash.Hash, error) {
	hashes := make([]chainhash.Hash, 0, len(strs))
	for _, str := range strs {
		hash, err := chainhash.NewHashFromStr(str)
		if err != nil {
			return nil, fmt.Errorf("the %s option %q is not a valid block "+
				"hash: %w", option, str, err)
		}
		hashes = append(hashes, *hash)
	}
	return hashes, nil
}

// createDefaultConfigFile writes the sample configuration to the passed path
// when no file exists there yet.
func createDefaultConfigFile(destPath string) error {
	if _, err := os.Stat(destPath); !os.IsNotExist(err) {
		return err
	}

	// Create the destination directory if it does not exist.
	err := os.MkdirAll(filepath.Dir(destPath), 0700)
	if err != nil {
		return err
	}

	return os.WriteFile(destPath, []byte(sampleconfig.Xecd()), 0600)
}

// newConfigParser returns a new command line flags parser.
func newConfigParser(cfg *config, options flags.Options) *flags.Parser {
	return flags.NewParser(cfg, options)
}

// loadConfig initializes and parses the config using a config file and the
// passed command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in xecd functioning properly without any config settings
// while still allowing the user to override settings with config files and
// command line options.  Command line options always take precedence.
func loadConfig(appName string, args []string) (*config, []string, error) {
	// Default config.
	cfg := config{
		HomeDir:          defaultHomeDir,
		ConfigFile:       defaultConfigFile,
		DataDir:          defaultDataDir,
		LogDir:           defaultLogDir,
		MaxLogSize:       defaultMaxLogSize,
		MaxLogRolls:      defaultMaxLogRolls,
		DebugLevel:       defaultLogLevel,
		UtxoCacheMaxSize: defaultUtxoCacheMaxSize,
		SigCacheMaxSize:  defaultSigCacheMaxSize,
		MinRelayTxFee:    defaultMinRelayTxFee,
		MaxMempool:       defaultMaxMempool,
		MempoolExpiry:    mempool.DefaultMempoolExpiry,
		MaxOrphanTxs:     mempool.DefaultMaxOrphanTxs,
		VerifyLevel:      defaultVerifyLevel,
		VerifyDepth:      defaultVerifyDepth,
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.  Any errors aside from the
	// help message error can be ignored here since they will be caught by
	// the final parse below.
	preCfg := cfg
	preParser := newConfigParser(&preCfg, flags.HelpFlag)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if errors.As(err, &e) && e.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			os.Exit(0)
		}
	}

	// Show the version and exit if the version flag was specified.
	if preCfg.ShowVersion {
		fmt.Printf("%s version %s (Go version %s %s/%s)\n", appName,
			version.String(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	// Update the home directory for xecd if specified.  Since the home
	// directory is updated, other variables need to be updated to reflect
	// the new changes.
	if preCfg.HomeDir != "" {
		cfg.HomeDir, _ = filepath.Abs(cleanAndExpandPath(preCfg.HomeDir))

		if preCfg.ConfigFile == defaultConfigFile {
			defaultConfigFile = filepath.Join(cfg.HomeDir,
				defaultConfigFilename)
			preCfg.ConfigFile = defaultConfigFile
			cfg.ConfigFile = defaultConfigFile
		} else {
			cfg.ConfigFile = preCfg.ConfigFile
		}
		if preCfg.DataDir == defaultDataDir {
			cfg.DataDir = filepath.Join(cfg.HomeDir, defaultDataDirname)
		} else {
			cfg.DataDir = preCfg.DataDir
		}
		if preCfg.LogDir == defaultLogDir {
			cfg.LogDir = filepath.Join(cfg.HomeDir, defaultLogDirname)
		} else {
			cfg.LogDir = preCfg.LogDir
		}
	}

	// Create a default config file when one does not exist and the user did
	// not specify an override.
	if preCfg.ConfigFile == defaultConfigFile {
		if err := createDefaultConfigFile(preCfg.ConfigFile); err != nil {
			str := fmt.Sprintf("error creating a default config file: %v",
				err)
			return nil, nil, errSuppressUsage(str)
		}
	}

	// Load additional config from file.
	parser := newConfigParser(&cfg, flags.Default)
	err = flags.NewIniParser(parser).ParseFile(cleanAndExpandPath(
		preCfg.ConfigFile))
	if err != nil {
		var e *os.PathError
		if !errors.As(err, &e) {
			err = fmt.Errorf("error parsing config file: %w", err)
			return nil, nil, err
		}
		if preCfg.ConfigFile != defaultConfigFile {
			return nil, nil, err
		}
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.ParseArgs(args)
	if err != nil {
		return nil, nil, err
	}

	// Multiple networks can't be selected simultaneously.
	cfg.params = chaincfg.MainNetParams()
	numNets := 0
	if cfg.TestNet {
		numNets++
		cfg.params = chaincfg.TestNetParams()
	}
	if cfg.RegNet {
		numNets++
		cfg.params = chaincfg.RegNetParams()
	}
	if numNets > 1 {
		str := "%s: the testnet and regnet params can't be used together " +
			"-- choose one of the two"
		return nil, nil, fmt.Errorf(str, appName)
	}

	// Append the network type to the data and log directories so they are
	// "namespaced" per network.
	cfg.DataDir = filepath.Join(cleanAndExpandPath(cfg.DataDir),
		cfg.params.Name)
	cfg.LogDir = filepath.Join(cleanAndExpandPath(cfg.LogDir),
		cfg.params.Name)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After log rotation has been initialized, the
	// logger variables may be used.
	if !cfg.NoFileLogging {
		logFile := filepath.Join(cfg.LogDir, defaultLogFilename)
		err := initLogRotator(logFile, cfg.MaxLogSize, cfg.MaxLogRolls)
		if err != nil {
			return nil, nil, err
		}
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", appName, err)
	}

	// Validate the size of the utxo cache.
	if cfg.UtxoCacheMaxSize < minUtxoCacheMaxSize ||
		cfg.UtxoCacheMaxSize > maxUtxoCacheMaxSize {

		str := "%s: the utxocachemaxsize option must be in range [%d, %d] " +
			"-- parsed [%d]"
		return nil, nil, fmt.Errorf(str, appName, minUtxoCacheMaxSize,
			maxUtxoCacheMaxSize, cfg.UtxoCacheMaxSize)
	}

	// Validate the prune target.
	if cfg.Prune != 0 && cfg.Prune < minPruneTarget {
		str := "%s: the prune option must be 0 or at least %d MiB -- " +
			"parsed [%d]"
		return nil, nil, fmt.Errorf(str, appName, minPruneTarget, cfg.Prune)
	}

	// Validate the minimum relay transaction fee.
	cfg.minRelayTxFee, err = dcrutil.NewAmount(cfg.MinRelayTxFee)
	if err != nil || cfg.minRelayTxFee < 0 {
		str := "%s: invalid minrelaytxfee %v"
		return nil, nil, fmt.Errorf(str, appName, cfg.MinRelayTxFee)
	}

	// Non-standard transactions may only be relayed on the regression test
	// network.
	if cfg.AcceptNonStd && !cfg.params.RelayNonStdTxs {
		str := "%s: the acceptnonstd option is not supported on the %s " +
			"network"
		return nil, nil, fmt.Errorf(str, appName, cfg.params.Name)
	}

	if cfg.MaxOrphanTxs < 0 {
		str := "%s: the maxorphantx option may not be less than 0 -- " +
			"parsed [%d]"
		return nil, nil, fmt.Errorf(str, appName, cfg.MaxOrphanTxs)
	}

	if cfg.VerifyLevel > maxVerifyLevel {
		str := "%s: the verifylevel option must be at most %d -- parsed [%d]"
		return nil, nil, fmt.Errorf(str, appName, maxVerifyLevel,
			cfg.VerifyLevel)
	}
	if cfg.VerifyDepth < 0 {
		str := "%s: the verifydepth option may not be negative -- parsed [%d]"
		return nil, nil, fmt.Errorf(str, appName, cfg.VerifyDepth)
	}

	// The assumed valid block defaults to the one of the network and a value
	// of 0 disables it.
	switch cfg.AssumeValid {
	case "":
		cfg.assumeValid = cfg.params.AssumeValid
	case "0":
	default:
		hash, err := chainhash.NewHashFromStr(cfg.AssumeValid)
		if err != nil {
			str := "%s: the assumevalid option is not a valid block hash: %w"
			return nil, nil, fmt.Errorf(str, appName, err)
		}
		cfg.assumeValid = *hash
	}

	cfg.invalidate, err = parseHashes("invalidate", cfg.Invalidate)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", appName, err)
	}
	cfg.reconsider, err = parseHashes("reconsider", cfg.Reconsider)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", appName, err)
	}
	if cfg.ImportBlocks != "" {
		cfg.ImportBlocks = cleanAndExpandPath(cfg.ImportBlocks)
	}
	if cfg.DumpBlockchain != "" {
		cfg.DumpBlockchain = cleanAndExpandPath(cfg.DumpBlockchain)
	}

	// Validate the profile and metrics listen addresses.
	if cfg.Profile != "" {
		cfg.Profile = portToLocalHostAddr(cfg.Profile)
		if err := validateListenAddr(cfg.Profile); err != nil {
			return nil, nil, fmt.Errorf("%s: profile: %w", appName, err)
		}
	}
	if cfg.Prometheus != "" {
		cfg.Prometheus = portToLocalHostAddr(cfg.Prometheus)
		if err := validateListenAddr(cfg.Prometheus); err != nil {
			return nil, nil, fmt.Errorf("%s: prometheus: %w", appName, err)
		}
	}

	return &cfg, remainingArgs, nil
}
