// Copyright 2015 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

// Package utils contains internal helper functions for go-ethereum commands.
package utils

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/holiman/uint256"
	"github.com/sunyihoo/go-txpool/core/rawdb"
	"github.com/sunyihoo/go-txpool/core/txpool"
	"github.com/sunyihoo/go-txpool/internal/flags"
	"github.com/sunyihoo/go-txpool/log"
	"github.com/sunyihoo/go-txpool/metrics"
	"github.com/sunyihoo/go-txpool/node"
	"github.com/urfave/cli/v2"
)

// Fatalf formats a message to standard error and exits the program.
// The message is also printed to standard output if standard error
// is redirected to a different file.
func Fatalf(format string, args ...interface{}) {
	w := os.Stderr
	if runtime.GOOS == "windows" {
		// The SameFile check below doesn't work on Windows.
		// stdout is unlikely to get redirected though, so just print there.
		w = os.Stdout
	} else {
		outf, _ := os.Stdout.Stat()
		errf, _ := os.Stderr.Stat()
		if outf != nil && errf != nil && os.SameFile(outf, errf) {
			w = os.Stdout
		}
	}
	fmt.Fprintf(w, "Fatal: "+format+"\n", args...)
	os.Exit(1)
}

var (
	// General settings
	ConfigFileFlag = &cli.StringFlag{
		Name:     "config",
		Usage:    "TOML configuration file",
		Category: flags.MiscCategory,
	}
	DataDirFlag = &flags.DirectoryFlag{
		Name:     "datadir",
		Usage:    "Data directory for the pool database and the instance lock",
		Value:    flags.DirectoryString(node.DefaultDataDir()),
		Category: flags.DatabaseCategory,
	}
	DBEngineFlag = &cli.StringFlag{
		Name:     "db.engine",
		Usage:    "Backing database implementation to use ('pebble', 'leveldb' or 'memory')",
		Value:    node.DefaultConfig.DBEngine,
		Category: flags.DatabaseCategory,
	}
	CacheFlag = &cli.IntFlag{
		Name:     "cache",
		Usage:    "Megabytes of memory allocated to the database cache",
		Value:    node.DefaultConfig.DatabaseCache,
		Category: flags.DatabaseCategory,
	}

	// Transaction pool settings
	TxPoolMaxFlag = &cli.IntFlag{
		Name:     "txpool.max",
		Usage:    "Maximum number of transactions held by the pool",
		Value:    txpool.DefaultConfig.MaxTransactionsInPool,
		Category: flags.TxPoolCategory,
	}
	TxPoolMaxPerSenderFlag = &cli.IntFlag{
		Name:     "txpool.maxpersender",
		Usage:    "Maximum number of transactions a single sender may hold in the pool",
		Value:    txpool.DefaultConfig.MaxTransactionsPerSender,
		Category: flags.TxPoolCategory,
	}
	TxPoolMaxBytesFlag = &cli.IntFlag{
		Name:     "txpool.maxbytes",
		Usage:    "Maximum serialized size of a pooled transaction",
		Value:    txpool.DefaultConfig.MaxTransactionBytes,
		Category: flags.TxPoolCategory,
	}
	TxPoolMaxAgeFlag = &cli.Uint64Flag{
		Name:     "txpool.maxage",
		Usage:    "Lifetime in blocks of transactions without an expiration height",
		Value:    txpool.DefaultConfig.MaxTransactionAge,
		Category: flags.TxPoolCategory,
	}
	TxPoolAllowedSendersFlag = &cli.StringSliceFlag{
		Name:     "txpool.allowed",
		Usage:    "Sender public keys exempt from the per sender limit",
		Category: flags.TxPoolCategory,
	}
	TxPoolDynamicFeesFlag = &cli.BoolFlag{
		Name:     "txpool.dynamicfees",
		Usage:    "Price pool admission per byte instead of requiring the static fee",
		Value:    txpool.DefaultConfig.DynamicFees.Enabled,
		Category: flags.TxPoolCategory,
	}
	TxPoolMinFeePoolFlag = &cli.Uint64Flag{
		Name:     "txpool.minfeepool",
		Usage:    "Satoshi per byte required to enter the pool",
		Value:    txpool.DefaultConfig.DynamicFees.MinFeePool,
		Category: flags.TxPoolCategory,
	}
	TxPoolMinFeeBroadcastFlag = &cli.Uint64Flag{
		Name:     "txpool.minfeebroadcast",
		Usage:    "Satoshi per byte required to rebroadcast a transaction",
		Value:    txpool.DefaultConfig.DynamicFees.MinFeeBroadcast,
		Category: flags.TxPoolCategory,
	}
	TxPoolCleanupFlag = &cli.DurationFlag{
		Name:     "txpool.cleanup",
		Usage:    "Interval of the expiry and capacity sweep",
		Value:    txpool.DefaultConfig.CleanupInterval,
		Category: flags.TxPoolCategory,
	}
	TxPoolResetFlag = &cli.BoolFlag{
		Name:     "txpool.reset",
		Usage:    "Wipe the pool and its storage at boot instead of restoring it",
		EnvVars:  []string{"TXPOOL_RESET"},
		Category: flags.TxPoolCategory,
	}

	// Ledger settings
	LedgerHeightFlag = &cli.Uint64Flag{
		Name:     "ledger.height",
		Usage:    "Height of the last confirmed block",
		Category: flags.LedgerCategory,
	}
	LedgerBlockTimeFlag = &cli.Uint64Flag{
		Name:     "ledger.blocktime",
		Usage:    "Target block time in seconds",
		Value:    8,
		Category: flags.LedgerCategory,
	}
	LedgerEpochFlag = &cli.TimestampFlag{
		Name:     "ledger.epoch",
		Usage:    "Time of the genesis block (RFC 3339)",
		Layout:   time.RFC3339,
		Category: flags.LedgerCategory,
	}
	LedgerAccountFlag = &cli.StringSliceFlag{
		Name:     "ledger.account",
		Usage:    "Public key of an account funded at genesis",
		Category: flags.LedgerCategory,
	}
	LedgerBalanceFlag = &flags.Uint256Flag{
		Name:     "ledger.balance",
		Usage:    "Genesis balance of every --ledger.account",
		Value:    uint256.NewInt(0),
		Category: flags.LedgerCategory,
	}

	// Metrics settings
	MetricsEnabledFlag = &cli.BoolFlag{
		Name:     "metrics.enabled",
		Usage:    "Enable metrics collection and reporting",
		Category: flags.MetricsCategory,
	}
	MetricsHTTPFlag = &cli.StringFlag{
		Name:     "metrics.addr",
		Usage:    "Enable stand-alone metrics HTTP server listening interface",
		Value:    metrics.DefaultConfig.HTTP,
		Category: flags.MetricsCategory,
	}
	MetricsPortFlag = &cli.IntFlag{
		Name:     "metrics.port",
		Usage:    "Metrics HTTP server listening port",
		Value:    metrics.DefaultConfig.Port,
		Category: flags.MetricsCategory,
	}
)

var (
	// DatabaseFlags is the flag group of all database flags.
	DatabaseFlags = []cli.Flag{
		DataDirFlag,
		DBEngineFlag,
		CacheFlag,
	}
	// TxPoolFlags is the flag group of all pool flags.
	TxPoolFlags = []cli.Flag{
		TxPoolMaxFlag,
		TxPoolMaxPerSenderFlag,
		TxPoolMaxBytesFlag,
		TxPoolMaxAgeFlag,
		TxPoolAllowedSendersFlag,
		TxPoolDynamicFeesFlag,
		TxPoolMinFeePoolFlag,
		TxPoolMinFeeBroadcastFlag,
		TxPoolCleanupFlag,
		TxPoolResetFlag,
	}
	// LedgerFlags is the flag group of the genesis ledger.
	LedgerFlags = []cli.Flag{
		LedgerHeightFlag,
		LedgerBlockTimeFlag,
		LedgerEpochFlag,
		LedgerAccountFlag,
		LedgerBalanceFlag,
	}
	// MetricsFlags is the flag group of all metrics flags.
	MetricsFlags = []cli.Flag{
		MetricsEnabledFlag,
		MetricsHTTPFlag,
		MetricsPortFlag,
	}
)

// SetNodeConfig applies node-related command line flags to the config.
func SetNodeConfig(ctx *cli.Context, cfg *node.Config) {
	if ctx.IsSet(DataDirFlag.Name) {
		cfg.DataDir = ctx.String(DataDirFlag.Name)
	}
	if ctx.IsSet(DBEngineFlag.Name) {
		dbEngine := ctx.String(DBEngineFlag.Name)
		if dbEngine != rawdb.DBLeveldb && dbEngine != rawdb.DBPebble && dbEngine != rawdb.DBMemory {
			Fatalf("Invalid choice for db.engine '%s', allowed 'leveldb', 'pebble' or 'memory'", dbEngine)
		}
		log.Info(fmt.Sprintf("Using %s as db engine", dbEngine))
		cfg.DBEngine = dbEngine
	}
	if ctx.IsSet(CacheFlag.Name) {
		cfg.DatabaseCache = ctx.Int(CacheFlag.Name)
	}
}

// SetTxPoolConfig applies pool-related command line flags to the config.
func SetTxPoolConfig(ctx *cli.Context, cfg *txpool.Config) {
	if ctx.IsSet(TxPoolMaxFlag.Name) {
		cfg.MaxTransactionsInPool = ctx.Int(TxPoolMaxFlag.Name)
	}
	if ctx.IsSet(TxPoolMaxPerSenderFlag.Name) {
		cfg.MaxTransactionsPerSender = ctx.Int(TxPoolMaxPerSenderFlag.Name)
	}
	if ctx.IsSet(TxPoolMaxBytesFlag.Name) {
		cfg.MaxTransactionBytes = ctx.Int(TxPoolMaxBytesFlag.Name)
	}
	if ctx.IsSet(TxPoolMaxAgeFlag.Name) {
		cfg.MaxTransactionAge = ctx.Uint64(TxPoolMaxAgeFlag.Name)
	}
	if ctx.IsSet(TxPoolAllowedSendersFlag.Name) {
		for _, sender := range ctx.StringSlice(TxPoolAllowedSendersFlag.Name) {
			if sender = strings.TrimSpace(sender); sender != "" {
				cfg.AllowedSenders = append(cfg.AllowedSenders, sender)
			}
		}
	}
	if ctx.IsSet(TxPoolDynamicFeesFlag.Name) {
		cfg.DynamicFees.Enabled = ctx.Bool(TxPoolDynamicFeesFlag.Name)
	}
	if ctx.IsSet(TxPoolMinFeePoolFlag.Name) {
		cfg.DynamicFees.MinFeePool = ctx.Uint64(TxPoolMinFeePoolFlag.Name)
	}
	if ctx.IsSet(TxPoolMinFeeBroadcastFlag.Name) {
		cfg.DynamicFees.MinFeeBroadcast = ctx.Uint64(TxPoolMinFeeBroadcastFlag.Name)
	}
	if ctx.IsSet(TxPoolCleanupFlag.Name) {
		cfg.CleanupInterval = ctx.Duration(TxPoolCleanupFlag.Name)
	}
	if ctx.IsSet(TxPoolResetFlag.Name) {
		cfg.Reset = ctx.Bool(TxPoolResetFlag.Name)
	}
}

// SetMetricsConfig applies metrics-related command line flags to the config.
func SetMetricsConfig(ctx *cli.Context, cfg *metrics.Config) {
	if ctx.IsSet(MetricsEnabledFlag.Name) {
		cfg.Enabled = ctx.Bool(MetricsEnabledFlag.Name)
	}
	if ctx.IsSet(MetricsHTTPFlag.Name) {
		cfg.HTTP = ctx.String(MetricsHTTPFlag.Name)
	}
	if ctx.IsSet(MetricsPortFlag.Name) {
		cfg.Port = ctx.Int(MetricsPortFlag.Name)
	}
}
