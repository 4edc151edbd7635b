// Copyright 2017 The go-ethereum Authors
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
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"
	"unicode"

	"github.com/holiman/uint256"
	"github.com/naoina/toml"
	"github.com/sunyihoo/go-txpool/cmd/utils"
	"github.com/sunyihoo/go-txpool/core/txpool"
	"github.com/sunyihoo/go-txpool/internal/flags"
	"github.com/sunyihoo/go-txpool/metrics"
	"github.com/sunyihoo/go-txpool/node"
	"github.com/urfave/cli/v2"
)

var (
	dumpConfigCommand = &cli.Command{
		Action:      dumpConfig,
		Name:        "dumpconfig",
		Usage:       "Export configuration values in a TOML format",
		ArgsUsage:   "<dumpfile (optional)>",
		Flags:       nodeFlags,
		Description: `Export configuration values in TOML format (to stdout by default).`,
	}

	configFileFlag = utils.ConfigFileFlag
)

// These settings ensure that TOML keys use the same names as Go struct fields.
// 这些设置确保 TOML 键与 Go 结构体字段同名。
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// ledgerConfig describes the confirmed ledger the pool projects onto.
type ledgerConfig struct {
	Height    uint64
	BlockTime uint64
	Epoch     time.Time
	Genesis   map[string]string // public key => balance, decimal or 0x hex
}

type poolConfig struct {
	TxPool  txpool.Config
	Node    node.Config
	Ledger  ledgerConfig
	Metrics metrics.Config
}

func loadConfig(file string, cfg *poolConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

func defaultLedgerConfig() ledgerConfig {
	return ledgerConfig{
		BlockTime: 8,
		Epoch:     time.Date(2017, time.March, 21, 13, 0, 0, 0, time.UTC),
		Genesis:   make(map[string]string),
	}
}

// loadBaseConfig loads the poolConfig based on the given command line
// parameters and config file.
// loadBaseConfig 根据命令行参数和配置文件加载 poolConfig。
func loadBaseConfig(ctx *cli.Context) poolConfig {
	// Load defaults.
	cfg := poolConfig{
		TxPool:  txpool.DefaultConfig,
		Node:    node.DefaultConfig,
		Ledger:  defaultLedgerConfig(),
		Metrics: metrics.DefaultConfig,
	}
	// Load config file.
	if file := ctx.String(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			utils.Fatalf("%v", err)
		}
	}
	// Apply flags.
	utils.SetNodeConfig(ctx, &cfg.Node)
	utils.SetTxPoolConfig(ctx, &cfg.TxPool)
	utils.SetMetricsConfig(ctx, &cfg.Metrics)
	setLedgerConfig(ctx, &cfg.Ledger)
	return cfg
}

func setLedgerConfig(ctx *cli.Context, cfg *ledgerConfig) {
	if ctx.IsSet(utils.LedgerHeightFlag.Name) {
		cfg.Height = ctx.Uint64(utils.LedgerHeightFlag.Name)
	}
	if ctx.IsSet(utils.LedgerBlockTimeFlag.Name) {
		cfg.BlockTime = ctx.Uint64(utils.LedgerBlockTimeFlag.Name)
	}
	if ctx.IsSet(utils.LedgerEpochFlag.Name) {
		cfg.Epoch = *ctx.Timestamp(utils.LedgerEpochFlag.Name)
	}
	if ctx.IsSet(utils.LedgerAccountFlag.Name) {
		balance := flags.GlobalUint256(ctx, utils.LedgerBalanceFlag.Name)
		if cfg.Genesis == nil {
			cfg.Genesis = make(map[string]string)
		}
		for _, account := range ctx.StringSlice(utils.LedgerAccountFlag.Name) {
			cfg.Genesis[account] = balance.Dec()
		}
	}
}

// balances parses the genesis allocation.
func (c *ledgerConfig) balances() (map[string]*uint256.Int, error) {
	genesis := make(map[string]*uint256.Int, len(c.Genesis))
	for account, balance := range c.Genesis {
		value, err := flags.ParseUint256(balance)
		if err != nil {
			return nil, fmt.Errorf("invalid genesis balance %q of %s: %w", balance, account, err)
		}
		genesis[account] = value
	}
	return genesis, nil
}

// dumpConfig is the dumpconfig command.
func dumpConfig(ctx *cli.Context) error {
	cfg := loadBaseConfig(ctx)
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}
	dump := os.Stdout
	if ctx.NArg() > 0 {
		dump, err = os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer dump.Close()
	}
	dump.Write(out)
	return nil
}
