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
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/sunyihoo/go-txpool/cmd/utils"
	"github.com/sunyihoo/go-txpool/common"
	"github.com/sunyihoo/go-txpool/core/rawdb"
	"github.com/sunyihoo/go-txpool/core/types"
	"github.com/sunyihoo/go-txpool/ethdb"
	"github.com/sunyihoo/go-txpool/log"
	"github.com/sunyihoo/go-txpool/node"
	"github.com/urfave/cli/v2"
)

var (
	dbCommand = &cli.Command{
		Name:  "db",
		Usage: "Low level database operations",
		Subcommands: []*cli.Command{
			dbInspectCmd,
			dbStatCmd,
			dbCompactCmd,
			dbDumpCmd,
			dbWipeCmd,
		},
	}
	dbInspectCmd = &cli.Command{
		Action:      inspect,
		Name:        "inspect",
		Usage:       "Inspect the storage size for each type of data in the database",
		Flags:       utils.DatabaseFlags,
		Description: `This commands iterates the entire database.`,
	}
	dbStatCmd = &cli.Command{
		Action: dbStats,
		Name:   "stats",
		Usage:  "Print leveldb/pebble statistics",
		Flags:  utils.DatabaseFlags,
	}
	dbCompactCmd = &cli.Command{
		Action: dbCompact,
		Name:   "compact",
		Usage:  "Compact leveldb/pebble database (WARNING: May take a very long time)",
		Flags:  utils.DatabaseFlags,
		Description: `This command performs a database compaction.
WARNING: This operation may take a very long time to finish, and may cause database
corruption if it is aborted during execution'!`,
	}
	dbDumpCmd = &cli.Command{
		Action:      dbDump,
		Name:        "dump",
		Usage:       "Decode and list the persisted pool transactions",
		Flags:       utils.DatabaseFlags,
		Description: `Rows that fail to decode are listed with their error.`,
	}
	dbWipeCmd = &cli.Command{
		Action: dbWipe,
		Name:   "wipe",
		Usage:  "Delete every persisted pool transaction",
		Flags:  utils.DatabaseFlags,
	}
)

// openDatabase opens the pool database of the configured data directory.
func openDatabase(ctx *cli.Context, readonly bool) (*node.Node, ethdb.KeyValueStore) {
	cfg := loadBaseConfig(ctx)
	cfg.Node.Name = clientIdentifier
	stack, err := node.New(&cfg.Node)
	if err != nil {
		utils.Fatalf("Failed to create the node: %v", err)
	}
	db, err := stack.OpenDatabase(poolDatabase, "", readonly)
	if err != nil {
		stack.Close()
		utils.Fatalf("Failed to open the pool database: %v", err)
	}
	return stack, db
}

func inspect(ctx *cli.Context) error {
	stack, db := openDatabase(ctx, true)
	defer stack.Close()

	return rawdb.InspectDatabase(db, os.Stdout)
}

func showDBStats(db ethdb.KeyValueStater) {
	stats, err := db.Stat()
	if err != nil {
		log.Warn("Failed to read database stats", "error", err)
		return
	}
	fmt.Println(stats)
}

func dbStats(ctx *cli.Context) error {
	stack, db := openDatabase(ctx, true)
	defer stack.Close()

	showDBStats(db)
	return nil
}

func dbCompact(ctx *cli.Context) error {
	stack, db := openDatabase(ctx, false)
	defer stack.Close()

	log.Info("Stats before compaction")
	showDBStats(db)

	start := time.Now()
	log.Info("Triggering compaction")
	if err := db.Compact(nil, nil); err != nil {
		log.Info("Compact err", "error", err)
		return err
	}
	log.Info("Compaction done", "elapsed", common.PrettyDuration(time.Since(start)))
	log.Info("Stats after compaction")
	showDBStats(db)
	return nil
}

func dbDump(ctx *cli.Context) error {
	stack, db := openDatabase(ctx, true)
	defer stack.Close()

	var (
		rows  [][]string
		total common.StorageSize
	)
	err := rawdb.IteratePoolTransactions(db, func(id string, serialized []byte) bool {
		total += common.StorageSize(len(serialized))
		tx, err := types.DecodeTx(serialized)
		switch {
		case err != nil:
			rows = append(rows, []string{common.ShortID(id), "-", "-", "-", err.Error()})
		case tx.ID() != id:
			rows = append(rows, []string{common.ShortID(id), common.ShortID(tx.SenderPublicKey()), tx.Nonce().Dec(), tx.Fee().Dec(), "id mismatch"})
		default:
			rows = append(rows, []string{common.ShortID(id), common.ShortID(tx.SenderPublicKey()), tx.Nonce().Dec(), tx.Fee().Dec(), ""})
		}
		return true
	})
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Sender", "Nonce", "Fee", "Error"})
	table.SetFooter([]string{fmt.Sprintf("%d rows", len(rows)), "", "", "", total.String()})
	table.AppendBulk(rows)
	table.Render()
	return nil
}

func dbWipe(ctx *cli.Context) error {
	stack, db := openDatabase(ctx, false)
	defer stack.Close()

	deleted, err := rawdb.DeleteAllPoolTransactions(db)
	if err != nil {
		return err
	}
	log.Info("Wiped pool transactions", "count", deleted)
	return nil
}
