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
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/sunyihoo/go-txpool/common"
	"github.com/sunyihoo/go-txpool/core/txpool"
	"github.com/sunyihoo/go-txpool/core/types"
	"github.com/sunyihoo/go-txpool/internal/flags"
	"github.com/sunyihoo/go-txpool/log"
	"github.com/urfave/cli/v2"
)

var (
	importCommand = &cli.Command{
		Action:    importTransactions,
		Name:      "import",
		Usage:     "Submit serialized transactions to the pool",
		ArgsUsage: "<filename>",
		Flags:     nodeFlags,
		Description: `
The import command reads one hex encoded serialized transaction per line from
the given file (or standard input for "-") and submits each one to the pool.
Accepted transactions are persisted and restored by the next start.`,
	}
	queryOrderFlag = &cli.StringFlag{
		Name:     "order",
		Usage:    "Iteration order ('sender', 'lowest' or 'highest' priority)",
		Value:    "sender",
		Category: flags.TxPoolCategory,
	}
	querySenderFlag = &cli.StringFlag{
		Name:     "sender",
		Usage:    "Only list transactions of this sender public key",
		Category: flags.TxPoolCategory,
	}
	queryLimitFlag = &cli.IntFlag{
		Name:     "limit",
		Usage:    "Maximum number of transactions listed (0 = all)",
		Category: flags.TxPoolCategory,
	}
	queryCommand = &cli.Command{
		Action: queryTransactions,
		Name:   "query",
		Usage:  "List the pooled transactions",
		Flags: flags.Merge([]cli.Flag{
			queryOrderFlag,
			querySenderFlag,
			queryLimitFlag,
		}, nodeFlags),
		Description: `
The query command restores the pool from its database and lists the pooled
transactions in the requested order.`,
	}
)

// decodeLine parses one hex encoded transaction, with or without 0x prefix.
func decodeLine(line string) (*types.Transaction, error) {
	line = strings.TrimPrefix(strings.TrimPrefix(line, "0x"), "0X")
	raw, err := hex.DecodeString(line)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return types.DecodeTx(raw)
}

// submitAll decodes every non-empty line of r and offers it to the pool. The
// outcome of each line is appended to the returned table rows.
func submitAll(pool *txpool.Service, r io.Reader) (rows [][]string, accepted int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tx, err := decodeLine(line)
		if err != nil {
			rows = append(rows, []string{fmt.Sprint(n), "-", "-", "-", "ERR_DECODE: " + err.Error()})
			continue
		}
		result := "accepted"
		if err := pool.AddTransaction(tx); err != nil {
			result = txpool.ErrorCode(err)
			log.Debug("Transaction rejected", "id", tx.ID(), "err", err)
		} else {
			accepted++
		}
		rows = append(rows, []string{fmt.Sprint(n), common.ShortID(tx.ID()), tx.Nonce().Dec(), tx.Fee().Dec(), result})
	}
	return rows, accepted, scanner.Err()
}

func importTransactions(ctx *cli.Context) error {
	if ctx.Args().Len() != 1 {
		return errors.New("this command requires an argument")
	}
	env, err := makePoolEnv(ctx, false)
	if err != nil {
		return err
	}
	defer env.stack.Close()

	if err := env.pool.Boot(ctx.Context); err != nil {
		return err
	}
	defer env.pool.Stop()

	in := os.Stdin
	if name := ctx.Args().First(); name != "-" {
		if in, err = os.Open(name); err != nil {
			return err
		}
		defer in.Close()
	}
	rows, accepted, err := submitAll(env.pool, in)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Line", "ID", "Nonce", "Fee", "Result"})
	table.SetFooter([]string{"", "", "", "Accepted", fmt.Sprintf("%d/%d", accepted, len(rows))})
	table.AppendBulk(rows)
	table.Render()

	log.Info("Imported transactions", "accepted", accepted, "total", len(rows), "pool", env.pool.PoolSize())
	return nil
}

// selectTransactions resolves the query flags into an iteration.
func selectTransactions(q *txpool.Query, order, sender string) (txpool.Iterable, error) {
	var it txpool.Iterable
	switch order {
	case "sender":
		it = q.All()
	case "lowest":
		it = q.AllFromLowestPriority()
	case "highest":
		it = q.AllFromHighestPriority()
	default:
		return nil, fmt.Errorf("unknown order %q", order)
	}
	if sender != "" {
		it = it.Where(func(tx *types.Transaction) bool { return tx.SenderPublicKey() == sender })
	}
	return it, nil
}

func queryTransactions(ctx *cli.Context) error {
	env, err := makePoolEnv(ctx, false)
	if err != nil {
		return err
	}
	defer env.stack.Close()

	if err := env.pool.Boot(ctx.Context); err != nil {
		return err
	}
	defer env.pool.Stop()

	it, err := selectTransactions(env.pool.Query(), ctx.String(queryOrderFlag.Name), ctx.String(querySenderFlag.Name))
	if err != nil {
		return err
	}
	var (
		limit = ctx.Int(queryLimitFlag.Name)
		rows  [][]string
	)
	it(func(tx *types.Transaction) bool {
		rows = append(rows, []string{
			common.ShortID(tx.ID()),
			common.ShortID(tx.SenderPublicKey()),
			tx.Nonce().Dec(),
			tx.Fee().Dec(),
			fmt.Sprint(tx.Size()),
		})
		return limit == 0 || len(rows) < limit
	})
	size, senders, bytes := env.pool.Stats()
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Sender", "Nonce", "Fee", "Size"})
	table.SetFooter([]string{fmt.Sprintf("%d txs", size), fmt.Sprintf("%d senders", senders), "", "", bytes.String()})
	table.AppendBulk(rows)
	table.Render()
	return nil
}
