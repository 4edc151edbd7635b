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
// txpool is the command line client of the transaction pool.
package main

import (
	"context"
	"fmt"
	"math"
	"net"
	"os"
	"os/signal"
	godebug "runtime/debug"
	"strconv"
	"syscall"

	"github.com/shirou/gopsutil/mem"
	"github.com/sunyihoo/go-txpool/cmd/utils"
	"github.com/sunyihoo/go-txpool/core/txpool"
	"github.com/sunyihoo/go-txpool/core/wallet"
	"github.com/sunyihoo/go-txpool/ethdb"
	"github.com/sunyihoo/go-txpool/internal/debug"
	"github.com/sunyihoo/go-txpool/internal/flags"
	"github.com/sunyihoo/go-txpool/log"
	"github.com/sunyihoo/go-txpool/metrics"
	"github.com/sunyihoo/go-txpool/metrics/exp"
	"github.com/sunyihoo/go-txpool/node"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const (
	clientIdentifier = "txpool" // Client identifier, also the instance directory name
	poolDatabase     = "pool"   // Name of the pool database in the instance directory
)

var (
	nodeFlags = flags.Merge([]cli.Flag{
		configFileFlag,
	}, utils.DatabaseFlags, utils.TxPoolFlags, utils.LedgerFlags)

	metricsFlags = utils.MetricsFlags
)

var app = flags.NewApp("the transaction pool command line interface")

func init() {
	// Initialize the CLI app and start the pool
	app.Action = runPool
	app.Commands = []*cli.Command{
		// See dbcmd.go:
		dbCommand,
		// See poolcmd.go:
		importCommand,
		queryCommand,
		// See config.go:
		dumpConfigCommand,
	}
	app.Flags = flags.Merge(
		nodeFlags,
		metricsFlags,
		debug.Flags,
	)
	flags.AutoEnvVars(app.Flags, "TXPOOL")

	app.Before = func(ctx *cli.Context) error {
		flags.MigrateGlobalFlags(ctx)
		return debug.Setup(ctx)
	}
	app.After = func(ctx *cli.Context) error {
		debug.Exit()
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// poolEnv is everything a command needs to work on the pool.
type poolEnv struct {
	cfg     poolConfig
	stack   *node.Node
	db      ethdb.KeyValueStore
	manager *wallet.Manager
	state   *wallet.State
	pool    *txpool.Service
}

// makePoolEnv opens the data directory and assembles the pool service on top
// of it. The service is not booted.
// makePoolEnv 打开数据目录并在其上组装交易池服务，服务尚未启动。
func makePoolEnv(ctx *cli.Context, readonly bool) (*poolEnv, error) {
	cfg := loadBaseConfig(ctx)
	cfg.Node.Name = clientIdentifier
	cfg.Node.DatabaseCache = sanitizeCache(cfg.Node.DatabaseCache)

	stack, err := node.New(&cfg.Node)
	if err != nil {
		return nil, fmt.Errorf("failed to create the node: %w", err)
	}
	db, err := stack.OpenDatabase(poolDatabase, "db/", readonly)
	if err != nil {
		stack.Close()
		return nil, fmt.Errorf("failed to open the pool database: %w", err)
	}
	genesis, err := cfg.Ledger.balances()
	if err != nil {
		stack.Close()
		return nil, err
	}
	var (
		manager = wallet.NewManager(genesis)
		state   = wallet.NewState(cfg.Ledger.Height, cfg.Ledger.BlockTime, cfg.Ledger.Epoch)
		m       *txpool.Metrics
	)
	if cfg.Metrics.Enabled {
		m = txpool.PrometheusMetrics(metrics.DefaultRegistry)
	}
	pool := txpool.NewService(cfg.TxPool, db, wallet.NewRegistry(manager), state, m)
	return &poolEnv{
		cfg:     cfg,
		stack:   stack,
		db:      db,
		manager: manager,
		state:   state,
		pool:    pool,
	}, nil
}

// sanitizeCache caps the database cache allowance to a third of the system
// memory and tunes the garbage collector for it.
// sanitizeCache 将数据库缓存限制为系统内存的三分之一，并据此调整 GC。
func sanitizeCache(cache int) int {
	if mem, err := mem.VirtualMemory(); err == nil {
		if 32<<(^uintptr(0)>>63) == 32 && mem.Total > 2*1024*1024*1024 {
			log.Warn("Lowering memory allowance on 32bit arch", "available", mem.Total/1024/1024, "addressable", 2*1024)
			mem.Total = 2 * 1024 * 1024 * 1024
		}
		allowance := int(mem.Total / 1024 / 1024 / 3)
		if cache > allowance {
			log.Warn("Sanitizing cache to Go's GC limits", "provided", cache, "updated", allowance)
			cache = allowance
		}
	}
	// Ensure Go's GC ignores the database cache for trigger percentage
	gogc := math.Max(20, math.Min(100, 100/(float64(cache)/1024)))
	log.Debug("Sanitizing Go's GC trigger", "percent", int(gogc))
	godebug.SetGCPercent(int(gogc))
	return cache
}

// poolLifecycle boots the pool and runs its cleanup loop for as long as the
// node is up.
type poolLifecycle struct {
	ctx  context.Context
	pool *txpool.Service
}

func (l *poolLifecycle) Start() error {
	if err := l.pool.Boot(l.ctx); err != nil {
		return fmt.Errorf("failed to boot the pool: %w", err)
	}
	l.pool.Start()
	size, senders, bytes := l.pool.Stats()
	log.Info("Transaction pool started", "transactions", size, "senders", senders, "bytes", bytes)
	return nil
}

func (l *poolLifecycle) Stop() error {
	l.pool.Stop()
	return nil
}

// runPool is the main entry point into the system if no special subcommand is
// run. It boots the pool, serves metrics and blocks until interrupted.
// runPool 是系统的主入口，启动交易池并阻塞直到收到中断信号。
func runPool(ctx *cli.Context) error {
	if args := ctx.Args().Slice(); len(args) > 0 {
		return fmt.Errorf("invalid command: %s", args[0])
	}
	sigctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := makePoolEnv(ctx, false)
	if err != nil {
		return err
	}
	env.stack.RegisterLifecycle(&poolLifecycle{ctx: sigctx, pool: env.pool})
	if err := env.stack.Start(); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(sigctx)
	if env.cfg.Metrics.Enabled {
		address := net.JoinHostPort(env.cfg.Metrics.HTTP, strconv.Itoa(env.cfg.Metrics.Port))
		g.Go(func() error {
			return exp.Setup(gctx, address, metrics.DefaultRegistry)
		})
	}
	g.Go(func() error {
		return logEvents(gctx, env.pool)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Got interrupt, shutting down...")
		return env.stack.Close()
	})
	return g.Wait()
}

// logEvents reports pool events until the context is cancelled.
func logEvents(ctx context.Context, pool *txpool.Service) error {
	events := make(chan txpool.PoolEvent, 256)
	sub := pool.SubscribeEvents(events)
	defer sub.Unsubscribe()

	for {
		select {
		case ev := <-events:
			if ev.Err != nil {
				log.Debug("Transaction pool event", "kind", ev.Kind, "id", ev.Tx.ID(), "err", ev.Err)
			} else {
				log.Trace("Transaction pool event", "kind", ev.Kind, "id", ev.Tx.ID())
			}
		case <-sub.Err():
			// The pool was stopped.
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}
