// Copyright 2014 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Package txpool contains the transaction pool: admission, per-sender nonce
// ordering, fee priority, expiration and capacity eviction, mirrored to disk
// so it survives restarts.
package txpool

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sunyihoo/go-txpool/common"
	"github.com/sunyihoo/go-txpool/core/types"
	"github.com/sunyihoo/go-txpool/ethdb"
	"github.com/sunyihoo/go-txpool/event"
	"github.com/sunyihoo/go-txpool/log"
)

// statsReportInterval is the time interval to report pool statistics.
const statsReportInterval = 8 * time.Second

// Service is the entry point of the pool. It keeps the durable storage and
// the in-memory mempool consistent: additions are written to storage before
// the mempool, removals leave the mempool before storage.
//
// Service 是交易池的入口，负责保持持久化存储与内存池的一致：
// 添加时先写存储再入内存池，删除时先出内存池再删存储。
type Service struct {
	config     Config
	storage    *Storage
	mempool    *Mempool
	query      *Query
	expiration *ExpirationService
	fees       *FeeMatcher
	metrics    *Metrics
	events     *dispatcher

	inflight     mapset.Set[string] // ids between the duplicate check and the storage rollback
	capacityLock sync.Mutex         // serialises clean, check, evict and add

	wg       sync.WaitGroup
	quit     chan struct{}
	stopOnce sync.Once
}

// NewService creates a transaction pool service on top of the given store. The
// pool is empty until Boot is called.
func NewService(config Config, db ethdb.KeyValueStore, handlers HandlerRegistry, state StateStore, metrics *Metrics) *Service {
	config = (&config).sanitize()
	if metrics == nil {
		metrics = NopMetrics()
	}
	var (
		expiration = NewExpirationService(&config, state)
		fees       = NewFeeMatcher(&config, handlers, state)
		mempool    = NewMempool(&config, expiration, fees, handlers)
	)
	return &Service{
		config:     config,
		storage:    NewStorage(db),
		mempool:    mempool,
		query:      NewQuery(mempool),
		expiration: expiration,
		fees:       fees,
		metrics:    metrics,
		events:     newDispatcher(config.EventQueue),
		inflight:   mapset.NewSet[string](),
		quit:       make(chan struct{}),
	}
}

// Boot prepares the pool after a restart. With Config.Reset both the mempool
// and the storage are wiped, otherwise the mempool is rebuilt from storage.
func (s *Service) Boot(ctx context.Context) error {
	if s.config.Reset {
		log.Info("Resetting transaction pool")
		return s.Flush()
	}
	return s.ReaddTransactions(ctx, nil)
}

// Start launches the periodic cleanup loop.
func (s *Service) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop terminates the cleanup loop and all event subscriptions.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		s.wg.Wait()
		s.events.close()
		log.Info("Transaction pool stopped")
	})
}

// loop is the pool's housekeeping goroutine.
func (s *Service) loop() {
	defer s.wg.Done()

	var (
		prevSize int

		report  = time.NewTicker(statsReportInterval)
		cleanup = time.NewTicker(s.config.CleanupInterval)
	)
	defer report.Stop()
	defer cleanup.Stop()

	for {
		select {
		case <-s.quit:
			return

		case <-report.C:
			if size := s.PoolSize(); size != prevSize {
				log.Debug("Transaction pool status report", "size", size, "max", s.config.MaxTransactionsInPool)
				prevSize = size
			}

		// 周期性清理过期交易并把池大小压回上限以内
		case <-cleanup.C:
			s.CleanUp()
		}
	}
}

// AddTransaction admits a transaction. The row is stored before the mempool
// sees the transaction and rolled back if the mempool rejects it.
func (s *Service) AddTransaction(tx *types.Transaction) error {
	id := tx.ID()
	if !s.inflight.Add(id) {
		err := newPoolError(ErrAlreadyInPool, tx, nil)
		s.reject(tx, err)
		return err
	}
	defer s.inflight.Remove(id)

	has, err := s.storage.HasTransaction(id)
	if err != nil {
		return err
	}
	if has {
		err := newPoolError(ErrAlreadyInPool, tx, nil)
		s.reject(tx, err)
		return err
	}
	if err := s.storage.AddTransaction(id, tx.Serialized()); err != nil {
		return err
	}
	if err := s.addTransactionToMempool(tx); err != nil {
		if rerr := s.storage.RemoveTransaction(id); rerr != nil {
			log.Error("Failed to roll back pool storage", "id", id, "err", rerr)
		}
		log.Debug("Transaction failed to enter pool", "tx", tx, "err", err)
		s.reject(tx, err)
		return err
	}
	log.Debug("Transaction added to pool", "tx", tx)
	s.metrics.Added.Add(1)
	s.metrics.TxSizeBytes.Observe(float64(tx.Size()))
	s.metrics.Size.Set(float64(s.mempool.Size()))
	s.events.emit(AddedToPool, tx, nil)
	return nil
}

func (s *Service) reject(tx *types.Transaction, err error) {
	code := ErrorCode(err)
	if code == "" {
		code = "ERR_UNKNOWN"
	}
	s.metrics.Rejected.With("code", code).Add(1)
	s.events.emit(RejectedByPool, tx, err)
}

// addTransactionToMempool makes room if the pool is full and adds the
// transaction. A full pool first drops expired transactions, then evicts the
// single lowest priority one if the newcomer pays strictly more.
func (s *Service) addTransactionToMempool(tx *types.Transaction) error {
	s.capacityLock.Lock()
	defer s.capacityLock.Unlock()

	if s.mempool.Size() >= s.config.MaxTransactionsInPool {
		s.cleanExpired()
		s.cleanLowestPriority()
	}
	if s.mempool.Size() >= s.config.MaxTransactionsInPool {
		lowest, err := s.query.AllFromLowestPriority().First()
		if err != nil {
			return newPoolError(ErrPoolFull, tx, err)
		}
		if tx.FeeCmp(lowest) <= 0 {
			return newPoolError(ErrPoolFull, tx, nil)
		}
		log.Debug("Evicting lowest priority transaction", "evicted", lowest, "for", tx)
		removed, err := s.removeTransaction(lowest, RemovedFromPool)
		if err != nil {
			log.Warn("Failed to evict transaction", "id", lowest.ID(), "err", err)
		}
		// Nothing left the pool, admitting would overshoot the ceiling.
		if len(removed) == 0 {
			return newPoolError(ErrPoolFull, tx, fmt.Errorf("failed to evict %s", lowest.ID()))
		}
	}
	return s.mempool.AddTransaction(tx)
}

// RemoveTransaction reverts the transaction and every later one of the same
// sender, then deletes their rows.
func (s *Service) RemoveTransaction(tx *types.Transaction) error {
	_, err := s.removeTransaction(tx, RemovedFromPool)
	return err
}

// removeTransaction tears the transaction down. The transaction itself is
// reported with the given event kind, the later ones of its sender that go
// with it as RemovedFromPool.
func (s *Service) removeTransaction(tx *types.Transaction, kind EventKind) ([]*types.Transaction, error) {
	has, err := s.storage.HasTransaction(tx.ID())
	if err != nil {
		return nil, err
	}
	if !has {
		log.Error("Failed to remove transaction, not in pool", "tx", tx)
		return nil, nil
	}
	removed, err := s.mempool.RemoveTransaction(tx)
	if err != nil {
		log.Warn("Failed to cleanly remove transaction", "tx", tx, "removed", len(removed), "err", err)
	}
	var found bool
	for _, rtx := range removed {
		if rtx.ID() == tx.ID() {
			found = true
		}
		if serr := s.storage.RemoveTransaction(rtx.ID()); serr != nil {
			log.Error("Failed to delete pool storage row", "id", rtx.ID(), "err", serr)
		}
		if kind == Expired && rtx.ID() == tx.ID() {
			log.Info("Transaction expired", "tx", rtx)
			s.metrics.Expired.Add(1)
			s.events.emit(Expired, rtx, nil)
		} else {
			log.Debug("Transaction removed from pool", "tx", rtx)
			s.metrics.Removed.Add(1)
			s.events.emit(RemovedFromPool, rtx, nil)
		}
	}
	if !found {
		log.Warn("Removed transaction was not found in its sender", "tx", tx)
	}
	s.metrics.Size.Set(float64(s.mempool.Size()))
	return removed, err
}

// AcceptForgedTransaction drops the forged transaction and every earlier one
// of the same sender without reverting them, their effects are now part of
// the confirmed state.
func (s *Service) AcceptForgedTransaction(tx *types.Transaction) error {
	accepted, err := s.mempool.AcceptForgedTransaction(tx)
	if err != nil {
		return err
	}
	var found bool
	for _, atx := range accepted {
		if atx.ID() == tx.ID() {
			found = true
		}
		if serr := s.storage.RemoveTransaction(atx.ID()); serr != nil {
			log.Error("Failed to delete pool storage row", "id", atx.ID(), "err", serr)
		}
		log.Debug("Forged transaction removed from pool", "tx", atx)
		s.metrics.Forged.Add(1)
		s.events.emit(RemovedFromPool, atx, nil)
	}
	if !found {
		log.Error("Forged transaction was not found in pool", "tx", tx)
	}
	s.metrics.Size.Set(float64(s.mempool.Size()))
	return nil
}

// ReaddTransactions rebuilds the mempool. The transactions of a reverted
// block come first, then every stored row is replayed. Transactions that no
// longer apply are dropped along with their rows.
//
// ReaddTransactions 重建内存池：先重新加入被回滚区块中的交易，再重放存储中的所有行。
func (s *Service) ReaddTransactions(ctx context.Context, previous []*types.Transaction) error {
	s.mempool.Flush()

	var (
		prevAdded, prevFailed     int
		storedAdded, storedFailed int
		readded                   = mapset.NewThreadUnsafeSet[string]()
	)
	for _, tx := range previous {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.storage.AddTransaction(tx.ID(), tx.Serialized()); err != nil {
			return err
		}
		if err := s.addTransactionToMempool(tx); err != nil {
			log.Debug("Failed to re-add previously forged transaction", "tx", tx, "err", err)
			if rerr := s.storage.RemoveTransaction(tx.ID()); rerr != nil {
				return rerr
			}
			prevFailed++
			continue
		}
		readded.Add(tx.ID())
		prevAdded++
	}
	stored, err := s.storedTransactions(readded)
	if err != nil {
		return err
	}
	for _, tx := range stored {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.addTransactionToMempool(tx); err != nil {
			log.Debug("Failed to re-add stored transaction", "tx", tx, "err", err)
			if rerr := s.storage.RemoveTransaction(tx.ID()); rerr != nil {
				return rerr
			}
			storedFailed++
			continue
		}
		storedAdded++
	}
	if len(previous) > 0 {
		log.Info("Re-added previously forged transactions", "added", prevAdded, "failed", prevFailed)
	}
	log.Info("Re-added stored transactions", "added", storedAdded, "failed", storedFailed, "size", s.mempool.Size())
	s.metrics.Size.Set(float64(s.mempool.Size()))
	return nil
}

// storedTransactions decodes every stored row except the skipped ones and
// orders them by nonce, so each sender's transactions replay in sequence.
// Rows that cannot be decoded are deleted.
func (s *Service) storedTransactions(skip mapset.Set[string]) ([]*types.Transaction, error) {
	rows, err := s.storage.GetAllTransactions()
	if err != nil {
		return nil, err
	}
	txs := make([]*types.Transaction, 0, len(rows))
	for _, row := range rows {
		if skip.Contains(row.ID) {
			continue
		}
		tx, err := types.DecodeTx(row.Serialized)
		if err == nil && tx.ID() != row.ID {
			err = fmt.Errorf("id mismatch, decoded %s", tx.ID())
		}
		if err != nil {
			log.Warn("Dropping undecodable pool row", "id", row.ID, "err", err)
			if rerr := s.storage.RemoveTransaction(row.ID); rerr != nil {
				return nil, rerr
			}
			continue
		}
		txs = append(txs, tx)
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].NonceCmp(txs[j]) < 0 })
	return txs, nil
}

// CleanUp drops expired transactions and evicts the lowest priority ones
// until the pool is within its capacity.
func (s *Service) CleanUp() {
	s.capacityLock.Lock()
	defer s.capacityLock.Unlock()

	s.cleanExpired()
	s.cleanLowestPriority()
}

// CleanExpired drops every expired transaction together with the later ones
// of the same sender.
func (s *Service) CleanExpired() {
	s.capacityLock.Lock()
	defer s.capacityLock.Unlock()

	s.cleanExpired()
}

// CleanLowestPriority evicts the lowest priority transactions until the pool
// is within its capacity.
func (s *Service) CleanLowestPriority() {
	s.capacityLock.Lock()
	defer s.capacityLock.Unlock()

	s.cleanLowestPriority()
}

// cleanExpired must be called with capacityLock held.
func (s *Service) cleanExpired() {
	gone := mapset.NewThreadUnsafeSet[string]()
	for _, tx := range s.query.All().Where(s.expiration.IsExpired).Slice() {
		if gone.Contains(tx.ID()) {
			continue
		}
		removed, err := s.removeTransaction(tx, Expired)
		if err != nil {
			log.Warn("Failed to remove expired transaction", "id", tx.ID(), "err", err)
		}
		for _, rtx := range removed {
			gone.Add(rtx.ID())
		}
	}
}

// cleanLowestPriority must be called with capacityLock held.
func (s *Service) cleanLowestPriority() {
	for s.mempool.Size() > s.config.MaxTransactionsInPool {
		lowest, err := s.query.AllFromLowestPriority().First()
		if err != nil {
			return
		}
		removed, err := s.removeTransaction(lowest, RemovedFromPool)
		if err != nil {
			log.Warn("Failed to evict transaction", "id", lowest.ID(), "err", err)
		}
		if len(removed) == 0 {
			log.Warn("Stopping eviction, lowest priority transaction could not be removed", "id", lowest.ID())
			return
		}
	}
}

// Flush drops every transaction from the mempool and the storage without
// reverting anything.
func (s *Service) Flush() error {
	s.capacityLock.Lock()
	defer s.capacityLock.Unlock()

	s.mempool.Flush()
	s.metrics.Size.Set(0)
	return s.storage.Flush()
}

// PoolSize returns the number of pooled transactions.
func (s *Service) PoolSize() int {
	return s.mempool.Size()
}

// Query returns the read-only query view of the pool.
func (s *Service) Query() *Query {
	return s.query
}

// Storage returns the durable mirror of the pool.
func (s *Service) Storage() *Storage {
	return s.storage
}

// CanBroadcast reports whether the transaction pays enough to be rebroadcast.
func (s *Service) CanBroadcast(tx *types.Transaction) error {
	return s.fees.CanBroadcast(tx)
}

// SubscribeEvents registers a subscription of PoolEvent.
func (s *Service) SubscribeEvents(ch chan<- PoolEvent) event.Subscription {
	return s.events.subscribe(ch)
}

// Stats returns a short summary of the pool for diagnostics.
func (s *Service) Stats() (size int, senders int, bytes common.StorageSize) {
	var total int
	for _, p := range s.mempool.senderPools() {
		senders++
		for _, tx := range p.fromEarliest() {
			size++
			total += tx.Size()
		}
	}
	return size, senders, common.StorageSize(total)
}
