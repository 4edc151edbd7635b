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

package txpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunyihoo/go-txpool/core/types"
	"github.com/sunyihoo/go-txpool/ethdb"
	"github.com/sunyihoo/go-txpool/ethdb/memorydb"
	"github.com/sunyihoo/go-txpool/metrics"
)

const senderD = "02dddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd"

func (e *testEnv) service(db ethdb.KeyValueStore, m *Metrics) *Service {
	return NewService(e.config, db, e.handlers, e.state, m)
}

func newTestService(t *testing.T) (*testEnv, *Service) {
	env := newTestEnv()
	s := env.service(memorydb.New(), nil)
	t.Cleanup(s.Stop)
	return env, s
}

func stored(t *testing.T, s *Service, id string) bool {
	t.Helper()
	has, err := s.Storage().HasTransaction(id)
	require.NoError(t, err)
	return has
}

func TestServiceAddTransaction(t *testing.T) {
	_, s := newTestService(t)

	tx := transfer(senderA, 1, 1000)
	require.NoError(t, s.AddTransaction(tx))
	assert.Equal(t, 1, s.PoolSize())
	assert.True(t, stored(t, s, tx.ID()))
	assert.True(t, s.Query().All().WhereID(tx.ID()).Has())

	err := s.AddTransaction(tx)
	assert.ErrorIs(t, err, ErrAlreadyInPool)
	assert.Equal(t, "ERR_ALREADY_IN_POOL", ErrorCode(err))
	assert.Equal(t, 1, s.PoolSize())
}

// Tests that concurrent submissions of the same transaction admit it once.
func TestServiceConcurrentDuplicate(t *testing.T) {
	_, s := newTestService(t)
	tx := transfer(senderA, 1, 1000)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		dupes    int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.AddTransaction(tx)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case ErrorCode(err) == "ERR_ALREADY_IN_POOL":
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
	assert.Equal(t, 7, dupes)
	assert.Equal(t, 1, s.PoolSize())
}

// Tests that a transaction refused by the mempool leaves no row behind.
func TestServiceRejectionRollsBackStorage(t *testing.T) {
	_, s := newTestService(t)

	gap := transfer(senderA, 2, 1000)
	err := s.AddTransaction(gap)
	assert.ErrorIs(t, err, ErrFailedToApply)
	assert.False(t, stored(t, s, gap.ID()))
	assert.Zero(t, s.PoolSize())

	// The rejected transaction can be submitted again once it applies.
	require.NoError(t, s.AddTransaction(transfer(senderA, 1, 1000)))
	require.NoError(t, s.AddTransaction(gap))
	assert.True(t, stored(t, s, gap.ID()))
}

// Tests that a full pool evicts the lowest priority transaction only for a
// newcomer paying strictly more.
func TestServiceCapacityEviction(t *testing.T) {
	env := newTestEnv()
	env.config.MaxTransactionsInPool = 3
	env.config.DynamicFees.MinFeePool = 0
	s := env.service(memorydb.New(), nil)
	defer s.Stop()

	var (
		a = transfer(senderA, 1, 100)
		b = transfer(senderB, 1, 200)
		c = transfer(senderC, 1, 300)
	)
	for _, tx := range []*types.Transaction{a, b, c} {
		require.NoError(t, s.AddTransaction(tx))
	}
	d := transfer(senderD, 1, 250)
	require.NoError(t, s.AddTransaction(d))
	assert.Equal(t, 3, s.PoolSize())
	assert.False(t, s.Query().All().WhereID(a.ID()).Has())
	assert.False(t, stored(t, s, a.ID()))
	assert.Equal(t, []uint64{200, 250, 300}, feesOf(s.Query().AllFromLowestPriority().Slice()))

	cheap := transfer(senderA, 1, 50)
	err := s.AddTransaction(cheap)
	assert.ErrorIs(t, err, ErrPoolFull)
	assert.Equal(t, "ERR_POOL_FULL", ErrorCode(err))
	assert.False(t, stored(t, s, cheap.ID()))

	// Paying exactly the lowest fee is not enough.
	err = s.AddTransaction(transfer(senderA, 1, 200))
	assert.ErrorIs(t, err, ErrPoolFull)
	assert.Equal(t, 3, s.PoolSize())
}

// Tests that a full pool whose lowest priority transaction cannot be evicted
// rejects newcomers instead of growing past its capacity.
func TestServiceCapacityFailedEviction(t *testing.T) {
	env := newTestEnv()
	env.config.MaxTransactionsInPool = 3
	env.config.DynamicFees.MinFeePool = 0
	s := env.service(memorydb.New(), nil)
	defer s.Stop()

	a := transfer(senderA, 1, 100)
	for _, tx := range []*types.Transaction{a, transfer(senderB, 1, 200), transfer(senderC, 1, 300)} {
		require.NoError(t, s.AddTransaction(tx))
	}
	// The row of the lowest transaction is gone, so it cannot be torn down.
	require.NoError(t, s.Storage().RemoveTransaction(a.ID()))

	for _, fee := range []uint64{250, 400} {
		tx := transfer(senderD, 1, fee)
		err := s.AddTransaction(tx)
		assert.ErrorIs(t, err, ErrPoolFull, "fee %d", fee)
		assert.False(t, stored(t, s, tx.ID()))
		assert.Equal(t, 3, s.PoolSize())
	}
}

// Tests that an admission into an overfull pool first brings it back to its
// capacity.
func TestServiceCapacityTrimsOverfullPool(t *testing.T) {
	env := newTestEnv()
	env.config.DynamicFees.MinFeePool = 0
	s := env.service(memorydb.New(), nil)
	defer s.Stop()

	for i, sender := range []string{senderA, senderB, senderC} {
		require.NoError(t, s.AddTransaction(transfer(sender, 1, uint64(100*(i+1)))))
	}
	s.config.MaxTransactionsInPool = 2

	require.NoError(t, s.AddTransaction(transfer(senderD, 1, 250)))
	assert.Equal(t, 2, s.PoolSize())
	assert.Equal(t, []uint64{250, 300}, feesOf(s.Query().AllFromLowestPriority().Slice()))
}

// Tests that a full pool drops expired transactions before evicting anything.
func TestServiceCapacityDropsExpiredFirst(t *testing.T) {
	env := newTestEnv()
	env.config.MaxTransactionsInPool = 2
	s := env.service(memorydb.New(), nil)
	defer s.Stop()

	old := expiring(senderA, 1, 5000, 105)
	keep := transfer(senderB, 1, 5000)
	require.NoError(t, s.AddTransaction(old))
	require.NoError(t, s.AddTransaction(keep))

	env.state.height.Store(104)
	require.NoError(t, s.AddTransaction(transfer(senderC, 1, 1000)), "room is made by expiry, not fee")
	assert.Equal(t, 2, s.PoolSize())
	assert.False(t, stored(t, s, old.ID()))
	assert.True(t, stored(t, s, keep.ID()))
}

func TestServiceRemoveTransaction(t *testing.T) {
	env, s := newTestService(t)

	a, b, c := transfer(senderA, 1, 1000), transfer(senderA, 2, 1000), transfer(senderA, 3, 1000)
	for _, tx := range []*types.Transaction{a, b, c} {
		require.NoError(t, s.AddTransaction(tx))
	}
	require.NoError(t, s.RemoveTransaction(b))
	assert.True(t, stored(t, s, a.ID()))
	assert.False(t, stored(t, s, b.ID()))
	assert.False(t, stored(t, s, c.ID()))
	assert.Equal(t, []string{c.ID(), b.ID()}, env.ledger.reverted())
	assert.Equal(t, 1, s.PoolSize())

	// Removing something the pool never held is a logged no-op.
	assert.NoError(t, s.RemoveTransaction(transfer(senderB, 1, 1000)))
	assert.Equal(t, 1, s.PoolSize())
}

func TestServiceAcceptForged(t *testing.T) {
	env, s := newTestService(t)

	a, b, c := transfer(senderA, 1, 1000), transfer(senderA, 2, 1000), transfer(senderA, 3, 1000)
	for _, tx := range []*types.Transaction{a, b, c} {
		require.NoError(t, s.AddTransaction(tx))
	}
	require.NoError(t, s.AcceptForgedTransaction(b))
	assert.False(t, stored(t, s, a.ID()))
	assert.False(t, stored(t, s, b.ID()))
	assert.True(t, stored(t, s, c.ID()))
	assert.Empty(t, env.ledger.reverted())
	assert.Equal(t, 1, s.PoolSize())

	// A forged transaction from an unknown sender is not an error.
	assert.NoError(t, s.AcceptForgedTransaction(transfer(senderB, 1, 1000)))
}

// Tests that rebuilding from storage restores the same pool, also on a fresh
// service over the same database.
func TestServiceReaddTransactions(t *testing.T) {
	env := newTestEnv()
	db := memorydb.New()
	s := env.service(db, nil)
	defer s.Stop()

	txs := []*types.Transaction{
		transfer(senderA, 1, 1000), transfer(senderA, 2, 2000), transfer(senderA, 3, 3000),
		transfer(senderB, 1, 1500), transfer(senderB, 2, 2500),
	}
	for _, tx := range txs {
		require.NoError(t, s.AddTransaction(tx))
	}
	before := types.Transactions(s.Query().AllFromHighestPriority().Slice()).IDs()

	require.NoError(t, s.ReaddTransactions(context.Background(), nil))
	assert.Equal(t, len(txs), s.PoolSize())
	require.NoError(t, s.ReaddTransactions(context.Background(), nil))
	assert.Equal(t, len(txs), s.PoolSize())
	assert.ElementsMatch(t, before, types.Transactions(s.Query().AllFromHighestPriority().Slice()).IDs())

	// A restarted node starts from an empty ledger projection.
	fresh := newTestEnv()
	s2 := fresh.service(db, nil)
	defer s2.Stop()
	require.NoError(t, s2.Boot(context.Background()))
	assert.Equal(t, len(txs), s2.PoolSize())
	assert.Equal(t, []uint64{1, 2, 3}, noncesOf(s2.Query().AllFromSender(senderA).Slice()))
	assert.Equal(t, uint64(3), fresh.ledger.nonce(senderA))
}

// Tests that rows which no longer decode or no longer apply are dropped.
func TestServiceReaddDropsBadRows(t *testing.T) {
	env, s := newTestService(t)

	good := transfer(senderA, 1, 1000)
	orphan := transfer(senderB, 2, 1000)
	require.NoError(t, s.AddTransaction(good))
	require.NoError(t, s.Storage().AddTransaction(orphan.ID(), orphan.Serialized()))
	require.NoError(t, s.Storage().AddTransaction("deadbeef", good.Serialized()))
	require.NoError(t, s.Storage().AddTransaction("garbage", []byte{0xff, 0xff, 0xff}))

	require.NoError(t, s.ReaddTransactions(context.Background(), nil))
	assert.Equal(t, 1, s.PoolSize())
	rows, err := s.Storage().GetAllTransactions()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, good.ID(), rows[0].ID)
	assert.Equal(t, uint64(1), env.ledger.nonce(senderA))
}

// Tests that transactions of a reverted block come back ahead of the stored
// ones.
func TestServiceReaddPrevious(t *testing.T) {
	_, s := newTestService(t)

	pending := transfer(senderA, 2, 1000)
	require.NoError(t, s.Storage().AddTransaction(pending.ID(), pending.Serialized()))

	forged := transfer(senderA, 1, 1000)
	require.NoError(t, s.ReaddTransactions(context.Background(), []*types.Transaction{forged}))
	assert.Equal(t, []uint64{1, 2}, noncesOf(s.Query().AllFromSender(senderA).Slice()))
	assert.True(t, stored(t, s, forged.ID()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.ReaddTransactions(ctx, []*types.Transaction{forged}), context.Canceled)
}

func TestServiceBootReset(t *testing.T) {
	env := newTestEnv()
	db := memorydb.New()
	s := env.service(db, nil)
	defer s.Stop()
	require.NoError(t, s.AddTransaction(transfer(senderA, 1, 1000)))

	env.config.Reset = true
	s2 := env.service(db, nil)
	defer s2.Stop()
	require.NoError(t, s2.Boot(context.Background()))
	assert.Zero(t, s2.PoolSize())
	rows, err := s2.Storage().GetAllTransactions()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestServiceCleanExpired(t *testing.T) {
	env, s := newTestService(t)

	a1 := transfer(senderA, 1, 1000)
	a2 := expiring(senderA, 2, 1000, 110)
	a3 := transfer(senderA, 3, 1000)
	b1 := expiring(senderB, 1, 1000, 120)
	for _, tx := range []*types.Transaction{a1, a2, a3, b1} {
		require.NoError(t, s.AddTransaction(tx))
	}
	env.state.height.Store(109)
	s.CleanExpired()

	assert.Equal(t, []string{a1.ID(), b1.ID()}, types.Transactions(s.Query().All().Slice()).IDs())
	assert.False(t, stored(t, s, a2.ID()))
	assert.False(t, stored(t, s, a3.ID()), "later transactions leave with the expired one")
	assert.True(t, stored(t, s, b1.ID()))
}

// Tests that only the expired transaction is reported as expired, the later
// ones leaving with it are plain removals.
func TestServiceCleanExpiredReporting(t *testing.T) {
	env := newTestEnv()
	reg := metrics.NewRegistry()
	s := env.service(memorydb.New(), PrometheusMetrics(reg))
	defer s.Stop()

	ch := make(chan PoolEvent, 16)
	sub := s.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	expired := expiring(senderA, 1, 1000, 110)
	later := transfer(senderA, 2, 1000)
	require.NoError(t, s.AddTransaction(expired))
	require.NoError(t, s.AddTransaction(later))
	assert.Equal(t, AddedToPool, nextEvent(t, ch).Kind)
	assert.Equal(t, AddedToPool, nextEvent(t, ch).Kind)

	env.state.height.Store(109)
	s.CleanExpired()

	ev := nextEvent(t, ch)
	assert.Equal(t, RemovedFromPool, ev.Kind)
	assert.Equal(t, later.ID(), ev.Tx.ID())
	ev = nextEvent(t, ch)
	assert.Equal(t, Expired, ev.Kind)
	assert.Equal(t, expired.ID(), ev.Tx.ID())

	got := gather(t, reg)
	assert.Equal(t, 1.0, got["txpool_pool_expired"])
	assert.Equal(t, 1.0, got["txpool_pool_removed"])
}

// Tests that the sweep brings an oversized pool back within capacity, lowest
// priority first.
func TestServiceCleanLowestPriority(t *testing.T) {
	_, s := newTestService(t)
	for i, sender := range []string{senderA, senderB, senderC, senderD} {
		require.NoError(t, s.AddTransaction(transfer(sender, 1, uint64(1000*(i+1)))))
	}
	s.config.MaxTransactionsInPool = 2

	s.CleanLowestPriority()
	assert.Equal(t, []uint64{3000, 4000}, feesOf(s.Query().AllFromLowestPriority().Slice()))
	rows, err := s.Storage().GetAllTransactions()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

// Tests that booting into a smaller pool keeps the best paying transactions.
func TestServiceBootIntoSmallerPool(t *testing.T) {
	env := newTestEnv()
	db := memorydb.New()
	s := env.service(db, nil)
	defer s.Stop()
	for i, sender := range []string{senderA, senderB, senderC, senderD} {
		require.NoError(t, s.AddTransaction(transfer(sender, 1, uint64(1000*(i+1)))))
	}

	small := newTestEnv()
	small.config.MaxTransactionsInPool = 2
	shrunk := small.service(db, nil)
	defer shrunk.Stop()
	require.NoError(t, shrunk.Boot(context.Background()))
	assert.Equal(t, []uint64{3000, 4000}, feesOf(shrunk.Query().AllFromLowestPriority().Slice()))
	rows, err := shrunk.Storage().GetAllTransactions()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestServiceCleanupLoop(t *testing.T) {
	env := newTestEnv()
	env.config.CleanupInterval = time.Second
	s := env.service(memorydb.New(), nil)
	defer s.Stop()

	require.NoError(t, s.AddTransaction(expiring(senderA, 1, 1000, 105)))
	s.Start()
	env.state.height.Store(110)
	assert.Eventually(t, func() bool { return s.PoolSize() == 0 }, 5*time.Second, 50*time.Millisecond)
}

func TestServiceFlush(t *testing.T) {
	_, s := newTestService(t)
	require.NoError(t, s.AddTransaction(transfer(senderA, 1, 1000)))
	require.NoError(t, s.AddTransaction(transfer(senderB, 1, 1000)))

	size, senders, bytes := s.Stats()
	assert.Equal(t, 2, size)
	assert.Equal(t, 2, senders)
	assert.Positive(t, float64(bytes))

	require.NoError(t, s.Flush())
	assert.Zero(t, s.PoolSize())
	rows, err := s.Storage().GetAllTransactions()
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestServiceCanBroadcast(t *testing.T) {
	_, s := newTestService(t)

	probe := transfer(senderA, 1, 60_000)
	threshold := 5 * (100 + uint64(probe.Size()))
	assert.NoError(t, s.CanBroadcast(transfer(senderA, 1, threshold+10_000)))
	assert.ErrorIs(t, s.CanBroadcast(transfer(senderA, 1, 300)), ErrLowFee)
}

func nextEvent(t *testing.T, ch <-chan PoolEvent) PoolEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pool event")
		return PoolEvent{}
	}
}

func TestServiceEvents(t *testing.T) {
	_, s := newTestService(t)
	ch := make(chan PoolEvent, 16)
	sub := s.SubscribeEvents(ch)
	defer sub.Unsubscribe()

	a, b := transfer(senderA, 1, 1000), transfer(senderA, 2, 1000)
	require.NoError(t, s.AddTransaction(a))
	require.NoError(t, s.AddTransaction(b))
	_ = s.AddTransaction(a)
	require.NoError(t, s.RemoveTransaction(a))

	ev := nextEvent(t, ch)
	assert.Equal(t, AddedToPool, ev.Kind)
	assert.Equal(t, a.ID(), ev.Tx.ID())
	assert.Equal(t, AddedToPool, nextEvent(t, ch).Kind)

	ev = nextEvent(t, ch)
	assert.Equal(t, RejectedByPool, ev.Kind)
	assert.ErrorIs(t, ev.Err, ErrAlreadyInPool)

	// Removal reports the latest transaction first.
	ev = nextEvent(t, ch)
	assert.Equal(t, RemovedFromPool, ev.Kind)
	assert.Equal(t, b.ID(), ev.Tx.ID())
	ev = nextEvent(t, ch)
	assert.Equal(t, RemovedFromPool, ev.Kind)
	assert.Equal(t, a.ID(), ev.Tx.ID())
	assert.Equal(t, "removed", ev.Kind.String())
}

func TestServiceStopEndsSubscriptions(t *testing.T) {
	env := newTestEnv()
	s := env.service(memorydb.New(), nil)
	s.Start()

	sub := s.SubscribeEvents(make(chan PoolEvent))
	s.Stop()
	s.Stop()

	select {
	case <-sub.Err():
	case <-time.After(time.Second):
		t.Fatal("subscription not closed by Stop")
	}
	// Emitting after Stop is silently ignored.
	assert.NotPanics(t, func() { _ = s.AddTransaction(transfer(senderA, 1, 1000)) })
}

func gather(t *testing.T, r *metrics.Registry) map[string]float64 {
	t.Helper()
	families, err := r.Gatherer().Gather()
	require.NoError(t, err)

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, l := range m.GetLabel() {
				name += "{" + l.GetName() + "=" + l.GetValue() + "}"
			}
			switch {
			case m.GetCounter() != nil:
				out[name] = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[name] = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				out[name] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func TestServiceMetrics(t *testing.T) {
	env := newTestEnv()
	reg := metrics.NewRegistry()
	s := env.service(memorydb.New(), PrometheusMetrics(reg))
	defer s.Stop()

	a, b := transfer(senderA, 1, 1000), transfer(senderA, 2, 1000)
	require.NoError(t, s.AddTransaction(a))
	require.NoError(t, s.AddTransaction(b))
	_ = s.AddTransaction(a)
	_ = s.AddTransaction(transfer(senderB, 1, 10))
	require.NoError(t, s.AcceptForgedTransaction(a))

	got := gather(t, reg)
	assert.Equal(t, 2.0, got["txpool_pool_added"])
	assert.Equal(t, 2.0, got["txpool_pool_tx_size_bytes"])
	assert.Equal(t, 1.0, got["txpool_pool_rejected{code=ERR_ALREADY_IN_POOL}"])
	assert.Equal(t, 1.0, got["txpool_pool_rejected{code=ERR_LOW_FEE}"])
	assert.Equal(t, 1.0, got["txpool_pool_forged"])
	assert.Equal(t, 1.0, got["txpool_pool_size"])
}
