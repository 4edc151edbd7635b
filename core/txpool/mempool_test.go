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
	"fmt"
	"sync"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunyihoo/go-txpool/core/types"
)

// Tests that a sender's transactions stay in submission order, which is also
// ascending nonce order.
func TestSenderNonceOrder(t *testing.T) {
	env := newTestEnv()
	m := env.mempool()

	mustAdd(t, m, transfer(senderA, 1, 500), transfer(senderA, 2, 300), transfer(senderA, 3, 900))
	assert.Equal(t, []uint64{1, 2, 3}, noncesOf(m.sender(senderA).fromEarliest()))
	assert.Equal(t, []uint64{3, 2, 1}, noncesOf(m.sender(senderA).fromLatest()))

	// A gap is rejected by the ledger and leaves the list untouched.
	err := m.AddTransaction(transfer(senderA, 5, 500))
	assert.ErrorIs(t, err, ErrFailedToApply)
	assert.Equal(t, "ERR_APPLY", ErrorCode(err))
	assert.Equal(t, []uint64{1, 2, 3}, noncesOf(m.sender(senderA).fromEarliest()))
	assert.Equal(t, 3, m.Size())
}

func TestSenderApplyChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(env *testEnv)
		tx     func() *types.Transaction
		kind   error
	}{
		{
			name:   "expired",
			mutate: func(env *testEnv) {},
			tx:     func() *types.Transaction { return expiring(senderA, 1, 1000, 50) },
			kind:   ErrExpired,
		},
		{
			name:   "too large",
			mutate: func(env *testEnv) { env.config.MaxTransactionBytes = 64 },
			tx:     func() *types.Transaction { return transfer(senderA, 1, 1000) },
			kind:   ErrExceedsMaxByteSize,
		},
		{
			name:   "low fee",
			mutate: func(env *testEnv) {},
			tx:     func() *types.Transaction { return transfer(senderA, 1, 10) },
			kind:   ErrLowFee,
		},
		{
			name:   "handler refuses",
			mutate: func(env *testEnv) {},
			tx: func() *types.Transaction {
				return types.MustNewTx(&types.TxData{
					Version:         2,
					TypeGroup:       types.CoreTypeGroup,
					SenderPublicKey: senderA,
					Nonce:           uint256.NewInt(1),
					Fee:             uint256.NewInt(1000),
				})
			},
			kind: ErrFailedToApply,
		},
		{
			name:   "insufficient balance",
			mutate: func(env *testEnv) { env.ledger.balances[senderA] = 500 },
			tx:     func() *types.Transaction { return transfer(senderA, 1, 1000) },
			kind:   ErrFailedToApply,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			tt.mutate(env)
			m := env.mempool()

			err := m.AddTransaction(tt.tx())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.Zero(t, m.Size())
			assert.False(t, m.HasSender(senderA), "failed first add must not leave a sender behind")
			assert.Zero(t, env.ledger.nonce(senderA))
		})
	}
}

func TestSenderMaxCount(t *testing.T) {
	env := newTestEnv()
	env.config.MaxTransactionsPerSender = 2
	env.config.AllowedSenders = []string{senderB}
	m := env.mempool()

	mustAdd(t, m, transfer(senderA, 1, 1000), transfer(senderA, 2, 1000))
	err := m.AddTransaction(transfer(senderA, 3, 1000))
	assert.ErrorIs(t, err, ErrExceedsMaxCount)
	assert.Equal(t, "ERR_EXCEEDS_MAX_COUNT", ErrorCode(err))

	// Allowed senders are exempt.
	for i := uint64(1); i <= 4; i++ {
		mustAdd(t, m, transfer(senderB, i, 1000))
	}
	assert.Equal(t, 4, m.SenderSize(senderB))
}

// Tests that removing a transaction reverts it and every later one, latest
// first.
func TestRemoveCascade(t *testing.T) {
	env := newTestEnv()
	m := env.mempool()

	a, b, c := transfer(senderA, 1, 1000), transfer(senderA, 2, 1000), transfer(senderA, 3, 1000)
	mustAdd(t, m, a, b, c)

	removed, err := m.RemoveTransaction(b)
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID(), b.ID()}, types.Transactions(removed).IDs())
	assert.Equal(t, []string{c.ID(), b.ID()}, env.ledger.reverted())
	assert.Equal(t, []string{a.ID()}, types.Transactions(m.sender(senderA).fromEarliest()).IDs())
	assert.Equal(t, uint64(1), env.ledger.nonce(senderA))
	assert.Equal(t, 1, m.Size())

	// Unknown transactions and unknown senders are not errors.
	removed, err = m.RemoveTransaction(c)
	assert.NoError(t, err)
	assert.Empty(t, removed)
	removed, err = m.RemoveTransaction(transfer(senderC, 1, 1000))
	assert.NoError(t, err)
	assert.Empty(t, removed)
}

// Tests that a failed revert flushes the whole sender and reports everything
// that was dropped along with the error.
func TestRemoveRevertFailureFlushesSender(t *testing.T) {
	env := newTestEnv()
	m := env.mempool()

	a, b, c := transfer(senderA, 1, 1000), transfer(senderA, 2, 1000), transfer(senderA, 3, 1000)
	mustAdd(t, m, a, b, c)
	env.ledger.setFailRevert(b.ID())

	removed, err := m.RemoveTransaction(a)
	require.Error(t, err)
	assert.Equal(t, []string{c.ID(), b.ID(), a.ID()}, types.Transactions(removed).IDs())
	assert.Equal(t, []string{c.ID()}, env.ledger.reverted())
	assert.Zero(t, m.Size())
	assert.False(t, m.HasSender(senderA))
}

// Tests that forged transactions leave the pool with everything before them
// and without touching the ledger.
func TestAcceptForged(t *testing.T) {
	env := newTestEnv()
	m := env.mempool()

	a, b, c := transfer(senderA, 1, 1000), transfer(senderA, 2, 1000), transfer(senderA, 3, 1000)
	mustAdd(t, m, a, b, c)

	accepted, err := m.AcceptForgedTransaction(b)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID(), b.ID()}, types.Transactions(accepted).IDs())
	assert.Empty(t, env.ledger.reverted())
	assert.Equal(t, []string{c.ID()}, types.Transactions(m.sender(senderA).fromEarliest()).IDs())
	assert.Equal(t, uint64(3), env.ledger.nonce(senderA))

	accepted, err = m.AcceptForgedTransaction(a)
	assert.NoError(t, err)
	assert.Empty(t, accepted)

	accepted, err = m.AcceptForgedTransaction(c)
	require.NoError(t, err)
	assert.Len(t, accepted, 1)
	assert.False(t, m.HasSender(senderA))
}

// Tests that an emptied sender is dropped from the index and comes back
// fresh, with no per-sender quota consumed.
func TestSenderDisposal(t *testing.T) {
	env := newTestEnv()
	env.config.MaxTransactionsPerSender = 2
	m := env.mempool()

	a, b := transfer(senderA, 1, 1000), transfer(senderA, 2, 1000)
	mustAdd(t, m, a, b)
	_, err := m.RemoveTransaction(a)
	require.NoError(t, err)
	assert.False(t, m.HasSender(senderA))
	assert.Zero(t, m.SenderSize(senderA))
	assert.Zero(t, env.ledger.resets, "disposal leaves the ledger alone")

	mustAdd(t, m, transfer(senderA, 1, 2000), transfer(senderA, 2, 2000))
	assert.Equal(t, 2, m.SenderSize(senderA))
}

func TestMempoolFlush(t *testing.T) {
	env := newTestEnv()
	m := env.mempool()

	mustAdd(t, m, transfer(senderA, 1, 1000), transfer(senderB, 1, 1000))
	assert.Equal(t, 2, m.Size())
	m.Flush()
	assert.Zero(t, m.Size())
	assert.False(t, m.HasSender(senderA))
	assert.Empty(t, env.ledger.reverted(), "flush never reverts")
	assert.Equal(t, 1, env.ledger.resets)
	assert.Zero(t, env.ledger.nonce(senderA))
	assert.Zero(t, env.ledger.nonce(senderB))
}

// Tests that concurrent first transactions of many senders, and concurrent
// add/remove churn on one sender, keep the index and the size consistent.
func TestMempoolConcurrentSenders(t *testing.T) {
	env := newTestEnv()
	env.config.MaxTransactionsPerSender = 100
	m := env.mempool()

	var (
		senders = 16
		perTx   = 10
		wg      sync.WaitGroup
	)
	for i := 0; i < senders; i++ {
		sender := fmt.Sprintf("02%064x", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := 1; n <= perTx; n++ {
				if err := m.AddTransaction(transfer(sender, uint64(n), 1000)); err != nil {
					t.Errorf("sender %s nonce %d: %v", sender, n, err)
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, senders*perTx, m.Size())
	assert.Len(t, m.senderPools(), senders)

	// Same sender churn: add and remove the first transaction repeatedly.
	for round := 0; round < 50; round++ {
		tx := transfer(senderC, 1, uint64(1000+round))
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = m.AddTransaction(tx)
		}()
		go func() {
			defer wg.Done()
			_, _ = m.RemoveTransaction(tx)
		}()
		wg.Wait()
		_, err := m.RemoveTransaction(tx)
		require.NoError(t, err)
		require.False(t, m.HasSender(senderC), "round %d", round)
	}
	assert.Equal(t, senders*perTx, m.Size())
}
