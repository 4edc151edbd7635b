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
package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunyihoo/go-txpool/core/txpool"
	"github.com/sunyihoo/go-txpool/core/types"
	"github.com/sunyihoo/go-txpool/ethdb/memorydb"
)

type testNode struct {
	manager *Manager
	state   *State
	pool    *txpool.Service
}

func newTestNode(t *testing.T, db *memorydb.Database, manager *Manager) *testNode {
	config := txpool.DefaultConfig
	config.DynamicFees.MinFeePool = 1
	config.DynamicFees.MinFeeBroadcast = 1

	state := NewState(100, 8, time.Now())
	pool := txpool.NewService(config, db, NewRegistry(manager), state, nil)
	t.Cleanup(pool.Stop)
	require.NoError(t, pool.Boot(context.Background()))
	return &testNode{manager: manager, state: state, pool: pool}
}

// Tests the pool against the real ledger: admission, forging and a restart
// that rebuilds the pool view from the confirmed one.
func TestPoolWithLedger(t *testing.T) {
	db := memorydb.New()
	genesis := map[string]*uint256.Int{alice: uint256.NewInt(10_000)}
	node := newTestNode(t, db, NewManager(genesis))

	var txs []*types.Transaction
	for n := uint64(1); n <= 3; n++ {
		tx := transferTx(alice, bob, n, 1000, 1000)
		require.NoError(t, node.pool.AddTransaction(tx))
		txs = append(txs, tx)
	}
	// 4 * 2000 would overdraw the pool view.
	err := node.pool.AddTransaction(transferTx(alice, bob, 4, 1000, 3001))
	assert.ErrorIs(t, err, txpool.ErrFailedToApply)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(4000), node.manager.PoolBalance(alice).Uint64())

	// Forge the first transaction.
	require.NoError(t, node.manager.Commit(txs[0]))
	require.NoError(t, node.pool.AcceptForgedTransaction(txs[0]))
	assert.Equal(t, 2, node.pool.PoolSize())

	// Restart on the same store with a ledger that only knows the chain.
	restarted := NewManager(genesis)
	require.NoError(t, restarted.Commit(txs[0]))
	node2 := newTestNode(t, db, restarted)
	assert.Equal(t, 2, node2.pool.PoolSize())
	assert.Equal(t, uint64(3), restarted.PoolNonce(alice))
	assert.Equal(t, uint64(4000), restarted.PoolBalance(alice).Uint64())

	// Removing the middle transaction reverts both pooled ones.
	require.NoError(t, node2.pool.RemoveTransaction(txs[1]))
	assert.Zero(t, node2.pool.PoolSize())
	assert.Equal(t, uint64(1), restarted.PoolNonce(alice))
	assert.Equal(t, uint64(8000), restarted.PoolBalance(alice).Uint64())
}

// Tests that replaying the pool rebuilds recipients from the confirmed view
// too, so pooled credits are not counted twice.
func TestPoolReaddKeepsRecipientBalance(t *testing.T) {
	genesis := map[string]*uint256.Int{alice: uint256.NewInt(10_000)}
	node := newTestNode(t, memorydb.New(), NewManager(genesis))

	require.NoError(t, node.pool.AddTransaction(transferTx(alice, bob, 1, 1000, 1000)))
	assert.Equal(t, uint64(1000), node.manager.PoolBalance(bob).Uint64())

	for i := 0; i < 2; i++ {
		require.NoError(t, node.pool.ReaddTransactions(context.Background(), nil))
		assert.Equal(t, 1, node.pool.PoolSize())
		assert.Equal(t, uint64(1000), node.manager.PoolBalance(bob).Uint64(), "readd %d", i)
		assert.Equal(t, uint64(8000), node.manager.PoolBalance(alice).Uint64(), "readd %d", i)
	}
	assert.Zero(t, node.manager.Balance(bob).Uint64())
}

// Tests that a sender leaving the pool keeps the credits other pooled
// transfers gave it.
func TestPoolDisposalKeepsIncomingCredit(t *testing.T) {
	genesis := map[string]*uint256.Int{alice: uint256.NewInt(10_000)}
	node := newTestNode(t, memorydb.New(), NewManager(genesis))

	incoming := transferTx(alice, bob, 1, 1000, 5000)
	require.NoError(t, node.pool.AddTransaction(incoming))

	own := transferTx(bob, alice, 1, 1000, 1001)
	require.NoError(t, node.pool.AddTransaction(own))
	require.NoError(t, node.pool.RemoveTransaction(own))
	assert.Equal(t, uint64(5000), node.manager.PoolBalance(bob).Uint64())
	assert.Zero(t, node.manager.PoolNonce(bob))

	// Bob can spend the credit again, and dropping it restores both sides.
	require.NoError(t, node.pool.AddTransaction(own))
	require.NoError(t, node.pool.RemoveTransaction(own))
	require.NoError(t, node.pool.RemoveTransaction(incoming))
	assert.Zero(t, node.pool.PoolSize())
	assert.Zero(t, node.manager.PoolBalance(bob).Uint64())
	assert.Equal(t, uint64(10_000), node.manager.PoolBalance(alice).Uint64())
	assert.Zero(t, node.manager.PoolNonce(alice))
}
