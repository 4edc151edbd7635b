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

// Package wallet implements the reference ledger behind the transaction pool:
// confirmed balances and nonces, a pool projection on top of them and the
// transfer handler that mutates it.
package wallet

import (
	"sync"

	"github.com/holiman/uint256"
	"github.com/sunyihoo/go-txpool/core/types"
	"github.com/sunyihoo/go-txpool/log"
)

// account is the ledger entry of one public key.
type account struct {
	nonce   uint64
	balance *uint256.Int
}

func newAccount() *account {
	return &account{balance: new(uint256.Int)}
}

func (a *account) copy() *account {
	return &account{nonce: a.nonce, balance: new(uint256.Int).Set(a.balance)}
}

// Manager keeps two views of every wallet. The confirmed view only changes
// when a block is committed. The pool view starts as a copy of the confirmed
// one and absorbs every transaction the pool applies.
//
// Manager 维护两份钱包视图：确认视图只在提交区块时变化；池视图从确认视图复制而来，
// 并叠加交易池中已应用的交易。
type Manager struct {
	mu        sync.Mutex
	confirmed map[string]*account
	pool      map[string]*account
}

// NewManager creates a ledger seeded with the given genesis balances.
func NewManager(genesis map[string]*uint256.Int) *Manager {
	m := &Manager{
		confirmed: make(map[string]*account, len(genesis)),
		pool:      make(map[string]*account),
	}
	for pubkey, balance := range genesis {
		acc := newAccount()
		acc.balance.Set(balance)
		m.confirmed[pubkey] = acc
	}
	log.Debug("Seeded wallet ledger", "accounts", len(genesis))
	return m
}

// Balance returns the confirmed balance of a wallet.
func (m *Manager) Balance(pubkey string) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acc, ok := m.confirmed[pubkey]; ok {
		return new(uint256.Int).Set(acc.balance)
	}
	return new(uint256.Int)
}

// Nonce returns the confirmed nonce of a wallet, the nonce of its last
// confirmed transaction.
func (m *Manager) Nonce(pubkey string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acc, ok := m.confirmed[pubkey]; ok {
		return acc.nonce
	}
	return 0
}

// PoolBalance returns the balance of a wallet with pooled transactions applied.
func (m *Manager) PoolBalance(pubkey string) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(uint256.Int).Set(m.poolAccount(pubkey).balance)
}

// PoolNonce returns the nonce of the last pooled transaction of a wallet, or
// the confirmed nonce if it has none.
func (m *Manager) PoolNonce(pubkey string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.poolAccount(pubkey).nonce
}

// poolAccount returns the pool view of a wallet, creating it from the
// confirmed view on first use. m.mu must be held.
func (m *Manager) poolAccount(pubkey string) *account {
	if acc, ok := m.pool[pubkey]; ok {
		return acc
	}
	acc := newAccount()
	if confirmed, ok := m.confirmed[pubkey]; ok {
		acc = confirmed.copy()
	}
	m.pool[pubkey] = acc
	return acc
}

// confirmedAccount returns the confirmed view of a wallet, creating an empty
// one if needed. m.mu must be held.
func (m *Manager) confirmedAccount(pubkey string) *account {
	acc, ok := m.confirmed[pubkey]
	if !ok {
		acc = newAccount()
		m.confirmed[pubkey] = acc
	}
	return acc
}

// ResetPool drops the whole pool view. The next pool access of any wallet
// rebuilds it from the confirmed view. Single wallets are never reset on
// their own, a wallet's pool balance also holds credits from transfers of
// other senders that are still pooled.
//
// ResetPool 丢弃整个池视图，之后每个钱包都从确认视图重建。
func (m *Manager) ResetPool() {
	m.mu.Lock()
	defer m.mu.Unlock()

	log.Debug("Reset wallet pool view", "accounts", len(m.pool))
	m.pool = make(map[string]*account)
}

// Commit applies a transfer to the confirmed view, as a committed block
// would. The pool view is left alone, it already contains the transaction
// if the pool held it.
func (m *Manager) Commit(tx *types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return transfer(m.confirmedAccount, tx)
}

// transfer checks and moves funds between the accounts returned by lookup.
// lookup is either the confirmed or the pool view.
func transfer(lookup func(string) *account, tx *types.Transaction) error {
	sender := lookup(tx.SenderPublicKey())
	if err := checkNonce(sender, tx); err != nil {
		return err
	}
	cost, err := transferCost(tx)
	if err != nil {
		return err
	}
	if sender.balance.Lt(cost) {
		return newInsufficientBalanceError(tx, sender.balance, cost)
	}
	sender.nonce++
	sender.balance.Sub(sender.balance, cost)

	recipient := lookup(tx.Recipient())
	recipient.balance.Add(recipient.balance, tx.Amount())
	return nil
}

// untransfer undoes transfer on the same view.
func untransfer(lookup func(string) *account, tx *types.Transaction) error {
	sender := lookup(tx.SenderPublicKey())
	if !tx.Nonce().Eq(uint256.NewInt(sender.nonce)) {
		return newNonceError(tx, sender.nonce)
	}
	cost, err := transferCost(tx)
	if err != nil {
		return err
	}
	recipient := lookup(tx.Recipient())
	if recipient.balance.Lt(tx.Amount()) {
		return newInsufficientBalanceError(tx, recipient.balance, tx.Amount())
	}
	recipient.balance.Sub(recipient.balance, tx.Amount())

	sender.nonce--
	sender.balance.Add(sender.balance, cost)
	return nil
}

func checkNonce(sender *account, tx *types.Transaction) error {
	want := new(uint256.Int).AddUint64(uint256.NewInt(sender.nonce), 1)
	if !tx.Nonce().Eq(want) {
		return newNonceError(tx, sender.nonce)
	}
	return nil
}

// transferCost returns fee plus amount.
func transferCost(tx *types.Transaction) (*uint256.Int, error) {
	cost, overflow := new(uint256.Int).AddOverflow(tx.Fee(), tx.Amount())
	if overflow {
		return nil, ErrCostOverflow
	}
	return cost, nil
}
