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
	"errors"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/sunyihoo/go-txpool/core/types"
)

// Mempool indexes the sender pools by public key. Senders are created on
// first use and dropped as soon as they hold nothing.
//
// Mempool 以公钥索引各发送者池。发送者在首次使用时创建，一旦为空即被移除，
// 避免长时间运行后大量一次性发送者占用内存。
type Mempool struct {
	env *senderEnv

	mu      sync.Mutex // guards the index only, never held across ledger calls
	senders map[string]*senderPool
	seq     uint64
}

// NewMempool creates an empty mempool.
func NewMempool(config *Config, expiration *ExpirationService, fees *FeeMatcher, handlers HandlerRegistry) *Mempool {
	allowed := mapset.NewThreadUnsafeSet[string](config.AllowedSenders...)
	return &Mempool{
		env: &senderEnv{
			config:     config,
			allowed:    func(pubkey string) bool { return allowed.Contains(pubkey) },
			expiration: expiration,
			fees:       fees,
			handlers:   handlers,
		},
		senders: make(map[string]*senderPool),
	}
}

// acquire looks up the sender pool, optionally creating it, and marks an
// operation as in flight on it.
func (m *Mempool) acquire(pubkey string, create bool) *senderPool {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.senders[pubkey]
	if p == nil {
		if !create {
			return nil
		}
		m.seq++
		p = newSenderPool(m.env, pubkey, m.seq)
		m.senders[pubkey] = p
	}
	p.pending.Add(1)
	return p
}

// release ends an operation and drops the sender from the index if it became
// disposable.
func (m *Mempool) release(p *senderPool) {
	p.pending.Add(-1)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.senders[p.pubkey] == p && p.isDisposable() {
		delete(m.senders, p.pubkey)
	}
}

// AddTransaction routes the transaction to its sender.
func (m *Mempool) AddTransaction(tx *types.Transaction) error {
	p := m.acquire(tx.SenderPublicKey(), true)
	defer m.release(p)

	return p.addTransaction(tx)
}

// RemoveTransaction reverts the transaction and all later ones of the same
// sender. The removed transactions are returned latest first. See
// senderPool.removeTransaction for the failure semantics.
func (m *Mempool) RemoveTransaction(tx *types.Transaction) ([]*types.Transaction, error) {
	p := m.acquire(tx.SenderPublicKey(), false)
	if p == nil {
		return nil, nil
	}
	defer m.release(p)

	return p.removeTransaction(tx.ID())
}

// AcceptForgedTransaction drops the forged transaction and all earlier ones of
// the same sender without reverting them. Unknown transactions yield nothing.
func (m *Mempool) AcceptForgedTransaction(tx *types.Transaction) ([]*types.Transaction, error) {
	p := m.acquire(tx.SenderPublicKey(), false)
	if p == nil {
		return nil, nil
	}
	defer m.release(p)

	accepted, err := p.acceptForgedTransaction(tx)
	if errors.Is(err, ErrTransactionNotInSender) {
		return nil, nil
	}
	return accepted, err
}

// HasSender reports whether the sender is currently indexed.
func (m *Mempool) HasSender(pubkey string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.senders[pubkey]
	return ok
}

// SenderSize returns the number of pooled transactions of one sender.
func (m *Mempool) SenderSize(pubkey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p := m.senders[pubkey]; p != nil {
		return p.size()
	}
	return 0
}

// Size returns the number of pooled transactions. It sums per sender counters
// and never walks transactions.
func (m *Mempool) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int
	for _, p := range m.senders {
		n += p.size()
	}
	return n
}

// Flush drops every sender without reverting anything and resets the pool
// ledger if the registry supports it.
func (m *Mempool) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.senders = make(map[string]*senderPool)
	if r, ok := m.env.handlers.(PoolResetter); ok {
		r.ResetPool()
	}
}

// sender returns the indexed pool of one sender, or nil.
func (m *Mempool) sender(pubkey string) *senderPool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.senders[pubkey]
}

// senderPools returns the indexed senders in creation order.
func (m *Mempool) senderPools() []*senderPool {
	m.mu.Lock()
	pools := make([]*senderPool, 0, len(m.senders))
	for _, p := range m.senders {
		pools = append(pools, p)
	}
	m.mu.Unlock()

	sort.Slice(pools, func(i, j int) bool { return pools[i].seq < pools[j].seq })
	return pools
}
