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
	"sync"
	"sync/atomic"

	"github.com/sunyihoo/go-txpool/core/types"
)

// senderPool serialises all mutations of one sender. Operations of different
// senders run in parallel.
//
// senderPool 串行化同一发送者的所有变更操作，不同发送者之间完全并行。
type senderPool struct {
	pubkey string
	seq    uint64 // creation order within the mempool, used for stable iteration

	lock  sync.Mutex
	state *senderState
	count atomic.Int32 // len(state.txs), readable without the lock

	// pending counts operations that looked the pool up in the mempool index
	// but have not finished yet. It is only incremented under the index lock,
	// so a zero value seen under that lock means no operation can be racing.
	pending atomic.Int32
}

func newSenderPool(env *senderEnv, pubkey string, seq uint64) *senderPool {
	return &senderPool{
		pubkey: pubkey,
		seq:    seq,
		state:  newSenderState(env, pubkey),
	}
}

// addTransaction applies the transaction and appends it to the sender's list.
func (p *senderPool) addTransaction(tx *types.Transaction) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if err := p.state.apply(tx); err != nil {
		return err
	}
	p.count.Store(int32(len(p.state.txs)))
	return nil
}

// removeTransaction reverts the transaction with the given id and every later
// one, returning them latest first. An unknown id is not an error.
//
// If any revert fails the sender's ledger position is unknown, so all its
// remaining transactions are dropped as well. Everything dropped is returned
// together with the revert error.
func (p *senderPool) removeTransaction(id string) ([]*types.Transaction, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	defer func() { p.count.Store(int32(len(p.state.txs))) }()

	idx := p.state.indexOf(id)
	if idx < 0 {
		return nil, nil
	}
	removed, err := p.state.remove(p.state.txs[idx])
	if err != nil {
		p.state.log.Warn("Flushing sender after failed revert", "id", id, "reverted", len(removed), "dropped", len(p.state.txs), "err", err)
		return append(removed, p.state.drop()...), err
	}
	return removed, nil
}

// acceptForgedTransaction drops the forged transaction and all earlier ones
// without reverting them.
func (p *senderPool) acceptForgedTransaction(tx *types.Transaction) ([]*types.Transaction, error) {
	p.lock.Lock()
	defer p.lock.Unlock()
	defer func() { p.count.Store(int32(len(p.state.txs))) }()

	return p.state.accept(tx)
}

// isDisposable reports whether the sender holds nothing and no operation is
// in flight. Must be called with the mempool index lock held.
func (p *senderPool) isDisposable() bool {
	return p.pending.Load() == 0 && p.count.Load() == 0
}

// size returns the number of pooled transactions of the sender.
func (p *senderPool) size() int {
	return int(p.count.Load())
}

// fromEarliest returns a snapshot of the transactions in nonce order.
func (p *senderPool) fromEarliest() []*types.Transaction {
	p.lock.Lock()
	defer p.lock.Unlock()
	return append([]*types.Transaction(nil), p.state.txs...)
}

// fromLatest returns a snapshot of the transactions in reverse nonce order.
func (p *senderPool) fromLatest() []*types.Transaction {
	p.lock.Lock()
	defer p.lock.Unlock()

	txs := make([]*types.Transaction, 0, len(p.state.txs))
	for i := len(p.state.txs) - 1; i >= 0; i-- {
		txs = append(txs, p.state.txs[i])
	}
	return txs
}
