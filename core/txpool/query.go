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
	"container/heap"

	"github.com/sunyihoo/go-txpool/core/types"
)

// Iterable is a lazy, restartable sequence of pooled transactions. Every call
// re-reads the mempool, so two walks of the same Iterable may differ if the
// pool changed in between.
//
// Iterable 是惰性且可重复遍历的交易序列，每次调用都会重新读取内存池。
type Iterable func(yield func(*types.Transaction) bool)

// Query builds read-only views over a mempool.
type Query struct {
	mempool *Mempool
}

// NewQuery creates a query view over the mempool.
func NewQuery(mempool *Mempool) *Query {
	return &Query{mempool: mempool}
}

// All yields senders in insertion order, each sender's transactions earliest
// nonce first.
func (q *Query) All() Iterable {
	return func(yield func(*types.Transaction) bool) {
		for _, p := range q.mempool.senderPools() {
			for _, tx := range p.fromEarliest() {
				if !yield(tx) {
					return
				}
			}
		}
	}
}

// AllFromSender yields the transactions of one sender, earliest nonce first.
func (q *Query) AllFromSender(pubkey string) Iterable {
	return func(yield func(*types.Transaction) bool) {
		p := q.mempool.sender(pubkey)
		if p == nil {
			return
		}
		for _, tx := range p.fromEarliest() {
			if !yield(tx) {
				return
			}
		}
	}
}

// AllFromLowestPriority yields every transaction by ascending fee. Each
// sender is walked from its latest transaction, the one that can be evicted
// without breaking the sender's nonce sequence.
func (q *Query) AllFromLowestPriority() Iterable {
	return q.merged(func(a, b *types.Transaction) bool { return a.FeeCmp(b) < 0 }, true)
}

// AllFromHighestPriority yields every transaction by descending fee. Each
// sender is walked from its earliest transaction, so a sender's later
// transaction is never yielded before its earlier one.
func (q *Query) AllFromHighestPriority() Iterable {
	return q.merged(func(a, b *types.Transaction) bool { return a.FeeCmp(b) > 0 }, false)
}

// merged is a k-way merge over per-sender snapshots.
func (q *Query) merged(before func(a, b *types.Transaction) bool, latest bool) Iterable {
	return func(yield func(*types.Transaction) bool) {
		pools := q.mempool.senderPools()
		h := &cursorHeap{before: before, cursors: make([]*cursor, 0, len(pools))}
		for i, p := range pools {
			var txs []*types.Transaction
			if latest {
				txs = p.fromLatest()
			} else {
				txs = p.fromEarliest()
			}
			if len(txs) > 0 {
				h.cursors = append(h.cursors, &cursor{order: i, txs: txs})
			}
		}
		heap.Init(h)

		for h.Len() > 0 {
			c := h.cursors[0]
			if !yield(c.txs[c.pos]) {
				return
			}
			c.pos++
			if c.pos == len(c.txs) {
				heap.Pop(h)
			} else {
				heap.Fix(h, 0)
			}
		}
	}
}

// cursor walks one sender's snapshot.
type cursor struct {
	order int // position of the sender in insertion order, breaks fee ties
	txs   []*types.Transaction
	pos   int
}

type cursorHeap struct {
	before  func(a, b *types.Transaction) bool
	cursors []*cursor
}

func (h *cursorHeap) Len() int { return len(h.cursors) }

func (h *cursorHeap) Less(i, j int) bool {
	a, b := h.cursors[i], h.cursors[j]
	ta, tb := a.txs[a.pos], b.txs[b.pos]
	if h.before(ta, tb) {
		return true
	}
	if h.before(tb, ta) {
		return false
	}
	return a.order < b.order
}

func (h *cursorHeap) Swap(i, j int) { h.cursors[i], h.cursors[j] = h.cursors[j], h.cursors[i] }

func (h *cursorHeap) Push(x any) { h.cursors = append(h.cursors, x.(*cursor)) }

func (h *cursorHeap) Pop() any {
	old := h.cursors
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	h.cursors = old[:n-1]
	return c
}

// Where keeps the transactions matching the predicate.
func (it Iterable) Where(match func(*types.Transaction) bool) Iterable {
	return func(yield func(*types.Transaction) bool) {
		it(func(tx *types.Transaction) bool {
			if !match(tx) {
				return true
			}
			return yield(tx)
		})
	}
}

// WhereID keeps the transaction with the given id.
func (it Iterable) WhereID(id string) Iterable {
	return it.Where(func(tx *types.Transaction) bool { return tx.ID() == id })
}

// WhereType keeps transactions of the given type.
func (it Iterable) WhereType(typ uint16) Iterable {
	return it.Where(func(tx *types.Transaction) bool { return tx.Type() == typ })
}

// WhereTypeGroup keeps transactions of the given type group.
func (it Iterable) WhereTypeGroup(group uint32) Iterable {
	return it.Where(func(tx *types.Transaction) bool { return tx.TypeGroup() == group })
}

// WhereVersion keeps transactions of the given version.
func (it Iterable) WhereVersion(version uint8) Iterable {
	return it.Where(func(tx *types.Transaction) bool { return tx.Version() == version })
}

// WhereKind keeps transactions of the same kind (type, type group and
// version) as the given one.
func (it Iterable) WhereKind(kind *types.Transaction) Iterable {
	return it.Where(func(tx *types.Transaction) bool {
		return tx.Type() == kind.Type() && tx.TypeGroup() == kind.TypeGroup() && tx.Version() == kind.Version()
	})
}

// Has reports whether the sequence yields anything.
func (it Iterable) Has() bool {
	var found bool
	it(func(*types.Transaction) bool {
		found = true
		return false
	})
	return found
}

// First returns the first transaction of the sequence, or ErrNotFound.
func (it Iterable) First() (*types.Transaction, error) {
	var first *types.Transaction
	it(func(tx *types.Transaction) bool {
		first = tx
		return false
	})
	if first == nil {
		return nil, ErrNotFound
	}
	return first, nil
}

// Slice materialises the sequence.
func (it Iterable) Slice() []*types.Transaction {
	var txs []*types.Transaction
	it(func(tx *types.Transaction) bool {
		txs = append(txs, tx)
		return true
	})
	return txs
}
