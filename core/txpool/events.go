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
	"time"

	"github.com/sunyihoo/go-txpool/core/types"
	"github.com/sunyihoo/go-txpool/event"
	"github.com/sunyihoo/go-txpool/log"
	"golang.org/x/time/rate"
)

// EventKind classifies pool lifecycle events.
type EventKind uint8

const (
	AddedToPool EventKind = iota
	RejectedByPool
	RemovedFromPool
	Expired
)

func (k EventKind) String() string {
	switch k {
	case AddedToPool:
		return "added"
	case RejectedByPool:
		return "rejected"
	case RemovedFromPool:
		return "removed"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// PoolEvent is posted whenever a transaction enters or leaves the pool. Err
// is only set for rejections.
type PoolEvent struct {
	Kind EventKind
	Tx   *types.Transaction
	Err  error
}

// dispatcher decouples event emission from delivery. Emitters never block:
// events are queued and one goroutine feeds them to the subscribers. If the
// queue is full the event is dropped.
//
// dispatcher 将事件的产生与投递解耦，发送方从不阻塞。队列满时丢弃事件。
type dispatcher struct {
	feed  event.FeedOf[PoolEvent]
	scope event.SubscriptionScope // Subscription scope to unsubscribe all on shutdown
	queue chan PoolEvent
	quit  chan struct{}
	wg    sync.WaitGroup

	dropped  atomic.Uint64
	dropWarn *rate.Limiter // throttles the queue full warning

	closeOnce sync.Once
}

func newDispatcher(size int) *dispatcher {
	d := &dispatcher{
		queue:    make(chan PoolEvent, size),
		quit:     make(chan struct{}),
		dropWarn: rate.NewLimiter(rate.Every(8*time.Second), 1),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case ev := <-d.queue:
			d.feed.Send(ev)
		case <-d.quit:
			return
		}
	}
}

// emit queues an event without blocking.
func (d *dispatcher) emit(kind EventKind, tx *types.Transaction, err error) {
	select {
	case <-d.quit:
		return
	default:
	}
	select {
	case d.queue <- PoolEvent{Kind: kind, Tx: tx, Err: err}:
	default:
		dropped := d.dropped.Add(1)
		if d.dropWarn.Allow() {
			log.Warn("Dropping pool event, queue full", "kind", kind, "id", tx.ID(), "dropped", dropped)
		}
	}
}

func (d *dispatcher) subscribe(ch chan<- PoolEvent) event.Subscription {
	sub := d.feed.Subscribe(ch)
	if tracked := d.scope.Track(sub); tracked != nil {
		return tracked
	}
	// Closed already, the feed ended the subscription.
	return sub
}

// close stops delivery and ends every subscription. Queued events that were
// not delivered yet are discarded.
func (d *dispatcher) close() {
	d.closeOnce.Do(func() {
		// Closing the feed first releases a Send blocked on a slow subscriber.
		d.feed.Close()
		close(d.quit)
		d.wg.Wait()
		d.scope.Close()
	})
}
