// Copyright 2022 The go-ethereum Authors
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

package event

import (
	"errors"
	"sync"
)

// errFeedClosed is reported on the error channel of subscriptions that were
// still active when the feed was closed.
var errFeedClosed = errors.New("event: feed closed")

// FeedOf implements one-to-many subscriptions where the carrier of events is a channel.
// Values sent to a Feed are delivered to all subscribed channels simultaneously.
//
// The zero value is ready to use.
//
// FeedOf 实现一对多的订阅，事件通过通道传递。Send 按订阅顺序逐个投递，
// 慢速订阅者会阻塞 Send，直到其接收或取消订阅。
type FeedOf[T any] struct {
	sendLock sync.Mutex // serialises Send so every subscriber sees the same order

	mu     sync.Mutex
	subs   []*feedOfSub[T]
	closed bool
}

type feedOfSub[T any] struct {
	feed    *FeedOf[T]
	channel chan<- T
	quit    chan struct{}
	errOnce sync.Once
	err     chan error
}

// Subscribe adds a channel to the feed. Future sends will be delivered on the channel
// until the subscription is canceled.
//
// The channel should have ample buffer space to avoid blocking other subscribers. Slow
// subscribers are not dropped.
func (f *FeedOf[T]) Subscribe(channel chan<- T) Subscription {
	sub := &feedOfSub[T]{
		feed:    f,
		channel: channel,
		quit:    make(chan struct{}),
		err:     make(chan error, 1),
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		sub.err <- errFeedClosed
		sub.errOnce.Do(func() { close(sub.quit); close(sub.err) })
		return sub
	}
	f.subs = append(f.subs, sub)
	return sub
}

func (f *FeedOf[T]) remove(sub *feedOfSub[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i, s := range f.subs {
		if s == sub {
			f.subs = append(f.subs[:i:i], f.subs[i+1:]...)
			return
		}
	}
}

// Send delivers to all subscribed channels simultaneously.
// It returns the number of subscribers that the value was sent to.
func (f *FeedOf[T]) Send(value T) (nsent int) {
	f.sendLock.Lock()
	defer f.sendLock.Unlock()

	f.mu.Lock()
	subs := append([]*feedOfSub[T](nil), f.subs...)
	f.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.channel <- value:
			nsent++
		case <-sub.quit:
		}
	}
	return nsent
}

// Len returns the number of active subscriptions.
func (f *FeedOf[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close terminates every active subscription with an error and makes later
// Subscribe calls fail immediately.
func (f *FeedOf[T]) Close() {
	f.mu.Lock()
	subs := f.subs
	f.subs, f.closed = nil, true
	f.mu.Unlock()

	for _, sub := range subs {
		sub.errOnce.Do(func() {
			close(sub.quit)
			sub.err <- errFeedClosed
			close(sub.err)
		})
	}
}

func (sub *feedOfSub[T]) Unsubscribe() {
	sub.errOnce.Do(func() {
		close(sub.quit)
		sub.feed.remove(sub)
		close(sub.err)
	})
}

func (sub *feedOfSub[T]) Err() <-chan error {
	return sub.err
}
