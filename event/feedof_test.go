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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedOfSendToAll(t *testing.T) {
	var (
		feed FeedOf[int]
		chA  = make(chan int, 4)
		chB  = make(chan int, 4)
	)
	subA := feed.Subscribe(chA)
	subB := feed.Subscribe(chB)
	defer subA.Unsubscribe()
	defer subB.Unsubscribe()

	assert.Equal(t, 2, feed.Send(1))
	assert.Equal(t, 2, feed.Send(2))
	assert.Equal(t, []int{1, 2}, []int{<-chA, <-chA})
	assert.Equal(t, []int{1, 2}, []int{<-chB, <-chB})
}

func TestFeedOfUnsubscribe(t *testing.T) {
	var feed FeedOf[string]
	ch := make(chan string, 1)
	sub := feed.Subscribe(ch)
	require.Equal(t, 1, feed.Len())

	sub.Unsubscribe()
	sub.Unsubscribe() // second call is a no-op
	assert.Equal(t, 0, feed.Len())
	assert.Equal(t, 0, feed.Send("dropped"))

	_, ok := <-sub.Err()
	assert.False(t, ok, "error channel should be closed")
}

func TestFeedOfUnsubscribeUnblocksSend(t *testing.T) {
	var feed FeedOf[int]
	ch := make(chan int) // unbuffered, never read
	sub := feed.Subscribe(ch)

	done := make(chan int)
	go func() { done <- feed.Send(7) }()

	time.Sleep(20 * time.Millisecond)
	sub.Unsubscribe()

	select {
	case n := <-done:
		assert.Equal(t, 0, n)
	case <-time.After(time.Second):
		t.Fatal("Send did not return after unsubscribe")
	}
}

func TestFeedOfClose(t *testing.T) {
	var feed FeedOf[int]
	sub := feed.Subscribe(make(chan int, 1))
	feed.Close()

	err, ok := <-sub.Err()
	require.True(t, ok)
	assert.ErrorIs(t, err, errFeedClosed)

	late := feed.Subscribe(make(chan int, 1))
	err = <-late.Err()
	assert.ErrorIs(t, err, errFeedClosed)
	late.Unsubscribe()
}

func TestFeedOfConcurrentSend(t *testing.T) {
	var (
		feed  FeedOf[int]
		ch    = make(chan int, 100)
		wg    sync.WaitGroup
		total int
	)
	sub := feed.Subscribe(ch)
	defer sub.Unsubscribe()

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				feed.Send(1)
			}
		}()
	}
	wg.Wait()
	close(ch)
	for v := range ch {
		total += v
	}
	assert.Equal(t, 100, total)
}

func TestSubscriptionScope(t *testing.T) {
	var (
		feed  FeedOf[int]
		scope SubscriptionScope
	)
	s1 := scope.Track(feed.Subscribe(make(chan int, 1)))
	scope.Track(feed.Subscribe(make(chan int, 1)))
	assert.Equal(t, 2, scope.Count())

	s1.Unsubscribe()
	assert.Equal(t, 1, scope.Count())

	scope.Close()
	assert.Equal(t, 0, scope.Count())
	assert.Equal(t, 0, feed.Len())
	assert.Nil(t, scope.Track(feed.Subscribe(make(chan int, 1))))
}
