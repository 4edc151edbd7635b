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
	"sync/atomic"
	"time"
)

// State is a StateStore for a node that follows the chain from outside. The
// height is pushed in with SetHeight, the slot time follows the wall clock.
type State struct {
	height    atomic.Uint64
	blockTime uint64
	epoch     time.Time
	now       func() time.Time
}

// NewState creates a chain state at the given height. blockTime is the block
// time of the current milestone in seconds, epoch is the network's start.
func NewState(height, blockTime uint64, epoch time.Time) *State {
	s := &State{blockTime: blockTime, epoch: epoch, now: time.Now}
	s.height.Store(height)
	return s
}

func (s *State) LastHeight() uint64 { return s.height.Load() }

// SetHeight records a newly confirmed block.
func (s *State) SetHeight(height uint64) { s.height.Store(height) }

func (s *State) BlockTime() uint64 { return s.blockTime }

// SlotTime returns the seconds elapsed since the network epoch, zero before
// the epoch.
func (s *State) SlotTime() uint64 {
	elapsed := s.now().Sub(s.epoch)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / time.Second)
}
