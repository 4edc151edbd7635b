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
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/sunyihoo/go-txpool/core/types"
)

func legacy(timestamp uint32) *types.Transaction {
	return types.MustNewTx(&types.TxData{
		Version:         1,
		TypeGroup:       types.CoreTypeGroup,
		Type:            types.TransferType,
		SenderPublicKey: senderA,
		Nonce:           uint256.NewInt(1),
		Timestamp:       timestamp,
	})
}

func TestExpirationExplicitHeight(t *testing.T) {
	state := newTestState(100)
	svc := NewExpirationService(&Config{MaxTransactionAge: 2700}, state)

	tests := []struct {
		expiration uint32
		canExpire  bool
		expired    bool
	}{
		{0, false, false},
		{50, true, true},
		{100, true, true},
		{101, true, true}, // cannot make it into block 101 anymore
		{102, true, false},
	}
	for _, tt := range tests {
		tx := expiring(senderA, 1, 1000, tt.expiration)
		assert.Equal(t, tt.canExpire, svc.CanExpire(tx), "expiration %d", tt.expiration)
		assert.Equal(t, tt.expired, svc.IsExpired(tx), "expiration %d", tt.expiration)
		if tt.canExpire {
			assert.Equal(t, int64(tt.expiration), svc.ExpirationHeight(tx))
		}
	}
}

func TestExpirationLegacy(t *testing.T) {
	state := newTestState(100)
	state.blockTime.Store(8)
	state.slotTime.Store(8000)
	svc := NewExpirationService(&Config{MaxTransactionAge: 50}, state)

	// Created 80 seconds ago, that is 10 blocks: 100 - 10 + 50.
	tx := legacy(7920)
	assert.True(t, svc.CanExpire(tx))
	assert.Equal(t, int64(140), svc.ExpirationHeight(tx))
	assert.False(t, svc.IsExpired(tx))

	// Partial blocks round towards the past.
	assert.Equal(t, int64(140), svc.ExpirationHeight(legacy(7915)))

	// Old enough to fall out of the window.
	old := legacy(8000 - 8*49)
	assert.Equal(t, int64(101), svc.ExpirationHeight(old))
	assert.True(t, svc.IsExpired(old))

	// The current milestone block time is used, changing it moves the height.
	state.blockTime.Store(16)
	assert.Equal(t, int64(145), svc.ExpirationHeight(tx))
}

func TestExpirationLegacySigned(t *testing.T) {
	state := newTestState(3)
	state.slotTime.Store(1000)
	svc := NewExpirationService(&Config{MaxTransactionAge: 2}, state)

	// Far older than the chain: the height goes negative rather than wrapping.
	tx := legacy(0)
	assert.Equal(t, int64(3-125+2), svc.ExpirationHeight(tx))
	assert.True(t, svc.IsExpired(tx))

	// A timestamp from the future counts negative elapsed blocks, rounded down.
	future := legacy(1012)
	assert.Equal(t, int64(3+2+2), svc.ExpirationHeight(future))

	// A zero block time is treated as one second.
	state.blockTime.Store(0)
	assert.Equal(t, int64(3-1000+2), svc.ExpirationHeight(tx))
}

func TestFloorDiv(t *testing.T) {
	assert.Equal(t, int64(2), floorDiv(7, 3))
	assert.Equal(t, int64(-3), floorDiv(-7, 3))
	assert.Equal(t, int64(-2), floorDiv(-6, 3))
	assert.Equal(t, int64(0), floorDiv(0, 3))
}
