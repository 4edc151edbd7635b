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

import "github.com/sunyihoo/go-txpool/core/types"

// ExpirationService decides whether a transaction outlived its validity
// height. Version 2+ transactions carry the height explicitly, legacy ones
// derive it from their timestamp and the configured maximum age.
//
// ExpirationService 判断交易是否已超过有效高度。v2 及以上版本显式携带过期高度，
// 旧版交易根据时间戳与最大存活块数推算。
type ExpirationService struct {
	maxAge uint64
	state  StateStore
}

// NewExpirationService creates an expiration service reading the chain state
// on every call.
func NewExpirationService(config *Config, state StateStore) *ExpirationService {
	return &ExpirationService{maxAge: config.MaxTransactionAge, state: state}
}

// CanExpire reports whether the transaction has an expiration at all. Legacy
// transactions always expire.
func (s *ExpirationService) CanExpire(tx *types.Transaction) bool {
	if tx.Version() >= 2 {
		return tx.Expiration() > 0
	}
	return true
}

// IsExpired reports whether the transaction cannot be included in the next
// block anymore.
func (s *ExpirationService) IsExpired(tx *types.Transaction) bool {
	if !s.CanExpire(tx) {
		return false
	}
	return s.ExpirationHeight(tx) <= int64(s.state.LastHeight())+1
}

// ExpirationHeight returns the height at which the transaction expires.
//
// For legacy transactions the elapsed block count is recomputed on every call
// with the block time of the current milestone, so the result moves when the
// milestone changes. The value is signed because a very old transaction on a
// short chain yields a negative height.
func (s *ExpirationService) ExpirationHeight(tx *types.Transaction) int64 {
	if tx.Version() >= 2 {
		return int64(tx.Expiration())
	}
	blockTime := int64(s.state.BlockTime())
	if blockTime < 1 {
		blockTime = 1
	}
	elapsed := int64(s.state.SlotTime()) - int64(tx.Timestamp())
	createdBlocksAgo := floorDiv(elapsed, blockTime)

	return int64(s.state.LastHeight()) - createdBlocksAgo + int64(s.maxAge)
}

// floorDiv divides rounding towards negative infinity.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
