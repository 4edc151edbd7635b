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
	"fmt"

	"github.com/sunyihoo/go-txpool/core/types"
	"github.com/sunyihoo/go-txpool/log"
)

// FeeMatcher gates pool entry and rebroadcast on the transaction fee. It is
// stateless and reads configuration and chain height on every call.
//
// FeeMatcher 依据手续费决定交易能否入池、能否广播。它无状态，每次调用都读取配置与链高度。
type FeeMatcher struct {
	fees     DynamicFeesConfig
	handlers HandlerRegistry
	state    StateStore
}

// NewFeeMatcher creates a fee matcher for the given configuration.
func NewFeeMatcher(config *Config, handlers HandlerRegistry, state StateStore) *FeeMatcher {
	return &FeeMatcher{fees: config.DynamicFees, handlers: handlers, state: state}
}

// CanEnterPool returns nil if the fee is sufficient to enter the pool.
func (m *FeeMatcher) CanEnterPool(tx *types.Transaction) error {
	return m.match(tx, m.fees.MinFeePool, "enter pool")
}

// CanBroadcast returns nil if the fee is sufficient to be rebroadcast.
func (m *FeeMatcher) CanBroadcast(tx *types.Transaction) error {
	return m.match(tx, m.fees.MinFeeBroadcast, "broadcast")
}

func (m *FeeMatcher) match(tx *types.Transaction, satoshiPerByte uint64, action string) error {
	handler, err := m.handlers.ActivatedHandler(tx)
	if err != nil {
		return fmt.Errorf("resolving handler for %s: %w", tx.ID(), err)
	}
	fee := tx.Fee()

	if !m.fees.Enabled {
		// Static fees must match exactly, both directions are rejections.
		staticFee := handler.StaticFee(tx)
		switch fee.Cmp(staticFee) {
		case 0:
			log.Debug("Transaction eligible to "+action, "id", tx.ID(), "fee", fee, "static", staticFee)
			return nil
		case -1:
			log.Debug("Transaction not eligible to "+action, "id", tx.ID(), "fee", fee, "static", staticFee)
			return newPoolError(ErrLowFee, tx, fmt.Errorf("%s < static %s", fee.Dec(), staticFee.Dec()))
		default:
			log.Debug("Transaction not eligible to "+action, "id", tx.ID(), "fee", fee, "static", staticFee)
			return newPoolError(ErrHighFee, tx, fmt.Errorf("%s > static %s", fee.Dec(), staticFee.Dec()))
		}
	}
	minFee := handler.DynamicFee(FeeContext{
		Transaction:    tx,
		AddonBytes:     m.fees.AddonBytes[handler.Key()],
		SatoshiPerByte: satoshiPerByte,
		Height:         m.state.LastHeight(),
	})
	if fee.Cmp(minFee) >= 0 {
		log.Debug("Transaction eligible to "+action, "id", tx.ID(), "fee", fee, "min", minFee)
		return nil
	}
	log.Debug("Transaction not eligible to "+action, "id", tx.ID(), "fee", fee, "min", minFee)
	return newPoolError(ErrLowFee, tx, fmt.Errorf("%s < minimum %s", fee.Dec(), minFee.Dec()))
}
