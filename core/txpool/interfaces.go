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
	"github.com/holiman/uint256"
	"github.com/sunyihoo/go-txpool/core/types"
)

// FeeContext is the input of a handler's dynamic fee formula.
type FeeContext struct {
	Transaction    *types.Transaction
	AddonBytes     uint64 // Extra bytes configured for the handler key
	SatoshiPerByte uint64 // Price per byte of the threshold being computed
	Height         uint64 // Current chain height
}

// Handler implements the rules of one transaction type. The pool only calls
// into it, the fee formula and the ledger mutation live entirely behind it.
//
// Handler 实现某一交易类型的规则。交易池只负责调用，手续费公式与账本变更都由它实现。
type Handler interface {
	// Key identifies the handler in the dynamic fee addon bytes table.
	Key() string

	// StaticFee is the exact fee required when dynamic fees are disabled.
	StaticFee(tx *types.Transaction) *uint256.Int

	// DynamicFee computes the minimum fee for the given context.
	DynamicFee(ctx FeeContext) *uint256.Int

	// CanEnterPool runs type specific pool admission checks.
	CanEnterPool(tx *types.Transaction) error

	// Apply validates the transaction against the pool ledger and mutates it.
	Apply(tx *types.Transaction) error

	// Revert undoes a previous Apply.
	Revert(tx *types.Transaction) error
}

// HandlerRegistry resolves the handler responsible for a transaction.
type HandlerRegistry interface {
	ActivatedHandler(tx *types.Transaction) (Handler, error)
}

// PoolResetter is optionally implemented by a HandlerRegistry whose pool
// ledger is a projection over the confirmed state. The mempool calls it on
// Flush, after which every account, sender or recipient, starts from the
// confirmed state again. Emptied senders are not reset one by one: their own
// transactions were reverted or forged already, and their balance may still
// carry credits of other pooled transactions.
//
// PoolResetter 由池账本为确认状态投影的注册表可选实现。内存池 Flush 时调用，
// 此后所有账户（发送者与接收者）都重新基于确认状态。
type PoolResetter interface {
	ResetPool()
}

// StateStore exposes the chain state the pool depends on.
// StateStore 提供交易池所需的链状态。
type StateStore interface {
	// LastHeight is the height of the last confirmed block.
	LastHeight() uint64

	// BlockTime is the block time of the current milestone in seconds.
	BlockTime() uint64

	// SlotTime is the current time in seconds since the network epoch.
	SlotTime() uint64
}
