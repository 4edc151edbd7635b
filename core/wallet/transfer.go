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
	"github.com/holiman/uint256"
	"github.com/sunyihoo/go-txpool/core/txpool"
	"github.com/sunyihoo/go-txpool/core/types"
)

// DefaultTransferFee is the fee a transfer pays when dynamic fees are off.
const DefaultTransferFee = 10_000_000

// TransferHandler moves funds between wallets of the pool view.
// TransferHandler 在池视图的钱包之间转账。
type TransferHandler struct {
	manager   *Manager
	staticFee *uint256.Int
}

// NewTransferHandler creates a transfer handler over the manager's pool view.
func NewTransferHandler(manager *Manager) *TransferHandler {
	return &TransferHandler{manager: manager, staticFee: uint256.NewInt(DefaultTransferFee)}
}

func (h *TransferHandler) Key() string { return "transfer" }

func (h *TransferHandler) StaticFee(*types.Transaction) *uint256.Int {
	return new(uint256.Int).Set(h.staticFee)
}

// DynamicFee charges the price per byte for the serialized transaction plus
// the configured addon bytes.
func (h *TransferHandler) DynamicFee(ctx txpool.FeeContext) *uint256.Int {
	bytes := uint256.NewInt(ctx.AddonBytes)
	bytes.AddUint64(bytes, uint64(ctx.Transaction.Size()))
	return bytes.Mul(bytes, uint256.NewInt(ctx.SatoshiPerByte))
}

func (h *TransferHandler) CanEnterPool(tx *types.Transaction) error {
	switch {
	case tx.Recipient() == "":
		return ErrMissingRecipient
	case tx.Recipient() == tx.SenderPublicKey():
		return ErrSelfTransfer
	case tx.Amount().IsZero():
		return ErrZeroAmount
	}
	return nil
}

func (h *TransferHandler) Apply(tx *types.Transaction) error {
	h.manager.mu.Lock()
	defer h.manager.mu.Unlock()

	return transfer(h.manager.poolAccount, tx)
}

func (h *TransferHandler) Revert(tx *types.Transaction) error {
	h.manager.mu.Lock()
	defer h.manager.mu.Unlock()

	return untransfer(h.manager.poolAccount, tx)
}
