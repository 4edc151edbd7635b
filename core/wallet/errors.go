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
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/sunyihoo/go-txpool/core/types"
)

var (
	// ErrUnknownType is returned if no handler is registered for the
	// transaction's type group and type.
	ErrUnknownType = errors.New("unknown transaction type")

	// ErrInvalidNonce is returned if the nonce does not follow the wallet's
	// current nonce.
	ErrInvalidNonce = errors.New("invalid nonce")

	// ErrInsufficientBalance is returned if the wallet cannot pay for the
	// transaction.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrCostOverflow is returned if fee plus amount does not fit 256 bits.
	ErrCostOverflow = errors.New("transaction cost overflows")

	// ErrMissingRecipient is returned for transfers without a recipient.
	ErrMissingRecipient = errors.New("transfer has no recipient")

	// ErrZeroAmount is returned for transfers that move nothing.
	ErrZeroAmount = errors.New("transfer amount is zero")

	// ErrSelfTransfer is returned for transfers to the sender itself.
	ErrSelfTransfer = errors.New("transfer to self")
)

func newNonceError(tx *types.Transaction, current uint64) error {
	return fmt.Errorf("%w: have %s, wallet at %d", ErrInvalidNonce, tx.Nonce().Dec(), current)
}

func newInsufficientBalanceError(tx *types.Transaction, balance, cost *uint256.Int) error {
	return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, tx.ID(), balance.Dec(), cost.Dec())
}
