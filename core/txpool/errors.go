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
	"errors"
	"fmt"

	"github.com/sunyihoo/go-txpool/core/types"
)

var (
	// ErrAlreadyInPool is returned if the transaction id is already stored.
	ErrAlreadyInPool = errors.New("already in pool")

	// ErrExceedsMaxCount is returned if the sender already holds the maximum
	// number of pooled transactions allowed for a single sender.
	ErrExceedsMaxCount = errors.New("sender exceeds max transaction count")

	// ErrExpired is returned if the transaction's expiration height has passed.
	ErrExpired = errors.New("transaction expired")

	// ErrExceedsMaxByteSize is returned if the serialized transaction is larger
	// than the configured ceiling. This is a DOS protection, not a consensus rule.
	ErrExceedsMaxByteSize = errors.New("transaction exceeds max byte size")

	// ErrLowFee is returned if the fee is below the pool entry threshold.
	ErrLowFee = errors.New("fee too low")

	// ErrHighFee is returned in static fee mode if the fee is above the static fee.
	ErrHighFee = errors.New("fee too high")

	// ErrFailedToApply is returned if the transaction handler rejected the
	// transaction against the pool ledger.
	ErrFailedToApply = errors.New("failed to apply transaction")

	// ErrPoolFull is returned if the pool is at capacity and the transaction does
	// not pay more than the lowest priority pooled transaction.
	ErrPoolFull = errors.New("pool is full")

	// ErrNotFound is returned by Query.First when nothing matched.
	ErrNotFound = errors.New("transaction not found")

	// ErrTransactionNotInSender is returned if a sender is asked to remove or
	// accept a transaction it does not hold.
	ErrTransactionNotInSender = errors.New("transaction not held by sender")
)

// errorCodes maps each pool rejection to its stable short code.
// errorCodes 为每种拒绝原因提供稳定的短代码，供 API 层使用。
var errorCodes = map[error]string{
	ErrAlreadyInPool:      "ERR_ALREADY_IN_POOL",
	ErrExceedsMaxCount:    "ERR_EXCEEDS_MAX_COUNT",
	ErrExpired:            "ERR_EXPIRED",
	ErrExceedsMaxByteSize: "ERR_EXCEEDS_MAX_BYTE_SIZE",
	ErrLowFee:             "ERR_LOW_FEE",
	ErrHighFee:            "ERR_HIGH_FEE",
	ErrFailedToApply:      "ERR_APPLY",
	ErrPoolFull:           "ERR_POOL_FULL",
}

// PoolError is a typed rejection carrying the offending transaction.
// Kind is one of the sentinel errors above, Err optionally holds the cause
// reported by a collaborator (e.g. the handler's apply error).
type PoolError struct {
	Kind error
	Tx   *types.Transaction
	Err  error
}

func newPoolError(kind error, tx *types.Transaction, cause error) *PoolError {
	return &PoolError{Kind: kind, Tx: tx, Err: cause}
}

// Error implements error.
func (e *PoolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: transaction %s: %v", e.Kind, e.Tx, e.Err)
	}
	return fmt.Sprintf("%s: transaction %s", e.Kind, e.Tx)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *PoolError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// Code returns the stable short code of the rejection.
func (e *PoolError) Code() string {
	if code, ok := errorCodes[e.Kind]; ok {
		return code
	}
	return "ERR_UNKNOWN"
}

// ErrorCode returns the stable code of a pool rejection, or the empty string
// if err is not one.
func ErrorCode(err error) string {
	var perr *PoolError
	if errors.As(err, &perr) {
		return perr.Code()
	}
	return ""
}
