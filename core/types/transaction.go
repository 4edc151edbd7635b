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

package types

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/sunyihoo/go-txpool/common"
)

var (
	ErrInvalidVersion  = errors.New("transaction version must be at least 1")
	ErrMissingSender   = errors.New("transaction has no sender public key")
	ErrInvalidEncoding = errors.New("invalid transaction encoding")
)

// Transaction type groups.
// 交易类型组。
const (
	CoreTypeGroup uint32 = 1
)

// Transaction types within the core group.
const (
	TransferType uint16 = 0
)

// TxData is the content of a transaction. Every field is part of the
// canonical serialization and therefore of the transaction id.
//
// TxData 是交易内容，所有字段都参与规范序列化，因此也决定交易 ID。
type TxData struct {
	Version         uint8  // 1 is legacy (timestamp based expiry), 2+ carries an explicit expiration height
	TypeGroup       uint32 // Handler family
	Type            uint16 // Handler within the family
	SenderPublicKey string // Hex encoded public key of the sender
	Nonce           *uint256.Int
	Fee             *uint256.Int
	Amount          *uint256.Int
	Recipient       string
	Timestamp       uint32 // Creation time in seconds since network epoch, legacy only
	Expiration      uint32 // Expiration height, 0 means never, version 2+ only
	VendorField     []byte // Free form memo
}

// Transaction is an immutable pool transaction. It caches its canonical
// serialization and the id derived from it.
//
// Transaction 是不可变的交易对象，缓存了规范序列化结果以及由其得出的 ID。
type Transaction struct {
	inner      TxData
	serialized []byte
	id         string
}

// NewTx creates a new transaction from the given content. Nil amounts are
// treated as zero. The content is copied, later changes to inner do not
// affect the transaction.
func NewTx(inner *TxData) (*Transaction, error) {
	if inner.Version < 1 {
		return nil, ErrInvalidVersion
	}
	if inner.SenderPublicKey == "" {
		return nil, ErrMissingSender
	}
	tx := &Transaction{inner: copyTxData(inner)}
	tx.serialized = encode(&tx.inner)
	tx.id = keccakID(tx.serialized)
	return tx, nil
}

// MustNewTx is like NewTx but panics on invalid content. Meant for tests and
// static fixtures.
func MustNewTx(inner *TxData) *Transaction {
	tx, err := NewTx(inner)
	if err != nil {
		panic(err)
	}
	return tx
}

func copyTxData(d *TxData) TxData {
	cpy := *d
	cpy.Nonce = cloneInt(d.Nonce)
	cpy.Fee = cloneInt(d.Fee)
	cpy.Amount = cloneInt(d.Amount)
	cpy.VendorField = common.CopyBytes(d.VendorField)
	return cpy
}

func cloneInt(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

// ID returns the hex encoded Keccak-256 hash of the serialized transaction.
func (tx *Transaction) ID() string { return tx.id }

// Version returns the transaction format version.
func (tx *Transaction) Version() uint8 { return tx.inner.Version }

// TypeGroup returns the handler family of the transaction.
func (tx *Transaction) TypeGroup() uint32 { return tx.inner.TypeGroup }

// Type returns the handler type within its group.
func (tx *Transaction) Type() uint16 { return tx.inner.Type }

// SenderPublicKey returns the sender identity.
func (tx *Transaction) SenderPublicKey() string { return tx.inner.SenderPublicKey }

// Nonce returns a copy of the sender nonce.
func (tx *Transaction) Nonce() *uint256.Int { return new(uint256.Int).Set(tx.inner.Nonce) }

// Fee returns a copy of the offered fee.
func (tx *Transaction) Fee() *uint256.Int { return new(uint256.Int).Set(tx.inner.Fee) }

// Amount returns a copy of the transferred amount.
func (tx *Transaction) Amount() *uint256.Int { return new(uint256.Int).Set(tx.inner.Amount) }

// Recipient returns the receiving address, if any.
func (tx *Transaction) Recipient() string { return tx.inner.Recipient }

// Timestamp returns the legacy creation timestamp.
func (tx *Transaction) Timestamp() uint32 { return tx.inner.Timestamp }

// Expiration returns the explicit expiration height.
func (tx *Transaction) Expiration() uint32 { return tx.inner.Expiration }

// VendorField returns a copy of the memo.
func (tx *Transaction) VendorField() []byte { return common.CopyBytes(tx.inner.VendorField) }

// FeeCmp compares the fees of two transactions.
// FeeCmp 比较两笔交易的手续费，避免调用方复制大整数。
func (tx *Transaction) FeeCmp(other *Transaction) int {
	return tx.inner.Fee.Cmp(other.inner.Fee)
}

// NonceCmp compares the nonces of two transactions.
func (tx *Transaction) NonceCmp(other *Transaction) int {
	return tx.inner.Nonce.Cmp(other.inner.Nonce)
}

// Serialized returns the canonical encoding. The slice must not be modified.
func (tx *Transaction) Serialized() []byte { return tx.serialized }

// Size returns the length of the canonical encoding in bytes.
func (tx *Transaction) Size() int { return len(tx.serialized) }

// String implements fmt.Stringer and is embedded in pool error messages.
func (tx *Transaction) String() string {
	return fmt.Sprintf("%s %d/%d from %s nonce %s fee %s",
		tx.id, tx.inner.TypeGroup, tx.inner.Type,
		common.ShortID(tx.inner.SenderPublicKey), tx.inner.Nonce.Dec(), tx.inner.Fee.Dec())
}

// Transactions is a list of pool transactions.
type Transactions []*Transaction

// Len returns the length of s.
func (s Transactions) Len() int { return len(s) }

// IDs returns the ids of the transactions in order.
func (s Transactions) IDs() []string {
	ids := make([]string, len(s))
	for i, tx := range s {
		ids[i] = tx.ID()
	}
	return ids
}
