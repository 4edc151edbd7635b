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
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

const testSender = "03287bfebba4c7881a0509717e71b34b63f31e40021c321f89ae04f84be6d6ac37"

func testTxData() *TxData {
	return &TxData{
		Version:         2,
		TypeGroup:       CoreTypeGroup,
		Type:            TransferType,
		SenderPublicKey: testSender,
		Nonce:           uint256.NewInt(7),
		Fee:             uint256.NewInt(10_000_000),
		Amount:          uint256.NewInt(250),
		Recipient:       "recipient",
		Expiration:      120,
		VendorField:     []byte("memo"),
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	tx := MustNewTx(testTxData())

	dec, err := DecodeTx(tx.Serialized())
	require.NoError(t, err)
	assert.Equal(t, tx.ID(), dec.ID())
	assert.Equal(t, tx.Serialized(), dec.Serialized())
	assert.Equal(t, uint8(2), dec.Version())
	assert.Equal(t, testSender, dec.SenderPublicKey())
	assert.Equal(t, uint64(7), dec.Nonce().Uint64())
	assert.Equal(t, uint64(10_000_000), dec.Fee().Uint64())
	assert.Equal(t, uint64(250), dec.Amount().Uint64())
	assert.Equal(t, "recipient", dec.Recipient())
	assert.Equal(t, uint32(120), dec.Expiration())
	assert.Equal(t, []byte("memo"), dec.VendorField())
}

func TestIDDependsOnContent(t *testing.T) {
	a := MustNewTx(testTxData())
	b := MustNewTx(testTxData())
	assert.Equal(t, a.ID(), b.ID(), "equal content must give equal ids")
	assert.Len(t, a.ID(), 64)

	d := testTxData()
	d.Nonce = uint256.NewInt(8)
	c := MustNewTx(d)
	assert.NotEqual(t, a.ID(), c.ID())
}

func TestNewTxCopiesInput(t *testing.T) {
	d := testTxData()
	tx := MustNewTx(d)
	d.Fee.SetUint64(1)
	d.VendorField[0] = 'X'
	assert.Equal(t, uint64(10_000_000), tx.Fee().Uint64())
	assert.Equal(t, []byte("memo"), tx.VendorField())

	// Accessors hand out copies too
	tx.Nonce().SetUint64(99)
	assert.Equal(t, uint64(7), tx.Nonce().Uint64())
}

func TestNewTxNilAmounts(t *testing.T) {
	tx, err := NewTx(&TxData{Version: 1, SenderPublicKey: testSender})
	require.NoError(t, err)
	assert.True(t, tx.Fee().IsZero())
	assert.True(t, tx.Nonce().IsZero())

	dec, err := DecodeTx(tx.Serialized())
	require.NoError(t, err)
	assert.Equal(t, tx.ID(), dec.ID())
}

func TestNewTxInvalid(t *testing.T) {
	_, err := NewTx(&TxData{SenderPublicKey: testSender})
	assert.ErrorIs(t, err, ErrInvalidVersion)

	_, err = NewTx(&TxData{Version: 1})
	assert.ErrorIs(t, err, ErrMissingSender)
}

func TestDecodeInvalid(t *testing.T) {
	valid := MustNewTx(testTxData()).Serialized()

	tests := []struct {
		name  string
		input []byte
		want  error
	}{
		{"empty", nil, ErrInvalidVersion},
		{"truncated", valid[:len(valid)-2], ErrInvalidEncoding},
		{"version overflow", protowire.AppendVarint(protowire.AppendTag(nil, fieldVersion, protowire.VarintType), 300), ErrInvalidEncoding},
		{"fee too wide", protowire.AppendBytes(protowire.AppendTag(nil, fieldFee, protowire.BytesType), make([]byte, 33)), ErrInvalidEncoding},
	}
	for _, tt := range tests {
		_, err := DecodeTx(tt.input)
		assert.Truef(t, errors.Is(err, tt.want), "%s: have %v, want %v", tt.name, err, tt.want)
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	tx := MustNewTx(testTxData())
	extended := protowire.AppendTag(append([]byte(nil), tx.Serialized()...), 99, protowire.Fixed64Type)
	extended = protowire.AppendFixed64(extended, 42)

	dec, err := DecodeTx(extended)
	require.NoError(t, err)
	assert.Equal(t, tx.Fee(), dec.Fee())
	assert.NotEqual(t, tx.ID(), dec.ID(), "id covers the exact bytes")
}

func TestTransactionString(t *testing.T) {
	tx := MustNewTx(testTxData())
	s := tx.String()
	assert.True(t, strings.HasPrefix(s, tx.ID()))
	assert.Contains(t, s, "1/0")
	assert.Contains(t, s, "nonce 7")
	assert.Contains(t, s, "fee 10000000")
	assert.Contains(t, s, "03287b..ac37")
}

func TestFeeCmp(t *testing.T) {
	lo, hi := testTxData(), testTxData()
	lo.Fee, hi.Fee = uint256.NewInt(1), uint256.NewInt(2)
	a, b := MustNewTx(lo), MustNewTx(hi)
	assert.Equal(t, -1, a.FeeCmp(b))
	assert.Equal(t, 1, b.FeeCmp(a))
	assert.Equal(t, 0, a.FeeCmp(a))
	assert.Equal(t, 0, a.NonceCmp(b))
	assert.Equal(t, []string{a.ID(), b.ID()}, Transactions{a, b}.IDs())
}
