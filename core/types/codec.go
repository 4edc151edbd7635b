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
	"fmt"
	"math"

	"github.com/holiman/uint256"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the canonical encoding. Fields are always written in this
// order, zero values included, so that equal content yields equal bytes.
//
// 规范编码的字段编号。字段总是按此顺序写出（包括零值），保证相同内容得到相同字节。
const (
	fieldVersion protowire.Number = iota + 1
	fieldTypeGroup
	fieldType
	fieldSender
	fieldNonce
	fieldFee
	fieldAmount
	fieldRecipient
	fieldTimestamp
	fieldExpiration
	fieldVendorField
)

// encode produces the canonical protobuf wire encoding of the content.
func encode(d *TxData) []byte {
	b := make([]byte, 0, 128+len(d.SenderPublicKey)+len(d.Recipient)+len(d.VendorField))
	b = appendVarint(b, fieldVersion, uint64(d.Version))
	b = appendVarint(b, fieldTypeGroup, uint64(d.TypeGroup))
	b = appendVarint(b, fieldType, uint64(d.Type))
	b = appendBytes(b, fieldSender, []byte(d.SenderPublicKey))
	b = appendBytes(b, fieldNonce, d.Nonce.Bytes())
	b = appendBytes(b, fieldFee, d.Fee.Bytes())
	b = appendBytes(b, fieldAmount, d.Amount.Bytes())
	b = appendBytes(b, fieldRecipient, []byte(d.Recipient))
	b = appendVarint(b, fieldTimestamp, uint64(d.Timestamp))
	b = appendVarint(b, fieldExpiration, uint64(d.Expiration))
	b = appendBytes(b, fieldVendorField, d.VendorField)
	return b
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// DecodeTx parses a canonically encoded transaction. The id is derived from
// the given bytes, which are retained as the serialized form.
//
// DecodeTx 解析规范编码的交易，ID 由输入字节计算，输入字节同时作为序列化形式保留。
func DecodeTx(serialized []byte) (*Transaction, error) {
	var d TxData
	b := serialized
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrInvalidEncoding, num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := d.setVarint(num, v); err != nil {
				return nil, err
			}
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrInvalidEncoding, num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := d.setBytes(num, v); err != nil {
				return nil, err
			}
		default:
			// Unknown wire types are skipped to allow forward compatible additions.
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", ErrInvalidEncoding, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if d.Version < 1 {
		return nil, ErrInvalidVersion
	}
	if d.SenderPublicKey == "" {
		return nil, ErrMissingSender
	}
	for _, v := range []**uint256.Int{&d.Nonce, &d.Fee, &d.Amount} {
		if *v == nil {
			*v = new(uint256.Int)
		}
	}
	tx := &Transaction{inner: d, serialized: append([]byte(nil), serialized...)}
	tx.id = keccakID(tx.serialized)
	return tx, nil
}

func (d *TxData) setVarint(num protowire.Number, v uint64) error {
	var limit uint64
	switch num {
	case fieldVersion:
		limit = math.MaxUint8
	case fieldType:
		limit = math.MaxUint16
	case fieldTypeGroup, fieldTimestamp, fieldExpiration:
		limit = math.MaxUint32
	default:
		return nil
	}
	if v > limit {
		return fmt.Errorf("%w: field %d overflows", ErrInvalidEncoding, num)
	}
	switch num {
	case fieldVersion:
		d.Version = uint8(v)
	case fieldType:
		d.Type = uint16(v)
	case fieldTypeGroup:
		d.TypeGroup = uint32(v)
	case fieldTimestamp:
		d.Timestamp = uint32(v)
	case fieldExpiration:
		d.Expiration = uint32(v)
	}
	return nil
}

func (d *TxData) setBytes(num protowire.Number, v []byte) error {
	switch num {
	case fieldSender:
		d.SenderPublicKey = string(v)
	case fieldRecipient:
		d.Recipient = string(v)
	case fieldVendorField:
		d.VendorField = append([]byte(nil), v...)
	case fieldNonce, fieldFee, fieldAmount:
		if len(v) > 32 {
			return fmt.Errorf("%w: field %d exceeds 256 bits", ErrInvalidEncoding, num)
		}
		x := new(uint256.Int).SetBytes(v)
		switch num {
		case fieldNonce:
			d.Nonce = x
		case fieldFee:
			d.Fee = x
		default:
			d.Amount = x
		}
	}
	return nil
}
