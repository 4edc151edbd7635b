// Copyright 2018 The go-ethereum Authors
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

// Package rawdb contains a collection of low level database accessors.
package rawdb

// The fields below define the low level database schema prefixing.
// 以下字段定义了底层数据库的键前缀方案。
var (
	// poolTransactionPrefix + id -> serialized transaction
	poolTransactionPrefix = []byte("txpool-")
)

// poolTransactionKey = poolTransactionPrefix + id
func poolTransactionKey(id string) []byte {
	return append(append([]byte(nil), poolTransactionPrefix...), id...)
}

// poolTransactionID strips the prefix from a row key.
func poolTransactionID(key []byte) string {
	return string(key[len(poolTransactionPrefix):])
}

// poolTransactionRange returns the [start, end) key range holding every pool
// transaction row.
func poolTransactionRange() ([]byte, []byte) {
	start := append([]byte(nil), poolTransactionPrefix...)
	end := append([]byte(nil), poolTransactionPrefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return start, end[:i+1]
		}
	}
	return start, nil
}
