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

package rawdb

import (
	"errors"

	"github.com/sunyihoo/go-txpool/ethdb"
	"github.com/sunyihoo/go-txpool/ethdb/leveldb"
)

// HasPoolTransaction verifies the existence of a pool transaction row.
func HasPoolTransaction(db ethdb.KeyValueReader, id string) (bool, error) {
	return db.Has(poolTransactionKey(id))
}

// ReadPoolTransaction retrieves the serialized pool transaction with the given id.
func ReadPoolTransaction(db ethdb.KeyValueReader, id string) ([]byte, error) {
	return db.Get(poolTransactionKey(id))
}

// WritePoolTransaction stores a serialized pool transaction.
// WritePoolTransaction 存储一笔序列化的池内交易。
func WritePoolTransaction(db ethdb.KeyValueWriter, id string, serialized []byte) error {
	return db.Put(poolTransactionKey(id), serialized)
}

// DeletePoolTransaction removes a pool transaction row. Missing rows are not
// an error.
func DeletePoolTransaction(db ethdb.KeyValueWriter, id string) error {
	return db.Delete(poolTransactionKey(id))
}

// IteratePoolTransactions calls fn for every stored pool transaction in key
// order until fn returns false. The serialized slice is only valid during the
// callback.
func IteratePoolTransactions(db ethdb.Iteratee, fn func(id string, serialized []byte) bool) error {
	it := db.NewIterator(poolTransactionPrefix, nil)
	defer it.Release()

	for it.Next() {
		if !fn(poolTransactionID(it.Key()), it.Value()) {
			break
		}
	}
	return it.Error()
}

// DeleteAllPoolTransactions wipes every pool transaction row with a single
// range deletion over the row prefix. It returns the number of rows removed.
//
// DeleteAllPoolTransactions 通过对行前缀做范围删除来清空所有池内交易行。
func DeleteAllPoolTransactions(db ethdb.KeyValueStore) (int, error) {
	var rows int
	if err := IteratePoolTransactions(db, func(string, []byte) bool { rows++; return true }); err != nil {
		return 0, err
	}
	if rows == 0 {
		return 0, nil
	}
	start, end := poolTransactionRange()
	for {
		err := db.DeleteRange(start, end)
		if errors.Is(err, leveldb.ErrTooManyKeys) {
			// LevelDB deletes in capped chunks.
			continue
		}
		if err != nil {
			return 0, err
		}
		return rows, nil
	}
}
