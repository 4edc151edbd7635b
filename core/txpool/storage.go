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
	"github.com/sunyihoo/go-txpool/common"
	"github.com/sunyihoo/go-txpool/core/rawdb"
	"github.com/sunyihoo/go-txpool/ethdb"
	"github.com/sunyihoo/go-txpool/log"
)

// StoredTransaction is one recovery row.
type StoredTransaction struct {
	ID         string
	Serialized []byte
}

// Storage is the durable mirror of the pool used to rebuild it after a
// restart. It is a recovery journal, not an index: rows are only looked up by
// id and read back in bulk at boot.
//
// Storage 是交易池的持久化镜像，仅用于重启后重建内存池。
type Storage struct {
	db ethdb.KeyValueStore
}

// NewStorage wraps a key-value store.
func NewStorage(db ethdb.KeyValueStore) *Storage {
	return &Storage{db: db}
}

// AddTransaction stores the serialized transaction under its id.
func (s *Storage) AddTransaction(id string, serialized []byte) error {
	return rawdb.WritePoolTransaction(s.db, id, serialized)
}

// RemoveTransaction deletes the row of the given id.
func (s *Storage) RemoveTransaction(id string) error {
	return rawdb.DeletePoolTransaction(s.db, id)
}

// HasTransaction reports whether a row exists for the id.
func (s *Storage) HasTransaction(id string) (bool, error) {
	return rawdb.HasPoolTransaction(s.db, id)
}

// GetAllTransactions reads back every stored row.
func (s *Storage) GetAllTransactions() ([]StoredTransaction, error) {
	var rows []StoredTransaction
	err := rawdb.IteratePoolTransactions(s.db, func(id string, serialized []byte) bool {
		rows = append(rows, StoredTransaction{ID: id, Serialized: common.CopyBytes(serialized)})
		return true
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Flush deletes every row.
func (s *Storage) Flush() error {
	deleted, err := rawdb.DeleteAllPoolTransactions(s.db)
	if err != nil {
		return err
	}
	log.Debug("Flushed pool storage", "rows", deleted)
	return nil
}
