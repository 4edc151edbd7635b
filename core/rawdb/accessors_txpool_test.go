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
	"bytes"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolTransactionStorage(t *testing.T) {
	db := NewMemoryDatabase()

	has, err := HasPoolTransaction(db, "aa")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, WritePoolTransaction(db, "aa", []byte{1, 2, 3}))
	has, err = HasPoolTransaction(db, "aa")
	require.NoError(t, err)
	assert.True(t, has)

	blob, err := ReadPoolTransaction(db, "aa")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, blob)

	require.NoError(t, DeletePoolTransaction(db, "aa"))
	require.NoError(t, DeletePoolTransaction(db, "aa"))
	has, err = HasPoolTransaction(db, "aa")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestIteratePoolTransactionsSkipsForeignKeys(t *testing.T) {
	db := NewMemoryDatabase()
	require.NoError(t, db.Put([]byte("txpoolx"), []byte("foreign")))
	require.NoError(t, db.Put([]byte("a"), []byte("foreign")))
	for _, id := range []string{"03", "01", "02"} {
		require.NoError(t, WritePoolTransaction(db, id, []byte(id)))
	}
	var ids []string
	err := IteratePoolTransactions(db, func(id string, serialized []byte) bool {
		assert.Equal(t, id, string(serialized))
		ids = append(ids, id)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"01", "02", "03"}, ids)

	ids = ids[:0]
	require.NoError(t, IteratePoolTransactions(db, func(id string, _ []byte) bool {
		ids = append(ids, id)
		return false
	}))
	assert.Equal(t, []string{"01"}, ids)
}

func TestDeleteAllPoolTransactions(t *testing.T) {
	db := NewMemoryDatabase()
	require.NoError(t, db.Put([]byte("other"), []byte("keep")))
	require.NoError(t, db.Put([]byte("txpool"), []byte("keep")))
	require.NoError(t, db.Put([]byte("txpool."), []byte("keep")))

	// Enough rows to span several batches.
	value := bytes.Repeat([]byte{0xff}, 1024)
	for i := 0; i < 300; i++ {
		require.NoError(t, WritePoolTransaction(db, fmt.Sprintf("%04d", i), value))
	}
	deleted, err := DeleteAllPoolTransactions(db)
	require.NoError(t, err)
	assert.Equal(t, 300, deleted)

	var left int
	require.NoError(t, IteratePoolTransactions(db, func(string, []byte) bool { left++; return true }))
	assert.Zero(t, left)

	for _, key := range []string{"other", "txpool", "txpool."} {
		keep, err := db.Get([]byte(key))
		require.NoError(t, err, key)
		assert.Equal(t, []byte("keep"), keep)
	}

	// Wiping an empty pool is a no-op.
	deleted, err = DeleteAllPoolTransactions(db)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

// Tests that the wipe goes through LevelDB's capped range deletion.
func TestDeleteAllPoolTransactionsLevelDB(t *testing.T) {
	db, err := Open(OpenOptions{Type: DBLeveldb, Directory: t.TempDir(), Cache: 16, Handles: 16})
	require.NoError(t, err)
	defer db.Close()

	const rows = 10_050
	batch := db.NewBatch()
	for i := 0; i < rows; i++ {
		require.NoError(t, WritePoolTransaction(batch, fmt.Sprintf("%05d", i), []byte{1}))
	}
	require.NoError(t, batch.Write())
	require.NoError(t, db.Put([]byte("txpool."), []byte("keep")))

	deleted, err := DeleteAllPoolTransactions(db)
	require.NoError(t, err)
	assert.Equal(t, rows, deleted)

	var left int
	require.NoError(t, IteratePoolTransactions(db, func(string, []byte) bool { left++; return true }))
	assert.Zero(t, left)
	has, err := db.Has([]byte("txpool."))
	require.NoError(t, err)
	assert.True(t, has)
}

func TestPoolTransactionRange(t *testing.T) {
	start, end := poolTransactionRange()
	assert.Equal(t, []byte("txpool-"), start)
	assert.Equal(t, []byte("txpool."), end)
}

func TestOpenDatabase(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(OpenOptions{Type: "rocksdb", Directory: dir})
	assert.Error(t, err)

	db, err := Open(OpenOptions{Type: DBLeveldb, Directory: filepath.Join(dir, "ldb"), Cache: 16, Handles: 16})
	require.NoError(t, err)
	require.NoError(t, WritePoolTransaction(db, "aa", []byte{1}))
	require.NoError(t, db.Close())
	assert.Equal(t, DBLeveldb, PreexistingDatabase(filepath.Join(dir, "ldb")))

	// An existing leveldb cannot be reopened as pebble.
	_, err = Open(OpenOptions{Type: DBPebble, Directory: filepath.Join(dir, "ldb")})
	assert.Error(t, err)

	// Without an explicit type the existing engine is picked up.
	db, err = Open(OpenOptions{Directory: filepath.Join(dir, "ldb"), Cache: 16, Handles: 16})
	require.NoError(t, err)
	blob, err := ReadPoolTransaction(db, "aa")
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, blob)
	require.NoError(t, db.Close())

	db, err = Open(OpenOptions{Type: DBMemory})
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestInspectDatabase(t *testing.T) {
	db := NewMemoryDatabase()
	require.NoError(t, WritePoolTransaction(db, "aa", []byte{1, 2}))
	require.NoError(t, db.Put([]byte("zz"), []byte{3}))

	var out bytes.Buffer
	require.NoError(t, InspectDatabase(db, &out))
	assert.Contains(t, out.String(), "Pool transactions")
	assert.Contains(t, out.String(), "Unaccounted")
}
