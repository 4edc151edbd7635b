// Copyright 2019 The go-ethereum Authors
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

// Package dbtest holds the conformance suite every ethdb.KeyValueStore backend
// has to pass.
package dbtest

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sunyihoo/go-txpool/ethdb"
)

// TestDatabaseSuite runs a suite of tests against a KeyValueStore database
// implementation.
// TestDatabaseSuite 针对键值库实现运行一组一致性测试。
func TestDatabaseSuite(t *testing.T, New func() ethdb.KeyValueStore) {
	t.Run("KeyValueOperations", func(t *testing.T) {
		db := New()
		defer db.Close()

		key := []byte("txpool-aa")
		ok, err := db.Has(key)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = db.Get(key)
		assert.Error(t, err, "missing key should fail")

		require.NoError(t, db.Put(key, []byte("value")))
		ok, err = db.Has(key)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := db.Get(key)
		require.NoError(t, err)
		assert.Equal(t, []byte("value"), got)

		require.NoError(t, db.Put(key, []byte("overwritten")))
		got, err = db.Get(key)
		require.NoError(t, err)
		assert.Equal(t, []byte("overwritten"), got)

		require.NoError(t, db.Delete(key))
		ok, err = db.Has(key)
		require.NoError(t, err)
		assert.False(t, ok)

		// Deleting a missing key is not an error
		assert.NoError(t, db.Delete([]byte("missing")))
	})

	t.Run("Iterator", func(t *testing.T) {
		tests := []struct {
			content map[string]string
			prefix  string
			start   string
			order   []string
		}{
			// Empty databases should be iterable
			{map[string]string{}, "", "", nil},
			{map[string]string{}, "non-existent-prefix", "", nil},

			// Single-item databases should be iterable
			{map[string]string{"key": "val"}, "", "", []string{"key"}},
			{map[string]string{"key": "val"}, "k", "", []string{"key"}},
			{map[string]string{"key": "val"}, "l", "", nil},

			// Multi-item databases should be fully iterable
			{
				map[string]string{"k1": "v1", "k5": "v5", "k2": "v2", "k4": "v4", "k3": "v3"},
				"k", "",
				[]string{"k1", "k2", "k3", "k4", "k5"},
			},
			// Prefix and start position are combined
			{
				map[string]string{"ka1": "va1", "ka5": "va5", "kb2": "vb2", "ka3": "va3", "kb4": "vb4"},
				"ka", "3",
				[]string{"ka3", "ka5"},
			},
			// Start after the last key yields nothing
			{
				map[string]string{"ka1": "va1", "ka5": "va5"},
				"ka", "6",
				nil,
			},
		}
		for i, tt := range tests {
			db := New()
			for key, val := range tt.content {
				require.NoError(t, db.Put([]byte(key), []byte(val)), "test %d", i)
			}
			it := db.NewIterator([]byte(tt.prefix), []byte(tt.start))
			var keys []string
			for it.Next() {
				keys = append(keys, string(it.Key()))
				assert.Equal(t, tt.content[string(it.Key())], string(it.Value()), "test %d", i)
			}
			assert.NoError(t, it.Error(), "test %d", i)
			it.Release()
			assert.Equal(t, tt.order, keys, "test %d", i)
			db.Close()
		}
	})

	t.Run("IteratorWithMutation", func(t *testing.T) {
		db := New()
		defer db.Close()

		keys := []string{"1", "2", "3", "4", "6", "10", "11", "12", "20", "21", "22"}
		for _, k := range keys {
			require.NoError(t, db.Put([]byte(k), nil))
		}
		// Deleting every key while walking must not break the iterator.
		it := db.NewIterator(nil, nil)
		var seen int
		for it.Next() {
			require.NoError(t, db.Delete(it.Key()))
			seen++
		}
		require.NoError(t, it.Error())
		it.Release()
		assert.Equal(t, len(keys), seen)

		it = db.NewIterator(nil, nil)
		assert.False(t, it.Next())
		it.Release()
	})

	t.Run("Batch", func(t *testing.T) {
		db := New()
		defer db.Close()

		b := db.NewBatch()
		for _, k := range []string{"1", "2", "3", "4"} {
			require.NoError(t, b.Put([]byte(k), []byte(k)))
		}
		assert.Positive(t, b.ValueSize())
		ok, err := db.Has([]byte("1"))
		require.NoError(t, err)
		assert.False(t, ok, "batch must not write before Write")

		require.NoError(t, b.Write())
		assert.Equal(t, []string{"1", "2", "3", "4"}, iterateKeys(db.NewIterator(nil, nil)))

		b.Reset()
		assert.Zero(t, b.ValueSize())

		// Mix writes and deletes
		require.NoError(t, b.Delete([]byte("1")))
		require.NoError(t, b.Put([]byte("5"), []byte("5")))
		require.NoError(t, b.Delete([]byte("3")))
		require.NoError(t, b.Write())
		assert.Equal(t, []string{"2", "4", "5"}, iterateKeys(db.NewIterator(nil, nil)))
	})

	t.Run("BatchReplay", func(t *testing.T) {
		db := New()
		defer db.Close()

		want := []string{"1", "2", "3", "4"}
		b := db.NewBatch()
		for _, k := range want {
			require.NoError(t, b.Put([]byte(k), []byte(k)))
		}
		b2 := db.NewBatch()
		require.NoError(t, b.Replay(b2))
		require.NoError(t, b2.Replay(db))
		assert.Equal(t, want, iterateKeys(db.NewIterator(nil, nil)))
	})

	t.Run("DeleteRange", func(t *testing.T) {
		db := New()
		defer db.Close()

		for i := 0; i < 10; i++ {
			require.NoError(t, db.Put([]byte(fmt.Sprintf("k%d", i)), []byte{byte(i)}))
		}
		require.NoError(t, db.DeleteRange([]byte("k3"), []byte("k7")))
		assert.Equal(t, []string{"k0", "k1", "k2", "k7", "k8", "k9"}, iterateKeys(db.NewIterator(nil, nil)))
	})

	t.Run("OperationsAfterClose", func(t *testing.T) {
		db := New()
		require.NoError(t, db.Put([]byte("key"), []byte("value")))
		require.NoError(t, db.Close())

		_, err := db.Get([]byte("key"))
		assert.Error(t, err)
		assert.Error(t, db.Put([]byte("key2"), []byte("value2")))
	})

	t.Run("ValueCopy", func(t *testing.T) {
		db := New()
		defer db.Close()

		value := []byte("mutable")
		require.NoError(t, db.Put([]byte("key"), value))
		value[0] = 'X'
		got, err := db.Get([]byte("key"))
		require.NoError(t, err)
		assert.True(t, bytes.Equal(got, []byte("mutable")), "stored value aliased caller slice")
	})
}

func iterateKeys(it ethdb.Iterator) []string {
	var keys []string
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	it.Release()
	return keys
}
