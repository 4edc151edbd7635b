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
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/sunyihoo/go-txpool/common"
	"github.com/sunyihoo/go-txpool/ethdb"
	"github.com/sunyihoo/go-txpool/ethdb/leveldb"
	"github.com/sunyihoo/go-txpool/ethdb/memorydb"
	"github.com/sunyihoo/go-txpool/ethdb/pebble"
	"github.com/sunyihoo/go-txpool/log"
)

const (
	DBPebble  = "pebble"
	DBLeveldb = "leveldb"
	DBMemory  = "memory"
)

// NewMemoryDatabase creates an ephemeral in-memory key-value database.
// NewMemoryDatabase 创建一个临时的内存键值数据库。
func NewMemoryDatabase() ethdb.KeyValueStore {
	return memorydb.New()
}

// OpenOptions contains the options to apply when opening a database.
// OpenOptions 包含打开数据库时要应用的选项。
type OpenOptions struct {
	Type      string // "leveldb" | "pebble" | "memory", empty picks the existing or default engine
	Directory string // the datadir
	Namespace string // the namespace for database relevant metrics
	Cache     int    // the capacity(in megabytes) of the data caching
	Handles   int    // number of files to be open simultaneously
	ReadOnly  bool
}

// Open opens a key-value database, e.g. leveldb or pebble.
//
// Open 打开键值数据库，例如 leveldb 或 pebble。
//
//	                      type == null          type != null
//	                   +----------------------------------------
//	db is non-existent |  pebble default  |  specified type
//	db is existent     |  from db         |  specified type (if compatible)
func Open(o OpenOptions) (ethdb.KeyValueStore, error) {
	if o.Type == DBMemory {
		log.Info("Using an in-memory database, pool rows will not survive a restart")
		return NewMemoryDatabase(), nil
	}
	// Reject any unsupported database type
	// 拒绝任何不支持的数据库类型
	if len(o.Type) != 0 && o.Type != DBLeveldb && o.Type != DBPebble {
		return nil, fmt.Errorf("unknown db.engine %v", o.Type)
	}
	// Retrieve any pre-existing database's type and use that or the requested one
	// as long as there's no conflict between the two types
	existingDb := PreexistingDatabase(o.Directory)
	if len(existingDb) != 0 && len(o.Type) != 0 && o.Type != existingDb {
		return nil, fmt.Errorf("db.engine choice was %v but found pre-existing %v database in specified data directory", o.Type, existingDb)
	}
	if o.Type == DBPebble || existingDb == DBPebble {
		log.Info("Using pebble as the backing database")
		return newPebbleDBDatabase(o)
	}
	if o.Type == DBLeveldb || existingDb == DBLeveldb {
		log.Info("Using leveldb as the backing database")
		return newLevelDBDatabase(o)
	}
	// No pre-existing database, no user-requested one either. Default to Pebble.
	// 没有预先存在的数据库，用户也没有请求特定类型，默认使用 Pebble。
	log.Info("Defaulting to pebble as the backing database")
	return newPebbleDBDatabase(o)
}

func newLevelDBDatabase(o OpenOptions) (ethdb.KeyValueStore, error) {
	db, err := leveldb.New(o.Directory, o.Cache, o.Handles, o.Namespace, o.ReadOnly)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func newPebbleDBDatabase(o OpenOptions) (ethdb.KeyValueStore, error) {
	db, err := pebble.New(o.Directory, o.Cache, o.Handles, o.Namespace, o.ReadOnly)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// PreexistingDatabase checks the given data directory whether a database is already
// instantiated at that location, and if so, returns the type of database (or the
// empty string).
func PreexistingDatabase(path string) string {
	if _, err := os.Stat(filepath.Join(path, "CURRENT")); err != nil {
		return "" // No pre-existing db
	}
	if matches, err := filepath.Glob(filepath.Join(path, "OPTIONS*")); len(matches) > 0 || err != nil {
		if err != nil {
			panic(err) // only possible if the pattern is malformed
		}
		return DBPebble
	}
	return DBLeveldb
}

// stat stores sizes and count for a parameter
type stat struct {
	size  common.StorageSize
	count uint64
}

// Add size to the stat and increase the counter by 1
func (s *stat) Add(size common.StorageSize) {
	s.size += size
	s.count++
}

func (s *stat) Size() string {
	return s.size.String()
}

func (s *stat) Count() string {
	return fmt.Sprintf("%d", s.count)
}

// InspectDatabase traverses the entire database and prints the size of the
// pool rows and of everything else to out.
//
// InspectDatabase 遍历整个数据库，统计池内交易行与其他数据的大小。
func InspectDatabase(db ethdb.KeyValueStore, out io.Writer) error {
	it := db.NewIterator(nil, nil)
	defer it.Release()

	var (
		count  int64
		start  = time.Now()
		logged = time.Now()

		poolTxs     stat
		unaccounted stat
		total       common.StorageSize
	)
	for it.Next() {
		var (
			key  = it.Key()
			size = common.StorageSize(len(key) + len(it.Value()))
		)
		total += size
		switch {
		case bytes.HasPrefix(key, poolTransactionPrefix):
			poolTxs.Add(size)
		default:
			unaccounted.Add(size)
		}
		count++
		if count%1000 == 0 && time.Since(logged) > 8*time.Second {
			log.Info("Inspecting database", "count", count, "elapsed", common.PrettyDuration(time.Since(start)))
			logged = time.Now()
		}
	}
	if err := it.Error(); err != nil {
		return err
	}
	stats := [][]string{
		{"Key-Value store", "Pool transactions", poolTxs.Size(), poolTxs.Count()},
		{"Key-Value store", "Unaccounted", unaccounted.Size(), unaccounted.Count()},
	}
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Database", "Category", "Size", "Items"})
	table.SetFooter([]string{"", "Total", total.String(), " "})
	table.AppendBulk(stats)
	table.Render()

	if unaccounted.size > 0 {
		log.Error("Database contains unaccounted data", "size", unaccounted.size, "count", unaccounted.count)
	}
	return nil
}
