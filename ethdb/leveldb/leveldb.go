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

//go:build !js
// +build !js

// Package leveldb implements the key-value database layer based on LevelDB.
// Package leveldb 实现了基于 LevelDB 的键值数据库层，用于持久化池中的交易。
package leveldb

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	kitmetrics "github.com/go-kit/kit/metrics"
	"github.com/sunyihoo/go-txpool/common"
	"github.com/sunyihoo/go-txpool/ethdb"
	"github.com/sunyihoo/go-txpool/log"
	"github.com/sunyihoo/go-txpool/metrics"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	// degradationWarnInterval specifies how often warning should be printed if the
	// leveldb database cannot keep up with requested writes.
	// degradationWarnInterval 指定写入跟不上时多久打印一次警告。
	degradationWarnInterval = time.Minute

	// minCache is the minimum amount of memory in megabytes to allocate to leveldb
	// read and write caching, split half and half.
	minCache = 16

	// minHandles is the minimum number of files handles to allocate to the open
	// database files.
	minHandles = 16

	// metricsGatheringInterval specifies the interval to retrieve leveldb database
	// compaction, io and pause stats to report to the user.
	metricsGatheringInterval = 3 * time.Second

	// maxRangeDeleteKeys caps a single DeleteRange call.
	maxRangeDeleteKeys = 10000
)

// ErrTooManyKeys is returned if DeleteRange hit its key budget. Callers retry
// until the call succeeds.
var ErrTooManyKeys = errors.New("too many keys in deleted range")

// Database is a persistent key-value store. Apart from basic data storage
// functionality it also supports batch writes and iterating over the keyspace in
// binary-alphabetical order.
//
// Database 是持久化键值存储，支持批量写入和按二进制顺序遍历键空间。
type Database struct {
	fn string      // filename for reporting
	db *leveldb.DB // LevelDB instance

	compTimeMeter       kitmetrics.Counter // Total time spent in database compaction
	compReadMeter       kitmetrics.Counter // Data read during compaction
	compWriteMeter      kitmetrics.Counter // Data written during compaction
	writeDelayNMeter    kitmetrics.Counter // Write delay number due to database compaction
	writeDelayMeter     kitmetrics.Counter // Write delay duration due to database compaction
	diskSizeGauge       kitmetrics.Gauge   // Size of all the levels in the database
	diskReadMeter       kitmetrics.Counter // Effective amount of data read
	diskWriteMeter      kitmetrics.Counter // Effective amount of data written
	memCompGauge        kitmetrics.Gauge   // Number of memory compaction
	level0CompGauge     kitmetrics.Gauge   // Number of table compaction in level0
	nonlevel0CompGauge  kitmetrics.Gauge   // Number of table compaction in non0 level
	seekCompGauge       kitmetrics.Gauge   // Number of table compaction caused by read opt
	levelsGauge         kitmetrics.Gauge   // Number of tables per level, labelled by level

	quitLock sync.Mutex      // Mutex protecting the quit channel access
	quitChan chan chan error // Quit channel to stop the metrics collection before closing the database

	log log.Logger // Contextual logger tracking the database path
}

// New returns a wrapped LevelDB object. The namespace is the prefix that the
// metrics reporting should use for surfacing internal stats.
//
// New 返回一个封装的 LevelDB 对象。namespace 是指标名的前缀。
func New(file string, cache int, handles int, namespace string, readonly bool) (*Database, error) {
	return NewCustom(file, namespace, func(options *opt.Options) {
		// Ensure we have some minimal caching and file guarantees
		if cache < minCache {
			cache = minCache
		}
		if handles < minHandles {
			handles = minHandles
		}
		options.OpenFilesCacheCapacity = handles
		options.BlockCacheCapacity = cache / 2 * opt.MiB
		options.WriteBuffer = cache / 4 * opt.MiB // Two of these are used internally
		if readonly {
			options.ReadOnly = true
		}
	})
}

// NewCustom returns a wrapped LevelDB object. The customize function allows the
// caller to modify the leveldb options.
func NewCustom(file string, namespace string, customize func(options *opt.Options)) (*Database, error) {
	options := configureOptions(customize)
	logger := log.New("database", file)
	usedCache := options.GetBlockCacheCapacity() + options.GetWriteBuffer()*2
	logCtx := []interface{}{"cache", common.StorageSize(usedCache), "handles", options.GetOpenFilesCacheCapacity()}
	if options.ReadOnly {
		logCtx = append(logCtx, "readonly", "true")
	}
	logger.Info("Allocated cache and file handles", logCtx...)

	// Open the db and recover any potential corruptions
	// 打开数据库，并在损坏时尝试恢复
	db, err := leveldb.OpenFile(file, options)
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		logger.Warn("Database corrupted, recovering")
		db, err = leveldb.RecoverFile(file, nil)
	}
	if err != nil {
		return nil, err
	}
	return wrap(db, file, namespace, logger), nil
}

// NewFromStorage opens a database on top of an arbitrary goleveldb storage,
// e.g. storage.NewMemStorage() for an in-memory pool.
func NewFromStorage(stor storage.Storage, namespace string) (*Database, error) {
	db, err := leveldb.Open(stor, configureOptions(nil))
	if err != nil {
		return nil, err
	}
	return wrap(db, "", namespace, log.New("database", "memory")), nil
}

// wrap assembles the wrapper with all the registered metrics and starts the
// metrics gathering.
func wrap(db *leveldb.DB, file string, namespace string, logger log.Logger) *Database {
	ldb := &Database{
		fn:       file,
		db:       db,
		log:      logger,
		quitChan: make(chan chan error),
	}
	ldb.compTimeMeter = metrics.GetOrRegisterCounter(namespace+"compact/time", "Nanoseconds spent in compaction")
	ldb.compReadMeter = metrics.GetOrRegisterCounter(namespace+"compact/input", "Bytes read during compaction")
	ldb.compWriteMeter = metrics.GetOrRegisterCounter(namespace+"compact/output", "Bytes written during compaction")
	ldb.diskSizeGauge = metrics.GetOrRegisterGauge(namespace+"disk/size", "Size of all levels in bytes")
	ldb.diskReadMeter = metrics.GetOrRegisterCounter(namespace+"disk/read", "Effective bytes read")
	ldb.diskWriteMeter = metrics.GetOrRegisterCounter(namespace+"disk/write", "Effective bytes written")
	ldb.writeDelayMeter = metrics.GetOrRegisterCounter(namespace+"compact/writedelay/duration", "Nanoseconds of write delay")
	ldb.writeDelayNMeter = metrics.GetOrRegisterCounter(namespace+"compact/writedelay/counter", "Number of write delays")
	ldb.memCompGauge = metrics.GetOrRegisterGauge(namespace+"compact/memory", "Memory compactions")
	ldb.level0CompGauge = metrics.GetOrRegisterGauge(namespace+"compact/level0", "Level0 table compactions")
	ldb.nonlevel0CompGauge = metrics.GetOrRegisterGauge(namespace+"compact/nonlevel0", "Non level0 table compactions")
	ldb.seekCompGauge = metrics.GetOrRegisterGauge(namespace+"compact/seek", "Seek triggered compactions")
	ldb.levelsGauge = metrics.GetOrRegisterGauge(namespace+"tables", "Tables per level", "level")

	go ldb.meter(metricsGatheringInterval)
	return ldb
}

// configureOptions sets some default options, then runs the provided setter.
func configureOptions(customizeFn func(*opt.Options)) *opt.Options {
	options := &opt.Options{
		Filter:                 filter.NewBloomFilter(10),
		DisableSeeksCompaction: true,
	}
	if customizeFn != nil {
		customizeFn(options)
	}
	return options
}

// Close stops the metrics collection, flushes any pending data to disk and closes
// all io accesses to the underlying key-value store.
// Close 停止指标采集，刷盘并关闭底层存储。
func (db *Database) Close() error {
	db.quitLock.Lock()
	defer db.quitLock.Unlock()

	if db.quitChan != nil {
		errc := make(chan error)
		db.quitChan <- errc
		if err := <-errc; err != nil {
			db.log.Error("Metrics collection failed", "err", err)
		}
		db.quitChan = nil
	}
	return db.db.Close()
}

// Has retrieves if a key is present in the key-value store.
func (db *Database) Has(key []byte) (bool, error) {
	return db.db.Has(key, nil)
}

// Get retrieves the given key if it's present in the key-value store.
func (db *Database) Get(key []byte) ([]byte, error) {
	dat, err := db.db.Get(key, nil)
	if err != nil {
		return nil, err
	}
	return dat, nil
}

// Put inserts the given value into the key-value store.
func (db *Database) Put(key []byte, value []byte) error {
	return db.db.Put(key, value, nil)
}

// Delete removes the key from the key-value store.
func (db *Database) Delete(key []byte) error {
	return db.db.Delete(key, nil)
}

// DeleteRange deletes all of the keys (and values) in the range [start,end)
// (inclusive on start, exclusive on end).
//
// LevelDB has no native range deletion, so this walks the range and deletes
// in a batch. At most maxRangeDeleteKeys are removed per call, after which
// ErrTooManyKeys is returned.
// LevelDB 不支持原生范围删除，单次调用最多删除 maxRangeDeleteKeys 个键。
func (db *Database) DeleteRange(start, end []byte) error {
	batch := db.NewBatch()
	it := db.NewIterator(nil, start)
	defer it.Release()

	var count int
	for it.Next() && bytes.Compare(end, it.Key()) > 0 {
		count++
		if count > maxRangeDeleteKeys {
			if err := batch.Write(); err != nil {
				return err
			}
			return ErrTooManyKeys
		}
		if err := batch.Delete(it.Key()); err != nil {
			return err
		}
	}
	return batch.Write()
}

// NewBatch creates a write-only key-value store that buffers changes to its host
// database until a final write is called.
func (db *Database) NewBatch() ethdb.Batch {
	return &batch{
		db: db.db,
		b:  new(leveldb.Batch),
	}
}

// NewBatchWithSize creates a write-only database batch with pre-allocated buffer.
func (db *Database) NewBatchWithSize(size int) ethdb.Batch {
	return &batch{
		db: db.db,
		b:  leveldb.MakeBatch(size),
	}
}

// NewIterator creates a binary-alphabetical iterator over a subset
// of database content with a particular key prefix, starting at a particular
// initial key (or after, if it does not exist).
func (db *Database) NewIterator(prefix []byte, start []byte) ethdb.Iterator {
	return db.db.NewIterator(bytesPrefixRange(prefix, start), nil)
}

// Stat returns the statistic data of the database.
func (db *Database) Stat() (string, error) {
	var stats leveldb.DBStats
	if err := db.db.Stats(&stats); err != nil {
		return "", err
	}
	var (
		message       string
		totalRead     int64
		totalWrite    int64
		totalSize     int64
		totalTables   int
		totalDuration time.Duration
	)
	if len(stats.LevelSizes) > 0 {
		message += " Level |   Tables   |    Size(MB)   |    Time(sec)  |    Read(MB)   |   Write(MB)\n" +
			"-------+------------+---------------+---------------+---------------+---------------\n"
		for level, size := range stats.LevelSizes {
			read := stats.LevelRead[level]
			write := stats.LevelWrite[level]
			duration := stats.LevelDurations[level]
			tables := stats.LevelTablesCounts[level]

			if tables == 0 && duration == 0 {
				continue
			}
			totalTables += tables
			totalSize += size
			totalRead += read
			totalWrite += write
			totalDuration += duration
			message += fmt.Sprintf(" %3d   | %10d | %13.5f | %13.5f | %13.5f | %13.5f\n",
				level, tables, float64(size)/1048576.0, duration.Seconds(),
				float64(read)/1048576.0, float64(write)/1048576.0)
		}
		message += "-------+------------+---------------+---------------+---------------+---------------\n"
		message += fmt.Sprintf(" Total | %10d | %13.5f | %13.5f | %13.5f | %13.5f\n",
			totalTables, float64(totalSize)/1048576.0, totalDuration.Seconds(),
			float64(totalRead)/1048576.0, float64(totalWrite)/1048576.0)
		message += "-------+------------+---------------+---------------+---------------+---------------\n\n"
	}
	message += fmt.Sprintf("Read(MB):%.5f Write(MB):%.5f\n", float64(stats.IORead)/1048576.0, float64(stats.IOWrite)/1048576.0)
	message += fmt.Sprintf("BlockCache(MB):%.5f FileCache:%d\n", float64(stats.BlockCacheSize)/1048576.0, stats.OpenedTablesCount)
	message += fmt.Sprintf("MemoryCompaction:%d Level0Compaction:%d NonLevel0Compaction:%d SeekCompaction:%d\n", stats.MemComp, stats.Level0Comp, stats.NonLevel0Comp, stats.SeekComp)
	message += fmt.Sprintf("WriteDelayCount:%d WriteDelayDuration:%s Paused:%t\n", stats.WriteDelayCount, common.PrettyDuration(stats.WriteDelayDuration), stats.WritePaused)
	message += fmt.Sprintf("Snapshots:%d Iterators:%d\n", stats.AliveSnapshots, stats.AliveIterators)
	return message, nil
}

// Compact flattens the underlying data store for the given key range. A nil
// start or limit is treated as the respective end of the keyspace.
func (db *Database) Compact(start []byte, limit []byte) error {
	return db.db.CompactRange(util.Range{Start: start, Limit: limit})
}

// Path returns the path to the database directory.
func (db *Database) Path() string {
	return db.fn
}

// meter periodically retrieves internal leveldb counters and reports them to
// the metrics subsystem.
// meter 定期读取 LevelDB 内部统计并上报给指标子系统。
func (db *Database) meter(refresh time.Duration) {
	// Create the counters to store current and previous compaction values
	compactions := make([][]int64, 2)
	for i := 0; i < 2; i++ {
		compactions[i] = make([]int64, 4)
	}
	var (
		errc chan error
		merr error

		stats           leveldb.DBStats
		iostats         [2]int64
		delaystats      [2]int64
		lastWritePaused time.Time
	)
	timer := time.NewTimer(refresh)
	defer timer.Stop()

	// Iterate ad infinitum and collect the stats
	for i := 1; errc == nil && merr == nil; i++ {
		err := db.db.Stats(&stats)
		if err != nil {
			db.log.Error("Failed to read database stats", "err", err)
			merr = err
			continue
		}
		for j := 0; j < len(compactions[i%2]); j++ {
			compactions[i%2][j] = 0
		}
		compactions[i%2][0] = stats.LevelSizes.Sum()
		for _, t := range stats.LevelDurations {
			compactions[i%2][1] += t.Nanoseconds()
		}
		compactions[i%2][2] = stats.LevelRead.Sum()
		compactions[i%2][3] = stats.LevelWrite.Sum()

		db.diskSizeGauge.Set(float64(compactions[i%2][0]))
		mark(db.compTimeMeter, compactions[i%2][1] - compactions[(i-1)%2][1])
		mark(db.compReadMeter, compactions[i%2][2] - compactions[(i-1)%2][2])
		mark(db.compWriteMeter, compactions[i%2][3] - compactions[(i-1)%2][3])

		var (
			delayN   = int64(stats.WriteDelayCount)
			duration = stats.WriteDelayDuration
			paused   = stats.WritePaused
		)
		mark(db.writeDelayNMeter, delayN - delaystats[0])
		mark(db.writeDelayMeter, duration.Nanoseconds() - delaystats[1])

		// If a warning that db is performing compaction has been displayed, any subsequent
		// warnings will be withheld for one minute not to overwhelm the user.
		if paused && delayN-delaystats[0] == 0 && duration.Nanoseconds()-delaystats[1] == 0 &&
			time.Now().After(lastWritePaused.Add(degradationWarnInterval)) {
			db.log.Warn("Database compacting, degraded performance")
			lastWritePaused = time.Now()
		}
		delaystats[0], delaystats[1] = delayN, duration.Nanoseconds()

		var (
			nRead  = int64(stats.IORead)
			nWrite = int64(stats.IOWrite)
		)
		mark(db.diskReadMeter, nRead - iostats[0])
		mark(db.diskWriteMeter, nWrite - iostats[1])
		iostats[0], iostats[1] = nRead, nWrite

		db.memCompGauge.Set(float64(stats.MemComp))
		db.level0CompGauge.Set(float64(stats.Level0Comp))
		db.nonlevel0CompGauge.Set(float64(stats.NonLevel0Comp))
		db.seekCompGauge.Set(float64(stats.SeekComp))

		for level, tables := range stats.LevelTablesCounts {
			db.levelsGauge.With("level", fmt.Sprint(level)).Set(float64(tables))
		}

		// Sleep a bit, then repeat the stats collection
		select {
		case errc = <-db.quitChan:
			// Quit requesting, stop hammering the database
		case <-timer.C:
			timer.Reset(refresh)
		}
	}

	if errc == nil {
		errc = <-db.quitChan
	}
	errc <- merr
}

// mark adds a positive delta to the counter. Prometheus counters reject
// negative increments, which a reopened database can produce.
func mark(c kitmetrics.Counter, delta int64) {
	if delta > 0 {
		c.Add(float64(delta))
	}
}

// batch is a write-only leveldb batch that commits changes to its host database
// when Write is called. A batch cannot be used concurrently.
type batch struct {
	db   *leveldb.DB
	b    *leveldb.Batch
	size int
}

// Put inserts the given value into the batch for later committing.
func (b *batch) Put(key, value []byte) error {
	b.b.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

// Delete inserts the key removal into the batch for later committing.
func (b *batch) Delete(key []byte) error {
	b.b.Delete(key)
	b.size += len(key)
	return nil
}

// ValueSize retrieves the amount of data queued up for writing.
func (b *batch) ValueSize() int {
	return b.size
}

// Write flushes any accumulated data to disk.
func (b *batch) Write() error {
	return b.db.Write(b.b, nil)
}

// Reset resets the batch for reuse.
func (b *batch) Reset() {
	b.b.Reset()
	b.size = 0
}

// Replay replays the batch contents.
func (b *batch) Replay(w ethdb.KeyValueWriter) error {
	r := &replayer{writer: w}
	if err := b.b.Replay(r); err != nil {
		return err
	}
	return r.failure
}

// replayer is a small wrapper to implement the correct replay methods.
type replayer struct {
	writer  ethdb.KeyValueWriter
	failure error
}

// Put inserts the given value into the key-value data store.
func (r *replayer) Put(key, value []byte) {
	// If the replay already failed, stop executing ops
	if r.failure != nil {
		return
	}
	r.failure = r.writer.Put(key, value)
}

// Delete removes the key from the key-value data store.
func (r *replayer) Delete(key []byte) {
	if r.failure != nil {
		return
	}
	r.failure = r.writer.Delete(key)
}

// bytesPrefixRange returns key range that satisfy
// - the given prefix, and
// - the given seek position
func bytesPrefixRange(prefix, start []byte) *util.Range {
	r := util.BytesPrefix(prefix)
	r.Start = append(common.CopyBytes(prefix), start...)
	return r
}
