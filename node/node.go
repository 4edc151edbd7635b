// Copyright 2015 The go-ethereum Authors
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

package node

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/sunyihoo/go-txpool/core/rawdb"
	"github.com/sunyihoo/go-txpool/ethdb"
	"github.com/sunyihoo/go-txpool/log"
)

// Node is a container on which services can be registered.
// Node 是一个可以注册服务的容器。
type Node struct {
	config        *Config
	log           log.Logger
	dirLock       *flock.Flock // prevents concurrent use of instance directory
	stop          chan struct{}
	startStopLock sync.Mutex // Start/Stop are protected by an additional lock
	state         int        // Tracks state of node lifecycle

	lock       sync.Mutex
	lifecycles []Lifecycle // All registered backends, services, and auxiliary services that have a lifecycle
	databases  map[*closeTrackingDB]struct{}
}

const (
	initializingState = iota
	runningState
	closedState
)

// New creates a new node and takes the data directory lock.
// New 创建一个新节点并获取数据目录锁。
func New(conf *Config) (*Node, error) {
	// Copy config and resolve the datadir so future changes to the current
	// working directory don't affect the node.
	confCopy := *conf
	conf = &confCopy
	if conf.DataDir != "" {
		absdatadir, err := filepath.Abs(conf.DataDir)
		if err != nil {
			return nil, err
		}
		conf.DataDir = absdatadir
	}
	if strings.ContainsAny(conf.Name, `/\`) {
		return nil, errors.New(`Config.Name must not contain '/' or '\'`)
	}
	node := &Node{
		config:    conf,
		log:       log.New("datadir", conf.DataDir),
		stop:      make(chan struct{}),
		databases: make(map[*closeTrackingDB]struct{}),
	}
	if err := node.openDataDir(); err != nil {
		return nil, err
	}
	return node, nil
}

// Start starts all registered lifecycles. Node can only be started once.
// Start 启动所有已注册的生命周期。节点只能启动一次。
func (n *Node) Start() error {
	n.startStopLock.Lock()
	defer n.startStopLock.Unlock()

	n.lock.Lock()
	switch n.state {
	case runningState:
		n.lock.Unlock()
		return ErrNodeRunning
	case closedState:
		n.lock.Unlock()
		return ErrNodeStopped
	}
	n.state = runningState
	lifecycles := make([]Lifecycle, len(n.lifecycles))
	copy(lifecycles, n.lifecycles)
	n.lock.Unlock()

	// Start all registered lifecycles.
	var started []Lifecycle
	var err error
	for _, lifecycle := range lifecycles {
		if err = lifecycle.Start(); err != nil {
			break
		}
		started = append(started, lifecycle)
	}
	// Check if any lifecycle failed to start.
	if err != nil {
		n.stopServices(started)
		n.doClose(nil)
	}
	return err
}

// Close stops the Node and releases resources acquired in
// Node constructor New.
// Close 停止节点并释放在构造函数 New 中获取的资源。
func (n *Node) Close() error {
	n.startStopLock.Lock()
	defer n.startStopLock.Unlock()

	n.lock.Lock()
	state := n.state
	n.lock.Unlock()
	switch state {
	case initializingState:
		// The node was never started.
		return n.doClose(nil)
	case runningState:
		// The node was started, release resources acquired by Start().
		var errs []error
		if err := n.stopServices(n.lifecycles); err != nil {
			errs = append(errs, err)
		}
		return n.doClose(errs)
	case closedState:
		return ErrNodeStopped
	default:
		panic("invalid node state")
	}
}

// doClose releases resources acquired by New(), collecting errors.
func (n *Node) doClose(errs []error) error {
	n.lock.Lock()
	n.state = closedState
	if dbErrs := n.closeDatabases(); len(dbErrs) > 0 {
		errs = append(errs, &StopError{Databases: dbErrs})
	}
	n.lock.Unlock()

	// Release instance directory lock.
	n.closeDataDir()

	// Unblock n.Wait.
	close(n.stop)

	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}

// stopServices terminates running services in reverse order.
func (n *Node) stopServices(running []Lifecycle) error {
	var failed []error
	for i := len(running) - 1; i >= 0; i-- {
		if err := running[i].Stop(); err != nil {
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return &StopError{Services: failed}
	}
	return nil
}

func (n *Node) openDataDir() error {
	if n.config.DataDir == "" {
		return nil // ephemeral
	}
	instdir := n.config.instanceDir()
	if err := os.MkdirAll(instdir, 0700); err != nil {
		return err
	}
	// Lock the instance directory to prevent concurrent use by another instance as well as
	// accidental use of the instance directory as a database.
	// 锁定实例目录，防止其他实例并发使用。
	n.dirLock = flock.New(filepath.Join(instdir, datadirLock))

	if locked, err := n.dirLock.TryLock(); err != nil {
		return convertFileLockError(err)
	} else if !locked {
		return ErrDatadirUsed
	}
	return nil
}

func (n *Node) closeDataDir() {
	// Release instance directory lock.
	if n.dirLock != nil && n.dirLock.Locked() {
		n.dirLock.Unlock()
		n.dirLock = nil
	}
}

// Wait blocks until the node is closed.
func (n *Node) Wait() {
	<-n.stop
}

// RegisterLifecycle registers the given Lifecycle on the node.
// RegisterLifecycle 在节点上注册给定的生命周期。
func (n *Node) RegisterLifecycle(lifecycle Lifecycle) {
	n.lock.Lock()
	defer n.lock.Unlock()

	if n.state != initializingState {
		panic("can't register lifecycle on running/stopped node")
	}
	for _, l := range n.lifecycles {
		if l == lifecycle {
			panic("attempt to register lifecycle twice")
		}
	}
	n.lifecycles = append(n.lifecycles, lifecycle)
}

// Config returns the configuration of node.
func (n *Node) Config() *Config {
	return n.config
}

// DataDir retrieves the current datadir used by the node.
func (n *Node) DataDir() string {
	return n.config.DataDir
}

// OpenDatabase opens an existing database with the given name (or creates one if
// no previous can be found) from within the node's instance directory. If the node
// is ephemeral, a memory database is returned.
// OpenDatabase 从节点的实例目录中打开具有给定名称的现有数据库（如果找不到则创建一个）。
func (n *Node) OpenDatabase(name, namespace string, readonly bool) (ethdb.KeyValueStore, error) {
	n.lock.Lock()
	defer n.lock.Unlock()
	if n.state == closedState {
		return nil, ErrNodeStopped
	}
	var db ethdb.KeyValueStore
	var err error
	if n.config.DataDir == "" {
		db = rawdb.NewMemoryDatabase()
	} else {
		db, err = rawdb.Open(rawdb.OpenOptions{
			Type:      n.config.DBEngine,
			Directory: n.ResolvePath(name),
			Namespace: namespace,
			Cache:     n.config.DatabaseCache,
			Handles:   n.config.DatabaseHandles,
			ReadOnly:  readonly,
		})
	}
	if err != nil {
		return nil, err
	}
	n.log.Debug("Opened database", "name", name, "readonly", readonly)
	return n.wrapDatabase(db), nil
}

// ResolvePath returns the absolute path of a resource in the instance directory.
func (n *Node) ResolvePath(x string) string {
	return n.config.ResolvePath(x)
}

// closeTrackingDB wraps the Close method of a database. When the database is closed by the
// service, the wrapper removes it from the node's database map. This ensures that Node
// won't auto-close the database if it is closed by the service that opened it.
// closeTrackingDB 包装了数据库的 Close 方法。
type closeTrackingDB struct {
	ethdb.KeyValueStore
	n *Node
}

func (db *closeTrackingDB) Close() error {
	db.n.lock.Lock()
	delete(db.n.databases, db)
	db.n.lock.Unlock()
	return db.KeyValueStore.Close()
}

// wrapDatabase ensures the database will be auto-closed when Node is closed.
func (n *Node) wrapDatabase(db ethdb.KeyValueStore) ethdb.KeyValueStore {
	wrapper := &closeTrackingDB{db, n}
	n.databases[wrapper] = struct{}{}
	return wrapper
}

// closeDatabases closes all open databases.
func (n *Node) closeDatabases() (errors []error) {
	for db := range n.databases {
		delete(n.databases, db)
		if err := db.KeyValueStore.Close(); err != nil {
			errors = append(errors, err)
		}
	}
	return errors
}
