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

package node

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/sunyihoo/go-txpool/internal/flags"
)

const datadirLock = "LOCK" // 实例目录锁文件

// Config represents a small collection of configuration values to fine tune the
// process hosting the pool.
// Config 表示用于微调承载交易池进程的配置集合。
type Config struct {
	// Name sets the instance name of the node. It must not contain the / character
	// and is used as the instance directory below DataDir.
	Name string `toml:"-"`

	// DataDir is the file system folder the node should use for any data storage
	// requirements. An empty DataDir keeps everything in memory and skips the
	// directory lock.
	DataDir string

	// DBEngine is the database engine, "leveldb", "pebble" or "memory". Empty
	// reuses whatever exists in the directory and falls back to pebble.
	DBEngine string `toml:",omitempty"`

	// DatabaseCache is the memory allowance of a database in megabytes.
	DatabaseCache int

	// DatabaseHandles is the number of open files a database may hold.
	DatabaseHandles int `toml:"-"`
}

// DefaultConfig contains reasonable default settings.
var DefaultConfig = Config{
	Name:            "txpool",
	DataDir:         DefaultDataDir(),
	DatabaseCache:   64,
	DatabaseHandles: 256,
}

// DefaultDataDir is the default data directory to use for the databases and other
// persistence requirements.
// DefaultDataDir 是用于数据库和其他持久性需求的默认数据目录。
func DefaultDataDir() string {
	home := flags.HomeDir()
	if home == "" {
		// As we cannot guess a stable location, return empty and handle later
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "TxPool")
	case "windows":
		if appdata := os.Getenv("LOCALAPPDATA"); appdata != "" {
			return filepath.Join(appdata, "TxPool")
		}
		return filepath.Join(home, "AppData", "Roaming", "TxPool")
	default:
		return filepath.Join(home, ".txpool")
	}
}

func (c *Config) name() string {
	if c.Name == "" {
		return "txpool"
	}
	return c.Name
}

// ResolvePath resolves path in the instance directory. Absolute paths are
// returned unchanged, and an ephemeral node resolves everything to "".
// ResolvePath 在实例目录中解析路径。
func (c *Config) ResolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.instanceDir(), path)
}

func (c *Config) instanceDir() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, c.name())
}
