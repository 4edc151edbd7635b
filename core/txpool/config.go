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
	"time"

	"github.com/sunyihoo/go-txpool/log"
)

// DynamicFeesConfig selects between static and dynamic fee admission.
// DynamicFeesConfig 在静态手续费与动态手续费准入之间切换。
type DynamicFeesConfig struct {
	Enabled         bool
	MinFeePool      uint64            // Satoshi per byte required to enter the pool
	MinFeeBroadcast uint64            // Satoshi per byte required to be rebroadcast
	AddonBytes      map[string]uint64 // Extra bytes charged per handler key
}

// Config are the configuration parameters of the transaction pool.
// Config 是交易池的配置参数。
type Config struct {
	MaxTransactionsInPool    int      // Global ceiling on pooled transactions
	MaxTransactionsPerSender int      // Per sender ceiling, not applied to AllowedSenders
	AllowedSenders           []string // Sender public keys exempt from the per sender ceiling
	MaxTransactionBytes      int      // Ceiling on the serialized size of a transaction
	MaxTransactionAge        uint64   // Lifetime of legacy transactions in blocks

	DynamicFees DynamicFeesConfig

	Reset           bool          `toml:"-"` // Flush pool and storage at boot instead of rehydrating
	CleanupInterval time.Duration // Period of the expiry and capacity sweep
	EventQueue      int           // Buffered pool events before new ones are dropped
}

// DefaultConfig contains the default configurations for the transaction pool.
var DefaultConfig = Config{
	MaxTransactionsInPool:    15000,
	MaxTransactionsPerSender: 150,
	MaxTransactionBytes:      2000000,
	MaxTransactionAge:        2700,

	DynamicFees: DynamicFeesConfig{
		Enabled:         true,
		MinFeePool:      3000,
		MinFeeBroadcast: 3000,
		AddonBytes: map[string]uint64{
			"transfer": 100,
		},
	},

	CleanupInterval: 8 * time.Second,
	EventQueue:      1024,
}

// sanitize checks the provided user configurations and changes anything that's
// unreasonable or unworkable.
func (config *Config) sanitize() Config {
	conf := *config
	if conf.MaxTransactionsInPool < 1 {
		log.Warn("Sanitizing invalid txpool max transactions", "provided", conf.MaxTransactionsInPool, "updated", DefaultConfig.MaxTransactionsInPool)
		conf.MaxTransactionsInPool = DefaultConfig.MaxTransactionsInPool
	}
	if conf.MaxTransactionsPerSender < 1 {
		log.Warn("Sanitizing invalid txpool max transactions per sender", "provided", conf.MaxTransactionsPerSender, "updated", DefaultConfig.MaxTransactionsPerSender)
		conf.MaxTransactionsPerSender = DefaultConfig.MaxTransactionsPerSender
	}
	if conf.MaxTransactionBytes < 1 {
		log.Warn("Sanitizing invalid txpool max transaction bytes", "provided", conf.MaxTransactionBytes, "updated", DefaultConfig.MaxTransactionBytes)
		conf.MaxTransactionBytes = DefaultConfig.MaxTransactionBytes
	}
	if conf.MaxTransactionAge < 1 {
		log.Warn("Sanitizing invalid txpool max transaction age", "provided", conf.MaxTransactionAge, "updated", DefaultConfig.MaxTransactionAge)
		conf.MaxTransactionAge = DefaultConfig.MaxTransactionAge
	}
	if conf.CleanupInterval < time.Second {
		log.Warn("Sanitizing invalid txpool cleanup interval", "provided", conf.CleanupInterval, "updated", time.Second)
		conf.CleanupInterval = time.Second
	}
	if conf.EventQueue < 1 {
		log.Warn("Sanitizing invalid txpool event queue", "provided", conf.EventQueue, "updated", DefaultConfig.EventQueue)
		conf.EventQueue = DefaultConfig.EventQueue
	}
	if conf.DynamicFees.AddonBytes == nil {
		conf.DynamicFees.AddonBytes = make(map[string]uint64)
	}
	return conf
}
