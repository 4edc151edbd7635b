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
package wallet

import (
	"fmt"
	"sync"

	"github.com/sunyihoo/go-txpool/core/txpool"
	"github.com/sunyihoo/go-txpool/core/types"
)

type handlerKey struct {
	typeGroup uint32
	typ       uint16
}

// Registry resolves transaction handlers by type group and type. It also
// resets the ledger's pool view when the pool is flushed.
type Registry struct {
	manager *Manager

	mu       sync.RWMutex
	handlers map[handlerKey]txpool.Handler
}

// NewRegistry creates a registry with the core transfer handler installed.
func NewRegistry(manager *Manager) *Registry {
	r := &Registry{
		manager:  manager,
		handlers: make(map[handlerKey]txpool.Handler),
	}
	r.Register(types.CoreTypeGroup, types.TransferType, NewTransferHandler(manager))
	return r
}

// Register installs a handler, replacing any previous one for the same type.
func (r *Registry) Register(typeGroup uint32, typ uint16, h txpool.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[handlerKey{typeGroup, typ}] = h
}

// ActivatedHandler implements txpool.HandlerRegistry.
func (r *Registry) ActivatedHandler(tx *types.Transaction) (txpool.Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[handlerKey{tx.TypeGroup(), tx.Type()}]
	if !ok {
		return nil, fmt.Errorf("%w: %d/%d", ErrUnknownType, tx.TypeGroup(), tx.Type())
	}
	return h, nil
}

var _ txpool.PoolResetter = (*Registry)(nil)

// ResetPool implements txpool.PoolResetter.
func (r *Registry) ResetPool() {
	r.manager.ResetPool()
}
