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
	"errors"

	"github.com/sunyihoo/go-txpool/core/types"
	"github.com/sunyihoo/go-txpool/log"
)

// senderEnv bundles the collaborators every sender state needs. It is shared
// by all senders of one mempool.
type senderEnv struct {
	config     *Config
	allowed    func(pubkey string) bool
	expiration *ExpirationService
	fees       *FeeMatcher
	handlers   HandlerRegistry
}

// senderState is the ledger projection of one sender: its pooled transactions
// applied on top of the confirmed state in ascending nonce order. It is only
// ever unwound from the tail. It is not safe for concurrent use, senderPool
// serialises access.
//
// senderState 是单个发送者的账本投影：其池内交易按 nonce 升序叠加在已确认状态之上，
// 只能从尾部回滚。本身不是并发安全的，由 senderPool 串行化访问。
type senderState struct {
	env     *senderEnv
	allowed bool
	txs     []*types.Transaction // applied transactions, ascending nonce
	log     log.Logger
}

func newSenderState(env *senderEnv, pubkey string) *senderState {
	return &senderState{
		env:     env,
		allowed: env.allowed(pubkey),
		log:     log.New("sender", pubkey),
	}
}

// apply validates the transaction and applies it to the ledger. Checks run in
// a fixed order and stop at the first failure.
func (s *senderState) apply(tx *types.Transaction) error {
	if !s.allowed && len(s.txs) >= s.env.config.MaxTransactionsPerSender {
		return newPoolError(ErrExceedsMaxCount, tx, nil)
	}
	if s.env.expiration.IsExpired(tx) {
		return newPoolError(ErrExpired, tx, nil)
	}
	if tx.Size() > s.env.config.MaxTransactionBytes {
		return newPoolError(ErrExceedsMaxByteSize, tx, nil)
	}
	if err := s.env.fees.CanEnterPool(tx); err != nil {
		return err
	}
	handler, err := s.env.handlers.ActivatedHandler(tx)
	if err != nil {
		return newPoolError(ErrFailedToApply, tx, err)
	}
	if err := handler.CanEnterPool(tx); err != nil {
		return newPoolError(ErrFailedToApply, tx, err)
	}
	if err := handler.Apply(tx); err != nil {
		return newPoolError(ErrFailedToApply, tx, err)
	}
	s.txs = append(s.txs, tx)
	return nil
}

// revert unwinds the latest transaction. If the handler fails, the
// transaction stays in place and the error is returned.
func (s *senderState) revert() (*types.Transaction, error) {
	if len(s.txs) == 0 {
		return nil, errors.New("nothing to revert")
	}
	tx := s.txs[len(s.txs)-1]
	handler, err := s.env.handlers.ActivatedHandler(tx)
	if err == nil {
		err = handler.Revert(tx)
	}
	if err != nil {
		s.log.Warn("Failed to revert transaction", "id", tx.ID(), "err", err)
		return nil, err
	}
	s.txs = s.txs[:len(s.txs)-1]
	return tx, nil
}

// remove unwinds the given transaction and all later ones. The reverted
// transactions are returned latest first, also on failure.
func (s *senderState) remove(tx *types.Transaction) ([]*types.Transaction, error) {
	if s.indexOf(tx.ID()) < 0 {
		return nil, ErrTransactionNotInSender
	}
	var removed []*types.Transaction
	for {
		reverted, err := s.revert()
		if err != nil {
			return removed, err
		}
		removed = append(removed, reverted)
		if reverted.ID() == tx.ID() {
			return removed, nil
		}
	}
}

// accept drops the forged transaction and everything before it without
// reverting, their effects are now part of the confirmed state.
func (s *senderState) accept(tx *types.Transaction) ([]*types.Transaction, error) {
	idx := s.indexOf(tx.ID())
	if idx < 0 {
		return nil, ErrTransactionNotInSender
	}
	accepted := append([]*types.Transaction(nil), s.txs[:idx+1]...)
	s.txs = append([]*types.Transaction(nil), s.txs[idx+1:]...)
	return accepted, nil
}

// drop forgets every transaction without reverting and returns them latest
// first. Used when the ledger can no longer be unwound cleanly.
func (s *senderState) drop() []*types.Transaction {
	dropped := make([]*types.Transaction, 0, len(s.txs))
	for i := len(s.txs) - 1; i >= 0; i-- {
		dropped = append(dropped, s.txs[i])
	}
	s.txs = nil
	return dropped
}

func (s *senderState) indexOf(id string) int {
	for i, tx := range s.txs {
		if tx.ID() == id {
			return i
		}
	}
	return -1
}
