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
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/holiman/uint256"
	"github.com/sunyihoo/go-txpool/core/types"
)

const (
	senderA = "02aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	senderB = "02bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	senderC = "02cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc"

	testBalance = 1_000_000_000
)

var errUnknownType = errors.New("unknown transaction type")

// testLedger is a minimal nonce and balance ledger.
type testLedger struct {
	mu         sync.Mutex
	nonces     map[string]uint64
	balances   map[string]uint64
	failRevert map[string]bool // transaction ids whose revert fails
	reverts    []string        // ids reverted, in call order
	resets     int             // pool resets requested by the mempool
}

func newTestLedger() *testLedger {
	return &testLedger{
		nonces:     make(map[string]uint64),
		balances:   make(map[string]uint64),
		failRevert: make(map[string]bool),
	}
}

func (l *testLedger) balance(pubkey string) uint64 {
	if b, ok := l.balances[pubkey]; ok {
		return b
	}
	return testBalance
}

func (l *testLedger) nonce(pubkey string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nonces[pubkey]
}

func (l *testLedger) setFailRevert(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failRevert[id] = true
}

func (l *testLedger) reverted() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.reverts...)
}

// testHandler implements Handler for transfers on top of testLedger.
type testHandler struct {
	ledger    *testLedger
	staticFee uint64
}

func (h *testHandler) Key() string { return "transfer" }

func (h *testHandler) StaticFee(*types.Transaction) *uint256.Int {
	return uint256.NewInt(h.staticFee)
}

func (h *testHandler) DynamicFee(ctx FeeContext) *uint256.Int {
	bytes := ctx.AddonBytes + uint64(ctx.Transaction.Size())
	return new(uint256.Int).Mul(uint256.NewInt(bytes), uint256.NewInt(ctx.SatoshiPerByte))
}

func (h *testHandler) CanEnterPool(tx *types.Transaction) error {
	if tx.Recipient() == "" {
		return errors.New("missing recipient")
	}
	return nil
}

func cost(tx *types.Transaction) uint64 {
	return tx.Fee().Uint64() + tx.Amount().Uint64()
}

func (h *testHandler) Apply(tx *types.Transaction) error {
	l := h.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	sender := tx.SenderPublicKey()
	if want := l.nonces[sender] + 1; tx.Nonce().Uint64() != want {
		return fmt.Errorf("invalid nonce %d, want %d", tx.Nonce().Uint64(), want)
	}
	if l.balance(sender) < cost(tx) {
		return errors.New("insufficient balance")
	}
	l.nonces[sender]++
	l.balances[sender] = l.balance(sender) - cost(tx)
	return nil
}

func (h *testHandler) Revert(tx *types.Transaction) error {
	l := h.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failRevert[tx.ID()] {
		return errors.New("revert failed")
	}
	sender := tx.SenderPublicKey()
	l.nonces[sender]--
	l.balances[sender] = l.balance(sender) + cost(tx)
	l.reverts = append(l.reverts, tx.ID())
	return nil
}

type testRegistry struct {
	handler *testHandler
}

func (r *testRegistry) ActivatedHandler(tx *types.Transaction) (Handler, error) {
	if tx.TypeGroup() != types.CoreTypeGroup || tx.Type() != types.TransferType {
		return nil, errUnknownType
	}
	return r.handler, nil
}

// ResetPool drops every projection, the next transaction of any sender starts
// from nonce zero and the default balance again.
func (r *testRegistry) ResetPool() {
	l := r.handler.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nonces = make(map[string]uint64)
	l.balances = make(map[string]uint64)
	l.resets++
}

// testState is a StateStore with settable values.
type testState struct {
	height    atomic.Uint64
	blockTime atomic.Uint64
	slotTime  atomic.Uint64
}

func newTestState(height uint64) *testState {
	s := new(testState)
	s.height.Store(height)
	s.blockTime.Store(8)
	return s
}

func (s *testState) LastHeight() uint64 { return s.height.Load() }
func (s *testState) BlockTime() uint64  { return s.blockTime.Load() }
func (s *testState) SlotTime() uint64   { return s.slotTime.Load() }

// testConfig allows a handful of transactions and charges one satoshi per
// byte to enter the pool.
func testConfig() Config {
	config := DefaultConfig
	config.MaxTransactionsInPool = 10
	config.MaxTransactionsPerSender = 5
	config.DynamicFees = DynamicFeesConfig{
		Enabled:         true,
		MinFeePool:      1,
		MinFeeBroadcast: 5,
		AddonBytes:      map[string]uint64{"transfer": 100},
	}
	return config
}

type testEnv struct {
	config   Config
	ledger   *testLedger
	handlers *testRegistry
	state    *testState
}

func newTestEnv() *testEnv {
	ledger := newTestLedger()
	return &testEnv{
		config:   testConfig(),
		ledger:   ledger,
		handlers: &testRegistry{handler: &testHandler{ledger: ledger, staticFee: 10_000_000}},
		state:    newTestState(100),
	}
}

func (e *testEnv) mempool() *Mempool {
	config := e.config.sanitize()
	expiration := NewExpirationService(&config, e.state)
	fees := NewFeeMatcher(&config, e.handlers, e.state)
	return NewMempool(&config, expiration, fees, e.handlers)
}

// transfer creates a version 2 transfer without expiration.
func transfer(sender string, nonce, fee uint64) *types.Transaction {
	return types.MustNewTx(&types.TxData{
		Version:         2,
		TypeGroup:       types.CoreTypeGroup,
		Type:            types.TransferType,
		SenderPublicKey: sender,
		Nonce:           uint256.NewInt(nonce),
		Fee:             uint256.NewInt(fee),
		Amount:          uint256.NewInt(1),
		Recipient:       "recipient",
	})
}

// expiring creates a version 2 transfer with an explicit expiration height.
func expiring(sender string, nonce, fee uint64, expiration uint32) *types.Transaction {
	return types.MustNewTx(&types.TxData{
		Version:         2,
		TypeGroup:       types.CoreTypeGroup,
		Type:            types.TransferType,
		SenderPublicKey: sender,
		Nonce:           uint256.NewInt(nonce),
		Fee:             uint256.NewInt(fee),
		Amount:          uint256.NewInt(1),
		Recipient:       "recipient",
		Expiration:      expiration,
	})
}

func feesOf(txs []*types.Transaction) []uint64 {
	out := make([]uint64, len(txs))
	for i, tx := range txs {
		out[i] = tx.Fee().Uint64()
	}
	return out
}

func noncesOf(txs []*types.Transaction) []uint64 {
	out := make([]uint64, len(txs))
	for i, tx := range txs {
		out[i] = tx.Nonce().Uint64()
	}
	return out
}

func mustAdd(t *testing.T, m *Mempool, txs ...*types.Transaction) {
	t.Helper()
	for _, tx := range txs {
		if err := m.AddTransaction(tx); err != nil {
			t.Fatalf("failed to add %v: %v", tx, err)
		}
	}
}
