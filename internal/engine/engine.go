// Package engine implements the serialized exchange and incentive core:
// reserve ledger, swap engine, liquidity manager, slippage guard, tier
// classifier, flash loan engine and yield farming accrual.
//
// Every operation runs under one engine mutex and either fully commits or
// fully reverts. Mutating operations snapshot the aggregate state and the
// asset ledger before running; on failure both are restored and buffered
// events are dropped. Outbound asset transfers happen only after the
// engine's own bookkeeping is updated, and a reentrancy flag rejects any
// entry-point call made while a flash loan callback is on the stack.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"fundex/internal/amm"
	"fundex/internal/assets"
	"fundex/internal/domain"
	"fundex/internal/events"
)

var bpsScale = big.NewInt(10000)

// Default engine parameters.
const (
	DefaultAssetA            = assets.Asset("SOL")
	DefaultAssetB            = assets.Asset("FND")
	DefaultMinimumFloor      = 1000
	DefaultRatioToleranceBps = 100
	DefaultMaxSlippageBps    = 1000
	DefaultMaxFarmPools      = 32
)

// Params configures a new engine.
type Params struct {
	AssetA assets.Asset // reserve asset A
	AssetB assets.Asset // reserve asset B; also the flash loan, staking and reward asset
	// MinimumFloor is the share amount permanently locked to the sentinel
	// account on the bootstrap deposit.
	MinimumFloor *big.Int
	// RatioToleranceBps bounds how far above the required asset B amount a
	// deposit may go before it is rejected as unbalanced.
	RatioToleranceBps int64
	// MaxSlippageBps is the initial price-impact bound.
	MaxSlippageBps int64
	// MaxFarmPools bounds the farm pool count.
	MaxFarmPools int
	// Tiers is the initial tier table; nil selects DefaultTiers.
	Tiers []*domain.Tier
}

// DefaultParams returns the stock configuration.
func DefaultParams() Params {
	return Params{
		AssetA:            DefaultAssetA,
		AssetB:            DefaultAssetB,
		MinimumFloor:      big.NewInt(DefaultMinimumFloor),
		RatioToleranceBps: DefaultRatioToleranceBps,
		MaxSlippageBps:    DefaultMaxSlippageBps,
		MaxFarmPools:      DefaultMaxFarmPools,
	}
}

func (p Params) validate() error {
	if p.AssetA == "" || p.AssetB == "" {
		return fmt.Errorf("engine: asset symbols must be set")
	}
	if p.AssetA == p.AssetB {
		return fmt.Errorf("engine: asset symbols must differ")
	}
	if p.MinimumFloor == nil || p.MinimumFloor.Sign() < 0 {
		return fmt.Errorf("engine: minimum floor must be non-negative")
	}
	if p.RatioToleranceBps < 0 {
		return fmt.Errorf("engine: ratio tolerance must be non-negative")
	}
	if p.MaxSlippageBps < 0 || p.MaxSlippageBps > 10000 {
		return fmt.Errorf("engine: max slippage must be within [0, 10000] bps")
	}
	if p.MaxFarmPools < 1 {
		return fmt.Errorf("engine: max farm pools must be at least 1")
	}
	return nil
}

// Engine is the exchange and incentive core. All exported methods are safe
// for concurrent use; mutating ones serialize on an internal mutex.
type Engine struct {
	mu         sync.Mutex
	inCallback atomic.Bool

	params  Params
	ledger  assets.TransactionalLedger
	sink    events.Sink
	clock   func() int64
	restore *domain.Snapshot // consumed by New

	st  *state
	buf []*domain.Event // events of the operation in flight
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock. Simulations and tests drive accrual
// timing through it.
func WithClock(clock func() int64) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithSnapshot restores persisted durable state at construction.
func WithSnapshot(snap *domain.Snapshot) Option {
	return func(e *Engine) {
		e.restore = snap
	}
}

// New builds an engine. A nil sink discards events. The ledger must span
// the whole operation transactionally; failures revert it together with
// the engine state.
func New(params Params, ledger assets.TransactionalLedger, sink events.Sink, opts ...Option) (*Engine, error) {
	if ledger == nil {
		return nil, fmt.Errorf("engine: ledger is required")
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	if params.Tiers == nil {
		params.Tiers = DefaultTiers()
	}
	if err := validateTiers(params.Tiers); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if sink == nil {
		sink = events.Discard{}
	}

	e := &Engine{
		params: params,
		ledger: ledger,
		sink:   sink,
		clock:  func() int64 { return time.Now().Unix() },
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.restore != nil {
		if err := checkSnapshot(params, e.restore); err != nil {
			return nil, err
		}
		e.st = stateFromSnapshot(params, e.restore)
		e.restore = nil
	} else {
		e.st = newState(params)
	}
	return e, nil
}

func checkSnapshot(params Params, snap *domain.Snapshot) error {
	if snap.Pool != nil {
		if snap.Pool.AssetA != string(params.AssetA) || snap.Pool.AssetB != string(params.AssetB) {
			return fmt.Errorf("engine: snapshot pair %s/%s does not match configured %s/%s",
				snap.Pool.AssetA, snap.Pool.AssetB, params.AssetA, params.AssetB)
		}
	}
	if len(snap.Tiers) > 0 {
		if err := validateTiers(snap.Tiers); err != nil {
			return fmt.Errorf("engine: snapshot tiers: %w", err)
		}
	}
	return nil
}

// lock acquires the engine mutex, rejecting calls made while a flash loan
// callback is executing. The flag is only ever set by the goroutine that
// holds the mutex, so a caller that acquires it is never mid-callback.
func (e *Engine) lock() error {
	if e.inCallback.Load() {
		return ErrReentrant
	}
	e.mu.Lock()
	return nil
}

// execute runs one mutating operation with full-rollback semantics.
func (e *Engine) execute(op func() error) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()

	prior := e.st.clone()
	mark := e.ledger.Snapshot()
	e.buf = e.buf[:0]

	if err := op(); err != nil {
		e.st = prior
		e.ledger.RevertTo(mark)
		e.buf = nil
		return err
	}
	e.publish()
	return nil
}

// view runs a read under the same serialization discipline as mutations.
func (e *Engine) view(fn func() error) error {
	if err := e.lock(); err != nil {
		return err
	}
	defer e.mu.Unlock()
	return fn()
}

// emit buffers an event; it reaches the sink only if the operation
// commits. Payloads must already be detached from live engine state.
func (e *Engine) emit(typ domain.EventType, account string, payload any) {
	e.buf = append(e.buf, &domain.Event{
		ID:      uuid.NewString(),
		Type:    typ,
		Unix:    e.clock(),
		Account: account,
		Payload: payload,
	})
}

// publish hands the buffered events to the sink. Sinks are invoked
// synchronously in the commit path and must not call back into the engine.
func (e *Engine) publish() {
	if len(e.buf) == 0 {
		return
	}
	batch := e.buf
	e.buf = nil
	e.sink.Publish(batch)
}

func (e *Engine) emitPoolState() {
	e.emit(domain.EventPoolStateChanged, "", &domain.PoolStateChangedPayload{State: e.st.pool.Clone()})
}

// pull draws amount from the owner into an engine account, spending the
// allowance the owner granted that account. Zero amounts are a no-op.
func (e *Engine) pull(ctx context.Context, asset assets.Asset, owner, engineAcct string, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := e.ledger.TransferFrom(ctx, asset, engineAcct, owner, engineAcct, amount); err != nil {
		return fmt.Errorf("pull %s %s from %s: %w", amount, asset, owner, err)
	}
	return nil
}

// push sends amount out of an engine account. Zero amounts are a no-op.
func (e *Engine) push(ctx context.Context, asset assets.Asset, engineAcct, to string, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := e.ledger.Transfer(ctx, asset, engineAcct, to, amount); err != nil {
		return fmt.Errorf("push %s %s to %s: %w", amount, asset, to, err)
	}
	return nil
}

// PoolState returns a copy of the current pool state.
func (e *Engine) PoolState() (*domain.PoolState, error) {
	var out *domain.PoolState
	err := e.view(func() error {
		out = e.st.pool.Clone()
		return nil
	})
	return out, err
}

// ExchangeRate returns the pool's B-per-A rate scaled by amm.Precision.
func (e *Engine) ExchangeRate() (*big.Int, error) {
	var rate *big.Int
	err := e.view(func() error {
		var inner error
		rate, inner = amm.ExchangeRate(e.st.pool.ReserveA, e.st.pool.ReserveB)
		return inner
	})
	return rate, err
}

// ShareBalanceOf returns the account's liquidity share balance.
func (e *Engine) ShareBalanceOf(account string) (*big.Int, error) {
	var out *big.Int
	err := e.view(func() error {
		out = new(big.Int).Set(e.st.shareBalance(account))
		return nil
	})
	return out, err
}

// Snapshot renders the full durable state in deterministic order.
func (e *Engine) Snapshot() (*domain.Snapshot, error) {
	var snap *domain.Snapshot
	err := e.view(func() error {
		snap = e.st.snapshot()
		return nil
	})
	return snap, err
}

func positiveAmount(v *big.Int) bool {
	return v != nil && v.Sign() > 0
}
