package router

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/amm"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/chainctx"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/metrics"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/registry"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/security"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/swaperr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "router").Logger()
}

// Config selects the pricing and discovery rules of the engine.
type Config struct {
	Pricing         amm.Config
	RequireVerified bool
}

// DefaultConfig is the hardened variant: liquidity floor and verified pools only.
func DefaultConfig() Config {
	return Config{
		Pricing:         amm.DefaultConfig(),
		RequireVerified: true,
	}
}

// Execution is the result of a successful intent.
type Execution struct {
	AmountOut      *uint256.Int
	Route          Route
	PriceImpactBps uint64
	// NextNonce is the nonce the user must send with their next intent.
	NextNonce uint64
}

// Engine executes intents. Intents and security administration are serialized by
// the engine; quotes and registry queries run concurrently with them.
type Engine struct {
	mu       sync.Mutex
	registry *registry.Registry
	security *security.State
	clock    chainctx.BlockContext
	finder   Finder
	metrics  *metrics.Metrics
}

// NewEngine wires an engine. m may be nil.
func NewEngine(reg *registry.Registry, sec *security.State, clock chainctx.BlockContext, cfg Config, m *metrics.Metrics) (*Engine, error) {
	if reg == nil || sec == nil || clock == nil {
		return nil, swaperr.New(swaperr.InvalidInitialization, "engine needs a registry, a security state and a block context")
	}
	sec.SetAlertHook(func(a security.Alert) {
		m.Alert(string(a.Type), a.Type == security.AlertCircuitBreakerTriggered)
	})
	m.SetActivePools(reg.ActivePoolCount())
	return &Engine{
		registry: reg,
		security: sec,
		clock:    clock,
		finder:   Finder{Pricing: cfg.Pricing, RequireVerified: cfg.RequireVerified},
		metrics:  m,
	}, nil
}

// Registry returns the registry the engine routes over.
func (e *Engine) Registry() *registry.Registry { return e.registry }

/*
ExecuteIntent validates intent for caller, routes it and applies the swap.

The whole call is one unit of work: on any failure neither the security
counters nor the pool reserves change. The only exception is a circuit breaker
trip, which leaves the router paused. On success the user's nonce advances
before the new reserves become visible.
*/
func (e *Engine) ExecuteIntent(caller common.Address, intent security.Intent) (*Execution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Timestamp()
	wasPaused := e.security.Paused()
	var exec *Execution
	err := e.registry.Update(func(tx *registry.Tx) error {
		secTx, err := e.security.Validate(caller, intent, now)
		if err != nil {
			return err
		}

		step, err := e.finder.FindRoute(tx, intent.TokenIn, intent.TokenOut, intent.AmountIn, intent.MaxSlippageBps)
		if err != nil {
			return err
		}
		route := Route{step}
		if err := validateRoute(route, intent.MaxSlippageBps, e.finder.RequireVerified); err != nil {
			return err
		}

		for _, s := range route {
			if err := tx.ApplySwap(s.PoolID, s.TokenIn, s.AmountIn, s.AmountOut); err != nil {
				return err
			}
		}

		amountOut := route.AmountOut()
		if intent.MinAmountOut != nil && amountOut.Lt(intent.MinAmountOut) {
			return swaperr.New(swaperr.InsufficientOutputAmount, "output %s below minimum %s",
				amountOut.Dec(), intent.MinAmountOut.Dec())
		}

		if e.registry.Persistent() {
			data, err := security.EncodeSnapshot(secTx.Snapshot())
			if err != nil {
				return err
			}
			tx.Persist(security.SnapshotName, data)
		}
		tx.BeforeApply(secTx.Commit)
		exec = &Execution{
			AmountOut:      amountOut.Clone(),
			Route:          route,
			PriceImpactBps: route.PriceImpactBps(),
			NextNonce:      secTx.Nonce(),
		}
		return nil
	})
	if err != nil {
		// a circuit breaker trip outlives the failed intent
		if !wasPaused && e.security.Paused() {
			if saveErr := e.saveSecurityLocked(); saveErr != nil {
				log.Error().Err(saveErr).Msg("Failed to persist circuit breaker pause")
			}
		}
		kind, _ := swaperr.KindOf(err)
		e.metrics.IntentRejected(swaperr.CategoryOf(err).String(), kind.String())
		log.Debug().Err(err).Str("user", intent.User.Hex()).Uint64("nonce", intent.Nonce).Msg("Intent rejected")
		return nil, err
	}

	e.metrics.IntentExecuted()
	log.Info().
		Str("user", intent.User.Hex()).
		Str("token_in", intent.TokenIn.Hex()).
		Str("token_out", intent.TokenOut.Hex()).
		Str("amount_in", intent.AmountIn.Dec()).
		Str("amount_out", exec.AmountOut.Dec()).
		Uint64("price_impact_bps", exec.PriceImpactBps).
		Uint64("pool_id", exec.Route[0].PoolID).
		Uint64("nonce", intent.Nonce).
		Msg("IntentExecuted")
	return exec, nil
}

// GetQuote prices a swap without changing any state. The widest slippage bound
// is used for discovery.
func (e *Engine) GetQuote(tokenIn, tokenOut common.Address, amountIn *uint256.Int) (RouteStep, error) {
	if tokenIn == (common.Address{}) || tokenOut == (common.Address{}) {
		return RouteStep{}, swaperr.New(swaperr.InvalidAddress, "token addresses must be non-zero")
	}
	if tokenIn == tokenOut {
		return RouteStep{}, swaperr.New(swaperr.IdenticalTokens, "token %s on both sides", tokenIn.Hex())
	}
	if amountIn == nil || amountIn.IsZero() {
		return RouteStep{}, swaperr.New(swaperr.ZeroAmount, "amount must be greater than zero")
	}

	start := time.Now()
	var step RouteStep
	err := e.registry.View(func(tx *registry.Tx) error {
		var err error
		step, err = e.finder.FindRoute(tx, tokenIn, tokenOut, amountIn, amm.MaxSlippageBps)
		return err
	})
	e.metrics.ObserveQuote(time.Since(start).Seconds())
	return step, err
}

// AddPool registers a pool on behalf of an authorized caller. The engine acts on
// the registry with the registry owner's authority.
func (e *Engine) AddPool(ctx context.Context, caller common.Address, params registry.AddPoolParams) (uint64, error) {
	e.mu.Lock()
	authorized := e.security.IsAuthorizedCaller(caller)
	e.mu.Unlock()
	if !authorized {
		return 0, swaperr.New(swaperr.Unauthorized, "%s may not add pools", caller.Hex())
	}

	id, err := e.registry.AddPool(ctx, e.registry.Owner(), params)
	if err != nil {
		return 0, err
	}
	e.metrics.SetActivePools(e.registry.ActivePoolCount())
	return id, nil
}

// UpdatePool refreshes a pool's reserves. The caller needs the registry updater role.
func (e *Engine) UpdatePool(ctx context.Context, caller common.Address, poolID uint64) error {
	return e.registry.UpdatePool(ctx, caller, poolID)
}

// VerifyPool marks a pool as verified. The caller needs the registry validator role.
func (e *Engine) VerifyPool(caller common.Address, poolID uint64) error {
	return e.registry.VerifyPool(caller, poolID)
}

// SetPoolActive opens or closes a pool for routing.
func (e *Engine) SetPoolActive(caller common.Address, poolID uint64, active bool) error {
	if err := e.registry.SetPoolActive(caller, poolID, active); err != nil {
		return err
	}
	e.metrics.SetActivePools(e.registry.ActivePoolCount())
	return nil
}

// AddAuthorizedCaller grants addr access to AddPool. Owner only.
func (e *Engine) AddAuthorizedCaller(caller, addr common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mutateSecurityLocked(func() error {
		return e.security.AddAuthorizedCaller(caller, addr)
	})
}

// EmergencyPause halts intent execution.
func (e *Engine) EmergencyPause(caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mutateSecurityLocked(func() error {
		return e.security.EmergencyPause(caller, e.clock.Timestamp())
	})
}

// Resume clears a pause.
func (e *Engine) Resume(caller common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mutateSecurityLocked(func() error {
		return e.security.Resume(caller, e.clock.Timestamp())
	})
}

// SetLimits replaces the economic limits. Owner only.
func (e *Engine) SetLimits(caller common.Address, limits security.Limits) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mutateSecurityLocked(func() error {
		return e.security.SetLimits(caller, limits)
	})
}

// Limits returns a copy of the economic limits in force.
func (e *Engine) Limits() security.Limits {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.security.Limits()
}

// mutateSecurityLocked runs fn and persists the resulting security state. When
// the write fails the state is rolled back and the write error returned.
func (e *Engine) mutateSecurityLocked(fn func() error) error {
	before := e.security.Snapshot()
	if err := fn(); err != nil {
		return err
	}
	if err := e.saveSecurityLocked(); err != nil {
		if restoreErr := e.security.Restore(before); restoreErr != nil {
			return errors.Join(err, restoreErr)
		}
		return err
	}
	return nil
}

func (e *Engine) saveSecurityLocked() error {
	if !e.registry.Persistent() {
		return nil
	}
	data, err := security.EncodeSnapshot(e.security.Snapshot())
	if err != nil {
		return err
	}
	return e.registry.SaveState(security.SnapshotName, data)
}

// Paused reports whether intent execution is halted.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.security.Paused()
}

// NonceOf returns the next nonce expected from user.
func (e *Engine) NonceOf(user common.Address) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.security.NonceOf(user)
}

// SecuritySnapshot returns a deep copy of the security state.
func (e *Engine) SecuritySnapshot() security.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.security.Snapshot()
}

/*
RestoreSecurity loads the security state saved next to the pools, so nonces,
volume counters, limits, authorized callers and a pending pause survive a
restart. Owner and emergency admin keep the values the engine was built with.
Without a store or a saved state it does nothing.
*/
func (e *Engine) RestoreSecurity() error {
	raw, err := e.registry.LoadState(security.SnapshotName)
	if err != nil {
		return err
	}
	if raw == nil {
		return nil
	}
	snap, err := security.DecodeSnapshot(raw)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	snap.Owner = e.security.Owner()
	snap.EmergencyAdmin = e.security.EmergencyAdmin()
	if err := e.security.Restore(snap); err != nil {
		return fmt.Errorf("failed to restore security state: %w", err)
	}
	log.Info().
		Int("users", len(snap.UserNonces)).
		Bool("paused", snap.Paused).
		Str("total_volume_24h", e.security.TotalVolume24h().Dec()).
		Msg("Restored security state")
	return nil
}
