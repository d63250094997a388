// Package router discovers routes over the pool registry and executes intents
// against them.
package router

import (
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/amm"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/registry"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/swaperr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// RouteStep is one swap through one pool.
type RouteStep struct {
	PoolID         uint64
	TokenIn        common.Address
	TokenOut       common.Address
	AmountIn       *uint256.Int
	AmountOut      *uint256.Int
	PriceImpactBps uint64
	Verified       bool
}

// Route is an ordered list of steps. Routes found by Finder always hold exactly one step.
type Route []RouteStep

// PriceImpactBps returns the sum of the step impacts.
func (r Route) PriceImpactBps() uint64 {
	var total uint64
	for _, step := range r {
		total += step.PriceImpactBps
	}
	return total
}

// AmountOut returns the output of the last step, or nil for an empty route.
func (r Route) AmountOut() *uint256.Int {
	if len(r) == 0 {
		return nil
	}
	return r[len(r)-1].AmountOut
}

// PoolSource is the read side of the registry used for discovery. Both
// *registry.Registry and *registry.Tx implement it.
type PoolSource interface {
	CandidatePools(a, b common.Address) []uint64
	Pool(poolID uint64) (*registry.Pool, bool)
}

// Finder selects the best direct pool for a swap.
type Finder struct {
	Pricing amm.Config
	// RequireVerified skips pools that have not been verified by a validator.
	RequireVerified bool
}

/*
FindRoute returns the single-pool step with the highest output for swapping
amountIn of tokenIn into tokenOut.

Candidates are the pools indexed for the pair. Inactive pools, unverified pools
when RequireVerified is set, and pools the pricing rules reject are skipped.
Ties keep the earliest registered pool. The winning step fails with
PriceImpactTooHigh when its impact exceeds maxSlippageBps.
*/
func (f Finder) FindRoute(src PoolSource, tokenIn, tokenOut common.Address, amountIn *uint256.Int, maxSlippageBps uint64) (RouteStep, error) {
	candidates := src.CandidatePools(tokenIn, tokenOut)
	if len(candidates) == 0 {
		return RouteStep{}, swaperr.New(swaperr.NoPoolForPair, "no pool for %s/%s", tokenIn.Hex(), tokenOut.Hex())
	}

	var (
		best      *registry.Pool
		bestOut   *uint256.Int
		bestInRes *uint256.Int
	)
	for _, id := range candidates {
		pool, ok := src.Pool(id)
		if !ok || !pool.IsActive {
			continue
		}
		if f.RequireVerified && !pool.IsVerified {
			continue
		}
		reserveIn, reserveOut, ok := pool.Orient(tokenIn)
		if !ok {
			continue
		}
		out, err := f.Pricing.GetAmountOut(reserveIn, reserveOut, amountIn, uint64(pool.FeeBps))
		if err != nil {
			log.Debug().Err(err).Uint64("pool_id", id).Msg("Skipping pool")
			continue
		}
		if out.IsZero() {
			continue
		}
		if bestOut == nil || out.Gt(bestOut) {
			best, bestOut, bestInRes = pool, out, reserveIn
		}
	}
	if best == nil {
		return RouteStep{}, swaperr.New(swaperr.NoVerifiedPoolAvailable, "no usable pool among %d for %s/%s",
			len(candidates), tokenIn.Hex(), tokenOut.Hex())
	}

	impact, err := amm.PriceImpactBps(bestInRes, amountIn)
	if err != nil {
		return RouteStep{}, err
	}
	if impact > maxSlippageBps {
		return RouteStep{}, swaperr.New(swaperr.PriceImpactTooHigh, "pool %d impact %d bps exceeds %d",
			best.ID, impact, maxSlippageBps)
	}

	return RouteStep{
		PoolID:         best.ID,
		TokenIn:        tokenIn,
		TokenOut:       tokenOut,
		AmountIn:       amountIn.Clone(),
		AmountOut:      bestOut,
		PriceImpactBps: impact,
		Verified:       best.IsVerified,
	}, nil
}

// validateRoute is the hard gate applied before a route executes.
func validateRoute(route Route, maxSlippageBps uint64, requireVerified bool) error {
	if len(route) == 0 {
		return swaperr.New(swaperr.EmptyRoute, "route has no steps")
	}
	for _, step := range route {
		if requireVerified && !step.Verified {
			return swaperr.New(swaperr.UnverifiedRouteStep, "pool %d is not verified", step.PoolID)
		}
		if step.PriceImpactBps > maxSlippageBps {
			return swaperr.New(swaperr.PriceImpactTooHigh, "pool %d impact %d bps exceeds %d",
				step.PoolID, step.PriceImpactBps, maxSlippageBps)
		}
	}
	return nil
}
