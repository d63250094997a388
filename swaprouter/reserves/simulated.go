// Package reserves provides ReserveProvider implementations for the pool registry.
package reserves

import (
	"context"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/chainctx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	baseReserve = new(uint256.Int).Mul(uint256.NewInt(1_000_000), uint256.NewInt(1_000_000_000_000_000_000))
	driftUnit   = uint256.NewInt(1_000_000_000_000_000)
)

const driftModulus = 100_000

// SimulatedProvider produces deterministic reserves without touching any pool.
// Unless fixed reserves are set, each side drifts with the block number around
// one million tokens.
type SimulatedProvider struct {
	clock  chainctx.BlockContext
	fixedA *uint256.Int
	fixedB *uint256.Int
}

// NewSimulatedProvider returns a provider whose reserves follow the block number.
func NewSimulatedProvider(clock chainctx.BlockContext) *SimulatedProvider {
	return &SimulatedProvider{clock: clock}
}

// NewFixedProvider returns a provider that always reports the same reserves.
func NewFixedProvider(reserveA, reserveB *uint256.Int) *SimulatedProvider {
	return &SimulatedProvider{fixedA: reserveA.Clone(), fixedB: reserveB.Clone()}
}

func (p *SimulatedProvider) Reserves(_ context.Context, _, _, _ common.Address) (*uint256.Int, *uint256.Int, error) {
	if p.fixedA != nil && p.fixedB != nil {
		return p.fixedA.Clone(), p.fixedB.Clone(), nil
	}
	block := p.clock.BlockNumber()
	reserveA := drifted(block % driftModulus)
	reserveB := drifted((block * 7) % driftModulus)
	return reserveA, reserveB, nil
}

func drifted(steps uint64) *uint256.Int {
	d := new(uint256.Int).Mul(uint256.NewInt(steps), driftUnit)
	return d.Add(d, baseReserve)
}
