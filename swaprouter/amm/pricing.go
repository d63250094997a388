// Package amm prices swaps against constant-product pools.
//
// All arithmetic is 256-bit and checked. Any overflow, underflow or division by
// zero aborts the computation with a swaperr ArithmeticError kind.
package amm

import (
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/swaperr"
	"github.com/holiman/uint256"
)

const (
	BpsDenominator    uint64 = 10_000
	MaxFeeBps         uint64 = 1_000
	MaxSlippageBps    uint64 = 1_000
	MaxPriceImpactBps uint64 = 500
)

// MinLiquidity is the default reserve floor of the secure variant: 1000 tokens of 18 decimals.
var MinLiquidity = new(uint256.Int).Mul(uint256.NewInt(1_000), uint256.NewInt(1_000_000_000_000_000_000))

// Config selects the variant of the pricing rules.
type Config struct {
	// MaxFeeBps is the highest pool fee accepted by GetAmountOut.
	MaxFeeBps uint64
	// MinLiquidity, when set, rejects pools whose reserves are below it.
	MinLiquidity *uint256.Int
}

// DefaultConfig returns the secure variant: fee capped at MaxFeeBps and a MinLiquidity floor.
func DefaultConfig() Config {
	return Config{
		MaxFeeBps:    MaxFeeBps,
		MinLiquidity: MinLiquidity.Clone(),
	}
}

// BasicConfig returns the variant without a liquidity floor.
func BasicConfig() Config {
	return Config{MaxFeeBps: MaxFeeBps}
}

// GetAmountOut returns floor(amountInWithFee * reserveOut / (reserveIn + amountInWithFee))
// where amountInWithFee = amountIn * (10000 - feeBps) / 10000.
func (c Config) GetAmountOut(reserveIn, reserveOut, amountIn *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, swaperr.New(swaperr.InsufficientLiquidity, "reserves %s/%s", reserveIn.Dec(), reserveOut.Dec())
	}
	if c.MinLiquidity != nil && (reserveIn.Lt(c.MinLiquidity) || reserveOut.Lt(c.MinLiquidity)) {
		return nil, swaperr.New(swaperr.PoolLiquidityTooLow, "reserves %s/%s below %s",
			reserveIn.Dec(), reserveOut.Dec(), c.MinLiquidity.Dec())
	}
	if feeBps > c.MaxFeeBps {
		return nil, swaperr.New(swaperr.FeeTooHigh, "fee %d bps exceeds %d", feeBps, c.MaxFeeBps)
	}

	amountInWithFee, err := ApplyFee(amountIn, feeBps)
	if err != nil {
		return nil, err
	}
	numerator, err := Mul(amountInWithFee, reserveOut)
	if err != nil {
		return nil, err
	}
	denominator, err := Add(reserveIn, amountInWithFee)
	if err != nil {
		return nil, err
	}
	// unreachable while reserveIn > 0, kept explicit
	if denominator.IsZero() {
		return nil, swaperr.New(swaperr.DivisionByZero, "zero denominator")
	}
	return Div(numerator, denominator)
}

// GetAmountOut prices a swap with the basic variant rules.
func GetAmountOut(reserveIn, reserveOut, amountIn *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	return BasicConfig().GetAmountOut(reserveIn, reserveOut, amountIn, feeBps)
}

// PriceImpactBps returns min(amountIn * 10000 / reserveIn, MaxPriceImpactBps).
// It is an upper-bound heuristic on the price movement, not the exact slippage.
// An empty reserve reports the cap.
func PriceImpactBps(reserveIn, amountIn *uint256.Int) (uint64, error) {
	if reserveIn.IsZero() {
		return MaxPriceImpactBps, nil
	}
	scaled, err := Mul(amountIn, uint256.NewInt(BpsDenominator))
	if err != nil {
		return 0, err
	}
	ratio := scaled.Div(scaled, reserveIn)
	if !ratio.IsUint64() || ratio.Uint64() > MaxPriceImpactBps {
		return MaxPriceImpactBps, nil
	}
	return ratio.Uint64(), nil
}
