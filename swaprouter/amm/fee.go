package amm

import (
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/swaperr"
	"github.com/holiman/uint256"
)

type feeFraction struct {
	num, den uint64
}

// canonicalFees holds the common tiers reduced to lowest terms. Multiplying by
// the reduced numerator gives the same floor as (10000 - fee) / 10000 with a
// smaller intermediate product.
var canonicalFees = map[uint64]feeFraction{
	30: {num: 997, den: 1_000},
	25: {num: 399, den: 400},
}

// ApplyFee returns floor(amountIn * (10000 - feeBps) / 10000).
// Canonical tiers take the reduced-fraction path, every other fee the generic one.
// Both paths are exact.
func ApplyFee(amountIn *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if feeBps > BpsDenominator {
		return nil, swaperr.New(swaperr.ArithmeticUnderflow, "fee %d bps exceeds 100%%", feeBps)
	}
	if f, ok := canonicalFees[feeBps]; ok {
		return MulDiv(amountIn, f.num, f.den)
	}
	return applyFeeExact(amountIn, feeBps)
}

func applyFeeExact(amountIn *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	return MulDiv(amountIn, BpsDenominator-feeBps, BpsDenominator)
}
