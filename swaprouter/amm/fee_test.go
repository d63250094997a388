package amm

import (
	"math/rand/v2"
	"testing"

	"github.com/holiman/uint256"
	"github.com/zeebo/assert"
)

// The canonical tiers must agree exactly with the generic division.
func TestApplyFeeCanonicalMatchesExact(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for fee := range canonicalFees {
		for i := 0; i < 1000; i++ {
			amount := new(uint256.Int).SetUint64(r.Uint64())
			amount.Mul(amount, uint256.NewInt(r.Uint64N(1_000_000)+1))

			fast, err := ApplyFee(amount, fee)
			assert.NoError(t, err)
			exact, err := applyFeeExact(amount, fee)
			assert.NoError(t, err)
			assert.True(t, fast.Eq(exact))
		}
	}
}

func TestApplyFeeAllTiers(t *testing.T) {
	amount := uint256.NewInt(123_456_789)
	for fee := uint64(0); fee <= MaxFeeBps; fee++ {
		got, err := ApplyFee(amount, fee)
		assert.NoError(t, err)
		want := (123_456_789 * (10_000 - fee)) / 10_000
		assert.Equal(t, got.Uint64(), want)
	}
}

func TestApplyFeeRejectsMoreThanWhole(t *testing.T) {
	_, err := ApplyFee(uint256.NewInt(1), BpsDenominator+1)
	assert.Error(t, err)
}
