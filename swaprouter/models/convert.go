package models

import (
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/swaperr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// TokenDecimals is the precision assumed for presentation of pool figures.
const TokenDecimals = 18

// PercentFromBps turns basis points into a percentage, 30 bps is 0.3.
func PercentFromBps(bps uint64) decimal.Decimal {
	return decimal.New(int64(bps), -2)
}

// WholeTokens applies TokenDecimals to a raw amount.
func WholeTokens(amount *uint256.Int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount.ToBig(), -TokenDecimals)
}

// ParseAmount parses a base-10 amount. An empty string is zero.
func ParseAmount(field, s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, swaperr.Wrap(swaperr.InvalidAmount, err, "%s must be a base-10 integer", field)
	}
	return v, nil
}

// ParseAddress parses a 0x hex address. The zero address is accepted here and
// rejected by the core where it matters.
func ParseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, swaperr.New(swaperr.InvalidAddress, "%s is not a hex address: %q", field, s)
	}
	return common.HexToAddress(s), nil
}

// ParseHash parses a 0x prefixed 32 byte hash.
func ParseHash(field, s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, swaperr.New(swaperr.InvalidHash, "%s must be a 0x prefixed 32 byte hash", field)
	}
	return common.BytesToHash(b), nil
}
