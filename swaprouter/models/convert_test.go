package models_test

import (
	"errors"
	"testing"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/models"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/swaperr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zeebo/assert"
)

func TestPercentFromBps(t *testing.T) {
	tests := []struct {
		bps  uint64
		want string
	}{
		{0, "0"},
		{5, "0.05"},
		{30, "0.3"},
		{1000, "10"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, models.PercentFromBps(tt.bps).String(), tt.want)
		})
	}
}

func TestWholeTokens(t *testing.T) {
	v, err := uint256.FromDecimal("1500000000000000000")
	assert.NoError(t, err)
	assert.Equal(t, models.WholeTokens(v).String(), "1.5")
	assert.Equal(t, models.WholeTokens(nil).String(), "0")
}

func TestParseAmount(t *testing.T) {
	v, err := models.ParseAmount("amount_in", "1000")
	assert.NoError(t, err)
	assert.Equal(t, v.Uint64(), uint64(1000))

	v, err = models.ParseAmount("min_amount_out", "")
	assert.NoError(t, err)
	assert.True(t, v.IsZero())

	_, err = models.ParseAmount("amount_in", "-5")
	assert.True(t, errors.Is(err, swaperr.InvalidAmount))
}

func TestParseAddress(t *testing.T) {
	addr, err := models.ParseAddress("user", "0x0000000000000000000000000000000000000a11")
	assert.NoError(t, err)
	assert.Equal(t, addr, common.HexToAddress("0x0000000000000000000000000000000000000a11"))

	_, err = models.ParseAddress("user", "alice")
	assert.True(t, errors.Is(err, swaperr.InvalidAddress))
}

func TestParseHash(t *testing.T) {
	h, err := models.ParseHash("disputed_state", "0x00000000000000000000000000000000000000000000000000000000000000ff")
	assert.NoError(t, err)
	assert.Equal(t, h[31], byte(0xff))

	_, err = models.ParseHash("disputed_state", "0xff")
	assert.True(t, errors.Is(err, swaperr.InvalidHash))
}
