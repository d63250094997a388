package swaperr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/swaperr"
	"github.com/zeebo/assert"
)

func TestErrorMatchesKind(t *testing.T) {
	err := swaperr.New(swaperr.InvalidNonce, "expected %d, got %d", 3, 2)
	wrapped := fmt.Errorf("execute intent: %w", err)

	assert.True(t, errors.Is(wrapped, swaperr.InvalidNonce))
	assert.False(t, errors.Is(wrapped, swaperr.Paused))
	assert.Equal(t, err.Error(), "InvalidNonce: expected 3, got 2")
}

func TestKindOfAndCategoryOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     swaperr.Kind
		category swaperr.Category
	}{
		{"nonce", swaperr.New(swaperr.InvalidNonce, ""), swaperr.InvalidNonce, swaperr.ReplayOrOrdering},
		{"breaker", fmt.Errorf("x: %w", swaperr.New(swaperr.CircuitBreakerTriggered, "")), swaperr.CircuitBreakerTriggered, swaperr.SystemState},
		{"bare kind", swaperr.DivisionByZero, swaperr.DivisionByZero, swaperr.ArithmeticError},
		{"duplicate pool", swaperr.New(swaperr.PoolAlreadyExists, ""), swaperr.PoolAlreadyExists, swaperr.InputValidation},
		{"bold", swaperr.New(swaperr.DisputesDisabled, ""), swaperr.DisputesDisabled, swaperr.SettlementError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := swaperr.KindOf(tt.err)
			assert.True(t, ok)
			assert.Equal(t, kind, tt.kind)
			assert.Equal(t, swaperr.CategoryOf(tt.err), tt.category)
		})
	}
}

func TestForeignErrorHasNoCategory(t *testing.T) {
	_, ok := swaperr.KindOf(errors.New("disk full"))
	assert.False(t, ok)
	assert.Equal(t, swaperr.CategoryOf(errors.New("disk full")), swaperr.CategoryUnknown)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("pebble: closed")
	err := swaperr.Wrap(swaperr.ReserveExceedsPackedWidth, cause, "pool %d", 7)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, err.Category(), swaperr.ArithmeticError)
}
