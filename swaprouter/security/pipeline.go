package security

import (
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/amm"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/swaperr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Intent is a user's request to swap AmountIn of TokenIn for at least
// MinAmountOut of TokenOut before Deadline (unix seconds).
type Intent struct {
	User           common.Address
	TokenIn        common.Address
	TokenOut       common.Address
	AmountIn       *uint256.Int
	MinAmountOut   *uint256.Int
	Deadline       uint64
	MaxSlippageBps uint64
	Nonce          uint64
}

// Tx holds the counter updates authorized by a successful Validate. Nothing is
// visible in the State until Commit is called; dropping the Tx discards them.
type Tx struct {
	s      *State
	user   common.Address
	amount *uint256.Int
	now    uint64

	nextNonce   uint64
	userVolume  UserVolume
	resetGlobal bool
	committed   bool
}

/*
Validate runs the pipeline for intent submitted by caller at time now.

Checks run in this order and stop at the first failure:

 1. router not paused
 2. intent user is the caller
 3. token addresses non-zero and distinct
 4. amount non-zero and within the trade bounds
 5. deadline in the future and at least the expiry buffer away
 6. slippage bound at most the configured maximum
 7. nonce equals the next expected nonce
 8. user daily volume, reset once its epoch has passed
 9. circuit breaker on the 24h total

A circuit breaker failure pauses the router immediately. Every other effect is
staged on the returned Tx.
*/
func (s *State) Validate(caller common.Address, intent Intent, now uint64) (*Tx, error) {
	if s.paused {
		return nil, swaperr.New(swaperr.Paused, "router is paused")
	}
	if intent.User != caller {
		return nil, swaperr.New(swaperr.UserMismatch, "intent user %s submitted by %s", intent.User.Hex(), caller.Hex())
	}
	if intent.TokenIn == (common.Address{}) || intent.TokenOut == (common.Address{}) {
		return nil, swaperr.New(swaperr.InvalidAddress, "token addresses must be non-zero")
	}
	if intent.TokenIn == intent.TokenOut {
		return nil, swaperr.New(swaperr.IdenticalTokens, "token %s on both sides", intent.TokenIn.Hex())
	}
	if err := s.checkAmount(intent.AmountIn); err != nil {
		return nil, err
	}
	if intent.Deadline <= now {
		return nil, swaperr.New(swaperr.TransactionExpired, "deadline %d is not after %d", intent.Deadline, now)
	}
	if intent.Deadline-now < s.limits.ExpiryBuffer {
		return nil, swaperr.New(swaperr.DeadlineTooSoon, "deadline %d is less than %ds away", intent.Deadline, s.limits.ExpiryBuffer)
	}
	if intent.MaxSlippageBps > s.limits.MaxSlippageBps {
		return nil, swaperr.New(swaperr.SlippageTooHigh, "slippage %d bps exceeds %d", intent.MaxSlippageBps, s.limits.MaxSlippageBps)
	}
	expected := s.userNonces[intent.User]
	if intent.Nonce != expected {
		return nil, swaperr.New(swaperr.InvalidNonce, "nonce %d, expected %d", intent.Nonce, expected)
	}

	tx := &Tx{
		s:         s,
		user:      intent.User,
		amount:    intent.AmountIn.Clone(),
		now:       now,
		nextNonce: expected + 1,
	}
	if err := tx.stageDailyVolume(); err != nil {
		return nil, err
	}
	if intent.AmountIn.Gt(s.limits.SuspiciousAmount) {
		s.raise(intent.User, AlertSuspiciousLargeAmount, now)
	}
	if err := tx.checkCircuitBreaker(); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *State) checkAmount(amount *uint256.Int) error {
	if amount == nil {
		return swaperr.New(swaperr.InvalidAmount, "amount is missing")
	}
	if amount.IsZero() {
		return swaperr.New(swaperr.ZeroAmount, "amount must be greater than zero")
	}
	if amount.Lt(s.limits.MinTradeAmount) {
		return swaperr.New(swaperr.AmountBelowMinimum, "amount %s below %s", amount.Dec(), s.limits.MinTradeAmount.Dec())
	}
	if amount.Gt(s.limits.MaxTradeAmount) {
		return swaperr.New(swaperr.AmountAboveMaximum, "amount %s above %s", amount.Dec(), s.limits.MaxTradeAmount.Dec())
	}
	return nil
}

func (tx *Tx) stageDailyVolume() error {
	s := tx.s
	current, ok := s.dailyVolume[tx.user]
	if !ok {
		current = UserVolume{EpochStart: s.createdAt, Volume: new(uint256.Int)}
	}
	if tx.now > current.EpochStart+VolumeWindow {
		current = UserVolume{EpochStart: tx.now, Volume: new(uint256.Int)}
	}

	next, err := amm.Add(current.Volume, tx.amount)
	if err != nil {
		return err
	}
	if next.Gt(s.limits.MaxDailyVolume) {
		s.raise(tx.user, AlertDailyVolumeExceeded, tx.now)
		return swaperr.New(swaperr.DailyVolumeExceeded, "daily volume %s would exceed %s", next.Dec(), s.limits.MaxDailyVolume.Dec())
	}
	tx.userVolume = UserVolume{EpochStart: current.EpochStart, Volume: next}
	return nil
}

func (tx *Tx) checkCircuitBreaker() error {
	s := tx.s
	total := s.totalVolume24h
	if tx.now > s.lastVolumeReset+VolumeWindow {
		total = new(uint256.Int)
		tx.resetGlobal = true
	}
	next, err := amm.Add(total, tx.amount)
	if err != nil {
		return err
	}
	if next.Gt(s.limits.CircuitBreakerThreshold) {
		s.paused = true
		s.raise(tx.user, AlertCircuitBreakerTriggered, tx.now)
		log.Warn().
			Str("total_volume_24h", next.Dec()).
			Str("threshold", s.limits.CircuitBreakerThreshold.Dec()).
			Str("action_type", "CIRCUIT_BREAKER_PAUSE").
			Uint64("timestamp", tx.now).
			Msg("EmergencyAction")
		return swaperr.New(swaperr.CircuitBreakerTriggered, "24h volume %s would exceed %s",
			next.Dec(), s.limits.CircuitBreakerThreshold.Dec())
	}
	return nil
}

// Nonce is the nonce the user will be expected to send next once the Tx commits.
func (tx *Tx) Nonce() uint64 { return tx.nextNonce }

// Commit applies the staged nonce and volume updates. It is idempotent.
func (tx *Tx) Commit() {
	if tx.committed {
		return
	}
	tx.committed = true
	s := tx.s
	s.userNonces[tx.user] = tx.nextNonce
	s.dailyVolume[tx.user] = tx.userVolume
	s.totalVolume24h, s.lastVolumeReset = tx.totalAfter()
}
