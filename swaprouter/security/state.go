// Package security holds the per-deployment security state of the router and the
// ordered validation pipeline every intent passes before it is routed.
//
// State is not safe for concurrent use. The router engine serializes every call
// that reads or mutates it.
package security

import (
	"os"
	"time"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/amm"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/swaperr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "security").Logger()
}

// VolumeWindow is the length of a volume epoch in seconds.
const VolumeWindow uint64 = 86_400

// DefaultExpiryBuffer is the minimum execution window of an intent in seconds.
const DefaultExpiryBuffer uint64 = 300

var wad = uint256.NewInt(1_000_000_000_000_000_000)

func tokens(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), wad)
}

// Limits are the economic bounds enforced by the pipeline.
type Limits struct {
	MinTradeAmount          *uint256.Int `json:"min_trade_amount"`
	MaxTradeAmount          *uint256.Int `json:"max_trade_amount"`
	MaxDailyVolume          *uint256.Int `json:"max_daily_volume"`
	CircuitBreakerThreshold *uint256.Int `json:"circuit_breaker_threshold"`
	// SuspiciousAmount raises a non-failing alert when exceeded
	SuspiciousAmount *uint256.Int `json:"suspicious_amount"`
	ExpiryBuffer     uint64       `json:"expiry_buffer"`
	MaxSlippageBps   uint64       `json:"max_slippage_bps"`
}

// DefaultLimits returns the production defaults.
func DefaultLimits() Limits {
	return Limits{
		MinTradeAmount:          uint256.NewInt(1_000),
		MaxTradeAmount:          tokens(100_000),
		MaxDailyVolume:          tokens(1_000_000),
		CircuitBreakerThreshold: tokens(10_000_000),
		SuspiciousAmount:        tokens(1_000_000),
		ExpiryBuffer:            DefaultExpiryBuffer,
		MaxSlippageBps:          amm.MaxSlippageBps,
	}
}

func (l Limits) clone() Limits {
	c := l
	c.MinTradeAmount = l.MinTradeAmount.Clone()
	c.MaxTradeAmount = l.MaxTradeAmount.Clone()
	c.MaxDailyVolume = l.MaxDailyVolume.Clone()
	c.CircuitBreakerThreshold = l.CircuitBreakerThreshold.Clone()
	c.SuspiciousAmount = l.SuspiciousAmount.Clone()
	return c
}

func (l Limits) validate() error {
	if l.MinTradeAmount == nil || l.MaxTradeAmount == nil || l.MaxDailyVolume == nil ||
		l.CircuitBreakerThreshold == nil || l.SuspiciousAmount == nil {
		return swaperr.New(swaperr.InvalidInitialization, "every limit must be set")
	}
	if l.MinTradeAmount.Gt(l.MaxTradeAmount) {
		return swaperr.New(swaperr.InvalidInitialization, "min trade amount %s exceeds max %s",
			l.MinTradeAmount.Dec(), l.MaxTradeAmount.Dec())
	}
	if l.MaxSlippageBps > amm.BpsDenominator {
		return swaperr.New(swaperr.InvalidInitialization, "max slippage %d bps exceeds 100%%", l.MaxSlippageBps)
	}
	return nil
}

// UserVolume is a user's traded input volume in the epoch starting at EpochStart.
type UserVolume struct {
	EpochStart uint64       `json:"epoch_start"`
	Volume     *uint256.Int `json:"volume"`
}

// State is the security state of one deployment.
type State struct {
	owner          common.Address
	emergencyAdmin common.Address
	limits         Limits
	createdAt      uint64

	paused            bool
	userNonces        map[common.Address]uint64
	dailyVolume       map[common.Address]UserVolume
	totalVolume24h    *uint256.Int
	lastVolumeReset   uint64
	authorizedCallers map[common.Address]bool

	alertHook func(Alert)
}

// NewState creates the security state. now is the deployment timestamp and starts
// the first volume epoch.
func NewState(owner, emergencyAdmin common.Address, limits Limits, now uint64) (*State, error) {
	if owner == (common.Address{}) || emergencyAdmin == (common.Address{}) {
		return nil, swaperr.New(swaperr.InvalidInitialization, "owner and emergency admin must be non-zero")
	}
	if err := limits.validate(); err != nil {
		return nil, err
	}
	return &State{
		owner:             owner,
		emergencyAdmin:    emergencyAdmin,
		limits:            limits.clone(),
		createdAt:         now,
		userNonces:        make(map[common.Address]uint64),
		dailyVolume:       make(map[common.Address]UserVolume),
		totalVolume24h:    new(uint256.Int),
		lastVolumeReset:   now,
		authorizedCallers: make(map[common.Address]bool),
	}, nil
}

// SetAlertHook registers fn to receive every alert after it is logged.
func (s *State) SetAlertHook(fn func(Alert)) {
	s.alertHook = fn
}

func (s *State) Owner() common.Address { return s.owner }

func (s *State) EmergencyAdmin() common.Address { return s.emergencyAdmin }

func (s *State) Paused() bool { return s.paused }

func (s *State) Limits() Limits { return s.limits.clone() }

// NonceOf returns the next nonce expected from user.
func (s *State) NonceOf(user common.Address) uint64 {
	return s.userNonces[user]
}

// DailyVolume returns the volume user traded in the current epoch.
func (s *State) DailyVolume(user common.Address, now uint64) *uint256.Int {
	v, ok := s.dailyVolume[user]
	if !ok || now > v.EpochStart+VolumeWindow {
		return new(uint256.Int)
	}
	return v.Volume.Clone()
}

// TotalVolume24h returns the volume counted towards the circuit breaker.
func (s *State) TotalVolume24h() *uint256.Int {
	return s.totalVolume24h.Clone()
}

// IsAuthorizedCaller reports whether addr may call admin-gated router operations.
func (s *State) IsAuthorizedCaller(addr common.Address) bool {
	return addr == s.owner || s.authorizedCallers[addr]
}

// AddAuthorizedCaller grants addr access to admin-gated router operations. Owner only.
func (s *State) AddAuthorizedCaller(caller, addr common.Address) error {
	if caller != s.owner {
		return swaperr.New(swaperr.Unauthorized, "only the owner may authorize callers")
	}
	if addr == (common.Address{}) {
		return swaperr.New(swaperr.InvalidAddress, "cannot authorize the zero address")
	}
	s.authorizedCallers[addr] = true
	log.Info().Str("address", addr.Hex()).Msg("Authorized caller added")
	return nil
}

// SetLimits replaces the economic limits. Owner only.
func (s *State) SetLimits(caller common.Address, limits Limits) error {
	if caller != s.owner {
		return swaperr.New(swaperr.Unauthorized, "only the owner may change limits")
	}
	if err := limits.validate(); err != nil {
		return err
	}
	s.limits = limits.clone()
	log.Info().
		Str("min_trade", limits.MinTradeAmount.Dec()).
		Str("max_trade", limits.MaxTradeAmount.Dec()).
		Str("max_daily", limits.MaxDailyVolume.Dec()).
		Str("circuit_breaker", limits.CircuitBreakerThreshold.Dec()).
		Msg("Security limits updated")
	return nil
}

// EmergencyPause halts every intent. The owner and the emergency admin may pause.
func (s *State) EmergencyPause(caller common.Address, now uint64) error {
	if caller != s.owner && caller != s.emergencyAdmin {
		return swaperr.New(swaperr.UnauthorizedEmergencyAction, "%s may not pause the router", caller.Hex())
	}
	s.paused = true
	log.Warn().
		Str("admin", caller.Hex()).
		Str("action_type", "EMERGENCY_PAUSE").
		Uint64("timestamp", now).
		Msg("EmergencyAction")
	return nil
}

// Resume clears the pause and the 24h total so a tripped breaker does not
// trip again on the next intent. Owner only.
func (s *State) Resume(caller common.Address, now uint64) error {
	if caller != s.owner {
		return swaperr.New(swaperr.Unauthorized, "only the owner may resume the router")
	}
	s.paused = false
	s.totalVolume24h = new(uint256.Int)
	s.lastVolumeReset = now
	log.Warn().
		Str("admin", caller.Hex()).
		Str("action_type", "RESUME").
		Uint64("timestamp", now).
		Msg("EmergencyAction")
	return nil
}

// Snapshot is a deep copy of a State.
type Snapshot struct {
	Owner             common.Address                `json:"owner"`
	EmergencyAdmin    common.Address                `json:"emergency_admin"`
	Limits            Limits                        `json:"limits"`
	CreatedAt         uint64                        `json:"created_at"`
	Paused            bool                          `json:"paused"`
	UserNonces        map[common.Address]uint64     `json:"user_nonces"`
	DailyVolume       map[common.Address]UserVolume `json:"daily_volume"`
	TotalVolume24h    *uint256.Int                  `json:"total_volume_24h"`
	LastVolumeReset   uint64                        `json:"last_volume_reset"`
	AuthorizedCallers []common.Address              `json:"authorized_callers"`
}

// Snapshot returns a deep copy of the state.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		Owner:           s.owner,
		EmergencyAdmin:  s.emergencyAdmin,
		Limits:          s.limits.clone(),
		CreatedAt:       s.createdAt,
		Paused:          s.paused,
		UserNonces:      make(map[common.Address]uint64, len(s.userNonces)),
		DailyVolume:     make(map[common.Address]UserVolume, len(s.dailyVolume)),
		TotalVolume24h:  s.totalVolume24h.Clone(),
		LastVolumeReset: s.lastVolumeReset,
	}
	for u, n := range s.userNonces {
		snap.UserNonces[u] = n
	}
	for u, v := range s.dailyVolume {
		snap.DailyVolume[u] = UserVolume{EpochStart: v.EpochStart, Volume: v.Volume.Clone()}
	}
	for a := range s.authorizedCallers {
		snap.AuthorizedCallers = append(snap.AuthorizedCallers, a)
	}
	return snap
}

// Restore replaces the state with a snapshot. The alert hook is kept.
func (s *State) Restore(snap Snapshot) error {
	restored, err := NewState(snap.Owner, snap.EmergencyAdmin, snap.Limits, snap.CreatedAt)
	if err != nil {
		return err
	}
	restored.paused = snap.Paused
	restored.lastVolumeReset = snap.LastVolumeReset
	if snap.TotalVolume24h != nil {
		restored.totalVolume24h = snap.TotalVolume24h.Clone()
	}
	for u, n := range snap.UserNonces {
		restored.userNonces[u] = n
	}
	for u, v := range snap.DailyVolume {
		restored.dailyVolume[u] = UserVolume{EpochStart: v.EpochStart, Volume: v.Volume.Clone()}
	}
	for _, a := range snap.AuthorizedCallers {
		restored.authorizedCallers[a] = true
	}
	restored.alertHook = s.alertHook
	*s = *restored
	return nil
}
