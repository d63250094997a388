// Package settlement records cross-chain intents and their settlement under the
// policy of the chain the router runs on, and tracks disputes and sequencer liveness.
package settlement

import (
	"os"
	"sync"
	"time"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/amm"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/chainctx"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/metrics"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/swaperr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "settlement").Logger()
}

const (
	// DefaultDisputeWindow is seven days of 12 second blocks.
	DefaultDisputeWindow uint64 = 7 * 24 * 60 * 60 / 12
	// SequencerTimeout is how long the sequencer may stay silent before fallback, in seconds.
	SequencerTimeout uint64 = 300
)

// ChainConfig describes the deployment chain.
type ChainConfig struct {
	ChainID               uint64
	SettlementLayer       common.Address
	BoldEnabled           bool
	SequencerAddress      common.Address
	MinConfirmationBlocks uint64
}

// CrossChainIntent is a swap request settled across chains.
type CrossChainIntent struct {
	User         common.Address
	SourceChain  uint64
	TargetChain  uint64
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *uint256.Int
	MinAmountOut *uint256.Int
	Deadline     uint64
	// SettlementMode is the mode tag requested by the user. Settlement always
	// follows the chain's own mode.
	SettlementMode uint8
}

// Record is the settlement of one cross-chain intent.
type Record struct {
	Nonce           uint64
	Mode            Mode
	SettlementBlock uint64
	StateRoot       common.Hash
	AmountOut       *uint256.Int
}

// Dispute is a challenge against a settlement record.
type Dispute struct {
	Nonce         uint64
	Challenger    common.Address
	DisputedState common.Hash
	OpenedAtBlock uint64
	DeadlineBlock uint64
}

// Machine is safe for concurrent use. Its mode is fixed at construction.
type Machine struct {
	mu            sync.RWMutex
	cfg           ChainConfig
	modeTag       uint8
	disputeWindow uint64
	clock         chainctx.BlockContext
	metrics       *metrics.Metrics

	nextNonce uint64
	pending   map[uint64]CrossChainIntent
	records   map[uint64]Record
	disputes  map[uint64]Dispute

	lastHeartbeat    uint64
	sequencerOffline bool
	fallbackMode     bool
}

// NewMachine selects the mode from cfg.ChainID. The dispute window is only set
// when BoLD is enabled. m may be nil.
func NewMachine(cfg ChainConfig, clock chainctx.BlockContext, m *metrics.Metrics) (*Machine, error) {
	if clock == nil {
		return nil, swaperr.New(swaperr.InvalidInitialization, "settlement needs a block context")
	}
	mode := ModeForChain(cfg.ChainID)
	machine := &Machine{
		cfg:           cfg,
		modeTag:       mode.Tag(),
		clock:         clock,
		metrics:       m,
		pending:       make(map[uint64]CrossChainIntent),
		records:       make(map[uint64]Record),
		disputes:      make(map[uint64]Dispute),
		lastHeartbeat: clock.Timestamp(),
	}
	if cfg.BoldEnabled {
		machine.disputeWindow = DefaultDisputeWindow
	}
	log.Info().
		Uint64("chain_id", cfg.ChainID).
		Str("mode", mode.String()).
		Bool("bold_enabled", cfg.BoldEnabled).
		Uint64("dispute_window", machine.disputeWindow).
		Msg("Settlement initialized")
	return machine, nil
}

/*
ExecuteCrossChainIntent validates intent for caller, allocates the next
settlement nonce, stores the intent and settles it under the chain's mode.
It returns the nonce and the estimated output.

The deadline must leave at least MinConfirmationBlocks past the current
timestamp. Either every effect is recorded or none is.
*/
func (m *Machine) ExecuteCrossChainIntent(caller common.Address, intent CrossChainIntent) (uint64, *uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.validate(caller, intent); err != nil {
		return 0, nil, err
	}

	mode := ModeFromTag(m.modeTag)
	block := m.clock.BlockNumber()
	nonce := m.nextNonce
	record, err := settle(mode, intent, nonce, block)
	if err != nil {
		return 0, nil, err
	}

	m.pending[nonce] = cloneIntent(intent)
	m.nextNonce++
	m.records[nonce] = record
	m.metrics.SettlementInitiated(mode.String())

	if mode == ModeOrbit && m.cfg.SettlementLayer != (common.Address{}) {
		log.Debug().Str("parent", m.cfg.SettlementLayer.Hex()).Uint64("nonce", nonce).Msg("Orbit settlement targets parent chain")
	}
	log.Info().
		Uint64("nonce", nonce).
		Uint64("settlement_block", block).
		Str("state_root", record.StateRoot.Hex()).
		Str("mode", mode.String()).
		Msg("SettlementInitiated")
	log.Info().
		Uint64("nonce", nonce).
		Str("user", intent.User.Hex()).
		Uint64("source_chain", intent.SourceChain).
		Uint64("target_chain", intent.TargetChain).
		Str("token_in", intent.TokenIn.Hex()).
		Str("token_out", intent.TokenOut.Hex()).
		Str("amount_in", intent.AmountIn.Dec()).
		Str("requested_mode", ModeFromTag(intent.SettlementMode).String()).
		Msg("CrossChainIntentCreated")
	return nonce, record.AmountOut.Clone(), nil
}

func (m *Machine) validate(caller common.Address, intent CrossChainIntent) error {
	if intent.User != caller {
		return swaperr.New(swaperr.UserMismatch, "intent user %s submitted by %s", intent.User.Hex(), caller.Hex())
	}
	if intent.AmountIn == nil || intent.AmountIn.IsZero() {
		return swaperr.New(swaperr.ZeroAmount, "amount must be greater than zero")
	}
	if intent.SourceChain != m.cfg.ChainID {
		return swaperr.New(swaperr.InvalidSourceChain, "source chain %d, router runs on %d", intent.SourceChain, m.cfg.ChainID)
	}
	minDeadline, err := amm.Add(uint256.NewInt(m.clock.Timestamp()), uint256.NewInt(m.cfg.MinConfirmationBlocks))
	if err != nil {
		return err
	}
	if uint256.NewInt(intent.Deadline).Lt(minDeadline) {
		return swaperr.New(swaperr.InsufficientFinalityBuffer, "deadline %d before %s", intent.Deadline, minDeadline.Dec())
	}
	return nil
}

// settle is the mode handler. Every mode binds the intent with the same content
// hash and differs in the fraction of the input it delivers.
func settle(mode Mode, intent CrossChainIntent, nonce, block uint64) (Record, error) {
	num, den := mode.OutputFraction()
	out, err := amm.MulDiv(intent.AmountIn, num, den)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Nonce:           nonce,
		Mode:            mode,
		SettlementBlock: block,
		StateRoot:       StateRoot(intent),
		AmountOut:       out,
	}, nil
}

// StateRoot is keccak256(user || amountIn as 32 bytes || deadline as 32 bytes).
func StateRoot(intent CrossChainIntent) common.Hash {
	amount := intent.AmountIn.Bytes32()
	deadline := uint256.NewInt(intent.Deadline).Bytes32()
	return crypto.Keccak256Hash(intent.User.Bytes(), amount[:], deadline[:])
}

/*
ChallengeSettlement opens a dispute against the settlement with the given nonce.
Disputes require BoLD. A settlement can hold one open dispute at a time; a new
one may be raised once the previous window has passed.
*/
func (m *Machine) ChallengeSettlement(caller common.Address, nonce uint64, disputedState common.Hash) (Dispute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.cfg.BoldEnabled {
		return Dispute{}, swaperr.New(swaperr.DisputesDisabled, "BoLD is not enabled on chain %d", m.cfg.ChainID)
	}
	if _, ok := m.records[nonce]; !ok {
		return Dispute{}, swaperr.New(swaperr.SettlementNotFound, "settlement %d", nonce)
	}
	block := m.clock.BlockNumber()
	if d, ok := m.disputes[nonce]; ok && block <= d.DeadlineBlock {
		return Dispute{}, swaperr.New(swaperr.DisputeAlreadyOpen, "settlement %d disputed until block %d", nonce, d.DeadlineBlock)
	}
	deadline, err := amm.Add(uint256.NewInt(block), uint256.NewInt(m.disputeWindow))
	if err != nil {
		return Dispute{}, err
	}
	if !deadline.IsUint64() {
		return Dispute{}, swaperr.New(swaperr.ArithmeticOverflow, "dispute deadline block overflows")
	}

	d := Dispute{
		Nonce:         nonce,
		Challenger:    caller,
		DisputedState: disputedState,
		OpenedAtBlock: block,
		DeadlineBlock: deadline.Uint64(),
	}
	m.disputes[nonce] = d
	log.Warn().
		Uint64("nonce", nonce).
		Str("challenger", caller.Hex()).
		Str("disputed_state", disputedState.Hex()).
		Uint64("deadline_block", d.DeadlineBlock).
		Msg("DisputeRaised")
	return d, nil
}

// RecordSequencerHeartbeat marks the sequencer as alive at ts.
func (m *Machine) RecordSequencerHeartbeat(ts uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ts > m.lastHeartbeat {
		m.lastHeartbeat = ts
	}
	if m.sequencerOffline {
		log.Info().Uint64("timestamp", ts).Msg("Sequencer back online")
	}
	m.sequencerOffline = false
	m.fallbackMode = false
}

// CheckSequencer switches to fallback mode once the sequencer has been silent
// for longer than SequencerTimeout. It reports whether the router is in fallback.
// This is a timeout check only, it does not prove liveness.
func (m *Machine) CheckSequencer() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.Timestamp()
	if now > m.lastHeartbeat && now-m.lastHeartbeat > SequencerTimeout && !m.fallbackMode {
		m.sequencerOffline = true
		m.fallbackMode = true
		log.Warn().
			Bool("offline", true).
			Uint64("last_update_block", m.clock.BlockNumber()).
			Uint64("last_heartbeat", m.lastHeartbeat).
			Msg("SequencerFallback")
	}
	return m.fallbackMode
}

func (m *Machine) FallbackMode() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fallbackMode
}

func (m *Machine) PendingSettlement(nonce uint64) (CrossChainIntent, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.pending[nonce]
	if !ok {
		return CrossChainIntent{}, false
	}
	return cloneIntent(in), true
}

func (m *Machine) Record(nonce uint64) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[nonce]
	if ok {
		r.AmountOut = r.AmountOut.Clone()
	}
	return r, ok
}

func (m *Machine) Dispute(nonce uint64) (Dispute, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.disputes[nonce]
	return d, ok
}

// NextNonce is the nonce the next settlement will receive.
func (m *Machine) NextNonce() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextNonce
}

func (m *Machine) ChainConfig() ChainConfig { return m.cfg }

func (m *Machine) Mode() Mode { return ModeFromTag(m.modeTag) }

func (m *Machine) IsBoldEnabled() bool { return m.cfg.BoldEnabled }

// DisputeWindow is the dispute length in blocks, zero without BoLD.
func (m *Machine) DisputeWindow() uint64 { return m.disputeWindow }

func cloneIntent(in CrossChainIntent) CrossChainIntent {
	c := in
	c.AmountIn = in.AmountIn.Clone()
	if in.MinAmountOut != nil {
		c.MinAmountOut = in.MinAmountOut.Clone()
	}
	return c
}
