// Package registry owns the set of pools known to the router, the pair and chain
// indices over them and the per-pool statistics.
//
// Pools live in an arena indexed by their dense id. Secondary indices map a
// normalized token pair or a chain id to pool ids in insertion order, which keeps
// route tie-breaks deterministic.
package registry

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/amm"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/chainctx"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/packed"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/swaperr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "registry").Logger()
}

// DefaultUpdateFrequency is the minimum number of blocks between two refreshes of the same pool.
const DefaultUpdateFrequency uint64 = 100

// Config holds the registry settings fixed at construction.
type Config struct {
	Owner           common.Address
	UpdateFrequency uint64
	MaxFeeBps       uint64
}

// DefaultConfig returns the default registry settings for the given owner.
func DefaultConfig(owner common.Address) Config {
	return Config{
		Owner:           owner,
		UpdateFrequency: DefaultUpdateFrequency,
		MaxFeeBps:       amm.MaxFeeBps,
	}
}

// AddPoolParams describes a pool to register.
type AddPoolParams struct {
	PoolAddress common.Address
	TokenA      common.Address
	TokenB      common.Address
	FeeBps      uint32
	ChainID     uint64
	PoolType    PoolType
}

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	cfg      Config
	clock    chainctx.BlockContext
	provider ReserveProvider
	store    PoolStore

	pools     []*Pool
	volumes   []volumeWindow
	byAddress map[common.Address]uint64
	byPair    map[TokenPair][]uint64
	byChain   map[uint64][]uint64

	updaters   map[common.Address]bool
	validators map[common.Address]bool
	paused     bool
}

// New creates an empty registry. store may be nil, in which case pools live in memory only.
func New(cfg Config, clock chainctx.BlockContext, provider ReserveProvider, store PoolStore) (*Registry, error) {
	if cfg.Owner == (common.Address{}) {
		return nil, swaperr.New(swaperr.InvalidInitialization, "registry owner is the zero address")
	}
	if clock == nil || provider == nil {
		return nil, swaperr.New(swaperr.InvalidInitialization, "registry needs a block context and a reserve provider")
	}
	if cfg.MaxFeeBps == 0 {
		cfg.MaxFeeBps = amm.MaxFeeBps
	}
	return &Registry{
		cfg:        cfg,
		clock:      clock,
		provider:   provider,
		store:      store,
		byAddress:  make(map[common.Address]uint64),
		byPair:     make(map[TokenPair][]uint64),
		byChain:    make(map[uint64][]uint64),
		updaters:   make(map[common.Address]bool),
		validators: make(map[common.Address]bool),
	}, nil
}

// Restore loads all pools from the store and rebuilds the indices.
// It must be called before any pool is added.
func (r *Registry) Restore() error {
	if r.store == nil {
		return nil
	}
	pools, err := r.store.LoadPools()
	if err != nil {
		return fmt.Errorf("failed to load pools: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pools) > 0 {
		return fmt.Errorf("registry already holds %d pools", len(r.pools))
	}
	for i, p := range pools {
		if p.ID != uint64(i) {
			return fmt.Errorf("stored pool ids are not dense: position %d holds id %d", i, p.ID)
		}
		r.insertLocked(p)
	}
	log.Info().Int("pools", len(pools)).Msg("Restored pools from store")
	return nil
}

// AddPool registers a new pool and returns its id. The caller must be the owner
// or an authorized updater. Initial reserves come from the reserve provider.
func (r *Registry) AddPool(ctx context.Context, caller common.Address, params AddPoolParams) (uint64, error) {
	r.mu.RLock()
	err := r.checkNewPoolLocked(caller, params)
	r.mu.RUnlock()
	if err != nil {
		return 0, err
	}

	reserveA, reserveB, err := r.provider.Reserves(ctx, params.PoolAddress, params.TokenA, params.TokenB)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch reserves for pool %s: %w", params.PoolAddress.Hex(), err)
	}
	if err := checkReserves(reserveA, reserveB); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// state may have moved while the reserves were fetched
	if err := r.checkNewPoolLocked(caller, params); err != nil {
		return 0, err
	}

	now := r.clock.Timestamp()
	pool := &Pool{
		ID:               uint64(len(r.pools)),
		PoolAddress:      params.PoolAddress,
		TokenA:           params.TokenA,
		TokenB:           params.TokenB,
		ReserveA:         reserveA,
		ReserveB:         reserveB,
		FeeBps:           params.FeeBps,
		PoolType:         params.PoolType,
		ChainID:          params.ChainID,
		IsActive:         true,
		CreatedAt:        now,
		LastUpdated:      now,
		RefreshedAtBlock: r.clock.BlockNumber(),
	}
	if err := r.persistLocked([]*Pool{pool}); err != nil {
		return 0, err
	}
	r.insertLocked(pool)

	log.Info().
		Uint64("pool_id", pool.ID).
		Str("pool_address", pool.PoolAddress.Hex()).
		Str("token_a", pool.TokenA.Hex()).
		Str("token_b", pool.TokenB.Hex()).
		Uint64("chain_id", pool.ChainID).
		Str("pool_type", pool.PoolType.String()).
		Msg("PoolAdded")
	return pool.ID, nil
}

func (r *Registry) checkNewPoolLocked(caller common.Address, params AddPoolParams) error {
	if !r.isUpdaterLocked(caller) {
		return swaperr.New(swaperr.Unauthorized, "%s may not add pools", caller.Hex())
	}
	if r.paused {
		return swaperr.New(swaperr.RegistryPaused, "registry is paused")
	}
	zero := common.Address{}
	if params.PoolAddress == zero || params.TokenA == zero || params.TokenB == zero {
		return swaperr.New(swaperr.InvalidAddress, "pool and token addresses must be non-zero")
	}
	if params.TokenA == params.TokenB {
		return swaperr.New(swaperr.IdenticalTokens, "token %s on both sides", params.TokenA.Hex())
	}
	if uint64(params.FeeBps) > r.cfg.MaxFeeBps {
		return swaperr.New(swaperr.FeeTooHigh, "fee %d bps exceeds %d", params.FeeBps, r.cfg.MaxFeeBps)
	}
	if id, ok := r.byAddress[params.PoolAddress]; ok {
		return swaperr.New(swaperr.PoolAlreadyExists, "pool %s already registered as %d", params.PoolAddress.Hex(), id)
	}
	return nil
}

// UpdatePool refreshes the reserves of a pool from the reserve provider. At least
// UpdateFrequency blocks must have passed since the previous refresh.
func (r *Registry) UpdatePool(ctx context.Context, caller common.Address, poolID uint64) error {
	r.mu.RLock()
	pool, err := r.checkRefreshLocked(caller, poolID)
	r.mu.RUnlock()
	if err != nil {
		return err
	}

	reserveA, reserveB, err := r.provider.Reserves(ctx, pool.PoolAddress, pool.TokenA, pool.TokenB)
	if err != nil {
		return fmt.Errorf("failed to fetch reserves for pool %d: %w", poolID, err)
	}
	if err := checkReserves(reserveA, reserveB); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	pool, err = r.checkRefreshLocked(caller, poolID)
	if err != nil {
		return err
	}
	pool.ReserveA = reserveA
	pool.ReserveB = reserveB
	pool.LastUpdated = r.clock.Timestamp()
	pool.RefreshedAtBlock = r.clock.BlockNumber()
	stats, err := computeStats(pool, r.volumes[poolID].current(pool.LastUpdated))
	if err != nil {
		return err
	}
	if err := r.persistLocked([]*Pool{pool}); err != nil {
		return err
	}
	r.pools[poolID] = pool

	log.Info().
		Uint64("pool_id", poolID).
		Str("reserve_a", reserveA.Dec()).
		Str("reserve_b", reserveB.Dec()).
		Str("tvl", stats.TVL.Dec()).
		Str("volume_24h", stats.Volume24h.Dec()).
		Msg("PoolUpdated")
	return nil
}

// checkRefreshLocked returns a copy of the pool when a refresh is allowed.
func (r *Registry) checkRefreshLocked(caller common.Address, poolID uint64) (*Pool, error) {
	if !r.isUpdaterLocked(caller) {
		return nil, swaperr.New(swaperr.Unauthorized, "%s may not refresh pools", caller.Hex())
	}
	if poolID >= uint64(len(r.pools)) {
		return nil, swaperr.New(swaperr.PoolNotFound, "pool %d", poolID)
	}
	pool := r.pools[poolID]
	block := r.clock.BlockNumber()
	var elapsed uint64
	if block > pool.RefreshedAtBlock {
		elapsed = block - pool.RefreshedAtBlock
	}
	if elapsed < r.cfg.UpdateFrequency {
		return nil, swaperr.New(swaperr.UpdateTooFrequent, "pool %d refreshed %d blocks ago, minimum is %d",
			poolID, elapsed, r.cfg.UpdateFrequency)
	}
	return pool.Clone(), nil
}

// VerifyPool marks a pool as verified. The caller must hold the validator role.
func (r *Registry) VerifyPool(caller common.Address, poolID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.validators[caller] {
		return swaperr.New(swaperr.NotValidator, "%s may not verify pools", caller.Hex())
	}
	if poolID >= uint64(len(r.pools)) {
		return swaperr.New(swaperr.PoolNotFound, "pool %d", poolID)
	}
	pool := r.pools[poolID].Clone()
	pool.IsVerified = true
	if err := r.persistLocked([]*Pool{pool}); err != nil {
		return err
	}
	r.pools[poolID] = pool

	log.Info().
		Uint64("pool_id", poolID).
		Str("validator", caller.Hex()).
		Uint64("timestamp", r.clock.Timestamp()).
		Msg("PoolVerified")
	return nil
}

// SetPoolActive enables or disables routing through a pool. Owner only.
func (r *Registry) SetPoolActive(caller common.Address, poolID uint64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.cfg.Owner {
		return swaperr.New(swaperr.Unauthorized, "only the owner may toggle pools")
	}
	if poolID >= uint64(len(r.pools)) {
		return swaperr.New(swaperr.PoolNotFound, "pool %d", poolID)
	}
	pool := r.pools[poolID].Clone()
	pool.IsActive = active
	if err := r.persistLocked([]*Pool{pool}); err != nil {
		return err
	}
	r.pools[poolID] = pool
	log.Info().Uint64("pool_id", poolID).Bool("active", active).Msg("Pool activity changed")
	return nil
}

func (r *Registry) persistLocked(pools []*Pool, records ...StateRecord) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SavePools(pools, records...); err != nil {
		return fmt.Errorf("failed to persist pools: %w", err)
	}
	return nil
}

// Persistent reports whether the registry writes through to a store.
func (r *Registry) Persistent() bool {
	return r.store != nil
}

// SaveState persists a named state record on its own. It is a no-op without a store.
func (r *Registry) SaveState(name string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persistLocked(nil, StateRecord{Name: name, Value: value})
}

// LoadState returns the named state record, or nil when none was saved.
func (r *Registry) LoadState(name string) ([]byte, error) {
	if r.store == nil {
		return nil, nil
	}
	value, err := r.store.LoadState(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load state %q: %w", name, err)
	}
	return value, nil
}

func (r *Registry) insertLocked(p *Pool) {
	r.pools = append(r.pools, p)
	r.volumes = append(r.volumes, volumeWindow{})
	r.byAddress[p.PoolAddress] = p.ID
	pair := NewTokenPair(p.TokenA, p.TokenB)
	r.byPair[pair] = append(r.byPair[pair], p.ID)
	r.byChain[p.ChainID] = append(r.byChain[p.ChainID], p.ID)
}

// Pool returns a copy of the pool with the given id.
func (r *Registry) Pool(poolID uint64) (*Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if poolID >= uint64(len(r.pools)) {
		return nil, false
	}
	return r.pools[poolID].Clone(), true
}

// CandidatePools returns every pool id indexed for the pair, active or not, in insertion order.
func (r *Registry) CandidatePools(a, b common.Address) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]uint64(nil), r.byPair[NewTokenPair(a, b)]...)
}

// PoolsForPair returns the active pools for the pair in insertion order.
func (r *Registry) PoolsForPair(a, b common.Address) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked(r.byPair[NewTokenPair(a, b)])
}

// PoolsByChain returns the active pools deployed on a chain in insertion order.
func (r *Registry) PoolsByChain(chainID uint64) []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeLocked(r.byChain[chainID])
}

func (r *Registry) activeLocked(ids []uint64) []uint64 {
	result := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if r.pools[id].IsActive {
			result = append(result, id)
		}
	}
	return result
}

// PoolCount returns the number of pools ever registered.
func (r *Registry) PoolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

// ActivePoolCount returns the number of pools currently open for routing.
func (r *Registry) ActivePoolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, p := range r.pools {
		if p.IsActive {
			count++
		}
	}
	return count
}

// Stats returns the current statistics of a pool.
func (r *Registry) Stats(poolID uint64) (PoolStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if poolID >= uint64(len(r.pools)) {
		return PoolStats{}, swaperr.New(swaperr.PoolNotFound, "pool %d", poolID)
	}
	return r.statsLocked(poolID)
}

func (r *Registry) statsLocked(poolID uint64) (PoolStats, error) {
	return computeStats(r.pools[poolID], r.volumes[poolID].current(r.clock.Timestamp()))
}

func (r *Registry) isUpdaterLocked(addr common.Address) bool {
	return addr == r.cfg.Owner || r.updaters[addr]
}

// AddUpdater allows addr to add and refresh pools. Owner only.
func (r *Registry) AddUpdater(caller, addr common.Address) error {
	return r.grant(caller, addr, r.updaters, "updater")
}

// AddValidator allows addr to verify pools. Owner only.
func (r *Registry) AddValidator(caller, addr common.Address) error {
	return r.grant(caller, addr, r.validators, "validator")
}

func (r *Registry) grant(caller, addr common.Address, roles map[common.Address]bool, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.cfg.Owner {
		return swaperr.New(swaperr.Unauthorized, "only the owner may grant the %s role", role)
	}
	if addr == (common.Address{}) {
		return swaperr.New(swaperr.InvalidAddress, "cannot grant %s to the zero address", role)
	}
	roles[addr] = true
	log.Info().Str("role", role).Str("address", addr.Hex()).Msg("Role granted")
	return nil
}

// SetPaused pauses or resumes pool registration. Owner only.
func (r *Registry) SetPaused(caller common.Address, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.cfg.Owner {
		return swaperr.New(swaperr.Unauthorized, "only the owner may pause the registry")
	}
	r.paused = paused
	log.Warn().Bool("paused", paused).Str("admin", caller.Hex()).Msg("EmergencyAction")
	return nil
}

// SetUpdateFrequency changes the minimum number of blocks between refreshes. Owner only.
func (r *Registry) SetUpdateFrequency(caller common.Address, blocks uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.cfg.Owner {
		return swaperr.New(swaperr.Unauthorized, "only the owner may change the update frequency")
	}
	r.cfg.UpdateFrequency = blocks
	log.Info().Uint64("update_frequency", blocks).Msg("Registry config updated")
	return nil
}

// Owner returns the registry owner.
func (r *Registry) Owner() common.Address {
	return r.cfg.Owner
}

// checkReserves rejects provider reserves that the packed pool record cannot hold.
func checkReserves(reserveA, reserveB *uint256.Int) error {
	if reserveA == nil || reserveB == nil {
		return swaperr.New(swaperr.InvalidAmount, "reserve provider returned no reserves")
	}
	if !packed.ReservesFit(reserveA, reserveB) {
		return swaperr.New(swaperr.ReserveExceedsPackedWidth, "reserves %s and %s exceed %s",
			reserveA.Dec(), reserveB.Dec(), packed.MaxReserve.Dec())
	}
	return nil
}

// reserveTotal is ReserveA + ReserveB, used for TVL.
func reserveTotal(p *Pool) (*uint256.Int, error) {
	return amm.Add(p.ReserveA, p.ReserveB)
}
