package registry

import (
	"fmt"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/amm"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/swaperr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Tx is a unit of work over the registry. It is only valid inside the function
// passed to Registry.Update, which holds the registry lock for its whole duration.
type Tx struct {
	r       *Registry
	staged  map[uint64]*Pool
	order   []uint64
	volumes map[uint64]volumeWindow
	records []StateRecord
	hooks   []func()
}

// Update runs fn as one atomic unit. Pool changes and state records staged on the
// Tx are persisted in one batch and applied only when fn returns nil. Hooks registered with BeforeApply run after
// persistence succeeds and strictly before the staged reserves become visible.
func (r *Registry) Update(fn func(tx *Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &Tx{
		r:       r,
		staged:  make(map[uint64]*Pool),
		volumes: make(map[uint64]volumeWindow),
	}
	if err := fn(tx); err != nil {
		return err
	}

	pools := make([]*Pool, 0, len(tx.order))
	for _, id := range tx.order {
		pools = append(pools, tx.staged[id])
	}
	if len(pools) > 0 || len(tx.records) > 0 {
		if err := r.persistLocked(pools, tx.records...); err != nil {
			return err
		}
	}
	for _, hook := range tx.hooks {
		hook()
	}
	for _, p := range pools {
		r.pools[p.ID] = p
	}
	for id, w := range tx.volumes {
		r.volumes[id] = w
	}
	return nil
}

// View runs fn against a read-only view of the registry. Changes staged on the
// Tx are discarded.
func (r *Registry) View(fn func(tx *Tx) error) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(&Tx{
		r:       r,
		staged:  make(map[uint64]*Pool),
		volumes: make(map[uint64]volumeWindow),
	})
}

// Pool returns the pool as seen by this transaction, including staged changes.
func (tx *Tx) Pool(poolID uint64) (*Pool, bool) {
	if p, ok := tx.staged[poolID]; ok {
		return p.Clone(), true
	}
	if poolID >= uint64(len(tx.r.pools)) {
		return nil, false
	}
	return tx.r.pools[poolID].Clone(), true
}

// CandidatePools returns every pool id indexed for the pair in insertion order.
func (tx *Tx) CandidatePools(a, b common.Address) []uint64 {
	return append([]uint64(nil), tx.r.byPair[NewTokenPair(a, b)]...)
}

// ApplySwap stages the reserve deltas of a swap of amountIn tokenIn for amountOut
// of the other token, and adds amountIn to the pool's 24h volume.
func (tx *Tx) ApplySwap(poolID uint64, tokenIn common.Address, amountIn, amountOut *uint256.Int) error {
	pool, ok := tx.Pool(poolID)
	if !ok {
		return swaperr.New(swaperr.PoolNotFound, "pool %d", poolID)
	}

	var err error
	switch tokenIn {
	case pool.TokenA:
		if pool.ReserveA, err = amm.Add(pool.ReserveA, amountIn); err != nil {
			return fmt.Errorf("reserve A of pool %d: %w", poolID, err)
		}
		if pool.ReserveB, err = amm.Sub(pool.ReserveB, amountOut); err != nil {
			return fmt.Errorf("reserve B of pool %d: %w", poolID, err)
		}
	case pool.TokenB:
		if pool.ReserveB, err = amm.Add(pool.ReserveB, amountIn); err != nil {
			return fmt.Errorf("reserve B of pool %d: %w", poolID, err)
		}
		if pool.ReserveA, err = amm.Sub(pool.ReserveA, amountOut); err != nil {
			return fmt.Errorf("reserve A of pool %d: %w", poolID, err)
		}
	default:
		return swaperr.New(swaperr.InvalidAddress, "token %s is not traded by pool %d", tokenIn.Hex(), poolID)
	}

	now := tx.r.clock.Timestamp()
	pool.LastUpdated = now

	window, ok := tx.volumes[poolID]
	if !ok {
		window = tx.r.volumes[poolID]
	}
	window, err = window.add(amountIn, now)
	if err != nil {
		return fmt.Errorf("volume of pool %d: %w", poolID, err)
	}

	if _, seen := tx.staged[poolID]; !seen {
		tx.order = append(tx.order, poolID)
	}
	tx.staged[poolID] = pool
	tx.volumes[poolID] = window
	return nil
}

// BeforeApply registers a hook that runs once the transaction is persisted and
// before staged pools replace the live ones. Hooks must not fail.
func (tx *Tx) BeforeApply(hook func()) {
	tx.hooks = append(tx.hooks, hook)
}

// Persist stages a named state record written in the same batch as the staged
// pools. A later record with the same name replaces the earlier one.
func (tx *Tx) Persist(name string, value []byte) {
	for i, rec := range tx.records {
		if rec.Name == name {
			tx.records[i].Value = value
			return
		}
	}
	tx.records = append(tx.records, StateRecord{Name: name, Value: value})
}
