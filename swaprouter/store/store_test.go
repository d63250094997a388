package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/chainctx"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/registry"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/reserves"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/store"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/swaperr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zeebo/assert"
)

var (
	owner  = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	tokenA = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	tokenB = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	tokenC = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
)

func samplePool(id uint64) *registry.Pool {
	return &registry.Pool{
		ID:               id,
		PoolAddress:      common.BigToAddress(uint256.NewInt(0x1000 + id).ToBig()),
		TokenA:           tokenA,
		TokenB:           tokenB,
		ReserveA:         uint256.MustFromDecimal("1000000000000000000000000"),
		ReserveB:         uint256.MustFromDecimal("2500000000000000000000000"),
		FeeBps:           30,
		PoolType:         registry.PoolTypeConstantProduct,
		ChainID:          42161,
		IsVerified:       true,
		IsActive:         true,
		CreatedAt:        1_700_000_000,
		LastUpdated:      1_700_000_120,
		RefreshedAtBlock: 19_000_000,
	}
}

func TestEncodeDecodePool(t *testing.T) {
	p := samplePool(7)
	p.IsVerified = false
	p.PoolType = registry.PoolTypeStable

	record, err := store.EncodePool(p)
	assert.NoError(t, err)

	got, err := store.DecodePool(record)
	assert.NoError(t, err)
	assert.DeepEqual(t, got, p)
}

func TestEncodePoolRejectsWideReserves(t *testing.T) {
	p := samplePool(0)
	p.ReserveA = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

	_, err := store.EncodePool(p)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, swaperr.ReserveExceedsPackedWidth))
	assert.Equal(t, swaperr.CategoryOf(err), swaperr.ArithmeticError)
}

func TestDecodePoolDetectsCorruption(t *testing.T) {
	record, err := store.EncodePool(samplePool(1))
	assert.NoError(t, err)

	record[40] ^= 0xff
	_, err = store.DecodePool(record)
	assert.Error(t, err)

	_, err = store.DecodePool(record[:10])
	assert.Error(t, err)
}

func kvBackends(t *testing.T) map[string]store.KV {
	t.Helper()
	pebbleKV, err := store.OpenPebbleInMemory()
	assert.NoError(t, err)
	t.Cleanup(func() {
		_ = pebbleKV.Close()
	})
	return map[string]store.KV{
		"memory": store.NewMemoryKV(),
		"pebble": pebbleKV,
	}
}

func TestPoolStoreRoundTrip(t *testing.T) {
	for name, kv := range kvBackends(t) {
		t.Run(name, func(t *testing.T) {
			s := store.NewPoolStore(kv)

			p0 := samplePool(0)
			p1 := samplePool(1)
			p2 := samplePool(2)
			p2.TokenB = tokenC
			// saved out of order, loaded by id
			assert.NoError(t, s.SavePools([]*registry.Pool{p2, p0}))
			assert.NoError(t, s.SavePools([]*registry.Pool{p1}))

			pools, err := s.LoadPools()
			assert.NoError(t, err)
			assert.Equal(t, len(pools), 3)
			for i, p := range pools {
				assert.Equal(t, p.ID, uint64(i))
			}
			assert.DeepEqual(t, pools[2], p2)

			ids, err := s.PoolIDsForPair(tokenB, tokenA)
			assert.NoError(t, err)
			assert.DeepEqual(t, ids, []uint64{0, 1})

			ids, err = s.PoolIDsForPair(tokenA, tokenC)
			assert.NoError(t, err)
			assert.DeepEqual(t, ids, []uint64{2})
		})
	}
}

func TestPoolStoreBatchIsAtomic(t *testing.T) {
	s := store.NewPoolStore(store.NewMemoryKV())

	wide := samplePool(1)
	wide.ReserveB = new(uint256.Int).SetAllOne()
	err := s.SavePools([]*registry.Pool{samplePool(0), wide})
	assert.True(t, errors.Is(err, swaperr.ReserveExceedsPackedWidth))

	pools, err := s.LoadPools()
	assert.NoError(t, err)
	assert.Equal(t, len(pools), 0)
}

func TestPoolStoreStateRecords(t *testing.T) {
	for name, kv := range kvBackends(t) {
		t.Run(name, func(t *testing.T) {
			s := store.NewPoolStore(kv)

			value, err := s.LoadState("security")
			assert.NoError(t, err)
			assert.Nil(t, value)

			rec := registry.StateRecord{Name: "security", Value: []byte(`{"paused":false}`)}
			assert.NoError(t, s.SavePools([]*registry.Pool{samplePool(0)}, rec))
			value, err = s.LoadState("security")
			assert.NoError(t, err)
			assert.Equal(t, string(value), `{"paused":false}`)

			// state records never show up as pools
			pools, err := s.LoadPools()
			assert.NoError(t, err)
			assert.Equal(t, len(pools), 1)
		})
	}
}

func TestStateRecordSharesPoolBatch(t *testing.T) {
	kv := store.NewMemoryKV()
	s := store.NewPoolStore(kv)

	kv.FailNextApply(errors.New("disk full"))
	err := s.SavePools([]*registry.Pool{samplePool(0)}, registry.StateRecord{Name: "security", Value: []byte("v1")})
	assert.Error(t, err)

	value, err := s.LoadState("security")
	assert.NoError(t, err)
	assert.Nil(t, value)
	pools, err := s.LoadPools()
	assert.NoError(t, err)
	assert.Equal(t, len(pools), 0)
}

func TestRegistryRestoresFromStore(t *testing.T) {
	kv := store.NewMemoryKV()
	clock := chainctx.NewManualClock(100, 1_700_000_000)
	provider := reserves.NewFixedProvider(
		uint256.MustFromDecimal("5000000000000000000000"),
		uint256.MustFromDecimal("7000000000000000000000"),
	)

	reg, err := registry.New(registry.DefaultConfig(owner), clock, provider, store.NewPoolStore(kv))
	assert.NoError(t, err)
	id, err := reg.AddPool(context.Background(), owner, registry.AddPoolParams{
		PoolAddress: common.HexToAddress("0x0000000000000000000000000000000000000abc"),
		TokenA:      tokenA,
		TokenB:      tokenB,
		FeeBps:      30,
		ChainID:     42161,
	})
	assert.NoError(t, err)

	restored, err := registry.New(registry.DefaultConfig(owner), clock, provider, store.NewPoolStore(kv))
	assert.NoError(t, err)
	assert.NoError(t, restored.Restore())

	want, _ := reg.Pool(id)
	got, ok := restored.Pool(id)
	assert.True(t, ok)
	assert.DeepEqual(t, got, want)
	assert.DeepEqual(t, restored.PoolsForPair(tokenB, tokenA), []uint64{id})
}

func TestRegistryAbortsOnStoreFailure(t *testing.T) {
	kv := store.NewMemoryKV()
	clock := chainctx.NewManualClock(100, 1_700_000_000)
	provider := reserves.NewFixedProvider(uint256.NewInt(1), uint256.NewInt(1))

	reg, err := registry.New(registry.DefaultConfig(owner), clock, provider, store.NewPoolStore(kv))
	assert.NoError(t, err)

	kv.FailNextApply(errors.New("disk full"))
	_, err = reg.AddPool(context.Background(), owner, registry.AddPoolParams{
		PoolAddress: common.HexToAddress("0x0000000000000000000000000000000000000abc"),
		TokenA:      tokenA,
		TokenB:      tokenB,
		FeeBps:      30,
	})
	assert.Error(t, err)
	assert.Equal(t, reg.PoolCount(), 0)
}
