package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/chainctx"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/config"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/registry"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/reserves"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/router"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/security"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zeebo/assert"
)

const seedTOML = `
updaters = ["0x00000000000000000000000000000000000000e1"]
validators = ["0x00000000000000000000000000000000000000e2"]
callers = ["0x00000000000000000000000000000000000000e3"]

[[pools]]
pool_address = "0x00000000000000000000000000000000000000a1"
token_a = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
token_b = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
fee_bps = 30
chain_id = 42161
verified = true

[[pools]]
pool_address = "0x00000000000000000000000000000000000000a2"
token_a = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
token_b = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
fee_bps = 5
chain_id = 42161
pool_type = "stable"
`

const seedJSON = `{
  "validators": ["0x00000000000000000000000000000000000000e2"],
  "pools": [
    {
      "pool_address": "0x00000000000000000000000000000000000000a1",
      "token_a": "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
      "token_b": "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
      "fee_bps": 30,
      "chain_id": 42161,
      "verified": true
    }
  ]
}`

func writeSeed(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	assert.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newSeedEngine(t *testing.T, kv store.KV) *router.Engine {
	t.Helper()
	owner := common.HexToAddress(ownerHex)
	clock := chainctx.NewManualClock(1_000, 1_700_000_000)
	supply := new(uint256.Int).Mul(uint256.NewInt(1_000_000), uint256.NewInt(1_000_000_000_000_000_000))
	provider := reserves.NewFixedProvider(supply, supply)

	reg, err := registry.New(registry.DefaultConfig(owner), clock, provider, store.NewPoolStore(kv))
	assert.NoError(t, err)
	assert.NoError(t, reg.Restore())

	sec, err := security.NewState(owner, common.HexToAddress(adminHex), security.DefaultLimits(), 1_700_000_000)
	assert.NoError(t, err)

	engine, err := router.NewEngine(reg, sec, clock, router.DefaultConfig(), nil)
	assert.NoError(t, err)
	return engine
}

func TestLoadPoolSeed(t *testing.T) {
	t.Run("toml", func(t *testing.T) {
		seed, err := config.LoadPoolSeed(writeSeed(t, "pools.toml", seedTOML))
		assert.NoError(t, err)
		assert.Equal(t, len(seed.Pools), 2)
		assert.Equal(t, seed.Pools[1].PoolType, "stable")
		assert.Equal(t, seed.Pools[0].FeeBps, uint32(30))
		assert.Equal(t, len(seed.Callers), 1)
	})

	t.Run("json", func(t *testing.T) {
		seed, err := config.LoadPoolSeed(writeSeed(t, "pools.json", seedJSON))
		assert.NoError(t, err)
		assert.Equal(t, len(seed.Pools), 1)
		assert.True(t, seed.Pools[0].Verified)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := config.LoadPoolSeed(writeSeed(t, "pools.yaml", "pools: []"))
		assert.Error(t, err)
	})

	t.Run("verified pool without validator", func(t *testing.T) {
		_, err := config.LoadPoolSeed(writeSeed(t, "pools.json", `{"pools": [{
			"pool_address": "0x00000000000000000000000000000000000000a1",
			"token_a": "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
			"token_b": "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
			"verified": true}]}`))
		assert.Error(t, err)
	})

	t.Run("unknown pool type", func(t *testing.T) {
		_, err := config.LoadPoolSeed(writeSeed(t, "pools.json", `{"pools": [{
			"pool_address": "0x00000000000000000000000000000000000000a1",
			"token_a": "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
			"token_b": "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2",
			"pool_type": "weighted"}]}`))
		assert.Error(t, err)
	})
}

func TestSeedEngine(t *testing.T) {
	seed, err := config.LoadPoolSeed(writeSeed(t, "pools.toml", seedTOML))
	assert.NoError(t, err)

	kv := store.NewMemoryKV()
	engine := newSeedEngine(t, kv)
	owner := common.HexToAddress(ownerHex)

	added, err := config.SeedEngine(context.Background(), engine, owner, seed)
	assert.NoError(t, err)
	assert.Equal(t, added, 2)

	first, ok := engine.Registry().Pool(0)
	assert.True(t, ok)
	assert.True(t, first.IsVerified)
	second, ok := engine.Registry().Pool(1)
	assert.True(t, ok)
	assert.False(t, second.IsVerified)
	assert.Equal(t, second.PoolType, registry.PoolTypeStable)

	// the seeded caller may add pools through the engine
	_, err = engine.AddPool(context.Background(), common.HexToAddress("0x00000000000000000000000000000000000000e3"), registry.AddPoolParams{
		PoolAddress: common.HexToAddress("0x00000000000000000000000000000000000000a3"),
		TokenA:      common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"),
		TokenB:      common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"),
		FeeBps:      30,
		ChainID:     42161,
	})
	assert.NoError(t, err)

	// a restart over the same store restores the pools and seeds nothing new
	restarted := newSeedEngine(t, kv)
	added, err = config.SeedEngine(context.Background(), restarted, owner, seed)
	assert.NoError(t, err)
	assert.Equal(t, added, 0)
	assert.Equal(t, restarted.Registry().PoolCount(), 3)
}

func TestResolvePoolSeed(t *testing.T) {
	t.Run("empty source", func(t *testing.T) {
		seed, err := config.ResolvePoolSeed(context.Background(), "")
		assert.NoError(t, err)
		assert.Equal(t, len(seed.Pools), 0)
	})

	t.Run("local file", func(t *testing.T) {
		seed, err := config.ResolvePoolSeed(context.Background(), writeSeed(t, "pools.toml", seedTOML))
		assert.NoError(t, err)
		assert.Equal(t, len(seed.Pools), 2)
	})

	t.Run("fetched directory", func(t *testing.T) {
		dir := t.TempDir()
		assert.NoError(t, os.WriteFile(filepath.Join(dir, "pools.json"), []byte(seedJSON), 0o600))

		seed, err := config.ResolvePoolSeed(context.Background(), dir)
		assert.NoError(t, err)
		assert.Equal(t, len(seed.Pools), 1)
	})
}

func TestFetchPoolSeed_File(t *testing.T) {
	src := writeSeed(t, "pools.toml", seedTOML)
	dst := filepath.Join(t.TempDir(), "seed")

	path, err := config.FetchPoolSeed(context.Background(), src, dst)
	assert.NoError(t, err)
	assert.Equal(t, filepath.Base(path), "pools.toml")

	seed, err := config.LoadPoolSeed(path)
	assert.NoError(t, err)
	assert.Equal(t, len(seed.Pools), 2)
}

func TestFetchPoolSeed_Missing(t *testing.T) {
	_, err := config.FetchPoolSeed(context.Background(), filepath.Join(t.TempDir(), "missing.toml"), filepath.Join(t.TempDir(), "seed"))
	assert.Error(t, err)
}
