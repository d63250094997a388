package router_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/chainctx"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/metrics"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/registry"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/reserves"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/router"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/security"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/store"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/swaperr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/zeebo/assert"
)

const start uint64 = 1_700_000_000

var (
	owner     = common.HexToAddress("0x00000000000000000000000000000000000000f0")
	admin     = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	validator = common.HexToAddress("0x00000000000000000000000000000000000000f2")
	alice     = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	usdc      = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	weth      = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	poolOne   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	poolTwo   = common.HexToAddress("0x00000000000000000000000000000000000000a2")
)

func tokens(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1_000_000_000_000_000_000))
}

type fixture struct {
	engine  *router.Engine
	reg     *registry.Registry
	clock   *chainctx.ManualClock
	metrics *metrics.Metrics
	kv      *store.MemoryKV
}

func newFixture(t *testing.T, limits security.Limits) *fixture {
	t.Helper()
	return openFixture(t, limits, chainctx.NewManualClock(1_000, start), store.NewMemoryKV())
}

// restart rebuilds the engine over the same store, the way the server does on boot.
func (f *fixture) restart(t *testing.T) *fixture {
	t.Helper()
	restarted := openFixture(t, security.DefaultLimits(), f.clock, f.kv)
	assert.NoError(t, restarted.reg.Restore())
	assert.NoError(t, restarted.engine.RestoreSecurity())
	return restarted
}

func openFixture(t *testing.T, limits security.Limits, clock *chainctx.ManualClock, kv *store.MemoryKV) *fixture {
	t.Helper()
	provider := reserves.NewFixedProvider(tokens(1_000_000), tokens(1_000_000))

	reg, err := registry.New(registry.DefaultConfig(owner), clock, provider, store.NewPoolStore(kv))
	assert.NoError(t, err)
	assert.NoError(t, reg.AddValidator(owner, validator))

	sec, err := security.NewState(owner, admin, limits, start)
	assert.NoError(t, err)

	m, err := metrics.New(prometheus.NewRegistry())
	assert.NoError(t, err)

	engine, err := router.NewEngine(reg, sec, clock, router.DefaultConfig(), m)
	assert.NoError(t, err)
	return &fixture{engine: engine, reg: reg, clock: clock, metrics: m, kv: kv}
}

func (f *fixture) addPool(t *testing.T, addr common.Address, verify bool) uint64 {
	t.Helper()
	id, err := f.engine.AddPool(context.Background(), owner, registry.AddPoolParams{
		PoolAddress: addr,
		TokenA:      usdc,
		TokenB:      weth,
		FeeBps:      30,
		ChainID:     42161,
	})
	assert.NoError(t, err)
	if verify {
		assert.NoError(t, f.engine.VerifyPool(validator, id))
	}
	return id
}

func intent(user common.Address, amount *uint256.Int, nonce uint64) security.Intent {
	return security.Intent{
		User:           user,
		TokenIn:        usdc,
		TokenOut:       weth,
		AmountIn:       amount,
		MinAmountOut:   new(uint256.Int),
		Deadline:       start + 600,
		MaxSlippageBps: 100,
		Nonce:          nonce,
	}
}

func TestExecuteIntent(t *testing.T) {
	f := newFixture(t, security.DefaultLimits())
	id := f.addPool(t, poolOne, true)

	exec, err := f.engine.ExecuteIntent(alice, intent(alice, tokens(1_000), 0))
	assert.NoError(t, err)
	assert.Equal(t, exec.AmountOut.Dec(), "996006981039903216493")
	assert.Equal(t, exec.PriceImpactBps, uint64(10))
	assert.Equal(t, exec.NextNonce, uint64(1))
	assert.Equal(t, len(exec.Route), 1)
	assert.Equal(t, f.engine.NonceOf(alice), uint64(1))

	p, ok := f.reg.Pool(id)
	assert.True(t, ok)
	assert.Equal(t, p.ReserveA.Dec(), new(uint256.Int).Add(tokens(1_000_000), tokens(1_000)).Dec())
	assert.Equal(t, p.ReserveB.Dec(), new(uint256.Int).Sub(tokens(1_000_000), exec.AmountOut).Dec())

	stats, err := f.reg.Stats(id)
	assert.NoError(t, err)
	assert.Equal(t, stats.Volume24h.Dec(), tokens(1_000).Dec())

	// the persisted record matches the live pool
	pools, err := store.NewPoolStore(f.kv).LoadPools()
	assert.NoError(t, err)
	assert.DeepEqual(t, pools[id], p)

	assert.Equal(t, testutil.ToFloat64(f.metrics.IntentsTotal.WithLabelValues("executed")), 1.0)
}

func TestExecuteIntentReplayFails(t *testing.T) {
	f := newFixture(t, security.DefaultLimits())
	f.addPool(t, poolOne, true)

	_, err := f.engine.ExecuteIntent(alice, intent(alice, tokens(1_000), 0))
	assert.NoError(t, err)

	_, err = f.engine.ExecuteIntent(alice, intent(alice, tokens(1_000), 0))
	assert.True(t, errors.Is(err, swaperr.InvalidNonce))
	assert.Equal(t, f.engine.NonceOf(alice), uint64(1))
}

func TestAddPoolTwiceFails(t *testing.T) {
	f := newFixture(t, security.DefaultLimits())
	f.addPool(t, poolOne, false)

	_, err := f.engine.AddPool(context.Background(), owner, registry.AddPoolParams{
		PoolAddress: poolOne,
		TokenA:      usdc,
		TokenB:      common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f"),
		FeeBps:      25,
	})
	assert.True(t, errors.Is(err, swaperr.PoolAlreadyExists))
	assert.Equal(t, f.reg.PoolCount(), 1)
}

func TestAddPoolRequiresAuthorizedCaller(t *testing.T) {
	f := newFixture(t, security.DefaultLimits())
	params := registry.AddPoolParams{PoolAddress: poolOne, TokenA: usdc, TokenB: weth, FeeBps: 30}

	_, err := f.engine.AddPool(context.Background(), alice, params)
	assert.True(t, errors.Is(err, swaperr.Unauthorized))

	assert.NoError(t, f.engine.AddAuthorizedCaller(owner, alice))
	_, err = f.engine.AddPool(context.Background(), alice, params)
	assert.NoError(t, err)
	assert.Equal(t, testutil.ToFloat64(f.metrics.PoolsActive), 1.0)
}

func TestExpiredIntentFailsBeforeRouting(t *testing.T) {
	// no pool is registered, so reaching route discovery would report NoPoolForPair
	f := newFixture(t, security.DefaultLimits())
	in := intent(alice, tokens(1_000), 0)
	in.Deadline = start

	_, err := f.engine.ExecuteIntent(alice, in)
	assert.True(t, errors.Is(err, swaperr.TransactionExpired))
	assert.Equal(t, swaperr.CategoryOf(err), swaperr.InputValidation)
}

func TestUnverifiedPoolIsNotRouted(t *testing.T) {
	f := newFixture(t, security.DefaultLimits())
	f.addPool(t, poolOne, false)

	_, err := f.engine.GetQuote(usdc, weth, tokens(1_000))
	assert.True(t, errors.Is(err, swaperr.NoVerifiedPoolAvailable))

	_, err = f.engine.ExecuteIntent(alice, intent(alice, tokens(1_000), 0))
	assert.True(t, errors.Is(err, swaperr.NoVerifiedPoolAvailable))
	assert.Equal(t, f.engine.NonceOf(alice), uint64(0))
}

func TestGetQuoteDoesNotMutate(t *testing.T) {
	f := newFixture(t, security.DefaultLimits())
	id := f.addPool(t, poolOne, true)
	before, _ := f.reg.Pool(id)

	step, err := f.engine.GetQuote(weth, usdc, tokens(1_000))
	assert.NoError(t, err)
	assert.Equal(t, step.AmountOut.Dec(), "996006981039903216493")

	after, _ := f.reg.Pool(id)
	assert.DeepEqual(t, after, before)

	_, err = f.engine.GetQuote(usdc, usdc, tokens(1))
	assert.True(t, errors.Is(err, swaperr.IdenticalTokens))
	_, err = f.engine.GetQuote(usdc, weth, new(uint256.Int))
	assert.True(t, errors.Is(err, swaperr.ZeroAmount))
}

func TestFailedIntentLeavesNoTrace(t *testing.T) {
	f := newFixture(t, security.DefaultLimits())
	id := f.addPool(t, poolOne, true)
	before, _ := f.reg.Pool(id)
	snap := f.engine.SecuritySnapshot()

	in := intent(alice, tokens(1_000), 0)
	in.MinAmountOut = tokens(1_000)
	_, err := f.engine.ExecuteIntent(alice, in)
	assert.True(t, errors.Is(err, swaperr.InsufficientOutputAmount))

	after, _ := f.reg.Pool(id)
	assert.DeepEqual(t, after, before)
	assert.DeepEqual(t, f.engine.SecuritySnapshot(), snap)
	assert.Equal(t, testutil.ToFloat64(f.metrics.IntentRejections.WithLabelValues("EconomicLimit", "InsufficientOutputAmount")), 1.0)
}

func TestStorageFailureAbortsIntent(t *testing.T) {
	f := newFixture(t, security.DefaultLimits())
	id := f.addPool(t, poolOne, true)
	before, _ := f.reg.Pool(id)

	f.kv.FailNextApply(errors.New("disk full"))
	_, err := f.engine.ExecuteIntent(alice, intent(alice, tokens(1_000), 0))
	assert.Error(t, err)
	assert.Equal(t, f.engine.NonceOf(alice), uint64(0))
	after, _ := f.reg.Pool(id)
	assert.DeepEqual(t, after, before)

	// the same nonce works once storage is back
	_, err = f.engine.ExecuteIntent(alice, intent(alice, tokens(1_000), 0))
	assert.NoError(t, err)
}

func TestRouteChoosesBetterPool(t *testing.T) {
	f := newFixture(t, security.DefaultLimits())
	f.addPool(t, poolOne, true)
	f.addPool(t, poolTwo, true)

	// drain pool 0 so pool 1 prices better
	large := intent(alice, tokens(50_000), 0)
	large.MaxSlippageBps = 1_000
	exec, err := f.engine.ExecuteIntent(alice, large)
	assert.NoError(t, err)
	assert.Equal(t, exec.Route[0].PoolID, uint64(0))
	assert.Equal(t, exec.PriceImpactBps, uint64(500))

	exec, err = f.engine.ExecuteIntent(alice, intent(alice, tokens(1_000), 1))
	assert.NoError(t, err)
	assert.Equal(t, exec.Route[0].PoolID, uint64(1))
}

func TestCircuitBreakerHaltsEngine(t *testing.T) {
	limits := security.DefaultLimits()
	limits.CircuitBreakerThreshold = tokens(1_500)
	f := newFixture(t, limits)
	f.addPool(t, poolOne, true)

	_, err := f.engine.ExecuteIntent(alice, intent(alice, tokens(1_000), 0))
	assert.NoError(t, err)

	_, err = f.engine.ExecuteIntent(alice, intent(alice, tokens(1_000), 1))
	assert.True(t, errors.Is(err, swaperr.CircuitBreakerTriggered))
	assert.True(t, f.engine.Paused())

	_, err = f.engine.ExecuteIntent(bob, intent(bob, tokens(1), 0))
	assert.True(t, errors.Is(err, swaperr.Paused))

	assert.Equal(t, testutil.ToFloat64(f.metrics.CircuitBreakerTrips), 1.0)
	assert.Equal(t, testutil.ToFloat64(f.metrics.SecurityAlerts.WithLabelValues("CIRCUIT_BREAKER_TRIGGERED")), 1.0)

	assert.NoError(t, f.engine.Resume(owner))
	_, err = f.engine.ExecuteIntent(alice, intent(alice, tokens(1_000), 1))
	assert.NoError(t, err)
}

func TestEmergencyPause(t *testing.T) {
	f := newFixture(t, security.DefaultLimits())
	f.addPool(t, poolOne, true)

	err := f.engine.EmergencyPause(alice)
	assert.True(t, errors.Is(err, swaperr.UnauthorizedEmergencyAction))
	assert.NoError(t, f.engine.EmergencyPause(admin))

	_, err = f.engine.ExecuteIntent(alice, intent(alice, tokens(1_000), 0))
	assert.True(t, errors.Is(err, swaperr.Paused))
}

func TestInactivePoolIsSkipped(t *testing.T) {
	f := newFixture(t, security.DefaultLimits())
	id := f.addPool(t, poolOne, true)

	assert.NoError(t, f.engine.SetPoolActive(owner, id, false))
	_, err := f.engine.GetQuote(usdc, weth, tokens(1_000))
	assert.True(t, errors.Is(err, swaperr.NoVerifiedPoolAvailable))
	assert.Equal(t, testutil.ToFloat64(f.metrics.PoolsActive), 0.0)
}

func TestSecurityStateSurvivesRestart(t *testing.T) {
	f := newFixture(t, security.DefaultLimits())
	id := f.addPool(t, poolOne, true)

	_, err := f.engine.ExecuteIntent(alice, intent(alice, tokens(1_000), 0))
	assert.NoError(t, err)
	assert.NoError(t, f.engine.AddAuthorizedCaller(owner, bob))
	before, _ := f.reg.Pool(id)

	restarted := f.restart(t)
	assert.Equal(t, restarted.engine.NonceOf(alice), uint64(1))

	_, err = restarted.engine.ExecuteIntent(alice, intent(alice, tokens(1_000), 0))
	assert.True(t, errors.Is(err, swaperr.InvalidNonce))
	after, _ := restarted.reg.Pool(id)
	assert.DeepEqual(t, after, before)

	snap := restarted.engine.SecuritySnapshot()
	assert.Equal(t, snap.TotalVolume24h.Dec(), tokens(1_000).Dec())
	assert.Equal(t, snap.DailyVolume[alice].Volume.Dec(), tokens(1_000).Dec())
	assert.Equal(t, snap.Owner, owner)
	assert.Equal(t, snap.EmergencyAdmin, admin)

	// callers granted at runtime are still authorized
	_, err = restarted.engine.AddPool(context.Background(), bob, registry.AddPoolParams{
		PoolAddress: poolTwo, TokenA: usdc, TokenB: weth, FeeBps: 30, ChainID: 42161,
	})
	assert.NoError(t, err)

	_, err = restarted.engine.ExecuteIntent(alice, intent(alice, tokens(1_000), 1))
	assert.NoError(t, err)
}

func TestDailyVolumeSurvivesRestart(t *testing.T) {
	limits := security.DefaultLimits()
	limits.MaxDailyVolume = tokens(1_500)
	f := newFixture(t, limits)
	f.addPool(t, poolOne, true)

	_, err := f.engine.ExecuteIntent(alice, intent(alice, tokens(1_000), 0))
	assert.NoError(t, err)

	// the saved limits replace the defaults the restarted engine was built with
	restarted := f.restart(t)
	assert.Equal(t, restarted.engine.Limits().MaxDailyVolume.Dec(), tokens(1_500).Dec())
	_, err = restarted.engine.ExecuteIntent(alice, intent(alice, tokens(1_000), 1))
	assert.True(t, errors.Is(err, swaperr.DailyVolumeExceeded))
}

func TestPauseSurvivesRestart(t *testing.T) {
	t.Run("emergency pause", func(t *testing.T) {
		f := newFixture(t, security.DefaultLimits())
		assert.NoError(t, f.engine.EmergencyPause(admin))
		assert.True(t, f.restart(t).engine.Paused())
	})

	t.Run("circuit breaker", func(t *testing.T) {
		limits := security.DefaultLimits()
		limits.CircuitBreakerThreshold = tokens(1_500)
		f := newFixture(t, limits)
		f.addPool(t, poolOne, true)

		_, err := f.engine.ExecuteIntent(alice, intent(alice, tokens(1_000), 0))
		assert.NoError(t, err)
		_, err = f.engine.ExecuteIntent(alice, intent(alice, tokens(1_000), 1))
		assert.True(t, errors.Is(err, swaperr.CircuitBreakerTriggered))

		restarted := f.restart(t)
		assert.True(t, restarted.engine.Paused())
		assert.NoError(t, restarted.engine.Resume(owner))
		assert.False(t, restarted.restart(t).engine.Paused())
	})
}

func TestSecurityMutationRollsBackOnStorageFailure(t *testing.T) {
	f := newFixture(t, security.DefaultLimits())

	f.kv.FailNextApply(errors.New("disk full"))
	assert.Error(t, f.engine.EmergencyPause(admin))
	assert.False(t, f.engine.Paused())

	tighter := f.engine.Limits()
	tighter.MaxTradeAmount = tokens(10)
	f.kv.FailNextApply(errors.New("disk full"))
	assert.Error(t, f.engine.SetLimits(owner, tighter))
	assert.Equal(t, f.engine.Limits().MaxTradeAmount.Dec(), tokens(100_000).Dec())

	assert.True(t, errors.Is(f.engine.SetLimits(alice, tighter), swaperr.Unauthorized))
	assert.NoError(t, f.engine.SetLimits(owner, tighter))
	assert.Equal(t, f.restart(t).engine.Limits().MaxTradeAmount.Dec(), tokens(10).Dec())
}

func TestRestoreSecurityWithoutSavedState(t *testing.T) {
	f := newFixture(t, security.DefaultLimits())
	assert.NoError(t, f.engine.RestoreSecurity())
	assert.Equal(t, f.engine.NonceOf(alice), uint64(0))
	assert.False(t, f.engine.Paused())
}
