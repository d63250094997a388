package reserves_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/chainctx"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/reserves"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/zeebo/assert"
)

var (
	poolAddr = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenA   = common.HexToAddress("0x0000000000000000000000000000000000000001")
	tokenB   = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func testConfig() reserves.FailoverConfig {
	return reserves.FailoverConfig{
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		Timeout:    time.Second,
	}
}

func TestSimulatedProviderFollowsBlock(t *testing.T) {
	clock := chainctx.NewManualClock(3, 0)
	p := reserves.NewSimulatedProvider(clock)

	ra, rb, err := p.Reserves(context.Background(), poolAddr, tokenA, tokenB)
	assert.NoError(t, err)
	assert.Equal(t, ra.Dec(), "1000003000000000000000000")
	assert.Equal(t, rb.Dec(), "1000021000000000000000000")
}

func TestFixedProvider(t *testing.T) {
	p := reserves.NewFixedProvider(uint256.NewInt(10), uint256.NewInt(20))
	ra, rb, err := p.Reserves(context.Background(), poolAddr, tokenA, tokenB)
	assert.NoError(t, err)
	assert.Equal(t, ra.Uint64(), uint64(10))
	assert.Equal(t, rb.Uint64(), uint64(20))
}

func TestHTTPProviderReadsReserves(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.URL.Path, "/pools/"+poolAddr.Hex()+"/reserves")
		_, _ = w.Write([]byte(`{"reserve_a":"1000000000000000000000","reserve_b":"42"}`))
	}))
	defer srv.Close()

	p, err := reserves.NewHTTPProvider(srv.URL, nil, testConfig())
	assert.NoError(t, err)
	defer p.Close()

	ra, rb, err := p.Reserves(context.Background(), poolAddr, tokenA, tokenB)
	assert.NoError(t, err)
	assert.Equal(t, ra.Dec(), "1000000000000000000000")
	assert.Equal(t, rb.Uint64(), uint64(42))
}

func TestHTTPProviderFailsOver(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer primary.Close()

	backup := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = w.Write([]byte(`{"reserve_a":"5","reserve_b":"6"}`))
	}))
	defer backup.Close()

	p, err := reserves.NewHTTPProvider(primary.URL, []string{backup.URL}, testConfig())
	assert.NoError(t, err)
	defer p.Close()

	ra, rb, err := p.Reserves(context.Background(), poolAddr, tokenA, tokenB)
	assert.NoError(t, err)
	assert.Equal(t, ra.Uint64(), uint64(5))
	assert.Equal(t, rb.Uint64(), uint64(6))
}

func TestHTTPProviderRejectsBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"reserve_a":"-1","reserve_b":"6"}`))
	}))
	defer srv.Close()

	p, err := reserves.NewHTTPProvider(srv.URL, nil, testConfig())
	assert.NoError(t, err)

	_, _, err = p.Reserves(context.Background(), poolAddr, tokenA, tokenB)
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "reserve_a"))
}

func TestNewHTTPProviderInvalidPrimary(t *testing.T) {
	_, err := reserves.NewHTTPProvider("not a url", nil, testConfig())
	assert.Error(t, err)
}
