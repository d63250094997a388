package reserves

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "reserves").Logger()
}

// FailoverConfig controls retry and failover behavior of the HTTP provider.
type FailoverConfig struct {
	// MaxRetries is the number of retries on the current endpoint before failing over
	MaxRetries int
	// RetryDelay is the initial delay between retries, doubled on every retry
	RetryDelay time.Duration
	// HealthCheckInterval is how often a failed primary is probed for recovery
	HealthCheckInterval time.Duration
	Timeout             time.Duration
}

// DefaultFailoverConfig returns the default failover behavior.
func DefaultFailoverConfig() FailoverConfig {
	return FailoverConfig{
		MaxRetries:          2,
		RetryDelay:          500 * time.Millisecond,
		HealthCheckInterval: 30 * time.Second,
		Timeout:             10 * time.Second,
	}
}

// reservesResponse is the body of GET /pools/{address}/reserves.
type reservesResponse struct {
	ReserveA string `json:"reserve_a"`
	ReserveB string `json:"reserve_b"`
}

// HTTPProvider reads reserves from a pool state service. It keeps a primary
// endpoint and switches to backups when the primary stops answering.
type HTTPProvider struct {
	httpClient *http.Client
	primaryURL string
	backupURLs []string
	currentURL string
	mu         sync.RWMutex
	config     FailoverConfig

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewHTTPProvider creates a provider. Invalid backup URLs are skipped; an
// invalid primary URL is an error.
func NewHTTPProvider(primaryURL string, backupURLs []string, config FailoverConfig) (*HTTPProvider, error) {
	if _, err := url.ParseRequestURI(primaryURL); err != nil {
		return nil, fmt.Errorf("failed to parse primary reserves URL: %w", err)
	}

	valid := make([]string, 0, len(backupURLs))
	for _, u := range backupURLs {
		if _, err := url.ParseRequestURI(u); err != nil {
			log.Warn().Err(err).Str("url", u).Msg("Invalid backup URL, skipping")
			continue
		}
		valid = append(valid, u)
	}

	p := &HTTPProvider{
		httpClient: &http.Client{Timeout: config.Timeout},
		primaryURL: primaryURL,
		backupURLs: valid,
		currentURL: primaryURL,
		config:     config,
	}
	if len(valid) > 0 && config.HealthCheckInterval > 0 {
		p.startHealthChecker()
	}

	log.Info().
		Str("primary", primaryURL).
		Int("backups", len(valid)).
		Msg("Reserve provider initialized")
	return p, nil
}

// Reserves implements registry.ReserveProvider.
func (p *HTTPProvider) Reserves(ctx context.Context, pool, _, _ common.Address) (*uint256.Int, *uint256.Int, error) {
	body, err := p.doRequestWithFailover(ctx, "/pools/"+pool.Hex()+"/reserves")
	if err != nil {
		return nil, nil, err
	}

	var resp reservesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, nil, fmt.Errorf("failed to parse reserves response: %w", err)
	}
	reserveA, err := uint256.FromDecimal(resp.ReserveA)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid reserve_a %q: %w", resp.ReserveA, err)
	}
	reserveB, err := uint256.FromDecimal(resp.ReserveB)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid reserve_b %q: %w", resp.ReserveB, err)
	}
	return reserveA, reserveB, nil
}

// Close stops the health checker.
func (p *HTTPProvider) Close() {
	if p.stopCh == nil {
		return
	}
	close(p.stopCh)
	<-p.stoppedCh
	p.stopCh = nil
}

func (p *HTTPProvider) startHealthChecker() {
	p.stopCh = make(chan struct{})
	p.stoppedCh = make(chan struct{})

	go func() {
		defer close(p.stoppedCh)
		ticker := time.NewTicker(p.config.HealthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.restorePrimary()
			}
		}
	}()
}

// restorePrimary switches back to the primary endpoint once it answers again.
func (p *HTTPProvider) restorePrimary() {
	if p.getCurrentURL() == p.primaryURL {
		return
	}
	if p.isEndpointHealthy(context.Background(), p.primaryURL) {
		p.mu.Lock()
		p.currentURL = p.primaryURL
		p.mu.Unlock()
		log.Info().Str("url", p.primaryURL).Msg("Restored primary endpoint")
	}
}

func (p *HTTPProvider) isEndpointHealthy(ctx context.Context, endpoint string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", endpoint).Msg("Health check failed")
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	return resp.StatusCode == http.StatusOK
}

func (p *HTTPProvider) getCurrentURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.currentURL
}

// failover moves to the next healthy endpoint after the current one.
func (p *HTTPProvider) failover(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	all := append([]string{p.primaryURL}, p.backupURLs...)
	current := 0
	for i, u := range all {
		if u == p.currentURL {
			current = i
			break
		}
	}
	for i := 1; i < len(all); i++ {
		next := all[(current+i)%len(all)]
		if p.isEndpointHealthy(ctx, next) {
			p.currentURL = next
			log.Info().Str("url", next).Msg("Failover to endpoint")
			return true
		}
	}
	log.Warn().Str("url", p.currentURL).Msg("All endpoints unhealthy, staying on current")
	return false
}

func (p *HTTPProvider) get(ctx context.Context, fullURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (p *HTTPProvider) doRequestWithFailover(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	delay := p.config.RetryDelay

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		body, err := p.get(ctx, p.getCurrentURL()+path)
		if err == nil {
			return body, nil
		}
		lastErr = err
	}

	if len(p.backupURLs) > 0 && p.failover(ctx) {
		body, err := p.get(ctx, p.getCurrentURL()+path)
		if err != nil {
			return nil, fmt.Errorf("failover request failed: %w (original: %w)", err, lastErr)
		}
		return body, nil
	}
	return nil, fmt.Errorf("request failed after %d retries: %w", p.config.MaxRetries+1, lastErr)
}
