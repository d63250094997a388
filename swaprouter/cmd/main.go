package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/amm"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/chainctx"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/config"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/metrics"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/registry"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/reserves"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/router"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/rpc"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/security"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/settlement"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Logger()

	// Share the logger with the RPC package
	rpc.SetLogger(log)
}

// sequencerCheckInterval is how often the settlement machine checks the sequencer timeout
const sequencerCheckInterval = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "toml config file for the router server, environment variables are used when empty")
	poolSeed := flag.String("pool-seed", "", "pool seed file or go-getter source, overrides pool_seed from the config")
	flag.Parse()

	var cfg *config.RouterServerConfig
	var err error
	if *configPath == "" {
		cfg, err = config.LoadRouterServerConfig(nil)
	} else {
		cfg, err = config.LoadRouterServerConfig(configPath)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load router config")
	}
	if *poolSeed != "" {
		cfg.PoolSeed = *poolSeed
	}

	log.Info().
		Str("config", *configPath).
		Uint64("chain_id", cfg.ChainID).
		Str("data_dir", cfg.DataDir).
		Msg("Starting Spectra AMM Router")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := chainctx.NewWallClock(time.Unix(cfg.GenesisTimestamp, 0), time.Duration(cfg.BlockTimeSeconds)*time.Second)

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register metrics")
	}

	// Pool storage
	var kv store.KV
	if cfg.DataDir != "" {
		kv, err = store.OpenPebble(cfg.DataDir)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open pool store")
		}
	} else {
		log.Warn().Msg("No data_dir configured, pools are kept in memory only")
		kv = store.NewMemoryKV()
	}
	pools := store.NewPoolStore(kv)

	// Reserve provider
	var provider registry.ReserveProvider
	var httpProvider *reserves.HTTPProvider
	if len(cfg.ReserveURLs) > 0 {
		httpProvider, err = reserves.NewHTTPProvider(cfg.ReserveURLs[0], cfg.ReserveURLs[1:], reserves.DefaultFailoverConfig())
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create reserve provider")
		}
		provider = httpProvider
		log.Info().
			Str("primary", cfg.ReserveURLs[0]).
			Int("backups", len(cfg.ReserveURLs)-1).
			Msg("Reserve provider initialized with failover")
	} else {
		provider = reserves.NewSimulatedProvider(clock)
		log.Warn().Msg("No reserve_urls configured, using simulated reserves")
	}

	owner := cfg.OwnerAddress()
	regConfig := registry.DefaultConfig(owner)
	if cfg.UpdateFrequency > 0 {
		regConfig.UpdateFrequency = cfg.UpdateFrequency
	}
	reg, err := registry.New(regConfig, clock, provider, pools)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create pool registry")
	}
	if err := reg.Restore(); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore pool registry")
	}

	limits, err := cfg.SecurityLimits()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read security limits")
	}
	sec, err := security.NewState(owner, cfg.EmergencyAdminAddress(), limits, clock.Timestamp())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create security state")
	}

	engineConfig := router.DefaultConfig()
	if cfg.BasicPricing {
		engineConfig = router.Config{Pricing: amm.BasicConfig()}
	}
	engine, err := router.NewEngine(reg, sec, clock, engineConfig, m)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create router engine")
	}
	if err := engine.RestoreSecurity(); err != nil {
		log.Fatal().Err(err).Msg("Failed to restore security state")
	}

	seed, err := config.ResolvePoolSeed(ctx, cfg.PoolSeed)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load pool seed")
	}
	if _, err := config.SeedEngine(ctx, engine, owner, seed); err != nil {
		log.Fatal().Err(err).Msg("Failed to seed pools")
	}
	log.Info().Int("pools", reg.PoolCount()).Int("active", reg.ActivePoolCount()).Msg("Pool registry ready")

	machine, err := settlement.NewMachine(cfg.SettlementConfig(), clock, m)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create settlement machine")
	}
	go watchSequencer(ctx, machine)

	server, err := rpc.NewServer(ctx, buildServerConfig(cfg), rpc.NewRouterServer(engine, machine, clock))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create RPC server")
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	if httpProvider != nil {
		httpProvider.Close()
		log.Info().Msg("Closed reserve provider")
	}
	if err := pools.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close pool store")
	}
}

// watchSequencer runs the sequencer timeout check until ctx is done
func watchSequencer(ctx context.Context, machine *settlement.Machine) {
	ticker := time.NewTicker(sequencerCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			machine.CheckSequencer()
		}
	}
}

// buildServerConfig converts the loaded RouterServerConfig to rpc.ServerConfig
func buildServerConfig(cfg *config.RouterServerConfig) *rpc.ServerConfig {
	serverConfig := &rpc.ServerConfig{
		Address:        cfg.Host + ":" + strconv.Itoa(cfg.Port),
		AllowedOrigins: cfg.AllowedOrigins,
		EnableMetrics:  cfg.UsePrometheus,
	}

	if cfg.RatePerMinute > 0 {
		serverConfig.RatePerMinute = &cfg.RatePerMinute
	}
	if cfg.MaxConcurrentRequests > 0 {
		serverConfig.MaxConcurrent = &cfg.MaxConcurrentRequests
	}

	if cfg.EnableTracing || cfg.EnableMetrics || cfg.EnableLogs || cfg.UsePrometheus {
		serverConfig.OTelConfig = &rpc.OTelConfig{
			ServiceName:     defaultString(cfg.ServiceName, "spectra-amm-router"),
			ServiceVersion:  defaultString(cfg.ServiceVersion, "1.0.0"),
			Environment:     defaultString(cfg.Environment, "development"),
			EnableTracing:   cfg.EnableTracing,
			UseOTLPTraces:   cfg.UseOTLPTraces,
			OTLPTracesURL:   cfg.OTLPTracesURL,
			EnableMetrics:   cfg.EnableMetrics,
			UsePrometheus:   cfg.UsePrometheus,
			UseOTLPMetrics:  cfg.UseOTLPMetrics,
			OTLPMetricsURL:  cfg.OTLPMetricsURL,
			EnableLogs:      cfg.EnableLogs,
			UseOTLPLogs:     cfg.UseOTLPLogs,
			OTLPLogsURL:     cfg.OTLPLogsURL,
			InsecureOTLP:    cfg.InsecureOTLP,
			DevelopmentMode: cfg.DevelopmentMode,
		}
	}

	return serverConfig
}

// defaultString returns the default value if s is empty
func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
