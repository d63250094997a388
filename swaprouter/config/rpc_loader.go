package config

import (
	"fmt"
	"strings"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/security"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/settlement"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// LoadRouterServerConfig loads the server config from the given path, or from
// SWAPROUTER_ environment variables when path is nil.
func LoadRouterServerConfig(configPath *string) (*RouterServerConfig, error) {
	v := viper.New()

	if configPath == nil {
		// if no file expect envs
		config, err := loadEnv(v)
		if err != nil {
			return nil, fmt.Errorf("failed to load env config: %w", err)
		}
		return config, nil
	}
	config, err := loadFile(v, *configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load file config: %w", err)
	}
	return config, nil
}

func loadEnv(v *viper.Viper) (*RouterServerConfig, error) {
	// .env is optional, the environment may come from docker or systemd
	_ = godotenv.Load()
	v.SetEnvPrefix("SWAPROUTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	var config RouterServerConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal env config: %w", err)
	}
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}
	return &config, nil
}

// bindEnvKeys binds each config key to its env var so Unmarshal sees env values
// when no config file is loaded.
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"port", "host", "allowed_origins",
		"rate_per_minute", "max_concurrent_requests",
		"service_name", "service_version", "environment",
		"enable_tracing", "use_otlp_traces", "otlp_traces_url",
		"enable_metrics", "use_prometheus", "use_otlp_metrics", "otlp_metrics_url",
		"enable_logs", "use_otlp_logs", "otlp_logs_url",
		"insecure_otlp", "development_mode",
		"owner", "emergency_admin",
		"min_trade_amount", "max_trade_amount", "max_daily_volume", "circuit_breaker_threshold",
		"expiry_buffer_seconds", "basic_pricing", "update_frequency",
		"chain_id", "settlement_layer", "bold_enabled", "sequencer_address", "min_confirmation_blocks",
		"genesis_timestamp", "block_time_seconds",
		"reserve_urls", "data_dir", "pool_seed",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

func loadFile(v *viper.Viper, configPath string) (*RouterServerConfig, error) {
	if !strings.HasSuffix(configPath, ".toml") {
		return nil, fmt.Errorf("config file must be a toml file")
	}

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config RouterServerConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := verifyConfig(&config); err != nil {
		return nil, fmt.Errorf("failed to verify config: %w", err)
	}

	return &config, nil
}

func verifyConfig(config *RouterServerConfig) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	if config.Host == "" {
		return fmt.Errorf("host is required")
	}

	if len(config.AllowedOrigins) == 0 {
		return fmt.Errorf("allowed_origins is required")
	}

	for name, addr := range map[string]string{"owner": config.Owner, "emergency_admin": config.EmergencyAdmin} {
		if !common.IsHexAddress(addr) || common.HexToAddress(addr) == (common.Address{}) {
			return fmt.Errorf("%s must be a non-zero hex address", name)
		}
	}
	for name, addr := range map[string]string{"settlement_layer": config.SettlementLayer, "sequencer_address": config.SequencerAddress} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%s must be a hex address", name)
		}
	}

	for _, url := range config.ReserveURLs {
		if url == "" {
			return fmt.Errorf("reserve_urls must not be empty")
		}
	}

	limits, err := config.SecurityLimits()
	if err != nil {
		return err
	}
	if limits.MinTradeAmount.Gt(limits.MaxTradeAmount) {
		return fmt.Errorf("min_trade_amount must not exceed max_trade_amount")
	}

	return nil
}

// SecurityLimits returns the configured limits over the security defaults.
func (c *RouterServerConfig) SecurityLimits() (security.Limits, error) {
	limits := security.DefaultLimits()
	amounts := []struct {
		name  string
		value string
		dst   **uint256.Int
	}{
		{"min_trade_amount", c.MinTradeAmount, &limits.MinTradeAmount},
		{"max_trade_amount", c.MaxTradeAmount, &limits.MaxTradeAmount},
		{"max_daily_volume", c.MaxDailyVolume, &limits.MaxDailyVolume},
		{"circuit_breaker_threshold", c.CircuitBreakerThreshold, &limits.CircuitBreakerThreshold},
	}
	for _, a := range amounts {
		if a.value == "" {
			continue
		}
		parsed, err := uint256.FromDecimal(a.value)
		if err != nil {
			return security.Limits{}, fmt.Errorf("%s must be a base-10 integer: %w", a.name, err)
		}
		*a.dst = parsed
	}
	if c.ExpiryBufferSeconds > 0 {
		limits.ExpiryBuffer = c.ExpiryBufferSeconds
	}
	return limits, nil
}

// SettlementConfig returns the chain settlement configuration.
func (c *RouterServerConfig) SettlementConfig() settlement.ChainConfig {
	return settlement.ChainConfig{
		ChainID:               c.ChainID,
		SettlementLayer:       common.HexToAddress(c.SettlementLayer),
		BoldEnabled:           c.BoldEnabled,
		SequencerAddress:      common.HexToAddress(c.SequencerAddress),
		MinConfirmationBlocks: c.MinConfirmationBlocks,
	}
}

func (c *RouterServerConfig) OwnerAddress() common.Address {
	return common.HexToAddress(c.Owner)
}

func (c *RouterServerConfig) EmergencyAdminAddress() common.Address {
	return common.HexToAddress(c.EmergencyAdmin)
}
