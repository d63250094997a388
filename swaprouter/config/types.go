package config

// RouterServerConfig is the configuration of the router server.
//
// Amounts are base-10 strings of the token's smallest unit. Empty limits fall
// back to the security defaults.
type RouterServerConfig struct {
	// rpc configs
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`

	// CORS configs
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// rate limiting configs
	RatePerMinute         int `mapstructure:"rate_per_minute"`
	MaxConcurrentRequests int `mapstructure:"max_concurrent_requests"`

	// OpenTelemetry configs
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
	Environment    string `mapstructure:"environment"` // PROD, DEV, TEST, LOCAL
	EnableTracing  bool   `mapstructure:"enable_tracing"`
	UseOTLPTraces  bool   `mapstructure:"use_otlp_traces"`
	OTLPTracesURL  string `mapstructure:"otlp_traces_url"`
	EnableMetrics  bool   `mapstructure:"enable_metrics"`
	UsePrometheus  bool   `mapstructure:"use_prometheus"`
	UseOTLPMetrics bool   `mapstructure:"use_otlp_metrics"`
	OTLPMetricsURL string `mapstructure:"otlp_metrics_url"`
	EnableLogs     bool   `mapstructure:"enable_logs"`
	UseOTLPLogs    bool   `mapstructure:"use_otlp_logs"`
	OTLPLogsURL    string `mapstructure:"otlp_logs_url"`

	InsecureOTLP bool `mapstructure:"insecure_otlp"`

	// Development mode uses stdout exporters
	DevelopmentMode bool `mapstructure:"development_mode"`

	// administration
	Owner          string `mapstructure:"owner"`
	EmergencyAdmin string `mapstructure:"emergency_admin"`

	// security limits
	MinTradeAmount          string `mapstructure:"min_trade_amount"`
	MaxTradeAmount          string `mapstructure:"max_trade_amount"`
	MaxDailyVolume          string `mapstructure:"max_daily_volume"`
	CircuitBreakerThreshold string `mapstructure:"circuit_breaker_threshold"`
	ExpiryBufferSeconds     uint64 `mapstructure:"expiry_buffer_seconds"`

	// pricing, BasicPricing drops the liquidity floor and the verified pool requirement
	BasicPricing    bool   `mapstructure:"basic_pricing"`
	UpdateFrequency uint64 `mapstructure:"update_frequency"`

	// chain and settlement
	ChainID               uint64 `mapstructure:"chain_id"`
	SettlementLayer       string `mapstructure:"settlement_layer"`
	BoldEnabled           bool   `mapstructure:"bold_enabled"`
	SequencerAddress      string `mapstructure:"sequencer_address"`
	MinConfirmationBlocks uint64 `mapstructure:"min_confirmation_blocks"`
	GenesisTimestamp      int64  `mapstructure:"genesis_timestamp"`
	BlockTimeSeconds      int    `mapstructure:"block_time_seconds"`

	// reserves, simulated when no URL is set
	ReserveURLs []string `mapstructure:"reserve_urls"`

	// storage, in memory when empty
	DataDir string `mapstructure:"data_dir"`

	// pool seed, a local path or any go-getter source
	PoolSeed string `mapstructure:"pool_seed"`
}

// PoolSeed lists the pools and roles installed at startup.
type PoolSeed struct {
	Pools      []PoolEntry `toml:"pools" json:"pools"`
	Updaters   []string    `toml:"updaters" json:"updaters"`
	Validators []string    `toml:"validators" json:"validators"`
	Callers    []string    `toml:"callers" json:"callers"`
}

// PoolEntry is one seeded pool. Verified pools are verified by the first validator.
type PoolEntry struct {
	PoolAddress string `toml:"pool_address" json:"pool_address"`
	TokenA      string `toml:"token_a" json:"token_a"`
	TokenB      string `toml:"token_b" json:"token_b"`
	FeeBps      uint32 `toml:"fee_bps" json:"fee_bps"`
	ChainID     uint64 `toml:"chain_id" json:"chain_id"`
	PoolType    string `toml:"pool_type" json:"pool_type"`
	Verified    bool   `toml:"verified" json:"verified"`
}
