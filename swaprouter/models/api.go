// Package models holds the JSON request and response bodies of the router API.
//
// Amounts travel as base-10 strings of the smallest token unit, addresses as 0x
// hex and percentages as decimal strings.
package models

import "github.com/shopspring/decimal"

// IntentRequest - POST /v1/intents body
type IntentRequest struct {
	User           string `json:"user"`
	TokenIn        string `json:"token_in"`
	TokenOut       string `json:"token_out"`
	AmountIn       string `json:"amount_in"`
	MinAmountOut   string `json:"min_amount_out"`
	Deadline       uint64 `json:"deadline"`         // unix seconds
	MaxSlippageBps uint64 `json:"max_slippage_bps"` // 1..1000
	Nonce          uint64 `json:"nonce"`
}

// RouteStep is one pool hop of a route or quote
type RouteStep struct {
	PoolID             uint64          `json:"pool_id"`
	TokenIn            string          `json:"token_in"`
	TokenOut           string          `json:"token_out"`
	AmountIn           string          `json:"amount_in"`
	AmountOut          string          `json:"amount_out"`
	PriceImpactBps     uint64          `json:"price_impact_bps"`
	PriceImpactPercent decimal.Decimal `json:"price_impact_percent"`
	Verified           bool            `json:"verified"`
}

// IntentResponse - result of an executed intent
type IntentResponse struct {
	Success            bool            `json:"success"`
	AmountOut          string          `json:"amount_out"`
	PriceImpactBps     uint64          `json:"price_impact_bps"`
	PriceImpactPercent decimal.Decimal `json:"price_impact_percent"`
	NextNonce          uint64          `json:"next_nonce"`
	Route              []RouteStep     `json:"route"`
}

// QuoteResponse - GET /v1/quote
type QuoteResponse struct {
	Success bool      `json:"success"`
	Quote   RouteStep `json:"quote"`
}

// AddPoolRequest - POST /v1/pools body
type AddPoolRequest struct {
	PoolAddress string `json:"pool_address"`
	TokenA      string `json:"token_a"`
	TokenB      string `json:"token_b"`
	FeeBps      uint32 `json:"fee_bps"`
	ChainID     uint64 `json:"chain_id"`
	PoolType    uint8  `json:"pool_type"`
}

type AddPoolResponse struct {
	Success bool   `json:"success"`
	PoolID  uint64 `json:"pool_id"`
}

// PoolStats are presented with the 18 decimals applied
type PoolStats struct {
	TVL                decimal.Decimal `json:"tvl"`
	Volume24h          decimal.Decimal `json:"volume_24h"`
	Fees24h            decimal.Decimal `json:"fees_24h"`
	PriceImpact1k      uint64          `json:"price_impact_1k_bps"`
	UtilizationBps     uint64          `json:"utilization_bps"`
	UtilizationPercent decimal.Decimal `json:"utilization_percent"`
}

// PoolResponse - GET /v1/pools/{id}
type PoolResponse struct {
	Success          bool            `json:"success"`
	PoolID           uint64          `json:"pool_id"`
	PoolAddress      string          `json:"pool_address"`
	TokenA           string          `json:"token_a"`
	TokenB           string          `json:"token_b"`
	ReserveA         string          `json:"reserve_a"`
	ReserveB         string          `json:"reserve_b"`
	FeeBps           uint32          `json:"fee_bps"`
	FeePercent       decimal.Decimal `json:"fee_percent"`
	PoolType         string          `json:"pool_type"`
	ChainID          uint64          `json:"chain_id"`
	IsVerified       bool            `json:"is_verified"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        uint64          `json:"created_at"`
	LastUpdated      uint64          `json:"last_updated"`
	RefreshedAtBlock uint64          `json:"refreshed_at_block"`
	Stats            PoolStats       `json:"stats"`
}

// PairPoolsResponse - GET /v1/pairs/{tokenA}/{tokenB}/pools
type PairPoolsResponse struct {
	Success bool     `json:"success"`
	PoolIDs []uint64 `json:"pool_ids"`
}

// NonceResponse - GET /v1/users/{address}/nonce
type NonceResponse struct {
	Success bool   `json:"success"`
	User    string `json:"user"`
	Nonce   uint64 `json:"nonce"`
}

// CrossChainIntentRequest - POST /v1/settlements body
type CrossChainIntentRequest struct {
	User           string `json:"user"`
	SourceChain    uint64 `json:"source_chain"`
	TargetChain    uint64 `json:"target_chain"`
	TokenIn        string `json:"token_in"`
	TokenOut       string `json:"token_out"`
	AmountIn       string `json:"amount_in"`
	MinAmountOut   string `json:"min_amount_out"`
	Deadline       uint64 `json:"deadline"`
	SettlementMode uint8  `json:"settlement_mode"`
}

// SettlementResponse - result of a cross-chain intent
type SettlementResponse struct {
	Success   bool   `json:"success"`
	Nonce     uint64 `json:"nonce"`
	AmountOut string `json:"amount_out"`
	Mode      string `json:"mode"`
}

// SettlementRecordResponse - GET /v1/settlements/{nonce}
type SettlementRecordResponse struct {
	Success         bool             `json:"success"`
	Nonce           uint64           `json:"nonce"`
	Mode            string           `json:"mode"`
	SettlementBlock uint64           `json:"settlement_block"`
	StateRoot       string           `json:"state_root"`
	AmountOut       string           `json:"amount_out"`
	Dispute         *DisputeResponse `json:"dispute,omitempty"`
}

// ChallengeRequest - POST /v1/settlements/{nonce}/challenge body
type ChallengeRequest struct {
	DisputedState string `json:"disputed_state"` // 0x prefixed 32 byte hash
}

type DisputeResponse struct {
	Nonce         uint64 `json:"nonce"`
	Challenger    string `json:"challenger"`
	DisputedState string `json:"disputed_state"`
	OpenedAtBlock uint64 `json:"opened_at_block"`
	DeadlineBlock uint64 `json:"deadline_block"`
}

// StatusResponse - result of the admin endpoints
type StatusResponse struct {
	Success bool `json:"success"`
	Paused  bool `json:"paused"`
}

// ErrorResponse is returned for every failed request
type ErrorResponse struct {
	Success       bool   `json:"success"`
	ErrorKind     string `json:"error_kind"`
	ErrorCategory string `json:"error_category"`
	ErrorMessage  string `json:"error_message"`
}

// LimitsRequest - POST /v1/admin/limits body. Omitted fields keep their current value.
// Amounts are base-10 strings in the token's smallest unit.
type LimitsRequest struct {
	MinTradeAmount          string  `json:"min_trade_amount,omitempty"`
	MaxTradeAmount          string  `json:"max_trade_amount,omitempty"`
	MaxDailyVolume          string  `json:"max_daily_volume,omitempty"`
	CircuitBreakerThreshold string  `json:"circuit_breaker_threshold,omitempty"`
	SuspiciousAmount        string  `json:"suspicious_amount,omitempty"`
	ExpiryBufferSeconds     *uint64 `json:"expiry_buffer_seconds,omitempty"`
	MaxSlippageBps          *uint64 `json:"max_slippage_bps,omitempty"`
}

// LimitsResponse - the economic limits in force
type LimitsResponse struct {
	Success                 bool            `json:"success"`
	MinTradeAmount          string          `json:"min_trade_amount"`
	MaxTradeAmount          string          `json:"max_trade_amount"`
	MaxDailyVolume          string          `json:"max_daily_volume"`
	CircuitBreakerThreshold string          `json:"circuit_breaker_threshold"`
	SuspiciousAmount        string          `json:"suspicious_amount"`
	ExpiryBufferSeconds     uint64          `json:"expiry_buffer_seconds"`
	MaxSlippageBps          uint64          `json:"max_slippage_bps"`
	MaxSlippagePercent      decimal.Decimal `json:"max_slippage_percent"`
}

// SetPoolActiveRequest - POST /v1/pools/{id}/active body
type SetPoolActiveRequest struct {
	Active bool `json:"active"`
}

// SequencerResponse - sequencer liveness as seen by the settlement machine
type SequencerResponse struct {
	Success      bool `json:"success"`
	FallbackMode bool `json:"fallback_mode"`
}
