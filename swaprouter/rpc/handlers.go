package rpc

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/chainctx"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/models"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/registry"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/router"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/security"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/settlement"
	"github.com/Cogwheel-Validator/spectra-amm-router/swaprouter/swaperr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// CallerHeader carries the address the request acts for.
const CallerHeader = "X-Caller-Address"

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 64 << 10

var categoryStatus = map[swaperr.Category]int{
	swaperr.InputValidation:  http.StatusBadRequest,
	swaperr.AccessControl:    http.StatusForbidden,
	swaperr.ReplayOrOrdering: http.StatusConflict,
	swaperr.EconomicLimit:    http.StatusUnprocessableEntity,
	swaperr.LiquidityError:   http.StatusUnprocessableEntity,
	swaperr.ArithmeticError:  http.StatusUnprocessableEntity,
	swaperr.SystemState:      http.StatusServiceUnavailable,
	swaperr.SettlementError:  http.StatusConflict,
}

// RouterServer serves the JSON API over the engine and the settlement machine
type RouterServer struct {
	engine     *router.Engine
	settlement *settlement.Machine
	clock      chainctx.BlockContext
}

// NewRouterServer creates a new RouterServer
func NewRouterServer(engine *router.Engine, machine *settlement.Machine, clock chainctx.BlockContext) *RouterServer {
	return &RouterServer{engine: engine, settlement: machine, clock: clock}
}

// Routes mounts the /v1 API on r
func (s *RouterServer) Routes(r chi.Router) {
	r.Post("/intents", s.ExecuteIntent)
	r.Get("/quote", s.GetQuote)

	r.Post("/pools", s.AddPool)
	r.Get("/pools/{id}", s.GetPool)
	r.Post("/pools/{id}/refresh", s.RefreshPool)
	r.Post("/pools/{id}/verify", s.VerifyPool)
	r.Post("/pools/{id}/active", s.SetPoolActive)
	r.Get("/pairs/{tokenA}/{tokenB}/pools", s.PoolsForPair)

	r.Get("/users/{address}/nonce", s.NonceOf)

	r.Post("/settlements", s.ExecuteCrossChainIntent)
	r.Get("/settlements/{nonce}", s.GetSettlement)
	r.Post("/settlements/{nonce}/challenge", s.ChallengeSettlement)
	r.Get("/sequencer", s.CheckSequencer)
	r.Post("/sequencer/heartbeat", s.SequencerHeartbeat)

	r.Post("/admin/pause", s.Pause)
	r.Post("/admin/resume", s.Resume)
	r.Get("/admin/limits", s.GetLimits)
	r.Post("/admin/limits", s.SetLimits)
}

// ExecuteIntent handles POST /v1/intents
func (s *RouterServer) ExecuteIntent(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req models.IntentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	intent, err := intentFromRequest(req)
	if err != nil {
		writeError(w, err)
		return
	}

	exec, err := s.engine.ExecuteIntent(caller, intent)
	if err != nil {
		writeError(w, err)
		return
	}

	route := make([]models.RouteStep, len(exec.Route))
	for i, step := range exec.Route {
		route[i] = routeStepModel(step)
	}
	writeJSON(w, http.StatusOK, models.IntentResponse{
		Success:            true,
		AmountOut:          exec.AmountOut.Dec(),
		PriceImpactBps:     exec.PriceImpactBps,
		PriceImpactPercent: models.PercentFromBps(exec.PriceImpactBps),
		NextNonce:          exec.NextNonce,
		Route:              route,
	})
}

func intentFromRequest(req models.IntentRequest) (security.Intent, error) {
	user, err := models.ParseAddress("user", req.User)
	if err != nil {
		return security.Intent{}, err
	}
	tokenIn, err := models.ParseAddress("token_in", req.TokenIn)
	if err != nil {
		return security.Intent{}, err
	}
	tokenOut, err := models.ParseAddress("token_out", req.TokenOut)
	if err != nil {
		return security.Intent{}, err
	}
	amountIn, err := models.ParseAmount("amount_in", req.AmountIn)
	if err != nil {
		return security.Intent{}, err
	}
	minOut, err := models.ParseAmount("min_amount_out", req.MinAmountOut)
	if err != nil {
		return security.Intent{}, err
	}
	return security.Intent{
		User:           user,
		TokenIn:        tokenIn,
		TokenOut:       tokenOut,
		AmountIn:       amountIn,
		MinAmountOut:   minOut,
		Deadline:       req.Deadline,
		MaxSlippageBps: req.MaxSlippageBps,
		Nonce:          req.Nonce,
	}, nil
}

// GetQuote handles GET /v1/quote
func (s *RouterServer) GetQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tokenIn, err := models.ParseAddress("token_in", q.Get("token_in"))
	if err != nil {
		writeError(w, err)
		return
	}
	tokenOut, err := models.ParseAddress("token_out", q.Get("token_out"))
	if err != nil {
		writeError(w, err)
		return
	}
	amountIn, err := models.ParseAmount("amount_in", q.Get("amount_in"))
	if err != nil {
		writeError(w, err)
		return
	}

	step, err := s.engine.GetQuote(tokenIn, tokenOut, amountIn)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.QuoteResponse{Success: true, Quote: routeStepModel(step)})
}

// AddPool handles POST /v1/pools
func (s *RouterServer) AddPool(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req models.AddPoolRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	params := registry.AddPoolParams{
		FeeBps:   req.FeeBps,
		ChainID:  req.ChainID,
		PoolType: registry.PoolType(req.PoolType),
	}
	if params.PoolAddress, err = models.ParseAddress("pool_address", req.PoolAddress); err != nil {
		writeError(w, err)
		return
	}
	if params.TokenA, err = models.ParseAddress("token_a", req.TokenA); err != nil {
		writeError(w, err)
		return
	}
	if params.TokenB, err = models.ParseAddress("token_b", req.TokenB); err != nil {
		writeError(w, err)
		return
	}

	id, err := s.engine.AddPool(r.Context(), caller, params)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, models.AddPoolResponse{Success: true, PoolID: id})
}

// GetPool handles GET /v1/pools/{id}
func (s *RouterServer) GetPool(w http.ResponseWriter, r *http.Request) {
	id, err := uintParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	reg := s.engine.Registry()
	pool, ok := reg.Pool(id)
	if !ok {
		writeError(w, swaperr.New(swaperr.PoolNotFound, "pool %d", id))
		return
	}
	stats, err := reg.Stats(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poolModel(pool, stats))
}

// RefreshPool handles POST /v1/pools/{id}/refresh
func (s *RouterServer) RefreshPool(w http.ResponseWriter, r *http.Request) {
	s.poolAction(w, r, func(caller common.Address, id uint64) error {
		return s.engine.UpdatePool(r.Context(), caller, id)
	})
}

// VerifyPool handles POST /v1/pools/{id}/verify
func (s *RouterServer) VerifyPool(w http.ResponseWriter, r *http.Request) {
	s.poolAction(w, r, s.engine.VerifyPool)
}

// SetPoolActive handles POST /v1/pools/{id}/active
func (s *RouterServer) SetPoolActive(w http.ResponseWriter, r *http.Request) {
	var req models.SetPoolActiveRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.poolAction(w, r, func(caller common.Address, id uint64) error {
		return s.engine.SetPoolActive(caller, id, req.Active)
	})
}

// poolAction runs fn for the caller and the pool in the path, then answers with the pool
func (s *RouterServer) poolAction(w http.ResponseWriter, r *http.Request, fn func(caller common.Address, id uint64) error) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := uintParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := fn(caller, id); err != nil {
		writeError(w, err)
		return
	}
	s.GetPool(w, r)
}

// PoolsForPair handles GET /v1/pairs/{tokenA}/{tokenB}/pools
func (s *RouterServer) PoolsForPair(w http.ResponseWriter, r *http.Request) {
	a, err := models.ParseAddress("tokenA", chi.URLParam(r, "tokenA"))
	if err != nil {
		writeError(w, err)
		return
	}
	b, err := models.ParseAddress("tokenB", chi.URLParam(r, "tokenB"))
	if err != nil {
		writeError(w, err)
		return
	}
	ids := s.engine.Registry().PoolsForPair(a, b)
	if ids == nil {
		ids = []uint64{}
	}
	writeJSON(w, http.StatusOK, models.PairPoolsResponse{Success: true, PoolIDs: ids})
}

// NonceOf handles GET /v1/users/{address}/nonce
func (s *RouterServer) NonceOf(w http.ResponseWriter, r *http.Request) {
	user, err := models.ParseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NonceResponse{
		Success: true,
		User:    user.Hex(),
		Nonce:   s.engine.NonceOf(user),
	})
}

// ExecuteCrossChainIntent handles POST /v1/settlements
func (s *RouterServer) ExecuteCrossChainIntent(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req models.CrossChainIntentRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	intent := settlement.CrossChainIntent{
		SourceChain:    req.SourceChain,
		TargetChain:    req.TargetChain,
		Deadline:       req.Deadline,
		SettlementMode: req.SettlementMode,
	}
	if intent.User, err = models.ParseAddress("user", req.User); err != nil {
		writeError(w, err)
		return
	}
	if intent.TokenIn, err = models.ParseAddress("token_in", req.TokenIn); err != nil {
		writeError(w, err)
		return
	}
	if intent.TokenOut, err = models.ParseAddress("token_out", req.TokenOut); err != nil {
		writeError(w, err)
		return
	}
	if intent.AmountIn, err = models.ParseAmount("amount_in", req.AmountIn); err != nil {
		writeError(w, err)
		return
	}
	if intent.MinAmountOut, err = models.ParseAmount("min_amount_out", req.MinAmountOut); err != nil {
		writeError(w, err)
		return
	}

	nonce, amountOut, err := s.settlement.ExecuteCrossChainIntent(caller, intent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.SettlementResponse{
		Success:   true,
		Nonce:     nonce,
		AmountOut: amountOut.Dec(),
		Mode:      s.settlement.Mode().String(),
	})
}

// GetSettlement handles GET /v1/settlements/{nonce}
func (s *RouterServer) GetSettlement(w http.ResponseWriter, r *http.Request) {
	nonce, err := uintParam(r, "nonce")
	if err != nil {
		writeError(w, err)
		return
	}
	record, ok := s.settlement.Record(nonce)
	if !ok {
		writeError(w, swaperr.New(swaperr.SettlementNotFound, "settlement %d", nonce))
		return
	}
	resp := models.SettlementRecordResponse{
		Success:         true,
		Nonce:           record.Nonce,
		Mode:            record.Mode.String(),
		SettlementBlock: record.SettlementBlock,
		StateRoot:       record.StateRoot.Hex(),
		AmountOut:       record.AmountOut.Dec(),
	}
	if d, ok := s.settlement.Dispute(nonce); ok {
		dm := disputeModel(d)
		resp.Dispute = &dm
	}
	writeJSON(w, http.StatusOK, resp)
}

// ChallengeSettlement handles POST /v1/settlements/{nonce}/challenge
func (s *RouterServer) ChallengeSettlement(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	nonce, err := uintParam(r, "nonce")
	if err != nil {
		writeError(w, err)
		return
	}
	var req models.ChallengeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	disputed, err := models.ParseHash("disputed_state", req.DisputedState)
	if err != nil {
		writeError(w, err)
		return
	}

	d, err := s.settlement.ChallengeSettlement(caller, nonce, disputed)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, disputeModel(d))
}

// CheckSequencer handles GET /v1/sequencer
func (s *RouterServer) CheckSequencer(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.SequencerResponse{Success: true, FallbackMode: s.settlement.CheckSequencer()})
}

// SequencerHeartbeat handles POST /v1/sequencer/heartbeat. Only the configured
// sequencer may report.
func (s *RouterServer) SequencerHeartbeat(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if caller != s.settlement.ChainConfig().SequencerAddress {
		writeError(w, swaperr.New(swaperr.Unauthorized, "%s is not the sequencer", caller.Hex()))
		return
	}
	s.settlement.RecordSequencerHeartbeat(s.clock.Timestamp())
	writeJSON(w, http.StatusOK, models.SequencerResponse{Success: true, FallbackMode: s.settlement.FallbackMode()})
}

// Pause handles POST /v1/admin/pause
func (s *RouterServer) Pause(w http.ResponseWriter, r *http.Request) {
	s.adminAction(w, r, s.engine.EmergencyPause)
}

// Resume handles POST /v1/admin/resume
func (s *RouterServer) Resume(w http.ResponseWriter, r *http.Request) {
	s.adminAction(w, r, s.engine.Resume)
}

func (s *RouterServer) adminAction(w http.ResponseWriter, r *http.Request, fn func(caller common.Address) error) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := fn(caller); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.StatusResponse{Success: true, Paused: s.engine.Paused()})
}

// GetLimits handles GET /v1/admin/limits
func (s *RouterServer) GetLimits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, limitsModel(s.engine.Limits()))
}

// SetLimits handles POST /v1/admin/limits, owner only
func (s *RouterServer) SetLimits(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req models.LimitsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	limits, err := mergeLimits(s.engine.Limits(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.engine.SetLimits(caller, limits); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, limitsModel(s.engine.Limits()))
}

// mergeLimits overlays the fields set in req on current.
func mergeLimits(current security.Limits, req models.LimitsRequest) (security.Limits, error) {
	amounts := []struct {
		field string
		value string
		dst   **uint256.Int
	}{
		{"min_trade_amount", req.MinTradeAmount, &current.MinTradeAmount},
		{"max_trade_amount", req.MaxTradeAmount, &current.MaxTradeAmount},
		{"max_daily_volume", req.MaxDailyVolume, &current.MaxDailyVolume},
		{"circuit_breaker_threshold", req.CircuitBreakerThreshold, &current.CircuitBreakerThreshold},
		{"suspicious_amount", req.SuspiciousAmount, &current.SuspiciousAmount},
	}
	for _, a := range amounts {
		if a.value == "" {
			continue
		}
		v, err := models.ParseAmount(a.field, a.value)
		if err != nil {
			return security.Limits{}, err
		}
		*a.dst = v
	}
	if req.ExpiryBufferSeconds != nil {
		current.ExpiryBuffer = *req.ExpiryBufferSeconds
	}
	if req.MaxSlippageBps != nil {
		current.MaxSlippageBps = *req.MaxSlippageBps
	}
	return current, nil
}

func limitsModel(l security.Limits) models.LimitsResponse {
	return models.LimitsResponse{
		Success:                 true,
		MinTradeAmount:          l.MinTradeAmount.Dec(),
		MaxTradeAmount:          l.MaxTradeAmount.Dec(),
		MaxDailyVolume:          l.MaxDailyVolume.Dec(),
		CircuitBreakerThreshold: l.CircuitBreakerThreshold.Dec(),
		SuspiciousAmount:        l.SuspiciousAmount.Dec(),
		ExpiryBufferSeconds:     l.ExpiryBuffer,
		MaxSlippageBps:          l.MaxSlippageBps,
		MaxSlippagePercent:      models.PercentFromBps(l.MaxSlippageBps),
	}
}

func routeStepModel(step router.RouteStep) models.RouteStep {
	return models.RouteStep{
		PoolID:             step.PoolID,
		TokenIn:            step.TokenIn.Hex(),
		TokenOut:           step.TokenOut.Hex(),
		AmountIn:           step.AmountIn.Dec(),
		AmountOut:          step.AmountOut.Dec(),
		PriceImpactBps:     step.PriceImpactBps,
		PriceImpactPercent: models.PercentFromBps(step.PriceImpactBps),
		Verified:           step.Verified,
	}
}

func poolModel(p *registry.Pool, stats registry.PoolStats) models.PoolResponse {
	return models.PoolResponse{
		Success:          true,
		PoolID:           p.ID,
		PoolAddress:      p.PoolAddress.Hex(),
		TokenA:           p.TokenA.Hex(),
		TokenB:           p.TokenB.Hex(),
		ReserveA:         p.ReserveA.Dec(),
		ReserveB:         p.ReserveB.Dec(),
		FeeBps:           p.FeeBps,
		FeePercent:       models.PercentFromBps(uint64(p.FeeBps)),
		PoolType:         p.PoolType.String(),
		ChainID:          p.ChainID,
		IsVerified:       p.IsVerified,
		IsActive:         p.IsActive,
		CreatedAt:        p.CreatedAt,
		LastUpdated:      p.LastUpdated,
		RefreshedAtBlock: p.RefreshedAtBlock,
		Stats: models.PoolStats{
			TVL:                decimal.NewFromBigInt(stats.TVL.ToBig(), 0),
			Volume24h:          models.WholeTokens(stats.Volume24h),
			Fees24h:            models.WholeTokens(stats.Fees24h),
			PriceImpact1k:      stats.PriceImpact1k,
			UtilizationBps:     stats.UtilizationBps,
			UtilizationPercent: models.PercentFromBps(stats.UtilizationBps),
		},
	}
}

func disputeModel(d settlement.Dispute) models.DisputeResponse {
	return models.DisputeResponse{
		Nonce:         d.Nonce,
		Challenger:    d.Challenger.Hex(),
		DisputedState: d.DisputedState.Hex(),
		OpenedAtBlock: d.OpenedAtBlock,
		DeadlineBlock: d.DeadlineBlock,
	}
}

func callerFrom(r *http.Request) (common.Address, error) {
	return models.ParseAddress(CallerHeader, r.Header.Get(CallerHeader))
}

func uintParam(r *http.Request, name string) (uint64, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, swaperr.Wrap(swaperr.MalformedRequest, err, "%s must be an unsigned integer", name)
	}
	return v, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return swaperr.Wrap(swaperr.MalformedRequest, err, "request body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		Logger.Error().Err(err).Msg("Failed to write response")
	}
}

// writeError maps core failures to their category status. Anything else is a 500.
func writeError(w http.ResponseWriter, err error) {
	kind, _ := swaperr.KindOf(err)
	status, ok := categoryStatus[kind.Category()]
	if !ok {
		status = http.StatusInternalServerError
		Logger.Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, status, models.ErrorResponse{
		Success:       false,
		ErrorKind:     kind.String(),
		ErrorCategory: kind.Category().String(),
		ErrorMessage:  err.Error(),
	})
}
