// Package trade provides the HTTP handlers and business logic for creating
// pools, quoting and executing bond trades, managing liquidity and querying
// positions.
//
// Amounts cross the API as shopspring/decimal strings. Each pool is priced
// with the numeric and model variant it was created with.
package trade

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/delvtech/agent0-sub002/internal/config"
	"github.com/delvtech/agent0-sub002/internal/limits"
	"github.com/delvtech/agent0-sub002/internal/logger"
	"github.com/delvtech/agent0-sub002/internal/market"
	"github.com/delvtech/agent0-sub002/internal/metrics"
	"github.com/delvtech/agent0-sub002/internal/model"
	"github.com/delvtech/agent0-sub002/internal/pricing"
	"github.com/delvtech/agent0-sub002/internal/store"
	"github.com/delvtech/agent0-sub002/internal/term"
)

// Service handles pool operations. A mutex serializes the
// read-price-apply cycle of every state change (single instance).
type Service struct {
	store    store.Store
	limiter  *limits.PositionLimiter
	defaults config.PoolDefaults
	hub      *WSHub // optional
	mu       sync.Mutex
	now      func() time.Time
	log      zerolog.Logger
}

// NewService creates a trade service. limiter and hub may be nil.
func NewService(st store.Store, limiter *limits.PositionLimiter, defaults config.PoolDefaults, hub *WSHub) *Service {
	return &Service{
		store:    st,
		limiter:  limiter,
		defaults: defaults,
		hub:      hub,
		now:      func() time.Time { return time.Now().UTC() },
		log:      logger.GetForComponent("trade"),
	}
}

// SetClock replaces the clock used for maturities and timestamps.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Routes mounts the API under /api/v1.
func (s *Service) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/pools", s.CreatePool)
		r.Get("/pools", s.ListPools)
		r.Get("/pools/{poolID}", s.GetPool)
		r.Get("/pools/{poolID}/price", s.GetPrice)
		r.Get("/pools/{poolID}/max", s.GetMax)
		r.Get("/pools/{poolID}/history", s.GetPoolHistory)
		r.Post("/quote", s.Quote)
		r.Post("/trade", s.ExecuteTrade)
		r.Post("/liquidity", s.Liquidity)
		r.Get("/portfolio/{userID}", s.GetPortfolio)
		if s.hub != nil {
			r.Get("/ws", s.hub.HandleWS)
		}
	})
}

// --- Request/Response types ---

// CreatePoolRequest is the JSON body for pool creation. Omitted parameters
// come from the configured pool defaults.
type CreatePoolRequest struct {
	UserID       string          `json:"user_id"` // receives the initial LP shares
	Symbol       string          `json:"symbol"`  // HD-{ASSET}-{DAYS}D
	Asset        string          `json:"asset"`   // with the default duration when symbol is empty
	Numeric      string          `json:"numeric"`
	Model        string          `json:"model"`
	TargetAPR    decimal.Decimal `json:"target_apr"`
	Contribution decimal.Decimal `json:"contribution"`

	SharePrice     *decimal.Decimal `json:"share_price,omitempty"`
	InitSharePrice *decimal.Decimal `json:"init_share_price,omitempty"`
	CurveFee       *decimal.Decimal `json:"curve_fee_multiple,omitempty"`
	FlatFee        *decimal.Decimal `json:"flat_fee_multiple,omitempty"`
	GovernanceFee  *decimal.Decimal `json:"governance_fee_multiple,omitempty"`
	TimeStretch    *decimal.Decimal `json:"time_stretch,omitempty"`
}

// TradeRequest is the JSON body for POST /trade. Amount is base for
// open_long and bonds for every other action.
type TradeRequest struct {
	UserID     string          `json:"user_id"`
	PoolID     string          `json:"pool_id"`
	Action     string          `json:"action"`
	Amount     decimal.Decimal `json:"amount"`
	BondTicker string          `json:"bond_ticker,omitempty"` // required for closes
	MaxDeposit decimal.Decimal `json:"max_deposit"`           // open_short only; zero disables
}

// TradeResponse is the JSON body returned from POST /trade.
type TradeResponse struct {
	TradeID    string              `json:"trade_id"`
	UserID     string              `json:"user_id"`
	PoolID     string              `json:"pool_id"`
	Action     string              `json:"action"`
	BondTicker string              `json:"bond_ticker"`
	Base       decimal.Decimal     `json:"base"`
	Longs      decimal.Decimal     `json:"longs"`
	Shorts     decimal.Decimal     `json:"shorts"`
	Breakdown  model.Breakdown     `json:"breakdown"`
	SpotPrice  decimal.NullDecimal `json:"spot_price"`
	APR        decimal.NullDecimal `json:"apr"`
	Position   model.Position      `json:"position"`
}

// LiquidityRequest is the JSON body for POST /liquidity. Amount is base
// for add and LP shares for remove.
type LiquidityRequest struct {
	UserID string          `json:"user_id"`
	PoolID string          `json:"pool_id"`
	Action string          `json:"action"` // "add" or "remove"
	Amount decimal.Decimal `json:"amount"`
}

// LiquidityResponse is the JSON body returned from POST /liquidity.
type LiquidityResponse struct {
	EntryID  string          `json:"entry_id"`
	UserID   string          `json:"user_id"`
	PoolID   string          `json:"pool_id"`
	Action   string          `json:"action"`
	Base     decimal.Decimal `json:"base"`
	LPShares decimal.Decimal `json:"lp_shares"`
	Pool     *model.Pool     `json:"pool"`
	Position model.Position  `json:"position"`
}

// QuoteRequest prices a trade without changing state. Direction is
// out_given_in (the default) or in_given_out; Token is the unit of Amount.
// Without a bond ticker the quote is at the full term.
type QuoteRequest struct {
	PoolID     string          `json:"pool_id"`
	Direction  string          `json:"direction"`
	Token      string          `json:"token"`
	Amount     decimal.Decimal `json:"amount"`
	BondTicker string          `json:"bond_ticker,omitempty"`
}

// QuoteResponse is a priced trade. User deltas are signed.
type QuoteResponse struct {
	PoolID        string          `json:"pool_id"`
	Direction     string          `json:"direction"`
	Token         string          `json:"token"`
	Amount        decimal.Decimal `json:"amount"`
	DaysRemaining decimal.Decimal `json:"days_remaining"`
	Breakdown     model.Breakdown `json:"breakdown"`
	Fee           decimal.Decimal `json:"fee"`
	GovFee        decimal.Decimal `json:"gov_fee"`
	UserDBase     decimal.Decimal `json:"user_d_base"`
	UserDBonds    decimal.Decimal `json:"user_d_bonds"`
}

// PriceResponse is the body of GET /pools/{poolID}/price.
type PriceResponse struct {
	PoolID        string              `json:"pool_id"`
	DaysRemaining decimal.Decimal     `json:"days_remaining"`
	SpotPrice     decimal.NullDecimal `json:"spot_price"`
	APR           decimal.NullDecimal `json:"apr"`
}

const (
	directionOutGivenIn = "out_given_in"
	directionInGivenOut = "in_given_out"
)

// --- Pools ---

// CreatePool handles POST /api/v1/pools.
func (s *Service) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req CreatePoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.Symbol == "" && req.Asset != "" {
		req.Symbol = term.PoolSymbol(req.Asset, s.defaults.PositionDurationDays)
	}
	parsed, err := term.ParsePoolSymbol(req.Symbol)
	if err != nil {
		fail(w, err)
		return
	}
	if !req.Contribution.IsPositive() {
		writeError(w, "contribution must be positive", http.StatusBadRequest)
		return
	}

	now := s.now()
	pool := &model.Pool{
		ID:                   uuid.New().String(),
		Symbol:               parsed.Symbol,
		Asset:                parsed.Asset,
		Numeric:              orDefault(req.Numeric, s.defaults.Numeric),
		Model:                orDefault(req.Model, s.defaults.Model),
		PositionDurationDays: parsed.DurationDays,
		InitSharePrice:       valueOr(req.InitSharePrice, s.defaults.InitSharePrice),
		CurveFee:             valueOr(req.CurveFee, s.defaults.CurveFee),
		FlatFee:              valueOr(req.FlatFee, s.defaults.FlatFee),
		GovernanceFee:        valueOr(req.GovernanceFee, s.defaults.GovernanceFee),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	pool.SharePrice = valueOr(req.SharePrice, pool.InitSharePrice)

	pr, err := newPricer(pool.Numeric, pool.Model)
	if err != nil {
		fail(w, err)
		return
	}
	if req.TimeStretch != nil {
		pool.TimeStretch = *req.TimeStretch
	} else if pool.TimeStretch, err = pr.timeStretch(req.TargetAPR); err != nil {
		fail(w, err)
		return
	}
	exec, err := pr.initialize(pool, req.Contribution, req.TargetAPR)
	if err != nil {
		fail(w, err)
		return
	}

	ctx := r.Context()
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &model.LedgerEntry{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		PoolID:    pool.ID,
		Action:    string(market.Initialize),
		Base:      exec.agent.Base,
		LPShares:  exec.agent.LPShares,
		Timestamp: now,
	}
	if err := s.store.InitializePool(ctx, pool, entry); err != nil {
		if statusFor(err) >= http.StatusInternalServerError {
			s.log.Error().Err(err).Str("symbol", pool.Symbol).Msg("initialize pool")
		}
		fail(w, err)
		return
	}

	metrics.ActivePools.Inc()
	metrics.TradesTotal.WithLabelValues(string(market.Initialize)).Inc()
	s.observePrice(pool)

	s.log.Info().
		Str("pool_id", pool.ID).
		Str("symbol", pool.Symbol).
		Str("numeric", pool.Numeric).
		Str("model", pool.Model).
		Str("contribution", req.Contribution.String()).
		Str("target_apr", req.TargetAPR.String()).
		Str("time_stretch", pool.TimeStretch.String()).
		Msg("pool created")

	s.broadcast("pool_created", pool, market.Initialize)

	writeJSON(w, http.StatusCreated, pool)
}

// ListPools handles GET /api/v1/pools, optionally filtered by ?asset=.
func (s *Service) ListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.store.ListPools(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("list pools")
		writeError(w, "failed to list pools", http.StatusInternalServerError)
		return
	}
	filtered := make([]model.Pool, 0, len(pools))
	asset := r.URL.Query().Get("asset")
	for _, p := range pools {
		if asset == "" || p.Asset == asset {
			filtered = append(filtered, p)
		}
	}
	writeJSON(w, http.StatusOK, filtered)
}

// GetPool handles GET /api/v1/pools/{poolID}.
func (s *Service) GetPool(w http.ResponseWriter, r *http.Request) {
	pool, err := s.store.GetPool(r.Context(), chi.URLParam(r, "poolID"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// GetPrice handles GET /api/v1/pools/{poolID}/price. An optional
// ?bond_ticker= prices at that bond's remaining term.
func (s *Service) GetPrice(w http.ResponseWriter, r *http.Request) {
	pool, pr, err := s.loadPool(r, chi.URLParam(r, "poolID"))
	if err != nil {
		fail(w, err)
		return
	}
	days, err := s.daysFor(pool, r.URL.Query().Get("bond_ticker"))
	if err != nil {
		fail(w, err)
		return
	}
	spot, apr, err := pr.price(pool, days)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, PriceResponse{PoolID: pool.ID, DaysRemaining: days, SpotPrice: spot, APR: apr})
}

// GetMax handles GET /api/v1/pools/{poolID}/max.
func (s *Service) GetMax(w http.ResponseWriter, r *http.Request) {
	pool, pr, err := s.loadPool(r, chi.URLParam(r, "poolID"))
	if err != nil {
		fail(w, err)
		return
	}
	mt, err := pr.maxTrades(pool)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mt)
}

// GetPoolHistory handles GET /api/v1/pools/{poolID}/history.
func (s *Service) GetPoolHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	poolID := chi.URLParam(r, "poolID")
	if _, err := s.store.GetPool(ctx, poolID); err != nil {
		fail(w, err)
		return
	}
	entries, err := s.store.GetLedgerEntriesByPool(ctx, poolID)
	if err != nil {
		s.log.Error().Err(err).Str("pool_id", poolID).Msg("load pool history")
		writeError(w, "failed to get pool history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Quotes and trades ---

// Quote handles POST /api/v1/quote.
func (s *Service) Quote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	dir := pricing.DirectionOut
	switch req.Direction {
	case "", directionOutGivenIn:
		req.Direction = directionOutGivenIn
	case directionInGivenOut:
		dir = pricing.DirectionIn
	default:
		writeError(w, "direction must be out_given_in or in_given_out", http.StatusBadRequest)
		return
	}

	pool, pr, err := s.loadPool(r, req.PoolID)
	if err != nil {
		fail(w, err)
		return
	}
	days, err := s.daysFor(pool, req.BondTicker)
	if err != nil {
		fail(w, err)
		return
	}
	exec, err := pr.quote(pool, dir, req.Amount, pricing.TokenType(req.Token), days)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, QuoteResponse{
		PoolID:        pool.ID,
		Direction:     req.Direction,
		Token:         req.Token,
		Amount:        req.Amount,
		DaysRemaining: days,
		Breakdown:     exec.breakdown,
		Fee:           exec.breakdown.Fee(),
		GovFee:        exec.breakdown.GovFee(),
		UserDBase:     exec.userBase,
		UserDBonds:    exec.userBonds,
	})
}

// ExecuteTrade handles POST /api/v1/trade.
// Prices against the pool's model, enforces capacity and exposure limits,
// then persists the new pool state and an immutable ledger entry.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// --- Input validation ---
	act := market.Action(req.Action)
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if !act.IsTrade() {
		writeError(w, "action must be open_long, close_long, open_short or close_short", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}
	closing := act == market.CloseLong || act == market.CloseShort
	if closing && req.BondTicker == "" {
		writeError(w, "bond_ticker is required to close a position", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, pr, err := s.loadPool(r, req.PoolID)
	if err != nil {
		fail(w, err)
		return
	}
	now := s.now()
	ticker, days, err := s.tradeTerm(pool, closing, req.BondTicker, now)
	if err != nil {
		fail(w, err)
		return
	}

	positions, err := s.store.GetUserPositions(ctx, req.UserID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", req.UserID).Msg("load positions")
		writeError(w, "failed to check positions", http.StatusInternalServerError)
		return
	}
	pos := positionIn(positions, pool.ID)
	if closing {
		held := pos.Longs
		if act == market.CloseShort {
			held = pos.Shorts
		}
		if req.Amount.GreaterThan(held) {
			fail(w, fmt.Errorf("%w: holding %s, closing %s", ErrInsufficientPosition, held, req.Amount))
			return
		}
	}

	// Price on a copy; nothing is persisted until every check passes.
	next := *pool
	exec, err := pr.execute(&next, act, req.Amount, req.MaxDeposit, days)
	if err != nil {
		s.reject(w, req, err)
		return
	}

	// --- Exposure limit check ---
	if !closing && s.limiter != nil {
		side, delta := limits.Long, exec.agent.Longs
		if act == market.OpenShort {
			side, delta = limits.Short, exec.agent.Shorts
		}
		target := limits.Exposure{PoolID: pool.ID, Asset: pool.Asset}
		if err := s.limiter.CheckLimit(target, side, delta, exposures(positions)); err != nil {
			s.reject(w, req, err)
			return
		}
	}

	next.UpdatedAt = now
	entry := &model.LedgerEntry{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		PoolID:     pool.ID,
		Action:     req.Action,
		BondTicker: ticker,
		Base:       exec.agent.Base,
		Longs:      exec.agent.Longs,
		Shorts:     exec.agent.Shorts,
		Fee:        exec.breakdown.Fee(),
		GovFee:     exec.breakdown.GovFee(),
		Timestamp:  now,
	}
	if err := s.store.RecordAction(ctx, &next, entry); err != nil {
		s.log.Error().Err(err).Str("pool_id", pool.ID).Msg("record trade")
		fail(w, err)
		return
	}

	s.observeTrade(&next, act, exec.breakdown, start)

	s.log.Info().
		Str("trade_id", entry.ID).
		Str("user", req.UserID).
		Str("pool_id", pool.ID).
		Str("action", req.Action).
		Str("bond_ticker", ticker).
		Str("amount", req.Amount.String()).
		Str("base", exec.agent.Base.String()).
		Str("fee", entry.Fee.String()).
		Str("spot_price", next.SpotPrice.Decimal.String()).
		Msg("trade executed")

	s.broadcast("trade_executed", &next, act)

	writeJSON(w, http.StatusOK, TradeResponse{
		TradeID:    entry.ID,
		UserID:     req.UserID,
		PoolID:     pool.ID,
		Action:     req.Action,
		BondTicker: ticker,
		Base:       exec.agent.Base,
		Longs:      exec.agent.Longs,
		Shorts:     exec.agent.Shorts,
		Breakdown:  exec.breakdown,
		SpotPrice:  next.SpotPrice,
		APR:        next.APR,
		Position:   s.positionAfter(r, req.UserID, pool.ID),
	})
}

// Liquidity handles POST /api/v1/liquidity.
func (s *Service) Liquidity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req LiquidityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	var act market.Action
	switch req.Action {
	case "add":
		act = market.AddLiquidity
	case "remove":
		act = market.RemoveLiquidity
	default:
		writeError(w, "action must be add or remove", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	s.mu.Lock()
	defer s.mu.Unlock()

	pool, pr, err := s.loadPool(r, req.PoolID)
	if err != nil {
		fail(w, err)
		return
	}
	if act == market.RemoveLiquidity {
		positions, err := s.store.GetUserPositions(ctx, req.UserID)
		if err != nil {
			writeError(w, "failed to check positions", http.StatusInternalServerError)
			return
		}
		if held := positionIn(positions, pool.ID).LPShares; req.Amount.GreaterThan(held) {
			fail(w, fmt.Errorf("%w: holding %s lp shares, removing %s", ErrInsufficientPosition, held, req.Amount))
			return
		}
	}

	now := s.now()
	next := *pool
	exec, err := pr.execute(&next, act, req.Amount, decimal.Zero, decimal.NewFromInt(int64(pool.PositionDurationDays)))
	if err != nil {
		fail(w, err)
		return
	}
	next.UpdatedAt = now
	entry := &model.LedgerEntry{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		PoolID:    pool.ID,
		Action:    string(act),
		Base:      exec.agent.Base,
		LPShares:  exec.agent.LPShares,
		Timestamp: now,
	}
	if err := s.store.RecordAction(ctx, &next, entry); err != nil {
		s.log.Error().Err(err).Str("pool_id", pool.ID).Msg("record liquidity")
		fail(w, err)
		return
	}

	s.observeTrade(&next, act, exec.breakdown, start)
	s.log.Info().
		Str("entry_id", entry.ID).
		Str("user", req.UserID).
		Str("pool_id", pool.ID).
		Str("action", string(act)).
		Str("base", exec.agent.Base.String()).
		Str("lp_shares", exec.agent.LPShares.String()).
		Msg("liquidity changed")
	s.broadcast("liquidity_changed", &next, act)

	writeJSON(w, http.StatusOK, LiquidityResponse{
		EntryID:  entry.ID,
		UserID:   req.UserID,
		PoolID:   pool.ID,
		Action:   req.Action,
		Base:     exec.agent.Base,
		LPShares: exec.agent.LPShares,
		Pool:     &next,
		Position: s.positionAfter(r, req.UserID, pool.ID),
	})
}

// GetPortfolio handles GET /api/v1/portfolio/{userID}.
// Returns positions, bond totals, net base flow and exposure per asset.
func (s *Service) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	positions, err := s.store.GetUserPositions(r.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("load positions")
		writeError(w, "failed to load positions", http.StatusInternalServerError)
		return
	}
	if positions == nil {
		positions = []model.Position{}
	}

	portfolio := model.Portfolio{
		UserID:          userID,
		Positions:       positions,
		ExposureByAsset: make(map[string]decimal.Decimal),
	}
	for _, p := range positions {
		portfolio.TotalLongs = portfolio.TotalLongs.Add(p.Longs)
		portfolio.TotalShorts = portfolio.TotalShorts.Add(p.Shorts)
		portfolio.NetBase = portfolio.NetBase.Add(p.NetBase)
		portfolio.FeesPaid = portfolio.FeesPaid.Add(p.FeesPaid)
		if p.Asset != "" {
			portfolio.ExposureByAsset[p.Asset] = portfolio.ExposureByAsset[p.Asset].Add(p.Longs).Add(p.Shorts)
		}
	}
	writeJSON(w, http.StatusOK, portfolio)
}

// --- helpers ---

func (s *Service) loadPool(r *http.Request, id string) (*model.Pool, pricer, error) {
	if id == "" {
		return nil, nil, fmt.Errorf("%w: pool_id is required", ErrBadRequest)
	}
	pool, err := s.store.GetPool(r.Context(), id)
	if err != nil {
		return nil, nil, err
	}
	pr, err := newPricer(pool.Numeric, pool.Model)
	if err != nil {
		return nil, nil, err
	}
	return pool, pr, nil
}

// daysFor is the full term without a ticker, else the ticker's remaining
// days.
func (s *Service) daysFor(pool *model.Pool, ticker string) (decimal.Decimal, error) {
	if ticker == "" {
		return decimal.NewFromInt(int64(pool.PositionDurationDays)), nil
	}
	_, days, err := s.tradeTerm(pool, true, ticker, s.now())
	return days, err
}

// tradeTerm returns the bond ticker and days remaining for a trade. Opens
// mint a new bond at the full term; closes use the given ticker.
func (s *Service) tradeTerm(pool *model.Pool, closing bool, ticker string, now time.Time) (string, decimal.Decimal, error) {
	tp := &term.Pool{Symbol: pool.Symbol, Asset: pool.Asset, DurationDays: pool.PositionDurationDays}
	if !closing {
		return tp.BondTicker(now), decimal.NewFromInt(int64(pool.PositionDurationDays)), nil
	}
	bond, err := term.ParseBondTicker(ticker)
	if err != nil {
		return "", decimal.Zero, err
	}
	days, err := tp.DaysRemaining(bond, now)
	if err != nil {
		return "", decimal.Zero, err
	}
	return bond.Ticker, days, nil
}

func (s *Service) reject(w http.ResponseWriter, req TradeRequest, err error) {
	if reason := rejectionReason(err); reason != "" {
		metrics.LimitRejections.WithLabelValues(reason).Inc()
		s.log.Warn().
			Str("user", req.UserID).
			Str("pool_id", req.PoolID).
			Str("action", req.Action).
			Str("reason", reason).
			Err(err).
			Msg("trade rejected")
	}
	fail(w, err)
}

func (s *Service) positionAfter(r *http.Request, userID, poolID string) model.Position {
	positions, err := s.store.GetUserPositions(r.Context(), userID)
	if err != nil {
		s.log.Warn().Err(err).Str("user", userID).Msg("reload position")
	}
	return positionIn(positions, poolID)
}

func (s *Service) observeTrade(pool *model.Pool, act market.Action, b model.Breakdown, start time.Time) {
	a := string(act)
	metrics.TradesTotal.WithLabelValues(a).Inc()
	metrics.TradeLatency.WithLabelValues(a).Observe(time.Since(start).Seconds())
	if act.IsTrade() {
		metrics.FeesTotal.WithLabelValues(pool.ID, "curve").Add(b.CurveFee.InexactFloat64())
		metrics.FeesTotal.WithLabelValues(pool.ID, "flat").Add(b.FlatFee.InexactFloat64())
		metrics.FeesTotal.WithLabelValues(pool.ID, "governance").Add(b.GovFee().InexactFloat64())
	}
	s.observePrice(pool)
}

func (s *Service) observePrice(pool *model.Pool) {
	if pool.SpotPrice.Valid {
		metrics.PoolSpotPrice.WithLabelValues(pool.ID).Set(pool.SpotPrice.Decimal.InexactFloat64())
	}
}

func (s *Service) broadcast(kind string, pool *model.Pool, act market.Action) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(PoolUpdate{
		Type:          kind,
		PoolID:        pool.ID,
		Symbol:        pool.Symbol,
		Action:        string(act),
		SpotPrice:     pool.SpotPrice,
		APR:           pool.APR,
		ShareReserves: pool.ShareReserves,
		BondReserves:  pool.BondReserves,
		Timestamp:     pool.UpdatedAt,
	})
}

func positionIn(positions []model.Position, poolID string) model.Position {
	for _, p := range positions {
		if p.PoolID == poolID {
			return p
		}
	}
	return model.Position{PoolID: poolID}
}

func exposures(positions []model.Position) []limits.Exposure {
	out := make([]limits.Exposure, 0, len(positions))
	for _, p := range positions {
		out = append(out, limits.Exposure{PoolID: p.PoolID, Asset: p.Asset, Longs: p.Longs, Shorts: p.Shorts})
	}
	return out
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func valueOr(v *decimal.Decimal, def decimal.Decimal) decimal.Decimal {
	if v == nil {
		return def
	}
	return *v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
