package trade_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/delvtech/agent0-sub002/internal/config"
	"github.com/delvtech/agent0-sub002/internal/limits"
	"github.com/delvtech/agent0-sub002/internal/model"
	"github.com/delvtech/agent0-sub002/internal/store"
	"github.com/delvtech/agent0-sub002/internal/trade"
)

var testNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

const openTicker = "PT-DAI-20270101"

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func near(a, b decimal.Decimal, tol float64) bool {
	return a.Sub(b).Abs().LessThanOrEqual(d(tol))
}

// newTestEnv creates a test Service with in-memory store and chi router.
func newTestEnv(t *testing.T) (*trade.Service, *store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	limiter := limits.NewPositionLimiter(d(5000), d(5000), d(8000))
	svc := trade.NewService(ms, limiter, config.Default().Pools, nil)
	svc.SetClock(func() time.Time { return testNow })

	r := chi.NewRouter()
	svc.Routes(r)
	return svc, ms, r
}

func do(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[V any](t *testing.T, w *httptest.ResponseRecorder) V {
	t.Helper()
	var v V
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

// seedPool initializes a pool through the API.
func seedPool(t *testing.T, router chi.Router, req trade.CreatePoolRequest) model.Pool {
	t.Helper()
	if req.UserID == "" {
		req.UserID = "lp1"
	}
	if req.Symbol == "" && req.Asset == "" {
		req.Symbol = "HD-DAI-365D"
	}
	if req.TargetAPR.IsZero() {
		req.TargetAPR = d(0.05)
	}
	if req.Contribution.IsZero() {
		req.Contribution = d(1_000_000)
	}
	w := do(t, router, "POST", "/api/v1/pools", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decode[model.Pool](t, w)
}

func doTrade(t *testing.T, router chi.Router, req trade.TradeRequest) *httptest.ResponseRecorder {
	t.Helper()
	if req.UserID == "" {
		req.UserID = "trader1"
	}
	return do(t, router, "POST", "/api/v1/trade", req)
}

func mustTrade(t *testing.T, router chi.Router, req trade.TradeRequest) trade.TradeResponse {
	t.Helper()
	w := doTrade(t, router, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	return decode[trade.TradeResponse](t, w)
}

// --- Pool creation ---

func TestCreatePool_QuotesTargetAPR(t *testing.T) {
	_, ms, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{})

	if pool.ID == "" || pool.Asset != "DAI" || pool.PositionDurationDays != 365 {
		t.Fatalf("unexpected pool %+v", pool)
	}
	if !pool.APR.Valid || !near(pool.APR.Decimal, d(0.05), 1e-9) {
		t.Errorf("expected apr ≈ 0.05, got %v", pool.APR)
	}
	if !pool.SpotPrice.Valid || !pool.SpotPrice.Decimal.LessThan(d(1)) {
		t.Errorf("expected a spot price below 1, got %v", pool.SpotPrice)
	}
	if !pool.TimeStretch.IsPositive() {
		t.Errorf("expected derived time stretch, got %s", pool.TimeStretch)
	}
	if !pool.CurveFee.Equal(d(0.1)) || !pool.FlatFee.Equal(d(0.05)) {
		t.Errorf("expected default fees, got %s/%s", pool.CurveFee, pool.FlatFee)
	}

	entries, _ := ms.GetLedgerEntriesByPool(context.Background(), pool.ID)
	if len(entries) != 1 || entries[0].Action != "initialize" || entries[0].UserID != "lp1" {
		t.Fatalf("expected one initialize entry, got %+v", entries)
	}
	if !entries[0].Base.Equal(d(-1_000_000)) || !entries[0].LPShares.Equal(pool.LPTotalSupply) {
		t.Errorf("unexpected initialize deltas %+v", entries[0])
	}
}

func TestCreatePool_AssetUsesDefaultDuration(t *testing.T) {
	_, _, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{Asset: "USDC"})

	if pool.Symbol != "HD-USDC-365D" {
		t.Errorf("expected HD-USDC-365D, got %s", pool.Symbol)
	}
}

func TestCreatePool_Duplicate(t *testing.T) {
	_, _, router := newTestEnv(t)
	seedPool(t, router, trade.CreatePoolRequest{})

	w := do(t, router, "POST", "/api/v1/pools", trade.CreatePoolRequest{
		UserID: "lp2", Symbol: "HD-DAI-365D", TargetAPR: d(0.05), Contribution: d(100),
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreatePool_Invalid(t *testing.T) {
	tests := []struct {
		name string
		req  trade.CreatePoolRequest
	}{
		{"no user", trade.CreatePoolRequest{Symbol: "HD-DAI-365D", TargetAPR: d(0.05), Contribution: d(100)}},
		{"bad symbol", trade.CreatePoolRequest{UserID: "u", Symbol: "DAI-365", TargetAPR: d(0.05), Contribution: d(100)}},
		{"zero apr", trade.CreatePoolRequest{UserID: "u", Symbol: "HD-DAI-365D", Contribution: d(100)}},
		{"negative apr", trade.CreatePoolRequest{UserID: "u", Symbol: "HD-DAI-365D", TargetAPR: d(-0.01), Contribution: d(100)}},
		{"no contribution", trade.CreatePoolRequest{UserID: "u", Symbol: "HD-DAI-365D", TargetAPR: d(0.05)}},
		{"unknown model", trade.CreatePoolRequest{UserID: "u", Symbol: "HD-DAI-365D", Model: "constant_product", TargetAPR: d(0.05), Contribution: d(100)}},
		{"fee above one", trade.CreatePoolRequest{UserID: "u", Symbol: "HD-DAI-365D", CurveFee: ptr(d(2)), TargetAPR: d(0.05), Contribution: d(100)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, router := newTestEnv(t)
			w := do(t, router, "POST", "/api/v1/pools", tc.req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func ptr(v decimal.Decimal) *decimal.Decimal { return &v }

func TestListAndGetPool(t *testing.T) {
	_, _, router := newTestEnv(t)
	dai := seedPool(t, router, trade.CreatePoolRequest{})
	seedPool(t, router, trade.CreatePoolRequest{Symbol: "HD-ETH-30D"})

	all := decode[[]model.Pool](t, do(t, router, "GET", "/api/v1/pools", nil))
	if len(all) != 2 {
		t.Errorf("expected 2 pools, got %d", len(all))
	}
	eth := decode[[]model.Pool](t, do(t, router, "GET", "/api/v1/pools?asset=ETH", nil))
	if len(eth) != 1 || eth[0].PositionDurationDays != 30 {
		t.Errorf("expected the ETH pool, got %+v", eth)
	}

	w := do(t, router, "GET", "/api/v1/pools/"+dai.ID, nil)
	if w.Code != http.StatusOK || decode[model.Pool](t, w).Symbol != "HD-DAI-365D" {
		t.Errorf("unexpected get: %d %s", w.Code, w.Body.String())
	}
	if w := do(t, router, "GET", "/api/v1/pools/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// --- Trades ---

func TestOpenLong(t *testing.T) {
	_, _, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{})

	resp := mustTrade(t, router, trade.TradeRequest{PoolID: pool.ID, Action: "open_long", Amount: d(1000)})

	if resp.TradeID == "" {
		t.Error("expected non-empty trade_id")
	}
	if resp.BondTicker != openTicker {
		t.Errorf("expected ticker %s, got %s", openTicker, resp.BondTicker)
	}
	if !resp.Base.Equal(d(-1000)) {
		t.Errorf("expected -1000 base, got %s", resp.Base)
	}
	// Bonds trade at a discount, so a long receives more face value than it pays.
	if !resp.Longs.GreaterThan(d(1000)) || !resp.Longs.LessThan(d(1100)) {
		t.Errorf("unexpected longs %s", resp.Longs)
	}
	if !resp.Breakdown.CurveFee.IsPositive() {
		t.Errorf("expected a curve fee, got %s", resp.Breakdown.CurveFee)
	}
	if !resp.SpotPrice.Decimal.GreaterThan(pool.SpotPrice.Decimal) {
		t.Errorf("spot price should rise after a long: %s -> %s", pool.SpotPrice.Decimal, resp.SpotPrice.Decimal)
	}
	if !resp.APR.Decimal.LessThan(pool.APR.Decimal) {
		t.Errorf("apr should fall after a long: %s -> %s", pool.APR.Decimal, resp.APR.Decimal)
	}
	if !resp.Position.Longs.Equal(resp.Longs) {
		t.Errorf("position should show %s longs, got %s", resp.Longs, resp.Position.Longs)
	}
}

func TestCloseLong_ReturnsLessThanPaid(t *testing.T) {
	_, ms, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{})
	open := mustTrade(t, router, trade.TradeRequest{PoolID: pool.ID, Action: "open_long", Amount: d(1000)})

	closeResp := mustTrade(t, router, trade.TradeRequest{
		PoolID: pool.ID, Action: "close_long", Amount: open.Longs, BondTicker: openTicker,
	})

	if !closeResp.Base.IsPositive() || !closeResp.Base.LessThan(d(1000)) {
		t.Errorf("fees should make an immediate round trip lose base, got %s", closeResp.Base)
	}
	if !closeResp.Position.Longs.IsZero() {
		t.Errorf("expected flat position, got %s longs", closeResp.Position.Longs)
	}

	after, _ := ms.GetPool(context.Background(), pool.ID)
	if !after.LongsOutstanding.IsZero() || !after.BaseBuffer.IsZero() {
		t.Errorf("expected buffers back to zero, got %s/%s", after.LongsOutstanding, after.BaseBuffer)
	}
	if !after.GovFeesAccrued.IsPositive() {
		t.Errorf("expected governance fees to accrue, got %s", after.GovFeesAccrued)
	}
}

func TestCloseLong_MaturedIsFlat(t *testing.T) {
	_, _, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{})
	open := mustTrade(t, router, trade.TradeRequest{PoolID: pool.ID, Action: "open_long", Amount: d(1000)})

	resp := mustTrade(t, router, trade.TradeRequest{
		PoolID: pool.ID, Action: "close_long", Amount: open.Longs, BondTicker: "PT-DAI-20200101",
	})

	// Matured bonds redeem 1:1 less the flat fee and its governance share.
	want := open.Longs.Mul(d(1 - 0.05 - 0.005))
	if !near(resp.Base, want, 1e-6) {
		t.Errorf("expected %s base, got %s", want, resp.Base)
	}
	if !resp.Breakdown.CurveFee.IsZero() {
		t.Errorf("matured trade should not touch the curve, fee %s", resp.Breakdown.CurveFee)
	}
}

func TestCloseLong_Rejected(t *testing.T) {
	_, _, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{})
	open := mustTrade(t, router, trade.TradeRequest{PoolID: pool.ID, Action: "open_long", Amount: d(1000)})

	tests := []struct {
		name string
		req  trade.TradeRequest
		code int
	}{
		{"more than held", trade.TradeRequest{PoolID: pool.ID, Action: "close_long", Amount: open.Longs.Add(d(1)), BondTicker: openTicker}, http.StatusConflict},
		{"no ticker", trade.TradeRequest{PoolID: pool.ID, Action: "close_long", Amount: d(1)}, http.StatusBadRequest},
		{"bad ticker", trade.TradeRequest{PoolID: pool.ID, Action: "close_long", Amount: d(1), BondTicker: "PT-DAI-2027"}, http.StatusBadRequest},
		{"other asset", trade.TradeRequest{PoolID: pool.ID, Action: "close_long", Amount: d(1), BondTicker: "PT-ETH-20270101"}, http.StatusBadRequest},
		{"someone else", trade.TradeRequest{UserID: "trader2", PoolID: pool.ID, Action: "close_long", Amount: d(1), BondTicker: openTicker}, http.StatusConflict},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if w := doTrade(t, router, tc.req); w.Code != tc.code {
				t.Errorf("expected %d, got %d: %s", tc.code, w.Code, w.Body.String())
			}
		})
	}
}

func TestOpenShort(t *testing.T) {
	_, _, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{})

	resp := mustTrade(t, router, trade.TradeRequest{PoolID: pool.ID, Action: "open_short", Amount: d(1000)})

	if !resp.Shorts.Equal(d(1000)) {
		t.Errorf("expected 1000 shorts, got %s", resp.Shorts)
	}
	// The deposit is the face value less the sale proceeds.
	if !resp.Base.IsNegative() || !resp.Base.GreaterThan(d(-1000)) {
		t.Errorf("unexpected deposit %s", resp.Base)
	}
	if !resp.SpotPrice.Decimal.LessThan(pool.SpotPrice.Decimal) {
		t.Errorf("spot price should fall after a short: %s -> %s", pool.SpotPrice.Decimal, resp.SpotPrice.Decimal)
	}

	closeResp := mustTrade(t, router, trade.TradeRequest{
		PoolID: pool.ID, Action: "close_short", Amount: d(1000), BondTicker: openTicker,
	})
	if closeResp.Base.IsNegative() || !closeResp.Base.LessThan(resp.Base.Neg()) {
		t.Errorf("closing should return less than the deposit, got %s of %s", closeResp.Base, resp.Base.Neg())
	}
	if !closeResp.Position.Shorts.IsZero() {
		t.Errorf("expected flat position, got %s shorts", closeResp.Position.Shorts)
	}
}

func TestOpenShort_MaxDeposit(t *testing.T) {
	_, ms, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{})

	w := doTrade(t, router, trade.TradeRequest{PoolID: pool.ID, Action: "open_short", Amount: d(1000), MaxDeposit: d(1)})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	after, _ := ms.GetPool(context.Background(), pool.ID)
	if !after.BondReserves.Equal(pool.BondReserves) {
		t.Errorf("rejected trade must not change reserves: %s -> %s", pool.BondReserves, after.BondReserves)
	}
}

func TestOpenLong_ExposureLimit(t *testing.T) {
	_, ms, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{})

	w := doTrade(t, router, trade.TradeRequest{PoolID: pool.ID, Action: "open_long", Amount: d(10_000)})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	after, _ := ms.GetPool(context.Background(), pool.ID)
	if !after.ShareReserves.Equal(pool.ShareReserves) {
		t.Errorf("rejected trade must not change reserves")
	}
	entries, _ := ms.GetLedgerEntriesByPool(context.Background(), pool.ID)
	if len(entries) != 1 {
		t.Errorf("rejected trade must not be recorded, got %d entries", len(entries))
	}
}

func TestOpenLong_ExceedsCapacity(t *testing.T) {
	_, _, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{Symbol: "HD-USDC-365D", Contribution: d(1000)})

	bounds := decode[model.MaxTrades](t, do(t, router, "GET", "/api/v1/pools/"+pool.ID+"/max", nil))
	w := doTrade(t, router, trade.TradeRequest{PoolID: pool.ID, Action: "open_long", Amount: bounds.MaxLongBase.Add(d(1))})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

func TestOpenShort_AtReportedMax(t *testing.T) {
	_, _, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{Symbol: "HD-USDC-365D", Contribution: d(1000)})

	w := do(t, router, "GET", "/api/v1/pools/"+pool.ID+"/max", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	bounds := decode[model.MaxTrades](t, w)
	if !bounds.MaxShortBonds.IsPositive() {
		t.Fatalf("expected a positive short bound, got %+v", bounds)
	}

	resp := mustTrade(t, router, trade.TradeRequest{PoolID: pool.ID, Action: "open_short", Amount: bounds.MaxShortBonds})
	if !resp.Position.Shorts.Equal(bounds.MaxShortBonds) {
		t.Errorf("expected shorts=%s, got %s", bounds.MaxShortBonds, resp.Position.Shorts)
	}
}

func TestExecuteTrade_InvalidInput(t *testing.T) {
	_, _, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{})

	tests := []struct {
		name string
		req  trade.TradeRequest
		code int
	}{
		{"unknown action", trade.TradeRequest{PoolID: pool.ID, Action: "buy", Amount: d(1)}, http.StatusBadRequest},
		{"liquidity action", trade.TradeRequest{PoolID: pool.ID, Action: "add_liquidity", Amount: d(1)}, http.StatusBadRequest},
		{"zero amount", trade.TradeRequest{PoolID: pool.ID, Action: "open_long"}, http.StatusBadRequest},
		{"negative amount", trade.TradeRequest{PoolID: pool.ID, Action: "open_long", Amount: d(-5)}, http.StatusBadRequest},
		{"dust", trade.TradeRequest{PoolID: pool.ID, Action: "open_long", Amount: d(1e-20)}, http.StatusBadRequest},
		{"no pool", trade.TradeRequest{Action: "open_long", Amount: d(1)}, http.StatusBadRequest},
		{"missing pool", trade.TradeRequest{PoolID: "missing", Action: "open_long", Amount: d(1)}, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if w := doTrade(t, router, tc.req); w.Code != tc.code {
				t.Errorf("expected %d, got %d: %s", tc.code, w.Code, w.Body.String())
			}
		})
	}

	req := httptest.NewRequest("POST", "/api/v1/trade", bytes.NewBufferString("{"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", w.Code)
	}
}

// --- Quotes, prices and capacity ---

func TestQuote_DoesNotChangeState(t *testing.T) {
	_, ms, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{})

	w := do(t, router, "POST", "/api/v1/quote", trade.QuoteRequest{PoolID: pool.ID, Token: "BASE", Amount: d(1000)})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	q := decode[trade.QuoteResponse](t, w)
	if q.Direction != "out_given_in" || !q.DaysRemaining.Equal(d(365)) {
		t.Errorf("unexpected defaults %s %s", q.Direction, q.DaysRemaining)
	}
	if !q.UserDBase.Equal(d(-1000)) || !q.UserDBonds.IsPositive() {
		t.Errorf("unexpected user deltas %s/%s", q.UserDBase, q.UserDBonds)
	}
	if !q.Fee.Equal(q.Breakdown.CurveFee.Add(q.Breakdown.FlatFee)) {
		t.Errorf("fee should sum curve and flat fees")
	}

	// Executing the same trade fills at the quote.
	open := mustTrade(t, router, trade.TradeRequest{PoolID: pool.ID, Action: "open_long", Amount: d(1000)})
	if !near(open.Longs, q.UserDBonds, 1e-9) {
		t.Errorf("quote %s should match fill %s", q.UserDBonds, open.Longs)
	}

	after, _ := ms.GetPool(context.Background(), pool.ID)
	if after.ShareReserves.Equal(pool.ShareReserves) {
		t.Error("trade should have moved reserves")
	}
}

func TestQuote_InGivenOut(t *testing.T) {
	_, _, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{})

	w := do(t, router, "POST", "/api/v1/quote", trade.QuoteRequest{
		PoolID: pool.ID, Direction: "in_given_out", Token: "PT", Amount: d(1000),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	q := decode[trade.QuoteResponse](t, w)
	if !q.UserDBonds.Equal(d(1000)) || !q.UserDBase.IsNegative() || !q.UserDBase.GreaterThan(d(-1000)) {
		t.Errorf("unexpected user deltas %s/%s", q.UserDBase, q.UserDBonds)
	}
}

func TestQuote_Invalid(t *testing.T) {
	_, _, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{})

	for name, req := range map[string]trade.QuoteRequest{
		"token":     {PoolID: pool.ID, Token: "ETH", Amount: d(1)},
		"direction": {PoolID: pool.ID, Direction: "sideways", Token: "PT", Amount: d(1)},
		"amount":    {PoolID: pool.ID, Token: "PT", Amount: d(0)},
	} {
		if w := do(t, router, "POST", "/api/v1/quote", req); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d: %s", name, w.Code, w.Body.String())
		}
	}
}

func TestGetPrice(t *testing.T) {
	_, _, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{})

	full := decode[trade.PriceResponse](t, do(t, router, "GET", "/api/v1/pools/"+pool.ID+"/price", nil))
	if !full.SpotPrice.Valid || !full.SpotPrice.Decimal.Equal(pool.SpotPrice.Decimal) {
		t.Errorf("expected pool spot price %s, got %v", pool.SpotPrice.Decimal, full.SpotPrice)
	}

	// A matured bond prices at par and has no defined rate.
	w := do(t, router, "GET", "/api/v1/pools/"+pool.ID+"/price?bond_ticker=PT-DAI-20200101", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"apr":null`)) {
		t.Errorf("expected null apr, got %s", w.Body.String())
	}
	matured := decode[trade.PriceResponse](t, w)
	if !matured.DaysRemaining.IsZero() || !matured.SpotPrice.Decimal.Equal(d(1)) {
		t.Errorf("expected par at zero days, got %+v", matured)
	}
}

func TestGetMax(t *testing.T) {
	_, _, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{})

	w := do(t, router, "GET", "/api/v1/pools/"+pool.ID+"/max", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	mt := decode[model.MaxTrades](t, w)
	if !mt.MaxLongBase.IsPositive() || !mt.MaxLongBonds.IsPositive() {
		t.Errorf("unexpected long bound %+v", mt)
	}
	if !mt.MaxShortBonds.IsPositive() || !mt.MaxShortBase.IsPositive() {
		t.Errorf("unexpected short bound %+v", mt)
	}

	ys := seedPool(t, router, trade.CreatePoolRequest{Symbol: "HD-ETH-365D", Model: "yieldspace"})
	if w := do(t, router, "GET", "/api/v1/pools/"+ys.ID+"/max", nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for yieldspace, got %d", w.Code)
	}
}

func TestFixedPool_MatchesFloat(t *testing.T) {
	_, _, router := newTestEnv(t)
	fl := seedPool(t, router, trade.CreatePoolRequest{Symbol: "HD-DAI-365D"})
	fx := seedPool(t, router, trade.CreatePoolRequest{Symbol: "HD-USDC-365D", Numeric: "fixed"})

	if fx.Numeric != "fixed" || !near(fx.APR.Decimal, fl.APR.Decimal, 1e-8) {
		t.Errorf("fixed apr %s should match float apr %s", fx.APR.Decimal, fl.APR.Decimal)
	}

	a := mustTrade(t, router, trade.TradeRequest{PoolID: fl.ID, Action: "open_long", Amount: d(1000)})
	b := mustTrade(t, router, trade.TradeRequest{PoolID: fx.ID, Action: "open_long", Amount: d(1000)})
	if !near(a.Longs, b.Longs, 1e-6) {
		t.Errorf("fixed longs %s should match float longs %s", b.Longs, a.Longs)
	}
}

// --- Liquidity ---

func TestLiquidity_AddThenRemove(t *testing.T) {
	_, _, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{})

	w := do(t, router, "POST", "/api/v1/liquidity", trade.LiquidityRequest{UserID: "lp2", PoolID: pool.ID, Action: "add", Amount: d(10_000)})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	add := decode[trade.LiquidityResponse](t, w)
	if !add.Base.Equal(d(-10_000)) || !add.LPShares.IsPositive() {
		t.Errorf("unexpected add deltas %s/%s", add.Base, add.LPShares)
	}
	if !near(add.Pool.LPTotalSupply, pool.LPTotalSupply.Add(add.LPShares), 1e-6) {
		t.Errorf("lp supply should grow by %s", add.LPShares)
	}

	half := add.LPShares.Div(d(2))
	w = do(t, router, "POST", "/api/v1/liquidity", trade.LiquidityRequest{UserID: "lp2", PoolID: pool.ID, Action: "remove", Amount: half})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	rem := decode[trade.LiquidityResponse](t, w)
	if !rem.Base.IsPositive() || !near(rem.LPShares, half.Neg(), 1e-9) {
		t.Errorf("unexpected remove deltas %s/%s", rem.Base, rem.LPShares)
	}
	if !near(rem.Position.LPShares, add.LPShares.Sub(half), 1e-9) {
		t.Errorf("expected %s lp shares left, got %s", add.LPShares.Sub(half), rem.Position.LPShares)
	}
}

func TestLiquidity_Rejected(t *testing.T) {
	_, _, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{})

	tests := []struct {
		name string
		req  trade.LiquidityRequest
		code int
	}{
		{"remove more than held", trade.LiquidityRequest{UserID: "lp2", PoolID: pool.ID, Action: "remove", Amount: d(1)}, http.StatusConflict},
		{"unknown action", trade.LiquidityRequest{UserID: "lp1", PoolID: pool.ID, Action: "swap", Amount: d(1)}, http.StatusBadRequest},
		{"no user", trade.LiquidityRequest{PoolID: pool.ID, Action: "add", Amount: d(1)}, http.StatusBadRequest},
		{"missing pool", trade.LiquidityRequest{UserID: "lp1", PoolID: "missing", Action: "add", Amount: d(1)}, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if w := do(t, router, "POST", "/api/v1/liquidity", tc.req); w.Code != tc.code {
				t.Errorf("expected %d, got %d: %s", tc.code, w.Code, w.Body.String())
			}
		})
	}
}

// --- History and portfolio ---

func TestHistoryAndPortfolio(t *testing.T) {
	_, _, router := newTestEnv(t)
	pool := seedPool(t, router, trade.CreatePoolRequest{})
	long := mustTrade(t, router, trade.TradeRequest{PoolID: pool.ID, Action: "open_long", Amount: d(1000)})
	short := mustTrade(t, router, trade.TradeRequest{PoolID: pool.ID, Action: "open_short", Amount: d(500)})

	history := decode[[]model.LedgerEntry](t, do(t, router, "GET", "/api/v1/pools/"+pool.ID+"/history", nil))
	if len(history) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(history))
	}
	if history[1].Action != "open_long" || history[1].BondTicker != openTicker {
		t.Errorf("unexpected entry %+v", history[1])
	}
	if w := do(t, router, "GET", "/api/v1/pools/missing/history", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	p := decode[model.Portfolio](t, do(t, router, "GET", "/api/v1/portfolio/trader1", nil))
	if len(p.Positions) != 1 {
		t.Fatalf("expected one position, got %d", len(p.Positions))
	}
	if !p.TotalLongs.Equal(long.Longs) || !p.TotalShorts.Equal(d(500)) {
		t.Errorf("unexpected totals %s/%s", p.TotalLongs, p.TotalShorts)
	}
	if !p.NetBase.Equal(long.Base.Add(short.Base)) {
		t.Errorf("expected net base %s, got %s", long.Base.Add(short.Base), p.NetBase)
	}
	if !p.ExposureByAsset["DAI"].Equal(long.Longs.Add(d(500))) {
		t.Errorf("unexpected DAI exposure %s", p.ExposureByAsset["DAI"])
	}
	if !p.FeesPaid.IsPositive() {
		t.Errorf("expected fees paid, got %s", p.FeesPaid)
	}

	empty := decode[model.Portfolio](t, do(t, router, "GET", "/api/v1/portfolio/nobody", nil))
	if len(empty.Positions) != 0 || !empty.NetBase.IsZero() {
		t.Errorf("expected empty portfolio, got %+v", empty)
	}
}

// ledgerDown fails every combined pool and ledger write.
type ledgerDown struct{ store.Store }

func (ledgerDown) RecordAction(context.Context, *model.Pool, *model.LedgerEntry) error {
	return errors.New("ledger unavailable")
}

func TestExecuteTrade_FailedLedgerLeavesPoolUntouched(t *testing.T) {
	ms := store.NewMemoryStore()
	svc := trade.NewService(ledgerDown{ms}, nil, config.Default().Pools, nil)
	svc.SetClock(func() time.Time { return testNow })
	router := chi.NewRouter()
	svc.Routes(router)

	pool := seedPool(t, router, trade.CreatePoolRequest{})
	w := doTrade(t, router, trade.TradeRequest{PoolID: pool.ID, Action: "open_long", Amount: d(1000)})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", w.Code, w.Body.String())
	}

	after, err := ms.GetPool(context.Background(), pool.ID)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if !after.ShareReserves.Equal(pool.ShareReserves) || !after.BondReserves.Equal(pool.BondReserves) {
		t.Errorf("expected unchanged reserves, got %s/%s", after.ShareReserves, after.BondReserves)
	}
	if entries, _ := ms.GetLedgerEntriesByUser(context.Background(), "trader1"); len(entries) != 0 {
		t.Errorf("expected no trader entries, got %d", len(entries))
	}
}
