package limits

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func pool(id, asset string) Exposure {
	return Exposure{PoolID: id, Asset: asset}
}

func TestCheckLimit_WithinLimits(t *testing.T) {
	limiter := NewPositionLimiter(d(1000), d(1000), d(5000))

	if err := limiter.CheckLimit(pool("p1", "DAI"), Long, d(100), nil); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_LongExceeded(t *testing.T) {
	limiter := NewPositionLimiter(d(1000), d(1000), d(5000))

	// Existing 950 longs + new 100 = 1050 > 1000.
	existing := []Exposure{{PoolID: "p1", Asset: "DAI", Longs: d(950)}}

	err := limiter.CheckLimit(pool("p1", "DAI"), Long, d(100), existing)
	if err != ErrLongLimitExceeded {
		t.Errorf("expected ErrLongLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_ShortsDoNotCountAgainstLongs(t *testing.T) {
	limiter := NewPositionLimiter(d(1000), d(1000), decimal.Zero)

	existing := []Exposure{{PoolID: "p1", Asset: "DAI", Shorts: d(990)}}

	if err := limiter.CheckLimit(pool("p1", "DAI"), Long, d(500), existing); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := limiter.CheckLimit(pool("p1", "DAI"), Short, d(20), existing); err != ErrShortLimitExceeded {
		t.Errorf("expected ErrShortLimitExceeded, got %v", err)
	}
}

func TestCheckLimit_AssetExceeded(t *testing.T) {
	limiter := NewPositionLimiter(d(1000), d(1000), d(2000))

	existing := []Exposure{
		{PoolID: "p1", Asset: "DAI", Longs: d(800)},
		{PoolID: "p2", Asset: "DAI", Shorts: d(800)},
		{PoolID: "p3", Asset: "ETH", Longs: d(900)}, // different asset
	}

	// 800 + 800 + 500 = 2100 > 2000.
	err := limiter.CheckLimit(pool("p4", "DAI"), Long, d(500), existing)
	if err != ErrAssetLimitExceeded {
		t.Errorf("expected ErrAssetLimitExceeded, got %v", err)
	}

	// ETH exposure is 900 + 500 = 1400.
	if err := limiter.CheckLimit(pool("p5", "ETH"), Long, d(500), existing); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckLimit_ZeroDisables(t *testing.T) {
	limiter := NewPositionLimiter(decimal.Zero, decimal.Zero, decimal.Zero)

	if err := limiter.CheckLimit(pool("p1", "DAI"), Short, d(1e9), nil); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestSide_String(t *testing.T) {
	if Long.String() != "long" || Short.String() != "short" {
		t.Errorf("unexpected side names %s %s", Long, Short)
	}
}
