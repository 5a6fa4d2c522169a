// Package limits implements per-user bond exposure limits.
//
// Longs and shorts are capped per pool. Pools that settle in the same base
// asset move together with that asset's variable rate, so a user's gross
// exposure across all pools of one asset is capped as well.
package limits

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrLongLimitExceeded is returned when a trade would push a user's
	// long bonds in one pool beyond the per-pool maximum.
	ErrLongLimitExceeded = errors.New("limits: per-pool long limit exceeded")

	// ErrShortLimitExceeded is returned when a trade would push a user's
	// short bonds in one pool beyond the per-pool maximum.
	ErrShortLimitExceeded = errors.New("limits: per-pool short limit exceeded")

	// ErrAssetLimitExceeded is returned when a trade would push a user's
	// gross exposure across pools of the same asset beyond the maximum.
	ErrAssetLimitExceeded = errors.New("limits: per-asset exposure limit exceeded")
)

// Side is the direction of a bond position.
type Side int

const (
	Long Side = iota
	Short
)

func (s Side) String() string {
	if s == Short {
		return "short"
	}
	return "long"
}

// Exposure is a user's open bonds in one pool.
type Exposure struct {
	PoolID string
	Asset  string
	Longs  decimal.Decimal
	Shorts decimal.Decimal
}

// Gross is longs plus shorts.
func (e Exposure) Gross() decimal.Decimal {
	return e.Longs.Abs().Add(e.Shorts.Abs())
}

// PositionLimiter enforces exposure limits. A zero limit disables that
// check.
type PositionLimiter struct {
	// MaxLongPerPool caps the long bonds a user may hold in one pool.
	MaxLongPerPool decimal.Decimal

	// MaxShortPerPool caps the short bonds a user may hold in one pool.
	MaxShortPerPool decimal.Decimal

	// MaxPerAsset caps gross bonds across every pool of one asset.
	MaxPerAsset decimal.Decimal
}

// NewPositionLimiter creates a limiter with the given caps.
func NewPositionLimiter(maxLong, maxShort, maxPerAsset decimal.Decimal) *PositionLimiter {
	return &PositionLimiter{
		MaxLongPerPool:  maxLong,
		MaxShortPerPool: maxShort,
		MaxPerAsset:     maxPerAsset,
	}
}

// CheckLimit validates whether opening bondsDelta more bonds on side in
// pool target respects the limits, given the user's existing exposures.
// Closing trades reduce exposure and should not be checked.
func (l *PositionLimiter) CheckLimit(target Exposure, side Side, bondsDelta decimal.Decimal, existing []Exposure) error {
	current := target
	for _, e := range existing {
		if e.PoolID == target.PoolID {
			current.Longs, current.Shorts = e.Longs, e.Shorts
			break
		}
	}

	// 1. Per-pool limit.
	switch side {
	case Long:
		current.Longs = current.Longs.Add(bondsDelta)
		if l.MaxLongPerPool.IsPositive() && current.Longs.GreaterThan(l.MaxLongPerPool) {
			return ErrLongLimitExceeded
		}
	case Short:
		current.Shorts = current.Shorts.Add(bondsDelta)
		if l.MaxShortPerPool.IsPositive() && current.Shorts.GreaterThan(l.MaxShortPerPool) {
			return ErrShortLimitExceeded
		}
	}

	// 2. Same-asset exposure across pools.
	if !l.MaxPerAsset.IsPositive() {
		return nil
	}
	total := current.Gross()
	for _, e := range existing {
		if e.PoolID == target.PoolID {
			continue // already counted via current above
		}
		if e.Asset == target.Asset {
			total = total.Add(e.Gross())
		}
	}
	if total.GreaterThan(l.MaxPerAsset) {
		return ErrAssetLimitExceeded
	}
	return nil
}
