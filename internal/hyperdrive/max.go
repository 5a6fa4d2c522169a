package hyperdrive

import (
	"errors"

	"github.com/delvtech/agent0-sub002/internal/numeric"
	"github.com/delvtech/agent0-sub002/internal/pricing"
	"github.com/delvtech/agent0-sub002/internal/timeutil"
	"github.com/delvtech/agent0-sub002/internal/yieldspace"
)

// MaxTrade is the base and bond size of the largest trade a pool can
// absorb in one direction.
type MaxTrade[T numeric.Number[T]] struct {
	Base  T
	Bonds T
}

// drainFraction keeps a max trade one precision threshold short of
// emptying a reserve, where the invariant has no slack for rounding.
func drainFraction[T numeric.Number[T]]() T {
	return numeric.One[T]().Sub(numeric.Of[T](pricing.PrecisionThreshold))
}

// GetMaxLong returns the largest long the pool supports: the fee-free base
// needed to buy every bond not reserved by the bond buffer, and the bonds
// that base buys after fees. A pool with no free bonds returns the zero
// MaxTrade.
func (m *Model[T]) GetMaxLong(ms pricing.MarketState[T], tr timeutil.StretchedTime[T]) (MaxTrade[T], error) {
	free := ms.BondReserves.Sub(ms.BondBuffer)
	if free.IsNaN() || free.Sign() <= 0 {
		return MaxTrade[T]{}, nil
	}
	out := pricing.NewQuantity(free.Mul(drainFraction[T]()), pricing.PrincipalToken)
	cost, err := m.CalcInGivenOut(out, ms, tr)
	if err != nil {
		return MaxTrade[T]{}, err
	}
	// The curve fee on a purchase is taken from the bonds out, so the curve
	// absorbs the fee-free base amount.
	base := cost.Breakdown.WithoutFee
	buy := func(b T) (pricing.TradeResult[T], error) {
		return m.CalcOutGivenIn(pricing.NewQuantity(b, pricing.Base), ms, tr)
	}
	bought, err := buy(base)
	if errors.Is(err, yieldspace.ErrExceedsReserves) {
		base, bought, err = largestTrade(base, buy)
	}
	if err != nil {
		return MaxTrade[T]{}, err
	}
	return MaxTrade[T]{Base: base, Bonds: bought.Breakdown.WithFee}, nil
}

// GetMaxShort returns the largest short the pool supports: the bonds whose
// fee-free sale takes out every share not reserved by the base buffer, and
// the base those bonds fetch after fees. A pool with no free shares returns
// the zero MaxTrade.
func (m *Model[T]) GetMaxShort(ms pricing.MarketState[T], tr timeutil.StretchedTime[T]) (MaxTrade[T], error) {
	free := ms.ShareReserves.Sub(ms.BaseBuffer.Div(ms.SharePrice))
	if free.IsNaN() || free.Sign() <= 0 {
		return MaxTrade[T]{}, nil
	}
	out := pricing.NewQuantity(free.Mul(ms.SharePrice).Mul(drainFraction[T]()), pricing.Base)
	cost, err := m.CalcInGivenOut(out, ms, tr)
	if err != nil {
		return MaxTrade[T]{}, err
	}
	// The curve fee on a sale is taken from the base out, so the curve
	// absorbs the fee-free bond amount.
	bonds := cost.Breakdown.WithoutFee
	sell := func(b T) (pricing.TradeResult[T], error) {
		return m.CalcOutGivenIn(pricing.NewQuantity(b, pricing.PrincipalToken), ms, tr)
	}
	sold, err := sell(bonds)
	if errors.Is(err, yieldspace.ErrExceedsReserves) {
		bonds, sold, err = largestTrade(bonds, sell)
	}
	if err != nil {
		return MaxTrade[T]{}, err
	}
	return MaxTrade[T]{Base: sold.Breakdown.WithFee, Bonds: bonds}, nil
}

// largestTrade bisects (0, hi) for the largest amount trade accepts. Before
// maturity the flat leg redeems bonds at face value, which moves the curve's
// reserve limit away from the fee-free estimate.
func largestTrade[T numeric.Number[T]](hi T, trade func(T) (pricing.TradeResult[T], error)) (T, pricing.TradeResult[T], error) {
	const steps = 60
	half := numeric.Of[T](0.5)
	lo := numeric.Zero[T]()
	var best pricing.TradeResult[T]
	found := false
	for i := 0; i < steps; i++ {
		mid := lo.Add(hi).Mul(half)
		r, err := trade(mid)
		switch {
		case err == nil:
			lo, best, found = mid, r, true
		case errors.Is(err, yieldspace.ErrExceedsReserves):
			hi = mid
		default:
			return lo, best, err
		}
	}
	if !found {
		return numeric.Zero[T](), pricing.TradeResult[T]{}, nil
	}
	return lo, best, nil
}
