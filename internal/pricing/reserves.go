package pricing

import (
	"errors"
	"fmt"

	"github.com/delvtech/agent0-sub002/internal/numeric"
	"github.com/delvtech/agent0-sub002/internal/timeutil"
)

var (
	ErrNonPositiveAPR           = errors.New("pricing: apr must be positive")
	ErrNonPositiveStretchedTime = errors.New("pricing: stretched time must be positive")
)

// Empirical calibration constants for CalcTimeStretch.
const (
	timeStretchNumerator   = 3.09396
	timeStretchCoefficient = 0.02789
)

// CalcTimeStretch returns the time stretch calibrated for apr, given as a
// fraction (0.05 for 5%).
func CalcTimeStretch[T numeric.Number[T]](apr T) (T, error) {
	if apr.IsNaN() || apr.Sign() <= 0 {
		return numeric.Zero[T](), fmt.Errorf("%w: %s", ErrNonPositiveAPR, apr)
	}
	pct := apr.Mul(numeric.Of[T](100))
	return numeric.Of[T](timeStretchNumerator).Div(numeric.Of[T](timeStretchCoefficient).Mul(pct)), nil
}

// rateGrowth is (1 + r·days/365)^(1/τ). Annualisation always uses a 365-day
// year, never the pool's normalizing constant.
func rateGrowth[T numeric.Number[T]](rate T, tr timeutil.StretchedTime[T]) (T, error) {
	tau := tr.StretchedTime()
	if tau.IsNaN() || tau.Sign() <= 0 {
		return numeric.Zero[T](), fmt.Errorf("%w: %s", ErrNonPositiveStretchedTime, tau)
	}
	one := numeric.One[T]()
	base := one.Add(rate.Mul(tr.AnnualizedTime()))
	return base.Pow(one.Div(tau)), nil
}

// CalcBondReserves returns the bond reserves that put the pool at
// targetAPR: mu·z·(1 + r·t)^(1/τ) − s.
func CalcBondReserves[T numeric.Number[T]](targetAPR T, ms MarketState[T], tr timeutil.StretchedTime[T]) (T, error) {
	g, err := rateGrowth(targetAPR, tr)
	if err != nil {
		return g, err
	}
	return ms.InitSharePrice.Mul(ms.ShareReserves).Mul(g).Sub(ms.LPTotalSupply), nil
}

// CalcInitialBondReserves is the LP-initialisation variant:
// (z/2)·(mu·(1 + r·t)^(1/τ) − c).
func CalcInitialBondReserves[T numeric.Number[T]](targetAPR T, ms MarketState[T], tr timeutil.StretchedTime[T]) (T, error) {
	g, err := rateGrowth(targetAPR, tr)
	if err != nil {
		return g, err
	}
	half := ms.ShareReserves.Div(numeric.Of[T](2))
	return half.Mul(ms.InitSharePrice.Mul(g).Sub(ms.SharePrice)), nil
}

// CalcSpotPriceFromReserves returns (mu·z / (y + s))^τ, or NaN when
// y + s ≤ 0.
func CalcSpotPriceFromReserves[T numeric.Number[T]](ms MarketState[T], tr timeutil.StretchedTime[T]) T {
	bonds := ms.BondReserves.Add(ms.LPTotalSupply)
	if bonds.IsNaN() || bonds.Sign() <= 0 {
		return numeric.NaN[T]()
	}
	ratio := ms.InitSharePrice.Mul(ms.ShareReserves).Div(bonds)
	return ratio.Pow(tr.StretchedTime())
}

// CalcAPRFromReserves derives the pool APR from its spot price.
func CalcAPRFromReserves[T numeric.Number[T]](ms MarketState[T], tr timeutil.StretchedTime[T]) T {
	return CalcAPRFromSpotPrice(CalcSpotPriceFromReserves(ms, tr), tr)
}

// CalcAPRFromSpotPrice returns (1 − p) / (p·days/365). NaN when p or the
// annualised time is not positive.
func CalcAPRFromSpotPrice[T numeric.Number[T]](price T, tr timeutil.StretchedTime[T]) T {
	years := tr.AnnualizedTime()
	if price.IsNaN() || price.Sign() <= 0 || years.IsNaN() || years.Sign() <= 0 {
		return numeric.NaN[T]()
	}
	return numeric.One[T]().Sub(price).Div(price.Mul(years))
}

// CalcSpotPriceFromAPR returns 1 / (1 + apr·days/365).
func CalcSpotPriceFromAPR[T numeric.Number[T]](apr T, tr timeutil.StretchedTime[T]) T {
	one := numeric.One[T]()
	return one.Div(one.Add(apr.Mul(tr.AnnualizedTime())))
}
