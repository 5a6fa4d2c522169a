// Package yieldspace implements the YieldSpace constant-power-sum AMM:
//
//	k = (c/mu)·(mu·z)^(1−τ) + (y+s)^(1−τ)
//
// where z and y are the share and bond reserves, s is the LP supply, c and
// mu are the current and initial share prices, and τ is the stretched time
// remaining.
//
// The invariant is always evaluated in shopspring/decimal at
// numeric.WidePrecision digits, for both numeric variants. Exponents close
// to 0 and 1 amplify float64 rounding error enough to break monotonicity
// for small trades against large reserves.
package yieldspace

import (
	"errors"
	"fmt"

	"github.com/delvtech/agent0-sub002/internal/numeric"
	"github.com/delvtech/agent0-sub002/internal/pricing"
	"github.com/delvtech/agent0-sub002/internal/timeutil"
)

// ErrExceedsReserves is returned when the curve cannot absorb a trade, e.g.
// asking for more bonds than y + s.
var ErrExceedsReserves = errors.New("yieldspace: trade exceeds curve reserves")

// Name is returned by ModelName.
const Name = "YieldSpace"

// Model prices trades directly on the YieldSpace curve. It is stateless and
// safe for concurrent use.
type Model[T numeric.Number[T]] struct{}

var (
	_ pricing.Model[numeric.Float] = (*Model[numeric.Float])(nil)
	_ pricing.Model[numeric.Fixed] = (*Model[numeric.Fixed])(nil)
)

// New creates a YieldSpace model over numeric variant T.
func New[T numeric.Number[T]]() *Model[T] {
	return &Model[T]{}
}

func (m *Model[T]) ModelName() string { return Name }

// CalcInGivenOut prices what the trader pays to receive out. Inputs and
// outputs are validated.
func (m *Model[T]) CalcInGivenOut(out pricing.Quantity[T], ms pricing.MarketState[T], tr timeutil.StretchedTime[T]) (pricing.TradeResult[T], error) {
	if err := pricing.CheckInputs(out, ms, tr); err != nil {
		return pricing.TradeResult[T]{}, err
	}
	r, err := m.CurveInGivenOut(out, ms, tr)
	if err != nil {
		return pricing.TradeResult[T]{}, err
	}
	if err := pricing.CheckOutputs(r, pricing.DirectionIn); err != nil {
		return pricing.TradeResult[T]{}, err
	}
	return r, nil
}

// CalcOutGivenIn prices what the trader receives for paying in. Inputs and
// outputs are validated.
func (m *Model[T]) CalcOutGivenIn(in pricing.Quantity[T], ms pricing.MarketState[T], tr timeutil.StretchedTime[T]) (pricing.TradeResult[T], error) {
	if err := pricing.CheckInputs(in, ms, tr); err != nil {
		return pricing.TradeResult[T]{}, err
	}
	r, err := m.CurveOutGivenIn(in, ms, tr)
	if err != nil {
		return pricing.TradeResult[T]{}, err
	}
	if err := pricing.CheckOutputs(r, pricing.DirectionOut); err != nil {
		return pricing.TradeResult[T]{}, err
	}
	return r, nil
}

// CurveInGivenOut is CalcInGivenOut without input or output checks. It is
// the entry point for models that compose the curve with other legs and
// validate the combined trade themselves.
func (m *Model[T]) CurveInGivenOut(out pricing.Quantity[T], ms pricing.MarketState[T], tr timeutil.StretchedTime[T]) (pricing.TradeResult[T], error) {
	te := numeric.One[T]().Sub(tr.StretchedTime())
	p := pricing.CalcSpotPriceFromReserves(ms, tr)
	amount := out.Amount

	var (
		wfos, wf T
		res      pricing.TradeResult[T]
	)
	switch out.Unit {
	case pricing.Base:
		dShares := amount.Div(ms.SharePrice)
		wfos = numeric.One[T]().Div(p).Mul(ms.SharePrice).Mul(dShares)
		wf = CalcBondsInGivenSharesOut(ms.ShareReserves, ms.BondReserves, ms.LPTotalSupply,
			dShares, te, ms.SharePrice, ms.InitSharePrice)
	case pricing.PrincipalToken:
		wfos = p.Mul(amount)
		wf = CalcSharesInGivenBondsOut(ms.ShareReserves, ms.BondReserves, ms.LPTotalSupply,
			amount, te, ms.SharePrice, ms.InitSharePrice).Mul(ms.SharePrice)
	default:
		return res, fmt.Errorf("%w: %q", pricing.ErrInvalidToken, out.Unit)
	}
	if wf.IsNaN() {
		return res, fmt.Errorf("%w: %s out", ErrExceedsReserves, out)
	}

	fee, gov := pricing.CurveFee(wfos, amount, ms)
	withFee := wf.Add(fee).Add(gov)
	res.Breakdown = pricing.TradeBreakdown[T]{
		WithoutFeeOrSlippage: wfos,
		WithoutFee:           wf,
		WithFee:              withFee,
		CurveFee:             fee,
		GovCurveFee:          gov,
	}
	if out.Unit == pricing.Base {
		res.UserResult = pricing.Deltas[T]{DBase: amount, DBonds: withFee.Neg()}
		res.MarketResult = pricing.Deltas[T]{DBase: amount.Neg(), DBonds: withFee}
	} else {
		res.UserResult = pricing.Deltas[T]{DBase: withFee.Neg(), DBonds: amount}
		res.MarketResult = pricing.Deltas[T]{DBase: withFee, DBonds: amount.Neg()}
	}
	return res, nil
}

// CurveOutGivenIn is CalcOutGivenIn without input or output checks.
func (m *Model[T]) CurveOutGivenIn(in pricing.Quantity[T], ms pricing.MarketState[T], tr timeutil.StretchedTime[T]) (pricing.TradeResult[T], error) {
	te := numeric.One[T]().Sub(tr.StretchedTime())
	p := pricing.CalcSpotPriceFromReserves(ms, tr)
	amount := in.Amount

	var (
		wfos, wf T
		res      pricing.TradeResult[T]
	)
	switch in.Unit {
	case pricing.Base:
		dShares := amount.Div(ms.SharePrice)
		wfos = numeric.One[T]().Div(p).Mul(ms.SharePrice).Mul(dShares)
		wf = CalcBondsOutGivenSharesIn(ms.ShareReserves, ms.BondReserves, ms.LPTotalSupply,
			dShares, te, ms.SharePrice, ms.InitSharePrice)
	case pricing.PrincipalToken:
		wfos = p.Mul(amount)
		wf = CalcSharesOutGivenBondsIn(ms.ShareReserves, ms.BondReserves, ms.LPTotalSupply,
			amount, te, ms.SharePrice, ms.InitSharePrice).Mul(ms.SharePrice)
	default:
		return res, fmt.Errorf("%w: %q", pricing.ErrInvalidToken, in.Unit)
	}
	if wf.IsNaN() {
		return res, fmt.Errorf("%w: %s in", ErrExceedsReserves, in)
	}

	fee, gov := pricing.CurveFee(wfos, amount, ms)
	withFee := wf.Sub(fee).Sub(gov)
	res.Breakdown = pricing.TradeBreakdown[T]{
		WithoutFeeOrSlippage: wfos,
		WithoutFee:           wf,
		WithFee:              withFee,
		CurveFee:             fee,
		GovCurveFee:          gov,
	}
	if in.Unit == pricing.Base {
		res.UserResult = pricing.Deltas[T]{DBase: amount.Neg(), DBonds: withFee}
		res.MarketResult = pricing.Deltas[T]{DBase: amount, DBonds: withFee.Neg()}
	} else {
		res.UserResult = pricing.Deltas[T]{DBase: withFee, DBonds: amount.Neg()}
		res.MarketResult = pricing.Deltas[T]{DBase: withFee.Neg(), DBonds: amount}
	}
	return res, nil
}
