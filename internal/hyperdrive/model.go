// Package hyperdrive prices trades on positions that have not yet matured.
//
// A trade of amount a with normalized time remaining t is decomposed into
// two legs:
//   - flat: a·(1−t) is the matured share of the position and trades 1:1,
//     charged the flat fee;
//   - curve: a·t trades on the YieldSpace curve at the full-term exponent.
//
// Before pricing the curve leg the matured share is redeemed against a
// private copy of the reserves. Both legs are then summed into a single
// TradeResult.
package hyperdrive

import (
	"github.com/delvtech/agent0-sub002/internal/numeric"
	"github.com/delvtech/agent0-sub002/internal/pricing"
	"github.com/delvtech/agent0-sub002/internal/timeutil"
	"github.com/delvtech/agent0-sub002/internal/yieldspace"
)

// Name is returned by ModelName.
const Name = "Hyperdrive"

// Model is the Hyperdrive pricing model. It holds the YieldSpace curve it
// delegates curve legs to and carries no other state.
type Model[T numeric.Number[T]] struct {
	curve *yieldspace.Model[T]
}

var (
	_ pricing.Model[numeric.Float] = (*Model[numeric.Float])(nil)
	_ pricing.Model[numeric.Fixed] = (*Model[numeric.Fixed])(nil)
)

// New creates a Hyperdrive model over a fresh YieldSpace curve.
func New[T numeric.Number[T]]() *Model[T] {
	return &Model[T]{curve: yieldspace.New[T]()}
}

func (m *Model[T]) ModelName() string { return Name }

// Curve returns the underlying YieldSpace model.
func (m *Model[T]) Curve() *yieldspace.Model[T] { return m.curve }

func (m *Model[T]) CalcInGivenOut(out pricing.Quantity[T], ms pricing.MarketState[T], tr timeutil.StretchedTime[T]) (pricing.TradeResult[T], error) {
	if err := pricing.CheckInputs(out, ms, tr); err != nil {
		return pricing.TradeResult[T]{}, err
	}
	r, err := m.inGivenOut(out, ms, tr)
	if err != nil {
		return pricing.TradeResult[T]{}, err
	}
	if err := pricing.CheckOutputs(r, pricing.DirectionIn); err != nil {
		return pricing.TradeResult[T]{}, err
	}
	return r, nil
}

func (m *Model[T]) CalcOutGivenIn(in pricing.Quantity[T], ms pricing.MarketState[T], tr timeutil.StretchedTime[T]) (pricing.TradeResult[T], error) {
	if err := pricing.CheckInputs(in, ms, tr); err != nil {
		return pricing.TradeResult[T]{}, err
	}
	r, err := m.outGivenIn(in, ms, tr)
	if err != nil {
		return pricing.TradeResult[T]{}, err
	}
	if err := pricing.CheckOutputs(r, pricing.DirectionOut); err != nil {
		return pricing.TradeResult[T]{}, err
	}
	return r, nil
}

// flatLeg is the matured portion of a trade.
type flatLeg[T numeric.Number[T]] struct {
	withoutFee T
	withFee    T
	fee        T
	gov        T
}

func newFlatLeg[T numeric.Number[T]](amount, nt T, ms pricing.MarketState[T], paid bool) flatLeg[T] {
	wo := amount.Mul(numeric.One[T]().Sub(nt))
	fee, gov := pricing.FlatFee(wo, ms)
	l := flatLeg[T]{withoutFee: wo, fee: fee, gov: gov}
	if paid {
		l.withFee = wo.Add(fee).Add(gov)
	} else {
		l.withFee = wo.Sub(fee).Sub(gov)
	}
	return l
}

// redeemMatured returns a copy of ms with the matured bonds and their share
// value moved between reserves. sharesIn selects the direction of z.
func redeemMatured[T numeric.Number[T]](ms pricing.MarketState[T], dBonds T, sharesIn bool) pricing.MarketState[T] {
	dShares := dBonds.Div(ms.SharePrice)
	if sharesIn {
		ms.ShareReserves = ms.ShareReserves.Add(dShares)
		ms.BondReserves = ms.BondReserves.Sub(dBonds)
	} else {
		ms.ShareReserves = ms.ShareReserves.Sub(dShares)
		ms.BondReserves = ms.BondReserves.Add(dBonds)
	}
	return ms
}

func combine[T numeric.Number[T]](flat flatLeg[T], curve pricing.TradeResult[T]) pricing.TradeBreakdown[T] {
	c := curve.Breakdown
	return pricing.TradeBreakdown[T]{
		WithoutFeeOrSlippage: flat.withoutFee.Add(c.WithoutFeeOrSlippage),
		WithoutFee:           flat.withoutFee.Add(c.WithoutFee),
		WithFee:              flat.withFee.Add(c.WithFee),
		CurveFee:             c.CurveFee,
		GovCurveFee:          c.GovCurveFee,
		FlatFee:              flat.fee,
		GovFlatFee:           flat.gov,
	}
}

func (m *Model[T]) inGivenOut(out pricing.Quantity[T], ms pricing.MarketState[T], tr timeutil.StretchedTime[T]) (pricing.TradeResult[T], error) {
	nt := tr.NormalizedTime()
	flat := newFlatLeg(out.Amount, nt, ms, true)
	adjusted := redeemMatured(ms, flat.withoutFee, out.Unit == pricing.PrincipalToken)

	var curve pricing.TradeResult[T]
	if q := out.Scale(nt); !numeric.IsZero(q.Amount) {
		var err error
		curve, err = m.curve.CurveInGivenOut(q, adjusted, tr.FullTerm())
		if err != nil {
			return pricing.TradeResult[T]{}, err
		}
	}

	r := pricing.TradeResult[T]{Breakdown: combine(flat, curve)}
	amount := out.Amount
	switch out.Unit {
	case pricing.Base:
		r.UserResult = pricing.Deltas[T]{
			DBase:  amount,
			DBonds: flat.withFee.Neg().Add(curve.UserResult.DBonds),
		}
		r.MarketResult = pricing.Deltas[T]{
			DBase:  amount.Neg(),
			DBonds: curve.MarketResult.DBonds,
		}
	default:
		r.UserResult = pricing.Deltas[T]{
			DBase:  flat.withFee.Neg().Add(curve.UserResult.DBase),
			DBonds: amount,
		}
		r.MarketResult = pricing.Deltas[T]{
			DBase:  flat.withFee.Add(curve.MarketResult.DBase),
			DBonds: curve.MarketResult.DBonds,
		}
	}
	return r, nil
}

func (m *Model[T]) outGivenIn(in pricing.Quantity[T], ms pricing.MarketState[T], tr timeutil.StretchedTime[T]) (pricing.TradeResult[T], error) {
	nt := tr.NormalizedTime()
	flat := newFlatLeg(in.Amount, nt, ms, false)
	adjusted := redeemMatured(ms, flat.withoutFee, in.Unit == pricing.Base)

	var curve pricing.TradeResult[T]
	if q := in.Scale(nt); !numeric.IsZero(q.Amount) {
		var err error
		curve, err = m.curve.CurveOutGivenIn(q, adjusted, tr.FullTerm())
		if err != nil {
			return pricing.TradeResult[T]{}, err
		}
	}

	r := pricing.TradeResult[T]{Breakdown: combine(flat, curve)}
	amount := in.Amount
	switch in.Unit {
	case pricing.Base:
		r.UserResult = pricing.Deltas[T]{
			DBase:  amount.Neg(),
			DBonds: flat.withFee.Add(curve.UserResult.DBonds),
		}
		r.MarketResult = pricing.Deltas[T]{
			DBase:  amount,
			DBonds: curve.MarketResult.DBonds,
		}
	default:
		r.UserResult = pricing.Deltas[T]{
			DBase:  flat.withFee.Add(curve.UserResult.DBase),
			DBonds: amount.Neg(),
		}
		r.MarketResult = pricing.Deltas[T]{
			DBase:  flat.withFee.Neg().Add(curve.MarketResult.DBase),
			DBonds: curve.MarketResult.DBonds,
		}
	}
	return r, nil
}
