package trade

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/delvtech/agent0-sub002/internal/hyperdrive"
	"github.com/delvtech/agent0-sub002/internal/market"
	"github.com/delvtech/agent0-sub002/internal/model"
	"github.com/delvtech/agent0-sub002/internal/numeric"
	"github.com/delvtech/agent0-sub002/internal/pricing"
	"github.com/delvtech/agent0-sub002/internal/timeutil"
	"github.com/delvtech/agent0-sub002/internal/yieldspace"
)

var (
	ErrUnknownVariant = errors.New("trade: unknown numeric or model variant")
	ErrNoCapacity     = errors.New("trade: model has no capacity bounds")
	ErrUndefinedPrice = errors.New("trade: pool price is undefined")
)

// execution is a priced action in decimals. The pool passed to the pricer
// has already been updated in place.
type execution struct {
	agent     agentDeltas
	breakdown model.Breakdown
	userBase  decimal.Decimal
	userBonds decimal.Decimal
}

type agentDeltas struct {
	Base     decimal.Decimal
	Longs    decimal.Decimal
	Shorts   decimal.Decimal
	LPShares decimal.Decimal
}

// pricer runs market actions for one (numeric, model) pair. Decimals cross
// the boundary; the variant's number type stays inside.
type pricer interface {
	timeStretch(apr decimal.Decimal) (decimal.Decimal, error)
	initialize(p *model.Pool, contribution, apr decimal.Decimal) (execution, error)
	execute(p *model.Pool, act market.Action, amount, limit, days decimal.Decimal) (execution, error)
	quote(p *model.Pool, dir pricing.Direction, q decimal.Decimal, unit pricing.TokenType, days decimal.Decimal) (execution, error)
	price(p *model.Pool, days decimal.Decimal) (spot, apr decimal.NullDecimal, err error)
	maxTrades(p *model.Pool) (model.MaxTrades, error)
}

func newPricer(numericKind, modelKind string) (pricer, error) {
	switch numericKind {
	case model.NumericFloat:
		return newVariant[numeric.Float](modelKind)
	case model.NumericFixed:
		return newVariant[numeric.Fixed](modelKind)
	}
	return nil, fmt.Errorf("%w: numeric %q", ErrUnknownVariant, numericKind)
}

type variant[T numeric.Number[T]] struct {
	engine *market.Engine[T]
}

func newVariant[T numeric.Number[T]](modelKind string) (pricer, error) {
	var m pricing.Model[T]
	switch modelKind {
	case model.ModelHyperdrive:
		m = hyperdrive.New[T]()
	case model.ModelYieldSpace:
		m = yieldspace.New[T]()
	default:
		return nil, fmt.Errorf("%w: model %q", ErrUnknownVariant, modelKind)
	}
	return &variant[T]{engine: market.NewEngine[T](m)}, nil
}

func num[T numeric.Number[T]](d decimal.Decimal) T { return numeric.FromDecimal[T](d) }

func nullable[T numeric.Number[T]](x T) decimal.NullDecimal {
	if x.IsNaN() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(x.Decimal())
}

func stateOf[T numeric.Number[T]](p *model.Pool) pricing.MarketState[T] {
	return pricing.MarketState[T]{
		ShareReserves:         num[T](p.ShareReserves),
		BondReserves:          num[T](p.BondReserves),
		LPTotalSupply:         num[T](p.LPTotalSupply),
		SharePrice:            num[T](p.SharePrice),
		InitSharePrice:        num[T](p.InitSharePrice),
		CurveFeeMultiple:      num[T](p.CurveFee),
		FlatFeeMultiple:       num[T](p.FlatFee),
		GovernanceFeeMultiple: num[T](p.GovernanceFee),
		BaseBuffer:            num[T](p.BaseBuffer),
		BondBuffer:            num[T](p.BondBuffer),
		LongsOutstanding:      num[T](p.LongsOutstanding),
		ShortsOutstanding:     num[T](p.ShortsOutstanding),
		GovFeesAccrued:        num[T](p.GovFeesAccrued),
	}
}

func storeState[T numeric.Number[T]](p *model.Pool, ms pricing.MarketState[T]) {
	p.ShareReserves = ms.ShareReserves.Decimal()
	p.BondReserves = ms.BondReserves.Decimal()
	p.LPTotalSupply = ms.LPTotalSupply.Decimal()
	p.SharePrice = ms.SharePrice.Decimal()
	p.BaseBuffer = ms.BaseBuffer.Decimal()
	p.BondBuffer = ms.BondBuffer.Decimal()
	p.LongsOutstanding = ms.LongsOutstanding.Decimal()
	p.ShortsOutstanding = ms.ShortsOutstanding.Decimal()
	p.GovFeesAccrued = ms.GovFeesAccrued.Decimal()
}

func (v *variant[T]) term(p *model.Pool, days decimal.Decimal) (timeutil.StretchedTime[T], error) {
	return timeutil.NewStretchedTime(num[T](days), num[T](p.TimeStretch),
		numeric.Of[T](float64(p.PositionDurationDays)))
}

func (v *variant[T]) fullTerm(p *model.Pool) (timeutil.StretchedTime[T], error) {
	return v.term(p, decimal.NewFromInt(int64(p.PositionDurationDays)))
}

func breakdownOf[T numeric.Number[T]](b pricing.TradeBreakdown[T]) model.Breakdown {
	return model.Breakdown{
		WithoutFeeOrSlippage: b.WithoutFeeOrSlippage.Decimal(),
		WithoutFee:           b.WithoutFee.Decimal(),
		WithFee:              b.WithFee.Decimal(),
		CurveFee:             b.CurveFee.Decimal(),
		GovCurveFee:          b.GovCurveFee.Decimal(),
		FlatFee:              b.FlatFee.Decimal(),
		GovFlatFee:           b.GovFlatFee.Decimal(),
	}
}

func executionOf[T numeric.Number[T]](out market.Outcome[T]) execution {
	return execution{
		agent: agentDeltas{
			Base:     out.Agent.Base.Decimal(),
			Longs:    out.Agent.Longs.Decimal(),
			Shorts:   out.Agent.Shorts.Decimal(),
			LPShares: out.Agent.LPShares.Decimal(),
		},
		breakdown: breakdownOf(out.Trade.Breakdown),
		userBase:  out.Trade.UserResult.DBase.Decimal(),
		userBonds: out.Trade.UserResult.DBonds.Decimal(),
	}
}

// commit applies the outcome to the pool and refreshes its full-term quote.
func (v *variant[T]) commit(p *model.Pool, ms pricing.MarketState[T], out market.Outcome[T]) (execution, error) {
	next := ms.Apply(out.Market)
	if err := pricing.CheckMarketState(next); err != nil {
		return execution{}, err
	}
	storeState(p, next)
	full, err := v.fullTerm(p)
	if err != nil {
		return execution{}, err
	}
	p.SpotPrice = nullable(pricing.CalcSpotPriceFromReserves(next, full))
	p.APR = nullable(pricing.CalcAPRFromReserves(next, full))
	return executionOf(out), nil
}

func (v *variant[T]) timeStretch(apr decimal.Decimal) (decimal.Decimal, error) {
	ts, err := pricing.CalcTimeStretch(num[T](apr))
	if err != nil {
		return decimal.Zero, err
	}
	return ts.Decimal(), nil
}

func (v *variant[T]) initialize(p *model.Pool, contribution, apr decimal.Decimal) (execution, error) {
	full, err := v.fullTerm(p)
	if err != nil {
		return execution{}, err
	}
	ms := stateOf[T](p)
	out, err := v.engine.Initialize(num[T](contribution), num[T](apr), ms, full)
	if err != nil {
		return execution{}, err
	}
	return v.commit(p, ms, out)
}

func (v *variant[T]) execute(p *model.Pool, act market.Action, amount, limit, days decimal.Decimal) (execution, error) {
	tr, err := v.term(p, days)
	if err != nil {
		return execution{}, err
	}
	ms := stateOf[T](p)
	a := num[T](amount)

	var out market.Outcome[T]
	switch act {
	case market.OpenLong:
		out, err = v.engine.OpenLong(a, ms, tr)
	case market.CloseLong:
		out, err = v.engine.CloseLong(a, ms, tr)
	case market.OpenShort:
		out, err = v.engine.OpenShort(a, num[T](limit), ms, tr)
	case market.CloseShort:
		out, err = v.engine.CloseShort(a, ms, tr)
	case market.AddLiquidity:
		rate := pricing.CalcAPRFromReserves(ms, tr.FullTerm())
		if rate.IsNaN() {
			return execution{}, ErrUndefinedPrice
		}
		out, err = v.engine.AddLiquidity(a, rate, ms, tr)
	case market.RemoveLiquidity:
		out, err = v.engine.RemoveLiquidity(a, ms)
	default:
		return execution{}, fmt.Errorf("%w: action %q", ErrBadRequest, act)
	}
	if err != nil {
		return execution{}, err
	}
	return v.commit(p, ms, out)
}

func (v *variant[T]) quote(p *model.Pool, dir pricing.Direction, amount decimal.Decimal, unit pricing.TokenType, days decimal.Decimal) (execution, error) {
	tr, err := v.term(p, days)
	if err != nil {
		return execution{}, err
	}
	q := pricing.NewQuantity(num[T](amount), unit)
	m := v.engine.Model()

	var r pricing.TradeResult[T]
	if dir == pricing.DirectionIn {
		r, err = m.CalcInGivenOut(q, stateOf[T](p), tr)
	} else {
		r, err = m.CalcOutGivenIn(q, stateOf[T](p), tr)
	}
	if err != nil {
		return execution{}, err
	}
	return executionOf(market.Outcome[T]{Trade: r}), nil
}

func (v *variant[T]) price(p *model.Pool, days decimal.Decimal) (decimal.NullDecimal, decimal.NullDecimal, error) {
	tr, err := v.term(p, days)
	if err != nil {
		return decimal.NullDecimal{}, decimal.NullDecimal{}, err
	}
	ms := stateOf[T](p)
	return nullable(pricing.CalcSpotPriceFromReserves(ms, tr)), nullable(pricing.CalcAPRFromReserves(ms, tr)), nil
}

func (v *variant[T]) maxTrades(p *model.Pool) (model.MaxTrades, error) {
	c, ok := v.engine.Capacity()
	if !ok {
		return model.MaxTrades{}, ErrNoCapacity
	}
	full, err := v.fullTerm(p)
	if err != nil {
		return model.MaxTrades{}, err
	}
	ms := stateOf[T](p)
	long, err := c.GetMaxLong(ms, full)
	if err != nil {
		return model.MaxTrades{}, err
	}
	short, err := c.GetMaxShort(ms, full)
	if err != nil {
		return model.MaxTrades{}, err
	}
	return model.MaxTrades{
		MaxLongBase:   long.Base.Decimal(),
		MaxLongBonds:  long.Bonds.Decimal(),
		MaxShortBase:  short.Base.Decimal(),
		MaxShortBonds: short.Bonds.Decimal(),
	}, nil
}
