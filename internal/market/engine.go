// Package market turns priced trades into state changes. Each action asks
// a pricing model for a TradeResult and returns the MarketDeltas to apply
// to the pool together with the AgentDeltas owed to the trader. Nothing is
// mutated here; callers apply both sides atomically.
package market

import (
	"errors"
	"fmt"

	"github.com/delvtech/agent0-sub002/internal/hyperdrive"
	"github.com/delvtech/agent0-sub002/internal/numeric"
	"github.com/delvtech/agent0-sub002/internal/pricing"
	"github.com/delvtech/agent0-sub002/internal/timeutil"
)

var (
	ErrExceedsCapacity    = errors.New("market: trade exceeds pool capacity")
	ErrAlreadyInitialized = errors.New("market: pool already initialized")
	ErrSlippage           = errors.New("market: trade outside slippage limit")
)

// Action names one market operation.
type Action string

const (
	OpenLong        Action = "open_long"
	CloseLong       Action = "close_long"
	OpenShort       Action = "open_short"
	CloseShort      Action = "close_short"
	AddLiquidity    Action = "add_liquidity"
	RemoveLiquidity Action = "remove_liquidity"
	Initialize      Action = "initialize"
)

// IsTrade reports whether a is one of the four bond trades.
func (a Action) IsTrade() bool {
	switch a {
	case OpenLong, CloseLong, OpenShort, CloseShort:
		return true
	}
	return false
}

// AgentDeltas is the signed change in a trader's wallet. Base is the base
// cash flow; the rest are position sizes.
type AgentDeltas[T numeric.Number[T]] struct {
	Base     T
	Longs    T
	Shorts   T
	LPShares T
}

// Outcome is the result of one action.
type Outcome[T numeric.Number[T]] struct {
	Action Action
	Trade  pricing.TradeResult[T] // zero for liquidity actions
	Market pricing.MarketDeltas[T]
	Agent  AgentDeltas[T]
}

// Capacity is implemented by models that can bound a trade by the pool's
// free reserves.
type Capacity[T numeric.Number[T]] interface {
	GetMaxLong(ms pricing.MarketState[T], tr timeutil.StretchedTime[T]) (hyperdrive.MaxTrade[T], error)
	GetMaxShort(ms pricing.MarketState[T], tr timeutil.StretchedTime[T]) (hyperdrive.MaxTrade[T], error)
}

// Engine executes market actions against a pricing model.
type Engine[T numeric.Number[T]] struct {
	model pricing.Model[T]
}

// NewEngine creates an engine over model.
func NewEngine[T numeric.Number[T]](model pricing.Model[T]) *Engine[T] {
	return &Engine[T]{model: model}
}

// Model returns the pricing model.
func (e *Engine[T]) Model() pricing.Model[T] { return e.model }

// Capacity returns the model's capacity bounds, if it has any.
func (e *Engine[T]) Capacity() (Capacity[T], bool) {
	c, ok := e.model.(Capacity[T])
	return c, ok
}

// marketDeltas converts a trade's market side into reserve deltas and
// accrues the governance fee.
func marketDeltas[T numeric.Number[T]](r pricing.TradeResult[T]) pricing.MarketDeltas[T] {
	return pricing.MarketDeltas[T]{
		DBase:           r.MarketResult.DBase,
		DBonds:          r.MarketResult.DBonds,
		DGovFeesAccrued: r.Breakdown.GovFee(),
	}
}

// Initialize seeds an empty pool with contribution base at targetAPR. The
// bond reserves are sized so the pool quotes targetAPR over its full term,
// and the contributor receives c·z + y LP shares.
func (e *Engine[T]) Initialize(contribution, targetAPR T, ms pricing.MarketState[T], term timeutil.StretchedTime[T]) (Outcome[T], error) {
	if ms.ShareReserves.Sign() != 0 || ms.BondReserves.Sign() != 0 || ms.LPTotalSupply.Sign() != 0 {
		return Outcome[T]{}, ErrAlreadyInitialized
	}
	if err := pricing.CheckLiquidityInputs(contribution, ms); err != nil {
		return Outcome[T]{}, err
	}
	if targetAPR.IsNaN() || targetAPR.Sign() <= 0 {
		return Outcome[T]{}, fmt.Errorf("%w: %s", pricing.ErrNonPositiveAPR, targetAPR)
	}
	seeded := ms
	seeded.ShareReserves = contribution.Div(ms.SharePrice)
	bonds, err := pricing.CalcInitialBondReserves(targetAPR, seeded, term.FullTerm())
	if err != nil {
		return Outcome[T]{}, err
	}
	lp := ms.SharePrice.Mul(seeded.ShareReserves).Add(bonds)
	return Outcome[T]{
		Action: Initialize,
		Market: pricing.MarketDeltas[T]{DBase: contribution, DBonds: bonds, DLPTotalSupply: lp},
		Agent:  AgentDeltas[T]{Base: contribution.Neg(), LPShares: lp},
	}, nil
}

// OpenLong spends base on bonds at the full term.
func (e *Engine[T]) OpenLong(base T, ms pricing.MarketState[T], term timeutil.StretchedTime[T]) (Outcome[T], error) {
	full := term.FullTerm()
	if c, ok := e.Capacity(); ok {
		limit, err := c.GetMaxLong(ms, full)
		if err != nil {
			return Outcome[T]{}, err
		}
		if base.Cmp(limit.Base) > 0 {
			return Outcome[T]{}, fmt.Errorf("%w: long of %s base, max %s", ErrExceedsCapacity, base, limit.Base)
		}
	}
	r, err := e.model.CalcOutGivenIn(pricing.NewQuantity(base, pricing.Base), ms, full)
	if err != nil {
		return Outcome[T]{}, err
	}
	bonds := r.Breakdown.WithFee
	md := marketDeltas(r)
	md.DBaseBuffer = bonds
	md.DLongsOutstanding = bonds
	return Outcome[T]{
		Action: OpenLong,
		Trade:  r,
		Market: md,
		Agent:  AgentDeltas[T]{Base: base.Neg(), Longs: bonds},
	}, nil
}

// CloseLong sells bonds back to the pool with tr remaining.
func (e *Engine[T]) CloseLong(bonds T, ms pricing.MarketState[T], tr timeutil.StretchedTime[T]) (Outcome[T], error) {
	r, err := e.model.CalcOutGivenIn(pricing.NewQuantity(bonds, pricing.PrincipalToken), ms, tr)
	if err != nil {
		return Outcome[T]{}, err
	}
	md := marketDeltas(r)
	md.DBaseBuffer = bonds.Neg()
	md.DLongsOutstanding = bonds.Neg()
	return Outcome[T]{
		Action: CloseLong,
		Trade:  r,
		Market: md,
		Agent:  AgentDeltas[T]{Base: r.Breakdown.WithFee, Longs: bonds.Neg()},
	}, nil
}

// OpenShort sells bonds to the pool at the full term. The trader deposits
// the face value less the sale proceeds, their maximum loss. A positive
// maxDeposit rejects shorts that would require more.
func (e *Engine[T]) OpenShort(bonds, maxDeposit T, ms pricing.MarketState[T], term timeutil.StretchedTime[T]) (Outcome[T], error) {
	full := term.FullTerm()
	if c, ok := e.Capacity(); ok {
		limit, err := c.GetMaxShort(ms, full)
		if err != nil {
			return Outcome[T]{}, err
		}
		if bonds.Cmp(limit.Bonds) > 0 {
			return Outcome[T]{}, fmt.Errorf("%w: short of %s bonds, max %s", ErrExceedsCapacity, bonds, limit.Bonds)
		}
	}
	r, err := e.model.CalcOutGivenIn(pricing.NewQuantity(bonds, pricing.PrincipalToken), ms, full)
	if err != nil {
		return Outcome[T]{}, err
	}
	deposit := bonds.Sub(r.Breakdown.WithFee)
	if maxDeposit.Sign() > 0 && deposit.Cmp(maxDeposit) > 0 {
		return Outcome[T]{}, fmt.Errorf("%w: deposit %s > %s", ErrSlippage, deposit, maxDeposit)
	}
	md := marketDeltas(r)
	md.DBondBuffer = bonds
	md.DShortsOutstanding = bonds
	return Outcome[T]{
		Action: OpenShort,
		Trade:  r,
		Market: md,
		Agent:  AgentDeltas[T]{Base: deposit.Neg(), Shorts: bonds},
	}, nil
}

// CloseShort buys bonds back from the pool with tr remaining. The trader
// receives the face value less the repurchase cost, floored at zero.
func (e *Engine[T]) CloseShort(bonds T, ms pricing.MarketState[T], tr timeutil.StretchedTime[T]) (Outcome[T], error) {
	r, err := e.model.CalcInGivenOut(pricing.NewQuantity(bonds, pricing.PrincipalToken), ms, tr)
	if err != nil {
		return Outcome[T]{}, err
	}
	proceeds := numeric.Max(bonds.Sub(r.Breakdown.WithFee), numeric.Zero[T]())
	md := marketDeltas(r)
	md.DBondBuffer = bonds.Neg()
	md.DShortsOutstanding = bonds.Neg()
	return Outcome[T]{
		Action: CloseShort,
		Trade:  r,
		Market: md,
		Agent:  AgentDeltas[T]{Base: proceeds, Shorts: bonds.Neg()},
	}, nil
}

// AddLiquidity contributes base at the pool's current rate.
func (e *Engine[T]) AddLiquidity(base, rate T, ms pricing.MarketState[T], term timeutil.StretchedTime[T]) (Outcome[T], error) {
	lp, err := pricing.CalcLPOutGivenTokensIn(base, rate, ms, term.FullTerm())
	if err != nil {
		return Outcome[T]{}, err
	}
	return Outcome[T]{
		Action: AddLiquidity,
		Market: pricing.MarketDeltas[T]{DBase: lp.DBase, DBonds: lp.DBonds, DLPTotalSupply: lp.LPOut},
		Agent:  AgentDeltas[T]{Base: base.Neg(), LPShares: lp.LPOut},
	}, nil
}

// RemoveLiquidity burns lp shares for their pro-rata reserves.
func (e *Engine[T]) RemoveLiquidity(lp T, ms pricing.MarketState[T]) (Outcome[T], error) {
	red, err := pricing.CalcTokensOutGivenLPIn(lp, ms)
	if err != nil {
		return Outcome[T]{}, err
	}
	base := red.DShares.Mul(ms.SharePrice)
	return Outcome[T]{
		Action: RemoveLiquidity,
		Market: pricing.MarketDeltas[T]{DBase: base.Neg(), DBonds: red.DBonds.Neg(), DLPTotalSupply: lp.Neg()},
		Agent:  AgentDeltas[T]{Base: base, LPShares: lp.Neg()},
	}, nil
}
