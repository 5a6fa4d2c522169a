// Package pricing holds the data model shared by the YieldSpace and
// Hyperdrive pricing models, together with the formulas that do not depend
// on a particular curve: fees, reserve and APR derivation, and LP math.
//
// Everything here is a pure function of its arguments. MarketState is
// passed by value; nothing in this package mutates caller state.
package pricing

import (
	"fmt"

	"github.com/delvtech/agent0-sub002/internal/numeric"
	"github.com/delvtech/agent0-sub002/internal/timeutil"
)

// TokenType discriminates the two tradeable units.
type TokenType string

const (
	Base           TokenType = "BASE"
	PrincipalToken TokenType = "PT"
)

// Valid reports whether t is BASE or PT.
func (t TokenType) Valid() bool { return t == Base || t == PrincipalToken }

// Quantity is an amount tagged with its unit.
type Quantity[T numeric.Number[T]] struct {
	Amount T
	Unit   TokenType
}

// NewQuantity builds a Quantity.
func NewQuantity[T numeric.Number[T]](amount T, unit TokenType) Quantity[T] {
	return Quantity[T]{Amount: amount, Unit: unit}
}

// Scale returns the same unit with the amount multiplied by f.
func (q Quantity[T]) Scale(f T) Quantity[T] {
	return Quantity[T]{Amount: q.Amount.Mul(f), Unit: q.Unit}
}

func (q Quantity[T]) String() string {
	return fmt.Sprintf("%s %s", q.Amount, q.Unit)
}

// MarketState is a reserve snapshot owned by the caller.
type MarketState[T numeric.Number[T]] struct {
	ShareReserves  T // z
	BondReserves   T // y
	LPTotalSupply  T // s
	SharePrice     T // c
	InitSharePrice T // mu

	CurveFeeMultiple      T
	FlatFeeMultiple       T
	GovernanceFeeMultiple T

	BaseBuffer        T
	BondBuffer        T
	LongsOutstanding  T
	ShortsOutstanding T

	GovFeesAccrued T
}

// TotalLiquidity is the pool's share reserves valued in base.
func (m MarketState[T]) TotalLiquidity() T {
	return m.ShareReserves.Mul(m.SharePrice)
}

// Apply returns a copy of m with d added. The receiver is unchanged.
// DBase is in base and is converted to shares at the current share price.
func (m MarketState[T]) Apply(d MarketDeltas[T]) MarketState[T] {
	m.ShareReserves = m.ShareReserves.Add(d.DBase.Div(m.SharePrice))
	m.BondReserves = m.BondReserves.Add(d.DBonds)
	m.LPTotalSupply = m.LPTotalSupply.Add(d.DLPTotalSupply)
	m.BaseBuffer = m.BaseBuffer.Add(d.DBaseBuffer)
	m.BondBuffer = m.BondBuffer.Add(d.DBondBuffer)
	m.LongsOutstanding = m.LongsOutstanding.Add(d.DLongsOutstanding)
	m.ShortsOutstanding = m.ShortsOutstanding.Add(d.DShortsOutstanding)
	m.GovFeesAccrued = m.GovFeesAccrued.Add(d.DGovFeesAccrued)
	return m
}

// MarketDeltas are signed changes to apply to a MarketState.
type MarketDeltas[T numeric.Number[T]] struct {
	DBase              T
	DBonds             T
	DLPTotalSupply     T
	DBaseBuffer        T
	DBondBuffer        T
	DLongsOutstanding  T
	DShortsOutstanding T
	DGovFeesAccrued    T
}

// TradeBreakdown itemizes a trade in the unit of its priced side.
type TradeBreakdown[T numeric.Number[T]] struct {
	WithoutFeeOrSlippage T
	WithoutFee           T
	WithFee              T
	CurveFee             T
	GovCurveFee          T
	FlatFee              T
	GovFlatFee           T
}

// Fee is the total trading fee, curve plus flat.
func (b TradeBreakdown[T]) Fee() T { return b.CurveFee.Add(b.FlatFee) }

// GovFee is the governance share of Fee.
func (b TradeBreakdown[T]) GovFee() T { return b.GovCurveFee.Add(b.GovFlatFee) }

// Deltas is a signed (base, bonds) change for one side of a trade.
type Deltas[T numeric.Number[T]] struct {
	DBase  T
	DBonds T
}

// TradeResult is returned by every trading entry point.
type TradeResult[T numeric.Number[T]] struct {
	Breakdown    TradeBreakdown[T]
	UserResult   Deltas[T]
	MarketResult Deltas[T]
}

// Direction tells the output checks which way fees must move with_fee.
type Direction int

const (
	// DirectionIn: the trader pays the priced amount, so fees increase it.
	DirectionIn Direction = iota
	// DirectionOut: the trader receives the priced amount, so fees reduce it.
	DirectionOut
)

// Model is a pricing model over numeric variant T.
type Model[T numeric.Number[T]] interface {
	ModelName() string

	// CalcInGivenOut prices what the trader must pay to receive out.
	CalcInGivenOut(out Quantity[T], ms MarketState[T], timeRemaining timeutil.StretchedTime[T]) (TradeResult[T], error)

	// CalcOutGivenIn prices what the trader receives for paying in.
	CalcOutGivenIn(in Quantity[T], ms MarketState[T], timeRemaining timeutil.StretchedTime[T]) (TradeResult[T], error)
}
