package pricing

import (
	"errors"
	"fmt"

	"github.com/delvtech/agent0-sub002/internal/numeric"
	"github.com/delvtech/agent0-sub002/internal/timeutil"
)

var (
	ErrEmptyPool      = errors.New("pricing: pool has no LP supply")
	ErrLPExceedsTotal = errors.New("pricing: lp amount exceeds total supply")
)

// LPOut is the result of a liquidity contribution.
type LPOut[T numeric.Number[T]] struct {
	LPOut  T
	DBase  T
	DBonds T
}

// LPIn is the result of a withdrawal priced in base.
type LPIn[T numeric.Number[T]] struct {
	LPIn   T
	DBase  T
	DBonds T
}

// LPRedemption is the pro-rata reserves released by burning LP shares.
// Both fields are removals and are non-negative.
type LPRedemption[T numeric.Number[T]] struct {
	DShares T
	DBonds  T
}

// CheckLiquidityInputs validates the state and amount for an LP operation.
func CheckLiquidityInputs[T numeric.Number[T]](amount T, ms MarketState[T]) error {
	if amount.IsNaN() {
		return fmt.Errorf("%w: amount", ErrUndefinedInput)
	}
	if amount.Cmp(numeric.Of[T](MinAmount)) < 0 {
		return fmt.Errorf("%w: %s < %g", ErrAmountTooSmall, amount, MinAmount)
	}
	return CheckMarketState(ms)
}

// CalcLPOutGivenTokensIn converts a base contribution into LP shares and
// the bond reserves needed to keep the pool at rate. An empty pool mints
// one LP share per vault share.
func CalcLPOutGivenTokensIn[T numeric.Number[T]](dBase, rate T, ms MarketState[T], tr timeutil.StretchedTime[T]) (LPOut[T], error) {
	if err := CheckLiquidityInputs(dBase, ms); err != nil {
		return LPOut[T]{}, err
	}
	dShares := dBase.Div(ms.SharePrice)

	var lpOut T
	if ms.ShareReserves.Sign() > 0 {
		lpOut = dShares.Mul(ms.LPTotalSupply).Div(ms.ShareReserves.Sub(ms.BaseBuffer))
	} else {
		lpOut = dShares
	}

	g, err := rateGrowth(rate, tr)
	if err != nil {
		return LPOut[T]{}, err
	}
	half := ms.ShareReserves.Add(dShares).Div(numeric.Of[T](2))
	dBonds := half.Mul(ms.InitSharePrice.Mul(g).Sub(ms.SharePrice)).Sub(ms.BondReserves)

	return LPOut[T]{LPOut: lpOut, DBase: dBase, DBonds: dBonds}, nil
}

// CalcLPInGivenTokensOut prices a withdrawal of dBase in LP shares.
func CalcLPInGivenTokensOut[T numeric.Number[T]](dBase, rate T, ms MarketState[T], tr timeutil.StretchedTime[T]) (LPIn[T], error) {
	if err := CheckLiquidityInputs(dBase, ms); err != nil {
		return LPIn[T]{}, err
	}
	if ms.LPTotalSupply.Sign() <= 0 {
		return LPIn[T]{}, ErrEmptyPool
	}
	dShares := dBase.Div(ms.SharePrice)
	free := ms.ShareReserves.Sub(ms.BaseBuffer.Div(ms.SharePrice))
	lpIn := dShares.Mul(ms.LPTotalSupply).Div(free)

	g, err := rateGrowth(rate, tr)
	if err != nil {
		return LPIn[T]{}, err
	}
	half := ms.ShareReserves.Sub(dShares).Div(numeric.Of[T](2))
	dBonds := half.Mul(ms.InitSharePrice.Mul(g).Sub(ms.SharePrice)).Sub(ms.BondReserves)

	return LPIn[T]{LPIn: lpIn, DBase: dBase, DBonds: dBonds}, nil
}

// CalcTokensOutGivenLPIn redeems lpIn shares pro rata. Shares backing open
// longs are excluded, and the bond/share ratio of the remaining pool is
// preserved.
func CalcTokensOutGivenLPIn[T numeric.Number[T]](lpIn T, ms MarketState[T]) (LPRedemption[T], error) {
	if err := CheckLiquidityInputs(lpIn, ms); err != nil {
		return LPRedemption[T]{}, err
	}
	if ms.LPTotalSupply.Sign() <= 0 || ms.ShareReserves.Sign() <= 0 {
		return LPRedemption[T]{}, ErrEmptyPool
	}
	if lpIn.Cmp(ms.LPTotalSupply) > 0 {
		return LPRedemption[T]{}, fmt.Errorf("%w: %s > %s", ErrLPExceedsTotal, lpIn, ms.LPTotalSupply)
	}
	pct := lpIn.Div(ms.LPTotalSupply)
	free := ms.ShareReserves.Sub(ms.LongsOutstanding.Div(ms.SharePrice))
	dShares := free.Mul(pct)
	remaining := ms.ShareReserves.Sub(dShares).Div(ms.ShareReserves)
	dBonds := ms.BondReserves.Sub(ms.BondReserves.Mul(remaining))
	return LPRedemption[T]{DShares: dShares, DBonds: dBonds}, nil
}
