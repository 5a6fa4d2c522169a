package pricing

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/delvtech/agent0-sub002/internal/numeric"
	"github.com/delvtech/agent0-sub002/internal/timeutil"
)

const (
	// MinAmount is the smallest distinguishable trade size (one wei).
	MinAmount = 1e-18

	// MaxReservesDifference bounds |z·c − y| for a well-formed pool.
	MaxReservesDifference = 2e10

	// PrecisionThreshold is the tolerance on time fractions outside [0, 1].
	PrecisionThreshold = 1e-8
)

// Input-contract violations.
var (
	ErrInvalidToken          = errors.New("pricing: token type must be BASE or PT")
	ErrAmountTooSmall        = errors.New("pricing: amount below minimum")
	ErrNegativeReserves      = errors.New("pricing: reserves must be non-negative")
	ErrInvalidSharePrice     = errors.New("pricing: share price must be positive")
	ErrInvalidInitSharePrice = errors.New("pricing: init share price must be at least 1")
	ErrReservesImbalance     = errors.New("pricing: share and bond reserves differ by too much")
	ErrInvalidFee            = errors.New("pricing: fee multiple must be in [0, 1]")
	ErrInvalidTime           = errors.New("pricing: time fraction out of range")
	ErrUndefinedInput        = errors.New("pricing: input is NaN")
)

// Output-contract violations. These indicate a solver bug or a trade the
// curve cannot absorb.
var (
	ErrNegativeFee     = errors.New("pricing: fee is negative")
	ErrNegativeAmount  = errors.New("pricing: priced amount is negative")
	ErrFeeDirection    = errors.New("pricing: fees moved with_fee in the trader's favour")
	ErrUndefinedResult = errors.New("pricing: trade result is undefined")
)

// CheckInputs validates a trade request before any pricing work is done.
func CheckInputs[T numeric.Number[T]](q Quantity[T], ms MarketState[T], tr timeutil.StretchedTime[T]) error {
	if !q.Unit.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidToken, q.Unit)
	}
	if q.Amount.IsNaN() {
		return fmt.Errorf("%w: amount", ErrUndefinedInput)
	}
	if q.Amount.Cmp(numeric.Of[T](MinAmount)) < 0 {
		return fmt.Errorf("%w: %s < %g", ErrAmountTooSmall, q.Amount, MinAmount)
	}
	if err := CheckMarketState(ms); err != nil {
		return err
	}
	return CheckTime(tr)
}

// CheckMarketState validates reserves, prices and fee multiples.
func CheckMarketState[T numeric.Number[T]](ms MarketState[T]) error {
	if numeric.AnyNaN(ms.ShareReserves, ms.BondReserves, ms.LPTotalSupply, ms.SharePrice,
		ms.InitSharePrice, ms.CurveFeeMultiple, ms.FlatFeeMultiple, ms.GovernanceFeeMultiple) {
		return fmt.Errorf("%w: market state", ErrUndefinedInput)
	}
	for _, r := range []struct {
		name string
		v    T
	}{
		{"share_reserves", ms.ShareReserves},
		{"bond_reserves", ms.BondReserves},
		{"lp_total_supply", ms.LPTotalSupply},
	} {
		if r.v.Sign() < 0 {
			return fmt.Errorf("%w: %s=%s", ErrNegativeReserves, r.name, r.v)
		}
	}
	if ms.SharePrice.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSharePrice, ms.SharePrice)
	}
	if ms.InitSharePrice.Cmp(numeric.One[T]()) < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInitSharePrice, ms.InitSharePrice)
	}
	if ms.SharePrice.Cmp(ms.InitSharePrice) < 0 {
		log.Warn().
			Str("share_price", ms.SharePrice.String()).
			Str("init_share_price", ms.InitSharePrice.String()).
			Msg("share price is below init share price")
	}
	diff := ms.ShareReserves.Mul(ms.SharePrice).Sub(ms.BondReserves).Abs()
	if diff.Cmp(numeric.Of[T](MaxReservesDifference)) >= 0 {
		return fmt.Errorf("%w: |z*c - y| = %s", ErrReservesImbalance, diff)
	}
	for _, f := range []struct {
		name string
		v    T
	}{
		{"curve_fee_multiple", ms.CurveFeeMultiple},
		{"flat_fee_multiple", ms.FlatFeeMultiple},
		{"governance_fee_multiple", ms.GovernanceFeeMultiple},
	} {
		if f.v.Sign() < 0 || f.v.Cmp(numeric.One[T]()) > 0 {
			return fmt.Errorf("%w: %s=%s", ErrInvalidFee, f.name, f.v)
		}
	}
	return nil
}

// CheckTime validates that the normalized and stretched time fractions are
// within [−ε, 1+ε].
func CheckTime[T numeric.Number[T]](tr timeutil.StretchedTime[T]) error {
	lo := numeric.Of[T](-PrecisionThreshold)
	hi := numeric.Of[T](1 + PrecisionThreshold)
	for _, v := range []struct {
		name string
		v    T
	}{
		{"normalized_time", tr.NormalizedTime()},
		{"stretched_time", tr.StretchedTime()},
	} {
		if v.v.IsNaN() || v.v.Cmp(lo) < 0 || v.v.Cmp(hi) > 0 {
			return fmt.Errorf("%w: %s=%s", ErrInvalidTime, v.name, v.v)
		}
	}
	return nil
}

// CheckOutputs validates a priced trade.
func CheckOutputs[T numeric.Number[T]](r TradeResult[T], dir Direction) error {
	b := r.Breakdown
	if numeric.AnyNaN(b.WithoutFeeOrSlippage, b.WithoutFee, b.WithFee,
		b.CurveFee, b.GovCurveFee, b.FlatFee, b.GovFlatFee,
		r.UserResult.DBase, r.UserResult.DBonds, r.MarketResult.DBase, r.MarketResult.DBonds) {
		return ErrUndefinedResult
	}
	for _, f := range []struct {
		name string
		v    T
	}{
		{"curve_fee", b.CurveFee},
		{"gov_curve_fee", b.GovCurveFee},
		{"flat_fee", b.FlatFee},
		{"gov_flat_fee", b.GovFlatFee},
	} {
		if f.v.Sign() < 0 {
			return fmt.Errorf("%w: %s=%s", ErrNegativeFee, f.name, f.v)
		}
	}
	if b.WithoutFee.Sign() < 0 {
		return fmt.Errorf("%w: without_fee=%s", ErrNegativeAmount, b.WithoutFee)
	}
	switch dir {
	case DirectionIn:
		if b.WithFee.Cmp(b.WithoutFee) < 0 {
			return fmt.Errorf("%w: with_fee=%s < without_fee=%s", ErrFeeDirection, b.WithFee, b.WithoutFee)
		}
	case DirectionOut:
		if b.WithFee.Cmp(b.WithoutFee) > 0 {
			return fmt.Errorf("%w: with_fee=%s > without_fee=%s", ErrFeeDirection, b.WithFee, b.WithoutFee)
		}
	}
	return nil
}
