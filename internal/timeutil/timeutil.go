// Package timeutil converts calendar time into the normalized and
// stretched time fractions the pricing curves use as exponents.
package timeutil

import (
	"errors"
	"fmt"

	"github.com/delvtech/agent0-sub002/internal/numeric"
)

// DaysPerYear is the annualisation constant for APR conversions. It is
// independent of any pool's normalizing constant.
const DaysPerYear = 365

var (
	ErrNonPositiveStretch   = errors.New("timeutil: time stretch must be positive")
	ErrNonPositiveNormalize = errors.New("timeutil: normalizing constant must be positive")
	ErrMintInFuture         = errors.New("timeutil: mint time is after market time")
)

// StretchedTime is an immutable (days, time_stretch, normalizing_constant)
// triple. NormalizedTime and StretchedTime are derived from it.
type StretchedTime[T numeric.Number[T]] struct {
	days                T
	timeStretch         T
	normalizingConstant T
}

// NewStretchedTime validates and builds a StretchedTime.
// normalizingConstant is the term length in days, usually the position
// duration.
func NewStretchedTime[T numeric.Number[T]](days, timeStretch, normalizingConstant T) (StretchedTime[T], error) {
	if timeStretch.IsNaN() || timeStretch.Sign() <= 0 {
		return StretchedTime[T]{}, fmt.Errorf("%w: %s", ErrNonPositiveStretch, timeStretch)
	}
	if normalizingConstant.IsNaN() || normalizingConstant.Sign() <= 0 {
		return StretchedTime[T]{}, fmt.Errorf("%w: %s", ErrNonPositiveNormalize, normalizingConstant)
	}
	return StretchedTime[T]{
		days:                days,
		timeStretch:         timeStretch,
		normalizingConstant: normalizingConstant,
	}, nil
}

// MustStretchedTime is NewStretchedTime for known-good constants.
func MustStretchedTime[T numeric.Number[T]](days, timeStretch, normalizingConstant T) StretchedTime[T] {
	st, err := NewStretchedTime(days, timeStretch, normalizingConstant)
	if err != nil {
		panic(err)
	}
	return st
}

func (s StretchedTime[T]) Days() T                { return s.days }
func (s StretchedTime[T]) TimeStretch() T         { return s.timeStretch }
func (s StretchedTime[T]) NormalizingConstant() T { return s.normalizingConstant }

// NormalizedTime is days / normalizing_constant.
func (s StretchedTime[T]) NormalizedTime() T {
	return s.days.Div(s.normalizingConstant)
}

// StretchedTime is normalized_time / time_stretch, the invariant's τ.
func (s StretchedTime[T]) StretchedTime() T {
	return s.NormalizedTime().Div(s.timeStretch)
}

// AnnualizedTime is days / 365.
func (s StretchedTime[T]) AnnualizedTime() T {
	return s.days.Div(numeric.Of[T](DaysPerYear))
}

// FullTerm returns the same curve with days pinned to the normalizing
// constant, i.e. a position with its entire term remaining.
func (s StretchedTime[T]) FullTerm() StretchedTime[T] {
	return StretchedTime[T]{
		days:                s.normalizingConstant,
		timeStretch:         s.timeStretch,
		normalizingConstant: s.normalizingConstant,
	}
}

// WithDays returns a copy with a different days value.
func (s StretchedTime[T]) WithDays(days T) StretchedTime[T] {
	s.days = days
	return s
}

func (s StretchedTime[T]) String() string {
	return fmt.Sprintf("StretchedTime(days=%s, time_stretch=%s, normalizing_constant=%s)",
		s.days, s.timeStretch, s.normalizingConstant)
}

// DaysToYears converts a day count to years of 365 days.
func DaysToYears[T numeric.Number[T]](days T) T {
	return days.Div(numeric.Of[T](DaysPerYear))
}

// YearsToDays converts years of 365 days to a day count.
func YearsToDays[T numeric.Number[T]](years T) T {
	return years.Mul(numeric.Of[T](DaysPerYear))
}

// YearsRemaining returns the years left on a position minted at mintTime
// with the given duration, as of marketTime. All arguments are in years.
// Matured positions return 0.
func YearsRemaining[T numeric.Number[T]](marketTime, mintTime, durationYears T) (T, error) {
	if mintTime.Cmp(marketTime) > 0 {
		return numeric.Zero[T](), fmt.Errorf("%w: mint=%s market=%s", ErrMintInFuture, mintTime, marketTime)
	}
	remaining := mintTime.Add(durationYears).Sub(marketTime)
	return numeric.Max(remaining, numeric.Zero[T]()), nil
}
