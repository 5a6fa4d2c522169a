package numeric

import (
	"errors"

	"github.com/shopspring/decimal"
)

// WidePrecision is the number of fractional digits carried by the
// high-precision path. It is used for every fractional power and for the
// YieldSpace invariant regardless of the outer numeric variant.
const WidePrecision int32 = 36

var (
	// ErrUndefinedPow is returned for negative bases and for 0^e with e <= 0.
	ErrUndefinedPow = errors.New("numeric: power is undefined for base and exponent")

	// ErrDivByZero is returned by DivDecimal for a zero divisor.
	ErrDivByZero = errors.New("numeric: division by zero")

	// ErrOutOfRange is returned when exp() would leave the float64 range.
	ErrOutOfRange = errors.New("numeric: result out of range")
)

var (
	wideOne = decimal.NewFromInt(1)
	maxExp  = decimal.NewFromInt(700)
)

// PowDecimal returns x^e computed as exp(e * ln x) at WidePrecision digits.
func PowDecimal(x, e decimal.Decimal) (decimal.Decimal, error) {
	switch {
	case e.IsZero():
		return wideOne, nil
	case x.IsZero():
		if e.IsPositive() {
			return decimal.Zero, nil
		}
		return decimal.Zero, ErrUndefinedPow
	case x.IsNegative():
		return decimal.Zero, ErrUndefinedPow
	case x.Equal(wideOne):
		return wideOne, nil
	case e.Equal(wideOne):
		return x, nil
	}

	ln, err := x.Ln(WidePrecision + 4)
	if err != nil {
		return decimal.Zero, err
	}
	arg := ln.Mul(e).Round(WidePrecision + 4)
	if arg.Abs().GreaterThan(maxExp) {
		return decimal.Zero, ErrOutOfRange
	}
	return arg.ExpTaylor(WidePrecision)
}

// DivDecimal returns a / b rounded to WidePrecision digits.
func DivDecimal(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, ErrDivByZero
	}
	return a.DivRound(b, WidePrecision), nil
}
