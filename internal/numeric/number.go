// Package numeric defines the arithmetic trait the pricing models are
// written against, and its two implementations:
//   - Float: native float64, for fast exploratory simulation
//   - Fixed: 18-decimal fixed point backed by cosmossdk.io/math LegacyDec,
//     for parity checks against an on-chain reference
//
// Both variants carry NaN as a first-class value so that numerically
// undefined results (e.g. a spot price on empty bond reserves) can be
// represented and returned instead of crashing the caller.
package numeric

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Number is the self-referential constraint satisfied by Float and Fixed.
// Constructors are methods on the zero value so generic code can build
// constants with Of[T].
type Number[T any] interface {
	FromFloat(f float64) T
	FromDecimal(d decimal.Decimal) T

	Add(o T) T
	Sub(o T) T
	Mul(o T) T
	Div(o T) T
	Pow(e T) T
	Neg() T
	Abs() T

	// Cmp returns -1, 0 or +1. The result is meaningless if either side is NaN.
	Cmp(o T) int
	Sign() int
	IsNaN() bool

	Float64() float64
	Decimal() decimal.Decimal
	String() string
}

// Of converts a float64 literal into T.
func Of[T Number[T]](f float64) T {
	var zero T
	return zero.FromFloat(f)
}

// Zero returns 0 in T.
func Zero[T Number[T]]() T { return Of[T](0) }

// One returns 1 in T.
func One[T Number[T]]() T { return Of[T](1) }

// NaN returns the undefined value of T.
func NaN[T Number[T]]() T { return Of[T](math.NaN()) }

// FromDecimal converts an exact decimal into T.
func FromDecimal[T Number[T]](d decimal.Decimal) T {
	var zero T
	return zero.FromDecimal(d)
}

// Parse reads a decimal string into T.
func Parse[T Number[T]](s string) (T, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("numeric: parse %q: %w", s, err)
	}
	return FromDecimal[T](d), nil
}

// MustParse is Parse for literals known to be valid.
func MustParse[T Number[T]](s string) T {
	v, err := Parse[T](s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether x == 0.
func IsZero[T Number[T]](x T) bool { return !x.IsNaN() && x.Sign() == 0 }

// Min returns the smaller of a and b.
func Min[T Number[T]](a, b T) T {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max[T Number[T]](a, b T) T {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// AnyNaN reports whether any of xs is NaN.
func AnyNaN[T Number[T]](xs ...T) bool {
	for _, x := range xs {
		if x.IsNaN() {
			return true
		}
	}
	return false
}
