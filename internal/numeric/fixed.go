package numeric

import (
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
)

// FixedPrecision is the number of fractional digits held by Fixed.
const FixedPrecision = 18

// Fixed is an 18-decimal fixed-point number backed by sdkmath.LegacyDec.
//
// Multiplication and division round half-to-even at the 18th digit.
// Overflow past the LegacyDec bit limit, division by zero and undefined
// powers yield NaN instead of panicking; NaN propagates through every
// operation. The zero value is 0.
type Fixed struct {
	d   sdkmath.LegacyDec
	nan bool
}

var _ Number[Fixed] = Fixed{}

// NewFixed parses a decimal string with at most 18 fractional digits.
func NewFixed(s string) (Fixed, error) {
	d, err := sdkmath.LegacyNewDecFromStr(s)
	if err != nil {
		return Fixed{}, fmt.Errorf("numeric: fixed %q: %w", s, err)
	}
	return Fixed{d: d}, nil
}

// FixedFromDec wraps an existing LegacyDec.
func FixedFromDec(d sdkmath.LegacyDec) Fixed {
	if d.IsNil() {
		return Fixed{}
	}
	return Fixed{d: d}
}

func fixedNaN() Fixed { return Fixed{nan: true} }

func (x Fixed) dec() sdkmath.LegacyDec {
	if x.d.IsNil() {
		return sdkmath.LegacyZeroDec()
	}
	return x.d
}

// Dec returns the underlying LegacyDec. NaN maps to zero.
func (x Fixed) Dec() sdkmath.LegacyDec { return x.dec() }

// guard runs op and converts a LegacyDec overflow panic into NaN.
func guard(op func() sdkmath.LegacyDec) (out Fixed) {
	defer func() {
		if r := recover(); r != nil {
			out = fixedNaN()
		}
	}()
	return Fixed{d: op()}
}

func (Fixed) FromFloat(f float64) Fixed {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fixedNaN()
	}
	// Shortest round-trip representation, so 0.05 is 0.05 and not
	// 0.050000000000000003.
	return Fixed{}.FromDecimal(decimal.NewFromFloat(f))
}

func (Fixed) FromDecimal(v decimal.Decimal) Fixed {
	d, err := sdkmath.LegacyNewDecFromStr(v.StringFixed(FixedPrecision))
	if err != nil {
		return fixedNaN()
	}
	return Fixed{d: d}
}

func (x Fixed) Add(o Fixed) Fixed {
	if x.nan || o.nan {
		return fixedNaN()
	}
	return guard(func() sdkmath.LegacyDec { return x.dec().Add(o.dec()) })
}

func (x Fixed) Sub(o Fixed) Fixed {
	if x.nan || o.nan {
		return fixedNaN()
	}
	return guard(func() sdkmath.LegacyDec { return x.dec().Sub(o.dec()) })
}

func (x Fixed) Mul(o Fixed) Fixed {
	if x.nan || o.nan {
		return fixedNaN()
	}
	return guard(func() sdkmath.LegacyDec { return x.dec().Mul(o.dec()) })
}

func (x Fixed) Div(o Fixed) Fixed {
	if x.nan || o.nan || o.dec().IsZero() {
		return fixedNaN()
	}
	return guard(func() sdkmath.LegacyDec { return x.dec().Quo(o.dec()) })
}

// Pow returns x^e through the wide decimal path, rounded to 18 digits.
func (x Fixed) Pow(e Fixed) Fixed {
	if x.nan || e.nan {
		return fixedNaN()
	}
	r, err := PowDecimal(x.Decimal(), e.Decimal())
	if err != nil {
		return fixedNaN()
	}
	return Fixed{}.FromDecimal(r)
}

func (x Fixed) Neg() Fixed {
	if x.nan {
		return x
	}
	return Fixed{d: x.dec().Neg()}
}

func (x Fixed) Abs() Fixed {
	if x.nan {
		return x
	}
	return Fixed{d: x.dec().Abs()}
}

func (x Fixed) Cmp(o Fixed) int {
	a, b := x.dec(), o.dec()
	switch {
	case a.LT(b):
		return -1
	case a.GT(b):
		return 1
	}
	return 0
}

func (x Fixed) Sign() int {
	d := x.dec()
	switch {
	case d.IsNegative():
		return -1
	case d.IsPositive():
		return 1
	}
	return 0
}

func (x Fixed) IsNaN() bool { return x.nan }

func (x Fixed) Float64() float64 {
	if x.nan {
		return math.NaN()
	}
	f, err := x.dec().Float64()
	if err != nil {
		return math.NaN()
	}
	return f
}

// Decimal converts x to an exact decimal. NaN maps to zero; check IsNaN first.
func (x Fixed) Decimal() decimal.Decimal {
	if x.nan {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(x.dec().String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (x Fixed) String() string {
	if x.nan {
		return "NaN"
	}
	return x.dec().String()
}
