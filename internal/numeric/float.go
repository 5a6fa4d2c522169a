package numeric

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Float is the native floating-point variant.
type Float float64

var _ Number[Float] = Float(0)

func (Float) FromFloat(f float64) Float { return Float(f) }

func (Float) FromDecimal(d decimal.Decimal) Float { return Float(d.InexactFloat64()) }

func (f Float) Add(o Float) Float { return f + o }
func (f Float) Sub(o Float) Float { return f - o }
func (f Float) Mul(o Float) Float { return f * o }
func (f Float) Div(o Float) Float { return f / o }
func (f Float) Neg() Float        { return -f }
func (f Float) Abs() Float        { return Float(math.Abs(float64(f))) }

// Pow returns f^e. Negative bases with fractional exponents are NaN.
func (f Float) Pow(e Float) Float { return Float(math.Pow(float64(f), float64(e))) }

func (f Float) Cmp(o Float) int {
	switch {
	case f < o:
		return -1
	case f > o:
		return 1
	}
	return 0
}

func (f Float) Sign() int {
	switch {
	case f < 0:
		return -1
	case f > 0:
		return 1
	}
	return 0
}

// IsNaN reports whether f is undefined. Infinities count as undefined
// because no pricing quantity may be infinite.
func (f Float) IsNaN() bool {
	return math.IsNaN(float64(f)) || math.IsInf(float64(f), 0)
}

func (f Float) Float64() float64 { return float64(f) }

// Decimal converts f to an exact decimal. Undefined values map to zero;
// check IsNaN first.
func (f Float) Decimal() decimal.Decimal {
	if f.IsNaN() {
		return decimal.Zero
	}
	return decimal.NewFromFloat(float64(f))
}

func (f Float) String() string {
	return strconv.FormatFloat(float64(f), 'g', -1, 64)
}
