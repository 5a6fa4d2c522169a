package yieldspace

import (
	"github.com/shopspring/decimal"

	"github.com/delvtech/agent0-sub002/internal/numeric"
)

// curve is the invariant evaluated at wide precision. te is the time
// elapsed exponent 1 − τ and must be in (0, 1].
type curve struct {
	z, y, s   decimal.Decimal
	te        decimal.Decimal
	c, mu     decimal.Decimal
	cOverMu   decimal.Decimal
	undefined bool
}

func newCurve[T numeric.Number[T]](z, y, s, te, c, mu T) curve {
	if numeric.AnyNaN(z, y, s, te, c, mu) || te.Sign() <= 0 || mu.Sign() <= 0 {
		return curve{undefined: true}
	}
	w := curve{
		z: z.Decimal(), y: y.Decimal(), s: s.Decimal(),
		te: te.Decimal(), c: c.Decimal(), mu: mu.Decimal(),
	}
	r, err := numeric.DivDecimal(w.c, w.mu)
	if err != nil {
		return curve{undefined: true}
	}
	w.cOverMu = r
	return w
}

// shareTerm is (c/mu)·(mu·shares)^te.
func (w curve) shareTerm(shares decimal.Decimal) (decimal.Decimal, error) {
	p, err := numeric.PowDecimal(w.mu.Mul(shares), w.te)
	if err != nil {
		return decimal.Zero, err
	}
	return w.cOverMu.Mul(p), nil
}

// bondTerm is bonds^te.
func (w curve) bondTerm(bonds decimal.Decimal) (decimal.Decimal, error) {
	return numeric.PowDecimal(bonds, w.te)
}

func (w curve) k() (decimal.Decimal, error) {
	zt, err := w.shareTerm(w.z)
	if err != nil {
		return decimal.Zero, err
	}
	yt, err := w.bondTerm(w.y.Add(w.s))
	if err != nil {
		return decimal.Zero, err
	}
	return zt.Add(yt), nil
}

// bondsAt solves the invariant for the bond side given the post-trade
// share reserves: (k − (c/mu)·(mu·shares)^te)^(1/te).
func (w curve) bondsAt(shares decimal.Decimal) (decimal.Decimal, error) {
	k, err := w.k()
	if err != nil {
		return decimal.Zero, err
	}
	zt, err := w.shareTerm(shares)
	if err != nil {
		return decimal.Zero, err
	}
	inv, err := numeric.DivDecimal(decimal.NewFromInt(1), w.te)
	if err != nil {
		return decimal.Zero, err
	}
	return numeric.PowDecimal(k.Sub(zt), inv)
}

// sharesAt solves the invariant for the share side given the post-trade
// bond term: ((k − bonds^te)/(c/mu))^(1/te)/mu.
func (w curve) sharesAt(bonds decimal.Decimal) (decimal.Decimal, error) {
	k, err := w.k()
	if err != nil {
		return decimal.Zero, err
	}
	yt, err := w.bondTerm(bonds)
	if err != nil {
		return decimal.Zero, err
	}
	scaled, err := numeric.DivDecimal(k.Sub(yt), w.cOverMu)
	if err != nil {
		return decimal.Zero, err
	}
	inv, err := numeric.DivDecimal(decimal.NewFromInt(1), w.te)
	if err != nil {
		return decimal.Zero, err
	}
	p, err := numeric.PowDecimal(scaled, inv)
	if err != nil {
		return decimal.Zero, err
	}
	return numeric.DivDecimal(p, w.mu)
}

func result[T numeric.Number[T]](d decimal.Decimal, err error) T {
	if err != nil {
		return numeric.NaN[T]()
	}
	return numeric.FromDecimal[T](d)
}

// CalcYieldSpaceConst returns k = (c/mu)·(mu·z)^te + (y+s)^te.
func CalcYieldSpaceConst[T numeric.Number[T]](z, y, s, te, c, mu T) T {
	w := newCurve(z, y, s, te, c, mu)
	if w.undefined {
		return numeric.NaN[T]()
	}
	return result[T](w.k())
}

// CalcBondsInGivenSharesOut returns the bonds a trader pays to take dz
// shares out of the pool.
func CalcBondsInGivenSharesOut[T numeric.Number[T]](z, y, s, dz, te, c, mu T) T {
	w := newCurve(z, y, s, te, c, mu)
	if w.undefined || dz.IsNaN() {
		return numeric.NaN[T]()
	}
	after, err := w.bondsAt(w.z.Sub(dz.Decimal()))
	return result[T](after.Sub(w.y.Add(w.s)), err)
}

// CalcBondsOutGivenSharesIn returns the bonds a trader receives for
// putting dz shares into the pool.
func CalcBondsOutGivenSharesIn[T numeric.Number[T]](z, y, s, dz, te, c, mu T) T {
	w := newCurve(z, y, s, te, c, mu)
	if w.undefined || dz.IsNaN() {
		return numeric.NaN[T]()
	}
	after, err := w.bondsAt(w.z.Add(dz.Decimal()))
	return result[T](w.y.Add(w.s).Sub(after), err)
}

// CalcSharesInGivenBondsOut returns the shares a trader pays to take dy
// bonds out of the pool.
func CalcSharesInGivenBondsOut[T numeric.Number[T]](z, y, s, dy, te, c, mu T) T {
	w := newCurve(z, y, s, te, c, mu)
	if w.undefined || dy.IsNaN() {
		return numeric.NaN[T]()
	}
	after, err := w.sharesAt(w.y.Add(w.s).Sub(dy.Decimal()))
	return result[T](after.Sub(w.z), err)
}

// CalcSharesOutGivenBondsIn returns the shares a trader receives for
// putting dy bonds into the pool.
func CalcSharesOutGivenBondsIn[T numeric.Number[T]](z, y, s, dy, te, c, mu T) T {
	w := newCurve(z, y, s, te, c, mu)
	if w.undefined || dy.IsNaN() {
		return numeric.NaN[T]()
	}
	after, err := w.sharesAt(w.y.Add(w.s).Add(dy.Decimal()))
	return result[T](w.z.Sub(after), err)
}
