package pricing

import "github.com/delvtech/agent0-sub002/internal/numeric"

// CurveFee charges the curve fee multiple on the distance between the
// no-slippage amount and the actual amount, and returns the fee together
// with its governance split. The distance is taken as an absolute value so
// that skewed reserves can never produce a negative fee.
func CurveFee[T numeric.Number[T]](withoutSlippage, amount T, ms MarketState[T]) (fee, gov T) {
	fee = withoutSlippage.Sub(amount).Abs().Mul(ms.CurveFeeMultiple)
	return fee, GovernanceFee(fee, ms)
}

// FlatFee charges the flat fee multiple on the matured notional.
func FlatFee[T numeric.Number[T]](flatWithoutFee T, ms MarketState[T]) (fee, gov T) {
	fee = flatWithoutFee.Mul(ms.FlatFeeMultiple)
	return fee, GovernanceFee(fee, ms)
}

// GovernanceFee is the share of an already computed fee routed to
// governance.
func GovernanceFee[T numeric.Number[T]](fee T, ms MarketState[T]) T {
	return fee.Mul(ms.GovernanceFeeMultiple)
}
