package trade

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/delvtech/agent0-sub002/internal/limits"
	"github.com/delvtech/agent0-sub002/internal/market"
	"github.com/delvtech/agent0-sub002/internal/numeric"
	"github.com/delvtech/agent0-sub002/internal/pricing"
	"github.com/delvtech/agent0-sub002/internal/store"
	"github.com/delvtech/agent0-sub002/internal/term"
	"github.com/delvtech/agent0-sub002/internal/timeutil"
	"github.com/delvtech/agent0-sub002/internal/yieldspace"
)

var (
	ErrBadRequest           = errors.New("trade: bad request")
	ErrInsufficientPosition = errors.New("trade: position smaller than amount")
)

var badRequest = []error{
	ErrBadRequest,
	ErrUnknownVariant,
	pricing.ErrInvalidToken,
	pricing.ErrAmountTooSmall,
	pricing.ErrNegativeReserves,
	pricing.ErrInvalidSharePrice,
	pricing.ErrInvalidInitSharePrice,
	pricing.ErrReservesImbalance,
	pricing.ErrInvalidFee,
	pricing.ErrInvalidTime,
	pricing.ErrUndefinedInput,
	pricing.ErrNonPositiveAPR,
	pricing.ErrNonPositiveStretchedTime,
	timeutil.ErrNonPositiveStretch,
	timeutil.ErrNonPositiveNormalize,
	term.ErrInvalidSymbol,
	term.ErrInvalidTicker,
	term.ErrInvalidAsset,
	term.ErrInvalidDuration,
	term.ErrAssetMismatch,
}

var conflict = []error{
	store.ErrPoolExists,
	market.ErrAlreadyInitialized,
	market.ErrExceedsCapacity,
	market.ErrSlippage,
	limits.ErrLongLimitExceeded,
	limits.ErrShortLimitExceeded,
	limits.ErrAssetLimitExceeded,
	ErrInsufficientPosition,
}

var unprocessable = []error{
	ErrNoCapacity,
	ErrUndefinedPrice,
	yieldspace.ErrExceedsReserves,
	pricing.ErrNegativeFee,
	pricing.ErrNegativeAmount,
	pricing.ErrFeeDirection,
	pricing.ErrUndefinedResult,
	pricing.ErrEmptyPool,
	pricing.ErrLPExceedsTotal,
	numeric.ErrUndefinedPow,
	numeric.ErrDivByZero,
	numeric.ErrOutOfRange,
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case matchesAny(err, badRequest):
		return http.StatusBadRequest
	case matchesAny(err, conflict):
		return http.StatusConflict
	case matchesAny(err, unprocessable):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func matchesAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// rejectionReason labels limit rejections for metrics. Empty for other
// errors.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, market.ErrExceedsCapacity):
		return "capacity"
	case errors.Is(err, market.ErrSlippage):
		return "slippage"
	case errors.Is(err, limits.ErrLongLimitExceeded):
		return "long_limit"
	case errors.Is(err, limits.ErrShortLimitExceeded):
		return "short_limit"
	case errors.Is(err, limits.ErrAssetLimitExceeded):
		return "asset_limit"
	}
	return ""
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// fail writes err with its mapped status. Internal errors are not echoed.
func fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		writeError(w, "internal error", status)
		return
	}
	writeError(w, err.Error(), status)
}
