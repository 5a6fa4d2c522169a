package trade

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/delvtech/agent0-sub002/internal/limits"
	"github.com/delvtech/agent0-sub002/internal/market"
	"github.com/delvtech/agent0-sub002/internal/model"
	"github.com/delvtech/agent0-sub002/internal/pricing"
	"github.com/delvtech/agent0-sub002/internal/store"
	"github.com/delvtech/agent0-sub002/internal/term"
	"github.com/delvtech/agent0-sub002/internal/yieldspace"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: p1", store.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: 1e-20", pricing.ErrAmountTooSmall), http.StatusBadRequest},
		{term.ErrAssetMismatch, http.StatusBadRequest},
		{pricing.ErrNonPositiveAPR, http.StatusBadRequest},
		{market.ErrExceedsCapacity, http.StatusConflict},
		{limits.ErrAssetLimitExceeded, http.StatusConflict},
		{store.ErrPoolExists, http.StatusConflict},
		{yieldspace.ErrExceedsReserves, http.StatusUnprocessableEntity},
		{ErrNoCapacity, http.StatusUnprocessableEntity},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestRejectionReason(t *testing.T) {
	if got := rejectionReason(fmt.Errorf("%w: long", market.ErrExceedsCapacity)); got != "capacity" {
		t.Errorf("expected capacity, got %q", got)
	}
	if got := rejectionReason(limits.ErrShortLimitExceeded); got != "short_limit" {
		t.Errorf("expected short_limit, got %q", got)
	}
	if got := rejectionReason(pricing.ErrInvalidToken); got != "" {
		t.Errorf("expected no reason, got %q", got)
	}
}

func TestNewPricer(t *testing.T) {
	for _, num := range []string{model.NumericFloat, model.NumericFixed} {
		for _, m := range []string{model.ModelHyperdrive, model.ModelYieldSpace} {
			if _, err := newPricer(num, m); err != nil {
				t.Errorf("newPricer(%s, %s): %v", num, m, err)
			}
		}
	}
	if _, err := newPricer("bigint", model.ModelHyperdrive); !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("expected ErrUnknownVariant, got %v", err)
	}
	if _, err := newPricer(model.NumericFloat, "constant_product"); !errors.Is(err, ErrUnknownVariant) {
		t.Errorf("expected ErrUnknownVariant, got %v", err)
	}
}
