package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/pools/{poolID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := counterValue(t, HTTPRequestsTotal.WithLabelValues("GET", "/pools/{poolID}", "404"))
	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pools/"+id, nil))
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	}
	after := counterValue(t, HTTPRequestsTotal.WithLabelValues("GET", "/pools/{poolID}", "404"))
	if after-before != 2 {
		t.Errorf("expected 2 requests under one route label, got %v", after-before)
	}
}

func TestStatusWriter_HijackUnsupported(t *testing.T) {
	w := &statusWriter{ResponseWriter: httptest.NewRecorder(), status: 200}
	if _, _, err := w.Hijack(); err == nil {
		t.Error("expected hijack error from a recorder")
	}
}
