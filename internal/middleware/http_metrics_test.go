package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/programs", "/programs"},
		{"/access/status", "/access/status"},
		{"/payments/checkout", "/payments/checkout"},
		{"/internal/stripe", "/internal/stripe"},
		{"/exercises/ex-123", "/exercises/{id}"},
		{"/protocols/pr-9", "/protocols/{id}"},
		{"/workouts/w-1/block-order", "/workouts/{id}/block-order"},
		{"/programs/p-1", "/programs/{id}"},
		{"/programs/p-1/publish", "/programs/{id}/publish"},
		{"/programs/p-1/workout-order", "/programs/{id}/workout-order"},
		{"/programs/p-1/grants", "/programs/{id}/grants"},
		{"/programs/p-1/grants/athlete-1", "/programs/{id}/grants/{user_id}"},
		{"/unknown/route", "/unknown/route"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := normalizePath(tt.path); got != tt.want {
				t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestHTTPMetrics_RecordsRequests(t *testing.T) {
	metrics := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/programs/p-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var m dto.Metric
	counter, err := metrics.httpRequestsTotal.GetMetricWithLabelValues(http.MethodGet, "/programs/{id}", "200")
	if err != nil {
		t.Fatalf("failed to get counter: %v", err)
	}
	if err := counter.Write(&m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	if got := m.GetCounter().GetValue(); got != 1 {
		t.Errorf("expected 1 recorded request, got %g", got)
	}
}

func TestHTTPMetrics_SkipsHealthEndpoints(t *testing.T) {
	metrics := NewMetrics()

	handler := HTTPMetrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		counter, err := metrics.httpRequestsTotal.GetMetricWithLabelValues(http.MethodGet, path, "200")
		if err != nil {
			t.Fatalf("failed to get counter: %v", err)
		}
		var m dto.Metric
		if err := counter.Write(&m); err != nil {
			t.Fatalf("failed to read counter: %v", err)
		}
		if got := m.GetCounter().GetValue(); got != 0 {
			t.Errorf("%s: expected no recorded requests, got %g", path, got)
		}
	}
}
