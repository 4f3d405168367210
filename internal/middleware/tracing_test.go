package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTracing_Passthrough(t *testing.T) {
	var served bool
	handler := Tracing("test-service")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/programs/p-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !served {
		t.Fatal("expected wrapped handler to run")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestGetTraceID_NoActiveSpan(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/programs", nil)
	if got := GetTraceID(req); got != "" {
		t.Errorf("expected empty trace id without a span, got %q", got)
	}
}
