package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var ctxID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	headerID := rec.Header().Get(RequestIDHeader)
	if headerID == "" {
		t.Fatal("expected X-Request-ID response header")
	}
	if _, err := uuid.Parse(headerID); err != nil {
		t.Errorf("expected a UUID request id, got %q", headerID)
	}
	if ctxID != headerID {
		t.Errorf("context id %q does not match header id %q", ctxID, headerID)
	}
}

func TestRequestID_PreservesIncoming(t *testing.T) {
	var ctxID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxID = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "client-supplied-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "client-supplied-id" {
		t.Errorf("expected incoming id to be preserved, got %q", got)
	}
	if ctxID != "client-supplied-id" {
		t.Errorf("expected incoming id in context, got %q", ctxID)
	}
}

func TestRequestID_ReplacesOversizedIncoming(t *testing.T) {
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	oversized := make([]byte, maxRequestIDLength+1)
	for i := range oversized {
		oversized[i] = 'x'
	}
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, string(oversized))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	got := rec.Header().Get(RequestIDHeader)
	if got == string(oversized) {
		t.Error("expected oversized id to be replaced")
	}
	if _, err := uuid.Parse(got); err != nil {
		t.Errorf("expected generated UUID, got %q", got)
	}
}

func TestGetRequestID_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	if got := GetRequestID(req.Context()); got != "" {
		t.Errorf("expected empty request id without middleware, got %q", got)
	}
}
