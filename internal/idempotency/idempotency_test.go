package idempotency

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"valid key", "client-key-123", nil},
		{"empty key", "", ErrInvalidKey},
		{"max length", strings.Repeat("a", MaxKeyLength), nil},
		{"too long", strings.Repeat("a", MaxKeyLength+1), ErrKeyTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateKey(%q) = %v, want %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestInMemoryRepository_StoreAndGet(t *testing.T) {
	repo := NewInMemoryRepository()

	sessionID := "cs_test_1"
	record := &IdempotencyKey{
		Key:                "key-1",
		Method:             "POST",
		Route:              "/payments/checkout",
		CheckoutSessionID:  &sessionID,
		Status:             StatusCompleted,
		ResponseBody:       `{"session_id":"cs_test_1"}`,
		ResponseStatusCode: 201,
	}
	record.ResponseHash = ComputeResponseHash(record.ResponseBody)

	if err := repo.Store(record); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, err := repo.Get("key-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ResponseStatusCode != 201 {
		t.Errorf("expected status code 201, got %d", got.ResponseStatusCode)
	}
	if got.CheckoutSessionID == nil || *got.CheckoutSessionID != "cs_test_1" {
		t.Errorf("expected session cs_test_1, got %v", got.CheckoutSessionID)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set on store")
	}

	// Mutating the returned record must not touch the stored copy.
	*got.CheckoutSessionID = "cs_mutated"
	again, err := repo.Get("key-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if *again.CheckoutSessionID != "cs_test_1" {
		t.Errorf("stored record was mutated through the returned copy: %q", *again.CheckoutSessionID)
	}
}

func TestInMemoryRepository_Get_NotFound(t *testing.T) {
	repo := NewInMemoryRepository()
	if _, err := repo.Get("missing"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestInMemoryRepository_Store_Duplicate(t *testing.T) {
	repo := NewInMemoryRepository()

	if err := repo.Store(&IdempotencyKey{Key: "key-1"}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := repo.Store(&IdempotencyKey{Key: "key-1"}); !errors.Is(err, ErrKeyExists) {
		t.Errorf("expected ErrKeyExists, got %v", err)
	}
}

func TestInMemoryRepository_Store_InvalidKey(t *testing.T) {
	repo := NewInMemoryRepository()
	if err := repo.Store(&IdempotencyKey{Key: ""}); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}
}

func TestCleanupOldKeys(t *testing.T) {
	repo := NewInMemoryRepository()

	if err := repo.Store(&IdempotencyKey{
		Key:       "stale",
		CreatedAt: time.Now().Add(-48 * time.Hour),
	}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := repo.Store(&IdempotencyKey{Key: "fresh"}); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	deleted, err := CleanupOldKeys(repo, DefaultExpiry)
	if err != nil {
		t.Fatalf("CleanupOldKeys failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 key deleted, got %d", deleted)
	}

	if _, err := repo.Get("stale"); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("expected stale key removed, got %v", err)
	}
	if _, err := repo.Get("fresh"); err != nil {
		t.Errorf("expected fresh key kept, got %v", err)
	}
}

func TestComputeResponseHash(t *testing.T) {
	a := ComputeResponseHash(`{"session_id":"cs_1"}`)
	b := ComputeResponseHash(`{"session_id":"cs_1"}`)
	c := ComputeResponseHash(`{"session_id":"cs_2"}`)

	if a != b {
		t.Error("equal bodies must hash equal")
	}
	if a == c {
		t.Error("different bodies must hash different")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256 length 64, got %d", len(a))
	}
}
