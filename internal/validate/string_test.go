package validate

import (
	"errors"
	"strings"
	"testing"
)

func TestName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"valid", "Back Squat", "Back Squat", nil},
		{"trims whitespace", "  Back Squat  ", "Back Squat", nil},
		{"empty", "", "", ErrEmpty},
		{"whitespace only", "   ", "", ErrEmpty},
		{"too long", strings.Repeat("a", 101), "", ErrStringTooLong},
		{"max length ok", strings.Repeat("a", 100), strings.Repeat("a", 100), nil},
		{"unicode counted as runes", strings.Repeat("ü", 100), strings.Repeat("ü", 100), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Name(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTitle(t *testing.T) {
	if _, err := Title(strings.Repeat("a", 201)); !errors.Is(err, ErrStringTooLong) {
		t.Errorf("expected ErrStringTooLong, got %v", err)
	}
	if _, err := Title("12 Week Strength Base"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDescription_AllowsEmpty(t *testing.T) {
	got, err := Description("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty string, got %q", got)
	}

	if _, err := Description(strings.Repeat("a", 5001)); !errors.Is(err, ErrStringTooLong) {
		t.Errorf("expected ErrStringTooLong, got %v", err)
	}
}
