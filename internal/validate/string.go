// Package validate provides input validation for the API's user-supplied
// fields: catalog names and titles, free-form notes, and the redirect URLs
// the browser client hands to checkout.
package validate

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// String validation errors
var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrEmpty             = errors.New("string is empty")
)

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength  int  // Minimum length in runes (0 = no minimum)
	MaxLength  int  // Maximum length in runes (0 = no maximum)
	AllowEmpty bool // Whether empty strings are allowed
}

// String validates a string against the given constraints. Input is trimmed
// before validation; the trimmed string is returned.
func (c StringConstraints) String(s string) (string, error) {
	s = strings.TrimSpace(s)

	if s == "" {
		if !c.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	length := utf8.RuneCountInString(s)
	if c.MinLength > 0 && length < c.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, c.MinLength)
	}
	if c.MaxLength > 0 && length > c.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, c.MaxLength)
	}

	return s, nil
}

// Name validates a catalog entity name (exercise, protocol, block): required,
// at most 100 characters.
func Name(name string) (string, error) {
	return StringConstraints{MinLength: 1, MaxLength: 100}.String(name)
}

// Title validates a workout or program title: required, at most 200 characters.
func Title(title string) (string, error) {
	return StringConstraints{MinLength: 1, MaxLength: 200}.String(title)
}

// Description validates an optional description or notes field, capped at
// 5000 characters.
func Description(desc string) (string, error) {
	return StringConstraints{MaxLength: 5000, AllowEmpty: true}.String(desc)
}
