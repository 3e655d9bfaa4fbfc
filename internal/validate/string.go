// Package validate provides input validation for request fields, uploads and URLs.
package validate

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// String validation errors
var (
	ErrStringTooShort    = errors.New("string is too short")
	ErrStringTooLong     = errors.New("string is too long")
	ErrInvalidCharacters = errors.New("string contains invalid characters")
	ErrEmpty             = errors.New("string is empty")
	ErrInvalidPrice      = errors.New("invalid price")
)

// MaxPrice is the highest accepted service price.
const MaxPrice = 1_000_000

// StringConstraints defines validation constraints for a string.
type StringConstraints struct {
	MinLength      int            // Minimum length in runes (0 = no minimum)
	MaxLength      int            // Maximum length in runes (0 = no maximum)
	AllowedPattern *regexp.Regexp // Optional pattern the whole string must match
	AllowEmpty     bool
	TrimSpace      bool
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// String validates s against the constraints and returns the (optionally trimmed) value.
func String(s string, constraints StringConstraints) (string, error) {
	if constraints.TrimSpace {
		s = strings.TrimSpace(s)
	}

	if s == "" {
		if !constraints.AllowEmpty {
			return "", ErrEmpty
		}
		return s, nil
	}

	if !utf8.ValidString(s) {
		return "", fmt.Errorf("%w: invalid UTF-8", ErrInvalidCharacters)
	}

	length := utf8.RuneCountInString(s)
	if constraints.MinLength > 0 && length < constraints.MinLength {
		return "", fmt.Errorf("%w: got %d chars, need at least %d", ErrStringTooShort, length, constraints.MinLength)
	}
	if constraints.MaxLength > 0 && length > constraints.MaxLength {
		return "", fmt.Errorf("%w: got %d chars, maximum is %d", ErrStringTooLong, length, constraints.MaxLength)
	}

	if constraints.AllowedPattern != nil && !constraints.AllowedPattern.MatchString(s) {
		return "", fmt.Errorf("%w: does not match required pattern", ErrInvalidCharacters)
	}

	return s, nil
}

// Username validates a login name: 3-32 letters, digits, '_', '.' or '-'.
func Username(name string) (string, error) {
	return String(name, StringConstraints{
		MinLength:      3,
		MaxLength:      32,
		AllowedPattern: usernamePattern,
		TrimSpace:      true,
	})
}

// Password validates a password: 6-72 bytes, the most bcrypt uses.
func Password(password string) error {
	if password == "" {
		return ErrEmpty
	}
	if len(password) < 6 {
		return fmt.Errorf("%w: need at least 6 characters", ErrStringTooShort)
	}
	if len(password) > 72 {
		return fmt.Errorf("%w: maximum is 72 bytes", ErrStringTooLong)
	}
	return nil
}

// ServiceTitle validates a listing title: required, at most 200 characters.
func ServiceTitle(title string) (string, error) {
	return String(title, StringConstraints{
		MinLength: 1,
		MaxLength: 200,
		TrimSpace: true,
	})
}

// ServiceDescription validates a listing description: required, at most 5000 characters.
func ServiceDescription(desc string) (string, error) {
	return String(desc, StringConstraints{
		MinLength: 1,
		MaxLength: 5000,
		TrimSpace: true,
	})
}

// Price parses a form price. It must be a finite number in (0, MaxPrice].
func Price(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: %w", ErrInvalidPrice, ErrEmpty)
	}
	p, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidPrice, s)
	}
	if p <= 0 || p > MaxPrice {
		return 0, fmt.Errorf("%w: must be greater than 0 and at most %d", ErrInvalidPrice, MaxPrice)
	}
	return p, nil
}
