package validate

import (
	"errors"
	"regexp"
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		constraints StringConstraints
		want        string
		wantErr     error
	}{
		{"trimmed", "  hello  ", StringConstraints{TrimSpace: true}, "hello", nil},
		{"empty rejected", "", StringConstraints{}, "", ErrEmpty},
		{"empty allowed", "   ", StringConstraints{TrimSpace: true, AllowEmpty: true}, "", nil},
		{"too short", "ab", StringConstraints{MinLength: 3}, "", ErrStringTooShort},
		{"too long", "abcd", StringConstraints{MaxLength: 3}, "", ErrStringTooLong},
		{"runes counted", "héé", StringConstraints{MaxLength: 3}, "héé", nil},
		{"pattern mismatch", "a b", StringConstraints{AllowedPattern: regexp.MustCompile(`^\w+$`)}, "", ErrInvalidCharacters},
		{"invalid utf8", "a\xffb", StringConstraints{}, "", ErrInvalidCharacters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := String(tt.input, tt.constraints)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("String() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUsername(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr error
	}{
		{"alice", "alice", nil},
		{"  bob_99 ", "bob_99", nil},
		{"a.b-c", "a.b-c", nil},
		{"al", "", ErrStringTooShort},
		{strings.Repeat("x", 33), "", ErrStringTooLong},
		{"has space", "", ErrInvalidCharacters},
		{"<script>", "", ErrInvalidCharacters},
		{"", "", ErrEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Username(tt.input)
			if !errors.Is(err, tt.wantErr) || got != tt.want {
				t.Errorf("Username(%q) = %q, %v; want %q, %v", tt.input, got, err, tt.want, tt.wantErr)
			}
		})
	}
}

func TestPassword(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"ok", "secret1", nil},
		{"empty", "", ErrEmpty},
		{"short", "abc", ErrStringTooShort},
		{"bcrypt limit", strings.Repeat("p", 73), ErrStringTooLong},
		{"exactly 72", strings.Repeat("p", 72), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Password(tt.input); !errors.Is(err, tt.wantErr) {
				t.Errorf("Password() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestServiceFields(t *testing.T) {
	if got, err := ServiceTitle("  Logo design "); err != nil || got != "Logo design" {
		t.Errorf("ServiceTitle = %q, %v", got, err)
	}
	if _, err := ServiceTitle(strings.Repeat("t", 201)); !errors.Is(err, ErrStringTooLong) {
		t.Errorf("expected ErrStringTooLong, got %v", err)
	}
	if _, err := ServiceDescription(" "); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
	if got, err := ServiceDescription("Vector logos"); err != nil || got != "Vector logos" {
		t.Errorf("ServiceDescription = %q, %v", got, err)
	}
}

func TestPrice(t *testing.T) {
	tests := []struct {
		input   string
		want    float64
		wantErr bool
	}{
		{"50", 50, false},
		{" 19.99 ", 19.99, false},
		{"0.01", 0.01, false},
		{"1000000", 1000000, false},
		{"0", 0, true},
		{"-5", 0, true},
		{"abc", 0, true},
		{"", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
		{"1000000.01", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Price(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPrice) {
					t.Errorf("Price(%q) error = %v, want ErrInvalidPrice", tt.input, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("Price(%q) = %v, %v; want %v", tt.input, got, err, tt.want)
			}
		})
	}
}
