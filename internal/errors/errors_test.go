package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ValidationError
		expected string
	}{
		{
			name:     "malformed input",
			err:      &ValidationError{Kind: KindMalformedInput},
			expected: "This VAT number does not start with a country code, or contains invalid characters.",
		},
		{
			name:     "country not allowed",
			err:      &ValidationError{Kind: KindCountryNotAllowed, Country: "NO"},
			expected: "NO VAT numbers are not allowed in this field.",
		},
		{
			name:     "unknown country",
			err:      &ValidationError{Kind: KindUnknownCountry, Country: "ZZ"},
			expected: "This VAT number is not for a known country.",
		},
		{
			name:     "invalid for country",
			err:      &ValidationError{Kind: KindInvalidForCountry, Country: "NL"},
			expected: "This VAT number does not match the requirements for NL.",
		},
		{
			name:     "not registered",
			err:      &ValidationError{Kind: KindNotRegistered, Country: "BE"},
			expected: "This VAT number does not exist.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("ValidationError.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestKind_Code(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindMalformedInput, "malformed_input"},
		{KindCountryNotAllowed, "country_not_allowed"},
		{KindUnknownCountry, "unknown_country"},
		{KindInvalidForCountry, "invalid_for_country"},
		{KindNotRegistered, "not_registered"},
		{Kind(0), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.kind.Code(); got != tt.want {
			t.Errorf("Kind(%d).Code() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestIsValidation(t *testing.T) {
	err := NewValidationError(KindInvalidForCountry, "BE")
	if !IsValidation(err) {
		t.Error("IsValidation should return true for ValidationError")
	}
	if !IsValidation(fmt.Errorf("wrapped: %w", err)) {
		t.Error("IsValidation should see through wrapping")
	}
	if IsValidation(errors.New("other")) {
		t.Error("IsValidation should return false for other errors")
	}
	if IsValidation(nil) {
		t.Error("IsValidation should return false for nil")
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(NewValidationError(KindNotRegistered, "NL")); got != KindNotRegistered {
		t.Errorf("KindOf = %v, want %v", got, KindNotRegistered)
	}
	if got := KindOf(errors.New("plain")); got != 0 {
		t.Errorf("KindOf(plain) = %v, want 0", got)
	}
}

func TestConfigError(t *testing.T) {
	tests := []struct {
		name     string
		err      *ConfigError
		expected string
	}{
		{
			name:     "field and value",
			err:      NewConfigError("allowed_countries", "nl", ErrInvalidCountryCode),
			expected: `improperly configured: allowed_countries="nl": invalid country code`,
		},
		{
			name:     "field only",
			err:      NewConfigError("remote_check", "", ErrRemoteCheckUnavailable),
			expected: "improperly configured: remote_check: remote VAT check requested but no registry client is available",
		},
		{
			name:     "no field",
			err:      NewConfigError("", "", ErrRemoteCheckUnavailable),
			expected: "improperly configured: remote VAT check requested but no registry client is available",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("ConfigError.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestConfigError_Unwrap(t *testing.T) {
	err := NewConfigError("remote_check", "", ErrRemoteCheckUnavailable)
	if !errors.Is(err, ErrRemoteCheckUnavailable) {
		t.Error("errors.Is should match the wrapped sentinel")
	}
	if !IsConfig(err) {
		t.Error("IsConfig should return true for ConfigError")
	}
	if IsConfig(NewValidationError(KindMalformedInput, "")) {
		t.Error("IsConfig should return false for ValidationError")
	}
}
