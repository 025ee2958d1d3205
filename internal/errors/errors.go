// Package errors provides shared error types for VAT number validation.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind identifies why a VAT number failed validation.
type Kind int

const (
	KindMalformedInput    Kind = iota + 1 // does not match ^[A-Z]{2}[A-Z0-9]+$
	KindCountryNotAllowed                 // country excluded by configuration
	KindUnknownCountry                    // no syntax rule for the country code
	KindInvalidForCountry                 // syntax or checksum mismatch
	KindNotRegistered                     // registry explicitly rejected the number
)

// Code returns a stable identifier for the kind, used for metrics labels and translation keys.
func (k Kind) Code() string {
	switch k {
	case KindMalformedInput:
		return "malformed_input"
	case KindCountryNotAllowed:
		return "country_not_allowed"
	case KindUnknownCountry:
		return "unknown_country"
	case KindInvalidForCountry:
		return "invalid_for_country"
	case KindNotRegistered:
		return "not_registered"
	default:
		return "unknown"
	}
}

func (k Kind) String() string {
	return k.Code()
}

// ValidationError is a per-call validation failure. Country is empty for
// KindMalformedInput since no country code could be extracted.
type ValidationError struct {
	Kind    Kind
	Country string
}

// Error renders the user-facing message template for the failure kind.
func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindMalformedInput:
		return "This VAT number does not start with a country code, or contains invalid characters."
	case KindCountryNotAllowed:
		return fmt.Sprintf("%s VAT numbers are not allowed in this field.", e.Country)
	case KindUnknownCountry:
		return "This VAT number is not for a known country."
	case KindInvalidForCountry:
		return fmt.Sprintf("This VAT number does not match the requirements for %s.", e.Country)
	case KindNotRegistered:
		return "This VAT number does not exist."
	default:
		return "This VAT number is not valid."
	}
}

// NewValidationError creates a ValidationError.
func NewValidationError(kind Kind, country string) *ValidationError {
	return &ValidationError{Kind: kind, Country: country}
}

// IsValidation returns true if err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return stderrors.As(err, &ve)
}

// KindOf returns the failure kind carried by err, or 0 if err is not a ValidationError.
func KindOf(err error) Kind {
	var ve *ValidationError
	if stderrors.As(err, &ve) {
		return ve.Kind
	}
	return 0
}

// Sentinel configuration errors. ConfigError wraps one of these so callers can use errors.Is.
var (
	ErrRemoteCheckUnavailable = stderrors.New("remote VAT check requested but no registry client is available")
	ErrInvalidCountryCode     = stderrors.New("invalid country code")
)

// ConfigError is a construction-time error. It is fatal and distinct from per-call
// validation failures.
type ConfigError struct {
	Field string
	Value string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field != "" && e.Value != "" {
		return fmt.Sprintf("improperly configured: %s=%q: %v", e.Field, e.Value, e.Err)
	}
	if e.Field != "" {
		return fmt.Sprintf("improperly configured: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("improperly configured: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a ConfigError.
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{Field: field, Value: value, Err: err}
}

// IsConfig returns true if err is, or wraps, a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return stderrors.As(err, &ce)
}
