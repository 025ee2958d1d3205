package vat

import (
	"context"
	"strings"

	apierrors "github.com/olgasafonova/vat-registry-mcp-server/internal/errors"
)

// Config controls which numbers a Validator accepts.
type Config struct {
	// EUOnly restricts numbers to the EU VAT area.
	EUOnly bool

	// AllowedCountries restricts numbers to the listed codes. Combined with
	// EUOnly as a union. Empty means no restriction.
	AllowedCountries []CountryCode

	// RemoteCheck confirms EU VAT area numbers with the registry.
	RemoteCheck bool

	// StrictChecksums adds the DK, FI, NO and SE check-digit routines to the
	// NL and BE ones that always run.
	StrictChecksums bool
}

// Result describes a successful validation.
type Result struct {
	Number    string      `json:"number"`
	Country   CountryCode `json:"country"`
	Remainder string      `json:"remainder"`

	// Remote is the registry outcome. Status is OutcomeSkipped when no
	// confirmation was attempted. An Indeterminate outcome still counts as valid.
	Remote Outcome `json:"-"`
}

// Validator validates VAT numbers against a fixed configuration.
// It holds no mutable state and is safe for concurrent use.
type Validator struct {
	allowed     map[CountryCode]struct{}
	remoteCheck bool
	strict      bool
	confirmer   Confirmer
}

// Option configures a Validator.
type Option func(*Validator)

// WithConfirmer sets the registry client used when remote checking is enabled.
func WithConfirmer(c Confirmer) Option {
	return func(v *Validator) {
		v.confirmer = c
	}
}

// NewValidator creates a Validator. It fails with a ConfigError when remote
// checking is requested without a Confirmer, or when an allowed country code
// is not two uppercase letters.
func NewValidator(cfg Config, opts ...Option) (*Validator, error) {
	v := &Validator{remoteCheck: cfg.RemoteCheck, strict: cfg.StrictChecksums}
	for _, opt := range opts {
		opt(v)
	}

	if v.remoteCheck && v.confirmer == nil {
		return nil, apierrors.NewConfigError("remote_check", "", apierrors.ErrRemoteCheckUnavailable)
	}

	if cfg.EUOnly || len(cfg.AllowedCountries) > 0 {
		v.allowed = make(map[CountryCode]struct{}, len(euVATArea)+len(cfg.AllowedCountries))
	}
	if cfg.EUOnly {
		for code := range euVATArea {
			v.allowed[code] = struct{}{}
		}
	}
	for _, code := range cfg.AllowedCountries {
		if !code.Valid() {
			return nil, apierrors.NewConfigError("allowed_countries", string(code), apierrors.ErrInvalidCountryCode)
		}
		v.allowed[code] = struct{}{}
	}

	return v, nil
}

// RemoteCheck reports whether the validator confirms numbers with the registry.
func (v *Validator) RemoteCheck() bool {
	return v.remoteCheck
}

// HasChecksum reports whether Validate runs a check-digit routine for code.
func (v *Validator) HasChecksum(code CountryCode) bool {
	_, ok := lookupChecksum(code, v.strict)
	return ok
}

// Allows reports whether the country passes the configured restriction.
func (v *Validator) Allows(code CountryCode) bool {
	if v.allowed == nil {
		return true
	}
	_, ok := v.allowed[code]
	return ok
}

// Validate checks number and returns a *errors.ValidationError on failure.
// The input is used as-is; callers are responsible for normalization.
func (v *Validator) Validate(ctx context.Context, number string) (Result, error) {
	if !vatNumberPattern.MatchString(number) {
		return Result{}, apierrors.NewValidationError(apierrors.KindMalformedInput, "")
	}

	country := CountryCode(number[:2])
	rest := number[2:]

	if !v.Allows(country) {
		return Result{}, apierrors.NewValidationError(apierrors.KindCountryNotAllowed, string(country))
	}

	rule, ok := LookupSyntax(country)
	if !ok {
		return Result{}, apierrors.NewValidationError(apierrors.KindUnknownCountry, string(country))
	}
	if !rule.MatchString(rest) {
		return Result{}, apierrors.NewValidationError(apierrors.KindInvalidForCountry, string(country))
	}
	if valid, _ := Checksum(country, rest); !valid {
		return Result{}, apierrors.NewValidationError(apierrors.KindInvalidForCountry, string(country))
	}
	if v.strict {
		if valid, _ := StrictChecksum(country, rest); !valid {
			return Result{}, apierrors.NewValidationError(apierrors.KindInvalidForCountry, string(country))
		}
	}

	result := Result{Number: number, Country: country, Remainder: rest}

	if v.remoteCheck && IsEUVATArea(country) {
		result.Remote = v.confirmer.Confirm(ctx, country, rest)
		if result.Remote.Status == OutcomeRejected {
			return Result{}, apierrors.NewValidationError(apierrors.KindNotRegistered, string(country))
		}
	}

	return result, nil
}

// ValidateOptional validates *number, treating nil as nothing to validate.
func (v *Validator) ValidateOptional(ctx context.Context, number *string) (Result, error) {
	if number == nil {
		return Result{}, nil
	}
	return v.Validate(ctx, *number)
}

// Normalize removes common separators and upper-cases a VAT number for
// adapters that accept user input. The Validator never calls it.
func Normalize(number string) string {
	replacer := strings.NewReplacer(" ", "", ".", "", "-", "", "\t", "")
	return strings.ToUpper(replacer.Replace(strings.TrimSpace(number)))
}
