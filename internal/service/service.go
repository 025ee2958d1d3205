// Package service exposes VAT validation and VIES lookups as MCP tool methods.
// Each XxxMCP method takes an Args struct and returns a Result struct so the
// tools registry can register it with a typed handler.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/olgasafonova/vat-registry-mcp-server/internal/binding"
	apierrors "github.com/olgasafonova/vat-registry-mcp-server/internal/errors"
	"github.com/olgasafonova/vat-registry-mcp-server/internal/vat"
	"github.com/olgasafonova/vat-registry-mcp-server/internal/vies"
	"github.com/olgasafonova/vat-registry-mcp-server/metrics"
	"github.com/olgasafonova/vat-registry-mcp-server/tracing"
)

// ErrLookupUnavailable is returned by LookupMCP when no registry client is configured
var ErrLookupUnavailable = errors.New("VIES lookup is not configured")

// Registry is the part of the VIES client used for lookups
type Registry interface {
	CheckVat(ctx context.Context, country, number string) (*vies.CheckVatResult, error)
}

// Service implements the VAT tools
type Service struct {
	validator *vat.Validator
	binder    *binding.Binder
	registry  Registry
	logger    *slog.Logger
}

// New creates a Service. registry may be nil, in which case lookups fail
// with ErrLookupUnavailable.
func New(v *vat.Validator, registry Registry, logger *slog.Logger) (*Service, error) {
	b, err := binding.New(v)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{validator: v, binder: b, registry: registry, logger: logger}, nil
}

// ValidateMCP validates one number
func (s *Service) ValidateMCP(ctx context.Context, args ValidateArgs) (ValidateResult, error) {
	number := args.VATNumber
	if args.Normalize {
		number = vat.Normalize(number)
	}

	ctx, span := tracing.StartSpan(ctx, "vat.validate")
	defer span.End()

	res, err := s.validator.Validate(ctx, number)
	if err != nil {
		var ve *apierrors.ValidationError
		if !errors.As(err, &ve) {
			tracing.RecordError(span, err)
			return ValidateResult{}, err
		}

		remote := vat.OutcomeSkipped.String()
		if ve.Kind == apierrors.KindNotRegistered {
			remote = vat.OutcomeRejected.String()
		}
		metrics.RecordValidation(ve.Country, ve.Kind.Code())
		tracing.AddValidationAttributes(span, ve.Country, ve.Kind.Code(), remote)

		return ValidateResult{
			Number:    number,
			Country:   ve.Country,
			ErrorCode: ve.Kind.Code(),
			Message:   ve.Error(),
			Remote:    remote,
		}, nil
	}

	out := ValidateResult{
		Valid:     true,
		Number:    res.Number,
		Country:   string(res.Country),
		Remainder: res.Remainder,
		Remote:    res.Remote.Status.String(),
	}
	if res.Remote.Err != nil {
		out.RemoteError = res.Remote.Err.Error()
		s.logger.Warn("VAT number accepted without registry confirmation",
			"country", res.Country,
			"remote", out.Remote,
			"error", res.Remote.Err)
	}

	metrics.RecordValidation(out.Country, "")
	tracing.AddValidationAttributes(span, out.Country, "valid", out.Remote)
	return out, nil
}

// ValidateBatchMCP validates every number through the struct binder and
// reports one item per input.
func (s *Service) ValidateBatchMCP(ctx context.Context, args ValidateBatchArgs) (ValidateBatchResult, error) {
	numbers := make([]string, len(args.Numbers))
	for i, n := range args.Numbers {
		if args.Normalize {
			n = vat.Normalize(n)
		}
		numbers[i] = n
	}

	failed := make(map[string]error)
	passed, err := s.binder.StructResults(ctx, ValidateBatchArgs{Numbers: numbers})
	if err != nil {
		var errs binding.Errors
		if !errors.As(err, &errs) {
			return ValidateBatchResult{}, err
		}
		for _, fe := range errs {
			if fe.Tag != binding.Tag {
				return ValidateBatchResult{}, fmt.Errorf("invalid arguments: %w", fe)
			}
			failed[fe.Field] = fe.Err
		}
	}

	result := ValidateBatchResult{Results: make([]BatchItem, 0, len(numbers))}
	for i, number := range numbers {
		item := BatchItem{Number: number, Valid: true, Remote: vat.OutcomeSkipped.String()}
		if err, ok := failed[fmt.Sprintf("Numbers[%d]", i)]; ok {
			item.Valid = false
			item.Message = err.Error()
			var ve *apierrors.ValidationError
			if errors.As(err, &ve) {
				item.ErrorCode = ve.Kind.Code()
				item.Country = ve.Country
				if ve.Kind == apierrors.KindNotRegistered {
					item.Remote = vat.OutcomeRejected.String()
				}
			}
			result.InvalidCount++
		} else {
			res := passed[number]
			item.Country = string(res.Country)
			item.Remote = res.Remote.Status.String()
			if res.Remote.Err != nil {
				item.RemoteError = res.Remote.Err.Error()
			}
			result.ValidCount++
		}
		metrics.RecordValidation(item.Country, item.ErrorCode)
		result.Results = append(result.Results, item)
	}
	return result, nil
}

// LookupMCP asks VIES for the registry record of an EU VAT number. It does
// not apply the validator's country policy.
func (s *Service) LookupMCP(ctx context.Context, args LookupArgs) (LookupResult, error) {
	if s.registry == nil {
		return LookupResult{}, ErrLookupUnavailable
	}

	number := args.VATNumber
	if args.Normalize {
		number = vat.Normalize(number)
	}
	if len(number) < 3 || !vat.CountryCode(number[:2]).Valid() {
		return LookupResult{}, apierrors.NewValidationError(apierrors.KindMalformedInput, "")
	}

	country := vat.CountryCode(number[:2])
	if !vat.IsKnownCountry(country) {
		return LookupResult{}, apierrors.NewValidationError(apierrors.KindUnknownCountry, string(country))
	}
	if !vat.IsEUVATArea(country) {
		return LookupResult{}, fmt.Errorf("%s is not in the EU VAT area; VIES only covers EU member states and XI", country)
	}

	rec, err := s.registry.CheckVat(ctx, string(country), number[2:])
	if err != nil {
		return LookupResult{}, fmt.Errorf("VIES lookup failed: %w", err)
	}

	return LookupResult{
		Country:     string(country),
		VATNumber:   number,
		Valid:       rec.Valid,
		RequestDate: rec.RequestDate,
		Name:        rec.Name,
		Address:     rec.Address,
	}, nil
}

// ListCountriesMCP lists every country with a syntax rule
func (s *Service) ListCountriesMCP(_ context.Context, args ListCountriesArgs) (ListCountriesResult, error) {
	codes := vat.Countries()
	if args.EUOnly {
		codes = vat.EUVATArea()
	}

	countries := make([]CountryInfo, 0, len(codes))
	for _, code := range codes {
		rule, ok := vat.LookupSyntax(code)
		if !ok {
			continue
		}
		countries = append(countries, CountryInfo{
			Code:      string(code),
			Pattern:   rule.String(),
			EUVATArea: vat.IsEUVATArea(code),
			Checksum:  s.validator.HasChecksum(code),
			Allowed:   s.validator.Allows(code),
		})
	}

	return ListCountriesResult{Countries: countries, Count: len(countries)}, nil
}
