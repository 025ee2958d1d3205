// Package vies is a client for the EU VAT Information Exchange System (VIES)
// checkVat SOAP service. Each lookup is a single attempt bounded by the client
// timeout; identical concurrent lookups share one request.
package vies

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/olgasafonova/vat-registry-mcp-server/internal/base"
	"github.com/olgasafonova/vat-registry-mcp-server/internal/infra"
	"github.com/olgasafonova/vat-registry-mcp-server/internal/vat"
	"github.com/olgasafonova/vat-registry-mcp-server/metrics"
	"github.com/olgasafonova/vat-registry-mcp-server/tracing"
)

const (
	// DefaultEndpoint is the public checkVat service
	DefaultEndpoint = "https://ec.europa.eu/taxation_customs/vies/services/checkVatService"

	registryName = "vies"
	actionCheck  = "checkVat"
)

// Client talks to VIES
type Client struct {
	*base.Client
	endpoint string
	inflight *infra.Coalescer[*CheckVatResult]
}

// ClientOption configures the Client (re-export base.ClientOption)
type ClientOption = base.ClientOption

// NewClient creates a VIES client for endpoint, or DefaultEndpoint when empty.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		Client:   base.NewClient(opts...),
		endpoint: endpoint,
		inflight: infra.NewCoalescer[*CheckVatResult](),
	}

	logger := c.Logger
	c.CircuitBreaker.OnStateChange(func(s infra.CircuitState) {
		metrics.SetCircuitState(registryName, int(s))
		logger.Info("VIES circuit breaker state changed", "state", s.String())
	})
	metrics.SetCircuitState(registryName, int(c.CircuitBreaker.State()))

	return c
}

// Endpoint returns the checkVat URL the client posts to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// InFlightLookups returns the number of distinct numbers being checked right now.
func (c *Client) InFlightLookups() int {
	return c.inflight.InFlight()
}

// CheckVat asks VIES about one number. country is the two-letter prefix and
// number the remainder after it.
func (c *Client) CheckVat(ctx context.Context, country, number string) (*CheckVatResult, error) {
	ctx, span := tracing.StartSpan(ctx, "vies.checkVat")
	defer span.End()
	tracing.AddRegistryAttributes(span, country, actionCheck)

	result, shared, err := c.inflight.Do(ctx, country+number, func() (*CheckVatResult, error) {
		// Shared by every waiter, so no single caller may cancel it. Twice the
		// request timeout leaves room for the slot wait.
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*c.Timeout())
		defer cancel()
		return c.checkVat(callCtx, country, number)
	})
	if shared {
		metrics.RecordCoalesced(registryName)
	}
	tracing.RecordError(span, err)
	return result, err
}

func (c *Client) checkVat(ctx context.Context, country, number string) (*CheckVatResult, error) {
	start := time.Now()

	payload, err := encodeRequest(country, number)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(ctx, base.Request{
		Method:      http.MethodPost,
		URL:         c.endpoint,
		Body:        payload,
		ContentType: "text/xml; charset=utf-8",
		Accept:      "text/xml",
		Headers:     map[string]string{"SOAPAction": `""`},
	})
	if err != nil {
		metrics.RecordAPICall(country, actionCheck, time.Since(start).Seconds(), false, errorCode(err))
		return nil, err
	}

	result, err := decodeResponse(resp.StatusCode, resp.Body)
	c.recordOutcome(err)
	metrics.RecordAPICall(country, actionCheck, time.Since(start).Seconds(), err == nil, errorCode(err))
	if err != nil {
		c.Logger.Warn("VIES lookup failed",
			"country", country,
			"status", resp.StatusCode,
			"error", err)
		return nil, err
	}

	c.Logger.Debug("VIES lookup completed",
		"country", country,
		"valid", result.Valid,
		"duration", time.Since(start))
	return result, nil
}

// recordOutcome feeds the circuit breaker. The service answered, so only
// temporary faults and server-side statuses count against it.
func (c *Client) recordOutcome(err error) {
	var fault *Fault
	var status *StatusError
	switch {
	case errors.As(err, &fault) && fault.Temporary():
		c.RecordFailure()
	case errors.As(err, &status) && status.StatusCode >= 500:
		c.RecordFailure()
	default:
		c.RecordSuccess()
	}
}

// Confirm implements vat.Confirmer. An explicit valid=false is Rejected; a
// readable or malformed 200 answer is Confirmed; everything else, including
// an open circuit or a timeout, is Indeterminate.
func (c *Client) Confirm(ctx context.Context, country vat.CountryCode, number string) vat.Outcome {
	result, err := c.CheckVat(ctx, string(country), number)

	var outcome vat.Outcome
	switch {
	case err == nil && !result.Valid:
		outcome = vat.Rejected()
	case err == nil:
		outcome = vat.Confirmed()
	case errors.Is(err, ErrMalformedResponse):
		outcome = vat.Outcome{Status: vat.OutcomeConfirmed, Err: err}
	default:
		outcome = vat.Indeterminate(err)
	}

	metrics.RecordRemoteOutcome(string(country), outcome.Status.String())
	return outcome
}

// errorCode reduces an error to a low-cardinality metrics label
func errorCode(err error) string {
	if err == nil {
		return ""
	}
	var fault *Fault
	var status *StatusError
	var open *infra.ErrCircuitOpen
	switch {
	case errors.As(err, &fault):
		return fault.String
	case errors.As(err, &status):
		return http.StatusText(status.StatusCode)
	case errors.As(err, &open):
		return "circuit_open"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}

var _ vat.Confirmer = (*Client)(nil)
