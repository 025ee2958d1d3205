package vies

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/olgasafonova/vat-registry-mcp-server/internal/base"
)

const (
	envelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	typesNS    = "urn:ec.europa.eu:taxud:vies:services:checkVat:types"
)

// ErrMalformedResponse is returned when VIES answered 200 with a body that
// does not carry a readable checkVat result.
var ErrMalformedResponse = errors.New("malformed VIES response")

// Fault is a SOAP fault returned by VIES, e.g. MS_UNAVAILABLE or INVALID_INPUT.
type Fault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

func (f *Fault) Error() string {
	return fmt.Sprintf("VIES fault %s: %s", f.Code, f.String)
}

// Temporary reports whether the fault describes a service-side condition that
// may clear on its own. Input faults are permanent.
func (f *Fault) Temporary() bool {
	switch f.String {
	case "INVALID_INPUT", "INVALID_REQUESTER_INFO", "VAT_BLOCKED", "IP_BLOCKED":
		return false
	default:
		return true
	}
}

// StatusError is returned for a non-2xx HTTP status without a SOAP fault.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("VIES HTTP %d: %s", e.StatusCode, e.Body)
}

// CheckVatResult is the registry's answer for one number.
type CheckVatResult struct {
	CountryCode string `json:"country_code"`
	VATNumber   string `json:"vat_number"`
	RequestDate string `json:"request_date,omitempty"`
	Valid       bool   `json:"valid"`
	Name        string `json:"name,omitempty"`
	Address     string `json:"address,omitempty"`
}

type requestEnvelope struct {
	XMLName xml.Name    `xml:"soapenv:Envelope"`
	SoapNS  string      `xml:"xmlns:soapenv,attr"`
	TypesNS string      `xml:"xmlns:urn,attr"`
	Header  struct{}    `xml:"soapenv:Header"`
	Body    requestBody `xml:"soapenv:Body"`
}

type requestBody struct {
	CheckVat checkVatRequest `xml:"urn:checkVat"`
}

type checkVatRequest struct {
	CountryCode string `xml:"urn:countryCode"`
	VATNumber   string `xml:"urn:vatNumber"`
}

// Response elements are matched by local name so either prefix style decodes.
type responseEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault    *Fault            `xml:"Fault"`
		Response *checkVatResponse `xml:"checkVatResponse"`
	} `xml:"Body"`
}

type checkVatResponse struct {
	CountryCode string  `xml:"countryCode"`
	VATNumber   string  `xml:"vatNumber"`
	RequestDate string  `xml:"requestDate"`
	Valid       *string `xml:"valid"`
	Name        string  `xml:"name"`
	Address     string  `xml:"address"`
}

func encodeRequest(country, number string) ([]byte, error) {
	env := requestEnvelope{
		SoapNS:  envelopeNS,
		TypesNS: typesNS,
		Body: requestBody{
			CheckVat: checkVatRequest{CountryCode: country, VATNumber: number},
		},
	}
	out, err := xml.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}

// decodeResponse interprets a VIES reply. A fault wins over the status code;
// a non-2xx reply without a fault becomes a StatusError; an unreadable 2xx
// reply wraps ErrMalformedResponse.
func decodeResponse(status int, body []byte) (*CheckVatResult, error) {
	var env responseEnvelope
	decodeErr := xml.Unmarshal(body, &env)

	if decodeErr == nil && env.Body.Fault != nil {
		return nil, env.Body.Fault
	}
	if status < 200 || status > 299 {
		return nil, &StatusError{StatusCode: status, Body: base.Truncate(strings.TrimSpace(string(body)), 200)}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, decodeErr)
	}

	r := env.Body.Response
	if r == nil {
		return nil, fmt.Errorf("%w: no checkVatResponse element", ErrMalformedResponse)
	}
	if r.Valid == nil {
		return nil, fmt.Errorf("%w: no valid element", ErrMalformedResponse)
	}

	result := &CheckVatResult{
		CountryCode: strings.TrimSpace(r.CountryCode),
		VATNumber:   strings.TrimSpace(r.VATNumber),
		RequestDate: strings.TrimSpace(r.RequestDate),
		Name:        disclosed(r.Name),
		Address:     disclosed(r.Address),
	}

	switch strings.TrimSpace(*r.Valid) {
	case "true", "1":
		result.Valid = true
	case "false", "0":
		result.Valid = false
	default:
		return nil, fmt.Errorf("%w: valid=%q", ErrMalformedResponse, *r.Valid)
	}
	return result, nil
}

// disclosed maps the "---" placeholder VIES uses for undisclosed fields to "".
func disclosed(s string) string {
	s = strings.TrimSpace(s)
	if s == "---" {
		return ""
	}
	return s
}
