package vat

import "context"

// OutcomeStatus is the result of a registry confirmation.
type OutcomeStatus int

const (
	// OutcomeSkipped means no registry confirmation was attempted.
	OutcomeSkipped OutcomeStatus = iota
	OutcomeConfirmed
	OutcomeRejected
	OutcomeIndeterminate
)

func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeIndeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

// Outcome is what a Confirmer reports for one number. Err is set for
// Indeterminate outcomes (the transport fault) and may be set on Confirmed
// outcomes when the registry answered with a response that could not be read.
type Outcome struct {
	Status OutcomeStatus
	Err    error
}

// Confirmed returns a confirmed outcome.
func Confirmed() Outcome {
	return Outcome{Status: OutcomeConfirmed}
}

// Rejected returns a rejected outcome.
func Rejected() Outcome {
	return Outcome{Status: OutcomeRejected}
}

// Indeterminate returns an outcome for a lookup that could not complete.
func Indeterminate(err error) Outcome {
	return Outcome{Status: OutcomeIndeterminate, Err: err}
}

// Confirmer checks a VAT number against a remote registry. Implementations must
// never block longer than their own timeout and must report transport problems
// as Indeterminate rather than panicking.
type Confirmer interface {
	Confirm(ctx context.Context, country CountryCode, number string) Outcome
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(ctx context.Context, country CountryCode, number string) Outcome

// Confirm calls f.
func (f ConfirmerFunc) Confirm(ctx context.Context, country CountryCode, number string) Outcome {
	return f(ctx, country, number)
}
