// Package binding lets request structs declare VAT number fields with a
// `validate:"vat"` struct tag. Tagged fields are checked by a vat.Validator
// through go-playground/validator, and failures keep the validator's message.
//
//	type SignupForm struct {
//		Company string  `validate:"required"`
//		VAT     *string `validate:"vat"`
//	}
//
// A nil *string is treated as an absent value and passes.
package binding

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/olgasafonova/vat-registry-mcp-server/internal/vat"
)

// Tag is the struct tag name registered with the validator.
const Tag = "vat"

// Binder validates structs whose fields carry `validate` tags.
type Binder struct {
	validate *validator.Validate
	vat      *vat.Validator
}

// New creates a Binder whose "vat" tag delegates to v.
func New(v *vat.Validator) (*Binder, error) {
	b := &Binder{validate: validator.New(), vat: v}
	if err := b.validate.RegisterValidationCtx(Tag, b.validateVAT, true); err != nil {
		return nil, fmt.Errorf("registering %s tag: %w", Tag, err)
	}
	return b, nil
}

type collectorKey struct{}

// collector remembers why each value failed, and what each passing value
// resolved to, after go-playground has reduced it to a boolean.
type collector struct {
	mu      sync.Mutex
	errs    map[string]error
	results map[string]vat.Result
}

func newCollector() *collector {
	return &collector{errs: make(map[string]error), results: make(map[string]vat.Result)}
}

func (b *Binder) validateVAT(ctx context.Context, fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() == reflect.Ptr || field.Kind() == reflect.Interface {
		if field.IsNil() {
			return true
		}
		field = field.Elem()
	}
	if field.Kind() != reflect.String {
		return false
	}

	number := field.String()
	res, err := b.vat.Validate(ctx, number)
	if c, ok := ctx.Value(collectorKey{}).(*collector); ok {
		c.mu.Lock()
		if err != nil {
			c.errs[number] = err
		} else {
			c.results[number] = res
		}
		c.mu.Unlock()
	}
	return err == nil
}

// FieldError is one failing field.
type FieldError struct {
	Field string // struct field path, e.g. "Numbers[2]"
	Tag   string
	Err   error
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e FieldError) Unwrap() error {
	return e.Err
}

// Errors lists every failing field of a struct.
type Errors []FieldError

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes the field errors to errors.Is and errors.As.
func (e Errors) Unwrap() []error {
	errs := make([]error, len(e))
	for i, fe := range e {
		errs[i] = fe
	}
	return errs
}

// Struct validates s. It returns nil or Errors; fields failing the "vat" tag
// carry the *errors.ValidationError produced by the vat.Validator.
func (b *Binder) Struct(ctx context.Context, s any) error {
	_, err := b.StructResults(ctx, s)
	return err
}

// StructResults validates s like Struct and also returns the vat.Result of
// every tagged value that passed, keyed by the value. Each value is checked
// once, so a registry confirmation is never repeated to read its outcome.
func (b *Binder) StructResults(ctx context.Context, s any) (map[string]vat.Result, error) {
	c := newCollector()
	err := b.validate.StructCtx(context.WithValue(ctx, collectorKey{}, c), s)
	if err == nil {
		return c.results, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, err
	}

	out := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field: fieldPath(fe),
			Tag:   fe.Tag(),
			Err:   c.reason(fe),
		})
	}
	return c.results, out
}

func (c *collector) reason(fe validator.FieldError) error {
	if fe.Tag() == Tag {
		if number, ok := fe.Value().(string); ok {
			c.mu.Lock()
			defer c.mu.Unlock()
			if err, ok := c.errs[number]; ok {
				return err
			}
		}
		return errors.New("not a VAT number")
	}
	if fe.Param() != "" {
		return fmt.Errorf("failed %s=%s", fe.Tag(), fe.Param())
	}
	return fmt.Errorf("failed %s", fe.Tag())
}

// fieldPath drops the top-level struct name from the namespace
func fieldPath(fe validator.FieldError) string {
	ns := fe.StructNamespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
