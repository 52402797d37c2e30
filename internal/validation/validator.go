// Package validation wraps go-playground/validator with JSON field names and
// field-level messages suitable for API responses.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid is matched by every error returned from Validate.
var ErrInvalid = errors.New("validation failed")

// FieldErrors maps JSON field names to human readable messages.
type FieldErrors map[string]string

// Error lists failing fields in a stable order.
func (f FieldErrors) Error() string {
	fields := make([]string, 0, len(f))
	for field, message := range f {
		fields = append(fields, field+" "+message)
	}
	sort.Strings(fields)
	return fmt.Sprintf("%s: %s", ErrInvalid.Error(), strings.Join(fields, "; "))
}

// Is lets errors.Is(err, ErrInvalid) match field errors.
func (f FieldErrors) Is(target error) bool {
	return target == ErrInvalid
}

// Validator validates request and command structs.
type Validator struct {
	v *validator.Validate
}

// New creates a validator that reports JSON tag names.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return &Validator{v: v}
}

// Validate returns FieldErrors when s fails its struct tags.
func (v *Validator) Validate(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	fieldErrors := make(FieldErrors, len(validationErrs))
	for _, fieldErr := range validationErrs {
		fieldErrors[fieldErr.Field()] = friendlyMessage(fieldErr)
	}
	return fieldErrors
}

func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "e164":
		return "must be a phone number in E.164 format"
	case "max":
		return "must not exceed " + e.Param()
	case "min":
		return "must be at least " + e.Param()
	case "gte":
		return "must be greater than or equal to " + e.Param()
	case "lte":
		return "must be less than or equal to " + e.Param()
	case "uuid":
		return "must be a valid UUID"
	default:
		return "is invalid"
	}
}
