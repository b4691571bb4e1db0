package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// Error is a client input problem. Message is shown to the caller; Fields
// maps field names to what is wrong with them.
type Error struct {
	Message string
	Fields  map[string]string
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return e.Message + ": " + strings.Join(parts, "; ")
}

// Errorf builds an Error without field details.
func Errorf(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// Field builds an Error for a single field.
func Field(field, msg string) *Error {
	return &Error{Message: "Validation failed", Fields: map[string]string{field: msg}}
}

// Struct validates s and converts validator errors into *Error.
func Struct(v *validatorv10.Validate, s any) error {
	if err := v.Struct(s); err != nil {
		return fromValidator(err)
	}
	return nil
}

func fromValidator(err error) error {
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	out := &Error{Message: "Validation failed", Fields: map[string]string{}}
	for _, fe := range ve {
		out.Fields[fe.Field()] = describe(fe)
	}
	return out
}

func describe(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s cannot exceed %s characters", fe.Field(), fe.Param())
	case "gte", "gt":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte", "lt":
		return fmt.Sprintf("%s cannot exceed %s", fe.Field(), fe.Param())
	case "cents":
		return fmt.Sprintf("%s can have at most 2 decimal places", fe.Field())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}
