// Package validation configures the struct validator shared by the usecases.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kopimap/kopimap-api/internal/domain/cafe"
)

// Custom tags.
const (
	TagCafeID   = "cafeid"
	TagFilename = "filename"
)

// New returns a validator that reports fields by their json name and knows
// the cafeid and filename tags.
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation(TagCafeID, func(fl validator.FieldLevel) bool {
		return cafe.ValidateID(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation(TagFilename, func(fl validator.FieldLevel) bool {
		return ValidFilename(fl.Field().String())
	})
	return v
}

// ValidFilename reports whether name is a single, visible path segment.
func ValidFilename(name string) bool {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return false
	}
	for _, r := range name {
		if r == '/' || r == '\\' || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// Message flattens validator errors into one client-safe line.
func Message(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fieldMessage(fe))
	}
	return strings.Join(parts, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	if field == "" {
		field = "value"
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "startswith":
		return fmt.Sprintf("%s must start with %q", field, fe.Param())
	case TagCafeID:
		return field + " must contain only letters, digits, '_' or '-'"
	case TagFilename:
		return field + " must be a plain file name"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
