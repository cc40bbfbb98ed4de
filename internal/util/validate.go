package util

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// emailShapePattern accepts anything shaped like localpart@domain.tld.
var emailShapePattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Validate is the shared validator instance for request validation.
// Besides the built-in tags it understands email_shape.
var Validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Use JSON or query tag names in error messages instead of struct field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		tag := fld.Tag.Get("json")
		if tag == "" {
			tag = fld.Tag.Get("query")
		}
		name := strings.SplitN(tag, ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("email_shape", func(fl validator.FieldLevel) bool {
		return IsEmailShaped(fl.Field().String())
	}); err != nil {
		panic(err)
	}

	return v
}

// IsEmailShaped reports whether s looks like localpart@domain.tld.
func IsEmailShaped(s string) bool {
	return emailShapePattern.MatchString(s)
}

// IsConfigured reports whether all provided values are non-empty.
func IsConfigured(values ...string) bool {
	for _, v := range values {
		if v == "" {
			return false
		}
	}
	return true
}
