// Package validation wraps a shared go-playground/validator instance and
// converts its field errors into validation-kind errors for the HTTP layer.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/abdusco/linkdash/internal"
	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	shortCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,32}$`)
)

// Get returns the process-wide validator. Struct metadata is cached by the
// validator itself, so it is built once.
func Get() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			return jsonName(fld.Tag.Get("json"), fld.Name)
		})
		_ = validate.RegisterValidation("shortcode", func(fl validator.FieldLevel) bool {
			return shortCodePattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Struct validates s and returns an *internal.Error of kind validation
// describing the first failing field.
func Struct(s any) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return internal.Validation("invalid request")
	}

	return internal.Validation(message(fieldErrs[0]))
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url", "http_url":
		return fmt.Sprintf("%s must be a valid absolute URL", field)
	case "shortcode":
		return fmt.Sprintf("%s must be 3-32 characters of letters, digits, '-' or '_'", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func jsonName(tag, fallback string) string {
	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return fallback
	}
	return name
}
