package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/atharvakonge/papertrade/internal/apperr"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks v's validate tags and converts the first failure into a
// readable CodeValidation error.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Wrap(apperr.CodeValidation, "invalid request", err)
	}
	return apperr.Wrap(apperr.CodeValidation, describe(verrs[0]), err)
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	if field == "userid" {
		field = "user id"
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind().String() == "string" {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
