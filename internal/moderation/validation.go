package moderation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ukydev/camperwash/internal/apperr"
)

// Validator checks request structs against their validate tags and reports
// failures with JSON field names.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a Validator
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// Struct validates s. Failures come back as an apperr validation error with one
// detail per field.
func (v *Validator) Struct(message string, s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Internal("validation failed", err)
	}

	details := make([]apperr.FieldError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, apperr.FieldError{
			Field:   fieldPath(fe.Namespace()),
			Message: describe(fe),
		})
	}
	return apperr.Validation(message, details...)
}

// fieldPath drops the root struct name from a namespace such as
// "SubmitStationInput.services.highPressure".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "champ requis"
	case "email":
		return "adresse email invalide"
	case "gt":
		return "doit être supérieur à " + fe.Param()
	case "min", "gte":
		if fe.Kind() == reflect.String || fe.Kind() == reflect.Slice {
			return "trop court"
		}
		return "doit être supérieur ou égal à " + fe.Param()
	case "max", "lte":
		if fe.Kind() == reflect.String || fe.Kind() == reflect.Slice {
			return "trop long"
		}
		return "doit être inférieur ou égal à " + fe.Param()
	case "oneof":
		return "valeur non autorisée, attendu: " + fe.Param()
	case "url":
		return "URL invalide"
	default:
		return "valeur invalide"
	}
}
