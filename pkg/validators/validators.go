package validators

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/angelmondragon/revenue-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/revenue-engine/pkg/errors"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	mustRegister(v, "revenue_provider", func(fl validator.FieldLevel) bool {
		_, err := enums.ParseRevenueProvider(fl.Field().String())
		return err == nil
	})
	mustRegister(v, "granularity", func(fl validator.FieldLevel) bool {
		return enums.Granularity(fl.Field().String()).IsValid()
	})
	mustRegister(v, "transaction_type", func(fl validator.FieldLevel) bool {
		return enums.TransactionType(fl.Field().String()).IsValid()
	})
	mustRegister(v, "transaction_status", func(fl validator.FieldLevel) bool {
		return enums.TransactionStatus(fl.Field().String()).IsValid()
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// Struct validates dest against its `validate` tags and returns a CodeValidation
// error with per-field details on failure.
func Struct(dest any) error {
	if err := validate.Struct(dest); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

// DecodeJSON strictly decodes data into dest and validates the result.
func DecodeJSON(data []byte, dest any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payload").WithDetails(map[string]any{"error": err.Error()})
	}
	return Struct(dest)
}

func formatValidationErrors(err error) *pkgerrors.Error {
	if errs, ok := err.(validator.ValidationErrors); ok {
		details := map[string]string{}
		for _, fieldErr := range errs {
			details[fieldErr.Field()] = validationMessage(fieldErr)
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gtfield":
		return fmt.Sprintf("must be after %s", fe.Param())
	case "iso4217":
		return "must be an ISO 4217 currency code"
	case "timezone":
		return "must be an IANA time zone"
	case "revenue_provider":
		return "must be stripe or paddle"
	case "granularity":
		return "must be one of minute, hour, day, month, year"
	}
	return "is invalid"
}

// SanitizeString trims input and caps it at maxLen bytes.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}
