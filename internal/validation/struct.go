package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	once     sync.Once
	instance *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
		instance.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		if err := instance.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
			return ValidateSlug(fl.Field().String()) == nil
		}); err != nil {
			panic(fmt.Sprintf("validation: register slug tag: %v", err))
		}
	})
	return instance
}

// Struct validates v against its `validate` tags and returns the first
// failure as a message naming the JSON field.
func Struct(v any) error {
	err := get().Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	return errors.New(describe(fieldErrs[0]))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "required_without":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "uuid", "uuid4":
		return fmt.Sprintf("%s must be a valid UUID", field)
	case "url", "http_url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "slug":
		if s, ok := fe.Value().(string); ok {
			if err := ValidateSlug(s); err != nil {
				return err.Error()
			}
		}
		return ErrInvalidSlug.Error()
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
