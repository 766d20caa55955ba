package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Struct validator that reports fields by their mapstructure name so
// config errors point at the YAML key, not the Go field.
type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	return cv.validator.Struct(i)
}

func Create() CustomValidator {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return CustomValidator{validator: validate}
}
