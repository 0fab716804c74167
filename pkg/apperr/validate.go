package apperr

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateStruct checks the `validate` tags of v and reports the first
// failure as a validation error named after the JSON field.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return Validation("%v", err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return Validation("%s is required", fe.Field())
	case "min":
		if fe.Kind() == reflect.String && fe.Param() != "1" {
			return Validation("%s must be at least %s characters", fe.Field(), fe.Param())
		}
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.String {
			return Validation("%s must not be empty", fe.Field())
		}
		return Validation("%s must be at least %s", fe.Field(), fe.Param())
	case "unique":
		return Validation("%s must not contain duplicates", fe.Field())
	case "gt":
		return Validation("%s must be greater than %s", fe.Field(), fe.Param())
	}
	return Validation("%s is invalid", fe.Field())
}
