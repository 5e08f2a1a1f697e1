package validate

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/refdata/refdata/internal/platform/apierr"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_\-.]*$`)

var std = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("refcode", func(fl validator.FieldLevel) bool {
		return codePattern.MatchString(strings.ToUpper(strings.TrimSpace(fl.Field().String())))
	})
	return v
}

// Struct validates s against its `validate` tags and reports every failing
// field in a single ErrValidation.
func Struct(s any) error {
	err := std.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", apierr.ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return apierr.Invalid("%s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "email":
		return field + " must be a valid email address"
	case "refcode":
		return field + " may only contain letters, digits, '_', '-' and '.'"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// Echo adapts the validator to echo.Validator.
type Echo struct{}

func (Echo) Validate(i interface{}) error {
	return Struct(i)
}
