package validation

import (
	"errors"
	"fmt"
	"strings"

	"frzterr/internal/models"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	rules := map[string]func(string) error{
		"username":     ValidateUsername,
		"password":     ValidatePassword,
		"email_addr":   ValidateEmail,
		"display_name": ValidateDisplayName,
	}
	for tag, check := range rules {
		check := check
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return check(fl.Field().String()) == nil
		})
	}
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// Struct validates s against its `validate` tags. The first failure is
// reported as a ValidationError carrying the rule's own message when one
// exists.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) || len(vErrs) == 0 {
		return models.NewValidationError(err.Error())
	}
	return models.NewValidationError(message(vErrs[0]))
}

func message(fe validator.FieldError) string {
	value, _ := fe.Value().(string)
	var err error
	switch fe.Tag() {
	case "username":
		err = ValidateUsername(value)
	case "password":
		err = ValidatePassword(value)
	case "email_addr":
		err = ValidateEmail(value)
	case "display_name":
		err = ValidateDisplayName(value)
	}
	if err != nil {
		return err.Error()
	}

	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required", "notblank":
		return fmt.Sprintf("%s is required", field)
	case "eqfield":
		return fmt.Sprintf("%s does not match %s", field, strings.ToLower(fe.Param()))
	case "max":
		return fmt.Sprintf("%s must not exceed %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed the %s rule", field, fe.Tag())
	}
}
