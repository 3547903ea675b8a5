package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	playground "github.com/go-playground/validator/v10"
)

// Validator checks request bodies against their `validate` struct tags and
// reports failures using JSON field names.
type Validator struct {
	validate *playground.Validate
}

func New() *Validator {
	v := playground.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return field.Name
		}
		return name
	})
	return &Validator{validate: v}
}

func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs playground.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	return describe(fieldErrs[0])
}

func describe(fe playground.FieldError) error {
	field := strings.SplitN(fe.Namespace(), ".", 2)
	name := fe.Field()
	if len(field) == 2 {
		name = field[1]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", name)
	case "max":
		return fmt.Errorf("%s must be at most %s characters", name, fe.Param())
	case "oneof":
		return fmt.Errorf("%s must be one of %s", name, fe.Param())
	default:
		return fmt.Errorf("%s is invalid", name)
	}
}
