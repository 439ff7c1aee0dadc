// Package validation checks attrs structs against their `validate` tags and reports the
// first failure as an apperr validation error carrying the JSON field path.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"planboard/internal/apperr"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	if err := v.RegisterValidation("notblank", notBlank); err != nil {
		panic(err)
	}
	return v
}

func notBlank(fl validator.FieldLevel) bool {
	f := fl.Field()
	if f.Kind() == reflect.String {
		return strings.TrimSpace(f.String()) != ""
	}
	return !f.IsZero()
}

// Struct validates v. All failing field paths are listed under details.fields.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := fromFieldError(verrs[0])
	if len(verrs) > 1 {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fieldPath(fe))
		}
		out.WithDetail("fields", fields)
	}
	return out
}

// Var validates a single value, e.g. Var("status", s, "oneof=TODO DONE").
func Var(field string, value any, tag string) error {
	err := validate.Var(value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	return message(field, verrs[0])
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fromFieldError(fe validator.FieldError) *apperr.Error {
	return message(fieldPath(fe), fe)
}

func message(path string, fe validator.FieldError) *apperr.Error {
	switch fe.Tag() {
	case "required", "notblank":
		return apperr.Validation(path, "%s is required", path)
	case "oneof":
		return apperr.InvalidEnum(path, fmt.Sprint(fe.Value()), strings.Fields(fe.Param()))
	case "email":
		return apperr.Validation(path, "%s must be a valid email address", path)
	case "uuid", "uuid4":
		return apperr.Validation(path, "%s must be a valid id", path)
	case "min", "gte":
		if fe.Kind() == reflect.String || fe.Kind() == reflect.Slice {
			return apperr.Validation(path, "%s must have at least %s items", path, fe.Param())
		}
		return apperr.Validation(path, "%s must be >= %s", path, fe.Param())
	case "max", "lte":
		if fe.Kind() == reflect.String {
			return apperr.Validation(path, "%s must be at most %s characters", path, fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return apperr.Validation(path, "%s must have at most %s items", path, fe.Param())
		}
		return apperr.Validation(path, "%s must be <= %s", path, fe.Param())
	default:
		return apperr.Validation(path, "%s failed %s validation", path, fe.Tag())
	}
}
