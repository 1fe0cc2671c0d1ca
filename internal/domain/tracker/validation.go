package tracker

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"budgetwatch/internal/shared/errs"
)

var validate = newValidator()

// newValidator teaches the validator to compare decimal fields numerically.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// validateParams runs the struct tags of p and reports the first violation
// as a ValidationError.
func validateParams(p any) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errs.Invalid("", err.Error())
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "min", "max":
		return errs.Invalid(fe.Field(), fmt.Sprintf("must be between %d and %d", MinFrequencyDays, MaxFrequencyDays))
	case "gte":
		return errs.Invalid(fe.Field(), "must be at least "+fe.Param())
	case "gt":
		return errs.Invalid(fe.Field(), "must be greater than "+fe.Param())
	default:
		return errs.Invalid(fe.Field(), "failed on "+fe.Tag())
	}
}
