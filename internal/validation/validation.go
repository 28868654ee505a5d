package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Validator wraps validator.Validate with the service's custom tags.
type Validator struct {
	validate *validator.Validate
}

// New registers the "money" tag: a positive decimal string with at most two places.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("money", func(fl validator.FieldLevel) bool {
		_, err := ParseMoney(fl.Field().String())
		return err == nil
	})
	return &Validator{validate: v}
}

// Error carries per-field validation failures keyed by JSON field name.
type Error struct {
	Details map[string]string
}

func (e *Error) Error() string {
	fields := make([]string, 0, len(e.Details))
	for f := range e.Details {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

// Struct validates s. Field failures are returned as *Error.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			details[fe.Field()] = fmt.Sprintf("failed on '%s'", fe.Tag())
		}
		return &Error{Details: details}
	}
	return err
}

// ParseMoney parses a positive amount with at most two decimal places.
func ParseMoney(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("amount %q is not a number", raw)
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, errors.New("amount must be positive")
	}
	if !amount.Equal(amount.Round(2)) {
		return decimal.Decimal{}, errors.New("amount has more than two decimal places")
	}
	return amount, nil
}

// Details returns the field failures carried by err, or nil.
func Details(err error) map[string]string {
	var verr *Error
	if !errors.As(err, &verr) {
		return nil
	}
	return verr.Details
}
