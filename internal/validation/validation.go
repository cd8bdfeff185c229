// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var msisdnPattern = regexp.MustCompile(`^\+?[0-9]{8,15}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
		return IsValidPhone(fl.Field().String())
	})
	return v
}

// IsValidPhone проверяет, похожа ли s на номер кошелька мобильных денег.
func IsValidPhone(s string) bool {
	return msisdnPattern.MatchString(strings.ReplaceAll(s, " ", ""))
}

// FieldError описывает одно отклонённое поле.
type FieldError struct {
	Field string
	Rule  string
}

// Errors содержит все отклонённые поля запроса.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Field, fe.Rule))
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

// Struct проверяет s по тегам `validate`.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	res := make(Errors, 0, len(verrs))
	for _, fe := range verrs {
		res = append(res, FieldError{
			Field: fieldPath(fe.Namespace()),
			Rule:  fe.Tag(),
		})
	}
	return res
}

// fieldPath отбрасывает префикс имени структуры: "NewOrder.Items[0].Quantity" -> "Items[0].Quantity".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}
