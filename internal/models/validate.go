package models

import (
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator создает валидатор с дополнительными правилами для моделей алертов.
// Имена полей в ошибках берутся из тега form, чтобы совпадать с полями формы.
func NewValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return !isBlank(fl.Field().String())
	})
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		switch fl.Field().Kind() {
		case reflect.Float32, reflect.Float64:
			f := fl.Field().Float()
			return !math.IsNaN(f) && !math.IsInf(f, 0)
		}
		return true
	})

	return v
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
