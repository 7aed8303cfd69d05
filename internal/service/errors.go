package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shenikar/neighborhood_alerts/internal/auth"
	"github.com/shenikar/neighborhood_alerts/internal/media"
)

// Ошибки бизнес-логики. Хендлеры сопоставляют их с HTTP-статусами через errors.Is.
var (
	ErrUnauthenticated      = auth.ErrUnauthenticated
	ErrUnsupportedMediaType = media.ErrUnsupportedMediaType
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("alert not found")
	ErrInvalidInput         = errors.New("invalid input")
)

// ValidationError содержит ошибки по отдельным полям
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Is позволяет проверять ValidationError через errors.Is(err, ErrInvalidInput)
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError создает ошибку для одного поля
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// Add добавляет ошибку поля, не затирая уже найденную
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

// fromValidator преобразует ошибки go-playground/validator в ValidationError
func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	result := &ValidationError{}
	for _, fe := range verrs {
		result.Add(fe.Field(), describe(fe))
	}
	return result
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "latitude":
		return "must be between -90 and 90"
	case "longitude":
		return "must be between -180 and 180"
	case "finite":
		return "must be a finite number"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "is invalid"
}
