package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthenticated - сессии нет или она истекла; пользователь должен войти заново
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrUnsupportedMedia = errors.New("unsupported media type")
)

const unsupportedMediaMessage = "unsupported media type"

// APIError - ответ сервера с кодом не 2xx
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("api error: %d %s", e.StatusCode, e.Message)
}

// Is сопоставляет статус ответа с ошибками пакета
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthenticated:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrInvalidInput:
		return e.StatusCode == http.StatusUnprocessableEntity
	case ErrUnsupportedMedia:
		return e.StatusCode == http.StatusUnprocessableEntity && e.Message == unsupportedMediaMessage
	}
	return false
}

// transportError - запрос не дошел до сервера или ответ не получен
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "transport error: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// IsRetryable сообщает, имеет ли смысл повторить запрос вручную.
// Сам клиент запросы не повторяет.
func IsRetryable(err error) bool {
	var terr *transportError
	if errors.As(err, &terr) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return false
}
