package v1

import (
	"time"

	"github.com/google/uuid"
)

// AlertResponse DTO для ответа с информацией об алерте
// @Description DTO для ответа с информацией об алерте
type AlertResponse struct {
	ID              uuid.UUID `json:"id"`
	OwnerID         string    `json:"ownerId"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	Severity        string    `json:"severity"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	LocationLabel   string    `json:"locationLabel"`
	MediaURL        *string   `json:"mediaUrl"`
	ConfidenceScore *float64  `json:"confidenceScore"`
	CreatedAt       time.Time `json:"createdAt"`
}

// StatsResponse DTO для ответа со статистикой
// @Description Количество алертов по уровням опасности за окно времени
type StatsResponse struct {
	WindowMinutes int            `json:"windowMinutes"`
	Total         int            `json:"total"`
	BySeverity    map[string]int `json:"bySeverity"`
}

// MessageResponse DTO для ответа без данных
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse DTO для ответа с ошибкой. Fields заполняется только для ошибок валидации.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}
