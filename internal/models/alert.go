package models

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// Значения по умолчанию для классификации новых алертов
const (
	DefaultCategory = "General"
	DefaultSeverity = SeverityMedium
)

const (
	SeverityLow    = "Low"
	SeverityMedium = "Medium"
	SeverityHigh   = "High"
)

// Severities перечисляет допустимые уровни опасности
var Severities = []string{SeverityLow, SeverityMedium, SeverityHigh}

// Alert представляет сообщение жителя об инциденте в районе
type Alert struct {
	ID              uuid.UUID `json:"id"`
	OwnerID         string    `json:"owner_id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	Severity        string    `json:"severity"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	LocationLabel   string    `json:"location"`
	MediaURL        *string   `json:"media_url,omitempty"`
	ConfidenceScore *float64  `json:"confidence_score,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// AlertInput - поля, которые пользователь передает при создании алерта
type AlertInput struct {
	Title         string   `form:"title" validate:"required,notblank,max=255"`
	Description   string   `form:"description" validate:"required,notblank"`
	Latitude      *float64 `form:"latitude" validate:"required,finite,latitude"`
	Longitude     *float64 `form:"longitude" validate:"required,finite,longitude"`
	LocationLabel string   `form:"location" validate:"max=512"`
}

// AlertPatch - частичное обновление алерта.
// nil означает "поле не передано"; пустая строка трактуется так же.
type AlertPatch struct {
	Title         *string  `form:"title" validate:"omitempty,max=255"`
	Description   *string  `form:"description" validate:"omitempty"`
	Category      *string  `form:"category" validate:"omitempty,max=64"`
	Severity      *string  `form:"severity" validate:"omitempty,oneof=Low Medium High"`
	LocationLabel *string  `form:"location" validate:"omitempty,max=512"`
	Latitude      *float64 `form:"latitude" validate:"omitempty,finite,latitude"`
	Longitude     *float64 `form:"longitude" validate:"omitempty,finite,longitude"`

	// Malformed - поля формы, которые не удалось разобрать.
	// Сообщаются вместе с остальными ошибками проверки, после проверки прав.
	Malformed map[string]string `form:"-" validate:"-"`
}

// Normalize убирает из патча пустые строки, чтобы они не затирали сохраненные значения
func (p AlertPatch) Normalize() AlertPatch {
	p.Title = nonBlank(p.Title)
	p.Description = nonBlank(p.Description)
	p.Category = nonBlank(p.Category)
	p.Severity = nonBlank(p.Severity)
	p.LocationLabel = nonBlank(p.LocationLabel)
	return p
}

// Apply применяет непустые поля патча к алерту
func (p AlertPatch) Apply(alert *Alert) {
	p = p.Normalize()
	if p.Title != nil {
		alert.Title = *p.Title
	}
	if p.Description != nil {
		alert.Description = *p.Description
	}
	if p.Category != nil {
		alert.Category = *p.Category
	}
	if p.Severity != nil {
		alert.Severity = *p.Severity
	}
	if p.LocationLabel != nil {
		alert.LocationLabel = *p.LocationLabel
	}
	if p.Latitude != nil {
		alert.Latitude = *p.Latitude
	}
	if p.Longitude != nil {
		alert.Longitude = *p.Longitude
	}
}

// MediaUpload - загруженный пользователем файл
type MediaUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Content     io.Reader
}

// AlertStats - сводка по алертам за окно времени
type AlertStats struct {
	WindowMinutes int            `json:"window_minutes"`
	Total         int            `json:"total"`
	BySeverity    map[string]int `json:"by_severity"`
}

func nonBlank(s *string) *string {
	if s == nil || isBlank(*s) {
		return nil
	}
	return s
}
