package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shenikar/neighborhood_alerts/internal/config"
	"github.com/shenikar/neighborhood_alerts/internal/events"
	"github.com/shenikar/neighborhood_alerts/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	DefaultNearbyRadiusMeters = 1000
	MaxNearbyRadiusMeters     = 50000
)

// AlertRepository определяет контракт для работы с хранилищем алертов
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Alert, error)
	List(ctx context.Context) ([]*models.Alert, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Alert, error)
	Update(ctx context.Context, alert *models.Alert) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindWithinRadius(ctx context.Context, lat, lon float64, radiusMeters int) ([]*models.Alert, error)
	CountBySeverity(ctx context.Context, minutes int) (map[string]int, error)
	GetAlertFromCache(ctx context.Context, id uuid.UUID) (*models.Alert, error)
	GetAlertCacheVersion(ctx context.Context, id uuid.UUID) (int64, error)
	SetAlertCache(ctx context.Context, alert *models.Alert, version int64) error
	InvalidateAlertCache(ctx context.Context, id uuid.UUID) error
}

// MediaResolver сохраняет вложение и возвращает ссылку на него
type MediaResolver interface {
	Resolve(ctx context.Context, upload *models.MediaUpload) (string, error)
	Discard(ctx context.Context, ref string) error
}

// AlertService определяет контракт бизнес-логики алертов.
// Личность вызывающего передается явно в каждый метод.
type AlertService interface {
	CreateAlert(ctx context.Context, identity models.Identity, input models.AlertInput, upload *models.MediaUpload) (*models.Alert, error)
	ListAlerts(ctx context.Context, identity models.Identity) ([]*models.Alert, error)
	ListMyAlerts(ctx context.Context, identity models.Identity) ([]*models.Alert, error)
	GetAlert(ctx context.Context, identity models.Identity, id uuid.UUID) (*models.Alert, error)
	UpdateAlert(ctx context.Context, identity models.Identity, id uuid.UUID, patch models.AlertPatch, upload *models.MediaUpload) (*models.Alert, error)
	DeleteAlert(ctx context.Context, identity models.Identity, id uuid.UUID) error
	ListNearby(ctx context.Context, identity models.Identity, lat, lon float64, radiusMeters int) ([]*models.Alert, error)
	GetStats(ctx context.Context, identity models.Identity) (*models.AlertStats, error)
}

type alertService struct {
	repo       AlertRepository
	media      MediaResolver
	publisher  events.Publisher
	classifier Classifier
	logger     *logrus.Logger
	cfg        *config.Config
	validate   *validator.Validate
}

// NewAlertService создает сервис алертов. nil classifier заменяется на DefaultClassifier.
func NewAlertService(repo AlertRepository, media MediaResolver, publisher events.Publisher, classifier Classifier, logger *logrus.Logger, cfg *config.Config) AlertService {
	if classifier == nil {
		classifier = DefaultClassifier{}
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &alertService{
		repo:       repo,
		media:      media,
		publisher:  publisher,
		classifier: classifier,
		logger:     logger,
		cfg:        cfg,
		validate:   models.NewValidator(),
	}
}

// CreateAlert создает алерт от имени вызывающего
func (s *alertService) CreateAlert(ctx context.Context, identity models.Identity, input models.AlertInput, upload *models.MediaUpload) (*models.Alert, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "alert",
		"method":  "CreateAlert",
		"user_id": identity.UserID,
	})
	if err := requireIdentity(identity); err != nil {
		log.Warn("Rejected unauthenticated create")
		return nil, err
	}
	log.Info("Attempting to create a new alert")

	input.Title = strings.TrimSpace(input.Title)
	input.Description = strings.TrimSpace(input.Description)
	input.LocationLabel = strings.TrimSpace(input.LocationLabel)

	// Проверка полей до сохранения файла и записи в бд
	if err := s.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Alert input validation failed")
		return nil, fromValidator(err)
	}

	mediaURL, err := s.resolveMedia(ctx, log, upload)
	if err != nil {
		return nil, err
	}

	class := s.classifier.Classify(input)
	alert := &models.Alert{
		OwnerID:         identity.UserID,
		Title:           input.Title,
		Description:     input.Description,
		Category:        class.Category,
		Severity:        class.Severity,
		Latitude:        *input.Latitude,
		Longitude:       *input.Longitude,
		LocationLabel:   input.LocationLabel,
		ConfidenceScore: class.Confidence,
	}
	if mediaURL != "" {
		alert.MediaURL = &mediaURL
	}

	if err := s.repo.Create(ctx, alert); err != nil {
		log.WithError(err).Error("Failed to create alert in repository")
		s.discardMedia(ctx, log, mediaURL)
		return nil, fmt.Errorf("service: could not create alert: %w", err)
	}

	log.WithField("alert_id", alert.ID).Info("Alert created successfully")
	s.publish(ctx, log, events.NewAlertEvent(events.AlertCreated, identity, alert))
	return alert, nil
}

// ListAlerts возвращает все алерты, новые первыми
func (s *alertService) ListAlerts(ctx context.Context, identity models.Identity) ([]*models.Alert, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "alert",
		"method":  "ListAlerts",
		"user_id": identity.UserID,
	})
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}

	alerts, err := s.repo.List(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to list alerts from repository")
		return nil, fmt.Errorf("service: could not list alerts: %w", err)
	}

	log.WithField("count", len(alerts)).Info("Alerts listed successfully")
	return alerts, nil
}

// ListMyAlerts возвращает алерты вызывающего пользователя
func (s *alertService) ListMyAlerts(ctx context.Context, identity models.Identity) ([]*models.Alert, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "alert",
		"method":  "ListMyAlerts",
		"user_id": identity.UserID,
	})
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}

	alerts, err := s.repo.ListByOwner(ctx, identity.UserID)
	if err != nil {
		log.WithError(err).Error("Failed to list owner alerts from repository")
		return nil, fmt.Errorf("service: could not list user alerts: %w", err)
	}

	log.WithField("count", len(alerts)).Info("User alerts listed successfully")
	return alerts, nil
}

// GetAlert получает алерт по ID, сначала из кеша
func (s *alertService) GetAlert(ctx context.Context, identity models.Identity, id uuid.UUID) (*models.Alert, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "alert",
		"method":   "GetAlert",
		"alert_id": id,
	})
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}

	cached, err := s.repo.GetAlertFromCache(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to read alert from cache")
	}
	if cached != nil {
		log.Debug("Alert fetched from cache")
		return cached, nil
	}

	// Версия читается до бд: если алерт изменят во время чтения, кеш не заполнится старой записью
	version, versionErr := s.repo.GetAlertCacheVersion(ctx, id)
	if versionErr != nil {
		log.WithError(versionErr).Warn("Failed to read alert cache version")
	}

	alert, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn("Alert not found")
		} else {
			log.WithError(err).Error("Failed to get alert from repository")
		}
		return nil, fmt.Errorf("service: could not get alert: %w", err)
	}

	if versionErr == nil {
		if err := s.repo.SetAlertCache(ctx, alert, version); err != nil {
			log.WithError(err).Warn("Failed to cache alert")
		}
	}
	return alert, nil
}

// UpdateAlert частично обновляет алерт. Разрешено только автору или администратору.
func (s *alertService) UpdateAlert(ctx context.Context, identity models.Identity, id uuid.UUID, patch models.AlertPatch, upload *models.MediaUpload) (*models.Alert, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "alert",
		"method":   "UpdateAlert",
		"alert_id": id,
		"user_id":  identity.UserID,
	})
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	log.Info("Attempting to update alert")

	// Права проверяются по текущей записи из бд, а не по кешу
	existing, err := s.loadForMutation(ctx, log, identity, id)
	if err != nil {
		return nil, err
	}

	patch = patch.Normalize()
	if err := s.validatePatch(patch); err != nil {
		log.WithError(err).Warn("Alert patch validation failed")
		return nil, err
	}

	mediaURL, err := s.resolveMedia(ctx, log, upload)
	if err != nil {
		return nil, err
	}

	updated := *existing
	patch.Apply(&updated)
	if mediaURL != "" {
		updated.MediaURL = &mediaURL
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		s.discardMedia(ctx, log, mediaURL)
		if errors.Is(err, ErrNotFound) {
			log.Warn("Alert disappeared before update")
		} else {
			log.WithError(err).Error("Failed to update alert in repository")
		}
		return nil, fmt.Errorf("service: could not update alert: %w", err)
	}

	s.invalidateCache(ctx, log, id)
	if mediaURL != "" && existing.MediaURL != nil && *existing.MediaURL != mediaURL {
		s.discardMedia(ctx, log, *existing.MediaURL)
	}
	log.Info("Alert updated successfully")
	s.publish(ctx, log, events.NewAlertEvent(events.AlertUpdated, identity, &updated))
	return &updated, nil
}

// DeleteAlert безвозвратно удаляет алерт. Разрешено только автору или администратору.
func (s *alertService) DeleteAlert(ctx context.Context, identity models.Identity, id uuid.UUID) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "alert",
		"method":   "DeleteAlert",
		"alert_id": id,
		"user_id":  identity.UserID,
	})
	if err := requireIdentity(identity); err != nil {
		return err
	}
	log.Info("Attempting to delete alert")

	existing, err := s.loadForMutation(ctx, log, identity, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn("Alert disappeared before delete")
		} else {
			log.WithError(err).Error("Failed to delete alert in repository")
		}
		return fmt.Errorf("service: could not delete alert: %w", err)
	}

	s.invalidateCache(ctx, log, id)
	if existing.MediaURL != nil {
		s.discardMedia(ctx, log, *existing.MediaURL)
	}
	log.Info("Alert deleted successfully")
	s.publish(ctx, log, events.NewAlertEvent(events.AlertDeleted, identity, existing))
	return nil
}

// ListNearby находит алерты в радиусе от точки
func (s *alertService) ListNearby(ctx context.Context, identity models.Identity, lat, lon float64, radiusMeters int) ([]*models.Alert, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":       "alert",
		"method":        "ListNearby",
		"user_id":       identity.UserID,
		"radius_meters": radiusMeters,
	})
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}

	if radiusMeters == 0 {
		radiusMeters = DefaultNearbyRadiusMeters
	}
	verr := &ValidationError{}
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		verr.Add("lat", "must be between -90 and 90")
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		verr.Add("lon", "must be between -180 and 180")
	}
	if radiusMeters < 1 || radiusMeters > MaxNearbyRadiusMeters {
		verr.Add("radius", fmt.Sprintf("must be between 1 and %d", MaxNearbyRadiusMeters))
	}
	if len(verr.Fields) > 0 {
		log.WithError(verr).Warn("Nearby query validation failed")
		return nil, verr
	}

	alerts, err := s.repo.FindWithinRadius(ctx, lat, lon, radiusMeters)
	if err != nil {
		log.WithError(err).Error("Failed to find alerts by location")
		return nil, fmt.Errorf("service: failed to find nearby alerts: %w", err)
	}

	log.WithField("count", len(alerts)).Info("Nearby alerts listed successfully")
	return alerts, nil
}

// GetStats возвращает количество алертов по уровням опасности за окно времени.
// Доступно только администратору.
func (s *alertService) GetStats(ctx context.Context, identity models.Identity) (*models.AlertStats, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "alert",
		"method":  "GetStats",
		"user_id": identity.UserID,
	})
	if err := requireIdentity(identity); err != nil {
		return nil, err
	}
	if !identity.IsAdmin() {
		log.Warn("Non-admin requested alert stats")
		return nil, fmt.Errorf("service: stats require admin role: %w", ErrForbidden)
	}

	window := s.cfg.StatsTimeWindowMinutes
	counts, err := s.repo.CountBySeverity(ctx, window)
	if err != nil {
		log.WithError(err).Error("Failed to get alert stats")
		return nil, fmt.Errorf("service: could not get stats: %w", err)
	}

	stats := &models.AlertStats{
		WindowMinutes: window,
		BySeverity:    make(map[string]int, len(models.Severities)),
	}
	for _, severity := range models.Severities {
		stats.BySeverity[severity] = 0
	}
	for severity, count := range counts {
		stats.BySeverity[severity] = count
		stats.Total += count
	}
	return stats, nil
}

// loadForMutation загружает алерт и проверяет право на его изменение
func (s *alertService) loadForMutation(ctx context.Context, log *logrus.Entry, identity models.Identity, id uuid.UUID) (*models.Alert, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn("Attempted to mutate a non-existent alert")
			return nil, fmt.Errorf("service: alert with id %s: %w", id, err)
		}
		log.WithError(err).Error("Failed to load alert for mutation")
		return nil, fmt.Errorf("service: could not load alert: %w", err)
	}

	if !models.CanMutate(identity, existing) {
		log.WithField("owner_id", existing.OwnerID).Warn("Caller is neither owner nor admin")
		return nil, fmt.Errorf("service: alert with id %s: %w", id, ErrForbidden)
	}
	return existing, nil
}

// validatePatch объединяет ошибки разбора формы с ошибками валидатора
func (s *alertService) validatePatch(patch models.AlertPatch) error {
	verr := &ValidationError{}
	for field, message := range patch.Malformed {
		verr.Add(field, message)
	}
	if err := s.validate.Struct(patch); err != nil {
		var fieldErrs *ValidationError
		if !errors.As(fromValidator(err), &fieldErrs) {
			return err
		}
		for field, message := range fieldErrs.Fields {
			verr.Add(field, message)
		}
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func (s *alertService) resolveMedia(ctx context.Context, log *logrus.Entry, upload *models.MediaUpload) (string, error) {
	if upload == nil {
		return "", nil
	}
	mediaURL, err := s.media.Resolve(ctx, upload)
	if err != nil {
		if errors.Is(err, ErrUnsupportedMediaType) {
			log.WithError(err).Warn("Rejected media upload")
			return "", fmt.Errorf("service: %w", err)
		}
		log.WithError(err).Error("Failed to store media")
		return "", fmt.Errorf("service: could not store media: %w", err)
	}
	return mediaURL, nil
}

// discardMedia удаляет файл; ошибка только логируется
func (s *alertService) discardMedia(ctx context.Context, log *logrus.Entry, mediaURL string) {
	if mediaURL == "" {
		return
	}
	if err := s.media.Discard(ctx, mediaURL); err != nil {
		log.WithError(err).WithField("media_url", mediaURL).Warn("Failed to discard orphaned media")
	}
}

func (s *alertService) invalidateCache(ctx context.Context, log *logrus.Entry, id uuid.UUID) {
	if err := s.repo.InvalidateAlertCache(ctx, id); err != nil {
		log.WithError(err).Warn("Failed to invalidate alert cache")
	}
}

// publish отправляет событие; ошибка не влияет на уже выполненную операцию
func (s *alertService) publish(ctx context.Context, log *logrus.Entry, event events.AlertEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.WithError(err).WithField("event_type", event.Type).Warn("Failed to publish alert event")
	}
}

func requireIdentity(identity models.Identity) error {
	if identity.IsZero() {
		return fmt.Errorf("service: %w: no identity", ErrUnauthenticated)
	}
	if _, ok := models.ParseRole(string(identity.Role)); !ok {
		return fmt.Errorf("service: %w: unknown role %q", ErrUnauthenticated, identity.Role)
	}
	return nil
}
