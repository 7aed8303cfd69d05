package v1

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shenikar/neighborhood_alerts/internal/config"
	"github.com/shenikar/neighborhood_alerts/internal/models"
	"github.com/shenikar/neighborhood_alerts/internal/service"
	"github.com/sirupsen/logrus"
)

const mediaField = "media"

type Handler struct {
	alertService service.AlertService
	logger       *logrus.Logger
	cfg          *config.Config
}

func NewHandler(alertService service.AlertService, logger *logrus.Logger, cfg *config.Config) *Handler {
	return &Handler{
		alertService: alertService,
		logger:       logger,
		cfg:          cfg,
	}
}

// @Summary Create a new alert
// @Description Create an alert owned by the caller. Category and severity get default values.
// @Tags Alerts
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param title formData string true "Short title"
// @Param description formData string true "What happened"
// @Param latitude formData number true "Latitude in [-90, 90]"
// @Param longitude formData number true "Longitude in [-180, 180]"
// @Param location formData string false "Human-readable location"
// @Param media formData file false "Image or video"
// @Success 200 {object} AlertResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 413 {object} ErrorResponse "Upload too large"
// @Failure 422 {object} ErrorResponse "Validation error or unsupported media type"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /alerts [post]
func (h *Handler) createAlert(c *gin.Context) {
	log := h.logger.WithField("method", "createAlert")

	if err := h.parseForm(c); err != nil {
		h.writeError(c, log, err)
		return
	}

	verr := &service.ValidationError{}
	input := models.AlertInput{
		Title:         c.PostForm("title"),
		Description:   c.PostForm("description"),
		Latitude:      formFloat(c, "latitude", verr),
		Longitude:     formFloat(c, "longitude", verr),
		LocationLabel: c.PostForm("location"),
	}
	if len(verr.Fields) > 0 {
		h.writeError(c, log, verr)
		return
	}

	upload, closeUpload, err := formMedia(c)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	defer closeUpload()

	alert, err := h.alertService.CreateAlert(c.Request.Context(), identityFrom(c), input, upload)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToAlertResponse(alert))
}

// @Summary Get a list of alerts
// @Description Get all alerts, newest first.
// @Tags Alerts
// @Produce json
// @Security BearerAuth
// @Success 200 {array} AlertResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /alerts [get]
func (h *Handler) listAlerts(c *gin.Context) {
	log := h.logger.WithField("method", "listAlerts")

	alerts, err := h.alertService.ListAlerts(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToAlertResponses(alerts))
}

// @Summary Get caller's alerts
// @Description Get alerts created by the authenticated user.
// @Tags Alerts
// @Produce json
// @Security BearerAuth
// @Success 200 {array} AlertResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /alerts/mine [get]
func (h *Handler) listMyAlerts(c *gin.Context) {
	log := h.logger.WithField("method", "listMyAlerts")

	alerts, err := h.alertService.ListMyAlerts(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToAlertResponses(alerts))
}

// @Summary Find alerts near a point
// @Description Get alerts within radius meters of the given coordinates.
// @Tags Alerts
// @Produce json
// @Security BearerAuth
// @Param lat query number true "Latitude"
// @Param lon query number true "Longitude"
// @Param radius query int false "Radius in meters" default(1000)
// @Success 200 {array} AlertResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 422 {object} ErrorResponse "Validation error"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /alerts/nearby [get]
func (h *Handler) listNearby(c *gin.Context) {
	log := h.logger.WithField("method", "listNearby")

	verr := &service.ValidationError{}
	lat := queryFloat(c, "lat", verr)
	lon := queryFloat(c, "lon", verr)
	radius := 0
	if raw := c.Query("radius"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			verr.Add("radius", "must be an integer")
		}
		radius = parsed
	}
	if len(verr.Fields) > 0 {
		h.writeError(c, log, verr)
		return
	}

	alerts, err := h.alertService.ListNearby(c.Request.Context(), identityFrom(c), lat, lon, radius)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToAlertResponses(alerts))
}

// @Summary Get alert statistics
// @Description Count alerts per severity within the configured time window. Admin only.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} StatsResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /alerts/stats [get]
func (h *Handler) getStats(c *gin.Context) {
	log := h.logger.WithField("method", "getStats")

	stats, err := h.alertService.GetStats(c.Request.Context(), identityFrom(c))
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToStatsResponse(stats))
}

// @Summary Get alert by ID
// @Description Get a single alert by its ID.
// @Tags Alerts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Alert ID"
// @Success 200 {object} AlertResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 404 {object} ErrorResponse "Alert not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /alerts/{id} [get]
func (h *Handler) getAlert(c *gin.Context) {
	id, ok := h.alertID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getAlert").WithField("id", id)

	alert, err := h.alertService.GetAlert(c.Request.Context(), identityFrom(c), id)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToAlertResponse(alert))
}

// @Summary Update an existing alert
// @Description Partially update an alert. Absent or blank fields are left unchanged. Owner or admin only.
// @Tags Alerts
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Alert ID"
// @Param title formData string false "Short title"
// @Param description formData string false "What happened"
// @Param category formData string false "Category"
// @Param severity formData string false "Severity" Enums(Low, Medium, High)
// @Param latitude formData number false "Latitude in [-90, 90]"
// @Param longitude formData number false "Longitude in [-180, 180]"
// @Param location formData string false "Human-readable location"
// @Param media formData file false "Image or video, replaces the current one"
// @Success 200 {object} AlertResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Alert not found"
// @Failure 422 {object} ErrorResponse "Validation error or unsupported media type"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /alerts/{id} [put]
func (h *Handler) updateAlert(c *gin.Context) {
	id, ok := h.alertID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "updateAlert").WithField("id", id)

	if err := h.parseForm(c); err != nil {
		h.writeError(c, log, err)
		return
	}

	verr := &service.ValidationError{}
	patch := models.AlertPatch{
		Title:         formString(c, "title"),
		Description:   formString(c, "description"),
		Category:      formString(c, "category"),
		Severity:      formString(c, "severity"),
		LocationLabel: formString(c, "location"),
		Latitude:      formFloat(c, "latitude", verr),
		Longitude:     formFloat(c, "longitude", verr),
	}

	upload, closeUpload, err := formMedia(c)
	var fieldErr *service.ValidationError
	if errors.As(err, &fieldErr) {
		for field, message := range fieldErr.Fields {
			verr.Add(field, message)
		}
	} else if err != nil {
		h.writeError(c, log, err)
		return
	}
	defer closeUpload()

	// Ошибки разбора отдаются сервису: чужой или несуществующий алерт дает 403/404, а не 422
	if len(verr.Fields) > 0 {
		patch.Malformed = verr.Fields
	}

	alert, err := h.alertService.UpdateAlert(c.Request.Context(), identityFrom(c), id, patch, upload)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToAlertResponse(alert))
}

// @Summary Delete an alert
// @Description Permanently delete an alert. Owner or admin only.
// @Tags Alerts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Alert ID"
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Forbidden"
// @Failure 404 {object} ErrorResponse "Alert not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /alerts/{id} [delete]
func (h *Handler) deleteAlert(c *gin.Context) {
	id, ok := h.alertID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "deleteAlert").WithField("id", id)

	if err := h.alertService.DeleteAlert(c.Request.Context(), identityFrom(c), id); err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "alert deleted"})
}

// @Summary Get application health status
// @Description Get health status of the application
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string "Status OK"
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// alertID разбирает :id. Некорректный id неотличим от несуществующего, поэтому 404.
func (h *Handler) alertID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "alert not found"})
		return uuid.Nil, false
	}
	return id, true
}

// parseForm разбирает multipart или urlencoded тело с ограничением размера
func (h *Handler) parseForm(c *gin.Context) error {
	if h.cfg.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.MaxUploadBytes)
	}
	err := c.Request.ParseMultipartForm(h.cfg.MaxUploadBytes)
	if errors.Is(err, http.ErrNotMultipart) {
		err = c.Request.ParseForm()
	}
	if err != nil {
		return fmt.Errorf("%w: %w", errMalformedForm, err)
	}
	return nil
}

var errMalformedForm = errors.New("malformed form")

// writeError сопоставляет ошибки сервиса с HTTP-статусами
func (h *Handler) writeError(c *gin.Context, log *logrus.Entry, err error) {
	var (
		verr     *service.ValidationError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		log.WithError(err).Warn("Unauthenticated request")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "authentication required"})
	case errors.Is(err, service.ErrForbidden):
		log.WithError(err).Warn("Forbidden request")
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "you are not allowed to modify this alert"})
	case errors.Is(err, service.ErrNotFound):
		log.WithError(err).Warn("Alert not found")
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "alert not found"})
	case errors.As(err, &tooLarge):
		log.WithError(err).Warn("Request body too large")
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit)})
	case errors.Is(err, service.ErrUnsupportedMediaType):
		log.WithError(err).Warn("Unsupported media type")
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:  "unsupported media type",
			Fields: map[string]string{mediaField: "only image and video files are allowed"},
		})
	case errors.As(err, &verr):
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid input", Fields: verr.Fields})
	case errors.Is(err, service.ErrInvalidInput):
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: "invalid input"})
	case errors.Is(err, errMalformedForm):
		log.WithError(err).Warn("Failed to parse form")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	default:
		log.WithError(err).Error("Request failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

// formString возвращает nil, если поле не передано
func formString(c *gin.Context, key string) *string {
	value, ok := c.GetPostForm(key)
	if !ok {
		return nil
	}
	return &value
}

// formFloat разбирает числовое поле формы. Пустое или отсутствующее поле дает nil.
func formFloat(c *gin.Context, key string, verr *service.ValidationError) *float64 {
	raw := strings.TrimSpace(c.PostForm(key))
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		verr.Add(key, "must be a finite number")
		return nil
	}
	return &value
}

func queryFloat(c *gin.Context, key string, verr *service.ValidationError) float64 {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		verr.Add(key, "is required")
		return 0
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		verr.Add(key, "must be a number")
		return 0
	}
	return value
}

// formMedia возвращает единственный файл из поля media или nil, если файла нет.
// Несколько файлов в поле - ошибка проверки.
func formMedia(c *gin.Context) (*models.MediaUpload, func(), error) {
	noop := func() {}
	if c.Request.MultipartForm == nil {
		return nil, noop, nil
	}

	files := c.Request.MultipartForm.File[mediaField]
	if len(files) > 1 {
		return nil, noop, service.NewValidationError(mediaField, "only one file is allowed")
	}

	header, err := c.FormFile(mediaField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, noop, nil
		}
		return nil, noop, fmt.Errorf("%w: %w", errMalformedForm, err)
	}

	file, err := header.Open()
	if err != nil {
		return nil, noop, fmt.Errorf("failed to open uploaded media: %w", err)
	}

	upload := &models.MediaUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Content:     file,
	}
	return upload, func() { _ = file.Close() }, nil
}
