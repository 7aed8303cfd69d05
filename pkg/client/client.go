// Package client - Go-клиент REST API алертов.
//
// Клиент повторяет политику сессии веб-интерфейса: перед каждым запросом токен
// проверяется на срок действия, и при отсутствии, порче или истечении токена
// сессия очищается, вызывается хук выхода, а запрос в сеть не отправляется.
// Ответ 401 от сервера обрабатывается так же.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Alert - алерт в том виде, в котором его отдает API.
// Координаты - указатели: запись может прийти без них.
type Alert struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	Severity        string    `json:"severity"`
	Latitude        *float64  `json:"latitude"`
	Longitude       *float64  `json:"longitude"`
	LocationLabel   string    `json:"locationLabel"`
	MediaURL        *string   `json:"mediaUrl"`
	ConfidenceScore *float64  `json:"confidenceScore"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Media - файл, прикладываемый к алерту
type Media struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// AlertFields - поля формы создания или обновления.
// Пустые строки и nil не отправляются.
type AlertFields struct {
	Title         string
	Description   string
	Category      string
	Severity      string
	LocationLabel string
	Latitude      *float64
	Longitude     *float64
	Media         *Media
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	store      TokenStore
	onLogout   func()
	now        func() time.Time
	logger     *logrus.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithLogoutHook задает действие при потере сессии, например переход на страницу входа
func WithLogoutHook(hook func()) Option {
	return func(c *Client) { c.onLogout = hook }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New создает клиент для API по адресу baseURL (например http://localhost:8080/api)
func New(baseURL string, store TokenStore, opts ...Option) *Client {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		store:      store,
		onLogout:   func() {},
		now:        time.Now,
		logger:     discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListAlerts(ctx context.Context) ([]Alert, error) {
	var alerts []Alert
	if err := c.do(ctx, http.MethodGet, "/alerts", nil, "", &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (c *Client) ListMyAlerts(ctx context.Context) ([]Alert, error) {
	var alerts []Alert
	if err := c.do(ctx, http.MethodGet, "/alerts/mine", nil, "", &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (c *Client) GetAlert(ctx context.Context, id string) (*Alert, error) {
	alert := &Alert{}
	if err := c.do(ctx, http.MethodGet, "/alerts/"+url.PathEscape(id), nil, "", alert); err != nil {
		return nil, err
	}
	return alert, nil
}

func (c *Client) CreateAlert(ctx context.Context, fields AlertFields) (*Alert, error) {
	body, contentType, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}
	alert := &Alert{}
	if err := c.do(ctx, http.MethodPost, "/alerts", body, contentType, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// UpdateAlert отправляет только заполненные поля; остальные сервер не меняет
func (c *Client) UpdateAlert(ctx context.Context, id string, fields AlertFields) (*Alert, error) {
	body, contentType, err := encodeFields(fields)
	if err != nil {
		return nil, err
	}
	alert := &Alert{}
	if err := c.do(ctx, http.MethodPut, "/alerts/"+url.PathEscape(id), body, contentType, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

func (c *Client) DeleteAlert(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/alerts/"+url.PathEscape(id), nil, "", nil)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	log := c.logger.WithFields(logrus.Fields{"method": method, "path": path})

	token := c.store.Token()
	if err := checkToken(token, c.now()); err != nil {
		c.logout(log, err)
		return err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("Request failed")
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(resp)
		if resp.StatusCode == http.StatusUnauthorized {
			c.logout(log, apiErr)
			return fmt.Errorf("%w: %w", ErrUnauthenticated, apiErr)
		}
		log.WithField("status", resp.StatusCode).Warn("API returned an error")
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) logout(log *logrus.Entry, reason error) {
	log.WithError(reason).Info("Session is no longer valid, logging out")
	c.store.Clear()
	c.onLogout()
}

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var payload struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err == nil {
		apiErr.Message = payload.Error
		apiErr.Fields = payload.Fields
	}
	return apiErr
}

func encodeFields(fields AlertFields) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	values := []struct{ key, value string }{
		{"title", fields.Title},
		{"description", fields.Description},
		{"category", fields.Category},
		{"severity", fields.Severity},
		{"location", fields.LocationLabel},
		{"latitude", formatFloat(fields.Latitude)},
		{"longitude", formatFloat(fields.Longitude)},
	}
	for _, v := range values {
		if v.value == "" {
			continue
		}
		if err := writer.WriteField(v.key, v.value); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", v.key, err)
		}
	}

	if fields.Media != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="media"; filename=%q`, fields.Media.Filename))
		header.Set("Content-Type", fields.Media.ContentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create media part: %w", err)
		}
		if _, err := io.Copy(part, fields.Media.Content); err != nil {
			return nil, "", fmt.Errorf("failed to write media: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
