package events

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shenikar/neighborhood_alerts/internal/config"
	"github.com/shenikar/neighborhood_alerts/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(cfg *config.Config) *WebhookWorker {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах
	return NewWebhookWorker(nil, logger, cfg)
}

func testEvent() (AlertEvent, string) {
	alert := &models.Alert{ID: uuid.New(), OwnerID: "user-1", Title: "Fire"}
	event := NewAlertEvent(AlertCreated, models.Identity{UserID: "user-1", Role: models.RoleResident}, alert)
	payload, _ := json.Marshal(event)
	return event, string(payload)
}

func TestDeliver_SignsPayload(t *testing.T) {
	event, payload := testEvent()
	var gotSignature, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Webhook-Signature")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	worker := newTestWorker(&config.Config{
		WebhookURL:        server.URL,
		WebhookSecret:     "secret",
		WebhookTimeout:    time.Second,
		WebhookMaxRetries: 3,
	})

	ok := worker.deliver(context.Background(), event, payload)

	require.True(t, ok)
	assert.Equal(t, payload, gotBody)
	assert.Equal(t, generateHMACSHA256(payload, "secret"), gotSignature)
}

func TestDeliver_RetriesUntilSuccess(t *testing.T) {
	event, payload := testEvent()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	worker := newTestWorker(&config.Config{
		WebhookURL:        server.URL,
		WebhookTimeout:    time.Second,
		WebhookMaxRetries: 3,
		WebhookBaseDelay:  time.Millisecond,
	})

	ok := worker.deliver(context.Background(), event, payload)

	assert.True(t, ok)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDeliver_GivesUpAfterMaxRetries(t *testing.T) {
	event, payload := testEvent()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	worker := newTestWorker(&config.Config{
		WebhookURL:        server.URL,
		WebhookTimeout:    time.Second,
		WebhookMaxRetries: 2,
		WebhookBaseDelay:  time.Millisecond,
	})

	ok := worker.deliver(context.Background(), event, payload)

	assert.False(t, ok)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDeliver_NoURLConfigured(t *testing.T) {
	event, payload := testEvent()
	worker := newTestWorker(&config.Config{WebhookMaxRetries: 3})

	assert.False(t, worker.deliver(context.Background(), event, payload))
}

type fakeWriter struct {
	messages []kafka.Message
	closed   bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaPublisher_KeysByAlertID(t *testing.T) {
	writer := &fakeWriter{}
	publisher := &KafkaPublisher{writer: writer}
	event, _ := testEvent()

	require.NoError(t, publisher.Publish(context.Background(), event))
	require.NoError(t, publisher.Close())

	require.Len(t, writer.messages, 1)
	assert.Equal(t, event.AlertID.String(), string(writer.messages[0].Key))
	assert.Equal(t, string(AlertCreated), string(writer.messages[0].Headers[0].Value))

	var decoded AlertEvent
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &decoded))
	assert.Equal(t, event.AlertID, decoded.AlertID)
	assert.True(t, writer.closed)
}
