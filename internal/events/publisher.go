package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/neighborhood_alerts/internal/models"
)

const (
	alertQueueKey = "alert_events"
)

// EventType - тип события жизненного цикла алерта
type EventType string

const (
	AlertCreated EventType = "alert.created"
	AlertUpdated EventType = "alert.updated"
	AlertDeleted EventType = "alert.deleted"
)

// AlertEvent - событие об изменении алерта
type AlertEvent struct {
	Type      EventType     `json:"type"`
	AlertID   uuid.UUID     `json:"alert_id"`
	ActorID   string        `json:"actor_id"`
	ActorRole models.Role   `json:"actor_role"`
	Timestamp time.Time     `json:"timestamp"`
	Alert     *models.Alert `json:"alert,omitempty"` // Снимок алерта; для удаления - последнее состояние
}

// NewAlertEvent создает событие от имени пользователя
func NewAlertEvent(eventType EventType, actor models.Identity, alert *models.Alert) AlertEvent {
	return AlertEvent{
		Type:      eventType,
		AlertID:   alert.ID,
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
		Timestamp: time.Now().UTC(),
		Alert:     alert,
	}
}

// Publisher - интерфейс для публикации событий
type Publisher interface {
	Publish(ctx context.Context, event AlertEvent) error
}

// RedisPublisher - реализация Publisher, использующая очередь в Redis
type RedisPublisher struct {
	redisClient *redis.Client
}

// NewRedisPublisher создает новый RedisPublisher
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{
		redisClient: client,
	}
}

// Publish публикует событие в очередь Redis
func (p *RedisPublisher) Publish(ctx context.Context, event AlertEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal alert event: %w", err)
	}

	// LPUSH добавляет событие в левую часть списка, воркер забирает справа
	if err := p.redisClient.LPush(ctx, alertQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish alert event to Redis: %w", err)
	}
	return nil
}

// NopPublisher отбрасывает события (EVENTS_BACKEND=none)
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, AlertEvent) error { return nil }
