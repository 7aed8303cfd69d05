package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/neighborhood_alerts/internal/models"
	"github.com/shenikar/neighborhood_alerts/internal/service"
)

const alertColumns = `
	id,
	owner_id,
	title,
	description,
	category,
	severity,
	ST_Y(location::geometry) AS latitude,
	ST_X(location::geometry) AS longitude,
	location_label,
	media_url,
	confidence_score,
	created_at`

type AlertRepository struct {
	db          *pgxpool.Pool
	redisClient *redis.Client
	cacheTTL    time.Duration
}

func NewAlertRepository(db *pgxpool.Pool, redisClient *redis.Client, cacheTTL time.Duration) service.AlertRepository {
	return &AlertRepository{
		db:          db,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
	}
}

// Create сохраняет новый алерт; id и created_at назначает бд
func (r *AlertRepository) Create(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT INTO alerts (owner_id, title, description, category, severity, location, location_label, media_url, confidence_score)
		VALUES ($1, $2, $3, $4, $5, ST_SetSRID(ST_MakePoint($6, $7), 4326), $8, $9, $10)
		RETURNING id, created_at;
	`
	err := r.db.QueryRow(ctx, query,
		alert.OwnerID,
		alert.Title,
		alert.Description,
		alert.Category,
		alert.Severity,
		alert.Longitude,
		alert.Latitude,
		alert.LocationLabel,
		alert.MediaURL,
		alert.ConfidenceScore,
	).Scan(&alert.ID, &alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// GetByID возвращает алерт по его UUID
func (r *AlertRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	query := `SELECT` + alertColumns + ` FROM alerts WHERE id = $1;`

	alert, err := scanAlert(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("alert with id %s: %w", id, service.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get alert by id: %w", err)
	}
	return alert, nil
}

// List возвращает все алерты, новые первыми
func (r *AlertRepository) List(ctx context.Context) ([]*models.Alert, error) {
	query := `SELECT` + alertColumns + ` FROM alerts ORDER BY created_at DESC;`
	return r.queryAlerts(ctx, "List", query)
}

// ListByOwner возвращает алерты одного автора, новые первыми
func (r *AlertRepository) ListByOwner(ctx context.Context, ownerID string) ([]*models.Alert, error) {
	query := `SELECT` + alertColumns + ` FROM alerts WHERE owner_id = $1 ORDER BY created_at DESC;`
	return r.queryAlerts(ctx, "ListByOwner", query, ownerID)
}

// Update перезаписывает изменяемые поля алерта. Автор и время создания не меняются.
func (r *AlertRepository) Update(ctx context.Context, alert *models.Alert) error {
	query := `
		UPDATE alerts SET
			title = $1,
			description = $2,
			category = $3,
			severity = $4,
			location = ST_SetSRID(ST_MakePoint($5, $6), 4326),
			location_label = $7,
			media_url = $8
		WHERE id = $9;
	`
	cmdTag, err := r.db.Exec(ctx, query,
		alert.Title,
		alert.Description,
		alert.Category,
		alert.Severity,
		alert.Longitude,
		alert.Latitude,
		alert.LocationLabel,
		alert.MediaURL,
		alert.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}

	// RowsAffected() == 0 значит, что алерт удалили между чтением и записью
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("alert with id %s: %w", alert.ID, service.ErrNotFound)
	}
	return nil
}

// Delete безвозвратно удаляет алерт
func (r *AlertRepository) Delete(ctx context.Context, id uuid.UUID) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM alerts WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("alert with id %s: %w", id, service.ErrNotFound)
	}
	return nil
}

// FindWithinRadius находит алерты не дальше radiusMeters от точки
func (r *AlertRepository) FindWithinRadius(ctx context.Context, lat, lon float64, radiusMeters int) ([]*models.Alert, error) {
	query := `SELECT` + alertColumns + `
		FROM alerts
		WHERE ST_DWithin(
			location,
			ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography,
			$3
		)
		ORDER BY created_at DESC;
	`
	return r.queryAlerts(ctx, "FindWithinRadius", query, lon, lat, radiusMeters)
}

// CountBySeverity считает алерты за последние minutes минут по уровням опасности
func (r *AlertRepository) CountBySeverity(ctx context.Context, minutes int) (map[string]int, error) {
	query := `
		SELECT severity, COUNT(*)
		FROM alerts
		WHERE created_at >= NOW() - ($1 * INTERVAL '1 minute')
		GROUP BY severity;
	`
	rows, err := r.db.Query(ctx, query, minutes)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts by severity: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			severity string
			count    int
		)
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("failed to scan severity count: %w", err)
		}
		counts[severity] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error severity iteration: %w", err)
	}
	return counts, nil
}

// GetAlertFromCache пытается получить алерт из Redis. Промах кеша - это (nil, nil).
func (r *AlertRepository) GetAlertFromCache(ctx context.Context, id uuid.UUID) (*models.Alert, error) {
	val, err := r.redisClient.Get(ctx, cacheKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get alert from cache: %w", err)
	}

	alert := &models.Alert{}
	if err := json.Unmarshal(val, alert); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alert from cache: %w", err)
	}
	return alert, nil
}

// cacheVersionTTL должен заметно превышать время чтения из бд,
// иначе устаревший читатель снова увидит "нулевую" версию
const cacheVersionTTL = 24 * time.Hour

// setIfVersion записывает алерт, только если версия ключа не менялась с момента чтения.
// Отсутствующая версия равна 0.
var setIfVersion = redis.NewScript(`
local current = redis.call("GET", KEYS[2]) or "0"
if current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
else
	redis.call("SET", KEYS[1], ARGV[2])
end
return 1
`)

// GetAlertCacheVersion возвращает текущую версию записи в кеше. Ее нужно прочитать до запроса в бд.
func (r *AlertRepository) GetAlertCacheVersion(ctx context.Context, id uuid.UUID) (int64, error) {
	version, err := r.redisClient.Get(ctx, cacheVersionKey(id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get alert cache version: %w", err)
	}
	return version, nil
}

// SetAlertCache сохраняет алерт в Redis на cacheTTL, если с момента чтения version
// алерт не инвалидировали. Иначе запись пропускается.
func (r *AlertRepository) SetAlertCache(ctx context.Context, alert *models.Alert, version int64) error {
	val, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert for cache: %w", err)
	}
	keys := []string{cacheKey(alert.ID), cacheVersionKey(alert.ID)}
	err = setIfVersion.Run(ctx, r.redisClient, keys, version, val, r.cacheTTL.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("failed to set alert in cache: %w", err)
	}
	return nil
}

// InvalidateAlertCache удаляет алерт из Redis кеша и поднимает версию,
// чтобы незавершенные чтения не вернули в кеш старые данные
func (r *AlertRepository) InvalidateAlertCache(ctx context.Context, id uuid.UUID) error {
	_, err := r.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, cacheVersionKey(id))
		pipe.Expire(ctx, cacheVersionKey(id), cacheVersionTTL)
		pipe.Del(ctx, cacheKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate alert cache: %w", err)
	}
	return nil
}

func (r *AlertRepository) queryAlerts(ctx context.Context, op, query string, args ...any) ([]*models.Alert, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts in %s: %w", op, err)
	}
	defer rows.Close()

	alerts := make([]*models.Alert, 0)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert row in %s: %w", op, err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration in %s: %w", op, err)
	}
	return alerts, nil
}

func scanAlert(row pgx.Row) (*models.Alert, error) {
	alert := &models.Alert{}
	err := row.Scan(
		&alert.ID,
		&alert.OwnerID,
		&alert.Title,
		&alert.Description,
		&alert.Category,
		&alert.Severity,
		&alert.Latitude,
		&alert.Longitude,
		&alert.LocationLabel,
		&alert.MediaURL,
		&alert.ConfidenceScore,
		&alert.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return alert, nil
}

func cacheKey(id uuid.UUID) string {
	return fmt.Sprintf("alert:%s", id.String())
}

func cacheVersionKey(id uuid.UUID) string {
	return fmt.Sprintf("alert:%s:version", id.String())
}
