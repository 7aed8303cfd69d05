package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/redis/go-redis/v9"

	"github.com/shenikar/neighborhood_alerts/internal/auth"
	"github.com/shenikar/neighborhood_alerts/internal/config"
	"github.com/shenikar/neighborhood_alerts/internal/events"
	v1 "github.com/shenikar/neighborhood_alerts/internal/handler/http/v1"
	"github.com/shenikar/neighborhood_alerts/internal/media"
	"github.com/shenikar/neighborhood_alerts/internal/repository"
	"github.com/shenikar/neighborhood_alerts/internal/service"
	"github.com/shenikar/neighborhood_alerts/pkg/logger"
	"github.com/shenikar/neighborhood_alerts/pkg/postgres"
	redisclient "github.com/shenikar/neighborhood_alerts/pkg/redis"
	"github.com/sirupsen/logrus"

	_ "github.com/shenikar/neighborhood_alerts/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Neighborhood Alerts API
// @version 1.0
// @description Residents report local safety incidents; owners and admins moderate them.
// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func runMigrations(cfg *config.Config, log *logrus.Logger) error {
	log.WithField("source", cfg.MigrationsPath).Info("Running database migrations...")

	migrationURL := cfg.DatabaseURL
	if !strings.HasPrefix(migrationURL, "pgx5://") {
		migrationURL = strings.Replace(migrationURL, "postgres://", "pgx5://", 1)
		migrationURL = strings.Replace(migrationURL, "postgresql://", "pgx5://", 1)
	}

	m, err := migrate.New(cfg.MigrationsPath, migrationURL)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations applied successfully")
	return nil
}

// newPublisher выбирает транспорт событий по EVENTS_BACKEND.
// Для redis дополнительно запускается воркер доставки вебхуков.
func newPublisher(ctx context.Context, cfg *config.Config, redisClient *redis.Client, log *logrus.Logger) (events.Publisher, func()) {
	switch cfg.EventsBackend {
	case "kafka":
		publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		log.WithField("topic", cfg.KafkaTopic).Info("Publishing alert events to Kafka")
		return publisher, func() {
			if err := publisher.Close(); err != nil {
				log.WithError(err).Warn("Failed to close Kafka writer")
			}
		}
	case "none":
		log.Info("Alert events are disabled")
		return events.NopPublisher{}, func() {}
	default:
		worker := events.NewWebhookWorker(redisClient, log, cfg)
		worker.Start(ctx)
		return events.NewRedisPublisher(redisClient), func() {}
	}
}

func newGuard(cfg *config.Config) *auth.Guard {
	var opts []auth.Option
	if cfg.JWTIssuer != "" {
		opts = append(opts, auth.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTSkipVerify {
		opts = append(opts, auth.WithoutSignatureCheck())
	}
	return auth.NewGuard(cfg.JWTSecret, opts...)
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	log := logger.New(cfg.LogLevel)
	if cfg.JWTSkipVerify {
		log.Warn("JWT signature verification is disabled")
	}

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запуск миграций
	if err := runMigrations(cfg, log); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Подключение к PostgreSQL
	dbpool, err := postgres.NewPostgresDB(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer dbpool.Close()
	log.Info("Successfully connected to PostgreSQL")

	// Инициализация Redis клиента: кеш алертов и очередь событий
	redisClient, err := redisclient.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Info("Successfully connected to Redis")

	publisher, closePublisher := newPublisher(ctx, cfg, redisClient, log)
	defer closePublisher()

	// Хранилище вложений
	store, err := media.NewDiskStore(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to prepare upload storage: %v", err)
	}
	resolver := media.NewResolver(store, cfg.UploadURLPrefix)

	// Инициализация репозиториев
	alertRepo := repository.NewAlertRepository(dbpool, redisClient, cfg.CacheTTL)

	// Инициализация сервисов
	alertService := service.NewAlertService(alertRepo, resolver, publisher, service.DefaultClassifier{}, log, cfg)

	// Инициализация хэндлеров
	handler := v1.NewHandler(alertService, log, cfg)

	// Настройка Gin роутера
	router := gin.Default()
	router.MaxMultipartMemory = cfg.MaxUploadBytes
	router.Static(cfg.UploadURLPrefix, cfg.UploadDir)
	api := router.Group("/api")
	handler.RegisterRoutes(api, newGuard(cfg))

	// Добавление маршрута для Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Запуск HTTP-сервера
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Запуск сервера в горутине
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Error starting HTTP server: %v", err)
		}
	}()
	log.Infof("HTTP server started on port %s", cfg.HTTPPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal, shutting down server...")

	// Останавливаем воркер вебхуков
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server gracefully stopped")
}
