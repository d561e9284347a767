// Точка входа SurveyHub — платформа анкет сообщества.
// Загружает конфигурацию, подключается к PostgreSQL и Redis, применяет
// миграции, создаёт сервисный слой и API handlers, запускает фоновый
// конвейер санитизации и topologymetrics, HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/surveyhub/internal/api/handlers"
	"github.com/bigkaa/surveyhub/internal/api/middleware"
	"github.com/bigkaa/surveyhub/internal/config"
	"github.com/bigkaa/surveyhub/internal/database"
	"github.com/bigkaa/surveyhub/internal/ratelimit"
	"github.com/bigkaa/surveyhub/internal/repository"
	"github.com/bigkaa/surveyhub/internal/server"
	"github.com/bigkaa/surveyhub/internal/service"
	"github.com/bigkaa/surveyhub/internal/session"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("SurveyHub запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// Предупреждения о дефолтных значениях topologymetrics
	if os.Getenv("SH_DEPHEALTH_GROUP") == "" {
		logger.Warn("SH_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode).
	// Проверка здоровья PostgreSQL будет идти через существующий пул соединений,
	// что позволяет обнаружить его исчерпание.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Подключение к Redis (rate limiting + сессии)
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis недоступен при старте, rate limiting и сессии не будут работать",
			slog.String("addr", cfg.RedisAddr),
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("Redis подключён", slog.String("addr", cfg.RedisAddr))
	}

	// 6. Repositories
	stagingRepo := repository.NewStagingRepository(pool)
	productionRepo := repository.NewProductionRepository(pool)
	promoter := repository.NewPromoter(pool)

	// 7. Redis-коллабораторы: rate limiter и хранилище сессий
	limiter := ratelimit.New(redisClient, cfg.RateLimit, cfg.RateWindow)
	sessions := session.NewStore(redisClient, cfg.SessionTTL)

	// 8. Middleware аутентификации (также выпускает JWT при логине)
	authMiddleware := middleware.NewAuthenticator(
		cfg.JWTSecret, sessions, cfg.SchedulerSecret, logger,
	)

	// 9. Services
	intakeSvc := service.NewIntakeService(stagingRepo, productionRepo, limiter, logger)
	pipelineSvc := service.NewPipelineService(
		stagingRepo, promoter,
		cfg.SanitizeInterval, cfg.SanitizeBatchSize, cfg.SanitizeMaxAttempts,
		logger,
	)
	adminSvc := service.NewSubmissionAdminService(stagingRepo, logger)
	authSvc := service.NewAuthService(
		cfg.AdminUser, cfg.AdminPasswordHash,
		sessions, authMiddleware, cfg.SessionTTL,
		logger,
	)

	// 10. Readiness checkers (PostgreSQL + Redis)
	pgChecker := database.NewReadinessChecker(pool)
	redisChecker := handlers.NewRedisReadinessChecker(redisClient)
	healthHandler := handlers.NewHealthHandler(pgChecker, redisChecker)

	// 11. API handler
	apiHandler := handlers.NewAPIHandler(
		healthHandler,
		intakeSvc,
		pipelineSvc,
		adminSvc,
		authSvc,
		logger,
	)

	// 12. Запуск фонового конвейера санитизации
	pipelineSvc.Start(ctx)

	// 12.1 topologymetrics — мониторинг зависимостей (PostgreSQL)
	var dephealthSvc *service.DephealthService
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"surveyhub",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 13. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, authMiddleware)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 14. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")

	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	pipelineSvc.Stop()

	logger.Info("SurveyHub остановлен")
}
