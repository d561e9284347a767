// Пакет server — HTTP-сервер SurveyHub с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на reverse proxy.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/surveyhub/internal/api/handlers"
	"github.com/bigkaa/surveyhub/internal/api/middleware"
	"github.com/bigkaa/surveyhub/internal/config"
)

// Server — HTTP-сервер SurveyHub.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// auth — middleware аутентификации (может быть nil для тестирования без auth).
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, auth *middleware.Authenticator) *Server {
	router := NewRouter(logger, handler, auth)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// NewRouter собирает маршруты и middleware API.
// Публичные endpoints: приём заявок, логин, health и metrics.
// Остальное требует аутентификации; запуск конвейера дополнительно
// принимает секрет внешнего планировщика.
func NewRouter(logger *slog.Logger, handler *handlers.APIHandler, auth *middleware.Authenticator) *chi.Mux {
	router := chi.NewRouter()

	// Глобальные middleware (применяются ко ВСЕМ маршрутам)
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	// Публичные endpoints
	router.Get("/health/live", handler.HealthLive)
	router.Get("/health/ready", handler.HealthReady)
	router.Get("/metrics", handler.GetMetrics)
	router.Post("/api/v1/submissions", handler.CreateSubmission)
	router.Post("/api/v1/auth/session", handler.Login)

	// Административные endpoints
	router.Group(func(r chi.Router) {
		if auth != nil {
			r.Use(auth.Middleware())
		}
		r.Delete("/api/v1/auth/session", handler.Logout)
		r.Get("/api/v1/submissions", handler.ListSubmissions)
		r.Get("/api/v1/submissions/{responseID}", handler.GetSubmission)
		r.Post("/api/v1/submissions/{responseID}/requeue", handler.RequeueSubmission)
		r.Get("/api/v1/sanitization/status", handler.SanitizationStatus)
	})

	// Запуск конвейера: администратор или внешний планировщик
	router.Group(func(r chi.Router) {
		if auth != nil {
			r.Use(auth.SchedulerOrAuth())
		}
		r.Post("/api/v1/sanitization/run", handler.RunSanitization)
	})

	return router
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
