// handler.go — основной обработчик API SurveyHub.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apierrors "github.com/bigkaa/surveyhub/internal/api/errors"
	"github.com/bigkaa/surveyhub/internal/domain/model"
	"github.com/bigkaa/surveyhub/internal/service"
)

// IntakeSubmitter — приём заявок. Реализуется service.IntakeService.
type IntakeSubmitter interface {
	Submit(ctx context.Context, clientAddr string, sub model.Submission) (*service.SubmitResult, error)
}

// PipelineRunner — управление конвейером санитизации.
// Реализуется service.PipelineService.
type PipelineRunner interface {
	TriggerRun(ctx context.Context) (*service.RunResult, error)
	Status(ctx context.Context) (*service.PipelineStatus, error)
}

// SubmissionAdmin — административные операции над staging-записями.
// Реализуется service.SubmissionAdminService.
type SubmissionAdmin interface {
	List(ctx context.Context, status *string, limit, offset int) ([]*model.SurveyRecord, int, error)
	Get(ctx context.Context, responseID string) (*model.SurveyRecord, error)
	Requeue(ctx context.Context, responseID string) (*model.SurveyRecord, error)
}

// AuthProvider — логин и логаут администратора.
// Реализуется service.AuthService.
type AuthProvider interface {
	Login(ctx context.Context, username, password string) (*service.LoginResult, error)
	Logout(ctx context.Context, sessionToken string) error
}

// APIHandler — основной обработчик API SurveyHub.
type APIHandler struct {
	health   *HealthHandler
	intake   IntakeSubmitter
	pipeline PipelineRunner
	admin    SubmissionAdmin
	auth     AuthProvider
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	intake IntakeSubmitter,
	pipeline PipelineRunner,
	admin SubmissionAdmin,
	auth AuthProvider,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:   health,
		intake:   intake,
		pipeline: pipeline,
		admin:    admin,
		auth:     auth,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeServiceError отображает ошибку сервисного слоя в HTTP-ответ.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrRateLimited):
		apierrors.RateLimited(w, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		apierrors.Unauthorized(w, err.Error())
	case errors.Is(err, service.ErrStorageSchema):
		apierrors.StorageNotReady(w, "Хранилище не готово: применены ли миграции?")
	default:
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}

// paginationDefaults нормализует параметры пагинации из query string.
// Возвращает корректные limit и offset.
func paginationDefaults(r *http.Request) (int, int) {
	l := 100
	o := 0

	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			l = v
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			o = v
		}
	}

	if l < 1 {
		l = 1
	}
	if l > 1000 {
		l = 1000
	}
	if o < 0 {
		o = 0
	}
	return l, o
}
