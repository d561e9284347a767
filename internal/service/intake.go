// intake.go — сервис приёма заявок (Submission Intake).
//
// Разбирает payload по дискриминатору варианта, проверяет rate limit
// по адресу клиента, валидирует поля (go-playground/validator + явные
// проверки возраста и принятия условий), генерирует монотонный
// response_id по обоим семействам префиксов и создаёт pending-запись
// в staging.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/surveyhub/internal/domain/model"
	"github.com/bigkaa/surveyhub/internal/ratelimit"
	"github.com/bigkaa/surveyhub/internal/repository"
)

// Prometheus-метрики приёма заявок.
var (
	intakeSubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sh_submissions_total",
		Help: "Количество заявок по вариантам и результатам",
	}, []string{"variant", "result"}) // result: accepted, rejected, rate_limited, error
)

// RateLimiter — проверка лимита заявок, консультируется при приёме.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Status, error)
}

// SubmitResult — результат успешного приёма заявки.
type SubmitResult struct {
	// ID — идентификатор строки staging.
	ID int64
	// ResponseID — присвоенный человекочитаемый идентификатор.
	ResponseID string
	// RateRemaining — остаток лимита в текущем окне.
	RateRemaining int
	// RateResetAt — время сброса окна лимита.
	RateResetAt time.Time
}

// IntakeService — сервис приёма заявок.
type IntakeService struct {
	staging    repository.StagingRepository
	production repository.ProductionRepository
	limiter    RateLimiter
	validate   *validator.Validate
	logger     *slog.Logger
}

// NewIntakeService создаёт сервис приёма заявок.
func NewIntakeService(
	staging repository.StagingRepository,
	production repository.ProductionRepository,
	limiter RateLimiter,
	logger *slog.Logger,
) *IntakeService {
	return &IntakeService{
		staging:    staging,
		production: production,
		limiter:    limiter,
		validate:   validator.New(),
		logger:     logger.With(slog.String("component", "intake")),
	}
}

// ParseSubmission разбирает payload в вариант анкеты по дискриминатору
// "variant". Неизвестный вариант или нечитаемый JSON — ErrValidation.
func ParseSubmission(data []byte) (model.Submission, error) {
	var envelope struct {
		Variant string `json:"variant"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: нечитаемый JSON", ErrValidation)
	}

	var sub model.Submission
	switch envelope.Variant {
	case model.VariantHardware:
		sub = &model.HardwareSubmission{}
	case model.VariantPersonal:
		sub = &model.PersonalSubmission{}
	case model.VariantPerformance:
		sub = &model.PerformanceSubmission{}
	case model.VariantBugReport:
		sub = &model.BugReportSubmission{}
	case model.VariantQuest:
		sub = &model.QuestSubmission{}
	case model.VariantStory:
		sub = &model.StorySubmission{}
	case model.VariantFull:
		sub = &model.FullSubmission{}
	default:
		return nil, fmt.Errorf("%w: неизвестный вариант анкеты %q", ErrValidation, envelope.Variant)
	}

	if err := json.Unmarshal(data, sub); err != nil {
		return nil, fmt.Errorf("%w: нечитаемый payload варианта %s", ErrValidation, envelope.Variant)
	}
	return sub, nil
}

// Submit принимает заявку: rate limit → валидация → генерация ID →
// вставка в staging со статусом pending и attempts 0.
func (s *IntakeService) Submit(ctx context.Context, clientAddr string, sub model.Submission) (*SubmitResult, error) {
	variant := sub.Variant()

	// Rate limit по адресу клиента
	status, err := s.limiter.Allow(ctx, clientAddr)
	if err != nil {
		intakeSubmissionsTotal.WithLabelValues(variant, "error").Inc()
		return nil, fmt.Errorf("ошибка rate limiter: %w", err)
	}
	if !status.Allowed {
		intakeSubmissionsTotal.WithLabelValues(variant, "rate_limited").Inc()
		return nil, fmt.Errorf("%w: повторите после %s",
			ErrRateLimited, status.ResetAt.Format(time.RFC3339))
	}

	// Явные проверки возраста и принятия условий — до тегов validator,
	// чтобы вернуть осмысленные сообщения
	if err := checkAgeAndTerms(sub); err != nil {
		intakeSubmissionsTotal.WithLabelValues(variant, "rejected").Inc()
		return nil, err
	}

	if err := s.validate.Struct(sub); err != nil {
		intakeSubmissionsTotal.WithLabelValues(variant, "rejected").Inc()
		return nil, fmt.Errorf("%w: %s", ErrValidation, formatValidationErrors(err))
	}

	// Генерация монотонного response_id: максимум суффикса по обоим
	// семействам префиксов в объединении staging и production
	responseID, err := s.nextResponseID(ctx)
	if err != nil {
		intakeSubmissionsTotal.WithLabelValues(variant, "error").Inc()
		return nil, err
	}

	rec := &model.SurveyRecord{}
	sub.Apply(rec)
	rec.ResponseID = &responseID

	if err := s.staging.Insert(ctx, rec); err != nil {
		intakeSubmissionsTotal.WithLabelValues(variant, "error").Inc()
		return nil, mapStorageError(err)
	}

	s.logger.Info("Заявка принята",
		slog.String("variant", variant),
		slog.String("response_id", responseID),
		slog.Int64("id", rec.ID),
	)
	intakeSubmissionsTotal.WithLabelValues(variant, "accepted").Inc()

	return &SubmitResult{
		ID:            rec.ID,
		ResponseID:    responseID,
		RateRemaining: status.Remaining,
		RateResetAt:   status.ResetAt,
	}, nil
}

// nextResponseID возвращает следующий response_id текущего семейства.
// Legacy-записи продолжаются по их максимальному суффиксу.
func (s *IntakeService) nextResponseID(ctx context.Context) (string, error) {
	stagingMax, err := s.staging.MaxResponseSeq(ctx)
	if err != nil {
		return "", mapStorageError(err)
	}
	productionMax, err := s.production.MaxResponseSeq(ctx)
	if err != nil {
		return "", mapStorageError(err)
	}

	next := stagingMax + 1
	if productionMax >= stagingMax {
		next = productionMax + 1
	}
	return fmt.Sprintf("%s-%d", model.ResponseIDPrefix, next), nil
}

// checkAgeAndTerms — обязательные требования personal и full вариантов.
func checkAgeAndTerms(sub model.Submission) error {
	var age *int
	var tos *bool

	switch v := sub.(type) {
	case *model.PersonalSubmission:
		age, tos = v.Age, v.TOSAccepted
	case *model.FullSubmission:
		age, tos = v.Age, v.TOSAccepted
	default:
		return nil
	}

	if age == nil || *age < 16 {
		return fmt.Errorf("%w: you must be 16 or older to participate", ErrValidation)
	}
	if tos == nil || !*tos {
		return fmt.Errorf("%w: terms of service must be accepted", ErrValidation)
	}
	return nil
}

// formatValidationErrors приводит ошибки validator к компактной строке.
func formatValidationErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: нарушено правило %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// mapStorageError классифицирует ошибки хранилища для вызывающей стороны:
// конфликт уникальности, рассинхронизация схемы, прочее.
func mapStorageError(err error) error {
	switch {
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case errors.Is(err, repository.ErrSchema):
		return fmt.Errorf("%w: %v", ErrStorageSchema, err)
	default:
		return err
	}
}
