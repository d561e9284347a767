// submissions.go — административные операции над staging-записями:
// просмотр очереди и ручной возврат отклонённых записей в конвейер.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/surveyhub/internal/domain/model"
	"github.com/bigkaa/surveyhub/internal/repository"
)

// SubmissionAdminService — административный сервис заявок.
type SubmissionAdminService struct {
	staging repository.StagingRepository
	logger  *slog.Logger
}

// NewSubmissionAdminService создаёт административный сервис заявок.
func NewSubmissionAdminService(staging repository.StagingRepository, logger *slog.Logger) *SubmissionAdminService {
	return &SubmissionAdminService{
		staging: staging,
		logger:  logger.With(slog.String("component", "submission-admin")),
	}
}

// List возвращает страницу staging-записей и общее количество.
// status — опциональный фильтр; "pending" включает записи с NULL-статусом.
func (s *SubmissionAdminService) List(ctx context.Context, status *string, limit, offset int) ([]*model.SurveyRecord, int, error) {
	if status != nil {
		if _, err := model.ParseStatus(*status); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}

	filters := repository.StagingListFilters{Status: status}

	records, err := s.staging.List(ctx, filters, limit, offset)
	if err != nil {
		return nil, 0, mapStorageError(err)
	}
	total, err := s.staging.Count(ctx, filters)
	if err != nil {
		return nil, 0, mapStorageError(err)
	}
	return records, total, nil
}

// Get возвращает staging-запись по response_id.
func (s *SubmissionAdminService) Get(ctx context.Context, responseID string) (*model.SurveyRecord, error) {
	rec, err := s.staging.GetByResponseID(ctx, responseID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, mapStorageError(err)
	}
	return rec, nil
}

// Requeue возвращает отклонённую запись в очередь конвейера.
// Разрешён только переход rejected → pending, счётчик попыток сбрасывается.
func (s *SubmissionAdminService) Requeue(ctx context.Context, responseID string) (*model.SurveyRecord, error) {
	rec, err := s.Get(ctx, responseID)
	if err != nil {
		return nil, err
	}

	// Матрица переходов: approved терминален, pending уже в очереди
	from := model.NormalizeStatus(rec.SanitizationStatus)
	if !model.CanTransition(from, model.StatusPending) {
		return nil, fmt.Errorf("%w: запись %s в статусе %s не может вернуться в очередь",
			ErrConflict, responseID, from)
	}

	if err := s.staging.Requeue(ctx, responseID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: отклонённая запись %s не найдена", ErrNotFound, responseID)
		}
		return nil, mapStorageError(err)
	}

	s.logger.Info("Запись возвращена в очередь конвейера", slog.String("response_id", responseID))
	return s.Get(ctx, responseID)
}
