package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/surveyhub/internal/domain/model"
)

// StagingRepository — интерфейс таблицы survey_staging.
type StagingRepository interface {
	// Insert создаёт новую запись со статусом NULL (pending) и attempts 0.
	Insert(ctx context.Context, r *model.SurveyRecord) error
	// GetByResponseID возвращает запись по response_id.
	GetByResponseID(ctx context.Context, responseID string) (*model.SurveyRecord, error)
	// List возвращает записи с фильтрацией по статусу.
	List(ctx context.Context, filters StagingListFilters, limit, offset int) ([]*model.SurveyRecord, error)
	// Count возвращает количество записей с фильтрацией.
	Count(ctx context.Context, filters StagingListFilters) (int, error)
	// FetchPending возвращает до limit записей pending/NULL, oldest-first.
	FetchPending(ctx context.Context, limit int) ([]*model.SurveyRecord, error)
	// ClaimAttempt инкрементирует счётчик попыток, только если запись
	// всё ещё pending/NULL. Возвращает false, если запись уже обработана.
	ClaimAttempt(ctx context.Context, id int64) (claimed bool, attempts int, err error)
	// MarkApproved переводит pending-запись в approved, очищая rejected_reason.
	// Возвращает false, если запись уже не pending (потерянная гонка).
	MarkApproved(ctx context.Context, id int64, at time.Time) (bool, error)
	// MarkRejected переводит pending-запись в rejected с причиной.
	MarkRejected(ctx context.Context, id int64, reason string, at time.Time) (bool, error)
	// Requeue возвращает rejected-запись в очередь (rejected → pending).
	Requeue(ctx context.Context, responseID string) error
	// CountPending возвращает количество записей в очереди конвейера.
	CountPending(ctx context.Context) (int, error)
	// MaxResponseSeq возвращает максимальный числовой суффикс response_id
	// по обоим семействам префиксов (0, если записей нет).
	MaxResponseSeq(ctx context.Context) (int64, error)
}

// StagingListFilters — фильтры для списка staging-записей.
type StagingListFilters struct {
	// Status — фильтр по статусу; "pending" включает NULL.
	Status *string
}

// stagingColumns — полный упорядоченный список колонок survey_staging.
// Порядок согласован со scanStaging.
const stagingColumns = `id, discord_name, age, cpu, gpu, ram, os_name, tos_accepted,
	response_id, avg_fps, low_fps, stability_rating,
	bug_gameplay, bug_gameplay_resolved, bug_gameplay_link,
	bug_graphics, bug_graphics_resolved, bug_graphics_link,
	bug_audio, bug_audio_resolved, bug_audio_link,
	bug_ui, bug_ui_resolved, bug_ui_link,
	quest_rating, story_rating, graphics_rating, open_feedback, submitted_at,
	sanitization_status, sanitization_attempts, sanitized_at, rejected_reason`

// responseSeqExpr — извлечение числового суффикса response_id
// для распознанных семейств префиксов.
const responseSeqExpr = `COALESCE(MAX((regexp_match(response_id, '^(?:SRV-FORM|BETA-FORM)-(\d+)$'))[1]::bigint), 0)`

// stagingRepo — реализация StagingRepository.
type stagingRepo struct {
	db DBTX
}

// NewStagingRepository создаёт репозиторий staging-таблицы.
func NewStagingRepository(db DBTX) StagingRepository {
	return &stagingRepo{db: db}
}

func (r *stagingRepo) Insert(ctx context.Context, rec *model.SurveyRecord) error {
	query := `
		INSERT INTO survey_staging (discord_name, age, cpu, gpu, ram, os_name, tos_accepted,
			response_id, avg_fps, low_fps, stability_rating,
			bug_gameplay, bug_gameplay_resolved, bug_gameplay_link,
			bug_graphics, bug_graphics_resolved, bug_graphics_link,
			bug_audio, bug_audio_resolved, bug_audio_link,
			bug_ui, bug_ui_resolved, bug_ui_link,
			quest_rating, story_rating, graphics_rating, open_feedback)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27)
		RETURNING id, submitted_at, sanitization_attempts`

	err := r.db.QueryRow(ctx, query,
		rec.DiscordName, rec.Age, rec.CPU, rec.GPU, rec.RAM, rec.OSName, rec.TOSAccepted,
		rec.ResponseID, rec.AvgFPS, rec.LowFPS, rec.StabilityRating,
		rec.BugGameplay, rec.BugGameplayResolved, rec.BugGameplayLink,
		rec.BugGraphics, rec.BugGraphicsResolved, rec.BugGraphicsLink,
		rec.BugAudio, rec.BugAudioResolved, rec.BugAudioLink,
		rec.BugUI, rec.BugUIResolved, rec.BugUILink,
		rec.QuestRating, rec.StoryRating, rec.GraphicsRating, rec.OpenFeedback,
	).Scan(&rec.ID, &rec.SubmittedAt, &rec.SanitizationAttempts)
	if err != nil {
		return classify(err, "ошибка вставки в staging")
	}
	return nil
}

func (r *stagingRepo) GetByResponseID(ctx context.Context, responseID string) (*model.SurveyRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM survey_staging WHERE response_id = $1`, stagingColumns)

	rec, err := scanStaging(r.db.QueryRow(ctx, query, responseID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, classify(err, "ошибка получения записи staging")
	}
	return rec, nil
}

// buildStagingWhere строит WHERE-условие и аргументы для фильтрации.
// Фильтр "pending" включает NULL-статус.
func buildStagingWhere(filters StagingListFilters, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filters.Status != nil {
		if *filters.Status == string(model.StatusPending) {
			conditions = append(conditions,
				"(sanitization_status IS NULL OR sanitization_status = 'pending')")
		} else {
			conditions = append(conditions, fmt.Sprintf("sanitization_status = $%d", argNum))
			args = append(args, *filters.Status)
		}
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

func (r *stagingRepo) List(ctx context.Context, filters StagingListFilters, limit, offset int) ([]*model.SurveyRecord, error) {
	where, args := buildStagingWhere(filters, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s FROM survey_staging
		%s
		ORDER BY submitted_at DESC
		LIMIT $%d OFFSET $%d`, stagingColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "ошибка получения списка staging")
	}
	defer rows.Close()

	var result []*model.SurveyRecord
	for rows.Next() {
		rec, err := scanStaging(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи staging: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (r *stagingRepo) Count(ctx context.Context, filters StagingListFilters) (int, error) {
	where, args := buildStagingWhere(filters, 1)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM survey_staging %s`, where)

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, classify(err, "ошибка подсчёта записей staging")
	}
	return count, nil
}

// FetchPending — снапшот очереди конвейера: pending/NULL, oldest-first.
// approved и rejected исключаются самим запросом.
func (r *stagingRepo) FetchPending(ctx context.Context, limit int) ([]*model.SurveyRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM survey_staging
		WHERE sanitization_status IS NULL OR sanitization_status = 'pending'
		ORDER BY submitted_at ASC
		LIMIT $1`, stagingColumns)

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, classify(err, "ошибка выборки pending-записей")
	}
	defer rows.Close()

	var result []*model.SurveyRecord
	for rows.Next() {
		rec, err := scanStaging(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи staging: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// ClaimAttempt — оптимистичный захват записи: инкремент попыток гейтится
// условием «статус всё ещё pending/NULL». Конкурирующий запуск конвейера,
// уже переведший запись в терминальный статус, получит claimed = false.
func (r *stagingRepo) ClaimAttempt(ctx context.Context, id int64) (bool, int, error) {
	query := `
		UPDATE survey_staging
		SET sanitization_attempts = sanitization_attempts + 1
		WHERE id = $1
			AND (sanitization_status IS NULL OR sanitization_status = 'pending')
		RETURNING sanitization_attempts`

	var attempts int
	err := r.db.QueryRow(ctx, query, id).Scan(&attempts)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, 0, nil
		}
		return false, 0, classify(err, "ошибка инкремента попыток")
	}
	return true, attempts, nil
}

func (r *stagingRepo) MarkApproved(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `
		UPDATE survey_staging
		SET sanitization_status = 'approved', sanitized_at = $2, rejected_reason = NULL
		WHERE id = $1
			AND (sanitization_status IS NULL OR sanitization_status = 'pending')`

	tag, err := r.db.Exec(ctx, query, id, at)
	if err != nil {
		return false, classify(err, "ошибка перевода в approved")
	}
	return tag.RowsAffected() > 0, nil
}

func (r *stagingRepo) MarkRejected(ctx context.Context, id int64, reason string, at time.Time) (bool, error) {
	query := `
		UPDATE survey_staging
		SET sanitization_status = 'rejected', sanitized_at = $2, rejected_reason = $3
		WHERE id = $1
			AND (sanitization_status IS NULL OR sanitization_status = 'pending')`

	tag, err := r.db.Exec(ctx, query, id, at, reason)
	if err != nil {
		return false, classify(err, "ошибка перевода в rejected")
	}
	return tag.RowsAffected() > 0, nil
}

// Requeue — ручной возврат отклонённой записи в очередь конвейера.
// Счётчик попыток сбрасывается, причина отклонения сохраняется до
// следующего перехода статуса.
func (r *stagingRepo) Requeue(ctx context.Context, responseID string) error {
	query := `
		UPDATE survey_staging
		SET sanitization_status = 'pending', sanitization_attempts = 0
		WHERE response_id = $1 AND sanitization_status = 'rejected'`

	tag, err := r.db.Exec(ctx, query, responseID)
	if err != nil {
		return classify(err, "ошибка возврата записи в очередь")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *stagingRepo) CountPending(ctx context.Context) (int, error) {
	query := `
		SELECT COUNT(*) FROM survey_staging
		WHERE sanitization_status IS NULL OR sanitization_status = 'pending'`

	var count int
	if err := r.db.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, classify(err, "ошибка подсчёта очереди")
	}
	return count, nil
}

func (r *stagingRepo) MaxResponseSeq(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`SELECT %s FROM survey_staging`, responseSeqExpr)

	var max int64
	if err := r.db.QueryRow(ctx, query).Scan(&max); err != nil {
		return 0, classify(err, "ошибка поиска максимального суффикса staging")
	}
	return max, nil
}

// scanStaging сканирует строку survey_staging в порядке stagingColumns.
func scanStaging(row pgx.Row) (*model.SurveyRecord, error) {
	rec := &model.SurveyRecord{}
	err := row.Scan(
		&rec.ID, &rec.DiscordName, &rec.Age, &rec.CPU, &rec.GPU, &rec.RAM, &rec.OSName, &rec.TOSAccepted,
		&rec.ResponseID, &rec.AvgFPS, &rec.LowFPS, &rec.StabilityRating,
		&rec.BugGameplay, &rec.BugGameplayResolved, &rec.BugGameplayLink,
		&rec.BugGraphics, &rec.BugGraphicsResolved, &rec.BugGraphicsLink,
		&rec.BugAudio, &rec.BugAudioResolved, &rec.BugAudioLink,
		&rec.BugUI, &rec.BugUIResolved, &rec.BugUILink,
		&rec.QuestRating, &rec.StoryRating, &rec.GraphicsRating, &rec.OpenFeedback, &rec.SubmittedAt,
		&rec.SanitizationStatus, &rec.SanitizationAttempts, &rec.SanitizedAt, &rec.RejectedReason,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
