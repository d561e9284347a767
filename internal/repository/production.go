package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/surveyhub/internal/domain/model"
)

// ProductionRepository — интерфейс таблицы survey_responses (append-only).
type ProductionRepository interface {
	// Insert вставляет очищенную запись полным упорядоченным списком колонок.
	// Дублирующийся response_id возвращает ErrConflict.
	Insert(ctx context.Context, r *model.SurveyRecord, sanitizedAt time.Time) error
	// GetByResponseID возвращает запись по response_id.
	GetByResponseID(ctx context.Context, responseID string) (*model.SurveyRecord, error)
	// ExistsByResponseID проверяет наличие записи.
	ExistsByResponseID(ctx context.Context, responseID string) (bool, error)
	// Count возвращает количество записей production.
	Count(ctx context.Context) (int, error)
	// MaxResponseSeq возвращает максимальный числовой суффикс response_id
	// по обоим семействам префиксов (0, если записей нет).
	MaxResponseSeq(ctx context.Context) (int64, error)
}

// productionColumns — полный упорядоченный список колонок survey_responses.
// Порядок согласован с Insert и scanProduction: изменение схемы требует
// синхронного обновления всех трёх мест.
const productionColumns = `id, discord_name, age, cpu, gpu, ram, os_name, tos_accepted,
	response_id, avg_fps, low_fps, stability_rating,
	bug_gameplay, bug_gameplay_resolved, bug_gameplay_link,
	bug_graphics, bug_graphics_resolved, bug_graphics_link,
	bug_audio, bug_audio_resolved, bug_audio_link,
	bug_ui, bug_ui_resolved, bug_ui_link,
	quest_rating, story_rating, graphics_rating, open_feedback, submitted_at, sanitized_at`

// productionRepo — реализация ProductionRepository.
type productionRepo struct {
	db DBTX
}

// NewProductionRepository создаёт репозиторий production-таблицы.
func NewProductionRepository(db DBTX) ProductionRepository {
	return &productionRepo{db: db}
}

// productionInsertQuery — вставка полным упорядоченным списком колонок.
// Аргументы собирает productionInsertArgs.
const productionInsertQuery = `
	INSERT INTO survey_responses (discord_name, age, cpu, gpu, ram, os_name, tos_accepted,
		response_id, avg_fps, low_fps, stability_rating,
		bug_gameplay, bug_gameplay_resolved, bug_gameplay_link,
		bug_graphics, bug_graphics_resolved, bug_graphics_link,
		bug_audio, bug_audio_resolved, bug_audio_link,
		bug_ui, bug_ui_resolved, bug_ui_link,
		quest_rating, story_rating, graphics_rating, open_feedback,
		submitted_at, sanitized_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		$15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)`

func productionInsertArgs(rec *model.SurveyRecord, sanitizedAt time.Time) []any {
	return []any{
		rec.DiscordName, rec.Age, rec.CPU, rec.GPU, rec.RAM, rec.OSName, rec.TOSAccepted,
		rec.ResponseID, rec.AvgFPS, rec.LowFPS, rec.StabilityRating,
		rec.BugGameplay, rec.BugGameplayResolved, rec.BugGameplayLink,
		rec.BugGraphics, rec.BugGraphicsResolved, rec.BugGraphicsLink,
		rec.BugAudio, rec.BugAudioResolved, rec.BugAudioLink,
		rec.BugUI, rec.BugUIResolved, rec.BugUILink,
		rec.QuestRating, rec.StoryRating, rec.GraphicsRating, rec.OpenFeedback,
		rec.SubmittedAt, sanitizedAt,
	}
}

func (r *productionRepo) Insert(ctx context.Context, rec *model.SurveyRecord, sanitizedAt time.Time) error {
	_, err := r.db.Exec(ctx, productionInsertQuery, productionInsertArgs(rec, sanitizedAt)...)
	if err != nil {
		return classify(err, "ошибка вставки в production")
	}
	return nil
}

// insertResponseIdempotent вставляет запись, молча пропуская дубликат
// response_id. Используется внутри транзакции переноса: нарушение
// уникальности прервало бы транзакцию целиком.
func insertResponseIdempotent(ctx context.Context, db DBTX, rec *model.SurveyRecord, sanitizedAt time.Time) error {
	query := productionInsertQuery + ` ON CONFLICT (response_id) DO NOTHING`
	_, err := db.Exec(ctx, query, productionInsertArgs(rec, sanitizedAt)...)
	if err != nil {
		return classify(err, "ошибка вставки в production")
	}
	return nil
}

func (r *productionRepo) GetByResponseID(ctx context.Context, responseID string) (*model.SurveyRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM survey_responses WHERE response_id = $1`, productionColumns)

	rec := &model.SurveyRecord{}
	err := r.db.QueryRow(ctx, query, responseID).Scan(
		&rec.ID, &rec.DiscordName, &rec.Age, &rec.CPU, &rec.GPU, &rec.RAM, &rec.OSName, &rec.TOSAccepted,
		&rec.ResponseID, &rec.AvgFPS, &rec.LowFPS, &rec.StabilityRating,
		&rec.BugGameplay, &rec.BugGameplayResolved, &rec.BugGameplayLink,
		&rec.BugGraphics, &rec.BugGraphicsResolved, &rec.BugGraphicsLink,
		&rec.BugAudio, &rec.BugAudioResolved, &rec.BugAudioLink,
		&rec.BugUI, &rec.BugUIResolved, &rec.BugUILink,
		&rec.QuestRating, &rec.StoryRating, &rec.GraphicsRating, &rec.OpenFeedback,
		&rec.SubmittedAt, &rec.SanitizedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, classify(err, "ошибка получения записи production")
	}
	return rec, nil
}

func (r *productionRepo) ExistsByResponseID(ctx context.Context, responseID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM survey_responses WHERE response_id = $1)`,
		responseID,
	).Scan(&exists)
	if err != nil {
		return false, classify(err, "ошибка проверки наличия в production")
	}
	return exists, nil
}

func (r *productionRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM survey_responses`).Scan(&count); err != nil {
		return 0, classify(err, "ошибка подсчёта записей production")
	}
	return count, nil
}

func (r *productionRepo) MaxResponseSeq(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`SELECT %s FROM survey_responses`, responseSeqExpr)

	var max int64
	if err := r.db.QueryRow(ctx, query).Scan(&max); err != nil {
		return 0, classify(err, "ошибка поиска максимального суффикса production")
	}
	return max, nil
}
