// promote.go — атомарный перенос очищенной записи в production.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/surveyhub/internal/domain/model"
)

// Promoter копирует очищенную запись в survey_responses и переводит
// staging-запись в approved в одной транзакции: сбой на любом шаге
// откатывает оба изменения, запись остаётся pending для повтора.
type Promoter interface {
	// Promote возвращает false, если staging-запись уже не pending
	// (гонка с конкурирующим запуском); вставка при этом откатывается.
	Promote(ctx context.Context, stagingID int64, sanitized *model.SurveyRecord, at time.Time) (bool, error)
}

// errLostRace откатывает транзакцию переноса при проигранной гонке.
var errLostRace = errors.New("запись уже обработана конкурирующим запуском")

// txPromoter — реализация Promoter поверх TxRunner.
type txPromoter struct {
	runner *TxRunner
}

// NewPromoter создаёт Promoter поверх пула подключений.
func NewPromoter(pool *pgxpool.Pool) Promoter {
	return &txPromoter{runner: NewTxRunner(pool)}
}

func (p *txPromoter) Promote(ctx context.Context, stagingID int64, sanitized *model.SurveyRecord, at time.Time) (bool, error) {
	err := p.runner.RunInTx(ctx, func(tx pgx.Tx) error {
		// Дубликат response_id — след прерванной ранее попытки переноса,
		// не ошибка: вставка идемпотентна.
		if err := insertResponseIdempotent(ctx, tx, sanitized, at); err != nil {
			return err
		}

		ok, err := (&stagingRepo{db: tx}).MarkApproved(ctx, stagingID, at)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		return nil
	})
	if errors.Is(err, errLostRace) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
