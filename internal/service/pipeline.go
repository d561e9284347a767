// pipeline.go — конвейер санитизации staging-записей.
//
// Периодически (и по ручному запросу) выбирает порцию pending-записей
// oldest-first, для каждой: оптимистичный захват попытки → валидация
// → санитизация → контент-фильтр свободного текста → копирование в
// production → перевод в approved. Запись никогда не удаляется из
// staging, перенос — всегда копирование.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/surveyhub/internal/domain/filter"
	"github.com/bigkaa/surveyhub/internal/domain/model"
	"github.com/bigkaa/surveyhub/internal/domain/sanitize"
	"github.com/bigkaa/surveyhub/internal/domain/validate"
	"github.com/bigkaa/surveyhub/internal/repository"
)

// Prometheus-метрики конвейера санитизации.
var (
	sanitizeRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sh_sanitize_runs_total",
		Help: "Количество запусков конвейера санитизации",
	}, []string{"trigger"}) // trigger: scheduled, manual

	sanitizeRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sh_sanitize_records_total",
		Help: "Количество обработанных записей по результатам",
	}, []string{"result"}) // result: approved, rejected, skipped, error

	sanitizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sh_sanitize_duration_seconds",
		Help:    "Длительность запуска конвейера санитизации",
		Buckets: prometheus.DefBuckets,
	})
)

// RecordError — ошибка обработки отдельной записи в рамках запуска.
type RecordError struct {
	// ID — идентификатор строки staging.
	ID int64 `json:"id"`
	// ResponseID — человекочитаемый идентификатор записи.
	ResponseID string `json:"response_id,omitempty"`
	// Message — описание ошибки.
	Message string `json:"message"`
}

// RunResult — агрегированный результат одного запуска конвейера.
type RunResult struct {
	// Processed — число записей, взятых в обработку.
	Processed int `json:"processed"`
	// Approved — перенесено в production.
	Approved int `json:"approved"`
	// Rejected — отклонено с причиной.
	Rejected int `json:"rejected"`
	// Skipped — пропущено (проиграна гонка конкурирующему запуску).
	Skipped int `json:"skipped"`
	// Errors — ошибки отдельных записей; запись остаётся pending,
	// если не исчерпан лимит попыток.
	Errors []RecordError `json:"errors,omitempty"`
	// StartedAt — время начала запуска.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt — время завершения запуска.
	FinishedAt time.Time `json:"finished_at"`
}

// PipelineStatus — текущее состояние конвейера для API статуса.
type PipelineStatus struct {
	// Running — запуск выполняется прямо сейчас.
	Running bool `json:"running"`
	// PendingCount — размер очереди pending-записей.
	PendingCount int `json:"pending_count"`
	// LastRun — результат последнего завершённого запуска.
	LastRun *RunResult `json:"last_run,omitempty"`
	// NextScheduledAt — время следующего планового запуска.
	NextScheduledAt *time.Time `json:"next_scheduled_at,omitempty"`
}

// RecordPromoter — атомарный перенос очищенной записи в production
// с переводом staging-записи в approved. Реализуется repository.Promoter.
type RecordPromoter interface {
	Promote(ctx context.Context, stagingID int64, sanitized *model.SurveyRecord, at time.Time) (bool, error)
}

// PipelineService — конвейер санитизации с фоновым планировщиком.
type PipelineService struct {
	staging     repository.StagingRepository
	promoter    RecordPromoter
	interval    time.Duration
	batchSize   int
	maxAttempts int
	logger      *slog.Logger

	// runMu сериализует запуски: плановый и ручной не пересекаются.
	runMu sync.Mutex

	// stateMu защищает поля статуса.
	stateMu     sync.Mutex
	running     bool
	lastRun     *RunResult
	nextRunAt   *time.Time
	stopCh      chan struct{}
	stoppedCh   chan struct{}
	schedulerOn bool
}

// NewPipelineService создаёт конвейер санитизации.
func NewPipelineService(
	staging repository.StagingRepository,
	promoter RecordPromoter,
	interval time.Duration,
	batchSize int,
	maxAttempts int,
	logger *slog.Logger,
) *PipelineService {
	return &PipelineService{
		staging:     staging,
		promoter:    promoter,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		logger:      logger.With(slog.String("component", "sanitize-pipeline")),
	}
}

// Start запускает фоновый планировщик. Первый запуск — сразу после
// старта, далее по интервалу.
func (s *PipelineService) Start(ctx context.Context) {
	s.stateMu.Lock()
	if s.schedulerOn {
		s.stateMu.Unlock()
		return
	}
	s.schedulerOn = true
	s.stopCh = make(chan struct{})
	s.stoppedCh = make(chan struct{})
	s.stateMu.Unlock()

	s.logger.Info("Планировщик конвейера запущен",
		slog.Duration("interval", s.interval),
		slog.Int("batch_size", s.batchSize),
	)

	go func() {
		defer close(s.stoppedCh)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runScheduled(ctx)

		for {
			select {
			case <-ticker.C:
				s.runScheduled(ctx)
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop останавливает планировщик и дожидается завершения текущего запуска.
func (s *PipelineService) Stop() {
	s.stateMu.Lock()
	if !s.schedulerOn {
		s.stateMu.Unlock()
		return
	}
	s.schedulerOn = false
	close(s.stopCh)
	stopped := s.stoppedCh
	s.stateMu.Unlock()

	<-stopped

	s.logger.Info("Планировщик конвейера остановлен")
}

func (s *PipelineService) runScheduled(ctx context.Context) {
	sanitizeRunsTotal.WithLabelValues("scheduled").Inc()

	next := time.Now().UTC().Add(s.interval)
	s.stateMu.Lock()
	s.nextRunAt = &next
	s.stateMu.Unlock()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("Ошибка планового запуска конвейера", slog.String("error", err.Error()))
	}
}

// TriggerRun — ручной запуск конвейера (API и scheduler-секрет).
func (s *PipelineService) TriggerRun(ctx context.Context) (*RunResult, error) {
	sanitizeRunsTotal.WithLabelValues("manual").Inc()
	return s.RunOnce(ctx)
}

// RunOnce выполняет один проход конвейера: порция pending-записей
// oldest-first, обработка по одной. Ошибка одной записи не прерывает
// проход.
func (s *PipelineService) RunOnce(ctx context.Context) (*RunResult, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.setRunning(true)
	defer s.setRunning(false)

	started := time.Now().UTC()
	timer := prometheus.NewTimer(sanitizeDuration)
	defer timer.ObserveDuration()

	result := &RunResult{StartedAt: started}

	records, err := s.staging.FetchPending(ctx, s.batchSize)
	if err != nil {
		result.FinishedAt = time.Now().UTC()
		s.storeLastRun(result)
		return result, mapStorageError(err)
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		s.processRecord(ctx, rec, result)
	}

	result.FinishedAt = time.Now().UTC()
	s.storeLastRun(result)

	s.logger.Info("Запуск конвейера завершён",
		slog.Int("processed", result.Processed),
		slog.Int("approved", result.Approved),
		slog.Int("rejected", result.Rejected),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", len(result.Errors)),
		slog.Duration("duration", result.FinishedAt.Sub(started)),
	)
	return result, nil
}

// processRecord — обработка одной записи очереди.
func (s *PipelineService) processRecord(ctx context.Context, rec *model.SurveyRecord, result *RunResult) {
	responseID := ""
	if rec.ResponseID != nil {
		responseID = *rec.ResponseID
	}
	log := s.logger.With(slog.Int64("id", rec.ID), slog.String("response_id", responseID))

	// Оптимистичный захват: инкремент попыток гейтится статусом.
	// false — конкурирующий запуск уже обработал запись.
	claimed, attempts, err := s.staging.ClaimAttempt(ctx, rec.ID)
	if err != nil {
		s.recordError(rec, result, fmt.Sprintf("ошибка захвата записи: %v", err))
		return
	}
	if !claimed {
		log.Debug("Запись уже обработана конкурирующим запуском")
		result.Skipped++
		sanitizeRecordsTotal.WithLabelValues("skipped").Inc()
		return
	}
	result.Processed++

	// Валидация структуры и диапазонов
	vres := validate.Record(rec)
	if !vres.Valid {
		reason := "Validation failed: " + strings.Join(vres.Errors, "; ")
		s.reject(ctx, rec, result, log, reason)
		return
	}

	// Санитизация: очистка текста, проверка JSON-полей.
	// Проблемные поля обнуляются в копии, исход не фатален.
	sres := sanitize.Record(rec)
	if len(sres.Issues) > 0 {
		log.Warn("Санитизация обнулила поля", slog.String("issues", strings.Join(sres.Issues, "; ")))
	}

	// Контент-фильтр по исходным значениям свободного текста:
	// причина отклонения должна называть поле и найденный паттерн
	if reasons := s.filterRecord(rec); len(reasons) > 0 {
		reason := "Malicious content detected: " + strings.Join(reasons, ", ")
		s.reject(ctx, rec, result, log, reason)
		return
	}

	// Перенос в production и перевод в approved — одна транзакция:
	// при сбое запись остаётся pending для повтора, вставка откатывается
	now := time.Now().UTC()
	ok, err := s.promoter.Promote(ctx, rec.ID, sres.Sanitized, now)
	if err != nil {
		s.handleRecordFailure(ctx, rec, result, log, attempts,
			fmt.Sprintf("ошибка переноса в production: %v", err))
		return
	}
	if !ok {
		result.Skipped++
		sanitizeRecordsTotal.WithLabelValues("skipped").Inc()
		return
	}

	log.Info("Запись одобрена и перенесена в production")
	result.Approved++
	sanitizeRecordsTotal.WithLabelValues("approved").Inc()
}

// filterRecord прогоняет контент-фильтр по полям свободного текста.
// Значения предварительно очищаются так же, как делает санитайзер.
func (s *PipelineService) filterRecord(rec *model.SurveyRecord) []string {
	var reasons []string
	for _, f := range rec.FreeTextFields() {
		if *f.Value == nil {
			continue
		}
		res := filter.Check(sanitize.CleanText(**f.Value))
		if !res.Safe {
			reasons = append(reasons, fmt.Sprintf("%s: %s", f.Name, res.Reason))
		}
	}
	return reasons
}

// reject переводит запись в rejected с причиной.
func (s *PipelineService) reject(ctx context.Context, rec *model.SurveyRecord, result *RunResult, log *slog.Logger, reason string) {
	ok, err := s.staging.MarkRejected(ctx, rec.ID, reason, time.Now().UTC())
	if err != nil {
		s.recordError(rec, result, fmt.Sprintf("ошибка перевода в rejected: %v", err))
		return
	}
	if !ok {
		result.Skipped++
		sanitizeRecordsTotal.WithLabelValues("skipped").Inc()
		return
	}

	log.Info("Запись отклонена", slog.String("reason", reason))
	result.Rejected++
	sanitizeRecordsTotal.WithLabelValues("rejected").Inc()
}

// handleRecordFailure — неожиданная ошибка обработки записи.
// Запись остаётся pending для повтора; при исчерпании лимита попыток
// принудительно отклоняется.
func (s *PipelineService) handleRecordFailure(ctx context.Context, rec *model.SurveyRecord, result *RunResult, log *slog.Logger, attempts int, msg string) {
	s.recordError(rec, result, msg)

	if attempts >= s.maxAttempts {
		reason := fmt.Sprintf("Sanitization failed after %d attempts: %s", attempts, msg)
		if ok, err := s.staging.MarkRejected(ctx, rec.ID, reason, time.Now().UTC()); err != nil {
			log.Error("Ошибка принудительного отклонения записи", slog.String("error", err.Error()))
		} else if ok {
			log.Warn("Лимит попыток исчерпан, запись отклонена", slog.Int("attempts", attempts))
			result.Rejected++
			sanitizeRecordsTotal.WithLabelValues("rejected").Inc()
		}
		return
	}

	log.Error("Ошибка обработки записи, остаётся в очереди",
		slog.Int("attempts", attempts),
		slog.String("error", msg),
	)
}

func (s *PipelineService) recordError(rec *model.SurveyRecord, result *RunResult, msg string) {
	responseID := ""
	if rec.ResponseID != nil {
		responseID = *rec.ResponseID
	}
	result.Errors = append(result.Errors, RecordError{
		ID:         rec.ID,
		ResponseID: responseID,
		Message:    msg,
	})
	sanitizeRecordsTotal.WithLabelValues("error").Inc()
}

// Status возвращает текущее состояние конвейера.
func (s *PipelineService) Status(ctx context.Context) (*PipelineStatus, error) {
	pending, err := s.staging.CountPending(ctx)
	if err != nil {
		return nil, mapStorageError(err)
	}

	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	status := &PipelineStatus{
		Running:      s.running,
		PendingCount: pending,
		LastRun:      s.lastRun,
	}
	if s.schedulerOn {
		status.NextScheduledAt = s.nextRunAt
	}
	return status, nil
}

func (s *PipelineService) setRunning(v bool) {
	s.stateMu.Lock()
	s.running = v
	s.stateMu.Unlock()
}

func (s *PipelineService) storeLastRun(r *RunResult) {
	s.stateMu.Lock()
	s.lastRun = r
	s.stateMu.Unlock()
}
