package repository

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/surveyhub/internal/config"
	"github.com/bigkaa/surveyhub/internal/database"
	"github.com/bigkaa/surveyhub/internal/domain/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }
func boolPtr(b bool) *bool    { return &b }

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool с автоматической очисткой.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("surveyhub_test"),
		postgres.WithUsername("surveyhub"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	os.Setenv("SH_DB_HOST", host)
	os.Setenv("SH_DB_PORT", port.Port())
	os.Setenv("SH_DB_NAME", "surveyhub_test")
	os.Setenv("SH_DB_USER", "surveyhub")
	os.Setenv("SH_DB_PASSWORD", "test-password")
	os.Setenv("SH_DB_SSL_MODE", "disable")
	os.Setenv("SH_JWT_SECRET", "test-secret")
	os.Setenv("SH_ADMIN_PASSWORD_HASH", "$2a$10$abcdefghijklmnopqrstuv")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// --- Тесты StagingRepository ---

func TestStagingInsertAndGet(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewStagingRepository(pool)

	rec := &model.SurveyRecord{
		ResponseID:  strPtr("SRV-FORM-1"),
		CPU:         strPtr("Intel i7"),
		GPU:         strPtr("RTX 3080"),
		Age:         intPtr(25),
		TOSAccepted: boolPtr(true),
	}

	if err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}
	if rec.ID == 0 {
		t.Error("ID не установлен после Insert")
	}
	if rec.SubmittedAt.IsZero() {
		t.Error("SubmittedAt не установлен после Insert")
	}
	if rec.SanitizationAttempts != 0 {
		t.Errorf("SanitizationAttempts = %d, хотели 0", rec.SanitizationAttempts)
	}

	got, err := repo.GetByResponseID(ctx, "SRV-FORM-1")
	if err != nil {
		t.Fatalf("GetByResponseID() ошибка: %v", err)
	}
	if got.CPU == nil || *got.CPU != "Intel i7" {
		t.Errorf("CPU = %v, хотели Intel i7", got.CPU)
	}
	if got.SanitizationStatus != nil {
		t.Errorf("SanitizationStatus = %v, хотели NULL (pending)", *got.SanitizationStatus)
	}

	// Дублирующийся response_id — ErrConflict
	dup := &model.SurveyRecord{ResponseID: strPtr("SRV-FORM-1")}
	if err := repo.Insert(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Errorf("Insert() дубликата = %v, хотели ErrConflict", err)
	}
}

func TestStagingFetchPendingFIFO(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewStagingRepository(pool)

	// Три записи в порядке подачи
	for i, id := range []string{"SRV-FORM-1", "SRV-FORM-2", "SRV-FORM-3"} {
		rec := &model.SurveyRecord{ResponseID: strPtr(id)}
		if err := repo.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert(%d) ошибка: %v", i, err)
		}
		// Гарантируем различимые submitted_at
		time.Sleep(10 * time.Millisecond)
	}

	batch, err := repo.FetchPending(ctx, 2)
	if err != nil {
		t.Fatalf("FetchPending() ошибка: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("FetchPending(2) вернул %d записей, хотели 2", len(batch))
	}
	if *batch[0].ResponseID != "SRV-FORM-1" || *batch[1].ResponseID != "SRV-FORM-2" {
		t.Errorf("порядок FIFO нарушен: %s, %s", *batch[0].ResponseID, *batch[1].ResponseID)
	}
}

func TestStagingClaimAndStatusTransitions(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewStagingRepository(pool)

	rec := &model.SurveyRecord{ResponseID: strPtr("SRV-FORM-1")}
	if err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	// Захват попытки инкрементирует счётчик
	claimed, attempts, err := repo.ClaimAttempt(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ClaimAttempt() ошибка: %v", err)
	}
	if !claimed || attempts != 1 {
		t.Errorf("ClaimAttempt() = (%v, %d), хотели (true, 1)", claimed, attempts)
	}

	// Перевод в approved
	now := time.Now().UTC()
	ok, err := repo.MarkApproved(ctx, rec.ID, now)
	if err != nil {
		t.Fatalf("MarkApproved() ошибка: %v", err)
	}
	if !ok {
		t.Fatal("MarkApproved() = false для pending-записи")
	}

	// Повторный захват терминальной записи невозможен
	claimed, _, err = repo.ClaimAttempt(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ClaimAttempt() ошибка: %v", err)
	}
	if claimed {
		t.Error("ClaimAttempt() = true для approved-записи")
	}

	// Повторный перевод статуса — потерянная гонка
	if ok, _ := repo.MarkRejected(ctx, rec.ID, "reason", now); ok {
		t.Error("MarkRejected() = true для approved-записи")
	}

	got, err := repo.GetByResponseID(ctx, "SRV-FORM-1")
	if err != nil {
		t.Fatalf("GetByResponseID() ошибка: %v", err)
	}
	if got.SanitizationStatus == nil || *got.SanitizationStatus != "approved" {
		t.Errorf("SanitizationStatus = %v, хотели approved", got.SanitizationStatus)
	}
	if got.RejectedReason != nil {
		t.Errorf("RejectedReason = %v, хотели NULL", *got.RejectedReason)
	}
}

func TestStagingRejectAndRequeue(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewStagingRepository(pool)

	rec := &model.SurveyRecord{ResponseID: strPtr("SRV-FORM-1")}
	if err := repo.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	now := time.Now().UTC()
	ok, err := repo.MarkRejected(ctx, rec.ID, "Validation failed: age must be between 16 and 120", now)
	if err != nil {
		t.Fatalf("MarkRejected() ошибка: %v", err)
	}
	if !ok {
		t.Fatal("MarkRejected() = false для pending-записи")
	}

	got, _ := repo.GetByResponseID(ctx, "SRV-FORM-1")
	if got.RejectedReason == nil || *got.RejectedReason == "" {
		t.Error("RejectedReason пуст после rejected")
	}

	// Requeue возвращает запись в очередь и сбрасывает попытки
	if err := repo.Requeue(ctx, "SRV-FORM-1"); err != nil {
		t.Fatalf("Requeue() ошибка: %v", err)
	}
	got, _ = repo.GetByResponseID(ctx, "SRV-FORM-1")
	if got.SanitizationStatus == nil || *got.SanitizationStatus != "pending" {
		t.Errorf("SanitizationStatus = %v, хотели pending", got.SanitizationStatus)
	}
	if got.SanitizationAttempts != 0 {
		t.Errorf("SanitizationAttempts = %d, хотели 0", got.SanitizationAttempts)
	}

	// Requeue не-rejected записи — ErrNotFound
	if err := repo.Requeue(ctx, "SRV-FORM-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Requeue() pending-записи = %v, хотели ErrNotFound", err)
	}
}

func TestStagingMaxResponseSeq(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewStagingRepository(pool)

	// Пустая таблица — 0
	max, err := repo.MaxResponseSeq(ctx)
	if err != nil {
		t.Fatalf("MaxResponseSeq() ошибка: %v", err)
	}
	if max != 0 {
		t.Errorf("MaxResponseSeq() = %d, хотели 0", max)
	}

	// Legacy-префикс учитывается наравне с текущим
	for _, id := range []string{"SRV-FORM-3", "BETA-FORM-10"} {
		if err := repo.Insert(ctx, &model.SurveyRecord{ResponseID: strPtr(id)}); err != nil {
			t.Fatalf("Insert(%s) ошибка: %v", id, err)
		}
	}

	max, err = repo.MaxResponseSeq(ctx)
	if err != nil {
		t.Fatalf("MaxResponseSeq() ошибка: %v", err)
	}
	if max != 10 {
		t.Errorf("MaxResponseSeq() = %d, хотели 10 (legacy-максимум)", max)
	}
}

// --- Тесты Promoter ---

func TestPromoteTransfersAtomically(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	staging := NewStagingRepository(pool)
	production := NewProductionRepository(pool)
	promoter := NewPromoter(pool)

	rec := &model.SurveyRecord{
		ResponseID: strPtr("SRV-FORM-1"),
		CPU:        strPtr("Ryzen 7 5800X"),
	}
	if err := staging.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	now := time.Now().UTC()
	ok, err := promoter.Promote(ctx, rec.ID, rec, now)
	if err != nil {
		t.Fatalf("Promote() ошибка: %v", err)
	}
	if !ok {
		t.Fatal("Promote() = false для pending-записи")
	}

	exists, err := production.ExistsByResponseID(ctx, "SRV-FORM-1")
	if err != nil {
		t.Fatalf("ExistsByResponseID() ошибка: %v", err)
	}
	if !exists {
		t.Error("запись не попала в production")
	}
	got, _ := staging.GetByResponseID(ctx, "SRV-FORM-1")
	if got.SanitizationStatus == nil || *got.SanitizationStatus != "approved" {
		t.Errorf("SanitizationStatus = %v, хотели approved", got.SanitizationStatus)
	}

	// Повторный перенос — потерянная гонка, оба хранилища не меняются
	ok, err = promoter.Promote(ctx, rec.ID, rec, now)
	if err != nil {
		t.Fatalf("повторный Promote() ошибка: %v", err)
	}
	if ok {
		t.Error("Promote() = true для approved-записи")
	}
	count, _ := production.Count(ctx)
	if count != 1 {
		t.Errorf("Count() = %d после повторного переноса, хотели 1", count)
	}
}

func TestPromoteIdempotentAfterCrash(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	staging := NewStagingRepository(pool)
	production := NewProductionRepository(pool)
	promoter := NewPromoter(pool)

	rec := &model.SurveyRecord{ResponseID: strPtr("SRV-FORM-1")}
	if err := staging.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	// Запись уже в production, но staging остался pending:
	// след переноса, прерванного до ввода транзакционной схемы
	now := time.Now().UTC()
	if err := production.Insert(ctx, rec, now); err != nil {
		t.Fatalf("Insert() в production ошибка: %v", err)
	}

	ok, err := promoter.Promote(ctx, rec.ID, rec, now)
	if err != nil {
		t.Fatalf("Promote() ошибка: %v", err)
	}
	if !ok {
		t.Fatal("Promote() = false при дубликате в production")
	}

	count, _ := production.Count(ctx)
	if count != 1 {
		t.Errorf("Count() = %d, хотели 1 (дубликат не вставлен)", count)
	}
	got, _ := staging.GetByResponseID(ctx, "SRV-FORM-1")
	if got.SanitizationStatus == nil || *got.SanitizationStatus != "approved" {
		t.Errorf("SanitizationStatus = %v, хотели approved", got.SanitizationStatus)
	}
}

// --- Тесты ProductionRepository ---

func TestProductionInsertAndConflict(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewProductionRepository(pool)

	rec := &model.SurveyRecord{
		ResponseID:  strPtr("SRV-FORM-1"),
		CPU:         strPtr("Ryzen 5600X"),
		SubmittedAt: time.Now().UTC(),
	}

	now := time.Now().UTC()
	if err := repo.Insert(ctx, rec, now); err != nil {
		t.Fatalf("Insert() ошибка: %v", err)
	}

	exists, err := repo.ExistsByResponseID(ctx, "SRV-FORM-1")
	if err != nil {
		t.Fatalf("ExistsByResponseID() ошибка: %v", err)
	}
	if !exists {
		t.Error("ExistsByResponseID() = false после вставки")
	}

	got, err := repo.GetByResponseID(ctx, "SRV-FORM-1")
	if err != nil {
		t.Fatalf("GetByResponseID() ошибка: %v", err)
	}
	if got.CPU == nil || *got.CPU != "Ryzen 5600X" {
		t.Errorf("CPU = %v, хотели Ryzen 5600X", got.CPU)
	}

	// Повторная вставка того же response_id — ErrConflict
	if err := repo.Insert(ctx, rec, now); !errors.Is(err, ErrConflict) {
		t.Errorf("Insert() дубликата = %v, хотели ErrConflict", err)
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Count() ошибка: %v", err)
	}
	if count != 1 {
		t.Errorf("Count() = %d, хотели 1", count)
	}
}
