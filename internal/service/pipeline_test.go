package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/surveyhub/internal/domain/model"
)

func newTestPipeline(staging *fakeStaging, production *fakeProduction, maxAttempts int) *PipelineService {
	return NewPipelineService(staging, newFakePromoter(staging, production), time.Minute, 100, maxAttempts, testLogger())
}

func TestRunOnce_ApprovesCleanRecord(t *testing.T) {
	staging := newFakeStaging()
	production := newFakeProduction()
	staging.seed("SRV-FORM-1", func(r *model.SurveyRecord) {
		r.CPU = strPtr("  Ryzen 7 5800X  ")
		r.Age = intPtr(25)
	})

	svc := newTestPipeline(staging, production, 3)

	result, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() err = %v", err)
	}
	if result.Processed != 1 || result.Approved != 1 {
		t.Errorf("Processed/Approved = %d/%d, хотели 1/1", result.Processed, result.Approved)
	}

	rec := staging.byID(1)
	if rec.SanitizationStatus == nil || *rec.SanitizationStatus != "approved" {
		t.Errorf("статус staging = %v, хотели approved", rec.SanitizationStatus)
	}
	if rec.SanitizationAttempts != 1 {
		t.Errorf("attempts = %d, хотели 1", rec.SanitizationAttempts)
	}

	copied, err := production.GetByResponseID(context.Background(), "SRV-FORM-1")
	if err != nil {
		t.Fatalf("запись не скопирована в production: %v", err)
	}
	if copied.CPU == nil || *copied.CPU != "Ryzen 7 5800X" {
		t.Errorf("cpu в production = %v, хотели очищенное значение", copied.CPU)
	}
	if copied.SanitizedAt == nil {
		t.Error("sanitized_at в production не установлен")
	}
}

func TestRunOnce_RejectsInvalidRecord(t *testing.T) {
	staging := newFakeStaging()
	production := newFakeProduction()
	staging.seed("SRV-FORM-1", func(r *model.SurveyRecord) {
		r.Age = intPtr(200)
	})

	svc := newTestPipeline(staging, production, 3)

	result, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() err = %v", err)
	}
	if result.Rejected != 1 || result.Approved != 0 {
		t.Errorf("Rejected/Approved = %d/%d, хотели 1/0", result.Rejected, result.Approved)
	}

	rec := staging.byID(1)
	if rec.SanitizationStatus == nil || *rec.SanitizationStatus != "rejected" {
		t.Fatalf("статус staging = %v, хотели rejected", rec.SanitizationStatus)
	}
	if rec.RejectedReason == nil || !strings.HasPrefix(*rec.RejectedReason, "Validation failed:") {
		t.Errorf("rejected_reason = %v, хотели префикс Validation failed:", rec.RejectedReason)
	}
	if count, _ := production.Count(context.Background()); count != 0 {
		t.Errorf("production содержит %d записей, хотели 0", count)
	}
}

func TestRunOnce_RejectsMaliciousContent(t *testing.T) {
	staging := newFakeStaging()
	production := newFakeProduction()
	staging.seed("SRV-FORM-1", func(r *model.SurveyRecord) {
		r.CPU = strPtr("'; DROP TABLE users; --")
	})

	svc := newTestPipeline(staging, production, 3)

	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() err = %v", err)
	}

	rec := staging.byID(1)
	if rec.SanitizationStatus == nil || *rec.SanitizationStatus != "rejected" {
		t.Fatalf("статус staging = %v, хотели rejected", rec.SanitizationStatus)
	}
	reason := *rec.RejectedReason
	if !strings.HasPrefix(reason, "Malicious content detected:") {
		t.Errorf("rejected_reason = %q, хотели префикс Malicious content detected:", reason)
	}
	if !strings.Contains(reason, "cpu") {
		t.Errorf("rejected_reason = %q, должен называть поле cpu", reason)
	}
	if count, _ := production.Count(context.Background()); count != 0 {
		t.Errorf("production содержит %d записей, хотели 0", count)
	}
}

func TestRunOnce_SanitizeIssuesNonFatal(t *testing.T) {
	staging := newFakeStaging()
	production := newFakeProduction()
	staging.seed("SRV-FORM-1", func(r *model.SurveyRecord) {
		r.BugGameplay = strPtr("not-a-json")
		r.GPU = strPtr("RTX 3080")
	})

	svc := newTestPipeline(staging, production, 3)

	result, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() err = %v", err)
	}
	if result.Approved != 1 {
		t.Fatalf("Approved = %d, хотели 1", result.Approved)
	}

	copied, err := production.GetByResponseID(context.Background(), "SRV-FORM-1")
	if err != nil {
		t.Fatalf("запись не скопирована в production: %v", err)
	}
	if copied.BugGameplay != nil {
		t.Errorf("bug_gameplay в production = %v, хотели nil после обнуления", copied.BugGameplay)
	}
	if copied.GPU == nil || *copied.GPU != "RTX 3080" {
		t.Errorf("gpu в production = %v, хотели RTX 3080", copied.GPU)
	}
}

func TestRunOnce_SkipsLostRace(t *testing.T) {
	staging := newFakeStaging()
	rec := staging.seed("SRV-FORM-1", nil)
	staging.denyClaim[rec.ID] = true

	svc := newTestPipeline(staging, newFakeProduction(), 3)

	result, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() err = %v", err)
	}
	if result.Skipped != 1 || result.Processed != 0 {
		t.Errorf("Skipped/Processed = %d/%d, хотели 1/0", result.Skipped, result.Processed)
	}
}

func TestRunOnce_BatchLimitFIFO(t *testing.T) {
	staging := newFakeStaging()
	production := newFakeProduction()
	staging.seed("SRV-FORM-1", nil)
	staging.seed("SRV-FORM-2", nil)
	staging.seed("SRV-FORM-3", nil)

	svc := NewPipelineService(staging, newFakePromoter(staging, production), time.Minute, 2, 3, testLogger())

	result, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() err = %v", err)
	}
	if result.Processed != 2 || result.Approved != 2 {
		t.Errorf("Processed/Approved = %d/%d, хотели 2/2", result.Processed, result.Approved)
	}

	// Старейшие записи обработаны, третья осталась в очереди
	for _, id := range []string{"SRV-FORM-1", "SRV-FORM-2"} {
		if ok, _ := production.ExistsByResponseID(context.Background(), id); !ok {
			t.Errorf("запись %s не попала в production", id)
		}
	}
	third := staging.byID(3)
	if !isPendingRecord(third) {
		t.Errorf("третья запись имеет статус %v, хотели pending", third.SanitizationStatus)
	}
}

func TestRunOnce_ProductionConflictStillApproves(t *testing.T) {
	staging := newFakeStaging()
	production := newFakeProduction()
	staging.seed("SRV-FORM-1", nil)
	production.records = append(production.records, &model.SurveyRecord{ResponseID: strPtr("SRV-FORM-1")})

	svc := newTestPipeline(staging, production, 3)

	result, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() err = %v", err)
	}
	if result.Approved != 1 {
		t.Errorf("Approved = %d, хотели 1 (дубликат в production не ошибка)", result.Approved)
	}

	rec := staging.byID(1)
	if rec.SanitizationStatus == nil || *rec.SanitizationStatus != "approved" {
		t.Errorf("статус staging = %v, хотели approved", rec.SanitizationStatus)
	}
}

func TestRunOnce_FailureKeepsPending(t *testing.T) {
	staging := newFakeStaging()
	production := newFakeProduction()
	production.insertErr = errors.New("connection reset")
	staging.seed("SRV-FORM-1", nil)

	svc := newTestPipeline(staging, production, 3)

	result, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() err = %v", err)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("Errors = %d, хотели 1", len(result.Errors))
	}
	if result.Errors[0].ResponseID != "SRV-FORM-1" {
		t.Errorf("ошибка привязана к %q, хотели SRV-FORM-1", result.Errors[0].ResponseID)
	}

	rec := staging.byID(1)
	if !isPendingRecord(rec) {
		t.Errorf("статус staging = %v, хотели pending для повтора", rec.SanitizationStatus)
	}
	if rec.SanitizationAttempts != 1 {
		t.Errorf("attempts = %d, хотели 1", rec.SanitizationAttempts)
	}
}

// Перенос атомарен: при сбое транзакции ни production, ни staging
// не меняются, запись остаётся в очереди для повтора.
func TestRunOnce_PromoteFailureChangesNothing(t *testing.T) {
	staging := newFakeStaging()
	production := newFakeProduction()
	staging.seed("SRV-FORM-1", nil)

	promoter := newFakePromoter(staging, production)
	promoter.promoteErr = errors.New("транзакция прервана")

	svc := NewPipelineService(staging, promoter, time.Minute, 100, 3, testLogger())

	result, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() err = %v", err)
	}
	if len(result.Errors) != 1 || result.Approved != 0 {
		t.Fatalf("Errors/Approved = %d/%d, хотели 1/0", len(result.Errors), result.Approved)
	}

	if count, _ := production.Count(context.Background()); count != 0 {
		t.Errorf("production содержит %d записей после отката, хотели 0", count)
	}
	rec := staging.byID(1)
	if !isPendingRecord(rec) {
		t.Errorf("статус staging = %v, хотели pending для повтора", rec.SanitizationStatus)
	}
}

func TestRunOnce_AttemptsExhaustedForceReject(t *testing.T) {
	staging := newFakeStaging()
	production := newFakeProduction()
	production.insertErr = errors.New("connection reset")
	staging.seed("SRV-FORM-1", func(r *model.SurveyRecord) {
		r.SanitizationAttempts = 2
	})

	svc := newTestPipeline(staging, production, 3)

	result, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() err = %v", err)
	}
	if result.Rejected != 1 {
		t.Errorf("Rejected = %d, хотели 1", result.Rejected)
	}

	rec := staging.byID(1)
	if rec.SanitizationStatus == nil || *rec.SanitizationStatus != "rejected" {
		t.Fatalf("статус staging = %v, хотели rejected после исчерпания попыток", rec.SanitizationStatus)
	}
	if rec.RejectedReason == nil || !strings.Contains(*rec.RejectedReason, "after 3 attempts") {
		t.Errorf("rejected_reason = %v, должен упоминать исчерпание попыток", rec.RejectedReason)
	}
}

func TestRunOnce_EmptyQueue(t *testing.T) {
	svc := newTestPipeline(newFakeStaging(), newFakeProduction(), 3)

	result, err := svc.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() err = %v", err)
	}
	if result.Processed != 0 || len(result.Errors) != 0 {
		t.Errorf("Processed/Errors = %d/%d, хотели 0/0", result.Processed, len(result.Errors))
	}
}

func TestStatus(t *testing.T) {
	staging := newFakeStaging()
	staging.seed("SRV-FORM-1", nil)
	staging.seed("SRV-FORM-2", nil)

	svc := newTestPipeline(staging, newFakeProduction(), 3)

	status, err := svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() err = %v", err)
	}
	if status.Running {
		t.Error("Running = true до запуска")
	}
	if status.PendingCount != 2 {
		t.Errorf("PendingCount = %d, хотели 2", status.PendingCount)
	}
	if status.LastRun != nil {
		t.Error("LastRun != nil до первого запуска")
	}

	if _, err := svc.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce() err = %v", err)
	}

	status, err = svc.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() err = %v", err)
	}
	if status.PendingCount != 0 {
		t.Errorf("PendingCount = %d, хотели 0", status.PendingCount)
	}
	if status.LastRun == nil || status.LastRun.Approved != 2 {
		t.Errorf("LastRun = %+v, хотели Approved = 2", status.LastRun)
	}
}

func TestStartStop(t *testing.T) {
	staging := newFakeStaging()
	staging.seed("SRV-FORM-1", nil)

	svc := NewPipelineService(staging, newFakePromoter(staging, newFakeProduction()), time.Hour, 100, 3, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.Start(ctx)
	svc.Stop()

	// Первый проход выполняется сразу после старта
	rec := staging.byID(1)
	if rec.SanitizationStatus == nil || *rec.SanitizationStatus != "approved" {
		t.Errorf("статус после немедленного прохода = %v, хотели approved", rec.SanitizationStatus)
	}

	// Повторный Stop не должен паниковать
	svc.Stop()
}
