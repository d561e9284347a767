package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bigkaa/surveyhub/internal/domain/model"
	"github.com/bigkaa/surveyhub/internal/ratelimit"
	"github.com/bigkaa/surveyhub/internal/repository"
)

// In-memory фейки репозиториев для юнит-тестов сервисного слоя.

var responseSeqRe = regexp.MustCompile(`^(?:SRV-FORM|BETA-FORM)-(\d+)$`)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }

func isPendingRecord(rec *model.SurveyRecord) bool {
	return rec.SanitizationStatus == nil || *rec.SanitizationStatus == string(model.StatusPending)
}

type fakeStaging struct {
	mu      sync.Mutex
	records []*model.SurveyRecord
	nextID  int64
	baseAt  time.Time

	insertErr error
	fetchErr  error
	denyClaim map[int64]bool
}

func newFakeStaging() *fakeStaging {
	return &fakeStaging{
		baseAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		denyClaim: map[int64]bool{},
	}
}

// seed добавляет pending-запись напрямую, минуя Insert.
func (f *fakeStaging) seed(responseID string, mutate func(*model.SurveyRecord)) *model.SurveyRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	rec := &model.SurveyRecord{
		ID:          f.nextID,
		ResponseID:  strPtr(responseID),
		SubmittedAt: f.baseAt.Add(time.Duration(f.nextID) * time.Minute),
	}
	if mutate != nil {
		mutate(rec)
	}
	f.records = append(f.records, rec)
	return rec
}

func (f *fakeStaging) byID(id int64) *model.SurveyRecord {
	for _, rec := range f.records {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

func (f *fakeStaging) Insert(_ context.Context, rec *model.SurveyRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.insertErr != nil {
		return f.insertErr
	}
	for _, existing := range f.records {
		if existing.ResponseID != nil && rec.ResponseID != nil && *existing.ResponseID == *rec.ResponseID {
			return repository.ErrConflict
		}
	}
	f.nextID++
	rec.ID = f.nextID
	rec.SubmittedAt = f.baseAt.Add(time.Duration(f.nextID) * time.Minute)
	rec.SanitizationAttempts = 0
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeStaging) GetByResponseID(_ context.Context, responseID string) (*model.SurveyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, rec := range f.records {
		if rec.ResponseID != nil && *rec.ResponseID == responseID {
			return rec.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeStaging) List(_ context.Context, filters repository.StagingListFilters, limit, offset int) ([]*model.SurveyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []*model.SurveyRecord
	for _, rec := range f.records {
		if matchesStatus(rec, filters) {
			matched = append(matched, rec)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].SubmittedAt.After(matched[j].SubmittedAt)
	})

	var result []*model.SurveyRecord
	for i := offset; i < len(matched) && len(result) < limit; i++ {
		result = append(result, matched[i].Clone())
	}
	return result, nil
}

func matchesStatus(rec *model.SurveyRecord, filters repository.StagingListFilters) bool {
	if filters.Status == nil {
		return true
	}
	if *filters.Status == string(model.StatusPending) {
		return isPendingRecord(rec)
	}
	return rec.SanitizationStatus != nil && *rec.SanitizationStatus == *filters.Status
}

func (f *fakeStaging) Count(_ context.Context, filters repository.StagingListFilters) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, rec := range f.records {
		if matchesStatus(rec, filters) {
			count++
		}
	}
	return count, nil
}

func (f *fakeStaging) FetchPending(_ context.Context, limit int) ([]*model.SurveyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fetchErr != nil {
		return nil, f.fetchErr
	}

	var pending []*model.SurveyRecord
	for _, rec := range f.records {
		if isPendingRecord(rec) {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].SubmittedAt.Before(pending[j].SubmittedAt)
	})

	if len(pending) > limit {
		pending = pending[:limit]
	}
	result := make([]*model.SurveyRecord, 0, len(pending))
	for _, rec := range pending {
		result = append(result, rec.Clone())
	}
	return result, nil
}

func (f *fakeStaging) ClaimAttempt(_ context.Context, id int64) (bool, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec := f.byID(id)
	if rec == nil || !isPendingRecord(rec) || f.denyClaim[id] {
		return false, 0, nil
	}
	rec.SanitizationAttempts++
	return true, rec.SanitizationAttempts, nil
}

func (f *fakeStaging) MarkApproved(_ context.Context, id int64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec := f.byID(id)
	if rec == nil || !isPendingRecord(rec) {
		return false, nil
	}
	rec.SanitizationStatus = strPtr(string(model.StatusApproved))
	rec.SanitizedAt = &at
	rec.RejectedReason = nil
	return true, nil
}

func (f *fakeStaging) MarkRejected(_ context.Context, id int64, reason string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rec := f.byID(id)
	if rec == nil || !isPendingRecord(rec) {
		return false, nil
	}
	rec.SanitizationStatus = strPtr(string(model.StatusRejected))
	rec.SanitizedAt = &at
	rec.RejectedReason = &reason
	return true, nil
}

func (f *fakeStaging) Requeue(_ context.Context, responseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, rec := range f.records {
		if rec.ResponseID == nil || *rec.ResponseID != responseID {
			continue
		}
		if rec.SanitizationStatus == nil || *rec.SanitizationStatus != string(model.StatusRejected) {
			return repository.ErrNotFound
		}
		rec.SanitizationStatus = strPtr(string(model.StatusPending))
		rec.SanitizationAttempts = 0
		return nil
	}
	return repository.ErrNotFound
}

func (f *fakeStaging) CountPending(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, rec := range f.records {
		if isPendingRecord(rec) {
			count++
		}
	}
	return count, nil
}

func (f *fakeStaging) MaxResponseSeq(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var max int64
	for _, rec := range f.records {
		max = maxSeq(max, rec.ResponseID)
	}
	return max, nil
}

func maxSeq(current int64, responseID *string) int64 {
	if responseID == nil {
		return current
	}
	m := responseSeqRe.FindStringSubmatch(*responseID)
	if m == nil {
		return current
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || n <= current {
		return current
	}
	return n
}

type fakeProduction struct {
	mu      sync.Mutex
	records []*model.SurveyRecord

	insertErr error
}

func newFakeProduction() *fakeProduction {
	return &fakeProduction{}
}

func (f *fakeProduction) Insert(_ context.Context, rec *model.SurveyRecord, sanitizedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.insertErr != nil {
		return f.insertErr
	}
	for _, existing := range f.records {
		if existing.ResponseID != nil && rec.ResponseID != nil && *existing.ResponseID == *rec.ResponseID {
			return repository.ErrConflict
		}
	}
	c := rec.Clone()
	c.SanitizedAt = &sanitizedAt
	f.records = append(f.records, c)
	return nil
}

func (f *fakeProduction) GetByResponseID(_ context.Context, responseID string) (*model.SurveyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, rec := range f.records {
		if rec.ResponseID != nil && *rec.ResponseID == responseID {
			return rec.Clone(), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeProduction) ExistsByResponseID(_ context.Context, responseID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, rec := range f.records {
		if rec.ResponseID != nil && *rec.ResponseID == responseID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeProduction) Count(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records), nil
}

func (f *fakeProduction) MaxResponseSeq(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var max int64
	for _, rec := range f.records {
		max = maxSeq(max, rec.ResponseID)
	}
	return max, nil
}

// fakePromoter эмулирует транзакционный перенос: при ошибке или
// проигранной гонке ни одно из хранилищ не меняется.
type fakePromoter struct {
	staging    *fakeStaging
	production *fakeProduction

	promoteErr error
}

func newFakePromoter(staging *fakeStaging, production *fakeProduction) *fakePromoter {
	return &fakePromoter{staging: staging, production: production}
}

func (f *fakePromoter) Promote(ctx context.Context, stagingID int64, sanitized *model.SurveyRecord, at time.Time) (bool, error) {
	if f.promoteErr != nil {
		return false, f.promoteErr
	}

	ok, err := f.staging.MarkApproved(ctx, stagingID, at)
	if err != nil || !ok {
		return false, err
	}

	// Дубликат в production — след прерванного переноса, не ошибка
	if err := f.production.Insert(ctx, sanitized, at); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return true, nil
		}
		// Откат: возвращаем staging-запись в pending
		rec := f.staging.byID(stagingID)
		rec.SanitizationStatus = nil
		rec.SanitizedAt = nil
		return false, err
	}
	return true, nil
}

type fakeLimiter struct {
	status ratelimit.Status
	err    error
	keys   []string
}

func allowAllLimiter() *fakeLimiter {
	return &fakeLimiter{status: ratelimit.Status{Allowed: true, Remaining: 4, ResetAt: time.Now().Add(time.Minute)}}
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (ratelimit.Status, error) {
	f.keys = append(f.keys, key)
	return f.status, f.err
}
