package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/homework-review-api/internal/models"
)

type stubJanitorStore struct {
	deleteCutoffs  []time.Time
	timeoutCutoffs []time.Time
	diagnostics    []string
	deleted        int64
	timedOut       int64
	deleteErr      error
	timeoutErr     error
}

func (s *stubJanitorStore) DeleteEmpty(_ context.Context, cutoff time.Time) (int64, error) {
	s.deleteCutoffs = append(s.deleteCutoffs, cutoff)
	return s.deleted, s.deleteErr
}

func (s *stubJanitorStore) TimeoutStale(_ context.Context, cutoff, _ time.Time, diagnostic string) (int64, error) {
	s.timeoutCutoffs = append(s.timeoutCutoffs, cutoff)
	s.diagnostics = append(s.diagnostics, diagnostic)
	return s.timedOut, s.timeoutErr
}

type stubHomeworkCounter struct {
	before []time.Time
	count  int
}

func (s *stubHomeworkCounter) CountCreatedBefore(_ context.Context, t time.Time) (int, error) {
	s.before = append(s.before, t)
	return s.count, nil
}

func newTestJanitor(t *testing.T, store *stubJanitorStore, counter *stubHomeworkCounter, cfg JanitorConfig) (*Janitor, *memCacheRepo, *MetricsService) {
	t.Helper()
	cacheRepo := &memCacheRepo{}
	metrics := NewMetricsService()
	j, err := NewJanitor(JanitorParams{
		Submissions: store,
		Homeworks:   counter,
		Cache:       NewCacheService(cacheRepo, nil, time.Minute, zap.NewNop(), true),
		Metrics:     metrics,
		Logger:      zap.NewNop(),
		Config:      cfg,
	})
	require.NoError(t, err)
	j.now = func() time.Time { return time.Date(2024, 9, 2, 16, 30, 0, 0, time.UTC) }
	return j, cacheRepo, metrics
}

func TestJanitorRejectsInvalidSchedule(t *testing.T) {
	_, err := NewJanitor(JanitorParams{
		Submissions: &stubJanitorStore{},
		Homeworks:   &stubHomeworkCounter{},
		Config:      JanitorConfig{SweepSpec: "every now and then"},
	})
	require.Error(t, err)
}

func TestJanitorPeriodicSweepTimesOutStaleReviews(t *testing.T) {
	store := &stubJanitorStore{deleted: 2, timedOut: 1}
	j, cacheRepo, metrics := newTestJanitor(t, store, &stubHomeworkCounter{}, JanitorConfig{
		ReviewTimeout: 5 * time.Minute,
		SweepEmpty:    true,
	})

	report := j.PeriodicSweep(context.Background())

	assert.Equal(t, SweepReport{Deleted: 2, TimedOut: 1}, report)
	require.Len(t, store.timeoutCutoffs, 1)
	assert.Equal(t, time.Date(2024, 9, 2, 16, 25, 0, 0, time.UTC), store.timeoutCutoffs[0])
	assert.Equal(t, []string{models.DiagnosticTimedOut}, store.diagnostics)
	assert.Equal(t, []time.Time{time.Date(2024, 9, 2, 16, 30, 0, 0, time.UTC)}, store.deleteCutoffs)
	assert.Contains(t, cacheRepo.patterns, "board:*")
	assert.Equal(t, 1.0, counterValue(t, metrics, "janitor_rows_total", map[string]string{"sweep": sweepTimeout}))
	assert.Equal(t, 2.0, counterValue(t, metrics, "janitor_rows_total", map[string]string{"sweep": sweepEmpty}))
}

func TestJanitorSkipsEmptySweepWhenDisabled(t *testing.T) {
	store := &stubJanitorStore{}
	j, cacheRepo, _ := newTestJanitor(t, store, &stubHomeworkCounter{}, JanitorConfig{})

	report := j.PeriodicSweep(context.Background())

	assert.Zero(t, report)
	assert.Empty(t, store.deleteCutoffs)
	assert.Len(t, store.timeoutCutoffs, 1)
	assert.Empty(t, cacheRepo.patterns)
}

func TestJanitorSweepStepsAreIndependent(t *testing.T) {
	store := &stubJanitorStore{deleteErr: errors.New("deadlock"), timedOut: 3}
	j, _, metrics := newTestJanitor(t, store, &stubHomeworkCounter{}, JanitorConfig{SweepEmpty: true})

	report := j.PeriodicSweep(context.Background())

	assert.Equal(t, int64(0), report.Deleted)
	assert.Equal(t, int64(3), report.TimedOut)
	assert.Equal(t, 1.0, counterValue(t, metrics, "janitor_runs_total", map[string]string{"sweep": sweepEmpty, "result": "error"}))
}

func TestJanitorDailySweepUsesLocalMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	counter := &stubHomeworkCounter{count: 4}
	j, cacheRepo, _ := newTestJanitor(t, &stubJanitorStore{}, counter, JanitorConfig{Location: loc})
	var hookDay time.Time
	j.hook = func(_ context.Context, dayStart time.Time) error {
		hookDay = dayStart
		return nil
	}

	j.DailySweep(context.Background())

	want := time.Date(2024, 9, 3, 0, 0, 0, 0, loc)
	require.Len(t, counter.before, 1)
	assert.True(t, want.Equal(counter.before[0]))
	assert.True(t, want.Equal(hookDay))
	assert.Contains(t, cacheRepo.patterns, "board:*")
}

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	got := StartOfDay(time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC), loc)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, loc), got)
}

func counterValue(t *testing.T, metrics *MetricsService, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := 0
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] == pair.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}
