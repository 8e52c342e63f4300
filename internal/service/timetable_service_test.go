package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Anuj-afk/TimeTable-Generator/internal/dto"
	"github.com/Anuj-afk/TimeTable-Generator/internal/models"
	"github.com/Anuj-afk/TimeTable-Generator/internal/repository"
	"github.com/Anuj-afk/TimeTable-Generator/internal/scheduler"
	appErrors "github.com/Anuj-afk/TimeTable-Generator/pkg/errors"
)

type runStoreStub struct {
	mu        sync.Mutex
	runs      map[string]*models.TimetableRun
	updates   []repository.UpdateTimetableRunParams
	seq       int
	createErr error
	getErr    error
}

func newRunStoreStub() *runStoreStub {
	return &runStoreStub{runs: make(map[string]*models.TimetableRun)}
}

func (s *runStoreStub) Create(ctx context.Context, run *models.TimetableRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if run.ID == "" {
		s.seq++
		run.ID = fmt.Sprintf("run-%d", s.seq)
	}
	if run.Status == "" {
		run.Status = models.RunStatusQueued
	}
	run.CreatedAt = time.Now().UTC()
	clone := *run
	s.runs[run.ID] = &clone
	return nil
}

func (s *runStoreStub) GetByID(ctx context.Context, id string) (*models.TimetableRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("get timetable run: %w", sql.ErrNoRows)
	}
	clone := *run
	return &clone, nil
}

func (s *runStoreStub) Update(ctx context.Context, id string, params repository.UpdateTimetableRunParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, params)
	run, ok := s.runs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		run.Status = *params.Status
	}
	if params.Progress != nil {
		run.Progress = *params.Progress
	}
	if params.Fingerprint != nil {
		run.Fingerprint = *params.Fingerprint
	}
	if params.Roster != nil {
		run.Roster = *params.Roster
	}
	if params.Assignments != nil {
		run.Assignments = *params.Assignments
	}
	if params.Unscheduled != nil {
		run.Unscheduled = *params.Unscheduled
	}
	if params.Anomalies != nil {
		run.Anomalies = *params.Anomalies
	}
	if params.ResultURL != nil {
		run.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		run.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		run.FinishedAt = params.FinishedAt
	}
	return nil
}

func (s *runStoreStub) List(ctx context.Context, filter models.TimetableRunFilter) ([]models.TimetableRun, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TimetableRun, 0, len(s.runs))
	for _, run := range s.runs {
		if filter.Status != nil && run.Status != *filter.Status {
			continue
		}
		if filter.Source != nil && run.Source != *filter.Source {
			continue
		}
		out = append(out, *run)
	}
	return out, len(out), nil
}

func (s *runStoreStub) ListQueued(ctx context.Context, limit int) ([]models.TimetableRun, error) {
	status := models.RunStatusQueued
	runs, _, err := s.List(ctx, models.TimetableRunFilter{Status: &status})
	return runs, err
}

func (s *runStoreStub) LatestFinished(ctx context.Context) (*models.TimetableRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *models.TimetableRun
	for _, run := range s.runs {
		if run.Status != models.RunStatusFinished || run.FinishedAt == nil {
			continue
		}
		if latest == nil || run.FinishedAt.After(*latest.FinishedAt) {
			latest = run
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("latest finished timetable run: %w", sql.ErrNoRows)
	}
	clone := *latest
	return &clone, nil
}

func (s *runStoreStub) RequeueInterrupted(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, run := range s.runs {
		if run.Status == models.RunStatusProcessing {
			run.Status = models.RunStatusQueued
			run.Progress = 0
			n++
		}
	}
	return n, nil
}

func (s *runStoreStub) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.TimetableRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TimetableRun
	for _, run := range s.runs {
		if run.Status == models.RunStatusFinished && run.ResultURL != nil && run.FinishedAt != nil && run.FinishedAt.Before(cutoff) {
			out = append(out, *run)
		}
	}
	return out, nil
}

func (s *runStoreStub) get(id string) models.TimetableRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.runs[id]
}

type resultStoreStub struct {
	mu          sync.Mutex
	assignments map[string][]models.TimetableAssignment
	deficits    map[string][]models.TimetableDeficit
	saveErr     error
}

func newResultStoreStub() *resultStoreStub {
	return &resultStoreStub{
		assignments: make(map[string][]models.TimetableAssignment),
		deficits:    make(map[string][]models.TimetableDeficit),
	}
}

func (s *resultStoreStub) SaveResult(ctx context.Context, runID string, assignments []models.TimetableAssignment, deficits []models.TimetableDeficit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.assignments[runID] = assignments
	s.deficits[runID] = deficits
	return nil
}

func (s *resultStoreStub) ListAssignments(ctx context.Context, runID string) ([]models.TimetableAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.assignments[runID], nil
}

func (s *resultStoreStub) ListDeficits(ctx context.Context, runID string) ([]models.TimetableDeficit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deficits[runID], nil
}

type memoryCacheStub struct {
	entries map[string][]byte
	gets    int
	sets    int
	setErr  error
}

func newMemoryCacheStub() *memoryCacheStub {
	return &memoryCacheStub{entries: make(map[string][]byte)}
}

func (c *memoryCacheStub) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	c.gets++
	data, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (c *memoryCacheStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.sets++
	if c.setErr != nil {
		return c.setErr
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.entries[key] = data
	return nil
}

func newTimetableServiceForTest(runs *runStoreStub, results *resultStoreStub, cache *memoryCacheStub) *TimetableService {
	var (
		runStore    timetableRunStore
		resultStore timetableResultStore
		cacheStore  resultCache
	)
	if runs != nil {
		runStore = runs
	}
	if results != nil {
		resultStore = results
	}
	if cache != nil {
		cacheStore = cache
	}
	return NewTimetableService(runStore, resultStore, cacheStore, NewMetricsService(), validator.New(), zap.NewNop(), TimetableServiceConfig{
		Days:          []string{"Mon", "Tue"},
		PeriodsPerDay: 2,
		CacheTTL:      time.Minute,
	})
}

func overCapacityRequest() dto.GenerateTimetableRequest {
	return dto.GenerateTimetableRequest{
		Demand: map[string][]dto.RequirementRequest{
			"T1": {{Class: "9A", Required: 3}, {Class: "9B", Required: 2}},
		},
	}
}

func TestTimetableServiceGenerate(t *testing.T) {
	svc := newTimetableServiceForTest(nil, nil, nil)

	resp, err := svc.Generate(context.Background(), overCapacityRequest(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Mon", "Tue"}, resp.Days)
	assert.Equal(t, []string{"P1", "P2"}, resp.Periods)
	assert.Equal(t, dto.TimetableStats{Teachers: 1, Classes: 2, Slots: 4, Required: 5, Assignments: 4, Unscheduled: 1}, resp.Stats)
	assert.Empty(t, resp.RunID)
	assert.False(t, resp.Cached)
	assert.Len(t, resp.Fingerprint, 64)

	require.Len(t, resp.Timetables.Teachers["T1"], 2)
	require.Len(t, resp.Summary, 2)
	assert.Equal(t, scheduler.KindTeacherLoad, resp.Summary[0].Kind)
	assert.Equal(t, 4, resp.Summary[0].Value)
	assert.Equal(t, scheduler.KindUnscheduled, resp.Summary[1].Kind)
	assert.Equal(t, "9B", resp.Summary[1].Class)
	assert.Equal(t, 1, resp.Summary[1].Unscheduled)
}

func TestTimetableServiceGenerateValidation(t *testing.T) {
	svc := newTimetableServiceForTest(nil, nil, nil)

	_, err := svc.Generate(context.Background(), dto.GenerateTimetableRequest{}, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Generate(context.Background(), dto.GenerateTimetableRequest{
		Demand: map[string][]dto.RequirementRequest{
			"T1": {{Class: "9A", Required: 0}, {Class: "9A", Required: 2}},
		},
	}, "")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "required periods must be positive")
	assert.Contains(t, appErr.Message, "duplicate class requirement")
	assert.NotContains(t, appErr.Message, "\n")

	_, err = svc.Generate(context.Background(), dto.GenerateTimetableRequest{
		Demand: overCapacityRequest().Demand,
		Days:   []string{"Mon", "Mon"},
	}, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceGenerateUsesCache(t *testing.T) {
	cache := newMemoryCacheStub()
	svc := newTimetableServiceForTest(nil, nil, cache)

	first, err := svc.Generate(context.Background(), overCapacityRequest(), "")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, cache.sets)

	req := overCapacityRequest()
	req.Demand["T1"] = []dto.RequirementRequest{{Class: "9B", Required: 2}, {Class: "9A", Required: 3}}
	second, err := svc.Generate(context.Background(), req, "")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, first.Timetables, second.Timetables)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, 1, cache.sets)
}

func TestTimetableServiceGeneratePersist(t *testing.T) {
	runs := newRunStoreStub()
	results := newResultStoreStub()
	cache := newMemoryCacheStub()
	svc := newTimetableServiceForTest(runs, results, cache)

	req := overCapacityRequest()
	req.Persist = true
	resp, err := svc.Generate(context.Background(), req, "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, resp.RunID)
	assert.Zero(t, cache.gets)

	run := runs.get(resp.RunID)
	assert.Equal(t, models.RunStatusFinished, run.Status)
	assert.Equal(t, 100, run.Progress)
	assert.Equal(t, models.RunSourceAPI, run.Source)
	assert.Equal(t, "user-1", run.CreatedBy)
	assert.Equal(t, resp.Fingerprint, run.Fingerprint)
	assert.Equal(t, 4, run.Assignments)
	assert.Equal(t, 1, run.Unscheduled)
	assert.Equal(t, []string{"T1"}, run.Roster.Teachers)
	assert.Equal(t, []string{"9A", "9B"}, run.Roster.Classes)
	assert.NotNil(t, run.FinishedAt)
	assert.Len(t, results.assignments[resp.RunID], 4)
	require.Len(t, results.deficits[resp.RunID], 1)
	assert.Equal(t, "9B", results.deficits[resp.RunID][0].ClassID)

	grids, err := svc.GetGrids(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, resp.Timetables, *grids)

	summary, err := svc.GetSummary(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, resp.Summary, summary)
}

func TestTimetableServicePersistWithoutStore(t *testing.T) {
	svc := newTimetableServiceForTest(nil, nil, nil)
	req := overCapacityRequest()
	req.Persist = true

	_, err := svc.Generate(context.Background(), req, "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceLoadResultNotReady(t *testing.T) {
	runs := newRunStoreStub()
	svc := newTimetableServiceForTest(runs, newResultStoreStub(), nil)
	require.NoError(t, runs.Create(context.Background(), &models.TimetableRun{ID: "run-q", Source: models.RunSourceUpload}))

	_, err := svc.GetGrids(context.Background(), "run-q")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotReady.Code, appErrors.FromError(err).Code)

	_, err = svc.GetSummary(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestTimetableServiceListRuns(t *testing.T) {
	runs := newRunStoreStub()
	svc := newTimetableServiceForTest(runs, newResultStoreStub(), nil)
	ctx := context.Background()
	require.NoError(t, runs.Create(ctx, &models.TimetableRun{Source: models.RunSourceUpload}))
	require.NoError(t, runs.Create(ctx, &models.TimetableRun{Source: models.RunSourceAPI, Status: models.RunStatusFinished}))

	items, page, err := svc.ListRuns(ctx, dto.TimetableRunQuery{Status: "queued"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.RunSourceUpload, items[0].Source)
	assert.Equal(t, models.Pagination{Page: 1, PageSize: 20, TotalCount: 1}, *page)

	_, _, err = svc.ListRuns(ctx, dto.TimetableRunQuery{Source: "fax"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFingerprintIgnoresEntryOrder(t *testing.T) {
	space, err := scheduler.NewSlotSpace([]string{"Mon"}, 4)
	require.NoError(t, err)
	a, err := Fingerprint(scheduler.Demand{"T1": {{ClassID: "9A", Required: 1}, {ClassID: "9B", Required: 2}}}, space)
	require.NoError(t, err)
	b, err := Fingerprint(scheduler.Demand{"T1": {{ClassID: "9B", Required: 2}, {ClassID: "9A", Required: 1}}}, space)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	wider, err := scheduler.NewSlotSpace([]string{"Mon"}, 5)
	require.NoError(t, err)
	c, err := Fingerprint(scheduler.Demand{"T1": {{ClassID: "9A", Required: 1}, {ClassID: "9B", Required: 2}}}, wider)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestTimetableServiceGenerateSurvivesCacheWriteFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cache := newMemoryCacheStub()
	cache.setErr = errors.New("redis: connection refused")
	svc := NewTimetableService(nil, nil, cache, nil, nil, zap.New(core), TimetableServiceConfig{
		Days:          []string{"Mon", "Tue"},
		PeriodsPerDay: 2,
	})

	resp, err := svc.Generate(context.Background(), overCapacityRequest(), "")
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Stats.Assignments)
	assert.Equal(t, 1, cache.sets)

	entries := logs.FilterMessage("timetable result cache write failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, ResultCacheKey(resp.Fingerprint), entries[0].ContextMap()["key"])
}

func TestTimetableServiceLatestGridsEmpty(t *testing.T) {
	svc := newTimetableServiceForTest(newRunStoreStub(), newResultStoreStub(), nil)

	latest, err := svc.LatestGrids(context.Background())
	require.NoError(t, err)
	assert.Empty(t, latest.RunID)
	assert.Equal(t, dto.NoTimetablesMessage, latest.Message)
	assert.NotNil(t, latest.Teachers)
	assert.Empty(t, latest.Teachers)
	assert.Empty(t, latest.Classes)

	data, err := json.Marshal(latest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"teachers":{},"classes":{},"message":"`+dto.NoTimetablesMessage+`"}`, string(data))
}

func TestTimetableServiceLatestGridsPicksNewestFinished(t *testing.T) {
	runs := newRunStoreStub()
	results := newResultStoreStub()
	svc := newTimetableServiceForTest(runs, results, nil)
	ctx := context.Background()

	req := overCapacityRequest()
	req.Persist = true
	first, err := svc.Generate(ctx, req, "")
	require.NoError(t, err)

	req.Demand = map[string][]dto.RequirementRequest{"T2": {{Class: "10A", Required: 1}}}
	second, err := svc.Generate(ctx, req, "")
	require.NoError(t, err)

	older := time.Now().Add(-time.Hour)
	require.NoError(t, runs.Update(ctx, first.RunID, repository.UpdateTimetableRunParams{FinishedAt: &older}))
	require.NoError(t, runs.Create(ctx, &models.TimetableRun{ID: "queued", Source: models.RunSourceUpload}))

	latest, err := svc.LatestGrids(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.RunID, latest.RunID)
	assert.Empty(t, latest.Message)
	require.NotNil(t, latest.FinishedAt)
	assert.Equal(t, second.Timetables, latest.TimetableGrids)
	assert.Contains(t, latest.Teachers, "T2")
}

func TestTimetableServiceLatestGridsWithoutStore(t *testing.T) {
	_, err := newTimetableServiceForTest(nil, nil, nil).LatestGrids(context.Background())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
}
