package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Anuj-afk/TimeTable-Generator/internal/dto"
	"github.com/Anuj-afk/TimeTable-Generator/internal/models"
	"github.com/Anuj-afk/TimeTable-Generator/internal/repository"
	"github.com/Anuj-afk/TimeTable-Generator/internal/scheduler"
	appErrors "github.com/Anuj-afk/TimeTable-Generator/pkg/errors"
)

type timetableRunStore interface {
	Create(ctx context.Context, run *models.TimetableRun) error
	GetByID(ctx context.Context, id string) (*models.TimetableRun, error)
	Update(ctx context.Context, id string, params repository.UpdateTimetableRunParams) error
	List(ctx context.Context, filter models.TimetableRunFilter) ([]models.TimetableRun, int, error)
	ListQueued(ctx context.Context, limit int) ([]models.TimetableRun, error)
	LatestFinished(ctx context.Context) (*models.TimetableRun, error)
	RequeueInterrupted(ctx context.Context) (int64, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.TimetableRun, error)
}

type timetableResultStore interface {
	SaveResult(ctx context.Context, runID string, assignments []models.TimetableAssignment, deficits []models.TimetableDeficit) error
	ListAssignments(ctx context.Context, runID string) ([]models.TimetableAssignment, error)
	ListDeficits(ctx context.Context, runID string) ([]models.TimetableDeficit, error)
}

type resultCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// TimetableServiceConfig holds the default week and cache lifetime.
type TimetableServiceConfig struct {
	Days          []string
	PeriodsPerDay int
	CacheTTL      time.Duration
}

// Placement bundles a finished engine pass with its derived report.
type Placement struct {
	Fingerprint string
	Result      *scheduler.Result
	Summary     []scheduler.SummaryRecord
	Anomalies   []string
}

// Stats aggregates the size of the placement.
func (p *Placement) Stats() dto.TimetableStats {
	unscheduled := p.Result.UnscheduledTotal()
	return dto.TimetableStats{
		Teachers:    len(p.Result.Teachers),
		Classes:     len(p.Result.Classes),
		Slots:       p.Result.Space.Size(),
		Required:    len(p.Result.Assignments) + unscheduled,
		Assignments: len(p.Result.Assignments),
		Unscheduled: unscheduled,
		Anomalies:   len(p.Anomalies),
	}
}

// TimetableService runs placements and reads persisted runs.
type TimetableService struct {
	runs      timetableRunStore
	results   timetableResultStore
	cache     resultCache
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       TimetableServiceConfig
}

// NewTimetableService constructs the service. runs, results and cache may be nil;
// persistence and caching are then skipped.
func NewTimetableService(runs timetableRunStore, results timetableResultStore, cache resultCache, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg TimetableServiceConfig) *TimetableService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if len(cfg.Days) == 0 {
		cfg.Days = scheduler.DefaultDays
	}
	if cfg.PeriodsPerDay <= 0 {
		cfg.PeriodsPerDay = scheduler.DefaultPeriodsPerDay
	}
	return &TimetableService{
		runs:      runs,
		results:   results,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// SlotSpace resolves the week for a request, falling back to the configured days and periods.
func (s *TimetableService) SlotSpace(days []string, periodsPerDay int) (scheduler.SlotSpace, error) {
	if len(days) == 0 {
		days = s.cfg.Days
	}
	if periodsPerDay <= 0 {
		periodsPerDay = s.cfg.PeriodsPerDay
	}
	space, err := scheduler.NewSlotSpace(days, periodsPerDay)
	if err != nil {
		return scheduler.SlotSpace{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}
	return space, nil
}

// Fingerprint hashes the canonical demand together with the week it is placed into.
func Fingerprint(demand scheduler.Demand, space scheduler.SlotSpace) (string, error) {
	payload, err := json.Marshal(struct {
		Days    []string         `json:"days"`
		Periods int              `json:"periods"`
		Demand  scheduler.Demand `json:"demand"`
	}{space.Days(), space.PeriodsPerDay(), demand.Canonical()})
	if err != nil {
		return "", fmt.Errorf("encode demand: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// Place runs one engine pass and validates the resulting loads.
func (s *TimetableService) Place(ctx context.Context, demand scheduler.Demand, space scheduler.SlotSpace, source models.RunSource) (*Placement, error) {
	fingerprint, err := Fingerprint(demand, space)
	if err != nil {
		return nil, err
	}
	engine, err := scheduler.NewEngine(space, scheduler.WithLogger(s.logger))
	if err != nil {
		s.metrics.RecordFailedRun(source)
		return nil, err
	}

	start := time.Now()
	result, err := engine.Place(ctx, demand)
	if err != nil {
		s.metrics.RecordFailedRun(source)
		return nil, err
	}
	summary, anomalies, err := result.Summary()
	if err != nil {
		s.metrics.RecordFailedRun(source)
		return nil, err
	}
	duration := time.Since(start)

	for _, note := range anomalies {
		s.logger.Error("teacher load exceeds weekly capacity", zap.String("fingerprint", fingerprint), zap.String("note", note))
	}
	unscheduled := result.UnscheduledTotal()
	s.metrics.ObserveTimetableRun(source, unscheduled, len(anomalies), duration)
	s.logger.Info("timetable placed",
		zap.String("source", string(source)),
		zap.String("fingerprint", fingerprint),
		zap.Int("teachers", len(result.Teachers)),
		zap.Int("classes", len(result.Classes)),
		zap.Int("assignments", len(result.Assignments)),
		zap.Int("unscheduled", unscheduled),
		zap.Duration("duration", duration),
	)

	return &Placement{Fingerprint: fingerprint, Result: result, Summary: summary, Anomalies: anomalies}, nil
}

// Prepare validates a generation request and converts it into demand and a slot space.
func (s *TimetableService) Prepare(req dto.GenerateTimetableRequest) (scheduler.Demand, scheduler.SlotSpace, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, scheduler.SlotSpace{}, appErrors.Invalid(err, "invalid timetable payload")
	}
	demand := make(scheduler.Demand, len(req.Demand))
	for teacher, reqs := range req.Demand {
		entries := make([]scheduler.Requirement, 0, len(reqs))
		for _, r := range reqs {
			entries = append(entries, scheduler.Requirement{ClassID: strings.TrimSpace(r.Class), Required: r.Required})
		}
		demand[teacher] = entries
	}
	if err := demand.Validate(); err != nil {
		return nil, scheduler.SlotSpace{}, appErrors.Invalid(err, "")
	}
	space, err := s.SlotSpace(req.Days, req.PeriodsPerDay)
	if err != nil {
		return nil, scheduler.SlotSpace{}, err
	}
	return demand, space, nil
}

// Compute validates the request and places it, bypassing the cache.
func (s *TimetableService) Compute(ctx context.Context, req dto.GenerateTimetableRequest) (*Placement, error) {
	demand, space, err := s.Prepare(req)
	if err != nil {
		return nil, err
	}
	return s.Place(ctx, demand, space, models.RunSourceAPI)
}

// Generate places a JSON demand and returns grids and summary. Responses are cached by
// fingerprint; persisted requests always run and record a new run.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest, actorID string) (*dto.TimetableResponse, error) {
	demand, space, err := s.Prepare(req)
	if err != nil {
		return nil, err
	}
	fingerprint, err := Fingerprint(demand, space)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fingerprint demand")
	}
	key := ResultCacheKey(fingerprint)

	if !req.Persist && s.cache != nil {
		var cached dto.TimetableResponse
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			cached.Cached = true
			return &cached, nil
		}
	}

	placement, err := s.Place(ctx, demand, space, models.RunSourceAPI)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to place timetable")
	}
	resp := NewTimetableResponse(placement)
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resp, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("timetable result cache write failed", zap.String("key", key), zap.Error(err))
		}
	}

	if req.Persist {
		params := models.RunParams{Days: space.Days(), PeriodsPerDay: space.PeriodsPerDay()}
		run, err := s.Record(ctx, placement, models.RunSourceAPI, params, nil, actorID)
		if err != nil {
			return nil, err
		}
		resp.RunID = run.ID
	}
	return resp, nil
}

// NewTimetableResponse maps a placement to the API response.
func NewTimetableResponse(p *Placement) *dto.TimetableResponse {
	result := p.Result
	return &dto.TimetableResponse{
		Fingerprint: p.Fingerprint,
		Days:        result.Space.Days(),
		Periods:     result.Space.PeriodLabels(),
		Stats:       p.Stats(),
		Timetables:  dto.NewTimetableGrids(result.TeacherGrids(), result.ClassGrids()),
		Summary:     p.Summary,
		Skipped:     result.Skipped,
	}
}

// Record stores a completed synchronous placement as a FINISHED run.
func (s *TimetableService) Record(ctx context.Context, placement *Placement, source models.RunSource, params models.RunParams, warnings []string, actorID string) (*models.TimetableRun, error) {
	if s.runs == nil || s.results == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "run store is not configured")
	}
	run := &models.TimetableRun{
		Source:      source,
		Status:      models.RunStatusProcessing,
		Progress:    50,
		Fingerprint: placement.Fingerprint,
		Params:      params,
		CreatedBy:   actorID,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable run")
	}
	if err := s.StoreResult(ctx, run.ID, placement, warnings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store timetable run")
	}

	finished := models.RunStatusFinished
	progress := 100
	now := time.Now().UTC()
	if err := s.runs.Update(ctx, run.ID, repository.UpdateTimetableRunParams{
		Status:     &finished,
		Progress:   &progress,
		FinishedAt: &now,
	}); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finish timetable run")
	}
	run.Status = finished
	run.Progress = progress
	run.FinishedAt = &now
	return run, nil
}

// StoreResult persists the records of a placement and updates the run's counters.
func (s *TimetableService) StoreResult(ctx context.Context, runID string, placement *Placement, warnings []string) error {
	result := placement.Result
	assignments := make([]models.TimetableAssignment, 0, len(result.Assignments))
	for _, a := range result.Assignments {
		assignments = append(assignments, models.TimetableAssignment{TeacherID: a.Teacher, ClassID: a.Class, DayIndex: a.Slot.Day, Period: a.Slot.Period})
	}
	deficits := make([]models.TimetableDeficit, 0, len(result.Deficits))
	for _, d := range result.Deficits {
		deficits = append(deficits, models.TimetableDeficit{TeacherID: d.Teacher, ClassID: d.Class, Required: d.Required, Scheduled: d.Scheduled, Unscheduled: d.Unscheduled})
	}

	start := time.Now()
	err := s.results.SaveResult(ctx, runID, assignments, deficits)
	s.metrics.ObserveDBQuery("timetable_save_result", time.Since(start))
	if err != nil {
		return err
	}

	roster := models.RunRoster{Teachers: result.Teachers, Classes: result.Classes, Warnings: warnings}
	fingerprint := placement.Fingerprint
	placed := len(result.Assignments)
	unscheduled := result.UnscheduledTotal()
	anomalies := len(placement.Anomalies)
	return s.runs.Update(ctx, runID, repository.UpdateTimetableRunParams{
		Fingerprint: &fingerprint,
		Roster:      &roster,
		Assignments: &placed,
		Unscheduled: &unscheduled,
		Anomalies:   &anomalies,
	})
}

// GetRun returns run metadata.
func (s *TimetableService) GetRun(ctx context.Context, id string) (*dto.TimetableRunResponse, error) {
	run, err := s.loadRun(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := dto.NewTimetableRunResponse(*run)
	return &resp, nil
}

// ListRuns returns a page of runs, newest first.
func (s *TimetableService) ListRuns(ctx context.Context, query dto.TimetableRunQuery) ([]dto.TimetableRunResponse, *models.Pagination, error) {
	if s.runs == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrInternal, "run store is not configured")
	}
	filter := models.TimetableRunFilter{Page: query.Page, PageSize: query.PageSize}
	if query.Status != "" {
		status := models.RunStatus(strings.ToUpper(query.Status))
		if !status.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unsupported run status")
		}
		filter.Status = &status
	}
	if query.Source != "" {
		source := models.RunSource(strings.ToLower(query.Source))
		if !source.Valid() {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unsupported run source")
		}
		filter.Source = &source
	}

	start := time.Now()
	runs, total, err := s.runs.List(ctx, filter)
	s.metrics.ObserveDBQuery("timetable_list_runs", time.Since(start))
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetable runs")
	}

	items := make([]dto.TimetableRunResponse, 0, len(runs))
	for _, run := range runs {
		items = append(items, dto.NewTimetableRunResponse(run))
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// LoadResult rebuilds the placement of a finished run from its stored records.
func (s *TimetableService) LoadResult(ctx context.Context, id string) (*scheduler.Result, error) {
	run, err := s.loadRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrNotReady, "timetable run is not finished")
	}
	space, err := scheduler.NewSlotSpace(run.Params.Days, run.Params.PeriodsPerDay)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored run has an invalid week")
	}

	start := time.Now()
	rows, err := s.results.ListAssignments(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	deficitRows, err := s.results.ListDeficits(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load deficits")
	}
	s.metrics.ObserveDBQuery("timetable_load_result", time.Since(start))

	result := &scheduler.Result{
		Space:       space,
		Teachers:    run.Roster.Teachers,
		Classes:     run.Roster.Classes,
		Assignments: make([]scheduler.Assignment, 0, len(rows)),
		Deficits:    make([]scheduler.Deficit, 0, len(deficitRows)),
	}
	for _, row := range rows {
		result.Assignments = append(result.Assignments, scheduler.Assignment{
			Teacher: row.TeacherID,
			Class:   row.ClassID,
			Slot:    scheduler.Slot{Day: row.DayIndex, Period: row.Period},
		})
	}
	for _, row := range deficitRows {
		result.Deficits = append(result.Deficits, scheduler.Deficit{
			Teacher:     row.TeacherID,
			Class:       row.ClassID,
			Required:    row.Required,
			Scheduled:   row.Scheduled,
			Unscheduled: row.Unscheduled,
		})
	}
	return result, nil
}

// GetGrids returns the teacher and class grids of a finished run.
func (s *TimetableService) GetGrids(ctx context.Context, id string) (*dto.TimetableGrids, error) {
	result, err := s.LoadResult(ctx, id)
	if err != nil {
		return nil, err
	}
	grids := dto.NewTimetableGrids(result.TeacherGrids(), result.ClassGrids())
	return &grids, nil
}

// LatestGrids returns the grids of the most recently finished run, or empty grids
// with NoTimetablesMessage when nothing has finished yet.
func (s *TimetableService) LatestGrids(ctx context.Context) (*dto.LatestTimetableGrids, error) {
	if s.runs == nil || s.results == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "run store is not configured")
	}
	run, err := s.runs.LatestFinished(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &dto.LatestTimetableGrids{
				TimetableGrids: dto.NewTimetableGrids(nil, nil),
				Message:        dto.NoTimetablesMessage,
			}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest timetable run")
	}
	grids, err := s.GetGrids(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	return &dto.LatestTimetableGrids{RunID: run.ID, FinishedAt: run.FinishedAt, TimetableGrids: *grids}, nil
}

// GetSummary recomputes the summary records of a finished run.
func (s *TimetableService) GetSummary(ctx context.Context, id string) ([]scheduler.SummaryRecord, error) {
	result, err := s.LoadResult(ctx, id)
	if err != nil {
		return nil, err
	}
	records, _, err := result.Summary()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise run")
	}
	return records, nil
}

func (s *TimetableService) loadRun(ctx context.Context, id string) (*models.TimetableRun, error) {
	if s.runs == nil || s.results == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "run store is not configured")
	}
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable run")
	}
	return run, nil
}
