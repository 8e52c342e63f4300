package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Anuj-afk/TimeTable-Generator/internal/dto"
	"github.com/Anuj-afk/TimeTable-Generator/internal/ingest"
	"github.com/Anuj-afk/TimeTable-Generator/internal/models"
	"github.com/Anuj-afk/TimeTable-Generator/internal/repository"
	appErrors "github.com/Anuj-afk/TimeTable-Generator/pkg/errors"
	"github.com/Anuj-afk/TimeTable-Generator/pkg/jobs"
	"github.com/Anuj-afk/TimeTable-Generator/pkg/storage"
)

// JobTypeTimetable tags queue jobs that place an uploaded sheet.
const JobTypeTimetable = "timetable"

const uploadDir = "uploads"

type uploadStorage interface {
	SaveStream(filename string, r io.Reader, limit int64) (string, int64, error)
	Path(filename string) (string, error)
	Delete(filename string) error
}

type jobDispatcher interface {
	TryEnqueue(job jobs.Job) error
}

type exportGenerator interface {
	Generate(ctx context.Context, run *models.TimetableRun, placement *Placement) (*ExportResult, error)
}

// TimetableJobConfig governs uploads, queue recovery and cleanup.
type TimetableJobConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	MaxUploadBytes  int64
}

// TimetableDownload aggregates resolved download data.
type TimetableDownload struct {
	File      *os.File
	Filename  string
	Format    models.OutputFormat
	ExpiresAt time.Time
}

// TimetableJobService accepts requirement sheets and tracks their background runs.
type TimetableJobService struct {
	runs       timetableRunStore
	uploads    uploadStorage
	queue      jobDispatcher
	exporter   *ExportService
	timetables *TimetableService
	logger     *zap.Logger
	cfg        TimetableJobConfig
}

// NewTimetableJobService constructs the job service.
func NewTimetableJobService(runs timetableRunStore, uploads uploadStorage, queue jobDispatcher, exporter *ExportService, timetables *TimetableService, logger *zap.Logger, cfg TimetableJobConfig) *TimetableJobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 5 * 1024 * 1024
	}
	return &TimetableJobService{
		runs:       runs,
		uploads:    uploads,
		queue:      queue,
		exporter:   exporter,
		timetables: timetables,
		logger:     logger,
		cfg:        cfg,
	}
}

// Submit stores an uploaded sheet, records a QUEUED run and enqueues it.
func (s *TimetableJobService) Submit(ctx context.Context, filename string, r io.Reader, req dto.UploadTimetableRequest, actorID string) (*dto.TimetableJobResponse, error) {
	inputFormat, err := ingest.DetectFormat(filename)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFile, "only .xlsx and .csv sheets are accepted")
	}
	format := req.Format
	if format == "" {
		format = models.OutputFormatXLSX
	}
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported output format")
	}
	space, err := s.timetables.SlotSpace(req.Days, req.PeriodsPerDay)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	stored := fmt.Sprintf("%s/%s.%s", uploadDir, runID, inputFormat)
	relPath, _, err := s.uploads.SaveStream(stored, r, s.cfg.MaxUploadBytes)
	if err != nil {
		if errors.Is(err, storage.ErrTooLarge) {
			return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("sheet exceeds %d bytes", s.cfg.MaxUploadBytes))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}

	run := &models.TimetableRun{
		ID:     runID,
		Source: models.RunSourceUpload,
		Status: models.RunStatusQueued,
		Params: models.RunParams{
			Days:          space.Days(),
			PeriodsPerDay: space.PeriodsPerDay(),
			Format:        format,
			Filename:      filepath.Base(filename),
			UploadPath:    relPath,
		},
		CreatedBy: actorID,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		_ = s.uploads.Delete(relPath)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create timetable run")
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: run.ID, Type: JobTypeTimetable}); err != nil {
		failed := models.RunStatusFailed
		msg := "failed to enqueue run"
		now := time.Now().UTC()
		progress := 100
		_ = s.runs.Update(ctx, run.ID, repository.UpdateTimetableRunParams{
			Status:       &failed,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		})
		_ = s.uploads.Delete(relPath)
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.Wrap(err, appErrors.ErrQueueFull.Code, appErrors.ErrQueueFull.Status, "timetable queue is full, retry later")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue timetable run")
	}
	s.logger.Info("timetable upload queued", zap.String("run_id", run.ID), zap.String("filename", run.Params.Filename), zap.String("format", string(format)))
	return &dto.TimetableJobResponse{ID: run.ID, Status: run.Status, Progress: run.Progress}, nil
}

// ResolveDownload validates token and opens the stored export file.
func (s *TimetableJobService) ResolveDownload(ctx context.Context, token string) (*TimetableDownload, error) {
	grant, err := s.exporter.ParseToken(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	run, err := s.runs.GetByID(ctx, grant.RunID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable run")
	}
	if run.ResultURL == nil || !strings.HasSuffix(*run.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if run.Status != models.RunStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "timetable not ready")
	}
	file, err := s.exporter.Open(grant.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export file no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &TimetableDownload{
		File:      file,
		Filename:  filepath.Base(grant.Path),
		Format:    run.Params.Format,
		ExpiresAt: grant.ExpiresAt,
	}, nil
}

// RecoverPendingJobs replays queued runs after a restart. Runs a previous process left
// PROCESSING are queued again first.
func (s *TimetableJobService) RecoverPendingJobs(ctx context.Context) {
	if n, err := s.runs.RequeueInterrupted(ctx); err != nil {
		s.logger.Warn("failed to requeue interrupted timetable runs", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("interrupted timetable runs requeued", zap.Int64("count", n))
	}
	pending, err := s.runs.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued timetable runs", zap.Error(err))
		return
	}
	for _, run := range pending {
		if err := s.queue.TryEnqueue(jobs.Job{ID: run.ID, Type: JobTypeTimetable}); err != nil {
			s.logger.Warn("failed to requeue pending run", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	if len(pending) > 0 {
		s.logger.Info("recovered queued timetable runs", zap.Int("count", len(pending)))
	}
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *TimetableJobService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupExpired(ctx)
			}
		}
	}()
}

func (s *TimetableJobService) cleanupExpired(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	runs, err := s.runs.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		s.logger.Warn("cleanup list failed", zap.Error(err))
		return
	}
	for _, run := range runs {
		token := extractToken(*run.ResultURL)
		if token == "" {
			continue
		}
		grant, err := s.exporter.ParseToken(token, true)
		if err != nil {
			continue
		}
		if err := s.exporter.Delete(grant.Path); err != nil {
			s.logger.Warn("cleanup delete failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	removed, err := s.exporter.Cleanup(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("filesystem cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("expired timetable files removed", zap.Int("count", len(removed)))
	}
}

func extractToken(url string) string {
	if url == "" {
		return ""
	}
	parts := strings.Split(url, "/")
	return parts[len(parts)-1]
}

// TimetableWorker bridges queue jobs to ingest, placement and export.
type TimetableWorker struct {
	runs       timetableRunStore
	uploads    uploadStorage
	timetables *TimetableService
	exporter   exportGenerator
	logger     *zap.Logger
	maxRetries int
}

// NewTimetableWorker constructs a worker. maxRetries must match the queue's retry budget.
func NewTimetableWorker(runs timetableRunStore, uploads uploadStorage, timetables *TimetableService, exporter exportGenerator, maxRetries int, logger *zap.Logger) *TimetableWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &TimetableWorker{
		runs:       runs,
		uploads:    uploads,
		timetables: timetables,
		exporter:   exporter,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// permanentError marks failures that a retry cannot fix, such as an unreadable sheet.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Handle processes a queue job. Permanent failures mark the run FAILED at once and
// are not returned to the queue; transient ones are retried until the budget is spent.
func (w *TimetableWorker) Handle(ctx context.Context, job jobs.Job) error {
	run, err := w.runs.GetByID(ctx, job.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			w.logger.Warn("dropping job for unknown run", zap.String("run_id", job.ID))
			return nil
		}
		return err
	}
	if run.Status == models.RunStatusFinished || run.Status == models.RunStatusFailed {
		return nil
	}

	processing := models.RunStatusProcessing
	if err := w.setProgress(ctx, run.ID, &processing, 10); err != nil {
		return err
	}

	if err := w.process(ctx, run); err != nil {
		var permanent permanentError
		final := errors.As(err, &permanent) || job.Attempt+1 >= w.maxRetries
		w.fail(ctx, run, err, final)
		if final {
			w.timetables.metrics.RecordFailedRun(run.Source)
			w.removeUpload(run)
			if errors.As(err, &permanent) {
				return nil
			}
		}
		return err
	}
	w.removeUpload(run)
	return nil
}

func (w *TimetableWorker) process(ctx context.Context, run *models.TimetableRun) error {
	path, err := w.uploads.Path(run.Params.UploadPath)
	if err != nil {
		return permanentError{err}
	}
	demand, report, err := ingest.LoadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return permanentError{fmt.Errorf("uploaded sheet is missing: %w", err)}
		}
		return permanentError{err}
	}
	if err := demand.Validate(); err != nil {
		return permanentError{err}
	}
	if err := w.setProgress(ctx, run.ID, nil, 30); err != nil {
		return err
	}

	space, err := w.timetables.SlotSpace(run.Params.Days, run.Params.PeriodsPerDay)
	if err != nil {
		return permanentError{err}
	}
	placement, err := w.timetables.Place(ctx, demand, space, run.Source)
	if err != nil {
		return err
	}
	warnings := append(append([]string{}, report.Warnings...), placement.Anomalies...)
	for _, row := range report.DroppedRows {
		warnings = append(warnings, fmt.Sprintf("row %q dropped: not a single-section class", row))
	}
	if err := w.timetables.StoreResult(ctx, run.ID, placement, warnings); err != nil {
		return err
	}
	if err := w.setProgress(ctx, run.ID, nil, 70); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, run, placement)
	if err != nil {
		return err
	}

	finished := models.RunStatusFinished
	progress := 100
	now := time.Now().UTC()
	url := result.URL
	clear := ""
	if err := w.runs.Update(ctx, run.ID, repository.UpdateTimetableRunParams{
		Status:       &finished,
		Progress:     &progress,
		ResultURL:    &url,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		w.logger.Warn("failed to mark run finished", zap.String("run_id", run.ID), zap.Error(err))
		return err
	}
	w.logger.Info("timetable run finished",
		zap.String("run_id", run.ID),
		zap.Int("assignments", len(placement.Result.Assignments)),
		zap.Int("unscheduled", placement.Result.UnscheduledTotal()),
	)
	return nil
}

func (w *TimetableWorker) setProgress(ctx context.Context, id string, status *models.RunStatus, progress int) error {
	return w.runs.Update(ctx, id, repository.UpdateTimetableRunParams{Status: status, Progress: &progress})
}

func (w *TimetableWorker) fail(ctx context.Context, run *models.TimetableRun, cause error, final bool) {
	msg := cause.Error()
	if final {
		failed := models.RunStatusFailed
		progress := 100
		now := time.Now().UTC()
		if err := w.runs.Update(ctx, run.ID, repository.UpdateTimetableRunParams{
			Status:       &failed,
			Progress:     &progress,
			ErrorMessage: &msg,
			FinishedAt:   &now,
		}); err != nil {
			w.logger.Warn("failed to mark run failed", zap.String("run_id", run.ID), zap.Error(err))
		}
		w.logger.Error("timetable run failed", zap.String("run_id", run.ID), zap.Error(cause))
		return
	}
	queued := models.RunStatusQueued
	reset := 0
	if err := w.runs.Update(ctx, run.ID, repository.UpdateTimetableRunParams{
		Status:       &queued,
		Progress:     &reset,
		ErrorMessage: &msg,
	}); err != nil {
		w.logger.Warn("failed to mark run queued", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (w *TimetableWorker) removeUpload(run *models.TimetableRun) {
	if run.Params.UploadPath == "" {
		return
	}
	if err := w.uploads.Delete(run.Params.UploadPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Warn("failed to remove uploaded sheet", zap.String("run_id", run.ID), zap.Error(err))
	}
}
