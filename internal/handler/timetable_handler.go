package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Anuj-afk/TimeTable-Generator/internal/dto"
	"github.com/Anuj-afk/TimeTable-Generator/internal/middleware"
	"github.com/Anuj-afk/TimeTable-Generator/internal/models"
	"github.com/Anuj-afk/TimeTable-Generator/internal/scheduler"
	"github.com/Anuj-afk/TimeTable-Generator/internal/service"
	appErrors "github.com/Anuj-afk/TimeTable-Generator/pkg/errors"
	"github.com/Anuj-afk/TimeTable-Generator/pkg/response"
)

type timetableService interface {
	Generate(ctx context.Context, req dto.GenerateTimetableRequest, actorID string) (*dto.TimetableResponse, error)
	Compute(ctx context.Context, req dto.GenerateTimetableRequest) (*service.Placement, error)
	GetRun(ctx context.Context, id string) (*dto.TimetableRunResponse, error)
	ListRuns(ctx context.Context, query dto.TimetableRunQuery) ([]dto.TimetableRunResponse, *models.Pagination, error)
	GetGrids(ctx context.Context, id string) (*dto.TimetableGrids, error)
	LatestGrids(ctx context.Context) (*dto.LatestTimetableGrids, error)
	GetSummary(ctx context.Context, id string) ([]scheduler.SummaryRecord, error)
}

type timetableJobService interface {
	Submit(ctx context.Context, filename string, r io.Reader, req dto.UploadTimetableRequest, actorID string) (*dto.TimetableJobResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.TimetableDownload, error)
}

type timetableRenderer interface {
	Render(result *scheduler.Result, summary []scheduler.SummaryRecord, format models.OutputFormat, view service.CSVView) (*service.Rendered, error)
}

type resultInvalidator interface {
	InvalidateResults(ctx context.Context) error
}

// TimetableHandler exposes timetable generation, upload and download endpoints.
type TimetableHandler struct {
	timetables timetableService
	jobs       timetableJobService
	renderer   timetableRenderer
	cache      resultInvalidator
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(timetables timetableService, jobs timetableJobService, renderer timetableRenderer, cache resultInvalidator) *TimetableHandler {
	return &TimetableHandler{timetables: timetables, jobs: jobs, renderer: renderer, cache: cache}
}

// Generate godoc
// @Summary Generate timetables from a JSON demand
// @Description Places every teacher/class requirement into the weekly grid and returns teacher grids, class grids and the summary. Identical demands are served from cache unless persist is set.
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateTimetableRequest true "Teaching demand"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /timetables/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timetable payload"))
		return
	}
	resp, err := h.timetables.Generate(c.Request.Context(), req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, resp.Cached)
	response.JSON(c, http.StatusOK, resp, nil, middleware.ResponseMeta(c))
}

// Export godoc
// @Summary Generate and download timetables in one call
// @Tags Timetables
// @Accept json
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "xlsx, csv or pdf" default(xlsx)
// @Param view query string false "CSV rows: assignments or summary" default(assignments)
// @Param payload body dto.GenerateTimetableRequest true "Teaching demand"
// @Success 200 {file} binary
// @Failure 400 {object} response.Envelope
// @Router /timetables/export [post]
func (h *TimetableHandler) Export(c *gin.Context) {
	format := models.OutputFormat(strings.ToLower(c.DefaultQuery("format", string(models.OutputFormatXLSX))))
	if !format.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be xlsx, csv or pdf"))
		return
	}
	view := service.CSVView(strings.ToLower(c.DefaultQuery("view", string(service.CSVViewAssignments))))
	if view != service.CSVViewAssignments && view != service.CSVViewSummary {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "view must be assignments or summary"))
		return
	}
	var req dto.GenerateTimetableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid timetable payload"))
		return
	}

	placement, err := h.timetables.Compute(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	rendered, err := h.renderer.Render(placement.Result, placement.Summary, format, view)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable"))
		return
	}
	response.Attachment(c, rendered.Filename, rendered.ContentType, rendered.Payload)
}

// Upload godoc
// @Summary Upload a requirements sheet
// @Description Accepts an .xlsx or .csv sheet (classes in the first column, one column per teacher) and places it in the background.
// @Tags Timetables
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Requirements sheet"
// @Param format formData string false "Output format: xlsx, csv or pdf"
// @Param days formData []string false "Day names" collectionFormat(multi)
// @Param periodsPerDay formData int false "Periods per day"
// @Success 202 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Router /timetables/upload [post]
func (h *TimetableHandler) Upload(c *gin.Context) {
	var req dto.UploadTimetableRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid upload form"))
		return
	}
	req.Format = models.OutputFormat(strings.ToLower(string(req.Format)))
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close() //nolint:errcheck

	resp, err := h.jobs.Submit(c.Request.Context(), fileHeader.Filename, src, req, actorID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, resp)
}

// ListRuns godoc
// @Summary List timetable runs
// @Tags Timetables
// @Produce json
// @Param status query string false "QUEUED, PROCESSING, FINISHED or FAILED"
// @Param source query string false "api, upload or cli"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /timetables/runs [get]
func (h *TimetableHandler) ListRuns(c *gin.Context) {
	var query dto.TimetableRunQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid query parameters"))
		return
	}
	runs, pagination, err := h.timetables.ListRuns(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, runs, pagination)
}

// GetRun godoc
// @Summary Get timetable run status
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/runs/{id} [get]
func (h *TimetableHandler) GetRun(c *gin.Context) {
	run, err := h.timetables.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// GetGrids godoc
// @Summary Get the teacher and class grids of a finished run
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables/runs/{id}/grids [get]
func (h *TimetableHandler) GetGrids(c *gin.Context) {
	grids, err := h.timetables.GetGrids(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grids, nil)
}

// LatestGrids godoc
// @Summary Get the grids of the most recently finished run
// @Description Empty grids and a message are returned when no run has finished yet
// @Tags Timetables
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /timetables/grids/latest [get]
func (h *TimetableHandler) LatestGrids(c *gin.Context) {
	latest, err := h.timetables.LatestGrids(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, latest, nil)
}

// GetSummary godoc
// @Summary Get the summary records of a finished run
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /timetables/runs/{id}/summary [get]
func (h *TimetableHandler) GetSummary(c *gin.Context) {
	records, err := h.timetables.GetSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// InvalidateCache godoc
// @Summary Drop every cached generation response
// @Tags Timetables
// @Success 204
// @Router /timetables/cache [delete]
func (h *TimetableHandler) InvalidateCache(c *gin.Context) {
	if h.cache == nil {
		response.NoContent(c)
		return
	}
	if err := h.cache.InvalidateResults(c.Request.Context()); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to invalidate cache"))
		return
	}
	response.NoContent(c)
}

// Download godoc
// @Summary Download a generated timetable via signed token
// @Tags Timetables
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /export/{token} [get]
func (h *TimetableHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	download, err := h.jobs.ResolveDownload(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}
	response.Stream(c, download.Filename, download.Format.ContentType(), info.Size(), download.File)
}
