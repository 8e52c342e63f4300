package dto

import (
	"time"

	"github.com/Anuj-afk/TimeTable-Generator/internal/models"
	"github.com/Anuj-afk/TimeTable-Generator/internal/scheduler"
)

// RequirementRequest is one class a teacher owes periods to.
type RequirementRequest struct {
	Class    string `json:"class" validate:"required,max=64"`
	Required int    `json:"required"`
}

// GenerateTimetableRequest captures POST /timetables/generate payload.
type GenerateTimetableRequest struct {
	Demand        map[string][]RequirementRequest `json:"demand" validate:"required,min=1,dive,dive"`
	Days          []string                        `json:"days,omitempty" validate:"omitempty,max=7,dive,required,max=32"`
	PeriodsPerDay int                             `json:"periodsPerDay,omitempty" validate:"omitempty,gt=0,lte=16"`
	Persist       bool                            `json:"persist"`
}

// UploadTimetableRequest carries the multipart form fields sent with a requirements sheet.
type UploadTimetableRequest struct {
	Format        models.OutputFormat `form:"format"`
	Days          []string            `form:"days" validate:"omitempty,max=7,dive,required,max=32"`
	PeriodsPerDay int                 `form:"periodsPerDay" validate:"omitempty,gt=0,lte=16"`
}

// TimetableRunQuery captures GET /timetables/runs filters.
type TimetableRunQuery struct {
	Status   string `form:"status"`
	Source   string `form:"source"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}

// DayRow is one weekday of a grid with a cell per period.
type DayRow struct {
	Day     string   `json:"day"`
	Periods []string `json:"periods"`
}

// TimetableGrids holds every teacher and class grid keyed by owner.
type TimetableGrids struct {
	Teachers map[string][]DayRow `json:"teachers"`
	Classes  map[string][]DayRow `json:"classes"`
}

// NoTimetablesMessage accompanies empty grids when no run has finished yet.
const NoTimetablesMessage = "No timetable data available. Please generate timetables first."

// LatestTimetableGrids carries the grids of the newest finished run.
type LatestTimetableGrids struct {
	RunID      string     `json:"runId,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	TimetableGrids
	Message string `json:"message,omitempty"`
}

// TimetableStats aggregates the size of a run.
type TimetableStats struct {
	Teachers    int `json:"teachers"`
	Classes     int `json:"classes"`
	Slots       int `json:"slots"`
	Required    int `json:"required"`
	Assignments int `json:"assignments"`
	Unscheduled int `json:"unscheduled"`
	Anomalies   int `json:"anomalies"`
}

// TimetableResponse is returned by synchronous generation.
type TimetableResponse struct {
	RunID       string                    `json:"runId,omitempty"`
	Fingerprint string                    `json:"fingerprint"`
	Cached      bool                      `json:"cached"`
	Days        []string                  `json:"days"`
	Periods     []string                  `json:"periods"`
	Stats       TimetableStats            `json:"stats"`
	Timetables  TimetableGrids            `json:"timetables"`
	Summary     []scheduler.SummaryRecord `json:"summary"`
	Skipped     []scheduler.Entry         `json:"skipped,omitempty"`
}

// TimetableJobResponse is returned after an upload is queued.
type TimetableJobResponse struct {
	ID       string           `json:"id"`
	Status   models.RunStatus `json:"status"`
	Progress int              `json:"progress"`
}

// TimetableRunResponse exposes run metadata and progress.
type TimetableRunResponse struct {
	ID            string              `json:"id"`
	Source        models.RunSource    `json:"source"`
	Status        models.RunStatus    `json:"status"`
	Progress      int                 `json:"progress"`
	Fingerprint   string              `json:"fingerprint,omitempty"`
	Days          []string            `json:"days"`
	PeriodsPerDay int                 `json:"periodsPerDay"`
	Format        models.OutputFormat `json:"format,omitempty"`
	Filename      string              `json:"filename,omitempty"`
	Teachers      int                 `json:"teachers"`
	Classes       int                 `json:"classes"`
	Warnings      []string            `json:"warnings,omitempty"`
	Assignments   int                 `json:"assignments"`
	Unscheduled   int                 `json:"unscheduled"`
	Anomalies     int                 `json:"anomalies"`
	ResultURL     *string             `json:"resultUrl,omitempty"`
	Error         *string             `json:"error,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	FinishedAt    *time.Time          `json:"finishedAt,omitempty"`
}

// NewTimetableRunResponse maps a stored run to its API shape.
func NewTimetableRunResponse(run models.TimetableRun) TimetableRunResponse {
	resp := TimetableRunResponse{
		ID:            run.ID,
		Source:        run.Source,
		Status:        run.Status,
		Progress:      run.Progress,
		Fingerprint:   run.Fingerprint,
		Days:          run.Params.Days,
		PeriodsPerDay: run.Params.PeriodsPerDay,
		Format:        run.Params.Format,
		Filename:      run.Params.Filename,
		Teachers:      len(run.Roster.Teachers),
		Classes:       len(run.Roster.Classes),
		Warnings:      run.Roster.Warnings,
		Assignments:   run.Assignments,
		Unscheduled:   run.Unscheduled,
		Anomalies:     run.Anomalies,
		ResultURL:     run.ResultURL,
		CreatedAt:     run.CreatedAt,
		FinishedAt:    run.FinishedAt,
	}
	if run.ErrorMessage != nil && *run.ErrorMessage != "" {
		resp.Error = run.ErrorMessage
	}
	return resp
}

// NewTimetableGrids flattens scheduler grids into day rows keyed by owner.
func NewTimetableGrids(teachers, classes []scheduler.Grid) TimetableGrids {
	return TimetableGrids{Teachers: dayRows(teachers), Classes: dayRows(classes)}
}

func dayRows(grids []scheduler.Grid) map[string][]DayRow {
	out := make(map[string][]DayRow, len(grids))
	for _, g := range grids {
		rows := make([]DayRow, len(g.Days))
		for i, day := range g.Days {
			periods := make([]string, len(g.Cells[i]))
			copy(periods, g.Cells[i])
			rows[i] = DayRow{Day: day, Periods: periods}
		}
		out[g.Owner] = rows
	}
	return out
}
