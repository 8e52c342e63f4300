package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RunSource records how a timetable run was requested.
type RunSource string

const (
	RunSourceAPI    RunSource = "api"
	RunSourceUpload RunSource = "upload"
	RunSourceCLI    RunSource = "cli"
)

// Valid reports whether the source is known.
func (s RunSource) Valid() bool {
	return s == RunSourceAPI || s == RunSourceUpload || s == RunSourceCLI
}

// OutputFormat enumerates the rendered artifact formats.
type OutputFormat string

const (
	OutputFormatXLSX OutputFormat = "xlsx"
	OutputFormatCSV  OutputFormat = "csv"
	OutputFormatPDF  OutputFormat = "pdf"
)

// Valid reports whether the format is supported.
func (f OutputFormat) Valid() bool {
	switch f {
	case OutputFormatXLSX, OutputFormatCSV, OutputFormatPDF:
		return true
	default:
		return false
	}
}

// ContentType returns the MIME type served for downloads in this format.
func (f OutputFormat) ContentType() string {
	switch f {
	case OutputFormatCSV:
		return "text/csv"
	case OutputFormatPDF:
		return "application/pdf"
	default:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
}

// RunStatus captures background run lifecycle states.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "QUEUED"
	RunStatusProcessing RunStatus = "PROCESSING"
	RunStatusFinished   RunStatus = "FINISHED"
	RunStatusFailed     RunStatus = "FAILED"
)

// Valid reports whether the status is a known lifecycle state.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusQueued, RunStatusProcessing, RunStatusFinished, RunStatusFailed:
		return true
	default:
		return false
	}
}

// TimetableRun is the persisted metadata of one placement run.
type TimetableRun struct {
	ID           string     `db:"id" json:"id"`
	Source       RunSource  `db:"source" json:"source"`
	Status       RunStatus  `db:"status" json:"status"`
	Progress     int        `db:"progress" json:"progress"`
	Fingerprint  string     `db:"fingerprint" json:"fingerprint"`
	Params       RunParams  `db:"params" json:"params"`
	Roster       RunRoster  `db:"roster" json:"roster"`
	Assignments  int        `db:"assignments" json:"assignments"`
	Unscheduled  int        `db:"unscheduled" json:"unscheduled"`
	Anomalies    int        `db:"anomalies" json:"anomalies"`
	ResultURL    *string    `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string     `db:"created_by" json:"created_by"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
}

// RunParams stores the inputs a run was created with, persisted as JSON.
type RunParams struct {
	Days          []string     `json:"days"`
	PeriodsPerDay int          `json:"periodsPerDay"`
	Format        OutputFormat `json:"format,omitempty"`
	Filename      string       `json:"filename,omitempty"`
	UploadPath    string       `json:"uploadPath,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p RunParams) Value() (driver.Value, error) {
	return marshalJSONColumn(p, "run params")
}

// Scan unmarshals JSON payloads into the params struct.
func (p *RunParams) Scan(value interface{}) error {
	*p = RunParams{}
	return unmarshalJSONColumn(value, p, "run params")
}

// RunRoster lists the teachers and classes that had demand in the run.
type RunRoster struct {
	Teachers []string `json:"teachers"`
	Classes  []string `json:"classes"`
	Warnings []string `json:"warnings,omitempty"`
}

// Value marshals the roster to JSON for persistence.
func (r RunRoster) Value() (driver.Value, error) {
	if r.Teachers == nil {
		r.Teachers = []string{}
	}
	if r.Classes == nil {
		r.Classes = []string{}
	}
	return marshalJSONColumn(r, "run roster")
}

// Scan unmarshals JSON payloads into the roster.
func (r *RunRoster) Scan(value interface{}) error {
	*r = RunRoster{}
	return unmarshalJSONColumn(value, r, "run roster")
}

// TimetableRunFilter narrows run listings.
type TimetableRunFilter struct {
	Status   *RunStatus
	Source   *RunSource
	Page     int
	PageSize int
}

// TimetableAssignment is one persisted placed period.
type TimetableAssignment struct {
	RunID     string `db:"run_id" json:"-"`
	TeacherID string `db:"teacher_id" json:"teacher"`
	ClassID   string `db:"class_id" json:"class"`
	DayIndex  int    `db:"day_index" json:"day"`
	Period    int    `db:"period_index" json:"period"`
}

// TimetableDeficit is one persisted unscheduled pair, kept in placement order by Seq.
type TimetableDeficit struct {
	RunID       string `db:"run_id" json:"-"`
	Seq         int    `db:"seq" json:"-"`
	TeacherID   string `db:"teacher_id" json:"teacher"`
	ClassID     string `db:"class_id" json:"class"`
	Required    int    `db:"required" json:"required"`
	Scheduled   int    `db:"scheduled" json:"scheduled"`
	Unscheduled int    `db:"unscheduled" json:"unscheduled"`
}

func marshalJSONColumn(v interface{}, label string) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", label, err)
	}
	return string(data), nil
}

func unmarshalJSONColumn(value interface{}, dest interface{}, label string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, label)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", label, err)
	}
	return nil
}
