package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Anuj-afk/TimeTable-Generator/internal/models"
	"github.com/Anuj-afk/TimeTable-Generator/internal/scheduler"
	"github.com/Anuj-afk/TimeTable-Generator/pkg/export"
	"github.com/Anuj-afk/TimeTable-Generator/pkg/storage"
)

// Summary sheet columns, in workbook order.
var summaryHeaders = []string{"Type", "Teacher", "Value", "Class", "Required", "Scheduled", "Unscheduled", "Message"}

// CSVView selects which rows a CSV export carries.
type CSVView string

const (
	CSVViewAssignments CSVView = "assignments"
	CSVViewSummary     CSVView = "summary"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type workbookRenderer interface {
	Render(sheets []export.Sheet) ([]byte, error)
}

type csvRenderer interface {
	Render(records interface{}) ([]byte, error)
}

type pdfRenderer interface {
	Render(sections []export.Section, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.OutputFormat
	ExpiresAt    time.Time
}

// Rendered is an in-memory export ready to stream.
type Rendered struct {
	Filename    string
	ContentType string
	Payload     []byte
}

type assignmentCSVRow struct {
	Teacher string `csv:"Teacher"`
	Class   string `csv:"Class"`
	Day     string `csv:"Day"`
	Period  string `csv:"Period"`
}

type summaryCSVRow struct {
	Type        string `csv:"Type"`
	Teacher     string `csv:"Teacher"`
	Value       string `csv:"Value"`
	Class       string `csv:"Class"`
	Required    string `csv:"Required"`
	Scheduled   string `csv:"Scheduled"`
	Unscheduled string `csv:"Unscheduled"`
	Message     string `csv:"Message"`
}

// ExportService renders placements into workbooks, CSV and PDF and stores them for download.
type ExportService struct {
	storage  fileStorage
	workbook workbookRenderer
	csv      csvRenderer
	pdf      pdfRenderer
	signer   *storage.SignedURLSigner
	logger   *zap.Logger
	cfg      ExportConfig
	now      func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to the pkg/export defaults.
func NewExportService(store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, workbook workbookRenderer, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if workbook == nil {
		workbook = export.NewWorkbookExporter()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		storage:  store,
		workbook: workbook,
		csv:      csv,
		pdf:      pdf,
		signer:   signer,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Render encodes a placement in the requested format.
func (s *ExportService) Render(result *scheduler.Result, summary []scheduler.SummaryRecord, format models.OutputFormat, view CSVView) (*Rendered, error) {
	if result == nil {
		return nil, fmt.Errorf("result nil")
	}
	var (
		payload []byte
		err     error
	)
	switch format {
	case models.OutputFormatXLSX:
		payload, err = s.workbook.Render(WorkbookSheets(result, summary))
	case models.OutputFormatCSV:
		if view == CSVViewSummary {
			rows := summaryCSVRows(summary)
			payload, err = s.csv.Render(&rows)
		} else {
			rows := assignmentCSVRows(result)
			payload, err = s.csv.Render(&rows)
		}
	case models.OutputFormatPDF:
		payload, err = s.pdf.Render(PDFSections(result, summary), "Weekly Timetables")
	default:
		err = fmt.Errorf("unsupported format %s", format)
	}
	if err != nil {
		return nil, err
	}
	return &Rendered{
		Filename:    s.buildFilename("", format),
		ContentType: format.ContentType(),
		Payload:     payload,
	}, nil
}

// Generate renders the placement of run, stores it and signs a download URL.
func (s *ExportService) Generate(ctx context.Context, run *models.TimetableRun, placement *Placement) (*ExportResult, error) {
	if run == nil || placement == nil {
		return nil, fmt.Errorf("run and placement are required")
	}
	format := run.Params.Format
	if format == "" {
		format = models.OutputFormatXLSX
	}
	rendered, err := s.Render(placement.Result, placement.Summary, format, CSVViewAssignments)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	relPath, err := s.storage.Save(s.buildFilename(run.ID, format), rendered.Payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(run.ID, relPath)
	if err != nil {
		return nil, err
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("timetable export stored", zap.String("run_id", run.ID), zap.String("path", relPath), zap.Int("bytes", len(rendered.Payload)))

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/export/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (storage.Grant, error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(runID string, format models.OutputFormat) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	if runID == "" {
		return fmt.Sprintf("generated_timetables_%s.%s", timestamp, format)
	}
	short := runID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("generated_timetables_%s_%s.%s", timestamp, short, format)
}

// WorkbookSheets lays out one sheet per teacher, one per class, then the summary.
func WorkbookSheets(result *scheduler.Result, summary []scheduler.SummaryRecord) []export.Sheet {
	teachers := result.TeacherGrids()
	classes := result.ClassGrids()
	sheets := make([]export.Sheet, 0, len(teachers)+len(classes)+1)
	for _, g := range teachers {
		sheets = append(sheets, export.Sheet{Name: g.Owner, Fallback: "Teacher", Data: gridDataset(g, ""), IndexHeader: true})
	}
	for _, g := range classes {
		sheets = append(sheets, export.Sheet{Name: g.Owner, Fallback: "Class", Data: gridDataset(g, ""), IndexHeader: true})
	}
	sheets = append(sheets, export.Sheet{Name: "Summary", Data: summaryDataset(summary)})
	return sheets
}

// PDFSections renders every grid on its own page followed by the summary.
func PDFSections(result *scheduler.Result, summary []scheduler.SummaryRecord) []export.Section {
	teachers := result.TeacherGrids()
	classes := result.ClassGrids()
	sections := make([]export.Section, 0, len(teachers)+len(classes)+1)
	for _, g := range teachers {
		sections = append(sections, export.Section{Title: "Teacher " + g.Owner, Data: gridDataset(g, "Day")})
	}
	for _, g := range classes {
		sections = append(sections, export.Section{Title: "Class " + g.Owner, Data: gridDataset(g, "Day")})
	}
	sections = append(sections, export.Section{Title: "Summary", Data: summaryDataset(summary)})
	return sections
}

func gridDataset(g scheduler.Grid, dayHeader string) export.Dataset {
	headers := append([]string{dayHeader}, g.Periods...)
	rows := make([]map[string]string, 0, len(g.Days))
	for i, day := range g.Days {
		row := make(map[string]string, len(headers))
		row[dayHeader] = day
		for p, label := range g.Periods {
			row[label] = g.Cells[i][p]
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func summaryDataset(records []scheduler.SummaryRecord) export.Dataset {
	rows := make([]map[string]string, 0, len(records))
	for _, r := range summaryCSVRows(records) {
		rows = append(rows, map[string]string{
			"Type":        r.Type,
			"Teacher":     r.Teacher,
			"Value":       r.Value,
			"Class":       r.Class,
			"Required":    r.Required,
			"Scheduled":   r.Scheduled,
			"Unscheduled": r.Unscheduled,
			"Message":     r.Message,
		})
	}
	return export.Dataset{Headers: summaryHeaders, Rows: rows}
}

func summaryCSVRows(records []scheduler.SummaryRecord) []summaryCSVRow {
	rows := make([]summaryCSVRow, 0, len(records))
	for _, r := range records {
		row := summaryCSVRow{Type: string(r.Kind)}
		switch r.Kind {
		case scheduler.KindTeacherLoad:
			row.Teacher = r.Teacher
			row.Value = strconv.Itoa(r.Value)
		case scheduler.KindUnscheduled:
			row.Teacher = r.Teacher
			row.Class = r.Class
			row.Required = strconv.Itoa(r.Required)
			row.Scheduled = strconv.Itoa(r.Scheduled)
			row.Unscheduled = strconv.Itoa(r.Unscheduled)
		default:
			row.Message = r.Message
		}
		rows = append(rows, row)
	}
	return rows
}

func assignmentCSVRows(result *scheduler.Result) []assignmentCSVRow {
	rows := make([]assignmentCSVRow, 0, len(result.Assignments))
	for _, a := range result.Assignments {
		rows = append(rows, assignmentCSVRow{
			Teacher: a.Teacher,
			Class:   a.Class,
			Day:     result.Space.DayName(a.Slot.Day),
			Period:  result.Space.PeriodLabel(a.Slot.Period),
		})
	}
	return rows
}
