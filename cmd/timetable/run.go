package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/Anuj-afk/TimeTable-Generator/internal/ingest"
	"github.com/Anuj-afk/TimeTable-Generator/internal/models"
	"github.com/Anuj-afk/TimeTable-Generator/internal/preview"
	"github.com/Anuj-afk/TimeTable-Generator/internal/repository"
	"github.com/Anuj-afk/TimeTable-Generator/internal/service"
	"github.com/Anuj-afk/TimeTable-Generator/pkg/config"
	"github.com/Anuj-afk/TimeTable-Generator/pkg/database"
)

const defaultOutput = "generated_timetables.xlsx"

// CLI is the command line of the timetable tool.
type CLI struct {
	Version kong.VersionFlag

	Input  string `arg:"" optional:"" default:"Book1.xlsx" help:"Requirements sheet (.xlsx or .csv)." type:"path"`
	Output string `arg:"" optional:"" default:"generated_timetables.xlsx" help:"Destination file."`

	Days     []string `help:"Teaching days in display order." sep:","`
	Periods  int      `help:"Periods per day." default:"0"`
	Format   string   `help:"Output format." enum:"xlsx,csv,pdf" default:"xlsx"`
	Preview  bool     `help:"Print every grid and the summary to the console."`
	Store    string   `help:"Record the run in this SQLite database." type:"path"`
	LogLevel string   `help:"Log level." enum:"debug,info,warn,error" default:"info"`

	stdout io.Writer `kong:"-"`
}

// Run loads the sheet, places the demand and writes the rendered timetables.
func (c *CLI) Run(logr *zap.Logger) error {
	ctx := context.Background()
	out := c.stdout
	if out == nil {
		out = os.Stdout
	}

	demand, report, err := ingest.LoadFile(c.Input)
	if err != nil {
		return fmt.Errorf("load %s: %w", c.Input, err)
	}
	for _, w := range report.Warnings {
		logr.Warn("ingest warning", zap.String("detail", w))
	}
	if len(report.DroppedRows) > 0 {
		logr.Info("rows skipped", zap.Strings("rows", report.DroppedRows))
	}
	logr.Info("requirements loaded",
		zap.String("input", c.Input),
		zap.Int("teachers", len(report.Teachers)),
		zap.Int("classes", len(report.Classes)),
	)

	timetables, closeStore, err := c.timetableService(ctx, logr)
	if err != nil {
		return err
	}
	defer closeStore()

	space, err := timetables.SlotSpace(c.Days, c.Periods)
	if err != nil {
		return err
	}
	placement, err := timetables.Place(ctx, demand, space, models.RunSourceCLI)
	if err != nil {
		return fmt.Errorf("place timetables: %w", err)
	}

	format := models.OutputFormat(c.Format)
	if c.Store != "" {
		run, err := timetables.Record(ctx, placement, models.RunSourceCLI, models.RunParams{
			Days:          space.Days(),
			PeriodsPerDay: space.PeriodsPerDay(),
			Format:        format,
			Filename:      filepath.Base(c.Input),
		}, report.Warnings, "cli")
		if err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		logr.Info("run recorded", zap.String("run_id", run.ID), zap.String("store", c.Store))
	}

	exporter := service.NewExportService(nil, nil, service.ExportConfig{}, logr, nil, nil, nil)
	rendered, err := exporter.Render(placement.Result, placement.Summary, format, service.CSVViewAssignments)
	if err != nil {
		return fmt.Errorf("render %s: %w", format, err)
	}
	output := outputPath(c.Output, format)
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(output, rendered.Payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", output, err)
	}

	if c.Preview {
		text, err := preview.Result(placement.Result)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, text)
	}

	logr.Info("timetables written",
		zap.String("output", output),
		zap.Int("assignments", len(placement.Result.Assignments)),
		zap.Int("unscheduled", placement.Result.UnscheduledTotal()),
		zap.Int("anomalies", len(placement.Anomalies)),
	)
	return nil
}

func (c *CLI) timetableService(ctx context.Context, logr *zap.Logger) (*service.TimetableService, func(), error) {
	cfg := service.TimetableServiceConfig{Days: c.Days, PeriodsPerDay: c.Periods}
	if c.Store == "" {
		return service.NewTimetableService(nil, nil, nil, nil, nil, logr, cfg), func() {}, nil
	}

	db, err := database.NewSQLite(c.Store)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx, db, config.DriverSQLite); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate store: %w", err)
	}
	svc := service.NewTimetableService(
		repository.NewTimetableRunRepository(db),
		repository.NewTimetableResultRepository(db),
		nil, nil, nil, logr, cfg,
	)
	return svc, func() { _ = db.Close() }, nil
}

// outputPath swaps the default workbook extension for the chosen format.
func outputPath(output string, format models.OutputFormat) string {
	ext := filepath.Ext(output)
	if strings.EqualFold(ext, "."+string(format)) {
		return output
	}
	if output == defaultOutput || ext == "" {
		return strings.TrimSuffix(output, ext) + "." + string(format)
	}
	return output
}
