// Package ingest turns a teacher x class requirements sheet into scheduler demand.
//
// The sheet's first column names the class on each row, whatever its header says.
// Every other column is a teacher and each cell the weekly periods that teacher owes the class.
package ingest

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Anuj-afk/TimeTable-Generator/internal/scheduler"
)

var (
	// ErrNoHeader is returned for a sheet without a header row.
	ErrNoHeader = errors.New("sheet has no header row")
	// ErrUnsupportedFormat is returned for extensions other than .xlsx and .csv.
	ErrUnsupportedFormat = errors.New("unsupported input format")
)

var classPattern = regexp.MustCompile(`^[0-9]{1,2}[A-F]$`)

// Report describes what ingest kept and dropped.
type Report struct {
	Teachers    []string `json:"teachers"`
	Classes     []string `json:"classes"`
	DroppedRows []string `json:"droppedRows,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
}

// NormalizeClass trims, upper-cases and removes inner spaces: " 10 a " becomes "10A".
func NormalizeClass(raw string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(raw)), " ", "")
}

// IsSingleSection reports whether a normalized class id is one or two digits and a section A-F.
func IsSingleSection(class string) bool {
	return classPattern.MatchString(class)
}

// TeacherColumns trims header names and suffixes repeats with _2, _3, ... so every column is unique.
func TeacherColumns(headers []string) []string {
	seen := make(map[string]struct{}, len(headers))
	out := make([]string, 0, len(headers))
	for _, raw := range headers {
		name := strings.TrimSpace(raw)
		if name == "" {
			name = "Teacher"
		}
		if _, dup := seen[name]; dup {
			suffix := 2
			candidate := fmt.Sprintf("%s_%d", name, suffix)
			for {
				if _, taken := seen[candidate]; !taken {
					break
				}
				suffix++
				candidate = fmt.Sprintf("%s_%d", name, suffix)
			}
			name = candidate
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// ParsePeriods coerces a cell to a number. Blank, non-numeric and non-finite cells are missing.
func ParsePeriods(raw string) (float64, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FromRows builds demand from a header row followed by data rows.
func FromRows(rows [][]string) (scheduler.Demand, Report, error) {
	var report Report
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, report, ErrNoHeader
	}
	teachers := TeacherColumns(rows[0][1:])
	report.Teachers = teachers

	demand := make(scheduler.Demand)
	seenClass := make(map[string]int)
	for i, row := range rows[1:] {
		line := i + 2
		if len(row) == 0 {
			continue
		}
		class := NormalizeClass(row[0])
		if !IsSingleSection(class) {
			if class != "" {
				report.DroppedRows = append(report.DroppedRows, class)
			}
			continue
		}

		values := make([]float64, len(teachers))
		present := make([]bool, len(teachers))
		hasValue := false
		for col := range teachers {
			if col+1 >= len(row) {
				break
			}
			values[col], present[col] = ParsePeriods(row[col+1])
			hasValue = hasValue || present[col]
		}
		if !hasValue {
			continue
		}

		if first, dup := seenClass[class]; dup {
			report.Warnings = append(report.Warnings, fmt.Sprintf("row %d repeats class %s from row %d and was ignored", line, class, first))
			continue
		}
		seenClass[class] = line
		report.Classes = append(report.Classes, class)

		for col, teacher := range teachers {
			if !present[col] || values[col] <= 0 {
				continue
			}
			periods := int(values[col])
			if periods <= 0 {
				report.Warnings = append(report.Warnings, fmt.Sprintf("row %d: %s has %.2f periods for %s, below one whole period", line, teacher, values[col], class))
				continue
			}
			demand[teacher] = append(demand[teacher], scheduler.Requirement{ClassID: class, Required: periods})
		}
	}
	return demand, report, nil
}
