package export

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// MaxSheetNameLength is the longest sheet name spreadsheet applications accept.
const MaxSheetNameLength = 31

var sheetNameReplacer = strings.NewReplacer(
	":", "_", "\\", "_", "/", "_", "?", "_", "*", "_", "[", "(", "]", ")",
)

// Sheet is one named table in a workbook. When IndexHeader is set the first
// column of every row is rendered in bold, matching a labelled row index.
type Sheet struct {
	Name        string
	Fallback    string
	Data        Dataset
	IndexHeader bool
}

// WorkbookExporter renders sheets into an .xlsx workbook.
type WorkbookExporter struct{}

// NewWorkbookExporter constructs a workbook exporter.
func NewWorkbookExporter() *WorkbookExporter {
	return &WorkbookExporter{}
}

// Render writes every sheet in order and returns the encoded workbook.
func (e *WorkbookExporter) Render(sheets []Sheet) ([]byte, error) {
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook requires at least one sheet")
	}
	book := excelize.NewFile()
	defer book.Close() //nolint:errcheck

	bold, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	defaultSheet := book.GetSheetName(0)
	names := SheetNames(sheets)
	for i, sheet := range sheets {
		name := names[i]
		if i == 0 {
			if err := book.SetSheetName(defaultSheet, name); err != nil {
				return nil, fmt.Errorf("rename sheet %s: %w", name, err)
			}
		} else if _, err := book.NewSheet(name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", name, err)
		}
		if err := writeSheet(book, name, sheet, bold); err != nil {
			return nil, err
		}
	}
	book.SetActiveSheet(0)

	buf, err := book.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(book *excelize.File, name string, sheet Sheet, bold int) error {
	headers := make([]interface{}, len(sheet.Data.Headers))
	for i, h := range sheet.Data.Headers {
		headers[i] = h
	}
	if err := book.SetSheetRow(name, "A1", &headers); err != nil {
		return fmt.Errorf("write headers on %s: %w", name, err)
	}
	if len(sheet.Data.Headers) > 0 {
		last, err := excelize.CoordinatesToCellName(len(sheet.Data.Headers), 1)
		if err != nil {
			return err
		}
		if err := book.SetCellStyle(name, "A1", last, bold); err != nil {
			return fmt.Errorf("style headers on %s: %w", name, err)
		}
	}

	for r, row := range sheet.Data.Rows {
		values := make([]interface{}, len(sheet.Data.Headers))
		for i, h := range sheet.Data.Headers {
			values[i] = row[h]
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := book.SetSheetRow(name, cell, &values); err != nil {
			return fmt.Errorf("write row %d on %s: %w", r+2, name, err)
		}
		if sheet.IndexHeader {
			if err := book.SetCellStyle(name, cell, cell, bold); err != nil {
				return fmt.Errorf("style row %d on %s: %w", r+2, name, err)
			}
		}
	}
	return nil
}

// SheetNames returns the final name for every sheet: invalid characters replaced,
// empty names swapped for the fallback, truncated to MaxSheetNameLength and made
// unique (case-insensitively) with a numeric suffix.
func SheetNames(sheets []Sheet) []string {
	taken := make(map[string]struct{}, len(sheets))
	names := make([]string, len(sheets))
	for i, sheet := range sheets {
		base := SanitizeSheetName(sheet.Name, sheet.Fallback)
		name := base
		for n := 2; ; n++ {
			if _, dup := taken[strings.ToLower(name)]; !dup {
				break
			}
			suffix := fmt.Sprintf("~%d", n)
			name = truncateRunes(base, MaxSheetNameLength-len(suffix)) + suffix
		}
		taken[strings.ToLower(name)] = struct{}{}
		names[i] = name
	}
	return names
}

// SanitizeSheetName applies the character and length rules to a single name.
func SanitizeSheetName(name, fallback string) string {
	clean := strings.Trim(strings.TrimSpace(sheetNameReplacer.Replace(name)), "'")
	if clean == "" {
		clean = fallback
	}
	if clean == "" {
		clean = "Sheet"
	}
	return truncateRunes(clean, MaxSheetNameLength)
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
