package export

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/gocarina/gocsv"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter renders typed record slices into CSV bytes using their `csv` struct tags.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for a pointer to a slice of tagged structs.
// An empty slice still yields the header line.
func (e *CSVExporter) Render(records interface{}) ([]byte, error) {
	value := reflect.ValueOf(records)
	if value.Kind() != reflect.Ptr || value.Elem().Kind() != reflect.Slice {
		return nil, fmt.Errorf("csv requires a pointer to a slice, got %T", records)
	}
	buf := &bytes.Buffer{}
	if err := gocsv.Marshal(records, buf); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}
