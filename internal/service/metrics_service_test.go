package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Anuj-afk/TimeTable-Generator/internal/models"
)

func TestMetricsServiceTimetableRuns(t *testing.T) {
	m := NewMetricsService()
	m.ObserveTimetableRun(models.RunSourceAPI, 0, 0, time.Millisecond)
	m.ObserveTimetableRun(models.RunSourceUpload, 3, 1, time.Millisecond)
	m.RecordFailedRun(models.RunSourceUpload)
	require.NoError(t, m.TrackQueueDepth("timetable", func() int { return 2 }))

	snapshot := m.Snapshot()
	assert.Equal(t, uint64(2), snapshot.TimetableRuns)
	assert.Equal(t, uint64(3), snapshot.UnscheduledPeriods)
	assert.Equal(t, uint64(1), snapshot.Anomalies)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, `timetable_runs_total{outcome="complete",source="api"} 1`)
	assert.Contains(t, body, `timetable_runs_total{outcome="partial",source="upload"} 1`)
	assert.Contains(t, body, `timetable_runs_total{outcome="failed",source="upload"} 1`)
	assert.Contains(t, body, `job_queue_depth{queue="timetable"} 2`)
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveHTTPRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
	m.ObserveTimetableRun(models.RunSourceCLI, 1, 0, time.Millisecond)
	m.RecordFailedRun(models.RunSourceCLI)
	assert.NoError(t, m.TrackQueueDepth("q", func() int { return 0 }))
	assert.Equal(t, models.SystemMetrics{}, m.Snapshot())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
