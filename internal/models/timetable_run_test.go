package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunParamsScanAcceptsBytesAndStrings(t *testing.T) {
	var p RunParams
	require.NoError(t, p.Scan([]byte(`{"days":["Mon"],"periodsPerDay":4,"format":"pdf"}`)))
	assert.Equal(t, []string{"Mon"}, p.Days)
	assert.Equal(t, OutputFormatPDF, p.Format)

	require.NoError(t, p.Scan(`{"periodsPerDay":2}`))
	assert.Nil(t, p.Days)
	assert.Equal(t, 2, p.PeriodsPerDay)

	require.NoError(t, p.Scan(nil))
	assert.Equal(t, RunParams{}, p)

	require.Error(t, p.Scan(42))
}

func TestRunRosterValueNeverEncodesNull(t *testing.T) {
	v, err := RunRoster{}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"teachers":[],"classes":[]}`, v.(string))
}

func TestOutputFormatValid(t *testing.T) {
	assert.True(t, OutputFormatXLSX.Valid())
	assert.True(t, OutputFormatCSV.Valid())
	assert.False(t, OutputFormat("docx").Valid())
}
