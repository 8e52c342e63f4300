package scheduler

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeLoads(t *testing.T) {
	loads := ComputeLoads([]Assignment{
		{Teacher: "T1", Class: "9A", Slot: Slot{0, 0}},
		{Teacher: "T1", Class: "9B", Slot: Slot{0, 1}},
		{Teacher: "T2", Class: "9A", Slot: Slot{0, 1}},
	})
	assert.Equal(t, map[string]int{"T1": 2, "T2": 1}, loads)
}

func TestValidateFlagsOverload(t *testing.T) {
	anomalies, err := Validate(map[string]int{"B": 49, "A": 50, "C": 48}, 48)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Teacher A has 50 periods (> 48).",
		"Teacher B has 49 periods (> 48).",
	}, anomalies)
}

func TestValidateRejectsNonPositiveCapacity(t *testing.T) {
	_, err := Validate(map[string]int{"A": 1}, 0)
	require.ErrorIs(t, err, ErrEmptySlotSpace)
}

func TestSummaryAllPlaced(t *testing.T) {
	result := place(t, DefaultSlotSpace(), Demand{
		"T2": {{ClassID: "9A", Required: 2}},
		"T1": {{ClassID: "9B", Required: 3}},
	})

	records, anomalies, err := result.Summary()
	require.NoError(t, err)
	assert.Empty(t, anomalies)
	assert.Equal(t, []SummaryRecord{
		{Kind: KindTeacherLoad, Teacher: "T1", Value: 3},
		{Kind: KindTeacherLoad, Teacher: "T2", Value: 2},
		{Kind: KindNote, Message: SuccessMessage},
	}, records)
}

func TestSummaryWithDeficit(t *testing.T) {
	space := smallSpace(t, 2, 2)
	result := place(t, space, Demand{
		"T1": {{ClassID: "9A", Required: 3}, {ClassID: "9B", Required: 2}},
	})

	records, _, err := result.Summary()
	require.NoError(t, err)
	assert.Equal(t, []SummaryRecord{
		{Kind: KindTeacherLoad, Teacher: "T1", Value: 4},
		{Kind: KindUnscheduled, Teacher: "T1", Class: "9B", Required: 2, Scheduled: 1, Unscheduled: 1},
	}, records)
	assert.Equal(t, 1, result.UnscheduledTotal())
}

func TestSummarizeIncludesAnomalyNotes(t *testing.T) {
	records := Summarize([]string{"T1"}, map[string]int{"T1": 60}, nil, []string{"Teacher T1 has 60 periods (> 48)."})
	require.Len(t, records, 2)
	assert.Equal(t, KindNote, records[1].Kind)
	assert.Equal(t, "Teacher T1 has 60 periods (> 48).", records[1].Message)
}

func TestSummaryRecordJSONShape(t *testing.T) {
	load, err := json.Marshal(SummaryRecord{Kind: KindTeacherLoad, Teacher: "T1", Value: 0})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"TeacherLoad","teacher":"T1","value":0}`, string(load))

	missing, err := json.Marshal(SummaryRecord{Kind: KindUnscheduled, Teacher: "T1", Class: "9B", Required: 2, Scheduled: 1, Unscheduled: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"Unscheduled","teacher":"T1","class":"9B","required":2,"scheduled":1,"unscheduled":1}`, string(missing))

	note, err := json.Marshal(SummaryRecord{Kind: KindNote, Message: SuccessMessage})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"Note","message":"All assignments placed successfully."}`, string(note))

	var decoded SummaryRecord
	require.NoError(t, json.Unmarshal(missing, &decoded))
	assert.Equal(t, 1, decoded.Unscheduled)
	assert.Equal(t, "9B", decoded.Class)
}
