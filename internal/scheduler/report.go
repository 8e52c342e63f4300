package scheduler

import (
	"encoding/json"
	"fmt"
	"sort"
)

// SuccessMessage is the informational note emitted when nothing is missing or anomalous.
const SuccessMessage = "All assignments placed successfully."

// RecordKind discriminates summary rows.
type RecordKind string

const (
	KindTeacherLoad RecordKind = "TeacherLoad"
	KindUnscheduled RecordKind = "Unscheduled"
	KindNote        RecordKind = "Note"
)

// SummaryRecord is one row of the run summary. Only the fields relevant to Kind are meaningful.
type SummaryRecord struct {
	Kind        RecordKind `json:"kind"`
	Teacher     string     `json:"teacher,omitempty"`
	Class       string     `json:"class,omitempty"`
	Value       int        `json:"value"`
	Required    int        `json:"required"`
	Scheduled   int        `json:"scheduled"`
	Unscheduled int        `json:"unscheduled"`
	Message     string     `json:"message,omitempty"`
}

// MarshalJSON emits only the keys that belong to the record kind.
func (r SummaryRecord) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case KindTeacherLoad:
		return json.Marshal(struct {
			Kind    RecordKind `json:"kind"`
			Teacher string     `json:"teacher"`
			Value   int        `json:"value"`
		}{r.Kind, r.Teacher, r.Value})
	case KindUnscheduled:
		return json.Marshal(struct {
			Kind        RecordKind `json:"kind"`
			Teacher     string     `json:"teacher"`
			Class       string     `json:"class"`
			Required    int        `json:"required"`
			Scheduled   int        `json:"scheduled"`
			Unscheduled int        `json:"unscheduled"`
		}{r.Kind, r.Teacher, r.Class, r.Required, r.Scheduled, r.Unscheduled})
	default:
		return json.Marshal(struct {
			Kind    RecordKind `json:"kind"`
			Message string     `json:"message"`
		}{r.Kind, r.Message})
	}
}

// ComputeLoads counts placed periods per teacher.
func ComputeLoads(assignments []Assignment) map[string]int {
	loads := make(map[string]int)
	for _, a := range assignments {
		loads[a.Teacher]++
	}
	return loads
}

// Validate returns one message per teacher whose load exceeds capacity, sorted by teacher.
// Placement can never produce such a load; a non-empty result means an invariant broke.
func Validate(loads map[string]int, capacity int) ([]string, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity %d", ErrEmptySlotSpace, capacity)
	}
	teachers := make([]string, 0, len(loads))
	for teacher := range loads {
		teachers = append(teachers, teacher)
	}
	sort.Strings(teachers)
	anomalies := make([]string, 0)
	for _, teacher := range teachers {
		if load := loads[teacher]; load > capacity {
			anomalies = append(anomalies, fmt.Sprintf("Teacher %s has %d periods (> %d).", teacher, load, capacity))
		}
	}
	return anomalies, nil
}

// Summarize assembles load rows for teachers, then deficits in placement order, then notes.
func Summarize(teachers []string, loads map[string]int, deficits []Deficit, anomalies []string) []SummaryRecord {
	records := make([]SummaryRecord, 0, len(teachers)+len(deficits)+len(anomalies)+1)
	for _, teacher := range teachers {
		records = append(records, SummaryRecord{Kind: KindTeacherLoad, Teacher: teacher, Value: loads[teacher]})
	}
	for _, d := range deficits {
		records = append(records, SummaryRecord{
			Kind:        KindUnscheduled,
			Teacher:     d.Teacher,
			Class:       d.Class,
			Required:    d.Required,
			Scheduled:   d.Scheduled,
			Unscheduled: d.Unscheduled,
		})
	}
	for _, msg := range anomalies {
		records = append(records, SummaryRecord{Kind: KindNote, Message: msg})
	}
	if len(deficits) == 0 && len(anomalies) == 0 {
		records = append(records, SummaryRecord{Kind: KindNote, Message: SuccessMessage})
	}
	return records
}

// Summary computes loads, validates them against the slot capacity, and assembles the records.
// The anomaly list is returned separately so callers can alert on it.
func (r *Result) Summary() ([]SummaryRecord, []string, error) {
	loads := ComputeLoads(r.Assignments)
	anomalies, err := Validate(loads, r.Space.Size())
	if err != nil {
		return nil, nil, err
	}
	return Summarize(r.Teachers, loads, r.Deficits, anomalies), anomalies, nil
}

// UnscheduledTotal sums the periods that could not be placed.
func (r *Result) UnscheduledTotal() int {
	total := 0
	for _, d := range r.Deficits {
		total += d.Unscheduled
	}
	return total
}
