// Package scheduler places weekly teaching periods into a day x period grid.
//
// Placement is a single greedy pass: teachers are visited in lexicographic order,
// each teacher's classes largest request first, and every (teacher, class) pair scans
// the slot space starting from a hash-derived offset. A slot is taken when both the
// teacher and the class are free there. Earlier choices are never revisited, so an
// over-constrained week yields deficits rather than a search for a better packing.
package scheduler

import (
	"context"

	"go.uber.org/zap"
)

// Assignment is one placed period. Records are immutable once emitted.
type Assignment struct {
	Teacher string `json:"teacher"`
	Class   string `json:"class"`
	Slot    Slot   `json:"slot"`
}

// Deficit reports a pair whose requirement could not be fully placed.
type Deficit struct {
	Teacher     string `json:"teacher"`
	Class       string `json:"class"`
	Required    int    `json:"required"`
	Scheduled   int    `json:"scheduled"`
	Unscheduled int    `json:"unscheduled"`
}

// Result is the frozen output of one placement run.
type Result struct {
	Space       SlotSpace
	Teachers    []string
	Classes     []string
	Assignments []Assignment
	Deficits    []Deficit
	// Skipped holds entries with a non-positive requirement; they produce no work and no deficit.
	Skipped []Entry
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger attaches a logger for per-run diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Engine runs placements over a fixed slot space. It holds no per-run state and is safe to reuse.
type Engine struct {
	space  SlotSpace
	order  []Slot
	logger *zap.Logger
}

// NewEngine prepares the canonical slot order for space.
func NewEngine(space SlotSpace, opts ...Option) (*Engine, error) {
	if space.Size() == 0 {
		return nil, ErrEmptySlotSpace
	}
	e := &Engine{space: space, order: space.Enumerate(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Space returns the engine's slot space.
func (e *Engine) Space() SlotSpace {
	return e.space
}

// Place assigns every demand entry it can. The run owns a fresh Tracker, so concurrent
// calls on one Engine never share occupancy.
func (e *Engine) Place(ctx context.Context, demand Demand) (*Result, error) {
	tracker := NewTracker()
	result := &Result{
		Space:       e.space,
		Teachers:    demand.Teachers(),
		Classes:     demand.Classes(),
		Assignments: make([]Assignment, 0, demand.TotalRequired()),
		Deficits:    make([]Deficit, 0),
		Skipped:     make([]Entry, 0),
	}

	for _, teacher := range result.Teachers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entries := make([]Requirement, len(demand[teacher]))
		copy(entries, demand[teacher])
		sortForPlacement(entries)

		for _, entry := range entries {
			if entry.Required <= 0 {
				result.Skipped = append(result.Skipped, Entry{Teacher: teacher, Class: entry.ClassID, Required: entry.Required})
				continue
			}
			placed, err := e.placeEntry(tracker, teacher, entry, &result.Assignments)
			if err != nil {
				return nil, err
			}
			if placed < entry.Required {
				deficit := Deficit{
					Teacher:     teacher,
					Class:       entry.ClassID,
					Required:    entry.Required,
					Scheduled:   placed,
					Unscheduled: entry.Required - placed,
				}
				result.Deficits = append(result.Deficits, deficit)
				e.logger.Debug("requirement not fully placed",
					zap.String("teacher", teacher),
					zap.String("class", entry.ClassID),
					zap.Int("required", entry.Required),
					zap.Int("scheduled", placed),
				)
			}
		}
	}
	return result, nil
}

func (e *Engine) placeEntry(tracker *Tracker, teacher string, entry Requirement, out *[]Assignment) (int, error) {
	offset, err := OffsetFor(PairKey(teacher, entry.ClassID), len(e.order))
	if err != nil {
		return 0, err
	}
	placed := 0
	for _, slot := range Rotate(e.order, offset) {
		if placed >= entry.Required {
			break
		}
		if !tracker.TeacherFree(teacher, slot) || !tracker.ClassFree(entry.ClassID, slot) {
			continue
		}
		tracker.Assign(teacher, entry.ClassID, slot)
		*out = append(*out, Assignment{Teacher: teacher, Class: entry.ClassID, Slot: slot})
		placed++
	}
	return placed, nil
}
