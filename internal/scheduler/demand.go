package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Requirement is one class a teacher must cover for a number of weekly periods.
type Requirement struct {
	ClassID  string `json:"class"`
	Required int    `json:"required"`
}

// Entry is a flattened (teacher, class, required) demand row.
type Entry struct {
	Teacher  string `json:"teacher"`
	Class    string `json:"class"`
	Required int    `json:"required"`
}

// Demand maps teacher ids to the classes they teach. It is built once and never mutated by the engine.
type Demand map[string][]Requirement

// Teachers returns the teacher ids in lexicographic order.
func (d Demand) Teachers() []string {
	out := make([]string, 0, len(d))
	for teacher := range d {
		out = append(out, teacher)
	}
	sort.Strings(out)
	return out
}

// Classes returns every class id referenced by the demand, sorted.
func (d Demand) Classes() []string {
	seen := make(map[string]struct{})
	for _, reqs := range d {
		for _, req := range reqs {
			seen[req.ClassID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for class := range seen {
		out = append(out, class)
	}
	sort.Strings(out)
	return out
}

// Entries flattens the demand in teacher order, preserving each teacher's entry order.
func (d Demand) Entries() []Entry {
	out := make([]Entry, 0)
	for _, teacher := range d.Teachers() {
		for _, req := range d[teacher] {
			out = append(out, Entry{Teacher: teacher, Class: req.ClassID, Required: req.Required})
		}
	}
	return out
}

// TotalRequired sums the positive requirements.
func (d Demand) TotalRequired() int {
	total := 0
	for _, reqs := range d {
		for _, req := range reqs {
			if req.Required > 0 {
				total += req.Required
			}
		}
	}
	return total
}

// Canonical returns a copy with each teacher's entries in placement order.
// Two demands that schedule identically share the same canonical form.
func (d Demand) Canonical() Demand {
	out := make(Demand, len(d))
	for teacher, reqs := range d {
		sorted := make([]Requirement, len(reqs))
		copy(sorted, reqs)
		sortForPlacement(sorted)
		out[teacher] = sorted
	}
	return out
}

// Validate checks the input contract: non-blank ids, positive counts, no repeated class per teacher.
// All problems are reported together.
func (d Demand) Validate() error {
	var errs []error
	for _, teacher := range d.Teachers() {
		if strings.TrimSpace(teacher) == "" {
			errs = append(errs, fmt.Errorf("%w: teacher id", ErrEmptyIdentifier))
			continue
		}
		seen := make(map[string]struct{}, len(d[teacher]))
		for _, req := range d[teacher] {
			if strings.TrimSpace(req.ClassID) == "" {
				errs = append(errs, fmt.Errorf("%w: class id for teacher %s", ErrEmptyIdentifier, teacher))
				continue
			}
			if req.Required <= 0 {
				errs = append(errs, fmt.Errorf("%w: %s/%s has %d", ErrInvalidRequirement, teacher, req.ClassID, req.Required))
			}
			if _, dup := seen[req.ClassID]; dup {
				errs = append(errs, fmt.Errorf("%w: %s/%s", ErrDuplicateRequirement, teacher, req.ClassID))
			}
			seen[req.ClassID] = struct{}{}
		}
	}
	return errors.Join(errs...)
}

// sortForPlacement orders entries by required count descending, then class id ascending.
func sortForPlacement(reqs []Requirement) {
	sort.SliceStable(reqs, func(i, j int) bool {
		if reqs[i].Required != reqs[j].Required {
			return reqs[i].Required > reqs[j].Required
		}
		return reqs[i].ClassID < reqs[j].ClassID
	})
}
