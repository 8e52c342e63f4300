package scheduler

import "sort"

// Grid is a days x periods table for one teacher or one class. Empty cells are "".
type Grid struct {
	Owner   string     `json:"owner"`
	Days    []string   `json:"days"`
	Periods []string   `json:"periods"`
	Cells   [][]string `json:"cells"`
}

func newGrid(space SlotSpace, owner string) Grid {
	cells := make([][]string, len(space.days))
	for i := range cells {
		cells[i] = make([]string, space.periods)
	}
	return Grid{Owner: owner, Days: space.Days(), Periods: space.PeriodLabels(), Cells: cells}
}

// Cell returns the occupant at slot or "" when free or out of range.
func (g Grid) Cell(slot Slot) string {
	if slot.Day < 0 || slot.Day >= len(g.Cells) {
		return ""
	}
	row := g.Cells[slot.Day]
	if slot.Period < 0 || slot.Period >= len(row) {
		return ""
	}
	return row[slot.Period]
}

// Filled counts non-empty cells.
func (g Grid) Filled() int {
	n := 0
	for _, row := range g.Cells {
		for _, cell := range row {
			if cell != "" {
				n++
			}
		}
	}
	return n
}

// TeacherGrids builds one grid per teacher in the result, sorted by teacher id.
// Teachers with demand but nothing placed still get an empty grid.
func (r *Result) TeacherGrids() []Grid {
	return buildGrids(r.Space, r.Teachers, r.Assignments, func(a Assignment) (string, string) {
		return a.Teacher, a.Class
	})
}

// ClassGrids builds one grid per class referenced by the demand, sorted by class id.
func (r *Result) ClassGrids() []Grid {
	return buildGrids(r.Space, r.Classes, r.Assignments, func(a Assignment) (string, string) {
		return a.Class, a.Teacher
	})
}

func buildGrids(space SlotSpace, owners []string, assignments []Assignment, project func(Assignment) (string, string)) []Grid {
	index := make(map[string]*Grid, len(owners))
	names := make([]string, 0, len(owners))
	ensure := func(owner string) *Grid {
		if g, ok := index[owner]; ok {
			return g
		}
		g := newGrid(space, owner)
		index[owner] = &g
		names = append(names, owner)
		return &g
	}
	for _, owner := range owners {
		ensure(owner)
	}
	for _, a := range assignments {
		owner, occupant := project(a)
		if !space.Contains(a.Slot) {
			continue
		}
		ensure(owner).Cells[a.Slot.Day][a.Slot.Period] = occupant
	}
	sort.Strings(names)
	out := make([]Grid, 0, len(names))
	for _, name := range names {
		out = append(out, *index[name])
	}
	return out
}
