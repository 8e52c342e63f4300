package scheduler

import (
	"fmt"
	"strings"
)

// DefaultPeriodsPerDay is the number of teaching periods in a school day.
const DefaultPeriodsPerDay = 8

// DefaultDays lists the teaching days of the week in display order.
var DefaultDays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Slot addresses one period of the weekly grid. Both indices are zero-based.
type Slot struct {
	Day    int `json:"day"`
	Period int `json:"period"`
}

// SlotSpace is the fixed universe of weekly slots.
type SlotSpace struct {
	days    []string
	periods int
}

// NewSlotSpace validates the grid dimensions and returns the slot universe.
func NewSlotSpace(days []string, periodsPerDay int) (SlotSpace, error) {
	if len(days) == 0 || periodsPerDay <= 0 {
		return SlotSpace{}, fmt.Errorf("%w: %d days x %d periods", ErrEmptySlotSpace, len(days), periodsPerDay)
	}
	seen := make(map[string]struct{}, len(days))
	cleaned := make([]string, 0, len(days))
	for _, day := range days {
		name := strings.TrimSpace(day)
		if name == "" {
			return SlotSpace{}, fmt.Errorf("%w: blank day name", ErrInvalidSlotSpace)
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			return SlotSpace{}, fmt.Errorf("%w: duplicate day %q", ErrInvalidSlotSpace, name)
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, name)
	}
	return SlotSpace{days: cleaned, periods: periodsPerDay}, nil
}

// DefaultSlotSpace returns the Monday..Saturday, P1..P8 grid.
func DefaultSlotSpace() SlotSpace {
	space, _ := NewSlotSpace(DefaultDays, DefaultPeriodsPerDay)
	return space
}

// Days returns a copy of the configured day names.
func (s SlotSpace) Days() []string {
	out := make([]string, len(s.days))
	copy(out, s.days)
	return out
}

// PeriodsPerDay returns the number of periods in each day.
func (s SlotSpace) PeriodsPerDay() int {
	return s.periods
}

// Size is the number of distinct slots, which is also the per-teacher weekly capacity.
func (s SlotSpace) Size() int {
	return len(s.days) * s.periods
}

// Contains reports whether the slot lies inside the grid.
func (s SlotSpace) Contains(slot Slot) bool {
	return slot.Day >= 0 && slot.Day < len(s.days) && slot.Period >= 0 && slot.Period < s.periods
}

// DayName returns the label for a day index.
func (s SlotSpace) DayName(day int) string {
	if day < 0 || day >= len(s.days) {
		return ""
	}
	return s.days[day]
}

// PeriodLabel returns the P1-based label for a period index.
func (s SlotSpace) PeriodLabel(period int) string {
	return fmt.Sprintf("P%d", period+1)
}

// PeriodLabels returns P1..Pn.
func (s SlotSpace) PeriodLabels() []string {
	labels := make([]string, s.periods)
	for i := range labels {
		labels[i] = s.PeriodLabel(i)
	}
	return labels
}

// Label renders a slot as "Monday P1".
func (s SlotSpace) Label(slot Slot) string {
	return fmt.Sprintf("%s %s", s.DayName(slot.Day), s.PeriodLabel(slot.Period))
}

// Enumerate yields every slot period-major: all days at P1, then all days at P2, and so on.
// Consecutive candidates therefore land on different days, spreading a teacher's load across the week.
func (s SlotSpace) Enumerate() []Slot {
	out := make([]Slot, 0, s.Size())
	for p := 0; p < s.periods; p++ {
		for d := range s.days {
			out = append(out, Slot{Day: d, Period: p})
		}
	}
	return out
}
