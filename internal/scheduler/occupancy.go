package scheduler

import "fmt"

// Tracker records which slots each teacher and each class already holds.
// A tracker belongs to a single placement run.
type Tracker struct {
	teacherSlots map[string]map[Slot]struct{}
	classSlots   map[string]map[Slot]struct{}
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		teacherSlots: make(map[string]map[Slot]struct{}),
		classSlots:   make(map[string]map[Slot]struct{}),
	}
}

// TeacherFree reports whether the teacher has nothing booked at slot.
func (t *Tracker) TeacherFree(teacher string, slot Slot) bool {
	_, busy := t.teacherSlots[teacher][slot]
	return !busy
}

// ClassFree reports whether the class has nothing booked at slot.
func (t *Tracker) ClassFree(class string, slot Slot) bool {
	_, busy := t.classSlots[class][slot]
	return !busy
}

// Assign books slot for both the teacher and the class.
// It panics on a double booking: callers must check TeacherFree and ClassFree first.
func (t *Tracker) Assign(teacher, class string, slot Slot) {
	if !t.TeacherFree(teacher, slot) || !t.ClassFree(class, slot) {
		panic(fmt.Sprintf("scheduler: double booking %s/%s at %+v", teacher, class, slot))
	}
	t.setFor(t.teacherSlots, teacher)[slot] = struct{}{}
	t.setFor(t.classSlots, class)[slot] = struct{}{}
}

// TeacherLoad returns the number of slots booked for the teacher.
func (t *Tracker) TeacherLoad(teacher string) int {
	return len(t.teacherSlots[teacher])
}

// ClassLoad returns the number of slots booked for the class.
func (t *Tracker) ClassLoad(class string) int {
	return len(t.classSlots[class])
}

func (t *Tracker) setFor(index map[string]map[Slot]struct{}, key string) map[Slot]struct{} {
	set, ok := index[key]
	if !ok {
		set = make(map[Slot]struct{})
		index[key] = set
	}
	return set
}
