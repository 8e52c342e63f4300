package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallSpace(t *testing.T, days, periods int) SlotSpace {
	t.Helper()
	names := make([]string, days)
	for i := range names {
		names[i] = fmt.Sprintf("D%d", i+1)
	}
	space, err := NewSlotSpace(names, periods)
	require.NoError(t, err)
	return space
}

func place(t *testing.T, space SlotSpace, demand Demand) *Result {
	t.Helper()
	engine, err := NewEngine(space)
	require.NoError(t, err)
	result, err := engine.Place(context.Background(), demand)
	require.NoError(t, err)
	return result
}

func randomDemand(rng *rand.Rand, teachers, classes, maxRequired int) Demand {
	demand := make(Demand)
	for ti := 0; ti < teachers; ti++ {
		teacher := fmt.Sprintf("T%02d", ti)
		for ci := 0; ci < classes; ci++ {
			if rng.Intn(3) == 0 {
				continue
			}
			demand[teacher] = append(demand[teacher], Requirement{
				ClassID:  fmt.Sprintf("%d%c", 9+ci%4, 'A'+rune(ci%6)),
				Required: 1 + rng.Intn(maxRequired),
			})
		}
	}
	return demand.dedupe()
}

func (d Demand) dedupe() Demand {
	out := make(Demand, len(d))
	for teacher, reqs := range d {
		seen := make(map[string]bool)
		for _, req := range reqs {
			if seen[req.ClassID] {
				continue
			}
			seen[req.ClassID] = true
			out[teacher] = append(out[teacher], req)
		}
	}
	return out
}

func TestNewEngineRejectsEmptySpace(t *testing.T) {
	_, err := NewEngine(SlotSpace{})
	require.ErrorIs(t, err, ErrEmptySlotSpace)
}

func TestPlaceOverCapacityScenario(t *testing.T) {
	space := smallSpace(t, 2, 2)
	result := place(t, space, Demand{
		"T1": {{ClassID: "9A", Required: 3}, {ClassID: "9B", Required: 2}},
	})

	require.Len(t, result.Assignments, 4)
	seen := make(map[Slot]bool)
	for _, a := range result.Assignments {
		assert.Equal(t, "T1", a.Teacher)
		assert.False(t, seen[a.Slot], "slot %+v reused", a.Slot)
		seen[a.Slot] = true
	}
	assert.Len(t, seen, 4)

	require.Len(t, result.Deficits, 1)
	assert.Equal(t, Deficit{Teacher: "T1", Class: "9B", Required: 2, Scheduled: 1, Unscheduled: 1}, result.Deficits[0])
}

func TestPlaceSharedClassAcrossTeachers(t *testing.T) {
	result := place(t, DefaultSlotSpace(), Demand{
		"T1": {{ClassID: "10A", Required: 1}},
		"T2": {{ClassID: "10A", Required: 1}},
	})

	require.Len(t, result.Assignments, 2)
	assert.Empty(t, result.Deficits)
	assert.NotEqual(t, result.Assignments[0].Slot, result.Assignments[1].Slot)
}

func TestPlaceFirstSlotFollowsOffset(t *testing.T) {
	space := DefaultSlotSpace()
	result := place(t, space, Demand{"Rao": {{ClassID: "11C", Required: 1}}})

	offset, err := OffsetFor(PairKey("Rao", "11C"), space.Size())
	require.NoError(t, err)
	require.Len(t, result.Assignments, 1)
	assert.Equal(t, Rotate(space.Enumerate(), offset)[0], result.Assignments[0].Slot)
}

func TestPlaceOrdersTeachersAndEntries(t *testing.T) {
	space := smallSpace(t, 1, 1)
	result := place(t, space, Demand{
		"Zed":   {{ClassID: "9A", Required: 1}},
		"Alice": {{ClassID: "9B", Required: 1}, {ClassID: "9A", Required: 1}},
	})

	// Alice goes first and takes the only slot for 9A (tie broken by class id).
	require.Len(t, result.Assignments, 1)
	assert.Equal(t, Assignment{Teacher: "Alice", Class: "9A", Slot: Slot{}}, result.Assignments[0])
	assert.Equal(t, []Deficit{
		{Teacher: "Alice", Class: "9B", Required: 1, Scheduled: 0, Unscheduled: 1},
		{Teacher: "Zed", Class: "9A", Required: 1, Scheduled: 0, Unscheduled: 1},
	}, result.Deficits)
}

func TestPlaceLargestRequestFirst(t *testing.T) {
	space := smallSpace(t, 1, 3)
	result := place(t, space, Demand{
		"T1": {{ClassID: "9A", Required: 1}, {ClassID: "9B", Required: 3}},
	})

	require.Len(t, result.Assignments, 3)
	for _, a := range result.Assignments {
		assert.Equal(t, "9B", a.Class)
	}
	require.Len(t, result.Deficits, 1)
	assert.Equal(t, "9A", result.Deficits[0].Class)
}

func TestPlaceSkipsNonPositiveRequirements(t *testing.T) {
	result := place(t, DefaultSlotSpace(), Demand{
		"T1": {{ClassID: "9A", Required: 0}, {ClassID: "9B", Required: -2}, {ClassID: "9C", Required: 2}},
	})

	assert.Len(t, result.Assignments, 2)
	assert.Empty(t, result.Deficits)
	assert.ElementsMatch(t, []Entry{
		{Teacher: "T1", Class: "9A", Required: 0},
		{Teacher: "T1", Class: "9B", Required: -2},
	}, result.Skipped)
}

func TestPlaceDoesNotMutateDemand(t *testing.T) {
	demand := Demand{"T1": {{ClassID: "9A", Required: 1}, {ClassID: "9B", Required: 4}}}
	place(t, DefaultSlotSpace(), demand)
	assert.Equal(t, "9A", demand["T1"][0].ClassID)
}

func TestPlaceHonoursCancellation(t *testing.T) {
	engine, err := NewEngine(DefaultSlotSpace())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = engine.Place(ctx, Demand{"T1": {{ClassID: "9A", Required: 1}}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestPlaceInvariantsOnRandomDemand(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	space := smallSpace(t, 3, 4)

	for round := 0; round < 50; round++ {
		demand := randomDemand(rng, 6, 8, 5)
		result := place(t, space, demand)

		teacherSlots := make(map[string]map[Slot]bool)
		classSlots := make(map[string]map[Slot]bool)
		pairCount := make(map[[2]string]int)
		for _, a := range result.Assignments {
			require.True(t, space.Contains(a.Slot))
			if teacherSlots[a.Teacher] == nil {
				teacherSlots[a.Teacher] = make(map[Slot]bool)
			}
			if classSlots[a.Class] == nil {
				classSlots[a.Class] = make(map[Slot]bool)
			}
			require.False(t, teacherSlots[a.Teacher][a.Slot], "teacher %s double booked", a.Teacher)
			require.False(t, classSlots[a.Class][a.Slot], "class %s double booked", a.Class)
			teacherSlots[a.Teacher][a.Slot] = true
			classSlots[a.Class][a.Slot] = true
			pairCount[[2]string{a.Teacher, a.Class}]++
		}

		for teacher, slots := range teacherSlots {
			require.LessOrEqual(t, len(slots), space.Size(), "teacher %s over capacity", teacher)
		}

		deficits := make(map[[2]string]Deficit)
		for _, d := range result.Deficits {
			deficits[[2]string{d.Teacher, d.Class}] = d
		}
		for _, entry := range demand.Entries() {
			key := [2]string{entry.Teacher, entry.Class}
			scheduled := pairCount[key]
			unscheduled := 0
			if d, ok := deficits[key]; ok {
				require.Equal(t, scheduled, d.Scheduled)
				require.Positive(t, d.Unscheduled)
				unscheduled = d.Unscheduled
			}
			require.Equal(t, entry.Required, scheduled+unscheduled, "conservation for %v", key)
		}
	}
}

func TestPlaceIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	demand := randomDemand(rng, 10, 12, 6)

	first := place(t, DefaultSlotSpace(), demand)
	for i := 0; i < 5; i++ {
		again := place(t, DefaultSlotSpace(), demand)
		require.Equal(t, first.Assignments, again.Assignments)
		require.Equal(t, first.Deficits, again.Deficits)
	}
}

func TestPlaceGreedyMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	space := smallSpace(t, 2, 3)

	othersUnscheduled := func(result *Result, skip string) int {
		total := 0
		for _, d := range result.Deficits {
			if d.Class != skip {
				total += d.Unscheduled
			}
		}
		return total
	}

	for round := 0; round < 40; round++ {
		base := randomDemand(rng, 1, 6, 4)
		for teacher, reqs := range base {
			for i, req := range reqs {
				if req.Required <= 1 {
					continue
				}
				before := othersUnscheduled(place(t, space, base), req.ClassID)

				reduced := make([]Requirement, len(reqs))
				copy(reduced, reqs)
				reduced[i].Required--
				after := othersUnscheduled(place(t, space, Demand{teacher: reduced}), req.ClassID)

				require.LessOrEqual(t, after, before, "reducing %s/%s", teacher, req.ClassID)
			}
		}
	}
}
