package constraints

import (
	"github.com/julianstephens/studyplan/internal/timegrid"
)

const free = -1

// Occupant identifies what holds a slot.
type Occupant struct {
	TaskID  string
	Subject string
	Pinned  bool
}

// Allocation is the partial allocation of one generate run: which slots are
// taken, by whom, and how many minutes each day already carries. It is owned
// by a single run and never shared.
type Allocation struct {
	h         *timegrid.Horizon
	owner     []int
	occupants []Occupant
	dayUsed   []int
	writes    int
}

func NewAllocation(h *timegrid.Horizon) *Allocation {
	owner := make([]int, h.Len())
	for i := range owner {
		owner[i] = free
	}
	return &Allocation{
		h:       h,
		owner:   owner,
		dayUsed: make([]int, h.Days()),
	}
}

// Occupy marks slots [first, first+n) as held by occ and charges their
// minutes to each slot's day. Generated blocks count against the write quota.
func (a *Allocation) Occupy(first, n int, occ Occupant) {
	a.occupants = append(a.occupants, occ)
	id := len(a.occupants) - 1
	for i := first; i < first+n && i < len(a.owner); i++ {
		if a.owner[i] != free {
			continue
		}
		a.owner[i] = id
		a.dayUsed[a.h.Slot(i).Day] += a.h.SlotMin
	}
	if !occ.Pinned {
		a.writes++
	}
}

func (a *Allocation) IsFree(i int) bool {
	return a.owner[i] == free
}

// OccupantAt returns the occupant of slot i, if any.
func (a *Allocation) OccupantAt(i int) (Occupant, bool) {
	if i < 0 || i >= len(a.owner) || a.owner[i] == free {
		return Occupant{}, false
	}
	return a.occupants[a.owner[i]], true
}

func (a *Allocation) DayMinutes(day int) int {
	if day < 0 || day >= len(a.dayUsed) {
		return 0
	}
	return a.dayUsed[day]
}

// Writes is the number of generated (non-pinned) blocks placed so far.
func (a *Allocation) Writes() int {
	return a.writes
}

func (a *Allocation) Horizon() *timegrid.Horizon {
	return a.h
}
