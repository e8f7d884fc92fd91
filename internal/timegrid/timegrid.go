// Package timegrid turns continuous time into a finite sequence of
// fixed-width slots bounded by the planning horizon.
package timegrid

import (
	"iter"
	"time"

	"github.com/julianstephens/studyplan/internal/constants"
	"github.com/julianstephens/studyplan/internal/models"
)

// Slot is one schedulable unit of the horizon.
type Slot struct {
	Index       int
	Start       time.Time
	Day         int // local calendar days since the horizon's first day
	Weekday     time.Weekday
	MinuteOfDay int
}

func (s Slot) Hour() int {
	return s.MinuteOfDay / 60
}

func (s Slot) IsWeekend() bool {
	return s.Weekday == time.Saturday || s.Weekday == time.Sunday
}

// Horizon is the immutable, enumerated planning window [Start, End).
type Horizon struct {
	Start   time.Time
	End     time.Time
	SlotMin int
	loc     *time.Location
	slots   []Slot
}

// RoundUp returns now rounded up to the next slot boundary, measured from
// local midnight. A time already on a boundary is returned unchanged.
func RoundUp(now time.Time, slotMin int, loc *time.Location) time.Time {
	local := now.In(loc)
	y, m, d := local.Date()
	minutes := local.Hour()*60 + local.Minute()
	if local.Second() != 0 || local.Nanosecond() != 0 {
		minutes++
	}
	if rem := minutes % slotMin; rem != 0 {
		minutes += slotMin - rem
	}
	return time.Date(y, m, d, 0, minutes, 0, 0, loc)
}

// HorizonEnd computes max(earliest active due date + 14 days, term end).
// The result is never before start.
func HorizonEnd(start time.Time, tasks []models.Task, termEnd *time.Time) time.Time {
	end := start
	var earliest time.Time
	for i := range tasks {
		if !tasks[i].IsActive() {
			continue
		}
		if earliest.IsZero() || tasks[i].DueAt.Before(earliest) {
			earliest = tasks[i].DueAt
		}
	}
	if !earliest.IsZero() {
		if padded := earliest.Add(constants.HorizonPadding); padded.After(end) {
			end = padded
		}
	}
	if termEnd != nil && termEnd.After(end) {
		end = *termEnd
	}
	return end
}

// New enumerates every slot start in [start, end). start is expected to be
// on a slot boundary (see RoundUp).
func New(start, end time.Time, slotMin int, loc *time.Location) *Horizon {
	h := &Horizon{Start: start, End: end, SlotMin: slotMin, loc: loc}
	width := time.Duration(slotMin) * time.Minute
	firstDay := civilDay(start.In(loc))
	for t, i := start, 0; t.Before(end); t, i = t.Add(width), i+1 {
		local := t.In(loc)
		h.slots = append(h.slots, Slot{
			Index:       i,
			Start:       t,
			Day:         civilDay(local) - firstDay,
			Weekday:     local.Weekday(),
			MinuteOfDay: local.Hour()*60 + local.Minute(),
		})
	}
	return h
}

func (h *Horizon) Len() int {
	return len(h.slots)
}

func (h *Horizon) Slot(i int) Slot {
	return h.slots[i]
}

func (h *Horizon) Location() *time.Location {
	return h.loc
}

func (h *Horizon) Width() time.Duration {
	return time.Duration(h.SlotMin) * time.Minute
}

// SlotEnd is the end instant of slot i.
func (h *Horizon) SlotEnd(i int) time.Time {
	return h.slots[i].Start.Add(h.Width())
}

// Days returns the number of local calendar days the horizon touches.
func (h *Horizon) Days() int {
	if len(h.slots) == 0 {
		return 0
	}
	return h.slots[len(h.slots)-1].Day + 1
}

// Covering returns the half-open slot index range [first, last) of every
// slot intersecting [from, to), clipped to the horizon.
func (h *Horizon) Covering(from, to time.Time) (int, int) {
	width := h.Width()
	first := 0
	if from.After(h.Start) {
		first = int(from.Sub(h.Start) / width)
	}
	last := 0
	if to.After(h.Start) {
		d := to.Sub(h.Start)
		last = int(d / width)
		if d%width != 0 {
			last++
		}
	}
	return clamp(first, 0, len(h.slots)), clamp(last, 0, len(h.slots))
}

// IndexBefore returns the number of slots that end at or before t.
func (h *Horizon) IndexBefore(t time.Time) int {
	if !t.After(h.Start) {
		return 0
	}
	return clamp(int(t.Sub(h.Start)/h.Width()), 0, len(h.slots))
}

// Range lazily yields the slots in [from, to).
func (h *Horizon) Range(from, to int) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		for i := clamp(from, 0, len(h.slots)); i < clamp(to, 0, len(h.slots)); i++ {
			if !yield(h.slots[i]) {
				return
			}
		}
	}
}

// EnumerateSlots yields the ordered slot start instants of day's local date
// between startHour and endHour (exclusive, 0-24). The sequence holds no
// state and can be ranged over any number of times.
func EnumerateSlots(day time.Time, startHour, endHour, slotMin int) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if slotMin <= 0 || startHour >= endHour {
			return
		}
		loc := day.Location()
		y, m, d := day.Date()
		for minute := startHour * 60; minute < endHour*60; minute += slotMin {
			if !yield(time.Date(y, m, d, 0, minute, 0, 0, loc)) {
				return
			}
		}
	}
}

func civilDay(t time.Time) int {
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
