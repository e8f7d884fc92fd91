package models

import (
	"fmt"
	"time"

	"github.com/julianstephens/studyplan/internal/constants"
	sperrors "github.com/julianstephens/studyplan/internal/errors"
)

// AvailabilityGrid holds one boolean slot sequence per weekday, indexed by
// time.Weekday. Slot i of a day covers [i*width, (i+1)*width) minutes after
// local midnight. Days shorter than a full day are unavailable past their end.
type AvailabilityGrid struct {
	SlotDurationMin int                           `json:"slot_duration_min"`
	Days            [constants.DaysPerWeek][]bool `json:"days"`
}

// NewAvailabilityGrid returns an all-unavailable grid for the given slot width.
func NewAvailabilityGrid(slotMin int) AvailabilityGrid {
	g := AvailabilityGrid{SlotDurationMin: slotMin}
	perDay := constants.MinutesPerDay / slotMin
	for d := range g.Days {
		g.Days[d] = make([]bool, perDay)
	}
	return g
}

// SetRange marks [startMin, endMin) of the given weekday as available.
func (g *AvailabilityGrid) SetRange(day time.Weekday, startMin, endMin int) error {
	if startMin < 0 || endMin > constants.MinutesPerDay || startMin >= endMin {
		return sperrors.NewInvalidConfiguration("availability."+day.String(),
			fmt.Sprintf("invalid range %d-%d", startMin, endMin))
	}
	w := g.SlotDurationMin
	perDay := constants.MinutesPerDay / w
	if len(g.Days[day]) < perDay {
		grown := make([]bool, perDay)
		copy(grown, g.Days[day])
		g.Days[day] = grown
	}
	for i := startMin / w; i*w < endMin; i++ {
		g.Days[day][i] = true
	}
	return nil
}

// Available reports whether the slot starting at minuteOfDay on day is open.
func (g *AvailabilityGrid) Available(day time.Weekday, minuteOfDay int) bool {
	slots := g.Days[day]
	idx := minuteOfDay / g.SlotDurationMin
	return idx >= 0 && idx < len(slots) && slots[idx]
}

// AvailableMinutes returns the total open minutes in a week.
func (g *AvailabilityGrid) AvailableMinutes() int {
	total := 0
	for _, day := range g.Days {
		for _, open := range day {
			if open {
				total += g.SlotDurationMin
			}
		}
	}
	return total
}

func (g *AvailabilityGrid) Validate(slotMin int) error {
	if g.SlotDurationMin != slotMin {
		return sperrors.NewInvalidConfiguration("availability.slot_duration_min",
			fmt.Sprintf("grid width %d does not match rules slot width %d", g.SlotDurationMin, slotMin))
	}
	perDay := constants.MinutesPerDay / slotMin
	for d, slots := range g.Days {
		if len(slots) > perDay {
			return sperrors.NewInvalidConfiguration("availability."+time.Weekday(d).String(),
				fmt.Sprintf("%d slots exceed the %d slots in a day", len(slots), perDay))
		}
	}
	return nil
}

// SchedulingRules is the validated rule record consumed by the engine.
type SchedulingRules struct {
	DailyMaxMin             int            `json:"daily_max_min" toml:"daily_max_min"`
	WeekendMaxMin           int            `json:"weekend_max_min" toml:"weekend_max_min"`
	LighterWeekends         bool           `json:"lighter_weekends" toml:"lighter_weekends"`
	BreakAfterMin           int            `json:"break_after_min" toml:"break_after_min"`
	BreakDurationMin        int            `json:"break_duration_min" toml:"break_duration_min"`
	MaxContinuousSubjectMin int            `json:"max_continuous_subject_min" toml:"max_continuous_subject_min"`
	PreferredStartHour      int            `json:"preferred_start_hour" toml:"preferred_start_hour"`
	PreferredEndHour        int            `json:"preferred_end_hour" toml:"preferred_end_hour"`
	SleepStartHour          int            `json:"sleep_start_hour" toml:"sleep_start_hour"`
	SleepEndHour            int            `json:"sleep_end_hour" toml:"sleep_end_hour"`
	SlotDurationMin         int            `json:"slot_duration_min" toml:"slot_duration_min"`
	TermEnd                 *time.Time     `json:"term_end,omitempty" toml:"-"`
	Location                *time.Location `json:"-" toml:"-"`
}

// DefaultRules returns the rule record with every documented default.
func DefaultRules() SchedulingRules {
	return SchedulingRules{
		DailyMaxMin:             constants.DefaultDailyMaxMin,
		WeekendMaxMin:           constants.DefaultWeekendMaxMin,
		LighterWeekends:         constants.DefaultLighterWeekends,
		BreakAfterMin:           constants.DefaultBreakAfterMin,
		BreakDurationMin:        constants.DefaultBreakDurationMin,
		MaxContinuousSubjectMin: constants.DefaultMaxContinuousSubjectMin,
		PreferredStartHour:      constants.DefaultPreferredStartHour,
		PreferredEndHour:        constants.DefaultPreferredEndHour,
		SleepStartHour:          constants.DefaultSleepStartHour,
		SleepEndHour:            constants.DefaultSleepEndHour,
		SlotDurationMin:         constants.DefaultSlotDurationMin,
		Location:                time.Local,
	}
}

func (r *SchedulingRules) Loc() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

func (r *SchedulingRules) Validate() error {
	w := r.SlotDurationMin
	if w <= 0 || 60%w != 0 {
		return sperrors.NewInvalidConfiguration("rules.slot_duration_min",
			fmt.Sprintf("must be a positive divisor of 60, got %d", w))
	}
	if r.DailyMaxMin <= 0 {
		return sperrors.NewInvalidConfiguration("rules.daily_max_min", "must be greater than 0")
	}
	if r.DailyMaxMin > constants.MinutesPerDay {
		return sperrors.NewInvalidConfiguration("rules.daily_max_min", "cannot exceed a full day")
	}
	if r.WeekendMaxMin < 0 {
		return sperrors.NewInvalidConfiguration("rules.weekend_max_min", "cannot be negative")
	}
	if r.BreakAfterMin <= 0 || r.BreakDurationMin < 0 {
		return sperrors.NewInvalidConfiguration("rules.break_after_min", "break cadence must be positive")
	}
	if r.MaxContinuousSubjectMin <= 0 {
		return sperrors.NewInvalidConfiguration("rules.max_continuous_subject_min", "must be greater than 0")
	}
	hours := []struct {
		name string
		hour int
	}{
		{"preferred_start_hour", r.PreferredStartHour},
		{"preferred_end_hour", r.PreferredEndHour},
		{"sleep_start_hour", r.SleepStartHour},
		{"sleep_end_hour", r.SleepEndHour},
	}
	for _, h := range hours {
		if h.hour < 0 || h.hour > 23 {
			return sperrors.NewInvalidConfiguration("rules."+h.name, fmt.Sprintf("hour must be 0-23, got %d", h.hour))
		}
	}
	// Equal bounds would describe a window wrapping the whole day.
	if r.SleepStartHour == r.SleepEndHour {
		return sperrors.NewInvalidConfiguration("rules.sleep_start_hour", "sleep window spans the entire day")
	}
	if r.PreferredStartHour == r.PreferredEndHour {
		return sperrors.NewInvalidConfiguration("rules.preferred_start_hour", "preferred window spans the entire day")
	}
	return nil
}

// InSleepWindow reports whether the local hour falls inside [start, end), wrapping midnight.
func (r *SchedulingRules) InSleepWindow(hour int) bool {
	return inHourWindow(hour, r.SleepStartHour, r.SleepEndHour)
}

func (r *SchedulingRules) InPreferredWindow(hour int) bool {
	return inHourWindow(hour, r.PreferredStartHour, r.PreferredEndHour)
}

func inHourWindow(hour, start, end int) bool {
	if start < end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}
