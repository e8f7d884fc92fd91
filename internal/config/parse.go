package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/julianstephens/studyplan/internal/constants"
)

var weekdays = map[string]time.Weekday{
	"sun":       time.Sunday,
	"sunday":    time.Sunday,
	"mon":       time.Monday,
	"monday":    time.Monday,
	"tue":       time.Tuesday,
	"tuesday":   time.Tuesday,
	"wed":       time.Wednesday,
	"wednesday": time.Wednesday,
	"thu":       time.Thursday,
	"thursday":  time.Thursday,
	"fri":       time.Friday,
	"friday":    time.Friday,
	"sat":       time.Saturday,
	"saturday":  time.Saturday,
}

// ParseWeekday accepts full or three-letter names, or 0 (Sunday) to 6.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if wd, ok := weekdays[s]; ok {
		return wd, nil
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	return 0, fmt.Errorf("invalid weekday: %s", s)
}

// ParseTimeToMinutes parses HH:MM into minutes after midnight. 24:00 is
// accepted as the end of the day.
func ParseTimeToMinutes(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "24:00" {
		return constants.MinutesPerDay, nil
	}
	t, err := time.Parse(constants.TimeFormat, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time format: %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// ParseRange parses "HH:MM-HH:MM" into a half-open minute range.
func ParseRange(s string) (int, int, error) {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid range %q (expected HH:MM-HH:MM)", s)
	}
	start, err := ParseTimeToMinutes(from)
	if err != nil {
		return 0, 0, err
	}
	end, err := ParseTimeToMinutes(to)
	if err != nil {
		return 0, 0, err
	}
	if end <= start {
		return 0, 0, fmt.Errorf("range %q ends before it starts", s)
	}
	return start, end, nil
}
