package constants

const (
	// Scheduling rule defaults
	DefaultSlotDurationMin         = 15
	DefaultDailyMaxMin             = 8 * 60
	DefaultWeekendMaxMin           = 4 * 60
	DefaultLighterWeekends         = true
	DefaultBreakAfterMin           = 90
	DefaultBreakDurationMin        = 15
	DefaultMaxContinuousSubjectMin = 120
	DefaultPreferredStartHour      = 8
	DefaultPreferredEndHour        = 22
	DefaultSleepStartHour          = 23
	DefaultSleepEndHour            = 7
	DefaultTimezone                = "Local"

	// Task defaults
	DefaultDifficulty  = 3
	MinDifficulty      = 1
	MaxDifficulty      = 5
	DefaultMinBlockMin = 30
	DefaultMaxBlockMin = 120

	// DifficultyBufferStep is the effort multiplier added per difficulty point above 3
	DifficultyBufferStep = 0.1

	// Engine defaults
	DefaultLookAheadSlots     = 8
	DefaultDueProximityHours  = 48
	DefaultWeightSubject      = 4.0
	DefaultWeightBreak        = 4.0
	DefaultWeightFocusWindow  = 1.0
	DefaultWeightWeekend      = 2.0
	DefaultWeightDueProximity = 3.0
	DefaultWeightPastDue      = 10.0
	DefaultWriteQuota         = 0
)
