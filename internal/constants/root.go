package constants

import "time"

const (
	AppName            = "studyplan"
	DefaultKeyringUser = "database-connection"
	DefaultConfigDir   = "~/.config/studyplan"
	DefaultDBPath      = "~/.config/studyplan/studyplan.db"
	DefaultConfigFile  = "~/.config/studyplan/studyplan.toml"
	DefaultUser        = "default"
	Version            = "v0.1.0"

	// DBConnectionEnv holds a PostgreSQL connection string when the keyring is unavailable
	DBConnectionEnv = "STUDYPLAN_DB_CONNECTION"

	// DateFormat is the standard date format used throughout the application (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the standard time format used throughout the application (HH:MM)
	TimeFormat = "15:04"

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "studyplan-"
	BackupFileSuffix = ".db"

	MinutesPerDay = 24 * 60
	DaysPerWeek   = 7

	// HorizonPadding is added to the earliest active due date when computing the horizon end
	HorizonPadding = 14 * 24 * time.Hour
)
