package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/julianstephens/studyplan/internal/constants"
)

// Logger is the process-wide logger. It stays nil until Init runs, and every
// helper below is a no-op until then.
var Logger *log.Logger

type Config struct {
	Debug     bool
	ConfigDir string
	// Output replaces the rotating log file when set.
	Output io.Writer
}

// Path returns the log file location for a config directory.
func Path(configDir string) string {
	return filepath.Join(configDir, "logs", constants.AppName+".log")
}

func Init(cfg Config) error {
	writer := cfg.Output
	if writer == nil {
		logFile := Path(cfg.ConfigDir)
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			return err
		}
		writer = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}

	level := log.InfoLevel
	if cfg.Debug {
		level = log.DebugLevel
		// Debug mode mirrors everything to stderr.
		writer = io.MultiWriter(os.Stderr, writer)
	}

	Logger = log.NewWithOptions(writer, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          constants.AppName,
	})
	return nil
}

func Debug(msg string, keyvals ...any) {
	if Logger != nil {
		Logger.Debug(msg, keyvals...)
	}
}

func Info(msg string, keyvals ...any) {
	if Logger != nil {
		Logger.Info(msg, keyvals...)
	}
}

func Warn(msg string, keyvals ...any) {
	if Logger != nil {
		Logger.Warn(msg, keyvals...)
	}
}

func Error(msg string, keyvals ...any) {
	if Logger != nil {
		Logger.Error(msg, keyvals...)
	}
}

// Fatal logs a fatal error and exits
func Fatal(msg string, keyvals ...any) {
	if Logger != nil {
		Logger.Fatal(msg, keyvals...)
	}
	os.Exit(1)
}
