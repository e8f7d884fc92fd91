package errors

import (
	"errors"
	"fmt"
	"os"

	"github.com/julianstephens/studyplan/internal/logger"
)

var (
	// ErrInvalidConfiguration matches any *InvalidConfigurationError
	ErrInvalidConfiguration = errors.New("invalid configuration")
	// ErrConcurrentModification matches any *ConcurrentModificationError
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrVersionNotFound matches any *VersionNotFoundError
	ErrVersionNotFound = errors.New("plan version not found")
	// ErrNoPendingPreview is returned by confirm when nothing was ever generated for the user
	ErrNoPendingPreview = errors.New("no pending preview")
)

// InvalidConfigurationError rejects a generate call before allocation runs.
type InvalidConfigurationError struct {
	Field  string
	Reason string
}

func NewInvalidConfiguration(field, reason string) *InvalidConfigurationError {
	return &InvalidConfigurationError{Field: field, Reason: reason}
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *InvalidConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// ConcurrentModificationError is returned when a confirm targets a preview
// that is no longer the newest one, or whose base version is no longer current.
type ConcurrentModificationError struct {
	UserID    string
	PreviewID string
	Reason    string
}

func (e *ConcurrentModificationError) Error() string {
	if e.PreviewID == "" {
		return fmt.Sprintf("concurrent modification for user %s: %s", e.UserID, e.Reason)
	}
	return fmt.Sprintf("concurrent modification for user %s (preview %s): %s", e.UserID, e.PreviewID, e.Reason)
}

func (e *ConcurrentModificationError) Is(target error) bool {
	return target == ErrConcurrentModification
}

type VersionNotFoundError struct {
	UserID  string
	Version int
}

func (e *VersionNotFoundError) Error() string {
	return fmt.Sprintf("plan version %d not found for user %s", e.Version, e.UserID)
}

func (e *VersionNotFoundError) Is(target error) bool {
	return target == ErrVersionNotFound
}

// Format formats an error message with a consistent "Error: " prefix
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

// Formatf formats an error message with a consistent "Error: " prefix using a format string
func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Fatal logs an error and exits the program with exit code 1
func Fatal(err error) {
	if err != nil {
		logger.Error("Command execution failed", "error", err)
		fmt.Fprintf(os.Stderr, "%s\n", Format(err))
		os.Exit(1)
	}
}

// Fatalf logs and formats an error message, then exits the program with exit code 1
func Fatalf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logger.Error("Command execution failed", "error", msg)
	fmt.Fprintf(os.Stderr, "%s\n", Formatf(format, args...))
	os.Exit(1)
}
