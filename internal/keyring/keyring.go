// Package keyring keeps the PostgreSQL connection string out of the config
// file by storing it in the OS keyring.
package keyring

import (
	"errors"
	"fmt"
	"os"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/studyplan/internal/constants"
)

var (
	// ErrNotFound is returned when no credentials are found in the keyring
	ErrNotFound = errors.New("credentials not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring is not available
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

func GetConnectionString() (string, error) {
	connStr, err := keyring.Get(constants.AppName, constants.DefaultKeyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return connStr, nil
}

func SetConnectionString(connStr string) error {
	if connStr == "" {
		return errors.New("connection string cannot be empty")
	}
	if err := keyring.Set(constants.AppName, constants.DefaultKeyringUser, connStr); err != nil {
		return fmt.Errorf("failed to store credentials in keyring: %w", err)
	}
	return nil
}

func DeleteConnectionString() error {
	err := keyring.Delete(constants.AppName, constants.DefaultKeyringUser)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete credentials from keyring: %w", err)
	}
	return nil
}

// ResolveConnectionString picks the PostgreSQL connection string from, in
// order, the configured DSN, the keyring and the STUDYPLAN_DB_CONNECTION
// environment variable.
func ResolveConnectionString(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	connStr, err := GetConnectionString()
	if err == nil {
		return connStr, nil
	}
	if env := os.Getenv(constants.DBConnectionEnv); env != "" {
		return env, nil
	}
	if errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("no PostgreSQL connection string: set storage.dsn, run 'studyplan keyring set', or export %s", constants.DBConnectionEnv)
	}
	return "", err
}
