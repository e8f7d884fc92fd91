package system

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/julianstephens/studyplan/internal/cli"
	"github.com/julianstephens/studyplan/internal/keyring"
	"github.com/julianstephens/studyplan/internal/storage/postgres"
)

// KeyringSetCmd stores the PostgreSQL connection string in the OS keyring
type KeyringSetCmd struct {
	ConnectionString string `arg:"" help:"PostgreSQL connection string to store in keyring."`
}

func (cmd *KeyringSetCmd) Run(ctx *cli.Context) error {
	if !strings.HasPrefix(cmd.ConnectionString, "postgres://") &&
		!strings.HasPrefix(cmd.ConnectionString, "postgresql://") &&
		!strings.Contains(cmd.ConnectionString, "host=") {
		return errors.New("connection string must be a valid PostgreSQL connection string")
	}
	if _, err := postgres.ValidateConnString(cmd.ConnectionString); err != nil && !errors.Is(err, postgres.ErrEmbeddedCredentials) {
		return fmt.Errorf("invalid connection string: %w", err)
	}
	if err := keyring.SetConnectionString(cmd.ConnectionString); err != nil {
		return err
	}
	fmt.Fprintln(ctx.Out, "✓ Connection string stored in OS keyring")
	fmt.Fprintln(ctx.Out, "  Set [storage] driver = \"postgres\" to use it")
	return nil
}

type KeyringShowCmd struct{}

func (cmd *KeyringShowCmd) Run(ctx *cli.Context) error {
	connStr, err := keyring.GetConnectionString()
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return errors.New("no connection string found in keyring. Use 'studyplan keyring set' to store one")
		}
		return err
	}
	fmt.Fprintln(ctx.Out, maskPassword(connStr))
	return nil
}

type KeyringDeleteCmd struct{}

func (cmd *KeyringDeleteCmd) Run(ctx *cli.Context) error {
	if err := keyring.DeleteConnectionString(); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return errors.New("no connection string found in keyring")
		}
		return err
	}
	fmt.Fprintln(ctx.Out, "✓ Connection string deleted from OS keyring")
	return nil
}

// maskPassword hides any password in a URL or key=value connection string.
func maskPassword(connStr string) string {
	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		u, err := url.Parse(connStr)
		if err != nil || u.User == nil {
			return connStr
		}
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "xxxxx")
			return strings.Replace(u.String(), "xxxxx", "****", 1)
		}
		return connStr
	}
	fields := strings.Fields(connStr)
	for i, f := range fields {
		if strings.HasPrefix(f, "password=") {
			fields[i] = "password=****"
		}
	}
	return strings.Join(fields, " ")
}
