// Package migrations embeds the ledger schema for each SQL dialect.
package migrations

import "embed"

//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
