// Package migrations embeds the postgres schema of the catalog database.
package migrations

import "embed"

// FS holds the versioned up/down SQL files
//
//go:embed *.sql
var FS embed.FS
