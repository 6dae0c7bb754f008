// Package migrations embeds the per-dialect SQL migration files.
package migrations

import "embed"

// FS holds the embedded SQL migration files, one directory per dialect
// (sqlite, postgres).
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
