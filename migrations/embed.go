// Package migrations embeds the gateway schema into the binary.
//
// Files are named YYYYMMDD_HHMMSS_description.up.sql and applied in version
// order by database.Migrate. Every statement must be idempotent so that a
// store created by an older deployment is adopted rather than rejected.
package migrations

import "embed"

// FS holds the embedded *.sql migration files at its root.
//
//go:embed *.sql
var FS embed.FS
