package migrations

import "embed"

// FS contains embedded SQLite migrations for the persisted cache tier.
//
//go:embed *.sql
var FS embed.FS
