package migrations

import "embed"

// FS contains embedded SQLite migrations for shared list storage.
//
//go:embed *.sql
var FS embed.FS
