// Package migrations embeds the SQLite schema so neolinkd can migrate
// without SQL files on disk.
package migrations

import "embed"

// FS holds every *.sql migration at its root, ready for database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
