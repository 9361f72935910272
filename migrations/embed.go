// Package migrations embeds the SQL schema migrations into the binary.
//
// Files are named YYYYMMDD_HHMMSS_description.{up,down}.sql and applied in
// version order by database.DB.Migrate.
package migrations

import "embed"

// FS holds every migration file at its root.
//
//go:embed *.sql
var FS embed.FS
