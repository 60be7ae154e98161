package db

import "embed"

// MigrationFS embeds the attendance schema from internal/db/migrations.
// Used by the migrate runner (cmd/migrate and the server's -migrate flag).
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
