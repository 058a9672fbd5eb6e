// Package migrations holds the bun migration set for notecore's
// tables, one file per migration, each registering itself via init().
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registry every migration file in this package
// appends to via init().
var Migrations = migrate.NewMigrations()
