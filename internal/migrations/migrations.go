// Package migrations embeds the PostgreSQL schema for rewards and room
// occupancy.
package migrations

import "embed"

// Files holds NNN_name.sql files, applied in name order by
// store.ApplyMigrations.
//
//go:embed *.sql
var Files embed.FS
