// Package db holds the postgres schema migrations.
package db

import "embed"

// Migrations contains the golang-migrate *.up.sql / *.down.sql files.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that holds the files.
const MigrationsDir = "migrations"
