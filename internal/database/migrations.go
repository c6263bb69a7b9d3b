// Package database содержит SQL-миграции схемы и подключение к PostgreSQL.
package database

import "embed"

// MigrationsFS - встроенные SQL-миграции.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS

// MigrationsPath - каталог миграций внутри MigrationsFS.
const MigrationsPath = "migrations"
