// Package db embeds the goose migrations so the binary can migrate any
// environment without shipping .sql files alongside it.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
