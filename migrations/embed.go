// Package migrations embeds the SQL schema so the server binary is self-contained.
package migrations

import "embed"

// FS holds every numbered *.sql migration
//
//go:embed *.sql
var FS embed.FS
