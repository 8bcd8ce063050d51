// Package migrations embeds the forvm schema for golang-migrate.
package migrations

import "embed"

// FS holds the numbered up/down migrations.
//
//go:embed *.sql
var FS embed.FS
