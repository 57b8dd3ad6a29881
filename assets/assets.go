// Package assets embeds the server's SQL migrations.
package assets

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
