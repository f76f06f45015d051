// Package migrations embeds the SQL schema migrations for the fulfillment
// service. Files are applied in lexical order by the migration runner at
// startup.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
