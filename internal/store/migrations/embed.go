// Package migrations embeds the SQL schema of the result store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
