// Package migrations holds the ordered SQL schema files applied at start.
package migrations

import "embed"

//go:embed *.sql
var Files embed.FS
