// Package migrations holds the numbered schema migrations of both stores.
// Files are applied once each, in name order.
package migrations

import "embed"

//go:embed sqlite/*.sql
var SQLite embed.FS

//go:embed postgres/*.sql
var Postgres embed.FS
