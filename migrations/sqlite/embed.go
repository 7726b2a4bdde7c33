// Package sqlite embeds the SQLite flavour of the documents schema. It has
// no change trigger; the sqlite docstore is single-process and publishes
// its own writes.
package sqlite

import "embed"

// FS holds the SQLite *.sql migration files, for goose.DialectSQLite3.
//
//go:embed *.sql
var FS embed.FS
