// Package migrations embeds the goose schema migrations of the SQL sinks.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed clickhouse/*.sql postgres/*.sql
var files embed.FS

// Dialects maps a sink name to its goose dialect.
var Dialects = map[string]string{
	"clickhouse": "clickhouse",
	"postgres":   "postgres",
}

// For returns the migration files of the given sink, rooted at the directory
// holding the .sql files.
func For(sink string) (fs.FS, error) {
	if _, ok := Dialects[sink]; !ok {
		return nil, fmt.Errorf("no migrations for sink %q", sink)
	}
	return fs.Sub(files, sink)
}
