// Package crawler opens the daily trade archives, either over HTTP or from a
// local directory, and exposes them as decompressed text streams.
package crawler

import (
	"context"
	"errors"
	"time"
)

// DefaultBaseURL is where the public exchange publishes one gzip CSV per UTC day.
const DefaultBaseURL = "https://s3-eu-west-1.amazonaws.com/public.bitmex.com/data/trade"

// ErrNotFound is returned when no archive exists for the requested day.
var ErrNotFound = errors.New("archive not found")

// Source produces the decompressed line stream of one day.
type Source interface {
	// Open returns the day's stream. The caller must Close it.
	Open(ctx context.Context, day time.Time) (*Stream, error)
	Name() string
}

// ArchiveName returns the file name of a day's archive, e.g. "20150925.csv.gz".
func ArchiveName(day time.Time) string {
	return day.Format("20060102") + ".csv.gz"
}
