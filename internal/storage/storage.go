// Package storage persists the validated ticks of one day to the configured sink.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/navid-fn/tickarchive/internal/models"
)

// Storage defines the interface for persisting one day of ticks.
// SaveTicks is called at most once per day and receives the ticks in row order.
type Storage interface {
	// SaveTicks writes every tick of day. A partial write must be reported as an error.
	SaveTicks(ctx context.Context, day time.Time, ticks []models.Tick) error

	// Name identifies the sink in logs and metrics.
	Name() string

	// Close releases files, connections and writers.
	Close() error
}

const (
	SinkCSV        = "csv"
	SinkParquet    = "parquet"
	SinkJSON       = "json"
	SinkClickHouse = "clickhouse"
	SinkPostgres   = "postgres"
	SinkKafka      = "kafka"
)

// Sinks lists every supported sink name.
var Sinks = []string{SinkCSV, SinkParquet, SinkJSON, SinkClickHouse, SinkPostgres, SinkKafka}

// Config selects and configures a sink.
type Config struct {
	Sink          string
	OutputDir     string
	ClickHouseDSN string
	PostgresDSN   string
	KafkaBroker   string
	KafkaTopic    string
}

// New builds the sink named by cfg.Sink. Database sinks verify connectivity
// before returning.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Sink {
	case "", SinkCSV:
		return NewCSVStorage(cfg.OutputDir)
	case SinkParquet:
		return NewParquetStorage(cfg.OutputDir)
	case SinkJSON:
		return NewJSONStorage(cfg.OutputDir)
	case SinkClickHouse:
		return NewClickHouseStorage(ctx, cfg.ClickHouseDSN)
	case SinkPostgres:
		return NewPostgresStorage(ctx, cfg.PostgresDSN, logger)
	case SinkKafka:
		return NewKafkaStorage(cfg.KafkaBroker, cfg.KafkaTopic), nil
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}

// dayFile returns the per-day file name with the given extension, e.g. "20150925.csv".
func dayFile(day time.Time, ext string) string {
	return day.Format("20060102") + "." + ext
}
