package storage

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/navid-fn/tickarchive/internal/models"
)

// ParquetStorage writes <dir>/YYYYMMDD.parquet using the parquet tags on models.Tick.
type ParquetStorage struct {
	fileSink
}

func NewParquetStorage(dir string) (*ParquetStorage, error) {
	fs, err := newFileSink(dir)
	if err != nil {
		return nil, err
	}
	return &ParquetStorage{fileSink: fs}, nil
}

func (s *ParquetStorage) Name() string { return SinkParquet }

func (s *ParquetStorage) SaveTicks(ctx context.Context, day time.Time, ticks []models.Tick) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.Path(day, "parquet")
	err := s.writeAtomic(path, func(f *os.File) error {
		w := parquet.NewGenericWriter[models.Tick](f)
		if _, err := w.Write(ticks); err != nil {
			return err
		}
		return w.Close()
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s *ParquetStorage) Close() error { return nil }
