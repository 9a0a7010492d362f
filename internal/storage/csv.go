package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/navid-fn/tickarchive/internal/models"
)

// CSVStorage writes <dir>/YYYYMMDD.csv with a header row.
type CSVStorage struct {
	fileSink
}

func NewCSVStorage(dir string) (*CSVStorage, error) {
	fs, err := newFileSink(dir)
	if err != nil {
		return nil, err
	}
	return &CSVStorage{fileSink: fs}, nil
}

func (s *CSVStorage) Name() string { return SinkCSV }

func (s *CSVStorage) SaveTicks(ctx context.Context, day time.Time, ticks []models.Tick) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.Path(day, "csv")
	err := s.writeAtomic(path, func(f *os.File) error {
		w := csv.NewWriter(f)
		if err := w.Write(models.CSVHeader); err != nil {
			return err
		}
		for i := range ticks {
			if err := w.Write(ticks[i].Record()); err != nil {
				return err
			}
		}
		w.Flush()
		return w.Error()
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s *CSVStorage) Close() error { return nil }
