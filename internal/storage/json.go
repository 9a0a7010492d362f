package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/navid-fn/tickarchive/internal/models"
)

// JSONStorage writes <dir>/YYYYMMDD.json as an indented array.
type JSONStorage struct {
	fileSink
}

func NewJSONStorage(dir string) (*JSONStorage, error) {
	fs, err := newFileSink(dir)
	if err != nil {
		return nil, err
	}
	return &JSONStorage{fileSink: fs}, nil
}

func (s *JSONStorage) Name() string { return SinkJSON }

func (s *JSONStorage) SaveTicks(ctx context.Context, day time.Time, ticks []models.Tick) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ticks == nil {
		ticks = []models.Tick{}
	}
	path := s.Path(day, "json")
	err := s.writeAtomic(path, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(ticks)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s *JSONStorage) Close() error { return nil }
