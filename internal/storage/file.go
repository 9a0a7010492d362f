package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// fileSink holds what the per-day file sinks share: the output directory and
// an atomic write helper.
type fileSink struct {
	dir string
}

func newFileSink(dir string) (fileSink, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fileSink{}, fmt.Errorf("create output dir: %w", err)
	}
	return fileSink{dir: dir}, nil
}

// Path returns where the file for day is written.
func (s fileSink) Path(day time.Time, ext string) string {
	return filepath.Join(s.dir, dayFile(day, ext))
}

// writeAtomic lets write fill a temp file in the output directory, then
// renames it over the final path. Readers never observe a half written day.
func (s fileSink) writeAtomic(path string, write func(f *os.File) error) (err error) {
	tmp, err := os.CreateTemp(s.dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
