// Package checkpoint remembers the last fully stored day so an interrupted
// range can be resumed.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileName is the checkpoint file kept in the output directory.
const FileName = ".lastday.json"

type state struct {
	LastDay   string    `json:"last_day"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store reads and writes the checkpoint file.
type Store struct {
	path string
	now  func() time.Time
}

func New(dir string) *Store {
	return &Store{path: filepath.Join(dir, FileName), now: time.Now}
}

func (s *Store) Path() string { return s.path }

// Load returns the last completed day. ok is false when no checkpoint exists.
func (s *Store) Load() (day time.Time, ok bool, err error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return time.Time{}, false, fmt.Errorf("decode %s: %w", s.path, err)
	}
	day, err = time.Parse(time.DateOnly, st.LastDay)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return day, true, nil
}

// Save records day as completed. The file is replaced atomically.
func (s *Store) Save(day time.Time) error {
	data, err := json.MarshalIndent(state{
		LastDay:   day.UTC().Format(time.DateOnly),
		UpdatedAt: s.now().UTC(),
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Resolve returns the day iteration should begin at: the day after the
// checkpoint when it is on or after start, start otherwise.
func (s *Store) Resolve(start time.Time) (time.Time, error) {
	last, ok, err := s.Load()
	if err != nil || !ok {
		return start, err
	}
	if last.Before(start) {
		return start, nil
	}
	return last.AddDate(0, 0, 1), nil
}
