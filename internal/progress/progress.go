// Package progress tracks long-running work and reports percentage, ETA and
// the current action to a Reporter.
package progress

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Snapshot is the state handed to a Reporter.
type Snapshot struct {
	Title   string
	Current int64
	Total   int64
	Percent float64
	// ETA is negative while it cannot be estimated.
	ETA    time.Duration
	Action string
	Done   bool
}

// String renders the snapshot as "title | 42% | ~1m30s | action".
func (s Snapshot) String() string {
	eta := "?"
	if s.ETA >= 0 {
		eta = s.ETA.Round(time.Second).String()
	}
	return fmt.Sprintf("%s | %.0f%% | ~%s | %s", s.Title, s.Percent, eta, s.Action)
}

// Reporter receives progress snapshots.
type Reporter interface {
	Report(Snapshot)
}

// Nop discards every snapshot.
type Nop struct{}

func (Nop) Report(Snapshot) {}

// Tracker tracks progress of one unit of work.
type Tracker struct {
	mu       sync.Mutex
	title    string
	total    int64
	current  int64
	action   string
	start    time.Time
	reporter Reporter
	now      func() time.Time
}

// NewTracker creates a tracker. A total <= 0 means unknown.
func NewTracker(title string, total int64, r Reporter) *Tracker {
	if r == nil {
		r = Nop{}
	}
	return &Tracker{
		title:    title,
		total:    total,
		start:    time.Now(),
		reporter: r,
		now:      time.Now,
	}
}

// SetTotal updates the expected total.
func (t *Tracker) SetTotal(total int64) {
	t.mu.Lock()
	t.total = total
	t.mu.Unlock()
}

// Update sets the current position and action and reports.
func (t *Tracker) Update(current int64, action string) {
	t.mu.Lock()
	t.current = current
	t.action = action
	s := t.snapshotLocked()
	t.mu.Unlock()
	t.reporter.Report(s)
}

// Increment advances the position by n and reports.
func (t *Tracker) Increment(n int64, action string) {
	t.mu.Lock()
	t.current += n
	if action != "" {
		t.action = action
	}
	s := t.snapshotLocked()
	t.mu.Unlock()
	t.reporter.Report(s)
}

// SetAction changes only the action label and reports.
func (t *Tracker) SetAction(action string) {
	t.mu.Lock()
	t.action = action
	s := t.snapshotLocked()
	t.mu.Unlock()
	t.reporter.Report(s)
}

// Stop reports a final snapshot marked as done.
func (t *Tracker) Stop() {
	t.mu.Lock()
	s := t.snapshotLocked()
	t.mu.Unlock()
	s.Done = true
	t.reporter.Report(s)
}

// Snapshot returns the current state without reporting it.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() Snapshot {
	s := Snapshot{
		Title:   t.title,
		Current: t.current,
		Total:   t.total,
		Action:  t.action,
		ETA:     -1,
	}
	if t.total <= 0 {
		return s
	}
	s.Percent = float64(t.current) / float64(t.total) * 100
	if s.Percent > 100 {
		s.Percent = 100
	}
	if t.current > 0 {
		elapsed := t.now().Sub(t.start)
		remaining := t.total - t.current
		if remaining < 0 {
			remaining = 0
		}
		s.ETA = time.Duration(float64(elapsed) / float64(t.current) * float64(remaining))
	}
	return s
}

// LogReporter writes snapshots through slog, at most once per interval for
// each title. Final snapshots are always written.
type LogReporter struct {
	logger   *slog.Logger
	interval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

// NewLogReporter creates a LogReporter.
func NewLogReporter(logger *slog.Logger, interval time.Duration) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{
		logger:   logger,
		interval: interval,
		last:     make(map[string]time.Time),
		now:      time.Now,
	}
}

func (r *LogReporter) Report(s Snapshot) {
	r.mu.Lock()
	now := r.now()
	if !s.Done {
		if last, ok := r.last[s.Title]; ok && now.Sub(last) < r.interval {
			r.mu.Unlock()
			return
		}
	}
	r.last[s.Title] = now
	if s.Done {
		delete(r.last, s.Title)
	}
	r.mu.Unlock()

	r.logger.Info(s.String(),
		"title", s.Title,
		"percent", fmt.Sprintf("%.1f", s.Percent),
		"action", s.Action,
	)
}
