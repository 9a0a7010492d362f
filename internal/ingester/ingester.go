// Package ingester drives the day by day archive pipeline: it downloads each
// day, validates its rows and hands the accepted ticks to storage.
// Days are processed strictly one after another.
package ingester

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/navid-fn/tickarchive/internal/metrics"
	"github.com/navid-fn/tickarchive/internal/progress"
	"github.com/navid-fn/tickarchive/internal/validator"
)

// ErrInvalidRange is returned before any work when the range is empty or unset.
var ErrInvalidRange = errors.New("invalid date range")

// Policy decides what a failed day does to the rest of the range.
type Policy string

const (
	// PolicyAbort stops the range at the first failed day.
	PolicyAbort Policy = "abort"
	// PolicySkip records the failed day and moves on.
	PolicySkip Policy = "skip"
)

// DayProcessor processes a single day. *DayPipeline implements it.
type DayProcessor interface {
	Process(ctx context.Context, day time.Time) (Report, error)
}

// Checkpointer records the last completed day.
type Checkpointer interface {
	Save(day time.Time) error
}

// Config holds runner configuration parameters.
type Config struct {
	OnDayError Policy
	Checkpoint Checkpointer
	Metrics    *metrics.Metrics
	// Tracker receives range level progress; one step per day.
	Tracker *progress.Tracker
}

// Summary aggregates the reports of every completed day.
type Summary struct {
	Days     int
	Lines    int
	Accepted int
	Rejected int
	ByKind   map[validator.Kind]int
	Failed   []time.Time
	Duration time.Duration
}

func (s *Summary) add(r Report) {
	s.Days++
	s.Lines += r.Lines
	s.Accepted += r.Accepted
	s.Rejected += r.Rejected
	for k, n := range r.ByKind {
		s.ByKind[k] += n
	}
}

// Runner walks a date range.
type Runner struct {
	days   DayProcessor
	logger *slog.Logger
	cfg    Config
}

func NewRunner(days DayProcessor, logger *slog.Logger, cfg Config) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OnDayError == "" {
		cfg.OnDayError = PolicyAbort
	}
	return &Runner{days: days, logger: logger, cfg: cfg}
}

// CountDays returns the number of days in [start, end).
func CountDays(start, end time.Time) int {
	n := 0
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		n++
	}
	return n
}

// Run processes every day in [start, end). Cancellation is honoured between
// days only; a day that has started runs to completion. Under PolicyAbort the
// first failed day ends the run with its error. Days stored before a failure
// stay stored.
func (r *Runner) Run(ctx context.Context, start, end time.Time) (summary Summary, err error) {
	summary.ByKind = make(map[validator.Kind]int)
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return summary, fmt.Errorf("%w: start %s, end %s", ErrInvalidRange,
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	began := time.Now()
	defer func() { summary.Duration = time.Since(began) }()

	total := CountDays(start, end)
	if r.cfg.Tracker != nil {
		r.cfg.Tracker.SetTotal(int64(total))
		defer r.cfg.Tracker.Stop()
	}
	r.logger.Info("Starting range",
		"start", start.Format(time.DateOnly),
		"end", end.Format(time.DateOnly),
		"days", total,
		"on_day_error", r.cfg.OnDayError,
	)

	done := 0
	for day := start; day.Before(end); day = day.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("Stopping before next day", "next", day.Format(time.DateOnly), "reason", err)
			return summary, err
		}

		report, err := r.days.Process(context.WithoutCancel(ctx), day)
		done++
		if err != nil {
			if r.cfg.OnDayError != PolicySkip {
				r.cfg.Metrics.ObserveDay(metrics.StatusFailed, 0)
				return summary, err
			}
			r.cfg.Metrics.ObserveDay(metrics.StatusSkipped, 0)
			r.logger.Warn("Skipping failed day", "day", day.Format(time.DateOnly), "error", err)
			summary.Failed = append(summary.Failed, day)
			r.step(done, "Skipped "+day.Format(time.DateOnly))
			continue
		}

		summary.add(report)
		r.cfg.Metrics.ObserveDay(metrics.StatusOK, report.Duration)
		if r.cfg.Checkpoint != nil {
			if err := r.cfg.Checkpoint.Save(day); err != nil {
				r.logger.Error("Checkpoint not saved", "day", day.Format(time.DateOnly), "error", err)
			}
		}
		r.step(done, "Done "+day.Format(time.DateOnly))
	}

	return summary, nil
}

func (r *Runner) step(done int, action string) {
	if r.cfg.Tracker != nil {
		r.cfg.Tracker.Update(int64(done), action)
	}
}
