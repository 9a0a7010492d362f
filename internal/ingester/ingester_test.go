package ingester

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navid-fn/tickarchive/internal/checkpoint"
	"github.com/navid-fn/tickarchive/internal/metrics"
	"github.com/navid-fn/tickarchive/internal/progress"
	"github.com/navid-fn/tickarchive/internal/validator"
)

// scriptedDays returns a fixed report per call and fails the days in fail.
type scriptedDays struct {
	calls  []time.Time
	fail   map[string]error
	during func(n int)
}

func (s *scriptedDays) Process(ctx context.Context, day time.Time) (Report, error) {
	s.calls = append(s.calls, day)
	if s.during != nil {
		s.during(len(s.calls))
	}
	if ctx.Err() != nil {
		return Report{}, ctx.Err()
	}
	if err := s.fail[day.Format(time.DateOnly)]; err != nil {
		return Report{Day: day}, err
	}
	n := len(s.calls)
	return Report{
		Day:      day,
		Lines:    10 * n,
		Accepted: 7 * n,
		Rejected: 3 * n,
		ByKind:   map[validator.Kind]int{validator.HeaderRow: 1, validator.AmountMismatch: 3*n - 1},
	}, nil
}

func TestRun_InvalidRange(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
	}{
		{"zero start", time.Time{}, date(2015, 9, 26)},
		{"zero end", date(2015, 9, 25), time.Time{}},
		{"empty", date(2015, 9, 25), date(2015, 9, 25)},
		{"reversed", date(2015, 9, 26), date(2015, 9, 25)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days := &scriptedDays{}
			_, err := NewRunner(days, quietLogger(), Config{}).Run(context.Background(), tt.start, tt.end)
			assert.ErrorIs(t, err, ErrInvalidRange)
			assert.Empty(t, days.calls)
		})
	}
}

func TestRun_SummaryIsSumOfDays(t *testing.T) {
	days := &scriptedDays{}
	rep := &recordReporter{}
	tracker := progress.NewTracker("range", 0, rep)

	summary, err := NewRunner(days, quietLogger(), Config{Tracker: tracker}).
		Run(context.Background(), date(2015, 9, 25), date(2015, 9, 28))
	require.NoError(t, err)

	assert.Equal(t, []time.Time{date(2015, 9, 25), date(2015, 9, 26), date(2015, 9, 27)}, days.calls)
	assert.Equal(t, 3, summary.Days)
	assert.Equal(t, 60, summary.Lines)
	assert.Equal(t, 42, summary.Accepted)
	assert.Equal(t, 18, summary.Rejected)
	assert.Equal(t, summary.Lines, summary.Accepted+summary.Rejected)
	assert.Equal(t, 3, summary.ByKind[validator.HeaderRow])
	assert.Equal(t, 15, summary.ByKind[validator.AmountMismatch])
	assert.Empty(t, summary.Failed)

	final := rep.snapshots[len(rep.snapshots)-1]
	assert.True(t, final.Done)
	assert.Equal(t, int64(3), final.Current)
	assert.Equal(t, int64(3), final.Total)
	assert.Equal(t, 100.0, final.Percent)
}

func TestRun_CrossesMonthBoundary(t *testing.T) {
	days := &scriptedDays{}

	summary, err := NewRunner(days, quietLogger(), Config{}).Run(context.Background(), date(2016, 2, 28), date(2016, 3, 2))
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Days)
	assert.Equal(t, date(2016, 2, 29), days.calls[1])
	assert.Equal(t, 3, CountDays(date(2016, 2, 28), date(2016, 3, 2)))
}

func TestRun_AbortStopsAtFirstFailure(t *testing.T) {
	boom := errors.New("archive corrupt")
	days := &scriptedDays{fail: map[string]error{"2015-09-26": boom}}
	store := checkpoint.New(t.TempDir())
	m := metrics.New(prometheus.NewRegistry())

	summary, err := NewRunner(days, quietLogger(), Config{Checkpoint: store, Metrics: m}).
		Run(context.Background(), date(2015, 9, 25), date(2015, 9, 28))

	assert.ErrorIs(t, err, boom)
	assert.Len(t, days.calls, 2)
	assert.Equal(t, 1, summary.Days)

	last, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, date(2015, 9, 25), last)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Days.WithLabelValues(metrics.StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Days.WithLabelValues(metrics.StatusFailed)))
}

func TestRun_SkipContinues(t *testing.T) {
	boom := errors.New("archive corrupt")
	days := &scriptedDays{fail: map[string]error{"2015-09-26": boom}}
	store := checkpoint.New(t.TempDir())
	m := metrics.New(prometheus.NewRegistry())

	summary, err := NewRunner(days, quietLogger(), Config{OnDayError: PolicySkip, Checkpoint: store, Metrics: m}).
		Run(context.Background(), date(2015, 9, 25), date(2015, 9, 28))
	require.NoError(t, err)

	assert.Len(t, days.calls, 3)
	assert.Equal(t, 2, summary.Days)
	assert.Equal(t, []time.Time{date(2015, 9, 26)}, summary.Failed)

	last, _, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, date(2015, 9, 27), last)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Days.WithLabelValues(metrics.StatusSkipped)))
}

func TestRun_CancellationBetweenDays(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	days := &scriptedDays{during: func(n int) {
		if n == 1 {
			cancel()
		}
	}}

	summary, err := NewRunner(days, quietLogger(), Config{}).Run(ctx, date(2015, 9, 25), date(2015, 9, 28))

	assert.ErrorIs(t, err, context.Canceled)
	// The day in flight finished with an uncancelled context.
	assert.Len(t, days.calls, 1)
	assert.Equal(t, 1, summary.Days)
}

func TestRun_WithPipeline(t *testing.T) {
	src := newFakeSource(t, map[string]string{
		"2015-09-25": lines(header, goodRow, badSide),
		"2015-09-26": lines(header, goodRow, goodRow+" "),
	})
	store := &fakeStorage{}
	pipeline := newPipeline(src, store, PipelineOptions{})

	summary, err := NewRunner(pipeline, quietLogger(), Config{}).Run(context.Background(), date(2015, 9, 25), date(2015, 9, 27))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Days)
	assert.Equal(t, 6, summary.Lines)
	assert.Equal(t, 3, summary.Accepted)
	assert.Equal(t, 3, summary.Rejected)
	assert.Len(t, store.calls, 2)
}
