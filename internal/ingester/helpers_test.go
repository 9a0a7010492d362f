package ingester

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/navid-fn/tickarchive/internal/crawler"
	"github.com/navid-fn/tickarchive/internal/faulttolerance"
	"github.com/navid-fn/tickarchive/internal/models"
	"github.com/navid-fn/tickarchive/internal/progress"
)

const (
	header  = "timestamp,symbol,side,size,price,tickDirection,trdMatchID,grossValue,homeNotional,foreignNotional"
	goodRow = "2015-09-25D12:34:25.706851000,XBTUSD,Buy,100,239.99,PlusTick,7ff37f6c-c4f6-4226-20f8-460ec68d4b50,41668000,0.4166,99.99"
	badSide = "2015-09-25D12:34:26.000000000,XBTUSD,Long,100,239.99,PlusTick,7ff37f6c-c4f6-4226-20f8-460ec68d4b51,41668000,0.4166,99.99"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func lines(ls ...string) string {
	return strings.Join(ls, "\n") + "\n"
}

func fastRetryer(attempts int) *faulttolerance.Retryer {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return faulttolerance.NewRetryer(faulttolerance.RetryConfig{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
	}, l)
}

// fakeSource serves gzip archives from memory, keyed by YYYY-MM-DD.
type fakeSource struct {
	t     *testing.T
	days  map[string]string
	raw   map[string][]byte
	mu    sync.Mutex
	opens []time.Time
}

func newFakeSource(t *testing.T, days map[string]string) *fakeSource {
	return &fakeSource{t: t, days: days, raw: map[string][]byte{}}
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Open(_ context.Context, day time.Time) (*crawler.Stream, error) {
	s.mu.Lock()
	s.opens = append(s.opens, day)
	s.mu.Unlock()

	key := day.Format(time.DateOnly)
	payload, ok := s.raw[key]
	if !ok {
		body, found := s.days[key]
		if !found {
			return nil, crawler.ErrNotFound
		}
		payload = gzipPayload(s.t, body)
	}
	return crawler.NewStream(io.NopCloser(bytes.NewReader(payload)), int64(len(payload)))
}

func gzipPayload(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

type saveCall struct {
	day   time.Time
	ticks []models.Tick
}

// fakeStorage records every call and fails the first failures calls.
type fakeStorage struct {
	mu       sync.Mutex
	calls    []saveCall
	failures int
	err      error
}

func (s *fakeStorage) Name() string { return "fake" }
func (s *fakeStorage) Close() error { return nil }

func (s *fakeStorage) SaveTicks(_ context.Context, day time.Time, ticks []models.Tick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, saveCall{day: day, ticks: ticks})
	if s.failures != 0 {
		if s.failures > 0 {
			s.failures--
		}
		return s.err
	}
	return nil
}

type recordReporter struct {
	mu        sync.Mutex
	snapshots []progress.Snapshot
}

func (r *recordReporter) Report(s progress.Snapshot) {
	r.mu.Lock()
	r.snapshots = append(r.snapshots, s)
	r.mu.Unlock()
}

type recordStatus struct {
	actions []string
}

func (r *recordStatus) SetAction(a string) { r.actions = append(r.actions, a) }
