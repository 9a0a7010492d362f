// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tickarchive"

// Day outcome labels.
const (
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Metrics groups the pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Lines       prometheus.Counter
	Accepted    prometheus.Counter
	Rejected    *prometheus.CounterVec
	Days        *prometheus.CounterVec
	DayDuration prometheus.Histogram
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Lines: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_total",
			Help:      "Raw lines read from daily archives.",
		}),
		Accepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_accepted_total",
			Help:      "Rows that passed validation.",
		}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_rejected_total",
			Help:      "Rows discarded by validation, by reason.",
		}, []string{"reason"}),
		Days: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "days_total",
			Help:      "Processed days by outcome.",
		}, []string{"status"}),
		DayDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "day_duration_seconds",
			Help:      "Wall time to download, clean and persist one day.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

// ObserveRows adds the row counters of one day.
func (m *Metrics) ObserveRows(lines, accepted int, rejected map[string]int) {
	if m == nil {
		return
	}
	m.Lines.Add(float64(lines))
	m.Accepted.Add(float64(accepted))
	for reason, n := range rejected {
		m.Rejected.WithLabelValues(reason).Add(float64(n))
	}
}

// ObserveDay records the outcome of one day.
func (m *Metrics) ObserveDay(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Days.WithLabelValues(status).Inc()
	if status == StatusOK {
		m.DayDuration.Observe(d.Seconds())
	}
}

// Serve exposes g on addr under /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
