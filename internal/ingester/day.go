package ingester

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/navid-fn/tickarchive/internal/crawler"
	"github.com/navid-fn/tickarchive/internal/faulttolerance"
	"github.com/navid-fn/tickarchive/internal/metrics"
	"github.com/navid-fn/tickarchive/internal/storage"
	"github.com/navid-fn/tickarchive/internal/validator"
)

// Report summarises one processed day.
type Report struct {
	Day      time.Time
	Lines    int
	Accepted int
	Rejected int
	ByKind   map[validator.Kind]int
	Duration time.Duration
}

// Status receives the current step label, e.g. "Inserting 2015-09-25".
type Status interface {
	SetAction(action string)
}

// PipelineOptions holds the optional collaborators of a DayPipeline.
type PipelineOptions struct {
	// Retryer bounds retries of the persistence step. Nil means a single attempt.
	Retryer *faulttolerance.Retryer
	Metrics *metrics.Metrics
	Status  Status
}

// DayPipeline downloads, cleans and stores one day.
type DayPipeline struct {
	source  crawler.Source
	storage storage.Storage
	decoder *Decoder
	logger  *slog.Logger
	opts    PipelineOptions
}

func NewDayPipeline(source crawler.Source, store storage.Storage, decoder *Decoder, logger *slog.Logger, opts PipelineOptions) *DayPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &DayPipeline{
		source:  source,
		storage: store,
		decoder: decoder,
		logger:  logger,
		opts:    opts,
	}
}

// Process runs the three steps of one day. A download or read failure and a
// persistence failure that survives the retries are returned as errors; bad
// rows never are. Storage is called even when no row was accepted.
func (p *DayPipeline) Process(ctx context.Context, day time.Time) (Report, error) {
	started := time.Now()
	date := day.Format(time.DateOnly)
	logger := p.logger.With("day", date)

	p.setAction("Downloading " + date)
	stream, err := p.source.Open(ctx, day)
	if err != nil {
		logger.Error("Download failed", "source", p.source.Name(), "error", err)
		return Report{Day: day}, fmt.Errorf("download %s: %w", date, err)
	}
	defer stream.Close()

	p.setAction("Cleaning " + date)
	batch, err := p.decoder.Decode(ctx, stream, day)
	if err != nil {
		logger.Error("Reading archive failed", "lines", batch.Lines, "error", err)
		return Report{Day: day}, fmt.Errorf("clean %s: %w", date, err)
	}

	report := Report{
		Day:      day,
		Lines:    batch.Lines,
		Accepted: batch.Accepted(),
		Rejected: batch.Rejected,
		ByKind:   batch.ByKind,
	}
	logger.Info("Cleaned day", "lines", report.Lines, "accepted", report.Accepted, "rejected", report.Rejected)

	p.setAction("Inserting " + date)
	save := func(ctx context.Context) error {
		return p.storage.SaveTicks(ctx, day, batch.Ticks)
	}
	if p.opts.Retryer != nil {
		err = p.opts.Retryer.Execute(ctx, save)
	} else {
		err = save(ctx)
	}
	if err != nil {
		logger.Error("Insert failed", "sink", p.storage.Name(), "ticks", report.Accepted, "error", err)
		return report, fmt.Errorf("insert %s: %w", date, err)
	}

	p.opts.Metrics.ObserveRows(report.Lines, report.Accepted, batch.RejectedByReason())
	report.Duration = time.Since(started)
	logger.Info("Inserted day", "sink", p.storage.Name(), "ticks", report.Accepted, "duration", report.Duration)
	return report, nil
}

func (p *DayPipeline) setAction(action string) {
	if p.opts.Status != nil {
		p.opts.Status.SetAction(action)
	}
}
