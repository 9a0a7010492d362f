package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/navid-fn/tickarchive/configs"
	"github.com/navid-fn/tickarchive/internal/checkpoint"
	"github.com/navid-fn/tickarchive/internal/crawler"
	"github.com/navid-fn/tickarchive/internal/faulttolerance"
	"github.com/navid-fn/tickarchive/internal/ingester"
	"github.com/navid-fn/tickarchive/internal/logging"
	"github.com/navid-fn/tickarchive/internal/metrics"
	"github.com/navid-fn/tickarchive/internal/progress"
	"github.com/navid-fn/tickarchive/internal/storage"
	"github.com/navid-fn/tickarchive/internal/validator"
)

func main() {
	os.Exit(run())
}

func run() int {
	appConfig, err := configs.AppLoad()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return 1
	}

	flag.Var(&appConfig.StartDate, "start", "first day to archive (YYYY-MM-DD), overrides START_DATE")
	flag.Var(&appConfig.EndDate, "end", "exclusive end day (YYYY-MM-DD), overrides END_DATE")
	flag.Parse()

	logger := logging.Setup(appConfig.LogLevel, appConfig.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start, end := appConfig.StartDate.Time, appConfig.EndDate.Time
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		logger.Error("Invalid date range, set START_DATE/END_DATE or --start/--end with start before end",
			"start", appConfig.StartDate.String(), "end", appConfig.EndDate.String())
		return 1
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if appConfig.MetricsAddr != "" {
		serveCtx, cancelServe := context.WithCancel(context.Background())
		defer cancelServe()
		go func() {
			if err := metrics.Serve(serveCtx, appConfig.MetricsAddr, reg, logger); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	retryLogger := faulttolerance.NewLogger(appConfig.LogLevel)

	var source crawler.Source
	switch appConfig.Source {
	case "dir":
		source = crawler.NewDirSource(appConfig.SourceDir)
	default:
		httpConfig := crawler.DefaultHTTPConfig(appConfig.SourceBaseURL, appConfig.SourceRPS)
		httpConfig.RequestTimeout = appConfig.SourceTimeout
		downloadRetry := faulttolerance.DefaultRetryConfig("download")
		downloadRetry.MaxAttempts = appConfig.SourceRetries
		source = crawler.NewHTTPSource(httpConfig, faulttolerance.NewRetryer(downloadRetry, retryLogger), logger)
	}

	store, err := storage.New(ctx, storage.Config{
		Sink:          appConfig.Sink,
		OutputDir:     appConfig.OutputDir,
		ClickHouseDSN: appConfig.DatabaseDSN(),
		PostgresDSN:   appConfig.PostgresDSN,
		KafkaBroker:   appConfig.KafkaBroker,
		KafkaTopic:    appConfig.KafkaTopic,
	}, logger)
	if err != nil {
		logger.Error("Failed to open storage", "sink", appConfig.Sink, "error", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close storage", "error", err)
		}
	}()

	marks := checkpoint.New(appConfig.OutputDir)
	if appConfig.Resume {
		resumed, err := marks.Resolve(start)
		if err != nil {
			logger.Error("Failed to read checkpoint", "path", marks.Path(), "error", err)
			return 1
		}
		if !resumed.Before(end) {
			logger.Info("Range already complete", "checkpoint", marks.Path())
			return 0
		}
		if !resumed.Equal(start) {
			logger.Info("Resuming from checkpoint", "from", resumed.Format(time.DateOnly))
		}
		start = resumed
	}

	reporter := progress.NewLogReporter(logger, 5*time.Second)
	tracker := progress.NewTracker("days", 0, reporter)

	saveRetry := faulttolerance.DefaultRetryConfig("save")
	saveRetry.MaxAttempts = appConfig.SaveRetries

	pipeline := ingester.NewDayPipeline(
		source,
		store,
		ingester.NewDecoder(validator.New(appConfig.AcceptedTickers), reporter, logger),
		logger,
		ingester.PipelineOptions{
			Retryer: faulttolerance.NewRetryer(saveRetry, retryLogger),
			Metrics: m,
			Status:  tracker,
		},
	)

	runner := ingester.NewRunner(pipeline, logger, ingester.Config{
		OnDayError: ingester.Policy(appConfig.OnDayError),
		Checkpoint: marks,
		Metrics:    m,
		Tracker:    tracker,
	})

	logger.Info("Ingester started successfully", "source", source.Name(), "sink", store.Name())

	summary, err := runner.Run(ctx, start, end)
	logger.Info("Range summary",
		"days", summary.Days,
		"failed", len(summary.Failed),
		"lines", summary.Lines,
		"accepted", summary.Accepted,
		"rejected", summary.Rejected,
		"duration", summary.Duration.Round(time.Millisecond),
	)
	for kind, n := range summary.ByKind {
		logger.Debug("Rejections", "reason", kind.String(), "rows", n)
	}

	switch {
	case err == nil:
		logger.Info("Ingester shutdown complete")
		return 0
	case errors.Is(err, context.Canceled):
		logger.Warn("Interrupted between days, rerun with RESUME=true to continue")
		return 130
	default:
		logger.Error("Ingester stopped with error", "error", err)
		return 1
	}
}
