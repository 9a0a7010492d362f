package main

import (
	"database/sql"
	"flag"
	"log/slog"
	"os"

	_ "github.com/ClickHouse/clickhouse-go/v2" // ClickHouse driver
	_ "github.com/jackc/pgx/v5/stdlib"         // Postgres driver
	"github.com/pressly/goose/v3"

	"github.com/navid-fn/tickarchive/configs"
	"github.com/navid-fn/tickarchive/internal/logging"
	"github.com/navid-fn/tickarchive/internal/migrations"
)

func main() {
	cfg, err := configs.AppLoad()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	sink := flag.String("sink", cfg.Sink, "database to migrate: clickhouse or postgres")
	down := flag.Bool("down", false, "roll back the latest migration instead")
	flag.Parse()

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	var driver, dsn string
	switch *sink {
	case "clickhouse":
		driver, dsn = "clickhouse", cfg.DatabaseDSN()
	case "postgres":
		driver, dsn = "pgx", cfg.PostgresDSN
	default:
		logger.Error("Sink has no schema to migrate", "sink", *sink)
		os.Exit(1)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Verify connection
	if err := db.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		os.Exit(1)
	}

	fsys, err := migrations.For(*sink)
	if err != nil {
		logger.Error("Failed to load migrations", "error", err)
		os.Exit(1)
	}
	goose.SetBaseFS(fsys)
	if err := goose.SetDialect(migrations.Dialects[*sink]); err != nil {
		logger.Error("Goose: failed to set dialect", "error", err)
		os.Exit(1)
	}

	if *down {
		logger.Info("Rolling back latest migration...", "sink", *sink)
		err = goose.Down(db, ".")
	} else {
		logger.Info("Running database migrations...", "sink", *sink)
		err = goose.Up(db, ".")
	}
	if err != nil {
		logger.Error("Goose migration failed", "error", err)
		os.Exit(1)
	}

	logger.Info("Migrations completed successfully")
}
