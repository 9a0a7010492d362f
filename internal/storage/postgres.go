package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/navid-fn/tickarchive/internal/models"
)

// ErrMissingTable is returned at startup when the ticks table has not been migrated.
var ErrMissingTable = errors.New("table ticks does not exist, run the migrate command first")

var tickColumns = []string{
	"timestamp", "symbol", "side", "size", "price", "tick_direction",
	"trd_match_id", "gross_value", "home_notional", "foreign_notional",
}

type postgresStorage struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStorage connects a pool and checks that the ticks table exists.
func NewPostgresStorage(ctx context.Context, dsn string, logger *slog.Logger) (Storage, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &postgresStorage{pool: pool, logger: logger}
	if err := s.checkTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("Connected to postgres", "max_conns", cfg.MaxConns)
	return s, nil
}

func (s *postgresStorage) checkTable(ctx context.Context) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT to_regclass('ticks') IS NOT NULL`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check table: %w", err)
	}
	if !exists {
		return ErrMissingTable
	}
	return nil
}

func (s *postgresStorage) Name() string { return SinkPostgres }

// SaveTicks copies the day's ticks in a single COPY statement, so a day is
// either fully stored or not at all.
func (s *postgresStorage) SaveTicks(ctx context.Context, day time.Time, ticks []models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"ticks"}, tickColumns,
		pgx.CopyFromSlice(len(ticks), func(i int) ([]any, error) {
			t := ticks[i]
			return []any{
				t.Time(),
				t.Symbol,
				string(t.Side),
				t.Size,
				t.Price,
				string(t.TickDirection),
				t.TradeID,
				t.GrossValue,
				t.HomeNotional,
				t.ForeignNotional,
			}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy ticks: %w", err)
	}
	if n != int64(len(ticks)) {
		return fmt.Errorf("copy ticks: wrote %d of %d rows", n, len(ticks))
	}
	s.logger.Debug("Copied ticks", "day", day.Format(time.DateOnly), "rows", n)
	return nil
}

func (s *postgresStorage) Close() error {
	s.pool.Close()
	return nil
}
