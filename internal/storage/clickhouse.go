package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/navid-fn/tickarchive/internal/models"
)

// clickhouseStorage inserts one batch per day into the ticks table.
type clickhouseStorage struct {
	conn driver.Conn
}

// NewClickHouseStorage parses the DSN, opens a connection, and verifies
// connectivity with a ping bounded to 5 seconds.
func NewClickHouseStorage(ctx context.Context, dsn string) (Storage, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Ping(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &clickhouseStorage{conn: conn}, nil
}

func (s *clickhouseStorage) Name() string { return SinkClickHouse }

func (s *clickhouseStorage) SaveTicks(ctx context.Context, day time.Time, ticks []models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ticks (
			timestamp, symbol, side, size, price, tick_direction,
			trd_match_id, gross_value, home_notional, foreign_notional,
			inserted_at
		)
	`)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, t := range ticks {
		err := batch.Append(
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
			now,
		)
		if err != nil {
			batch.Abort()
			return err
		}
	}

	return batch.Send()
}

// Close closes the ClickHouse connection.
func (s *clickhouseStorage) Close() error {
	return s.conn.Close()
}
