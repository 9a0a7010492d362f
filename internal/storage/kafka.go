package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/navid-fn/tickarchive/internal/models"
)

// messageWriter is the part of *kafka.Writer used by the sink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaStorage publishes one JSON message per tick, keyed by symbol.
type KafkaStorage struct {
	writer messageWriter
}

func NewKafkaStorage(broker, topic string) *KafkaStorage {
	return &KafkaStorage{writer: &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    1000,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Zstd,
	}}
}

func (s *KafkaStorage) Name() string { return SinkKafka }

func (s *KafkaStorage) SaveTicks(ctx context.Context, day time.Time, ticks []models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(ticks))
	for _, t := range ticks {
		value, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal tick %s: %w", t.TradeID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(t.Symbol),
			Value: value,
			Time:  t.Time(),
		})
	}

	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %s: %w", day.Format(time.DateOnly), err)
	}
	return nil
}

func (s *KafkaStorage) Close() error {
	return s.writer.Close()
}
