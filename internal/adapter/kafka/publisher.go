package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchcryptid/safe-speed-service/internal/config"
	"github.com/couchcryptid/safe-speed-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher streams speed history entries to a Kafka topic for downstream
// audit consumers.
type Publisher struct {
	writer     messageWriter
	logger     *slog.Logger
	maxRetries uint64
	backoff    func() backoff.BackOff
}

// Publish runs on the recalculation request path with one message per call;
// each write flushes immediately.
const (
	publishBatchTimeout = 5 * time.Millisecond
	publishWriteTimeout = 2 * time.Second
)

// NewPublisher creates a Kafka producer for the configured history topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaHistoryTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		BatchSize:              1,
		BatchTimeout:           publishBatchTimeout,
		WriteTimeout:           publishWriteTimeout,
	}
	return newPublisher(w, logger)
}

func newPublisher(w messageWriter, logger *slog.Logger) *Publisher {
	return &Publisher{
		writer:     w,
		logger:     logger,
		maxRetries: 3,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxElapsedTime = 2 * time.Second
			return b
		},
	}
}

// Publish writes one entry, retrying transient broker failures with
// exponential backoff until ctx is done or the retry budget is spent.
func (p *Publisher) Publish(ctx context.Context, entry domain.SpeedHistoryEntry) error {
	msg, err := serializeToMessage(entry)
	if err != nil {
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(p.backoff(), p.maxRetries), ctx)
	onError := func(err error, wait time.Duration) {
		p.logger.Warn("publish history entry failed, retrying",
			"timestamp", entry.TimestampISO, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(func() error {
		return p.writer.WriteMessages(ctx, msg)
	}, policy, onError); err != nil {
		return fmt.Errorf("publish history entry: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage keys messages by surface so one surface's entries stay
// ordered within a partition.
func serializeToMessage(entry domain.SpeedHistoryEntry) (kafkago.Message, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize history entry: %w", err)
	}

	weather := "none"
	if entry.WeatherSnapshot != nil {
		weather = string(entry.WeatherSnapshot.PrecipitationType)
	}
	return kafkago.Message{
		Key:   []byte(entry.ConfigSnapshot.Surface),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "surface", Value: []byte(entry.ConfigSnapshot.Surface)},
			{Key: "day_period", Value: []byte(entry.ConfigSnapshot.DayPeriod)},
			{Key: "weather", Value: []byte(weather)},
			{Key: "recorded_at", Value: []byte(entry.TimestampISO)},
		},
	}, nil
}
