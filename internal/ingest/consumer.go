package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"catalog-search/internal/domain/outbox"
	catalog_errors "catalog-search/pkg/errors"
	"catalog-search/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("catalog-search/ingest")

// ChangeEvent is the message the primary store publishes for each catalog
// write.
type ChangeEvent struct {
	EventType   string                 `json:"eventType"`
	AggregateID int64                  `json:"aggregateId"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
}

// Enqueuer records a change in the outbox. *services.SyncService satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, eventType outbox.EventType, aggregateID int64, payload map[string]interface{}) (uint64, error)
}

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewReader creates a consumer group reader with manual commits.
func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
}

// Consumer turns change events into outbox entries. An offset is committed
// only after its entry is stored, so a crash replays rather than drops.
type Consumer struct {
	reader   MessageReader
	enqueuer Enqueuer
	backoff  time.Duration
	logger   *logger.Logger
}

func NewConsumer(reader MessageReader, enqueuer Enqueuer, l *logger.Logger) *Consumer {
	return &Consumer{reader: reader, enqueuer: enqueuer, backoff: time.Second, logger: logger.OrNop(l)}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() { _ = c.reader.Close() }()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch change event: %w", err)
		}
		if err := c.handleWithRetry(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("commit offset %d: %w", msg.Offset, err)
		}
	}
}

// handleWithRetry retries transient failures with a doubling backoff capped
// at 30s. Malformed events are logged and skipped.
func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message) error {
	wait := c.backoff
	for {
		err := c.Handle(ctx, msg)
		if err == nil {
			return nil
		}
		if errors.Is(err, catalog_errors.ErrInvalidInput) {
			c.logger.Ctx(ctx).Warnf("skipping change event at offset %d: %v", msg.Offset, err)
			return nil
		}
		c.logger.Ctx(ctx).Errorf("change event at offset %d failed, retrying in %s: %v", msg.Offset, wait, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if wait *= 2; wait > 30*time.Second {
			wait = 30 * time.Second
		}
	}
}

// Handle decodes one message and enqueues it.
func (c *Consumer) Handle(ctx context.Context, msg kafka.Message) error {
	ctx = ExtractTraceContext(ctx, msg.Headers)
	ctx, span := tracer.Start(ctx, "ingest.Handle")
	defer span.End()

	var ev ChangeEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		return fmt.Errorf("decode change event: %v: %w", err, catalog_errors.ErrInvalidInput)
	}
	eventType, err := outbox.ParseEventType(ev.EventType)
	if err != nil {
		return fmt.Errorf("%v: %w", err, catalog_errors.ErrInvalidInput)
	}
	span.SetAttributes(
		attribute.String("event.type", string(eventType)),
		attribute.Int64("event.aggregate_id", ev.AggregateID),
	)

	id, err := c.enqueuer.Enqueue(ctx, eventType, ev.AggregateID, ev.Payload)
	if err != nil {
		return err
	}
	c.logger.Ctx(ctx).Debugf("change event %s/%d stored as outbox %d", eventType, ev.AggregateID, id)
	return nil
}
