package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/pawmarket/petcare/libs/db"
	"github.com/pawmarket/petcare/libs/kafkax"
	"github.com/pawmarket/petcare/services/booking-service/internal/inbox"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Handler applies one event inside the transaction that also records it in the inbox.
type Handler func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  messageReader
	pool    *db.Pool
	logger  *slog.Logger
	inbox   *inbox.Repository
	handler Handler

	// apply is process outside tests.
	apply      func(ctx context.Context, msg kafka.Message) error
	newBackOff func() *backoff.ExponentialBackOff
}

type Config struct {
	Brokers []string
	GroupID string
	Topics  []string
}

func New(pool *db.Pool, logger *slog.Logger, inboxRepo *inbox.Repository, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	c := &Consumer{
		reader:     reader,
		pool:       pool,
		logger:     logger,
		inbox:      inboxRepo,
		handler:    handler,
		newBackOff: defaultBackOff,
	}
	c.apply = c.process
	return c
}

func defaultBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	bo.Reset()
	return bo
}

// Run commits an offset only after the event is applied, so a crash replays
// it and the inbox drops the duplicate. A failing event is retried in place:
// committing a later offset on the partition would skip it for good.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	bo := c.newBackOff()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := bo.NextBackOff()
			c.logger.Error("kafka fetch error", "err", err, "retry_in", wait)
			if !sleep(ctx, wait) {
				return
			}
			continue
		}
		bo.Reset()

		if !c.applyWithRetry(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "err", err, "topic", msg.Topic, "offset", msg.Offset)
		}
	}
}

// applyWithRetry reports false only when ctx ended before msg was applied.
func (c *Consumer) applyWithRetry(ctx context.Context, msg kafka.Message) bool {
	bo := c.newBackOff()
	for {
		err := c.apply(ctx, msg)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		wait := bo.NextBackOff()
		c.logger.Error("event processing failed", "err", err, "topic", msg.Topic, "offset", msg.Offset, "retry_in", wait)
		if !sleep(ctx, wait) {
			return false
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	ctx, span := otel.Tracer("kafka").Start(kafkax.ExtractTraceContext(ctx, msg), "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
			attribute.Int64("messaging.kafka.offset", msg.Offset),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	err := c.pool.InTx(ctx, func(tx pgx.Tx) error {
		fresh, err := c.inbox.Record(ctx, tx, meta.EventID, meta.EventType)
		if err != nil {
			return err
		}
		if !fresh {
			c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
			return nil
		}
		return c.handler(ctx, tx, msg)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failed")
	}
	return err
}
