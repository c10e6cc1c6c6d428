package events

import (
	"context"
	"encoding/json"
	"time"

	"tienda-be/internal/logger"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler processes one event. Returning nil commits the offset.
type Handler func(ctx context.Context, env *Envelope) error

// Reader is the part of *kafka.Reader the consumer needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewReader(brokers []string, group, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})
}

type Consumer struct {
	r          Reader
	backoff    time.Duration
	maxBackoff time.Duration
}

func NewConsumer(r Reader) *Consumer {
	return &Consumer{r: r, backoff: 500 * time.Millisecond, maxBackoff: 30 * time.Second}
}

// Run reads messages in order and hands each to h. A failing message is
// retried with capped backoff until it succeeds or ctx is done; its offset
// is committed only after success. Undecodable messages are skipped.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	defer c.r.Close()
	log := logger.FromCtx(ctx).With(zap.String("layer", "consumer"))

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch message")
		}

		mlog := log.With(
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.ByteString("key", m.Key),
		)

		var env Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			mlog.Error("dropping undecodable event", zap.Error(err))
		} else if err := c.handle(ctx, mlog, h, &env); err != nil {
			// Uncommitted: the group redelivers it after restart.
			mlog.Info("stopping with event unhandled", zap.String("event_id", env.EventID))
			return nil
		}

		if err := c.r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "commit message")
		}
	}
}

// handle returns nil once h succeeds, or ctx.Err() when ctx ends first.
func (c *Consumer) handle(ctx context.Context, log *zap.Logger, h Handler, env *Envelope) error {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := h(ctx, env)
		if err == nil {
			return nil
		}
		lvl := zap.WarnLevel
		if attempt%10 == 0 {
			lvl = zap.ErrorLevel
		}
		log.Log(lvl, "event handler failed",
			zap.String("event_id", env.EventID),
			zap.String("event_type", env.EventType),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if wait *= 2; wait > c.maxBackoff {
			wait = c.maxBackoff
		}
	}
}
