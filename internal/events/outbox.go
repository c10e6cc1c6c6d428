package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"tienda-be/internal/logger"
	"tienda-be/internal/metrics"

	"github.com/go-faster/errors"
	"github.com/lib/pq"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Execer is satisfied by *sql.Tx and *sql.DB.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Enqueue writes an event to the outbox. Pass the business transaction so
// the event exists exactly when the state change does.
func Enqueue(ctx context.Context, exec Execer, topic, key, eventType string, payload any) error {
	env, err := NewEnvelope(eventType, key, payload, time.Now())
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO order_events (event_id, topic, event_key, event_type, payload)
		VALUES ($1, $2, $3, $4, $5)
	`, env.EventID, topic, key, eventType, string(raw))
	if err != nil {
		return errors.Wrap(err, "enqueue event")
	}
	return nil
}

// Publisher is the part of *kafka.Writer the relay needs.
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewWriter builds the producer used by the relay. Keys hash to a
// partition so events of one order stay ordered.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

type pendingEvent struct {
	id    int64
	topic string
	key   string
	value []byte
}

// Relay moves outbox rows to the broker.
type Relay struct {
	db       *sql.DB
	pub      Publisher
	interval time.Duration
	batch    int
}

func NewRelay(db *sql.DB, pub Publisher, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Relay{db: db, pub: pub, interval: interval, batch: 100}
}

// Run flushes on every tick until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	log := logger.FromCtx(ctx).With(zap.String("layer", "outbox"))
	log.Info("outbox relay started", zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil {
				log.Error("outbox flush failed", zap.Error(err))
			}
		}
	}
}

// Flush publishes one batch of unsent events and marks them sent. Rows are
// locked with SKIP LOCKED so several relays can run side by side.
func (r *Relay) Flush(ctx context.Context) (n int, err error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "outbox"),
		zap.String("method", "Flush"),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Error("failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, topic, event_key, payload
		FROM order_events
		WHERE sent_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batch)
	if err != nil {
		return 0, errors.Wrap(err, "select pending events")
	}

	var pending []pendingEvent
	for rows.Next() {
		var e pendingEvent
		if err := rows.Scan(&e.id, &e.topic, &e.key, &e.value); err != nil {
			rows.Close()
			return 0, errors.Wrap(err, "scan event")
		}
		pending = append(pending, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, errors.Wrap(err, "iterate events")
	}
	if len(pending) == 0 {
		return 0, nil
	}

	msgs := make([]kafka.Message, 0, len(pending))
	ids := make([]int64, 0, len(pending))
	for _, e := range pending {
		msgs = append(msgs, kafka.Message{Topic: e.topic, Key: []byte(e.key), Value: e.value})
		ids = append(ids, e.id)
	}

	if err := r.pub.WriteMessages(ctx, msgs...); err != nil {
		for _, e := range pending {
			metrics.OutboxPublished.WithLabelValues(e.topic, "error").Inc()
		}
		if _, uerr := tx.ExecContext(ctx, `
			UPDATE order_events
			SET attempts = attempts + 1, last_error = $2
			WHERE id = ANY($1)
		`, pq.Array(ids), err.Error()); uerr != nil {
			return 0, errors.Wrap(uerr, "record publish failure")
		}
		if cerr := tx.Commit(); cerr != nil {
			return 0, errors.Wrap(cerr, "commit publish failure")
		}
		committed = true
		return 0, errors.Wrap(err, "publish events")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE order_events
		SET sent_at = NOW(), attempts = attempts + 1, last_error = NULL
		WHERE id = ANY($1)
	`, pq.Array(ids)); err != nil {
		return 0, errors.Wrap(err, "mark events sent")
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit")
	}
	committed = true

	for _, e := range pending {
		metrics.OutboxPublished.WithLabelValues(e.topic, "ok").Inc()
	}
	log.Debug("outbox events published", zap.Int("count", len(pending)))
	return len(pending), nil
}
