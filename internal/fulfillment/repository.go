package fulfillment

import (
	"context"
	"database/sql"
	"encoding/json"

	"tienda-be/internal/events"
	"tienda-be/internal/logger"
	"tienda-be/internal/product"

	"github.com/go-faster/errors"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	// Fulfill records the fulfillment and takes the stock for a paid order.
	// created is false when the order was already fulfilled.
	Fulfill(ctx context.Context, paid events.OrderPaid) (f *Fulfillment, created bool, err error)
	// Cancel voids a pending fulfillment and returns the stock it took.
	Cancel(ctx context.Context, orderID int64) (cancelled bool, err error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Fulfill(ctx context.Context, paid events.OrderPaid) (*Fulfillment, bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "Fulfill"),
		zap.Int64("order_id", paid.OrderID),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return nil, false, errors.Wrap(err, "begin tx")
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	f := &Fulfillment{
		OrderID:           paid.OrderID,
		ExternalReference: paid.ExternalReference,
		Status:            StatusPending,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO fulfillments (order_id, external_reference, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (order_id) DO NOTHING
		RETURNING id, created_at
	`, paid.OrderID, paid.ExternalReference, StatusPending).Scan(&f.ID, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		log.Info("order already fulfilled")
		return nil, false, nil
	}
	if err != nil {
		log.Error("failed to insert fulfillment", zap.Error(err))
		return nil, false, errors.Wrap(err, "insert fulfillment")
	}

	for _, it := range paid.Items {
		ok, err := product.DecrementStock(ctx, tx, it.VariantID, it.Quantity)
		if err != nil {
			log.Error("failed to decrement stock", zap.Int64("variant_id", it.VariantID), zap.Error(err))
			return nil, false, err
		}
		if !ok {
			f.ShortItems = append(f.ShortItems, ShortItem{VariantID: it.VariantID, Quantity: it.Quantity})
		}
	}

	if len(f.ShortItems) > 0 {
		f.Short = true
		short, err := json.Marshal(f.ShortItems)
		if err != nil {
			return nil, false, errors.Wrap(err, "marshal short items")
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE fulfillments SET short = TRUE, short_items = $2 WHERE id = $1
		`, f.ID, string(short)); err != nil {
			log.Error("failed to flag short fulfillment", zap.Error(err))
			return nil, false, errors.Wrap(err, "flag short fulfillment")
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit fulfillment", zap.Error(err))
		return nil, false, errors.Wrap(err, "commit tx")
	}
	committed = true

	return f, true, nil
}

func (r *repository) Cancel(ctx context.Context, orderID int64) (bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "Cancel"),
		zap.Int64("order_id", orderID),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return false, errors.Wrap(err, "begin tx")
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	var short []byte
	err = tx.QueryRowContext(ctx, `
		UPDATE fulfillments
		SET status = $2, updated_at = NOW()
		WHERE order_id = $1 AND status = $3
		RETURNING COALESCE(short_items, '[]'::jsonb)
	`, orderID, StatusCancelled, StatusPending).Scan(&short)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		log.Error("failed to cancel fulfillment", zap.Error(err))
		return false, errors.Wrap(err, "cancel fulfillment")
	}

	var skipped []ShortItem
	if err := json.Unmarshal(short, &skipped); err != nil {
		return false, errors.Wrap(err, "decode short items")
	}
	skip := make([]int64, 0, len(skipped))
	for _, s := range skipped {
		skip = append(skip, s.VariantID)
	}

	// Only lines whose stock was actually taken go back on the shelf.
	if _, err := tx.ExecContext(ctx, `
		UPDATE product_variants v
		SET stock = v.stock + oi.quantity, updated_at = NOW()
		FROM order_items oi
		WHERE oi.order_id = $1
		  AND oi.variant_id = v.id
		  AND NOT (oi.variant_id = ANY($2))
	`, orderID, pq.Array(skip)); err != nil {
		log.Error("failed to restock", zap.Error(err))
		return false, errors.Wrap(err, "restock")
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit cancellation", zap.Error(err))
		return false, errors.Wrap(err, "commit tx")
	}
	committed = true

	return true, nil
}
