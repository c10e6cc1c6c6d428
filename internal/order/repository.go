package order

import (
	"context"
	"database/sql"
	"time"

	"tienda-be/internal/events"
	"tienda-be/internal/inventory"
	"tienda-be/internal/logger"
	"tienda-be/internal/product"

	"github.com/go-faster/errors"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	// Create persists the order, its items and the initial log in one
	// transaction, after re-checking the variants under a row lock.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id int64) (*Order, error)
	GetByExternalReference(ctx context.Context, ref string) (*Order, error)
	// ApplyTransition moves the order only if it is still in t.From and
	// reports whether it did.
	ApplyTransition(ctx context.Context, t Transition) (bool, error)
	UpdatePaymentInfo(ctx context.Context, orderID int64, info PaymentInfo) error
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]*Order, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const orderColumns = `
	id, user_id, status, subtotal, shipping_cost, taxes, total, currency,
	payment_method, payment_status, transaction_id, external_reference,
	shipping_address_id, created_at, updated_at, paid_at, cancelled_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.Status, &o.Subtotal, &o.ShippingCost, &o.Taxes, &o.Total, &o.Currency,
		&o.PaymentMethod, &o.PaymentStatus, &o.TransactionID, &o.ExternalReference,
		&o.ShippingAddressID, &o.CreatedAt, &o.UpdatedAt, &o.PaidAt, &o.CancelledAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *repository) Create(ctx context.Context, o *Order) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateOrder"),
		zap.Int64("user_id", o.UserID),
		zap.String("external_reference", o.ExternalReference),
		zap.Int("item_count", len(o.Items)),
	)

	if len(o.Items) == 0 {
		return ErrNoItems
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return errors.Wrap(err, "begin tx")
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to rollback transaction", zap.Error(rbErr))
			} else {
				log.Debug("transaction rolled back")
			}
		}
	}()

	// Re-check under lock so two checkouts cannot both pass on the same units.
	keys := make([]product.VariantKey, len(o.Items))
	reqs := make([]inventory.Request, len(o.Items))
	for i, it := range o.Items {
		keys[i] = product.VariantKey{ProductID: it.ProductID, ColorCode: it.ColorCode, Size: it.Size}
		reqs[i] = inventory.Request{Key: keys[i], Quantity: it.Quantity}
	}
	variants, err := product.LoadVariants(ctx, tx, keys, true)
	if err != nil {
		log.Error("failed to lock variants", zap.Error(err))
		return errors.Wrap(err, "lock variants")
	}
	if _, err := inventory.Check(reqs, variants); err != nil {
		log.Info("stock changed since verification", zap.Error(err))
		return err
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			user_id,
			status,
			subtotal,
			shipping_cost,
			taxes,
			total,
			currency,
			payment_method,
			external_reference,
			shipping_address_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`,
		o.UserID,
		StatusPending,
		o.Subtotal,
		o.ShippingCost,
		o.Taxes,
		o.Total,
		o.Currency,
		o.PaymentMethod,
		o.ExternalReference,
		o.ShippingAddressID,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			log.Warn("external reference collision", zap.String("constraint", pqErr.Constraint))
			return ErrDuplicateReference
		}
		log.Error("failed to insert order", zap.Error(err))
		return errors.Wrap(err, "insert order")
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO order_items (
				order_id,
				variant_id,
				product_id,
				color_code,
				size,
				product_name,
				quantity,
				price,
				subtotal
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`,
			o.ID,
			it.VariantID,
			it.ProductID,
			it.ColorCode,
			it.Size,
			it.ProductName,
			it.Quantity,
			it.Price,
			it.Subtotal,
		).Scan(&it.ID)
		if err != nil {
			log.Error("failed to insert order item", zap.Int("item_index", i), zap.Error(err))
			return errors.Wrap(err, "insert order item")
		}
	}

	entry := Log{
		OrderID:        o.ID,
		PreviousStatus: StatusNone,
		NewStatus:      StatusPending,
		Note:           "order created",
		UpdatedBy:      formatID(o.UserID),
		UserType:       ActorUser,
	}
	if err := insertLog(ctx, tx, &entry); err != nil {
		log.Error("failed to insert order log", zap.Error(err))
		return err
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit order transaction", zap.Error(err))
		return errors.Wrap(err, "commit")
	}
	committed = true

	o.Status = StatusPending
	o.Logs = []Log{entry}
	log.Info("order created", zap.Int64("order_id", o.ID), zap.String("total", o.Total.String()))
	return nil
}

func insertLog(ctx context.Context, tx *sql.Tx, l *Log) error {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO order_logs (order_id, previous_status, new_status, note, updated_by, user_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, l.OrderID, l.PreviousStatus, l.NewStatus, l.Note, l.UpdatedBy, l.UserType).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "insert order log")
	}
	return nil
}

func (r *repository) GetByID(ctx context.Context, id int64) (*Order, error) {
	return r.load(ctx, "id = $1", id)
}

func (r *repository) GetByExternalReference(ctx context.Context, ref string) (*Order, error) {
	return r.load(ctx, "external_reference = $1", ref)
}

func (r *repository) load(ctx context.Context, where string, arg any) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "LoadOrder"),
		zap.Any("key", arg),
	)

	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		log.Error("failed to query order", zap.Error(err))
		return nil, errors.Wrap(err, "query order")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, variant_id, product_id, color_code, size, product_name, quantity, price, subtotal
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, o.ID)
	if err != nil {
		log.Error("failed to query order items", zap.Error(err))
		return nil, errors.Wrap(err, "query order items")
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := rows.Scan(
			&it.ID, &it.OrderID, &it.VariantID, &it.ProductID, &it.ColorCode, &it.Size,
			&it.ProductName, &it.Quantity, &it.Price, &it.Subtotal,
		); err != nil {
			return nil, errors.Wrap(err, "scan order item")
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate order items")
	}

	logRows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, previous_status, new_status, note, updated_by, user_type, created_at
		FROM order_logs
		WHERE order_id = $1
		ORDER BY id
	`, o.ID)
	if err != nil {
		log.Error("failed to query order logs", zap.Error(err))
		return nil, errors.Wrap(err, "query order logs")
	}
	defer logRows.Close()

	for logRows.Next() {
		var l Log
		if err := logRows.Scan(
			&l.ID, &l.OrderID, &l.PreviousStatus, &l.NewStatus, &l.Note, &l.UpdatedBy, &l.UserType, &l.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan order log")
		}
		o.Logs = append(o.Logs, l)
	}
	if err := logRows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate order logs")
	}

	return o, nil
}

func (r *repository) ApplyTransition(ctx context.Context, t Transition) (bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "ApplyTransition"),
		zap.Int64("order_id", t.OrderID),
		zap.String("from", string(t.From)),
		zap.String("to", string(t.To)),
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

	// paid_at and cancelled_at are written once; the WHERE on the current
	// status makes concurrent writers race for a single row version.
	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
			payment_status = COALESCE($2, payment_status),
			transaction_id = COALESCE($3, transaction_id),
			payment_method = COALESCE($4, payment_method),
			paid_at = CASE WHEN $1::text = 'paid' THEN COALESCE(paid_at, NOW()) ELSE paid_at END,
			cancelled_at = CASE WHEN $1::text = 'cancelled' THEN COALESCE(cancelled_at, NOW()) ELSE cancelled_at END,
			updated_at = NOW()
		WHERE id = $5 AND status = $6
	`, t.To, t.PaymentStatus, t.TransactionID, t.PaymentMethod, t.OrderID, t.From)
	if err != nil {
		log.Error("failed to update order status", zap.Error(err))
		return false, errors.Wrap(err, "update order status")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	if affected == 0 {
		log.Info("order no longer in expected status")
		return false, nil
	}

	entry := Log{
		OrderID:        t.OrderID,
		PreviousStatus: t.From,
		NewStatus:      t.To,
		Note:           t.Note,
		UpdatedBy:      t.Actor.ID,
		UserType:       t.Actor.Type,
	}
	if err := insertLog(ctx, tx, &entry); err != nil {
		log.Error("failed to insert order log", zap.Error(err))
		return false, err
	}

	if t.ClearCartOf != nil {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM carts c
			USING order_items oi
			WHERE oi.order_id = $1
				AND c.user_id = $2
				AND c.product_id = oi.product_id
				AND c.color_code = oi.color_code
				AND c.size = oi.size
		`, t.OrderID, *t.ClearCartOf); err != nil {
			log.Error("failed to clear purchased cart lines", zap.Error(err))
			return false, errors.Wrap(err, "clear cart")
		}
	}

	if t.Event != nil {
		if err := events.Enqueue(ctx, tx, t.Event.Topic, t.Event.Key, t.Event.Type, t.Event.Payload); err != nil {
			log.Error("failed to enqueue order event", zap.Error(err))
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit transition", zap.Error(err))
		return false, errors.Wrap(err, "commit")
	}
	committed = true

	log.Info("order status changed")
	return true, nil
}

func (r *repository) UpdatePaymentInfo(ctx context.Context, orderID int64, info PaymentInfo) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET payment_method = COALESCE($1, payment_method),
			payment_status = COALESCE($2, payment_status),
			transaction_id = COALESCE($3, transaction_id),
			updated_at = NOW()
		WHERE id = $4
	`, info.Method, info.Status, info.TransactionID, orderID)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to update payment info",
			zap.String("layer", "repository"),
			zap.String("method", "UpdatePaymentInfo"),
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)
		return errors.Wrap(err, "update payment info")
	}
	return nil
}

func (r *repository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query stale orders")
	}
	defer rows.Close()

	var out []*Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan stale order")
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
