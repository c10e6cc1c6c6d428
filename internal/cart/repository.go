package cart

import (
	"context"
	"database/sql"

	"tienda-be/internal/logger"
	"tienda-be/internal/product"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Store holds cart lines for one kind of owner. Increment must be atomic
// with its stock bound: it fails with ErrStockExceeded instead of going over max.
type Store interface {
	Lines(ctx context.Context, owner Owner) ([]Line, error)
	Increment(ctx context.Context, owner Owner, key product.VariantKey, qty, max int) (int, error)
	SetQuantity(ctx context.Context, owner Owner, key product.VariantKey, qty int) error
	Remove(ctx context.Context, owner Owner, key product.VariantKey) error
}

// Repository is the Postgres store for authenticated users.
type Repository interface {
	Store
	Merge(ctx context.Context, userID int64, lines []Line) error
	Clear(ctx context.Context, userID int64) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Lines(ctx context.Context, owner Owner) ([]Line, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, color_code, size, quantity, updated_at
		FROM carts
		WHERE user_id = $1
		ORDER BY created_at, id
	`, owner.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "query cart lines")
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.Key.ProductID, &l.Key.ColorCode, &l.Key.Size, &l.Quantity, &l.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan cart line")
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *repository) Increment(ctx context.Context, owner Owner, key product.VariantKey, qty, max int) (int, error) {
	// The WHERE on the conflict branch makes the increment conditional, so
	// two concurrent adds cannot together exceed max.
	var total int
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO carts (user_id, product_id, color_code, size, quantity)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, product_id, color_code, size)
		DO UPDATE SET quantity = carts.quantity + EXCLUDED.quantity, updated_at = NOW()
		WHERE carts.quantity + EXCLUDED.quantity <= $6
		RETURNING quantity
	`, owner.UserID, key.ProductID, key.ColorCode, key.Size, qty, max).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrStockExceeded
	}
	if err != nil {
		return 0, errors.Wrap(err, "upsert cart line")
	}
	return total, nil
}

func (r *repository) SetQuantity(ctx context.Context, owner Owner, key product.VariantKey, qty int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE carts
		SET quantity = $1, updated_at = NOW()
		WHERE user_id = $2 AND product_id = $3 AND color_code = $4 AND size = $5
	`, qty, owner.UserID, key.ProductID, key.ColorCode, key.Size)
	if err != nil {
		return errors.Wrap(err, "update cart line")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (r *repository) Remove(ctx context.Context, owner Owner, key product.VariantKey) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM carts
		WHERE user_id = $1 AND product_id = $2 AND color_code = $3 AND size = $4
	`, owner.UserID, key.ProductID, key.ColorCode, key.Size)
	if err != nil {
		return errors.Wrap(err, "delete cart line")
	}
	return nil
}

func (r *repository) Clear(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM carts WHERE user_id = $1`, userID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// Merge sums lines into the user's cart in one transaction.
func (r *repository) Merge(ctx context.Context, userID int64, lines []Line) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "Merge"),
		zap.Int64("user_id", userID),
		zap.Int("line_count", len(lines)),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("failed to begin transaction", zap.Error(err))
		return errors.Wrap(err, "begin merge")
	}

	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("failed to rollback transaction", zap.Error(rbErr))
			}
		}
	}()

	for _, l := range lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO carts (user_id, product_id, color_code, size, quantity)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, product_id, color_code, size)
			DO UPDATE SET quantity = carts.quantity + EXCLUDED.quantity, updated_at = NOW()
		`, userID, l.Key.ProductID, l.Key.ColorCode, l.Key.Size, l.Quantity)
		if err != nil {
			log.Error("failed to merge cart line", zap.Stringer("key", l.Key), zap.Error(err))
			return errors.Wrap(err, "merge cart line")
		}
	}

	if err := tx.Commit(); err != nil {
		log.Error("failed to commit merge", zap.Error(err))
		return errors.Wrap(err, "commit merge")
	}
	committed = true

	log.Info("guest cart merged")
	return nil
}
