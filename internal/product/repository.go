package product

import (
	"context"
	"database/sql"

	"tienda-be/internal/logger"

	"github.com/go-faster/errors"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Repository interface {
	GetVariant(ctx context.Context, key VariantKey) (*Variant, error)
	GetVariants(ctx context.Context, keys []VariantKey) (map[VariantKey]*Variant, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const variantsQuery = `
	SELECT
		v.id,
		v.product_id,
		v.color_code,
		v.size,
		p.name,
		COALESCE(v.price, p.price) AS price,
		v.stock,
		p.weight_grams,
		p.active,
		v.active
	FROM unnest($1::bigint[], $2::text[], $3::text[]) AS k(product_id, color_code, size)
	JOIN product_variants v
		ON v.product_id = k.product_id
		AND v.color_code = k.color_code
		AND v.size = k.size
	JOIN products p ON p.id = v.product_id
	WHERE p.deleted_at IS NULL`

func (r *repository) GetVariant(ctx context.Context, key VariantKey) (*Variant, error) {
	variants, err := r.GetVariants(ctx, []VariantKey{key})
	if err != nil {
		return nil, err
	}
	v, ok := variants[key]
	if !ok {
		return nil, ErrVariantNotFound
	}
	return v, nil
}

func (r *repository) GetVariants(ctx context.Context, keys []VariantKey) (map[VariantKey]*Variant, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetVariants"),
		zap.Int("keys", len(keys)),
	)

	variants, err := LoadVariants(ctx, r.db, keys, false)
	if err != nil {
		log.Error("failed to load variants", zap.Error(err))
		return nil, errors.Wrap(ErrFailedGetVariants, err.Error())
	}
	return variants, nil
}

// LoadVariants reads live variant rows for keys. Missing or soft-deleted
// products are absent from the result. With lock set the rows are locked
// FOR UPDATE, so q must be a transaction.
func LoadVariants(ctx context.Context, q Querier, keys []VariantKey, lock bool) (map[VariantKey]*Variant, error) {
	out := make(map[VariantKey]*Variant, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	productIDs := make([]int64, len(keys))
	colors := make([]string, len(keys))
	sizes := make([]string, len(keys))
	for i, k := range keys {
		productIDs[i] = k.ProductID
		colors[i] = k.ColorCode
		sizes[i] = k.Size
	}

	query := variantsQuery
	if lock {
		query += "\n\tFOR UPDATE OF v"
	}

	rows, err := q.QueryContext(ctx, query, pq.Array(productIDs), pq.Array(colors), pq.Array(sizes))
	if err != nil {
		return nil, errors.Wrap(err, "query variants")
	}
	defer rows.Close()

	for rows.Next() {
		var v Variant
		if err := rows.Scan(
			&v.ID,
			&v.Key.ProductID,
			&v.Key.ColorCode,
			&v.Key.Size,
			&v.ProductName,
			&v.Price,
			&v.Stock,
			&v.WeightGrams,
			&v.ProductActive,
			&v.VariantActive,
		); err != nil {
			return nil, errors.Wrap(err, "scan variant")
		}
		out[v.Key] = &v
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate variants")
	}

	return out, nil
}

// DecrementStock removes qty units from a variant only when enough stock is
// left. It reports false when the conditional update matched no row.
func DecrementStock(ctx context.Context, q Querier, variantID int64, qty int) (bool, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE product_variants
		SET stock = stock - $1, updated_at = NOW()
		WHERE id = $2 AND stock >= $1
	`, qty, variantID)
	if err != nil {
		return false, errors.Wrap(err, "decrement stock")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n == 1, nil
}
