package address

import (
	"context"
	"database/sql"

	"tienda-be/internal/logger"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Address, error)
	GetDefault(ctx context.Context, userID int64) (*Address, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const selectAddress = `
	SELECT
		id, user_id,
		receiver_name, phone,
		address_line1, address_line2,
		city, department, postal_code, country,
		is_default, is_active
	FROM addresses`

func scanAddress(row *sql.Row) (*Address, error) {
	var a Address
	err := row.Scan(
		&a.ID, &a.UserID,
		&a.ReceiverName, &a.Phone,
		&a.Address1, &a.Address2,
		&a.City, &a.Department, &a.Postal, &a.Country,
		&a.IsDefault, &a.IsActive,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAddressNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*Address, error) {
	a, err := scanAddress(r.db.QueryRowContext(ctx,
		selectAddress+` WHERE id = $1 AND is_active = true LIMIT 1`, id))
	if err != nil && !errors.Is(err, ErrAddressNotFound) {
		logger.FromCtx(ctx).Error("query failed",
			zap.String("repo", "Address"),
			zap.String("method", "GetByID"),
			zap.String("address_id", id.String()),
			zap.Error(err),
		)
	}
	return a, err
}

func (r *repository) GetDefault(ctx context.Context, userID int64) (*Address, error) {
	a, err := scanAddress(r.db.QueryRowContext(ctx,
		selectAddress+` WHERE user_id = $1 AND is_active = true ORDER BY is_default DESC, created_at DESC LIMIT 1`, userID))
	if err != nil && !errors.Is(err, ErrAddressNotFound) {
		logger.FromCtx(ctx).Error("query failed",
			zap.String("repo", "Address"),
			zap.String("method", "GetDefault"),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
	}
	return a, err
}
