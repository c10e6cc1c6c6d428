package address

import (
	"context"

	"tienda-be/internal/apperr"
	"tienda-be/internal/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrAddressNotFound = apperr.New(apperr.NotFound, "address not found")

// Service resolves the shipping address for a checkout.
type Service interface {
	Resolve(ctx context.Context, userID int64, addressID *uuid.UUID) (*Address, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Resolve returns the requested address when it belongs to userID, or the
// user's default address when addressID is nil.
func (s *service) Resolve(ctx context.Context, userID int64, addressID *uuid.UUID) (*Address, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("service", "Address"),
		zap.String("method", "Resolve"),
		zap.Int64("user_id", userID),
	)

	if addressID == nil {
		return s.repo.GetDefault(ctx, userID)
	}

	addr, err := s.repo.GetByID(ctx, *addressID)
	if err != nil {
		return nil, err
	}

	if addr.UserID != userID || !addr.IsActive {
		log.Warn("unauthorized address access", zap.String("address_id", addressID.String()))
		return nil, ErrAddressNotFound
	}

	return addr, nil
}
