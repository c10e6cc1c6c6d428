package fulfillment

import (
	"context"

	"tienda-be/internal/events"
	"tienda-be/internal/logger"
	"tienda-be/internal/metrics"

	"go.uber.org/zap"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Handle is the events.Handler for the order topic. Redelivered events are
// no-ops.
func (s *Service) Handle(ctx context.Context, env *events.Envelope) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Handle"),
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
	)

	switch env.EventType {
	case events.TypeOrderPaid:
		paid, err := events.Decode[events.OrderPaid](env)
		if err != nil {
			log.Error("malformed order.paid payload", zap.Error(err))
			return nil
		}
		return s.fulfill(ctx, log, paid)
	case events.TypeOrderRefunded:
		refunded, err := events.Decode[events.OrderRefunded](env)
		if err != nil {
			log.Error("malformed order.refunded payload", zap.Error(err))
			return nil
		}
		cancelled, err := s.repo.Cancel(ctx, refunded.OrderID)
		if err != nil {
			return err
		}
		log.Info("refund processed", zap.Int64("order_id", refunded.OrderID), zap.Bool("restocked", cancelled))
		return nil
	default:
		log.Debug("ignoring event type")
		return nil
	}
}

func (s *Service) fulfill(ctx context.Context, log *zap.Logger, paid events.OrderPaid) error {
	log = log.With(
		zap.Int64("order_id", paid.OrderID),
		zap.String("external_reference", paid.ExternalReference),
	)

	f, created, err := s.repo.Fulfill(ctx, paid)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	if f.Short {
		metrics.FulfillmentShort.Inc()
		log.Error("paid order is short on stock, manual follow-up required",
			zap.Any("short_items", f.ShortItems),
		)
		return nil
	}
	log.Info("order queued for fulfillment", zap.Int64("fulfillment_id", f.ID))
	return nil
}
