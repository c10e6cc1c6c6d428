package checkout

import (
	"context"
	"time"

	"tienda-be/internal/logger"
	"tienda-be/internal/order"
	"tienda-be/internal/payment"
	"tienda-be/internal/payment/webhook"
	"tienda-be/internal/utils"

	"go.uber.org/zap"
)

// ReconcileJob settles pending orders whose webhook never arrived or whose
// charge timed out, by asking the provider for the latest payment.
type ReconcileJob struct {
	orders     order.Service
	registry   *payment.Registry
	reconciler *webhook.Reconciler
	interval   time.Duration
	staleAfter time.Duration
	batch      int
}

func NewReconcileJob(orders order.Service, registry *payment.Registry, reconciler *webhook.Reconciler, interval, staleAfter time.Duration) *ReconcileJob {
	return &ReconcileJob{
		orders:     orders,
		registry:   registry,
		reconciler: reconciler,
		interval:   interval,
		staleAfter: staleAfter,
		batch:      50,
	}
}

func (j *ReconcileJob) Run(ctx context.Context) error {
	log := logger.FromCtx(ctx).With(zap.String("layer", "job"), zap.String("job", "reconcile"))
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := j.Sweep(ctx)
			if err != nil {
				log.Error("reconcile sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("reconciled stale orders", zap.Int("settled", n))
			}
		}
	}
}

// Sweep checks one batch of stale orders and returns how many changed state.
// A failure on one order does not stop the batch.
func (j *ReconcileJob) Sweep(ctx context.Context) (int, error) {
	orders, err := j.orders.ListStalePending(ctx, j.staleAfter, j.batch)
	if err != nil {
		return 0, err
	}

	settled := 0
	for _, o := range orders {
		log := logger.FromCtx(ctx).With(
			zap.String("layer", "job"),
			zap.Int64("order_id", o.ID),
			zap.String("external_reference", o.ExternalReference),
		)

		gw, err := j.registry.Get(utils.PtrString(o.PaymentMethod))
		if err != nil {
			log.Warn("stale order has no usable provider", zap.Error(err))
			continue
		}

		out, found, err := j.reconciler.ReconcileReference(ctx, gw, o.ExternalReference)
		if err != nil {
			log.Warn("failed to reconcile stale order", zap.Error(err))
			continue
		}
		if !found {
			log.Debug("no payment yet for stale order")
			continue
		}
		if out.Order.Applied {
			settled++
		}
	}
	return settled, nil
}
