package webhook

import (
	"context"

	"tienda-be/internal/apperr"
	"tienda-be/internal/logger"
	"tienda-be/internal/metrics"
	"tienda-be/internal/order"
	"tienda-be/internal/payment"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Result labels for the webhook counter.
const (
	ResultProcessed         = "processed"
	ResultIgnored           = "ignored"
	ResultUnknownOrder      = "unknown_order"
	ResultInvalidSignature  = "invalid_signature"
	ResultInvalidTransition = "invalid_transition"
	ResultError             = "error"
)

// topics that carry a payment id. Everything else is acknowledged and dropped.
var paymentTopics = map[string]bool{
	"payment":             true,
	"transaction.updated": true,
}

// Reconciler brings a local order in line with the provider's view of one
// payment. Notification bodies are never trusted for status.
type Reconciler struct {
	orders   order.Service
	payments payment.Repository
}

func NewReconciler(orders order.Service, payments payment.Repository) *Reconciler {
	return &Reconciler{orders: orders, payments: payments}
}

// Outcome is what one reconciliation did, with the label it is counted under.
type Outcome struct {
	Result  string
	OrderID int64
	Payment *payment.Result
	Order   order.Outcome
}

// ReconcilePayment re-fetches paymentID from gw and applies it.
func (rc *Reconciler) ReconcilePayment(ctx context.Context, gw payment.Gateway, paymentID string) (Outcome, error) {
	res, err := gw.GetStatus(ctx, paymentID)
	if err != nil {
		if errors.Is(err, payment.ErrPaymentNotFound) {
			logger.FromCtx(ctx).Warn("notified payment does not exist at provider",
				zap.String("layer", "webhook"),
				zap.String("provider", string(gw.Provider())),
				zap.String("payment_id", paymentID),
			)
			return Outcome{Result: ResultIgnored}, nil
		}
		return Outcome{Result: ResultError}, err
	}
	return rc.apply(ctx, gw, rc.latest(ctx, gw, res))
}

// ReconcileReference applies the most recent payment made for an order.
// found is false when the provider has none.
func (rc *Reconciler) ReconcileReference(ctx context.Context, gw payment.Gateway, ref string) (out Outcome, found bool, err error) {
	res, err := gw.SearchByReference(ctx, ref)
	if errors.Is(err, payment.ErrPaymentNotFound) {
		return Outcome{Result: ResultIgnored}, false, nil
	}
	if err != nil {
		return Outcome{Result: ResultError}, false, err
	}
	out, err = rc.apply(ctx, gw, res)
	return out, true, err
}

// latest swaps a failed attempt for the newest payment on the same order,
// so a successful retry in hosted checkout is not overtaken by an older
// rejection delivered late.
func (rc *Reconciler) latest(ctx context.Context, gw payment.Gateway, res *payment.Result) *payment.Result {
	if res.Status != payment.StatusRejected && res.Status != payment.StatusCancelled {
		return res
	}
	if res.ExternalReference == "" {
		return res
	}
	newest, err := gw.SearchByReference(ctx, res.ExternalReference)
	if err != nil {
		if !errors.Is(err, payment.ErrPaymentNotFound) {
			logger.FromCtx(ctx).Warn("could not look up newer payments, using notified one",
				zap.String("layer", "webhook"),
				zap.String("external_reference", res.ExternalReference),
				zap.Error(err),
			)
		}
		return res
	}
	if newest.PaymentID != res.PaymentID {
		logger.FromCtx(ctx).Info("newer payment supersedes notified one",
			zap.String("layer", "webhook"),
			zap.String("notified_payment_id", res.PaymentID),
			zap.String("payment_id", newest.PaymentID),
			zap.String("status", string(newest.Status)),
		)
		return newest
	}
	return res
}

func (rc *Reconciler) apply(ctx context.Context, gw payment.Gateway, res *payment.Result) (Outcome, error) {
	provider := string(gw.Provider())
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "webhook"),
		zap.String("method", "Reconcile"),
		zap.String("provider", provider),
		zap.String("payment_id", res.PaymentID),
		zap.String("external_reference", res.ExternalReference),
		zap.String("payment_status", string(res.Status)),
	)
	out := Outcome{Payment: res}

	o, err := rc.orders.GetByExternalReference(ctx, res.ExternalReference)
	if errors.Is(err, order.ErrOrderNotFound) {
		log.Warn("payment references no known order")
		metrics.WebhookUnknownOrder.WithLabelValues(provider).Inc()
		out.Result = ResultUnknownOrder
		return out, nil
	}
	if err != nil {
		out.Result = ResultError
		return out, err
	}
	out.OrderID = o.ID

	if err := rc.payments.UpdateFromResult(ctx, res); err != nil {
		log.Warn("failed to project payment attempt", zap.Error(err))
	}

	applied, err := rc.orders.ApplyPayment(ctx, o, res, order.Actor{ID: provider, Type: order.ActorWebhook})
	out.Order = applied
	if err != nil {
		if apperr.KindOf(err) == apperr.InvalidTransition {
			if res.Status == payment.StatusApproved {
				log.Error("approved payment on a closed order, refund required",
					zap.Int64("order_id", o.ID),
					zap.String("order_status", string(o.Status)),
				)
			} else {
				log.Error("payment outcome conflicts with order status",
					zap.Int64("order_id", o.ID),
					zap.String("order_status", string(o.Status)),
				)
			}
			out.Result = ResultInvalidTransition
			return out, nil
		}
		out.Result = ResultError
		return out, err
	}

	out.Result = ResultProcessed
	log.Info("payment reconciled",
		zap.Int64("order_id", o.ID),
		zap.String("from", string(applied.From)),
		zap.String("to", string(applied.To)),
		zap.Bool("applied", applied.Applied),
	)
	return out, nil
}
