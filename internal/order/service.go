package order

import (
	"context"
	"strconv"
	"time"

	"tienda-be/internal/address"
	"tienda-be/internal/apperr"
	"tienda-be/internal/events"
	"tienda-be/internal/inventory"
	"tienda-be/internal/logger"
	"tienda-be/internal/metrics"
	"tienda-be/internal/payment"
	"tienda-be/internal/utils"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Guard claims a (reference, target status) pair so concurrent deliveries
// of the same outcome apply it once.
type Guard interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
}

type Service interface {
	// Create builds and persists a pending order from verified lines.
	Create(ctx context.Context, userID int64, lines []inventory.VerifiedLine, addr *address.Address, provider payment.Provider) (*Order, error)
	Get(ctx context.Context, id int64) (*Order, error)
	// GetForUser returns the order when userID owns it or isAdmin is set.
	GetForUser(ctx context.Context, id, userID int64, isAdmin bool) (*Order, error)
	GetByExternalReference(ctx context.Context, ref string) (*Order, error)

	// Transition applies one legal status change. applied is false for a
	// no-op (already in to, or another caller is applying it).
	Transition(ctx context.Context, o *Order, to Status, in TransitionInput) (applied bool, err error)
	// ApplyPayment maps a fresh provider result onto the order.
	ApplyPayment(ctx context.Context, o *Order, res *payment.Result, actor Actor) (Outcome, error)
	ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*Order, error)
}

type TransitionInput struct {
	Note          string
	Actor         Actor
	PaymentStatus string
	TransactionID string
	Provider      payment.Provider
}

// Outcome reports what ApplyPayment did.
type Outcome struct {
	From    Status
	To      Status
	Applied bool
}

type service struct {
	repo      Repository
	builder   *Builder
	guard     Guard
	paidTopic string
	now       func() time.Time
}

func NewService(repo Repository, builder *Builder, guard Guard, paidTopic string) Service {
	return &service{
		repo:      repo,
		builder:   builder,
		guard:     guard,
		paidTopic: paidTopic,
		now:       time.Now,
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

const maxReferenceAttempts = 3

func (s *service) Create(ctx context.Context, userID int64, lines []inventory.VerifiedLine, addr *address.Address, provider payment.Provider) (*Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateOrder"),
		zap.Int64("user_id", userID),
	)

	o, err := s.builder.Build(ctx, lines, addr, userID)
	if err != nil {
		return nil, err
	}
	o.PaymentMethod = utils.StrPtr(string(provider))

	for attempt := 1; ; attempt++ {
		err = s.repo.Create(ctx, o)
		if !errors.Is(err, ErrDuplicateReference) {
			break
		}
		if attempt == maxReferenceAttempts {
			log.Error("external reference collisions exhausted")
			return nil, ErrReferenceExhausted
		}
		o.ExternalReference = s.builder.NewReference()
	}
	if err != nil {
		if apperr.KindOf(err) == apperr.Internal {
			return nil, apperr.Wrap(apperr.Internal, err, ErrFailedCreateOrder.Message)
		}
		return nil, err
	}

	metrics.OrderTransitions.WithLabelValues(string(StatusNone), string(StatusPending)).Inc()
	log.Info("order placed",
		zap.Int64("order_id", o.ID),
		zap.String("external_reference", o.ExternalReference),
		zap.String("subtotal", o.Subtotal.String()),
		zap.String("shipping", o.ShippingCost.String()),
		zap.String("taxes", o.Taxes.String()),
		zap.String("total", o.Total.String()),
	)
	return o, nil
}

func (s *service) Get(ctx context.Context, id int64) (*Order, error) {
	o, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, classifyLoad(err)
	}
	return o, nil
}

func (s *service) GetForUser(ctx context.Context, id, userID int64, isAdmin bool) (*Order, error) {
	o, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && o.UserID != userID {
		logger.FromCtx(ctx).Warn("order access denied",
			zap.String("layer", "service"),
			zap.Int64("order_id", id),
			zap.Int64("user_id", userID),
		)
		return nil, ErrForbidden
	}
	return o, nil
}

func (s *service) GetByExternalReference(ctx context.Context, ref string) (*Order, error) {
	o, err := s.repo.GetByExternalReference(ctx, ref)
	if err != nil {
		return nil, classifyLoad(err)
	}
	return o, nil
}

func classifyLoad(err error) error {
	if errors.Is(err, ErrOrderNotFound) {
		return ErrOrderNotFound
	}
	return apperr.Wrap(apperr.Internal, err, ErrFailedGetOrder.Message)
}

func (s *service) Transition(ctx context.Context, o *Order, to Status, in TransitionInput) (bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Transition"),
		zap.Int64("order_id", o.ID),
		zap.String("external_reference", o.ExternalReference),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)),
	)

	if o.Status == to {
		log.Debug("order already in target status")
		return false, nil
	}
	if !CanTransition(o.Status, to) {
		log.Error("illegal order transition")
		return false, invalidTransition(o.ID, o.Status, to)
	}

	scope, key := o.ExternalReference, string(to)
	locked, err := s.guard.TryLock(ctx, scope, key)
	switch {
	case err != nil:
		// The conditional update still keeps the transition single.
		log.Warn("idempotency guard unavailable", zap.Error(err))
	case !locked:
		// The claim alone proves nothing: its holder may still fail.
		current, err := s.repo.GetByID(ctx, o.ID)
		if err != nil {
			return false, classifyLoad(err)
		}
		*o = *current
		if current.Status == to {
			log.Debug("transition already applied")
			return false, nil
		}
		if !CanTransition(current.Status, to) {
			log.Error("order changed concurrently", zap.String("current", string(current.Status)))
			return false, invalidTransition(o.ID, current.Status, to)
		}
		log.Warn("transition claimed but not committed", zap.String("current", string(current.Status)))
		return false, ErrTransitionInFlight
	}
	release := func() {
		if locked {
			// The request may already be cancelled; the claim must go regardless.
			if err := s.guard.Release(context.WithoutCancel(ctx), scope, key); err != nil {
				log.Warn("failed to release idempotency guard", zap.Error(err))
			}
		}
	}

	from := o.Status
	t := Transition{
		OrderID:       o.ID,
		From:          from,
		To:            to,
		Note:          in.Note,
		Actor:         in.Actor,
		PaymentStatus: utils.StrPtr(in.PaymentStatus),
		TransactionID: utils.StrPtr(in.TransactionID),
		PaymentMethod: utils.StrPtr(string(in.Provider)),
	}
	now := s.now()
	switch to {
	case StatusPaid:
		t.ClearCartOf = &o.UserID
		t.Event = &OutboxEvent{
			Topic:   s.paidTopic,
			Key:     o.ExternalReference,
			Type:    events.TypeOrderPaid,
			Payload: paidEvent(o, in, now),
		}
	case StatusRefunded:
		t.Event = &OutboxEvent{
			Topic: s.paidTopic,
			Key:   o.ExternalReference,
			Type:  events.TypeOrderRefunded,
			Payload: events.OrderRefunded{
				OrderID:           o.ID,
				ExternalReference: o.ExternalReference,
				PaymentID:         in.TransactionID,
				RefundedAt:        now,
			},
		}
	}

	applied, err := s.repo.ApplyTransition(ctx, t)
	if err != nil {
		release()
		return false, apperr.Wrap(apperr.Internal, err, ErrFailedUpdateOrder.Message)
	}
	if !applied {
		release()
		current, err := s.repo.GetByID(ctx, o.ID)
		if err != nil {
			return false, classifyLoad(err)
		}
		*o = *current
		if current.Status == to {
			log.Debug("transition applied by a concurrent caller")
			return false, nil
		}
		log.Error("order changed concurrently", zap.String("current", string(current.Status)))
		return false, invalidTransition(o.ID, current.Status, to)
	}

	o.Status = to
	if t.PaymentStatus != nil {
		o.PaymentStatus = t.PaymentStatus
	}
	if t.TransactionID != nil {
		o.TransactionID = t.TransactionID
	}
	switch to {
	case StatusPaid:
		if o.PaidAt == nil {
			o.PaidAt = &now
		}
	case StatusCancelled:
		if o.CancelledAt == nil {
			o.CancelledAt = &now
		}
	}

	metrics.OrderTransitions.WithLabelValues(string(from), string(to)).Inc()
	log.Info("order transitioned", zap.String("note", in.Note))
	return true, nil
}

func paidEvent(o *Order, in TransitionInput, now time.Time) events.OrderPaid {
	items := make([]events.Item, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, events.Item{
			VariantID: it.VariantID,
			ProductID: it.ProductID,
			ColorCode: it.ColorCode,
			Size:      it.Size,
			Quantity:  it.Quantity,
		})
	}
	return events.OrderPaid{
		OrderID:           o.ID,
		ExternalReference: o.ExternalReference,
		UserID:            o.UserID,
		Provider:          string(in.Provider),
		PaymentID:         in.TransactionID,
		Total:             o.Total,
		PaidAt:            now,
		Items:             items,
	}
}

func (s *service) ApplyPayment(ctx context.Context, o *Order, res *payment.Result, actor Actor) (Outcome, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ApplyPayment"),
		zap.Int64("order_id", o.ID),
		zap.String("payment_id", res.PaymentID),
		zap.String("payment_status", string(res.Status)),
	)

	out := Outcome{From: o.Status, To: o.Status}
	target, move := TargetFor(o.Status, res.Status)
	if !move || target == o.Status {
		// Nothing to transition; keep the payment projection fresh.
		info := PaymentInfo{
			Method:        utils.StrPtr(string(res.Provider)),
			Status:        utils.StrPtr(string(res.Status)),
			TransactionID: utils.StrPtr(res.PaymentID),
		}
		if err := s.repo.UpdatePaymentInfo(ctx, o.ID, info); err != nil {
			return out, apperr.Wrap(apperr.Internal, err, ErrFailedUpdateOrder.Message)
		}
		o.PaymentStatus = info.Status
		if info.TransactionID != nil {
			o.TransactionID = info.TransactionID
		}
		log.Debug("payment status projected without transition")
		return out, nil
	}

	applied, err := s.Transition(ctx, o, target, TransitionInput{
		Note:          paymentNote(res),
		Actor:         actor,
		PaymentStatus: string(res.Status),
		TransactionID: res.PaymentID,
		Provider:      res.Provider,
	})
	if err != nil {
		return out, err
	}
	out.To = o.Status
	out.Applied = applied
	return out, nil
}

func paymentNote(res *payment.Result) string {
	note := string(res.Provider) + " payment " + res.PaymentID + " " + res.RawStatus
	if res.StatusDetail != "" && res.StatusDetail != res.RawStatus {
		note += " (" + res.StatusDetail + ")"
	}
	return note
}

func (s *service) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*Order, error) {
	orders, err := s.repo.ListStalePending(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, ErrFailedGetOrder.Message)
	}
	return orders, nil
}
