package checkout

import (
	"context"
	"strconv"

	"tienda-be/internal/address"
	"tienda-be/internal/apperr"
	"tienda-be/internal/cart"
	"tienda-be/internal/inventory"
	"tienda-be/internal/logger"
	"tienda-be/internal/order"
	"tienda-be/internal/payment"
	"tienda-be/internal/utils"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Verifier interface {
	Verify(ctx context.Context, reqs []inventory.Request) ([]inventory.VerifiedLine, error)
}

type Service interface {
	CreatePreference(ctx context.Context, userID int64, in PreferenceInput) (*PreferenceOutput, error)
	TokenizeCard(ctx context.Context, provider string, card payment.CardData) (string, error)
	// ProcessCard charges a card. A provider rejection is a normal outcome
	// reported with Success false, not an error.
	ProcessCard(ctx context.Context, userID int64, in CardPaymentInput) (*CardPaymentOutput, error)
	GetPayment(ctx context.Context, userID int64, isAdmin bool, provider, paymentID string) (*payment.Result, error)
	// Refund returns the full amount when amount is nil.
	Refund(ctx context.Context, adminID int64, provider, paymentID string, amount *decimal.Decimal) (*RefundOutput, error)
	PaymentMethods(ctx context.Context, provider string) ([]payment.Method, error)
}

type service struct {
	carts     cart.Service
	verifier  Verifier
	addresses address.Service
	orders    order.Service
	payments  payment.Repository
	registry  *payment.Registry
}

func NewService(
	carts cart.Service,
	verifier Verifier,
	addresses address.Service,
	orders order.Service,
	payments payment.Repository,
	registry *payment.Registry,
) Service {
	return &service{
		carts:     carts,
		verifier:  verifier,
		addresses: addresses,
		orders:    orders,
		payments:  payments,
		registry:  registry,
	}
}

func (s *service) CreatePreference(ctx context.Context, userID int64, in PreferenceInput) (*PreferenceOutput, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreatePreference"),
		zap.Int64("user_id", userID),
	)

	gw, err := s.registry.Get(in.Provider)
	if err != nil {
		return nil, err
	}

	reqs := in.Items
	if len(reqs) == 0 {
		c, err := s.carts.GetCart(ctx, cart.UserOwner(userID))
		if err != nil {
			return nil, err
		}
		for _, l := range c.Lines {
			reqs = append(reqs, inventory.Request{Key: l.Key, Quantity: l.Quantity})
		}
	}
	if len(reqs) == 0 {
		return nil, ErrEmptyCheckout
	}

	lines, err := s.verifier.Verify(ctx, reqs)
	if err != nil {
		log.Info("checkout blocked by verification", zap.Error(err))
		return nil, err
	}

	addr, err := s.addresses.Resolve(ctx, userID, in.AddressID)
	if err != nil {
		return nil, err
	}

	o, err := s.orders.Create(ctx, userID, lines, addr, gw.Provider())
	if err != nil {
		return nil, err
	}
	log = log.With(zap.Int64("order_id", o.ID), zap.String("external_reference", o.ExternalReference))

	items := make([]payment.LineItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, payment.LineItem{
			ID:        strconv.FormatInt(it.VariantID, 10),
			Title:     it.ProductName + " (" + it.ColorCode + ", " + it.Size + ")",
			Quantity:  it.Quantity,
			UnitPrice: it.Price,
		})
	}

	pref, err := gw.CreatePreference(ctx, payment.PreferenceRequest{
		ExternalReference: o.ExternalReference,
		Items:             items,
		Shipping:          o.ShippingCost,
		Taxes:             o.Taxes,
		Total:             o.Total,
		Currency:          o.Currency,
		Payer:             in.Payer,
	})
	if err != nil {
		log.Error("failed to open hosted checkout", zap.Error(err))
		// Nobody can pay this order; close it instead of leaving it to the
		// stale sweep.
		if _, cerr := s.orders.Transition(ctx, o, order.StatusCancelled, order.TransitionInput{
			Note:  "hosted checkout could not be created",
			Actor: order.Actor{ID: string(gw.Provider()), Type: order.ActorSystem},
		}); cerr != nil {
			log.Error("failed to cancel unpayable order", zap.Error(cerr))
		}
		return nil, err
	}

	rec := &payment.Record{
		OrderID:           o.ID,
		Provider:          gw.Provider(),
		ExternalReference: o.ExternalReference,
		PreferenceID:      utils.StrPtr(pref.PreferenceID),
		RedirectURL:       utils.StrPtr(pref.RedirectURL),
		Amount:            o.Total,
		Status:            "created",
	}
	if err := s.payments.SaveAttempt(ctx, rec); err != nil {
		log.Warn("preference created but attempt not recorded", zap.Error(err))
	}

	log.Info("hosted checkout opened", zap.String("preference_id", pref.PreferenceID))
	return &PreferenceOutput{
		OrderID:           o.ID,
		ExternalReference: o.ExternalReference,
		Provider:          gw.Provider(),
		PreferenceID:      pref.PreferenceID,
		RedirectURL:       pref.RedirectURL,
		Subtotal:          o.Subtotal,
		ShippingCost:      o.ShippingCost,
		Taxes:             o.Taxes,
		Total:             o.Total,
	}, nil
}

func (s *service) TokenizeCard(ctx context.Context, provider string, card payment.CardData) (string, error) {
	gw, err := s.registry.Get(provider)
	if err != nil {
		return "", err
	}
	return gw.TokenizeCard(ctx, card)
}

func (s *service) ProcessCard(ctx context.Context, userID int64, in CardPaymentInput) (*CardPaymentOutput, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "ProcessCard"),
		zap.Int64("user_id", userID),
		zap.String("external_reference", in.ExternalReference),
	)

	gw, err := s.registry.Get(in.Provider)
	if err != nil {
		return nil, err
	}

	var missing []string
	if in.Token == "" {
		missing = append(missing, "token")
	}
	// MercadoPago charges need the card brand; Wompi derives it from the token.
	if in.PaymentMethodID == "" && gw.Provider() == payment.ProviderMercadoPago {
		missing = append(missing, "payment_method_id")
	}
	if in.ExternalReference == "" {
		missing = append(missing, "external_reference")
	}
	if in.Payer.Email == "" {
		missing = append(missing, "payer.email")
	}
	if len(missing) > 0 {
		return nil, missingFields(missing...)
	}

	o, err := s.orders.GetByExternalReference(ctx, in.ExternalReference)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		log.Warn("card payment for someone else's order")
		return nil, order.ErrForbidden
	}
	if o.Status != order.StatusPending {
		return nil, ErrOrderNotPayable
	}
	if in.Amount != nil && !in.Amount.Equal(o.Total) {
		log.Warn("client amount differs from order total",
			zap.String("amount", in.Amount.String()),
			zap.String("total", o.Total.String()),
		)
		return nil, ErrAmountMismatch
	}

	// A retry after a timed-out charge must not charge twice.
	prior, err := gw.SearchByReference(ctx, o.ExternalReference)
	switch {
	case err == nil && (prior.Status == payment.StatusApproved || prior.Status == payment.StatusPending):
		log.Info("order already has a live payment, not charging again", zap.String("payment_id", prior.PaymentID))
		s.record(ctx, log, o, prior)
		s.apply(ctx, log, o, prior, userID)
		if prior.Status == payment.StatusPending {
			return nil, ErrPaymentInFlight
		}
		return cardOutput(o, prior), nil
	case err != nil && !errors.Is(err, payment.ErrPaymentNotFound):
		return nil, err
	}

	res, err := gw.Charge(ctx, payment.ChargeRequest{
		Token:             in.Token,
		Amount:            o.Total,
		Currency:          o.Currency,
		PaymentMethodID:   in.PaymentMethodID,
		Installments:      in.Installments,
		Description:       "Order " + o.ExternalReference,
		ExternalReference: o.ExternalReference,
		Payer:             in.Payer,
	})
	if res == nil {
		// Nothing is known about the charge; the stale sweep or a webhook
		// resolves it.
		return nil, err
	}
	if err != nil && apperr.KindOf(err) != apperr.PaymentRejected {
		return nil, err
	}

	s.record(ctx, log, o, res)
	s.apply(ctx, log, o, res, userID)

	log.Info("card payment processed",
		zap.String("payment_id", res.PaymentID),
		zap.String("status", string(res.Status)),
		zap.String("status_detail", res.StatusDetail),
	)
	return cardOutput(o, res), nil
}

func cardOutput(o *order.Order, res *payment.Result) *CardPaymentOutput {
	out := &CardPaymentOutput{
		Success:           res.Status == payment.StatusApproved,
		PaymentID:         res.PaymentID,
		Status:            res.Status,
		StatusDetail:      res.StatusDetail,
		Message:           res.Message,
		OrderID:           o.ID,
		OrderStatus:       o.Status,
		ExternalReference: o.ExternalReference,
	}
	if !out.Success && out.Message == "" {
		out.Message = payment.RejectionMessage(res.StatusDetail, "")
	}
	return out
}

// record and apply run after the provider has answered. Their failures are
// logged only: a charged card is never reported as failed because of a
// local write.
func (s *service) record(ctx context.Context, log *zap.Logger, o *order.Order, res *payment.Result) {
	rec := &payment.Record{
		OrderID:           o.ID,
		Provider:          res.Provider,
		ExternalReference: o.ExternalReference,
		ProviderPaymentID: utils.StrPtr(res.PaymentID),
		Amount:            res.Amount,
		Status:            res.RawStatus,
		StatusDetail:      utils.StrPtr(res.StatusDetail),
	}
	if err := s.payments.SaveAttempt(ctx, rec); err != nil {
		log.Error("failed to record payment attempt", zap.String("payment_id", res.PaymentID), zap.Error(err))
	}
}

func (s *service) apply(ctx context.Context, log *zap.Logger, o *order.Order, res *payment.Result, userID int64) {
	actor := order.Actor{ID: strconv.FormatInt(userID, 10), Type: order.ActorUser}
	if _, err := s.orders.ApplyPayment(ctx, o, res, actor); err != nil {
		log.Error("payment settled but order not updated",
			zap.Int64("order_id", o.ID),
			zap.String("payment_id", res.PaymentID),
			zap.String("payment_status", string(res.Status)),
			zap.Error(err),
		)
	}
}

func (s *service) GetPayment(ctx context.Context, userID int64, isAdmin bool, provider, paymentID string) (*payment.Result, error) {
	gw, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}
	res, err := gw.GetStatus(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	o, err := s.orders.GetByExternalReference(ctx, res.ExternalReference)
	switch {
	case errors.Is(err, order.ErrOrderNotFound):
		if !isAdmin {
			return nil, payment.ErrPaymentNotFound
		}
		return res, nil
	case err != nil:
		return nil, err
	}
	if !isAdmin && o.UserID != userID {
		return nil, payment.ErrPaymentNotFound
	}

	if err := s.payments.UpdateFromResult(ctx, res); err != nil {
		logger.FromCtx(ctx).Warn("failed to project payment status",
			zap.String("layer", "service"),
			zap.String("payment_id", paymentID),
			zap.Error(err),
		)
	}
	return res, nil
}

func (s *service) Refund(ctx context.Context, adminID int64, provider, paymentID string, amount *decimal.Decimal) (*RefundOutput, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "Refund"),
		zap.Int64("admin_id", adminID),
		zap.String("payment_id", paymentID),
	)

	if amount != nil && !amount.IsPositive() {
		return nil, payment.ErrInvalidAmount
	}
	gw, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}

	refund, err := gw.Refund(ctx, paymentID, amount)
	if err != nil {
		return nil, err
	}
	log.Info("refund issued", zap.String("refund_id", refund.RefundID), zap.String("amount", refund.Amount.String()))

	out := &RefundOutput{Refund: refund}

	// The refund stands from here on; local bookkeeping is best effort.
	res, err := gw.GetStatus(ctx, paymentID)
	if err != nil {
		log.Error("refund issued but payment status not refreshed", zap.Error(err))
		return out, nil
	}
	out.Status = res.Status

	o, err := s.orders.GetByExternalReference(ctx, res.ExternalReference)
	if err != nil {
		log.Error("refund issued for a payment without a readable order", zap.Error(err))
		return out, nil
	}
	out.OrderID = o.ID

	if err := s.payments.UpdateFromResult(ctx, res); err != nil {
		log.Warn("failed to project refunded payment", zap.Error(err))
	}
	actor := order.Actor{ID: strconv.FormatInt(adminID, 10), Type: order.ActorAdmin}
	if _, err := s.orders.ApplyPayment(ctx, o, res, actor); err != nil {
		log.Error("refund issued but order not updated", zap.Int64("order_id", o.ID), zap.Error(err))
	}
	out.OrderStatus = o.Status
	return out, nil
}

func (s *service) PaymentMethods(ctx context.Context, provider string) ([]payment.Method, error) {
	gw, err := s.registry.Get(provider)
	if err != nil {
		return nil, err
	}
	return gw.PaymentMethods(ctx)
}
