package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"tienda-be/internal/logger"
	"tienda-be/internal/metrics"
	"tienda-be/internal/payment"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBody = 1 << 20

type Handler struct {
	registry   *payment.Registry
	payments   payment.Repository
	reconciler *Reconciler
}

func NewWebhookHandler(registry *payment.Registry, payments payment.Repository, reconciler *Reconciler) *Handler {
	return &Handler{
		registry:   registry,
		payments:   payments,
		reconciler: reconciler,
	}
}

// PaymentWebhookHandler accepts provider notifications. It answers 200 for
// everything that was handled or is not worth a retry, and 5xx only when a
// retry can succeed.
func (h *Handler) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	name := chi.URLParam(r, "provider")
	if name == "" {
		name = r.URL.Query().Get("provider")
	}
	gw, err := h.registry.Get(name)
	if err != nil {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}
	provider := string(gw.Provider())

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "webhook"),
		zap.String("method", "PaymentWebhookHandler"),
		zap.String("provider", provider),
	)
	count := func(result string) {
		metrics.WebhooksReceived.WithLabelValues(provider, result).Inc()
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		log.Warn("failed to read webhook body", zap.Error(err))
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	sigErr := gw.VerifySignature(r, body)

	n, err := gw.ParseNotification(r, body)
	if err != nil {
		log.Info("ignoring unrecognized notification", zap.Error(err))
		count(ResultIgnored)
		w.WriteHeader(http.StatusOK)
		return
	}
	log = log.With(
		zap.String("event_id", n.EventID),
		zap.String("topic", n.Topic),
		zap.String("resource_id", n.ResourceID),
	)

	payload := json.RawMessage(body)
	if !json.Valid(body) {
		payload = json.RawMessage("{}")
	}
	webhookID, duplicate, err := h.payments.SaveWebhook(ctx, payment.WebhookDelivery{
		Provider:       gw.Provider(),
		EventID:        n.EventID,
		Topic:          n.Topic,
		ResourceID:     n.ResourceID,
		SignatureValid: sigErr == nil,
		Payload:        payload,
	})
	if err != nil {
		log.Error("failed to store webhook", zap.Error(err))
		count(ResultError)
		http.Error(w, "failed to store webhook", http.StatusInternalServerError)
		return
	}
	if duplicate {
		log.Info("webhook redelivered, reconciling again", zap.Int64("webhook_id", webhookID))
	}

	if sigErr != nil {
		log.Warn("rejecting webhook with invalid signature", zap.Error(sigErr))
		h.markFailed(r, webhookID, "invalid signature")
		count(ResultInvalidSignature)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	if !paymentTopics[n.Topic] {
		log.Debug("notification topic not tracked")
		h.markProcessed(r, webhookID)
		count(ResultIgnored)
		w.WriteHeader(http.StatusOK)
		return
	}

	out, err := h.reconciler.ReconcilePayment(ctx, gw, n.ResourceID)
	count(out.Result)
	if err != nil {
		log.Error("failed to reconcile payment", zap.Error(err))
		h.markFailed(r, webhookID, err.Error())
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		return
	}

	switch out.Result {
	case ResultUnknownOrder, ResultInvalidTransition:
		h.markFailed(r, webhookID, out.Result)
	default:
		h.markProcessed(r, webhookID)
	}

	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok")
}

func (h *Handler) markProcessed(r *http.Request, id int64) {
	if err := h.payments.MarkWebhookProcessed(r.Context(), id); err != nil {
		logger.FromCtx(r.Context()).Warn("failed to mark webhook processed",
			zap.Int64("webhook_id", id), zap.Error(err))
	}
}

func (h *Handler) markFailed(r *http.Request, id int64, reason string) {
	if err := h.payments.MarkWebhookFailed(r.Context(), id, reason); err != nil {
		logger.FromCtx(r.Context()).Warn("failed to mark webhook failed",
			zap.Int64("webhook_id", id), zap.Error(err))
	}
}
