package payment

import (
	"context"
	"database/sql"

	"tienda-be/internal/logger"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

type Repository interface {
	// SaveAttempt upserts the attempt for (provider, external_reference).
	SaveAttempt(ctx context.Context, rec *Record) error
	// UpdateFromResult projects a fresh provider result onto the attempt.
	UpdateFromResult(ctx context.Context, res *Result) error
	GetLatestByOrder(ctx context.Context, orderID int64) (*Record, error)

	// SaveWebhook stores a delivery. Redeliveries bump the counter and
	// report duplicate=true.
	SaveWebhook(ctx context.Context, d WebhookDelivery) (webhookID int64, duplicate bool, err error)
	MarkWebhookProcessed(ctx context.Context, webhookID int64) error
	MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) SaveAttempt(ctx context.Context, rec *Record) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO payments (
			order_id,
			provider,
			external_reference,
			preference_id,
			redirect_url,
			provider_payment_id,
			amount,
			status,
			status_detail
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (provider, external_reference)
		DO UPDATE SET
			preference_id = COALESCE(EXCLUDED.preference_id, payments.preference_id),
			redirect_url = COALESCE(EXCLUDED.redirect_url, payments.redirect_url),
			provider_payment_id = COALESCE(EXCLUDED.provider_payment_id, payments.provider_payment_id),
			amount = EXCLUDED.amount,
			status = EXCLUDED.status,
			status_detail = COALESCE(EXCLUDED.status_detail, payments.status_detail),
			updated_at = NOW()
		RETURNING id, created_at, updated_at
	`,
		rec.OrderID,
		rec.Provider,
		rec.ExternalReference,
		rec.PreferenceID,
		rec.RedirectURL,
		rec.ProviderPaymentID,
		rec.Amount,
		rec.Status,
		rec.StatusDetail,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to save payment attempt",
			zap.String("layer", "repository"),
			zap.String("method", "SaveAttempt"),
			zap.String("external_reference", rec.ExternalReference),
			zap.Error(err),
		)
		return errors.Wrap(err, "save payment attempt")
	}
	return nil
}

func (r *repository) UpdateFromResult(ctx context.Context, res *Result) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET provider_payment_id = $1,
			status = $2,
			status_detail = $3,
			updated_at = NOW()
		WHERE provider = $4 AND external_reference = $5
	`, res.PaymentID, res.RawStatus, res.StatusDetail, res.Provider, res.ExternalReference)
	if err != nil {
		return errors.Wrap(err, "update payment status")
	}
	return nil
}

func (r *repository) GetLatestByOrder(ctx context.Context, orderID int64) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, provider, external_reference, preference_id, redirect_url,
			provider_payment_id, amount, status, status_detail, created_at, updated_at
		FROM payments
		WHERE order_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`, orderID)

	var p Record
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Provider, &p.ExternalReference, &p.PreferenceID, &p.RedirectURL,
		&p.ProviderPaymentID, &p.Amount, &p.Status, &p.StatusDetail, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get payment by order")
	}
	return &p, nil
}

func (r *repository) SaveWebhook(ctx context.Context, d WebhookDelivery) (int64, bool, error) {
	const q = `
	INSERT INTO payment_webhooks (
		provider,
		event_id,
		event_type,
		resource_id,
		signature_valid,
		payload
	)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (provider, event_id)
	DO UPDATE SET deliveries = payment_webhooks.deliveries + 1, last_received_at = NOW()
	RETURNING id, deliveries;
	`

	var (
		id         int64
		deliveries int
	)
	err := r.db.QueryRowContext(
		ctx,
		q,
		d.Provider,
		d.EventID,
		d.Topic,
		d.ResourceID,
		d.SignatureValid,
		string(d.Payload),
	).Scan(&id, &deliveries)
	if err != nil {
		return 0, false, errors.Wrap(err, "save webhook")
	}

	return id, deliveries > 1, nil
}

func (r *repository) MarkWebhookProcessed(ctx context.Context, webhookID int64) error {
	const q = `
	UPDATE payment_webhooks
	SET processed_at = now(), process_error = NULL
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID)
	return err
}

func (r *repository) MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error {
	const q = `
	UPDATE payment_webhooks
	SET process_error = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID, reason)
	return err
}
