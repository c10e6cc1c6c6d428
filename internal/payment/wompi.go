package payment

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"tienda-be/internal/apperr"
	"tienda-be/internal/logger"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	wompiProductionURL = "https://production.wompi.co/v1"
	wompiSandboxURL    = "https://sandbox.wompi.co/v1"
	wompiCheckoutURL   = "https://checkout.wompi.co/p/"
)

type WompiConfig struct {
	PublicKey       string
	PrivateKey      string
	IntegritySecret string
	EventsSecret    string
	RedirectURL     string
	Sandbox         bool
	Timeout         time.Duration
}

type wompiGateway struct {
	cfg     WompiConfig
	api     *apiClient
	baseURL string
}

// ----------------- Constructor -----------------

func NewWompiGateway(cfg WompiConfig) Gateway {
	if cfg.PrivateKey == "" {
		logger.L().Warn("Wompi private key is empty")
	}
	base := wompiProductionURL
	if cfg.Sandbox {
		base = wompiSandboxURL
	}
	return &wompiGateway{
		cfg:     cfg,
		api:     newAPIClient(ProviderWompi, cfg.Timeout),
		baseURL: base,
	}
}

func (w *wompiGateway) Provider() Provider { return ProviderWompi }

func (w *wompiGateway) private() map[string]string {
	return map[string]string{"Authorization": "Bearer " + w.cfg.PrivateKey}
}

func (w *wompiGateway) public() map[string]string {
	return map[string]string{"Authorization": "Bearer " + w.cfg.PublicKey}
}

// integrity signs reference, amount and currency the way Wompi checks them
// on checkout links and transactions.
func (w *wompiGateway) integrity(reference string, cents int64, currency string) string {
	sum := sha256.Sum256([]byte(reference + strconv.FormatInt(cents, 10) + currency + w.cfg.IntegritySecret))
	return hex.EncodeToString(sum[:])
}

type wompiTransaction struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	StatusMessage     string `json:"status_message"`
	Reference         string `json:"reference"`
	AmountInCents     int64  `json:"amount_in_cents"`
	PaymentMethodType string `json:"payment_method_type"`
	CreatedAt         string `json:"created_at"`
}

func wompiStatus(s string) Status {
	switch s {
	case "APPROVED":
		return StatusApproved
	case "PENDING":
		return StatusPending
	case "DECLINED", "ERROR":
		return StatusRejected
	case "VOIDED":
		return StatusCancelled
	default:
		return StatusUnknown
	}
}

func (t *wompiTransaction) result() *Result {
	res := &Result{
		Provider:          ProviderWompi,
		PaymentID:         t.ID,
		Status:            wompiStatus(t.Status),
		RawStatus:         t.Status,
		StatusDetail:      t.StatusMessage,
		Amount:            fromCents(t.AmountInCents),
		ExternalReference: t.Reference,
		PaymentMethod:     t.PaymentMethodType,
	}
	if res.StatusDetail == "" {
		res.StatusDetail = t.Status
	}
	if res.Status == StatusRejected || res.Status == StatusPending {
		res.Message = RejectionMessage(t.Status, t.StatusMessage)
	}
	return res
}

// ----------------- CreatePreference -----------------

// CreatePreference builds a signed Web Checkout link. The buyer chooses
// card, PSE or Nequi on Wompi's page and the transaction carries our
// reference, so no API call is needed here.
func (w *wompiGateway) CreatePreference(_ context.Context, req PreferenceRequest) (*Preference, error) {
	if !req.Total.IsPositive() {
		return nil, ErrInvalidAmount
	}
	cents := toCents(req.Total)

	q := url.Values{}
	q.Set("public-key", w.cfg.PublicKey)
	q.Set("currency", req.Currency)
	q.Set("amount-in-cents", strconv.FormatInt(cents, 10))
	q.Set("reference", req.ExternalReference)
	q.Set("signature:integrity", w.integrity(req.ExternalReference, cents, req.Currency))
	if w.cfg.RedirectURL != "" {
		q.Set("redirect-url", w.cfg.RedirectURL)
	}
	if req.Payer.Email != "" {
		q.Set("customer-data:email", req.Payer.Email)
	}
	if req.Payer.Name != "" {
		q.Set("customer-data:full-name", req.Payer.Name)
	}

	return &Preference{
		Provider:     ProviderWompi,
		PreferenceID: req.ExternalReference,
		RedirectURL:  wompiCheckoutURL + "?" + q.Encode(),
	}, nil
}

// ----------------- TokenizeCard -----------------

func (w *wompiGateway) TokenizeCard(ctx context.Context, card CardData) (string, error) {
	if err := ValidateCard(card, time.Now()); err != nil {
		return "", err
	}

	body := map[string]string{
		"number":      NormalizeCardNumber(card.Number),
		"cvc":         card.CVV,
		"exp_month":   fmt.Sprintf("%02d", card.ExpMonth),
		"exp_year":    fmt.Sprintf("%02d", card.ExpYear%100),
		"card_holder": card.HolderName,
	}

	var res struct {
		Status string `json:"status"`
		Data   struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	err := w.api.do(ctx, call{
		op: "tokenize_card", method: http.MethodPost, url: w.baseURL + "/tokens/cards",
		headers: w.public(), in: body, out: &res,
	})
	if apperr.Is(err, apperr.InvalidInput) {
		return "", apperr.Wrap(apperr.InvalidCardData, err, "card was refused by the payment provider")
	}
	if err != nil {
		return "", err
	}
	if res.Data.ID == "" {
		return "", unavailable(ProviderWompi, errors.New("empty card token"))
	}
	return res.Data.ID, nil
}

// ----------------- Charge -----------------

func (w *wompiGateway) acceptanceToken(ctx context.Context) (string, []string, error) {
	var res struct {
		Data struct {
			AcceptedPaymentMethods []string `json:"accepted_payment_methods"`
			PresignedAcceptance    struct {
				AcceptanceToken string `json:"acceptance_token"`
			} `json:"presigned_acceptance"`
		} `json:"data"`
	}
	if err := w.api.do(ctx, call{
		op: "merchant", method: http.MethodGet,
		url: w.baseURL + "/merchants/" + url.PathEscape(w.cfg.PublicKey), out: &res,
	}); err != nil {
		return "", nil, err
	}
	return res.Data.PresignedAcceptance.AcceptanceToken, res.Data.AcceptedPaymentMethods, nil
}

// Charge creates a card transaction. Wompi usually answers PENDING and the
// final status arrives by event or status poll.
func (w *wompiGateway) Charge(ctx context.Context, req ChargeRequest) (*Result, error) {
	if req.Token == "" {
		return nil, ErrMissingToken
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	acceptance, _, err := w.acceptanceToken(ctx)
	if err != nil {
		return nil, err
	}

	installments := req.Installments
	if installments <= 0 {
		installments = 1
	}
	cents := toCents(req.Amount)
	body := map[string]any{
		"acceptance_token": acceptance,
		"amount_in_cents":  cents,
		"currency":         req.Currency,
		"signature":        w.integrity(req.ExternalReference, cents, req.Currency),
		"customer_email":   req.Payer.Email,
		"reference":        req.ExternalReference,
		"payment_method": map[string]any{
			"type":         "CARD",
			"token":        req.Token,
			"installments": installments,
		},
	}
	if w.cfg.RedirectURL != "" {
		body["redirect_url"] = w.cfg.RedirectURL
	}

	var res struct {
		Data wompiTransaction `json:"data"`
	}
	if err := w.api.do(ctx, call{
		op: "charge", method: http.MethodPost, url: w.baseURL + "/transactions",
		headers: w.private(), in: body, out: &res,
	}); err != nil {
		return nil, err
	}

	out := res.Data.result()
	logger.FromCtx(ctx).Info("Wompi transaction created",
		zap.String("payment_id", out.PaymentID),
		zap.String("external_reference", out.ExternalReference),
		zap.String("status", out.RawStatus),
	)

	if out.Status == StatusRejected || out.Status == StatusCancelled {
		return out, rejected(out)
	}
	return out, nil
}

// ----------------- Refund -----------------

// Refund voids an approved card transaction. Wompi voids the whole amount.
func (w *wompiGateway) Refund(ctx context.Context, paymentID string, amount *decimal.Decimal) (*RefundResult, error) {
	if amount != nil {
		return nil, ErrPartialRefund
	}

	var res struct {
		Data struct {
			Status      string           `json:"status"`
			Transaction wompiTransaction `json:"transaction"`
		} `json:"data"`
	}
	if err := w.api.do(ctx, call{
		op: "refund", method: http.MethodPost,
		url:     w.baseURL + "/transactions/" + url.PathEscape(paymentID) + "/void",
		headers: w.private(), in: map[string]any{}, out: &res,
	}); err != nil {
		return nil, err
	}

	status := res.Data.Status
	if status == "" {
		status = res.Data.Transaction.Status
	}
	return &RefundResult{
		RefundID:  paymentID,
		PaymentID: paymentID,
		Amount:    fromCents(res.Data.Transaction.AmountInCents),
		Status:    status,
	}, nil
}

// ----------------- GetStatus -----------------

func (w *wompiGateway) GetStatus(ctx context.Context, paymentID string) (*Result, error) {
	var res struct {
		Data wompiTransaction `json:"data"`
	}
	if err := w.api.do(ctx, call{
		op: "get_status", method: http.MethodGet,
		url:     w.baseURL + "/transactions/" + url.PathEscape(paymentID),
		headers: w.private(), out: &res,
	}); err != nil {
		return nil, err
	}
	return res.Data.result(), nil
}

func (w *wompiGateway) SearchByReference(ctx context.Context, externalReference string) (*Result, error) {
	var res struct {
		Data []wompiTransaction `json:"data"`
	}
	if err := w.api.do(ctx, call{
		op: "search", method: http.MethodGet,
		url:     w.baseURL + "/transactions?reference=" + url.QueryEscape(externalReference),
		headers: w.private(), out: &res,
	}); err != nil {
		return nil, err
	}
	if len(res.Data) == 0 {
		return nil, ErrPaymentNotFound
	}
	sort.Slice(res.Data, func(i, j int) bool { return res.Data[i].CreatedAt > res.Data[j].CreatedAt })
	return res.Data[0].result(), nil
}

func (w *wompiGateway) PaymentMethods(ctx context.Context) ([]Method, error) {
	_, accepted, err := w.acceptanceToken(ctx)
	if err != nil {
		return nil, err
	}
	methods := make([]Method, 0, len(accepted))
	for _, m := range accepted {
		methods = append(methods, Method{ID: m, Name: m, Type: strings.ToLower(m), Status: "active"})
	}
	return methods, nil
}

// ----------------- Notifications -----------------

type wompiEvent struct {
	Event string `json:"event"`
	Data  struct {
		Transaction wompiTransaction `json:"transaction"`
	} `json:"data"`
	Signature struct {
		Properties []string `json:"properties"`
		Checksum   string   `json:"checksum"`
	} `json:"signature"`
	Timestamp int64 `json:"timestamp"`
}

func (w *wompiGateway) ParseNotification(_ *http.Request, body []byte) (*Notification, error) {
	var ev wompiEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, apperr.Wrap(apperr.InvalidInput, err, ErrUnrecognized.Message)
	}
	if ev.Event == "" || ev.Data.Transaction.ID == "" {
		return nil, ErrUnrecognized
	}
	return &Notification{
		Provider:   ProviderWompi,
		EventID:    ev.Data.Transaction.ID + ":" + ev.Data.Transaction.Status + ":" + strconv.FormatInt(ev.Timestamp, 10),
		Topic:      ev.Event,
		ResourceID: ev.Data.Transaction.ID,
	}, nil
}

// VerifySignature recomputes the event checksum: SHA-256 over the values
// named in signature.properties, the timestamp and the events secret.
func (w *wompiGateway) VerifySignature(r *http.Request, body []byte) error {
	if w.cfg.EventsSecret == "" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw struct {
		Data      map[string]any `json:"data"`
		Signature struct {
			Properties []string `json:"properties"`
			Checksum   string   `json:"checksum"`
		} `json:"signature"`
		Timestamp json.Number `json:"timestamp"`
	}
	if err := dec.Decode(&raw); err != nil {
		return ErrInvalidSignature
	}

	checksum := raw.Signature.Checksum
	if checksum == "" {
		checksum = r.Header.Get("X-Event-Checksum")
	}
	if checksum == "" || len(raw.Signature.Properties) == 0 {
		return ErrInvalidSignature
	}

	var b strings.Builder
	for _, prop := range raw.Signature.Properties {
		b.WriteString(lookupPath(raw.Data, prop))
	}
	b.WriteString(raw.Timestamp.String())
	b.WriteString(w.cfg.EventsSecret)

	sum := sha256.Sum256([]byte(b.String()))
	expected := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(checksum))) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// lookupPath resolves a dotted path such as "transaction.amount_in_cents".
func lookupPath(m map[string]any, path string) string {
	var cur any = m
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = obj[part]
	}
	switch v := cur.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
