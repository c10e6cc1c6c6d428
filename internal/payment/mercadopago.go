package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tienda-be/internal/apperr"
	"tienda-be/internal/logger"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const mercadoPagoBaseURL = "https://api.mercadopago.com"

type MercadoPagoConfig struct {
	AccessToken     string
	PublicKey       string
	WebhookSecret   string
	NotificationURL string
	SuccessURL      string
	FailureURL      string
	PendingURL      string
	Timeout         time.Duration
}

type mercadoPagoGateway struct {
	cfg     MercadoPagoConfig
	api     *apiClient
	baseURL string
}

// ----------------- Constructor -----------------

func NewMercadoPagoGateway(cfg MercadoPagoConfig) Gateway {
	if cfg.AccessToken == "" {
		logger.L().Warn("MercadoPago access token is empty")
	}
	return &mercadoPagoGateway{
		cfg:     cfg,
		api:     newAPIClient(ProviderMercadoPago, cfg.Timeout),
		baseURL: mercadoPagoBaseURL,
	}
}

func (m *mercadoPagoGateway) Provider() Provider { return ProviderMercadoPago }

func (m *mercadoPagoGateway) auth() map[string]string {
	return map[string]string{"Authorization": "Bearer " + m.cfg.AccessToken}
}

// mpPayment is the subset of /v1/payments the system relies on.
type mpPayment struct {
	ID                int64           `json:"id"`
	Status            string          `json:"status"`
	StatusDetail      string          `json:"status_detail"`
	TransactionAmount decimal.Decimal `json:"transaction_amount"`
	AmountRefunded    decimal.Decimal `json:"transaction_amount_refunded"`
	AuthorizationCode *string         `json:"authorization_code"`
	ExternalReference string          `json:"external_reference"`
	PaymentMethodID   string          `json:"payment_method_id"`
}

func mercadoPagoStatus(status string, amount, refunded decimal.Decimal) Status {
	switch status {
	case "approved":
		if refunded.IsPositive() && refunded.LessThan(amount) {
			return StatusPartiallyRefunded
		}
		return StatusApproved
	case "pending", "in_process", "authorized", "in_mediation":
		return StatusPending
	case "rejected":
		return StatusRejected
	case "cancelled", "expired":
		return StatusCancelled
	case "refunded", "charged_back":
		return StatusRefunded
	default:
		return StatusUnknown
	}
}

func (p *mpPayment) result() *Result {
	res := &Result{
		Provider:          ProviderMercadoPago,
		PaymentID:         strconv.FormatInt(p.ID, 10),
		Status:            mercadoPagoStatus(p.Status, p.TransactionAmount, p.AmountRefunded),
		RawStatus:         p.Status,
		StatusDetail:      p.StatusDetail,
		Amount:            p.TransactionAmount,
		AmountRefunded:    p.AmountRefunded,
		ExternalReference: p.ExternalReference,
		PaymentMethod:     p.PaymentMethodID,
	}
	if p.AuthorizationCode != nil {
		res.AuthorizationCode = *p.AuthorizationCode
	}
	if res.Status == StatusRejected || res.Status == StatusPending {
		res.Message = RejectionMessage(p.StatusDetail, "")
	}
	return res
}

// ----------------- CreatePreference -----------------

func (m *mercadoPagoGateway) CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error) {
	items := make([]map[string]any, 0, len(req.Items)+2)
	for _, it := range req.Items {
		items = append(items, map[string]any{
			"id":          it.ID,
			"title":       it.Title,
			"quantity":    it.Quantity,
			"unit_price":  jsonAmount(it.UnitPrice, 2),
			"currency_id": req.Currency,
		})
	}
	for _, extra := range []struct {
		id, title string
		amount    decimal.Decimal
	}{
		{"shipping", "Envío", req.Shipping},
		{"taxes", "Impuestos", req.Taxes},
	} {
		if extra.amount.IsPositive() {
			items = append(items, map[string]any{
				"id":          extra.id,
				"title":       extra.title,
				"quantity":    1,
				"unit_price":  jsonAmount(extra.amount, 2),
				"currency_id": req.Currency,
			})
		}
	}

	body := map[string]any{
		"items":              items,
		"external_reference": req.ExternalReference,
		"payer": map[string]any{
			"email": req.Payer.Email,
			"name":  req.Payer.Name,
		},
		"back_urls": map[string]string{
			"success": m.cfg.SuccessURL,
			"failure": m.cfg.FailureURL,
			"pending": m.cfg.PendingURL,
		},
	}
	if m.cfg.SuccessURL != "" {
		body["auto_return"] = "approved"
	}
	if m.cfg.NotificationURL != "" {
		body["notification_url"] = m.cfg.NotificationURL
	}

	var res struct {
		ID               string `json:"id"`
		InitPoint        string `json:"init_point"`
		SandboxInitPoint string `json:"sandbox_init_point"`
	}
	headers := m.auth()
	headers["X-Idempotency-Key"] = "pref-" + req.ExternalReference
	if err := m.api.do(ctx, call{
		op: "create_preference", method: http.MethodPost,
		url: m.baseURL + "/checkout/preferences", headers: headers,
		in: body, out: &res,
	}); err != nil {
		return nil, err
	}

	redirect := res.InitPoint
	if redirect == "" {
		redirect = res.SandboxInitPoint
	}
	return &Preference{Provider: ProviderMercadoPago, PreferenceID: res.ID, RedirectURL: redirect}, nil
}

// ----------------- TokenizeCard -----------------

func (m *mercadoPagoGateway) TokenizeCard(ctx context.Context, card CardData) (string, error) {
	if err := ValidateCard(card, time.Now()); err != nil {
		return "", err
	}

	year := card.ExpYear
	if year < 100 {
		year += 2000
	}
	body := map[string]any{
		"card_number":      NormalizeCardNumber(card.Number),
		"security_code":    card.CVV,
		"expiration_month": card.ExpMonth,
		"expiration_year":  year,
		"cardholder": map[string]any{
			"name": card.HolderName,
			"identification": map[string]string{
				"type":   card.HolderIDType,
				"number": card.HolderIDNumber,
			},
		},
	}

	u := m.baseURL + "/v1/card_tokens"
	headers := map[string]string{}
	if m.cfg.PublicKey != "" {
		u += "?public_key=" + url.QueryEscape(m.cfg.PublicKey)
	} else {
		headers = m.auth()
	}

	var res struct {
		ID string `json:"id"`
	}
	err := m.api.do(ctx, call{op: "tokenize_card", method: http.MethodPost, url: u, headers: headers, in: body, out: &res})
	if apperr.Is(err, apperr.InvalidInput) {
		return "", apperr.Wrap(apperr.InvalidCardData, err, "card was refused by the payment provider")
	}
	if err != nil {
		return "", err
	}
	if res.ID == "" {
		return "", unavailable(ProviderMercadoPago, errors.New("empty card token"))
	}
	return res.ID, nil
}

// ----------------- Charge -----------------

func (m *mercadoPagoGateway) Charge(ctx context.Context, req ChargeRequest) (*Result, error) {
	if req.Token == "" {
		return nil, ErrMissingToken
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	installments := req.Installments
	if installments <= 0 {
		installments = 1
	}

	payer := map[string]any{"email": req.Payer.Email}
	if req.Payer.IDNumber != "" {
		payer["identification"] = map[string]string{"type": req.Payer.IDType, "number": req.Payer.IDNumber}
	}
	body := map[string]any{
		"transaction_amount": jsonAmount(req.Amount, 2),
		"token":              req.Token,
		"description":        req.Description,
		"installments":       installments,
		"payment_method_id":  req.PaymentMethodID,
		"external_reference": req.ExternalReference,
		"payer":              payer,
	}
	if m.cfg.NotificationURL != "" {
		body["notification_url"] = m.cfg.NotificationURL
	}

	headers := m.auth()
	// A repeated charge for the same order replays the first answer.
	headers["X-Idempotency-Key"] = req.ExternalReference

	var p mpPayment
	if err := m.api.do(ctx, call{
		op: "charge", method: http.MethodPost, url: m.baseURL + "/v1/payments",
		headers: headers, in: body, out: &p,
	}); err != nil {
		return nil, err
	}

	res := p.result()
	logger.FromCtx(ctx).Info("MercadoPago payment created",
		zap.String("payment_id", res.PaymentID),
		zap.String("external_reference", res.ExternalReference),
		zap.String("status", res.RawStatus),
		zap.String("status_detail", res.StatusDetail),
	)

	if res.Status == StatusRejected || res.Status == StatusCancelled {
		return res, rejected(res)
	}
	return res, nil
}

// ----------------- Refund -----------------

func (m *mercadoPagoGateway) Refund(ctx context.Context, paymentID string, amount *decimal.Decimal) (*RefundResult, error) {
	body := map[string]any{}
	key := "refund-" + paymentID + "-full"
	if amount != nil {
		if !amount.IsPositive() {
			return nil, ErrInvalidAmount
		}
		body["amount"] = jsonAmount(*amount, 2)
		key = "refund-" + paymentID + "-" + amount.StringFixed(2)
	}

	headers := m.auth()
	headers["X-Idempotency-Key"] = key

	var res struct {
		ID        int64           `json:"id"`
		PaymentID int64           `json:"payment_id"`
		Amount    decimal.Decimal `json:"amount"`
		Status    string          `json:"status"`
	}
	if err := m.api.do(ctx, call{
		op: "refund", method: http.MethodPost,
		url:     fmt.Sprintf("%s/v1/payments/%s/refunds", m.baseURL, url.PathEscape(paymentID)),
		headers: headers, in: body, out: &res,
	}); err != nil {
		return nil, err
	}

	return &RefundResult{
		RefundID:  strconv.FormatInt(res.ID, 10),
		PaymentID: strconv.FormatInt(res.PaymentID, 10),
		Amount:    res.Amount,
		Status:    res.Status,
	}, nil
}

// ----------------- GetStatus -----------------

func (m *mercadoPagoGateway) GetStatus(ctx context.Context, paymentID string) (*Result, error) {
	var p mpPayment
	if err := m.api.do(ctx, call{
		op: "get_status", method: http.MethodGet,
		url:     m.baseURL + "/v1/payments/" + url.PathEscape(paymentID),
		headers: m.auth(), out: &p,
	}); err != nil {
		return nil, err
	}
	return p.result(), nil
}

func (m *mercadoPagoGateway) SearchByReference(ctx context.Context, externalReference string) (*Result, error) {
	q := url.Values{}
	q.Set("external_reference", externalReference)
	q.Set("sort", "date_created")
	q.Set("criteria", "desc")
	q.Set("limit", "1")

	var res struct {
		Results []mpPayment `json:"results"`
	}
	if err := m.api.do(ctx, call{
		op: "search", method: http.MethodGet,
		url:     m.baseURL + "/v1/payments/search?" + q.Encode(),
		headers: m.auth(), out: &res,
	}); err != nil {
		return nil, err
	}
	if len(res.Results) == 0 {
		return nil, ErrPaymentNotFound
	}
	return res.Results[0].result(), nil
}

func (m *mercadoPagoGateway) PaymentMethods(ctx context.Context) ([]Method, error) {
	var res []struct {
		ID              string `json:"id"`
		Name            string `json:"name"`
		PaymentTypeID   string `json:"payment_type_id"`
		Status          string `json:"status"`
		SecureThumbnail string `json:"secure_thumbnail"`
	}
	if err := m.api.do(ctx, call{
		op: "payment_methods", method: http.MethodGet,
		url: m.baseURL + "/v1/payment_methods", headers: m.auth(), out: &res,
	}); err != nil {
		return nil, err
	}

	methods := make([]Method, 0, len(res))
	for _, r := range res {
		methods = append(methods, Method{
			ID: r.ID, Name: r.Name, Type: r.PaymentTypeID,
			Status: r.Status, Thumbnail: r.SecureThumbnail,
		})
	}
	return methods, nil
}

// ----------------- Notifications -----------------

// flexID accepts an id sent either as a JSON string or number.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type mpNotification struct {
	ID     flexID `json:"id"`
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID flexID `json:"id"`
	} `json:"data"`
	Resource string `json:"resource"`
}

// ParseNotification accepts the JSON webhook body as well as the legacy
// IPN query form (?topic=payment&id=123 or ?type=payment&data.id=123).
func (m *mercadoPagoGateway) ParseNotification(r *http.Request, body []byte) (*Notification, error) {
	var n mpNotification
	if len(body) > 0 {
		if err := json.Unmarshal(body, &n); err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, err, ErrUnrecognized.Message)
		}
	}

	q := r.URL.Query()
	topic := firstNonEmpty(n.Type, n.Topic, q.Get("type"), q.Get("topic"))
	resource := firstNonEmpty(string(n.Data.ID), q.Get("data.id"))
	if resource == "" && (n.Topic == "payment" || q.Get("topic") == "payment") {
		// IPN puts the payment id in "id" or in the resource URL.
		resource = firstNonEmpty(q.Get("id"), lastPathSegment(n.Resource), string(n.ID))
	}

	if topic == "" || resource == "" {
		return nil, ErrUnrecognized
	}

	return &Notification{
		Provider:   ProviderMercadoPago,
		EventID:    firstNonEmpty(string(n.ID), topic+":"+resource),
		Topic:      topic,
		ResourceID: resource,
	}, nil
}

// VerifySignature checks the x-signature header: HMAC-SHA256 over
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;".
func (m *mercadoPagoGateway) VerifySignature(r *http.Request, body []byte) error {
	if m.cfg.WebhookSecret == "" {
		return nil
	}

	var ts, v1 string
	for _, part := range strings.Split(r.Header.Get("x-signature"), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "ts":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return ErrInvalidSignature
	}

	dataID := r.URL.Query().Get("data.id")
	if dataID == "" {
		var n mpNotification
		_ = json.Unmarshal(body, &n)
		dataID = string(n.Data.ID)
	}

	var manifest strings.Builder
	if dataID != "" {
		manifest.WriteString("id:" + strings.ToLower(dataID) + ";")
	}
	if rid := r.Header.Get("x-request-id"); rid != "" {
		manifest.WriteString("request-id:" + rid + ";")
	}
	manifest.WriteString("ts:" + ts + ";")

	mac := hmac.New(sha256.New, []byte(m.cfg.WebhookSecret))
	mac.Write([]byte(manifest.String()))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(v1))) {
		return ErrInvalidSignature
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func lastPathSegment(u string) string {
	if u == "" {
		return ""
	}
	u = strings.TrimRight(u, "/")
	if i := strings.LastIndex(u, "/"); i >= 0 {
		return u[i+1:]
	}
	return u
}
