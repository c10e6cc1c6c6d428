package payment

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Provider string

const (
	ProviderMercadoPago Provider = "mercadopago"
	ProviderWompi       Provider = "wompi"
)

// Status is the provider status normalized for order reconciliation.
type Status string

const (
	StatusApproved          Status = "approved"
	StatusPending           Status = "pending"
	StatusRejected          Status = "rejected"
	StatusCancelled         Status = "cancelled"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
	StatusUnknown           Status = "unknown"
)

// Result is a payment as the provider reports it. It is a read-through view;
// the provider stays the source of truth.
type Result struct {
	Provider          Provider        `json:"provider"`
	PaymentID         string          `json:"payment_id"`
	Status            Status          `json:"status"`
	RawStatus         string          `json:"raw_status"`
	StatusDetail      string          `json:"status_detail,omitempty"`
	Amount            decimal.Decimal `json:"transaction_amount"`
	AmountRefunded    decimal.Decimal `json:"amount_refunded"`
	AuthorizationCode string          `json:"authorization_code,omitempty"`
	ExternalReference string          `json:"external_reference"`
	PaymentMethod     string          `json:"payment_method,omitempty"`
	Message           string          `json:"message,omitempty"`
}

type LineItem struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type Payer struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	IDType   string `json:"identification_type,omitempty"`
	IDNumber string `json:"identification_number,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// PreferenceRequest opens a hosted checkout for an order.
type PreferenceRequest struct {
	ExternalReference string
	Items             []LineItem
	Shipping          decimal.Decimal
	Taxes             decimal.Decimal
	Total             decimal.Decimal
	Currency          string
	Payer             Payer
}

type Preference struct {
	Provider     Provider `json:"provider"`
	PreferenceID string   `json:"preference_id"`
	RedirectURL  string   `json:"redirect_url"`
}

type CardData struct {
	Number         string `json:"card_number"`
	CVV            string `json:"security_code"`
	ExpMonth       int    `json:"expiration_month"`
	ExpYear        int    `json:"expiration_year"`
	HolderName     string `json:"cardholder_name"`
	HolderIDType   string `json:"identification_type,omitempty"`
	HolderIDNumber string `json:"identification_number,omitempty"`
}

type ChargeRequest struct {
	Token             string
	Amount            decimal.Decimal
	Currency          string
	PaymentMethodID   string
	Installments      int
	Description       string
	ExternalReference string
	Payer             Payer
}

type RefundResult struct {
	RefundID  string          `json:"refund_id"`
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
}

type Method struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"payment_type_id"`
	Status    string `json:"status,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// Notification is the part of a provider callback that is trusted: which
// payment it is about. Any embedded status is ignored.
type Notification struct {
	Provider   Provider
	EventID    string
	Topic      string
	ResourceID string
}

// Record is one payment attempt stored locally.
type Record struct {
	ID                int64
	OrderID           int64
	Provider          Provider
	ExternalReference string
	PreferenceID      *string
	RedirectURL       *string
	ProviderPaymentID *string
	Amount            decimal.Decimal
	Status            string
	StatusDetail      *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// WebhookDelivery is one stored notification.
type WebhookDelivery struct {
	Provider       Provider
	EventID        string
	Topic          string
	ResourceID     string
	SignatureValid bool
	Payload        json.RawMessage
}
