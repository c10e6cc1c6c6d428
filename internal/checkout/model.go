package checkout

import (
	"tienda-be/internal/inventory"
	"tienda-be/internal/order"
	"tienda-be/internal/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PreferenceInput opens a hosted checkout. Items default to the user's
// cart when empty.
type PreferenceInput struct {
	Provider  string              `json:"provider,omitempty"`
	Items     []inventory.Request `json:"items"`
	AddressID *uuid.UUID          `json:"shipping_address_id,omitempty"`
	Payer     payment.Payer       `json:"payer"`
}

type PreferenceOutput struct {
	OrderID           int64            `json:"order_id"`
	ExternalReference string           `json:"external_reference"`
	Provider          payment.Provider `json:"provider"`
	PreferenceID      string           `json:"preference_id"`
	RedirectURL       string           `json:"redirect_url"`
	Subtotal          decimal.Decimal  `json:"subtotal"`
	ShippingCost      decimal.Decimal  `json:"shipping_cost"`
	Taxes             decimal.Decimal  `json:"taxes"`
	Total             decimal.Decimal  `json:"total"`
}

// CardPaymentInput charges a tokenized card for an existing pending order.
// Amount, when sent, must match the order total.
type CardPaymentInput struct {
	Provider          string           `json:"provider,omitempty"`
	Token             string           `json:"token"`
	Amount            *decimal.Decimal `json:"amount,omitempty"`
	PaymentMethodID   string           `json:"payment_method_id"`
	Installments      int              `json:"installments"`
	Payer             payment.Payer    `json:"payer"`
	ExternalReference string           `json:"external_reference"`
}

type CardPaymentOutput struct {
	Success           bool           `json:"success"`
	PaymentID         string         `json:"payment_id,omitempty"`
	Status            payment.Status `json:"status"`
	StatusDetail      string         `json:"status_detail,omitempty"`
	Message           string         `json:"message,omitempty"`
	OrderID           int64          `json:"order_id"`
	OrderStatus       order.Status   `json:"order_status"`
	ExternalReference string         `json:"external_reference"`
}

type RefundOutput struct {
	Refund      *payment.RefundResult `json:"refund"`
	Status      payment.Status        `json:"payment_status"`
	OrderID     int64                 `json:"order_id,omitempty"`
	OrderStatus order.Status          `json:"order_status,omitempty"`
}
