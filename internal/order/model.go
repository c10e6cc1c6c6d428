package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusNone      Status = "none"
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
	StatusRefunded  Status = "refunded"
)

// Who caused a transition, as recorded in order_logs.user_type.
const (
	ActorSystem  = "system"
	ActorUser    = "user"
	ActorAdmin   = "admin"
	ActorWebhook = "webhook"
)

type Actor struct {
	ID   string
	Type string
}

type Order struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	Status            Status          `json:"status"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	ShippingCost      decimal.Decimal `json:"shipping_cost"`
	Taxes             decimal.Decimal `json:"taxes"`
	Total             decimal.Decimal `json:"total"`
	Currency          string          `json:"currency"`
	PaymentMethod     *string         `json:"payment_method,omitempty"`
	PaymentStatus     *string         `json:"payment_status,omitempty"`
	TransactionID     *string         `json:"transaction_id,omitempty"`
	ExternalReference string          `json:"external_reference"`
	ShippingAddressID *uuid.UUID      `json:"shipping_address_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`
	CancelledAt       *time.Time      `json:"cancelled_at,omitempty"`

	Items []Item `json:"items"`
	Logs  []Log  `json:"logs,omitempty"`
}

// Item is a price snapshot taken when the order was placed.
type Item struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	VariantID   int64           `json:"variant_id"`
	ProductID   int64           `json:"product_id"`
	ColorCode   string          `json:"color_code"`
	Size        string          `json:"size"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type Log struct {
	ID             int64     `json:"id"`
	OrderID        int64     `json:"order_id"`
	PreviousStatus Status    `json:"previous_status"`
	NewStatus      Status    `json:"new_status"`
	Note           string    `json:"note"`
	UpdatedBy      string    `json:"updated_by"`
	UserType       string    `json:"user_type"`
	CreatedAt      time.Time `json:"created_at"`
}

// OutboxEvent is written in the same transaction as a transition.
type OutboxEvent struct {
	Topic   string
	Key     string
	Type    string
	Payload any
}

// Transition is one status change applied with a conditional update.
type Transition struct {
	OrderID       int64
	From          Status
	To            Status
	Note          string
	Actor         Actor
	PaymentStatus *string
	TransactionID *string
	PaymentMethod *string
	// ClearCartOf removes the order's lines from this user's cart.
	ClearCartOf *int64
	Event       *OutboxEvent
}

// PaymentInfo projects the latest provider view onto the order without
// changing its status.
type PaymentInfo struct {
	Method        *string
	Status        *string
	TransactionID *string
}
