// Package events carries order events from the database to the broker:
// rows are written to the order_events outbox inside the business
// transaction and a relay publishes them to Kafka.
package events

import (
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TypeOrderPaid     = "OrderPaid"
	TypeOrderRefunded = "OrderRefunded"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

type Item struct {
	VariantID int64  `json:"variant_id"`
	ProductID int64  `json:"product_id"`
	ColorCode string `json:"color_code"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// OrderPaid is published once per order when its payment is confirmed.
type OrderPaid struct {
	OrderID           int64           `json:"order_id"`
	ExternalReference string          `json:"external_reference"`
	UserID            int64           `json:"user_id"`
	Provider          string          `json:"provider"`
	PaymentID         string          `json:"payment_id"`
	Total             decimal.Decimal `json:"total"`
	PaidAt            time.Time       `json:"paid_at"`
	Items             []Item          `json:"items"`
}

type OrderRefunded struct {
	OrderID           int64     `json:"order_id"`
	ExternalReference string    `json:"external_reference"`
	PaymentID         string    `json:"payment_id"`
	RefundedAt        time.Time `json:"refunded_at"`
}

const producerName = "tienda-be"

// NewEnvelope wraps payload under a fresh event id.
func NewEnvelope(eventType, correlationID string, payload any, now time.Time) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal event payload")
	}
	return &Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    now.UTC(),
		Producer:      producerName,
		CorrelationID: correlationID,
		Payload:       raw,
	}, nil
}

// Decode unmarshals the payload of an envelope.
func Decode[T any](env *Envelope) (T, error) {
	var t T
	if err := json.Unmarshal(env.Payload, &t); err != nil {
		return t, errors.Wrapf(err, "decode %s payload", env.EventType)
	}
	return t, nil
}
