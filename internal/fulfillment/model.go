package fulfillment

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCancelled Status = "cancelled"
)

// Fulfillment is the warehouse side of a paid order. Short is set when
// stock ran out between checkout and payment.
type Fulfillment struct {
	ID                int64
	OrderID           int64
	ExternalReference string
	Status            Status
	Short             bool
	ShortItems        []ShortItem
	CreatedAt         time.Time
}

type ShortItem struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity"`
}
