package address

import (
	"github.com/google/uuid"
)

// Address is a user's shipping destination. Orders keep its id only.
type Address struct {
	ID     uuid.UUID `json:"id"`
	UserID int64     `json:"user_id"`

	ReceiverName string `json:"receiver_name"`
	Phone        string `json:"phone"`

	Address1 string  `json:"address_line1"`
	Address2 *string `json:"address_line2,omitempty"`

	City       string `json:"city"`
	Department string `json:"department"`
	Postal     string `json:"postal_code"`
	Country    string `json:"country"`

	IsDefault bool `json:"is_default"`
	IsActive  bool `json:"is_active"`
}
