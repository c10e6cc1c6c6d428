package cart

import (
	"time"

	"tienda-be/internal/product"

	"github.com/shopspring/decimal"
)

// Owner is either an authenticated user or an anonymous session, never both.
type Owner struct {
	UserID    int64
	SessionID string
}

func UserOwner(userID int64) Owner      { return Owner{UserID: userID} }
func GuestOwner(sessionID string) Owner { return Owner{SessionID: sessionID} }

func (o Owner) IsGuest() bool { return o.UserID == 0 && o.SessionID != "" }
func (o Owner) Valid() bool   { return (o.UserID > 0) != (o.SessionID != "") }

// Line is one (product, color, size) entry. UnitPrice and StockSnapshot are
// filled from the live catalog on read and are advisory only.
type Line struct {
	Key           product.VariantKey `json:"key"`
	Quantity      int                `json:"quantity"`
	ProductName   string             `json:"product_name,omitempty"`
	UnitPrice     decimal.Decimal    `json:"unit_price"`
	StockSnapshot int                `json:"stock_snapshot"`
	Available     bool               `json:"available"`
	UpdatedAt     *time.Time         `json:"updated_at,omitempty"`
}

// Cart is a derived view; totals are computed from Lines on every read.
type Cart struct {
	Lines     []Line          `json:"lines"`
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

func newCart(lines []Line) *Cart {
	c := &Cart{Lines: lines, Subtotal: decimal.Zero}
	if c.Lines == nil {
		c.Lines = []Line{}
	}
	for _, l := range lines {
		c.ItemCount += l.Quantity
		if l.Available {
			c.Subtotal = c.Subtotal.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
	}
	return c
}

// LineInput is what a client submits. Any price it carries is ignored.
type LineInput struct {
	ProductID int64  `json:"product_id"`
	ColorCode string `json:"color_code"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

func (in LineInput) Key() product.VariantKey {
	return product.VariantKey{ProductID: in.ProductID, ColorCode: in.ColorCode, Size: in.Size}
}
