package product

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// VariantKey identifies a sellable variant: one product in one color and size.
type VariantKey struct {
	ProductID int64  `json:"product_id"`
	ColorCode string `json:"color_code"`
	Size      string `json:"size"`
}

func (k VariantKey) String() string {
	return fmt.Sprintf("%d/%s/%s", k.ProductID, k.ColorCode, k.Size)
}

// Variant is the live catalog view used for pricing and stock decisions.
type Variant struct {
	ID            int64           `json:"id"`
	Key           VariantKey      `json:"key"`
	ProductName   string          `json:"product_name"`
	Price         decimal.Decimal `json:"price"`
	Stock         int             `json:"stock"`
	WeightGrams   int             `json:"weight_grams"`
	ProductActive bool            `json:"product_active"`
	VariantActive bool            `json:"variant_active"`
}

// Available reports whether the variant can still be sold.
func (v *Variant) Available() bool {
	return v != nil && v.ProductActive && v.VariantActive
}
