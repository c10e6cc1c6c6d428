package order

import (
	"context"
	"time"

	"tienda-be/internal/address"
	"tienda-be/internal/apperr"
	"tienda-be/internal/config"
	"tienda-be/internal/inventory"
	"tienda-be/internal/shipping"
	"tienda-be/internal/utils"

	"github.com/shopspring/decimal"
)

// Builder turns verified lines into an unsaved order. Money is rounded
// half-up to the currency precision per component, and the total is the
// exact sum of the rounded components.
type Builder struct {
	quoter   shipping.Quoter
	taxRate  decimal.Decimal
	places   int32
	currency string
	prefix   string
	now      func() time.Time
}

func NewBuilder(cfg *config.Config, quoter shipping.Quoter) *Builder {
	return &Builder{
		quoter:   quoter,
		taxRate:  cfg.TaxRate,
		places:   cfg.CurrencyDecimals,
		currency: cfg.Currency,
		prefix:   cfg.ReferencePrefix,
		now:      time.Now,
	}
}

// NewReference returns a fresh external reference.
func (b *Builder) NewReference() string {
	return utils.GenerateExternalReference(b.prefix, b.now())
}

func (b *Builder) Build(ctx context.Context, lines []inventory.VerifiedLine, addr *address.Address, userID int64) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrNoItems
	}
	if addr == nil {
		return nil, ErrMissingShippingInfo
	}

	o := &Order{
		UserID:            userID,
		Status:            StatusPending,
		Currency:          b.currency,
		ExternalReference: b.NewReference(),
		ShippingAddressID: &addr.ID,
		Items:             make([]Item, 0, len(lines)),
	}

	subtotal := decimal.Zero
	weight := 0
	for _, l := range lines {
		price := l.UnitPrice.Round(b.places)
		lineTotal := price.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(b.places)
		o.Items = append(o.Items, Item{
			VariantID:   l.VariantID,
			ProductID:   l.Key.ProductID,
			ColorCode:   l.Key.ColorCode,
			Size:        l.Key.Size,
			ProductName: l.ProductName,
			Quantity:    l.Quantity,
			Price:       price,
			Subtotal:    lineTotal,
		})
		subtotal = subtotal.Add(lineTotal)
		weight += l.WeightGrams * l.Quantity
	}

	shippingCost, err := b.quoter.Quote(ctx, shipping.Request{
		City:        addr.City,
		Department:  addr.Department,
		WeightGrams: weight,
		Subtotal:    subtotal,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to quote shipping")
	}

	o.Subtotal = subtotal
	o.ShippingCost = shippingCost.Round(b.places)
	o.Taxes = subtotal.Mul(b.taxRate).Round(b.places)
	o.Total = o.Subtotal.Add(o.ShippingCost).Add(o.Taxes)
	return o, nil
}
