// Package inventory re-reads live stock and price for a set of requested
// lines. Client-submitted prices never reach this package.
package inventory

import (
	"context"
	"fmt"
	"sort"

	"tienda-be/internal/apperr"
	"tienda-be/internal/logger"
	"tienda-be/internal/product"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrNoLines         = apperr.New(apperr.InvalidInput, "no lines to verify")
	ErrInvalidLine     = apperr.New(apperr.InvalidInput, "every line needs a product, color, size and positive quantity")
	ErrOutOfStock      = apperr.New(apperr.OutOfStock, "some items are out of stock")
	ErrUnavailable     = apperr.New(apperr.ProductUnavailable, "some items are no longer available")
	ErrFailedReadStock = apperr.New(apperr.Internal, "failed to read stock")
)

// Request is one line to verify.
type Request struct {
	Key      product.VariantKey `json:"key"`
	Quantity int                `json:"quantity"`
}

// VerifiedLine carries the live price and stock read at verification time.
type VerifiedLine struct {
	VariantID   int64              `json:"variant_id"`
	Key         product.VariantKey `json:"key"`
	ProductName string             `json:"product_name"`
	Quantity    int                `json:"quantity"`
	UnitPrice   decimal.Decimal    `json:"unit_price"`
	Stock       int                `json:"stock"`
	WeightGrams int                `json:"weight_grams"`
}

// LineProblem names one failing line.
type LineProblem struct {
	Key         product.VariantKey `json:"key"`
	ProductName string             `json:"product_name,omitempty"`
	Requested   int                `json:"requested"`
	Available   int                `json:"available"`
}

// Report lists every failing line, not just the first one.
type Report struct {
	Unavailable []LineProblem `json:"unavailable,omitempty"`
	OutOfStock  []LineProblem `json:"out_of_stock,omitempty"`
}

type Verifier struct {
	products product.Repository
}

func NewVerifier(products product.Repository) *Verifier {
	return &Verifier{products: products}
}

// Verify reads the live catalog for reqs and checks them.
func (v *Verifier) Verify(ctx context.Context, reqs []Request) ([]VerifiedLine, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "inventory"),
		zap.String("method", "Verify"),
	)

	merged, err := Normalize(reqs)
	if err != nil {
		return nil, err
	}

	keys := make([]product.VariantKey, len(merged))
	for i, r := range merged {
		keys[i] = r.Key
	}

	variants, err := v.products.GetVariants(ctx, keys)
	if err != nil {
		log.Error("failed to load variants", zap.Error(err))
		return nil, apperr.Wrap(apperr.Internal, err, ErrFailedReadStock.Message)
	}

	lines, err := Check(merged, variants)
	if err != nil {
		log.Info("verification failed", zap.Error(err))
		return nil, err
	}
	return lines, nil
}

// Normalize validates reqs and sums quantities of repeated keys, so a
// variant is checked once against its stock.
func Normalize(reqs []Request) ([]Request, error) {
	if len(reqs) == 0 {
		return nil, ErrNoLines
	}

	idx := make(map[product.VariantKey]int, len(reqs))
	out := make([]Request, 0, len(reqs))
	for _, r := range reqs {
		if r.Key.ProductID <= 0 || r.Key.ColorCode == "" || r.Key.Size == "" || r.Quantity <= 0 {
			return nil, ErrInvalidLine
		}
		if i, ok := idx[r.Key]; ok {
			out[i].Quantity += r.Quantity
			continue
		}
		idx[r.Key] = len(out)
		out = append(out, r)
	}
	return out, nil
}

// Check compares normalized requests with live variants. Unavailable lines
// win over stock shortages; both lists are reported in full.
func Check(reqs []Request, variants map[product.VariantKey]*product.Variant) ([]VerifiedLine, error) {
	var report Report
	lines := make([]VerifiedLine, 0, len(reqs))

	for _, r := range reqs {
		v, ok := variants[r.Key]
		if !ok || !v.Available() {
			p := LineProblem{Key: r.Key, Requested: r.Quantity}
			if ok {
				p.ProductName = v.ProductName
			}
			report.Unavailable = append(report.Unavailable, p)
			continue
		}
		if r.Quantity > v.Stock {
			report.OutOfStock = append(report.OutOfStock, LineProblem{
				Key:         r.Key,
				ProductName: v.ProductName,
				Requested:   r.Quantity,
				Available:   v.Stock,
			})
			continue
		}
		lines = append(lines, VerifiedLine{
			VariantID:   v.ID,
			Key:         r.Key,
			ProductName: v.ProductName,
			Quantity:    r.Quantity,
			UnitPrice:   v.Price,
			Stock:       v.Stock,
			WeightGrams: v.WeightGrams,
		})
	}

	switch {
	case len(report.Unavailable) > 0:
		return nil, &apperr.Error{
			Kind:    apperr.ProductUnavailable,
			Message: describe(ErrUnavailable.Message, report.Unavailable),
			Details: report,
			Err:     ErrUnavailable,
		}
	case len(report.OutOfStock) > 0:
		return nil, &apperr.Error{
			Kind:    apperr.OutOfStock,
			Message: describe(ErrOutOfStock.Message, report.OutOfStock),
			Details: report,
			Err:     ErrOutOfStock,
		}
	}

	sort.Slice(lines, func(i, j int) bool { return lines[i].VariantID < lines[j].VariantID })
	return lines, nil
}

func describe(prefix string, problems []LineProblem) string {
	msg := prefix + ":"
	for i, p := range problems {
		if i > 0 {
			msg += ","
		}
		name := p.ProductName
		if name == "" {
			name = fmt.Sprintf("product %d", p.Key.ProductID)
		}
		msg += fmt.Sprintf(" %s (%s, %s)", name, p.Key.ColorCode, p.Key.Size)
	}
	return msg
}
