// Package shipping prices delivery for an order. The carrier integration
// itself lives downstream of the order.paid event.
package shipping

import (
	"context"
	"strings"

	"tienda-be/internal/config"

	"github.com/shopspring/decimal"
)

type Request struct {
	City        string
	Department  string
	WeightGrams int
	Subtotal    decimal.Decimal
}

// Quoter is the pluggable shipping-rate collaborator.
type Quoter interface {
	Quote(ctx context.Context, req Request) (decimal.Decimal, error)
}

// RateTable charges a flat local rate inside LocalCity, otherwise a base
// rate plus a per-started-kilogram fee. Orders at or above FreeThreshold
// ship free when the threshold is positive.
type RateTable struct {
	BaseRate      decimal.Decimal
	PerKg         decimal.Decimal
	LocalCity     string
	LocalRate     decimal.Decimal
	FreeThreshold decimal.Decimal
}

func NewRateTable(cfg *config.Config) *RateTable {
	return &RateTable{
		BaseRate:      cfg.ShippingBaseRate,
		PerKg:         cfg.ShippingPerKg,
		LocalCity:     cfg.ShippingLocalCity,
		LocalRate:     cfg.ShippingLocalRate,
		FreeThreshold: cfg.ShippingFreeThreshold,
	}
}

func (t *RateTable) Quote(_ context.Context, req Request) (decimal.Decimal, error) {
	if t.FreeThreshold.IsPositive() && req.Subtotal.GreaterThanOrEqual(t.FreeThreshold) {
		return decimal.Zero, nil
	}

	if t.LocalCity != "" && strings.EqualFold(strings.TrimSpace(req.City), t.LocalCity) {
		return t.LocalRate, nil
	}

	kg := (req.WeightGrams + 999) / 1000
	return t.BaseRate.Add(t.PerKg.Mul(decimal.NewFromInt(int64(kg)))), nil
}
