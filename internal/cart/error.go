package cart

import (
	"fmt"

	"tienda-be/internal/apperr"
	"tienda-be/internal/product"
)

var (
	// -- Authentication/Authorization --
	ErrMissingOwner = apperr.New(apperr.Unauthorized, "cart owner is required")

	// -- Validation & Input --
	ErrInvalidQuantity = apperr.New(apperr.InvalidInput, "quantity must be greater than zero")
	ErrInvalidVariant  = apperr.New(apperr.InvalidInput, "product variant could not be resolved")
	ErrInvalidKey      = apperr.New(apperr.InvalidInput, "product_id, color_code and size are required")

	// -- Resource State --
	ErrLineNotFound  = apperr.New(apperr.NotFound, "cart line not found")
	ErrStockExceeded = apperr.New(apperr.StockExceeded, "quantity exceeds available stock")

	// -- Store Failures --
	ErrFailedGetCart    = apperr.New(apperr.Internal, "failed to get cart")
	ErrFailedUpdateCart = apperr.New(apperr.Internal, "failed to update cart")
	ErrFailedMergeCart  = apperr.New(apperr.Internal, "failed to merge cart")
)

// StockDetail is returned to the client with StockExceeded.
type StockDetail struct {
	Key       product.VariantKey `json:"key"`
	Requested int                `json:"requested"`
	Available int                `json:"available"`
}

func stockExceeded(key product.VariantKey, requested, available int) error {
	return &apperr.Error{
		Kind:    apperr.StockExceeded,
		Message: fmt.Sprintf("only %d units of %s are available", available, key),
		Details: StockDetail{Key: key, Requested: requested, Available: available},
		Err:     ErrStockExceeded,
	}
}
