package product

import "tienda-be/internal/apperr"

var (
	ErrVariantNotFound   = apperr.New(apperr.NotFound, "product variant not found")
	ErrFailedGetVariants = apperr.New(apperr.Internal, "failed to get product variants")
)
