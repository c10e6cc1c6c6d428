package order

import "tienda-be/internal/apperr"

var (
	ErrOrderNotFound       = apperr.New(apperr.NotFound, "order not found")
	ErrForbidden           = apperr.New(apperr.Forbidden, "order belongs to another user")
	ErrInvalidTransition   = apperr.New(apperr.InvalidTransition, "invalid order status transition")
	ErrDuplicateReference  = apperr.New(apperr.Internal, "external reference already used")
	ErrNoItems             = apperr.New(apperr.InvalidInput, "order has no items")
	ErrFailedCreateOrder   = apperr.New(apperr.Internal, "failed to create order")
	ErrFailedGetOrder      = apperr.New(apperr.Internal, "failed to load order")
	ErrFailedUpdateOrder   = apperr.New(apperr.Internal, "failed to update order")
	ErrReferenceExhausted  = apperr.New(apperr.Internal, "could not allocate an external reference")
	ErrMissingShippingInfo = apperr.New(apperr.InvalidInput, "shipping address is required")
	ErrTransitionInFlight  = apperr.New(apperr.Internal, "order transition in progress, retry later")
)

// TransitionDetail is the client payload of an InvalidTransition error.
type TransitionDetail struct {
	OrderID int64  `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
}

func invalidTransition(orderID int64, from, to Status) error {
	return &apperr.Error{
		Kind:    apperr.InvalidTransition,
		Message: "cannot move order from " + string(from) + " to " + string(to),
		Details: TransitionDetail{OrderID: orderID, From: from, To: to},
		Err:     ErrInvalidTransition,
	}
}
