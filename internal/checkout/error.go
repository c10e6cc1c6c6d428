package checkout

import "tienda-be/internal/apperr"

var (
	ErrEmptyCheckout   = apperr.New(apperr.InvalidInput, "nothing to check out")
	ErrOrderNotPayable = apperr.New(apperr.InvalidTransition, "order is not awaiting payment")
	ErrAmountMismatch  = apperr.WithFields(apperr.InvalidInput, "amount does not match the order total", "amount")
	ErrPaymentInFlight = apperr.New(apperr.InvalidTransition, "a payment for this order is already in progress")
)

func missingFields(fields ...string) error {
	return apperr.WithFields(apperr.InvalidInput, "missing required fields", fields...)
}
