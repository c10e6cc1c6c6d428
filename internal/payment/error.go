package payment

import (
	"tienda-be/internal/apperr"
)

var (
	ErrUnknownProvider   = apperr.New(apperr.InvalidInput, "unknown payment provider")
	ErrPaymentNotFound   = apperr.New(apperr.NotFound, "payment not found")
	ErrInvalidSignature  = apperr.New(apperr.Unauthorized, "invalid webhook signature")
	ErrUnrecognized      = apperr.New(apperr.InvalidInput, "unrecognized notification")
	ErrPartialRefund     = apperr.New(apperr.InvalidInput, "partial refunds are not supported by this provider")
	ErrInvalidAmount     = apperr.New(apperr.InvalidInput, "amount must be greater than zero")
	ErrMissingToken      = apperr.New(apperr.InvalidInput, "card token is required")
	ErrGatewayBadRequest = apperr.New(apperr.InvalidInput, "payment provider refused the request")
)

// Rejection is the client-facing detail of a PaymentRejected error.
type Rejection struct {
	PaymentID    string `json:"payment_id,omitempty"`
	Status       string `json:"status"`
	StatusDetail string `json:"status_detail"`
	Message      string `json:"message"`
}

func rejected(res *Result) error {
	return &apperr.Error{
		Kind:    apperr.PaymentRejected,
		Message: res.Message,
		Details: Rejection{
			PaymentID:    res.PaymentID,
			Status:       res.RawStatus,
			StatusDetail: res.StatusDetail,
			Message:      res.Message,
		},
	}
}

func unavailable(provider Provider, err error) error {
	return apperr.Wrap(apperr.GatewayUnavailable, err, string(provider)+" is unavailable, try again")
}
