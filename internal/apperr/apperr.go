// Package apperr classifies failures into the kinds the HTTP layer and the
// payment flow need to tell apart: client-correctable input, stock
// conflicts, retryable gateway trouble and terminal business rejections.
package apperr

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
)

type Kind string

const (
	InvalidInput       Kind = "invalid_input"
	StockExceeded      Kind = "stock_exceeded"
	OutOfStock         Kind = "out_of_stock"
	ProductUnavailable Kind = "product_unavailable"
	InvalidCardData    Kind = "invalid_card_data"
	GatewayUnavailable Kind = "gateway_unavailable"
	PaymentRejected    Kind = "payment_rejected"
	InvalidTransition  Kind = "invalid_transition"
	NotFound           Kind = "not_found"
	Unauthorized       Kind = "unauthorized"
	Forbidden          Kind = "forbidden"
	Internal           Kind = "internal"
)

// Error is a classified failure. Fields lists offending input fields,
// Details carries a structured payload for the client (e.g. failed lines).
type Error struct {
	Kind    Kind
	Message string
	Fields  []string
	Details any
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Fields, ", "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func WithFields(kind Kind, msg string, fields ...string) *Error {
	return &Error{Kind: kind, Message: msg, Fields: fields}
}

func WithDetails(kind Kind, msg string, details any) *Error {
	return &Error{Kind: kind, Message: msg, Details: details}
}

// KindOf returns the kind of the outermost classified error in the chain,
// or Internal when the chain carries none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a kind to its response status. PaymentRejected is a
// completed request whose body reports success=false.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidInput, InvalidCardData:
		return http.StatusBadRequest
	case StockExceeded, OutOfStock, ProductUnavailable, InvalidTransition:
		return http.StatusConflict
	case GatewayUnavailable:
		return http.StatusBadGateway
	case PaymentRejected:
		return http.StatusOK
	case NotFound:
		return http.StatusNotFound
	case Unauthorized:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may repeat the operation as is.
func Retryable(err error) bool {
	return Is(err, GatewayUnavailable)
}
