package payment

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Gateway is one payment provider. Every call is bounded by the adapter's
// timeout; network failures and timeouts surface as GatewayUnavailable and
// provider rejections as PaymentRejected.
type Gateway interface {
	Provider() Provider

	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)
	TokenizeCard(ctx context.Context, card CardData) (string, error)
	// Charge returns the result together with a PaymentRejected error when
	// the provider declines, so callers can still record the attempt.
	Charge(ctx context.Context, req ChargeRequest) (*Result, error)
	// Refund returns the full amount when amount is nil.
	Refund(ctx context.Context, paymentID string, amount *decimal.Decimal) (*RefundResult, error)
	GetStatus(ctx context.Context, paymentID string) (*Result, error)
	// SearchByReference returns the most recent payment for an order, or
	// ErrPaymentNotFound.
	SearchByReference(ctx context.Context, externalReference string) (*Result, error)
	PaymentMethods(ctx context.Context) ([]Method, error)

	// ParseNotification extracts the payment a callback refers to.
	ParseNotification(r *http.Request, body []byte) (*Notification, error)
	// VerifySignature checks the callback signature. It passes when no
	// secret is configured.
	VerifySignature(r *http.Request, body []byte) error
}

// Registry picks a gateway by provider name.
type Registry struct {
	gateways map[Provider]Gateway
	def      Provider
}

func NewRegistry(def Provider, gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[Provider]Gateway, len(gateways)), def: def}
	for _, g := range gateways {
		r.gateways[g.Provider()] = g
	}
	return r
}

// Get returns the named gateway, or the default for an empty name.
func (r *Registry) Get(name string) (Gateway, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	if p == "" {
		p = r.def
	}
	g, ok := r.gateways[p]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return g, nil
}

func (r *Registry) Default() Provider { return r.def }

func (r *Registry) Providers() []Provider {
	out := make([]Provider, 0, len(r.gateways))
	for p := range r.gateways {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
