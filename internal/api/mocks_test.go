package api

import (
	"context"
	"time"

	"tienda-be/internal/address"
	"tienda-be/internal/cart"
	"tienda-be/internal/checkout"
	"tienda-be/internal/inventory"
	"tienda-be/internal/order"
	"tienda-be/internal/payment"
	"tienda-be/internal/product"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

type MockCheckout struct {
	mock.Mock
}

func (m *MockCheckout) CreatePreference(ctx context.Context, userID int64, in checkout.PreferenceInput) (*checkout.PreferenceOutput, error) {
	args := m.Called(ctx, userID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.PreferenceOutput), args.Error(1)
}

func (m *MockCheckout) TokenizeCard(ctx context.Context, provider string, card payment.CardData) (string, error) {
	args := m.Called(ctx, provider, card)
	return args.String(0), args.Error(1)
}

func (m *MockCheckout) ProcessCard(ctx context.Context, userID int64, in checkout.CardPaymentInput) (*checkout.CardPaymentOutput, error) {
	args := m.Called(ctx, userID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.CardPaymentOutput), args.Error(1)
}

func (m *MockCheckout) GetPayment(ctx context.Context, userID int64, isAdmin bool, provider, paymentID string) (*payment.Result, error) {
	args := m.Called(ctx, userID, isAdmin, provider, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Result), args.Error(1)
}

func (m *MockCheckout) Refund(ctx context.Context, adminID int64, provider, paymentID string, amount *decimal.Decimal) (*checkout.RefundOutput, error) {
	args := m.Called(ctx, adminID, provider, paymentID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.RefundOutput), args.Error(1)
}

func (m *MockCheckout) PaymentMethods(ctx context.Context, provider string) ([]payment.Method, error) {
	args := m.Called(ctx, provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payment.Method), args.Error(1)
}

type MockCartService struct {
	mock.Mock
}

func (m *MockCartService) GetCart(ctx context.Context, owner cart.Owner) (*cart.Cart, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) AddLine(ctx context.Context, owner cart.Owner, in cart.LineInput) (*cart.Cart, error) {
	args := m.Called(ctx, owner, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) UpdateQuantity(ctx context.Context, owner cart.Owner, in cart.LineInput) (*cart.Cart, error) {
	args := m.Called(ctx, owner, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) RemoveLine(ctx context.Context, owner cart.Owner, key product.VariantKey) (*cart.Cart, error) {
	args := m.Called(ctx, owner, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) MergeOnLogin(ctx context.Context, userID int64, sessionID string, anonymous []cart.LineInput) (*cart.Cart, error) {
	args := m.Called(ctx, userID, sessionID, anonymous)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Cart), args.Error(1)
}

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) Create(ctx context.Context, userID int64, lines []inventory.VerifiedLine, addr *address.Address, provider payment.Provider) (*order.Order, error) {
	args := m.Called(ctx, userID, lines, addr, provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) Get(ctx context.Context, id int64) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetForUser(ctx context.Context, id, userID int64, isAdmin bool) (*order.Order, error) {
	args := m.Called(ctx, id, userID, isAdmin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetByExternalReference(ctx context.Context, ref string) (*order.Order, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) Transition(ctx context.Context, o *order.Order, to order.Status, in order.TransitionInput) (bool, error) {
	args := m.Called(ctx, o, to, in)
	return args.Bool(0), args.Error(1)
}

func (m *MockOrderService) ApplyPayment(ctx context.Context, o *order.Order, res *payment.Result, actor order.Actor) (order.Outcome, error) {
	args := m.Called(ctx, o, res, actor)
	return args.Get(0).(order.Outcome), args.Error(1)
}

func (m *MockOrderService) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*order.Order, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*order.Order), args.Error(1)
}
