package checkout

import (
	"context"
	"net/http"
	"time"

	"tienda-be/internal/address"
	"tienda-be/internal/cart"
	"tienda-be/internal/inventory"
	"tienda-be/internal/order"
	"tienda-be/internal/payment"
	"tienda-be/internal/product"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

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

type MockPaymentRepository struct {
	mock.Mock
}

func (m *MockPaymentRepository) SaveAttempt(ctx context.Context, rec *payment.Record) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockPaymentRepository) UpdateFromResult(ctx context.Context, res *payment.Result) error {
	return m.Called(ctx, res).Error(0)
}

func (m *MockPaymentRepository) GetLatestByOrder(ctx context.Context, orderID int64) (*payment.Record, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Record), args.Error(1)
}

func (m *MockPaymentRepository) SaveWebhook(ctx context.Context, d payment.WebhookDelivery) (int64, bool, error) {
	args := m.Called(ctx, d)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockPaymentRepository) MarkWebhookProcessed(ctx context.Context, webhookID int64) error {
	return m.Called(ctx, webhookID).Error(0)
}

func (m *MockPaymentRepository) MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error {
	return m.Called(ctx, webhookID, reason).Error(0)
}

type MockGateway struct {
	mock.Mock
	provider payment.Provider
}

func newMockGateway() *MockGateway {
	return &MockGateway{provider: payment.ProviderMercadoPago}
}

func (m *MockGateway) Provider() payment.Provider { return m.provider }

func (m *MockGateway) CreatePreference(ctx context.Context, req payment.PreferenceRequest) (*payment.Preference, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Preference), args.Error(1)
}

func (m *MockGateway) TokenizeCard(ctx context.Context, card payment.CardData) (string, error) {
	args := m.Called(ctx, card)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Result), args.Error(1)
}

func (m *MockGateway) Refund(ctx context.Context, paymentID string, amount *decimal.Decimal) (*payment.RefundResult, error) {
	args := m.Called(ctx, paymentID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.RefundResult), args.Error(1)
}

func (m *MockGateway) GetStatus(ctx context.Context, paymentID string) (*payment.Result, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Result), args.Error(1)
}

func (m *MockGateway) SearchByReference(ctx context.Context, ref string) (*payment.Result, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Result), args.Error(1)
}

func (m *MockGateway) PaymentMethods(ctx context.Context) ([]payment.Method, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]payment.Method), args.Error(1)
}

func (m *MockGateway) ParseNotification(r *http.Request, body []byte) (*payment.Notification, error) {
	args := m.Called(r, body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Notification), args.Error(1)
}

func (m *MockGateway) VerifySignature(r *http.Request, body []byte) error {
	return m.Called(r, body).Error(0)
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
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) UpdateQuantity(ctx context.Context, owner cart.Owner, in cart.LineInput) (*cart.Cart, error) {
	args := m.Called(ctx, owner, in)
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) RemoveLine(ctx context.Context, owner cart.Owner, key product.VariantKey) (*cart.Cart, error) {
	args := m.Called(ctx, owner, key)
	return args.Get(0).(*cart.Cart), args.Error(1)
}

func (m *MockCartService) MergeOnLogin(ctx context.Context, userID int64, sessionID string, anonymous []cart.LineInput) (*cart.Cart, error) {
	args := m.Called(ctx, userID, sessionID, anonymous)
	return args.Get(0).(*cart.Cart), args.Error(1)
}

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, reqs []inventory.Request) ([]inventory.VerifiedLine, error) {
	args := m.Called(ctx, reqs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]inventory.VerifiedLine), args.Error(1)
}

type MockAddressService struct {
	mock.Mock
}

func (m *MockAddressService) Resolve(ctx context.Context, userID int64, addressID *uuid.UUID) (*address.Address, error) {
	args := m.Called(ctx, userID, addressID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*address.Address), args.Error(1)
}
