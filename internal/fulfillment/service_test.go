package fulfillment

import (
	"context"
	"testing"
	"time"

	"tienda-be/internal/events"
	"tienda-be/internal/metrics"

	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Fulfill(ctx context.Context, paid events.OrderPaid) (*Fulfillment, bool, error) {
	args := m.Called(ctx, paid)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*Fulfillment), args.Bool(1), args.Error(2)
}

func (m *MockRepository) Cancel(ctx context.Context, orderID int64) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

func envelope(t *testing.T, eventType string, payload any) *events.Envelope {
	env, err := events.NewEnvelope(eventType, "ORD-7", payload, time.Now())
	require.NoError(t, err)
	return env
}

func TestService_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("OrderPaid", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo)
		paid := paidOrder7()

		repo.On("Fulfill", ctx, mock.MatchedBy(func(p events.OrderPaid) bool {
			return p.OrderID == 7 && len(p.Items) == 2
		})).Return(&Fulfillment{ID: 1, OrderID: 7}, true, nil)

		require.NoError(t, svc.Handle(ctx, envelope(t, events.TypeOrderPaid, paid)))
		repo.AssertExpectations(t)
	})

	t.Run("ShortCounted", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo)

		repo.On("Fulfill", ctx, mock.Anything).
			Return(&Fulfillment{ID: 1, OrderID: 7, Short: true, ShortItems: []ShortItem{{VariantID: 4, Quantity: 1}}}, true, nil)

		before := testutil.ToFloat64(metrics.FulfillmentShort)
		require.NoError(t, svc.Handle(ctx, envelope(t, events.TypeOrderPaid, paidOrder7())))
		assert.Equal(t, before+1, testutil.ToFloat64(metrics.FulfillmentShort))
	})

	t.Run("Redelivery", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo)

		repo.On("Fulfill", ctx, mock.Anything).Return(nil, false, nil)

		before := testutil.ToFloat64(metrics.FulfillmentShort)
		require.NoError(t, svc.Handle(ctx, envelope(t, events.TypeOrderPaid, paidOrder7())))
		assert.Equal(t, before, testutil.ToFloat64(metrics.FulfillmentShort))
	})

	t.Run("RepositoryErrorIsRetried", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo)

		repo.On("Fulfill", ctx, mock.Anything).Return(nil, false, errors.New("db down"))

		assert.Error(t, svc.Handle(ctx, envelope(t, events.TypeOrderPaid, paidOrder7())))
	})

	t.Run("OrderRefunded", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo)

		repo.On("Cancel", ctx, int64(7)).Return(true, nil)

		err := svc.Handle(ctx, envelope(t, events.TypeOrderRefunded, events.OrderRefunded{OrderID: 7, ExternalReference: "ORD-7"}))
		require.NoError(t, err)
		repo.AssertExpectations(t)
	})

	t.Run("UnknownType", func(t *testing.T) {
		repo := new(MockRepository)
		svc := NewService(repo)

		require.NoError(t, svc.Handle(ctx, &events.Envelope{EventID: "x", EventType: "order.shipped"}))
		repo.AssertNotCalled(t, "Fulfill", mock.Anything, mock.Anything)
	})
}
