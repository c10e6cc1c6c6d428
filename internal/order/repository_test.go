package order

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"tienda-be/internal/apperr"
	"tienda-be/internal/events"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	variantColumns = []string{
		"id", "product_id", "color_code", "size", "name", "price",
		"stock", "weight_grams", "active", "active",
	}
	orderRowColumns = []string{
		"id", "user_id", "status", "subtotal", "shipping_cost", "taxes", "total", "currency",
		"payment_method", "payment_status", "transaction_id", "external_reference",
		"shipping_address_id", "created_at", "updated_at", "paid_at", "cancelled_at",
	}
	itemColumns = []string{
		"id", "order_id", "variant_id", "product_id", "color_code", "size", "product_name", "quantity", "price", "subtotal",
	}
	logColumns = []string{
		"id", "order_id", "previous_status", "new_status", "note", "updated_by", "user_type", "created_at",
	}
)

const lockVariants = `(?s)SELECT .* FROM unnest.*FOR UPDATE OF v`

func newOrder() *Order {
	addr := uuid.New()
	return &Order{
		UserID:            42,
		Status:            StatusPending,
		Subtotal:          decimal.NewFromInt(90000),
		ShippingCost:      decimal.NewFromInt(8000),
		Taxes:             decimal.NewFromInt(17100),
		Total:             decimal.NewFromInt(115100),
		Currency:          "COP",
		ExternalReference: "ORD-7",
		ShippingAddressID: &addr,
		Items: []Item{{
			VariantID: 3, ProductID: 10, ColorCode: "#000000", Size: "M",
			ProductName: "Camiseta", Quantity: 2,
			Price: decimal.NewFromInt(45000), Subtotal: decimal.NewFromInt(90000),
		}},
	}
}

func TestRepository_Create(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("Success", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		repo := NewRepository(db)
		o := newOrder()

		mock.ExpectBegin()
		mock.ExpectQuery(lockVariants).
			WillReturnRows(sqlmock.NewRows(variantColumns).
				AddRow(3, 10, "#000000", "M", "Camiseta", "45000", 5, 250, true, true))
		mock.ExpectQuery("INSERT INTO orders").
			WithArgs(int64(42), StatusPending, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), "COP", nil, "ORD-7", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, now, now))
		mock.ExpectQuery("INSERT INTO order_items").
			WithArgs(int64(7), int64(3), int64(10), "#000000", "M", "Camiseta", 2, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(70))
		mock.ExpectQuery("INSERT INTO order_logs").
			WithArgs(int64(7), StatusNone, StatusPending, "order created", "42", ActorUser).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, now))
		mock.ExpectCommit()

		require.NoError(t, repo.Create(ctx, o))
		assert.Equal(t, int64(7), o.ID)
		assert.Equal(t, int64(70), o.Items[0].ID)
		require.Len(t, o.Logs, 1)
		assert.Equal(t, StatusNone, o.Logs[0].PreviousStatus)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("StockTakenSinceVerification", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(lockVariants).
			WillReturnRows(sqlmock.NewRows(variantColumns).
				AddRow(3, 10, "#000000", "M", "Camiseta", "45000", 1, 250, true, true))
		mock.ExpectRollback()

		err = NewRepository(db).Create(ctx, newOrder())
		assert.Equal(t, apperr.OutOfStock, apperr.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("DuplicateReference", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(lockVariants).
			WillReturnRows(sqlmock.NewRows(variantColumns).
				AddRow(3, 10, "#000000", "M", "Camiseta", "45000", 5, 250, true, true))
		mock.ExpectQuery("INSERT INTO orders").
			WillReturnError(&pq.Error{Code: "23505", Constraint: "orders_external_reference_key"})
		mock.ExpectRollback()

		err = NewRepository(db).Create(ctx, newOrder())
		assert.ErrorIs(t, err, ErrDuplicateReference)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ItemInsertFailsRollsBack", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(lockVariants).
			WillReturnRows(sqlmock.NewRows(variantColumns).
				AddRow(3, 10, "#000000", "M", "Camiseta", "45000", 5, 250, true, true))
		mock.ExpectQuery("INSERT INTO orders").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(7, now, now))
		mock.ExpectQuery("INSERT INTO order_items").WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		err = NewRepository(db).Create(ctx, newOrder())
		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_ApplyTransition(t *testing.T) {
	ctx := context.Background()
	approved, paymentID, provider := "approved", "123", "mercadopago"
	userID := int64(42)

	t.Run("PaidWritesLogEventAndClearsCart", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE orders").
			WithArgs(StatusPaid, &approved, &paymentID, &provider, int64(7), StatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO order_logs").
			WithArgs(int64(7), StatusPending, StatusPaid, "approved", "mercadopago", ActorWebhook).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(2, time.Now()))
		mock.ExpectExec("DELETE FROM carts").
			WithArgs(int64(7), userID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO order_events").
			WithArgs(sqlmock.AnyArg(), "order.paid", "ORD-7", events.TypeOrderPaid, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		applied, err := NewRepository(db).ApplyTransition(ctx, Transition{
			OrderID:       7,
			From:          StatusPending,
			To:            StatusPaid,
			Note:          "approved",
			Actor:         Actor{ID: "mercadopago", Type: ActorWebhook},
			PaymentStatus: &approved,
			TransactionID: &paymentID,
			PaymentMethod: &provider,
			ClearCartOf:   &userID,
			Event:         &OutboxEvent{Topic: "order.paid", Key: "ORD-7", Type: events.TypeOrderPaid, Payload: events.OrderPaid{OrderID: 7}},
		})
		require.NoError(t, err)
		assert.True(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("AlreadyMovedIsNotApplied", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		applied, err := NewRepository(db).ApplyTransition(ctx, Transition{
			OrderID: 7, From: StatusPending, To: StatusPaid,
			Actor: Actor{ID: "mercadopago", Type: ActorWebhook},
		})
		require.NoError(t, err)
		assert.False(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("OutboxFailureRollsBack", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE orders").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO order_logs").
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(2, time.Now()))
		mock.ExpectExec("INSERT INTO order_events").WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		applied, err := NewRepository(db).ApplyTransition(ctx, Transition{
			OrderID: 7, From: StatusPending, To: StatusPaid,
			Event: &OutboxEvent{Topic: "order.paid", Key: "ORD-7", Type: events.TypeOrderPaid, Payload: events.OrderPaid{}},
		})
		assert.Error(t, err)
		assert.False(t, applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRepository_Load(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("WithItemsAndLogs", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		addr := uuid.New()
		mock.ExpectQuery("FROM orders WHERE id = \\$1").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(orderRowColumns).AddRow(
				7, 42, "paid", "90000", "8000", "17100", "115100", "COP",
				"mercadopago", "approved", "123", "ORD-7",
				addr.String(), now, now, now, nil,
			))
		mock.ExpectQuery("FROM order_items").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(itemColumns).
				AddRow(70, 7, 3, 10, "#000000", "M", "Camiseta", 2, "45000", "90000"))
		mock.ExpectQuery("FROM order_logs").
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows(logColumns).
				AddRow(1, 7, "none", "pending", "order created", "42", "user", now).
				AddRow(2, 7, "pending", "paid", "mercadopago payment 123 approved", "mercadopago", "webhook", now))

		o, err := NewRepository(db).GetByID(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, StatusPaid, o.Status)
		assert.Equal(t, addr, *o.ShippingAddressID)
		assert.NotNil(t, o.PaidAt)
		assert.Nil(t, o.CancelledAt)
		require.Len(t, o.Items, 1)
		assert.True(t, o.Items[0].Price.Equal(decimal.NewFromInt(45000)))
		require.Len(t, o.Logs, 2)
		assert.Equal(t, StatusPaid, o.Logs[1].NewStatus)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("UnknownReference", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("FROM orders WHERE external_reference = \\$1").
			WithArgs("ORD-404").
			WillReturnError(sql.ErrNoRows)

		_, err = NewRepository(db).GetByExternalReference(ctx, "ORD-404")
		assert.ErrorIs(t, err, ErrOrderNotFound)
	})
}

func TestRepository_UpdatePaymentInfo(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	status := "in_process"
	mock.ExpectExec("UPDATE orders").
		WithArgs(nil, &status, nil, int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewRepository(db).UpdatePaymentInfo(context.Background(), 7, PaymentInfo{Status: &status})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_ListStalePending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	before := time.Now().Add(-15 * time.Minute)
	mock.ExpectQuery("WHERE status = 'pending' AND created_at < \\$1").
		WithArgs(before, 50).
		WillReturnRows(sqlmock.NewRows(orderRowColumns).AddRow(
			8, 42, "pending", "1", "0", "0", "1", "COP",
			nil, nil, nil, "ORD-8", nil, before, before, nil, nil,
		))

	orders, err := NewRepository(db).ListStalePending(context.Background(), before, 50)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "ORD-8", orders[0].ExternalReference)
	assert.Nil(t, orders[0].ShippingAddressID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
