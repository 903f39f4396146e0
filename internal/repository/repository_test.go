package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartmart/internal/entity"
)

func newMock(t *testing.T) (sqlmock.Sqlmock, func() *Store, *ProductRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return mock, func() *Store { return NewStore(db) }, NewProductRepository(db)
}

func TestDecrementStock(t *testing.T) {
	ctx := context.Background()
	mock, _, products := newMock(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE products SET quantity = quantity - ? WHERE id = ? AND quantity >= ?`)).
		WithArgs(2, int64(7), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, products.DecrementStock(ctx, 7, nil, 2))

	variant := int64(3)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE product_variants SET quantity = quantity - ?`)).
		WithArgs(5, variant, int64(7), 5).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := products.DecrementStock(ctx, 7, &variant, 5)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestExecTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commits when fn succeeds", func(t *testing.T) {
		mock, store, _ := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE products SET quantity = quantity - ?`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE coupons SET used_count = used_count + 1`)).
			WithArgs("SAVE10").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store().ExecTx(ctx, func(tx Tx) error {
			if err := tx.DecrementStock(ctx, 1, nil, 1); err != nil {
				return err
			}
			return tx.RedeemCoupon(ctx, "SAVE10")
		})
		require.NoError(t, err)
	})

	t.Run("rolls back on the first failure", func(t *testing.T) {
		mock, store, _ := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE products SET quantity = quantity - ?`)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE products SET quantity = quantity - ?`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := store().ExecTx(ctx, func(tx Tx) error {
			if err := tx.DecrementStock(ctx, 1, nil, 1); err != nil {
				return err
			}
			return tx.DecrementStock(ctx, 2, nil, 9)
		})
		assert.ErrorIs(t, err, ErrInsufficientStock)
	})

	t.Run("coupon usage limit", func(t *testing.T) {
		mock, store, _ := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE coupons SET used_count`)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := store().ExecTx(ctx, func(tx Tx) error {
			return tx.RedeemCoupon(ctx, "ONCE")
		})
		assert.ErrorIs(t, err, ErrCouponExhausted)
	})
}

func TestInsertOrder(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	variant := int64(4)
	order := &entity.Order{
		OrderNumber:   "SM-1",
		UserID:        9,
		Status:        entity.OrderPending,
		PaymentStatus: entity.PaymentPending,
		PaymentMethod: "cod",
		Subtotal:      decimal.RequireFromString("20.00"),
		Total:         decimal.RequireFromString("27.00"),
		Items: []entity.OrderItem{
			{ProductID: 1, ProductName: "Tea", SKU: "TEA", Quantity: 1, UnitPrice: decimal.RequireFromString("5.00"), TotalPrice: decimal.RequireFromString("5.00")},
			{ProductID: 2, VariantID: &variant, ProductName: "Mug (red)", SKU: "MUG-R", Quantity: 3, UnitPrice: decimal.RequireFromString("5.00"), TotalPrice: decimal.RequireFromString("15.00")},
		},
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO orders (order_number, user_id`)).
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO order_items (order_id, product_id, variant_id, product_name, sku, unit_price, quantity, total_price) VALUES (?, ?, ?, ?, ?, ?, ?, ?), (?, ?, ?, ?, ?, ?, ?, ?)`)).
		WithArgs(
			int64(42), int64(1), nil, "Tea", "TEA", sqlmock.AnyArg(), 1, sqlmock.AnyArg(),
			int64(42), int64(2), variant, "Mug (red)", "MUG-R", sqlmock.AnyArg(), 3, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, NewOrderRepository(db).InsertOrder(ctx, order))
	assert.Equal(t, int64(42), order.ID)
	assert.Equal(t, int64(42), order.Items[1].OrderID)
	assert.False(t, order.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusRequiresExpectedStatus(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	orders := NewOrderRepository(db)
	query := regexp.QuoteMeta(`UPDATE orders SET status = ?, cancelled_at = COALESCE(?, cancelled_at), updated_at = ? WHERE id = ? AND status = ?`)

	mock.ExpectExec(query).
		WithArgs("shipped", nil, sqlmock.AnyArg(), int64(5), "processing").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, orders.UpdateOrderStatus(ctx, 5, entity.OrderProcessing, entity.OrderShipped, nil))

	now := time.Now().UTC()
	mock.ExpectExec(query).
		WithArgs("cancelled", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(5), "pending").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = orders.UpdateOrderStatus(ctx, 5, entity.OrderPending, entity.OrderCancelled, &now)
	assert.ErrorIs(t, err, ErrStatusChanged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnonymizeUser(t *testing.T) {
	ctx := context.Background()

	t.Run("scrubs personal data and keeps orders", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET name = ?, email = ?`)).
			WithArgs("Deleted User", "deleted-5@anonymized.invalid", "scrambled", sqlmock.AnyArg(), int64(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cart_items`)).WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM carts`)).WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM product_views`)).WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 4))
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM notifications`)).WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE orders SET shipping_address = ''`)).WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE subscriptions SET status = ?`)).
			WithArgs(entity.SubscriptionCancelled, sqlmock.AnyArg(), int64(5), entity.SubscriptionCancelled).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		require.NoError(t, NewUserRepository(db).AnonymizeUser(ctx, 5, "scrambled"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET name = ?`)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err = NewUserRepository(db).AnonymizeUser(ctx, 5, "scrambled")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed cleanup rolls back", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET name = ?`)).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM cart_items`)).WillReturnError(errors.New("lock wait timeout"))
		mock.ExpectRollback()

		err = NewUserRepository(db).AnonymizeUser(ctx, 5, "scrambled")
		assert.EqualError(t, err, "lock wait timeout")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetUserByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = ?`)).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = NewUserRepository(db).GetUserByID(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNotFound)

	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id = ?`)).
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "password", "phone", "address", "role", "anonymized_at", "created_at"}).
			AddRow(4, "Ada", "ada@example.com", "hash", "", "", entity.RoleCustomer, nil, now))

	user, err := NewUserRepository(db).GetUserByID(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "Ada", user.Name)
	assert.Nil(t, user.AnonymizedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkEventProcessed(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewSubscriptionRepository(db)

	insert := regexp.QuoteMeta(`INSERT IGNORE INTO webhook_events`)
	mock.ExpectExec(insert).WithArgs("evt_1", "invoice.paid", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).WithArgs("evt_1", "invoice.paid", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM webhook_events WHERE event_id = ?`)).WithArgs("evt_1").WillReturnResult(sqlmock.NewResult(0, 1))

	fresh, err := repo.MarkEventProcessed(ctx, "evt_1", "invoice.paid")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = repo.MarkEventProcessed(ctx, "evt_1", "invoice.paid")
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, repo.ForgetEvent(ctx, "evt_1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBoxIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewSubscriptionRepository(db)

	insert := regexp.QuoteMeta(`INSERT IGNORE INTO subscription_boxes`)
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec(insert).WillReturnResult(sqlmock.NewResult(0, 0))

	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	box := &entity.SubscriptionBox{SubscriptionID: 3, PeriodStart: start, PeriodEnd: start.AddDate(0, 1, 0)}
	created, err := repo.CreateBox(ctx, box)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(11), box.ID)

	created, err = repo.CreateBox(ctx, &entity.SubscriptionBox{SubscriptionID: 3, PeriodStart: start, PeriodEnd: start.AddDate(0, 1, 0)})
	require.NoError(t, err)
	assert.False(t, created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSettings(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO settings (`key`, value, updated_at)")).
		WithArgs("shop.name", "SmartMart", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewSettingRepository(db).UpsertSettings(context.Background(), map[string]string{"shop.name": "SmartMart"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
