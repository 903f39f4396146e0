package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"smartmart/internal/entity"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrCouponExhausted   = errors.New("coupon usage limit reached")
	ErrStatusChanged     = errors.New("order status changed concurrently")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Tx groups the writes that must commit or roll back together during
// checkout and cancellation.
type Tx interface {
	InsertOrder(ctx context.Context, order *entity.Order) error
	UpdateOrderStatus(ctx context.Context, id int64, from, to entity.OrderStatus, cancelledAt *time.Time) error
	UpdateOrderPayment(ctx context.Context, id int64, status entity.OrderStatus, payment entity.PaymentStatus, reference string) error
	DecrementStock(ctx context.Context, productID int64, variantID *int64, qty int) error
	IncrementStock(ctx context.Context, productID int64, variantID *int64, qty int) error
	RedeemCoupon(ctx context.Context, code string) error
	ClearCart(ctx context.Context, cartID int64) error
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

type txRepositories struct {
	*OrderRepository
	*ProductRepository
	*CouponRepository
	*CartRepository
}

// ExecTx runs fn inside one database transaction, committing only when fn returns nil.
func (s *Store) ExecTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	repos := txRepositories{
		OrderRepository:   NewOrderRepository(tx),
		ProductRepository: NewProductRepository(tx),
		CouponRepository:  NewCouponRepository(tx),
		CartRepository:    NewCartRepository(tx),
	}

	if err := fn(repos); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx err: %w; rollback err: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	id := v.Int64
	return &id
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
