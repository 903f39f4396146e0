package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"smartmart/internal/entity"
)

type OrderRepository struct {
	db DBTX
}

func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db}
}

const orderColumns = `id, order_number, user_id, status, payment_status, payment_method, payment_reference,
	subtotal, tax, shipping, discount, total, coupon_code, shipping_address, notes, created_at, updated_at, cancelled_at`

func scanOrder(row rowScanner) (*entity.Order, error) {
	var (
		order       entity.Order
		cancelledAt sql.NullTime
	)
	err := row.Scan(&order.ID, &order.OrderNumber, &order.UserID, &order.Status, &order.PaymentStatus, &order.PaymentMethod,
		&order.PaymentReference, &order.Subtotal, &order.Tax, &order.Shipping, &order.Discount, &order.Total,
		&order.CouponCode, &order.ShippingAddress, &order.Notes, &order.CreatedAt, &order.UpdatedAt, &cancelledAt)
	if err != nil {
		return nil, err
	}
	order.CancelledAt = timePtr(cancelledAt)
	return &order, nil
}

func (r *OrderRepository) GetOrderByID(ctx context.Context, id int64) (*entity.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}

	if order.Items, err = r.getOrderItems(ctx, order.ID); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *OrderRepository) GetOrderByPaymentReference(ctx context.Context, reference string) (*entity.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE payment_reference = ?`, reference))
	if err != nil {
		return nil, notFound(err)
	}
	return order, nil
}

func (r *OrderRepository) getOrderItems(ctx context.Context, orderID int64) ([]entity.OrderItem, error) {
	query := `SELECT id, order_id, product_id, variant_id, product_name, sku, unit_price, quantity, total_price FROM order_items WHERE order_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []entity.OrderItem
	for rows.Next() {
		var (
			item      entity.OrderItem
			variantID sql.NullInt64
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &variantID, &item.ProductName, &item.SKU,
			&item.UnitPrice, &item.Quantity, &item.TotalPrice); err != nil {
			return nil, err
		}
		item.VariantID = int64Ptr(variantID)
		items = append(items, item)
	}
	return items, rows.Err()
}

type OrderFilter struct {
	UserID *int64
	Status entity.OrderStatus
	Limit  int
	Offset int
}

// GetOrders lists orders, newest first. Items are loaded only when withItems is set.
func (r *OrderRepository) GetOrders(ctx context.Context, filter OrderFilter, withItems bool) ([]*entity.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE 1 = 1`
	var args []interface{}
	if filter.UserID != nil {
		query += ` AND user_id = ?`
		args = append(args, *filter.UserID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var orders []*entity.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		orders = append(orders, order)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if withItems {
		for _, order := range orders {
			if order.Items, err = r.getOrderItems(ctx, order.ID); err != nil {
				return nil, err
			}
		}
	}
	return orders, nil
}

// OrderSummary returns how many orders a user has and their summed totals.
func (r *OrderRepository) OrderSummary(ctx context.Context, userID int64) (int, decimal.Decimal, error) {
	var (
		count int
		total decimal.NullDecimal
	)
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*), SUM(total) FROM orders WHERE user_id = ?`, userID).Scan(&count, &total)
	if err != nil {
		return 0, decimal.Zero, err
	}
	if !total.Valid {
		return count, decimal.Zero, nil
	}
	return count, total.Decimal, nil
}

// InsertOrder stores the order and its item snapshots. It is meant to run inside Store.ExecTx.
func (r *OrderRepository) InsertOrder(ctx context.Context, order *entity.Order) error {
	now := time.Now().UTC()
	orderQuery := `INSERT INTO orders (order_number, user_id, status, payment_status, payment_method, payment_reference,
		subtotal, tax, shipping, discount, total, coupon_code, shipping_address, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, orderQuery, order.OrderNumber, order.UserID, order.Status, order.PaymentStatus,
		order.PaymentMethod, order.PaymentReference, order.Subtotal, order.Tax, order.Shipping, order.Discount, order.Total,
		order.CouponCode, order.ShippingAddress, order.Notes, now, now)
	if err != nil {
		return err
	}

	orderID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	order.ID = orderID
	order.CreatedAt = now
	order.UpdatedAt = now

	if len(order.Items) == 0 {
		return nil
	}

	// Insert order items with batch
	itemQuery := `INSERT INTO order_items (order_id, product_id, variant_id, product_name, sku, unit_price, quantity, total_price) VALUES `
	var values []interface{}
	placeholders := make([]string, 0, len(order.Items))
	for i := range order.Items {
		item := &order.Items[i]
		item.OrderID = orderID
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?)")
		values = append(values, orderID, item.ProductID, nullInt64(item.VariantID), item.ProductName, item.SKU,
			item.UnitPrice, item.Quantity, item.TotalPrice)
	}

	_, err = r.db.ExecContext(ctx, itemQuery+strings.Join(placeholders, ", "), values...)
	return err
}

// UpdateOrderStatus moves the order from one status to another. The row only
// changes while it still holds from, otherwise ErrStatusChanged is returned.
func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, id int64, from, to entity.OrderStatus, cancelledAt *time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET status = ?, cancelled_at = COALESCE(?, cancelled_at), updated_at = ? WHERE id = ? AND status = ?`,
		to, nullTime(cancelledAt), time.Now().UTC(), id, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *OrderRepository) UpdateOrderPayment(ctx context.Context, id int64, status entity.OrderStatus, payment entity.PaymentStatus, reference string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE orders SET status = ?, payment_status = ?, payment_reference = ?, updated_at = ? WHERE id = ?`,
		status, payment, reference, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
