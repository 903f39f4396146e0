package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped, OrderCancelled},
	OrderShipped:    {OrderDelivered},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows moving from s to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

type Order struct {
	ID               int64           `json:"id"`
	OrderNumber      string          `json:"order_number"`
	UserID           int64           `json:"user_id"`
	Status           OrderStatus     `json:"status"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	PaymentMethod    string          `json:"payment_method"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Tax              decimal.Decimal `json:"tax"`
	Shipping         decimal.Decimal `json:"shipping"`
	Discount         decimal.Decimal `json:"discount"`
	Total            decimal.Decimal `json:"total_amount"`
	CouponCode       string          `json:"coupon_code,omitempty"`
	ShippingAddress  string          `json:"shipping_address"`
	Notes            string          `json:"notes,omitempty"`
	Items            []OrderItem     `json:"items"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
}

// OrderItem is a snapshot of the product at purchase time and never changes afterwards.
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	VariantID   *int64          `json:"variant_id"`
	ProductName string          `json:"product_name"`
	SKU         string          `json:"sku"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// RecalculateTotal sets Total to subtotal + tax + shipping - discount, clamped at zero.
func (o *Order) RecalculateTotal() {
	total := o.Subtotal.Add(o.Tax).Add(o.Shipping).Sub(o.Discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	o.Total = total
}

func (o *Order) CanBeCancelled() bool {
	return o.Status.CanTransitionTo(OrderCancelled)
}

// OrderEvent is the payload published to the order topic.
type OrderEvent struct {
	OrderID     int64           `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      int64           `json:"user_id"`
	Status      OrderStatus     `json:"status"`
	Total       decimal.Decimal `json:"total_amount"`
}

/*
Mysql Table

CREATE TABLE orders (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	order_number VARCHAR(40) NOT NULL UNIQUE,
	user_id BIGINT NOT NULL,
	status VARCHAR(20) NOT NULL,
	payment_status VARCHAR(20) NOT NULL,
	...
);

CREATE TABLE order_items (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	order_id BIGINT NOT NULL REFERENCES orders(id),
	product_id BIGINT NOT NULL,
	...
);
*/
