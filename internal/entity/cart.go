package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Cart struct {
	ID         int64           `json:"id"`
	UserID     *int64          `json:"user_id"`
	SessionID  string          `json:"session_id,omitempty"`
	Items      []CartItem      `json:"items"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	TotalItems int             `json:"total_items"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type CartItem struct {
	ID         int64           `json:"id"`
	CartID     int64           `json:"cart_id"`
	ProductID  int64           `json:"product_id"`
	VariantID  *int64          `json:"variant_id"`
	Name       string          `json:"name"`
	SKU        string          `json:"sku"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// CartOwner identifies a cart by user or, for guests, by session id.
type CartOwner struct {
	UserID    *int64
	SessionID string
}

func (o CartOwner) IsZero() bool {
	return o.UserID == nil && o.SessionID == ""
}

// Recalculate recomputes every item total and the cart subtotal and item count.
func (c *Cart) Recalculate() {
	subtotal := decimal.Zero
	count := 0
	for i := range c.Items {
		item := &c.Items[i]
		item.TotalPrice = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(item.TotalPrice)
		count += item.Quantity
	}
	c.Subtotal = subtotal
	c.TotalItems = count
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// FindItem returns the index of the line for a product/variant pair, or -1.
func (c *Cart) FindItem(productID int64, variantID *int64) int {
	for i, item := range c.Items {
		if item.ProductID != productID {
			continue
		}
		if item.VariantID == nil && variantID == nil {
			return i
		}
		if item.VariantID != nil && variantID != nil && *item.VariantID == *variantID {
			return i
		}
	}
	return -1
}
