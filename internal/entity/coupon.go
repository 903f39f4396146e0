package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CouponPercent = "percent"
	CouponFixed   = "fixed"
)

type Coupon struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code"`
	Type        string          `json:"type"`
	Value       decimal.Decimal `json:"value"`
	MinSubtotal decimal.Decimal `json:"min_subtotal"`
	UsageLimit  int             `json:"usage_limit"` // 0 means unlimited
	UsedCount   int             `json:"used_count"`
	ExpiresAt   *time.Time      `json:"expires_at"`
	IsActive    bool            `json:"is_active"`
}

// Usable reports whether the coupon may be applied to the subtotal at the given time.
func (c *Coupon) Usable(subtotal decimal.Decimal, now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return false
	}
	return subtotal.GreaterThanOrEqual(c.MinSubtotal)
}

// DiscountFor returns the discount on subtotal, never more than the subtotal itself.
func (c *Coupon) DiscountFor(subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch c.Type {
	case CouponPercent:
		discount = subtotal.Mul(c.Value).Div(decimal.NewFromInt(100)).Round(2)
	case CouponFixed:
		discount = c.Value
	default:
		return decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		return subtotal
	}
	return discount
}
