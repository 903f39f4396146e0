package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the price breakdown of a cart.
type Quote struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Discount   decimal.Decimal `json:"discount"`
	Tax        decimal.Decimal `json:"tax"`
	Shipping   decimal.Decimal `json:"shipping"`
	Total      decimal.Decimal `json:"total"`
	CouponCode string          `json:"coupon_code,omitempty"`
}

type PricingService struct {
	couponRepo            CouponRepository
	taxRate               decimal.Decimal
	shippingRate          decimal.Decimal
	freeShippingThreshold decimal.Decimal
	now                   func() time.Time
}

func NewPricingService(couponRepo CouponRepository, taxRate, shippingRate, freeShippingThreshold decimal.Decimal) *PricingService {
	return &PricingService{
		couponRepo:            couponRepo,
		taxRate:               taxRate,
		shippingRate:          shippingRate,
		freeShippingThreshold: freeShippingThreshold,
		now:                   time.Now,
	}
}

// Quote computes discount, tax, shipping and total for a subtotal and an optional coupon.
func (s *PricingService) Quote(ctx context.Context, subtotal decimal.Decimal, couponCode string) (*Quote, error) {
	q := &Quote{Subtotal: subtotal, Discount: decimal.Zero}

	couponCode = strings.TrimSpace(couponCode)
	if couponCode != "" {
		coupon, err := s.couponRepo.GetCouponByCode(ctx, couponCode)
		if err != nil {
			if translate(err) == ErrNotFound {
				return nil, ErrInvalidCoupon
			}
			return nil, err
		}
		if !coupon.Usable(subtotal, s.now()) {
			return nil, ErrInvalidCoupon
		}
		q.Discount = coupon.DiscountFor(subtotal)
		q.CouponCode = coupon.Code
	}

	q.Tax = subtotal.Sub(q.Discount).Mul(s.taxRate).Round(2)
	if q.Tax.IsNegative() {
		q.Tax = decimal.Zero
	}

	q.Shipping = s.shippingRate
	if subtotal.IsZero() || subtotal.GreaterThanOrEqual(s.freeShippingThreshold) {
		q.Shipping = decimal.Zero
	}

	q.Total = subtotal.Add(q.Tax).Add(q.Shipping).Sub(q.Discount)
	if q.Total.IsNegative() {
		q.Total = decimal.Zero
	}
	return q, nil
}
