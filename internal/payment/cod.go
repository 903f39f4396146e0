package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// CashOnDelivery accepts orders up to a fixed ceiling and collects money on delivery.
type CashOnDelivery struct {
	ceiling decimal.Decimal
}

func NewCashOnDelivery(ceiling decimal.Decimal) *CashOnDelivery {
	return &CashOnDelivery{ceiling: ceiling}
}

func (c *CashOnDelivery) Name() string { return MethodCOD }

func (c *CashOnDelivery) Charge(ctx context.Context, charge Charge) (Result, error) {
	if charge.Amount.GreaterThan(c.ceiling) {
		return Result{}, declined("cash on delivery is not available for orders above %s", c.ceiling.StringFixed(2))
	}
	return Result{Reference: "cod-" + charge.OrderNumber, Paid: false}, nil
}

func (c *CashOnDelivery) Refund(ctx context.Context, reference string, amount decimal.Decimal, currency string) error {
	return nil
}
