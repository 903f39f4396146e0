package payment

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCashOnDeliveryCeiling(t *testing.T) {
	cod := NewCashOnDelivery(decimal.RequireFromString("500.00"))

	res, err := cod.Charge(context.Background(), Charge{OrderNumber: "SM-1", Amount: decimal.RequireFromString("499.99")})
	require.NoError(t, err)
	assert.Equal(t, "cod-SM-1", res.Reference)
	assert.False(t, res.Paid)

	_, err = cod.Charge(context.Background(), Charge{OrderNumber: "SM-2", Amount: decimal.RequireFromString("500.01")})
	require.ErrorIs(t, err, ErrDeclined)
	assert.Contains(t, err.Error(), "500.00")
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewCashOnDelivery(decimal.NewFromInt(10)), NewStripe("sk_test"))

	g, ok := r.Get(MethodCOD)
	require.True(t, ok)
	assert.Equal(t, MethodCOD, g.Name())

	_, ok = r.Get(MethodPayPal)
	assert.False(t, ok)
	assert.Equal(t, []string{MethodCOD, MethodStripe}, r.Methods())
}

func TestToMinorUnits(t *testing.T) {
	assert.Equal(t, int64(2700), toMinorUnits(decimal.RequireFromString("27.00")))
	assert.Equal(t, int64(1999), toMinorUnits(decimal.RequireFromString("19.99")))
}
