package payment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

const (
	MethodStripe = "stripe"
	MethodPayPal = "paypal"
	MethodCOD    = "cod"
)

// ErrDeclined wraps every failed charge; its message is safe to show to the buyer.
var ErrDeclined = errors.New("payment declined")

type Charge struct {
	OrderNumber   string
	Amount        decimal.Decimal
	Currency      string
	Token         string // Stripe payment method id or approved PayPal order id
	CustomerEmail string
}

type Result struct {
	Reference string
	// Paid is false for methods that collect money later, such as cash on delivery.
	Paid bool
}

type Gateway interface {
	Name() string
	Charge(ctx context.Context, charge Charge) (Result, error)
	Refund(ctx context.Context, reference string, amount decimal.Decimal, currency string) error
}

func declined(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDeclined, fmt.Sprintf(format, args...))
}

// Registry holds the enabled gateways keyed by payment method name.
type Registry struct {
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) *Registry {
	r := &Registry{gateways: make(map[string]Gateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Name()] = g
	}
	return r
}

func (r *Registry) Get(method string) (Gateway, bool) {
	g, ok := r.gateways[method]
	return g, ok
}

func (r *Registry) Methods() []string {
	methods := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		methods = append(methods, name)
	}
	sort.Strings(methods)
	return methods
}

// toMinorUnits converts an amount to cents.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
