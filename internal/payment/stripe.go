package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Stripe charges cards by creating and confirming a PaymentIntent.
type Stripe struct {
	api *client.API
}

func NewStripe(secretKey string) *Stripe {
	return newStripe(secretKey, nil)
}

// newStripe uses the given backends, or Stripe's defaults when nil.
func newStripe(secretKey string, backends *stripe.Backends) *Stripe {
	sc := &client.API{}
	sc.Init(secretKey, backends)
	return &Stripe{api: sc}
}

func (s *Stripe) Name() string { return MethodStripe }

// API exposes the client for subscription billing, which shares the account.
func (s *Stripe) API() *client.API { return s.api }

func (s *Stripe) Charge(ctx context.Context, charge Charge) (Result, error) {
	if charge.Token == "" {
		return Result{}, declined("a card payment method is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(toMinorUnits(charge.Amount)),
		Currency:           stripe.String(charge.Currency),
		PaymentMethod:      stripe.String(charge.Token),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
		Description:        stripe.String("Order " + charge.OrderNumber),
	}
	if charge.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(charge.CustomerEmail)
	}
	params.Context = ctx
	params.AddMetadata("order_number", charge.OrderNumber)
	params.SetIdempotencyKey("order-" + charge.OrderNumber)

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
			return Result{}, declined("%s", stripeErr.Msg)
		}
		logger.Error().Err(err).Msgf("Stripe payment intent failed for order %s", charge.OrderNumber)
		return Result{}, declined("card payment could not be processed")
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return Result{Reference: pi.ID, Paid: true}, nil
	case stripe.PaymentIntentStatusRequiresAction:
		return Result{}, declined("the card requires additional authentication")
	default:
		return Result{}, declined("card payment ended in status %s", pi.Status)
	}
}

func (s *Stripe) Refund(ctx context.Context, reference string, amount decimal.Decimal, currency string) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(reference),
		Amount:        stripe.Int64(toMinorUnits(amount)),
	}
	params.Context = ctx
	_, err := s.api.Refunds.New(params)
	return err
}
