package payment

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v76"

	"smartmart/internal/entity"
)

type SubscribeRequest struct {
	Email         string
	Name          string
	PriceID       string
	PaymentMethod string
}

// BillingSubscription is the provider-side view of a subscription.
type BillingSubscription struct {
	ID                string
	CustomerID        string
	Status            entity.SubscriptionStatus
	PeriodStart       time.Time
	PeriodEnd         time.Time
	CancelAtPeriodEnd bool
}

// FromStripeSubscription converts a Stripe subscription object, as received from the
// API or inside a webhook event.
func FromStripeSubscription(sub *stripe.Subscription) BillingSubscription {
	out := BillingSubscription{
		ID:                sub.ID,
		Status:            SubscriptionStatus(sub.Status, sub.PauseCollection != nil),
		PeriodStart:       time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		PeriodEnd:         time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	return out
}

// SubscriptionStatus maps Stripe's status vocabulary onto ours. Paused collection
// wins over an otherwise active status.
func SubscriptionStatus(status stripe.SubscriptionStatus, collectionPaused bool) entity.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		if collectionPaused {
			return entity.SubscriptionPaused
		}
		return entity.SubscriptionActive
	case "paused":
		return entity.SubscriptionPaused
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return entity.SubscriptionPastDue
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return entity.SubscriptionCancelled
	default:
		return entity.SubscriptionIncomplete
	}
}

// StripeBilling runs recurring plans on the same Stripe account as card payments.
type StripeBilling struct {
	stripe *Stripe
}

func NewStripeBilling(s *Stripe) *StripeBilling {
	return &StripeBilling{stripe: s}
}

func (b *StripeBilling) Subscribe(ctx context.Context, req SubscribeRequest) (BillingSubscription, error) {
	api := b.stripe.API()

	customerParams := &stripe.CustomerParams{
		Email:         stripe.String(req.Email),
		Name:          stripe.String(req.Name),
		PaymentMethod: stripe.String(req.PaymentMethod),
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(req.PaymentMethod),
		},
	}
	customerParams.Context = ctx
	customer, err := api.Customers.New(customerParams)
	if err != nil {
		logger.Error().Err(err).Msgf("Error creating Stripe customer for %s", req.Email)
		return BillingSubscription{}, declined("could not register the payment method")
	}

	subParams := &stripe.SubscriptionParams{
		Customer: stripe.String(customer.ID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(req.PriceID)},
		},
	}
	subParams.Context = ctx
	sub, err := api.Subscriptions.New(subParams)
	if err != nil {
		logger.Error().Err(err).Msgf("Error creating Stripe subscription for customer %s", customer.ID)
		return BillingSubscription{}, declined("could not start the subscription")
	}

	out := FromStripeSubscription(sub)
	out.CustomerID = customer.ID
	return out, nil
}

func (b *StripeBilling) Pause(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		PauseCollection: &stripe.SubscriptionPauseCollectionParams{
			Behavior: stripe.String("void"),
		},
	}
	params.Context = ctx
	_, err := b.stripe.API().Subscriptions.Update(subscriptionID, params)
	return err
}

func (b *StripeBilling) Resume(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	// An empty value clears pause_collection.
	params.AddExtra("pause_collection", "")
	_, err := b.stripe.API().Subscriptions.Update(subscriptionID, params)
	return err
}

func (b *StripeBilling) Cancel(ctx context.Context, subscriptionID string, atPeriodEnd bool) error {
	if atPeriodEnd {
		params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
		params.Context = ctx
		_, err := b.stripe.API().Subscriptions.Update(subscriptionID, params)
		return err
	}
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	_, err := b.stripe.API().Subscriptions.Cancel(subscriptionID, params)
	return err
}
