package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"smartmart/internal/payment"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// ErrInvalidPayload covers bad signatures and bodies that cannot be decoded.
var ErrInvalidPayload = errors.New("invalid webhook payload")

type Subscriptions interface {
	SyncFromProvider(ctx context.Context, remote payment.BillingSubscription) error
	MarkCancelled(ctx context.Context, stripeID string) error
	InvoicePaid(ctx context.Context, stripeID string, periodStart, periodEnd time.Time) error
	InvoiceFailed(ctx context.Context, stripeID string) error
}

type Orders interface {
	ReconcilePayment(ctx context.Context, reference string, paid bool) error
}

// EventLog remembers processed event ids.
type EventLog interface {
	MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error)
	ForgetEvent(ctx context.Context, eventID string) error
}

type handlerFunc func(ctx context.Context, raw json.RawMessage) error

type StripeHandler struct {
	secret   string
	events   EventLog
	handlers map[string]handlerFunc
}

func NewStripeHandler(secret string, subs Subscriptions, orders Orders, events EventLog) *StripeHandler {
	h := &StripeHandler{secret: secret, events: events}
	h.handlers = map[string]handlerFunc{
		"customer.subscription.created": func(ctx context.Context, raw json.RawMessage) error {
			return syncSubscription(ctx, subs, raw)
		},
		"customer.subscription.updated": func(ctx context.Context, raw json.RawMessage) error {
			return syncSubscription(ctx, subs, raw)
		},
		"customer.subscription.deleted": func(ctx context.Context, raw json.RawMessage) error {
			var sub stripe.Subscription
			if err := decode(raw, &sub); err != nil {
				return err
			}
			return subs.MarkCancelled(ctx, sub.ID)
		},
		"invoice.payment_succeeded": func(ctx context.Context, raw json.RawMessage) error {
			var inv stripe.Invoice
			if err := decode(raw, &inv); err != nil {
				return err
			}
			if inv.Subscription == nil {
				return nil
			}
			start, end := invoicePeriod(&inv)
			return subs.InvoicePaid(ctx, inv.Subscription.ID, start, end)
		},
		"invoice.payment_failed": func(ctx context.Context, raw json.RawMessage) error {
			var inv stripe.Invoice
			if err := decode(raw, &inv); err != nil {
				return err
			}
			if inv.Subscription == nil {
				return nil
			}
			return subs.InvoiceFailed(ctx, inv.Subscription.ID)
		},
		"payment_intent.succeeded": func(ctx context.Context, raw json.RawMessage) error {
			return reconcile(ctx, orders, raw, true)
		},
		"payment_intent.payment_failed": func(ctx context.Context, raw json.RawMessage) error {
			return reconcile(ctx, orders, raw, false)
		},
	}
	return h
}

// Handle verifies and dispatches one delivery. A nil error means the delivery should
// be acknowledged; ErrInvalidPayload means it never will be accepted.
func (h *StripeHandler) Handle(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		logger.Warn().Err(err).Msg("Rejecting stripe webhook")
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	eventType := string(event.Type)
	handle, ok := h.handlers[eventType]
	if !ok {
		logger.Info().Msgf("Ignoring stripe event %s of type %s", event.ID, eventType)
		return nil
	}
	if event.Data == nil {
		return fmt.Errorf("%w: event %s has no data", ErrInvalidPayload, event.ID)
	}

	fresh, err := h.events.MarkEventProcessed(ctx, event.ID, eventType)
	if err != nil {
		return err
	}
	if !fresh {
		logger.Info().Msgf("Stripe event %s already processed", event.ID)
		return nil
	}

	if err := handle(ctx, event.Data.Raw); err != nil {
		logger.Error().Err(err).Msgf("Error handling stripe event %s (%s)", event.ID, eventType)
		if fErr := h.events.ForgetEvent(ctx, event.ID); fErr != nil {
			logger.Error().Err(fErr).Msgf("Error forgetting stripe event %s", event.ID)
		}
		return err
	}
	return nil
}

func decode(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func syncSubscription(ctx context.Context, subs Subscriptions, raw json.RawMessage) error {
	var sub stripe.Subscription
	if err := decode(raw, &sub); err != nil {
		return err
	}
	return subs.SyncFromProvider(ctx, payment.FromStripeSubscription(&sub))
}

func reconcile(ctx context.Context, orders Orders, raw json.RawMessage, paid bool) error {
	var intent stripe.PaymentIntent
	if err := decode(raw, &intent); err != nil {
		return err
	}
	return orders.ReconcilePayment(ctx, intent.ID, paid)
}

// invoicePeriod prefers the subscription line's service period over the invoice's
// own billing window.
func invoicePeriod(inv *stripe.Invoice) (time.Time, time.Time) {
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line.Period != nil && line.Period.Start > 0 {
				return time.Unix(line.Period.Start, 0).UTC(), time.Unix(line.Period.End, 0).UTC()
			}
		}
	}
	return time.Unix(inv.PeriodStart, 0).UTC(), time.Unix(inv.PeriodEnd, 0).UTC()
}
