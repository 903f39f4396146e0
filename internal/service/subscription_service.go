package service

import (
	"context"
	"time"

	"smartmart/internal/entity"
	"smartmart/internal/payment"
)

type SubscriptionService struct {
	subRepo  SubscriptionRepository
	userRepo UserRepository
	billing  Billing
	jobs     Publisher
	notifier *NotificationService
}

// NewSubscriptionService creates the service. billing is nil when Stripe is disabled,
// in which case new subscriptions are refused.
func NewSubscriptionService(subRepo SubscriptionRepository, userRepo UserRepository, billing Billing, jobs Publisher,
	notifier *NotificationService) *SubscriptionService {
	return &SubscriptionService{
		subRepo:  subRepo,
		userRepo: userRepo,
		billing:  billing,
		jobs:     jobs,
		notifier: notifier,
	}
}

func (s *SubscriptionService) Plans(ctx context.Context) ([]entity.SubscriptionPlan, error) {
	return s.subRepo.GetPlans(ctx, true)
}

func (s *SubscriptionService) ListForUser(ctx context.Context, userID int64) ([]*entity.Subscription, error) {
	return s.subRepo.GetSubscriptions(ctx, &userID)
}

func (s *SubscriptionService) List(ctx context.Context) ([]*entity.Subscription, error) {
	return s.subRepo.GetSubscriptions(ctx, nil)
}

func (s *SubscriptionService) Boxes(ctx context.Context, userID, subscriptionID int64) ([]entity.SubscriptionBox, error) {
	if _, err := s.owned(ctx, userID, subscriptionID); err != nil {
		return nil, err
	}
	return s.subRepo.GetBoxes(ctx, subscriptionID)
}

// Subscribe starts a plan for the user at Stripe and stores the local row.
func (s *SubscriptionService) Subscribe(ctx context.Context, userID, planID int64, paymentMethod string) (*entity.Subscription, error) {
	if s.billing == nil {
		return nil, invalid("plan_id", "subscriptions are not available")
	}
	if paymentMethod == "" {
		return nil, invalid("payment_method", "is required")
	}

	plan, err := s.subRepo.GetPlan(ctx, planID)
	if err != nil {
		if translate(err) == ErrNotFound {
			return nil, invalid("plan_id", "does not exist")
		}
		return nil, err
	}
	if !plan.IsActive || plan.StripePriceID == "" {
		return nil, invalid("plan_id", "is not available")
	}

	existing, err := s.subRepo.GetSubscriptions(ctx, &userID)
	if err != nil {
		return nil, err
	}
	for _, sub := range existing {
		if sub.PlanID == planID && sub.IsLive() {
			return nil, invalid("plan_id", "you are already subscribed to this plan")
		}
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, translate(err)
	}

	remote, err := s.billing.Subscribe(ctx, payment.SubscribeRequest{
		Email:         user.Email,
		Name:          user.Name,
		PriceID:       plan.StripePriceID,
		PaymentMethod: paymentMethod,
	})
	if err != nil {
		return nil, paymentError(err)
	}

	sub, err := s.subRepo.CreateSubscription(ctx, &entity.Subscription{
		UserID:               userID,
		PlanID:               planID,
		Status:               remote.Status,
		StripeSubscriptionID: remote.ID,
		StripeCustomerID:     remote.CustomerID,
		CurrentPeriodStart:   remote.PeriodStart,
		CurrentPeriodEnd:     remote.PeriodEnd,
		CancelAtPeriodEnd:    remote.CancelAtPeriodEnd,
	})
	if err != nil {
		logger.Error().Err(err).Msgf("Stripe subscription %s created but not stored for user %d", remote.ID, userID)
		return nil, err
	}
	return sub, nil
}

func (s *SubscriptionService) owned(ctx context.Context, userID, id int64) (*entity.Subscription, error) {
	sub, err := s.subRepo.GetSubscription(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	if sub.UserID != userID {
		return nil, ErrForbidden
	}
	return sub, nil
}

func (s *SubscriptionService) Pause(ctx context.Context, userID, id int64) (*entity.Subscription, error) {
	sub, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != entity.SubscriptionActive {
		return nil, ErrInvalidTransition
	}
	if err := s.remote(ctx, sub, func(stripeID string) error { return s.billing.Pause(ctx, stripeID) }); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub.Status = entity.SubscriptionPaused
	sub.PausedAt = &now
	return sub, s.subRepo.UpdateSubscription(ctx, sub)
}

func (s *SubscriptionService) Resume(ctx context.Context, userID, id int64) (*entity.Subscription, error) {
	sub, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != entity.SubscriptionPaused {
		return nil, ErrInvalidTransition
	}
	if err := s.remote(ctx, sub, func(stripeID string) error { return s.billing.Resume(ctx, stripeID) }); err != nil {
		return nil, err
	}

	sub.Status = entity.SubscriptionActive
	sub.PausedAt = nil
	return sub, s.subRepo.UpdateSubscription(ctx, sub)
}

// Cancel ends the subscription now, or at the end of the paid period when
// atPeriodEnd is set.
func (s *SubscriptionService) Cancel(ctx context.Context, userID, id int64, atPeriodEnd bool) (*entity.Subscription, error) {
	sub, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == entity.SubscriptionCancelled {
		return nil, ErrInvalidTransition
	}
	if err := s.remote(ctx, sub, func(stripeID string) error { return s.billing.Cancel(ctx, stripeID, atPeriodEnd) }); err != nil {
		return nil, err
	}

	if atPeriodEnd {
		sub.CancelAtPeriodEnd = true
	} else {
		now := time.Now().UTC()
		sub.Status = entity.SubscriptionCancelled
		sub.CancelledAt = &now
	}
	return sub, s.subRepo.UpdateSubscription(ctx, sub)
}

func (s *SubscriptionService) remote(ctx context.Context, sub *entity.Subscription, call func(stripeID string) error) error {
	if s.billing == nil || sub.StripeSubscriptionID == "" {
		return nil
	}
	if err := call(sub.StripeSubscriptionID); err != nil {
		logger.Error().Err(err).Msgf("Stripe call failed for subscription %d", sub.ID)
		return paymentError(err)
	}
	return nil
}

// SyncFromProvider overwrites status and period fields from a Stripe subscription object.
func (s *SubscriptionService) SyncFromProvider(ctx context.Context, remote payment.BillingSubscription) error {
	sub, err := s.byStripeID(ctx, remote.ID)
	if sub == nil || err != nil {
		return err
	}

	sub.Status = remote.Status
	sub.CurrentPeriodStart = remote.PeriodStart
	sub.CurrentPeriodEnd = remote.PeriodEnd
	sub.CancelAtPeriodEnd = remote.CancelAtPeriodEnd
	now := time.Now().UTC()
	switch remote.Status {
	case entity.SubscriptionPaused:
		if sub.PausedAt == nil {
			sub.PausedAt = &now
		}
	case entity.SubscriptionCancelled:
		if sub.CancelledAt == nil {
			sub.CancelledAt = &now
		}
	default:
		sub.PausedAt = nil
	}
	return s.subRepo.UpdateSubscription(ctx, sub)
}

func (s *SubscriptionService) MarkCancelled(ctx context.Context, stripeID string) error {
	sub, err := s.byStripeID(ctx, stripeID)
	if sub == nil || err != nil {
		return err
	}
	if sub.Status == entity.SubscriptionCancelled {
		return nil
	}
	now := time.Now().UTC()
	sub.Status = entity.SubscriptionCancelled
	sub.CancelledAt = &now
	if err := s.subRepo.UpdateSubscription(ctx, sub); err != nil {
		return err
	}
	s.notify(ctx, sub.UserID, "subscription.cancelled", "Subscription cancelled", "Your subscription has been cancelled.")
	return nil
}

// InvoicePaid activates the subscription for the paid period and queues the box
// for that period.
func (s *SubscriptionService) InvoicePaid(ctx context.Context, stripeID string, periodStart, periodEnd time.Time) error {
	sub, err := s.byStripeID(ctx, stripeID)
	if sub == nil || err != nil {
		return err
	}
	sub.Status = entity.SubscriptionActive
	sub.PausedAt = nil
	if !periodStart.IsZero() {
		sub.CurrentPeriodStart = periodStart
		sub.CurrentPeriodEnd = periodEnd
	}
	if err := s.subRepo.UpdateSubscription(ctx, sub); err != nil {
		return err
	}

	return enqueue(ctx, s.jobs, entity.Job{
		Type:        entity.JobSubscriptionBox,
		ID:          sub.ID,
		UserID:      sub.UserID,
		PeriodStart: sub.CurrentPeriodStart,
		PeriodEnd:   sub.CurrentPeriodEnd,
	})
}

func (s *SubscriptionService) InvoiceFailed(ctx context.Context, stripeID string) error {
	sub, err := s.byStripeID(ctx, stripeID)
	if sub == nil || err != nil {
		return err
	}
	sub.Status = entity.SubscriptionPastDue
	if err := s.subRepo.UpdateSubscription(ctx, sub); err != nil {
		return err
	}
	s.notify(ctx, sub.UserID, "subscription.past_due", "Payment failed",
		"We could not charge your subscription. Please update your payment method.")
	return nil
}

// CreateBox records the box for one billing period. It returns false when the box
// already exists, so redelivered jobs are harmless.
func (s *SubscriptionService) CreateBox(ctx context.Context, subscriptionID int64, periodStart, periodEnd time.Time) (bool, error) {
	sub, err := s.subRepo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return false, translate(err)
	}
	created, err := s.subRepo.CreateBox(ctx, &entity.SubscriptionBox{
		SubscriptionID: subscriptionID,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		Status:         entity.BoxPending,
	})
	if err != nil {
		return false, err
	}
	if created {
		s.notify(ctx, sub.UserID, "subscription.box", "Your next box is being prepared",
			"We have started preparing the box for "+periodStart.Format("January 2006")+".")
	}
	return created, nil
}

// byStripeID returns nil without error for subscriptions we do not know.
func (s *SubscriptionService) byStripeID(ctx context.Context, stripeID string) (*entity.Subscription, error) {
	sub, err := s.subRepo.GetSubscriptionByStripeID(ctx, stripeID)
	if err != nil {
		if translate(err) == ErrNotFound {
			logger.Warn().Msgf("Ignoring event for unknown Stripe subscription %s", stripeID)
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

func (s *SubscriptionService) notify(ctx context.Context, userID int64, kind, title, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, kind, title, body); err != nil {
		logger.Error().Err(err).Msgf("Error notifying user %d about %s", userID, kind)
	}
}
