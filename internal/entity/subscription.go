package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type SubscriptionStatus string

const (
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionPaused     SubscriptionStatus = "paused"
	SubscriptionCancelled  SubscriptionStatus = "cancelled"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
)

type SubscriptionPlan struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Slug          string          `json:"slug"`
	Price         decimal.Decimal `json:"price"`
	Interval      string          `json:"interval"` // month or year
	IntervalCount int             `json:"interval_count"`
	StripePriceID string          `json:"-"`
	IsActive      bool            `json:"is_active"`
}

type Subscription struct {
	ID                   int64              `json:"id"`
	UserID               int64              `json:"user_id"`
	PlanID               int64              `json:"plan_id"`
	Status               SubscriptionStatus `json:"status"`
	StripeSubscriptionID string             `json:"stripe_subscription_id"`
	StripeCustomerID     string             `json:"-"`
	CurrentPeriodStart   time.Time          `json:"current_period_start"`
	CurrentPeriodEnd     time.Time          `json:"current_period_end"`
	CancelAtPeriodEnd    bool               `json:"cancel_at_period_end"`
	PausedAt             *time.Time         `json:"paused_at,omitempty"`
	CancelledAt          *time.Time         `json:"cancelled_at,omitempty"`
	CreatedAt            time.Time          `json:"created_at"`
}

func (s *Subscription) IsLive() bool {
	switch s.Status {
	case SubscriptionActive, SubscriptionPaused, SubscriptionPastDue, SubscriptionIncomplete:
		return true
	}
	return false
}

const (
	BoxPending   = "pending"
	BoxPreparing = "preparing"
	BoxShipped   = "shipped"
	BoxDelivered = "delivered"
)

// SubscriptionBox is one fulfillment unit per billing period of a subscription.
type SubscriptionBox struct {
	ID             int64     `json:"id"`
	SubscriptionID int64     `json:"subscription_id"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}
