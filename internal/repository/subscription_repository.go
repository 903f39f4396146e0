package repository

import (
	"context"
	"database/sql"
	"time"

	"smartmart/internal/entity"
)

type SubscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db}
}

func (r *SubscriptionRepository) GetPlans(ctx context.Context, activeOnly bool) ([]entity.SubscriptionPlan, error) {
	query := `SELECT id, name, slug, price, ` + "`interval`" + `, interval_count, stripe_price_id, is_active FROM subscription_plans`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY price`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []entity.SubscriptionPlan
	for rows.Next() {
		var p entity.SubscriptionPlan
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &p.Price, &p.Interval, &p.IntervalCount, &p.StripePriceID, &p.IsActive); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (r *SubscriptionRepository) GetPlan(ctx context.Context, id int64) (*entity.SubscriptionPlan, error) {
	var p entity.SubscriptionPlan
	query := `SELECT id, name, slug, price, ` + "`interval`" + `, interval_count, stripe_price_id, is_active FROM subscription_plans WHERE id = ?`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&p.ID, &p.Name, &p.Slug, &p.Price, &p.Interval, &p.IntervalCount, &p.StripePriceID, &p.IsActive)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

const subscriptionColumns = `id, user_id, plan_id, status, stripe_subscription_id, stripe_customer_id, current_period_start,
	current_period_end, cancel_at_period_end, paused_at, cancelled_at, created_at`

func scanSubscription(row rowScanner) (*entity.Subscription, error) {
	var (
		s                     entity.Subscription
		pausedAt, cancelledAt sql.NullTime
	)
	err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &s.Status, &s.StripeSubscriptionID, &s.StripeCustomerID,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &pausedAt, &cancelledAt, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.PausedAt = timePtr(pausedAt)
	s.CancelledAt = timePtr(cancelledAt)
	return &s, nil
}

func (r *SubscriptionRepository) GetSubscription(ctx context.Context, id int64) (*entity.Subscription, error) {
	s, err := scanSubscription(r.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func (r *SubscriptionRepository) GetSubscriptionByStripeID(ctx context.Context, stripeID string) (*entity.Subscription, error) {
	s, err := scanSubscription(r.db.QueryRowContext(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE stripe_subscription_id = ?`, stripeID))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// GetSubscriptions lists subscriptions, all of them when userID is nil.
func (r *SubscriptionRepository) GetSubscriptions(ctx context.Context, userID *int64) ([]*entity.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions`
	var args []interface{}
	if userID != nil {
		query += ` WHERE user_id = ?`
		args = append(args, *userID)
	}
	query += ` ORDER BY id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*entity.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (r *SubscriptionRepository) CreateSubscription(ctx context.Context, s *entity.Subscription) (*entity.Subscription, error) {
	s.CreatedAt = time.Now().UTC()
	query := `INSERT INTO subscriptions (user_id, plan_id, status, stripe_subscription_id, stripe_customer_id, current_period_start,
		current_period_end, cancel_at_period_end, paused_at, cancelled_at, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, s.UserID, s.PlanID, s.Status, s.StripeSubscriptionID, s.StripeCustomerID,
		s.CurrentPeriodStart, s.CurrentPeriodEnd, s.CancelAtPeriodEnd, nullTime(s.PausedAt), nullTime(s.CancelledAt), s.CreatedAt)
	if err != nil {
		return nil, err
	}
	if s.ID, err = res.LastInsertId(); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SubscriptionRepository) UpdateSubscription(ctx context.Context, s *entity.Subscription) error {
	query := `UPDATE subscriptions SET status = ?, current_period_start = ?, current_period_end = ?, cancel_at_period_end = ?,
		paused_at = ?, cancelled_at = ? WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, s.Status, s.CurrentPeriodStart, s.CurrentPeriodEnd, s.CancelAtPeriodEnd,
		nullTime(s.PausedAt), nullTime(s.CancelledAt), s.ID)
	return err
}

// CreateBox inserts the box for a billing period. It reports false when the
// period already has a box, so replayed jobs are harmless.
func (r *SubscriptionRepository) CreateBox(ctx context.Context, box *entity.SubscriptionBox) (bool, error) {
	box.CreatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `INSERT IGNORE INTO subscription_boxes (subscription_id, period_start, period_end, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		box.SubscriptionID, box.PeriodStart, box.PeriodEnd, box.Status, box.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	box.ID, err = res.LastInsertId()
	return true, err
}

func (r *SubscriptionRepository) GetBoxes(ctx context.Context, subscriptionID int64) ([]entity.SubscriptionBox, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, subscription_id, period_start, period_end, status, created_at FROM subscription_boxes WHERE subscription_id = ? ORDER BY period_start DESC`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var boxes []entity.SubscriptionBox
	for rows.Next() {
		var b entity.SubscriptionBox
		if err := rows.Scan(&b.ID, &b.SubscriptionID, &b.PeriodStart, &b.PeriodEnd, &b.Status, &b.CreatedAt); err != nil {
			return nil, err
		}
		boxes = append(boxes, b)
	}
	return boxes, rows.Err()
}

// MarkEventProcessed records a provider webhook event id. It reports false for ids seen before.
func (r *SubscriptionRepository) MarkEventProcessed(ctx context.Context, eventID, eventType string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT IGNORE INTO webhook_events (event_id, event_type, processed_at) VALUES (?, ?, ?)`,
		eventID, eventType, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ForgetEvent removes a recorded event id so the provider's retry is processed again.
func (r *SubscriptionRepository) ForgetEvent(ctx context.Context, eventID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE event_id = ?`, eventID)
	return err
}
