package service

import (
	"context"
	"fmt"
	"time"

	"smartmart/internal/entity"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

type NotificationService struct {
	notificationRepo NotificationRepository
	broker           Publisher
	storeInDatabase  bool
}

// NewNotificationService creates the service. broker is nil when the broker channel is off.
func NewNotificationService(notificationRepo NotificationRepository, broker Publisher, storeInDatabase bool) *NotificationService {
	return &NotificationService{
		notificationRepo: notificationRepo,
		broker:           broker,
		storeInDatabase:  storeInDatabase,
	}
}

// Notify delivers a message on every enabled channel. Broker failures are logged only.
func (s *NotificationService) Notify(ctx context.Context, userID int64, kind, title, body string) error {
	n := &entity.Notification{
		UserID:    userID,
		Type:      kind,
		Title:     title,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}

	if s.storeInDatabase {
		if err := s.notificationRepo.CreateNotification(ctx, n); err != nil {
			return err
		}
	}

	if s.broker != nil {
		if err := s.broker.Publish(ctx, fmt.Sprintf("notification.%s.%d", kind, userID), n); err != nil {
			logger.Error().Err(err).Msgf("Error publishing notification %s for user %d", kind, userID)
		}
	}
	return nil
}

// NotifyOrderEvent turns an order status change into a user notification.
func (s *NotificationService) NotifyOrderEvent(ctx context.Context, event entity.OrderEvent) error {
	var title, body string
	switch event.Status {
	case entity.OrderPending:
		title = "Order received"
		body = fmt.Sprintf("We received order %s. It will ship once payment is confirmed.", event.OrderNumber)
	case entity.OrderProcessing:
		title = "Order confirmed"
		body = fmt.Sprintf("Order %s is paid and being prepared.", event.OrderNumber)
	case entity.OrderShipped:
		title = "Order shipped"
		body = fmt.Sprintf("Order %s is on its way.", event.OrderNumber)
	case entity.OrderDelivered:
		title = "Order delivered"
		body = fmt.Sprintf("Order %s was delivered.", event.OrderNumber)
	case entity.OrderCancelled:
		title = "Order cancelled"
		body = fmt.Sprintf("Order %s was cancelled.", event.OrderNumber)
	default:
		return fmt.Errorf("unknown order status %q", event.Status)
	}
	return s.Notify(ctx, event.UserID, "order."+string(event.Status), title, body)
}

func (s *NotificationService) List(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*entity.Notification, error) {
	limit = normalizeLimit(limit, defaultNotificationLimit, maxNotificationLimit)
	return s.notificationRepo.GetNotifications(ctx, userID, unreadOnly, limit)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.notificationRepo.UnreadCount(ctx, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id int64) error {
	return translate(s.notificationRepo.MarkRead(ctx, userID, id))
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID int64) error {
	return s.notificationRepo.MarkAllRead(ctx, userID)
}
