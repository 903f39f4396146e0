package service

import (
	"context"
	"time"

	"smartmart/internal/entity"
	"smartmart/internal/repository"
)

const (
	defaultOrderLimit = 20
	maxOrderLimit     = 100
)

type OrderService struct {
	orderRepo   OrderRepository
	store       TxRunner
	gateways    Gateways
	orderEvents Publisher
	currency    string
}

func NewOrderService(orderRepo OrderRepository, store TxRunner, gateways Gateways, orderEvents Publisher, currency string) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		store:       store,
		gateways:    gateways,
		orderEvents: orderEvents,
		currency:    currency,
	}
}

func (s *OrderService) List(ctx context.Context, filter repository.OrderFilter) ([]*entity.Order, error) {
	filter.Limit = normalizeLimit(filter.Limit, defaultOrderLimit, maxOrderLimit)
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalid("status", "is not a valid order status")
	}
	return s.orderRepo.GetOrders(ctx, filter, false)
}

func (s *OrderService) ListForUser(ctx context.Context, userID int64, filter repository.OrderFilter) ([]*entity.Order, error) {
	filter.UserID = &userID
	return s.List(ctx, filter)
}

func (s *OrderService) Get(ctx context.Context, id int64) (*entity.Order, error) {
	order, err := s.orderRepo.GetOrderByID(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return order, nil
}

// GetForUser returns the order only when it belongs to userID.
func (s *OrderService) GetForUser(ctx context.Context, userID, id int64) (*entity.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrForbidden
	}
	return order, nil
}

// UpdateStatus moves an order through the state machine. Cancelling goes through
// Cancel so stock and payment are unwound.
func (s *OrderService) UpdateStatus(ctx context.Context, id int64, status entity.OrderStatus) (*entity.Order, error) {
	if !status.Valid() {
		return nil, invalid("status", "is not a valid order status")
	}
	if status == entity.OrderCancelled {
		return s.Cancel(ctx, id)
	}

	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(status) {
		return nil, ErrInvalidTransition
	}

	err = s.store.ExecTx(ctx, func(tx repository.Tx) error {
		return tx.UpdateOrderStatus(ctx, order.ID, order.Status, status, nil)
	})
	if err != nil {
		logger.Error().Err(err).Msgf("Error updating order %d to %s", id, status)
		return nil, translate(err)
	}

	order.Status = status
	publishOrderEvent(ctx, s.orderEvents, order, string(status))
	return order, nil
}

// CancelForUser cancels an order owned by userID.
func (s *OrderService) CancelForUser(ctx context.Context, userID, id int64) (*entity.Order, error) {
	if _, err := s.GetForUser(ctx, userID, id); err != nil {
		return nil, err
	}
	return s.Cancel(ctx, id)
}

// Cancel marks the order cancelled, restores stock and refunds a captured payment,
// all in one transaction.
func (s *OrderService) Cancel(ctx context.Context, id int64) (*entity.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.CanBeCancelled() {
		return nil, ErrInvalidTransition
	}

	now := time.Now().UTC()
	refund := order.PaymentStatus == entity.PaymentPaid
	err = s.store.ExecTx(ctx, func(tx repository.Tx) error {
		if err := tx.UpdateOrderStatus(ctx, order.ID, order.Status, entity.OrderCancelled, &now); err != nil {
			return err
		}
		for _, item := range order.Items {
			if err := tx.IncrementStock(ctx, item.ProductID, item.VariantID, item.Quantity); err != nil {
				return err
			}
		}
		if !refund {
			return nil
		}

		gateway, ok := s.gateways.Get(order.PaymentMethod)
		if !ok {
			logger.Warn().Msgf("Payment method %s of order %s is disabled, refund must be issued manually",
				order.PaymentMethod, order.OrderNumber)
			return nil
		}
		if err := tx.UpdateOrderPayment(ctx, order.ID, entity.OrderCancelled, entity.PaymentRefunded, order.PaymentReference); err != nil {
			return err
		}
		return gateway.Refund(ctx, order.PaymentReference, order.Total, s.currency)
	})
	if err != nil {
		logger.Error().Err(err).Msgf("Error cancelling order %s", order.OrderNumber)
		return nil, translate(err)
	}

	order.Status = entity.OrderCancelled
	order.CancelledAt = &now
	if refund {
		if _, ok := s.gateways.Get(order.PaymentMethod); ok {
			order.PaymentStatus = entity.PaymentRefunded
		}
	}
	publishOrderEvent(ctx, s.orderEvents, order, string(entity.OrderCancelled))
	return order, nil
}

// UpdatePaymentStatus is the admin override of an order's payment status.
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, id int64, status entity.PaymentStatus) (*entity.Order, error) {
	if !status.Valid() {
		return nil, invalid("payment_status", "is not a valid payment status")
	}
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.orderRepo.UpdateOrderPayment(ctx, order.ID, order.Status, status, order.PaymentReference); err != nil {
		return nil, translate(err)
	}
	order.PaymentStatus = status
	return order, nil
}

// ReconcilePayment applies a provider notification about a payment reference to the
// order that carries it. Unknown references and settled orders are ignored.
func (s *OrderService) ReconcilePayment(ctx context.Context, reference string, paid bool) error {
	order, err := s.orderRepo.GetOrderByPaymentReference(ctx, reference)
	if err != nil {
		if translate(err) == ErrNotFound {
			logger.Info().Msgf("No order for payment reference %s", reference)
			return nil
		}
		return err
	}
	if order.PaymentStatus != entity.PaymentPending {
		return nil
	}

	status, paymentStatus := order.Status, entity.PaymentFailed
	if paid {
		paymentStatus = entity.PaymentPaid
		if status == entity.OrderPending {
			status = entity.OrderProcessing
		}
	}
	if err := s.orderRepo.UpdateOrderPayment(ctx, order.ID, status, paymentStatus, reference); err != nil {
		return translate(err)
	}

	if status != order.Status {
		order.Status = status
		order.PaymentStatus = paymentStatus
		publishOrderEvent(ctx, s.orderEvents, order, string(status))
	}
	return nil
}
