package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"smartmart/internal/entity"
	"smartmart/internal/payment"
	"smartmart/internal/repository"
)

const (
	idempotencyTTL        = 24 * time.Hour
	stockCheckConcurrency = 8
)

type CheckoutRequest struct {
	UserID          int64
	Email           string
	PaymentMethod   string `json:"payment_method"`
	PaymentToken    string `json:"payment_token"`
	CouponCode      string `json:"coupon_code"`
	ShippingAddress string `json:"shipping_address"`
	Notes           string `json:"notes"`
	IdempotencyKey  string
}

type CheckoutService struct {
	store       TxRunner
	cartRepo    CartRepository
	productRepo ProductRepository
	pricing     *PricingService
	gateways    Gateways
	rdb         *redis.Client
	orderEvents Publisher
	currency    string
}

func NewCheckoutService(store TxRunner, cartRepo CartRepository, productRepo ProductRepository, pricing *PricingService,
	gateways Gateways, rdb *redis.Client, orderEvents Publisher, currency string) *CheckoutService {
	return &CheckoutService{
		store:       store,
		cartRepo:    cartRepo,
		productRepo: productRepo,
		pricing:     pricing,
		gateways:    gateways,
		rdb:         rdb,
		orderEvents: orderEvents,
		currency:    currency,
	}
}

func newOrderNumber() string {
	return fmt.Sprintf("SM-%s-%s", time.Now().UTC().Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}

// Checkout turns the user's cart into an order. Stock, coupon usage, the payment
// call and clearing the cart happen in one transaction; a declined payment rolls
// everything back.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*entity.Order, error) {
	owner := entity.CartOwner{UserID: &req.UserID}
	cart, err := s.cartRepo.GetCartByOwner(ctx, owner)
	if err != nil {
		if translate(err) == ErrNotFound {
			return nil, ErrEmptyCart
		}
		return nil, err
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	gateway, ok := s.gateways.Get(req.PaymentMethod)
	if !ok {
		return nil, invalid("payment_method", "is not available")
	}
	if strings.TrimSpace(req.ShippingAddress) == "" {
		return nil, invalid("shipping_address", "is required")
	}

	if req.IdempotencyKey != "" {
		if err := s.claimIdempotencyKey(ctx, req.IdempotencyKey); err != nil {
			return nil, err
		}
	}

	order, err := s.placeOrder(ctx, req, cart, gateway)
	if err != nil {
		if req.IdempotencyKey != "" {
			s.releaseIdempotencyKey(ctx, req.IdempotencyKey)
		}
		return nil, err
	}

	s.publish(ctx, order, "created")
	return order, nil
}

func (s *CheckoutService) placeOrder(ctx context.Context, req CheckoutRequest, cart *entity.Cart, gateway payment.Gateway) (*entity.Order, error) {
	if err := s.validateStock(ctx, cart); err != nil {
		return nil, err
	}

	cart.Recalculate()
	quote, err := s.pricing.Quote(ctx, cart.Subtotal, req.CouponCode)
	if err != nil {
		return nil, err
	}

	order := &entity.Order{
		OrderNumber:     newOrderNumber(),
		UserID:          req.UserID,
		Status:          entity.OrderPending,
		PaymentStatus:   entity.PaymentPending,
		PaymentMethod:   gateway.Name(),
		Subtotal:        quote.Subtotal,
		Tax:             quote.Tax,
		Shipping:        quote.Shipping,
		Discount:        quote.Discount,
		CouponCode:      quote.CouponCode,
		ShippingAddress: req.ShippingAddress,
		Notes:           req.Notes,
	}
	order.RecalculateTotal()
	for _, item := range cart.Items {
		order.Items = append(order.Items, entity.OrderItem{
			ProductID:   item.ProductID,
			VariantID:   item.VariantID,
			ProductName: item.Name,
			SKU:         item.SKU,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
			TotalPrice:  item.TotalPrice,
		})
	}

	var charged *payment.Result
	err = s.store.ExecTx(ctx, func(tx repository.Tx) error {
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		for _, item := range order.Items {
			if err := tx.DecrementStock(ctx, item.ProductID, item.VariantID, item.Quantity); err != nil {
				if errors.Is(err, repository.ErrInsufficientStock) {
					return fmt.Errorf("%w: %s", ErrInsufficientStock, item.ProductName)
				}
				return err
			}
		}

		if order.CouponCode != "" {
			if err := tx.RedeemCoupon(ctx, order.CouponCode); err != nil {
				return translate(err)
			}
		}

		result, err := gateway.Charge(ctx, payment.Charge{
			OrderNumber:   order.OrderNumber,
			Amount:        order.Total,
			Currency:      s.currency,
			Token:         req.PaymentToken,
			CustomerEmail: req.Email,
		})
		if err != nil {
			return paymentError(err)
		}
		charged = &result

		if result.Paid {
			order.Status = entity.OrderProcessing
			order.PaymentStatus = entity.PaymentPaid
		}
		order.PaymentReference = result.Reference
		if err := tx.UpdateOrderPayment(ctx, order.ID, order.Status, order.PaymentStatus, order.PaymentReference); err != nil {
			return err
		}

		return tx.ClearCart(ctx, cart.ID)
	})
	if err != nil {
		if charged != nil && charged.Paid {
			logger.Error().Err(err).Msgf("Order %s failed after payment %s was taken, refunding", order.OrderNumber, charged.Reference)
			if refundErr := gateway.Refund(ctx, charged.Reference, order.Total, s.currency); refundErr != nil {
				logger.Error().Err(refundErr).Msgf("Refund of payment %s for order %s failed, manual reconciliation required",
					charged.Reference, order.OrderNumber)
			}
		}
		if !errors.Is(err, ErrPaymentFailed) && !errors.Is(err, ErrInsufficientStock) && !errors.Is(err, ErrInvalidCoupon) {
			logger.Error().Err(err).Msgf("Error placing order %s", order.OrderNumber)
		}
		return nil, err
	}

	return order, nil
}

// validateStock checks every line against current stock concurrently and reports
// all shortages at once. Lines are repriced from the catalog as they are checked.
func (s *CheckoutService) validateStock(ctx context.Context, cart *entity.Cart) error {
	var (
		mu     sync.Mutex
		fields = map[string]string{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(stockCheckConcurrency)
	for i, item := range cart.Items {
		i, item := i, item
		g.Go(func() error {
			product, err := s.productRepo.GetProductByID(gctx, item.ProductID)
			var problem string
			switch {
			case err != nil && translate(err) == ErrNotFound:
				problem = fmt.Sprintf("%s is no longer available", item.Name)
			case err != nil:
				return err
			case !product.IsActive:
				problem = fmt.Sprintf("%s is no longer available", item.Name)
			case !product.InStock(item.VariantID, item.Quantity):
				problem = fmt.Sprintf("only %d of %s available", availableQuantity(product, item.VariantID), item.Name)
			default:
				price, sku, ok := product.PriceFor(item.VariantID)
				if !ok {
					problem = fmt.Sprintf("%s is no longer available", item.Name)
					break
				}
				cart.Items[i].UnitPrice = price
				cart.Items[i].SKU = sku
				return nil
			}
			mu.Lock()
			fields[fmt.Sprintf("items.%d", i)] = problem
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotent-key:%s", key)
}

func (s *CheckoutService) claimIdempotencyKey(ctx context.Context, key string) error {
	ok, err := s.rdb.SetNX(ctx, idempotencyKey(key), "checkout", idempotencyTTL).Result()
	if err != nil {
		logger.Error().Err(err).Msgf("Error checking idempotency key %s", key)
		return err
	}
	if !ok {
		return ErrIdempotencyConflict
	}
	return nil
}

func (s *CheckoutService) releaseIdempotencyKey(ctx context.Context, key string) {
	if err := s.rdb.Del(ctx, idempotencyKey(key)).Err(); err != nil {
		logger.Error().Err(err).Msgf("Error releasing idempotency key %s", key)
	}
}

func (s *CheckoutService) publish(ctx context.Context, order *entity.Order, event string) {
	publishOrderEvent(ctx, s.orderEvents, order, event)
}

func publishOrderEvent(ctx context.Context, publisher Publisher, order *entity.Order, event string) {
	if publisher == nil {
		return
	}
	key := fmt.Sprintf("order.%s.%d", event, order.ID)
	err := publisher.Publish(ctx, key, entity.OrderEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      order.Status,
		Total:       order.Total,
	})
	if err != nil {
		logger.Error().Err(err).Msgf("Error publishing %s", key)
	}
}
