package payment

import (
	"context"
	"strings"

	"github.com/plutov/paypal/v4"
	"github.com/shopspring/decimal"
)

// PayPal captures orders the buyer already approved on PayPal's side.
type PayPal struct {
	client *paypal.Client
}

func NewPayPal(clientID, secret string, sandbox bool) (*PayPal, error) {
	base := paypal.APIBaseLive
	if sandbox {
		base = paypal.APIBaseSandBox
	}
	return newPayPal(clientID, secret, base)
}

func newPayPal(clientID, secret, base string) (*PayPal, error) {
	c, err := paypal.NewClient(clientID, secret, base)
	if err != nil {
		return nil, err
	}
	return &PayPal{client: c}, nil
}

func (p *PayPal) Name() string { return MethodPayPal }

// Charge captures the approved PayPal order named by the token. The approved
// amount is checked before capture and the captured amount after it; a capture
// that does not match the order total is refunded.
func (p *PayPal) Charge(ctx context.Context, charge Charge) (Result, error) {
	if charge.Token == "" {
		return Result{}, declined("an approved PayPal order is required")
	}

	if _, err := p.client.GetAccessToken(ctx); err != nil {
		logger.Error().Err(err).Msg("PayPal authentication failed")
		return Result{}, declined("PayPal is currently unavailable")
	}

	approved, err := p.client.GetOrder(ctx, charge.Token)
	if err != nil {
		logger.Error().Err(err).Msgf("PayPal order lookup failed for order %s", charge.OrderNumber)
		return Result{}, declined("PayPal order could not be found")
	}
	if approved.Status != "APPROVED" {
		return Result{}, declined("PayPal order is %s, not approved", approved.Status)
	}
	if len(approved.PurchaseUnits) != 1 || !amountMatches(approved.PurchaseUnits[0].Amount, charge) {
		logger.Warn().Msgf("PayPal order %s does not match the total of order %s", approved.ID, charge.OrderNumber)
		return Result{}, declined("PayPal order amount does not match the order total")
	}

	resp, err := p.client.CaptureOrder(ctx, charge.Token, paypal.CaptureOrderRequest{})
	if err != nil {
		logger.Error().Err(err).Msgf("PayPal capture failed for order %s", charge.OrderNumber)
		return Result{}, declined("PayPal payment could not be captured")
	}
	if resp.Status != "COMPLETED" {
		return Result{}, declined("PayPal payment ended in status %s", resp.Status)
	}

	var capture *paypal.CaptureAmount
	for _, unit := range resp.PurchaseUnits {
		if unit.Payments != nil && len(unit.Payments.Captures) > 0 {
			capture = &unit.Payments.Captures[0]
			break
		}
	}
	if capture == nil {
		logger.Error().Msgf("PayPal capture %s of order %s has no capture record", resp.ID, charge.OrderNumber)
		return Result{}, declined("PayPal payment could not be captured")
	}
	if !amountMatches(capture.Amount, charge) {
		logger.Error().Msgf("PayPal capture %s does not match the total of order %s, refunding", capture.ID, charge.OrderNumber)
		if _, err := p.client.RefundCapture(ctx, capture.ID, paypal.RefundCaptureRequest{}); err != nil {
			logger.Error().Err(err).Msgf("Error refunding PayPal capture %s", capture.ID)
		}
		return Result{}, declined("PayPal captured amount does not match the order total")
	}
	return Result{Reference: capture.ID, Paid: true}, nil
}

func (p *PayPal) Refund(ctx context.Context, reference string, amount decimal.Decimal, currency string) error {
	if _, err := p.client.GetAccessToken(ctx); err != nil {
		return err
	}
	_, err := p.client.RefundCapture(ctx, reference, paypal.RefundCaptureRequest{
		Amount: &paypal.Money{Currency: strings.ToUpper(currency), Value: amount.StringFixed(2)},
	})
	return err
}

func amountMatches(amount *paypal.PurchaseUnitAmount, charge Charge) bool {
	if amount == nil || !strings.EqualFold(amount.Currency, charge.Currency) {
		return false
	}
	value, err := decimal.NewFromString(amount.Value)
	return err == nil && value.Equal(charge.Amount.Round(2))
}
