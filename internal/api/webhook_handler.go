package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"smartmart/internal/webhook"
)

const maxWebhookBody = 1 << 16

type StripeWebhookHandler struct {
	handler WebhookHandler
}

func NewStripeWebhookHandler(handler WebhookHandler) *StripeWebhookHandler {
	return &StripeWebhookHandler{handler: handler}
}

// Handle --> POST /webhooks/stripe
// Non-2xx answers other than 400 make Stripe retry the delivery.
func (h *StripeWebhookHandler) Handle(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return badRequest(c, "Invalid payload")
	}

	err = h.handler.Handle(c.Request().Context(), payload, c.Request().Header.Get("Stripe-Signature"))
	if errors.Is(err, webhook.ErrInvalidPayload) {
		return badRequest(c, "Invalid payload")
	}
	if err != nil {
		logger.Error().Err(err).Msg("Stripe webhook failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Webhook processing failed"})
	}
	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}
