package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type SubscriptionHandler struct {
	subscriptionService SubscriptionService
}

func NewSubscriptionHandler(subscriptionService SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptionService: subscriptionService}
}

// Plans --> GET /plans
func (h *SubscriptionHandler) Plans(c echo.Context) error {
	plans, err := h.subscriptionService.Plans(c.Request().Context())
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, plans)
}

// ListMine --> GET /api/subscriptions
func (h *SubscriptionHandler) ListMine(c echo.Context) error {
	subs, err := h.subscriptionService.ListForUser(c.Request().Context(), currentUserID(c))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, subs)
}

// Subscribe --> POST /api/subscriptions
func (h *SubscriptionHandler) Subscribe(c echo.Context) error {
	req := struct {
		PlanID        int64  `json:"plan_id"`
		PaymentMethod string `json:"payment_method"`
	}{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	sub, err := h.subscriptionService.Subscribe(c.Request().Context(), currentUserID(c), req.PlanID, req.PaymentMethod)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, sub)
}

// Boxes --> GET /api/subscriptions/:id/boxes
func (h *SubscriptionHandler) Boxes(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	boxes, err := h.subscriptionService.Boxes(c.Request().Context(), currentUserID(c), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, boxes)
}

// Pause --> POST /api/subscriptions/:id/pause
func (h *SubscriptionHandler) Pause(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	sub, err := h.subscriptionService.Pause(c.Request().Context(), currentUserID(c), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, sub)
}

// Resume --> POST /api/subscriptions/:id/resume
func (h *SubscriptionHandler) Resume(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	sub, err := h.subscriptionService.Resume(c.Request().Context(), currentUserID(c), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, sub)
}

// Cancel --> POST /api/subscriptions/:id/cancel?immediately=true
func (h *SubscriptionHandler) Cancel(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	atPeriodEnd := c.QueryParam("immediately") != "true"
	sub, err := h.subscriptionService.Cancel(c.Request().Context(), currentUserID(c), id, atPeriodEnd)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, sub)
}

// List --> GET /admin/subscriptions
func (h *SubscriptionHandler) List(c echo.Context) error {
	subs, err := h.subscriptionService.List(c.Request().Context())
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, subs)
}
