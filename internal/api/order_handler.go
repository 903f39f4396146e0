package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"smartmart/internal/entity"
	"smartmart/internal/repository"
	"smartmart/internal/service"
)

type OrderHandler struct {
	checkoutService CheckoutService
	orderService    OrderService
}

func NewOrderHandler(checkoutService CheckoutService, orderService OrderService) *OrderHandler {
	return &OrderHandler{checkoutService: checkoutService, orderService: orderService}
}

// Checkout places an order from the user's cart --> POST /api/checkout
func (h *OrderHandler) Checkout(c echo.Context) error {
	req := service.CheckoutRequest{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}
	claims := currentClaims(c)
	req.UserID = claims.UserID
	req.Email = claims.Email
	req.IdempotencyKey = c.Request().Header.Get("Idempotency-Key")

	order, err := h.checkoutService.Checkout(c.Request().Context(), req)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, order)
}

func orderFilter(c echo.Context) repository.OrderFilter {
	return repository.OrderFilter{
		Status: entity.OrderStatus(c.QueryParam("status")),
		Limit:  queryInt(c, "limit"),
		Offset: queryInt(c, "offset"),
	}
}

// ListMine --> GET /api/orders
func (h *OrderHandler) ListMine(c echo.Context) error {
	orders, err := h.orderService.ListForUser(c.Request().Context(), currentUserID(c), orderFilter(c))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, orders)
}

// GetMine --> GET /api/orders/:id
func (h *OrderHandler) GetMine(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	order, err := h.orderService.GetForUser(c.Request().Context(), currentUserID(c), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// CancelMine --> POST /api/orders/:id/cancel
func (h *OrderHandler) CancelMine(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	order, err := h.orderService.CancelForUser(c.Request().Context(), currentUserID(c), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// List --> GET /admin/orders
func (h *OrderHandler) List(c echo.Context) error {
	orders, err := h.orderService.List(c.Request().Context(), orderFilter(c))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, orders)
}

// Get --> GET /admin/orders/:id
func (h *OrderHandler) Get(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	order, err := h.orderService.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// UpdateStatus --> PUT /admin/orders/:id/status
func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	req := struct {
		Status entity.OrderStatus `json:"status"`
	}{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	order, err := h.orderService.UpdateStatus(c.Request().Context(), id, req.Status)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// UpdatePaymentStatus --> PUT /admin/orders/:id/payment-status
func (h *OrderHandler) UpdatePaymentStatus(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	req := struct {
		PaymentStatus entity.PaymentStatus `json:"payment_status"`
	}{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	order, err := h.orderService.UpdatePaymentStatus(c.Request().Context(), id, req.PaymentStatus)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}
