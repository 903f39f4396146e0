package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type CartHandler struct {
	cartService CartService
}

func NewCartHandler(cartService CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

// Get --> GET /cart
func (h *CartHandler) Get(c echo.Context) error {
	cart, err := h.cartService.Get(c.Request().Context(), cartOwner(c))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}

// AddItem --> POST /cart/items
func (h *CartHandler) AddItem(c echo.Context) error {
	req := struct {
		ProductID int64  `json:"product_id"`
		VariantID *int64 `json:"variant_id"`
		Quantity  int    `json:"quantity"`
	}{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	cart, err := h.cartService.AddItem(c.Request().Context(), cartOwner(c), req.ProductID, req.VariantID, req.Quantity)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}

// UpdateItem --> PUT /cart/items/:id
func (h *CartHandler) UpdateItem(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	req := struct {
		Quantity int `json:"quantity"`
	}{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	cart, err := h.cartService.UpdateItem(c.Request().Context(), cartOwner(c), id, req.Quantity)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}

// RemoveItem --> DELETE /cart/items/:id
func (h *CartHandler) RemoveItem(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	cart, err := h.cartService.RemoveItem(c.Request().Context(), cartOwner(c), id)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, cart)
}

// Clear --> DELETE /cart
func (h *CartHandler) Clear(c echo.Context) error {
	if err := h.cartService.Clear(c.Request().Context(), cartOwner(c)); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
