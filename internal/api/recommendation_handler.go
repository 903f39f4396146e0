package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type RecommendationHandler struct {
	recommendations RecommendationService
}

func NewRecommendationHandler(recommendations RecommendationService) *RecommendationHandler {
	return &RecommendationHandler{recommendations: recommendations}
}

// ForUser --> GET /api/recommendations
func (h *RecommendationHandler) ForUser(c echo.Context) error {
	products, err := h.recommendations.ForUser(c.Request().Context(), currentUserID(c), queryInt(c, "limit"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, products)
}

// ForProduct --> GET /products/:id/recommendations
func (h *RecommendationHandler) ForProduct(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	products, err := h.recommendations.ForProduct(c.Request().Context(), id, queryInt(c, "limit"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, products)
}

// Trending --> GET /recommendations/trending
func (h *RecommendationHandler) Trending(c echo.Context) error {
	products, err := h.recommendations.Trending(c.Request().Context(), queryInt(c, "limit"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, products)
}
