package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"smartmart/internal/entity"
)

type CatalogHandler struct {
	productService  ProductService
	categoryService CategoryService
	recommendations RecommendationService
}

func NewCatalogHandler(productService ProductService, categoryService CategoryService, recommendations RecommendationService) *CatalogHandler {
	return &CatalogHandler{
		productService:  productService,
		categoryService: categoryService,
		recommendations: recommendations,
	}
}

// ListProducts --> GET /products?category_id=&q=&limit=&offset=
func (h *CatalogHandler) ListProducts(c echo.Context) error {
	filter := entity.ProductFilter{
		Search:     c.QueryParam("q"),
		ActiveOnly: true,
		Limit:      queryInt(c, "limit"),
		Offset:     queryInt(c, "offset"),
	}
	if id := int64(queryInt(c, "category_id")); id > 0 {
		filter.CategoryID = &id
	}

	products, err := h.productService.ListProducts(c.Request().Context(), filter)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, products)
}

// GetProduct --> GET /products/:id
// Views of signed in users feed the recommendations.
func (h *CatalogHandler) GetProduct(c echo.Context) error {
	ctx := c.Request().Context()
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}

	product, err := h.productService.GetProduct(ctx, id)
	if err != nil {
		return httpError(c, err)
	}
	if !product.IsActive && !isAdmin(c) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not found"})
	}

	if claims := currentClaims(c); claims != nil {
		if err := h.recommendations.RecordView(ctx, claims.UserID, id); err != nil {
			logger.Error().Err(err).Msgf("Error recording view of product %d", id)
		}
	}
	return c.JSON(http.StatusOK, product)
}

// Search --> GET /search?q=
func (h *CatalogHandler) Search(c echo.Context) error {
	products, err := h.productService.Search(c.Request().Context(), c.QueryParam("q"), queryInt(c, "limit"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, products)
}

// Categories --> GET /categories
func (h *CatalogHandler) Categories(c echo.Context) error {
	tree, err := h.categoryService.Tree(c.Request().Context())
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, tree)
}

// CreateProduct --> POST /admin/products
func (h *CatalogHandler) CreateProduct(c echo.Context) error {
	product := entity.Product{}
	if err := c.Bind(&product); err != nil {
		return badRequest(c, "Invalid request payload")
	}
	product.ID = 0

	created, err := h.productService.CreateProduct(c.Request().Context(), &product)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// UpdateProduct --> PUT /admin/products/:id
func (h *CatalogHandler) UpdateProduct(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	product := entity.Product{}
	if err := c.Bind(&product); err != nil {
		return badRequest(c, "Invalid request payload")
	}
	product.ID = id

	updated, err := h.productService.UpdateProduct(c.Request().Context(), &product)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// DeleteProduct --> DELETE /admin/products/:id
func (h *CatalogHandler) DeleteProduct(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	if err := h.productService.DeleteProduct(c.Request().Context(), id); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// WarmCache --> POST /admin/products/warm-cache
func (h *CatalogHandler) WarmCache(c echo.Context) error {
	warmed, err := h.productService.WarmCache(c.Request().Context())
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"warmed": warmed})
}

// Reindex --> POST /admin/products/reindex
func (h *CatalogHandler) Reindex(c echo.Context) error {
	indexed, err := h.productService.Reindex(c.Request().Context())
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"indexed": indexed})
}

// CreateCategory --> POST /admin/categories
func (h *CatalogHandler) CreateCategory(c echo.Context) error {
	category := entity.Category{}
	if err := c.Bind(&category); err != nil {
		return badRequest(c, "Invalid request payload")
	}
	category.ID = 0

	created, err := h.categoryService.Create(c.Request().Context(), &category)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// UpdateCategory --> PUT /admin/categories/:id
func (h *CatalogHandler) UpdateCategory(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	category := entity.Category{}
	if err := c.Bind(&category); err != nil {
		return badRequest(c, "Invalid request payload")
	}
	category.ID = id

	updated, err := h.categoryService.Update(c.Request().Context(), &category)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// DeleteCategory --> DELETE /admin/categories/:id
func (h *CatalogHandler) DeleteCategory(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	if err := h.categoryService.Delete(c.Request().Context(), id); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func isAdmin(c echo.Context) bool {
	claims := currentClaims(c)
	return claims != nil && claims.Role == entity.RoleAdmin
}
