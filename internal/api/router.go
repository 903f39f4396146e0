package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type RouterConfig struct {
	JWTSecret string
	RateLimit float64
	RateBurst int
}

// Handlers groups every handler the router mounts.
type Handlers struct {
	Users           *UserHandler
	Catalog         *CatalogHandler
	Carts           *CartHandler
	Orders          *OrderHandler
	Recommendations *RecommendationHandler
	Subscriptions   *SubscriptionHandler
	Notifications   *NotificationHandler
	GDPR            *GDPRHandler
	Settings        *SettingHandler
	StripeWebhook   *StripeWebhookHandler
}

func NewRouter(h Handlers, users UserService, cfg RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	if cfg.RateLimit > 0 {
		e.Use(rateLimiter(cfg.RateLimit, cfg.RateBurst))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": "smartmart",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	identify := optionalAuth(cfg.JWTSecret, users)
	e.POST("/register", h.Users.Register, identify)
	e.POST("/login", h.Users.Login, identify)
	e.GET("/products", h.Catalog.ListProducts, identify)
	e.GET("/products/:id", h.Catalog.GetProduct, identify)
	e.GET("/products/:id/recommendations", h.Recommendations.ForProduct, identify)
	e.GET("/categories", h.Catalog.Categories, identify)
	e.GET("/search", h.Catalog.Search, identify)
	e.GET("/recommendations/trending", h.Recommendations.Trending, identify)
	e.GET("/plans", h.Subscriptions.Plans, identify)
	e.GET("/cart", h.Carts.Get, identify)
	e.POST("/cart/items", h.Carts.AddItem, identify)
	e.PUT("/cart/items/:id", h.Carts.UpdateItem, identify)
	e.DELETE("/cart/items/:id", h.Carts.RemoveItem, identify)
	e.DELETE("/cart", h.Carts.Clear, identify)

	e.POST("/webhooks/stripe", h.StripeWebhook.Handle)

	auth := requireAuth(cfg.JWTSecret, users)

	api := e.Group("/api", auth...)
	api.GET("/me", h.Users.Me)
	api.POST("/logout", h.Users.Logout)
	api.POST("/checkout", h.Orders.Checkout)
	api.GET("/orders", h.Orders.ListMine)
	api.GET("/orders/:id", h.Orders.GetMine)
	api.POST("/orders/:id/cancel", h.Orders.CancelMine)
	api.GET("/recommendations", h.Recommendations.ForUser)
	api.GET("/subscriptions", h.Subscriptions.ListMine)
	api.POST("/subscriptions", h.Subscriptions.Subscribe)
	api.GET("/subscriptions/:id/boxes", h.Subscriptions.Boxes)
	api.POST("/subscriptions/:id/pause", h.Subscriptions.Pause)
	api.POST("/subscriptions/:id/resume", h.Subscriptions.Resume)
	api.POST("/subscriptions/:id/cancel", h.Subscriptions.Cancel)
	api.GET("/notifications", h.Notifications.List)
	api.GET("/notifications/unread-count", h.Notifications.UnreadCount)
	api.POST("/notifications/:id/read", h.Notifications.MarkRead)
	api.POST("/notifications/read-all", h.Notifications.MarkAllRead)
	api.GET("/data-requests", h.GDPR.ListMine)
	api.POST("/data-requests", h.GDPR.Submit)
	api.GET("/data-requests/:id/download", h.GDPR.Download)

	admin := e.Group("/admin", append(auth, requireAdmin)...)
	admin.GET("/users", h.Users.List)
	admin.POST("/products", h.Catalog.CreateProduct)
	admin.PUT("/products/:id", h.Catalog.UpdateProduct)
	admin.DELETE("/products/:id", h.Catalog.DeleteProduct)
	admin.POST("/products/warm-cache", h.Catalog.WarmCache)
	admin.POST("/products/reindex", h.Catalog.Reindex)
	admin.POST("/categories", h.Catalog.CreateCategory)
	admin.PUT("/categories/:id", h.Catalog.UpdateCategory)
	admin.DELETE("/categories/:id", h.Catalog.DeleteCategory)
	admin.GET("/orders", h.Orders.List)
	admin.GET("/orders/:id", h.Orders.Get)
	admin.PUT("/orders/:id/status", h.Orders.UpdateStatus)
	admin.PUT("/orders/:id/payment-status", h.Orders.UpdatePaymentStatus)
	admin.GET("/subscriptions", h.Subscriptions.List)
	admin.GET("/settings", h.Settings.All)
	admin.GET("/settings/export", h.Settings.Export)
	admin.POST("/settings/import", h.Settings.Import)
	admin.PUT("/settings/:key", h.Settings.Set)
	admin.GET("/data-requests", h.GDPR.List)
	admin.GET("/data-requests/overdue", h.GDPR.Overdue)
	admin.PUT("/data-requests/:id", h.GDPR.Transition)

	return e
}
