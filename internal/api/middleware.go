package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"smartmart/internal/entity"
)

const (
	claimsKey         = "claims"
	cartSessionCookie = "cart_session"
	cartSessionTTL    = 30 * 24 * time.Hour
)

func rateLimiter(limit float64, burst int) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health" || c.Path() == "/webhooks/stripe"
		},
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      rate.Limit(limit),
				Burst:     burst,
				ExpiresIn: 3 * time.Minute,
			}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
		},
	})
}

// requireAuth verifies the bearer token and checks that its session was not revoked.
func requireAuth(secret string, users UserService) []echo.MiddlewareFunc {
	verify := echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(secret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(entity.JwtCustomClaims)
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		},
	})

	session := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := c.Get("user").(*jwt.Token)
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}
			claims, ok := token.Claims.(*entity.JwtCustomClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}
			if err := users.ValidateSession(c.Request().Context(), claims); err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Session expired"})
			}
			c.Set(claimsKey, claims)
			return next(c)
		}
	}
	return []echo.MiddlewareFunc{verify, session}
}

func requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims := currentClaims(c)
		if claims == nil || claims.Role != entity.RoleAdmin {
			return c.JSON(http.StatusForbidden, map[string]string{"error": "Admin access required"})
		}
		return next(c)
	}
}

// optionalAuth identifies the user on public routes when a valid bearer token is
// sent. Invalid tokens are ignored.
func optionalAuth(secret string, users UserService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw := strings.TrimPrefix(header, "Bearer ")
			if header == "" || raw == header {
				return next(c)
			}
			claims := new(entity.JwtCustomClaims)
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(secret), nil
			})
			if err == nil && token.Valid && users.ValidateSession(c.Request().Context(), claims) == nil {
				c.Set(claimsKey, claims)
			}
			return next(c)
		}
	}
}

func currentClaims(c echo.Context) *entity.JwtCustomClaims {
	claims, _ := c.Get(claimsKey).(*entity.JwtCustomClaims)
	return claims
}

// currentUserID is only called behind requireAuth.
func currentUserID(c echo.Context) int64 {
	return currentClaims(c).UserID
}

// cartOwner resolves the cart of the signed in user, or of the guest session cookie,
// issuing a new cookie when the guest has none.
func cartOwner(c echo.Context) entity.CartOwner {
	if claims := currentClaims(c); claims != nil {
		id := claims.UserID
		return entity.CartOwner{UserID: &id}
	}
	if cookie, err := c.Cookie(cartSessionCookie); err == nil {
		if _, err := uuid.Parse(cookie.Value); err == nil {
			return entity.CartOwner{SessionID: cookie.Value}
		}
	}

	sessionID := uuid.NewString()
	c.SetCookie(&http.Cookie{
		Name:     cartSessionCookie,
		Value:    sessionID,
		Path:     "/",
		Expires:  time.Now().Add(cartSessionTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return entity.CartOwner{SessionID: sessionID}
}
