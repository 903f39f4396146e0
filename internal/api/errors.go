package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"smartmart/internal/service"
)

var logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

var conflicts = []error{
	service.ErrInsufficientStock,
	service.ErrInvalidTransition,
	service.ErrDuplicateRequest,
	service.ErrInvalidCoupon,
	service.ErrCircularCategory,
	service.ErrIdempotencyConflict,
	service.ErrEmailTaken,
}

// httpStatus maps service errors onto status codes.
func httpStatus(err error) int {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, service.ErrEmptyCart):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrPaymentFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	}
	for _, target := range conflicts {
		if errors.Is(err, target) {
			return http.StatusConflict
		}
	}
	return http.StatusInternalServerError
}

// httpError renders err. Unexpected errors are logged and hidden from the client.
func httpError(c echo.Context, err error) error {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusUnprocessableEntity, map[string]interface{}{"errors": verr.Fields})
	}

	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		logger.Error().Err(err).Msgf("%s %s failed", c.Request().Method, c.Path())
		return c.JSON(code, map[string]string{"error": "Internal server error"})
	}
	return c.JSON(code, map[string]string{"error": err.Error()})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}
