package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"smartmart/internal/service"
)

type UserHandler struct {
	userService UserService
	cartService CartService
}

func NewUserHandler(userService UserService, cartService CartService) *UserHandler {
	return &UserHandler{userService: userService, cartService: cartService}
}

// Register creates a customer account --> POST /register
func (h *UserHandler) Register(c echo.Context) error {
	req := service.RegisterRequest{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	user, err := h.userService.Register(c.Request().Context(), req)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, user)
}

// Login issues a token and moves the guest cart onto the account --> POST /login
func (h *UserHandler) Login(c echo.Context) error {
	ctx := c.Request().Context()

	login := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{}
	if err := c.Bind(&login); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	token, user, err := h.userService.Login(ctx, login.Email, login.Password)
	if err != nil {
		return httpError(c, err)
	}

	if cookie, err := c.Cookie(cartSessionCookie); err == nil && cookie.Value != "" {
		if err := h.cartService.MergeGuestCart(ctx, cookie.Value, user.ID); err != nil {
			logger.Error().Err(err).Msgf("Error merging guest cart into user %d", user.ID)
		} else {
			c.SetCookie(&http.Cookie{Name: cartSessionCookie, Value: "", Path: "/", MaxAge: -1})
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"token": token, "user": user})
}

// Logout revokes the current session --> POST /api/logout
func (h *UserHandler) Logout(c echo.Context) error {
	if err := h.userService.Logout(c.Request().Context(), currentClaims(c)); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the profile with order totals --> GET /api/me
func (h *UserHandler) Me(c echo.Context) error {
	profile, err := h.userService.Profile(c.Request().Context(), currentUserID(c))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, profile)
}

// List --> GET /admin/users
func (h *UserHandler) List(c echo.Context) error {
	users, err := h.userService.List(c.Request().Context(), queryInt(c, "limit"), queryInt(c, "offset"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, users)
}
