package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

type NotificationHandler struct {
	notificationService NotificationService
}

func NewNotificationHandler(notificationService NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// List --> GET /api/notifications?unread=true
func (h *NotificationHandler) List(c echo.Context) error {
	unread := c.QueryParam("unread") == "true"
	items, err := h.notificationService.List(c.Request().Context(), currentUserID(c), unread, queryInt(c, "limit"))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// UnreadCount --> GET /api/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c echo.Context) error {
	count, err := h.notificationService.UnreadCount(c.Request().Context(), currentUserID(c))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"count": count})
}

// MarkRead --> POST /api/notifications/:id/read
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	if err := h.notificationService.MarkRead(c.Request().Context(), currentUserID(c), id); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// MarkAllRead --> POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	if err := h.notificationService.MarkAllRead(c.Request().Context(), currentUserID(c)); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
