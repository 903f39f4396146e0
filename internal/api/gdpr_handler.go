package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"smartmart/internal/entity"
)

type GDPRHandler struct {
	gdprService GDPRService
}

func NewGDPRHandler(gdprService GDPRService) *GDPRHandler {
	return &GDPRHandler{gdprService: gdprService}
}

// Submit --> POST /api/data-requests
func (h *GDPRHandler) Submit(c echo.Context) error {
	req := struct {
		Type   entity.DataRequestType `json:"type"`
		Reason string                 `json:"reason"`
	}{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	created, err := h.gdprService.Submit(c.Request().Context(), currentUserID(c), req.Type, req.Reason)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

// ListMine --> GET /api/data-requests
func (h *GDPRHandler) ListMine(c echo.Context) error {
	reqs, err := h.gdprService.ListForUser(c.Request().Context(), currentUserID(c))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, reqs)
}

// Download --> GET /api/data-requests/:id/download
func (h *GDPRHandler) Download(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	data, filename, err := h.gdprService.Download(c.Request().Context(), currentUserID(c), id)
	if err != nil {
		return httpError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
}

// List --> GET /admin/data-requests?status=
func (h *GDPRHandler) List(c echo.Context) error {
	reqs, err := h.gdprService.List(c.Request().Context(), entity.DataRequestStatus(c.QueryParam("status")))
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, reqs)
}

// Transition --> PUT /admin/data-requests/:id
func (h *GDPRHandler) Transition(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "Invalid ID")
	}
	req := struct {
		Status entity.DataRequestStatus `json:"status"`
		Notes  string                   `json:"admin_notes"`
	}{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}

	updated, err := h.gdprService.Transition(c.Request().Context(), currentUserID(c), id, req.Status, req.Notes)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

// Overdue --> GET /admin/data-requests/overdue
func (h *GDPRHandler) Overdue(c echo.Context) error {
	reqs, err := h.gdprService.Overdue(c.Request().Context())
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, reqs)
}
