package api

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
)

const maxSettingsImport = 1 << 20

type SettingHandler struct {
	settingService SettingService
}

func NewSettingHandler(settingService SettingService) *SettingHandler {
	return &SettingHandler{settingService: settingService}
}

// All --> GET /admin/settings
func (h *SettingHandler) All(c echo.Context) error {
	settings, err := h.settingService.All(c.Request().Context())
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, settings)
}

// Set --> PUT /admin/settings/:key
func (h *SettingHandler) Set(c echo.Context) error {
	req := struct {
		Value string `json:"value"`
	}{}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request payload")
	}
	if err := h.settingService.Set(c.Request().Context(), c.Param("key"), req.Value); err != nil {
		return httpError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Export --> GET /admin/settings/export
func (h *SettingHandler) Export(c echo.Context) error {
	data, err := h.settingService.Export(c.Request().Context())
	if err != nil {
		return httpError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="settings.json"`)
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
}

// Import --> POST /admin/settings/import with the exported JSON object as body
func (h *SettingHandler) Import(c echo.Context) error {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, maxSettingsImport))
	if err != nil {
		return badRequest(c, "Invalid request payload")
	}
	n, err := h.settingService.Import(c.Request().Context(), data)
	if err != nil {
		return httpError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"imported": n})
}
