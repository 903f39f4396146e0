package api

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

func paramID(c echo.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// queryInt returns 0 for missing or malformed values; services apply their defaults.
func queryInt(c echo.Context, name string) int {
	v, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return 0
	}
	return v
}
