package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Health is the load-balancer check endpoint; it returns plain "ok".
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}
