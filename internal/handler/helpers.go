// Package handler contains the Echo HTTP handlers for the advisor
// API: auth, chat, token ledger, conversations, checkout and health.
package handler

import (
	"errors"
	"strconv"

	"github.com/labstack/echo/v4"
)

// errNoIdentity is returned when the context carries no usable
// subject claim.
var errNoIdentity = errors.New("no authenticated user in context")

// userIDFrom reads the authenticated user id stored by the JWT
// middleware. JSON numbers decode as float64; some clients issue
// string subjects, so both are accepted.
func userIDFrom(c echo.Context) (uint64, error) {
	switch v := c.Get("user_id").(type) {
	case float64:
		return uint64(v), nil
	case uint64:
		return v, nil
	case string:
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			return id, nil
		}
	}
	return 0, errNoIdentity
}
