package middleware

// identity.go provides the user identifier used for cache and
// rate-limit keys. JWTAuth stores the subject claim as "user_id";
// unauthenticated requests share the "guest" bucket.

import (
	"fmt"

	"github.com/labstack/echo/v4"
)

// userID renders the authenticated user id as a key segment, or
// "guest" when the request carries no identity.
func userID(c echo.Context) string {
	v := c.Get("user_id")
	if v == nil {
		return "guest"
	}
	switch id := v.(type) {
	case string:
		if id != "" {
			return id
		}
	case float64:
		return fmt.Sprintf("%.0f", id)
	case uint64:
		return fmt.Sprintf("%d", id)
	}
	return "guest"
}
