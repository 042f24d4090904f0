package middleware

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
)

// CacheControl sets a public max-age on responses. A non-positive maxAge leaves
// the header alone.
func CacheControl(maxAge time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if maxAge <= 0 {
			return next
		}
		value := fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))
		return func(c echo.Context) error {
			c.Response().Header().Set("Cache-Control", value)
			return next(c)
		}
	}
}
