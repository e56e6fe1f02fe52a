package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Allower decides whether the caller identified by key may proceed.
type Allower interface {
	Allow(key string) bool
}

// RateLimit rejects requests over the per-client budget with 429. Clients are
// keyed by echo's RealIP.
func RateLimit(a Allower, retryAfterSec int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if a == nil || a.Allow(c.RealIP()) {
				return next(c)
			}
			if retryAfterSec > 0 {
				c.Response().Header().Set(echo.HeaderRetryAfter, strconv.Itoa(retryAfterSec))
			}
			return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
				"status":  http.StatusTooManyRequests,
				"message": "Too many forecast requests, slow down",
			})
		}
	}
}
