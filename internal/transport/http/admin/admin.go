// Package admin guards back-office routes with the shared admin secret.
package admin

import (
	"crypto/subtle"

	"github.com/labstack/echo/v4"

	"github.com/Additional-Code/palate/internal/presentation/http/response"
	"github.com/Additional-Code/palate/pkg/errorbank"
)

// HeaderKey carries the admin secret.
const HeaderKey = "X-Admin-Key"

// RequireKey rejects requests whose X-Admin-Key header (or key query
// parameter) does not match secret. An empty secret rejects everything.
func RequireKey(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(HeaderKey)
			if key == "" {
				key = c.QueryParam("key")
			}
			if secret == "" || subtle.ConstantTimeCompare([]byte(key), []byte(secret)) != 1 {
				return response.New(c).WithError(errorbank.Unauthorized("Unauthorized")).Build()
			}
			return next(c)
		}
	}
}
