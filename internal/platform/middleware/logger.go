package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/ipd/internal/platform/auth"
	"github.com/ehr/ipd/internal/platform/db"
)

// quietRoutes are probed constantly and only logged at debug level.
var quietRoutes = map[string]bool{
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
}

// Logger writes one line per request. Server errors log at error level and
// client errors at warn.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			var evt *zerolog.Event
			switch {
			case status >= 500:
				evt = logger.Error().Err(err)
			case status >= 400:
				evt = logger.Warn()
			case quietRoutes[c.Path()]:
				evt = logger.Debug()
			default:
				evt = logger.Info()
			}

			req := c.Request()
			ctx := req.Context()
			requestID, _ := c.Get("request_id").(string)
			evt.Str("request_id", requestID).
				Str("tenant_id", db.TenantFromContext(ctx)).
				Str("user_id", auth.UserIDFromContext(ctx)).
				Str("method", req.Method).
				Str("route", c.Path()).
				Str("path", req.URL.Path).
				Int("status", status).
				Int64("bytes_out", c.Response().Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")
			return err
		}
	}
}
