package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger writes one line per request. Handler errors are passed to the
// echo error handler first so the logged status is the one the client got;
// the error itself is logged by ErrorHandler.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			if err := next(c); err != nil {
				c.Error(err)
			}

			logger.Info().
				Str("request_id", RequestIDFrom(c)).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("route", c.Path()).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return nil
		}
	}
}

// RequestIDFrom returns the id assigned by echo's RequestID middleware.
func RequestIDFrom(c echo.Context) string {
	if rid, ok := c.Get(RequestIDKey).(string); ok && rid != "" {
		return rid
	}
	return c.Response().Header().Get(echo.HeaderXRequestID)
}

// RequestIDKey is the echo context key RequestIDHandler stores the id under.
const RequestIDKey = "request_id"

// RequestIDHandler is plugged into echo's RequestIDConfig.RequestIDHandler.
func RequestIDHandler(c echo.Context, rid string) {
	c.Set(RequestIDKey, rid)
}
