package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger writes one structured line per request. The matched route is
// logged rather than the raw path so donor and patient identifiers in
// path parameters never reach the log stream.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}
			rid, _ := c.Get("request_id").(string)
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			evt.
				Str("request_id", rid).
				Str("method", c.Request().Method).
				Str("route", route).
				Int("status", c.Response().Status).
				Dur("elapsed", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("http request")
			return err
		}
	}
}
