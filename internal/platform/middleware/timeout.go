package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func isWebsocket(r *http.Request) bool {
	return strings.HasSuffix(r.URL.Path, "/ws") ||
		strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// RequestTimeout bounds each request context and answers 504 once the
// deadline passes. Store writes already in flight finish on their own; the
// change they make is still published. Websocket connections are skipped.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if isWebsocket(req) {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(req.Context(), timeout)
			defer cancel()
			c.SetRequest(req.WithContext(ctx))

			done := make(chan error, 1)
			go func() { done <- next(c) }()

			select {
			case err := <-done:
				return err
			case <-ctx.Done():
				if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return ctx.Err()
				}
				zerolog.Ctx(ctx).Warn().
					Str("path", req.URL.Path).
					Dur("timeout", timeout).
					Msg("request deadline exceeded")
				return c.JSON(http.StatusGatewayTimeout, map[string]string{
					"message": "request timed out",
				})
			}
		}
	}
}
