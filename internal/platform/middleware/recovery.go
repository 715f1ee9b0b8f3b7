package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/onco/onco/internal/platform/auth"
)

const panicStackSize = 4096

// Recovery turns a handler panic into a 500. The log line carries the route
// and caller. The panic value never reaches the client.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				stack := make([]byte, panicStackSize)
				stack = stack[:runtime.Stack(stack, false)]

				req := c.Request()
				logger.Error().
					Str("request_id", fmt.Sprintf("%v", c.Get(RequestIDKey))).
					Str("method", req.Method).
					Str("route", c.Path()).
					Str("user_id", auth.UserIDFromContext(req.Context())).
					Str("panic", fmt.Sprintf("%v", r)).
					Bytes("stack", stack).
					Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
