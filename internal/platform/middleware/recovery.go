package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/refdata/refdata/internal/platform/auth"
)

const stackSize = 8 << 10

// Recovery turns a handler panic into a 500 and logs it with the tenant and
// caller the request ran for. http.ErrAbortHandler is re-raised so the
// server drops the connection as it expects.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if e, ok := r.(error); ok && errors.Is(e, http.ErrAbortHandler) {
					panic(r)
				}
				stack := make([]byte, stackSize)
				stack = stack[:runtime.Stack(stack, false)]

				req := c.Request()
				rid, _ := c.Get("request_id").(string)
				tenant, _ := c.Get("tenant_id").(string)
				evt := logger.Error()
				if e, ok := r.(error); ok {
					evt = evt.Err(e)
				} else {
					evt = evt.Str("panic", fmt.Sprint(r))
				}
				evt.
					Str("request_id", rid).
					Str("tenant", tenant).
					Str("user", auth.UserIDFromContext(req.Context())).
					Str("method", req.Method).
					Str("route", c.Path()).
					Bytes("stack", stack).
					Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
			}()
			return next(c)
		}
	}
}
