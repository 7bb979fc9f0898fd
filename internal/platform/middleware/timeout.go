package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const timeoutMessage = "request processing exceeded the allowed time limit"

// RequestTimeout puts a deadline on the request context. Store calls observe
// it through pgx, so a slow query is cancelled rather than left running. If
// the deadline passed and nothing was written yet, the client gets 504.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)

			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				he := echo.NewHTTPError(http.StatusGatewayTimeout, timeoutMessage)
				if err != nil {
					he.SetInternal(err)
				}
				return he
			}
			return err
		}
	}
}
