package middleware

import (
	"github.com/labstack/echo/v4"
)

// apiHeaders is set on every response, errors included. Responses carry
// balances and payment references, so nothing may be cached or framed.
var apiHeaders = []struct{ name, value string }{
	{echo.HeaderXContentTypeOptions, "nosniff"},
	{echo.HeaderXFrameOptions, "DENY"},
	{echo.HeaderXXSSProtection, "0"},
	{echo.HeaderContentSecurityPolicy, "default-src 'none'; frame-ancestors 'none'"},
	{echo.HeaderStrictTransportSecurity, "max-age=31536000; includeSubDomains"},
	{echo.HeaderReferrerPolicy, "no-referrer"},
	{echo.HeaderCacheControl, "no-store"},
	{"Pragma", "no-cache"},
}

func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, hdr := range apiHeaders {
				h.Set(hdr.name, hdr.value)
			}
			return next(c)
		}
	}
}
