package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass the bearer guard: infrastructure endpoints plus
// registration and login.
var publicPaths = map[string]bool{
	"/":          true,
	"/health":    true,
	"/health/db": true,
	"/metrics":   true,
	"/register":  true,
	"/login":     true,
}

// Skipper matches on the registered route pattern, so "/health/extra" is not
// public just because it shares a prefix.
func Skipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}
