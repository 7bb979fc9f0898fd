package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	ClaimsKey  contextKey = "auth_claims"
	SubjectKey contextKey = "auth_subject"
)

// Failure reasons reported to FailureRecorder and the log. They never reach
// the client.
const (
	ReasonMissing   = "missing"
	ReasonScheme    = "scheme"
	ReasonEmpty     = "empty"
	ReasonExpired   = "expired"
	ReasonMalformed = "malformed"
	ReasonInvalid   = "invalid"
)

// TokenValidator is the part of TokenService the guard needs.
type TokenValidator interface {
	Validate(token string) (*Claims, error)
}

// FailureRecorder counts rejected credentials by reason.
type FailureRecorder interface {
	AuthFailure(reason string)
}

type BearerConfig struct {
	Tokens   TokenValidator
	Logger   zerolog.Logger
	Failures FailureRecorder
	// Skipper returns true for requests that bypass the guard. Defaults to
	// Skipper.
	Skipper func(c echo.Context) bool
}

// BearerMiddleware requires "Authorization: Bearer <token>" on every
// request not skipped. Every rejection is the same 403; the underlying reason
// is only logged and counted.
func BearerMiddleware(cfg BearerConfig) echo.MiddlewareFunc {
	if cfg.Skipper == nil {
		cfg.Skipper = Skipper
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper(c) {
				return next(c)
			}

			token, reason := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if reason != "" {
				return reject(c, cfg, reason, nil)
			}

			claims, err := cfg.Tokens.Validate(token)
			if err != nil {
				return reject(c, cfg, reasonFor(err), err)
			}

			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, ClaimsKey, claims)
			ctx = context.WithValue(ctx, SubjectKey, claims.Subject)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// bearerToken extracts the credential. The scheme must be exactly "Bearer".
func bearerToken(header string) (string, string) {
	if header == "" {
		return "", ReasonMissing
	}
	scheme, credential, found := strings.Cut(header, " ")
	if scheme != "Bearer" {
		return "", ReasonScheme
	}
	credential = strings.TrimSpace(credential)
	if !found || credential == "" {
		return "", ReasonEmpty
	}
	return credential, ""
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrExpiredToken):
		return ReasonExpired
	case errors.Is(err, ErrMalformedToken):
		return ReasonMalformed
	default:
		return ReasonInvalid
	}
}

func reject(c echo.Context, cfg BearerConfig, reason string, cause error) error {
	evt := cfg.Logger.Warn().
		Str("reason", reason).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Str("remote_ip", c.RealIP())
	if cause != nil {
		evt = evt.Err(cause)
	}
	evt.Msg("bearer token rejected")

	if cfg.Failures != nil {
		cfg.Failures.AuthFailure(reason)
	}

	he := echo.NewHTTPError(http.StatusForbidden, invalidTokenMessage)
	if cause != nil {
		he.SetInternal(cause)
	}
	return he
}

// ClaimsFromContext returns the verified claims, or nil outside a guarded
// request.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(ClaimsKey).(*Claims)
	return claims
}

// SubjectFromContext returns the id of the authenticated patient.
func SubjectFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(SubjectKey).(string)
	return sub
}
