package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medpay/medpay/internal/platform/apperr"
)

const invalidTokenMessage = "Invalid or missing token"

var (
	ErrInvalidToken   = apperr.New(apperr.KindUnauthorized, "invalid_token", invalidTokenMessage)
	ErrExpiredToken   = apperr.New(apperr.KindUnauthorized, "expired_token", invalidTokenMessage)
	ErrMalformedToken = apperr.New(apperr.KindUnauthorized, "malformed_token", invalidTokenMessage)
)

// Claims carried by an access token. The subject is the patient id.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 access tokens.
type TokenService struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenService(key []byte, issuer string, ttl time.Duration) *TokenService {
	return &TokenService{key: key, issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a token for subject and returns it with its expiry.
func (s *TokenService) Issue(subject string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate checks signature, algorithm, issuer and expiry. It never returns
// claims for a token that failed any check.
func (s *TokenService) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, classifyTokenError(err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrExpiredToken.Wrap(err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken.Wrap(err)
	default:
		return ErrInvalidToken.Wrap(err)
	}
}
