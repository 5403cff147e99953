package service

import (
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/rentora/apiguard/internal/errors"
	tokenDomain "github.com/rentora/apiguard/internal/token/domain"
)

type jwtDecoder struct{}

// NewDecoder creates a Decoder backed by unverified JWT parsing.
func NewDecoder() Decoder {
	return &jwtDecoder{}
}

// Decode parses the token without signature verification and extracts the
// claims the cache snapshots. A token without exp is not cacheable.
func (d *jwtDecoder) Decode(token string) (*Claims, error) {
	parsed, _, err := new(jwt.Parser).ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, apperrors.Wrap(tokenDomain.ErrTokenMalformed, err.Error())
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, tokenDomain.ErrTokenMalformed
	}

	expiry, err := mapClaims.GetExpirationTime()
	if err != nil || expiry == nil {
		return nil, tokenDomain.ErrTokenMalformed
	}

	claims := &Claims{
		ExpiresAt: expiry.Time.UTC(),
		UserID:    stringClaim(mapClaims, "user_id"),
		Role:      stringClaim(mapClaims, "role"),
		SessionID: stringClaim(mapClaims, "session_id"),
	}
	if claims.UserID == "" {
		if sub, err := mapClaims.GetSubject(); err == nil {
			claims.UserID = sub
		}
	}
	return claims, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if value, ok := claims[key].(string); ok {
		return value
	}
	return ""
}
