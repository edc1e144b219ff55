package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what can be read from an access token without verifying it.
// The signature is the backend's concern; the client only uses this for
// display.
type TokenInfo struct {
	Subject   string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token's expiry has passed at now.
func (t TokenInfo) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !now.Before(t.ExpiresAt)
}

type accessClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ErrOpaqueToken is returned by InspectToken for tokens that are not JWTs.
var ErrOpaqueToken = errors.New("access token is not a JWT")

// InspectToken decodes the claims of a JWT access token.
func InspectToken(token string) (*TokenInfo, error) {
	var claims accessClaims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil, errors.Join(ErrOpaqueToken, err)
	}

	info := &TokenInfo{
		Subject: claims.Subject,
		Role:    claims.Role,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
