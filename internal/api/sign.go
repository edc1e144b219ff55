package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/maulanasdqn/skyla-pos/internal/auth"
	"github.com/maulanasdqn/skyla-pos/internal/version"
)

// HeaderRequestID carries a per-attempt identifier for server-side correlation.
const HeaderRequestID = "X-Request-Id"

// TokenSource supplies the credentials to sign with. *auth.Session
// implements it.
type TokenSource interface {
	AccessToken(ctx context.Context) (auth.Credentials, error)
}

// Signer stamps outgoing requests. It reads the current token and never
// refreshes it.
type Signer struct {
	tokens    TokenSource
	userAgent string
}

// NewSigner creates a signer reading credentials from tokens.
func NewSigner(tokens TokenSource) *Signer {
	return &Signer{tokens: tokens, userAgent: version.UserAgent()}
}

// Sign sets the common headers on req and, when authenticated is true, the
// Authorization header. It returns the access token used, or "" for an
// unauthenticated request.
func (s *Signer) Sign(ctx context.Context, req *http.Request, authenticated bool) (string, error) {
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderRequestID, uuid.NewString())

	if !authenticated {
		return "", nil
	}
	creds, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", creds.Scheme()+" "+creds.AccessToken)
	return creds.AccessToken, nil
}
