package api

import (
	"context"
	"net/http"

	"github.com/maulanasdqn/skyla-pos/internal/auth"
	"github.com/maulanasdqn/skyla-pos/internal/config"
	"github.com/maulanasdqn/skyla-pos/internal/output"
)

// TokenPair is the token object in login and refresh responses.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	TokenType    string `json:"tokenType,omitempty"`
}

// TokenExchanger calls the refresh endpoint. It sends unauthenticated
// requests only, so it needs no session.
type TokenExchanger struct {
	client *Client
	path   string
}

var _ auth.Exchanger = (*TokenExchanger)(nil)

// NewTokenExchanger creates an exchanger for cfg's refresh endpoint.
func NewTokenExchanger(cfg *config.Config, opts ...Option) *TokenExchanger {
	return &TokenExchanger{
		client: NewClient(cfg, nil, opts...),
		path:   cfg.Endpoints.Refresh,
	}
}

// Exchange trades refreshToken for a new access token. A 401 or 403 comes
// back as an API error with that status, which the session treats as a
// rejected refresh token.
func (x *TokenExchanger) Exchange(ctx context.Context, refreshToken string) (*auth.Token, error) {
	resp, err := x.client.Do(ctx, Request{
		Method:          http.MethodPost,
		Path:            x.path,
		Body:            map[string]string{"refreshToken": refreshToken},
		Unauthenticated: true,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, StatusError(resp)
	}

	var payload struct {
		TokenPair
		Tokens *TokenPair `json:"tokens"`
	}
	if err := DecodeData(resp.Body, &payload); err != nil {
		return nil, output.ErrUnexpected(err)
	}
	pair := payload.TokenPair
	if pair.AccessToken == "" && payload.Tokens != nil {
		pair = *payload.Tokens
	}
	if pair.AccessToken == "" {
		return nil, output.ErrUnexpected(nil)
	}
	return &auth.Token{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
	}, nil
}
