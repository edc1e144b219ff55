// Package account implements the session use cases: login, logout,
// logout everywhere, and looking up the current user.
package account

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/maulanasdqn/skyla-pos/internal/api"
	"github.com/maulanasdqn/skyla-pos/internal/auth"
	"github.com/maulanasdqn/skyla-pos/internal/config"
	"github.com/maulanasdqn/skyla-pos/internal/output"
)

// Manager runs session use cases against the backend.
type Manager struct {
	client    *api.Client
	session   *auth.Session
	endpoints config.Endpoints
	logger    *slog.Logger
}

// NewManager creates a manager using client and its session.
func NewManager(cfg *config.Config, client *api.Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		client:    client,
		session:   client.Session(),
		endpoints: cfg.Endpoints,
		logger:    logger,
	}
}

type loginResponse struct {
	User   User          `json:"user"`
	Tokens api.TokenPair `json:"tokens"`
}

// Login exchanges email and password for a session and stores it.
// Invalid input is rejected before any request is made.
func (m *Manager) Login(ctx context.Context, email, password string) api.Result[User] {
	email = strings.TrimSpace(email)
	if err := validateLogin(email, password); err != nil {
		return api.Failure[User](err)
	}

	var user User
	err := api.Operation(ctx, m.client.Hooks(), api.OperationInfo{Service: "Auth", Operation: "Login", IsMutation: true},
		func(ctx context.Context) error {
			resp, err := m.client.Do(ctx, api.Request{
				Method:          http.MethodPost,
				Path:            m.endpoints.Login,
				Body:            map[string]string{"email": email, "password": password},
				Unauthenticated: true,
			})
			if err != nil {
				return err
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return api.StatusError(resp)
			}

			var payload loginResponse
			if err := api.DecodeData(resp.Body, &payload); err != nil {
				return output.ErrUnexpected(err)
			}
			creds := auth.Credentials{
				AccessToken:  payload.Tokens.AccessToken,
				RefreshToken: payload.Tokens.RefreshToken,
				TokenType:    payload.Tokens.TokenType,
			}
			if !creds.Valid() {
				return output.ErrUnexpected(auth.ErrIncompleteCredentials)
			}
			if payload.User.ID == "" {
				return output.ErrUnexpected(errMissingUser)
			}
			if err := m.session.Begin(ctx, creds, payload.User.Identity()); err != nil {
				return err
			}
			user = payload.User
			return nil
		})
	if err != nil {
		return api.Failure[User](err)
	}

	m.logger.Debug("logged in", slog.String("user_id", string(user.ID)), slog.String("role", user.Role))
	return api.Success(user)
}

func validateLogin(email, password string) error {
	if email == "" {
		return output.ErrValidation("Email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return output.ErrValidation("Email is not a valid address")
	}
	if strings.TrimSpace(password) == "" {
		return output.ErrValidation("Password is required")
	}
	return nil
}

// Logout revokes the refresh token on the server when possible and clears
// the local session regardless of the server's answer.
func (m *Manager) Logout(ctx context.Context) error {
	return m.end(ctx, "Logout", func(ctx context.Context, creds auth.Credentials) api.Request {
		return api.Request{
			Method: http.MethodPost,
			Path:   m.endpoints.Logout,
			Body:   map[string]string{"refreshToken": creds.RefreshToken},
		}
	})
}

// LogoutAll revokes every session of the user on the server when possible
// and clears the local session regardless of the server's answer.
func (m *Manager) LogoutAll(ctx context.Context) error {
	return m.end(ctx, "LogoutAll", func(context.Context, auth.Credentials) api.Request {
		return api.Request{Method: http.MethodPost, Path: m.endpoints.LogoutAll}
	})
}

func (m *Manager) end(ctx context.Context, op string, build func(context.Context, auth.Credentials) api.Request) error {
	return api.Operation(ctx, m.client.Hooks(), api.OperationInfo{Service: "Auth", Operation: op, IsMutation: true},
		func(ctx context.Context) error {
			if creds, err := m.session.AccessToken(ctx); err == nil {
				r := api.Message(ctx, m.client, build(ctx, creds))
				if !r.OK() {
					m.logger.Debug("server-side revoke failed", slog.String("operation", op), slog.String("error", r.Err().Error()))
				}
			}
			return m.session.End(ctx)
		})
}

// Me fetches the authenticated user from the server.
func (m *Manager) Me(ctx context.Context) api.Result[User] {
	var result api.Result[User]
	_ = api.Operation(ctx, m.client.Hooks(), api.OperationInfo{Service: "Auth", Operation: "Me"},
		func(ctx context.Context) error {
			result = api.Get[User](ctx, m.client, api.Request{Method: http.MethodGet, Path: m.endpoints.Me})
			if !result.OK() {
				return result.Err()
			}
			return nil
		})
	return result
}
