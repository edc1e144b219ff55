package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/maulanasdqn/skyla-pos/internal/api"
	"github.com/maulanasdqn/skyla-pos/internal/appctx"
	"github.com/maulanasdqn/skyla-pos/internal/config"
	"github.com/maulanasdqn/skyla-pos/internal/output"
)

var signingKey = []byte("test-signing-key")

// cashierBackend is a fake POS backend with one cashier account and a
// two-page product list.
type cashierBackend struct {
	mu      sync.Mutex
	access  string
	refresh string
	issued  int

	refreshCalls atomic.Int32
	logouts      atomic.Int32
	lastBody     json.RawMessage
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// mint issues a new signed token pair. Callers hold b.mu.
func (b *cashierBackend) mint() (string, string) {
	b.issued++
	claims := jwt.MapClaims{
		"sub":  "17",
		"role": "cashier",
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(15 * time.Minute).Unix(),
		"jti":  strconv.Itoa(b.issued),
	}
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	b.access = token
	b.refresh = "refresh-" + strconv.Itoa(b.issued)
	return b.access, b.refresh
}

func (b *cashierBackend) routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Email, Password string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Email != "ani@toko.id" || body.Password != "rahasia" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid email or password"})
			return
		}
		b.mu.Lock()
		access, refresh := b.mint()
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
			"user":   map[string]any{"id": 17, "email": "ani@toko.id", "firstName": "Ani", "lastName": "Kasir", "role": "cashier"},
			"tokens": map[string]string{"accessToken": access, "refreshToken": refresh},
		}})
	})
	r.Post("/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		b.refreshCalls.Add(1)
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		defer b.mu.Unlock()
		if body.RefreshToken == "" || body.RefreshToken != b.refresh {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid refresh token"})
			return
		}
		access, refresh := b.mint()
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{
			"accessToken": access, "refreshToken": refresh, "tokenType": "Bearer",
		}})
	})
	r.Group(func(r chi.Router) {
		r.Use(b.authenticated)
		r.Get("/auth/me", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{
				"id": "17", "email": "ani@toko.id", "firstName": "Ani", "lastName": "Kasir", "role": "cashier",
			}})
		})
		r.Post("/auth/logout", func(w http.ResponseWriter, _ *http.Request) {
			b.logouts.Add(1)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
		})
		r.Post("/auth/logout-all", func(w http.ResponseWriter, _ *http.Request) {
			b.logouts.Add(1)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out everywhere"})
		})
		r.Get("/products", func(w http.ResponseWriter, r *http.Request) {
			page, _ := strconv.Atoi(r.URL.Query().Get("page"))
			if page == 0 {
				page = 1
			}
			name := "Kopi Susu"
			if page == 2 {
				name = "Teh Manis"
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"data": []map[string]any{{"id": page, "name": name, "search": r.URL.Query().Get("search")}},
				"meta": api.PaginationMeta{CurrentPage: page, PerPage: 1, TotalItems: 2, TotalPages: 2},
			})
		})
		r.Post("/transactions", func(w http.ResponseWriter, r *http.Request) {
			var body json.RawMessage
			_ = json.NewDecoder(r.Body).Decode(&body)
			b.mu.Lock()
			b.lastBody = body
			b.mu.Unlock()
			writeJSON(w, http.StatusCreated, map[string]any{
				"data":    map[string]any{"id": 99, "invoiceNumber": "INV-0099"},
				"message": "Transaction created",
			})
		})
		r.Delete("/products/{id}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
		r.Get("/reports/missing", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Report not found"})
		})
	})
	return r
}

func (b *cashierBackend) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		ok := b.access != "" && r.Header.Get("Authorization") == "Bearer "+b.access
		b.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// expireAccess makes the backend stop accepting the current access token.
func (b *cashierBackend) expireAccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.access = "revoked"
}

// revokeRefresh makes the backend reject the stored refresh token.
func (b *cashierBackend) revokeRefresh() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.access = "revoked"
	b.refresh = "revoked"
}

type harness struct {
	backend *cashierBackend
	app     *appctx.App
	out     *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("SKYLA_DEBUG", "")

	b := &cashierBackend{}
	srv := httptest.NewServer(b.routes())
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.BaseURL = srv.URL
	cfg.DataDir = t.TempDir()
	cfg.NoKeyring = true

	app := appctx.NewApp(cfg)
	app.Flags.JSON = true
	app.ApplyFlags()

	out := &bytes.Buffer{}
	app.Output = output.New(output.Options{Format: output.FormatJSON, Writer: out})

	return &harness{backend: b, app: app, out: out}
}

// run executes cmd with args against the harness app and returns what the
// command wrote directly to its stdout.
func (h *harness) run(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()
	h.out.Reset()

	var direct bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&direct)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.ExecuteContext(appctx.WithApp(context.Background(), h.app))
	return direct.String(), err
}

// login signs the cashier in through the auth command.
func (h *harness) login(t *testing.T) {
	t.Helper()
	_, err := h.run(t, NewAuthCmd(), "rahasia\n", "login", "--email", "ani@toko.id", "--password-stdin")
	require.NoError(t, err)
}

// envelope decodes the last JSON response written through app.OK.
func (h *harness) envelope(t *testing.T) map[string]any {
	t.Helper()
	var env map[string]any
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &env), h.out.String())
	return env
}

func (h *harness) data(t *testing.T) map[string]any {
	t.Helper()
	data, ok := h.envelope(t)["data"].(map[string]any)
	require.True(t, ok, h.out.String())
	return data
}
