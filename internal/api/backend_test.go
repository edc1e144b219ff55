package api

import (
	"context"
	"encoding/json"
	"fmt"
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
	"github.com/stretchr/testify/require"

	"github.com/maulanasdqn/skyla-pos/internal/auth"
	"github.com/maulanasdqn/skyla-pos/internal/config"
)

type product struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// fakeBackend is a POS backend that issues JWT access tokens and rejects
// requests signed with anything it has not issued.
type fakeBackend struct {
	server *httptest.Server

	mu           sync.Mutex
	valid        map[string]bool
	refreshToken string
	seq          int

	rejectRefresh atomic.Bool
	refreshCalls  atomic.Int32
	apiCalls      atomic.Int32
	products      []product
	perPage       int
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		valid:        make(map[string]bool),
		refreshToken: "refresh-token-1",
		perPage:      2,
	}
	for i := 1; i <= 5; i++ {
		b.products = append(b.products, product{ID: i, Name: fmt.Sprintf("Item %d", i)})
	}

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/refresh", b.handleRefresh)
		r.Group(func(r chi.Router) {
			r.Use(b.requireToken)
			r.Get("/products", b.handleList)
			r.Get("/products/{id}", b.handleGet)
			// Ignores ?page= and always claims more pages follow.
			r.Get("/stuck", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{
					"data": b.products[:b.perPage],
					"meta": PaginationMeta{CurrentPage: 1, PerPage: b.perPage, TotalItems: 20000, TotalPages: 10000},
				})
			})
			// Honors ?page= but never has any items.
			r.Get("/hollow", func(w http.ResponseWriter, r *http.Request) {
				page, _ := strconv.Atoi(r.URL.Query().Get("page"))
				writeJSON(w, http.StatusOK, map[string]any{
					"data": []product{},
					"meta": PaginationMeta{CurrentPage: page, PerPage: b.perPage, TotalItems: 20000, TotalPages: 10000},
				})
			})
			r.Post("/ping", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
			})
			r.Get("/broken", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("<html>not json</html>"))
			})
			r.Get("/rejected", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "Stock too low"})
			})
			r.Get("/crash", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("oops"))
			})
		})
		r.Get("/always-401", func(w http.ResponseWriter, _ *http.Request) {
			b.apiCalls.Add(1)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
		})
		r.Get("/echo", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{
				"authorization": r.Header.Get("Authorization"),
				"requestId":     r.Header.Get(HeaderRequestID),
				"userAgent":     r.Header.Get("User-Agent"),
				"query":         r.URL.RawQuery,
			}})
		})
	})

	b.server = httptest.NewServer(r)
	t.Cleanup(b.server.Close)
	return b
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// mint issues a new valid access token.
func (b *fakeBackend) mint() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "1",
		"role": "cashier",
		"jti":  strconv.Itoa(b.seq),
		"exp":  time.Now().Add(15 * time.Minute).Unix(),
	})
	signed, _ := token.SignedString([]byte("test-secret"))
	b.valid[signed] = true
	return signed
}

// expireAll invalidates every issued access token.
func (b *fakeBackend) expireAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.valid = make(map[string]bool)
}

func (b *fakeBackend) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.apiCalls.Add(1)
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		b.mu.Lock()
		ok := b.valid[token]
		b.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Token expired"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *fakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}
	// Widen the window in which concurrent 401s pile up behind the exchange.
	time.Sleep(30 * time.Millisecond)
	if b.rejectRefresh.Load() || body.RefreshToken != b.refreshToken {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid refresh token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": map[string]string{
		"accessToken": b.mint(),
		"tokenType":   "Bearer",
	}})
}

func (b *fakeBackend) handleList(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	totalPages := (len(b.products) + b.perPage - 1) / b.perPage
	start := min((page-1)*b.perPage, len(b.products))
	end := min(start+b.perPage, len(b.products))

	writeJSON(w, http.StatusOK, map[string]any{
		"data": b.products[start:end],
		"meta": PaginationMeta{
			CurrentPage: page,
			PerPage:     b.perPage,
			TotalItems:  len(b.products),
			TotalPages:  totalPages,
		},
	})
}

func (b *fakeBackend) handleGet(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(chi.URLParam(r, "id"))
	for _, p := range b.products {
		if p.ID == id {
			writeJSON(w, http.StatusOK, map[string]any{"data": p})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "Product not found"})
}

// testConfig points a default config at the fake backend.
func (b *fakeBackend) testConfig() *config.Config {
	cfg := config.Default()
	cfg.BaseURL = b.server.URL + "/api/v1"
	return cfg
}

type testEnv struct {
	backend *fakeBackend
	store   *auth.Store
	session *auth.Session
	client  *Client
}

// newTestEnv wires the real store, session, exchanger and client against the
// fake backend and logs in with a token the backend already considers
// expired.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	b := newFakeBackend(t)
	cfg := b.testConfig()

	store := auth.NewStore(cfg.BaseURL, auth.StoreOptions{Dir: t.TempDir(), NoKeyring: true})
	session := auth.NewSession(store, NewTokenExchanger(cfg), auth.SessionOptions{})
	client := NewClient(cfg, session)

	err := session.Begin(context.Background(),
		auth.Credentials{AccessToken: "stale-token", RefreshToken: b.refreshToken, TokenType: "Bearer"},
		auth.Identity{UserID: "1", Role: "cashier", DisplayName: "Ann Lee"})
	require.NoError(t, err)

	return &testEnv{backend: b, store: store, session: session, client: client}
}
