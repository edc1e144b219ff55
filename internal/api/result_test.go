package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maulanasdqn/skyla-pos/internal/auth"
	"github.com/maulanasdqn/skyla-pos/internal/output"
)

func loggedInEnv(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	err := env.session.Begin(context.Background(),
		auth.Credentials{AccessToken: env.backend.mint(), RefreshToken: env.backend.refreshToken},
		auth.Identity{UserID: "1"})
	require.NoError(t, err)
	return env
}

func TestCallSingleEnvelope(t *testing.T) {
	env := loggedInEnv(t)

	r := Call[product](context.Background(), env.client, Request{Method: http.MethodGet, Path: "/products/4"})
	require.True(t, r.OK())
	assert.Equal(t, product{ID: 4, Name: "Item 4"}, r.Value().Data)
	assert.Nil(t, r.Value().Meta)
}

func TestListEnvelope(t *testing.T) {
	env := loggedInEnv(t)

	r := List[product](context.Background(), env.client, Request{
		Method: http.MethodGet,
		Path:   "/products",
		Query:  url.Values{"page": {"2"}},
	})
	require.True(t, r.OK())
	page := r.Value()
	assert.Equal(t, []product{{ID: 3, Name: "Item 3"}, {ID: 4, Name: "Item 4"}}, page.Items)
	assert.Equal(t, PaginationMeta{CurrentPage: 2, PerPage: 2, TotalItems: 5, TotalPages: 3}, page.Meta)
	assert.True(t, page.Meta.HasNext())
}

func TestGetAllWalksPages(t *testing.T) {
	env := loggedInEnv(t)

	r := GetAll[product](context.Background(), env.client, Request{Method: http.MethodGet, Path: "/products"})
	require.True(t, r.OK())
	require.Len(t, r.Value().Items, 5)
	assert.Equal(t, 5, r.Value().Items[4].ID)
	assert.Equal(t, 3, r.Value().Meta.CurrentPage)
	assert.Equal(t, int32(3), env.backend.apiCalls.Load())
}

func TestGetAllStopsWhenPageIsIgnored(t *testing.T) {
	env := loggedInEnv(t)

	r := GetAll[product](context.Background(), env.client, Request{Method: http.MethodGet, Path: "/stuck"})
	require.False(t, r.OK())
	assert.Equal(t, output.CodeUnexpected, r.Err().Code)
	assert.Contains(t, r.Err().Error(), "asked for page 2, got page 1")
	assert.Equal(t, int32(2), env.backend.apiCalls.Load())
}

func TestGetAllStopsOnEmptyPage(t *testing.T) {
	env := loggedInEnv(t)

	r := GetAll[product](context.Background(), env.client, Request{Method: http.MethodGet, Path: "/hollow"})
	require.True(t, r.OK())
	assert.Empty(t, r.Value().Items)
	assert.NotNil(t, r.Value().Items)
	assert.Equal(t, int32(1), env.backend.apiCalls.Load())
}

func TestMessageEnvelope(t *testing.T) {
	env := loggedInEnv(t)

	r := Message(context.Background(), env.client, Request{Method: http.MethodPost, Path: "/ping", Body: map[string]int{"n": 1}})
	require.True(t, r.OK())
	assert.Equal(t, "pong", r.Value())
}

func TestNonSuccessCarriesEnvelopeMessage(t *testing.T) {
	env := loggedInEnv(t)

	r := Get[product](context.Background(), env.client, Request{Method: http.MethodGet, Path: "/rejected"})
	require.False(t, r.OK())
	assert.Equal(t, output.CodeAPI, r.Err().Code)
	assert.Equal(t, http.StatusUnprocessableEntity, r.Err().HTTPStatus)
	assert.Equal(t, "Stock too low", r.Err().Message)

	r = Get[product](context.Background(), env.client, Request{Method: http.MethodGet, Path: "/products/99"})
	assert.Equal(t, http.StatusNotFound, r.Err().HTTPStatus)
	assert.Equal(t, "Product not found", r.Err().Message)
}

func TestNonSuccessFallbackMessage(t *testing.T) {
	env := loggedInEnv(t)

	r := Get[product](context.Background(), env.client, Request{Method: http.MethodGet, Path: "/crash"})
	require.False(t, r.OK())
	assert.Equal(t, "Request failed (HTTP 500)", r.Err().Message)
	assert.True(t, r.Err().Retryable)
}

func TestUndecodableSuccess(t *testing.T) {
	env := loggedInEnv(t)

	r := Get[product](context.Background(), env.client, Request{Method: http.MethodGet, Path: "/broken"})
	require.False(t, r.OK())
	assert.Equal(t, output.CodeUnexpected, r.Err().Code)
}

func TestNetworkFailure(t *testing.T) {
	env := loggedInEnv(t)
	env.backend.server.Close()

	r := Get[product](context.Background(), env.client, Request{Method: http.MethodGet, Path: "/products/1"})
	require.False(t, r.OK())
	assert.Equal(t, output.CodeNetwork, r.Err().Code)
	assert.Zero(t, r.Err().HTTPStatus)
}

func TestInvalidBody(t *testing.T) {
	env := loggedInEnv(t)

	r := Call[product](context.Background(), env.client, Request{Method: http.MethodPost, Path: "/ping", Body: make(chan int)})
	require.False(t, r.OK())
	assert.Equal(t, output.CodeValidation, r.Err().Code)
	assert.Zero(t, env.backend.apiCalls.Load())
}

func TestResultMapPropagatesFailure(t *testing.T) {
	failed := Failure[int](output.ErrAPI(409, "conflict"))
	mapped := Map(failed, func(i int) string { return "never" })
	require.False(t, mapped.OK())
	assert.Same(t, failed.Err(), mapped.Err())

	ok := Map(Success(21), func(i int) int { return i * 2 })
	v, err := ok.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestFailureClassifiesPlainErrors(t *testing.T) {
	r := Failure[string](errors.New("boom"))
	assert.Equal(t, output.CodeUnexpected, r.Err().Code)

	_, err := r.Unwrap()
	assert.ErrorContains(t, err, "boom")
}

func TestDataProjection(t *testing.T) {
	r := Data(Success(Envelope[string]{Data: "x", Message: "ignored"}))
	assert.Equal(t, "x", r.Value())
}

func TestDecodeData(t *testing.T) {
	var pair TokenPair
	require.NoError(t, DecodeData([]byte(`{"data":{"accessToken":"a"}}`), &pair))
	assert.Equal(t, "a", pair.AccessToken)

	pair = TokenPair{}
	require.NoError(t, DecodeData([]byte(`{"accessToken":"b","tokenType":"Bearer"}`), &pair))
	assert.Equal(t, TokenPair{AccessToken: "b", TokenType: "Bearer"}, pair)

	var list []int
	require.NoError(t, DecodeData([]byte(`[1,2]`), &list))
	assert.Equal(t, []int{1, 2}, list)
}
