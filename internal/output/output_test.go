package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{CodeValidation, ExitValidation},
		{CodeAuth, ExitAuth},
		{CodeSessionExpired, ExitSession},
		{CodeNetwork, ExitNetwork},
		{CodeAPI, ExitAPI},
		{CodeUnexpected, ExitUnexpected},
		{"unknown_code", ExitAPI},
		{"", ExitAPI},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExitCodeFor(tt.code))
		})
	}
}

func TestErrorConstructors(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	tests := []struct {
		name       string
		err        *Error
		code       string
		status     int
		retryable  bool
		wantsCause bool
	}{
		{"validation", ErrValidation("password is required"), CodeValidation, 0, false, false},
		{"auth", ErrAuth("Not logged in"), CodeAuth, 0, false, false},
		{"session", ErrSessionExpired(), CodeSessionExpired, 401, false, false},
		{"network", ErrNetwork(cause), CodeNetwork, 0, true, true},
		{"api 4xx", ErrAPI(422, "Invalid SKU"), CodeAPI, 422, false, false},
		{"api 5xx", ErrAPI(503, "Unavailable"), CodeAPI, 503, true, false},
		{"unexpected", ErrUnexpected(cause), CodeUnexpected, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			if tt.wantsCause {
				assert.ErrorIs(t, tt.err, cause)
			}
		})
	}
}

func TestErrorMessageIncludesHint(t *testing.T) {
	err := ErrSessionExpired()
	assert.Equal(t, "Session expired: Run: skyla auth login", err.Error())

	err = ErrAPI(404, "Product not found")
	assert.Equal(t, "Product not found", err.Error())
}

func TestErrorIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("list products: %w", ErrSessionExpired())
	assert.ErrorIs(t, wrapped, ErrSessionExpired())
	assert.NotErrorIs(t, wrapped, ErrAPI(401, "x"))
	assert.True(t, IsCode(wrapped, CodeSessionExpired))
	assert.False(t, IsCode(errors.New("plain"), CodeSessionExpired))
}

func TestAsError(t *testing.T) {
	e := AsError(fmt.Errorf("wrap: %w", ErrValidation("bad")))
	assert.Equal(t, CodeValidation, e.Code)

	plain := errors.New("boom")
	e = AsError(plain)
	assert.Equal(t, CodeAPI, e.Code)
	assert.Equal(t, "boom", e.Message)
	assert.ErrorIs(t, e, plain)
}

func TestWriterOKJSON(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatJSON, Writer: &buf})

	require.NoError(t, w.OK(map[string]any{"id": 1}, WithSummary("done"), WithMeta("page", 2)))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, "done", resp["summary"])
	assert.Equal(t, map[string]any{"id": float64(1)}, resp["data"])
	assert.Equal(t, map[string]any{"page": float64(2)}, resp["meta"])
}

func TestWriterErrJSON(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatJSON, Writer: &buf})

	require.NoError(t, w.Err(ErrAPI(409, "Sale already closed")))

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.False(t, resp.OK)
	assert.Equal(t, "Sale already closed", resp.Error)
	assert.Equal(t, CodeAPI, resp.Code)
	assert.Equal(t, 409, resp.Status)
}

func TestWriterQuiet(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatQuiet, Writer: &buf})

	require.NoError(t, w.OK([]string{"a", "b"}, WithSummary("ignored")))
	assert.JSONEq(t, `["a","b"]`, buf.String())
}

func TestWriterJQ(t *testing.T) {
	var buf bytes.Buffer
	w := New(Options{Format: FormatQuiet, Writer: &buf, JQ: ".[].name"})

	data := []map[string]any{{"name": "Latte"}, {"name": "Mocha"}}
	require.NoError(t, w.OK(data))
	assert.JSONEq(t, `["Latte","Mocha"]`, buf.String())
}

func TestFilterInvalidExpression(t *testing.T) {
	_, err := Filter(".[", map[string]any{})
	require.Error(t, err)
	assert.True(t, IsCode(err, CodeValidation))
}

func TestFilterSingleResult(t *testing.T) {
	v, err := Filter(".role", map[string]any{"role": "cashier"})
	require.NoError(t, err)
	assert.Equal(t, "cashier", v)
}

func TestWriterStyledPlain(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	w := New(Options{Format: FormatStyled, Writer: &buf})

	require.NoError(t, w.OK(map[string]any{"displayName": "Ana", "role": "cashier"}, WithSummary("Logged in")))
	out := buf.String()
	assert.Contains(t, out, "Logged in")
	assert.Contains(t, out, "Display Name")
	assert.Contains(t, out, "cashier")
}

func TestRenderErrorStyled(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	w := New(Options{Format: FormatStyled, Writer: &buf})

	require.NoError(t, w.Err(ErrSessionExpired()))
	out := buf.String()
	assert.Contains(t, out, "Error: Session expired (HTTP 401)")
	assert.Contains(t, out, "Hint: Run: skyla auth login")
}

func TestRenderTable(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var buf bytes.Buffer
	w := New(Options{Format: FormatStyled, Writer: &buf})

	rows := []any{
		map[string]any{"id": float64(1), "name": "Latte", "price": 3.5},
		map[string]any{"id": float64(2), "name": "Mocha", "price": float64(4)},
	}
	require.NoError(t, w.OK(rows, WithMeta("pagination", map[string]any{
		"currentPage": 1, "totalPages": 3, "totalItems": 42,
	})))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 3)
	assert.True(t, strings.HasPrefix(lines[0], "Id"), "id column first: %q", lines[0])
	assert.Contains(t, buf.String(), "3.50")
	assert.Contains(t, buf.String(), "Page 1 of 3 (42 items)")
}

func TestFormatHeader(t *testing.T) {
	tests := map[string]string{
		"display_name": "Display Name",
		"displayName":  "Display Name",
		"userID":       "User Id",
		"role":         "Role",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatHeader(in), in)
	}
}

func TestParseFormat(t *testing.T) {
	assert.Equal(t, FormatJSON, ParseFormat("json"))
	assert.Equal(t, FormatStyled, ParseFormat("styled"))
	assert.Equal(t, FormatQuiet, ParseFormat("quiet"))
	assert.Equal(t, FormatAuto, ParseFormat("whatever"))
}
