package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maulanasdqn/skyla-pos/internal/api"
	"github.com/maulanasdqn/skyla-pos/internal/appctx"
	"github.com/maulanasdqn/skyla-pos/internal/output"
	"github.com/maulanasdqn/skyla-pos/internal/viewstate"
)

// NewAPICmd creates the api command for raw API access.
func NewAPICmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api <verb> <path>",
		Short: "Raw API access",
		Long: `Make signed requests to any backend endpoint. An expired access token is
refreshed once and the request replayed.

Paths are relative to the configured base URL:
  skyla api get /products/3
  skyla api list /products --query search=kopi --all
  skyla api post /transactions --data '{"items":[{"productId":3,"quantity":2}]}'`,
	}

	cmd.AddCommand(
		newAPIGetCmd(),
		newAPIListCmd(),
		newAPIBodyCmd(http.MethodPost),
		newAPIBodyCmd(http.MethodPut),
		newAPIBodyCmd(http.MethodPatch),
		newAPIDeleteCmd(),
	)

	return cmd
}

func newAPIGetCmd() *cobra.Command {
	var query []string

	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "GET request to API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			q, err := parseQuery(query)
			if err != nil {
				return err
			}
			req := api.Request{Method: http.MethodGet, Path: parsePath(args[0], app.Config.BaseURL), Query: q}

			state := load(cmd, app, func(ctx context.Context) api.Result[api.Envelope[json.RawMessage]] {
				return api.Call[json.RawMessage](ctx, app.Client, req)
			})
			if state.Err != nil {
				return state.Err
			}
			return envelopeOK(app, http.MethodGet, req.Path, state.Value)
		},
	}

	cmd.Flags().StringArrayVar(&query, "query", nil, "Query parameter as key=value (repeatable)")

	return cmd
}

func newAPIListCmd() *cobra.Command {
	var query []string
	var page int
	var all bool

	cmd := &cobra.Command{
		Use:   "list <path>",
		Short: "List a paginated collection",
		Long:  "Fetch one page of a list endpoint, or every page with --all.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			q, err := parseQuery(query)
			if err != nil {
				return err
			}
			if page > 0 {
				if q == nil {
					q = url.Values{}
				}
				q.Set("page", strconv.Itoa(page))
			}
			req := api.Request{Method: http.MethodGet, Path: parsePath(args[0], app.Config.BaseURL), Query: q}

			state := load(cmd, app, func(ctx context.Context) api.Result[api.Page[json.RawMessage]] {
				if all {
					return api.GetAll[json.RawMessage](ctx, app.Client, req)
				}
				return api.List[json.RawMessage](ctx, app.Client, req)
			})
			if state.Err != nil {
				return state.Err
			}

			p := state.Value
			summary := fmt.Sprintf("%d items", len(p.Items))
			if !all && p.Meta.TotalPages > 0 {
				summary += fmt.Sprintf(" (page %d of %d)", p.Meta.CurrentPage, p.Meta.TotalPages)
			}
			return app.OK(p.Items,
				output.WithSummary(summary),
				output.WithMeta("pagination", p.Meta),
			)
		},
	}

	cmd.Flags().StringArrayVar(&query, "query", nil, "Query parameter as key=value (repeatable)")
	cmd.Flags().IntVar(&page, "page", 0, "Page to fetch (with --all, the first page)")
	cmd.Flags().BoolVar(&all, "all", false, "Fetch every page")

	return cmd
}

func newAPIBodyCmd(method string) *cobra.Command {
	var data string

	verb := strings.ToLower(method)
	cmd := &cobra.Command{
		Use:   verb + " <path>",
		Short: method + " request to API",
		Long:  "Make a " + method + " request with a JSON body. Use --data - to read the body from stdin.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			body, err := parseBody(data, cmd.InOrStdin())
			if err != nil {
				return err
			}
			req := api.Request{Method: method, Path: parsePath(args[0], app.Config.BaseURL), Body: body}

			state := load(cmd, app, func(ctx context.Context) api.Result[api.Envelope[json.RawMessage]] {
				return api.Call[json.RawMessage](ctx, app.Client, req)
			})
			if state.Err != nil {
				return state.Err
			}
			return envelopeOK(app, method, req.Path, state.Value)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body (required)")
	_ = cmd.MarkFlagRequired("data") // Error only if flag doesn't exist

	return cmd
}

func newAPIDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <path>",
		Short: "DELETE request to API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			req := api.Request{Method: http.MethodDelete, Path: parsePath(args[0], app.Config.BaseURL)}
			state := load(cmd, app, func(ctx context.Context) api.Result[api.Envelope[json.RawMessage]] {
				return api.Call[json.RawMessage](ctx, app.Client, req)
			})
			if state.Err != nil {
				return state.Err
			}
			return envelopeOK(app, http.MethodDelete, req.Path, state.Value)
		},
	}
}

// load runs fn through viewstate, showing a loading line on stderr while an
// interactive terminal waits.
func load[T any](cmd *cobra.Command, app *appctx.App, fn func(context.Context) api.Result[T]) viewstate.State[T] {
	var state viewstate.State[T]
	if app.IsInteractive() {
		updates := make(chan viewstate.State[T], 2)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for s := range updates {
				if s.Phase == viewstate.Loading {
					fmt.Fprint(cmd.ErrOrStderr(), "Loading…\r")
				} else {
					fmt.Fprint(cmd.ErrOrStderr(), "\033[K")
				}
			}
		}()
		state = viewstate.Load(cmd.Context(), updates, fn)
		close(updates)
		<-done
	} else {
		state = viewstate.Load(cmd.Context(), nil, fn)
	}
	if state.SessionEnded() {
		app.Logger.Debug("session ended during request", "code", state.Err.Code)
	}
	return state
}

func envelopeOK(app *appctx.App, method, path string, env api.Envelope[json.RawMessage]) error {
	var data any
	if len(env.Data) > 0 {
		data = env.Data
	}

	summary := fmt.Sprintf("%s %s", method, path)
	if env.Message != "" {
		summary += ": " + env.Message
	} else if s := apiSummary(env.Data); s != "" {
		summary += ": " + s
	}

	opts := []output.ResponseOption{output.WithSummary(summary)}
	if env.Meta != nil {
		opts = append(opts, output.WithMeta("pagination", *env.Meta))
	}
	return app.OK(data, opts...)
}

// parsePath normalizes the API path. A full URL under baseURL is reduced to
// the path below it; any other absolute URL is left for the client to
// refuse. A leading slash is added when missing.
func parsePath(input, baseURL string) string {
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		base := strings.TrimRight(baseURL, "/")
		if base == "" {
			return input
		}
		rest, ok := strings.CutPrefix(input, base)
		if !ok || (rest != "" && rest[0] != '/' && rest[0] != '?') {
			return input
		}
		input = rest
	}
	if !strings.HasPrefix(input, "/") {
		input = "/" + input
	}
	return input
}

// parseQuery turns key=value pairs into url.Values.
func parseQuery(pairs []string) (url.Values, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	q := make(url.Values, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, output.ErrValidation(fmt.Sprintf("Invalid query parameter %q, expected key=value", p))
		}
		q.Add(k, v)
	}
	return q, nil
}

// parseBody validates data as JSON; "-" reads it from stdin.
func parseBody(data string, stdin io.Reader) (json.RawMessage, error) {
	if data == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		data = string(b)
	}
	if strings.TrimSpace(data) == "" {
		return nil, output.ErrValidation("--data is required")
	}
	if !json.Valid([]byte(data)) {
		return nil, output.ErrValidation("Invalid JSON data")
	}
	return json.RawMessage(data), nil
}

// apiSummary describes a response payload: an item count for arrays, else a
// name-like field.
func apiSummary(data json.RawMessage) string {
	var arr []any
	if err := json.Unmarshal(data, &arr); err == nil {
		return fmt.Sprintf("%d items", len(arr))
	}

	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return ""
	}
	for _, key := range []string{"name", "title", "invoiceNumber", "email"} {
		if v, ok := obj[key].(string); ok && v != "" {
			if len(v) > 50 {
				v = v[:47] + "..."
			}
			return v
		}
	}
	return ""
}
