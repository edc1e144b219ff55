// Package appctx provides application context helpers.
package appctx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/maulanasdqn/skyla-pos/internal/account"
	"github.com/maulanasdqn/skyla-pos/internal/api"
	"github.com/maulanasdqn/skyla-pos/internal/auth"
	"github.com/maulanasdqn/skyla-pos/internal/config"
	"github.com/maulanasdqn/skyla-pos/internal/observability"
	"github.com/maulanasdqn/skyla-pos/internal/output"
)

// contextKey is a private type for context keys.
type contextKey string

const appKey contextKey = "app"

// App holds the shared application context for all commands.
type App struct {
	Config  *config.Config
	Store   *auth.Store
	Session *auth.Session
	Client  *api.Client
	Account *account.Manager
	Output  *output.Writer
	Logger  *slog.Logger

	// Observability
	Collector *observability.SessionCollector
	Hooks     *observability.CLIHooks

	// Flags holds the global flag values
	Flags GlobalFlags

	logLevel *slog.LevelVar
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	// Output format flags
	JSON   bool
	Quiet  bool
	Styled bool
	JQ     string
	Format string

	// Connection flags
	BaseURL   string
	DataDir   string
	Timeout   time.Duration
	NoKeyring bool

	// Behavior flags
	Verbose int // 0=off, 1=operations+refreshes, 2=+requests (stacks with -v -v or -vv)
	Stats   bool
}

// NewApp wires the session stack for cfg. Verbosity starts at zero;
// ApplyFlags sets the actual level from -v flags.
func NewApp(cfg *config.Config) *App {
	// Warnings (keyring fallback) always reach stderr; ApplyFlags lowers the level.
	logLevel := new(slog.LevelVar)
	logLevel.Set(slog.LevelWarn)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	// Collector always runs to gather stats; hooks control output verbosity
	collector := observability.NewSessionCollector()
	hooks := observability.NewCLIHooks(0, collector, observability.NewTraceWriter())

	store := auth.NewStore(cfg.BaseURL, auth.StoreOptions{
		Dir:       cfg.DataDir,
		NoKeyring: cfg.NoKeyring,
		Logger:    logger,
	})
	exchanger := api.NewTokenExchanger(cfg, api.WithLogger(logger))
	session := auth.NewSession(store, exchanger, auth.SessionOptions{
		RefreshTimeout: cfg.RefreshTimeout.Std(),
		Logger:         logger,
	})
	client := api.NewClient(cfg, session, api.WithHooks(hooks), api.WithLogger(logger))

	return &App{
		Config:    cfg,
		Store:     store,
		Session:   session,
		Client:    client,
		Account:   account.NewManager(cfg, client, logger),
		Logger:    logger,
		Collector: collector,
		Hooks:     hooks,
		logLevel:  logLevel,
		Output: output.New(output.Options{
			Format: output.ParseFormat(cfg.Format),
			Writer: os.Stdout,
		}),
	}
}

// Close releases the credential store. Output helpers remain usable.
func (a *App) Close() {
	if a.Store != nil {
		_ = a.Store.Close()
	}
}

// ApplyFlags applies global flag values to the app configuration.
func (a *App) ApplyFlags() {
	// Specific modes first
	format := output.ParseFormat(a.Config.Format)
	switch {
	case a.Flags.Quiet:
		format = output.FormatQuiet
	case a.Flags.JSON:
		format = output.FormatJSON
	case a.Flags.Styled:
		// Force ANSI styled output (even when piped)
		format = output.FormatStyled
	}
	a.Output = output.New(output.Options{
		Format: format,
		Writer: os.Stdout,
		JQ:     a.Flags.JQ,
	})

	level := verboseLevel(a.Flags.Verbose)
	if a.Hooks != nil {
		a.Hooks.SetLevel(level)
	}
	if level > 0 && a.logLevel != nil {
		a.logLevel.Set(slog.LevelDebug)
	}
}

// verboseLevel combines the -v count with SKYLA_DEBUG.
func verboseLevel(flag int) int {
	level := flag
	if debugEnv := os.Getenv("SKYLA_DEBUG"); debugEnv != "" {
		// SKYLA_DEBUG can be "1", "2", or "true" (treated as 2 for full debug)
		if n, err := strconv.Atoi(debugEnv); err == nil {
			level = max(level, n)
		} else if debugEnv == "true" {
			level = 2
		}
	}
	return level
}

// OK outputs a success response, including stats if --stats is set.
func (a *App) OK(data any, opts ...output.ResponseOption) error {
	if a.Flags.Stats && a.Collector != nil {
		opts = append(opts, output.WithMeta("stats", a.Collector.Summary()))
	}
	return a.Output.OK(data, opts...)
}

// Err outputs an error response, printing stats to stderr if --stats is set.
func (a *App) Err(err error) error {
	if outputErr := a.Output.Err(err); outputErr != nil {
		return outputErr
	}

	// Machine-consumable output keeps stderr clean.
	if a.Flags.Stats && a.Collector != nil && !a.isMachineOutput() {
		fmt.Fprintf(os.Stderr, "\n%s\n", observability.FormatStats(a.Collector.Summary()))
	}
	return nil
}

// isMachineOutput returns true if the output mode is intended for programmatic consumption.
func (a *App) isMachineOutput() bool {
	if a.Flags.Quiet {
		return true
	}
	return a.Config != nil && a.Config.Format == "quiet"
}

// IsInteractive returns true if prompts can be shown.
func (a *App) IsInteractive() bool {
	if a.Flags.JSON || a.Flags.Quiet {
		return false
	}
	return isTerminal(os.Stdin) && isTerminal(os.Stdout)
}

// WithApp stores the app in the context.
func WithApp(ctx context.Context, app *App) context.Context {
	return context.WithValue(ctx, appKey, app)
}

// FromContext retrieves the app from the context.
func FromContext(ctx context.Context) *App {
	if ctx == nil {
		return nil
	}
	app, _ := ctx.Value(appKey).(*App)
	return app
}
