package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/maulanasdqn/skyla-pos/internal/appctx"
	"github.com/maulanasdqn/skyla-pos/internal/config"
	"github.com/maulanasdqn/skyla-pos/internal/output"
)

// NewConfigCmd creates the config command for managing configuration.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage skyla configuration.

Configuration is loaded from multiple sources with the following precedence:
  flags > env (.env included) > global > system > defaults

Config locations:
  - System: /etc/skyla/config.yaml
  - Global: ~/.config/skyla/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}

	cmd.AddCommand(
		newConfigShowCmd(),
		newConfigSetCmd(),
		newConfigUnsetCmd(),
	)

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  "Display the current effective configuration with source information.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd)
		},
	}
}

func runConfigShow(cmd *cobra.Command) error {
	app := appctx.FromContext(cmd.Context())
	if app == nil {
		return fmt.Errorf("app not initialized")
	}
	return app.OK(configEntries(app.Config), output.WithSummary("Effective configuration"))
}

func configEntries(cfg *config.Config) map[string]any {
	keys := []struct {
		key   string
		value string
	}{
		{"base_url", cfg.BaseURL},
		{"timeout", cfg.Timeout.String()},
		{"refresh_timeout", cfg.RefreshTimeout.String()},
		{"data_dir", cfg.DataDir},
		{"no_keyring", strconv.FormatBool(cfg.NoKeyring)},
		{"format", cfg.Format},
		{"endpoints.login", cfg.Endpoints.Login},
		{"endpoints.refresh", cfg.Endpoints.Refresh},
		{"endpoints.logout", cfg.Endpoints.Logout},
		{"endpoints.logout_all", cfg.Endpoints.LogoutAll},
		{"endpoints.me", cfg.Endpoints.Me},
	}
	if cfg.Verbose != nil {
		keys = append(keys, struct {
			key   string
			value string
		}{"verbose", strconv.Itoa(*cfg.Verbose)})
	}

	entries := make(map[string]any, len(keys))
	for _, k := range keys {
		source := cfg.Sources[k.key]
		if source == "" {
			source = string(config.SourceDefault)
		}
		entries[k.key] = map[string]string{
			"value":  k.value,
			"source": source,
		}
	}
	return entries
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "set <key> <value>",
		Short:     "Set a value in the global config file",
		Args:      cobra.ExactArgs(2),
		ValidArgs: config.SettableKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			path := config.GlobalConfigPath()
			if err := config.SetValue(path, args[0], args[1]); err != nil {
				return output.ErrValidation(err.Error())
			}
			return app.OK(map[string]string{
				"key":   args[0],
				"value": args[1],
				"file":  path,
			}, output.WithSummary(fmt.Sprintf("Set %s in %s", args[0], path)))
		},
	}
}

func newConfigUnsetCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "unset <key>",
		Short:     "Remove a value from the global config file",
		Args:      cobra.ExactArgs(1),
		ValidArgs: config.SettableKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			path := config.GlobalConfigPath()
			if err := config.UnsetValue(path, args[0]); err != nil {
				return output.ErrValidation(err.Error())
			}
			return app.OK(map[string]string{
				"key":  args[0],
				"file": path,
			}, output.WithSummary(fmt.Sprintf("Unset %s in %s", args[0], path)))
		},
	}
}
