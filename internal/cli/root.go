// Package cli assembles the skyla command tree.
package cli

import (
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maulanasdqn/skyla-pos/internal/appctx"
	"github.com/maulanasdqn/skyla-pos/internal/commands"
	"github.com/maulanasdqn/skyla-pos/internal/config"
	"github.com/maulanasdqn/skyla-pos/internal/output"
	"github.com/maulanasdqn/skyla-pos/internal/version"
)

// NewRootCmd creates the root cobra command.
func NewRootCmd() *cobra.Command {
	var flags appctx.GlobalFlags

	cmd := &cobra.Command{
		Use:           "skyla",
		Short:         "Command-line client for the Skyla point-of-sale API",
		Long:          "skyla signs in to a Skyla POS backend and calls its API with a self-refreshing session.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip setup for help and version commands
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}

			cfg, err := config.Load(config.FlagOverrides{
				BaseURL:   flags.BaseURL,
				DataDir:   flags.DataDir,
				Format:    flags.Format,
				Timeout:   flags.Timeout,
				NoKeyring: flags.NoKeyring,
			})
			if err != nil {
				return output.ErrValidation(err.Error())
			}

			app := appctx.NewApp(cfg)
			app.Flags = flags
			app.ApplyFlags()

			cmd.SetContext(appctx.WithApp(cmd.Context(), app))
			return nil
		},
	}

	// Allow flags anywhere in the command line
	cmd.Flags().SetInterspersed(true)
	cmd.PersistentFlags().SetInterspersed(true)

	// Output format flags
	cmd.PersistentFlags().BoolVarP(&flags.JSON, "json", "j", false, "Output as JSON")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Output data only, no envelope")
	cmd.PersistentFlags().BoolVar(&flags.Styled, "styled", false, "Force styled output (ANSI colors)")
	cmd.PersistentFlags().StringVar(&flags.JQ, "jq", "", "Filter output data with a jq expression")
	cmd.PersistentFlags().StringVar(&flags.Format, "format", "", "Output format: auto, json, styled, quiet")

	// Connection flags
	cmd.PersistentFlags().StringVar(&flags.BaseURL, "base-url", "", "API base URL (e.g., https://pos.example.com/api/v1)")
	cmd.PersistentFlags().StringVar(&flags.DataDir, "data-dir", "", "Directory for the credentials file")
	cmd.PersistentFlags().DurationVar(&flags.Timeout, "timeout", 0, "HTTP request timeout")
	cmd.PersistentFlags().BoolVar(&flags.NoKeyring, "no-keyring", false, "Store credentials in a file instead of the system keyring")

	// Behavior flags
	cmd.PersistentFlags().CountVarP(&flags.Verbose, "verbose", "v", "Verbose output (-v for operations, -vv for requests)")
	cmd.PersistentFlags().BoolVar(&flags.Stats, "stats", false, "Show session statistics")

	return cmd
}

// Execute runs the root command.
func Execute() {
	cmd := NewRootCmd()
	addCommands(cmd)

	// Use ExecuteC to get the executed command (for correct context access)
	executedCmd, err := cmd.ExecuteC()
	app := appctx.FromContext(executedCmd.Context())
	if app != nil {
		app.Close()
	}
	if err != nil {
		err = transformCobraError(err)
		apiErr := output.AsError(err)

		// Try to use app.Err() if app is available (for --stats support)
		if app != nil {
			_ = app.Err(err)
			os.Exit(apiErr.ExitCode())
		}

		// Fallback: output error directly (app not available, e.g., during setup)
		writer := output.New(output.Options{
			Format: fallbackFormat(cmd),
			Writer: os.Stdout,
		})
		_ = writer.Err(err)

		os.Exit(apiErr.ExitCode())
	}
}

func addCommands(cmd *cobra.Command) {
	cmd.AddCommand(commands.NewAuthCmd())
	cmd.AddCommand(commands.NewWhoamiCmd())
	cmd.AddCommand(commands.NewAPICmd())
	cmd.AddCommand(commands.NewConfigCmd())
	cmd.AddCommand(commands.NewVersionCmd())
}

// fallbackFormat reads the output flags straight from cobra when setup failed
// before the app existed.
func fallbackFormat(cmd *cobra.Command) output.Format {
	pf := cmd.PersistentFlags()
	quiet, _ := pf.GetBool("quiet")
	jsonFlag, _ := pf.GetBool("json")
	styled, _ := pf.GetBool("styled")

	switch {
	case quiet:
		return output.FormatQuiet
	case jsonFlag:
		return output.FormatJSON
	case styled:
		return output.FormatStyled
	}
	return output.FormatAuto
}

var shorthandFlagRe = regexp.MustCompile(`unknown shorthand flag: '.' in (-\w)`)

// transformCobraError turns cobra's parse errors into validation errors with
// consistent wording.
func transformCobraError(err error) error {
	msg := err.Error()

	// "flag needs an argument: --FLAG" → "--FLAG requires a value"
	if flag, ok := strings.CutPrefix(msg, "flag needs an argument: "); ok {
		return output.ErrValidation(flag + " requires a value")
	}

	if flag, ok := strings.CutPrefix(msg, "unknown flag: "); ok {
		return output.ErrValidation("Unknown option: " + flag)
	}

	if strings.HasPrefix(msg, "unknown shorthand flag: ") {
		if matches := shorthandFlagRe.FindStringSubmatch(msg); len(matches) > 1 {
			return output.ErrValidation("Unknown option: " + matches[1])
		}
	}

	if strings.HasPrefix(msg, "unknown command ") {
		return output.ErrValidation(msg)
	}

	if strings.Contains(msg, "invalid argument") {
		return output.ErrValidation(msg)
	}

	if strings.Contains(msg, "arg(s), received") {
		return output.ErrValidation(msg)
	}

	return err
}
