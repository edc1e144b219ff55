// Package commands implements the CLI commands.
package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/maulanasdqn/skyla-pos/internal/account"
	"github.com/maulanasdqn/skyla-pos/internal/appctx"
	"github.com/maulanasdqn/skyla-pos/internal/auth"
	"github.com/maulanasdqn/skyla-pos/internal/output"
	"github.com/maulanasdqn/skyla-pos/internal/tui"
)

// NewAuthCmd creates the auth command group.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication",
		Long:  "Sign in to the POS backend, inspect the stored session, and sign out.",
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthLogoutAllCmd(),
		newAuthStatusCmd(),
		newAuthRefreshCmd(),
		newAuthTokenCmd(),
		NewWhoamiCmd(),
	)

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var email string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password and store the session for the current origin.

Without a terminal, pass the email with --email and pipe the password:
  echo "$POS_PASSWORD" | skyla auth login --email cashier@example.com --password-stdin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			var password string
			switch {
			case passwordStdin:
				pw, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = pw
			case app.IsInteractive():
				creds, err := tui.LoginForm(email)
				if errors.Is(err, tui.ErrCanceled) {
					return output.ErrValidation("Login canceled")
				}
				if err != nil {
					return err
				}
				email, password = creds.Email, creds.Password
			default:
				return output.ErrValidation("No terminal for the password prompt. Use --email with --password-stdin")
			}

			result := app.Account.Login(cmd.Context(), email, password)
			user, err := result.Unwrap()
			if err != nil {
				return err
			}

			// Leftover plaintext credentials move out once the keyring holds the session.
			if err := app.Store.MigrateToKeyring(cmd.Context()); err != nil {
				app.Logger.Warn("keyring migration failed", "error", err)
			}

			return app.OK(userData(user),
				output.WithSummary(fmt.Sprintf("Logged in as %s (%s)", user.DisplayName(), user.Role)),
			)
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")

	return cmd
}

// readPassword reads the first line of r.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out on this device",
		Long:  "Revoke the refresh token on the server when reachable and remove the stored session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			if err := app.Account.Logout(cmd.Context()); err != nil {
				return err
			}

			return app.OK(map[string]string{
				"status": "logged_out",
			}, output.WithSummary("Successfully logged out"))
		},
	}
}

func newAuthLogoutAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout-all",
		Short: "Sign out on every device",
		Long:  "Revoke every session of the current user on the server and remove the stored session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			if err := app.Account.LogoutAll(cmd.Context()); err != nil {
				return err
			}

			return app.OK(map[string]string{
				"status": "logged_out_everywhere",
			}, output.WithSummary("Logged out of all sessions"))
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		Long:  "Display the stored session, where it is kept, and when the access token expires.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			status, err := sessionStatus(cmd, app, time.Now())
			if err != nil {
				return err
			}

			summary := "Not authenticated"
			if status["authenticated"] == true {
				summary = "Authenticated"
				if name, ok := status["name"].(string); ok && name != "" {
					summary += " as " + name
				}
			}
			return app.OK(status, output.WithSummary(summary))
		},
	}
}

func sessionStatus(cmd *cobra.Command, app *appctx.App, now time.Time) (map[string]any, error) {
	ctx := cmd.Context()
	backend := "file"
	if app.Store.UsingKeyring() {
		backend = "keyring"
	}

	state := app.Session.State(ctx)
	status := map[string]any{
		"authenticated": state == auth.StateLoggedIn,
		"state":         state.String(),
		"origin":        app.Store.Origin(),
		"storage":       backend,
	}
	if state != auth.StateLoggedIn {
		return status, nil
	}

	id, err := app.Session.Identity(ctx)
	if err != nil {
		return nil, err
	}
	if id != nil {
		status["user_id"] = id.UserID
		status["name"] = id.DisplayName
		status["email"] = id.Email
		status["role"] = id.Role
	}

	creds, err := app.Store.Read(ctx)
	if err != nil {
		return nil, err
	}
	if creds != nil {
		if info, err := auth.InspectToken(creds.AccessToken); err == nil && !info.ExpiresAt.IsZero() {
			expiresIn := info.ExpiresAt.Sub(now)
			status["expires_in"] = expiresIn.Round(time.Second).String()
			status["expired"] = info.Expired(now)
		}
	}
	return status, nil
}

func newAuthRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the access token",
		Long:  "Exchange the stored refresh token for a new token pair now.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			outcome, err := app.Client.Refresh(cmd.Context())
			if err != nil {
				return err
			}

			return app.OK(map[string]string{
				"status":  "refreshed",
				"outcome": outcome.String(),
			}, output.WithSummary("Token refreshed successfully"))
		},
	}
}

func newAuthTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print the access token",
		Long: `Print the current access token to stdout for use with other tools.

Examples:
  curl -H "Authorization: Bearer $(skyla auth token)" ...

Output modes:
  skyla auth token           # Raw token (default, for shell substitution)
  skyla auth token --json    # JSON envelope with token in data field`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			creds, err := app.Session.AccessToken(cmd.Context())
			if err != nil {
				return err
			}

			// Raw token by default for shell substitution.
			if app.Flags.JSON {
				return app.OK(map[string]string{"token": creds.AccessToken, "type": creds.Scheme()})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), creds.AccessToken)
			return err
		},
	}
}

// NewWhoamiCmd creates the whoami command.
func NewWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Long:  "Ask the server who the current session belongs to.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			user, err := app.Account.Me(cmd.Context()).Unwrap()
			if err != nil {
				return err
			}
			return app.OK(userData(user), output.WithSummary(user.DisplayName()))
		},
	}
}

func userData(u account.User) map[string]any {
	return map[string]any{
		"id":    string(u.ID),
		"name":  u.DisplayName(),
		"email": u.Email,
		"role":  u.Role,
	}
}
