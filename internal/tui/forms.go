// Package tui holds the interactive prompts.
package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrCanceled is returned when the user aborts a prompt.
var ErrCanceled = errors.New("prompt canceled")

// Credentials is what the login form collects.
type Credentials struct {
	Email    string
	Password string
}

// LoginForm asks for an email address and password. A non-empty email is
// used as the initial value and the password field gets focus first.
func LoginForm(email string) (Credentials, error) {
	creds := Credentials{Email: email}

	emailInput := huh.NewInput().
		Title("Email").
		Placeholder("cashier@example.com").
		Value(&creds.Email).
		Validate(required("email"))
	passwordInput := huh.NewInput().
		Title("Password").
		EchoMode(huh.EchoModePassword).
		Value(&creds.Password).
		Validate(required("password"))

	fields := []huh.Field{emailInput, passwordInput}
	if email != "" {
		fields = fields[1:]
	}

	err := huh.NewForm(huh.NewGroup(fields...)).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return Credentials{}, ErrCanceled
	}
	if err != nil {
		return Credentials{}, err
	}
	creds.Email = strings.TrimSpace(creds.Email)
	return creds, nil
}

// Confirm shows a yes/no confirmation prompt.
func Confirm(message string, defaultValue bool) (bool, error) {
	result := defaultValue
	err := huh.NewConfirm().
		Title(message).
		Affirmative("Yes").
		Negative("No").
		Value(&result).
		Run()
	if err != nil {
		return defaultValue, err
	}
	return result, nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New(field + " is required")
		}
		return nil
	}
}
