// Package config provides layered configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the resolved configuration.
type Config struct {
	// API settings
	BaseURL   string    `yaml:"base_url"`
	Timeout   Duration  `yaml:"timeout"`
	Endpoints Endpoints `yaml:"endpoints"`

	// Session settings
	DataDir        string   `yaml:"data_dir"`
	NoKeyring      bool     `yaml:"no_keyring"`
	RefreshTimeout Duration `yaml:"refresh_timeout"`

	// Output settings
	Format  string `yaml:"format"`
	Verbose *int   `yaml:"verbose,omitempty"`

	// Sources tracks where each value came from (for debugging).
	Sources map[string]string `yaml:"-"`
}

// Endpoints are the API paths of the session endpoints, relative to BaseURL.
type Endpoints struct {
	Login     string `yaml:"login"`
	Refresh   string `yaml:"refresh"`
	Logout    string `yaml:"logout"`
	LogoutAll string `yaml:"logout_all"`
	Me        string `yaml:"me"`
}

// Duration is a time.Duration that reads "30s"-style strings or plain seconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := parseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return d, nil
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceSystem  Source = "system"
	SourceGlobal  Source = "global"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// FlagOverrides holds command-line flag values.
type FlagOverrides struct {
	BaseURL   string
	DataDir   string
	Format    string
	Timeout   time.Duration
	NoKeyring bool
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		BaseURL:        "http://localhost:8080/api/v1",
		Timeout:        Duration(30 * time.Second),
		RefreshTimeout: Duration(15 * time.Second),
		DataDir:        defaultDataDir(),
		Format:         "auto",
		Endpoints: Endpoints{
			Login:     "/auth/login",
			Refresh:   "/auth/refresh",
			Logout:    "/auth/logout",
			LogoutAll: "/auth/logout-all",
			Me:        "/auth/me",
		},
		Sources: make(map[string]string),
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > env (.env included) > global > system > defaults
func Load(overrides FlagOverrides) (*Config, error) {
	cfg := Default()

	loadFromFile(cfg, systemConfigPath(), SourceSystem)
	loadFromFile(cfg, globalConfigPath(), SourceGlobal)

	// .env never overrides variables already set in the process environment.
	_ = godotenv.Load()
	LoadFromEnv(cfg)

	ApplyOverrides(cfg, overrides)

	cfg.BaseURL = NormalizeBaseURL(cfg.BaseURL)
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base_url must not be empty")
	}
	return cfg, nil
}

// fileConfig mirrors Config with pointer fields so that absent keys can be
// told apart from zero values.
type fileConfig struct {
	BaseURL        *string   `yaml:"base_url"`
	Timeout        *Duration `yaml:"timeout"`
	DataDir        *string   `yaml:"data_dir"`
	NoKeyring      *bool     `yaml:"no_keyring"`
	RefreshTimeout *Duration `yaml:"refresh_timeout"`
	Format         *string   `yaml:"format"`
	Verbose        *int      `yaml:"verbose"`
	Endpoints      *struct {
		Login     string `yaml:"login"`
		Refresh   string `yaml:"refresh"`
		Logout    string `yaml:"logout"`
		LogoutAll string `yaml:"logout_all"`
		Me        string `yaml:"me"`
	} `yaml:"endpoints"`
}

func loadFromFile(cfg *Config, path string, source Source) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	if err != nil {
		return // File doesn't exist, skip
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		fmt.Fprintf(os.Stderr, "warning: skipping malformed config at %s: %v\n", path, err)
		return
	}

	src := string(source)
	if fc.BaseURL != nil && *fc.BaseURL != "" {
		cfg.BaseURL = *fc.BaseURL
		cfg.Sources["base_url"] = src
	}
	if fc.Timeout != nil && *fc.Timeout > 0 {
		cfg.Timeout = *fc.Timeout
		cfg.Sources["timeout"] = src
	}
	if fc.RefreshTimeout != nil && *fc.RefreshTimeout > 0 {
		cfg.RefreshTimeout = *fc.RefreshTimeout
		cfg.Sources["refresh_timeout"] = src
	}
	if fc.DataDir != nil && *fc.DataDir != "" {
		cfg.DataDir = *fc.DataDir
		cfg.Sources["data_dir"] = src
	}
	if fc.NoKeyring != nil {
		cfg.NoKeyring = *fc.NoKeyring
		cfg.Sources["no_keyring"] = src
	}
	if fc.Format != nil && *fc.Format != "" {
		cfg.Format = *fc.Format
		cfg.Sources["format"] = src
	}
	if fc.Verbose != nil && *fc.Verbose >= 0 && *fc.Verbose <= 2 {
		v := *fc.Verbose
		cfg.Verbose = &v
		cfg.Sources["verbose"] = src
	}
	if e := fc.Endpoints; e != nil {
		setPath(cfg, &cfg.Endpoints.Login, e.Login, "endpoints.login", src)
		setPath(cfg, &cfg.Endpoints.Refresh, e.Refresh, "endpoints.refresh", src)
		setPath(cfg, &cfg.Endpoints.Logout, e.Logout, "endpoints.logout", src)
		setPath(cfg, &cfg.Endpoints.LogoutAll, e.LogoutAll, "endpoints.logout_all", src)
		setPath(cfg, &cfg.Endpoints.Me, e.Me, "endpoints.me", src)
	}
}

func setPath(cfg *Config, dst *string, v, key, src string) {
	if v == "" {
		return
	}
	if !strings.HasPrefix(v, "/") {
		v = "/" + v
	}
	*dst = v
	cfg.Sources[key] = src
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SKYLA_BASE_URL"); v != "" {
		cfg.BaseURL = v
		cfg.Sources["base_url"] = string(SourceEnv)
	}
	if v := os.Getenv("SKYLA_DATA_DIR"); v != "" {
		cfg.DataDir = v
		cfg.Sources["data_dir"] = string(SourceEnv)
	}
	if v := os.Getenv("SKYLA_NO_KEYRING"); v != "" {
		if b, ok := parseEnvBool(v); ok {
			cfg.NoKeyring = b
			cfg.Sources["no_keyring"] = string(SourceEnv)
		}
	}
	if v := os.Getenv("SKYLA_TIMEOUT"); v != "" {
		if d, err := parseDuration(v); err == nil && d > 0 {
			cfg.Timeout = Duration(d)
			cfg.Sources["timeout"] = string(SourceEnv)
		}
	}
	if v := os.Getenv("SKYLA_FORMAT"); v != "" {
		cfg.Format = v
		cfg.Sources["format"] = string(SourceEnv)
	}
}

func parseEnvBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true, true
	case "false", "0", "no":
		return false, true
	default:
		return false, false
	}
}

// ApplyOverrides applies command-line flag values.
func ApplyOverrides(cfg *Config, o FlagOverrides) {
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
		cfg.Sources["base_url"] = string(SourceFlag)
	}
	if o.DataDir != "" {
		cfg.DataDir = o.DataDir
		cfg.Sources["data_dir"] = string(SourceFlag)
	}
	if o.Format != "" {
		cfg.Format = o.Format
		cfg.Sources["format"] = string(SourceFlag)
	}
	if o.Timeout > 0 {
		cfg.Timeout = Duration(o.Timeout)
		cfg.Sources["timeout"] = string(SourceFlag)
	}
	if o.NoKeyring {
		cfg.NoKeyring = true
		cfg.Sources["no_keyring"] = string(SourceFlag)
	}
}

// NormalizeBaseURL converts a host or URL into a canonical base URL:
// bare localhost hosts get http://, other bare hosts get https://, and
// trailing slashes are removed.
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		if isLocalhost(raw) {
			raw = "http://" + raw
		} else {
			raw = "https://" + raw
		}
	}
	return strings.TrimRight(raw, "/")
}

func isLocalhost(host string) bool {
	h := host
	if i := strings.IndexAny(h, "/"); i >= 0 {
		h = h[:i]
	}
	if i := strings.LastIndex(h, ":"); i >= 0 && !strings.HasSuffix(h, "]") {
		h = h[:i]
	}
	return h == "localhost" || strings.HasSuffix(h, ".localhost") || h == "127.0.0.1" || h == "[::1]"
}

// Path helpers

func systemConfigPath() string {
	return "/etc/skyla/config.yaml"
}

func globalConfigPath() string {
	return filepath.Join(GlobalConfigDir(), "config.yaml")
}

// GlobalConfigDir returns the per-user configuration directory.
func GlobalConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "skyla")
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "skyla")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "skyla")
}
