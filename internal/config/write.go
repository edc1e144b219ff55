package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// SettableKeys lists the keys accepted by SetValue, in display order.
var SettableKeys = []string{
	"base_url",
	"timeout",
	"refresh_timeout",
	"data_dir",
	"no_keyring",
	"format",
	"verbose",
}

var formats = []string{"auto", "json", "styled", "quiet"}

// GlobalConfigPath returns the per-user config file path.
func GlobalConfigPath() string {
	return globalConfigPath()
}

// SetValue validates value for key and writes it to the config file at path,
// keeping any other keys already present.
func SetValue(path, key, value string) error {
	parsed, err := parseValue(key, value)
	if err != nil {
		return err
	}
	return rewrite(path, func(doc map[string]any) {
		doc[key] = parsed
	})
}

// UnsetValue removes key from the config file at path.
func UnsetValue(path, key string) error {
	if !slices.Contains(SettableKeys, key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	return rewrite(path, func(doc map[string]any) {
		delete(doc, key)
	})
}

func parseValue(key, value string) (any, error) {
	switch key {
	case "base_url":
		v := NormalizeBaseURL(value)
		if v == "" {
			return nil, fmt.Errorf("base_url must not be empty")
		}
		return v, nil
	case "timeout", "refresh_timeout":
		d, err := parseDuration(value)
		if err != nil {
			return nil, err
		}
		if d <= 0 {
			return nil, fmt.Errorf("%s must be positive", key)
		}
		return d.String(), nil
	case "data_dir":
		if strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("data_dir must not be empty")
		}
		return value, nil
	case "no_keyring":
		b, ok := parseEnvBool(value)
		if !ok {
			return nil, fmt.Errorf("no_keyring must be true or false")
		}
		return b, nil
	case "format":
		if !slices.Contains(formats, value) {
			return nil, fmt.Errorf("format must be one of %s", strings.Join(formats, ", "))
		}
		return value, nil
	case "verbose":
		switch value {
		case "0", "1", "2":
			return int(value[0] - '0'), nil
		}
		return nil, fmt.Errorf("verbose must be 0, 1 or 2")
	}
	return nil, fmt.Errorf("unknown config key %q", key)
}

func rewrite(path string, mutate func(map[string]any)) error {
	doc := make(map[string]any)
	data, err := os.ReadFile(path) //nolint:gosec // G304: Path is from trusted config locations
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if doc == nil {
			doc = make(map[string]any)
		}
	case !os.IsNotExist(err):
		return err
	}

	mutate(doc)

	out, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return atomicWriteFile(path, out)
}

func atomicWriteFile(path string, data []byte) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// Windows: rename fails when destination exists.
	if err := os.Rename(tmpPath, path); err != nil && runtime.GOOS == "windows" {
		_ = os.Remove(path)
		return os.Rename(tmpPath, path)
	} else { //nolint:revive // two-branch pattern
		return err
	}
}
