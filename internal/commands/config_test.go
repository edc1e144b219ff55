package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maulanasdqn/skyla-pos/internal/config"
	"github.com/maulanasdqn/skyla-pos/internal/output"
)

func TestConfigShow(t *testing.T) {
	h := newHarness(t)
	h.app.Config.Sources["base_url"] = string(config.SourceFlag)

	_, err := h.run(t, NewConfigCmd(), "", "show")
	require.NoError(t, err)

	data := h.data(t)
	baseURL := data["base_url"].(map[string]any)
	assert.Equal(t, h.app.Config.BaseURL, baseURL["value"])
	assert.Equal(t, "flag", baseURL["source"])

	login := data["endpoints.login"].(map[string]any)
	assert.Equal(t, "/auth/login", login["value"])
	assert.Equal(t, "default", login["source"])
	assert.NotContains(t, data, "verbose")
}

func TestConfigSetAndUnset(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	h := newHarness(t)
	path := config.GlobalConfigPath()

	_, err := h.run(t, NewConfigCmd(), "", "set", "format", "quiet")
	require.NoError(t, err)
	assert.Equal(t, path, h.data(t)["file"])

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "format: quiet")
	assert.Equal(t, filepath.Join(os.Getenv("XDG_CONFIG_HOME"), "skyla", "config.yaml"), path)

	_, err = h.run(t, NewConfigCmd(), "", "unset", "format")
	require.NoError(t, err)
	contents, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(contents), "format")
}

func TestConfigSetRejectsBadValue(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	h := newHarness(t)

	_, err := h.run(t, NewConfigCmd(), "", "set", "timeout", "soon")
	assert.True(t, output.IsCode(err, output.CodeValidation))
}

func TestVersionCmd(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, NewVersionCmd(), "")
	require.NoError(t, err)
	assert.Contains(t, out, "skyla version")
}
