package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, 30*24*time.Hour, cfg.GetTokenTTL())
	assert.Zero(t, cfg.GetRefreshInterval())
}

func TestLoadYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deliblab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9090"
refresh_interval: 30s
storage:
  backend: sqlite
  sqlite_path: /tmp/lab.db
llm:
  provider: genai
  model: gemini-2.0-flash
  timeout: 5s
`), 0o600))
	t.Setenv("DELIBLAB_LLM_API_KEY", "secret")
	t.Setenv("DELIBLAB_ADDR", ":7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, 30*time.Second, cfg.GetRefreshInterval())

	opts := cfg.LLMOptions()
	assert.Equal(t, "genai", opts.Provider)
	assert.Equal(t, "secret", opts.APIKey)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.Equal(t, "us-central1", opts.Location)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"backend":  func(c *Config) { c.Storage.Backend = "s3" },
		"drive":    func(c *Config) { c.Storage.Backend = "drive" },
		"interval": func(c *Config) { c.RefreshInterval = "soon" },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}
	assert.NoError(t, Default().Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "cfg.yaml")
	cfg := Default()
	cfg.Drive.AccessToken = "tok"
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tok", got.Drive.AccessToken)
}
