package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/deliblab/deliblab/internal/llm"
	"github.com/deliblab/deliblab/internal/utils"
)

// Config holds the server and labctl settings.
type Config struct {
	Addr            string        `yaml:"addr"`
	StaticDir       string        `yaml:"static_dir"`
	RefreshInterval string        `yaml:"refresh_interval"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	Storage         StorageConfig `yaml:"storage"`
	Auth            AuthConfig    `yaml:"auth"`
	LLM             LLMConfig     `yaml:"llm"`
	Drive           DriveConfig   `yaml:"drive"`
	Logging         LoggingConfig `yaml:"logging"`
}

type StorageConfig struct {
	// Backend is file, sqlite or drive.
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	SQLitePath    string `yaml:"sqlite_path"`
	MigrationsDir string `yaml:"migrations_dir"`
	// LegacyPath is a JSON state file copied into SQLite on first run.
	LegacyPath string `yaml:"legacy_path"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  string `yaml:"token_ttl"`
}

type LLMConfig struct {
	Provider       string `yaml:"provider"` // vertex, genai
	Endpoint       string `yaml:"endpoint"`
	Model          string `yaml:"model"`
	EmbeddingModel string `yaml:"embedding_model"`
	APIKey         string `yaml:"api_key"`
	Project        string `yaml:"project"`
	Location       string `yaml:"location"`
	Timeout        string `yaml:"timeout"`
	CacheTTL       string `yaml:"cache_ttl"`
}

type DriveConfig struct {
	AccessToken string `yaml:"access_token"`
	BaseURL     string `yaml:"base_url"`
}

type LoggingConfig struct {
	File       string `yaml:"file"`
	Production bool   `yaml:"production"`
}

func Default() *Config {
	return &Config{
		Addr:    ":8080",
		Storage: StorageConfig{Backend: "file", Path: "data/state.json", SQLitePath: "data/deliblab.db"},
		Auth:    AuthConfig{JWTSecret: "deliblab-dev-secret", TokenTTL: "720h"},
		LLM:     LLMConfig{Provider: "vertex", Location: "us-central1", Timeout: "60s", CacheTTL: "24h"},
	}
}

// Load reads path (a missing file yields defaults) and applies DELIBLAB_* overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyEnvOverrides() {
	c.Addr = utils.SafeEnv("DELIBLAB_ADDR", c.Addr)
	c.StaticDir = utils.SafeEnv("DELIBLAB_STATIC_DIR", c.StaticDir)
	c.RefreshInterval = utils.SafeEnv("DELIBLAB_REFRESH_INTERVAL", c.RefreshInterval)
	if v := utils.SafeEnv("DELIBLAB_CORS_ORIGINS", ""); v != "" {
		c.CORSOrigins = strings.Split(v, ",")
	}

	c.Storage.Backend = utils.SafeEnv("DELIBLAB_STORAGE", c.Storage.Backend)
	c.Storage.Path = utils.SafeEnv("DELIBLAB_STATE_PATH", c.Storage.Path)
	c.Storage.SQLitePath = utils.SafeEnv("DELIBLAB_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.MigrationsDir = utils.SafeEnv("DELIBLAB_MIGRATIONS_DIR", c.Storage.MigrationsDir)
	c.Storage.LegacyPath = utils.SafeEnv("DELIBLAB_LEGACY_PATH", c.Storage.LegacyPath)

	c.Auth.JWTSecret = utils.SafeEnv("DELIBLAB_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.TokenTTL = utils.SafeEnv("DELIBLAB_TOKEN_TTL", c.Auth.TokenTTL)

	c.LLM.Provider = utils.SafeEnv("DELIBLAB_LLM_PROVIDER", c.LLM.Provider)
	c.LLM.Endpoint = utils.SafeEnv("DELIBLAB_LLM_ENDPOINT", c.LLM.Endpoint)
	c.LLM.Model = utils.SafeEnv("DELIBLAB_LLM_MODEL", c.LLM.Model)
	c.LLM.EmbeddingModel = utils.SafeEnv("DELIBLAB_LLM_EMBEDDING_MODEL", c.LLM.EmbeddingModel)
	c.LLM.APIKey = utils.SafeEnv("DELIBLAB_LLM_API_KEY", c.LLM.APIKey)
	c.LLM.Project = utils.SafeEnv("DELIBLAB_LLM_PROJECT", c.LLM.Project)
	c.LLM.Location = utils.SafeEnv("DELIBLAB_LLM_LOCATION", c.LLM.Location)

	c.Drive.AccessToken = utils.SafeEnv("DELIBLAB_DRIVE_TOKEN", c.Drive.AccessToken)

	c.Logging.File = utils.SafeEnv("DELIBLAB_LOG_FILE", c.Logging.File)
	c.Logging.Production = utils.EnvBool("DELIBLAB_LOG_PRODUCTION", c.Logging.Production)
}

var validBackends = []string{"file", "sqlite", "drive"}

func (c *Config) Validate() error {
	ok := false
	for _, b := range validBackends {
		if c.Storage.Backend == b {
			ok = true
		}
	}
	if !ok {
		return fmt.Errorf("unknown storage backend %q (want one of %s)", c.Storage.Backend, strings.Join(validBackends, ", "))
	}
	if c.Storage.Backend == "drive" && c.Drive.AccessToken == "" {
		return fmt.Errorf("drive storage needs drive.access_token")
	}
	for name, v := range map[string]string{"refresh_interval": c.RefreshInterval, "auth.token_ttl": c.Auth.TokenTTL, "llm.timeout": c.LLM.Timeout, "llm.cache_ttl": c.LLM.CacheTTL} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func duration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// GetRefreshInterval is zero when periodic refresh is disabled.
func (c *Config) GetRefreshInterval() time.Duration { return duration(c.RefreshInterval, 0) }

func (c *Config) GetTokenTTL() time.Duration { return duration(c.Auth.TokenTTL, 30*24*time.Hour) }

func (c *Config) GetCacheTTL() time.Duration { return duration(c.LLM.CacheTTL, 24*time.Hour) }

// LLMOptions converts the llm section for llm.New.
func (c *Config) LLMOptions() llm.Options {
	return llm.Options{
		Provider:       c.LLM.Provider,
		Endpoint:       c.LLM.Endpoint,
		Model:          c.LLM.Model,
		EmbeddingModel: c.LLM.EmbeddingModel,
		APIKey:         c.LLM.APIKey,
		Project:        c.LLM.Project,
		Location:       c.LLM.Location,
		Timeout:        duration(c.LLM.Timeout, 60*time.Second),
	}
}
