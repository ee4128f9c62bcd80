package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/apperr"
	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/jenkins"
	"github.com/Smaug123/jenkinsfile-lint-lsp/pkg/config"
)

// appDirName names the per-user config and cache subdirectories.
const appDirName = "jenkinsfile-lint-lsp"

// Config represents the application configuration.
type Config struct {
	Jenkins JenkinsConfig `yaml:"jenkins"`
	History HistoryConfig `yaml:"history"`
	Debug   DebugConfig   `yaml:"debug"`
	Log     LogConfig     `yaml:"log"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Jenkins.Validate(); err != nil {
		return err
	}
	if err := c.History.Validate(); err != nil {
		return err
	}
	if err := c.Debug.Validate(); err != nil {
		return err
	}
	return c.Log.Validate()
}

// JenkinsConfig holds the remote instance coordinates and credentials.
type JenkinsConfig struct {
	URL            string `yaml:"url"`
	Username       string `yaml:"username"`
	APIToken       string `yaml:"api_token"`
	Insecure       bool   `yaml:"insecure"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Validate validates the Jenkins configuration.
func (c *JenkinsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, validation.By(httpURL)),
		validation.Field(&c.Username, validation.Required),
		validation.Field(&c.APIToken, validation.Required),
		validation.Field(&c.TimeoutSeconds, validation.Min(1)),
	)
}

// Timeout returns the per-request HTTP timeout.
func (c *JenkinsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ClientOptions maps the section onto remote client options.
func (c *JenkinsConfig) ClientOptions() jenkins.Options {
	return jenkins.Options{
		BaseURL:  c.URL,
		Username: c.Username,
		APIToken: c.APIToken,
		Insecure: c.Insecure,
		Timeout:  c.Timeout(),
	}
}

func httpURL(value interface{}) error {
	s, _ := value.(string)
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return nil
	}
	return errors.New("must start with http:// or https://")
}

// HistoryConfig holds the validation history database settings.
type HistoryConfig struct {
	Path      string `yaml:"path"`
	Retention int    `yaml:"retention"`
	Disabled  bool   `yaml:"disabled"`
}

// Validate validates the history configuration.
func (c *HistoryConfig) Validate() error {
	if c.Disabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.Retention, validation.Min(0)),
	)
}

// DebugConfig holds the local debug HTTP server settings.
type DebugConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Validate validates the debug configuration.
func (c *DebugConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Addr, validation.Required),
	)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Validate validates the log configuration.
func (c *LogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Level, validation.In("debug", "info", "warn", "error")),
	)
}

// SlogLevel maps the configured name to a slog level, defaulting to info.
func (c *LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		Jenkins: JenkinsConfig{
			TimeoutSeconds: 30,
		},
		History: HistoryConfig{
			Path:      defaultHistoryPath(),
			Retention: 200,
		},
		Debug: DebugConfig{
			Addr: "127.0.0.1:7246",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ApplyEnv overlays environment variables onto the configuration. The
// variable names mirror the aliases the Jenkins CLI tooling family accepts,
// checked in order; environment values win over file values.
func (c *Config) ApplyEnv() {
	if v, ok := envFirst("JENKINS_URL", "JENKINS_HOST"); ok {
		c.Jenkins.URL = v
	}
	if v, ok := envFirst("JENKINS_USER_ID", "JENKINS_USERNAME"); ok {
		c.Jenkins.Username = v
	}
	if v, ok := envFirst("JENKINS_API_TOKEN", "JENKINS_TOKEN", "JENKINS_PASSWORD"); ok {
		c.Jenkins.APIToken = v
	}
	if v, ok := envFirst("JENKINS_INSECURE"); ok {
		c.Jenkins.Insecure = truthy(v)
	}
}

func envFirst(keys ...string) (string, bool) {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v, true
		}
	}
	return "", false
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true":
		return true
	}
	return false
}

// LoadConfig builds the effective configuration: defaults, then the YAML file
// when present, then environment overrides. Validation runs on the merged
// result, so a partial file completed by the environment is accepted. An
// explicitly passed path must exist; the default path is optional.
func LoadConfig(path string) (*Config, error) {
	cfg := NewDefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := config.Load(path, cfg); err != nil {
				return nil, fmt.Errorf("%w: %w", apperr.ErrConfig, err)
			}
		} else if explicit {
			return nil, fmt.Errorf("%w: file not found: %s", apperr.ErrConfig, path)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrConfig, err)
	}
	return cfg, nil
}

// DefaultConfigPath returns the per-user config file location, or "" when the
// user config directory cannot be determined.
func DefaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, appDirName, "config.yaml")
}

func defaultHistoryPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return appDirName + "-history.db"
	}
	return filepath.Join(dir, appDirName, "history.db")
}

// EnvUsage is printed to stderr when startup configuration fails, so editor
// users see how to supply credentials without a config file.
func EnvUsage() string {
	return strings.Join([]string{
		"Configuration is read from " + placeholderPath() + ", overridden by environment variables:",
		"  JENKINS_URL (or JENKINS_HOST)                     base URL of the Jenkins instance",
		"  JENKINS_USER_ID (or JENKINS_USERNAME)             user to authenticate as",
		"  JENKINS_API_TOKEN (or JENKINS_TOKEN,",
		"                     JENKINS_PASSWORD)              API token or password",
		"  JENKINS_INSECURE                                  \"1\" or \"true\" skips TLS verification",
	}, "\n")
}

func placeholderPath() string {
	if p := DefaultConfigPath(); p != "" {
		return p
	}
	return "a config.yaml"
}
