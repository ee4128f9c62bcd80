package internal

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Smaug123/jenkinsfile-lint-lsp/internal/apperr"
)

func validJenkins() JenkinsConfig {
	return JenkinsConfig{
		URL:            "https://jenkins.example.com",
		Username:       "ci-bot",
		APIToken:       "token123",
		TimeoutSeconds: 30,
	}
}

func clearJenkinsEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"JENKINS_URL", "JENKINS_HOST",
		"JENKINS_USER_ID", "JENKINS_USERNAME",
		"JENKINS_API_TOKEN", "JENKINS_TOKEN", "JENKINS_PASSWORD",
		"JENKINS_INSECURE",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Jenkins.TimeoutSeconds != 30 {
		t.Errorf("timeout = %d", cfg.Jenkins.TimeoutSeconds)
	}
	if cfg.History.Retention != 200 {
		t.Errorf("retention = %d", cfg.History.Retention)
	}
	if cfg.History.Path == "" {
		t.Error("history path empty")
	}
	if cfg.Debug.Addr != "127.0.0.1:7246" {
		t.Errorf("debug addr = %q", cfg.Debug.Addr)
	}
	if cfg.Log.SlogLevel() != slog.LevelInfo {
		t.Errorf("log level = %v", cfg.Log.SlogLevel())
	}
}

func TestJenkinsConfig_Valid(t *testing.T) {
	cfg := validJenkins()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if cfg.Timeout() != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout())
	}
	opts := cfg.ClientOptions()
	if opts.BaseURL != cfg.URL || opts.Username != cfg.Username || opts.APIToken != cfg.APIToken {
		t.Errorf("ClientOptions = %+v", opts)
	}
}

func TestJenkinsConfig_MissingURL(t *testing.T) {
	cfg := validJenkins()
	cfg.URL = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing url should fail")
	}
}

func TestJenkinsConfig_BadScheme(t *testing.T) {
	cfg := validJenkins()
	cfg.URL = "jenkins.example.com"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("schemeless url should fail")
	}
	if !strings.Contains(err.Error(), "http") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestJenkinsConfig_MissingToken(t *testing.T) {
	cfg := validJenkins()
	cfg.APIToken = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing token should fail")
	}
}

func TestHistoryConfig_DisabledSkipsValidation(t *testing.T) {
	cfg := HistoryConfig{Disabled: true}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled history should not validate path: %v", err)
	}
}

func TestDebugConfig_EnabledRequiresAddr(t *testing.T) {
	cfg := DebugConfig{Enabled: true}
	if err := cfg.Validate(); err == nil {
		t.Fatal("enabled debug without addr should fail")
	}
	cfg.Addr = "127.0.0.1:7246"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLogConfig_Levels(t *testing.T) {
	cases := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, c := range cases {
		cfg := LogConfig{Level: c.level}
		if err := cfg.Validate(); err != nil {
			t.Errorf("level %q rejected: %v", c.level, err)
		}
		if got := cfg.SlogLevel(); got != c.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", c.level, got, c.want)
		}
	}

	bad := LogConfig{Level: "loud"}
	if err := bad.Validate(); err == nil {
		t.Error("invalid level should fail")
	}
}

func TestApplyEnv_Aliases(t *testing.T) {
	clearJenkinsEnv(t)
	t.Setenv("JENKINS_HOST", "https://alias.example.com")
	t.Setenv("JENKINS_USERNAME", "alias-user")
	t.Setenv("JENKINS_PASSWORD", "alias-secret")

	cfg := NewDefaultConfig()
	cfg.ApplyEnv()
	if cfg.Jenkins.URL != "https://alias.example.com" {
		t.Errorf("url = %q", cfg.Jenkins.URL)
	}
	if cfg.Jenkins.Username != "alias-user" {
		t.Errorf("username = %q", cfg.Jenkins.Username)
	}
	if cfg.Jenkins.APIToken != "alias-secret" {
		t.Errorf("token = %q", cfg.Jenkins.APIToken)
	}
}

func TestApplyEnv_PrimaryBeatsAlias(t *testing.T) {
	clearJenkinsEnv(t)
	t.Setenv("JENKINS_URL", "https://primary.example.com")
	t.Setenv("JENKINS_HOST", "https://alias.example.com")

	cfg := NewDefaultConfig()
	cfg.ApplyEnv()
	if cfg.Jenkins.URL != "https://primary.example.com" {
		t.Errorf("url = %q, want the primary variable to win", cfg.Jenkins.URL)
	}
}

func TestApplyEnv_Insecure(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"TRUE", true},
		{"0", false},
		{"no", false},
	}
	for _, c := range cases {
		clearJenkinsEnv(t)
		t.Setenv("JENKINS_INSECURE", c.value)
		cfg := NewDefaultConfig()
		cfg.ApplyEnv()
		if cfg.Jenkins.Insecure != c.want {
			t.Errorf("JENKINS_INSECURE=%q → %v, want %v", c.value, cfg.Jenkins.Insecure, c.want)
		}
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	clearJenkinsEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	file := `jenkins:
  url: https://file.example.com
  username: file-user
  api_token: file-token
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(file), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JENKINS_USER_ID", "env-user")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Jenkins.URL != "https://file.example.com" {
		t.Errorf("url = %q", cfg.Jenkins.URL)
	}
	if cfg.Jenkins.Username != "env-user" {
		t.Errorf("username = %q, want the environment to win", cfg.Jenkins.Username)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if cfg.Jenkins.TimeoutSeconds != 30 {
		t.Errorf("timeout = %d, want default preserved", cfg.Jenkins.TimeoutSeconds)
	}
}

func TestLoadConfig_PureEnv(t *testing.T) {
	clearJenkinsEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("JENKINS_URL", "https://env.example.com")
	t.Setenv("JENKINS_USER_ID", "env-user")
	t.Setenv("JENKINS_API_TOKEN", "env-token")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig without a file: %v", err)
	}
	if cfg.Jenkins.URL != "https://env.example.com" {
		t.Errorf("url = %q", cfg.Jenkins.URL)
	}
}

func TestLoadConfig_ExplicitMissingFile(t *testing.T) {
	clearJenkinsEnv(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("explicit missing file should fail")
	}
	if !errors.Is(err, apperr.ErrConfig) {
		t.Errorf("err = %v, want ErrConfig", err)
	}
}

func TestLoadConfig_ExpandsEnvRefs(t *testing.T) {
	clearJenkinsEnv(t)
	t.Setenv("JLINT_TEST_SECRET", "expanded-token")
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	file := `jenkins:
  url: https://file.example.com
  username: file-user
  api_token: ${JLINT_TEST_SECRET}
`
	if err := os.WriteFile(path, []byte(file), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Jenkins.APIToken != "expanded-token" {
		t.Errorf("token = %q, want ${VAR} expansion", cfg.Jenkins.APIToken)
	}
}

func TestLoadConfig_IncompleteFails(t *testing.T) {
	clearJenkinsEnv(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("JENKINS_URL", "https://env.example.com")

	_, err := LoadConfig("")
	if err == nil {
		t.Fatal("missing credentials should fail validation")
	}
	if !errors.Is(err, apperr.ErrConfig) {
		t.Errorf("err = %v, want ErrConfig", err)
	}
}
