package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile := filepath.Join(t.TempDir(), "stemgen.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return tmpFile
}

// clearCredentialEnv 防止本机环境变量影响测试。
func clearCredentialEnv(t *testing.T) {
	for _, key := range []string{"GEMINI_API_KEY", "TENCENTCLOUD_SECRET_ID", "TENCENTCLOUD_SECRET_KEY"} {
		t.Setenv(key, "")
	}
}

func TestSetDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	checks := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"Provider", cfg.Provider, "google"},
		{"Engine.Concurrency", cfg.Engine.Concurrency, 20},
		{"Engine.RequestTimeout", cfg.Engine.RequestTimeout, 5.0},
		{"Engine.MinBytes", cfg.Engine.MinBytes, 100},
		{"Engine.RetryPause", cfg.Engine.RetryPause, 10.0},
		{"Retry.Strategy", cfg.Retry.Strategy, "fixed"},
		{"Retry.MaxAttempts", cfg.Retry.MaxAttempts, 10},
		{"Retry.Delay", cfg.Retry.Delay, 1.0},
		{"PostProcess.Bitrate", cfg.PostProcess.Bitrate, "32k"},
		{"PostProcess.Format", cfg.PostProcess.Format, "mp3"},
		{"Output.StemsDir", cfg.Output.StemsDir, "./public/media/audio_stems"},
		{"Output.CacheDir", cfg.Output.CacheDir, "./public/media/audio_cache/multi"},
		{"Google.Client", cfg.Google.Client, "tw-ob"},
		{"Log.Level", cfg.Log.Level, "info"},
	}

	for _, c := range checks {
		switch want := c.want.(type) {
		case int:
			if c.got.(int) != want {
				t.Errorf("%s: got %v, want %v", c.name, c.got, want)
			}
		case float64:
			if c.got.(float64) != want {
				t.Errorf("%s: got %v, want %v", c.name, c.got, want)
			}
		case string:
			if c.got.(string) != want {
				t.Errorf("%s: got %v, want %v", c.name, c.got, want)
			}
		}
	}

	if cfg.RetryFailedOnce() {
		t.Error("RetryFailedOnce should default to false for google")
	}
	if cfg.Google.LanguageCodes["en"] != "en-gb" {
		t.Errorf("en should map to en-gb, got %q", cfg.Google.LanguageCodes["en"])
	}
}

func TestSetDefaults_GeminiProfile(t *testing.T) {
	cfg := &Config{Provider: "Gemini"}
	setDefaults(cfg)

	if cfg.Provider != ProviderGemini {
		t.Errorf("Provider should be normalized, got %q", cfg.Provider)
	}
	if cfg.Engine.Concurrency != 1 {
		t.Errorf("Engine.Concurrency: got %d, want 1", cfg.Engine.Concurrency)
	}
	if cfg.Retry.Strategy != "exponential" || cfg.Retry.MaxAttempts != 6 {
		t.Errorf("Retry: got %s/%d, want exponential/6", cfg.Retry.Strategy, cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.MinDelay != 5 || cfg.Retry.MaxDelay != 120 {
		t.Errorf("Retry delays: got %v-%v, want 5-120", cfg.Retry.MinDelay, cfg.Retry.MaxDelay)
	}
	if !cfg.RetryFailedOnce() {
		t.Error("RetryFailedOnce should default to true for gemini")
	}
	if got := len(cfg.CatalogSpec().Languages[0].NumberWords); got == 0 {
		t.Error("gemini should use the spoken catalog")
	}
}

func TestSetDefaults_DoesNotOverride(t *testing.T) {
	off := false
	cfg := &Config{
		Provider: "edge",
		Engine:   EngineConfig{Concurrency: 4, RequestTimeout: 2, RetryFailedOnce: &off},
		Retry:    RetryConfig{Strategy: "exponential", MaxAttempts: 3},
		Output:   OutputConfig{StemsDir: "/srv/stems"},
		Log:      LogConfig{Level: "debug"},
	}
	setDefaults(cfg)

	if cfg.Engine.Concurrency != 4 {
		t.Errorf("Concurrency should not be overridden: got %d", cfg.Engine.Concurrency)
	}
	if cfg.Engine.RequestTimeout != 2 {
		t.Errorf("RequestTimeout should not be overridden: got %v", cfg.Engine.RequestTimeout)
	}
	if cfg.Retry.Strategy != "exponential" || cfg.Retry.MaxAttempts != 3 {
		t.Errorf("Retry should not be overridden: got %s/%d", cfg.Retry.Strategy, cfg.Retry.MaxAttempts)
	}
	if cfg.Output.StemsDir != "/srv/stems" {
		t.Errorf("StemsDir should not be overridden: got %s", cfg.Output.StemsDir)
	}
	if cfg.RetryFailedOnce() {
		t.Error("explicit retry_failed_once: false should be kept")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level should not be overridden: got %s", cfg.Log.Level)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	clearCredentialEnv(t)
	cfg, err := Load(writeConfig(t, `
provider: tencent
tencent:
  region: ap-singapore
  credentials:
    - secret_id: id-1
      secret_key: key-1
engine:
  concurrency: 8
  requests_per_second: 2.5
  retry_failed_once: true
retry:
  max_attempts: 4
  delay: 0.5
postprocess:
  disabled: true
phases:
  skip_cache: true
catalog:
  languages:
    - code: en
      phrases: ["Number"]
      numbers: {from: 0, to: 2}
log:
  level: debug
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Provider != ProviderTencent {
		t.Errorf("Provider: got %q", cfg.Provider)
	}
	if len(cfg.Tencent.Credentials) != 1 || cfg.Tencent.Credentials[0].SecretID != "id-1" {
		t.Errorf("Tencent.Credentials: got %+v", cfg.Tencent.Credentials)
	}
	if cfg.Engine.Concurrency != 8 || cfg.Engine.RequestsPerSecond != 2.5 {
		t.Errorf("Engine: got %+v", cfg.Engine)
	}
	if !cfg.RetryFailedOnce() {
		t.Error("RetryFailedOnce should be true")
	}
	if Seconds(cfg.Retry.Delay) != 500*time.Millisecond {
		t.Errorf("Retry.Delay: got %v", Seconds(cfg.Retry.Delay))
	}
	if !cfg.PostProcess.Disabled || !cfg.Phases.SkipCache {
		t.Error("postprocess.disabled and phases.skip_cache should be set")
	}
	spec := cfg.CatalogSpec()
	if len(spec.Languages) != 1 || spec.Languages[0].Numbers.To != 2 {
		t.Errorf("Catalog: got %+v", spec.Languages)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("TEST_GEMINI_KEY", "secret-from-env")

	cfg, err := Load(writeConfig(t, `
provider: gemini
gemini:
  api_keys: ["${TEST_GEMINI_KEY}"]
`))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.Gemini.APIKeys) != 1 || cfg.Gemini.APIKeys[0] != "secret-from-env" {
		t.Errorf("expected env var expansion, got %q", cfg.Gemini.APIKeys)
	}
}

func TestLoad_NumberedEnvCredentials(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv("GEMINI_API_KEY", "k1")
	t.Setenv("GEMINI_API_KEY_2", "k2")
	t.Setenv("GEMINI_API_KEY_3", "k1")
	// _4 缺失，_5 不应被读取
	t.Setenv("GEMINI_API_KEY_5", "k5")
	t.Setenv("TENCENTCLOUD_SECRET_ID", "id")
	t.Setenv("TENCENTCLOUD_SECRET_KEY", "key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if strings.Join(cfg.Gemini.APIKeys, ",") != "k1,k2" {
		t.Errorf("Gemini.APIKeys: got %v, want [k1 k2]", cfg.Gemini.APIKeys)
	}
	if len(cfg.Tencent.Credentials) != 1 || cfg.Tencent.Credentials[0].SecretKey != "key" {
		t.Errorf("Tencent.Credentials: got %+v", cfg.Tencent.Credentials)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "engine: [not a map"))
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown provider", func(c *Config) { c.Provider = "polly" }, "不支持的合成服务"},
		{"gemini without keys", func(c *Config) { c.Provider = ProviderGemini }, "API Key"},
		{"tencent without credentials", func(c *Config) { c.Provider = ProviderTencent }, "至少一组密钥"},
		{"piper without models", func(c *Config) { c.Provider = ProviderPiper }, "piper.models"},
		{"gemini without postprocess", func(c *Config) {
			c.Provider = ProviderGemini
			c.Gemini.APIKeys = []string{"k"}
			c.PostProcess.Disabled = true
		}, "不能关闭后处理"},
		{"zero concurrency", func(c *Config) { c.Engine.Concurrency = -1 }, "engine.concurrency"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = -2 }, "retry.max_attempts"},
		{"bad strategy", func(c *Config) { c.Retry.Strategy = "linear" }, "不支持的重试策略"},
		{"inverted delays", func(c *Config) { c.Retry.MinDelay, c.Retry.MaxDelay = 10, 5 }, "max_delay"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{}
			setDefaults(cfg)
			tc.mutate(cfg)

			err := cfg.Validate()
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q should mention %q", err, tc.want)
			}
		})
	}

	cfg := &Config{}
	setDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}
