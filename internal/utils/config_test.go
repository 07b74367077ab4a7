package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Connections != 8 {
		t.Errorf("expected default connections 8, got %d", cfg.Connections)
	}
	if cfg.Retries != 5 {
		t.Errorf("expected default retries 5, got %d", cfg.Retries)
	}
	if cfg.StatusInterval != time.Second {
		t.Errorf("expected default status interval 1s, got %v", cfg.StatusInterval)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeFile(t, "config.yaml", `
connections: 16
workers: 3
keep_cache: true
timeout: 30s
keep_alive_timeout: 2m
user_agent: randomize
headers:
  - "X-Api-Key: abc"
bearer_token: secret
limit_rate: 2MiB
retries: 0
retry_backoff: 2s
status_interval: 250ms
s3_profile: archive
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Connections != 16 || cfg.Workers != 3 || !cfg.KeepCache {
		t.Errorf("unexpected basic settings %+v", cfg)
	}
	if cfg.Timeout != 30*time.Second || cfg.KATimeout != 2*time.Minute {
		t.Errorf("unexpected timeouts %v %v", cfg.Timeout, cfg.KATimeout)
	}
	if cfg.RateLimit != 2*1024*1024 {
		t.Errorf("expected 2MiB rate limit, got %d", cfg.RateLimit)
	}
	if cfg.Retries != 0 {
		t.Errorf("explicit zero retries should be kept, got %d", cfg.Retries)
	}
	if cfg.RetryBackoff != 2*time.Second || cfg.StatusInterval != 250*time.Millisecond {
		t.Errorf("unexpected durations %v %v", cfg.RetryBackoff, cfg.StatusInterval)
	}
	if cfg.S3Profile != "archive" || cfg.BearerToken != "secret" {
		t.Errorf("unexpected credentials settings %+v", cfg)
	}

	httpCfg := cfg.HTTPClientConfig()
	if httpCfg.UserAgent == "randomize" || httpCfg.UserAgent == "" {
		t.Errorf("expected a concrete user agent, got %q", httpCfg.UserAgent)
	}
	if httpCfg.Headers["X-Api-Key"] != "abc" {
		t.Errorf("expected parsed header, got %v", httpCfg.Headers)
	}
	if !httpCfg.HighThreadMode {
		t.Error("16 connections should enable high thread mode")
	}

	settings := cfg.DownloadSettings()
	if settings.Connections != 16 || settings.RateLimit != cfg.RateLimit || settings.S3Profile != "archive" {
		t.Errorf("unexpected download settings %+v", settings)
	}
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeFile(t, "config.yaml", "workers: 2\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	def := DefaultConfig()
	if cfg.Connections != def.Connections || cfg.Retries != def.Retries || cfg.Timeout != def.Timeout {
		t.Errorf("unset values should keep defaults, got %+v", cfg)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := map[string]string{
		"bad duration": "timeout: soon\n",
		"bad rate":     "limit_rate: fast\n",
		"bad yaml":     "connections: [\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeFile(t, "config.yaml", content)); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"zero connections": func(c *Config) { c.Connections = 0 },
		"too many":         func(c *Config) { c.Connections = MaxConnections + 1 },
		"zero workers":     func(c *Config) { c.Workers = 0 },
		"negative retries": func(c *Config) { c.Retries = -1 },
		"zero interval":    func(c *Config) { c.StatusInterval = 0 },
		"negative rate":    func(c *Config) { c.RateLimit = -1 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseRate(t *testing.T) {
	tests := map[string]int64{
		"":      0,
		"0":     0,
		"1000":  1000,
		"500KB": 500 * 1000,
		"2MiB":  2 * 1024 * 1024,
	}
	for in, want := range tests {
		got, err := ParseRate(in)
		if err != nil {
			t.Errorf("ParseRate(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseRate(%q) = %d, want %d", in, got, want)
		}
	}
}
