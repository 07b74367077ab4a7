package utils

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config holds the settings a run can take from a YAML file. Command line
// flags that were set explicitly take precedence over these values.
type Config struct {
	Connections    int
	Workers        int
	KeepCache      bool
	Debug          bool
	Timeout        time.Duration
	KATimeout      time.Duration
	UserAgent      string
	ProxyURL       string
	ProxyUsername  string
	ProxyPassword  string
	Headers        []string
	BearerToken    string
	RateLimit      int64
	Retries        int
	RetryBackoff   time.Duration
	StatusInterval time.Duration
	S3Profile      string
	HighThreadMode bool
}

func DefaultConfig() Config {
	return Config{
		Connections:    8,
		Workers:        1,
		Timeout:        3 * time.Minute,
		KATimeout:      90 * time.Second,
		UserAgent:      ToolUserAgent,
		Retries:        5,
		RetryBackoff:   500 * time.Millisecond,
		StatusInterval: time.Second,
	}
}

type yamlConfig struct {
	Connections    int      `yaml:"connections"`
	Workers        int      `yaml:"workers"`
	KeepCache      bool     `yaml:"keep_cache"`
	Debug          bool     `yaml:"debug"`
	Timeout        string   `yaml:"timeout"`
	KATimeout      string   `yaml:"keep_alive_timeout"`
	UserAgent      string   `yaml:"user_agent"`
	ProxyURL       string   `yaml:"proxy"`
	ProxyUsername  string   `yaml:"proxy_username"`
	ProxyPassword  string   `yaml:"proxy_password"`
	Headers        []string `yaml:"headers"`
	BearerToken    string   `yaml:"bearer_token"`
	LimitRate      string   `yaml:"limit_rate"`
	Retries        *int     `yaml:"retries"`
	RetryBackoff   string   `yaml:"retry_backoff"`
	StatusInterval string   `yaml:"status_interval"`
	S3Profile      string   `yaml:"s3_profile"`
}

// LoadConfig reads a YAML config file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := DefaultConfig()
	if yc.Connections != 0 {
		cfg.Connections = yc.Connections
	}
	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	cfg.KeepCache = yc.KeepCache
	cfg.Debug = yc.Debug
	if cfg.Timeout, err = parseDuration("timeout", yc.Timeout, cfg.Timeout); err != nil {
		return Config{}, err
	}
	if cfg.KATimeout, err = parseDuration("keep_alive_timeout", yc.KATimeout, cfg.KATimeout); err != nil {
		return Config{}, err
	}
	if cfg.RetryBackoff, err = parseDuration("retry_backoff", yc.RetryBackoff, cfg.RetryBackoff); err != nil {
		return Config{}, err
	}
	if cfg.StatusInterval, err = parseDuration("status_interval", yc.StatusInterval, cfg.StatusInterval); err != nil {
		return Config{}, err
	}
	if yc.UserAgent != "" {
		cfg.UserAgent = yc.UserAgent
	}
	cfg.ProxyURL = yc.ProxyURL
	cfg.ProxyUsername = yc.ProxyUsername
	cfg.ProxyPassword = yc.ProxyPassword
	cfg.Headers = yc.Headers
	cfg.BearerToken = yc.BearerToken
	cfg.S3Profile = yc.S3Profile
	if yc.Retries != nil {
		cfg.Retries = *yc.Retries
	}
	if yc.LimitRate != "" {
		rate, err := ParseRate(yc.LimitRate)
		if err != nil {
			return Config{}, fmt.Errorf("parse limit_rate: %w", err)
		}
		cfg.RateLimit = rate
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Connections < 1 || c.Connections > MaxConnections {
		return fmt.Errorf("connections must be between 1 and %d, got %d", MaxConnections, c.Connections)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries cannot be negative, got %d", c.Retries)
	}
	if c.StatusInterval <= 0 {
		return fmt.Errorf("status interval must be positive, got %s", c.StatusInterval)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative, got %d", c.RateLimit)
	}
	return nil
}

func (c *Config) HTTPClientConfig() HTTPClientConfig {
	userAgent := c.UserAgent
	if userAgent == "randomize" {
		userAgent = GetRandomUserAgent()
	}
	return HTTPClientConfig{
		Timeout:        c.Timeout,
		KATimeout:      c.KATimeout,
		ProxyURL:       c.ProxyURL,
		ProxyUsername:  c.ProxyUsername,
		ProxyPassword:  c.ProxyPassword,
		UserAgent:      userAgent,
		BearerToken:    c.BearerToken,
		Headers:        ParseHeaderArgs(c.Headers),
		HighThreadMode: c.HighThreadMode || c.Connections > 5,
	}
}

func (c *Config) DownloadSettings() DownloadSettings {
	return DownloadSettings{
		Connections:    c.Connections,
		KeepCache:      c.KeepCache,
		Retries:        c.Retries,
		RetryBackoff:   c.RetryBackoff,
		StatusInterval: c.StatusInterval,
		RateLimit:      c.RateLimit,
		ReadTimeout:    c.Timeout,
		S3Profile:      c.S3Profile,
	}
}

// ParseRate accepts plain byte counts or humanized sizes such as "2MB" or
// "512KiB". An empty string or "0" means unlimited.
func ParseRate(s string) (int64, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

func parseDuration(field, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}
