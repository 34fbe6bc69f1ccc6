package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultFile is read when no config path is given. A missing default file
// is not an error.
const DefaultFile = ".env"

// Config stores all configuration for the application.
type Config struct {
	ServerPort         string `mapstructure:"SERVER_PORT"`
	LogLevel           string `mapstructure:"LOG_LEVEL"`
	HTTPTimeout        int    `mapstructure:"HTTP_TIMEOUT"` // seconds
	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	MaxDomainWorkers  int     `mapstructure:"MAX_DOMAIN_WORKERS"`
	PageWorkers       int     `mapstructure:"PAGE_WORKERS"`
	RequestsPerSecond float64 `mapstructure:"REQUESTS_PER_SECOND"`
	RequestTimeout    int     `mapstructure:"REQUEST_TIMEOUT"` // seconds
	MaxRedirects      int     `mapstructure:"MAX_REDIRECTS"`
	MaxBodyBytes      int64   `mapstructure:"MAX_BODY_BYTES"`
	RespectRobots     bool    `mapstructure:"RESPECT_ROBOTS"`
	DetectLanguage    bool    `mapstructure:"DETECT_LANGUAGE"`
	UserAgents        string  `mapstructure:"USER_AGENTS"`
	ProxyURLs         string  `mapstructure:"PROXY_URLS"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	ResultsQueue  string `mapstructure:"RESULTS_QUEUE"`

	EmitBuffer       int `mapstructure:"EMIT_BUFFER"`
	EmitTimeout      int `mapstructure:"EMIT_TIMEOUT"` // seconds
	BreakerThreshold int `mapstructure:"BREAKER_THRESHOLD"`
	BreakerReset     int `mapstructure:"BREAKER_RESET"` // seconds

	StorageDriver string `mapstructure:"STORAGE_DRIVER"`
	PostgresURL   string `mapstructure:"POSTGRES_URL"`
	SQLitePath    string `mapstructure:"SQLITE_PATH"`
}

var keys = map[string]any{
	"SERVER_PORT":          "8080",
	"LOG_LEVEL":            "info",
	"HTTP_TIMEOUT":         120,
	"CORS_ALLOWED_ORIGINS": "*",
	"MAX_DOMAIN_WORKERS":   8,
	"PAGE_WORKERS":         4,
	"REQUESTS_PER_SECOND":  10.0,
	"REQUEST_TIMEOUT":      15,
	"MAX_REDIRECTS":        5,
	"MAX_BODY_BYTES":       int64(5 << 20),
	"RESPECT_ROBOTS":       false,
	"DETECT_LANGUAGE":      true,
	"USER_AGENTS":          "",
	"PROXY_URLS":           "",
	"REDIS_ADDR":           "",
	"REDIS_PASSWORD":       "",
	"REDIS_DB":             0,
	"RESULTS_QUEUE":        "crawl_results",
	"EMIT_BUFFER":          64,
	"EMIT_TIMEOUT":         5,
	"BREAKER_THRESHOLD":    5,
	"BREAKER_RESET":        30,
	"STORAGE_DRIVER":       "sqlite",
	"POSTGRES_URL":         "",
	"SQLITE_PATH":          "",
}

// Load reads configuration from an env-style file and the environment.
// Environment variables win over the file. An empty path means DefaultFile.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, def := range keys {
		v.SetDefault(k, def)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	v.SetConfigFile(path)
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// the default file is optional so the service can run on env vars alone
		if explicit || !isNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isNotExist(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, fs.ErrNotExist)
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	positive := map[string]int{
		"HTTP_TIMEOUT":       c.HTTPTimeout,
		"MAX_DOMAIN_WORKERS": c.MaxDomainWorkers,
		"PAGE_WORKERS":       c.PageWorkers,
		"REQUEST_TIMEOUT":    c.RequestTimeout,
		"EMIT_BUFFER":        c.EmitBuffer,
		"EMIT_TIMEOUT":       c.EmitTimeout,
		"BREAKER_THRESHOLD":  c.BreakerThreshold,
		"BREAKER_RESET":      c.BreakerReset,
	}
	for k, val := range positive {
		if val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", k, val))
		}
	}
	if c.MaxRedirects < 0 {
		errs = append(errs, fmt.Errorf("MAX_REDIRECTS must not be negative, got %d", c.MaxRedirects))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("REQUESTS_PER_SECOND must not be negative, got %v", c.RequestsPerSecond))
	}
	switch c.StorageDriver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be sqlite or postgres, got %q", c.StorageDriver))
	}
	if c.StorageDriver == "postgres" && c.PostgresURL == "" {
		errs = append(errs, errors.New("POSTGRES_URL is required when STORAGE_DRIVER is postgres"))
	}
	return errors.Join(errs...)
}

// UserAgentList returns the configured user agents. User agents contain
// commas, so entries are separated by "|" or newlines.
func (c *Config) UserAgentList() []string { return splitList(c.UserAgents, "|\n") }

// ProxyList returns the configured outbound proxies.
func (c *Config) ProxyList() []string { return splitList(c.ProxyURLs, ",|\n") }

// CORSOrigins returns the allowed CORS origins.
func (c *Config) CORSOrigins() []string { return splitList(c.CORSAllowedOrigins, ", ") }

func (c *Config) HTTPTimeoutDuration() time.Duration {
	return time.Duration(c.HTTPTimeout) * time.Second
}

func (c *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

func (c *Config) EmitTimeoutDuration() time.Duration {
	return time.Duration(c.EmitTimeout) * time.Second
}

func (c *Config) BreakerResetDuration() time.Duration {
	return time.Duration(c.BreakerReset) * time.Second
}

func splitList(s, seps string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return strings.ContainsRune(seps, r) }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
