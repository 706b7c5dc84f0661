// Package config loads process configuration for the bridge and the CLI
// from a TOML file and environment variables.
package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/gonobo/validator"
	"github.com/pelletier/go-toml/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/bc-odata-client/pkg/client"
	"github.com/Sternrassler/bc-odata-client/pkg/logging"
	"github.com/Sternrassler/bc-odata-client/pkg/odata"
	"github.com/Sternrassler/bc-odata-client/pkg/pagination"
	"github.com/Sternrassler/bc-odata-client/pkg/ratelimit"
)

// Duration is a time.Duration written as text, e.g. "5m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the complete process configuration.
type Config struct {
	TenantID     string `toml:"tenant_id"`
	Environment  string `toml:"environment"`
	CompanyID    string `toml:"company_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`

	// BaseURL overrides the API root; empty uses the public endpoint.
	BaseURL string `toml:"base_url"`

	RedisURL  string   `toml:"redis_url"`
	CacheTTL  Duration `toml:"cache_ttl"`
	RateLimit float64  `toml:"rate_limit"`
	Burst     int      `toml:"burst"`
	MaxPages  int      `toml:"max_pages"`
	Timeout   Duration `toml:"timeout"`

	// Host is the bridge listen address; empty listens on all interfaces.
	Host string `toml:"host"`
	Port int    `toml:"port"`

	// APIToken is the bearer token the bridge requires on /v1 routes.
	APIToken string `toml:"api_token"`

	LogLevel  string `toml:"log_level"`
	LogPretty bool   `toml:"log_pretty"`

	Webhook WebhookConfig `toml:"webhook"`
}

// WebhookConfig configures notification handling.
type WebhookConfig struct {
	ClientState     string `toml:"client_state"`
	FetchFullRecord bool   `toml:"fetch_full_record"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Environment: "production",
		RateLimit:   ratelimit.DefaultRequestsPerSecond,
		Burst:       ratelimit.DefaultBurst,
		Timeout:     Duration{30 * time.Second},
		Host:        "127.0.0.1",
		Port:        8080,
		LogLevel:    string(logging.LevelInfo),
		Webhook:     WebhookConfig{FetchFullRecord: true},
	}
}

// Load builds a configuration from defaults, then path (when not empty),
// then the environment, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile merges a TOML file into cfg. Unknown keys are rejected.
func (cfg *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with the variables lookup reports as set.
func (cfg *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"BC_TENANT_ID":     &cfg.TenantID,
		"BC_ENVIRONMENT":   &cfg.Environment,
		"BC_COMPANY_ID":    &cfg.CompanyID,
		"BC_CLIENT_ID":     &cfg.ClientID,
		"BC_CLIENT_SECRET": &cfg.ClientSecret,
		"BC_BASE_URL":      &cfg.BaseURL,
		"REDIS_URL":        &cfg.RedisURL,
		"LOG_LEVEL":        &cfg.LogLevel,
		"BC_CLIENT_STATE":  &cfg.Webhook.ClientState,
		"HOST":             &cfg.Host,
		"BC_BRIDGE_TOKEN":  &cfg.APIToken,
	}
	for name, dst := range strs {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}

	if v, ok := lookup("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		cfg.Port = port
	}
	if v, ok := lookup("LOG_PRETTY"); ok {
		pretty, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LOG_PRETTY: %w", err)
		}
		cfg.LogPretty = pretty
	}
	if v, ok := lookup("BC_CACHE_TTL"); ok {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BC_CACHE_TTL: %w", err)
		}
		cfg.CacheTTL = Duration{ttl}
	}
	if v, ok := lookup("BC_RATE_LIMIT"); ok {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("BC_RATE_LIMIT: %w", err)
		}
		cfg.RateLimit = rate
	}
	return nil
}

// Validate checks required settings and ranges.
func (cfg Config) Validate() error {
	return validator.Validate(
		validator.All(
			validator.Rule(cfg.TenantID != "", "tenant_id is required"),
			validator.Rule(cfg.Environment != "", "environment is required"),
			validator.Rule(cfg.CompanyID == "" || odata.IsValidGuid(cfg.CompanyID), "company_id must be a GUID"),
			validator.Rule((cfg.ClientID == "") == (cfg.ClientSecret == ""), "client_id and client_secret must be set together"),
			validator.Rule(cfg.RateLimit > 0, "rate_limit must be positive"),
			validator.Rule(cfg.Burst > 0, "burst must be positive"),
			validator.Rule(cfg.CacheTTL.Duration >= 0, "cache_ttl must not be negative"),
			validator.Rule(cfg.MaxPages >= 0, "max_pages must not be negative"),
			validator.Rule(cfg.Port > 0 && cfg.Port < 65536, "port must be between 1 and 65535"),
			validator.Rule(cfg.APIToken != "" || isLoopback(cfg.Host), "api_token is required when host is not loopback"),
		),
	)
}

// Addr returns the bridge listen address.
func (cfg Config) Addr() string {
	return net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Logging returns the logger settings.
func (cfg Config) Logging() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.LogLevel(cfg.LogLevel)
	lc.Pretty = cfg.LogPretty
	return lc
}

// Credentials returns the OAuth2 client credentials, or false when no
// client id is configured.
func (cfg Config) Credentials() (client.Credentials, bool) {
	if cfg.ClientID == "" {
		return client.Credentials{}, false
	}
	return client.Credentials{
		TenantID:     cfg.TenantID,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}, true
}

// Client returns the client settings. HTTPClient and Redis are left for
// the caller to attach.
func (cfg Config) Client() client.Config {
	cc := client.DefaultConfig(cfg.TenantID, cfg.Environment)
	cc.CompanyID = cfg.CompanyID
	cc.BaseURL = cfg.BaseURL
	cc.CacheTTL = cfg.CacheTTL.Duration
	cc.RateLimit = cfg.RateLimit
	cc.Burst = cfg.Burst
	cc.Timeout = cfg.Timeout.Duration
	return cc
}

// Pagination returns the paginated fetcher settings.
func (cfg Config) Pagination() pagination.Config {
	pc := pagination.DefaultConfig()
	pc.MaxPages = cfg.MaxPages
	return pc
}

// RedisOptions parses RedisURL. It returns nil options when Redis is not
// configured.
func (cfg Config) RedisOptions() (*redis.Options, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return opts, nil
}
