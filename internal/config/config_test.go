package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/bc-odata-client/pkg/logging"
)

const testCompanyID = "5d115c9c-44e3-ea11-bb43-000d3a2feca1"

func envMap(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bc.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 30*time.Second, cfg.Timeout.Duration)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.Webhook.FetchFullRecord)
	assert.Positive(t, cfg.RateLimit)
	assert.Positive(t, cfg.Burst)

	// Only the tenant is missing.
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant_id is required")
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
tenant_id = "contoso"
environment = "sandbox"
company_id = "`+testCompanyID+`"
cache_ttl = "5m"
rate_limit = 2.5
max_pages = 20
log_level = "debug"

[webhook]
client_state = "s3cret"
fetch_full_record = false
`)

	cfg := Default()
	require.NoError(t, cfg.LoadFile(path))

	assert.Equal(t, "contoso", cfg.TenantID)
	assert.Equal(t, "sandbox", cfg.Environment)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL.Duration)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, 20, cfg.MaxPages)
	assert.Equal(t, "s3cret", cfg.Webhook.ClientState)
	assert.False(t, cfg.Webhook.FetchFullRecord)
	// Untouched keys keep their defaults.
	assert.Equal(t, 8080, cfg.Port)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile_Errors(t *testing.T) {
	t.Run("unknown key", func(t *testing.T) {
		cfg := Default()
		err := cfg.LoadFile(writeFile(t, `tenant = "contoso"`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse config file")
	})

	t.Run("bad duration", func(t *testing.T) {
		cfg := Default()
		assert.Error(t, cfg.LoadFile(writeFile(t, `cache_ttl = "soon"`)))
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := Default()
		err := cfg.LoadFile(filepath.Join(t.TempDir(), "none.toml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read config file")
	})
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.TenantID = "from-file"

	err := cfg.ApplyEnv(envMap(map[string]string{
		"BC_TENANT_ID":     "from-env",
		"BC_COMPANY_ID":    testCompanyID,
		"BC_CLIENT_ID":     "app",
		"BC_CLIENT_SECRET": "secret",
		"REDIS_URL":        "redis://localhost:6379/2",
		"PORT":             "9090",
		"LOG_PRETTY":       "true",
		"BC_CACHE_TTL":     "90s",
		"BC_RATE_LIMIT":    "1.5",
		"BC_CLIENT_STATE":  "state",
	}))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.TenantID)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL.Duration)
	assert.Equal(t, 1.5, cfg.RateLimit)
	assert.Equal(t, "state", cfg.Webhook.ClientState)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv_InvalidValues(t *testing.T) {
	for _, name := range []string{"PORT", "LOG_PRETTY", "BC_CACHE_TTL", "BC_RATE_LIMIT"} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			err := cfg.ApplyEnv(envMap(map[string]string{name: "not-a-value"}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.TenantID = "contoso"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"environment", func(c *Config) { c.Environment = "" }, "environment is required"},
		{"company id", func(c *Config) { c.CompanyID = "CRONUS" }, "company_id must be a GUID"},
		{"secret without id", func(c *Config) { c.ClientSecret = "secret" }, "client_id and client_secret must be set together"},
		{"rate limit", func(c *Config) { c.RateLimit = 0 }, "rate_limit must be positive"},
		{"burst", func(c *Config) { c.Burst = 0 }, "burst must be positive"},
		{"cache ttl", func(c *Config) { c.CacheTTL = Duration{-time.Second} }, "cache_ttl must not be negative"},
		{"max pages", func(c *Config) { c.MaxPages = -1 }, "max_pages must not be negative"},
		{"port", func(c *Config) { c.Port = 70000 }, "port must be between 1 and 65535"},
	}

	require.NoError(t, valid().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := writeFile(t, `tenant_id = "contoso"`+"\n"+`port = 7000`+"\n")
	t.Setenv("PORT", "7001")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "contoso", cfg.TenantID)
	assert.Equal(t, 7001, cfg.Port)
}

func TestAccessors(t *testing.T) {
	cfg := Default()
	cfg.TenantID = "contoso"
	cfg.Environment = "sandbox"
	cfg.CompanyID = testCompanyID
	cfg.CacheTTL = Duration{time.Minute}
	cfg.MaxPages = 7
	cfg.LogLevel = "debug"

	_, ok := cfg.Credentials()
	assert.False(t, ok)

	cfg.ClientID = "app"
	cfg.ClientSecret = "secret"
	creds, ok := cfg.Credentials()
	require.True(t, ok)
	assert.Equal(t, "contoso", creds.TenantID)
	assert.Equal(t, "app", creds.ClientID)

	cc := cfg.Client()
	assert.Equal(t, "contoso", cc.TenantID)
	assert.Equal(t, "sandbox", cc.Environment)
	assert.Equal(t, testCompanyID, cc.CompanyID)
	assert.Equal(t, time.Minute, cc.CacheTTL)

	assert.Equal(t, 7, cfg.Pagination().MaxPages)
	assert.Equal(t, logging.LevelDebug, cfg.Logging().Level)

	opts, err := cfg.RedisOptions()
	require.NoError(t, err)
	assert.Nil(t, opts)

	cfg.RedisURL = "redis://:pw@cache:6380/3"
	opts, err = cfg.RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 3, opts.DB)

	cfg.RedisURL = "http://nope"
	_, err = cfg.RedisOptions()
	assert.Error(t, err)
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1h30m")))
	assert.Equal(t, 90*time.Minute, d.Duration)

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1h30m0s", string(text))
}

func TestConnect(t *testing.T) {
	cfg := Default()
	cfg.TenantID = "contoso"
	cfg.BaseURL = "http://127.0.0.1:1/api"

	bc, rdb, err := cfg.Connect(context.Background())
	require.NoError(t, err)
	defer bc.Close()
	assert.Nil(t, rdb)
	assert.Equal(t, "http://127.0.0.1:1/api", bc.BaseURL())

	cfg.RedisURL = "redis://127.0.0.1:1/0"
	_, _, err = cfg.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to redis")
}

func TestBridgeListener(t *testing.T) {
	cfg := Default()
	cfg.TenantID = "contoso"
	assert.Equal(t, "127.0.0.1:8080", cfg.Addr())
	require.NoError(t, cfg.Validate())

	require.NoError(t, cfg.ApplyEnv(envMap(map[string]string{"HOST": "0.0.0.0"})))
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_token is required when host is not loopback")

	require.NoError(t, cfg.ApplyEnv(envMap(map[string]string{"BC_BRIDGE_TOKEN": "t0ken"})))
	assert.Equal(t, "t0ken", cfg.APIToken)
	require.NoError(t, cfg.Validate())

	for _, host := range []string{"localhost", "::1", "127.0.0.2"} {
		c := Default()
		c.TenantID = "contoso"
		c.Host = host
		assert.NoError(t, c.Validate(), host)
	}
	c := Default()
	c.TenantID = "contoso"
	c.Host = ""
	assert.Error(t, c.Validate())
	assert.Equal(t, "[::1]:8080", Config{Host: "::1", Port: 8080}.Addr())
}
