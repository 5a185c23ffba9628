package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EXCHANGE_JWT_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, []string{"BTC", "ETH"}, cfg.Symbols)
	assert.Equal(t, 2*time.Second, cfg.NotifyTimeout)
	assert.Equal(t, "exchange.events", cfg.KafkaTopic)
	assert.Empty(t, cfg.RedisAddr)
	assert.False(t, cfg.InsecureSecret())

	rate, err := cfg.Commission()
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.015")))
}

func TestLoad_RejectsDefaultSecretForPostgres(t *testing.T) {
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("EXCHANGE_STORE", "memory")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSecret())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("EXCHANGE_STORE", "memory")
	t.Setenv("EXCHANGE_HTTP_ADDR", ":9090")
	t.Setenv("EXCHANGE_SYMBOLS", "BTC,ETH,SOL")
	t.Setenv("EXCHANGE_COMMISSION_RATE", "0.001")
	t.Setenv("EXCHANGE_NOTIFY_TIMEOUT", "500ms")
	t.Setenv("EXCHANGE_REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, cfg.Symbols)
	assert.Equal(t, 500*time.Millisecond, cfg.NotifyTimeout)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)

	rate, err := cfg.Commission()
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.001")))
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{Store: "postgres", JWTSecret: "s3cret", Symbols: []string{"BTC"}, CommissionRate: "0.015"}
	}

	tests := []struct {
		name        string
		modify      func(c *Config)
		expectError bool
	}{
		{name: "Valid", modify: func(c *Config) {}},
		{name: "MemoryStore", modify: func(c *Config) { c.Store = "memory" }},
		{name: "UnknownStore", modify: func(c *Config) { c.Store = "sqlite" }, expectError: true},
		{name: "EmptySecret", modify: func(c *Config) { c.JWTSecret = "" }, expectError: true},
		{name: "DefaultSecretPostgres", modify: func(c *Config) { c.JWTSecret = DefaultJWTSecret }, expectError: true},
		{name: "DefaultSecretMemory", modify: func(c *Config) { c.JWTSecret = DefaultJWTSecret; c.Store = "memory" }},
		{name: "NoSymbols", modify: func(c *Config) { c.Symbols = nil }, expectError: true},
		{name: "ZeroCommission", modify: func(c *Config) { c.CommissionRate = "0" }, expectError: true},
		{name: "WholeCommission", modify: func(c *Config) { c.CommissionRate = "1" }, expectError: true},
		{name: "GarbageCommission", modify: func(c *Config) { c.CommissionRate = "lots" }, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
