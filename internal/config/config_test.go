package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mousou2003/MouSouTrade-sub000/internal/errors"
	"github.com/mousou2003/MouSouTrade-sub000/internal/notify"
	"github.com/mousou2003/MouSouTrade-sub000/internal/options"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvConfigFile, EnvStage, EnvDBPath, EnvFixturesDir, EnvLogLevel, EnvWebhookURL} {
		t.Setenv(k, "")
	}
}

func TestLoadCreatesTemplateAndUsesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	assert.Equal(t, "dev", cfg.Stage)
	assert.Equal(t, []string{"SPY", "QQQ", "IWM"}, cfg.Engine.Watchlist)
	assert.Equal(t, 20, cfg.Matcher.MaxStrikes)
	assert.Equal(t, filepath.Join(dir, "mousoutrade.db"), cfg.Store.DBPath)
	assert.Equal(t, 500*time.Millisecond, cfg.MarketData.InitialDelay)

	// Second load reads the template back.
	again, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg.Matcher, again.Matcher)
	assert.Equal(t, cfg.Agent, again.Agent)
	assert.Equal(t, cfg.Scheduler, again.Scheduler)
}

func TestLoadReadsFileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
stage = "beta"
[engine]
watchlist = ["AAPL"]
[matcher]
max_strikes = 5
`), 0644))

	t.Setenv(EnvConfigFile, path)
	t.Setenv(EnvDBPath, "/tmp/override.db")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "beta", cfg.Stage)
	assert.Equal(t, []string{"AAPL"}, cfg.Engine.Watchlist)
	assert.Equal(t, 5, cfg.Matcher.MaxStrikes)
	assert.Equal(t, 0.26, cfg.Matcher.MinRelativeDelta)
	assert.Equal(t, "/tmp/override.db", cfg.Store.DBPath)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsInvalidStage(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvStage, "staging")

	_, err := Load(t.TempDir())
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty watchlist", func(c *Config) { c.Engine.Watchlist = nil }},
		{"blank ticker", func(c *Config) { c.Engine.Watchlist = []string{" "} }},
		{"inverted delta range", func(c *Config) { c.Matcher.DirectionalDeltaMin = 0.8 }},
		{"delta above one", func(c *Config) { c.Matcher.HighProbabilityDeltaMax = 1.5 }},
		{"no strikes", func(c *Config) { c.Matcher.MaxStrikes = 0 }},
		{"relative delta", func(c *Config) { c.Matcher.MinRelativeDelta = 1 }},
		{"zero stop divisor", func(c *Config) { c.Matcher.StopDivisor = 0 }},
		{"zero target reward", func(c *Config) { c.Agent.TargetReward = 0 }},
		{"zero rate", func(c *Config) { c.MarketData.RateLimit = 0 }},
		{"no attempts", func(c *Config) { c.MarketData.MaxAttempts = 0 }},
		{"no db", func(c *Config) { c.Store.DBPath = "" }},
		{"notify level", func(c *Config) { c.Notify.Level = "loud" }},
		{"webhook scheme", func(c *Config) { c.Notify.WebhookURL = "ftp://hooks" }},
	}

	require.NoError(t, Default().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), apperrors.ErrInputValidation)
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()

	mc := cfg.TradingMatcherConfig()
	assert.Equal(t, 20, mc.MaxStrikes)
	assert.True(t, mc.CreditFillMultiplier.Equal(decimal.RequireFromString("0.95")))
	assert.True(t, mc.DeltaRanges.For(options.RoleDirectional).Min.Equal(decimal.RequireFromString("0.45")))
	assert.True(t, mc.DeltaRanges.For(options.RoleHighProbability).Max.Equal(decimal.RequireFromString("0.3")))

	ac := cfg.TradingAgentConfig()
	assert.True(t, ac.TargetReward.Equal(decimal.RequireFromString("0.8")))
	assert.True(t, ac.TargetStop.Equal(decimal.RequireFromString("1.2")))

	rc := cfg.RetryConfig()
	assert.Equal(t, 3, rc.MaxAttempts)
	require.NotNil(t, rc.Retryable)
	assert.True(t, rc.Retryable(apperrors.NewSourceError("snapshot", "SPY", true, assert.AnError)))
	assert.False(t, rc.Retryable(apperrors.ErrNoDataFound))

	so := cfg.SourceOptions()
	assert.Equal(t, 5, so.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, so.Breaker.Cooldown)

	assert.Equal(t, cfg.Engine.Watchlist, cfg.PipelineConfig().Watchlist)
	assert.True(t, cfg.StrikeDistance().IsZero())
	assert.Equal(t, "info", cfg.LogConfig().Level)
	assert.False(t, cfg.LogConfig().JSON)
	cfg.Stage = "prod"
	assert.True(t, cfg.LogConfig().JSON)

	nc := cfg.NotifierConfig()
	assert.Equal(t, notify.LevelAll, nc.Level)
	assert.Empty(t, nc.WebhookURL)
	assert.Equal(t, 10*time.Second, nc.Timeout)
}
