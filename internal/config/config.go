// Package config provides configuration management for the spread engine.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/mousou2003/MouSouTrade-sub000/internal/agents"
	apperrors "github.com/mousou2003/MouSouTrade-sub000/internal/errors"
	"github.com/mousou2003/MouSouTrade-sub000/internal/logging"
	"github.com/mousou2003/MouSouTrade-sub000/internal/marketdata"
	"github.com/mousou2003/MouSouTrade-sub000/internal/notify"
	"github.com/mousou2003/MouSouTrade-sub000/internal/options"
	"github.com/mousou2003/MouSouTrade-sub000/internal/resilience"
	"github.com/mousou2003/MouSouTrade-sub000/internal/trading"
	"github.com/mousou2003/MouSouTrade-sub000/pkg/utils"
)

// Environment variable overrides.
const (
	EnvConfigFile  = "MOUSOUTRADE_CONFIG_FILE"
	EnvStage       = "MOUSOUTRADE_STAGE"
	EnvDBPath      = "MOUSOUTRADE_DB_PATH"
	EnvFixturesDir = "MOUSOUTRADE_FIXTURES_DIR"
	EnvLogLevel    = "MOUSOUTRADE_LOG_LEVEL"
	EnvWebhookURL  = "MOUSOUTRADE_WEBHOOK_URL"
)

// Config holds all application configuration.
type Config struct {
	Stage      string           `mapstructure:"stage"` // dev, beta, prod
	Engine     EngineConfig     `mapstructure:"engine"`
	Matcher    MatcherConfig    `mapstructure:"matcher"`
	Agent      AgentConfig      `mapstructure:"agent"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Store      StoreConfig      `mapstructure:"store"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Server     ServerConfig     `mapstructure:"server"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Notify     NotifyConfig     `mapstructure:"notifications"`
}

// EngineConfig holds scan pipeline configuration.
type EngineConfig struct {
	Watchlist []string `mapstructure:"watchlist"`
	Workers   int      `mapstructure:"workers"`
	// MaxStrikeDistance drops strikes further than this fraction of the
	// underlying price. Zero keeps every strike.
	MaxStrikeDistance float64 `mapstructure:"max_strike_distance"`
}

// MatcherConfig holds spread matcher tunables.
type MatcherConfig struct {
	DirectionalDeltaMin     float64 `mapstructure:"directional_delta_min"`
	DirectionalDeltaMax     float64 `mapstructure:"directional_delta_max"`
	HighProbabilityDeltaMin float64 `mapstructure:"high_probability_delta_min"`
	HighProbabilityDeltaMax float64 `mapstructure:"high_probability_delta_max"`
	MaxStrikes              int     `mapstructure:"max_strikes"`
	MinRelativeDelta        float64 `mapstructure:"min_relative_delta"`
	CreditFillMultiplier    float64 `mapstructure:"credit_fill_multiplier"`
	DebitFillMultiplier     float64 `mapstructure:"debit_fill_multiplier"`
	TargetFactor            float64 `mapstructure:"target_factor"`
	StopDivisor             float64 `mapstructure:"stop_divisor"`
	MinExpectedMove         float64 `mapstructure:"min_expected_move"`
	MinOpenInterest         int64   `mapstructure:"min_open_interest"`
	MinVolume               int64   `mapstructure:"min_volume"`
}

// AgentConfig holds trading agent configuration.
type AgentConfig struct {
	TargetReward float64 `mapstructure:"target_reward"`
	TargetStop   float64 `mapstructure:"target_stop"`
}

// MarketDataConfig holds market data source configuration.
type MarketDataConfig struct {
	FixturesDir  string        `mapstructure:"fixtures_dir"`
	RateLimit    float64       `mapstructure:"rate_limit"` // requests per second
	Burst        int           `mapstructure:"burst"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`

	// Circuit breaker over retried calls; threshold 0 disables it.
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
	JSON     bool   `mapstructure:"json"`
}

// ServerConfig holds reporting API configuration.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// SchedulerConfig holds cron schedules (with seconds field).
type SchedulerConfig struct {
	ScanSchedule    string `mapstructure:"scan_schedule"`
	AgentSchedule   string `mapstructure:"agent_schedule"`
	TradingDaysOnly bool   `mapstructure:"trading_days_only"`
}

// NotifyConfig holds trade notification configuration.
type NotifyConfig struct {
	Level      string        `mapstructure:"level"` // all, trades_only, errors_only
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/mousoutrade"
	}
	return filepath.Join(home, ".config", "mousoutrade")
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("stage", "dev")

	v.SetDefault("engine.watchlist", []string{"SPY", "QQQ", "IWM"})
	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.max_strike_distance", 0.0)

	v.SetDefault("matcher.directional_delta_min", 0.45)
	v.SetDefault("matcher.directional_delta_max", 0.70)
	v.SetDefault("matcher.high_probability_delta_min", 0.10)
	v.SetDefault("matcher.high_probability_delta_max", 0.30)
	v.SetDefault("matcher.max_strikes", 20)
	v.SetDefault("matcher.min_relative_delta", 0.26)
	v.SetDefault("matcher.credit_fill_multiplier", 0.95)
	v.SetDefault("matcher.debit_fill_multiplier", 1.05)
	v.SetDefault("matcher.target_factor", 0.8)
	v.SetDefault("matcher.stop_divisor", 2.0)
	v.SetDefault("matcher.min_expected_move", 1.0)
	v.SetDefault("matcher.min_open_interest", 10)
	v.SetDefault("matcher.min_volume", 10)

	v.SetDefault("agent.target_reward", 0.8)
	v.SetDefault("agent.target_stop", 1.2)

	v.SetDefault("market_data.fixtures_dir", filepath.Join(configDir, "fixtures"))
	v.SetDefault("market_data.rate_limit", 5.0)
	v.SetDefault("market_data.burst", 5)
	v.SetDefault("market_data.max_attempts", 3)
	v.SetDefault("market_data.initial_delay", "500ms")
	v.SetDefault("market_data.max_delay", "10s")
	v.SetDefault("market_data.breaker_threshold", 5)
	v.SetDefault("market_data.breaker_cooldown", "30s")

	v.SetDefault("store.db_path", filepath.Join(configDir, "mousoutrade.db"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "mousoutrade.log"))
	v.SetDefault("logging.json", false)

	v.SetDefault("server.addr", ":8080")

	v.SetDefault("scheduler.scan_schedule", "0 30 8 * * 1-5")
	v.SetDefault("scheduler.agent_schedule", "0 15 16 * * 1-5")
	v.SetDefault("scheduler.trading_days_only", true)

	v.SetDefault("notifications.level", "all")
	v.SetDefault("notifications.webhook_url", "")
	v.SetDefault("notifications.timeout", "10s")
}

// Default returns the configuration built from defaults alone.
func Default() *Config {
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("unmarshalling default config: %v", err))
	}
	return cfg
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is created from the template and defaults are used.
func Load(configDir string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := viper.New()
	setDefaults(v, configDir)

	if file := os.Getenv(EnvConfigFile); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(configDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, fmt.Errorf("creating config template: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvStage); v != "" {
		cfg.Stage = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.Store.DBPath = v
	}
	if v := os.Getenv(EnvFixturesDir); v != "" {
		cfg.MarketData.FixturesDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvWebhookURL); v != "" {
		cfg.Notify.WebhookURL = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Stage {
	case "dev", "beta", "prod":
	default:
		return apperrors.NewValidationError("stage", c.Stage, "must be dev, beta or prod")
	}

	if len(c.Engine.Watchlist) == 0 {
		return apperrors.NewValidationError("engine.watchlist", c.Engine.Watchlist, "must not be empty")
	}
	for _, t := range c.Engine.Watchlist {
		if strings.TrimSpace(t) == "" {
			return apperrors.NewValidationError("engine.watchlist", t, "empty ticker")
		}
	}
	if c.Engine.MaxStrikeDistance < 0 {
		return apperrors.NewValidationError("engine.max_strike_distance", c.Engine.MaxStrikeDistance, "must be non-negative")
	}

	m := c.Matcher
	if !validDeltaRange(m.DirectionalDeltaMin, m.DirectionalDeltaMax) {
		return apperrors.NewValidationError("matcher.directional_delta", [2]float64{m.DirectionalDeltaMin, m.DirectionalDeltaMax}, "must satisfy 0 <= min <= max <= 1")
	}
	if !validDeltaRange(m.HighProbabilityDeltaMin, m.HighProbabilityDeltaMax) {
		return apperrors.NewValidationError("matcher.high_probability_delta", [2]float64{m.HighProbabilityDeltaMin, m.HighProbabilityDeltaMax}, "must satisfy 0 <= min <= max <= 1")
	}
	if m.MaxStrikes <= 0 {
		return apperrors.NewValidationError("matcher.max_strikes", m.MaxStrikes, "must be positive")
	}
	if m.MinRelativeDelta < 0 || m.MinRelativeDelta >= 1 {
		return apperrors.NewValidationError("matcher.min_relative_delta", m.MinRelativeDelta, "must be in [0, 1)")
	}
	if m.CreditFillMultiplier <= 0 || m.DebitFillMultiplier <= 0 {
		return apperrors.NewValidationError("matcher.fill_multiplier", [2]float64{m.CreditFillMultiplier, m.DebitFillMultiplier}, "must be positive")
	}
	if m.StopDivisor <= 0 {
		return apperrors.NewValidationError("matcher.stop_divisor", m.StopDivisor, "must be positive")
	}

	if c.Agent.TargetReward <= 0 || c.Agent.TargetStop <= 0 {
		return apperrors.NewValidationError("agent", c.Agent, "target_reward and target_stop must be positive")
	}

	if c.MarketData.RateLimit <= 0 || c.MarketData.Burst <= 0 {
		return apperrors.NewValidationError("market_data.rate_limit", c.MarketData.RateLimit, "rate and burst must be positive")
	}
	if c.MarketData.MaxAttempts <= 0 {
		return apperrors.NewValidationError("market_data.max_attempts", c.MarketData.MaxAttempts, "must be positive")
	}
	if c.MarketData.BreakerThreshold < 0 {
		return apperrors.NewValidationError("market_data.breaker_threshold", c.MarketData.BreakerThreshold, "must be non-negative")
	}

	if c.Store.DBPath == "" {
		return apperrors.NewValidationError("store.db_path", c.Store.DBPath, "must be set")
	}

	if _, err := notify.ParseLevel(c.Notify.Level); err != nil {
		return apperrors.NewValidationError("notifications.level", c.Notify.Level, "must be all, trades_only or errors_only")
	}
	if u := c.Notify.WebhookURL; u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return apperrors.NewValidationError("notifications.webhook_url", u, "must be an http(s) URL")
	}
	return nil
}

func validDeltaRange(min, max float64) bool {
	return min >= 0 && max <= 1 && min <= max
}

// IsProduction reports whether the prod stage is configured.
func (c *Config) IsProduction() bool {
	return c.Stage == "prod"
}

// TradingMatcherConfig converts the matcher section into matcher settings.
func (c *Config) TradingMatcherConfig() trading.MatcherConfig {
	m := c.Matcher
	return trading.MatcherConfig{
		DeltaRanges: options.DeltaRanges{
			options.RoleDirectional: {
				Min: decimal.NewFromFloat(m.DirectionalDeltaMin),
				Max: decimal.NewFromFloat(m.DirectionalDeltaMax),
			},
			options.RoleHighProbability: {
				Min: decimal.NewFromFloat(m.HighProbabilityDeltaMin),
				Max: decimal.NewFromFloat(m.HighProbabilityDeltaMax),
			},
		},
		MaxStrikes:           m.MaxStrikes,
		MinRelativeDelta:     decimal.NewFromFloat(m.MinRelativeDelta),
		CreditFillMultiplier: decimal.NewFromFloat(m.CreditFillMultiplier),
		DebitFillMultiplier:  decimal.NewFromFloat(m.DebitFillMultiplier),
		TargetFactor:         decimal.NewFromFloat(m.TargetFactor),
		StopDivisor:          decimal.NewFromFloat(m.StopDivisor),
		MinExpectedMove:      decimal.NewFromFloat(m.MinExpectedMove),
		MinOpenInterest:      m.MinOpenInterest,
		MinVolume:            m.MinVolume,
	}
}

// TradingAgentConfig converts the agent section into trading agent settings.
func (c *Config) TradingAgentConfig() agents.AgentConfig {
	return agents.AgentConfig{
		TargetReward: decimal.NewFromFloat(c.Agent.TargetReward),
		TargetStop:   decimal.NewFromFloat(c.Agent.TargetStop),
	}
}

// PipelineConfig converts the engine section into scan pipeline settings.
func (c *Config) PipelineConfig() trading.PipelineConfig {
	return trading.PipelineConfig{
		Watchlist: c.Engine.Watchlist,
		Workers:   c.Engine.Workers,
	}
}

// StrikeDistance returns the selector's strike distance filter.
func (c *Config) StrikeDistance() decimal.Decimal {
	return decimal.NewFromFloat(c.Engine.MaxStrikeDistance)
}

// RetryConfig converts the market data section into retry settings that
// retry transient source failures only.
func (c *Config) RetryConfig() utils.RetryConfig {
	cfg := utils.DefaultRetryConfig()
	cfg.MaxAttempts = c.MarketData.MaxAttempts
	if c.MarketData.InitialDelay > 0 {
		cfg.InitialDelay = c.MarketData.InitialDelay
	}
	if c.MarketData.MaxDelay > 0 {
		cfg.MaxDelay = c.MarketData.MaxDelay
	}
	cfg.Retryable = apperrors.IsTransient
	return cfg
}

// SourceOptions converts the market data section into client options.
func (c *Config) SourceOptions() marketdata.Options {
	return marketdata.Options{
		RateLimit: c.MarketData.RateLimit,
		Burst:     c.MarketData.Burst,
		Retry:     c.RetryConfig(),
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: c.MarketData.BreakerThreshold,
			SuccessThreshold: 1,
			Cooldown:         c.MarketData.BreakerCooldown,
		},
	}
}

// NotifierConfig converts the notifications section into notifier settings.
func (c *Config) NotifierConfig() notify.Config {
	level, _ := notify.ParseLevel(c.Notify.Level)
	return notify.Config{
		Level:      level,
		WebhookURL: c.Notify.WebhookURL,
		Timeout:    c.Notify.Timeout,
	}
}

// LogConfig converts the logging section into a logger configuration.
func (c *Config) LogConfig() logging.LogConfig {
	lc := logging.DefaultLogConfig()
	lc.Level = c.Logging.Level
	lc.File = c.Logging.File
	// prod logs are shipped, so always structured
	lc.JSON = c.Logging.JSON || c.IsProduction()
	if c.Logging.FilePath != "" {
		lc.FilePath = c.Logging.FilePath
	}
	return lc
}
