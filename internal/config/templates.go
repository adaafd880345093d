package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# MouSouTrade spread engine configuration

# Deployment stage: dev, beta, prod
stage = "dev"

[engine]
# Underlyings scanned for vertical spreads
watchlist = ["SPY", "QQQ", "IWM"]
# Underlyings processed concurrently
workers = 4
# Drop strikes further than this fraction of the price (0 keeps all)
max_strike_distance = 0.0

[matcher]
# |delta| range of the directional (first) leg
directional_delta_min = 0.45
directional_delta_max = 0.70
# |delta| range of the high-probability (second) leg
high_probability_delta_min = 0.10
high_probability_delta_max = 0.30
# Strikes scanned beyond the first leg
max_strikes = 20
# Minimum premium drop from first to second leg, as a fraction of the first
min_relative_delta = 0.26
# Conservative fill assumptions applied to both legs
credit_fill_multiplier = 0.95
debit_fill_multiplier = 1.05
# Target = close +/- net premium * target_factor
target_factor = 0.8
# Stop = close -/+ net premium / stop_divisor
stop_divisor = 2.0
# Skip second-leg candidates whose expected move is at or below this
min_expected_move = 1.0
# Liquidity warnings
min_open_interest = 10
min_volume = 10

[agent]
# Take profit at this fraction of max reward
target_reward = 0.8
# Stop out at this multiple of max risk
target_stop = 1.2

[market_data]
# Directory of <TICKER>.json chain fixtures (defaults to <config dir>/fixtures)
# fixtures_dir = "/var/lib/mousoutrade/fixtures"
# Requests per second and burst
rate_limit = 5.0
burst = 5
# Retries of transient failures
max_attempts = 3
initial_delay = "500ms"
max_delay = "10s"
# Stop calling the provider after this many failed calls in a row (0 disables)
breaker_threshold = 5
breaker_cooldown = "30s"

[store]
# SQLite database path (defaults to <config dir>/mousoutrade.db)
# db_path = "/var/lib/mousoutrade/mousoutrade.db"

[logging]
level = "info"
file = true
json = false

[server]
addr = ":8080"

[scheduler]
# Cron expressions with a seconds field, America/New_York
scan_schedule = "0 30 8 * * 1-5"
agent_schedule = "0 15 16 * * 1-5"
trading_days_only = true

[notifications]
# all, trades_only or errors_only
level = "all"
# POST each notification as JSON here (empty logs only)
webhook_url = ""
timeout = "10s"
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}
