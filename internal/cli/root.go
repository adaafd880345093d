package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mousou2003/MouSouTrade-sub000/internal/agents"
	"github.com/mousou2003/MouSouTrade-sub000/internal/config"
	"github.com/mousou2003/MouSouTrade-sub000/internal/logging"
	"github.com/mousou2003/MouSouTrade-sub000/internal/marketdata"
	"github.com/mousou2003/MouSouTrade-sub000/internal/notify"
	"github.com/mousou2003/MouSouTrade-sub000/internal/store"
	"github.com/mousou2003/MouSouTrade-sub000/internal/trading"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2025-02-03"
)

// App holds the application dependencies. Store and Source are opened on
// first use so that commands like version and config never touch the
// database.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  *store.SQLiteStore
	Source marketdata.Source

	notifier *notify.MultiNotifier
	now      func() time.Time
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
		now:    time.Now,
	}

	rootCmd := &cobra.Command{
		Use:   "mousoutrade",
		Short: "MouSouTrade - vertical option spread engine",
		Long: `MouSouTrade scans a watchlist for vertical option spreads, tracks the
matched spreads through their entry and exit lifecycle and reports the
resulting performance.

Use 'mousoutrade <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/mousoutrade)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addEngineCommands(rootCmd, app)
	addReportCommands(rootCmd, app)
	addServiceCommands(rootCmd, app)

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))

	return rootCmd
}

// ConfigDirFromArgs returns the --config value in args, or the default
// directory. The config is loaded before cobra parses flags.
func ConfigDirFromArgs(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return config.DefaultConfigDir()
}

// OpenStore opens the SQLite store on first use.
func (a *App) OpenStore() (*store.SQLiteStore, error) {
	if a.Store != nil {
		return a.Store, nil
	}
	s, err := store.NewSQLiteStore(a.Config.Store.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a.Logger.Debug().Str("path", a.Config.Store.DBPath).Msg("SQLite store initialized")
	a.Store = s
	return s, nil
}

// MarketData returns the retrying market data source.
func (a *App) MarketData() marketdata.Source {
	if a.Source == nil {
		files := marketdata.NewFileSource(a.Config.MarketData.FixturesDir)
		a.Source = marketdata.NewRetryingSource(files, a.Config.SourceOptions(), a.Logger)
		a.Logger.Debug().Str("dir", a.Config.MarketData.FixturesDir).Msg("Market data source initialized")
	}
	return a.Source
}

// NewPipeline builds the scan pipeline over tickers, or the configured
// watchlist when tickers is empty. A nil saver makes a dry run.
func (a *App) NewPipeline(saver trading.SpreadSaver, tickers []string) *trading.ScanPipeline {
	source := a.MarketData()
	selector := trading.NewStandardContractSelector(a.Config.StrikeDistance())
	matcher := trading.NewVerticalSpread(selector, source, a.Config.TradingMatcherConfig(), a.Logger)
	cfg := a.Config.PipelineConfig()
	if len(tickers) > 0 {
		cfg.Watchlist = tickers
	}
	return trading.NewScanPipeline(source, matcher, saver, cfg, a.Logger)
}

// NewCycle builds an agent cycle over the store.
func (a *App) NewCycle(repo agents.SpreadRepository) *agents.Cycle {
	agent := agents.NewTradingAgent(a.Config.TradingAgentConfig(), a.Logger)
	return agents.NewCycle(agent, repo, a.MarketData(), a.Logger).WithNotifier(a.Notifier())
}

// Notifier returns the trade notifier.
func (a *App) Notifier() *notify.MultiNotifier {
	if a.notifier == nil {
		a.notifier = notify.New(a.Config.NotifierConfig(), a.Logger)
	}
	return a.notifier
}

// Close releases the store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	err := a.Store.Close()
	a.Store = nil
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("mousoutrade version %s (built %s)\n", Version, BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			return showConfig(output, app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			output.Println(dir + "/config.toml")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration invalid: %v", err)
				return err
			}
			output.Success("Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) error {
	output.Bold("Engine")
	output.Printf("  Stage:            %s\n", cfg.Stage)
	output.Printf("  Watchlist:        %v\n", cfg.Engine.Watchlist)
	output.Printf("  Workers:          %d\n", cfg.Engine.Workers)
	output.Println()

	m := cfg.Matcher
	output.Bold("Matcher")
	output.Printf("  Directional delta: %.2f - %.2f\n", m.DirectionalDeltaMin, m.DirectionalDeltaMax)
	output.Printf("  High-prob delta:   %.2f - %.2f\n", m.HighProbabilityDeltaMin, m.HighProbabilityDeltaMax)
	output.Printf("  Max strikes:       %d\n", m.MaxStrikes)
	output.Printf("  Min relative delta: %.2f\n", m.MinRelativeDelta)
	output.Printf("  Fill multipliers:  credit %.2f, debit %.2f\n", m.CreditFillMultiplier, m.DebitFillMultiplier)
	output.Println()

	output.Bold("Agent")
	output.Printf("  Target reward:    %.2f\n", cfg.Agent.TargetReward)
	output.Printf("  Target stop:      %.2f\n", cfg.Agent.TargetStop)
	output.Println()

	output.Bold("Storage & Data")
	output.Printf("  Database:         %s\n", cfg.Store.DBPath)
	output.Printf("  Fixtures:         %s\n", cfg.MarketData.FixturesDir)
	output.Printf("  Rate limit:       %.1f req/s (burst %d)\n", cfg.MarketData.RateLimit, cfg.MarketData.Burst)
	output.Println()

	output.Bold("Service")
	output.Printf("  API address:      %s\n", cfg.Server.Addr)
	output.Printf("  Scan schedule:    %s\n", cfg.Scheduler.ScanSchedule)
	output.Printf("  Agent schedule:   %s\n", cfg.Scheduler.AgentSchedule)
	webhook := "none"
	if cfg.Notify.WebhookURL != "" {
		webhook = "configured"
	}
	output.Printf("  Notifications:    %s (webhook %s)\n", cfg.Notify.Level, webhook)

	return nil
}
