package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"github.com/mousou2003/MouSouTrade-sub000/internal/agents"
	apperrors "github.com/mousou2003/MouSouTrade-sub000/internal/errors"
	"github.com/mousou2003/MouSouTrade-sub000/internal/models"
	"github.com/mousou2003/MouSouTrade-sub000/internal/store"
	"github.com/mousou2003/MouSouTrade-sub000/internal/trading"
	"github.com/mousou2003/MouSouTrade-sub000/pkg/utils"
)

// ErrValidationFailed is returned by the validate command when any spread
// breaks a strategy rule.
var ErrValidationFailed = errors.New("spread validation failed")

func addEngineCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newScanCmd(app))
	rootCmd.AddCommand(newAgentCmd(app))
	rootCmd.AddCommand(newValidateCmd(app))
}

func newScanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [tickers...]",
		Short: "Scan the watchlist for vertical spreads",
		Long: `Scan every underlying for credit and debit spreads in both directions
against the monthly expiration following the scan date. Matched and
unmatched spreads are saved unless --dry-run is given.`,
		Example: `  mousoutrade scan
  mousoutrade scan SPY QQQ --date 2025-02-03
  mousoutrade scan --dry-run --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dateStr, _ := cmd.Flags().GetString("date")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			today, err := ParseDate(dateStr, app.now())
			if err != nil {
				return err
			}

			var saver trading.SpreadSaver
			if !dryRun {
				db, err := app.OpenStore()
				if err != nil {
					return err
				}
				saver = db
			}

			summary, err := app.NewPipeline(saver, args).Run(cmd.Context(), today)
			if err != nil && summary == nil {
				return err
			}

			if output.IsJSON() {
				if jsonErr := output.JSON(summary); jsonErr != nil {
					return jsonErr
				}
				return err
			}
			printScanSummary(output, summary)
			return err
		},
	}

	cmd.Flags().String("date", "", "scan date YYYY-MM-DD (default: today, New York)")
	cmd.Flags().Bool("dry-run", false, "match without saving")
	return cmd
}

func printScanSummary(output *Output, summary *trading.ScanSummary) {
	output.Bold("Scan for expiration %s", FormatDate(summary.Expiration))
	output.Println()

	table := NewTable(output, "TICKER", "SPREAD", "LEGS", "NET", "MAX REWARD", "MAX RISK", "BREAKEVEN", "POP")
	for _, result := range summary.Results {
		if result.Err != nil {
			output.Error("%s: %v", result.Ticker, result.Err)
			continue
		}
		for _, s := range result.Spreads {
			if !s.Matched {
				continue
			}
			table.AddRow(
				s.UnderlyingTicker,
				s.Label(),
				FormatLegs(s),
				s.NetPremium.StringFixed(2),
				utils.FormatUSD(s.MaxReward),
				utils.FormatUSD(s.MaxRisk),
				s.Breakeven.StringFixed(2),
				utils.FormatRatio(s.ProbabilityOfProfit),
			)
		}
	}
	table.Render()
	output.Println()
	output.Dim("%d matched, %d unmatched, %d failed", summary.Matched, summary.Unmatched, summary.Failed)
}

func newAgentCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Run one trading agent cycle over the stored spreads",
		Long: `Load the matched spreads, attach the day's bar of each underlying and
advance every spread through entry and exit. Changed spreads and the day's
performance are saved.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dateStr, _ := cmd.Flags().GetString("date")

			today, err := ParseDate(dateStr, app.now())
			if err != nil {
				return err
			}
			db, err := app.OpenStore()
			if err != nil {
				return err
			}

			result, err := app.NewCycle(db).Run(cmd.Context(), today)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			printCycleResult(output, result)
			return nil
		},
	}

	cmd.Flags().String("date", "", "cycle date YYYY-MM-DD (default: today, New York)")
	return cmd
}

func printCycleResult(output *Output, result *agents.CycleResult) {
	output.Bold("Agent cycle %s", FormatDate(result.Performance.Date))
	output.Printf("  Evaluated: %d   Changed: %d\n", result.Evaluated, len(result.Changed))
	if len(result.MissingBars) > 0 {
		output.Warning("  No bar for: %s", strings.Join(result.MissingBars, ", "))
	}
	output.Println()

	if len(result.Changed) > 0 {
		table := NewTable(output, "TICKER", "SPREAD", "LEGS", "STATUS", "ENTRY", "EXIT", "P&L")
		for _, s := range result.Changed {
			exit := "-"
			if s.Status() == models.TradeStateCompleted {
				exit = s.ActualExitPrice.StringFixed(2)
			}
			table.AddRow(
				s.UnderlyingTicker,
				s.Label(),
				FormatLegs(s),
				output.State(s.Status()),
				s.ActualEntryPrice.StringFixed(2),
				exit,
				output.PnL(s.RealizedPnL),
			)
		}
		table.Render()
		output.Println()
	}

	printPerformance(output, result.Performance)
}

func newValidateCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [tickers...]",
		Short: "Audit spreads against the strategy rules",
		Long: `Check strike ordering and target/stop placement for each spread. Spreads
come from a CSV file (--file) or from the matched spreads in the store.

CSV columns: Ticker, Strategy, Direction, Short Contract, Long Contract,
Entry Price, Target Price, Stop Price.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			file, _ := cmd.Flags().GetString("file")

			var spreads []*models.Spread
			var err error
			if file != "" {
				spreads, err = readSpreadFile(file)
			} else {
				spreads, err = loadMatched(cmd.Context(), app, args)
			}
			if err != nil {
				return err
			}

			errs := trading.NewStrategyValidator().ValidateSpreads(spreads)
			corrections := trading.DirectionCorrections(spreads)
			if output.IsJSON() {
				if jsonErr := output.JSON(map[string]interface{}{
					"checked":     len(spreads),
					"valid":       len(errs) == 0,
					"errors":      errs,
					"corrections": corrections,
				}); jsonErr != nil {
					return jsonErr
				}
			} else {
				for _, e := range errs {
					output.Error("✗ %s", e)
				}
				for _, c := range corrections {
					output.Warning("! %s: legs read %s", c.Spread, strings.ToLower(string(c.Inferred)))
				}
				if len(errs) == 0 {
					output.Success("✓ %d spreads valid", len(spreads))
				}
			}
			if len(errs) > 0 {
				return fmt.Errorf("%w: %d of %d checks failed", ErrValidationFailed, len(errs), len(spreads))
			}
			return nil
		},
	}

	cmd.Flags().String("file", "", "CSV file of spreads to validate")
	return cmd
}

func loadMatched(ctx context.Context, app *App, tickers []string) ([]*models.Spread, error) {
	db, err := app.OpenStore()
	if err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return db.LoadAll(ctx, store.SpreadFilter{MatchedOnly: true})
	}

	var spreads []*models.Spread
	for _, t := range tickers {
		loaded, err := db.LoadAll(ctx, store.SpreadFilter{Ticker: strings.ToUpper(t), MatchedOnly: true})
		if err != nil {
			return nil, err
		}
		spreads = append(spreads, loaded...)
	}
	return spreads, nil
}

func readSpreadFile(path string) ([]*models.Spread, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSpreadRecords(f)
}

// ReadSpreadRecords parses CSV spread records with a header row.
func ReadSpreadRecords(r io.Reader) ([]*models.Spread, error) {
	rows, err := gocsv.CSVToMaps(r)
	if err != nil {
		return nil, fmt.Errorf("reading spread records: %w", err)
	}

	spreads := make([]*models.Spread, 0, len(rows))
	for i, row := range rows {
		record := make(map[string]string, len(row))
		for k, v := range row {
			record[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		s, err := trading.SpreadFromRecord(record)
		if err != nil {
			// header is line 1
			return nil, apperrors.Wrapf(err, "line %d", i+2)
		}
		spreads = append(spreads, s)
	}
	return spreads, nil
}
