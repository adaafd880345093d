package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mousou2003/MouSouTrade-sub000/internal/scheduler"
	"github.com/mousou2003/MouSouTrade-sub000/internal/server"
	"github.com/mousou2003/MouSouTrade-sub000/internal/stream"
)

const shutdownTimeout = 10 * time.Second

func addServiceCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newDaemonCmd(app))
}

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reporting API",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = app.Config.Server.Addr
			}

			db, err := app.OpenStore()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(server.Config{Addr: addr, Log: app.Logger, Store: db})
			return serveUntilDone(ctx, srv)
		},
	}

	cmd.Flags().String("addr", "", "listen address (default from config)")
	return cmd
}

func newDaemonCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run scheduled scans and agent cycles with the reporting API",
		Long: `Run the scan pipeline and the agent cycle on their cron schedules
(America/New_York, seconds field first) and serve the reporting API until
interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			runNow, _ := cmd.Flags().GetBool("run-now")
			noAPI, _ := cmd.Flags().GetBool("no-api")

			db, err := app.OpenStore()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sched := scheduler.New(scheduler.Options{
				TradingDaysOnly: app.Config.Scheduler.TradingDaysOnly,
				Recorder:        db,
				Notifier:        app.Notifier(),
			}, app.Logger)

			scan := &scheduler.ScanJob{Pipeline: app.NewPipeline(db, nil)}
			agent := &scheduler.AgentJob{Cycle: app.NewCycle(db)}
			if err := sched.AddJob(app.Config.Scheduler.ScanSchedule, scan); err != nil {
				return err
			}
			if err := sched.AddJob(app.Config.Scheduler.AgentSchedule, agent); err != nil {
				return err
			}

			var hub *stream.Hub
			if !noAPI {
				hub = stream.NewHub(stream.DefaultHubConfig(), app.Logger)
				defer hub.Close()
				app.Notifier().AddChannel(hub)
			}

			if runNow {
				for _, job := range []scheduler.Job{scan, agent} {
					if err := sched.RunNow(ctx, job); err != nil {
						output.Warning("%s run failed: %v", job.Name(), err)
					}
				}
			}

			sched.Start()
			defer sched.Stop()
			output.Info("Scheduler running: scan %q, agent %q", app.Config.Scheduler.ScanSchedule, app.Config.Scheduler.AgentSchedule)

			if noAPI {
				<-ctx.Done()
				return nil
			}
			srv := server.New(server.Config{Addr: app.Config.Server.Addr, Log: app.Logger, Store: db, Events: hub})
			return serveUntilDone(ctx, srv)
		},
	}

	cmd.Flags().Bool("run-now", false, "run a scan and an agent cycle before waiting for the schedule")
	cmd.Flags().Bool("no-api", false, "do not serve the reporting API")
	return cmd
}

// serveUntilDone runs srv until ctx is cancelled or the listener fails.
func serveUntilDone(ctx context.Context, srv *server.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
