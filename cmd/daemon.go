package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"autoflow/internal/bootstrap"
	"autoflow/internal/bootstrap/logging"
	"autoflow/internal/errs"
	"autoflow/internal/usecase/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the poll/dispatch loop until interrupted",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *daemon.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := app.InitSchema(ctx); err != nil {
			return errs.Wrap(err, "init schema")
		}

		svc.Health().SetHook(func(degraded bool) {
			// Hook point for the external alerting sink.
			if degraded {
				logging.Error(ctx, "daemon degraded, sustained upstream failures")
			} else {
				logging.Info(ctx, "daemon healthy again")
			}
		})

		runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			return errs.Wrap(err, "run daemon")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
