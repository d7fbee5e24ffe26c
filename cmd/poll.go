package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"autoflow/internal/bootstrap"
	"autoflow/internal/bootstrap/logging"
	"autoflow/internal/errs"
	"autoflow/internal/usecase/daemon"
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Run one poll cycle and exit",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *daemon.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := app.InitSchema(ctx); err != nil {
			return errs.Wrap(err, "init schema")
		}
		if err := svc.Start(ctx); err != nil {
			return errs.Wrap(err, "start service")
		}

		summary, err := svc.PollOnce(ctx)
		if err != nil {
			return errs.Wrap(err, "poll once")
		}
		svc.Stop()

		_, err = fmt.Fprintf(cmd.OutOrStdout(),
			"items=%d watched=%d dispatched=%d deferred=%d blocked=%d unauthorized=%d\n",
			summary.Items, summary.Watched, summary.Dispatched, summary.Deferred, summary.Blocked, summary.Unauthorized)
		if err != nil {
			return errs.Wrap(err, "write poll output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(pollCmd)
}
