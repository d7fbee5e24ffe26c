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

var initDbCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create or migrate the run-ledger schema",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, _ *daemon.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		if err := app.InitSchema(ctx); err != nil {
			return errs.Wrap(err, "init schema")
		}

		if _, err := fmt.Fprintln(cmd.OutOrStdout(), "schema ready"); err != nil {
			return errs.Wrap(err, "write output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(initDbCmd)
}
