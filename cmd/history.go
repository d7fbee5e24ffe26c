package cmd

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"autoflow/internal/bootstrap"
	"autoflow/internal/bootstrap/logging"
	"autoflow/internal/errs"
	"autoflow/internal/usecase/daemon"
)

var historyCmd = &cobra.Command{
	Use:   "history <hostname/owner/repo> <issue>",
	Short: "Show run history for an issue, newest first",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *daemon.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		issueNumber, err := strconv.Atoi(cmd.Flags().Args()[1])
		if err != nil {
			return errs.Wrapf(err, "parse issue number %q", cmd.Flags().Args()[1])
		}
		limit, _ := cmd.Flags().GetInt("limit")

		if err := app.InitSchema(ctx); err != nil {
			return errs.Wrap(err, "init schema")
		}

		records, err := svc.History(ctx, cmd.Flags().Args()[0], issueNumber, limit)
		if err != nil {
			return errs.Wrap(err, "read run history")
		}

		out := cmd.OutOrStdout()
		for _, record := range records {
			outcome := "running"
			completed := "-"
			if record.Outcome != nil {
				outcome = string(*record.Outcome)
			}
			if record.CompletedAt != nil {
				completed = record.CompletedAt.Format(time.RFC3339)
			}
			session := "-"
			if record.SessionID != nil {
				session = *record.SessionID
			}
			if _, err := fmt.Fprintf(out, "%d\t%s\t%s\t%s\t%s\t%s\n",
				record.ID, record.Workflow, record.StartedAt.Format(time.RFC3339), completed, outcome, session); err != nil {
				return errs.Wrap(err, "write history output")
			}
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int("limit", 20, "Maximum number of records")
}
