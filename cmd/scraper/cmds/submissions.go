package cmds

import (
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cpaggregator/cpaggregator/internal/logger"
)

var (
	submissionsFromDays int
	submissionsToDays   int
)

var submissionsCmd = &cobra.Command{
	Use:   "submissions [targets...]",
	Short: "Scrape and upsert submissions for task targets (judge:task or judge:*)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "submissionsCmd")
		defer span.End()

		span.SetAttributes(
			attribute.StringSlice("targets", args),
			attribute.Int("from_days", submissionsFromDays),
			attribute.Int("to_days", submissionsToDays),
		)

		app, err := setup(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to set up pipeline")
			return err
		}

		stats, err := app.orchestrator.IngestSubmissions(
			ctx, args, submissionsFromDays, submissionsToDays)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to ingest submissions")
			return err
		}

		logger.Logger.InfoContext(ctx, "run finished",
			"created", stats.Created, "updated", stats.Updated, "skipped", stats.Skipped)
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "ingested submissions")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(submissionsCmd)

	submissionsCmd.Flags().
		IntVar(&submissionsFromDays, "from-days", 0, "Skip submissions newer than now minus this many days")
	submissionsCmd.Flags().
		IntVar(&submissionsToDays, "to-days", 0, "Stop at submissions older than now minus this many days")
}
