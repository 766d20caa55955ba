package cmds

import (
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cpaggregator/cpaggregator/internal/logger"
)

var taskInfoCmd = &cobra.Command{
	Use:   "task-info [targets...]",
	Short: "Scrape and upsert task metadata for task targets (judge:task or judge:*)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "taskInfoCmd")
		defer span.End()

		span.SetAttributes(attribute.StringSlice("targets", args))

		app, err := setup(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to set up pipeline")
			return err
		}

		stats, err := app.orchestrator.IngestTaskInfo(ctx, args)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to ingest task info")
			return err
		}

		logger.Logger.InfoContext(ctx, "run finished",
			"created", stats.Created, "updated", stats.Updated, "skipped", stats.Skipped)
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "ingested task info")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(taskInfoCmd)
}
