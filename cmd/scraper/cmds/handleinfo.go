package cmds

import (
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cpaggregator/cpaggregator/internal/logger"
)

var handleInfoCmd = &cobra.Command{
	Use:   "handle-info [targets...]",
	Short: "Scrape and upsert profile data for handle targets (judge:handle or judge:*)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "handleInfoCmd")
		defer span.End()

		span.SetAttributes(attribute.StringSlice("targets", args))

		app, err := setup(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to set up pipeline")
			return err
		}

		stats, err := app.orchestrator.IngestHandleInfo(ctx, args)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to ingest handle info")
			return err
		}

		logger.Logger.InfoContext(ctx, "run finished",
			"created", stats.Created, "updated", stats.Updated, "skipped", stats.Skipped)
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "ingested handle info")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(handleInfoCmd)
}
