package cmds

import (
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"

	"github.com/cpaggregator/cpaggregator/internal/logger"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the judge reference rows",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, span := tracer.Start(cmd.Context(), "seedCmd")
		defer span.End()

		app, err := setup(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to set up pipeline")
			return err
		}

		if err := app.store.SeedJudges(ctx); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to seed judges")
			return err
		}

		logger.Logger.InfoContext(ctx, "judges seeded")
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "seeded")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
