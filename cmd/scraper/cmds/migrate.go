package cmds

import (
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"

	"github.com/cpaggregator/cpaggregator/internal/logger"
	"github.com/cpaggregator/cpaggregator/internal/sink/migrations"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the canonical store schema up to date",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, span := tracer.Start(cmd.Context(), "migrateCmd")
		defer span.End()

		app, err := setup(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to set up pipeline")
			return err
		}

		if migrateDown {
			err = migrations.Down(ctx, app.db)
		} else {
			err = migrations.Up(ctx, app.db)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to migrate")
			return err
		}

		logger.Logger.InfoContext(ctx, "migrations applied", "down", migrateDown)
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "migrated")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "Tear the schema down instead")
}
