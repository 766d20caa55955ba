package cmds

import (
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/cpaggregator/cpaggregator/internal/judge"
	"github.com/cpaggregator/cpaggregator/internal/logger"
)

var (
	recentToDays   int
	recentInterval time.Duration
)

var recentCmd = &cobra.Command{
	Use:   "recent [judge-ids...]",
	Short: "Poll the recent-submissions feed of the given judges (default: all)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "recentCmd")
		defer span.End()

		judgeIDs := args
		if len(judgeIDs) == 0 {
			judgeIDs = judge.KnownJudges()
		}
		span.SetAttributes(
			attribute.StringSlice("judges", judgeIDs),
			attribute.String("interval", recentInterval.String()),
		)

		app, err := setup(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to set up pipeline")
			return err
		}

		stats, err := app.orchestrator.PollRecentSubmissions(
			ctx, judgeIDs, recentToDays, recentInterval)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to poll recent submissions")
			return err
		}

		logger.Logger.InfoContext(ctx, "run finished",
			"created", stats.Created, "updated", stats.Updated, "skipped", stats.Skipped)
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "polled recent submissions")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recentCmd)

	recentCmd.Flags().
		IntVar(&recentToDays, "to-days", 1, "Stop at submissions older than now minus this many days")
	recentCmd.Flags().
		DurationVar(&recentInterval, "interval", 0, "Poll every interval until interrupted (0 runs once)")
}
