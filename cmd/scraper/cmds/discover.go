package cmds

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/cpaggregator/cpaggregator/internal/judge/infoarena"
	"github.com/cpaggregator/cpaggregator/internal/logger"
)

// Infoarena archive listings with task tables.
var infoarenaArchives = []string{"arhiva", "arhiva-educationala", "arhiva-monthly", "arhiva-acm"}

var discoverCmd = &cobra.Command{
	Use:   "discover [judge-id]",
	Short: "Discover task ids from a judge's archive and register them in the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, span := tracer.Start(cmd.Context(), "discoverCmd")
		defer span.End()

		judgeID := args[0]
		span.SetAttributes(attribute.String("judge", judgeID))

		app, err := setup(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to set up pipeline")
			return err
		}

		scraper, err := app.scrapers.Get(judgeID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to build scraper")
			return err
		}

		var taskIDs []string
		switch adapter := scraper.(type) {
		case *infoarena.Scraper:
			taskIDs, err = discoverInfoarena(ctx, adapter)
		default:
			err = fmt.Errorf("judge %q has no archive listing to discover from", judgeID)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to discover tasks")
			return err
		}

		stats, err := app.store.CreateTasks(ctx, judgeID, taskIDs)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to register tasks")
			return err
		}

		logger.Logger.InfoContext(ctx, "run finished",
			"discovered", len(taskIDs), "created", stats.Created, "existing", stats.Skipped)
		span.RecordError(nil)
		span.SetStatus(codes.Ok, "discovered tasks")
		return nil
	},
}

// discoverInfoarena walks the archive listings concurrently and merges
// the task ids they contain.
func discoverInfoarena(ctx context.Context, adapter *infoarena.Scraper) ([]string, error) {
	var mu sync.Mutex
	seen := make(map[string]bool)

	group, ctx := errgroup.WithContext(ctx)
	for _, archive := range infoarenaArchives {
		group.Go(func() error {
			taskIDs, err := adapter.ScrapeArchiveTaskIDs(ctx, archive)
			if err != nil {
				return fmt.Errorf("archive %q: %w", archive, err)
			}

			mu.Lock()
			defer mu.Unlock()
			for _, taskID := range taskIDs {
				seen[taskID] = true
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	taskIDs := make([]string, 0, len(seen))
	for taskID := range seen {
		taskIDs = append(taskIDs, taskID)
	}
	sort.Strings(taskIDs)
	return taskIDs, nil
}

func init() {
	rootCmd.AddCommand(discoverCmd)
}
