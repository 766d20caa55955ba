// Package ingest orchestrates scrape runs: it expands wildcard targets
// through the catalog, fans out to judge adapters, merges the per-target
// streams in submission-time order, applies the requested time window
// and hands normalized records to the sink in batches.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/cpaggregator/cpaggregator/internal/judge"
	"github.com/cpaggregator/cpaggregator/internal/logger"
	"github.com/cpaggregator/cpaggregator/internal/normalize"
	"github.com/cpaggregator/cpaggregator/internal/stream"
)

var tracer = otel.Tracer(
	"github.com/cpaggregator/cpaggregator/internal/ingest",
)

// Target is one scrape request, parsed from "judge_id:id". The id "*"
// means every known task (or handle) of that judge.
type Target struct {
	JudgeID string
	ID      string
}

func ParseTarget(raw string) (Target, error) {
	judgeID, id, found := strings.Cut(raw, ":")
	if !found || judgeID == "" || id == "" {
		return Target{}, fmt.Errorf("malformed target %q, want \"judge_id:id\"", raw)
	}
	return Target{JudgeID: judgeID, ID: id}, nil
}

func (t Target) IsWildcard() bool { return t.ID == "*" }

func (t Target) String() string { return t.JudgeID + ":" + t.ID }

// ScraperFactory hands out the adapter for a judge id.
type ScraperFactory interface {
	Get(judgeID string) (judge.Scraper, error)
}

// Catalog is the read side of the store used for wildcard expansion.
type Catalog interface {
	ListTaskIDs(ctx context.Context, judgeID string) ([]string, error)
	ListHandles(ctx context.Context, judgeID string) ([]string, error)
}

// WriteStats counts sink outcomes for one run.
type WriteStats struct {
	Created int
	Updated int
	Skipped int
}

func (s *WriteStats) add(other WriteStats) {
	s.Created += other.Created
	s.Updated += other.Updated
	s.Skipped += other.Skipped
}

// Sink is the persistence boundary. Every operation is an idempotent
// upsert keyed by the entity's natural key.
type Sink interface {
	UpsertSubmissions(ctx context.Context, subs []judge.Submission) (WriteStats, error)
	UpsertTasks(ctx context.Context, tasks []judge.TaskInfo) (WriteStats, error)
	UpsertHandles(ctx context.Context, users []judge.UserInfo) (WriteStats, error)
}

type Orchestrator struct {
	scrapers  ScraperFactory
	catalog   Catalog
	sink      Sink
	batchSize int

	// Injected clock for window tests.
	now func() time.Time
}

func New(scrapers ScraperFactory, catalog Catalog, sink Sink, batchSize int) *Orchestrator {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Orchestrator{
		scrapers:  scrapers,
		catalog:   catalog,
		sink:      sink,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// expand resolves wildcard targets through the catalog. An unknown
// judge id inside a target is fatal; it is a misconfiguration, not a
// transient condition.
func (o *Orchestrator) expand(
	ctx context.Context,
	rawTargets []string,
	list func(ctx context.Context, judgeID string) ([]string, error),
) ([]Target, error) {
	var targets []Target
	for _, raw := range rawTargets {
		target, err := ParseTarget(raw)
		if err != nil {
			return nil, err
		}
		if !judge.Known(target.JudgeID) {
			return nil, &judge.UnsupportedJudgeError{JudgeID: target.JudgeID}
		}

		if !target.IsWildcard() {
			targets = append(targets, target)
			continue
		}

		ids, err := list(ctx, target.JudgeID)
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", target, err)
		}
		for _, id := range ids {
			targets = append(targets, Target{JudgeID: target.JudgeID, ID: id})
		}
	}
	return targets, nil
}

// guarded wraps a per-target sequence so a target failure is logged and
// ends that sequence instead of aborting the whole merged run.
func guarded(target Target, seq judge.SubmissionSeq) judge.SubmissionSeq {
	return func(yield func(judge.Submission, error) bool) {
		seq(func(sub judge.Submission, err error) bool {
			if err != nil {
				if errors.Is(err, judge.ErrNotSupported) {
					logger.Logger.Warn("target not supported by judge", "target", target.String())
				} else {
					logger.Logger.Error("target failed, continuing run",
						"target", target.String(), "error", err)
				}
				return false
			}
			return yield(sub, nil)
		})
	}
}

func bySubmittedOnDesc(a, b judge.Submission) bool {
	return a.SubmittedOn.After(b.SubmittedOn)
}

// window truncates a time-descending stream to [now-toDays, now-fromDays].
// The lower bound is inclusive and implemented as a take-while, which
// relies on every input stream being non-increasing in time.
func (o *Orchestrator) window(seq judge.SubmissionSeq, fromDays, toDays int) judge.SubmissionSeq {
	now := o.now()
	if fromDays > 0 {
		upper := now.AddDate(0, 0, -fromDays)
		seq = stream.Filter(seq, func(sub judge.Submission) bool {
			return !sub.SubmittedOn.After(upper)
		})
	}
	if toDays > 0 {
		lower := now.AddDate(0, 0, -toDays)
		seq = stream.TakeWhile(seq, func(sub judge.Submission) bool {
			return !sub.SubmittedOn.Before(lower)
		})
	}
	return seq
}

// flushSubmissions drains a normalized stream into the sink in batches.
func (o *Orchestrator) flushSubmissions(ctx context.Context, seq judge.SubmissionSeq) (WriteStats, error) {
	var stats WriteStats
	batch := make([]judge.Submission, 0, o.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		batchStats, err := o.sink.UpsertSubmissions(ctx, batch)
		if err != nil {
			return err
		}
		stats.add(batchStats)
		batch = batch[:0]
		return nil
	}

	var seqErr error
	seq(func(sub judge.Submission, err error) bool {
		if err != nil {
			seqErr = err
			return false
		}

		normalized, err := normalize.Submission(sub)
		if err != nil {
			logger.Logger.Warn("skipped submission", "error", err)
			return true
		}

		batch = append(batch, normalized)
		if len(batch) == o.batchSize {
			if err := flush(); err != nil {
				seqErr = err
				return false
			}
		}
		return true
	})
	if seqErr != nil {
		return stats, seqErr
	}

	return stats, flush()
}

// IngestSubmissions scrapes submissions for a list of task targets and
// upserts everything inside the window. A failing target degrades
// coverage but never aborts the run.
func (o *Orchestrator) IngestSubmissions(
	ctx context.Context,
	rawTargets []string,
	fromDays, toDays int,
) (WriteStats, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.IngestSubmissions", trace.WithAttributes(
		attribute.StringSlice("targets", rawTargets),
		attribute.Int("from_days", fromDays),
		attribute.Int("to_days", toDays),
	))
	defer span.End()

	targets, err := o.expand(ctx, rawTargets, o.catalog.ListTaskIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to expand targets")
		return WriteStats{}, err
	}
	if len(targets) == 0 {
		logger.Logger.Info("no targets to ingest")
		span.SetStatus(codes.Ok, "nothing to do")
		return WriteStats{}, nil
	}

	seqs := make([]judge.SubmissionSeq, 0, len(targets))
	for _, target := range targets {
		scraper, err := o.scrapers.Get(target.JudgeID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to build scraper")
			return WriteStats{}, err
		}
		seqs = append(seqs, guarded(target, scraper.ScrapeSubmissionsForTask(ctx, target.ID)))
	}

	merged := stream.Merge(bySubmittedOnDesc, seqs...)
	stats, err := o.flushSubmissions(ctx, o.window(merged, fromDays, toDays))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to flush submissions")
		return stats, err
	}

	logger.Logger.Info("ingested submissions",
		"targets", len(targets),
		"created", stats.Created, "updated", stats.Updated, "skipped", stats.Skipped)
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "ingested submissions")
	return stats, nil
}

// IngestRecentSubmissions polls each judge's recent feed, for judges
// that have one.
func (o *Orchestrator) IngestRecentSubmissions(
	ctx context.Context,
	judgeIDs []string,
	fromDays, toDays int,
) (WriteStats, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.IngestRecentSubmissions", trace.WithAttributes(
		attribute.StringSlice("judges", judgeIDs),
	))
	defer span.End()

	seqs := make([]judge.SubmissionSeq, 0, len(judgeIDs))
	for _, judgeID := range judgeIDs {
		scraper, err := o.scrapers.Get(judgeID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to build scraper")
			return WriteStats{}, err
		}
		target := Target{JudgeID: judgeID, ID: "recent"}
		seqs = append(seqs, guarded(target, scraper.ScrapeRecentSubmissions(ctx)))
	}

	merged := stream.Merge(bySubmittedOnDesc, seqs...)
	stats, err := o.flushSubmissions(ctx, o.window(merged, fromDays, toDays))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to flush submissions")
		return stats, err
	}

	logger.Logger.Info("ingested recent submissions",
		"judges", len(judgeIDs),
		"created", stats.Created, "updated", stats.Updated, "skipped", stats.Skipped)
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "ingested recent submissions")
	return stats, nil
}

// pollRecentOnce runs one polling round, one goroutine per judge. A
// judge whose round fails is logged and never takes its peers down.
func (o *Orchestrator) pollRecentOnce(ctx context.Context, judgeIDs []string, toDays int) WriteStats {
	var mu sync.Mutex
	var stats WriteStats

	group, ctx := errgroup.WithContext(ctx)
	for _, judgeID := range judgeIDs {
		group.Go(func() error {
			roundStats, err := o.IngestRecentSubmissions(ctx, []string{judgeID}, 0, toDays)
			if err != nil {
				logger.Logger.Error("recent poll failed, continuing",
					"judge", judgeID, "error", err)
			}

			mu.Lock()
			defer mu.Unlock()
			stats.add(roundStats)
			return nil
		})
	}
	// Round errors are handled per judge above.
	_ = group.Wait()

	return stats
}

// PollRecentSubmissions polls the recent feeds of the given judges
// every interval until the context is cancelled. An interval of zero
// means a single round. Returns the stats accumulated over all rounds.
func (o *Orchestrator) PollRecentSubmissions(
	ctx context.Context,
	judgeIDs []string,
	toDays int,
	interval time.Duration,
) (WriteStats, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.PollRecentSubmissions", trace.WithAttributes(
		attribute.StringSlice("judges", judgeIDs),
		attribute.String("interval", interval.String()),
	))
	defer span.End()

	stats := o.pollRecentOnce(ctx, judgeIDs, toDays)
	if interval <= 0 {
		span.SetStatus(codes.Ok, "polled recent submissions")
		return stats, nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Logger.Info("recent poll loop stopped",
				"created", stats.Created, "updated", stats.Updated, "skipped", stats.Skipped)
			span.SetStatus(codes.Ok, "polled recent submissions")
			return stats, nil
		case <-ticker.C:
			stats.add(o.pollRecentOnce(ctx, judgeIDs, toDays))
		}
	}
}

// IngestTaskInfo scrapes and upserts task metadata for task targets.
func (o *Orchestrator) IngestTaskInfo(ctx context.Context, rawTargets []string) (WriteStats, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.IngestTaskInfo", trace.WithAttributes(
		attribute.StringSlice("targets", rawTargets),
	))
	defer span.End()

	targets, err := o.expand(ctx, rawTargets, o.catalog.ListTaskIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to expand targets")
		return WriteStats{}, err
	}

	var stats WriteStats
	batch := make([]judge.TaskInfo, 0, o.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		batchStats, err := o.sink.UpsertTasks(ctx, batch)
		if err != nil {
			return err
		}
		stats.add(batchStats)
		batch = batch[:0]
		return nil
	}

	for _, target := range targets {
		scraper, err := o.scrapers.Get(target.JudgeID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to build scraper")
			return stats, err
		}

		info, err := scraper.ScrapeTaskInfo(ctx, target.ID)
		if err != nil {
			if errors.Is(err, judge.ErrNotSupported) {
				logger.Logger.Warn("task info not supported by judge", "target", target.String())
			} else {
				logger.Logger.Error("target failed, continuing run",
					"target", target.String(), "error", err)
			}
			continue
		}

		normalized, err := normalize.TaskInfo(*info)
		if err != nil {
			logger.Logger.Warn("skipped task info", "target", target.String(), "error", err)
			continue
		}

		batch = append(batch, normalized)
		if len(batch) == o.batchSize {
			if err := flush(); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to flush tasks")
				return stats, err
			}
		}
	}

	if err := flush(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to flush tasks")
		return stats, err
	}

	logger.Logger.Info("ingested task info",
		"targets", len(targets),
		"created", stats.Created, "updated", stats.Updated, "skipped", stats.Skipped)
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "ingested task info")
	return stats, nil
}

// IngestHandleInfo scrapes and upserts profile data for handle targets.
func (o *Orchestrator) IngestHandleInfo(ctx context.Context, rawTargets []string) (WriteStats, error) {
	ctx, span := tracer.Start(ctx, "Orchestrator.IngestHandleInfo", trace.WithAttributes(
		attribute.StringSlice("targets", rawTargets),
	))
	defer span.End()

	targets, err := o.expand(ctx, rawTargets, o.catalog.ListHandles)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to expand targets")
		return WriteStats{}, err
	}

	var stats WriteStats
	batch := make([]judge.UserInfo, 0, o.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		batchStats, err := o.sink.UpsertHandles(ctx, batch)
		if err != nil {
			return err
		}
		stats.add(batchStats)
		batch = batch[:0]
		return nil
	}

	for _, target := range targets {
		scraper, err := o.scrapers.Get(target.JudgeID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to build scraper")
			return stats, err
		}

		info, err := scraper.ScrapeUserInfo(ctx, target.ID)
		if err != nil {
			if errors.Is(err, judge.ErrNotSupported) {
				logger.Logger.Warn("user info not supported by judge", "target", target.String())
			} else {
				logger.Logger.Error("target failed, continuing run",
					"target", target.String(), "error", err)
			}
			continue
		}

		normalized, err := normalize.UserInfo(*info)
		if err != nil {
			logger.Logger.Warn("skipped user info", "target", target.String(), "error", err)
			continue
		}

		batch = append(batch, normalized)
		if len(batch) == o.batchSize {
			if err := flush(); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to flush handles")
				return stats, err
			}
		}
	}

	if err := flush(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to flush handles")
		return stats, err
	}

	logger.Logger.Info("ingested handle info",
		"targets", len(targets),
		"created", stats.Created, "updated", stats.Updated, "skipped", stats.Skipped)
	span.RecordError(nil)
	span.SetStatus(codes.Ok, "ingested handle info")
	return stats, nil
}
