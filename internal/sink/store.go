// Package sink is the persistence boundary of the pipeline: idempotent
// upserts keyed by natural keys, plus the catalog lookups wildcard
// expansion needs. Re-running a scrape against the same rows converges;
// nothing is ever duplicated and non-null data is never overwritten
// with null.
package sink

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/cpaggregator/cpaggregator/internal/ingest"
	"github.com/cpaggregator/cpaggregator/internal/judge"
	"github.com/cpaggregator/cpaggregator/internal/logger"
	"github.com/cpaggregator/cpaggregator/internal/sink/models"
)

var tracer = otel.Tracer(
	"github.com/cpaggregator/cpaggregator/internal/sink",
)

var (
	_ ingest.Sink    = (*Store)(nil)
	_ ingest.Catalog = (*Store)(nil)
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// SeedJudges inserts the judge reference rows, skipping ones already
// present.
func (s *Store) SeedJudges(ctx context.Context) error {
	judges := []models.Judge{
		{JudgeID: judge.Codeforces, Name: "Codeforces", Homepage: "https://codeforces.com"},
		{JudgeID: judge.Infoarena, Name: "Infoarena", Homepage: "https://www.infoarena.ro"},
		{JudgeID: judge.CSAcademy, Name: "CS Academy", Homepage: "https://csacademy.com"},
		{JudgeID: judge.AtCoder, Name: "AtCoder", Homepage: "https://atcoder.jp"},
		{JudgeID: judge.Ojuz, Name: "oj.uz", Homepage: "https://oj.uz"},
		{JudgeID: judge.Timus, Name: "Timus Online Judge", Homepage: "https://acm.timus.ru"},
	}

	for _, row := range judges {
		err := s.db.WithContext(ctx).
			Where(models.Judge{JudgeID: row.JudgeID}).
			FirstOrCreate(&row).Error
		if err != nil {
			return fmt.Errorf("seed judge %q: %w", row.JudgeID, err)
		}
	}
	return nil
}

func (s *Store) judgeByID(ctx context.Context, judgeID string) (*models.Judge, error) {
	var row models.Judge
	err := s.db.WithContext(ctx).Where("judge_id = ?", judgeID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &judge.UnsupportedJudgeError{JudgeID: judgeID}
		}
		return nil, err
	}
	return &row, nil
}

// ListTaskIDs returns every known task id for a judge, for wildcard
// expansion.
func (s *Store) ListTaskIDs(ctx context.Context, judgeID string) ([]string, error) {
	judgeRow, err := s.judgeByID(ctx, judgeID)
	if err != nil {
		return nil, err
	}

	var taskIDs []string
	err = s.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("judge_id = ?", judgeRow.ID).
		Order("task_id").
		Pluck("task_id", &taskIDs).Error
	return taskIDs, err
}

// ListHandles returns every known handle for a judge.
func (s *Store) ListHandles(ctx context.Context, judgeID string) ([]string, error) {
	judgeRow, err := s.judgeByID(ctx, judgeID)
	if err != nil {
		return nil, err
	}

	var handles []string
	err = s.db.WithContext(ctx).
		Model(&models.UserHandle{}).
		Where("judge_id = ?", judgeRow.ID).
		Order("handle").
		Pluck("handle", &handles).Error
	return handles, err
}

// resolver caches natural-key lookups for the duration of one batch.
type resolver struct {
	store   *Store
	judges  map[string]*models.Judge
	tasks   map[string]*models.Task
	authors map[string]*models.UserHandle
}

func (s *Store) newResolver() *resolver {
	return &resolver{
		store:   s,
		judges:  make(map[string]*models.Judge),
		tasks:   make(map[string]*models.Task),
		authors: make(map[string]*models.UserHandle),
	}
}

func (r *resolver) judge(ctx context.Context, judgeID string) (*models.Judge, error) {
	if row, ok := r.judges[judgeID]; ok {
		return row, nil
	}
	row, err := r.store.judgeByID(ctx, judgeID)
	if err != nil {
		return nil, err
	}
	r.judges[judgeID] = row
	return row, nil
}

// task resolves (judge_id, task_id) to an existing row. A miss returns
// nil without error; late-arriving task creation is expected.
func (r *resolver) task(ctx context.Context, judgeID, taskID string) (*models.Task, error) {
	key := judgeID + ":" + taskID
	if row, ok := r.tasks[key]; ok {
		return row, nil
	}

	judgeRow, err := r.judge(ctx, judgeID)
	if err != nil {
		return nil, err
	}

	var row models.Task
	err = r.store.db.WithContext(ctx).
		Where("judge_id = ? AND task_id = ?", judgeRow.ID, taskID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.tasks[key] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r.tasks[key] = &row
	return &row, nil
}

func (r *resolver) author(ctx context.Context, judgeID, handle string) (*models.UserHandle, error) {
	key := judgeID + ":" + handle
	if row, ok := r.authors[key]; ok {
		return row, nil
	}

	judgeRow, err := r.judge(ctx, judgeID)
	if err != nil {
		return nil, err
	}

	var row models.UserHandle
	err = r.store.db.WithContext(ctx).
		Where("judge_id = ? AND handle = ?", judgeRow.ID, handle).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.authors[key] = nil
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r.authors[key] = &row
	return &row, nil
}

func submissionUpdates(sub judge.Submission) map[string]any {
	updates := map[string]any{
		"verdict":      string(sub.Verdict),
		"submitted_on": sub.SubmittedOn,
	}
	if sub.Language != "" {
		updates["language"] = sub.Language
	}
	if sub.Score != nil {
		updates["score"] = int(math.Round(*sub.Score))
	}
	if sub.SourceSize != nil {
		updates["source_size"] = *sub.SourceSize
	}
	if sub.ExecTime != nil {
		updates["exec_time"] = *sub.ExecTime
	}
	if sub.MemoryUsed != nil {
		updates["memory_used"] = *sub.MemoryUsed
	}
	return updates
}

// UpsertSubmissions writes a batch of normalized submissions. Rows whose
// task or author is not in the store yet are skipped at debug level;
// they are picked up once the catalog learns about them.
func (s *Store) UpsertSubmissions(ctx context.Context, subs []judge.Submission) (ingest.WriteStats, error) {
	ctx, span := tracer.Start(ctx, "Store.UpsertSubmissions", trace.WithAttributes(
		attribute.Int("batch_size", len(subs)),
	))
	defer span.End()

	var stats ingest.WriteStats
	res := s.newResolver()

	for _, sub := range subs {
		taskRow, err := res.task(ctx, sub.JudgeID, sub.TaskID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to resolve task")
			return stats, err
		}
		authorRow, err := res.author(ctx, sub.JudgeID, sub.AuthorID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to resolve author")
			return stats, err
		}
		if taskRow == nil || authorRow == nil {
			logger.Logger.Debug("skipped submission: unresolved reference",
				"judge", sub.JudgeID, "task", sub.TaskID, "author", sub.AuthorID)
			stats.Skipped++
			continue
		}

		var existing models.Submission
		err = s.db.WithContext(ctx).
			Where("submission_id = ? AND author_id = ?", sub.SubmissionID, authorRow.ID).
			First(&existing).Error

		switch {
		case err == nil:
			err = s.db.WithContext(ctx).
				Model(&existing).
				Updates(submissionUpdates(sub)).Error
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to update submission")
				return stats, err
			}
			stats.Updated++

		case errors.Is(err, gorm.ErrRecordNotFound):
			row := models.Submission{
				SubmissionID: sub.SubmissionID,
				AuthorID:     authorRow.ID,
				TaskID:       taskRow.ID,
				SubmittedOn:  sub.SubmittedOn,
				Verdict:      string(sub.Verdict),
				SourceSize:   sub.SourceSize,
				ExecTime:     sub.ExecTime,
				MemoryUsed:   sub.MemoryUsed,
			}
			if sub.Language != "" {
				language := sub.Language
				row.Language = &language
			}
			if sub.Score != nil {
				score := int(math.Round(*sub.Score))
				row.Score = &score
			}
			if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to create submission")
				return stats, err
			}
			stats.Created++

		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to look up submission")
			return stats, err
		}
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "upserted submissions")
	return stats, nil
}

func (s *Store) taskSource(ctx context.Context, judgeRow *models.Judge, name string) (*models.TaskSource, error) {
	row := models.TaskSource{
		JudgeID:  judgeRow.ID,
		SourceID: slug.Make(name),
		Name:     name,
	}
	err := s.db.WithContext(ctx).
		Where(models.TaskSource{JudgeID: judgeRow.ID, SourceID: row.SourceID}).
		FirstOrCreate(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// UpsertTasks creates or enriches task rows and their statements.
func (s *Store) UpsertTasks(ctx context.Context, tasks []judge.TaskInfo) (ingest.WriteStats, error) {
	ctx, span := tracer.Start(ctx, "Store.UpsertTasks", trace.WithAttributes(
		attribute.Int("batch_size", len(tasks)),
	))
	defer span.End()

	var stats ingest.WriteStats
	res := s.newResolver()

	for _, info := range tasks {
		judgeRow, err := res.judge(ctx, info.JudgeID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to resolve judge")
			return stats, err
		}

		updates := map[string]any{"name": info.Title}
		if info.TimeLimit != nil {
			updates["time_limit_ms"] = *info.TimeLimit
		}
		if info.MemoryLimit != nil {
			updates["memory_limit_kb"] = *info.MemoryLimit
		}
		if len(info.Tags) > 0 {
			updates["tags"] = datatypes.NewJSONSlice(info.Tags)
		}
		if info.Source != "" {
			sourceRow, err := s.taskSource(ctx, judgeRow, info.Source)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to upsert task source")
				return stats, err
			}
			updates["source_id"] = sourceRow.ID
		}

		var existing models.Task
		err = s.db.WithContext(ctx).
			Where("judge_id = ? AND task_id = ?", judgeRow.ID, info.TaskID).
			First(&existing).Error

		switch {
		case err == nil:
			err = s.db.WithContext(ctx).Model(&existing).Updates(updates).Error
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to update task")
				return stats, err
			}
			stats.Updated++

		case errors.Is(err, gorm.ErrRecordNotFound):
			existing = models.Task{JudgeID: judgeRow.ID, TaskID: info.TaskID}
			if err := s.db.WithContext(ctx).Create(&existing).Error; err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to create task")
				return stats, err
			}
			err = s.db.WithContext(ctx).Model(&existing).Updates(updates).Error
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to update task")
				return stats, err
			}
			stats.Created++

		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to look up task")
			return stats, err
		}

		if info.Statement != nil {
			if err := s.upsertStatement(ctx, existing.ID, info.Statement); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to upsert statement")
				return stats, err
			}
		}
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "upserted tasks")
	return stats, nil
}

func (s *Store) upsertStatement(ctx context.Context, taskID uint, statement *judge.Statement) error {
	updates := map[string]any{
		"text":        statement.Text,
		"input_file":  statement.InputFile,
		"output_file": statement.OutputFile,
	}
	if len(statement.Examples) > 0 {
		updates["examples"] = datatypes.NewJSONSlice(statement.Examples)
	}

	var existing models.TaskStatement
	err := s.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		existing = models.TaskStatement{TaskID: taskID}
		if err := s.db.WithContext(ctx).Create(&existing).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Model(&existing).Updates(updates).Error
}

// UpsertHandles creates or enriches user handle rows.
func (s *Store) UpsertHandles(ctx context.Context, users []judge.UserInfo) (ingest.WriteStats, error) {
	ctx, span := tracer.Start(ctx, "Store.UpsertHandles", trace.WithAttributes(
		attribute.Int("batch_size", len(users)),
	))
	defer span.End()

	var stats ingest.WriteStats
	res := s.newResolver()

	for _, info := range users {
		judgeRow, err := res.judge(ctx, info.JudgeID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to resolve judge")
			return stats, err
		}

		updates := map[string]any{}
		if info.FirstName != "" {
			updates["first_name"] = info.FirstName
		}
		if info.LastName != "" {
			updates["last_name"] = info.LastName
		}
		if info.PhotoURL != nil {
			updates["photo_url"] = *info.PhotoURL
		}
		if info.Rating != nil {
			updates["rating"] = *info.Rating
		}

		var existing models.UserHandle
		err = s.db.WithContext(ctx).
			Where("judge_id = ? AND handle = ?", judgeRow.ID, info.Handle).
			First(&existing).Error

		switch {
		case err == nil:
			if len(updates) > 0 {
				err = s.db.WithContext(ctx).Model(&existing).Updates(updates).Error
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, "failed to update handle")
					return stats, err
				}
			}
			stats.Updated++

		case errors.Is(err, gorm.ErrRecordNotFound):
			existing = models.UserHandle{JudgeID: judgeRow.ID, Handle: info.Handle}
			if err := s.db.WithContext(ctx).Create(&existing).Error; err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "failed to create handle")
				return stats, err
			}
			if len(updates) > 0 {
				err = s.db.WithContext(ctx).Model(&existing).Updates(updates).Error
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, "failed to update handle")
					return stats, err
				}
			}
			stats.Created++

		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to look up handle")
			return stats, err
		}
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "upserted handles")
	return stats, nil
}

// CreateTasks registers bare task rows by natural key, used by catalog
// discovery before any task info has been scraped.
func (s *Store) CreateTasks(ctx context.Context, judgeID string, taskIDs []string) (ingest.WriteStats, error) {
	ctx, span := tracer.Start(ctx, "Store.CreateTasks", trace.WithAttributes(
		attribute.String("judge", judgeID),
		attribute.Int("count", len(taskIDs)),
	))
	defer span.End()

	var stats ingest.WriteStats

	judgeRow, err := s.judgeByID(ctx, judgeID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve judge")
		return stats, err
	}

	for _, taskID := range taskIDs {
		row := models.Task{JudgeID: judgeRow.ID, TaskID: taskID}
		result := s.db.WithContext(ctx).
			Where(models.Task{JudgeID: judgeRow.ID, TaskID: taskID}).
			FirstOrCreate(&row)
		if result.Error != nil {
			span.RecordError(result.Error)
			span.SetStatus(codes.Error, "failed to create task")
			return stats, result.Error
		}
		if result.RowsAffected > 0 {
			stats.Created++
		} else {
			stats.Skipped++
		}
	}

	span.RecordError(nil)
	span.SetStatus(codes.Ok, "created tasks")
	return stats, nil
}
