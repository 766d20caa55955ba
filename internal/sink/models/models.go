// Package models defines the canonical store's schema: judges, tasks,
// user handles and submissions keyed by their judge-native natural keys.
package models

import (
	"time"

	"gorm.io/datatypes"

	"github.com/cpaggregator/cpaggregator/internal/judge"
)

type Model struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Judge is immutable reference data, created once at setup.
type Judge struct {
	Model
	JudgeID  string `gorm:"uniqueIndex"`
	Name     string
	Homepage string
}

func (Judge) TableName() string {
	return "judge"
}

// TaskSource groups tasks by contest or archive, keyed by a slug.
type TaskSource struct {
	Model
	JudgeID  uint   `gorm:"uniqueIndex:task_source_natural_key"`
	SourceID string `gorm:"uniqueIndex:task_source_natural_key"`
	Name     string
}

func (TaskSource) TableName() string {
	return "task_source"
}

// Task rows are created on first reference and enriched by scraped task
// info; the pipeline never deletes them. Nullable columns stay pointers
// so enrichment never overwrites known values with defaults.
type Task struct {
	Model
	JudgeID       uint   `gorm:"uniqueIndex:task_natural_key"`
	TaskID        string `gorm:"uniqueIndex:task_natural_key"`
	Name          *string
	TimeLimitMS   *int `gorm:"column:time_limit_ms"`
	MemoryLimitKB *int `gorm:"column:memory_limit_kb"`
	Tags          datatypes.JSONSlice[string]
	SourceID      *uint
	Source        *TaskSource
}

func (Task) TableName() string {
	return "task"
}

type TaskStatement struct {
	Model
	TaskID     uint `gorm:"uniqueIndex"`
	Text       string
	Examples   datatypes.JSONSlice[judge.Example]
	InputFile  string
	OutputFile string
}

func (TaskStatement) TableName() string {
	return "task_statement"
}

// UserHandle is created by an explicit user action and enriched by
// scraped profile info.
type UserHandle struct {
	Model
	JudgeID   uint   `gorm:"uniqueIndex:user_handle_natural_key"`
	Handle    string `gorm:"uniqueIndex:user_handle_natural_key"`
	FirstName *string
	LastName  *string
	PhotoURL  *string `gorm:"column:photo_url"`
	Rating    *int
}

func (UserHandle) TableName() string {
	return "user_handle"
}

// Submission's (submission_id, author_id) pair is the idempotency key:
// re-scraping updates in place, never duplicates.
type Submission struct {
	Model
	SubmissionID string `gorm:"uniqueIndex:submission_natural_key"`
	AuthorID     uint   `gorm:"uniqueIndex:submission_natural_key"`
	Author       *UserHandle
	TaskID       uint
	Task         *Task
	SubmittedOn  time.Time
	Language     *string
	Verdict      string
	Score        *int
	SourceSize   *int
	ExecTime     *int `gorm:"column:exec_time"`
	MemoryUsed   *int
}

func (Submission) TableName() string {
	return "submission"
}
