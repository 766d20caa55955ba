// Package normalize converts raw per-judge records into their canonical
// form: natural keys lowercased, timestamps in UTC, NaN scores coerced
// to absent, tags restricted to the canonical vocabulary. A missing
// required field yields an *Error; callers log it and skip the record.
package normalize

import (
	"fmt"
	"math"
	"strings"

	"github.com/cpaggregator/cpaggregator/internal/judge"
	"github.com/cpaggregator/cpaggregator/internal/logger"
)

// Error reports a raw record that cannot be canonicalized. It is
// per-record and non-fatal.
type Error struct {
	Kind  string
	Field string
}

func (e *Error) Error() string {
	return fmt.Sprintf("normalize %s record: missing required field %q", e.Kind, e.Field)
}

// Submission canonicalizes a raw submission record.
func Submission(raw judge.Submission) (judge.Submission, error) {
	for field, value := range map[string]string{
		"judge_id":      raw.JudgeID,
		"submission_id": raw.SubmissionID,
		"task_id":       raw.TaskID,
		"author_id":     raw.AuthorID,
		"verdict":       string(raw.Verdict),
	} {
		if value == "" {
			return judge.Submission{}, &Error{Kind: "submission", Field: field}
		}
	}
	if raw.SubmittedOn.IsZero() {
		return judge.Submission{}, &Error{Kind: "submission", Field: "submitted_on"}
	}

	sub := raw
	sub.TaskID = strings.ToLower(raw.TaskID)
	sub.AuthorID = strings.ToLower(raw.AuthorID)
	sub.SubmittedOn = raw.SubmittedOn.UTC()

	if sub.Score != nil && math.IsNaN(*sub.Score) {
		sub.Score = nil
	}

	return sub, nil
}

// TaskInfo canonicalizes a raw task-info record. Tags outside the
// canonical vocabulary are logged and dropped.
func TaskInfo(raw judge.TaskInfo) (judge.TaskInfo, error) {
	if raw.JudgeID == "" {
		return judge.TaskInfo{}, &Error{Kind: "task-info", Field: "judge_id"}
	}
	if raw.TaskID == "" {
		return judge.TaskInfo{}, &Error{Kind: "task-info", Field: "task_id"}
	}
	if raw.Title == "" {
		return judge.TaskInfo{}, &Error{Kind: "task-info", Field: "title"}
	}

	info := raw
	info.TaskID = strings.ToLower(raw.TaskID)

	info.Tags = nil
	for _, tag := range raw.Tags {
		if !judge.MethodTags[tag] {
			logger.Logger.Warn("skipped unknown tag", "tag", tag, "task", info.TaskID)
			continue
		}
		info.Tags = append(info.Tags, tag)
	}

	return info, nil
}

// UserInfo canonicalizes a raw handle-info record.
func UserInfo(raw judge.UserInfo) (judge.UserInfo, error) {
	if raw.JudgeID == "" {
		return judge.UserInfo{}, &Error{Kind: "user-info", Field: "judge_id"}
	}
	if raw.Handle == "" {
		return judge.UserInfo{}, &Error{Kind: "user-info", Field: "handle"}
	}

	info := raw
	info.Handle = strings.ToLower(raw.Handle)

	return info, nil
}
