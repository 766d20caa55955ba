package judge

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// ErrNotSupported signals that a judge's public surface does not expose
// an operation. Callers log a warning and move on; it never crashes a
// batch run.
var ErrNotSupported = errors.New("operation not supported by judge")

// UnsupportedJudgeError is a configuration error: nothing is registered
// for the requested judge id. Unlike every other failure in the
// pipeline it aborts the run.
type UnsupportedJudgeError struct {
	JudgeID string
}

func (e *UnsupportedJudgeError) Error() string {
	return fmt.Sprintf("no scraper configured for judge %q", e.JudgeID)
}

// SubmissionSeq is a lazy, restartable stream of raw submissions. A
// non-nil error element reports a fatal per-target failure and
// terminates the sequence; row-level parse failures are logged and
// skipped inside the adapter instead.
type SubmissionSeq = iter.Seq2[Submission, error]

// Scraper is the capability interface every judge adapter implements.
// Operations a judge cannot serve return ErrNotSupported explicitly.
type Scraper interface {
	JudgeID() string

	ScrapeSubmissionsForTask(ctx context.Context, taskID string) SubmissionSeq
	ScrapeSubmissionsForUser(ctx context.Context, handle string) SubmissionSeq
	ScrapeRecentSubmissions(ctx context.Context) SubmissionSeq

	ScrapeTaskInfo(ctx context.Context, taskID string) (*TaskInfo, error)
	ScrapeUserInfo(ctx context.Context, handle string) (*UserInfo, error)
	ScrapeTaskStatement(ctx context.Context, taskID string) (*Statement, error)
}

// ErrSeq yields a single error and stops. Adapters use it to surface
// fatal failures through the lazy sequence contract.
func ErrSeq(err error) SubmissionSeq {
	return func(yield func(Submission, error) bool) {
		yield(Submission{}, err)
	}
}

// NotSupported provides ErrNotSupported defaults for the full operation
// set. Adapters embed it and override what their judge can serve, so
// callers always get a typed outcome instead of a missing method.
type NotSupported struct{}

func (NotSupported) ScrapeSubmissionsForTask(context.Context, string) SubmissionSeq {
	return ErrSeq(ErrNotSupported)
}

func (NotSupported) ScrapeSubmissionsForUser(context.Context, string) SubmissionSeq {
	return ErrSeq(ErrNotSupported)
}

func (NotSupported) ScrapeRecentSubmissions(context.Context) SubmissionSeq {
	return ErrSeq(ErrNotSupported)
}

func (NotSupported) ScrapeTaskInfo(context.Context, string) (*TaskInfo, error) {
	return nil, ErrNotSupported
}

func (NotSupported) ScrapeUserInfo(context.Context, string) (*UserInfo, error) {
	return nil, ErrNotSupported
}

func (NotSupported) ScrapeTaskStatement(context.Context, string) (*Statement, error) {
	return nil, ErrNotSupported
}
