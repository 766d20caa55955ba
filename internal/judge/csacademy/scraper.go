// Package csacademy talks to the CS Academy JSON API. Tasks are keyed
// by name site-wide but the API wants numeric ids, so the adapter keeps
// a lazily fetched name-to-id map alongside the CSRF token the API
// requires on every call.
package csacademy

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cpaggregator/cpaggregator/internal/fetch"
	"github.com/cpaggregator/cpaggregator/internal/judge"
	"github.com/cpaggregator/cpaggregator/internal/logger"
)

const (
	baseURL = "https://csacademy.com"
	// Any archive task page works for warming up the task map; this
	// one is the oldest and is not going anywhere.
	warmupTaskName = "addition"
	jobsPerPage    = 1000
	// The global archive virtual contest.
	archiveContestID = "1"
)

var _ judge.Scraper = (*Scraper)(nil)

type Scraper struct {
	judge.NotSupported
	fetcher   fetch.Fetcher
	csrfToken string
	taskIDs   map[string]int64
	taskInfo  []taskEntry
}

func New(fetcher fetch.Fetcher) *Scraper {
	return &Scraper{fetcher: fetcher}
}

func (s *Scraper) JudgeID() string { return judge.CSAcademy }

type taskEntry struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	LongName    string   `json:"longName"`
	TimeLimit   float64  `json:"timeLimit"`
	MemoryLimit int      `json:"memoryLimit"`
	Tags        []string `json:"tags"`
}

type publicUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type evalTest struct {
	WallTime float64 `json:"wallTime"`
	MemUsage float64 `json:"memUsage"`
}

type evalJob struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"userId"`
	TimeSubmitted float64    `json:"timeSubmitted"`
	IsDone        bool       `json:"isDone"`
	CompileOK     bool       `json:"compileOK"`
	Score         float64    `json:"score"`
	SourceText    string     `json:"sourceText"`
	Tests         []evalTest `json:"tests"`
}

type apiState struct {
	ContestTask []taskEntry  `json:"contesttask"`
	PublicUser  []publicUser `json:"publicuser"`
	EvalJob     []evalJob    `json:"evaljob"`
}

type apiEnvelope struct {
	State apiState `json:"state"`
}

// getCSRFToken fetches the landing page once and keeps the token the
// server sets for the session.
func (s *Scraper) getCSRFToken(ctx context.Context) (string, error) {
	if s.csrfToken != "" {
		return s.csrfToken, nil
	}

	resp, err := s.fetcher.Do(ctx, "GET", baseURL+"/", nil, nil)
	if err != nil {
		return "", err
	}
	token, ok := resp.Cookies["csrftoken"]
	if !ok {
		return "", fmt.Errorf("no csrftoken cookie in response")
	}

	logger.Logger.Debug("got csacademy csrf token")
	s.csrfToken = token
	return token, nil
}

// apiCall issues an XHR-style request the way the site's frontend does.
func (s *Scraper) apiCall(ctx context.Context, path string, query url.Values, refererTask string) (*apiState, error) {
	token, err := s.getCSRFToken(ctx)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{
		"Accept":           "*/*",
		"X-Requested-With": "XMLHttpRequest",
		"X-CSRFToken":      token,
		"Referer":          fmt.Sprintf("%s/contest/archive/task/%s/submissions/", baseURL, refererTask),
		"Cookie":           "csrftoken=" + token,
	}

	resp, err := s.fetcher.Do(ctx, "GET", baseURL+path, query, headers)
	if err != nil {
		return nil, err
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", path, err)
	}
	return &envelope.State, nil
}

func (s *Scraper) getTaskEntries(ctx context.Context) ([]taskEntry, error) {
	if s.taskInfo != nil {
		return s.taskInfo, nil
	}

	path := fmt.Sprintf("/contest/archive/task/%s/submissions/", warmupTaskName)
	state, err := s.apiCall(ctx, path, nil, warmupTaskName)
	if err != nil {
		return nil, err
	}

	s.taskInfo = state.ContestTask
	s.taskIDs = make(map[string]int64, len(state.ContestTask))
	for _, task := range state.ContestTask {
		s.taskIDs[strings.ToLower(task.Name)] = task.ID
	}
	return s.taskInfo, nil
}

func (s *Scraper) submission(taskID string, job evalJob, usernames map[int64]string) (judge.Submission, bool) {
	if !job.IsDone {
		logger.Logger.Debug("skipped submission: still evaluating", "submission", job.ID)
		return judge.Submission{}, false
	}
	authorID, ok := usernames[job.UserID]
	if !ok {
		logger.Logger.Warn("skipped submission: unknown user", "submission", job.ID)
		return judge.Submission{}, false
	}

	sourceSize := len(job.SourceText)
	sub := judge.Submission{
		JudgeID:      judge.CSAcademy,
		SubmissionID: strconv.FormatInt(job.ID, 10),
		TaskID:       taskID,
		AuthorID:     strings.ToLower(authorID),
		SubmittedOn:  unixTime(job.TimeSubmitted),
		SourceSize:   &sourceSize,
		Verdict:      judge.VerdictCompileError,
	}

	if job.CompileOK {
		score := math.Round(job.Score * 100)
		sub.Score = &score
		if score == 100 {
			sub.Verdict = judge.VerdictAccepted
		} else {
			sub.Verdict = judge.VerdictWrongAnswer
		}
	}

	var wallTime, memUsage float64
	for _, test := range job.Tests {
		wallTime = math.Max(wallTime, test.WallTime)
		memUsage = math.Max(memUsage, test.MemUsage)
	}
	execTime := int(math.Round(wallTime * 1000))
	memoryUsed := int(math.Round(memUsage / 1024))
	sub.ExecTime = &execTime
	sub.MemoryUsed = &memoryUsed

	return sub, true
}

func unixTime(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// ScrapeSubmissionsForTask walks eval jobs newest-first, moving the
// endTime cursor just before the oldest submission of each batch.
func (s *Scraper) ScrapeSubmissionsForTask(ctx context.Context, taskID string) judge.SubmissionSeq {
	return func(yield func(judge.Submission, error) bool) {
		if _, err := s.getTaskEntries(ctx); err != nil {
			yield(judge.Submission{}, err)
			return
		}
		contestTaskID, ok := s.taskIDs[strings.ToLower(taskID)]
		if !ok {
			yield(judge.Submission{}, fmt.Errorf("unknown csacademy task %q", taskID))
			return
		}

		cursor := time.Now().Add(48 * time.Hour)
		for {
			query := url.Values{}
			query.Set("numJobs", strconv.Itoa(jobsPerPage))
			query.Set("requestCount", "false")
			query.Set("contestId", archiveContestID)
			query.Set("contestTaskId", strconv.FormatInt(contestTaskID, 10))
			query.Set("endTime", strconv.FormatFloat(
				float64(cursor.UnixMicro())/1e6, 'f', 6, 64))

			state, err := s.apiCall(ctx, "/eval/get_eval_jobs/", query, taskID)
			if err != nil {
				yield(judge.Submission{}, err)
				return
			}
			if len(state.EvalJob) == 0 {
				return
			}

			usernames := make(map[int64]string, len(state.PublicUser))
			for _, user := range state.PublicUser {
				usernames[user.ID] = user.Username
			}

			for _, job := range state.EvalJob {
				// Skipped jobs still move the cursor; a page of pending
				// evaluations must not end the walk before older
				// history is reached.
				if submittedOn := unixTime(job.TimeSubmitted); submittedOn.Before(cursor) {
					cursor = submittedOn
				}

				sub, ok := s.submission(strings.ToLower(taskID), job, usernames)
				if !ok {
					continue
				}
				if !yield(sub, nil) {
					return
				}
			}
			cursor = cursor.Add(-time.Microsecond)
		}
	}
}

func (s *Scraper) ScrapeTaskInfo(ctx context.Context, taskID string) (*judge.TaskInfo, error) {
	entries, err := s.getTaskEntries(ctx)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if !strings.EqualFold(entry.Name, taskID) {
			continue
		}

		info := &judge.TaskInfo{
			JudgeID: judge.CSAcademy,
			TaskID:  strings.ToLower(entry.Name),
			Title:   entry.LongName,
			Tags:    entry.Tags,
		}
		if entry.TimeLimit > 0 {
			timeLimit := int(math.Round(entry.TimeLimit * 1000))
			info.TimeLimit = &timeLimit
		}
		if entry.MemoryLimit > 0 {
			memoryLimit := entry.MemoryLimit * 1024
			info.MemoryLimit = &memoryLimit
		}
		return info, nil
	}

	return nil, fmt.Errorf("task %q not found in archive", taskID)
}
