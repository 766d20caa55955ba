// Package codeforces scrapes the Codeforces REST API and problemset
// pages. Task ids are "contestId_index" (e.g. "4_a"), matching the way
// tasks are keyed in the canonical store.
package codeforces

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/cpaggregator/cpaggregator/internal/fetch"
	"github.com/cpaggregator/cpaggregator/internal/htmltext"
	"github.com/cpaggregator/cpaggregator/internal/judge"
	"github.com/cpaggregator/cpaggregator/internal/logger"
)

const (
	apiBase          = "http://codeforces.com/api"
	problemPageBase  = "https://codeforces.com/problemset/problem"
	defaultAvatarTag = "no-title.jpg"
)

var _ judge.Scraper = (*Scraper)(nil)

type Scraper struct {
	judge.NotSupported
	fetcher  fetch.Fetcher
	pageSize int
}

func New(fetcher fetch.Fetcher, pageSize int) *Scraper {
	if pageSize <= 0 {
		pageSize = 200
	}
	return &Scraper{fetcher: fetcher, pageSize: pageSize}
}

func (s *Scraper) JudgeID() string { return judge.Codeforces }

type apiEnvelope struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment"`
	Result  json.RawMessage `json:"result"`
}

type apiMember struct {
	Handle string `json:"handle"`
}

type apiParty struct {
	Members []apiMember `json:"members"`
}

type apiProblem struct {
	ContestID int      `json:"contestId"`
	Index     string   `json:"index"`
	Name      string   `json:"name"`
	Tags      []string `json:"tags"`
}

type apiSubmission struct {
	ID                  int64      `json:"id"`
	CreationTimeSeconds int64      `json:"creationTimeSeconds"`
	Problem             apiProblem `json:"problem"`
	Author              apiParty   `json:"author"`
	ProgrammingLanguage string     `json:"programmingLanguage"`
	Verdict             string     `json:"verdict"`
	TimeConsumedMillis  int        `json:"timeConsumedMillis"`
	MemoryConsumedBytes int64      `json:"memoryConsumedBytes"`
}

type apiContest struct {
	Name string `json:"name"`
}

type apiStandings struct {
	Contest  apiContest   `json:"contest"`
	Problems []apiProblem `json:"problems"`
}

type apiUser struct {
	Handle     string `json:"handle"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Rating     *int   `json:"rating"`
	TitlePhoto string `json:"titlePhoto"`
}

func (s *Scraper) call(ctx context.Context, method string, query url.Values, result any) error {
	body, err := s.fetcher.Fetch(ctx, apiBase+"/"+method, query)
	if err != nil {
		return err
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if envelope.Status != "OK" {
		return fmt.Errorf("%s: expected status OK, got %q (%s)", method, envelope.Status, envelope.Comment)
	}

	return json.Unmarshal(envelope.Result, result)
}

// TaskID renders a problem reference the way tasks are keyed: lowercase
// "contestId_index".
func TaskID(contestID int, index string) string {
	return strings.ToLower(fmt.Sprintf("%d_%s", contestID, index))
}

func splitTaskID(taskID string) (string, string, error) {
	contestID, index, found := strings.Cut(taskID, "_")
	if !found {
		return "", "", fmt.Errorf("malformed codeforces task id %q", taskID)
	}
	return contestID, index, nil
}

func (s *Scraper) submission(data apiSubmission) (judge.Submission, bool) {
	submissionID := strconv.FormatInt(data.ID, 10)

	if data.Verdict == "" {
		logger.Logger.Debug("skipped submission: no verdict", "submission", submissionID)
		return judge.Submission{}, false
	}
	// Only finalized verdicts reach the pipeline.
	if data.Verdict == "TESTING" {
		logger.Logger.Debug("skipped submission: still testing", "submission", submissionID)
		return judge.Submission{}, false
	}
	if len(data.Author.Members) != 1 {
		logger.Logger.Debug("skipped submission: multiple authors not supported",
			"submission", submissionID)
		return judge.Submission{}, false
	}

	execTime := data.TimeConsumedMillis
	memoryUsed := int((data.MemoryConsumedBytes + 512) / 1024)

	return judge.Submission{
		JudgeID:      judge.Codeforces,
		SubmissionID: submissionID,
		TaskID:       TaskID(data.Problem.ContestID, data.Problem.Index),
		AuthorID:     data.Author.Members[0].Handle,
		SubmittedOn:  time.Unix(data.CreationTimeSeconds, 0).UTC(),
		Language:     data.ProgrammingLanguage,
		Verdict:      parseVerdict(data.Verdict),
		ExecTime:     &execTime,
		MemoryUsed:   &memoryUsed,
	}, true
}

// paginate walks a from/count-paged submission listing until a page
// comes back empty.
func (s *Scraper) paginate(ctx context.Context, method string, query url.Values, keepTask string) judge.SubmissionSeq {
	return func(yield func(judge.Submission, error) bool) {
		from := 1
		for {
			pageQuery := url.Values{}
			for key, vals := range query {
				pageQuery[key] = vals
			}
			pageQuery.Set("from", strconv.Itoa(from))
			pageQuery.Set("count", strconv.Itoa(s.pageSize))

			var page []apiSubmission
			if err := s.call(ctx, method, pageQuery, &page); err != nil {
				yield(judge.Submission{}, err)
				return
			}
			if len(page) == 0 {
				return
			}

			for _, data := range page {
				sub, ok := s.submission(data)
				if !ok {
					continue
				}
				if keepTask != "" && sub.TaskID != keepTask {
					continue
				}
				if !yield(sub, nil) {
					return
				}
			}

			from += s.pageSize
		}
	}
}

func (s *Scraper) ScrapeSubmissionsForTask(ctx context.Context, taskID string) judge.SubmissionSeq {
	contestID, _, err := splitTaskID(taskID)
	if err != nil {
		return judge.ErrSeq(err)
	}

	query := url.Values{}
	query.Set("contestId", contestID)
	return s.paginate(ctx, "contest.status", query, strings.ToLower(taskID))
}

func (s *Scraper) ScrapeSubmissionsForUser(ctx context.Context, handle string) judge.SubmissionSeq {
	query := url.Values{}
	query.Set("handle", handle)
	return s.paginate(ctx, "user.status", query, "")
}

func (s *Scraper) ScrapeRecentSubmissions(ctx context.Context) judge.SubmissionSeq {
	return func(yield func(judge.Submission, error) bool) {
		query := url.Values{}
		query.Set("count", strconv.Itoa(s.pageSize))

		var page []apiSubmission
		if err := s.call(ctx, "problemset.recentStatus", query, &page); err != nil {
			yield(judge.Submission{}, err)
			return
		}

		for _, data := range page {
			sub, ok := s.submission(data)
			if !ok {
				continue
			}
			if !yield(sub, nil) {
				return
			}
		}
	}
}

func (s *Scraper) ScrapeTaskInfo(ctx context.Context, taskID string) (*judge.TaskInfo, error) {
	contestID, index, err := splitTaskID(taskID)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("contestId", contestID)
	query.Set("from", "1")
	query.Set("count", "1")

	var standings apiStandings
	if err := s.call(ctx, "contest.standings", query, &standings); err != nil {
		return nil, err
	}

	for _, problem := range standings.Problems {
		if !strings.EqualFold(problem.Index, index) {
			continue
		}
		return &judge.TaskInfo{
			JudgeID: judge.Codeforces,
			TaskID:  TaskID(problem.ContestID, problem.Index),
			Title:   problem.Name,
			Tags:    parseTags(problem.Tags),
			Source:  standings.Contest.Name,
		}, nil
	}

	return nil, fmt.Errorf("task %q not found in contest %s", taskID, contestID)
}

func (s *Scraper) ScrapeUserInfo(ctx context.Context, handle string) (*judge.UserInfo, error) {
	query := url.Values{}
	query.Set("handles", handle)

	var users []apiUser
	if err := s.call(ctx, "user.info", query, &users); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("no user with handle %q", handle)
	}
	if len(users) > 1 {
		return nil, fmt.Errorf("multiple users with handle %q", handle)
	}

	user := users[0]
	info := &judge.UserInfo{
		JudgeID:   judge.Codeforces,
		Handle:    user.Handle,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Rating:    user.Rating,
	}
	// The placeholder avatar is not a real photo.
	if user.TitlePhoto != "" && !strings.Contains(user.TitlePhoto, defaultAvatarTag) {
		photoURL := user.TitlePhoto
		if strings.HasPrefix(photoURL, "//") {
			photoURL = "https:" + photoURL
		}
		info.PhotoURL = &photoURL
	}

	return info, nil
}

func (s *Scraper) ScrapeTaskStatement(ctx context.Context, taskID string) (*judge.Statement, error) {
	contestID, index, err := splitTaskID(taskID)
	if err != nil {
		return nil, err
	}

	pageURL := fmt.Sprintf("%s/%s/%s", problemPageBase, contestID, strings.ToUpper(index))
	body, err := s.fetcher.Fetch(ctx, pageURL, nil)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	root := doc.Find("div.problem-statement")
	if root.Length() == 0 {
		return nil, fmt.Errorf("no statement found for task %q", taskID)
	}

	statement := &judge.Statement{
		Text: htmltext.Markup(root.Children().Not(".header").Not(".sample-tests")),
	}

	samples := root.Find("div.sample-test")
	inputs := samples.Find("div.input pre")
	outputs := samples.Find("div.output pre")
	for i := 0; i < inputs.Length() && i < outputs.Length(); i++ {
		statement.Examples = append(statement.Examples, judge.Example{
			Input:  strings.TrimSpace(inputs.Eq(i).Text()),
			Output: strings.TrimSpace(outputs.Eq(i).Text()),
		})
	}

	return statement, nil
}
