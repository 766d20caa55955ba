// Package ojuz scrapes the oj.uz submission monitor and problem pages.
// Task ids are the site's own slugs (e.g. "boi18_genetics").
package ojuz

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/cpaggregator/cpaggregator/internal/fetch"
	"github.com/cpaggregator/cpaggregator/internal/htmltext"
	"github.com/cpaggregator/cpaggregator/internal/judge"
	"github.com/cpaggregator/cpaggregator/internal/logger"
)

const baseURL = "https://oj.uz"

var _ judge.Scraper = (*Scraper)(nil)

type Scraper struct {
	judge.NotSupported
	fetcher fetch.Fetcher
}

func New(fetcher fetch.Fetcher) *Scraper {
	return &Scraper{fetcher: fetcher}
}

func (s *Scraper) JudgeID() string { return judge.Ojuz }

func hrefTail(cell *goquery.Selection) (string, bool) {
	href, ok := cell.Find("a[href]").First().Attr("href")
	if !ok {
		return "", false
	}
	parts := strings.Split(href, "/")
	return parts[len(parts)-1], true
}

// scrapeSubmissions walks the paginated monitor, stopping at the first
// empty page.
func (s *Scraper) scrapeSubmissions(ctx context.Context, query url.Values) judge.SubmissionSeq {
	return func(yield func(judge.Submission, error) bool) {
		for page := 1; ; page++ {
			pageQuery := url.Values{}
			for key, vals := range query {
				pageQuery[key] = vals
			}
			pageQuery.Set("page", strconv.Itoa(page))

			body, err := s.fetcher.Fetch(ctx, baseURL+"/submissions", pageQuery)
			if err != nil {
				yield(judge.Submission{}, err)
				return
			}

			doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
			if err != nil {
				yield(judge.Submission{}, err)
				return
			}

			rows := doc.Find(".container .table tr").Slice(1, goquery.ToEnd)
			if rows.Length() == 0 {
				return
			}

			stopped := false
			rows.EachWithBreak(func(_ int, row *goquery.Selection) bool {
				sub, err := s.parseSubmissionRow(row.Find("td"))
				if err != nil {
					// Probably the task name was hidden.
					logger.Logger.Warn("skipped submission", "error", err)
					return true
				}
				if !yield(sub, nil) {
					stopped = true
					return false
				}
				return true
			})
			if stopped {
				return
			}
		}
	}
}

func (s *Scraper) parseSubmissionRow(cells *goquery.Selection) (judge.Submission, error) {
	if cells.Length() != 8 {
		return judge.Submission{}, fmt.Errorf("unexpected number of columns: %d", cells.Length())
	}

	submissionID, ok1 := hrefTail(cells.Eq(0))
	authorID, ok2 := hrefTail(cells.Eq(2))
	taskID, ok3 := hrefTail(cells.Eq(3))
	if !ok1 || !ok2 || !ok3 {
		return judge.Submission{}, fmt.Errorf("missing link cell")
	}

	submittedOn, err := parseDate(strings.TrimSpace(cells.Eq(1).Text()))
	if err != nil {
		return judge.Submission{}, err
	}

	verdictText := strings.TrimSpace(cells.Eq(5).Text())
	verdict, err := parseVerdict(verdictText)
	if err != nil {
		return judge.Submission{}, err
	}
	score, err := parseScore(verdictText)
	if err != nil {
		return judge.Submission{}, err
	}

	sub := judge.Submission{
		JudgeID:      judge.Ojuz,
		SubmissionID: submissionID,
		SubmittedOn:  submittedOn,
		AuthorID:     strings.ToLower(authorID),
		TaskID:       strings.ToLower(taskID),
		Verdict:      verdict,
		Score:        &score,
	}

	// Compile errors carry no execution stats.
	if verdict != judge.VerdictCompileError {
		execTime, err := parseExecTime(cells.Eq(6).Text())
		if err != nil {
			return judge.Submission{}, err
		}
		memoryUsed, err := parseMemoryUsed(cells.Eq(7).Text())
		if err != nil {
			return judge.Submission{}, err
		}
		sub.ExecTime = &execTime
		sub.MemoryUsed = &memoryUsed
	}

	return sub, nil
}

func (s *Scraper) ScrapeSubmissionsForTask(ctx context.Context, taskID string) judge.SubmissionSeq {
	query := url.Values{}
	query.Set("problem", taskID)
	return s.scrapeSubmissions(ctx, query)
}

func (s *Scraper) ScrapeSubmissionsForUser(ctx context.Context, handle string) judge.SubmissionSeq {
	query := url.Values{}
	query.Set("handle", handle)
	return s.scrapeSubmissions(ctx, query)
}

func (s *Scraper) ScrapeRecentSubmissions(ctx context.Context) judge.SubmissionSeq {
	return s.scrapeSubmissions(ctx, url.Values{})
}

func (s *Scraper) ScrapeTaskInfo(ctx context.Context, taskID string) (*judge.TaskInfo, error) {
	doc, err := s.taskPage(ctx, taskID)
	if err != nil {
		return nil, err
	}

	titleDiv := doc.Find(".problem-title")
	if titleDiv.Length() == 0 {
		return nil, fmt.Errorf("task %q: no title found", taskID)
	}
	title, _, _ := strings.Cut(strings.TrimLeft(titleDiv.Find("h1").Text(), " \n"), "\n")

	cols := titleDiv.Parent().Find(".table-responsive td")
	if cols.Length() < 2 {
		return nil, fmt.Errorf("task %q: no limits table", taskID)
	}
	timeLimit, err := parseTimeLimit(cols.Eq(0).Text())
	if err != nil {
		return nil, err
	}
	memoryLimit, err := parseMemoryLimit(cols.Eq(1).Text())
	if err != nil {
		return nil, err
	}

	return &judge.TaskInfo{
		JudgeID:     judge.Ojuz,
		TaskID:      strings.ToLower(taskID),
		Title:       strings.TrimSpace(title),
		TimeLimit:   &timeLimit,
		MemoryLimit: &memoryLimit,
	}, nil
}

func (s *Scraper) ScrapeTaskStatement(ctx context.Context, taskID string) (*judge.Statement, error) {
	doc, err := s.taskPage(ctx, taskID)
	if err != nil {
		return nil, err
	}

	// Statements are attached PDFs more often than not; scrape the
	// inline markdown rendering when the site has one.
	root := doc.Find(".problem-statement")
	if root.Length() == 0 {
		return nil, fmt.Errorf("task %q: no inline statement", taskID)
	}

	return &judge.Statement{Text: htmltext.Markup(root)}, nil
}

func (s *Scraper) taskPage(ctx context.Context, taskID string) (*goquery.Document, error) {
	body, err := s.fetcher.Fetch(ctx, baseURL+"/problem/view/"+taskID, nil)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}
