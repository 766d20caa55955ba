// Package timus scrapes Timus Online Judge. Task ids are the bare
// problem numbers (e.g. "1000"). The status page has no pagination
// worth walking; one large page covers the recent window.
package timus

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

const (
	baseURL = "https://acm.timus.ru"
	// Timus problem space; 1 is the main archive.
	defaultSpace = "1"
	statusCount  = "1000"
)

var _ judge.Scraper = (*Scraper)(nil)

type Scraper struct {
	judge.NotSupported
	fetcher fetch.Fetcher
}

func New(fetcher fetch.Fetcher) *Scraper {
	return &Scraper{fetcher: fetcher}
}

func (s *Scraper) JudgeID() string { return judge.Timus }

func (s *Scraper) scrapeSubmissions(ctx context.Context, query url.Values) judge.SubmissionSeq {
	return func(yield func(judge.Submission, error) bool) {
		query.Set("space", defaultSpace)
		query.Set("count", statusCount)

		body, err := s.fetcher.Fetch(ctx, baseURL+"/status.aspx", query)
		if err != nil {
			yield(judge.Submission{}, err)
			return
		}

		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			yield(judge.Submission{}, err)
			return
		}

		doc.Find("table.status tr.odd, table.status tr.even").
			EachWithBreak(func(_ int, row *goquery.Selection) bool {
				sub, err := s.parseStatusRow(row.Find("td"))
				if err != nil {
					logger.Logger.Warn("skipped submission", "error", err)
					return true
				}
				return yield(sub, nil)
			})
	}
}

func (s *Scraper) parseStatusRow(cells *goquery.Selection) (judge.Submission, error) {
	if cells.Length() != 9 {
		return judge.Submission{}, fmt.Errorf("unexpected number of columns: %d", cells.Length())
	}

	authorHref, ok := cells.Eq(2).Find("a[href]").First().Attr("href")
	if !ok {
		return judge.Submission{}, fmt.Errorf("missing author link")
	}
	_, authorID, found := strings.Cut(authorHref, "id=")
	if !found {
		return judge.Submission{}, fmt.Errorf("cannot parse author link %q", authorHref)
	}

	taskText, _, _ := strings.Cut(cells.Eq(3).Text(), ".")
	taskNum, err := strconv.Atoi(strings.TrimSpace(taskText))
	if err != nil {
		return judge.Submission{}, fmt.Errorf("cannot parse task number %q", taskText)
	}

	// The date cell holds the clock and the date as separate text
	// nodes around a line break.
	dateNodes := cells.Eq(1).Contents()
	if dateNodes.Length() < 3 {
		return judge.Submission{}, fmt.Errorf("unexpected date cell shape")
	}
	submittedOn, err := parseDate(
		strings.TrimSpace(dateNodes.Eq(0).Text()),
		strings.TrimSpace(dateNodes.Eq(2).Text()))
	if err != nil {
		return judge.Submission{}, err
	}

	sub := judge.Submission{
		JudgeID:      judge.Timus,
		SubmissionID: strings.TrimSpace(cells.Eq(0).Text()),
		AuthorID:     authorID,
		TaskID:       strconv.Itoa(taskNum),
		SubmittedOn:  submittedOn,
		Verdict:      parseVerdict(strings.TrimSpace(cells.Eq(5).Text())),
		Language:     strings.TrimSpace(cells.Eq(4).Text()),
	}

	if execText := strings.TrimSpace(cells.Eq(7).Text()); execText != "" {
		execTime, err := parseExecTime(execText)
		if err != nil {
			return judge.Submission{}, err
		}
		sub.ExecTime = &execTime
	}
	if memoryText := strings.TrimSpace(cells.Eq(8).Text()); memoryText != "" {
		memoryUsed, err := parseMemoryUsed(memoryText)
		if err != nil {
			return judge.Submission{}, err
		}
		sub.MemoryUsed = &memoryUsed
	}

	return sub, nil
}

func (s *Scraper) ScrapeSubmissionsForTask(ctx context.Context, taskID string) judge.SubmissionSeq {
	query := url.Values{}
	query.Set("num", taskID)
	return s.scrapeSubmissions(ctx, query)
}

func (s *Scraper) ScrapeSubmissionsForUser(ctx context.Context, handle string) judge.SubmissionSeq {
	query := url.Values{}
	query.Set("author", handle)
	return s.scrapeSubmissions(ctx, query)
}

func (s *Scraper) ScrapeRecentSubmissions(ctx context.Context) judge.SubmissionSeq {
	return s.scrapeSubmissions(ctx, url.Values{})
}

func (s *Scraper) taskPage(ctx context.Context, taskID string) (*goquery.Document, error) {
	query := url.Values{}
	query.Set("num", taskID)
	query.Set("space", defaultSpace)

	body, err := s.fetcher.Fetch(ctx, baseURL+"/problem.aspx", query)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

func (s *Scraper) ScrapeTaskInfo(ctx context.Context, taskID string) (*judge.TaskInfo, error) {
	doc, err := s.taskPage(ctx, taskID)
	if err != nil {
		return nil, err
	}

	titleText := doc.Find("h2.problem_title").Text()
	_, title, found := strings.Cut(titleText, ".")
	if !found {
		return nil, fmt.Errorf("task %q: cannot parse title %q", taskID, titleText)
	}

	limitNodes := doc.Find("div.problem_limits").Contents()
	if limitNodes.Length() < 3 {
		return nil, fmt.Errorf("task %q: unexpected limits shape", taskID)
	}
	timeLimit, err := parseTimeLimit(limitNodes.Eq(0).Text())
	if err != nil {
		return nil, err
	}
	memoryLimit, err := parseMemoryLimit(limitNodes.Eq(2).Text())
	if err != nil {
		return nil, err
	}

	return &judge.TaskInfo{
		JudgeID:     judge.Timus,
		TaskID:      taskID,
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

	root := doc.Find("#problem_text")
	if root.Length() == 0 {
		return nil, fmt.Errorf("task %q: no statement content", taskID)
	}

	statement := &judge.Statement{
		Text: htmltext.Markup(root.Children().Not("table.sample")),
	}

	doc.Find("table.sample tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		pres := row.Find("pre")
		if pres.Length() >= 2 {
			statement.Examples = append(statement.Examples, judge.Example{
				Input:  strings.TrimSpace(pres.Eq(0).Text()),
				Output: strings.TrimSpace(pres.Eq(1).Text()),
			})
		}
	})

	return statement, nil
}
