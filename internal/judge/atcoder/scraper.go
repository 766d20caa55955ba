// Package atcoder scrapes AtCoder submission listings and task pages.
// Task ids are "contest/task_screen_name" (e.g. "agc003/agc003_a").
// Submission listings still live on the per-contest legacy domain,
// task pages on atcoder.jp.
package atcoder

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/cpaggregator/cpaggregator/internal/fetch"
	"github.com/cpaggregator/cpaggregator/internal/htmltext"
	"github.com/cpaggregator/cpaggregator/internal/judge"
	"github.com/cpaggregator/cpaggregator/internal/logger"
)

const submittedOnLayout = "2006/01/02 15:04:05 +0000"

var contestURLRe = regexp.MustCompile(`https?://(.*)\.contest\.atcoder\.jp/?`)

var _ judge.Scraper = (*Scraper)(nil)

type Scraper struct {
	judge.NotSupported
	fetcher fetch.Fetcher
}

func New(fetcher fetch.Fetcher) *Scraper {
	return &Scraper{fetcher: fetcher}
}

func (s *Scraper) JudgeID() string { return judge.AtCoder }

func splitTaskID(taskID string) (string, string, error) {
	contestID, screenName, found := strings.Cut(taskID, "/")
	if !found {
		return "", "", fmt.Errorf("malformed atcoder task id %q", taskID)
	}
	return contestID, screenName, nil
}

func contestURL(contestID string) string {
	return fmt.Sprintf("https://%s.contest.atcoder.jp", contestID)
}

func hrefTail(cell *goquery.Selection) (string, bool) {
	href, ok := cell.Find("a[href]").First().Attr("href")
	if !ok {
		return "", false
	}
	parts := strings.Split(href, "/")
	return parts[len(parts)-1], true
}

func firstField(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func (s *Scraper) parseSubmissionRow(contestID string, cells *goquery.Selection) (judge.Submission, error) {
	if cells.Length() != 8 && cells.Length() != 10 {
		return judge.Submission{}, fmt.Errorf("unexpected number of columns: %d", cells.Length())
	}

	submissionID, ok := hrefTail(cells.Eq(cells.Length() - 1))
	if !ok {
		return judge.Submission{}, fmt.Errorf("missing submission link")
	}
	screenName, ok := hrefTail(cells.Eq(1))
	if !ok {
		return judge.Submission{}, fmt.Errorf("missing task link")
	}
	authorID, ok := hrefTail(cells.Eq(2))
	if !ok {
		return judge.Submission{}, fmt.Errorf("missing author link")
	}

	submittedOn, err := time.Parse(submittedOnLayout, cells.Eq(0).Find("time").Text())
	if err != nil {
		return judge.Submission{}, fmt.Errorf("cannot parse submission date: %w", err)
	}

	sourceSize, err := strconv.Atoi(firstField(cells.Eq(5).Text()))
	if err != nil {
		return judge.Submission{}, fmt.Errorf("cannot parse source size: %w", err)
	}

	verdictFields := strings.Fields(cells.Eq(6).Find("span.label.tooltip-label").Text())
	if len(verdictFields) == 0 {
		return judge.Submission{}, fmt.Errorf("missing verdict")
	}

	sub := judge.Submission{
		JudgeID:      judge.AtCoder,
		SubmissionID: submissionID,
		TaskID:       strings.ToLower(contestID + "/" + screenName),
		AuthorID:     strings.ToLower(authorID),
		SubmittedOn:  submittedOn.UTC(),
		Language:     cells.Eq(3).Text(),
		Verdict:      parseVerdict(verdictFields[len(verdictFields)-1]),
		SourceSize:   &sourceSize,
	}

	if scoreText := cells.Eq(4).Text(); scoreText != "-" {
		if score, err := strconv.ParseFloat(scoreText, 64); err == nil {
			sub.Score = &score
		}
	}

	// Judged rows carry two extra columns with execution stats.
	if cells.Length() == 10 {
		execTime, err1 := strconv.Atoi(firstField(cells.Eq(7).Text()))
		memoryUsed, err2 := strconv.Atoi(firstField(cells.Eq(8).Text()))
		if err1 != nil || err2 != nil {
			return judge.Submission{}, fmt.Errorf("cannot parse execution stats")
		}
		sub.ExecTime = &execTime
		sub.MemoryUsed = &memoryUsed
	}

	return sub, nil
}

// scrapeContestSubmissions walks the paginated all-submissions listing
// of one contest, stopping at the first empty page.
func (s *Scraper) scrapeContestSubmissions(ctx context.Context, contestID string, query url.Values) judge.SubmissionSeq {
	return func(yield func(judge.Submission, error) bool) {
		for page := 1; ; page++ {
			pageURL := fmt.Sprintf("%s/submissions/all/%d", contestURL(contestID), page)
			body, err := s.fetcher.Fetch(ctx, pageURL, query)
			if err != nil {
				yield(judge.Submission{}, err)
				return
			}

			doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
			if err != nil {
				yield(judge.Submission{}, err)
				return
			}

			rows := doc.Find("#outer-inner table tbody tr")
			if rows.Length() == 0 {
				return
			}

			stopped := false
			rows.EachWithBreak(func(_ int, row *goquery.Selection) bool {
				sub, err := s.parseSubmissionRow(contestID, row.Find("td"))
				if err != nil {
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

func (s *Scraper) ScrapeSubmissionsForTask(ctx context.Context, taskID string) judge.SubmissionSeq {
	contestID, screenName, err := splitTaskID(taskID)
	if err != nil {
		return judge.ErrSeq(err)
	}

	query := url.Values{}
	query.Set("task_screen_name", screenName)
	return s.scrapeContestSubmissions(ctx, contestID, query)
}

// ScrapeSubmissionsForUserInContests lists one user's submissions
// across a set of contests. The listing has no global per-user view,
// so callers supply the contests to search.
func (s *Scraper) ScrapeSubmissionsForUserInContests(ctx context.Context, handle string, contestIDs []string) judge.SubmissionSeq {
	return func(yield func(judge.Submission, error) bool) {
		for _, contestID := range contestIDs {
			query := url.Values{}
			query.Set("user_screen_name", handle)

			stopped := false
			s.scrapeContestSubmissions(ctx, contestID, query)(func(sub judge.Submission, err error) bool {
				if !yield(sub, err) {
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

// ScrapePastContestIDs lists ids of finished contests from the archive.
func (s *Scraper) ScrapePastContestIDs(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var contestIDs []string

	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("p", strconv.Itoa(page))

		body, err := s.fetcher.Fetch(ctx, "https://atcoder.jp/contest/archive", query)
		if err != nil {
			return nil, err
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		before := len(contestIDs)
		doc.Find("table a[href]").Each(func(_ int, anchor *goquery.Selection) {
			href, _ := anchor.Attr("href")
			match := contestURLRe.FindStringSubmatch(href)
			if match == nil || seen[match[1]] {
				return
			}
			seen[match[1]] = true
			contestIDs = append(contestIDs, match[1])
		})
		if len(contestIDs) == before {
			return contestIDs, nil
		}
	}
}

func (s *Scraper) ScrapeTaskInfo(ctx context.Context, taskID string) (*judge.TaskInfo, error) {
	contestID, screenName, err := splitTaskID(taskID)
	if err != nil {
		return nil, err
	}

	doc, err := s.taskPage(ctx, contestID, screenName)
	if err != nil {
		return nil, err
	}

	heading := doc.Find("span.h2").First()
	if heading.Length() == 0 {
		return nil, fmt.Errorf("task %q: no heading found", taskID)
	}
	title, err := parseTitle(strings.TrimSpace(heading.Text()))
	if err != nil {
		return nil, err
	}

	limitsText := heading.Parent().Find("p").First().Text()
	timeLimitText, memoryLimitText, found := strings.Cut(limitsText, "/")
	if !found {
		return nil, fmt.Errorf("task %q: cannot parse limits %q", taskID, limitsText)
	}
	timeLimit, err := parseTimeLimit(strings.TrimSpace(timeLimitText))
	if err != nil {
		return nil, err
	}
	memoryLimit, err := parseMemoryLimit(strings.TrimSpace(memoryLimitText))
	if err != nil {
		return nil, err
	}

	return &judge.TaskInfo{
		JudgeID:     judge.AtCoder,
		TaskID:      strings.ToLower(contestID + "/" + screenName),
		Title:       title,
		TimeLimit:   &timeLimit,
		MemoryLimit: &memoryLimit,
		Source:      strings.TrimSpace(doc.Find(".contest-title").Text()),
	}, nil
}

func (s *Scraper) ScrapeTaskStatement(ctx context.Context, taskID string) (*judge.Statement, error) {
	contestID, screenName, err := splitTaskID(taskID)
	if err != nil {
		return nil, err
	}

	doc, err := s.taskPage(ctx, contestID, screenName)
	if err != nil {
		return nil, err
	}

	// The English statement when present, otherwise whatever renders.
	root := doc.Find("span.lang-en")
	if root.Length() == 0 {
		root = doc.Find("#task-statement")
	}
	if root.Length() == 0 {
		return nil, fmt.Errorf("task %q: no statement content", taskID)
	}

	statement := &judge.Statement{Text: htmltext.Markup(root)}

	root.Find("div.part").Each(func(_ int, part *goquery.Selection) {
		heading := strings.TrimSpace(part.Find("h3").First().Text())
		if !strings.HasPrefix(heading, "Sample Input") {
			return
		}
		input := strings.TrimSpace(part.Find("pre").First().Text())
		output := strings.TrimSpace(part.NextFiltered("div.part").Find("pre").First().Text())
		if output != "" {
			statement.Examples = append(statement.Examples, judge.Example{
				Input:  input,
				Output: output,
			})
		}
	})

	return statement, nil
}

func (s *Scraper) taskPage(ctx context.Context, contestID, screenName string) (*goquery.Document, error) {
	pageURL := fmt.Sprintf("https://atcoder.jp/contests/%s/tasks/%s", contestID, screenName)
	body, err := s.fetcher.Fetch(ctx, pageURL, nil)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}
