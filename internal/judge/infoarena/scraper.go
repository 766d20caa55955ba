// Package infoarena scrapes www.infoarena.ro: the eval monitor for
// submissions, problem pages for task info and statements, and user
// pages for handle info. Everything is Romanian-language HTML.
package infoarena

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
	baseURL = "https://www.infoarena.ro"
	// The monitor rejects more than 250 results per page.
	maxResultsPerPage = 250
	// Known account whose avatar is the site default; other avatars
	// are diffed against it so the placeholder is never persisted as
	// a real photo.
	userWithDefaultAvatar = "florinas"
)

var _ judge.Scraper = (*Scraper)(nil)

type Scraper struct {
	judge.NotSupported
	fetcher       fetch.Fetcher
	pageSize      int
	defaultAvatar []byte
}

func New(fetcher fetch.Fetcher, pageSize int) *Scraper {
	if pageSize <= 0 || pageSize > maxResultsPerPage {
		pageSize = maxResultsPerPage
	}
	return &Scraper{fetcher: fetcher, pageSize: pageSize}
}

func (s *Scraper) JudgeID() string { return judge.Infoarena }

// paginatedRows yields the <td> cells of every row of a paginated
// listing, stopping when a page has no table or reports no solutions.
func (s *Scraper) paginatedRows(
	ctx context.Context,
	pageURL string,
	tableSelector string,
	query url.Values,
) func(yield func(*goquery.Selection, error) bool) {
	return func(yield func(*goquery.Selection, error) bool) {
		for page := 1; ; page++ {
			pageQuery := url.Values{}
			for key, vals := range query {
				pageQuery[key] = vals
			}
			pageQuery.Set("first_entry", strconv.Itoa(s.pageSize*(page-1)))
			pageQuery.Set("display_entries", strconv.Itoa(s.pageSize))

			body, err := s.fetcher.Fetch(ctx, pageURL, pageQuery)
			if err != nil {
				yield(nil, err)
				return
			}

			doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
			if err != nil {
				yield(nil, err)
				return
			}

			table := doc.Find(tableSelector)
			if table.Length() == 0 {
				return
			}
			if strings.Contains(table.Text(), "Nici o solutie") {
				return
			}

			rows := table.Find("tr").Slice(1, goquery.ToEnd)
			stopped := false
			rows.EachWithBreak(func(_ int, row *goquery.Selection) bool {
				if !yield(row.Find("td"), nil) {
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

func hrefTail(cell *goquery.Selection) (string, bool) {
	href, ok := cell.Find("a[href]").First().Attr("href")
	if !ok {
		return "", false
	}
	parts := strings.Split(href, "/")
	return parts[len(parts)-1], true
}

// scrapeSubmissions walks the eval monitor. Rows that fail to parse
// (usually hidden task names) are logged and skipped.
func (s *Scraper) scrapeSubmissions(ctx context.Context, query url.Values) judge.SubmissionSeq {
	return func(yield func(judge.Submission, error) bool) {
		rows := s.paginatedRows(ctx, baseURL+"/monitor", "#monitor-table", query)
		rows(func(cells *goquery.Selection, err error) bool {
			if err != nil {
				return yield(judge.Submission{}, err)
			}

			sub, ok := s.parseMonitorRow(cells)
			if !ok {
				return true
			}
			return yield(sub, nil)
		})
	}
}

func (s *Scraper) parseMonitorRow(cells *goquery.Selection) (judge.Submission, bool) {
	if cells.Length() != 7 {
		logger.Logger.Warn("skipped submission: unexpected number of columns",
			"columns", cells.Length())
		return judge.Submission{}, false
	}

	submissionID, ok1 := hrefTail(cells.Eq(0))
	authorID, ok2 := hrefTail(cells.Eq(1))
	taskID, ok3 := hrefTail(cells.Eq(2))
	if !ok1 || !ok2 || !ok3 {
		// Probably the task name was hidden.
		logger.Logger.Warn("skipped submission: missing link cell",
			"row", cells.Text())
		return judge.Submission{}, false
	}

	verdictText := cells.Eq(6).Find("span").Text()
	verdict, ok := parseVerdict(verdictText)
	if !ok {
		logger.Logger.Warn("skipped submission: still evaluating",
			"submission", submissionID)
		return judge.Submission{}, false
	}

	sourceSize, err := parseSourceSize(cells.Eq(4).Find("a").Text())
	if err != nil {
		logger.Logger.Warn("skipped submission", "error", err)
		return judge.Submission{}, false
	}

	submittedOn, err := parseDate(strings.TrimSpace(cells.Eq(5).Text()))
	if err != nil {
		logger.Logger.Warn("skipped submission", "error", err)
		return judge.Submission{}, false
	}

	return judge.Submission{
		JudgeID:      judge.Infoarena,
		SubmissionID: submissionID,
		AuthorID:     strings.ToLower(authorID),
		TaskID:       strings.ToLower(taskID),
		SourceSize:   &sourceSize,
		SubmittedOn:  submittedOn,
		Verdict:      judge.Verdict(verdict),
		Score:        parseScore(verdictText),
	}, true
}

func (s *Scraper) ScrapeSubmissionsForTask(ctx context.Context, taskID string) judge.SubmissionSeq {
	query := url.Values{}
	query.Set("task", taskID)
	return s.scrapeSubmissions(ctx, query)
}

func (s *Scraper) ScrapeSubmissionsForUser(ctx context.Context, handle string) judge.SubmissionSeq {
	query := url.Values{}
	query.Set("user", handle)
	return s.scrapeSubmissions(ctx, query)
}

func (s *Scraper) ScrapeRecentSubmissions(ctx context.Context) judge.SubmissionSeq {
	return s.scrapeSubmissions(ctx, url.Values{})
}

// ScrapeArchiveTaskIDs lists task ids from an archive page (e.g.
// "arhiva", "arhiva-educationala"). Used for catalog discovery; not
// part of the capability interface.
func (s *Scraper) ScrapeArchiveTaskIDs(ctx context.Context, pageName string) ([]string, error) {
	var taskIDs []string
	var seqErr error

	rows := s.paginatedRows(ctx, baseURL+"/"+pageName, ".tasks", url.Values{})
	rows(func(cells *goquery.Selection, err error) bool {
		if err != nil {
			seqErr = err
			return false
		}
		if taskID, ok := hrefTail(cells.Eq(1)); ok {
			taskIDs = append(taskIDs, strings.ToLower(taskID))
		}
		return true
	})

	return taskIDs, seqErr
}

func (s *Scraper) ScrapeTaskInfo(ctx context.Context, taskID string) (*judge.TaskInfo, error) {
	body, err := s.fetcher.Fetch(ctx, baseURL+"/problema/"+taskID, nil)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	mainView := doc.Find("#main")
	infoTable := mainView.Find("table").First()
	infoRows := infoTable.Find("tr")
	if infoRows.Length() < 3 {
		return nil, fmt.Errorf("task %q: unexpected info table shape", taskID)
	}

	title := strings.TrimSpace(mainView.Find("h1").First().Text())
	timeLimit, err := parseTimeLimit(infoRows.Eq(2).Find("td").Eq(1).Text())
	if err != nil {
		return nil, err
	}
	memoryLimit, err := parseMemoryLimit(infoRows.Eq(2).Find("td").Eq(3).Text())
	if err != nil {
		return nil, err
	}
	source := strings.TrimSpace(infoRows.Eq(0).Find("td").Eq(3).Text())

	var tags []string
	mainView.Find("a.tag_search_anchor").Each(func(_ int, anchor *goquery.Selection) {
		if tag, ok := parseTag(strings.TrimSpace(anchor.Text())); ok {
			tags = append(tags, tag)
		}
	})

	return &judge.TaskInfo{
		JudgeID:     judge.Infoarena,
		TaskID:      strings.ToLower(taskID),
		Title:       title,
		Source:      source,
		TimeLimit:   &timeLimit,
		MemoryLimit: &memoryLimit,
		Tags:        tags,
	}, nil
}

func (s *Scraper) ScrapeTaskStatement(ctx context.Context, taskID string) (*judge.Statement, error) {
	body, err := s.fetcher.Fetch(ctx, baseURL+"/problema/"+taskID, nil)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	mainView := doc.Find("#main")
	if mainView.Length() == 0 {
		return nil, fmt.Errorf("task %q: no statement content", taskID)
	}

	statement := &judge.Statement{
		Text: htmltext.Markup(mainView.Children().Not("h1").Not("table").Not(".wiki_text_toc")),
	}

	infoCells := mainView.Find("table").First().Find("tr").Eq(1).Find("td")
	if infoCells.Length() >= 4 {
		statement.InputFile = strings.TrimSpace(infoCells.Eq(1).Text())
		statement.OutputFile = strings.TrimSpace(infoCells.Eq(3).Text())
	}

	// Example tables pair an input <pre> with an output <pre>.
	mainView.Find("table.example").Find("tr").Each(func(i int, row *goquery.Selection) {
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

func avatarURL(handle string) string {
	return baseURL + "/avatar/full/" + handle
}

func (s *Scraper) getDefaultAvatar(ctx context.Context) ([]byte, error) {
	if s.defaultAvatar != nil {
		return s.defaultAvatar, nil
	}

	avatar, err := s.fetcher.Fetch(ctx, avatarURL(userWithDefaultAvatar), nil)
	if err != nil {
		return nil, err
	}
	s.defaultAvatar = avatar
	return avatar, nil
}

func (s *Scraper) ScrapeUserInfo(ctx context.Context, handle string) (*judge.UserInfo, error) {
	body, err := s.fetcher.Fetch(ctx, baseURL+"/utilizator/"+handle, nil)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	cells := doc.Find("table.compact td")
	if cells.Length() < 4 {
		return nil, fmt.Errorf("user %q: unexpected profile table shape", handle)
	}

	info := &judge.UserInfo{
		JudgeID: judge.Infoarena,
		Handle:  strings.ToLower(handle),
	}

	if rating, err := strconv.Atoi(strings.TrimSpace(cells.Eq(3).Text())); err == nil {
		info.Rating = &rating
	}

	info.FirstName, info.LastName = judge.SplitName(strings.TrimSpace(cells.Eq(1).Text()))

	// Infoarena has no distinguishing default avatar URL, so the only
	// way to tell a real photo from the placeholder is a byte diff.
	defaultAvatar, err := s.getDefaultAvatar(ctx)
	if err != nil {
		return nil, err
	}
	userAvatar, err := s.fetcher.Fetch(ctx, avatarURL(handle), nil)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(userAvatar, defaultAvatar) {
		photoURL := avatarURL(strings.ToLower(handle))
		info.PhotoURL = &photoURL
	}

	return info, nil
}
