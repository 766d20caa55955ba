package timus

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpaggregator/cpaggregator/internal/fetch"
	"github.com/cpaggregator/cpaggregator/internal/judge"
)

type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string, query url.Values) ([]byte, error) {
	key := rawURL
	if len(query) > 0 {
		key += "?" + query.Encode()
	}
	body, ok := f.pages[key]
	if !ok {
		return nil, &fetch.TransportError{URL: key, StatusCode: http.StatusNotFound}
	}
	return []byte(body), nil
}

func (f *fakeFetcher) Do(context.Context, string, string, url.Values, map[string]string) (*fetch.Response, error) {
	return nil, errors.New("not implemented")
}

const statusPage = `<html><body>
<table class="status">
<tr class="header"><td>ID</td><td>Date</td><td>Author</td><td>Problem</td><td>Language</td><td>Verdict</td><td>Test</td><td>Time</td><td>Memory</td></tr>
<tr class="odd">
  <td>10588000</td>
  <td>21:30:03<br>13 Aug 2023</td>
  <td><a href="author.aspx?id=323564">Vasya Pupkin</a></td>
  <td><a href="problem.aspx?space=1&num=1000">1000. A+B Problem</a></td>
  <td>G++ 9.2 x64</td>
  <td>Accepted</td>
  <td></td>
  <td>0.031</td>
  <td>1&nbsp;024 KB</td>
</tr>
<tr class="even">
  <td>10587999</td>
  <td>21:29:44<br>13 Aug 2023</td>
  <td><a href="author.aspx?id=107406">Someone Else</a></td>
  <td><a href="problem.aspx?space=1&num=1000">1000. A+B Problem</a></td>
  <td>Python 3.8</td>
  <td>Compilation error</td>
  <td></td>
  <td></td>
  <td></td>
</tr>
<tr class="odd">
  <td>10587998</td>
  <td>oops</td>
  <td><a href="author.aspx?id=1">Broken Row</a></td>
  <td>not a task</td>
  <td>-</td>
  <td>-</td>
  <td></td>
  <td></td>
  <td></td>
</tr>
</table>
</body></html>`

const problemPage = `<html><body>
<h2 class="problem_title">1000. A+B Problem</h2>
<div class="problem_limits">Time limit: 1.0 second<br>Memory limit: 64 MB</div>
<div id="problem_text">
  <p>Calculate <i>a</i> + <i>b</i>.</p>
  <table class="sample">
    <tr><th>input</th><th>output</th></tr>
    <tr><td><pre>1 5</pre></td><td><pre>6</pre></td></tr>
  </table>
</div>
</body></html>`

func TestScrapeSubmissionsForTask(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://acm.timus.ru/status.aspx?count=1000&num=1000&space=1": statusPage,
	}}

	var subs []judge.Submission
	for sub, err := range New(fetcher).ScrapeSubmissionsForTask(t.Context(), "1000") {
		require.NoError(t, err)
		subs = append(subs, sub)
	}
	require.Len(t, subs, 2, "unparsable rows must be skipped")

	first := subs[0]
	assert.Equal(t, judge.Timus, first.JudgeID)
	assert.Equal(t, "10588000", first.SubmissionID)
	assert.Equal(t, "323564", first.AuthorID)
	assert.Equal(t, "1000", first.TaskID)
	assert.Equal(t, time.Date(2023, time.August, 13, 21, 30, 3, 0, time.UTC), first.SubmittedOn)
	assert.Equal(t, "G++ 9.2 x64", first.Language)
	assert.Equal(t, judge.VerdictAccepted, first.Verdict)
	require.NotNil(t, first.ExecTime)
	assert.Equal(t, 31, *first.ExecTime)
	require.NotNil(t, first.MemoryUsed)
	assert.Equal(t, 1024, *first.MemoryUsed)

	second := subs[1]
	assert.Equal(t, judge.VerdictCompileError, second.Verdict)
	assert.Nil(t, second.ExecTime, "compile errors carry no execution stats")
	assert.Nil(t, second.MemoryUsed)
}

func TestScrapeTaskInfo(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://acm.timus.ru/problem.aspx?num=1000&space=1": problemPage,
	}}

	info, err := New(fetcher).ScrapeTaskInfo(t.Context(), "1000")
	require.NoError(t, err)
	assert.Equal(t, "1000", info.TaskID)
	assert.Equal(t, "A+B Problem", info.Title)
	require.NotNil(t, info.TimeLimit)
	assert.Equal(t, 1000, *info.TimeLimit)
	require.NotNil(t, info.MemoryLimit)
	assert.Equal(t, 65536, *info.MemoryLimit)
}

func TestScrapeTaskStatement(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://acm.timus.ru/problem.aspx?num=1000&space=1": problemPage,
	}}

	statement, err := New(fetcher).ScrapeTaskStatement(t.Context(), "1000")
	require.NoError(t, err)
	assert.Contains(t, statement.Text, "Calculate *a* + *b*.")
	require.Len(t, statement.Examples, 1)
	assert.Equal(t, "1 5", statement.Examples[0].Input)
	assert.Equal(t, "6", statement.Examples[0].Output)
}

func TestFetchFailureTerminatesSequence(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{}}

	var gotErr error
	for _, err := range New(fetcher).ScrapeRecentSubmissions(t.Context()) {
		gotErr = err
		break
	}
	var transportErr *fetch.TransportError
	require.ErrorAs(t, gotErr, &transportErr)
}
