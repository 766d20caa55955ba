package codeforces

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

// fakeFetcher serves canned API pages keyed by full request URL.
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

func collect(t *testing.T, seq judge.SubmissionSeq) []judge.Submission {
	t.Helper()

	var subs []judge.Submission
	for sub, err := range seq {
		require.NoError(t, err)
		subs = append(subs, sub)
	}
	return subs
}

func TestScrapeSubmissionsForTask(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"http://codeforces.com/api/contest.status?contestId=4&count=2&from=1": `{
			"status": "OK",
			"result": [
				{
					"id": 100,
					"creationTimeSeconds": 1700000000,
					"problem": {"contestId": 4, "index": "A"},
					"author": {"members": [{"handle": "Petr"}]},
					"programmingLanguage": "GNU C++17",
					"verdict": "OK",
					"timeConsumedMillis": 15,
					"memoryConsumedBytes": 102400
				},
				{
					"id": 101,
					"creationTimeSeconds": 1700000100,
					"problem": {"contestId": 4, "index": "A"},
					"author": {"members": [{"handle": "tourist"}]},
					"verdict": "TESTING"
				}
			]
		}`,
		"http://codeforces.com/api/contest.status?contestId=4&count=2&from=3": `{
			"status": "OK",
			"result": [
				{
					"id": 102,
					"creationTimeSeconds": 1700000200,
					"problem": {"contestId": 4, "index": "B"},
					"author": {"members": [{"handle": "rng_58"}]},
					"verdict": "WRONG_ANSWER"
				}
			]
		}`,
		"http://codeforces.com/api/contest.status?contestId=4&count=2&from=5": `{"status": "OK", "result": []}`,
	}}

	subs := collect(t, New(fetcher, 2).ScrapeSubmissionsForTask(t.Context(), "4_a"))
	require.Len(t, subs, 1, "pending rows and other tasks must be dropped")

	sub := subs[0]
	assert.Equal(t, judge.Codeforces, sub.JudgeID)
	assert.Equal(t, "100", sub.SubmissionID)
	assert.Equal(t, "4_a", sub.TaskID)
	assert.Equal(t, "Petr", sub.AuthorID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), sub.SubmittedOn)
	assert.Equal(t, "GNU C++17", sub.Language)
	assert.Equal(t, judge.VerdictAccepted, sub.Verdict)
	require.NotNil(t, sub.ExecTime)
	assert.Equal(t, 15, *sub.ExecTime)
	require.NotNil(t, sub.MemoryUsed)
	assert.Equal(t, 100, *sub.MemoryUsed)
}

func TestScrapeSubmissionsForTaskMalformedID(t *testing.T) {
	seq := New(&fakeFetcher{}, 2).ScrapeSubmissionsForTask(t.Context(), "4a")

	var gotErr error
	for _, err := range seq {
		gotErr = err
	}
	assert.Error(t, gotErr)
}

func TestScrapeSubmissionsAPIError(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"http://codeforces.com/api/user.status?count=2&from=1&handle=petr": `{
			"status": "FAILED",
			"comment": "handle: User with handle petr not found"
		}`,
	}}

	var gotErr error
	for _, err := range New(fetcher, 2).ScrapeSubmissionsForUser(t.Context(), "petr") {
		if err != nil {
			gotErr = err
			break
		}
	}
	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "FAILED")
}

func TestScrapeRecentSubmissions(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"http://codeforces.com/api/problemset.recentStatus?count=2": `{
			"status": "OK",
			"result": [
				{
					"id": 200,
					"creationTimeSeconds": 1700000300,
					"problem": {"contestId": 1700, "index": "C"},
					"author": {"members": [{"handle": "jiangly"}]},
					"verdict": "TIME_LIMIT_EXCEEDED"
				},
				{
					"id": 201,
					"creationTimeSeconds": 1700000250,
					"problem": {"contestId": 1700, "index": "A"},
					"author": {"members": [{"handle": "alice"}, {"handle": "bob"}]},
					"verdict": "OK"
				}
			]
		}`,
	}}

	subs := collect(t, New(fetcher, 2).ScrapeRecentSubmissions(t.Context()))
	require.Len(t, subs, 1, "team submissions must be dropped")
	assert.Equal(t, "1700_c", subs[0].TaskID)
	assert.Equal(t, judge.VerdictTimeLimitExceeded, subs[0].Verdict)
}

func TestScrapeTaskInfo(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"http://codeforces.com/api/contest.standings?contestId=4&count=1&from=1": `{
			"status": "OK",
			"result": {
				"contest": {"name": "Codeforces Beta Round 4"},
				"problems": [
					{"contestId": 4, "index": "A", "name": "Watermelon", "tags": ["brute force", "math", "interactive"]},
					{"contestId": 4, "index": "B", "name": "Before an Exam", "tags": ["greedy"]}
				]
			}
		}`,
	}}

	info, err := New(fetcher, 2).ScrapeTaskInfo(t.Context(), "4_a")
	require.NoError(t, err)
	assert.Equal(t, "4_a", info.TaskID)
	assert.Equal(t, "Watermelon", info.Title)
	assert.Equal(t, "Codeforces Beta Round 4", info.Source)
	assert.Equal(t, []string{"brute", "math"}, info.Tags, "unknown tags must be dropped")
}

func TestScrapeUserInfo(t *testing.T) {
	t.Run("RealPhoto", func(t *testing.T) {
		fetcher := &fakeFetcher{pages: map[string]string{
			"http://codeforces.com/api/user.info?handles=Petr": `{
				"status": "OK",
				"result": [{
					"handle": "Petr",
					"firstName": "Petr",
					"lastName": "Mitrichev",
					"rating": 3500,
					"titlePhoto": "//userpic.codeforces.org/petr/title.jpg"
				}]
			}`,
		}}

		info, err := New(fetcher, 2).ScrapeUserInfo(t.Context(), "Petr")
		require.NoError(t, err)
		assert.Equal(t, "Petr", info.Handle)
		assert.Equal(t, "Mitrichev", info.LastName)
		require.NotNil(t, info.Rating)
		assert.Equal(t, 3500, *info.Rating)
		require.NotNil(t, info.PhotoURL)
		assert.Equal(t, "https://userpic.codeforces.org/petr/title.jpg", *info.PhotoURL)
	})

	t.Run("PlaceholderPhotoIsAbsent", func(t *testing.T) {
		fetcher := &fakeFetcher{pages: map[string]string{
			"http://codeforces.com/api/user.info?handles=newbie": `{
				"status": "OK",
				"result": [{
					"handle": "newbie",
					"titlePhoto": "//userpic.codeforces.org/no-title.jpg"
				}]
			}`,
		}}

		info, err := New(fetcher, 2).ScrapeUserInfo(t.Context(), "newbie")
		require.NoError(t, err)
		assert.Nil(t, info.PhotoURL)
		assert.Nil(t, info.Rating)
	})
}
