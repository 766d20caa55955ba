package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpaggregator/cpaggregator/internal/judge"
)

var testNow = time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

type fakeScraper struct {
	judge.NotSupported
	judgeID   string
	byTask    map[string][]judge.Submission
	taskErrs  map[string]error
	recent    []judge.Submission
	taskInfos map[string]*judge.TaskInfo
	userInfos map[string]*judge.UserInfo
}

func (s *fakeScraper) JudgeID() string { return s.judgeID }

func submissionSeq(subs []judge.Submission) judge.SubmissionSeq {
	return func(yield func(judge.Submission, error) bool) {
		for _, sub := range subs {
			if !yield(sub, nil) {
				return
			}
		}
	}
}

func (s *fakeScraper) ScrapeSubmissionsForTask(_ context.Context, taskID string) judge.SubmissionSeq {
	if err, ok := s.taskErrs[taskID]; ok {
		return judge.ErrSeq(err)
	}
	return submissionSeq(s.byTask[taskID])
}

func (s *fakeScraper) ScrapeRecentSubmissions(context.Context) judge.SubmissionSeq {
	return submissionSeq(s.recent)
}

func (s *fakeScraper) ScrapeTaskInfo(_ context.Context, taskID string) (*judge.TaskInfo, error) {
	info, ok := s.taskInfos[taskID]
	if !ok {
		return nil, errors.New("task not found")
	}
	return info, nil
}

func (s *fakeScraper) ScrapeUserInfo(_ context.Context, handle string) (*judge.UserInfo, error) {
	info, ok := s.userInfos[handle]
	if !ok {
		return nil, errors.New("user not found")
	}
	return info, nil
}

type fakeFactory struct {
	scrapers map[string]judge.Scraper
}

func (f *fakeFactory) Get(judgeID string) (judge.Scraper, error) {
	scraper, ok := f.scrapers[judgeID]
	if !ok {
		return nil, &judge.UnsupportedJudgeError{JudgeID: judgeID}
	}
	return scraper, nil
}

type fakeCatalog struct {
	tasks   map[string][]string
	handles map[string][]string
}

func (c *fakeCatalog) ListTaskIDs(_ context.Context, judgeID string) ([]string, error) {
	return c.tasks[judgeID], nil
}

func (c *fakeCatalog) ListHandles(_ context.Context, judgeID string) ([]string, error) {
	return c.handles[judgeID], nil
}

type fakeSink struct {
	mu                sync.Mutex
	submissionBatches [][]judge.Submission
	taskBatches       [][]judge.TaskInfo
	handleBatches     [][]judge.UserInfo
	err               error
	onSubmissions     func(batches int)
}

func (s *fakeSink) UpsertSubmissions(_ context.Context, subs []judge.Submission) (WriteStats, error) {
	if s.err != nil {
		return WriteStats{}, s.err
	}
	batch := make([]judge.Submission, len(subs))
	copy(batch, subs)

	s.mu.Lock()
	s.submissionBatches = append(s.submissionBatches, batch)
	batches := len(s.submissionBatches)
	s.mu.Unlock()

	if s.onSubmissions != nil {
		s.onSubmissions(batches)
	}
	return WriteStats{Created: len(batch)}, nil
}

func (s *fakeSink) UpsertTasks(_ context.Context, tasks []judge.TaskInfo) (WriteStats, error) {
	batch := make([]judge.TaskInfo, len(tasks))
	copy(batch, tasks)
	s.taskBatches = append(s.taskBatches, batch)
	return WriteStats{Created: len(batch)}, nil
}

func (s *fakeSink) UpsertHandles(_ context.Context, users []judge.UserInfo) (WriteStats, error) {
	batch := make([]judge.UserInfo, len(users))
	copy(batch, users)
	s.handleBatches = append(s.handleBatches, batch)
	return WriteStats{Created: len(batch)}, nil
}

func (s *fakeSink) allSubmissions() []judge.Submission {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []judge.Submission
	for _, batch := range s.submissionBatches {
		all = append(all, batch...)
	}
	return all
}

func testSubmission(id, taskID string, age time.Duration) judge.Submission {
	return judge.Submission{
		JudgeID:      judge.Codeforces,
		SubmissionID: id,
		TaskID:       taskID,
		AuthorID:     "someone",
		SubmittedOn:  testNow.Add(-age),
		Verdict:      judge.VerdictAccepted,
	}
}

func testOrchestrator(factory ScraperFactory, catalog Catalog, sink Sink, batchSize int) *Orchestrator {
	o := New(factory, catalog, sink, batchSize)
	o.now = func() time.Time { return testNow }
	return o
}

func TestParseTarget(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		target, err := ParseTarget("cf:4_a")
		require.NoError(t, err)
		assert.Equal(t, Target{JudgeID: "cf", ID: "4_a"}, target)
		assert.False(t, target.IsWildcard())
	})

	t.Run("Wildcard", func(t *testing.T) {
		target, err := ParseTarget("ia:*")
		require.NoError(t, err)
		assert.True(t, target.IsWildcard())
	})

	t.Run("Malformed", func(t *testing.T) {
		for _, raw := range []string{"cf", "cf:", ":4_a", ""} {
			_, err := ParseTarget(raw)
			assert.Error(t, err, raw)
		}
	})
}

func TestIngestSubmissions(t *testing.T) {
	t.Run("MergesTargetsInTimeOrder", func(t *testing.T) {
		scraper := &fakeScraper{
			judgeID: judge.Codeforces,
			byTask: map[string][]judge.Submission{
				"4_a": {
					testSubmission("1", "4_a", 1*time.Hour),
					testSubmission("2", "4_a", 5*time.Hour),
				},
				"4_b": {
					testSubmission("3", "4_b", 3*time.Hour),
				},
			},
		}
		factory := &fakeFactory{scrapers: map[string]judge.Scraper{judge.Codeforces: scraper}}
		sink := &fakeSink{}
		o := testOrchestrator(factory, &fakeCatalog{}, sink, 10)

		stats, err := o.IngestSubmissions(t.Context(), []string{"cf:4_a", "cf:4_b"}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Created)

		var ids []string
		for _, sub := range sink.allSubmissions() {
			ids = append(ids, sub.SubmissionID)
		}
		assert.Equal(t, []string{"1", "3", "2"}, ids)
	})

	t.Run("WindowLowerBoundInclusive", func(t *testing.T) {
		scraper := &fakeScraper{
			judgeID: judge.Codeforces,
			byTask: map[string][]judge.Submission{
				"4_a": {
					testSubmission("new", "4_a", 24*time.Hour),
					testSubmission("boundary", "4_a", 5*24*time.Hour),
					testSubmission("old", "4_a", 5*24*time.Hour+time.Second),
				},
			},
		}
		factory := &fakeFactory{scrapers: map[string]judge.Scraper{judge.Codeforces: scraper}}
		sink := &fakeSink{}
		o := testOrchestrator(factory, &fakeCatalog{}, sink, 10)

		stats, err := o.IngestSubmissions(t.Context(), []string{"cf:4_a"}, 0, 5)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Created)

		var ids []string
		for _, sub := range sink.allSubmissions() {
			ids = append(ids, sub.SubmissionID)
		}
		assert.Equal(t, []string{"new", "boundary"}, ids)
	})

	t.Run("WindowUpperBoundSkipsFresh", func(t *testing.T) {
		scraper := &fakeScraper{
			judgeID: judge.Codeforces,
			byTask: map[string][]judge.Submission{
				"4_a": {
					testSubmission("fresh", "4_a", time.Hour),
					testSubmission("settled", "4_a", 2*24*time.Hour),
				},
			},
		}
		factory := &fakeFactory{scrapers: map[string]judge.Scraper{judge.Codeforces: scraper}}
		sink := &fakeSink{}
		o := testOrchestrator(factory, &fakeCatalog{}, sink, 10)

		stats, err := o.IngestSubmissions(t.Context(), []string{"cf:4_a"}, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Created)
		assert.Equal(t, "settled", sink.allSubmissions()[0].SubmissionID)
	})

	t.Run("FailingTargetDoesNotAbortRun", func(t *testing.T) {
		scraper := &fakeScraper{
			judgeID: judge.Codeforces,
			byTask: map[string][]judge.Submission{
				"4_a": {testSubmission("1", "4_a", time.Hour)},
			},
			taskErrs: map[string]error{"4_b": errors.New("judge is down")},
		}
		factory := &fakeFactory{scrapers: map[string]judge.Scraper{judge.Codeforces: scraper}}
		sink := &fakeSink{}
		o := testOrchestrator(factory, &fakeCatalog{}, sink, 10)

		stats, err := o.IngestSubmissions(t.Context(), []string{"cf:4_a", "cf:4_b"}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Created)
	})

	t.Run("NotSupportedTargetIsSkipped", func(t *testing.T) {
		scraper := &fakeScraper{
			judgeID:  judge.Timus,
			byTask:   map[string][]judge.Submission{},
			taskErrs: map[string]error{"1000": judge.ErrNotSupported},
		}
		factory := &fakeFactory{scrapers: map[string]judge.Scraper{judge.Timus: scraper}}
		sink := &fakeSink{}
		o := testOrchestrator(factory, &fakeCatalog{}, sink, 10)

		stats, err := o.IngestSubmissions(t.Context(), []string{"timus:1000"}, 0, 0)
		require.NoError(t, err)
		assert.Zero(t, stats.Created)
	})

	t.Run("EmptyWildcardExpansionIsNoOp", func(t *testing.T) {
		factory := &fakeFactory{scrapers: map[string]judge.Scraper{}}
		sink := &fakeSink{}
		catalog := &fakeCatalog{tasks: map[string][]string{}}
		o := testOrchestrator(factory, catalog, sink, 10)

		stats, err := o.IngestSubmissions(t.Context(), []string{"cf:*"}, 0, 0)
		require.NoError(t, err)
		assert.Zero(t, stats)
		assert.Empty(t, sink.submissionBatches)
	})

	t.Run("WildcardExpandsThroughCatalog", func(t *testing.T) {
		scraper := &fakeScraper{
			judgeID: judge.Codeforces,
			byTask: map[string][]judge.Submission{
				"4_a": {testSubmission("1", "4_a", time.Hour)},
				"4_b": {testSubmission("2", "4_b", 2*time.Hour)},
			},
		}
		factory := &fakeFactory{scrapers: map[string]judge.Scraper{judge.Codeforces: scraper}}
		catalog := &fakeCatalog{tasks: map[string][]string{judge.Codeforces: {"4_a", "4_b"}}}
		sink := &fakeSink{}
		o := testOrchestrator(factory, catalog, sink, 10)

		stats, err := o.IngestSubmissions(t.Context(), []string{"cf:*"}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Created)
	})

	t.Run("UnknownJudgeIsFatal", func(t *testing.T) {
		o := testOrchestrator(&fakeFactory{}, &fakeCatalog{}, &fakeSink{}, 10)

		_, err := o.IngestSubmissions(t.Context(), []string{"spoj:xyz"}, 0, 0)
		var unsupportedErr *judge.UnsupportedJudgeError
		require.ErrorAs(t, err, &unsupportedErr)
		assert.Equal(t, "spoj", unsupportedErr.JudgeID)
	})

	t.Run("FlushesInBatches", func(t *testing.T) {
		subs := []judge.Submission{
			testSubmission("1", "4_a", 1*time.Hour),
			testSubmission("2", "4_a", 2*time.Hour),
			testSubmission("3", "4_a", 3*time.Hour),
			testSubmission("4", "4_a", 4*time.Hour),
			testSubmission("5", "4_a", 5*time.Hour),
		}
		scraper := &fakeScraper{
			judgeID: judge.Codeforces,
			byTask:  map[string][]judge.Submission{"4_a": subs},
		}
		factory := &fakeFactory{scrapers: map[string]judge.Scraper{judge.Codeforces: scraper}}
		sink := &fakeSink{}
		o := testOrchestrator(factory, &fakeCatalog{}, sink, 2)

		stats, err := o.IngestSubmissions(t.Context(), []string{"cf:4_a"}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 5, stats.Created)
		require.Len(t, sink.submissionBatches, 3)
		assert.Len(t, sink.submissionBatches[0], 2)
		assert.Len(t, sink.submissionBatches[1], 2)
		assert.Len(t, sink.submissionBatches[2], 1)
	})

	t.Run("MalformedRecordsAreSkipped", func(t *testing.T) {
		broken := testSubmission("1", "4_a", time.Hour)
		broken.AuthorID = ""
		scraper := &fakeScraper{
			judgeID: judge.Codeforces,
			byTask: map[string][]judge.Submission{
				"4_a": {broken, testSubmission("2", "4_a", 2*time.Hour)},
			},
		}
		factory := &fakeFactory{scrapers: map[string]judge.Scraper{judge.Codeforces: scraper}}
		sink := &fakeSink{}
		o := testOrchestrator(factory, &fakeCatalog{}, sink, 10)

		stats, err := o.IngestSubmissions(t.Context(), []string{"cf:4_a"}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Created)
	})
}

func TestIngestRecentSubmissions(t *testing.T) {
	cfScraper := &fakeScraper{
		judgeID: judge.Codeforces,
		recent: []judge.Submission{
			testSubmission("1", "4_a", 1*time.Hour),
			testSubmission("2", "4_b", 4*time.Hour),
		},
	}
	timusScraper := &fakeScraper{
		judgeID: judge.Timus,
		recent: []judge.Submission{
			testSubmission("3", "1000", 2*time.Hour),
		},
	}
	factory := &fakeFactory{scrapers: map[string]judge.Scraper{
		judge.Codeforces: cfScraper,
		judge.Timus:      timusScraper,
	}}
	sink := &fakeSink{}
	o := testOrchestrator(factory, &fakeCatalog{}, sink, 10)

	stats, err := o.IngestRecentSubmissions(t.Context(), []string{judge.Codeforces, judge.Timus}, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Created)

	var ids []string
	for _, sub := range sink.allSubmissions() {
		ids = append(ids, sub.SubmissionID)
	}
	assert.Equal(t, []string{"1", "3", "2"}, ids)
}

func TestPollRecentSubmissions(t *testing.T) {
	t.Run("SingleRoundFansOutPerJudge", func(t *testing.T) {
		cfScraper := &fakeScraper{
			judgeID: judge.Codeforces,
			recent:  []judge.Submission{testSubmission("1", "4_a", time.Hour)},
		}
		timusScraper := &fakeScraper{
			judgeID: judge.Timus,
			recent:  []judge.Submission{testSubmission("2", "1000", 2*time.Hour)},
		}
		factory := &fakeFactory{scrapers: map[string]judge.Scraper{
			judge.Codeforces: cfScraper,
			judge.Timus:      timusScraper,
		}}
		sink := &fakeSink{}
		o := testOrchestrator(factory, &fakeCatalog{}, sink, 10)

		stats, err := o.PollRecentSubmissions(t.Context(), []string{judge.Codeforces, judge.Timus}, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Created)
	})

	t.Run("FailingJudgeDoesNotStopPeers", func(t *testing.T) {
		cfScraper := &fakeScraper{
			judgeID: judge.Codeforces,
			recent:  []judge.Submission{testSubmission("1", "4_a", time.Hour)},
		}
		// The ia adapter is missing entirely; its round fails to build.
		factory := &fakeFactory{scrapers: map[string]judge.Scraper{judge.Codeforces: cfScraper}}
		sink := &fakeSink{}
		o := testOrchestrator(factory, &fakeCatalog{}, sink, 10)

		stats, err := o.PollRecentSubmissions(t.Context(), []string{judge.Codeforces, judge.Infoarena}, 1, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Created)
	})

	t.Run("IntervalLoopStopsOnCancel", func(t *testing.T) {
		cfScraper := &fakeScraper{
			judgeID: judge.Codeforces,
			recent:  []judge.Submission{testSubmission("1", "4_a", time.Hour)},
		}
		factory := &fakeFactory{scrapers: map[string]judge.Scraper{judge.Codeforces: cfScraper}}

		ctx, cancel := context.WithCancel(t.Context())
		defer cancel()
		sink := &fakeSink{onSubmissions: func(batches int) {
			if batches >= 2 {
				cancel()
			}
		}}
		o := testOrchestrator(factory, &fakeCatalog{}, sink, 10)

		stats, err := o.PollRecentSubmissions(ctx, []string{judge.Codeforces}, 1, time.Millisecond)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stats.Created, 2, "must keep polling until cancelled")
	})
}

func TestIngestTaskInfo(t *testing.T) {
	scraper := &fakeScraper{
		judgeID: judge.Codeforces,
		taskInfos: map[string]*judge.TaskInfo{
			"4_a": {JudgeID: judge.Codeforces, TaskID: "4_a", Title: "Watermelon", Tags: []string{"math", "nosuchtag"}},
			"4_c": {JudgeID: judge.Codeforces, TaskID: "4_c"},
		},
	}
	factory := &fakeFactory{scrapers: map[string]judge.Scraper{judge.Codeforces: scraper}}
	sink := &fakeSink{}
	o := testOrchestrator(factory, &fakeCatalog{}, sink, 10)

	// 4_b fails to scrape and 4_c fails to normalize; neither aborts.
	stats, err := o.IngestTaskInfo(t.Context(), []string{"cf:4_a", "cf:4_b", "cf:4_c"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)

	require.Len(t, sink.taskBatches, 1)
	require.Len(t, sink.taskBatches[0], 1)
	info := sink.taskBatches[0][0]
	assert.Equal(t, "Watermelon", info.Title)
	assert.Equal(t, []string{"math"}, info.Tags)
}

func TestIngestHandleInfo(t *testing.T) {
	scraper := &fakeScraper{
		judgeID: judge.Codeforces,
		userInfos: map[string]*judge.UserInfo{
			"Petr": {JudgeID: judge.Codeforces, Handle: "Petr", FirstName: "Petr", LastName: "Mitrichev"},
		},
	}
	factory := &fakeFactory{scrapers: map[string]judge.Scraper{judge.Codeforces: scraper}}
	catalog := &fakeCatalog{handles: map[string][]string{judge.Codeforces: {"Petr"}}}
	sink := &fakeSink{}
	o := testOrchestrator(factory, catalog, sink, 10)

	stats, err := o.IngestHandleInfo(t.Context(), []string{"cf:*"})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)

	require.Len(t, sink.handleBatches, 1)
	assert.Equal(t, "petr", sink.handleBatches[0][0].Handle)
}
