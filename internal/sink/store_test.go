package sink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cpaggregator/cpaggregator/internal/judge"
	"github.com/cpaggregator/cpaggregator/internal/sink/migrations"
	"github.com/cpaggregator/cpaggregator/internal/sink/models"
)

func setupStore(t *testing.T) (context.Context, *Store) {
	t.Helper()
	ctx := t.Context()

	container, err := postgres.Run(ctx, "postgres:16.4-alpine",
		postgres.WithDatabase("cpaggregator"),
		postgres.WithUsername("cpaggregator"),
		postgres.WithPassword("cpaggregator"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, testcontainers.TerminateContainer(container))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn))
	require.NoError(t, err)

	require.NoError(t, migrations.Up(ctx, db))

	store := New(db)
	require.NoError(t, store.SeedJudges(ctx))
	return ctx, store
}

func intPtr(v int) *int { return &v }

func TestSeedJudges(t *testing.T) {
	ctx, store := setupStore(t)

	// Seeding twice must not duplicate reference rows.
	require.NoError(t, store.SeedJudges(ctx))

	var count int64
	require.NoError(t, store.db.WithContext(ctx).Model(&models.Judge{}).Count(&count).Error)
	assert.EqualValues(t, len(judge.KnownJudges()), count)
}

func TestCreateTasksAndListTaskIDs(t *testing.T) {
	ctx, store := setupStore(t)

	stats, err := store.CreateTasks(ctx, judge.Infoarena, []string{"aib", "dfs", "aib"})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Created)
	assert.Equal(t, 1, stats.Skipped)

	taskIDs, err := store.ListTaskIDs(ctx, judge.Infoarena)
	require.NoError(t, err)
	assert.Equal(t, []string{"aib", "dfs"}, taskIDs)

	t.Run("OtherJudgeIsEmpty", func(t *testing.T) {
		taskIDs, err := store.ListTaskIDs(ctx, judge.Timus)
		require.NoError(t, err)
		assert.Empty(t, taskIDs)
	})

	t.Run("UnknownJudge", func(t *testing.T) {
		_, err := store.ListTaskIDs(ctx, "spoj")
		var unsupportedErr *judge.UnsupportedJudgeError
		assert.ErrorAs(t, err, &unsupportedErr)
	})
}

func TestUpsertTasks(t *testing.T) {
	ctx, store := setupStore(t)

	info := judge.TaskInfo{
		JudgeID:   judge.Codeforces,
		TaskID:    "4_a",
		Title:     "Watermelon",
		TimeLimit: intPtr(1000),
		Tags:      []string{"math"},
		Source:    "Codeforces Beta Round 4",
	}

	stats, err := store.UpsertTasks(ctx, []judge.TaskInfo{info})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)

	t.Run("ReUpsertConverges", func(t *testing.T) {
		enriched := info
		enriched.MemoryLimit = intPtr(65536)

		stats, err := store.UpsertTasks(ctx, []judge.TaskInfo{enriched})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Updated)
		assert.Zero(t, stats.Created)

		var count int64
		require.NoError(t, store.db.WithContext(ctx).Model(&models.Task{}).Count(&count).Error)
		assert.EqualValues(t, 1, count)

		var row models.Task
		require.NoError(t, store.db.WithContext(ctx).First(&row, "task_id = ?", "4_a").Error)
		assert.Equal(t, "Watermelon", *row.Name)
		assert.Equal(t, 1000, *row.TimeLimitMS)
		assert.Equal(t, 65536, *row.MemoryLimitKB)
	})

	t.Run("SourceSlugIsStable", func(t *testing.T) {
		_, err := store.UpsertTasks(ctx, []judge.TaskInfo{info})
		require.NoError(t, err)

		var count int64
		require.NoError(t, store.db.WithContext(ctx).Model(&models.TaskSource{}).Count(&count).Error)
		assert.EqualValues(t, 1, count)

		var source models.TaskSource
		require.NoError(t, store.db.WithContext(ctx).First(&source).Error)
		assert.Equal(t, "codeforces-beta-round-4", source.SourceID)
	})

	t.Run("StatementUpsert", func(t *testing.T) {
		withStatement := info
		withStatement.Statement = &judge.Statement{
			Text:     "Given w, decide whether it splits into two even parts.",
			Examples: []judge.Example{{Input: "8", Output: "YES"}},
		}

		_, err := store.UpsertTasks(ctx, []judge.TaskInfo{withStatement})
		require.NoError(t, err)
		_, err = store.UpsertTasks(ctx, []judge.TaskInfo{withStatement})
		require.NoError(t, err)

		var count int64
		require.NoError(t, store.db.WithContext(ctx).Model(&models.TaskStatement{}).Count(&count).Error)
		assert.EqualValues(t, 1, count)
	})
}

func TestUpsertHandles(t *testing.T) {
	ctx, store := setupStore(t)

	stats, err := store.UpsertHandles(ctx, []judge.UserInfo{
		{JudgeID: judge.Codeforces, Handle: "petr", FirstName: "Petr", LastName: "Mitrichev"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)

	t.Run("EnrichmentKeepsExistingFields", func(t *testing.T) {
		rating := 3500
		stats, err := store.UpsertHandles(ctx, []judge.UserInfo{
			{JudgeID: judge.Codeforces, Handle: "petr", Rating: &rating},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Updated)

		var row models.UserHandle
		require.NoError(t, store.db.WithContext(ctx).First(&row, "handle = ?", "petr").Error)
		assert.Equal(t, "Petr", *row.FirstName, "absent fields must not clear stored data")
		assert.Equal(t, 3500, *row.Rating)
	})

	handles, err := store.ListHandles(ctx, judge.Codeforces)
	require.NoError(t, err)
	assert.Equal(t, []string{"petr"}, handles)
}

func TestUpsertSubmissions(t *testing.T) {
	ctx, store := setupStore(t)

	_, err := store.CreateTasks(ctx, judge.Codeforces, []string{"4_a"})
	require.NoError(t, err)
	_, err = store.UpsertHandles(ctx, []judge.UserInfo{
		{JudgeID: judge.Codeforces, Handle: "petr"},
	})
	require.NoError(t, err)

	score := 100.0
	sub := judge.Submission{
		JudgeID:      judge.Codeforces,
		SubmissionID: "12345",
		TaskID:       "4_a",
		AuthorID:     "petr",
		SubmittedOn:  time.Date(2024, time.March, 5, 10, 0, 0, 0, time.UTC),
		Language:     "GNU C++17",
		Verdict:      judge.VerdictWrongAnswer,
		Score:        &score,
	}

	stats, err := store.UpsertSubmissions(ctx, []judge.Submission{sub})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Created)

	t.Run("ReUpsertUpdatesInPlace", func(t *testing.T) {
		rejudged := sub
		rejudged.Verdict = judge.VerdictAccepted
		rejudged.ExecTime = intPtr(15)

		stats, err := store.UpsertSubmissions(ctx, []judge.Submission{rejudged})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Updated)
		assert.Zero(t, stats.Created)

		var count int64
		require.NoError(t, store.db.WithContext(ctx).Model(&models.Submission{}).Count(&count).Error)
		assert.EqualValues(t, 1, count)

		var row models.Submission
		require.NoError(t, store.db.WithContext(ctx).First(&row, "submission_id = ?", "12345").Error)
		assert.Equal(t, string(judge.VerdictAccepted), row.Verdict)
		assert.Equal(t, 100, *row.Score)
		assert.Equal(t, 15, *row.ExecTime)
	})

	t.Run("UnresolvedReferenceIsSkipped", func(t *testing.T) {
		orphan := sub
		orphan.SubmissionID = "99999"
		orphan.TaskID = "nosuchtask"

		stats, err := store.UpsertSubmissions(ctx, []judge.Submission{orphan})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Skipped)
		assert.Zero(t, stats.Created)
	})
}
