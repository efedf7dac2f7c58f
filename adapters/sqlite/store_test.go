package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threadlens/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedResearch(t *testing.T, store *Store, id string) {
	t.Helper()
	err := store.CreateResearch(context.Background(), id, "test question", models.Settings{
		MaxThreads:           15,
		MaxCommentsPerThread: 100,
		TimeFilter:           "all",
	})
	require.NoError(t, err)
}

func intPtr(n int) *int { return &n }

func TestMigrationsAreRepeatSafe(t *testing.T) {
	store := newTestStore(t)
	// A second run against the same schema must be a no-op, not an error.
	require.NoError(t, store.migrate(context.Background()))
	require.NoError(t, store.migrate(context.Background()))
}

func TestCreateAndGetResearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedResearch(t, store, "r1")

	research, err := store.GetResearch(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, research)
	assert.Equal(t, "r1", research.ID)
	assert.Equal(t, models.StatusPending, research.Status)
	assert.Equal(t, 15, research.Settings.MaxThreads)
	assert.Nil(t, research.Summary)
	assert.False(t, research.CreatedAt.IsZero())

	missing, err := store.GetResearch(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpdateStatusStampsCompletion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedResearch(t, store, "r1")

	require.NoError(t, store.SetStatus(ctx, "r1", models.StatusProcessing))
	research, _ := store.GetResearch(ctx, "r1")
	assert.Equal(t, models.StatusProcessing, research.Status)
	assert.Nil(t, research.CompletedAt)

	require.NoError(t, store.UpdateStatus(ctx, "r1", models.StatusComplete, 3, 42))
	research, _ = store.GetResearch(ctx, "r1")
	assert.Equal(t, models.StatusComplete, research.Status)
	assert.Equal(t, 3, research.NumThreads)
	assert.Equal(t, 42, research.NumComments)
	assert.NotNil(t, research.CompletedAt)
}

func TestSaveThreadsUpsertKeepsDescriptiveFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedResearch(t, store, "r1")

	require.NoError(t, store.SaveThreads(ctx, "r1", []models.Thread{
		{ID: "t1", Title: "original title", Subreddit: "golang", Score: 10, NumComments: 5},
	}))
	// Re-discovery under a new sort sees fresher counts but the same thread.
	require.NoError(t, store.SaveThreads(ctx, "r1", []models.Thread{
		{ID: "t1", Title: "changed title", Subreddit: "hijacked", Score: 25, NumComments: 9},
	}))

	threads, err := store.GetThreads(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, "original title", threads[0].Title, "descriptive fields keep first-seen values")
	assert.Equal(t, "golang", threads[0].Subreddit)
	assert.Equal(t, 25, threads[0].Score, "popularity refreshes on conflict")
	assert.Equal(t, 9, threads[0].NumComments)
}

func TestSaveCommentsUpsertPreservesUserNote(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedResearch(t, store, "r1")
	require.NoError(t, store.SaveThreads(ctx, "r1", []models.Thread{{ID: "t1"}}))

	require.NoError(t, store.SaveComments(ctx, "r1", []models.Comment{
		{ID: "c1", ThreadID: "t1", Body: "the answer", Score: 5, RelevancyScore: intPtr(7), Reasoning: "on topic"},
	}))
	require.NoError(t, store.SetUserNote(ctx, "r1", "c1", "keep this one for the report"))

	// An expand pass re-collects and re-scores the same comment.
	require.NoError(t, store.SaveComments(ctx, "r1", []models.Comment{
		{ID: "c1", ThreadID: "t1", Body: "the answer", Score: 12, RelevancyScore: intPtr(8), Reasoning: "still on topic"},
	}))

	comments, err := store.GetComments(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "keep this one for the report", comments[0].UserNote, "re-scoring must not clobber the human note")
	assert.Equal(t, 12, comments[0].Score)
	require.NotNil(t, comments[0].RelevancyScore)
	assert.Equal(t, 8, *comments[0].RelevancyScore)
	assert.Equal(t, "still on topic", comments[0].Reasoning)
}

func TestSaveCommentsNullScore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedResearch(t, store, "r1")

	require.NoError(t, store.SaveComments(ctx, "r1", []models.Comment{
		{ID: "c1", ThreadID: "t1", Body: "scored", RelevancyScore: intPtr(6), Reasoning: "fine"},
		{ID: "c2", ThreadID: "t1", Body: "chunk failed", RelevancyScore: nil, Reasoning: "not scored — timeout or error"},
	}))

	comments, err := store.GetComments(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, comments, 2)
	// Scored first, unscored last.
	assert.Equal(t, "c1", comments[0].ID)
	assert.Nil(t, comments[1].RelevancyScore)
	assert.Equal(t, "not scored — timeout or error", comments[1].Reasoning)
}

func TestDeleteThreadCascadesAndRecounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedResearch(t, store, "r1")

	require.NoError(t, store.SaveThreads(ctx, "r1", []models.Thread{{ID: "t1"}, {ID: "t2"}}))
	require.NoError(t, store.SaveComments(ctx, "r1", []models.Comment{
		{ID: "c1", ThreadID: "t1"},
		{ID: "c2", ThreadID: "t1"},
		{ID: "c3", ThreadID: "t2"},
	}))
	require.NoError(t, store.RecalculateCounts(ctx, "r1"))

	require.NoError(t, store.DeleteThread(ctx, "r1", "t1"))

	threads, _ := store.GetThreads(ctx, "r1")
	require.Len(t, threads, 1)
	assert.Equal(t, "t2", threads[0].ID)

	comments, _ := store.GetComments(ctx, "r1")
	require.Len(t, comments, 1)
	assert.Equal(t, "c3", comments[0].ID)

	research, _ := store.GetResearch(ctx, "r1")
	assert.Equal(t, 1, research.NumThreads)
	assert.Equal(t, 1, research.NumComments)
}

func TestExistingThreadIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedResearch(t, store, "r1")
	seedResearch(t, store, "r2")

	require.NoError(t, store.SaveThreads(ctx, "r1", []models.Thread{{ID: "t1"}, {ID: "t2"}}))
	require.NoError(t, store.SaveThreads(ctx, "r2", []models.Thread{{ID: "t3"}}))

	ids, err := store.ExistingThreadIDs(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, ids["t1"])
	assert.True(t, ids["t2"])
	assert.False(t, ids["t3"], "thread sets are per research")
}

func TestArchiveHidesFromHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedResearch(t, store, "r1")
	seedResearch(t, store, "r2")

	require.NoError(t, store.SetArchived(ctx, "r1", true))

	history, err := store.GetHistory(ctx, 50)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "r2", history[0].ID)

	// Archived research remains directly loadable.
	archived, err := store.GetResearch(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, archived)
	assert.True(t, archived.Archived)
	assert.Equal(t, models.StatusArchived, archived.Status)

	// Restoring brings it back.
	require.NoError(t, store.SetArchived(ctx, "r1", false))
	history, _ = store.GetHistory(ctx, 50)
	assert.Len(t, history, 2)
}

func TestDeleteResearchRemovesEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedResearch(t, store, "r1")
	require.NoError(t, store.SaveThreads(ctx, "r1", []models.Thread{{ID: "t1"}}))
	require.NoError(t, store.SaveComments(ctx, "r1", []models.Comment{{ID: "c1", ThreadID: "t1"}}))

	require.NoError(t, store.DeleteResearch(ctx, "r1"))

	research, err := store.GetResearch(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, research)
	threads, _ := store.GetThreads(ctx, "r1")
	assert.Empty(t, threads)
	comments, _ := store.GetComments(ctx, "r1")
	assert.Empty(t, comments)
}

func TestUpdateSettingsMutatesInPlace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedResearch(t, store, "r1")

	require.NoError(t, store.UpdateSettings(ctx, "r1", func(s *models.Settings) {
		s.Subreddits = []string{"golang"}
		s.SortsTried = append(s.SortsTried, "top")
	}))
	require.NoError(t, store.UpdateSettings(ctx, "r1", func(s *models.Settings) {
		s.SortsTried = append(s.SortsTried, "new")
	}))

	settings, err := store.GetSettings(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"golang"}, settings.Subreddits)
	assert.Equal(t, []string{"top", "new"}, settings.SortsTried)
	assert.Equal(t, 15, settings.MaxThreads, "untouched fields survive the mutation")
}

func TestSaveSummaryOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedResearch(t, store, "r1")

	require.NoError(t, store.SaveSummary(ctx, "r1", "first pass"))
	require.NoError(t, store.SaveSummary(ctx, "r1", "regenerated"))

	research, _ := store.GetResearch(ctx, "r1")
	require.NotNil(t, research.Summary)
	assert.Equal(t, "regenerated", *research.Summary)
}
