package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
)

func record(id, email string, createdAt time.Time) analysis.TaskStatus {
	return analysis.TaskStatus{
		TaskID:    id,
		Email:     email,
		URL:       "https://example.com",
		Status:    analysis.StatusQueued,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestAnalysisStoreCRUD(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewAnalysisStore()
	now := time.Now().UTC()

	rec := record("task-1", "user@example.com", now)
	require.NoError(t, store.CreateRecord(ctx, rec))

	got, err := store.GetRecord(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, rec, got)

	rec.Status = analysis.StatusCompleted
	require.NoError(t, store.UpdateRecord(ctx, rec))
	got, err = store.GetRecord(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, analysis.StatusCompleted, got.Status)

	_, err = store.GetRecord(ctx, "missing")
	require.ErrorIs(t, err, analysis.ErrNotFound)
	require.ErrorIs(t, store.UpdateRecord(ctx, record("missing", "x@example.com", now)), analysis.ErrNotFound)

	// Create with the same id replaces the record, matching the Postgres
	// upsert behavior.
	replacement := record("task-1", "user@example.com", now.Add(time.Minute))
	require.NoError(t, store.CreateRecord(ctx, replacement))
	got, err = store.GetRecord(ctx, "task-1")
	require.NoError(t, err)
	require.Equal(t, analysis.StatusQueued, got.Status)
}

func TestListByEmailNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewAnalysisStore()
	now := time.Now().UTC()

	require.NoError(t, store.CreateRecord(ctx, record("old", "user@example.com", now.Add(-time.Hour))))
	require.NoError(t, store.CreateRecord(ctx, record("new", "user@example.com", now)))
	require.NoError(t, store.CreateRecord(ctx, record("other", "other@example.com", now)))

	got, err := store.ListByEmail(ctx, "user@example.com")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "new", got[0].TaskID)
	require.Equal(t, "old", got[1].TaskID)
}

func TestListCreatedSince(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewAnalysisStore()
	now := time.Now().UTC()

	require.NoError(t, store.CreateRecord(ctx, record("stale", "a@example.com", now.Add(-48*time.Hour))))
	require.NoError(t, store.CreateRecord(ctx, record("recent", "b@example.com", now.Add(-time.Hour))))

	got, err := store.ListCreatedSince(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "recent", got[0].TaskID)
}

func TestScratchLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	scratch := NewScratch()
	now := time.Now().UTC()

	require.NoError(t, scratch.PutPage(ctx, analysis.ScratchPage{
		Domain: "example.com", URL: "https://example.com/b", FetchedAt: now.Add(time.Second),
	}))
	require.NoError(t, scratch.PutPage(ctx, analysis.ScratchPage{
		Domain: "example.com", URL: "https://example.com/a", FetchedAt: now,
	}))
	require.NoError(t, scratch.PutPage(ctx, analysis.ScratchPage{
		Domain: "other.com", URL: "https://other.com", FetchedAt: now,
	}))

	pages, err := scratch.PagesForDomain(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Equal(t, "https://example.com/a", pages[0].URL, "fetch order")

	// Re-putting the same URL replaces the row.
	require.NoError(t, scratch.PutPage(ctx, analysis.ScratchPage{
		Domain: "example.com", URL: "https://example.com/a", Title: "updated", FetchedAt: now,
	}))
	pages, err = scratch.PagesForDomain(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, pages, 2)

	require.NoError(t, scratch.Clear(ctx))
	pages, err = scratch.PagesForDomain(ctx, "example.com")
	require.NoError(t, err)
	require.Empty(t, pages)
	pages, err = scratch.PagesForDomain(ctx, "other.com")
	require.NoError(t, err)
	require.Empty(t, pages)
}
