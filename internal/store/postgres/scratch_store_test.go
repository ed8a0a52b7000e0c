package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
)

func newMockScratch(t *testing.T) (pgxmock.PgxPoolIface, *ScratchStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewScratchStoreWithPool(mock, "scratch_pages")
	require.NoError(t, err)
	return mock, store
}

func TestPutPageUpserts(t *testing.T) {
	t.Parallel()

	mock, store := newMockScratch(t)
	page := analysis.ScratchPage{
		Domain:     "example.com",
		URL:        "https://example.com",
		StatusCode: 200,
		HTML:       "<html></html>",
		Title:      "Home",
		WordCount:  12,
		FetchedAt:  time.Unix(1750000000, 0).UTC(),
	}

	mock.ExpectExec("INSERT INTO scratch_pages").
		WithArgs(
			page.Domain, page.URL, page.StatusCode, page.HTML,
			page.Title, page.WordCount, page.Rendered, page.FetchedAt,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.PutPage(context.Background(), page))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPutPageRequiresKeys(t *testing.T) {
	t.Parallel()

	_, store := newMockScratch(t)
	require.Error(t, store.PutPage(context.Background(), analysis.ScratchPage{URL: "https://example.com"}))
	require.Error(t, store.PutPage(context.Background(), analysis.ScratchPage{Domain: "example.com"}))
}

func TestPagesForDomain(t *testing.T) {
	t.Parallel()

	mock, store := newMockScratch(t)
	fetched := time.Unix(1750000000, 0).UTC()

	mock.ExpectQuery("SELECT (.+) FROM scratch_pages WHERE domain").
		WithArgs("example.com").
		WillReturnRows(pgxmock.NewRows([]string{
			"domain", "url", "status_code", "html", "title", "word_count", "rendered", "fetched_at",
		}).
			AddRow("example.com", "https://example.com", 200, "<html></html>", "Home", 12, false, fetched).
			AddRow("example.com", "https://example.com/about", 200, "<html></html>", "About", 8, true, fetched.Add(time.Second)))

	pages, err := store.PagesForDomain(context.Background(), "example.com")
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Equal(t, "Home", pages[0].Title)
	require.True(t, pages[1].Rendered)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearWipesTable(t *testing.T) {
	t.Parallel()

	mock, store := newMockScratch(t)
	mock.ExpectExec("DELETE FROM scratch_pages").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	require.NoError(t, store.Clear(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
