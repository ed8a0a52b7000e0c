package postgres

import (
	"context"
	"fmt"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
)

// ScratchStore keeps crawled pages in a shared working table. Rows are
// keyed by (domain, url); Clear wipes the whole table between tasks.
type ScratchStore struct {
	pool  PoolIface
	table string
}

// NewScratchStoreWithPool constructs a scratch store on an existing pool.
// The queue and the analysis store normally share one pool.
func NewScratchStoreWithPool(pool PoolIface, table string) (*ScratchStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "scratch_pages"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ScratchStore{pool: pool, table: table}, nil
}

// PutPage upserts one crawled page.
func (s *ScratchStore) PutPage(ctx context.Context, page analysis.ScratchPage) error {
	if page.Domain == "" || page.URL == "" {
		return fmt.Errorf("domain and url are required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (domain, url, status_code, html, title, word_count, rendered, fetched_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (domain, url) DO UPDATE SET
	status_code = EXCLUDED.status_code,
	html = EXCLUDED.html,
	title = EXCLUDED.title,
	word_count = EXCLUDED.word_count,
	rendered = EXCLUDED.rendered,
	fetched_at = EXCLUDED.fetched_at`, s.table)
	_, err := s.pool.Exec(ctx, query,
		page.Domain, page.URL, page.StatusCode, page.HTML,
		page.Title, page.WordCount, page.Rendered, page.FetchedAt)
	if err != nil {
		return fmt.Errorf("upsert scratch page: %w", err)
	}
	return nil
}

// PagesForDomain returns every stored page for the domain in fetch order.
func (s *ScratchStore) PagesForDomain(ctx context.Context, domain string) ([]analysis.ScratchPage, error) {
	query := fmt.Sprintf(`
SELECT domain, url, status_code, html, title, word_count, rendered, fetched_at
FROM %s WHERE domain = $1 ORDER BY fetched_at ASC`, s.table)
	rows, err := s.pool.Query(ctx, query, domain)
	if err != nil {
		return nil, fmt.Errorf("list scratch pages: %w", err)
	}
	defer rows.Close()
	var out []analysis.ScratchPage
	for rows.Next() {
		var p analysis.ScratchPage
		err := rows.Scan(&p.Domain, &p.URL, &p.StatusCode, &p.HTML,
			&p.Title, &p.WordCount, &p.Rendered, &p.FetchedAt)
		if err != nil {
			return nil, fmt.Errorf("scan scratch page: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scratch pages: %w", err)
	}
	return out, nil
}

// Clear wipes the working table. The queue calls this after every task so
// one site's pages never leak into the next analysis.
func (s *ScratchStore) Clear(ctx context.Context) error {
	query := fmt.Sprintf(`DELETE FROM %s`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("clear scratch pages: %w", err)
	}
	return nil
}
