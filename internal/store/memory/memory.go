// Package memory provides in-memory store implementations for local runs
// and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
)

// AnalysisStore keeps status records in a mutex-guarded map.
type AnalysisStore struct {
	mu      sync.RWMutex
	records map[string]analysis.TaskStatus
}

func NewAnalysisStore() *AnalysisStore {
	return &AnalysisStore{records: make(map[string]analysis.TaskStatus)}
}

// CreateRecord upserts the record, matching the Postgres store's conflict
// behavior for deterministic task ids.
func (s *AnalysisStore) CreateRecord(_ context.Context, rec analysis.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.TaskID] = rec
	return nil
}

func (s *AnalysisStore) UpdateRecord(_ context.Context, rec analysis.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.TaskID]; !ok {
		return analysis.ErrNotFound
	}
	s.records[rec.TaskID] = rec
	return nil
}

func (s *AnalysisStore) GetRecord(_ context.Context, taskID string) (analysis.TaskStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[taskID]
	if !ok {
		return analysis.TaskStatus{}, analysis.ErrNotFound
	}
	return rec, nil
}

func (s *AnalysisStore) ListByEmail(_ context.Context, email string) ([]analysis.TaskStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []analysis.TaskStatus
	for _, rec := range s.records {
		if rec.Email == email {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *AnalysisStore) ListCreatedSince(_ context.Context, cutoff time.Time) ([]analysis.TaskStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []analysis.TaskStatus
	for _, rec := range s.records {
		if !rec.CreatedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Scratch keeps crawled pages in memory keyed by (domain, url).
type Scratch struct {
	mu    sync.RWMutex
	pages map[string]map[string]analysis.ScratchPage
}

func NewScratch() *Scratch {
	return &Scratch{pages: make(map[string]map[string]analysis.ScratchPage)}
}

func (s *Scratch) PutPage(_ context.Context, page analysis.ScratchPage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byURL, ok := s.pages[page.Domain]
	if !ok {
		byURL = make(map[string]analysis.ScratchPage)
		s.pages[page.Domain] = byURL
	}
	byURL[page.URL] = page
	return nil
}

func (s *Scratch) PagesForDomain(_ context.Context, domain string) ([]analysis.ScratchPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byURL := s.pages[domain]
	out := make([]analysis.ScratchPage, 0, len(byURL))
	for _, page := range byURL {
		out = append(out, page)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FetchedAt.Equal(out[j].FetchedAt) {
			return out[i].URL < out[j].URL
		}
		return out[i].FetchedAt.Before(out[j].FetchedAt)
	})
	return out, nil
}

func (s *Scratch) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = make(map[string]map[string]analysis.ScratchPage)
	return nil
}
