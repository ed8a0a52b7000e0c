// Package audit implements the site-audit stage. It crawls the target site
// with Colly, falls back to headless rendering for script-heavy entry
// pages, and fills the shared scratch store with the pages later stages
// read.
package audit

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
	"github.com/searchpulse/geo-analyzer/internal/pipeline"
)

// Renderer renders a URL with JavaScript enabled and returns the DOM HTML.
type Renderer interface {
	Render(ctx context.Context, rawURL string) (string, error)
}

// Config controls crawl behavior.
type Config struct {
	UserAgent string
	MaxPages  int
	Timeout   time.Duration
	// RenderThreshold is the body size under which a script-heavy page is
	// considered client-rendered and re-fetched headlessly.
	RenderThreshold int
}

func (c Config) withDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = "searchpulse-auditor/1.0"
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 25
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RenderThreshold <= 0 {
		c.RenderThreshold = 2048
	}
	return c
}

// Stage crawls the submitted site into the scratch store.
type Stage struct {
	scratch  analysis.Scratch
	renderer Renderer
	cfg      Config
	clock    analysis.Clock
	logger   *zap.Logger
}

// New constructs the audit stage. renderer may be nil to disable the
// headless fallback.
func New(scratch analysis.Scratch, renderer Renderer, cfg Config, clock analysis.Clock, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{
		scratch:  scratch,
		renderer: renderer,
		cfg:      cfg.withDefaults(),
		clock:    clock,
		logger:   logger,
	}
}

// Name implements pipeline.Stage.
func (s *Stage) Name() string { return "site_audit" }

// Run crawls the entry page plus same-host linked pages up to the page cap
// and records each page in the scratch store.
func (s *Stage) Run(ctx context.Context, req pipeline.StageRequest) (analysis.StageResult, error) {
	entry := req.Task.URL
	domain := req.Domain

	collector := colly.NewCollector(
		colly.UserAgent(s.cfg.UserAgent),
		colly.AllowedDomains(domain, "www."+domain),
		colly.MaxDepth(2),
	)
	collector.SetRequestTimeout(s.cfg.Timeout)

	var (
		mu        sync.Mutex
		pages     []analysis.PageSummary
		entryBody string
		fetchErr  error
	)

	collector.OnResponse(func(r *colly.Response) {
		mu.Lock()
		defer mu.Unlock()
		if len(pages) >= s.cfg.MaxPages {
			return
		}
		body := string(r.Body)
		page := s.recordPage(ctx, domain, r.Request.URL.String(), r.StatusCode, body, false)
		if len(pages) == 0 {
			entryBody = body
		}
		pages = append(pages, page)
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		mu.Lock()
		full := len(pages) >= s.cfg.MaxPages
		mu.Unlock()
		if full {
			return
		}
		// Visit dedupes and enforces the allowed-domains filter itself.
		_ = e.Request.Visit(e.Attr("href"))
	})

	collector.OnError(func(_ *colly.Response, err error) {
		mu.Lock()
		if fetchErr == nil {
			fetchErr = err
		}
		mu.Unlock()
	})

	if err := collector.Visit(entry); err != nil {
		return failure(err), analysis.NewStageError(s.Name(), classifyFetchErr(err), err)
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return failure(err), analysis.NewStageError(s.Name(), analysis.KindTimeout, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(pages) == 0 {
		err := fetchErr
		if err == nil {
			err = errors.New("no pages fetched")
		}
		return failure(err), analysis.NewStageError(s.Name(), classifyFetchErr(err), err)
	}

	pages = s.maybeRenderEntry(ctx, domain, entry, entryBody, pages)

	summary := &analysis.AuditSummary{
		Domain:          domain,
		EntryURL:        entry,
		EntryStatusCode: pages[0].StatusCode,
		PagesCrawled:    len(pages),
		Pages:           pages,
	}
	for _, p := range pages {
		summary.TotalWordCount += p.WordCount
		if p.Rendered {
			summary.PagesRendered++
		}
	}
	req.Results.Audit = summary
	s.logger.Info("site audit finished",
		zap.String("domain", domain),
		zap.Int("pages", summary.PagesCrawled),
		zap.Int("rendered", summary.PagesRendered),
	)
	return analysis.StageResult{Success: true}, nil
}

// recordPage writes one crawled page into the scratch store and returns
// its summary. Scratch failures degrade to a log line: the audit summary
// still carries the page even if the working store write was lost.
func (s *Stage) recordPage(ctx context.Context, domain, pageURL string, status int, body string, rendered bool) analysis.PageSummary {
	title := titleOf(body)
	words := visibleWordCount(body)
	err := s.scratch.PutPage(ctx, analysis.ScratchPage{
		Domain:     domain,
		URL:        pageURL,
		StatusCode: status,
		HTML:       body,
		Title:      title,
		WordCount:  words,
		Rendered:   rendered,
		FetchedAt:  s.clock.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn("scratch write failed", zap.String("url", pageURL), zap.Error(err))
	}
	return analysis.PageSummary{
		URL:        pageURL,
		StatusCode: status,
		Title:      title,
		WordCount:  words,
		Rendered:   rendered,
	}
}

// maybeRenderEntry re-fetches the entry page headlessly when the static
// body looks client-rendered, replacing its page summary and scratch row.
func (s *Stage) maybeRenderEntry(ctx context.Context, domain, entry, entryBody string, pages []analysis.PageSummary) []analysis.PageSummary {
	if s.renderer == nil {
		return pages
	}
	first := pages[0]
	if !s.looksClientRendered(first, entryBody) {
		return pages
	}
	html, err := s.renderer.Render(ctx, entry)
	if err != nil {
		s.logger.Warn("headless render fallback failed", zap.String("url", entry), zap.Error(err))
		return pages
	}
	pages[0] = s.recordPage(ctx, domain, first.URL, first.StatusCode, html, true)
	return pages
}

var spaMarkers = []string{
	`id="root"`,
	`id="app"`,
	"data-reactroot",
	"__next",
}

// looksClientRendered flags pages whose static HTML carries almost no
// visible text. A tiny word count alone is enough below the threshold;
// otherwise an SPA mount-point marker plus a small body means the content
// only exists after script execution.
func (s *Stage) looksClientRendered(p analysis.PageSummary, body string) bool {
	if p.StatusCode != 200 {
		return false
	}
	if p.WordCount < s.cfg.RenderThreshold/16 {
		return true
	}
	if len(body) >= s.cfg.RenderThreshold*4 {
		return false
	}
	for _, marker := range spaMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

func failure(err error) analysis.StageResult {
	return analysis.StageResult{Success: false, Error: err.Error()}
}

func classifyFetchErr(err error) analysis.ErrorKind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return analysis.KindDNS
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return analysis.KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return analysis.KindTimeout
		}
		return analysis.KindNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return analysis.KindNetwork
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return analysis.KindTimeout
	case strings.Contains(msg, "connection"):
		return analysis.KindNetwork
	default:
		return analysis.KindUpstream
	}
}
