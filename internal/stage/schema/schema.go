// Package schema implements the structured-data stage. It scans the crawled
// pages for the machine-readable signals generative engines consume and
// scores the site's coverage.
package schema

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
	"github.com/searchpulse/geo-analyzer/internal/pipeline"
)

var (
	jsonLDRe   = regexp.MustCompile(`(?is)<script[^>]+type\s*=\s*["']application/ld\+json["'][^>]*>`)
	openGraphRe = regexp.MustCompile(`(?is)<meta[^>]+property\s*=\s*["']og:[a-z:]+["']`)
	metaDescRe  = regexp.MustCompile(`(?is)<meta[^>]+name\s*=\s*["']description["'][^>]+content\s*=\s*["'][^"']+`)
)

// Stage scans scratch pages for structured data.
type Stage struct {
	scratch analysis.Scratch
	logger  *zap.Logger
}

func New(scratch analysis.Scratch, logger *zap.Logger) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stage{scratch: scratch, logger: logger}
}

// Name implements pipeline.Stage.
func (s *Stage) Name() string { return "schema_scan" }

// Run scans every crawled page for JSON-LD blocks, OpenGraph tags, and meta
// descriptions, then scores the coverage.
func (s *Stage) Run(ctx context.Context, req pipeline.StageRequest) (analysis.StageResult, error) {
	pages, err := s.scratch.PagesForDomain(ctx, req.Domain)
	if err != nil {
		wrapped := fmt.Errorf("load crawled pages: %w", err)
		return analysis.StageResult{Success: false, Error: wrapped.Error()},
			analysis.NewStageError(s.Name(), analysis.KindInternal, wrapped)
	}
	if len(pages) == 0 {
		err := fmt.Errorf("no crawled pages for %s", req.Domain)
		return analysis.StageResult{Success: false, Error: err.Error()},
			analysis.NewStageError(s.Name(), analysis.KindInternal, err)
	}

	summary := &analysis.SchemaSummary{PagesScanned: len(pages)}
	for _, page := range pages {
		blocks := len(jsonLDRe.FindAllString(page.HTML, -1))
		summary.JSONLDBlocks += blocks
		if blocks > 0 {
			summary.PagesWithJSONLD++
		}
		if openGraphRe.MatchString(page.HTML) {
			summary.OpenGraphPages++
		}
		if metaDescRe.MatchString(page.HTML) {
			summary.MetaDescriptionPages++
		}
	}
	summary.Score = coverageScore(summary)
	req.Results.Schema = summary

	s.logger.Info("schema scan finished",
		zap.String("domain", req.Domain),
		zap.Int("pages", summary.PagesScanned),
		zap.Int("score", summary.Score),
	)
	return analysis.StageResult{Success: true}, nil
}

// coverageScore maps coverage ratios onto 0-100. JSON-LD weighs heaviest
// because engines prefer it over scraped tags.
func coverageScore(s *analysis.SchemaSummary) int {
	if s.PagesScanned == 0 {
		return 0
	}
	total := float64(s.PagesScanned)
	score := 50*float64(s.PagesWithJSONLD)/total +
		25*float64(s.OpenGraphPages)/total +
		25*float64(s.MetaDescriptionPages)/total
	return int(score + 0.5)
}
