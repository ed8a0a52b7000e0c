package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
)

// Recommendations writes recommendations.md with rule-based follow-ups
// derived from the structured-data and score results.
type Recommendations struct{}

func (Recommendations) Name() string { return "report_recommendations" }

func (Recommendations) Generate(_ context.Context, dir string, results *analysis.ResultSet) analysis.StageResult {
	var b strings.Builder
	b.WriteString("# Recommendations\n\n")

	items := buildRecommendations(results)
	if len(items) == 0 {
		b.WriteString("No immediate follow-ups. Keep structured data current as pages change.\n")
	}
	for _, item := range items {
		fmt.Fprintf(&b, "- %s\n", item)
	}

	path := filepath.Join(dir, "recommendations.md")
	if err := os.WriteFile(path, []byte(b.String()), 0o640); err != nil {
		return fail(fmt.Errorf("write recommendations: %w", err))
	}
	return ok(path)
}

func buildRecommendations(results *analysis.ResultSet) []string {
	var items []string
	if s := results.Schema; s != nil {
		if s.PagesWithJSONLD < s.PagesScanned {
			items = append(items, fmt.Sprintf(
				"Add JSON-LD structured data to the %d pages missing it; engines weigh it above scraped tags.",
				s.PagesScanned-s.PagesWithJSONLD))
		}
		if s.MetaDescriptionPages < s.PagesScanned {
			items = append(items, fmt.Sprintf(
				"Write meta descriptions for the %d pages without one.",
				s.PagesScanned-s.MetaDescriptionPages))
		}
		if s.OpenGraphPages == 0 {
			items = append(items, "Add OpenGraph tags so shared links carry titles and previews.")
		}
	}
	if a := results.Audit; a != nil && a.PagesCrawled > 0 {
		if avg := a.TotalWordCount / a.PagesCrawled; avg < 150 {
			items = append(items, fmt.Sprintf(
				"Average visible copy is only %d words per page; thin pages rarely surface in generated answers.", avg))
		}
		if a.PagesRendered > 0 {
			items = append(items, "Key content only appears after JavaScript runs; server-render it so non-executing crawlers see it.")
		}
	}
	if c := results.Claims; c != nil && c.HighRiskCount > 0 {
		items = append(items, fmt.Sprintf(
			"Review the %d high-risk marketing claims flagged in claims-report.json.", c.HighRiskCount))
	}
	return items
}
