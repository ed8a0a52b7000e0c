package report

import (
	"context"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
)

// Claims writes claims-report.json listing every flagged marketing claim.
type Claims struct{}

func (Claims) Name() string { return "report_claims" }

func (Claims) Generate(_ context.Context, dir string, results *analysis.ResultSet) analysis.StageResult {
	summary := results.Claims
	if summary == nil {
		summary = &analysis.ClaimsSummary{Claims: []analysis.Claim{}}
	}
	path, err := writeJSON(dir, "claims-report.json", summary)
	if err != nil {
		return fail(err)
	}
	return ok(path)
}
