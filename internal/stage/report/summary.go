package report

import (
	"context"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
)

// Summary writes summary.json, the machine-readable roll-up of every stage
// output.
type Summary struct{}

func (Summary) Name() string { return "report_summary" }

func (Summary) Generate(_ context.Context, dir string, results *analysis.ResultSet) analysis.StageResult {
	path, err := writeJSON(dir, "summary.json", results)
	if err != nil {
		return fail(err)
	}
	return ok(path)
}
