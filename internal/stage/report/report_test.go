package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
)

func sampleResults() *analysis.ResultSet {
	return &analysis.ResultSet{
		Audit: &analysis.AuditSummary{
			Domain:          "example.com",
			EntryURL:        "https://example.com",
			EntryStatusCode: 200,
			PagesCrawled:    2,
			TotalWordCount:  120,
			Pages: []analysis.PageSummary{
				{URL: "https://example.com", StatusCode: 200, Title: "Home", WordCount: 80},
				{URL: "https://example.com/about", StatusCode: 200, Title: "About", WordCount: 40, Rendered: true},
			},
		},
		Schema: &analysis.SchemaSummary{
			PagesScanned:         2,
			JSONLDBlocks:         1,
			PagesWithJSONLD:      1,
			OpenGraphPages:       2,
			MetaDescriptionPages: 1,
			Score:                60,
		},
		Score: &analysis.ScoreSummary{
			OverallScore: 55,
			Dimensions:   map[string]int{"structured_data": 60},
			Summary:      "Average visibility.",
			Model:        "gpt-4o-mini",
		},
		Claims: &analysis.ClaimsSummary{
			Claims: []analysis.Claim{
				{Text: "the best", Risk: "high", Rationale: "unsupported superlative"},
			},
			HighRiskCount: 1,
			Model:         "gpt-4o-mini",
		},
	}
}

func TestSummaryWritesFullResultSet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	res := Summary{}.Generate(context.Background(), dir, sampleResults())
	require.True(t, res.Success)
	require.FileExists(t, res.Path)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	var decoded analysis.ResultSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, 55, decoded.Score.OverallScore)
	require.Equal(t, 2, decoded.Audit.PagesCrawled)
}

func TestScorecardRendersHTML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	res := Scorecard{}.Generate(context.Background(), dir, sampleResults())
	require.True(t, res.Success)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	html := string(data)
	require.Contains(t, html, "55/100")
	require.Contains(t, html, "structured_data")
	require.Contains(t, html, "example.com")
}

func TestScorecardHandlesMissingScore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	res := Scorecard{}.Generate(context.Background(), dir, &analysis.ResultSet{})
	require.True(t, res.Success)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	require.Contains(t, string(data), "No score available")
}

func TestRecommendationsReflectFindings(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	res := Recommendations{}.Generate(context.Background(), dir, sampleResults())
	require.True(t, res.Success)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	md := string(data)
	require.Contains(t, md, "JSON-LD")
	require.Contains(t, md, "high-risk marketing claims")
	require.Contains(t, md, "JavaScript")
}

func TestClaimsReportEmptyWithoutClaims(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	res := Claims{}.Generate(context.Background(), dir, &analysis.ResultSet{})
	require.True(t, res.Success)

	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	var decoded analysis.ClaimsSummary
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Empty(t, decoded.Claims)
	require.Zero(t, decoded.HighRiskCount)
}

func TestInventoryListsEveryPage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	res := Inventory{}.Generate(context.Background(), dir, sampleResults())
	require.True(t, res.Success)

	f, err := os.Open(res.Path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"url", "status_code", "title", "word_count", "rendered"}, rows[0])
	require.Equal(t, "https://example.com/about", rows[2][0])
	require.Equal(t, "true", rows[2][4])
}

func TestGeneratorsFailOnMissingDirectory(t *testing.T) {
	t.Parallel()

	missing := strings.TrimSuffix(t.TempDir(), "/") + "/does-not-exist"
	require.False(t, Summary{}.Generate(context.Background(), missing, sampleResults()).Success)
	require.False(t, Scorecard{}.Generate(context.Background(), missing, sampleResults()).Success)
	require.False(t, Inventory{}.Generate(context.Background(), missing, sampleResults()).Success)
}
