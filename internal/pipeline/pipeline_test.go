package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct{ n int }

func (g *seqIDs) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("%08d-aaaa-bbbb", g.n), nil
}

type stubStage struct {
	name string
	fn   func(ctx context.Context, req StageRequest) (analysis.StageResult, error)
}

func (s stubStage) Name() string { return s.name }

func (s stubStage) Run(ctx context.Context, req StageRequest) (analysis.StageResult, error) {
	return s.fn(ctx, req)
}

type stubReport struct {
	name string
	fn   func(ctx context.Context, dir string, results *analysis.ResultSet) analysis.StageResult
}

func (s stubReport) Name() string { return s.name }

func (s stubReport) Generate(ctx context.Context, dir string, results *analysis.ResultSet) analysis.StageResult {
	return s.fn(ctx, dir, results)
}

func okStage(name string) stubStage {
	return stubStage{name: name, fn: func(context.Context, StageRequest) (analysis.StageResult, error) {
		return analysis.StageResult{Success: true}, nil
	}}
}

func testTask() analysis.Task {
	return analysis.Task{
		ID:                  "abcdef0123456789",
		Email:               "user@example.com",
		URL:                 "https://example.com",
		ProcessingStartedAt: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	}
}

func newAnalyzer(t *testing.T, root string, required []Stage, reports []ReportStage) *Analyzer {
	t.Helper()
	a, err := New(Config{OutputRoot: root}, required, reports, &seqIDs{}, fixedClock{t: time.Now()}, nil)
	require.NoError(t, err)
	return a
}

func TestRunCreatesReportDirAndRecordsSteps(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	a := newAnalyzer(t, root, []Stage{okStage("site_audit"), okStage("schema_scan")}, nil)

	res, err := a.Run(context.Background(), testTask())
	require.NoError(t, err)
	require.True(t, res.Success)
	require.DirExists(t, res.ReportDirectory)
	require.Contains(t, res.ReportDirectory, "example.com-20260825-120000")
	require.True(t, res.Steps["site_audit"].Success)
	require.True(t, res.Steps["schema_scan"].Success)
}

func TestRequiredFailureAbortsAndRemovesDir(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	var laterRan bool
	failing := stubStage{name: "site_audit", fn: func(context.Context, StageRequest) (analysis.StageResult, error) {
		err := errors.New("no pages fetched")
		return analysis.StageResult{Success: false, Error: err.Error()},
			analysis.NewStageError("site_audit", analysis.KindNetwork, err)
	}}
	later := stubStage{name: "schema_scan", fn: func(context.Context, StageRequest) (analysis.StageResult, error) {
		laterRan = true
		return analysis.StageResult{Success: true}, nil
	}}
	a := newAnalyzer(t, root, []Stage{failing, later}, nil)

	res, err := a.Run(context.Background(), testTask())
	require.Error(t, err)
	require.False(t, res.Success)
	require.False(t, laterRan)
	require.Empty(t, res.ReportDirectory)
	require.Contains(t, res.Steps, "site_audit")
	require.NotContains(t, res.Steps, "schema_scan")

	entries, readErr := os.ReadDir(root)
	require.NoError(t, readErr)
	require.Empty(t, entries, "partial output dir should be removed")
}

func TestReportFailuresAreIsolated(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	reports := []ReportStage{
		stubReport{name: "report_broken", fn: func(context.Context, string, *analysis.ResultSet) analysis.StageResult {
			return analysis.StageResult{Success: false, Error: "template exploded"}
		}},
		stubReport{name: "report_panics", fn: func(context.Context, string, *analysis.ResultSet) analysis.StageResult {
			panic("nil deref in generator")
		}},
		stubReport{name: "report_ok", fn: func(_ context.Context, dir string, _ *analysis.ResultSet) analysis.StageResult {
			path := filepath.Join(dir, "ok.txt")
			require.NoError(t, os.WriteFile(path, []byte("ok"), 0o640))
			return analysis.StageResult{Success: true, Path: path}
		}},
	}
	a := newAnalyzer(t, root, []Stage{okStage("site_audit")}, reports)

	res, err := a.Run(context.Background(), testTask())
	require.NoError(t, err)
	require.True(t, res.Success, "report failures must not fail the run")
	require.False(t, res.Steps["report_broken"].Success)
	require.False(t, res.Steps["report_panics"].Success)
	require.Contains(t, res.Steps["report_panics"].Error, "panic")
	require.True(t, res.Steps["report_ok"].Success)
	require.FileExists(t, res.Steps["report_ok"].Path)
}

func TestOutputDirCollisionGetsSuffix(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	a := newAnalyzer(t, root, []Stage{okStage("site_audit")}, nil)
	task := testTask()

	first, err := a.Run(context.Background(), task)
	require.NoError(t, err)
	second, err := a.Run(context.Background(), task)
	require.NoError(t, err)

	require.NotEqual(t, first.ReportDirectory, second.ReportDirectory)
	require.DirExists(t, first.ReportDirectory)
	require.DirExists(t, second.ReportDirectory)
}
