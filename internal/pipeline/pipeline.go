// Package pipeline orchestrates the per-task analysis run: required stages
// in order, then independent report generators.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
	"github.com/searchpulse/geo-analyzer/internal/metrics"
)

// StageRequest is passed to each required stage. Results accumulates stage
// outputs so later stages and report generators can read earlier ones.
type StageRequest struct {
	Task    analysis.Task
	Domain  string
	Results *analysis.ResultSet
}

// Stage is one required pipeline step. A non-nil error aborts the run; the
// returned StageResult is recorded in the audit map either way.
type Stage interface {
	Name() string
	Run(ctx context.Context, req StageRequest) (analysis.StageResult, error)
}

// ReportStage is one independent report generator. Failures are recorded
// per stage and never abort the pipeline.
type ReportStage interface {
	Name() string
	Generate(ctx context.Context, dir string, results *analysis.ResultSet) analysis.StageResult
}

// Config controls output placement.
type Config struct {
	// OutputRoot is the directory report directories are created under.
	OutputRoot string
}

// Analyzer runs the full pipeline for one task at a time.
type Analyzer struct {
	cfg      Config
	required []Stage
	reports  []ReportStage
	ids      analysis.IDGenerator
	clock    analysis.Clock
	logger   *zap.Logger
}

// New constructs an Analyzer.
func New(
	cfg Config,
	required []Stage,
	reports []ReportStage,
	ids analysis.IDGenerator,
	clock analysis.Clock,
	logger *zap.Logger,
) (*Analyzer, error) {
	if cfg.OutputRoot == "" {
		return nil, fmt.Errorf("output root is required")
	}
	if len(required) == 0 {
		return nil, fmt.Errorf("at least one required stage is needed")
	}
	if ids == nil || clock == nil {
		return nil, fmt.Errorf("id generator and clock are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{
		cfg:      cfg,
		required: required,
		reports:  reports,
		ids:      ids,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Run executes required stages in order, aborting and removing the output
// directory on the first failure, then runs every report generator,
// isolating their failures. Overall success depends only on the required
// stages.
func (a *Analyzer) Run(ctx context.Context, task analysis.Task) (analysis.PipelineResult, error) {
	dir, err := a.createOutputDir(task)
	if err != nil {
		return analysis.PipelineResult{
			Steps: map[string]analysis.StageResult{},
		}, analysis.NewStageError("output_dir", analysis.KindInternal, err)
	}

	res := analysis.PipelineResult{
		Steps:           make(map[string]analysis.StageResult, len(a.required)+len(a.reports)),
		ReportDirectory: dir,
	}
	results := &analysis.ResultSet{}
	req := StageRequest{
		Task:    task,
		Domain:  analysis.Domain(task.URL),
		Results: results,
	}

	for _, stage := range a.required {
		start := a.clock.Now()
		stageRes, err := stage.Run(ctx, req)
		elapsed := a.clock.Now().Sub(start)
		stageRes.DurationMs = elapsed.Milliseconds()
		res.Steps[stage.Name()] = stageRes
		metrics.ObserveStage(stage.Name(), elapsed)
		if err != nil {
			a.removeOutputDir(dir)
			res.ReportDirectory = ""
			return res, fmt.Errorf("required stage %s: %w", stage.Name(), err)
		}
		a.logger.Debug("stage finished",
			zap.String("task_id", task.ID),
			zap.String("stage", stage.Name()),
			zap.Duration("elapsed", elapsed),
		)
	}

	for _, report := range a.reports {
		start := a.clock.Now()
		rr := a.generateReport(ctx, report, dir, results)
		elapsed := a.clock.Now().Sub(start)
		rr.DurationMs = elapsed.Milliseconds()
		res.Steps[report.Name()] = rr
		metrics.ObserveStage(report.Name(), elapsed)
		if !rr.Success {
			a.logger.Warn("report stage failed",
				zap.String("task_id", task.ID),
				zap.String("stage", report.Name()),
				zap.String("error", rr.Error),
			)
		}
	}

	res.Success = true
	return res, nil
}

// generateReport isolates a report generator, including panics; one broken
// template must not take down the run loop.
func (a *Analyzer) generateReport(
	ctx context.Context,
	report ReportStage,
	dir string,
	results *analysis.ResultSet,
) (rr analysis.StageResult) {
	defer func() {
		if rec := recover(); rec != nil {
			rr = analysis.StageResult{Success: false, Error: fmt.Sprintf("panic: %v", rec)}
		}
	}()
	return report.Generate(ctx, dir, results)
}

// createOutputDir builds a deterministic directory name from the host and
// the processing start time, appending a short random suffix when the name
// already exists on disk so two runs never share an output location.
func (a *Analyzer) createOutputDir(task analysis.Task) (string, error) {
	if err := os.MkdirAll(a.cfg.OutputRoot, 0o750); err != nil {
		return "", fmt.Errorf("create output root: %w", err)
	}
	host := strings.ReplaceAll(analysis.Domain(task.URL), ":", "_")
	name := fmt.Sprintf("%s-%s", host, task.ProcessingStartedAt.UTC().Format("20060102-150405"))
	dir := filepath.Join(a.cfg.OutputRoot, name)
	err := os.Mkdir(dir, 0o750)
	if err == nil {
		return dir, nil
	}
	if !errors.Is(err, os.ErrExist) {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	id, idErr := a.ids.NewID()
	if idErr != nil {
		return "", fmt.Errorf("generate dir suffix: %w", idErr)
	}
	suffix := strings.ReplaceAll(id, "-", "")
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	dir = filepath.Join(a.cfg.OutputRoot, name+"-"+suffix)
	if err := os.Mkdir(dir, 0o750); err != nil {
		return "", fmt.Errorf("create suffixed output dir: %w", err)
	}
	return dir, nil
}

func (a *Analyzer) removeOutputDir(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		a.logger.Warn("remove partial output dir failed", zap.String("dir", dir), zap.Error(err))
	}
}
