package score

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
	"github.com/searchpulse/geo-analyzer/internal/pipeline"
)

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]+>`)
)

const scoreSystemPrompt = `You are an analyst scoring how visible a company's website is to
generative AI engines. Reply with JSON only, no prose, in the shape:
{"overall_score": <0-100>, "dimensions": {"<name>": <0-100>, ...}, "summary": "<two sentences>"}`

// ScoreStage asks the model for an AI visibility score built from the audit
// and schema summaries plus page excerpts.
type ScoreStage struct {
	client  ChatClient
	scratch analysis.Scratch
	cfg     Config
	logger  *zap.Logger
}

func NewScoreStage(client ChatClient, scratch analysis.Scratch, cfg Config, logger *zap.Logger) *ScoreStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreStage{client: client, scratch: scratch, cfg: cfg.withDefaults(), logger: logger}
}

// Name implements pipeline.Stage.
func (s *ScoreStage) Name() string { return "visibility_score" }

// Run prompts the model and records the parsed score in the result set.
func (s *ScoreStage) Run(ctx context.Context, req pipeline.StageRequest) (analysis.StageResult, error) {
	pages, err := s.scratch.PagesForDomain(ctx, req.Domain)
	if err != nil {
		wrapped := fmt.Errorf("load crawled pages: %w", err)
		return fail(wrapped), analysis.NewStageError(s.Name(), analysis.KindInternal, wrapped)
	}

	prompt := s.buildPrompt(req, pages)
	content, err := complete(ctx, s.client, s.cfg, scoreSystemPrompt, prompt)
	if err != nil {
		wrapped := fmt.Errorf("score completion: %w", err)
		return fail(wrapped), analysis.NewStageError(s.Name(), classifyAPIErr(err), wrapped)
	}

	var parsed struct {
		OverallScore int            `json:"overall_score"`
		Dimensions   map[string]int `json:"dimensions"`
		Summary      string         `json:"summary"`
	}
	if err := decodeJSON(content, &parsed); err != nil {
		return fail(err), analysis.NewStageError(s.Name(), analysis.KindUpstream, err)
	}
	if parsed.OverallScore < 0 || parsed.OverallScore > 100 {
		err := fmt.Errorf("model score %d out of range", parsed.OverallScore)
		return fail(err), analysis.NewStageError(s.Name(), analysis.KindUpstream, err)
	}

	req.Results.Score = &analysis.ScoreSummary{
		OverallScore: parsed.OverallScore,
		Dimensions:   parsed.Dimensions,
		Summary:      parsed.Summary,
		Model:        s.cfg.Model,
	}
	s.logger.Info("visibility score computed",
		zap.String("domain", req.Domain),
		zap.Int("score", parsed.OverallScore),
	)
	return analysis.StageResult{Success: true}, nil
}

func (s *ScoreStage) buildPrompt(req pipeline.StageRequest, pages []analysis.ScratchPage) string {
	var audit, schema string
	if req.Results.Audit != nil {
		a := req.Results.Audit
		audit = fmt.Sprintf("pages crawled: %d, rendered: %d, total words: %d",
			a.PagesCrawled, a.PagesRendered, a.TotalWordCount)
	}
	if req.Results.Schema != nil {
		sc := req.Results.Schema
		schema = fmt.Sprintf("JSON-LD pages: %d/%d, OpenGraph pages: %d, meta descriptions: %d, coverage score: %d",
			sc.PagesWithJSONLD, sc.PagesScanned, sc.OpenGraphPages, sc.MetaDescriptionPages, sc.Score)
	}
	return fmt.Sprintf(
		"Site: %s\nCrawl summary: %s\nStructured data: %s\n\nPage excerpts:\n%s",
		req.Task.URL, audit, schema, pageExcerpts(pages, 1500, 12000),
	)
}

func fail(err error) analysis.StageResult {
	return analysis.StageResult{Success: false, Error: err.Error()}
}
