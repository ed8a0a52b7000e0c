package score

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
	"github.com/searchpulse/geo-analyzer/internal/pipeline"
)

const claimsSystemPrompt = `You review marketing copy for claims that could mislead AI engines or
readers. Reply with JSON only, no prose, in the shape:
{"claims": [{"text": "<verbatim claim>", "risk": "low|medium|high", "rationale": "<one sentence>"}]}`

// ClaimsStage asks the model to flag risky marketing claims found in the
// crawled copy.
type ClaimsStage struct {
	client  ChatClient
	scratch analysis.Scratch
	cfg     Config
	logger  *zap.Logger
}

func NewClaimsStage(client ChatClient, scratch analysis.Scratch, cfg Config, logger *zap.Logger) *ClaimsStage {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimsStage{client: client, scratch: scratch, cfg: cfg.withDefaults(), logger: logger}
}

// Name implements pipeline.Stage.
func (c *ClaimsStage) Name() string { return "claims_review" }

// Run prompts the model with page excerpts and records the flagged claims.
func (c *ClaimsStage) Run(ctx context.Context, req pipeline.StageRequest) (analysis.StageResult, error) {
	pages, err := c.scratch.PagesForDomain(ctx, req.Domain)
	if err != nil {
		wrapped := fmt.Errorf("load crawled pages: %w", err)
		return fail(wrapped), analysis.NewStageError(c.Name(), analysis.KindInternal, wrapped)
	}

	prompt := fmt.Sprintf("Site: %s\n\nPage excerpts:\n%s",
		req.Task.URL, pageExcerpts(pages, 2000, 16000))
	content, err := complete(ctx, c.client, c.cfg, claimsSystemPrompt, prompt)
	if err != nil {
		wrapped := fmt.Errorf("claims completion: %w", err)
		return fail(wrapped), analysis.NewStageError(c.Name(), classifyAPIErr(err), wrapped)
	}

	var parsed struct {
		Claims []analysis.Claim `json:"claims"`
	}
	if err := decodeJSON(content, &parsed); err != nil {
		return fail(err), analysis.NewStageError(c.Name(), analysis.KindUpstream, err)
	}

	summary := &analysis.ClaimsSummary{
		Claims: parsed.Claims,
		Model:  c.cfg.Model,
	}
	for _, claim := range parsed.Claims {
		if strings.EqualFold(claim.Risk, "high") {
			summary.HighRiskCount++
		}
	}
	req.Results.Claims = summary
	c.logger.Info("claims review finished",
		zap.String("domain", req.Domain),
		zap.Int("claims", len(parsed.Claims)),
		zap.Int("high_risk", summary.HighRiskCount),
	)
	return analysis.StageResult{Success: true}, nil
}
