// Package score implements the LLM-backed stages: the AI visibility score
// and the marketing-claims review.
package score

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
)

// ChatClient is the slice of the OpenAI client the stages need. Tests
// substitute a fake.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config controls model selection for both LLM stages.
type Config struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = openai.GPT4oMini
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 2048
	}
	return c
}

// complete sends one system+user exchange and returns the raw assistant
// content.
func complete(ctx context.Context, client ChatClient, cfg Config, system, user string) (string, error) {
	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// decodeJSON parses an assistant reply into out, tolerating markdown code
// fences around the JSON body.
func decodeJSON(content string, out any) error {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	if err := json.Unmarshal([]byte(trimmed), out); err != nil {
		return fmt.Errorf("decode model reply: %w", err)
	}
	return nil
}

// classifyAPIErr maps OpenAI client failures onto error kinds. Timeouts are
// transient; API-side failures are not worth retrying with the same input.
func classifyAPIErr(err error) analysis.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return analysis.KindTimeout
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return analysis.KindUpstream
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") {
		return analysis.KindTimeout
	}
	if strings.Contains(msg, "connection") || strings.Contains(msg, "no such host") {
		return analysis.KindNetwork
	}
	return analysis.KindUpstream
}

// pageExcerpts assembles a bounded plain-text digest of the crawled pages
// for prompting. maxPerPage and maxTotal bound the prompt size.
func pageExcerpts(pages []analysis.ScratchPage, maxPerPage, maxTotal int) string {
	var b strings.Builder
	for _, p := range pages {
		if b.Len() >= maxTotal {
			break
		}
		text := visibleText(p.HTML)
		if len(text) > maxPerPage {
			text = text[:maxPerPage]
		}
		fmt.Fprintf(&b, "## %s (%s)\n%s\n\n", p.Title, p.URL, text)
	}
	out := b.String()
	if len(out) > maxTotal {
		out = out[:maxTotal]
	}
	return out
}

func visibleText(html string) string {
	text := scriptRe.ReplaceAllString(html, " ")
	text = tagRe.ReplaceAllString(text, " ")
	return strings.Join(strings.Fields(text), " ")
}
