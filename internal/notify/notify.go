// Package notify delivers completion emails over Amazon SES.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
)

// SESAPI is the slice of the SES v2 client the notifier uses. Tests
// substitute a fake.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Config controls the sender identity.
type Config struct {
	FromAddress string
	ReplyTo     string
}

// SESNotifier sends completion emails through SES.
type SESNotifier struct {
	client SESAPI
	cfg    Config
	logger *zap.Logger
}

// NewSESNotifier constructs the notifier.
func NewSESNotifier(client SESAPI, cfg Config, logger *zap.Logger) (*SESNotifier, error) {
	if client == nil {
		return nil, fmt.Errorf("ses client is required")
	}
	if cfg.FromAddress == "" {
		return nil, fmt.Errorf("from address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SESNotifier{client: client, cfg: cfg, logger: logger}, nil
}

// Send delivers the completion email for one finished analysis.
func (n *SESNotifier) Send(ctx context.Context, note analysis.Notification) error {
	subject := fmt.Sprintf("Your AI visibility report for %s is ready", note.URL)
	body := buildBody(note)

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(n.cfg.FromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{note.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body)},
				},
			},
		},
	}
	if n.cfg.ReplyTo != "" {
		input.ReplyToAddresses = []string{n.cfg.ReplyTo}
	}

	if _, err := n.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("send completion email: %w", err)
	}
	n.logger.Info("completion email sent",
		zap.String("task_id", note.TaskID),
		zap.String("to", note.To),
	)
	return nil
}

func buildBody(note analysis.Notification) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your analysis of %s has finished.\n\n", note.URL)
	if note.ArchiveURI != "" {
		fmt.Fprintf(&b, "Report archive: %s\n\n", note.ArchiveURI)
	} else if note.ReportDirectory != "" {
		fmt.Fprintf(&b, "Report location: %s\n\n", note.ReportDirectory)
	}

	names := make([]string, 0, len(note.Steps))
	for name := range note.Steps {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		b.WriteString("Stages:\n")
		for _, name := range names {
			step := note.Steps[name]
			outcome := "ok"
			if !step.Success {
				outcome = "failed: " + step.Error
			}
			fmt.Fprintf(&b, "  %-24s %s\n", name, outcome)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Reference: %s\n", note.TaskID)
	return b.String()
}
