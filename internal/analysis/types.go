// Package analysis defines core types shared across subsystems.
package analysis

import "time"

// Status represents the lifecycle state of an analysis task.
type Status string

// Task status values persisted in the record store.
const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// EmailStatus tracks the completion notification independently of the task
// outcome. A delivery failure never downgrades a completed task.
type EmailStatus string

// Email status values.
const (
	EmailPending EmailStatus = "pending"
	EmailSending EmailStatus = "sending"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
)

// Task is the in-memory unit of work for one (email, url) pair. Its ID is
// deterministic, so resubmitting the same pair collides onto the same task.
type Task struct {
	ID                  string    `json:"taskId"`
	Email               string    `json:"email"`
	URL                 string    `json:"url"`
	QueuedAt            time.Time `json:"queuedAt"`
	ProcessingStartedAt time.Time `json:"processingStartedAt,omitzero"`
	RetryCount          int       `json:"retryCount"`
}

// TaskStatus is the status record cached in memory and mirrored to the
// durable store on every patch. The mirror is best-effort and may lag.
type TaskStatus struct {
	TaskID          string      `json:"taskId"`
	Email           string      `json:"email"`
	URL             string      `json:"url"`
	Status          Status      `json:"status"`
	EmailStatus     EmailStatus `json:"emailStatus"`
	ReportDirectory string      `json:"reportDirectory,omitempty"`
	Error           string      `json:"error,omitempty"`
	EmailError      string      `json:"emailError,omitempty"`
	RetryCount      int         `json:"retryCount"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// Active reports whether the task is queued, running, or mid-notification.
// Admission control rejects new submissions while their identity is active.
func (s TaskStatus) Active() bool {
	if s.Status == StatusQueued || s.Status == StatusProcessing {
		return true
	}
	return s.EmailStatus == EmailSending
}

// StageResult records the outcome of one pipeline stage. Report stages also
// populate Path with the generated artifact.
type StageResult struct {
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Path       string `json:"path,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// PipelineResult is returned by one full pipeline invocation. Steps records
// every attempted stage so callers can audit partial failures.
type PipelineResult struct {
	Success         bool                   `json:"success"`
	Steps           map[string]StageResult `json:"steps"`
	ReportDirectory string                 `json:"reportDirectory,omitempty"`
}

// ScratchPage is one crawled page in the shared working store. Rows are
// keyed by domain, not task, which is why the queue clears the scratch
// store after every task.
type ScratchPage struct {
	Domain     string    `json:"domain"`
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	HTML       string    `json:"html"`
	Title      string    `json:"title"`
	WordCount  int       `json:"word_count"`
	Rendered   bool      `json:"rendered"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// ResultSet accumulates structured stage outputs as the pipeline runs.
// Each required stage fills its own slot; report stages read all of them.
type ResultSet struct {
	Audit  *AuditSummary  `json:"audit,omitempty"`
	Schema *SchemaSummary `json:"schema,omitempty"`
	Score  *ScoreSummary  `json:"score,omitempty"`
	Claims *ClaimsSummary `json:"claims,omitempty"`
}

// PageSummary is the per-page slice of an audit kept in the result set.
type PageSummary struct {
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
	Title      string `json:"title"`
	WordCount  int    `json:"word_count"`
	Rendered   bool   `json:"rendered"`
}

// AuditSummary is produced by the site-audit stage.
type AuditSummary struct {
	Domain          string        `json:"domain"`
	EntryURL        string        `json:"entry_url"`
	EntryStatusCode int           `json:"entry_status_code"`
	PagesCrawled    int           `json:"pages_crawled"`
	PagesRendered   int           `json:"pages_rendered"`
	TotalWordCount  int           `json:"total_word_count"`
	Pages           []PageSummary `json:"pages"`
}

// SchemaSummary is produced by the structured-data (GEO) stage.
type SchemaSummary struct {
	PagesScanned         int `json:"pages_scanned"`
	JSONLDBlocks         int `json:"jsonld_blocks"`
	PagesWithJSONLD      int `json:"pages_with_jsonld"`
	OpenGraphPages       int `json:"open_graph_pages"`
	MetaDescriptionPages int `json:"meta_description_pages"`
	Score                int `json:"score"`
}

// ScoreSummary is produced by the AI visibility scoring stage.
type ScoreSummary struct {
	OverallScore int            `json:"overall_score"`
	Dimensions   map[string]int `json:"dimensions,omitempty"`
	Summary      string         `json:"summary"`
	Model        string         `json:"model"`
}

// Claim is a single flagged marketing claim.
type Claim struct {
	Text      string `json:"text"`
	Risk      string `json:"risk"`
	Rationale string `json:"rationale"`
}

// ClaimsSummary is produced by the risk/claims stage.
type ClaimsSummary struct {
	Claims        []Claim `json:"claims"`
	HighRiskCount int     `json:"high_risk_count"`
	Model         string  `json:"model"`
}

// Notification describes the completion email for one finished task.
type Notification struct {
	To              string
	TaskID          string
	URL             string
	ReportDirectory string
	ArchiveURI      string
	Steps           map[string]StageResult
}

// TaskEvent is published to the event bus when a task reaches a terminal
// state.
type TaskEvent struct {
	TaskID string    `json:"task_id"`
	Email  string    `json:"email"`
	URL    string    `json:"url"`
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
}
