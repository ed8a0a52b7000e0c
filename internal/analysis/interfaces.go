package analysis

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by record stores when no record matches.
var ErrNotFound = errors.New("analysis record not found")

// RecordStore persists one AnalysisRecord per task. Writes from the queue
// are fire-and-forget: the in-memory cache is authoritative while the
// process lives, and the store may lag behind it.
type RecordStore interface {
	// CreateRecord inserts the record, replacing any previous record with
	// the same task ID (resubmission after completion reuses the identity).
	CreateRecord(ctx context.Context, rec TaskStatus) error
	UpdateRecord(ctx context.Context, rec TaskStatus) error
	GetRecord(ctx context.Context, taskID string) (TaskStatus, error)
	ListByEmail(ctx context.Context, email string) ([]TaskStatus, error)
	ListCreatedSince(ctx context.Context, since time.Time) ([]TaskStatus, error)
}

// Scratch is the shared working store the audit stage fills and the schema
// stage reads. Clear empties it between tasks; rows are keyed by domain so
// leftovers would leak into the next task's stage lookups.
type Scratch interface {
	PutPage(ctx context.Context, page ScratchPage) error
	PagesForDomain(ctx context.Context, domain string) ([]ScratchPage, error)
	Clear(ctx context.Context) error
}

// Pipeline runs the full analysis for one task. A non-nil error means a
// required stage failed; the result still carries the per-stage audit map.
type Pipeline interface {
	Run(ctx context.Context, task Task) (PipelineResult, error)
}

// Notifier delivers the completion email. Errors are recorded in the email
// status only and never affect the task outcome.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Publisher pushes terminal task events to a message bus.
type Publisher interface {
	Publish(ctx context.Context, evt TaskEvent) error
}

// Archiver uploads a finished report directory and returns its URI.
type Archiver interface {
	ArchiveDir(ctx context.Context, taskID, dir string) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
