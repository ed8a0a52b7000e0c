// Package queue implements the single-consumer analysis queue: admission
// control, FIFO scheduling with front-of-queue retry re-entry, durable
// status mirroring, and per-task scratch cleanup.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
	"github.com/searchpulse/geo-analyzer/internal/metrics"
)

// ErrInvalidInput marks a submission rejected before admission.
var ErrInvalidInput = errors.New("invalid analysis request")

// Config controls queue behavior.
type Config struct {
	// MaxRetries bounds retries per task; a task is attempted at most
	// MaxRetries+1 times.
	MaxRetries int
	// RetryBackoff is the base backoff; attempt n waits n*RetryBackoff.
	RetryBackoff time.Duration
	// StatusCacheSize bounds the in-memory status cache. Evicted entries
	// are still reachable through the durable store.
	StatusCacheSize int
	// ReconcileMaxAge keeps very old terminal records out of the cache
	// during reconciliation.
	ReconcileMaxAge time.Duration
	// PersistTimeout bounds each fire-and-forget mirror write.
	PersistTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxRetries == 0 {
		c.MaxRetries = 2
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 5 * time.Second
	}
	if c.StatusCacheSize <= 0 {
		c.StatusCacheSize = 4096
	}
	if c.ReconcileMaxAge <= 0 {
		c.ReconcileMaxAge = 24 * time.Hour
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 10 * time.Second
	}
	return c
}

// Deps are the collaborators the queue orchestrates. Pipeline, Scratch,
// and Clock are required; the rest degrade to no-ops when nil.
type Deps struct {
	Store     analysis.RecordStore
	Scratch   analysis.Scratch
	Pipeline  analysis.Pipeline
	Notifier  analysis.Notifier
	Publisher analysis.Publisher
	Archiver  analysis.Archiver
	Clock     analysis.Clock
	Logger    *zap.Logger
}

// SubmitResult reports the admission outcome.
type SubmitResult struct {
	Duplicate bool
	TaskID    string
	Status    analysis.TaskStatus
}

// ReconcileResult reports how many durable records were restored.
type ReconcileResult struct {
	Restored        int `json:"restored"`
	TotalConsidered int `json:"totalConsidered"`
}

// TaskRef is the introspection view of one queued or running task.
type TaskRef struct {
	TaskID     string    `json:"taskId"`
	Email      string    `json:"email"`
	URL        string    `json:"url"`
	RetryCount int       `json:"retryCount"`
	QueuedAt   time.Time `json:"queuedAt"`
}

// Snapshot is returned by the queue introspection endpoint.
type Snapshot struct {
	QueueLength  int       `json:"queueLength"`
	IsProcessing bool      `json:"isProcessing"`
	CurrentTask  *TaskRef  `json:"currentTask"`
	QueueItems   []TaskRef `json:"queueItems"`
}

// queuedTask pairs a task with the earliest instant it may start. Retried
// tasks re-enter at the front with notBefore in the future, so the consumer
// waits out the backoff instead of skipping ahead to younger tasks.
type queuedTask struct {
	task      *analysis.Task
	notBefore time.Time
}

// Queue is the in-process analysis queue. Exactly one consumer goroutine
// drains it, so at most one task is ever processing per process.
type Queue struct {
	cfg       Config
	store     analysis.RecordStore
	scratch   analysis.Scratch
	pipeline  analysis.Pipeline
	notifier  analysis.Notifier
	publisher analysis.Publisher
	archiver  analysis.Archiver
	clock     analysis.Clock
	logger    *zap.Logger

	mu      sync.Mutex
	items   []queuedTask
	cache   *statusCache
	current *analysis.Task

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New constructs a Queue and starts its consumer goroutine.
func New(cfg Config, deps Deps) (*Queue, error) {
	if deps.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if deps.Scratch == nil {
		return nil, fmt.Errorf("scratch store is required")
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	cache, err := newStatusCache(cfg.StatusCacheSize)
	if err != nil {
		return nil, fmt.Errorf("status cache: %w", err)
	}
	q := &Queue{
		cfg:       cfg,
		store:     deps.Store,
		scratch:   deps.Scratch,
		pipeline:  deps.Pipeline,
		notifier:  deps.Notifier,
		publisher: deps.Publisher,
		archiver:  deps.Archiver,
		clock:     deps.Clock,
		logger:    logger,
		cache:     cache,
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go q.run()
	return q, nil
}

// Submit admits one (email, url) pair. If the derived task identity is
// already queued, processing, or mid-notification, it returns Duplicate
// with the current status and does not enqueue a second run.
func (q *Queue) Submit(ctx context.Context, email, rawURL string) (SubmitResult, error) {
	_ = ctx
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return SubmitResult{}, fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	normalized, err := analysis.NormalizeURL(rawURL)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	id := analysis.TaskID(email, normalized)
	now := q.clock.Now().UTC()

	q.mu.Lock()
	if st, ok := q.cache.get(id); ok && st.Active() {
		q.mu.Unlock()
		return SubmitResult{Duplicate: true, TaskID: id, Status: st}, nil
	}
	st := analysis.TaskStatus{
		TaskID:      id,
		Email:       email,
		URL:         normalized,
		Status:      analysis.StatusQueued,
		EmailStatus: analysis.EmailPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	q.cache.put(st)
	task := &analysis.Task{ID: id, Email: email, URL: normalized, QueuedAt: now}
	q.items = append(q.items, queuedTask{task: task})
	depth := len(q.items)
	q.mu.Unlock()

	metrics.SetQueueDepth(depth)
	q.persistAsync(st, true)
	q.signal()
	q.logger.Info("task queued", zap.String("task_id", id), zap.String("url", normalized))
	return SubmitResult{TaskID: id, Status: st}, nil
}

// Status returns the cached status for a task, falling back to a durable
// store read when the cache has evicted the entry.
func (q *Queue) Status(ctx context.Context, taskID string) (analysis.TaskStatus, bool) {
	q.mu.Lock()
	st, ok := q.cache.get(taskID)
	q.mu.Unlock()
	if ok {
		return st, true
	}
	if q.store == nil {
		return analysis.TaskStatus{}, false
	}
	rec, err := q.store.GetRecord(ctx, taskID)
	if err != nil {
		if !errors.Is(err, analysis.ErrNotFound) {
			q.logger.Warn("status read-through failed", zap.String("task_id", taskID), zap.Error(err))
		}
		return analysis.TaskStatus{}, false
	}
	q.mu.Lock()
	if _, exists := q.cache.get(taskID); !exists {
		q.cache.put(rec)
	}
	q.mu.Unlock()
	return rec, true
}

// StatusesForEmail returns all cached statuses for an email, newest first.
func (q *Queue) StatusesForEmail(email string) []analysis.TaskStatus {
	email = strings.ToLower(strings.TrimSpace(email))
	q.mu.Lock()
	all := q.cache.values()
	q.mu.Unlock()
	out := make([]analysis.TaskStatus, 0, 4)
	for _, st := range all {
		if strings.ToLower(st.Email) == email {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out
}

// Snapshot reports queue depth and the in-flight task for introspection.
func (q *Queue) Snapshot() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	snap := Snapshot{
		QueueLength:  len(q.items),
		IsProcessing: q.current != nil,
		QueueItems:   make([]TaskRef, 0, len(q.items)),
	}
	if q.current != nil {
		ref := taskRef(q.current)
		snap.CurrentTask = &ref
	}
	for _, it := range q.items {
		snap.QueueItems = append(snap.QueueItems, taskRef(it.task))
	}
	return snap
}

// Reconcile rebuilds the status cache from the durable store after a
// restart. Records already cached are skipped; terminal records older than
// ReconcileMaxAge stay out of the cache.
func (q *Queue) Reconcile(ctx context.Context, lookback time.Duration) (ReconcileResult, error) {
	if q.store == nil {
		return ReconcileResult{}, fmt.Errorf("no record store configured")
	}
	now := q.clock.Now().UTC()
	records, err := q.store.ListCreatedSince(ctx, now.Add(-lookback))
	if err != nil {
		return ReconcileResult{}, fmt.Errorf("list analysis records: %w", err)
	}
	res := ReconcileResult{TotalConsidered: len(records)}
	for _, rec := range records {
		q.mu.Lock()
		if _, exists := q.cache.get(rec.TaskID); exists {
			q.mu.Unlock()
			continue
		}
		if rec.Status.Terminal() && now.Sub(rec.UpdatedAt) > q.cfg.ReconcileMaxAge {
			q.mu.Unlock()
			continue
		}
		q.cache.put(rec)
		q.mu.Unlock()
		res.Restored++
	}
	metrics.ObserveReconciled(res.Restored)
	q.logger.Info("reconciliation finished",
		zap.Int("restored", res.Restored),
		zap.Int("considered", res.TotalConsidered),
	)
	return res, nil
}

// Close stops the consumer after the in-flight task finishes. If ctx
// expires first, the scratch store is cleared anyway so the next process
// start does not inherit contaminated working state.
func (q *Queue) Close(ctx context.Context) error {
	q.stopOnce.Do(func() { close(q.stop) })
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		q.cleanupScratch(cleanupCtx)
		return fmt.Errorf("queue drain: %w", ctx.Err())
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.stop:
			return
		default:
		}
		qt, ok := q.pop()
		if !ok {
			select {
			case <-q.wake:
				continue
			case <-q.stop:
				return
			}
		}
		if d := time.Until(qt.notBefore); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-timer.C:
			case <-q.stop:
				timer.Stop()
				q.pushFront(qt)
				return
			}
		}
		q.process(qt.task)
	}
}

func (q *Queue) process(task *analysis.Task) {
	ctx := context.Background()
	task.ProcessingStartedAt = q.clock.Now().UTC()
	q.mu.Lock()
	q.current = task
	q.mu.Unlock()
	q.patch(task.ID, func(st *analysis.TaskStatus) {
		st.Status = analysis.StatusProcessing
		st.RetryCount = task.RetryCount
	})
	q.logger.Info("task processing started",
		zap.String("task_id", task.ID),
		zap.String("url", task.URL),
		zap.Int("attempt", task.RetryCount+1),
	)
	defer func() {
		q.mu.Lock()
		q.current = nil
		q.mu.Unlock()
		// Runs after every outcome, before the next task is popped.
		q.cleanupScratch(ctx)
	}()

	res, err := q.pipeline.Run(ctx, *task)
	if err != nil {
		q.handleFailure(task, err)
		return
	}

	q.patch(task.ID, func(st *analysis.TaskStatus) {
		st.Status = analysis.StatusCompleted
		st.ReportDirectory = res.ReportDirectory
		st.Error = ""
	})
	metrics.ObserveTask("completed")
	q.publish(task, analysis.StatusCompleted)
	archiveURI := q.archive(ctx, task, res)
	q.notify(ctx, task, res, archiveURI)
	q.logger.Info("task completed",
		zap.String("task_id", task.ID),
		zap.String("report_dir", res.ReportDirectory),
	)
}

func (q *Queue) handleFailure(task *analysis.Task, err error) {
	if task.RetryCount < q.cfg.MaxRetries && Retryable(err) {
		task.RetryCount++
		delay := q.cfg.RetryBackoff * time.Duration(task.RetryCount)
		q.patch(task.ID, func(st *analysis.TaskStatus) {
			st.Status = analysis.StatusQueued
			st.RetryCount = task.RetryCount
			st.Error = err.Error()
		})
		metrics.ObserveRetry()
		q.logger.Warn("retryable task failure, requeueing at front",
			zap.String("task_id", task.ID),
			zap.Int("retry", task.RetryCount),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		q.pushFront(queuedTask{task: task, notBefore: time.Now().Add(delay)})
		q.signal()
		return
	}
	q.patch(task.ID, func(st *analysis.TaskStatus) {
		st.Status = analysis.StatusFailed
		st.Error = err.Error()
	})
	metrics.ObserveTask("failed")
	q.publish(task, analysis.StatusFailed)
	q.logger.Error("task failed",
		zap.String("task_id", task.ID),
		zap.Int("retries", task.RetryCount),
		zap.Error(err),
	)
}

func (q *Queue) notify(ctx context.Context, task *analysis.Task, res analysis.PipelineResult, archiveURI string) {
	if q.notifier == nil {
		return
	}
	q.patch(task.ID, func(st *analysis.TaskStatus) {
		st.EmailStatus = analysis.EmailSending
	})
	n := analysis.Notification{
		To:              task.Email,
		TaskID:          task.ID,
		URL:             task.URL,
		ReportDirectory: res.ReportDirectory,
		ArchiveURI:      archiveURI,
		Steps:           res.Steps,
	}
	if err := q.notifier.Send(ctx, n); err != nil {
		q.patch(task.ID, func(st *analysis.TaskStatus) {
			st.EmailStatus = analysis.EmailFailed
			st.EmailError = err.Error()
		})
		metrics.ObserveEmail("failed")
		q.logger.Warn("completion email failed",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
		return
	}
	q.patch(task.ID, func(st *analysis.TaskStatus) {
		st.EmailStatus = analysis.EmailSent
		st.EmailError = ""
	})
	metrics.ObserveEmail("sent")
}

func (q *Queue) archive(ctx context.Context, task *analysis.Task, res analysis.PipelineResult) string {
	if q.archiver == nil || res.ReportDirectory == "" {
		return ""
	}
	uri, err := q.archiver.ArchiveDir(ctx, task.ID, res.ReportDirectory)
	if err != nil {
		q.logger.Warn("report archive upload failed",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
		return ""
	}
	return uri
}

func (q *Queue) publish(task *analysis.Task, status analysis.Status) {
	if q.publisher == nil {
		return
	}
	evt := analysis.TaskEvent{
		TaskID: task.ID,
		Email:  task.Email,
		URL:    task.URL,
		Status: status,
		At:     q.clock.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.PersistTimeout)
	defer cancel()
	if err := q.publisher.Publish(ctx, evt); err != nil {
		q.logger.Warn("task event publish failed", zap.String("task_id", task.ID), zap.Error(err))
	}
}

func (q *Queue) cleanupScratch(ctx context.Context) {
	if err := q.scratch.Clear(ctx); err != nil {
		metrics.ObserveScratchClearFailure()
		q.logger.Warn("scratch cleanup failed", zap.Error(err))
	}
}

// patch applies a mutation to the cached status and mirrors it to the
// durable store without waiting for the write.
func (q *Queue) patch(taskID string, mutate func(*analysis.TaskStatus)) {
	q.mu.Lock()
	st, ok := q.cache.get(taskID)
	if !ok {
		q.mu.Unlock()
		q.logger.Warn("status patch for unknown task", zap.String("task_id", taskID))
		return
	}
	mutate(&st)
	st.UpdatedAt = q.clock.Now().UTC()
	q.cache.put(st)
	q.mu.Unlock()
	q.persistAsync(st, false)
}

func (q *Queue) persistAsync(st analysis.TaskStatus, create bool) {
	if q.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), q.cfg.PersistTimeout)
		defer cancel()
		var err error
		if create {
			err = q.store.CreateRecord(ctx, st)
		} else {
			err = q.store.UpdateRecord(ctx, st)
		}
		if err != nil {
			q.logger.Warn("analysis record mirror write failed",
				zap.String("task_id", st.TaskID),
				zap.Bool("create", create),
				zap.Error(err),
			)
		}
	}()
}

func (q *Queue) pop() (queuedTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return queuedTask{}, false
	}
	head := q.items[0]
	q.items = q.items[1:]
	metrics.SetQueueDepth(len(q.items))
	return head, true
}

func (q *Queue) pushFront(qt queuedTask) {
	q.mu.Lock()
	q.items = append([]queuedTask{qt}, q.items...)
	metrics.SetQueueDepth(len(q.items))
	q.mu.Unlock()
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func taskRef(t *analysis.Task) TaskRef {
	return TaskRef{
		TaskID:     t.ID,
		Email:      t.Email,
		URL:        t.URL,
		RetryCount: t.RetryCount,
		QueuedAt:   t.QueuedAt,
	}
}
