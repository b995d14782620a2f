// Package audit appends activity records for committed task mutations.
//
// Recording is best-effort. The Record methods return nothing: the write
// runs in the background, detached from the caller's cancellation, and a
// failure only reaches the FailureHandler and the failure counter.
package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/harlequingg/task-tracker-api/internal/models"
	"github.com/harlequingg/task-tracker-api/internal/storage"
)

const DefaultTimeout = 5 * time.Second

// ErrClosed is reported for records made after Close.
var ErrClosed = errors.New("audit: auditor closed")

// FailureHandler observes an activity record that could not be written.
type FailureHandler func(entry models.ActivityLog, err error)

type Options struct {
	// Now stamps records. Defaults to time.Now.
	Now func() time.Time
	// Timeout bounds each write. Defaults to DefaultTimeout.
	Timeout time.Duration
	// OnFailure is called after the failure is logged.
	OnFailure FailureHandler
}

type Auditor struct {
	store     storage.ActivityStore
	logger    *zap.Logger
	now       func() time.Time
	timeout   time.Duration
	onFailure FailureHandler

	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	failures atomic.Int64
}

func New(store storage.ActivityStore, logger *zap.Logger, opts Options) *Auditor {
	a := &Auditor{
		store:     store,
		logger:    logger,
		now:       opts.Now,
		timeout:   opts.Timeout,
		onFailure: opts.OnFailure,
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.timeout <= 0 {
		a.timeout = DefaultTimeout
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a
}

// RecordCreate records the initial field snapshot of a created task.
func (a *Auditor) RecordCreate(ctx context.Context, taskID, actorID string, t *models.Task) {
	a.record(ctx, models.ActivityLog{
		TaskID:  taskID,
		UserID:  actorID,
		Action:  models.ActionCreate,
		Changes: Snapshot(t),
	})
}

// RecordUpdate records the diff between before and the submitted fields
// of patch. A patch that changes nothing is still recorded.
func (a *Auditor) RecordUpdate(ctx context.Context, taskID, actorID string, before *models.Task, patch *models.TaskPatch) {
	a.record(ctx, models.ActivityLog{
		TaskID:  taskID,
		UserID:  actorID,
		Action:  models.ActionUpdate,
		Changes: Diff(before, patch),
	})
}

// RecordDelete records the title of a deleted task.
func (a *Auditor) RecordDelete(ctx context.Context, taskID, actorID string, snapshot *models.Task) {
	a.record(ctx, models.ActivityLog{
		TaskID:  taskID,
		UserID:  actorID,
		Action:  models.ActionDelete,
		Changes: map[string]any{"deletedTask": snapshot.Title},
	})
}

func (a *Auditor) record(ctx context.Context, entry models.ActivityLog) {
	entry.Timestamp = a.now()
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.fail(entry, ErrClosed)
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		if err := a.store.InsertActivity(ctx, &entry); err != nil {
			a.fail(entry, err)
		}
	}()
}

func (a *Auditor) fail(entry models.ActivityLog, err error) {
	a.failures.Add(1)
	a.logger.Warn("failed to log activity",
		zap.String("task_id", entry.TaskID),
		zap.String("user_id", entry.UserID),
		zap.String("action", string(entry.Action)),
		zap.Error(err))
	if a.onFailure != nil {
		a.onFailure(entry, err)
	}
}

// Failures returns how many records could not be written.
func (a *Auditor) Failures() int64 {
	return a.failures.Load()
}

// Close stops accepting records and waits for pending writes to finish or
// for ctx to be done. Records made after Close fail with ErrClosed.
func (a *Auditor) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
