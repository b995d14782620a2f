// Package service implements the task, user and statistics operations on
// top of a store. Every task access is scoped through package scope.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harlequingg/task-tracker-api/internal/models"
	"github.com/harlequingg/task-tracker-api/internal/pagination"
	"github.com/harlequingg/task-tracker-api/internal/scope"
	"github.com/harlequingg/task-tracker-api/internal/storage"
	"github.com/harlequingg/task-tracker-api/internal/validator"
)

const notifyTimeout = 30 * time.Second

// Auditor records committed task mutations. Implementations must not
// block on or report write failures.
type Auditor interface {
	RecordCreate(ctx context.Context, taskID, actorID string, t *models.Task)
	RecordUpdate(ctx context.Context, taskID, actorID string, before *models.Task, patch *models.TaskPatch)
	RecordDelete(ctx context.Context, taskID, actorID string, snapshot *models.Task)
}

// Notifier tells a user they were assigned a task.
type Notifier interface {
	TaskAssigned(ctx context.Context, assignee *models.User, t *models.Task) error
}

type ListQuery struct {
	Filters scope.Filters
	Sort    pagination.Sort
	Window  pagination.Window
}

type TaskPage struct {
	Tasks      []models.Task   `json:"tasks"`
	Pagination pagination.Meta `json:"pagination"`
}

type TaskService struct {
	tasks    storage.TaskStore
	users    storage.UserStore
	auditor  Auditor
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewTaskService wires the task operations. notifier may be nil.
func NewTaskService(tasks storage.TaskStore, users storage.UserStore, auditor Auditor, notifier Notifier, logger *zap.Logger, now func() time.Time) *TaskService {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskService{
		tasks:    tasks,
		users:    users,
		auditor:  auditor,
		notifier: notifier,
		logger:   logger,
		now:      now,
	}
}

func (s *TaskService) List(ctx context.Context, p models.Principal, q ListQuery) (*TaskPage, error) {
	if err := q.Window.Validate(); err != nil {
		return nil, err
	}
	pred := scope.Resolve(p, q.Filters)
	tasks, err := s.tasks.FindTasks(ctx, pred, q.Sort, q.Window)
	if err != nil {
		return nil, fmt.Errorf("find tasks: %w", err)
	}
	total, err := s.tasks.CountTasks(ctx, pred)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	return &TaskPage{
		Tasks:      tasks,
		Pagination: pagination.NewMeta(q.Window, total),
	}, nil
}

func (s *TaskService) Get(ctx context.Context, p models.Principal, id string) (*models.Task, error) {
	if !validID(id) {
		return nil, models.ErrNotFound
	}
	t, err := s.tasks.GetTask(ctx, scope.ForRead(p, id))
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if t == nil {
		return nil, models.ErrNotFound
	}
	return t, nil
}

func (s *TaskService) Create(ctx context.Context, p models.Principal, patch *models.TaskPatch) (*models.Task, error) {
	v := validator.New()
	v.CheckTaskPatch(patch, s.now(), true)
	if err := v.Err(); err != nil {
		return nil, err
	}

	t := &models.Task{
		Status:    models.StatusTodo,
		Priority:  models.PriorityMedium,
		Tags:      []string{},
		CreatedBy: p.ID,
	}
	patch.Apply(t)
	if err := s.tasks.InsertTask(ctx, t); err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}

	s.auditor.RecordCreate(ctx, t.ID, p.ID, t)
	if t.Assignee != "" && t.Assignee != p.ID {
		s.notifyAssignee(ctx, t)
	}
	return t, nil
}

func (s *TaskService) Update(ctx context.Context, p models.Principal, id string, patch *models.TaskPatch) (*models.Task, error) {
	if !validID(id) {
		return nil, models.ErrNotFound
	}
	v := validator.New()
	v.CheckTaskPatch(patch, s.now(), false)
	if err := v.Err(); err != nil {
		return nil, err
	}

	pred := scope.ForWrite(p, id)
	before, err := s.tasks.GetTask(ctx, pred)
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if before == nil {
		return nil, models.ErrNotFound
	}
	updated, err := s.tasks.UpdateTask(ctx, pred, patch)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if updated == nil {
		// deleted between the read and the write
		return nil, models.ErrNotFound
	}

	s.auditor.RecordUpdate(ctx, id, p.ID, before, patch)
	if updated.Assignee != "" && updated.Assignee != before.Assignee && updated.Assignee != p.ID {
		s.notifyAssignee(ctx, updated)
	}
	return updated, nil
}

func (s *TaskService) Delete(ctx context.Context, p models.Principal, id string) error {
	if !validID(id) {
		return models.ErrNotFound
	}
	t, err := s.tasks.DeleteTask(ctx, scope.ForWrite(p, id))
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if t == nil {
		return models.ErrNotFound
	}
	s.auditor.RecordDelete(ctx, id, p.ID, t)
	return nil
}

// People resolves the creators and assignees of tasks by id. A lookup
// failure is logged and leaves every user unresolved.
func (s *TaskService) People(ctx context.Context, tasks ...models.Task) map[string]models.User {
	var ids []string
	seen := make(map[string]bool)
	for _, t := range tasks {
		for _, id := range []string{t.CreatedBy, t.Assignee} {
			if id != "" && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}
	users, err := s.users.LookupUsers(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to resolve task users", zap.Error(err))
		return nil
	}
	return users
}

// notifyAssignee mails the assignee of t in the background. Failures are
// logged only.
func (s *TaskService) notifyAssignee(ctx context.Context, t *models.Task) {
	if s.notifier == nil {
		return
	}
	task := *t
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("task service closed, assignee not notified",
			zap.String("task_id", task.ID), zap.String("assignee", task.Assignee))
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()

		u, err := s.users.GetUserByID(ctx, task.Assignee)
		if err != nil || u == nil {
			s.logger.Warn("failed to load task assignee",
				zap.String("task_id", task.ID), zap.String("assignee", task.Assignee), zap.Error(err))
			return
		}
		if err := s.notifier.TaskAssigned(ctx, u, &task); err != nil {
			s.logger.Warn("failed to notify task assignee",
				zap.String("task_id", task.ID), zap.String("assignee", task.Assignee), zap.Error(err))
		}
	}()
}

// Close stops sending notifications and waits for pending ones or for ctx
// to be done. Task operations keep working after Close.
func (s *TaskService) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
