// Package storage declares the entity store used by the services. The
// memory, postgres and mongo subpackages implement it.
//
// Single-entity lookups return a nil entity and a nil error when nothing
// matches. Every write to a single task is atomic; nothing spans
// documents.
package storage

import (
	"context"
	"time"

	"github.com/harlequingg/task-tracker-api/internal/models"
	"github.com/harlequingg/task-tracker-api/internal/pagination"
	"github.com/harlequingg/task-tracker-api/internal/scope"
)

// QueryTimeout bounds every store call.
const QueryTimeout = 5 * time.Second

// GroupField is a task attribute counts can be grouped by.
type GroupField string

const (
	GroupByStatus   GroupField = "status"
	GroupByPriority GroupField = "priority"
)

type TaskStore interface {
	InsertTask(ctx context.Context, t *models.Task) error
	FindTasks(ctx context.Context, pred scope.Predicate, sort pagination.Sort, w pagination.Window) ([]models.Task, error)
	CountTasks(ctx context.Context, pred scope.Predicate) (int64, error)
	GetTask(ctx context.Context, pred scope.Predicate) (*models.Task, error)
	// UpdateTask applies patch to the single task matched by pred and
	// returns the updated task.
	UpdateTask(ctx context.Context, pred scope.Predicate, patch *models.TaskPatch) (*models.Task, error)
	// DeleteTask removes the single task matched by pred and returns it.
	DeleteTask(ctx context.Context, pred scope.Predicate) (*models.Task, error)
	GroupCountTasks(ctx context.Context, pred scope.Predicate, field GroupField) (map[string]int64, error)
	// TaskTitles resolves task ids to titles. Unknown ids are absent from
	// the result.
	TaskTitles(ctx context.Context, ids []string) (map[string]string, error)
}

type UserStore interface {
	// InsertUser fails with models.ErrDuplicateEmail when the email is taken.
	InsertUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context, w pagination.Window) ([]models.User, error)
	CountUsers(ctx context.Context) (int64, error)
	UpdateUserRole(ctx context.Context, id string, role models.Role) (*models.User, error)
	// LookupUsers resolves user ids. Unknown ids are absent from the result.
	LookupUsers(ctx context.Context, ids []string) (map[string]models.User, error)
}

type ActivityStore interface {
	InsertActivity(ctx context.Context, l *models.ActivityLog) error
	// RecentActivity returns the newest entries first. An empty actorID
	// returns every actor's entries.
	RecentActivity(ctx context.Context, actorID string, limit int) ([]models.ActivityLog, error)
}

// Store bundles the three stores and the lifecycle of the backend.
type Store interface {
	TaskStore
	UserStore
	ActivityStore
	Close(ctx context.Context) error
}
