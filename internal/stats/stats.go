// Package stats derives task statistics under the same visibility rules as
// task listing.
package stats

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harlequingg/task-tracker-api/internal/models"
	"github.com/harlequingg/task-tracker-api/internal/scope"
	"github.com/harlequingg/task-tracker-api/internal/storage"
)

// RecentActivityLimit is how many activity entries an overview carries.
const RecentActivityLimit = 10

type TaskRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Activity is an activity record with its actor and task resolved. A
// reference is nil when its entity no longer exists or could not be
// loaded.
type Activity struct {
	models.ActivityLog
	User *models.UserRef `json:"user"`
	Task *TaskRef `json:"task"`
}

type Overview struct {
	TasksByStatus   map[models.Status]int64   `json:"tasksByStatus"`
	TasksByPriority map[models.Priority]int64 `json:"tasksByPriority"`
	OverdueTasks    int64                     `json:"overdueTasks"`
	TotalTasks      int64                     `json:"totalTasks"`
	// UserCount is only set for admins.
	UserCount      *int64     `json:"userCount"`
	RecentActivity []Activity `json:"recentActivity"`
}

type Aggregator struct {
	tasks    storage.TaskStore
	users    storage.UserStore
	activity storage.ActivityStore
	logger   *zap.Logger
	now      func() time.Time
}

func NewAggregator(tasks storage.TaskStore, users storage.UserStore, activity storage.ActivityStore, logger *zap.Logger, now func() time.Time) *Aggregator {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		tasks:    tasks,
		users:    users,
		activity: activity,
		logger:   logger,
		now:      now,
	}
}

func (a *Aggregator) Overview(ctx context.Context, p models.Principal) (*Overview, error) {
	pred := scope.Resolve(p, scope.Filters{})

	byStatus, err := a.tasks.GroupCountTasks(ctx, pred, storage.GroupByStatus)
	if err != nil {
		return nil, fmt.Errorf("count tasks by status: %w", err)
	}
	byPriority, err := a.tasks.GroupCountTasks(ctx, pred, storage.GroupByPriority)
	if err != nil {
		return nil, fmt.Errorf("count tasks by priority: %w", err)
	}
	overdue, err := a.tasks.CountTasks(ctx, pred.Overdue(a.now()))
	if err != nil {
		return nil, fmt.Errorf("count overdue tasks: %w", err)
	}
	total, err := a.tasks.CountTasks(ctx, pred)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}

	o := &Overview{
		TasksByStatus:   make(map[models.Status]int64, len(models.Statuses)),
		TasksByPriority: make(map[models.Priority]int64, len(models.Priorities)),
		OverdueTasks:    overdue,
		TotalTasks:      total,
	}
	for _, s := range models.Statuses {
		o.TasksByStatus[s] = byStatus[string(s)]
	}
	for _, pr := range models.Priorities {
		o.TasksByPriority[pr] = byPriority[string(pr)]
	}

	if p.IsAdmin() {
		n, err := a.users.CountUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("count users: %w", err)
		}
		o.UserCount = &n
	}

	logs, err := a.activity.RecentActivity(ctx, scope.ActivityActor(p), RecentActivityLimit)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	o.RecentActivity = a.resolve(ctx, logs)
	return o, nil
}

// resolve attaches actor and task references. Lookup failures are logged
// and leave the references nil.
func (a *Aggregator) resolve(ctx context.Context, logs []models.ActivityLog) []Activity {
	out := make([]Activity, 0, len(logs))
	if len(logs) == 0 {
		return out
	}
	userIDs := make([]string, 0, len(logs))
	taskIDs := make([]string, 0, len(logs))
	seenUser := make(map[string]bool)
	seenTask := make(map[string]bool)
	for _, l := range logs {
		if !seenUser[l.UserID] {
			seenUser[l.UserID] = true
			userIDs = append(userIDs, l.UserID)
		}
		if !seenTask[l.TaskID] {
			seenTask[l.TaskID] = true
			taskIDs = append(taskIDs, l.TaskID)
		}
	}

	users, err := a.users.LookupUsers(ctx, userIDs)
	if err != nil {
		a.logger.Warn("failed to resolve activity users", zap.Error(err))
		users = nil
	}
	titles, err := a.tasks.TaskTitles(ctx, taskIDs)
	if err != nil {
		a.logger.Warn("failed to resolve activity tasks", zap.Error(err))
		titles = nil
	}

	for _, l := range logs {
		entry := Activity{ActivityLog: l}
		if u, ok := users[l.UserID]; ok {
			entry.User = u.Ref()
		}
		if title, ok := titles[l.TaskID]; ok {
			entry.Task = &TaskRef{ID: l.TaskID, Title: title}
		}
		out = append(out, entry)
	}
	return out
}
