package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/harlequingg/task-tracker-api/internal/models"
	"github.com/harlequingg/task-tracker-api/internal/storage/memory"
)

var clock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return clock }

type fixture struct {
	store         *memory.Store
	admin, a, b   models.User
	taskA, taskAB models.Task
}

// newFixture seeds two members and an admin. A owns one overdue todo task
// and one done task past due that is assigned to B; B owns an in-progress
// task without a due date.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: memory.New(fixedNow)}
	f.admin.Name, f.admin.Email, f.admin.Role = "Admin", "admin@example.com", models.RoleAdmin
	f.a.Name, f.a.Email = "Alice", "alice@example.com"
	f.b.Name, f.b.Email = "Bob", "bob@example.com"
	for _, u := range []*models.User{&f.admin, &f.a, &f.b} {
		if err := f.store.InsertUser(ctx, u); err != nil {
			t.Fatalf("InsertUser: %v", err)
		}
	}

	past := clock.Add(-time.Hour)
	f.taskA = models.Task{Title: "overdue", Status: models.StatusTodo, Priority: models.PriorityHigh, DueDate: &past, CreatedBy: f.a.ID}
	f.taskAB = models.Task{Title: "finished", Status: models.StatusDone, Priority: models.PriorityLow, DueDate: &past, CreatedBy: f.a.ID, Assignee: f.b.ID}
	taskB := models.Task{Title: "ongoing", Status: models.StatusInProgress, Priority: models.PriorityLow, CreatedBy: f.b.ID}
	for _, task := range []*models.Task{&f.taskA, &f.taskAB, &taskB} {
		if err := f.store.InsertTask(ctx, task); err != nil {
			t.Fatalf("InsertTask: %v", err)
		}
	}

	logs := []models.ActivityLog{
		{TaskID: f.taskA.ID, UserID: f.a.ID, Action: models.ActionCreate, Timestamp: clock.Add(-3 * time.Minute)},
		{TaskID: taskB.ID, UserID: f.b.ID, Action: models.ActionCreate, Timestamp: clock.Add(-2 * time.Minute)},
		{TaskID: "gone", UserID: f.a.ID, Action: models.ActionDelete, Timestamp: clock.Add(-time.Minute)},
	}
	for i := range logs {
		if err := f.store.InsertActivity(ctx, &logs[i]); err != nil {
			t.Fatalf("InsertActivity: %v", err)
		}
	}
	return f
}

func (f *fixture) aggregator() *Aggregator {
	return NewAggregator(f.store, f.store, f.store, zap.NewNop(), fixedNow)
}

func TestOverview_Admin(t *testing.T) {
	f := newFixture(t)
	o, err := f.aggregator().Overview(context.Background(), f.admin.Principal())
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if o.TotalTasks != 3 {
		t.Errorf("TotalTasks = %d, want 3", o.TotalTasks)
	}
	if o.OverdueTasks != 1 {
		t.Errorf("OverdueTasks = %d, want 1", o.OverdueTasks)
	}
	if o.UserCount == nil || *o.UserCount != 3 {
		t.Errorf("UserCount = %v, want 3", o.UserCount)
	}
	if len(o.RecentActivity) != 3 {
		t.Errorf("RecentActivity has %d entries, want 3", len(o.RecentActivity))
	}
	want := map[models.Priority]int64{models.PriorityLow: 2, models.PriorityMedium: 0, models.PriorityHigh: 1}
	for pr, n := range want {
		got, ok := o.TasksByPriority[pr]
		if !ok || got != n {
			t.Errorf("TasksByPriority[%s] = %d (present %v), want %d", pr, got, ok, n)
		}
	}
}

func TestOverview_CountsAddUp(t *testing.T) {
	f := newFixture(t)
	agg := f.aggregator()
	for _, u := range []models.User{f.admin, f.a, f.b} {
		o, err := agg.Overview(context.Background(), u.Principal())
		if err != nil {
			t.Fatalf("Overview(%s): %v", u.Name, err)
		}
		if len(o.TasksByStatus) != len(models.Statuses) || len(o.TasksByPriority) != len(models.Priorities) {
			t.Errorf("%s: missing keys %v %v", u.Name, o.TasksByStatus, o.TasksByPriority)
		}
		var byStatus, byPriority int64
		for _, n := range o.TasksByStatus {
			byStatus += n
		}
		for _, n := range o.TasksByPriority {
			byPriority += n
		}
		if byStatus != o.TotalTasks || byPriority != o.TotalTasks {
			t.Errorf("%s: status sum %d, priority sum %d, total %d", u.Name, byStatus, byPriority, o.TotalTasks)
		}
	}
}

func TestOverview_MemberScope(t *testing.T) {
	f := newFixture(t)
	o, err := f.aggregator().Overview(context.Background(), f.b.Principal())
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	// B sees its own task and the one assigned to it.
	if o.TotalTasks != 2 {
		t.Errorf("TotalTasks = %d, want 2", o.TotalTasks)
	}
	// The only task past due that B sees is done.
	if o.OverdueTasks != 0 {
		t.Errorf("OverdueTasks = %d, want 0", o.OverdueTasks)
	}
	if o.UserCount != nil {
		t.Errorf("UserCount = %d, want nil for members", *o.UserCount)
	}
	if len(o.RecentActivity) != 1 || o.RecentActivity[0].UserID != f.b.ID {
		t.Errorf("RecentActivity = %+v, want only B's entry", o.RecentActivity)
	}
}

func TestOverview_ResolvesReferences(t *testing.T) {
	f := newFixture(t)
	o, err := f.aggregator().Overview(context.Background(), f.a.Principal())
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if len(o.RecentActivity) != 2 {
		t.Fatalf("RecentActivity has %d entries, want 2", len(o.RecentActivity))
	}
	// newest first: the delete of a task that no longer exists
	deleted, created := o.RecentActivity[0], o.RecentActivity[1]
	if deleted.Action != models.ActionDelete || deleted.Task != nil {
		t.Errorf("deleted entry = %+v, want nil task", deleted)
	}
	if deleted.User == nil || deleted.User.Email != "alice@example.com" {
		t.Errorf("deleted entry user = %+v", deleted.User)
	}
	if created.Task == nil || created.Task.Title != "overdue" {
		t.Errorf("created entry task = %+v", created.Task)
	}
}

type failingLookups struct {
	*memory.Store
}

func (failingLookups) LookupUsers(ctx context.Context, ids []string) (map[string]models.User, error) {
	return nil, errors.New("connection reset")
}

func TestOverview_LookupFailureDegrades(t *testing.T) {
	f := newFixture(t)
	users := failingLookups{f.store}
	o, err := NewAggregator(f.store, users, f.store, zap.NewNop(), fixedNow).Overview(context.Background(), f.admin.Principal())
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	for _, entry := range o.RecentActivity {
		if entry.User != nil {
			t.Errorf("entry %s has user %+v, want nil", entry.ID, entry.User)
		}
	}
	if o.RecentActivity[0].Task != nil || o.RecentActivity[1].Task == nil {
		t.Errorf("task references should still resolve: %+v", o.RecentActivity)
	}
}
