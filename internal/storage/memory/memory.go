// Package memory is an in-process store. It backs development runs and
// every test that needs a store; a single mutex makes each call atomic.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harlequingg/task-tracker-api/internal/models"
	"github.com/harlequingg/task-tracker-api/internal/pagination"
	"github.com/harlequingg/task-tracker-api/internal/scope"
	"github.com/harlequingg/task-tracker-api/internal/storage"
)

type taskEntry struct {
	seq  int
	task models.Task
}

type userEntry struct {
	seq  int
	user models.User
}

type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	seq      int
	tasks    map[string]*taskEntry
	users    map[string]*userEntry
	activity []models.ActivityLog
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store. now stamps createdAt and updatedAt; nil
// means time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:   now,
		tasks: make(map[string]*taskEntry),
		users: make(map[string]*userEntry),
	}
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

func (s *Store) nextSeq() int {
	s.seq++
	return s.seq
}

func (s *Store) InsertTask(ctx context.Context, t *models.Task) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := s.now()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Version = 1
	if t.Tags == nil {
		t.Tags = []string{}
	}
	s.tasks[t.ID] = &taskEntry{seq: s.nextSeq(), task: copyTask(*t)}
	return nil
}

func (s *Store) matching(pred scope.Predicate) []*taskEntry {
	var out []*taskEntry
	for _, e := range s.tasks {
		if pred.Match(&e.task) {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) FindTasks(ctx context.Context, pred scope.Predicate, sort pagination.Sort, w pagination.Window) ([]models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.matching(pred)
	slices.SortFunc(entries, func(a, b *taskEntry) int {
		c := compareTasks(&a.task, &b.task, sort.Field)
		if c == 0 {
			c = cmp.Compare(a.seq, b.seq)
		}
		if sort.Desc {
			return -c
		}
		return c
	})
	tasks := []models.Task{}
	for i := w.Skip; i < len(entries) && len(tasks) < w.Limit; i++ {
		tasks = append(tasks, copyTask(entries[i].task))
	}
	return tasks, nil
}

// compareTasks orders missing due dates first, as the database backends do.
func compareTasks(a, b *models.Task, field pagination.SortField) int {
	switch field {
	case pagination.SortUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case pagination.SortDueDate:
		switch {
		case a.DueDate == nil && b.DueDate == nil:
			return 0
		case a.DueDate == nil:
			return -1
		case b.DueDate == nil:
			return 1
		}
		return a.DueDate.Compare(*b.DueDate)
	case pagination.SortPriority:
		return strings.Compare(string(a.Priority), string(b.Priority))
	case pagination.SortStatus:
		return strings.Compare(string(a.Status), string(b.Status))
	case pagination.SortTitle:
		return strings.Compare(a.Title, b.Title)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func (s *Store) CountTasks(ctx context.Context, pred scope.Predicate) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.matching(pred))), nil
}

func (s *Store) GetTask(ctx context.Context, pred scope.Predicate) (*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.single(pred)
	if e == nil {
		return nil, nil
	}
	t := copyTask(e.task)
	return &t, nil
}

func (s *Store) single(pred scope.Predicate) *taskEntry {
	id, ok := pred.ID()
	if !ok {
		return nil
	}
	e, ok := s.tasks[id]
	if !ok || !pred.Match(&e.task) {
		return nil
	}
	return e
}

func (s *Store) UpdateTask(ctx context.Context, pred scope.Predicate, patch *models.TaskPatch) (*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.single(pred)
	if e == nil {
		return nil, nil
	}
	patch.Apply(&e.task)
	e.task.UpdatedAt = s.now()
	e.task.Version++
	t := copyTask(e.task)
	return &t, nil
}

func (s *Store) DeleteTask(ctx context.Context, pred scope.Predicate) (*models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.single(pred)
	if e == nil {
		return nil, nil
	}
	delete(s.tasks, e.task.ID)
	t := copyTask(e.task)
	return &t, nil
}

func (s *Store) GroupCountTasks(ctx context.Context, pred scope.Predicate, field storage.GroupField) (map[string]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	for _, e := range s.matching(pred) {
		switch field {
		case storage.GroupByStatus:
			counts[string(e.task.Status)]++
		case storage.GroupByPriority:
			counts[string(e.task.Priority)]++
		}
	}
	return counts, nil
}

func (s *Store) TaskTitles(ctx context.Context, ids []string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	titles := make(map[string]string, len(ids))
	for _, id := range ids {
		if e, ok := s.tasks[id]; ok {
			titles[id] = e.task.Title
		}
	}
	return titles, nil
}

func (s *Store) InsertUser(ctx context.Context, u *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.users {
		if strings.EqualFold(e.user.Email, u.Email) {
			return models.ErrDuplicateEmail
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = models.RoleMember
	}
	u.CreatedAt = s.now()
	u.Version = 1
	s.users[u.ID] = &userEntry{seq: s.nextSeq(), user: *u}
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	u := e.user
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.users {
		if strings.EqualFold(e.user.Email, email) {
			u := e.user
			return &u, nil
		}
	}
	return nil, nil
}

func (s *Store) ListUsers(ctx context.Context, w pagination.Window) ([]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]*userEntry, 0, len(s.users))
	for _, e := range s.users {
		entries = append(entries, e)
	}
	// newest first
	slices.SortFunc(entries, func(a, b *userEntry) int {
		return cmp.Compare(b.seq, a.seq)
	})
	users := []models.User{}
	for i := w.Skip; i < len(entries) && len(users) < w.Limit; i++ {
		users = append(users, entries[i].user)
	}
	return users, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func (s *Store) UpdateUserRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	e.user.Role = role
	e.user.Version++
	u := e.user
	return &u, nil
}

func (s *Store) LookupUsers(ctx context.Context, ids []string) (map[string]models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make(map[string]models.User, len(ids))
	for _, id := range ids {
		if e, ok := s.users[id]; ok {
			users[id] = e.user
		}
	}
	return users, nil
}

func (s *Store) InsertActivity(ctx context.Context, l *models.ActivityLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	s.activity = append(s.activity, *l)
	return nil
}

func (s *Store) RecentActivity(ctx context.Context, actorID string, limit int) ([]models.ActivityLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := []models.ActivityLog{}
	// Insertion order breaks timestamp ties.
	idx := make([]int, 0, len(s.activity))
	for i, l := range s.activity {
		if actorID == "" || l.UserID == actorID {
			idx = append(idx, i)
		}
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		if c := s.activity[b].Timestamp.Compare(s.activity[a].Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b, a)
	})
	for _, i := range idx {
		if len(logs) == limit {
			break
		}
		logs = append(logs, s.activity[i])
	}
	return logs, nil
}

func copyTask(t models.Task) models.Task {
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	t.Tags = append([]string{}, t.Tags...)
	return t
}
