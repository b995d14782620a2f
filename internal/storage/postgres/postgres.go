// Package postgres stores users, tasks and activity in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/harlequingg/task-tracker-api/internal/models"
	"github.com/harlequingg/task-tracker-api/internal/pagination"
	"github.com/harlequingg/task-tracker-api/internal/scope"
	"github.com/harlequingg/task-tracker-api/internal/storage"
)

type Config struct {
	DSN                string
	MaxOpenConnections int
	MaxIdleConnections int
	MaxIdleTime        time.Duration
}

// Open connects to the database, checks it is reachable and creates the
// schema when missing.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), storage.QueryTimeout)
	defer cancel()

	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            text PRIMARY KEY,
	created_at    timestamptz NOT NULL DEFAULT now(),
	name          text NOT NULL,
	email         text NOT NULL,
	password_hash bytea NOT NULL,
	role          text NOT NULL DEFAULT 'member' CHECK (role IN ('admin', 'member')),
	version       integer NOT NULL DEFAULT 1
);

CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (lower(email));

CREATE TABLE IF NOT EXISTS tasks (
	id          text PRIMARY KEY,
	title       text NOT NULL,
	description text NOT NULL DEFAULT '',
	status      text NOT NULL DEFAULT 'todo' CHECK (status IN ('todo', 'in-progress', 'done')),
	priority    text NOT NULL DEFAULT 'medium' CHECK (priority IN ('low', 'medium', 'high')),
	due_date    timestamptz,
	tags        text[] NOT NULL DEFAULT '{}',
	assignee    text,
	created_by  text NOT NULL,
	created_at  timestamptz NOT NULL DEFAULT now(),
	updated_at  timestamptz NOT NULL DEFAULT now(),
	version     integer NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS tasks_created_by_status_idx ON tasks (created_by, status);
CREATE INDEX IF NOT EXISTS tasks_assignee_idx ON tasks (assignee);
CREATE INDEX IF NOT EXISTS tasks_due_date_idx ON tasks (due_date);
CREATE INDEX IF NOT EXISTS tasks_priority_idx ON tasks (priority);
CREATE INDEX IF NOT EXISTS tasks_created_at_idx ON tasks (created_at DESC);

CREATE TABLE IF NOT EXISTS activity_logs (
	id        text PRIMARY KEY,
	task_id   text NOT NULL,
	user_id   text NOT NULL,
	action    text NOT NULL CHECK (action IN ('create', 'update', 'delete')),
	changes   jsonb NOT NULL DEFAULT '{}',
	timestamp timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS activity_logs_task_idx ON activity_logs (task_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS activity_logs_timestamp_idx ON activity_logs (timestamp DESC);
`

type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var due sql.NullTime
	var assignee sql.NullString
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &due,
		pq.Array(&t.Tags), &assignee, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt, &t.Version)
	if err != nil {
		return nil, err
	}
	if due.Valid {
		t.DueDate = &due.Time
	}
	t.Assignee = assignee.String
	if t.Tags == nil {
		t.Tags = []string{}
	}
	return &t, nil
}

// singleTask scans at most one row, mapping no rows to a nil task.
func singleTask(row *sql.Row) (*models.Task, error) {
	t, err := scanTask(row)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, nil
		default:
			return nil, err
		}
	}
	return t, nil
}

func (s *Store) InsertTask(ctx context.Context, t *models.Task) error {
	query := `INSERT INTO tasks (id, title, description, status, priority, due_date, tags, assignee, created_by)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  RETURNING created_at, updated_at, version`

	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	var due sql.NullTime
	if t.DueDate != nil {
		due = sql.NullTime{Time: *t.DueDate, Valid: true}
	}
	assignee := sql.NullString{String: t.Assignee, Valid: t.Assignee != ""}
	row := s.db.QueryRowContext(ctx, query, t.ID, t.Title, t.Description, t.Status, t.Priority,
		due, pq.Array(t.Tags), assignee, t.CreatedBy)
	return row.Scan(&t.CreatedAt, &t.UpdatedAt, &t.Version)
}

func (s *Store) FindTasks(ctx context.Context, pred scope.Predicate, sort pagination.Sort, w pagination.Window) ([]models.Task, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	query, args := buildFindTasks(pred, sort, w)

	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *Store) CountTasks(ctx context.Context, pred scope.Predicate) (int64, error) {
	query, args := buildCountTasks(pred)

	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	var n int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&n)
	return n, err
}

func (s *Store) GetTask(ctx context.Context, pred scope.Predicate) (*models.Task, error) {
	var q query
	sqlText := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + q.where(pred)

	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	return singleTask(s.db.QueryRowContext(ctx, sqlText, q.args...))
}

func (s *Store) UpdateTask(ctx context.Context, pred scope.Predicate, patch *models.TaskPatch) (*models.Task, error) {
	query, args := buildUpdateTask(pred, patch)

	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	return singleTask(s.db.QueryRowContext(ctx, query, args...))
}

func (s *Store) DeleteTask(ctx context.Context, pred scope.Predicate) (*models.Task, error) {
	query, args := buildDeleteTask(pred)

	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	return singleTask(s.db.QueryRowContext(ctx, query, args...))
}

func (s *Store) GroupCountTasks(ctx context.Context, pred scope.Predicate, field storage.GroupField) (map[string]int64, error) {
	query, args, err := buildGroupCount(pred, field)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		counts[key] = n
	}
	return counts, rows.Err()
}

func (s *Store) TaskTitles(ctx context.Context, ids []string) (map[string]string, error) {
	query := `SELECT id, title FROM tasks WHERE id = ANY($1)`

	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	titles := make(map[string]string, len(ids))
	for rows.Next() {
		var id, title string
		if err := rows.Scan(&id, &title); err != nil {
			return nil, err
		}
		titles[id] = title
	}
	return titles, rows.Err()
}

const userColumns = `id, created_at, name, email, password_hash, role, version`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.CreatedAt, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Version)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func singleUser(row *sql.Row) (*models.User, error) {
	u, err := scanUser(row)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, nil
		default:
			return nil, err
		}
	}
	return u, nil
}

func (s *Store) InsertUser(ctx context.Context, u *models.User) error {
	query := `INSERT INTO users (id, name, email, password_hash, role)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING created_at, version`

	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = models.RoleMember
	}
	row := s.db.QueryRowContext(ctx, query, u.ID, u.Name, u.Email, u.PasswordHash, u.Role)
	err := row.Scan(&u.CreatedAt, &u.Version)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return models.ErrDuplicateEmail
	}
	return err
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	return singleUser(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`

	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	return singleUser(s.db.QueryRowContext(ctx, query, email))
}

func (s *Store) ListUsers(ctx context.Context, w pagination.Window) ([]models.User, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`

	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, w.Limit, w.Skip)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users`).Scan(&n)
	return n, err
}

func (s *Store) UpdateUserRole(ctx context.Context, id string, role models.Role) (*models.User, error) {
	query := `UPDATE users SET role = $1, version = version + 1
			  WHERE id = $2
			  RETURNING ` + userColumns

	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	return singleUser(s.db.QueryRowContext(ctx, query, role, id))
}

func (s *Store) LookupUsers(ctx context.Context, ids []string) (map[string]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`

	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make(map[string]models.User, len(ids))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users[u.ID] = *u
	}
	return users, rows.Err()
}

func (s *Store) InsertActivity(ctx context.Context, l *models.ActivityLog) error {
	query := `INSERT INTO activity_logs (id, task_id, user_id, action, changes, timestamp)
			  VALUES ($1, $2, $3, $4, $5, $6)`

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	changes, err := json.Marshal(l.Changes)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, query, l.ID, l.TaskID, l.UserID, l.Action, changes, l.Timestamp)
	return err
}

func (s *Store) RecentActivity(ctx context.Context, actorID string, limit int) ([]models.ActivityLog, error) {
	query := `SELECT id, task_id, user_id, action, changes, timestamp
			  FROM activity_logs
			  WHERE ($1 = '' OR user_id = $1)
			  ORDER BY timestamp DESC, id DESC
			  LIMIT $2`

	ctx, cancel := context.WithTimeout(ctx, storage.QueryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, actorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []models.ActivityLog{}
	for rows.Next() {
		var l models.ActivityLog
		var changes []byte
		if err := rows.Scan(&l.ID, &l.TaskID, &l.UserID, &l.Action, &changes, &l.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(changes, &l.Changes); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
