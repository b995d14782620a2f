package models

import (
	"database/sql"
	"time"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

var Roles = []Role{RoleAdmin, RoleMember}

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Statuses lists every task status in display order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities lists every task priority in display order.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

func (p Priority) Valid() bool {
	for _, v := range Priorities {
		if p == v {
			return true
		}
	}
	return false
}

type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

func (a Action) Valid() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDelete
}

// Principal is the authenticated actor of an operation.
type Principal struct {
	ID   string
	Role Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type User struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"createdAt"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	Role         Role      `json:"role"`
	Version      int       `json:"-"`
}

func (u *User) Principal() Principal {
	return Principal{ID: u.ID, Role: u.Role}
}

// UserRef is the public view of a user embedded in other resources.
type UserRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (u *User) Ref() *UserRef {
	return &UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
}

type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"dueDate"`
	Tags        []string   `json:"tags"`
	Assignee    string     `json:"assignee,omitempty"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Version     int        `json:"-"`
}

// IsOverdue reports whether a task with the given due date and status is
// overdue at now. A task without a due date, or one that is done, never is.
func IsOverdue(dueDate *time.Time, status Status, now time.Time) bool {
	return dueDate != nil && dueDate.Before(now) && status != StatusDone
}

func (t *Task) IsOverdue(now time.Time) bool {
	return IsOverdue(t.DueDate, t.Status, now)
}

// TaskPatch carries the fields submitted by a create or update request.
// A nil field was not submitted. For the nullable fields a present but
// invalid value clears the stored one.
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *Status
	Priority    *Priority
	DueDate     *sql.NullTime
	Tags        *[]string
	Assignee    *sql.NullString
}

// Apply copies every submitted field onto t.
func (p *TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.DueDate != nil {
		if p.DueDate.Valid {
			d := p.DueDate.Time
			t.DueDate = &d
		} else {
			t.DueDate = nil
		}
	}
	if p.Tags != nil {
		t.Tags = append([]string(nil), (*p.Tags)...)
	}
	if p.Assignee != nil {
		if p.Assignee.Valid {
			t.Assignee = p.Assignee.String
		} else {
			t.Assignee = ""
		}
	}
}

type ActivityLog struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"taskId"`
	UserID    string         `json:"userId"`
	Action    Action         `json:"action"`
	Changes   map[string]any `json:"changes"`
	Timestamp time.Time      `json:"timestamp"`
}

// FieldChange is one entry of an update diff.
type FieldChange struct {
	From any `json:"from" bson:"from"`
	To   any `json:"to" bson:"to"`
}
