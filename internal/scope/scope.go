// Package scope narrows task access to what a principal may see.
//
// Every task read, task mutation and statistic goes through a Predicate
// built here. A Predicate is immutable: its fields are only reachable
// through accessors, and derived predicates are copies. Free-text search
// is never handed out raw; stores receive it as an escaped literal
// pattern for their own matching syntax.
package scope

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/harlequingg/task-tracker-api/internal/models"
)

// Visibility is the role-derived part of a predicate.
type Visibility int

const (
	// VisibleAll places no ownership restriction (admins).
	VisibleAll Visibility = iota
	// VisibleOwnedOrAssigned admits tasks created by or assigned to the
	// principal.
	VisibleOwnedOrAssigned
	// VisibleOwned admits tasks created by the principal.
	VisibleOwned
)

// Filters are the optional, user-supplied task filters.
type Filters struct {
	Status      models.Status
	Priority    models.Priority
	Assignee    string
	DueDateFrom *time.Time
	DueDateTo   *time.Time
	Search      string
}

type Predicate struct {
	id          string
	visibility  Visibility
	principalID string
	status      models.Status
	priority    models.Priority
	assignee    string
	dueFrom     *time.Time
	dueTo       *time.Time
	search      string
	overdueAt   *time.Time
}

// Resolve builds the list predicate for p. Non-admins are restricted to
// tasks they created or are assigned; f is ANDed on top and can only
// narrow the result.
func Resolve(p models.Principal, f Filters) Predicate {
	return Predicate{
		visibility:  visibilityFor(p, VisibleOwnedOrAssigned),
		principalID: p.ID,
		status:      f.Status,
		priority:    f.Priority,
		assignee:    f.Assignee,
		dueFrom:     copyTime(f.DueDateFrom),
		dueTo:       copyTime(f.DueDateTo),
		search:      strings.TrimSpace(f.Search),
	}
}

// ForRead targets a single task for reading. Non-admins may read tasks
// they created or are assigned.
func ForRead(p models.Principal, id string) Predicate {
	return Predicate{
		id:          id,
		visibility:  visibilityFor(p, VisibleOwnedOrAssigned),
		principalID: p.ID,
	}
}

// ForWrite targets a single task for update or delete. Non-admins may
// only modify tasks they created.
func ForWrite(p models.Principal, id string) Predicate {
	return Predicate{
		id:          id,
		visibility:  visibilityFor(p, VisibleOwned),
		principalID: p.ID,
	}
}

// ActivityActor returns the actor id recent activity must be restricted
// to, or "" when p may see every actor's activity.
func ActivityActor(p models.Principal) string {
	if p.IsAdmin() {
		return ""
	}
	return p.ID
}

func visibilityFor(p models.Principal, restricted Visibility) Visibility {
	if p.IsAdmin() {
		return VisibleAll
	}
	return restricted
}

// Overdue returns a copy of pred further restricted to tasks whose due
// date is before now and whose status is not done.
func (pred Predicate) Overdue(now time.Time) Predicate {
	out := pred.clone()
	out.overdueAt = &now
	return out
}

func (pred Predicate) clone() Predicate {
	out := pred
	out.dueFrom = copyTime(pred.dueFrom)
	out.dueTo = copyTime(pred.dueTo)
	out.overdueAt = copyTime(pred.overdueAt)
	return out
}

func (pred Predicate) ID() (string, bool) { return pred.id, pred.id != "" }

func (pred Predicate) Visibility() Visibility { return pred.visibility }

func (pred Predicate) PrincipalID() string { return pred.principalID }

func (pred Predicate) Status() (models.Status, bool) { return pred.status, pred.status != "" }

func (pred Predicate) Priority() (models.Priority, bool) { return pred.priority, pred.priority != "" }

func (pred Predicate) Assignee() (string, bool) { return pred.assignee, pred.assignee != "" }

func (pred Predicate) DueDateFrom() (time.Time, bool) { return deref(pred.dueFrom) }

func (pred Predicate) DueDateTo() (time.Time, bool) { return deref(pred.dueTo) }

func (pred Predicate) OverdueAt() (time.Time, bool) { return deref(pred.overdueAt) }

func (pred Predicate) HasSearch() bool { return pred.search != "" }

// SearchRegex returns the search text as a regular expression matching it
// literally. Callers apply case-insensitivity themselves.
func (pred Predicate) SearchRegex() string {
	return regexp.QuoteMeta(pred.search)
}

// SearchLike returns the search text as a LIKE pattern matching any value
// that contains it, with backslash as the escape character.
func (pred Predicate) SearchLike() string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(pred.search) + "%"
}

// Match evaluates pred against t in memory.
func (pred Predicate) Match(t *models.Task) bool {
	if pred.id != "" && t.ID != pred.id {
		return false
	}
	switch pred.visibility {
	case VisibleOwnedOrAssigned:
		if t.CreatedBy != pred.principalID && t.Assignee != pred.principalID {
			return false
		}
	case VisibleOwned:
		if t.CreatedBy != pred.principalID {
			return false
		}
	}
	if pred.status != "" && t.Status != pred.status {
		return false
	}
	if pred.priority != "" && t.Priority != pred.priority {
		return false
	}
	if pred.assignee != "" && t.Assignee != pred.assignee {
		return false
	}
	if pred.dueFrom != nil && (t.DueDate == nil || t.DueDate.Before(*pred.dueFrom)) {
		return false
	}
	if pred.dueTo != nil && (t.DueDate == nil || t.DueDate.After(*pred.dueTo)) {
		return false
	}
	if pred.overdueAt != nil && !t.IsOverdue(*pred.overdueAt) {
		return false
	}
	if pred.search != "" && !matchSearch(t, pred.search) {
		return false
	}
	return true
}

func matchSearch(t *models.Task, search string) bool {
	needle := strings.ToLower(search)
	contains := func(s string) bool {
		return strings.Contains(strings.ToLower(s), needle)
	}
	return contains(t.Title) || contains(t.Description) || slices.ContainsFunc(t.Tags, contains)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func deref(t *time.Time) (time.Time, bool) {
	if t == nil {
		return time.Time{}, false
	}
	return *t, true
}
