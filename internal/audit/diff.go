package audit

import (
	"slices"
	"time"

	"github.com/harlequingg/task-tracker-api/internal/models"
)

// Diff compares before with the fields submitted in patch. Only submitted
// fields are compared, and only differing ones appear in the result, each
// as a models.FieldChange keyed by its request field name. Cleared
// nullable fields are reported as nil.
func Diff(before *models.Task, patch *models.TaskPatch) map[string]any {
	changes := make(map[string]any)
	add := func(field string, from, to any) {
		changes[field] = models.FieldChange{From: from, To: to}
	}
	if patch.Title != nil && before.Title != *patch.Title {
		add("title", before.Title, *patch.Title)
	}
	if patch.Description != nil && before.Description != *patch.Description {
		add("description", before.Description, *patch.Description)
	}
	if patch.Status != nil && before.Status != *patch.Status {
		add("status", before.Status, *patch.Status)
	}
	if patch.Priority != nil && before.Priority != *patch.Priority {
		add("priority", before.Priority, *patch.Priority)
	}
	if patch.DueDate != nil {
		var to *time.Time
		if patch.DueDate.Valid {
			to = &patch.DueDate.Time
		}
		if !sameTime(before.DueDate, to) {
			add("dueDate", timeValue(before.DueDate), timeValue(to))
		}
	}
	if patch.Tags != nil && !slices.Equal(before.Tags, *patch.Tags) {
		add("tags", slices.Clone(before.Tags), slices.Clone(*patch.Tags))
	}
	if patch.Assignee != nil {
		to := ""
		if patch.Assignee.Valid {
			to = patch.Assignee.String
		}
		if before.Assignee != to {
			add("assignee", optional(before.Assignee), optional(to))
		}
	}
	return changes
}

// Snapshot returns the initial field values of a created task.
func Snapshot(t *models.Task) map[string]any {
	return map[string]any{
		"title":       t.Title,
		"description": t.Description,
		"status":      t.Status,
		"priority":    t.Priority,
		"dueDate":     timeValue(t.DueDate),
		"tags":        slices.Clone(t.Tags),
		"assignee":    optional(t.Assignee),
		"createdBy":   t.CreatedBy,
	}
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func timeValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}
