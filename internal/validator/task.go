package validator

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/harlequingg/task-tracker-api/internal/models"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 1000
	MaxTagLength         = 50
)

// DueDatePrecision is the coarsest time precision among the stores.
const DueDatePrecision = time.Millisecond

// CheckTaskPatch trims the submitted text fields of p in place and checks
// every submitted field. When create is set the title is mandatory. Due
// dates are compared against now, the time of the write, and truncated to
// DueDatePrecision.
func (v *Validator) CheckTaskPatch(p *models.TaskPatch, now time.Time, create bool) {
	if create {
		v.Check(p.Title != nil, "title", "must be provided")
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		p.Title = &title
		v.Check(title != "", "title", "must not be empty")
		v.Check(utf8.RuneCountInString(title) <= MaxTitleLength, "title", "must be atmost 200 characters")
	}
	if p.Description != nil {
		desc := strings.TrimSpace(*p.Description)
		p.Description = &desc
		v.Check(utf8.RuneCountInString(desc) <= MaxDescriptionLength, "description", "must be atmost 1000 characters")
	}
	if p.Status != nil {
		v.Check(p.Status.Valid(), "status", "must be one of todo, in-progress, done")
	}
	if p.Priority != nil {
		v.Check(p.Priority.Valid(), "priority", "must be one of low, medium, high")
	}
	if p.DueDate != nil && p.DueDate.Valid {
		v.Check(!p.DueDate.Time.Before(now), "dueDate", "must not be in the past")
		due := *p.DueDate
		due.Time = due.Time.Truncate(DueDatePrecision)
		p.DueDate = &due
	}
	if p.Tags != nil {
		tags := make([]string, 0, len(*p.Tags))
		for _, tag := range *p.Tags {
			tag = strings.TrimSpace(tag)
			v.Check(utf8.RuneCountInString(tag) <= MaxTagLength, "tags", "each tag must be atmost 50 characters")
			tags = append(tags, tag)
		}
		p.Tags = &tags
	}
	if p.Assignee != nil && p.Assignee.Valid {
		v.CheckID(p.Assignee.String, "assignee")
	}
}

func (v *Validator) CheckID(id, key string) {
	_, err := uuid.Parse(id)
	v.Check(err == nil, key, "must be a valid id")
}
