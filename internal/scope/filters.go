package scope

import (
	"net/url"
	"strings"
	"time"

	"github.com/harlequingg/task-tracker-api/internal/models"
	"github.com/harlequingg/task-tracker-api/internal/validator"
)

const dateLayout = "2006-01-02"

// ParseFilters reads task filters from query parameters. Unknown keys are
// ignored; malformed values are reported as a *validator.Error.
func ParseFilters(q url.Values) (Filters, error) {
	v := validator.New()
	var f Filters

	if s := q.Get("status"); s != "" {
		f.Status = models.Status(s)
		v.Check(f.Status.Valid(), "status", "must be one of todo, in-progress, done")
	}
	if s := q.Get("priority"); s != "" {
		f.Priority = models.Priority(s)
		v.Check(f.Priority.Valid(), "priority", "must be one of low, medium, high")
	}
	if s := q.Get("assignee"); s != "" {
		f.Assignee = s
		v.CheckID(s, "assignee")
	}
	if s := q.Get("dueDateFrom"); s != "" {
		t, ok := parseDate(s, false)
		v.Check(ok, "dueDateFrom", "must be a RFC 3339 timestamp or a YYYY-MM-DD date")
		f.DueDateFrom = t
	}
	if s := q.Get("dueDateTo"); s != "" {
		t, ok := parseDate(s, true)
		v.Check(ok, "dueDateTo", "must be a RFC 3339 timestamp or a YYYY-MM-DD date")
		f.DueDateTo = t
	}
	f.Search = strings.TrimSpace(q.Get("search"))

	if err := v.Err(); err != nil {
		return Filters{}, err
	}
	return f, nil
}

// parseDate accepts RFC 3339 or a bare date. A bare upper bound covers the
// whole day so that both bounds stay inclusive.
func parseDate(s string, endOfDay bool) (*time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, true
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, false
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, true
}
