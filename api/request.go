package main

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/harlequingg/task-tracker-api/internal/models"
	"github.com/harlequingg/task-tracker-api/internal/validator"
)

// readTaskPatch decodes a task body keeping track of which fields were
// sent. A JSON null clears dueDate and assignee. Unknown fields, createdBy
// among them, are rejected.
func readTaskPatch(w http.ResponseWriter, r *http.Request) (*models.TaskPatch, error) {
	var raw map[string]json.RawMessage
	if err := readJSON(w, r, &raw); err != nil {
		return nil, err
	}

	v := validator.New()
	var p models.TaskPatch
	decode := func(key string, msg json.RawMessage, dst any) bool {
		err := json.Unmarshal(msg, dst)
		v.Check(err == nil, key, "has an invalid type")
		return err == nil
	}
	for key, msg := range raw {
		isNull := string(msg) == "null"
		switch key {
		case "title":
			var s string
			if decode(key, msg, &s) {
				p.Title = &s
			}
		case "description":
			var s string
			if isNull || decode(key, msg, &s) {
				p.Description = &s
			}
		case "status":
			var s models.Status
			if decode(key, msg, &s) {
				p.Status = &s
			}
		case "priority":
			var pr models.Priority
			if decode(key, msg, &pr) {
				p.Priority = &pr
			}
		case "dueDate":
			if isNull {
				p.DueDate = &sql.NullTime{}
				continue
			}
			var s string
			if decode(key, msg, &s) {
				t, ok := parseDueDate(s)
				v.Check(ok, key, "must be a RFC 3339 timestamp or a YYYY-MM-DD date")
				p.DueDate = &sql.NullTime{Time: t, Valid: ok}
			}
		case "tags":
			var tags []string
			if isNull || decode(key, msg, &tags) {
				if tags == nil {
					tags = []string{}
				}
				p.Tags = &tags
			}
		case "assignee":
			if isNull {
				p.Assignee = &sql.NullString{}
				continue
			}
			var s string
			if decode(key, msg, &s) {
				p.Assignee = &sql.NullString{String: s, Valid: true}
			}
		default:
			v.Check(false, key, "is not allowed")
		}
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	return &p, nil
}

func parseDueDate(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	t, err := time.Parse("2006-01-02", s)
	return t, err == nil
}
