package postgres

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/harlequingg/task-tracker-api/internal/models"
	"github.com/harlequingg/task-tracker-api/internal/pagination"
	"github.com/harlequingg/task-tracker-api/internal/scope"
	"github.com/harlequingg/task-tracker-api/internal/storage"
)

const taskColumns = `id, title, description, status, priority, due_date, tags, assignee, created_by, created_at, updated_at, version`

var sortColumns = map[pagination.SortField]string{
	pagination.SortCreatedAt: "created_at",
	pagination.SortUpdatedAt: "updated_at",
	pagination.SortDueDate:   "due_date",
	pagination.SortPriority:  "priority",
	pagination.SortStatus:    "status",
	pagination.SortTitle:     "title",
}

var groupColumns = map[storage.GroupField]string{
	storage.GroupByStatus:   "status",
	storage.GroupByPriority: "priority",
}

// query accumulates positional arguments. Every user value goes through
// arg; only fixed column names and operators are written into the SQL.
type query struct {
	args []any
}

func (q *query) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

// where renders pred as a WHERE clause. An unrestricted predicate renders
// as "TRUE".
func (q *query) where(pred scope.Predicate) string {
	var conds []string
	if id, ok := pred.ID(); ok {
		conds = append(conds, "id = "+q.arg(id))
	}
	switch pred.Visibility() {
	case scope.VisibleOwnedOrAssigned:
		p := q.arg(pred.PrincipalID())
		conds = append(conds, fmt.Sprintf("(created_by = %s OR assignee = %s)", p, p))
	case scope.VisibleOwned:
		conds = append(conds, "created_by = "+q.arg(pred.PrincipalID()))
	}
	if s, ok := pred.Status(); ok {
		conds = append(conds, "status = "+q.arg(string(s)))
	}
	if p, ok := pred.Priority(); ok {
		conds = append(conds, "priority = "+q.arg(string(p)))
	}
	if a, ok := pred.Assignee(); ok {
		conds = append(conds, "assignee = "+q.arg(a))
	}
	if t, ok := pred.DueDateFrom(); ok {
		conds = append(conds, "due_date >= "+q.arg(t))
	}
	if t, ok := pred.DueDateTo(); ok {
		conds = append(conds, "due_date <= "+q.arg(t))
	}
	if t, ok := pred.OverdueAt(); ok {
		conds = append(conds, fmt.Sprintf("(due_date < %s AND status <> %s)", q.arg(t), q.arg(string(models.StatusDone))))
	}
	if pred.HasSearch() {
		p := q.arg(pred.SearchLike())
		conds = append(conds, fmt.Sprintf(
			"(title ILIKE %s OR description ILIKE %s OR EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE %s))",
			p, p, p))
	}
	if len(conds) == 0 {
		return "TRUE"
	}
	return strings.Join(conds, " AND ")
}

// orderBy matches MongoDB null ordering: missing due dates sort first
// ascending and last descending.
func orderBy(s pagination.Sort) string {
	col, ok := sortColumns[s.Field]
	if !ok {
		col = sortColumns[pagination.SortCreatedAt]
	}
	dir, nulls := "ASC", "NULLS FIRST"
	if s.Desc {
		dir, nulls = "DESC", "NULLS LAST"
	}
	return fmt.Sprintf("%s %s %s, id %s", col, dir, nulls, dir)
}

func buildFindTasks(pred scope.Predicate, s pagination.Sort, w pagination.Window) (string, []any) {
	var q query
	sql := fmt.Sprintf(`SELECT %s FROM tasks WHERE %s ORDER BY %s LIMIT %s OFFSET %s`,
		taskColumns, q.where(pred), orderBy(s), q.arg(w.Limit), q.arg(w.Skip))
	return sql, q.args
}

func buildCountTasks(pred scope.Predicate) (string, []any) {
	var q query
	return `SELECT count(*) FROM tasks WHERE ` + q.where(pred), q.args
}

func buildGroupCount(pred scope.Predicate, field storage.GroupField) (string, []any, error) {
	col, ok := groupColumns[field]
	if !ok {
		return "", nil, fmt.Errorf("postgres: unsupported group field %q", field)
	}
	var q query
	sql := fmt.Sprintf(`SELECT %s, count(*) FROM tasks WHERE %s GROUP BY %s`, col, q.where(pred), col)
	return sql, q.args, nil
}

// buildUpdateTask returns the UPDATE for the submitted fields of patch.
// updated_at and version change even for an empty patch.
func buildUpdateTask(pred scope.Predicate, patch *models.TaskPatch) (string, []any) {
	var q query
	var set []string
	if patch.Title != nil {
		set = append(set, "title = "+q.arg(*patch.Title))
	}
	if patch.Description != nil {
		set = append(set, "description = "+q.arg(*patch.Description))
	}
	if patch.Status != nil {
		set = append(set, "status = "+q.arg(string(*patch.Status)))
	}
	if patch.Priority != nil {
		set = append(set, "priority = "+q.arg(string(*patch.Priority)))
	}
	if patch.DueDate != nil {
		set = append(set, "due_date = "+q.arg(*patch.DueDate))
	}
	if patch.Tags != nil {
		set = append(set, "tags = "+q.arg(pq.Array(*patch.Tags)))
	}
	if patch.Assignee != nil {
		set = append(set, "assignee = "+q.arg(*patch.Assignee))
	}
	set = append(set, "updated_at = now()", "version = version + 1")
	sql := fmt.Sprintf(`UPDATE tasks SET %s WHERE %s RETURNING %s`, strings.Join(set, ", "), q.where(pred), taskColumns)
	return sql, q.args
}

func buildDeleteTask(pred scope.Predicate) (string, []any) {
	var q query
	return fmt.Sprintf(`DELETE FROM tasks WHERE %s RETURNING %s`, q.where(pred), taskColumns), q.args
}
