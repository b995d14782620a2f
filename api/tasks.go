package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/harlequingg/task-tracker-api/internal/models"
	"github.com/harlequingg/task-tracker-api/internal/pagination"
	"github.com/harlequingg/task-tracker-api/internal/scope"
	"github.com/harlequingg/task-tracker-api/internal/service"
	"github.com/harlequingg/task-tracker-api/internal/validator"
)

// taskResponse adds the derived overdue flag to a task and replaces its
// user ids with references. A reference is null when the user is unset or
// no longer exists.
type taskResponse struct {
	models.Task
	Assignee  *models.UserRef `json:"assignee"`
	CreatedBy *models.UserRef `json:"createdBy"`
	IsOverdue bool            `json:"isOverdue"`
}

func presentTask(t *models.Task, users map[string]models.User, now time.Time) taskResponse {
	resp := taskResponse{Task: *t, IsOverdue: t.IsOverdue(now)}
	if u, ok := users[t.Assignee]; ok {
		resp.Assignee = u.Ref()
	}
	if u, ok := users[t.CreatedBy]; ok {
		resp.CreatedBy = u.Ref()
	}
	return resp
}

func (app *application) presentTasks(r *http.Request, tasks ...models.Task) []taskResponse {
	users := app.tasks.People(r.Context(), tasks...)
	now := app.now()
	out := make([]taskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, presentTask(&tasks[i], users, now))
	}
	return out
}

// bodyError answers a request whose body could not be read or validated.
func (app *application) bodyError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validator.Error
	if errors.As(err, &verr) {
		app.errorResponse(w, r, err)
		return
	}
	writeError(w, err, http.StatusBadRequest)
}

func (app *application) getTasksHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters, err := scope.ParseFilters(q)
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	sort, err := pagination.ParseSort(q.Get("sort"))
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	u := getUserFromRequest(r)
	page, err := app.tasks.List(r.Context(), u.Principal(), service.ListQuery{
		Filters: filters,
		Sort:    sort,
		Window:  pagination.Normalize(q.Get("page"), q.Get("limit")),
	})
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, map[string]any{
		"tasks":      app.presentTasks(r, page.Tasks...),
		"pagination": page.Pagination,
	})
}

func (app *application) getTaskHandler(w http.ResponseWriter, r *http.Request) {
	u := getUserFromRequest(r)
	t, err := app.tasks.Get(r.Context(), u.Principal(), mux.Vars(r)["id"])
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, map[string]any{"task": app.presentTasks(r, *t)[0]})
}

func (app *application) createTaskHandler(w http.ResponseWriter, r *http.Request) {
	patch, err := readTaskPatch(w, r)
	if err != nil {
		app.bodyError(w, r, err)
		return
	}
	u := getUserFromRequest(r)
	t, err := app.tasks.Create(r.Context(), u.Principal(), patch)
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusCreated, map[string]any{
		"message": "Task created successfully",
		"task":    app.presentTasks(r, *t)[0],
	})
}

func (app *application) updateTaskHandler(w http.ResponseWriter, r *http.Request) {
	patch, err := readTaskPatch(w, r)
	if err != nil {
		app.bodyError(w, r, err)
		return
	}
	u := getUserFromRequest(r)
	t, err := app.tasks.Update(r.Context(), u.Principal(), mux.Vars(r)["id"], patch)
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, map[string]any{
		"message": "Task updated successfully",
		"task":    app.presentTasks(r, *t)[0],
	})
}

func (app *application) deleteTaskHandler(w http.ResponseWriter, r *http.Request) {
	u := getUserFromRequest(r)
	if err := app.tasks.Delete(r.Context(), u.Principal(), mux.Vars(r)["id"]); err != nil {
		app.errorResponse(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, map[string]any{"message": "Task deleted successfully"})
}

func (app *application) overviewStatsHandler(w http.ResponseWriter, r *http.Request) {
	u := getUserFromRequest(r)
	o, err := app.stats.Overview(r.Context(), u.Principal())
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, o)
}
