package main

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/harlequingg/task-tracker-api/internal/models"
)

func (app *application) routes() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(app.notFoundHandler)
	r.MethodNotAllowedHandler = http.HandlerFunc(app.methodNotAllowedHandler)

	r.HandleFunc("/v1/healthcheck", app.healthCheckHandler).Methods(http.MethodGet)

	r.HandleFunc("/v1/auth/register", app.registerUserHandler).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/login", app.authenticateUserHandler).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/me", app.requireAuthenticatedUser(app.profileHandler)).Methods(http.MethodGet)

	r.HandleFunc("/v1/tasks", app.requireAuthenticatedUser(app.getTasksHandler)).Methods(http.MethodGet)
	r.HandleFunc("/v1/tasks", app.requireAuthenticatedUser(app.createTaskHandler)).Methods(http.MethodPost)
	r.HandleFunc("/v1/tasks/{id}", app.requireAuthenticatedUser(app.getTaskHandler)).Methods(http.MethodGet)
	r.HandleFunc("/v1/tasks/{id}", app.requireAuthenticatedUser(app.updateTaskHandler)).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/v1/tasks/{id}", app.requireAuthenticatedUser(app.deleteTaskHandler)).Methods(http.MethodDelete)

	r.HandleFunc("/v1/stats/overview", app.requireAuthenticatedUser(app.overviewStatsHandler)).Methods(http.MethodGet)

	r.HandleFunc("/v1/users", app.requireAuthenticatedUser(requireRole(models.RoleAdmin, app.getUsersHandler))).Methods(http.MethodGet)
	r.HandleFunc("/v1/users/{id}/role", app.requireAuthenticatedUser(requireRole(models.RoleAdmin, app.updateUserRoleHandler))).Methods(http.MethodPatch)

	var h http.Handler = r
	if app.config.limiter.enabled {
		h = app.rateLimit(h)
	}
	return app.recoverPanic(app.enableCORS(h))
}
