package main

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/harlequingg/task-tracker-api/internal/models"
	"github.com/harlequingg/task-tracker-api/internal/pagination"
)

func (app *application) registerUserHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &input); err != nil {
		app.bodyError(w, r, err)
		return
	}
	u, err := app.users.Register(r.Context(), input.Name, input.Email, input.Password)
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	token, err := app.issueToken(u)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusCreated, map[string]any{
		"message": "User registered successfully",
		"user":    u,
		"token":   token,
	})
}

func (app *application) authenticateUserHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &input); err != nil {
		app.bodyError(w, r, err)
		return
	}
	u, err := app.users.Authenticate(r.Context(), input.Email, input.Password)
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	token, err := app.issueToken(u)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, map[string]any{
		"message": "Login successful",
		"user":    u,
		"token":   token,
	})
}

func (app *application) profileHandler(w http.ResponseWriter, r *http.Request) {
	app.writeJSON(w, r, http.StatusOK, map[string]any{"user": getUserFromRequest(r)})
}

func (app *application) getUsersHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	u := getUserFromRequest(r)
	page, err := app.users.List(r.Context(), u.Principal(), pagination.Normalize(q.Get("page"), q.Get("limit")))
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, page)
}

func (app *application) updateUserRoleHandler(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Role models.Role `json:"role"`
	}
	if err := readJSON(w, r, &input); err != nil {
		app.bodyError(w, r, err)
		return
	}
	u := getUserFromRequest(r)
	updated, err := app.users.ChangeRole(r.Context(), u.Principal(), mux.Vars(r)["id"], input.Role)
	if err != nil {
		app.errorResponse(w, r, err)
		return
	}
	app.writeJSON(w, r, http.StatusOK, map[string]any{
		"message": "User role updated successfully",
		"user":    updated,
	})
}
