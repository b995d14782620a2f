package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/harlequingg/task-tracker-api/internal/models"
	"github.com/harlequingg/task-tracker-api/internal/validator"
)

const maxBodyBytes = 1 << 20

func (app *application) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	heathCheck := struct {
		Status        string `json:"status"`
		Environment   string `json:"environment"`
		Version       string `json:"version"`
		AuditFailures int64  `json:"auditFailures"`
	}{
		Status:        "available",
		Environment:   app.config.env,
		Version:       version,
		AuditFailures: app.auditor.Failures(),
	}
	app.writeJSON(w, r, http.StatusOK, heathCheck)
}

func (app *application) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, errors.New("route not found"), http.StatusNotFound)
}

func (app *application) methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, fmt.Errorf("the %s method is not supported for this resource", r.Method), http.StatusMethodNotAllowed)
}

// errorResponse maps err to a status code and writes it. Unexpected errors
// are logged and hidden from the client.
func (app *application) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validator.Error
	switch {
	case errors.As(err, &verr):
		writeJSONError(w, http.StatusBadRequest, map[string]any{
			"error":   "validation error",
			"details": verr.Fields,
		})
	case errors.Is(err, models.ErrNotFound):
		writeError(w, errors.New("the requested resource could not be found"), http.StatusNotFound)
	case errors.Is(err, models.ErrForbidden):
		writeError(w, err, http.StatusForbidden)
	case errors.Is(err, models.ErrConflict):
		writeError(w, err, http.StatusConflict)
	case errors.Is(err, models.ErrDuplicateEmail):
		writeError(w, err, http.StatusBadRequest)
	case errors.Is(err, models.ErrInvalidCredentials):
		writeError(w, err, http.StatusUnauthorized)
	default:
		app.serverError(w, r, err)
	}
}

func (app *application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeError(w, errors.New("internal server error"), http.StatusInternalServerError)
}

func (app *application) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	js, err := json.Marshal(data)
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)
	w.Write([]byte("\n"))
}

// readJSON decodes a single JSON value from the request body into dst.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return fmt.Errorf("body must not be larger than %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		default:
			return fmt.Errorf("body contains badly-formed JSON: %w", err)
		}
	}
	if dec.More() {
		return errors.New("body must only contain a single JSON value")
	}
	return nil
}

func composeJSONError(err error) string {
	jsonError := map[string]string{
		"error": err.Error(),
	}
	result, err := json.Marshal(jsonError)
	if err != nil {
		return `{"error":"internal server error"}`
	}
	return string(result)
}

func writeError(w http.ResponseWriter, err error, statusCode int) {
	h := w.Header()
	h.Del("Content-Length")
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	fmt.Fprintln(w, composeJSONError(err))
}

func writeJSONError(w http.ResponseWriter, statusCode int, body map[string]any) {
	js, err := json.Marshal(body)
	if err != nil {
		writeError(w, errors.New("internal server error"), http.StatusInternalServerError)
		return
	}
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusCode)
	w.Write(js)
	w.Write([]byte("\n"))
}
