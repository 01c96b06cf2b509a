package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"visitorgate/apperr"
	"visitorgate/logger"
	"visitorgate/middleware"
	"visitorgate/notify"
	"visitorgate/syncer"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error    string          `json:"error"`
	Title    string          `json:"title,omitempty"`
	Severity notify.Severity `json:"severity,omitempty"`
	Retry    bool            `json:"retry"`
	Fields   []string        `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeAppError maps an error from the core to a status and a body shaped
// like the notification the user sees.
func writeAppError(w http.ResponseWriter, err error) {
	n := notify.FromError(err)
	writeJSON(w, statusFor(err), ErrorResponse{
		Error:    err.Error(),
		Title:    n.Title,
		Severity: n.Severity,
		Retry:    n.Retry,
		Fields:   n.Fields,
	})
}

func statusFor(err error) int {
	switch apperr.Kind(err) {
	case "validation":
		return http.StatusBadRequest
	case "location":
		return http.StatusUnprocessableEntity
	case "not_found":
		return http.StatusNotFound
	case "invariant":
		return http.StatusConflict
	case "remote":
		return http.StatusBadGateway
	case "dependency":
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, syncer.ErrSyncInFlight) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// IDRequest carries the target of a checkout or delete.
type IDRequest struct {
	ID string `json:"id"`
}

// idFrom reads the id from the query string, falling back to the body.
func idFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	if id := r.URL.Query().Get("id"); id != "" {
		return id, true
	}
	var req IDRequest
	if !decode(w, r, &req) {
		return "", false
	}
	if req.ID == "" {
		writeAppError(w, apperr.Validation("id"))
		return "", false
	}
	return req.ID, true
}

// audit records an admin action under the caller's token name.
func audit(l *zap.Logger, r *http.Request, action, details string) {
	user := "unknown"
	if claims, ok := middleware.GetClaimsFromContext(r.Context()); ok {
		user = claims.Username
	}
	logger.Audit(l, user, action, details)
}
