package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

type contextKey string

const contextUserKey contextKey = "usuario"

// AuthUser is the authenticated caller injected into the request context.
type AuthUser struct {
	ID          string
	Name        string
	Email       string
	Permissions []string
}

func authUserFromContext(ctx context.Context) (AuthUser, error) {
	user, ok := ctx.Value(contextUserKey).(AuthUser)
	if !ok || user.ID == "" {
		return AuthUser{}, errors.New("missing authenticated user")
	}
	return user, nil
}

// MessageResponse is the mensaje envelope used for plain and error replies.
type MessageResponse struct {
	Message string `json:"mensaje"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}

// Healthz reports process liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseDate accepts an RFC 3339 timestamp, a timestamp without zone, or a
// plain date.
func parseDate(value string) (time.Time, error) {
	layouts := []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
