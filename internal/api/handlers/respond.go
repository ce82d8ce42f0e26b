package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	middleware "github.com/meddy-health/meddy/internal/api/middlewares"
	"github.com/meddy-health/meddy/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("handlers: encode response: %v", err)
	}
}

// writeError maps service errors onto HTTP status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidData), errors.Is(err, services.ErrNoUserMessage):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrUnauthorized):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, services.ErrNotFound), errors.Is(err, services.ErrModelNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrUserExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrStorageDisabled):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		log.Printf("handlers: %s %s: %v", r.Method, r.URL.Path, err)
		http.Error(w, "An error occurred while processing your request", http.StatusInternalServerError)
	}
}

// requireUser returns the authenticated user ID or answers 401.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return userID, ok
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return false
	}
	return true
}
