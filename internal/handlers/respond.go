package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"pocketbook/internal/auth"
	"pocketbook/internal/log"
	"pocketbook/internal/models"
	"pocketbook/internal/storage"
)

// errorResponse is the JSON body of every failed /expenses request.
type errorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code and JSON body. Unclassified errors
// are logged and reported as a bare 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid input", Field: verr.Field, Message: verr.Message})
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Not authenticated"})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Expense not found"})
	case errors.Is(err, storage.ErrDuplicateUsername):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "Username already exists"})
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "request failed",
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldError, err,
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
	}
}
