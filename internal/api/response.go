package api

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
	"github.com/lcrostarosa/proofmode/internal/logging"
	"github.com/lcrostarosa/proofmode/internal/pipeline"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: status < 400, Data: data})
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{Success: false, Error: message})
}

// errorStatus maps an error onto an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrInvalidFingerprint),
		errors.Is(err, apperrors.ErrInvalidIdentifier):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrProofNotFound),
		errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrDisabled),
		errors.Is(err, pipeline.ErrClosed),
		errors.Is(err, pipeline.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs err in full and sends the client a sanitized message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= 500 {
		logging.Error("Request failed", logging.String("path", r.URL.Path), logging.Err(err))
	}
	jsonError(w, status, apperrors.SanitizeError(err))
}
