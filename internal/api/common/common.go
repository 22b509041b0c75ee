// Package common provides shared response helpers for the API handlers.
package common

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Response is the uniform envelope wrapping every API response body.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// WriteSuccessResponse writes data wrapped in the success envelope.
func WriteSuccessResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(Response{Success: true, Data: data}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// WriteErrorResponse writes a standardized error response.
func WriteErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(Response{Success: false, Error: message}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
