package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type ContextKey string

const (
	RequestIDCtxKey ContextKey = "RequestID"
	LogEntryCtxKey  ContextKey = "LogEntry"
)

// RequestID returns the request id set by the request id middleware.
func RequestID(r *http.Request) string {
	id, _ := r.Context().Value(RequestIDCtxKey).(string)
	return id
}

// Logger returns the request scoped logger set by the logger middleware, or a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LogEntryCtxKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return zap.NewNop()
}

// BindOrError decodes the JSON body of an HTTP request, r, into the given destination object, dst.
// If decoding fails, it responds with a 400 Bad Request error.
func BindOrError(r *http.Request, w http.ResponseWriter, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return err
	}
	return nil
}

// JSON writes a JSON response with the given status code and data.
// Data that cannot be encoded yields a 500 error response instead.
func JSON(w http.ResponseWriter, statusCode int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		Error(w, http.StatusInternalServerError, "Failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(buf.Bytes())
}

// Text writes a plain text response with the given status code and text content.
func Text(w http.ResponseWriter, statusCode int, text string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(text)); err != nil {
		http.Error(w, "Failed to write response", http.StatusInternalServerError)
	}
}

// ErrorResponse represents a structured error response.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Error sends a JSON response with an error code and message.
func Error(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	errorResponse := ErrorResponse{
		Code:    statusCode,
		Message: message,
	}
	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		// Fallback if JSON encoding fails
		http.Error(w, "Failed to encode error response", http.StatusInternalServerError)
	}
}
