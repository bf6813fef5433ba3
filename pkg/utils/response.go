package utils

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Error kinds carried in error response bodies.
const (
	KindBadRequest     = "bad_request"
	KindValidation     = "validation_error"
	KindNotFound       = "not_found"
	KindClientNotReady = "client_not_ready"
	KindProvider       = "provider_error"
	KindInternal       = "internal_error"
)

// ErrorResponse 错误响应体
type ErrorResponse struct {
	Error     string    `json:"error"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RespondJSON 发送JSON响应
func RespondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// RespondError 发送错误响应
func RespondError(w http.ResponseWriter, status int, kind, detail string) {
	RespondJSON(w, status, ErrorResponse{
		Error:     kind,
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	})
}
