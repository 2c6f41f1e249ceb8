// Package httpx carries the JSON error envelope shared by every handler and
// middleware. Clients always see a stable code plus a human-readable message;
// storage and collaborator errors never leak through verbatim.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/plateful/api/internal/platform/requestctx"
)

// Error is one API error response.
type Error struct {
	Code      string `json:"error"`
	Message   string `json:"message"`
	Status    int    `json:"status"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// NewError builds an Error with a bounded code and message.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    bound(code, 80),
		Message: bound(message, 512),
		Status:  status,
	}
}

// WriteError emits the envelope, stamping the request and trace ids from the
// context so clients can quote them in support requests.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	if err.Status == 0 {
		err.Status = http.StatusInternalServerError
	}
	if err.RequestID == "" {
		err.RequestID = bound(middleware.GetReqID(ctx), 80)
	}
	if err.TraceID == "" {
		err.TraceID = bound(requestctx.TraceID(ctx), 64)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	_ = json.NewEncoder(w).Encode(err)
}

// bound strips newlines and truncates, keeping the envelope log- and
// client-safe regardless of what produced the message.
func bound(value string, limit int) string {
	value = strings.NewReplacer("\n", " ", "\r", " ").Replace(value)
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
