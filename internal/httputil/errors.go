// Package httputil holds the HTTP plumbing shared by every endpoint: JSON
// responses, error responses and request ids.
//
// Every HTTP error response goes through Error, ErrorCode or ServerError so
// that it is logged with its request context and returned as JSON:
//
//	httputil.Error(w, r, logger, http.StatusBadRequest, "no values",
//	    "request body decoded but values is empty")
package httputil

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

// WithRequestID returns ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// RequestID returns the id stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	Status    int    `json:"status"`
	Code      int    `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Error writes a JSON error response and logs it with the request context.
//
// reason is returned to the client. why is logged but never sent: it records
// the root cause for whoever reads the logs.
func Error(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status int, reason string, why string) {
	ErrorCode(w, r, logger, status, 0, reason, why)
}

// ErrorCode is Error with a unit system status code in the body.
func ErrorCode(w http.ResponseWriter, r *http.Request, logger *slog.Logger, status, code int, reason string, why string) {
	id := RequestID(r.Context())
	logger.Error(reason,
		"status", status,
		"code", code,
		"method", r.Method,
		"path", r.URL.Path,
		"remote", r.RemoteAddr,
		"request_id", id,
		"why", why,
	)
	JSON(w, status, ErrorBody{Error: reason, Status: status, Code: code, RequestID: id})
}

// ServerError is a 500 for unexpected failures. err is logged, not returned:
// it may hold paths or configuration.
func ServerError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, reason string, why string, err error) {
	id := RequestID(r.Context())
	logger.Error(reason,
		"status", http.StatusInternalServerError,
		"method", r.Method,
		"path", r.URL.Path,
		"remote", r.RemoteAddr,
		"request_id", id,
		"why", why,
		"error", err,
	)
	JSON(w, http.StatusInternalServerError, ErrorBody{Error: reason, Status: http.StatusInternalServerError, RequestID: id})
}
