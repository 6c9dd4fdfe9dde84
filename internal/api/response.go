package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/bft-labs/beacons/internal/domain"
)

// Response is the envelope of every JSON reply.
type Response struct {
	Result        string      `json:"result"`
	Data          interface{} `json:"data,omitempty"`
	Code          string      `json:"code,omitempty"`
	Message       string      `json:"message,omitempty"`
	CorrelationID string      `json:"correlationId"`
}

// Error codes.
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeUnavailable  = "UNAVAILABLE"
	CodeUnsupported  = "UNSUPPORTED"
	CodeInternal     = "INTERNAL"
)

func writeJSON(w http.ResponseWriter, status int, resp *Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, &Response{Result: "ok", Data: data, CorrelationID: uuid.NewString()})
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, &Response{Result: "error", Code: code, Message: message, CorrelationID: uuid.NewString()})
}

// statusOf maps an error to its HTTP status and envelope code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrInvalidPayload),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrInvalidConfig):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, domain.ErrResourceExhausted),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, domain.ErrNotRunning):
		return http.StatusServiceUnavailable, CodeUnavailable
	case errors.Is(err, domain.ErrUnsupportedPlatform):
		return http.StatusNotImplemented, CodeUnsupported
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func writeErr(w http.ResponseWriter, err error) {
	status, code := statusOf(err)
	writeError(w, status, code, err.Error())
}
