package web

// errors.go turns pipeline errors into JSON error responses.
//
// Every error body carries a machine-readable code next to the message.
// The technical error is logged with the request id; the client only sees
// the mapped user message.

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/JonMunkholm/recordimport/internal/core"
	"github.com/JonMunkholm/recordimport/internal/logging"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

var rateLimitMessage = core.UserMessage{
	Message: "Too many requests",
	Action:  "Please wait a moment before trying again",
	Code:    "RATE001",
}

// badRequestErrors are the transport and shape errors that reject a
// submission wholesale.
var badRequestErrors = []error{
	core.ErrFileTooLarge,
	core.ErrParse,
	core.ErrNoFile,
	core.ErrNoRows,
	core.ErrUnsupportedFormat,
	core.ErrTooManyRows,
	core.ErrInvalidRequest,
	core.ErrOwnerNotFound,
	core.ErrMissingOwner,
}

// statusFor returns the HTTP status for a pipeline error.
func statusFor(err error) int {
	for _, target := range badRequestErrors {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	if errors.Is(err, core.ErrTooManyImports) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError logs err and writes its mapped message. Server errors are
// always reported as ERR000 so internal details never reach the client.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)
	if status == http.StatusInternalServerError {
		msg = core.InternalMessage()
	}

	log := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", msg.Code,
		"error", err.Error(),
	}
	if status >= http.StatusInternalServerError {
		log.Error("request failed", attrs...)
	} else {
		log.Warn("request rejected", attrs...)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	respondErrorJSON(w, msg, status)
}

func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

func splitHost(addr string) (string, bool) {
	host, _, err := net.SplitHostPort(addr)
	return host, err == nil
}
