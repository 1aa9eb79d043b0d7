package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/jonwraymond/feedbackops/cache"
	"github.com/jonwraymond/feedbackops/feedback"
	"github.com/jonwraymond/feedbackops/observe"
	"github.com/jonwraymond/feedbackops/resilience"
)

// ErrNilCoordinator is returned by New without a coordinator.
var ErrNilCoordinator = errors.New("httpapi: coordinator is nil")

// StatusClientClosedRequest is logged when the caller went away first.
const StatusClientClosedRequest = 499

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusCode maps a request error to an HTTP status.
//
// Upstream rejections of the content itself are 422. Other permanent provider
// failures and exhausted retries are 502. Local back-pressure is 503.
func StatusCode(err error) int {
	var pe *feedback.ProviderError
	switch {
	case errors.Is(err, cache.ErrInvalidTag):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return StatusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, resilience.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, resilience.ErrRateLimitExceeded),
		errors.Is(err, resilience.ErrBulkheadFull):
		return http.StatusServiceUnavailable
	case errors.As(err, &pe) && pe.Kind == feedback.Permanent && contentRejected(pe.StatusCode):
		return http.StatusUnprocessableEntity
	case resilience.IsPermanent(err), errors.Is(err, resilience.ErrExhaustedRetries):
		return http.StatusBadGateway
	case errors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// contentRejected reports upstream statuses that blame the request body.
// Credential and routing failures are ours, not the caller's.
func contentRejected(code int) bool {
	switch code {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusCode(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed",
			observe.F("path", r.URL.Path),
			observe.F("status", code),
			observe.F("error", err),
		)
	}
	if code == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	msg := http.StatusText(code)
	if code < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, code, ErrorResponse{Error: msg})
}
