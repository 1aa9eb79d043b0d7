package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Response is the JSON body of the readiness and detail endpoints.
type Response struct {
	Status    Status                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Checks    map[string]CheckResponse `json:"checks,omitempty"`
}

// CheckResponse is the JSON form of a single Result.
type CheckResponse struct {
	Status   Status         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Duration string         `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func newCheckResponse(r Result) CheckResponse {
	cr := CheckResponse{
		Status:   r.Status,
		Message:  r.Message,
		Duration: r.Duration.String(),
		Details:  r.Details,
	}
	if r.Error != nil {
		cr.Error = r.Error.Error()
	}
	return cr
}

// statusCode maps a status to an HTTP code. Degraded still serves traffic.
func statusCode(s Status) int {
	if s == StatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// LivenessHandler reports that the process is up.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// ReadinessHandler runs every check and reports only the overall status.
func ReadinessHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := OverallStatus(agg.CheckAll(r.Context()))
		writeJSON(w, statusCode(status), Response{Status: status, Timestamp: time.Now().UTC()})
	}
}

// DetailedHandler runs every check and reports each result.
func DetailedHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := agg.CheckAll(r.Context())
		status := OverallStatus(results)

		resp := Response{
			Status:    status,
			Timestamp: time.Now().UTC(),
			Checks:    make(map[string]CheckResponse, len(results)),
		}
		for name, result := range results {
			resp.Checks[name] = newCheckResponse(result)
		}
		writeJSON(w, statusCode(status), resp)
	}
}

// SingleCheckHandler reports the check named by the {name} URL parameter.
func SingleCheckHandler(agg *Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := agg.Check(r.Context(), chi.URLParam(r, "name"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, statusCode(result.Status), newCheckResponse(result))
	}
}

// Mount registers the health endpoints on r.
func Mount(r chi.Router, agg *Aggregator) {
	r.Get("/healthz", LivenessHandler())
	r.Get("/readyz", ReadinessHandler(agg))
	r.Get("/health", DetailedHandler(agg))
	r.Get("/health/{name}", SingleCheckHandler(agg))
}
