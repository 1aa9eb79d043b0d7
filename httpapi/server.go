// Package httpapi exposes the feedback coordinator over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/jonwraymond/feedbackops/cache"
	"github.com/jonwraymond/feedbackops/health"
	"github.com/jonwraymond/feedbackops/observe"
)

// DefaultMaxBodyBytes caps request content.
const DefaultMaxBodyBytes = 1 << 20

// Coordinator serves feedback. *feedback.Coordinator implements it.
type Coordinator interface {
	Request(ctx context.Context, tag string, content []byte) ([]byte, error)
	Key(tag string, content []byte) (cache.Key, error)
	InFlight() int
}

// Warmer queues background cache warming. *jobs.Enqueuer implements it.
type Warmer interface {
	Warm(ctx context.Context, tag string, content []byte) (bool, error)
}

// Options configures a Server. Coordinator is required.
type Options struct {
	Coordinator Coordinator
	// Stats supplies usage counters for /v1/stats.
	Stats interface{ Snapshot() observe.Snapshot }
	// Cache, when set, adds the entry count to /v1/stats.
	Cache interface{ Len() int }
	// Warmer enables POST /v1/warm/{tag}.
	Warmer Warmer
	Health *health.Aggregator
	// Metrics is served at /metrics when set.
	Metrics      http.Handler
	Middleware   *observe.Middleware
	Logger       observe.Logger
	MaxBodyBytes int64
}

// Server routes HTTP requests to the coordinator.
type Server struct {
	opts    Options
	request observe.RequestFunc
	logger  observe.Logger
	router  chi.Router
}

// New builds the router.
func New(opts Options) (*Server, error) {
	if opts.Coordinator == nil {
		return nil, ErrNilCoordinator
	}
	if opts.Logger == nil {
		opts.Logger = observe.NopLogger()
	}
	if opts.Middleware == nil {
		opts.Middleware = observe.NewMiddleware(nil, opts.Logger)
	}
	if opts.Health == nil {
		opts.Health = health.NewAggregator()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		opts:    opts,
		request: opts.Middleware.Wrap(opts.Coordinator.Request),
		logger:  opts.Logger,
	}
	s.router = s.routes(observe.Zerolog(opts.Logger))
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes(zl zerolog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(hlog.NewHandler(zl))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", d).
			Msg("http request")
	}))
	r.Use(chimw.Recoverer)

	health.Mount(r, s.opts.Health)
	if s.opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/feedback/{tag}", s.handleFeedback)
		r.Get("/stats", s.handleStats)
		if s.opts.Warmer != nil {
			r.Post("/warm/{tag}", s.handleWarm)
		}
	})
	return r
}

// FeedbackResponse is the body of a successful feedback request. Feedback
// is the provider's output verbatim when it is JSON, else a JSON string.
type FeedbackResponse struct {
	Tag      string          `json:"tag"`
	Key      string          `json:"key"`
	Feedback json.RawMessage `json:"feedback"`
}

func rawOrString(v []byte) json.RawMessage {
	if json.Valid(v) {
		return v
	}
	b, _ := json.Marshal(string(v))
	return b
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	content, ok := s.readBody(w, r)
	if !ok {
		return
	}

	key, err := s.opts.Coordinator.Key(tag, content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	value, err := s.request(r.Context(), tag, content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FeedbackResponse{Tag: tag, Key: key.String(), Feedback: rawOrString(value)})
}

// WarmResponse is the body of a warm request.
type WarmResponse struct {
	Tag    string `json:"tag"`
	Queued bool   `json:"queued"`
}

func (s *Server) handleWarm(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	content, ok := s.readBody(w, r)
	if !ok {
		return
	}

	queued, err := s.opts.Warmer.Warm(r.Context(), tag, content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	code := http.StatusAccepted
	if !queued {
		code = http.StatusOK
	}
	writeJSON(w, code, WarmResponse{Tag: tag, Queued: queued})
}

// StatsResponse is the body of /v1/stats.
type StatsResponse struct {
	observe.Snapshot
	HitRatio     float64 `json:"hit_ratio"`
	InFlight     int     `json:"in_flight"`
	CacheEntries *int    `json:"cache_entries,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	var resp StatsResponse
	if s.opts.Stats != nil {
		resp.Snapshot = s.opts.Stats.Snapshot()
		resp.HitRatio = resp.Snapshot.HitRatio()
	}
	resp.InFlight = s.opts.Coordinator.InFlight()
	if s.opts.Cache != nil {
		n := s.opts.Cache.Len()
		resp.CacheEntries = &n
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	content, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "content too large"})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "unreadable body"})
		return nil, false
	}
	return content, true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
