package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/yangwenmai/casefill/internal/model"
	"github.com/yangwenmai/casefill/internal/store"
	"github.com/yangwenmai/casefill/internal/worker"
)

// maxRequestBody is the maximum allowed request body size (1 MB).
const maxRequestBody int64 = 1 << 20

// Workflow is the part of the state machine the API drives synchronously.
type Workflow interface {
	Latest(ctx context.Context, caseID string) (model.WorkflowContext, store.Lookup, error)
	Submit(ctx context.Context, wc model.WorkflowContext, values map[string]string) (model.WorkflowContext, error)
	Reset(ctx context.Context, wc model.WorkflowContext) (model.WorkflowContext, error)
}

// Queue runs the browser phases in the background.
type Queue interface {
	Enqueue(j worker.Job) error
	Active(caseID string) (worker.Kind, bool)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithCORSOrigins sets the allowed CORS origins. Defaults to "*".
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// Server holds the HTTP handlers and dependencies.
type Server struct {
	flow    Workflow
	queue   Queue
	store   *store.Store
	log     *zap.Logger
	origins []string
	router  chi.Router
}

// New creates a new API server.
func New(flow Workflow, queue Queue, s *store.Store, opts ...Option) *Server {
	srv := &Server{flow: flow, queue: queue, store: s, log: zap.NewNop(), origins: []string{"*"}}
	for _, o := range opts {
		o(srv)
	}
	srv.routes()
	return srv
}

// Handler returns the root http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.accessLog)
	r.Use(limitBody)
	r.Use(jsonContent)

	r.Route("/api/cases", func(r chi.Router) {
		r.Post("/", s.handleStartCase)
		r.Route("/{caseID}", func(r chi.Router) {
			r.Get("/", s.handleGetCase)
			r.Get("/runs", s.handleListRuns)
			r.Get("/fields", s.handleFields)
			r.Post("/inputs", s.handleSubmitInputs)
			r.Post("/continue", s.handleContinue)
			r.Post("/reset", s.handleReset)
			r.Get("/artifacts", s.handleArtifacts)
		})
	})
	s.router = r
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// limitBody restricts the request body to maxRequestBody bytes.
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		next.ServeHTTP(w, r)
	})
}

func jsonContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// caseID returns the unescaped case id path parameter.
func caseID(r *http.Request) string {
	raw := chi.URLParam(r, "caseID")
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}
