// Package api provides the HTTP server for SleepyStorybook.
//
// It exposes endpoints for chatting with the storyteller, generating stories
// through the reflection workflow, browsing saved stories, sharing them over
// WhatsApp and reading them aloud.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/SleepyStorybook/internal/conversation"
	"github.com/BTreeMap/SleepyStorybook/internal/flow"
	"github.com/BTreeMap/SleepyStorybook/internal/models"
	"github.com/BTreeMap/SleepyStorybook/internal/store"
	"github.com/BTreeMap/SleepyStorybook/internal/tts"
	"github.com/BTreeMap/SleepyStorybook/internal/twiliowhatsapp"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultAddr                     = ":8000"
	DefaultMaxConcurrentGenerations = 4
	DefaultGenerationTimeout        = 180 * time.Second
	DefaultShutdownTimeout          = 10 * time.Second
)

// StoryRouter decides how to answer a chat message.
type StoryRouter interface {
	Route(ctx context.Context, message string, history []models.ChatMessage, session *models.SessionContext) (conversation.Decision, error)
}

// StoryWorkflow produces a finished story from a prompt.
type StoryWorkflow interface {
	Run(ctx context.Context, req flow.Request) (*models.FinalStory, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr                     string
	CORSOrigins              []string
	MaxConcurrentGenerations int64
	GenerationTimeout        time.Duration
	Synthesizer              tts.Synthesizer
	Sender                   twiliowhatsapp.Sender
	Sessions                 conversation.SessionStore
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithCORSOrigins sets the origins allowed to call the API from a browser. "*" allows any origin.
func WithCORSOrigins(origins []string) Option {
	return func(o *Opts) { o.CORSOrigins = origins }
}

// WithMaxConcurrentGenerations bounds how many stories are generated at once.
func WithMaxConcurrentGenerations(n int) Option {
	return func(o *Opts) { o.MaxConcurrentGenerations = int64(n) }
}

// WithGenerationTimeout bounds a single workflow run.
func WithGenerationTimeout(d time.Duration) Option {
	return func(o *Opts) { o.GenerationTimeout = d }
}

// WithSynthesizer enables POST /api/tts.
func WithSynthesizer(s tts.Synthesizer) Option {
	return func(o *Opts) { o.Synthesizer = s }
}

// WithSender enables story sharing over WhatsApp.
func WithSender(s twiliowhatsapp.Sender) Option {
	return func(o *Opts) { o.Sender = s }
}

// WithSessionStore overrides the session store. The default writes through to the persistence store.
func WithSessionStore(s conversation.SessionStore) Option {
	return func(o *Opts) { o.Sessions = s }
}

// Server holds all dependencies for the API handlers.
type Server struct {
	st         store.Store
	sessions   conversation.SessionStore
	router     StoryRouter
	workflow   StoryWorkflow
	synth      tts.Synthesizer
	sender     twiliowhatsapp.Sender
	slots      *semaphore.Weighted
	cfg        Opts
	httpServer *http.Server
}

// NewServer creates a new API server instance with the provided dependencies.
func NewServer(st store.Store, router StoryRouter, workflow StoryWorkflow, opts ...Option) *Server {
	cfg := Opts{
		Addr:                     DefaultAddr,
		CORSOrigins:              []string{"*"},
		MaxConcurrentGenerations: DefaultMaxConcurrentGenerations,
		GenerationTimeout:        DefaultGenerationTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MaxConcurrentGenerations < 1 {
		cfg.MaxConcurrentGenerations = 1
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}
	if cfg.Sessions == nil {
		cfg.Sessions = conversation.NewStoreBackedSessions(st)
	}
	return &Server{
		st:       st,
		sessions: cfg.Sessions,
		router:   router,
		workflow: workflow,
		synth:    cfg.Synthesizer,
		sender:   cfg.Sender,
		slots:    semaphore.NewWeighted(cfg.MaxConcurrentGenerations),
		cfg:      cfg,
	}
}

// Handler returns the routed handler wrapped in CORS and logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.rootHandler)
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /api/chat", s.chatHandler)
	mux.HandleFunc("POST /api/generate-story", s.generateStoryHandler)
	mux.HandleFunc("GET /api/stories", s.listStoriesHandler)
	mux.HandleFunc("GET /api/stories/{id}", s.getStoryHandler)
	mux.HandleFunc("DELETE /api/stories/{id}", s.deleteStoryHandler)
	mux.HandleFunc("POST /api/stories/{id}/share", s.shareStoryHandler)
	mux.HandleFunc("POST /api/tts", s.ttsHandler)
	return s.withLogging(s.withCORS(mux))
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.cfg.GenerationTimeout + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "addr", s.cfg.Addr, "max_generations", s.cfg.MaxConcurrentGenerations,
			"tts", s.synth != nil, "share", s.sender != nil)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("Server failed", "error", err)
		return fmt.Errorf("failed to serve HTTP: %w", err)
	case <-ctx.Done():
		slog.Info("Server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Info("Server request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			if allowed := s.allowedOrigin(origin); allowed != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowed)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
				w.Header().Add("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) string {
	for _, o := range s.cfg.CORSOrigins {
		if o == "*" {
			return "*"
		}
		if o == origin {
			return origin
		}
	}
	return ""
}
