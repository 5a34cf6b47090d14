package httpapi

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MimeLyc/batch-sub-translator/internal/config"
	"github.com/MimeLyc/batch-sub-translator/internal/jobs"
	"github.com/MimeLyc/batch-sub-translator/internal/library"
	"github.com/MimeLyc/batch-sub-translator/internal/persistence"
	"github.com/MimeLyc/batch-sub-translator/internal/prompt"
	"github.com/MimeLyc/batch-sub-translator/internal/service"
)

const maxRequestBody = 1 << 20

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

type runtimeSettingsApplier func(next config.RuntimeSettings) error

type eventLister interface {
	ListEvents(ctx context.Context, jobID string, afterID int64) ([]persistence.JobEvent, error)
}

type libraryScanner interface {
	Scan(ctx context.Context) (*library.Library, error)
	Invalidate()
}

// jobStatusReader inspects the on-disk progress of a job's run.
type jobStatusReader func(job *jobs.TranslationJob) (*service.Status, error)

type Server struct {
	queue    *jobs.Queue
	settings runtimeSettingsStore
	apply    runtimeSettingsApplier
	prompts  *prompt.Library
	events   eventLister
	status   jobStatusReader
	library  libraryScanner

	outputSuffix string
	corsOrigins  []string

	uiEnabled   bool
	uiStaticDir string

	router *chi.Mux

	mu        sync.Mutex
	server    *http.Server
	closing   chan struct{}
	closeOnce sync.Once
}

type Option func(*Server)

func WithUI(staticDir string, enabled bool) Option {
	return func(s *Server) {
		s.uiStaticDir = staticDir
		s.uiEnabled = enabled
	}
}

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

func WithRuntimeSettingsApplier(apply runtimeSettingsApplier) Option {
	return func(s *Server) {
		s.apply = apply
	}
}

func WithPromptLibrary(lib *prompt.Library) Option {
	return func(s *Server) {
		s.prompts = lib
	}
}

func WithEventLog(events eventLister) Option {
	return func(s *Server) {
		s.events = events
	}
}

func WithJobStatus(fn jobStatusReader) Option {
	return func(s *Server) {
		s.status = fn
	}
}

func WithLibrary(scanner libraryScanner) Option {
	return func(s *Server) {
		s.library = scanner
	}
}

// WithOutputSuffix sets the suffix used to derive an output path when a job
// request names only its input.
func WithOutputSuffix(suffix string) Option {
	return func(s *Server) {
		s.outputSuffix = suffix
	}
}

func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

func NewServer(queue *jobs.Queue, opts ...Option) *Server {
	s := &Server{
		queue:        queue,
		outputSuffix: ".zh",
		router:       chi.NewRouter(),
		closing:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()
	return srv.ListenAndServe()
}

// Shutdown ends open event streams and then shuts the listener down
// gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) routes() {
	r := s.router
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(cors.Handler(corsOptions(s.corsOrigins)))

	r.Route("/api", func(r chi.Router) {
		r.Use(maxBodySize(maxRequestBody))

		r.Get("/health", s.handleHealth)

		r.Get("/jobs", s.handleListJobs)
		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs/stream", s.handleJobStream)
		r.Get("/jobs/{id}", s.handleJobDetail)
		r.Delete("/jobs/{id}", s.handleCancelJob)
		r.Get("/jobs/{id}/events", s.handleJobEvents)

		r.Get("/library", s.handleLibrary)
		r.Get("/prompts", s.handleListPrompts)

		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleUpdateSettings)
	})

	r.NotFound(s.handleStatic)
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if !s.uiEnabled || s.uiStaticDir == "" || strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	rel := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	indexPath := filepath.Join(s.uiStaticDir, "index.html")

	if rel == "" || !strings.Contains(filepath.Base(rel), ".") {
		http.ServeFile(w, r, indexPath)
		return
	}

	filePath := filepath.Join(s.uiStaticDir, rel)
	if _, err := os.Stat(filePath); err != nil {
		http.ServeFile(w, r, indexPath)
		return
	}
	http.ServeFile(w, r, filePath)
}
