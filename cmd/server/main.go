package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liamcoop/decisioncentral/internal/config"
	"github.com/liamcoop/decisioncentral/internal/logger"
	"github.com/liamcoop/decisioncentral/internal/metrics"
	"github.com/liamcoop/decisioncentral/openapi"
	"github.com/liamcoop/decisioncentral/registry"
)

type Server struct {
	cfg      config.Config
	registry *registry.Registry
	docs     *openapi.Cache
	metrics  *metrics.Metrics
	router   *chi.Mux
}

// NewServer wires the HTTP routes over a registry. Generated documents are
// dropped from the cache whenever a service changes.
func NewServer(cfg config.Config, reg *registry.Registry, m *metrics.Metrics) *Server {
	docs := openapi.DefaultCacheConfig()
	docs.TTL = cfg.OpenAPICacheTTL
	docs.Observe = m.ObserveOpenAPICache

	s := &Server{
		cfg:      cfg,
		registry: reg,
		docs:     openapi.NewCache(docs),
		metrics:  m,
	}

	reg.OnChange(func(name string) {
		s.docs.Invalidate(name)
		if _, err := reg.Get(name); errors.Is(err, registry.ErrNotFound) {
			m.ForgetService(name)
		}
	})

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(s.cfg.SlowRequest))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	// Pages
	r.Get("/", s.handleIndex)
	r.Get("/uploadapi", s.handleUploadAPI)
	r.Get("/downloaduploadapi", s.handleDownloadUploadAPI)
	r.Post("/upload", s.handleUpload)
	r.Get("/show/{name}", s.handleShow)
	r.Get("/show/{name}/{part}", s.handleShowPart)
	r.Get("/show_api/{name}/{sheet}", s.handleShowTableAPI)
	r.Get("/show_delete/{name}/", s.handleShowDeleteAPI)
	r.Get("/show_delete/{name}", s.handleShowDeleteAPI)
	r.Get("/download/{name}", s.handleDownload)
	r.Get("/download/{name}/{sheet}", s.handleDownloadTable)
	r.Get("/download_delete/{name}", s.handleDownloadDelete)
	r.Get("/delete/{name}", s.handleDelete)

	// Decision API
	r.Route("/api", func(r chi.Router) {
		r.Post("/{name}", s.handleDecide)
		r.Delete("/{name}", s.handleDeleteAPI)
		r.Post("/{name}/{sheet}", s.handleDecideTable)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Ping(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"servicesLoaded": s.registry.Len(),
	})
}

// respondJSON encodes data before writing the header so an encoding failure
// becomes a 500 error document instead of a truncated body.
func respondJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		logger.Error("failed to encode response", "error", err)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]string{
			"error":   "failed to encode response",
			"details": err.Error(),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		logger.Warn("failed to write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}

	store, err := registry.OpenStore(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to open store", "error", err)
	}
	defer store.Close()

	reg := registry.New(store, nil)
	m := metrics.New(cfg.MetricsNamespace, reg.Len)
	server := NewServer(cfg, reg, m)

	// Load persisted services
	loaded, err := reg.LoadAll()
	if err != nil {
		logger.Warn("some decision services failed to load", "error", err)
	}
	logger.Info("decision services loaded", "count", loaded)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.ServiceDir != "" {
		watcher, err := registry.NewWatcher(reg, cfg.ServiceDir, registry.DefaultDebounce)
		if err != nil {
			logger.Fatal("failed to watch service directory", "dir", cfg.ServiceDir, "error", err)
		}
		if err := watcher.Sync(); err != nil {
			logger.Warn("some service files failed to load", "dir", cfg.ServiceDir, "error", err)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("service directory watcher stopped", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		logger.Info("server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
