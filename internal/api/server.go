package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	kvErr "github.com/sajjad-MoBe/lsmstore/internal/errors"
	"github.com/sajjad-MoBe/lsmstore/internal/shared"
	"github.com/sajjad-MoBe/lsmstore/internal/storage"
)

// Store is the part of the storage engine the API serves
type Store interface {
	Put(key, value []byte) error
	Get(key []byte) ([]byte, bool, error)
	Flush() error
	Stats() storage.Stats
}

// Options configures a Server
type Options struct {
	Logger   *shared.Logger
	Tracer   *Tracer
	Registry *prometheus.Registry
}

// Server represents the HTTP API server
type Server struct {
	router  *mux.Router
	store   Store
	logger  *shared.Logger
	tracer  *Tracer
	metrics *Metrics
	health  *HealthManager
}

// PutRequest is the body of PUT /kv/{key}
type PutRequest struct {
	Value *string `json:"value"`
}

// KeyValueResponse is the body returned by GET /kv/{key}
type KeyValueResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// NewServer creates a new API server instance
func NewServer(store Store, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = shared.DefaultLogger
	}
	if opts.Tracer == nil {
		opts.Tracer = NewNoopTracer()
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		router:  mux.NewRouter().UseEncodedPath().SkipClean(true),
		store:   store,
		logger:  opts.Logger,
		tracer:  opts.Tracer,
		metrics: NewMetrics(opts.Registry),
		health:  NewHealthManager(),
	}
	s.health.RegisterChecker("storage", NewStorageHealthChecker(store))
	s.setupRoutes(opts.Registry)
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.Use(
		RecoveryMiddleware,
		LoggingMiddleware(s.logger),
		s.metrics.MetricsMiddleware,
		s.tracer.TracingMiddleware,
	)

	// Key-value operations
	s.router.HandleFunc("/kv/{key}", s.handleGet).Methods(http.MethodGet)
	s.router.HandleFunc("/kv/{key}", s.handlePut).Methods(http.MethodPut)

	// Admin
	s.router.HandleFunc("/admin/flush", s.handleFlush).Methods(http.MethodPost)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)

	// Health check and metrics
	s.router.HandleFunc("/health", s.health.HealthCheckHandler).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleGet handles GET /kv/{key} requests
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var (
		value []byte
		found bool
	)
	err = s.tracer.TraceStorageOperation(r.Context(), "get", func() error {
		var err error
		value, found, err = s.store.Get([]byte(key))
		return err
	})
	if err != nil {
		handleError(w, err)
		return
	}
	if !found {
		handleError(w, kvErr.New(kvErr.ErrorTypeNotFound, "key not found: "+key, nil))
		return
	}

	writeJSON(w, http.StatusOK, KeyValueResponse{Key: key, Value: string(value)})
}

// handlePut handles PUT /kv/{key} requests
func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key, err := pathKey(r)
	if err != nil {
		handleError(w, err)
		return
	}

	var req PutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleError(w, kvErr.New(kvErr.ErrorTypeInvalidArgument, "invalid request body", err))
		return
	}
	if req.Value == nil {
		handleError(w, kvErr.New(kvErr.ErrorTypeInvalidArgument, "value is required", nil))
		return
	}

	err = s.tracer.TraceStorageOperation(r.Context(), "put", func() error {
		return s.store.Put([]byte(key), []byte(*req.Value))
	})
	if err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// handleFlush handles POST /admin/flush requests
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	err := s.tracer.TraceStorageOperation(r.Context(), "flush", s.store.Flush)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.store.Stats())
}

// handleStats handles GET /stats requests
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Stats())
}

// pathKey returns the decoded {key} variable. The router matches the escaped
// path, so a key may contain '/'.
func pathKey(r *http.Request) (string, error) {
	key, err := url.PathUnescape(mux.Vars(r)["key"])
	if err != nil {
		return "", kvErr.New(kvErr.ErrorTypeInvalidArgument, "malformed key in path", err)
	}
	return key, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
