// Package server exposes the metrics engine as a read-only JSON API.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"commodity-prices/models"
	"commodity-prices/services"
	"commodity-prices/telemetry"
	"commodity-prices/utils"
)

// TableProvider returns the current canonical table.
type TableProvider func(ctx context.Context) (*models.Table, error)

// Config holds listener settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig listens on addr with conservative timeouts.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:         addr,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

type ctxKey struct{}

// RequestID returns the id assigned to the request by the server.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// Server is the HTTP front of the metrics engine.
type Server struct {
	router   *mux.Router
	srv      *http.Server
	logger   *utils.Logger
	engine   *services.MetricsEngine
	insights *services.InsightService
	tables   TableProvider
}

// New builds the router. metrics may be nil, in which case /metrics is not
// served.
func New(logger *utils.Logger, engine *services.MetricsEngine, tables TableProvider, metrics http.Handler, cfg Config) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		logger:   logger,
		engine:   engine,
		insights: services.NewInsightService(logger, engine),
		tables:   tables,
	}
	s.routes(metrics)
	s.srv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) routes(metrics http.Handler) {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	if metrics != nil {
		s.router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/quality", s.quality).Methods(http.MethodGet)
	api.HandleFunc("/validate", s.validate).Methods(http.MethodGet)
	api.HandleFunc("/kpi", s.kpi).Methods(http.MethodGet)
	api.HandleFunc("/insights", s.insightReport).Methods(http.MethodGet)
	api.HandleFunc("/anomalies", s.anomalies).Methods(http.MethodGet)
	api.HandleFunc("/movers", s.movers).Methods(http.MethodGet)
	api.HandleFunc("/ranking", s.ranking).Methods(http.MethodGet)
	api.HandleFunc("/volatility", s.volatility).Methods(http.MethodGet)
	api.HandleFunc("/summary", s.summary).Methods(http.MethodGet)
	api.HandleFunc("/moving-average", s.movingAverage).Methods(http.MethodGet)
	api.HandleFunc("/weekly", s.weekly).Methods(http.MethodGet)
	api.HandleFunc("/export.csv", s.export).Methods(http.MethodGet)

	s.router.NotFoundHandler = s.requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	}))
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start blocks serving until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("[server] Listening on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("[server] Shutting down")
	return s.srv.Shutdown(ctx)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		telemetry.RecordRequest(route, strconv.Itoa(rw.statusCode/100)+"xx")
		s.logger.Debug("[server] %s %s %s %d %v", RequestID(r.Context()), r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}

type responseWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWrapper) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
