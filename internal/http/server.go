package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/domain"
	"github.com/micheltsarasoa/dataparcwebapitraceability/internal/metrics"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxBodyBytes = 4 << 20

type TraceabilityService interface {
	ResolveDescendant(ctx context.Context, req *domain.DescendantRequest) (*domain.GenealogyResult, error)
	ResolveAscendant(ctx context.Context, req *domain.AscendantRequest) (*domain.GenealogyResult, error)
	CheckReliability(ctx context.Context, req *domain.ReliabilityRequest) (*domain.ReliabilityResult, error)
	LookupPosition(ctx context.Context, req *domain.LookupRequest) (*domain.LookupResult, error)
	SnapshotIdentifiers(ctx context.Context, req *domain.SnapshotRequest) (*domain.SnapshotResult, error)
	CheckHistorian(ctx context.Context) error
}

type HTTPServer struct {
	server  *http.Server
	router  *mux.Router
	service TraceabilityService
	logger  *zap.Logger
}

func NewHTTPServer(addr string, service TraceabilityService, logger *zap.Logger) *HTTPServer {
	router := mux.NewRouter()

	s := &HTTPServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		router:  router,
		service: service,
		logger:  logger,
	}

	// Middleware регистрации
	router.Use(s.metricsMiddleware)
	router.Use(s.loggingMiddleware)

	// Маршруты
	router.HandleFunc("/health", s.healthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/genealogy/descendant", s.resolveDescendant).Methods("POST")
	api.HandleFunc("/genealogy/ascendant", s.resolveAscendant).Methods("POST")
	api.HandleFunc("/traceability/reliability", s.checkReliability).Methods("POST")
	api.HandleFunc("/traceability/lookup", s.lookupPosition).Methods("POST")
	api.HandleFunc("/traceability/snapshot", s.snapshotIdentifiers).Methods("POST")

	// Метрики Prometheus
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// responseWriter для отслеживания статус кода и размера
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}

// middleware для сбора метрик HTTP запросов с использованием шаблона пути
func (s *HTTPServer) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		method := r.Method
		status := strconv.Itoa(rw.statusCode)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}

		metrics.HTTPRequests.WithLabelValues(method, path, status).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
		metrics.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(rw.size))
	})
}

// middleware для логирования HTTP запросов
func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("ip", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()),
			zap.Int("status", rw.statusCode),
			zap.Int("response_size", rw.size),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *HTTPServer) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CheckHistorian(r.Context()); err != nil {
		s.logger.Error("Health check failed", zap.Error(err))
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *HTTPServer) resolveDescendant(w http.ResponseWriter, r *http.Request) {
	var req domain.DescendantRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.service.ResolveDescendant(r.Context(), &req)
	if err != nil {
		s.writeError(w, "Failed to resolve descendant genealogy", err)
		return
	}
	s.writeJSON(w, statusCode(res.Status), res)
}

func (s *HTTPServer) resolveAscendant(w http.ResponseWriter, r *http.Request) {
	var req domain.AscendantRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.service.ResolveAscendant(r.Context(), &req)
	if err != nil {
		s.writeError(w, "Failed to resolve ascendant genealogy", err)
		return
	}
	s.writeJSON(w, statusCode(res.Status), res)
}

func (s *HTTPServer) checkReliability(w http.ResponseWriter, r *http.Request) {
	var req domain.ReliabilityRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.service.CheckReliability(r.Context(), &req)
	if err != nil {
		s.writeError(w, "Failed to check reliability", err)
		return
	}
	s.writeJSON(w, statusCode(res.Status), res)
}

func (s *HTTPServer) lookupPosition(w http.ResponseWriter, r *http.Request) {
	var req domain.LookupRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.service.LookupPosition(r.Context(), &req)
	if err != nil {
		s.writeError(w, "Failed to look up identifier position", err)
		return
	}
	s.writeJSON(w, statusCode(res.Status), res)
}

func (s *HTTPServer) snapshotIdentifiers(w http.ResponseWriter, r *http.Request) {
	var req domain.SnapshotRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.service.SnapshotIdentifiers(r.Context(), &req)
	if err != nil {
		s.writeError(w, "Failed to snapshot identifiers", err)
		return
	}
	s.writeJSON(w, statusCode(res.Status), res)
}

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.logger.Warn("invalid request body", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *HTTPServer) writeError(w http.ResponseWriter, msg string, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		http.Error(w, verr.Error(), http.StatusBadRequest)
		return
	}

	s.logger.Error(msg, zap.Error(err))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// statusCode тело ответа отдаётся при любом итоговом статусе
func statusCode(status domain.Status) int {
	switch status {
	case domain.StatusOK:
		return http.StatusOK
	case domain.StatusNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
