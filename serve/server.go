package serve

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	perrors "github.com/letstravel/prospensity/pkg/errors"
	"github.com/letstravel/prospensity/pkg/log"
)

// DefaultModelVersion is reported by /health unless overridden.
const DefaultModelVersion = "1.0.0"

const maxBodyBytes = 1 << 20

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	ModelLoaded bool   `json:"model_loaded"`
}

// Server routes prediction requests to a Predictor.
type Server struct {
	router    *mux.Router
	predictor *Predictor
	version   string
	logger    log.Logger
}

// NewServer builds the router. A nil predictor yields a server whose /health
// reports model_loaded=false and whose /predict answers 500.
func NewServer(pred *Predictor) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		predictor: pred,
		version:   DefaultModelVersion,
	}
	s.setupRoutes()
	return s
}

// WithVersion sets the model version reported by /health.
func (s *Server) WithVersion(v string) *Server {
	s.version = v
	return s
}

// WithLogger sets the logger.
func (s *Server) WithLogger(l log.Logger) *Server {
	s.logger = l
	if s.predictor != nil {
		s.predictor.WithLogger(l)
	}
	return s
}

func (s *Server) getLogger() log.Logger {
	if s.logger == nil {
		s.logger = log.GetLoggerWithName("serve")
	}
	return s.logger
}

func (s *Server) setupRoutes() {
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.getLogger().Info("Prediction service listening", "addr", addr, "model_loaded", s.predictor != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.getLogger().Info("Prediction service shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{
		"message": "Welcome to the customer propensity API",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSONResponse(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Version:     s.version,
		ModelLoaded: s.predictor != nil,
	})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	in, err := DecodeCustomerInput(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := in.Validate(); err != nil {
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.predictor == nil {
		writeErrorResponse(w, http.StatusInternalServerError, "model not loaded")
		return
	}
	resp, err := s.predictor.Predict(in.Features())
	if err != nil {
		s.getLogger().Error("Prediction failed", err)
		writeErrorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

// writeJSONResponse writes a JSON response with the given status code
func writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeErrorResponse writes {"error": message} with the given status code
func writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	writeJSONResponse(w, statusCode, map[string]string{"error": message})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs each request with its status and latency
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.getLogger().Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			log.DurationMsKey, time.Since(start).Milliseconds())
	})
}

// recoveryMiddleware turns a panic into a 500 response
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.getLogger().Error("Panic recovered", perrors.NewPanicError(r.URL.Path, rec),
					"method", r.Method)
				writeErrorResponse(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
