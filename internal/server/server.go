package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-ml/internal/experiment"
	"github.com/tributary-ai/llm-router-ml/internal/middleware"
	"github.com/tributary-ai/llm-router-ml/internal/routing"
	"github.com/tributary-ai/llm-router-ml/internal/security"
	"github.com/tributary-ai/llm-router-ml/internal/types"
)

// Server represents the HTTP server
type Server struct {
	router     *routing.Router
	httpServer *http.Server
	logger     *logrus.Logger
	config     *ServerConfig
	auth       *security.Authenticator
	validation *middleware.ValidationMiddleware
	registry   *prometheus.Registry
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// NewServer creates a new server instance
func NewServer(router *routing.Router, config *ServerConfig, auth *security.Authenticator, validation *middleware.ValidationMiddleware, registry *prometheus.Registry, logger *logrus.Logger) *Server {
	return &Server{
		router:     router,
		logger:     logger,
		config:     config,
		auth:       auth,
		validation: validation,
		registry:   registry,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	r := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           ":" + s.config.Port,
		Handler:        r,
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}

	s.logger.WithField("port", s.config.Port).Info("Starting routing engine server")
	return s.httpServer.ListenAndServe()
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping routing engine server")
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	if s.auth != nil {
		r.Use(s.auth.Middleware())
	}
	if s.validation != nil {
		r.Use(s.validation.Middleware)
	}
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.contentTypeMiddleware)

	// API routes
	api := r.PathPrefix("/v1").Subrouter()

	// Routing and learning
	api.HandleFunc("/route/decision", s.handleRouteDecision).Methods("POST")
	api.HandleFunc("/learn", s.handleLearn).Methods("POST")

	// Insight and telemetry queries
	api.HandleFunc("/insights", s.handleInsights).Methods("GET")
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods("GET")
	api.HandleFunc("/health", s.handleHealthCheck).Methods("GET")
	api.HandleFunc("/alerts", s.handleAlerts).Methods("GET")
	api.HandleFunc("/alerts/{id}/resolve", s.handleResolveAlert).Methods("POST")
	api.HandleFunc("/trends", s.handleTrends).Methods("GET")
	api.HandleFunc("/drift", s.handleDrift).Methods("GET")

	// Experiment management
	api.HandleFunc("/experiments", s.handleListExperiments).Methods("GET")
	api.HandleFunc("/experiments", s.handleCreateExperiment).Methods("POST")
	api.HandleFunc("/experiments/{id}/start", s.handleStartExperiment).Methods("POST")
	api.HandleFunc("/experiments/{id}/complete", s.handleCompleteExperiment).Methods("POST")
	api.HandleFunc("/experiments/{id}/assignment", s.handleGetAssignment).Methods("GET")
	api.HandleFunc("/experiments/{id}/outcomes", s.handleExperimentOutcomes).Methods("GET")

	// Prometheus metrics
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	// Swagger documentation
	s.setupSwaggerRoutes(r)

	// Health check endpoint (no /v1 prefix)
	r.HandleFunc("/health", s.handleHealthCheck).Methods("GET")

	return r
}

// Middleware

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}
		next.ServeHTTP(wrapped, r)

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapped.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request")
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) contentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" || r.Method == "PUT" {
			contentType := r.Header.Get("Content-Type")
			if contentType != "application/json" && contentType != "" {
				s.writeErrorResponse(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Request payloads

type routeDecisionRequest struct {
	Request            types.AIRequest    `json:"request"`
	UserID             string             `json:"user_id,omitempty"`
	AvailableProviders []string           `json:"available_providers"`
	Options            types.RouteOptions `json:"options"`
}

type learnRequest struct {
	Request          types.AIRequest         `json:"request"`
	UserID           string                  `json:"user_id,omitempty"`
	Provider         string                  `json:"provider"`
	Model            string                  `json:"model"`
	Response         *types.AIResponse       `json:"response,omitempty"`
	Error            string                  `json:"error,omitempty"`
	ResponseTimeMs   float64                 `json:"response_time_ms"`
	Prediction       *types.PredictionResult `json:"prediction,omitempty"`
	UserSatisfaction *float64                `json:"user_satisfaction,omitempty"`
}

// Handlers

// handleRouteDecision returns a routing decision without executing anything.
func (s *Server) handleRouteDecision(w http.ResponseWriter, r *http.Request) {
	var req routeDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	if req.Request.ID == "" {
		req.Request.ID = fmt.Sprintf("route-%d", time.Now().UnixNano())
	}
	req.Request.Timestamp = time.Now()

	decision := s.router.IntelligentRoute(&req.Request, s.resolveUserID(r, req.UserID), req.AvailableProviders, req.Options)

	s.writeJSON(w, http.StatusOK, decision)
}

// handleLearn ingests one ground-truth execution result.
func (s *Server) handleLearn(w http.ResponseWriter, r *http.Request) {
	var req learnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}
	if req.Provider == "" || req.Model == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "provider and model are required")
		return
	}

	var execErr error
	if req.Error != "" {
		execErr = fmt.Errorf("%s", req.Error)
	}

	s.router.LearnFromExecution(&req.Request, s.resolveUserID(r, req.UserID),
		req.Provider, req.Model, req.Response, execErr, req.ResponseTimeMs,
		req.Prediction, req.UserSatisfaction)

	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	userID := s.resolveUserID(r, r.URL.Query().Get("user_id"))
	s.writeJSON(w, http.StatusOK, s.router.GetMLInsights(userID))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.router.GetCurrentSnapshot())
}

// handleHealthCheck returns overall engine health
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := s.router.GetHealthStatus()

	statusCode := http.StatusOK
	if health.Status == "critical" {
		statusCode = http.StatusServiceUnavailable
	}
	s.writeJSON(w, statusCode, health)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	unresolvedOnly := r.URL.Query().Get("unresolved") == "true"
	alerts := s.router.GetAlerts(unresolvedOnly)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !s.router.ResolveAlert(id) {
		s.writeErrorResponse(w, http.StatusNotFound, fmt.Sprintf("Alert %s not found", id))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *Server) handleTrends(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeErrorResponse(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = parsed
	}

	snapshots := s.router.GetPerformanceTrends(hours)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
		"hours":     hours,
	})
}

func (s *Server) handleDrift(w http.ResponseWriter, r *http.Request) {
	baseline := r.URL.Query().Get("baseline")
	candidate := r.URL.Query().Get("candidate")
	if baseline == "" || candidate == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "baseline and candidate keys are required")
		return
	}

	s.writeJSON(w, http.StatusOK, s.router.Accuracy().DetectDrift(baseline, candidate))
}

// Experiment handlers

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	experiments := s.router.Experiments().List()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"experiments": experiments,
		"count":       len(experiments),
	})
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var def experiment.Definition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %v", err))
		return
	}

	id, err := s.router.Experiments().Define(def)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleStartExperiment(w http.ResponseWriter, r *http.Request) {
	if err := s.router.Experiments().Start(mux.Vars(r)["id"]); err != nil {
		s.writeErrorResponse(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

func (s *Server) handleCompleteExperiment(w http.ResponseWriter, r *http.Request) {
	if err := s.router.Experiments().Complete(mux.Vars(r)["id"]); err != nil {
		s.writeErrorResponse(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.writeErrorResponse(w, http.StatusBadRequest, "user_id is required")
		return
	}

	assignment := s.router.Experiments().GetAssignment(mux.Vars(r)["id"], userID)
	if assignment == nil {
		s.writeErrorResponse(w, http.StatusNotFound, "No assignment for this user")
		return
	}
	s.writeJSON(w, http.StatusOK, assignment)
}

func (s *Server) handleExperimentOutcomes(w http.ResponseWriter, r *http.Request) {
	outcomes := s.router.Experiments().Outcomes(mux.Vars(r)["id"])
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"outcomes": outcomes,
		"count":    len(outcomes),
	})
}

// Helper functions

// resolveUserID prefers an explicit user ID and falls back to the
// authenticated principal.
func (s *Server) resolveUserID(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if principal, ok := security.GetPrincipal(r.Context()); ok {
		return principal.UserID
	}
	return ""
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	errorResp := map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"type":    "api_error",
			"code":    statusCode,
		},
		"timestamp": time.Now().Unix(),
	}
	s.writeJSON(w, statusCode, errorResp)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
