package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/llm-router-ml/internal/accuracy"
	"github.com/tributary-ai/llm-router-ml/internal/config"
	"github.com/tributary-ai/llm-router-ml/internal/experiment"
	"github.com/tributary-ai/llm-router-ml/internal/features"
	"github.com/tributary-ai/llm-router-ml/internal/middleware"
	"github.com/tributary-ai/llm-router-ml/internal/monitor"
	"github.com/tributary-ai/llm-router-ml/internal/prediction"
	"github.com/tributary-ai/llm-router-ml/internal/routing"
	"github.com/tributary-ai/llm-router-ml/internal/security"
	"github.com/tributary-ai/llm-router-ml/internal/selection"
	"github.com/tributary-ai/llm-router-ml/internal/server"
	"github.com/tributary-ai/llm-router-ml/internal/telemetry"
	"github.com/tributary-ai/llm-router-ml/internal/types"
)

// Application represents the main application
type Application struct {
	config *config.Config
	router *routing.Router
	server *server.Server
	logger *logrus.Logger
}

// NewApplication creates a new application instance
func NewApplication(configPath string) (*Application, error) {
	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := logrus.New()
	if err := setupLogger(logger, cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	// Prometheus registry and engine metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(registry)

	// Build the routing engine
	routerInstance := buildRouter(cfg, metrics, logger)

	// Security and validation middleware
	auth := security.NewAuthenticator(&security.Config{
		APIKeys:     cfg.Security.APIKeys,
		JWTSecret:   cfg.Security.JWTSecret,
		JWTExpiry:   cfg.Security.JWTExpiration,
		RequireAuth: len(cfg.Security.APIKeys) > 0 || cfg.Security.JWTSecret != "",
	}, logger)

	validation, err := middleware.NewValidationMiddleware(&middleware.ValidationConfig{
		Enabled:  true,
		SpecPath: "docs/openapi.yaml",
	}, logger)
	if err != nil {
		logger.WithError(err).Warn("OpenAPI validation disabled, spec unavailable")
		validation, _ = middleware.NewValidationMiddleware(&middleware.ValidationConfig{Enabled: false}, logger)
	}

	// Create server
	serverInstance := server.NewServer(routerInstance, &server.ServerConfig{
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}, auth, validation, registry, logger)

	return &Application{
		config: cfg,
		router: routerInstance,
		server: serverInstance,
		logger: logger,
	}, nil
}

// buildRouter wires the routing engine from configuration.
func buildRouter(cfg *config.Config, metrics *telemetry.Metrics, logger *logrus.Logger) *routing.Router {
	seed := cfg.Engine.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	cat := cfg.BuildCatalog()
	alerts := monitor.NewAlertLog(cfg.Engine.AlertCooldown, logger)
	alerts.SetTypeCooldown(types.AlertAccuracyDegradation, cfg.Engine.AccuracyCooldown)
	alerts.SetTypeCooldown(types.AlertDriftDetected, cfg.Engine.AccuracyCooldown)
	perfMon := monitor.NewMonitor(cfg.Monitoring.Thresholds, alerts, rand.New(rand.NewSource(seed)), logger)
	perfMon.Start()

	return routing.New(
		features.NewExtractor(logger),
		prediction.NewPredictor(cat, logger),
		selection.NewSelector(logger),
		experiment.NewEngine(rand.New(rand.NewSource(seed+1)), logger),
		accuracy.NewMonitor(cfg.Engine.DriftThreshold, alerts, logger),
		perfMon,
		alerts,
		cat,
		metrics,
		logger,
	)
}

// Run starts the application
func (app *Application) Run() error {
	app.logger.Info("Starting LLM Router ML")

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		app.logger.WithField("address", ":"+app.config.Server.Port).Info("HTTP server starting")
		if err := app.server.Start(); err != nil {
			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		app.logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	}

	// Graceful shutdown
	app.logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.server.Stop(shutdownCtx); err != nil {
		app.logger.WithError(err).Error("Server shutdown error")
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Stop the engine's background timers
	app.router.Stop()

	app.logger.Info("Graceful shutdown completed")
	return nil
}

// setupLogger configures the logger based on configuration
func setupLogger(logger *logrus.Logger, config config.LoggingConfig) error {
	// Set log level
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %s: %w", config.Level, err)
	}
	logger.SetLevel(level)

	// Set log format
	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339,
		})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return fmt.Errorf("invalid log format: %s", config.Format)
	}

	// Set output
	switch config.Output {
	case "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		// Assume it's a file path
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", config.Output, err)
		}
		logger.SetOutput(file)
	}

	return nil
}

// printUsage prints application usage information
func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
	fmt.Fprintf(os.Stderr, "  LLM_ROUTER_PORT               Server port (default: 8080)\n")
	fmt.Fprintf(os.Stderr, "  LLM_ROUTER_LOG_LEVEL          Log level (debug,info,warn,error,fatal)\n")
	fmt.Fprintf(os.Stderr, "  LLM_ROUTER_LOG_FORMAT         Log format (json,text)\n")
	fmt.Fprintf(os.Stderr, "  LLM_ROUTER_DEFAULT_OBJECTIVE  Default optimization objective\n")
	fmt.Fprintf(os.Stderr, "  LLM_ROUTER_JWT_SECRET         JWT signing secret\n")
	fmt.Fprintf(os.Stderr, "  LLM_ROUTER_RANDOM_SEED        Seed for sampling/assignment draws\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s --config configs/config.yaml\n", os.Args[0])
}

func main() {
	// Parse command line flags
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		showHelp   = flag.Bool("help", false, "Show help message")
		version    = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	if *version {
		fmt.Printf("LLM Router ML v1.0.0\n")
		os.Exit(0)
	}

	// Create and run application
	app, err := NewApplication(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create application: %v\n", err)
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}
