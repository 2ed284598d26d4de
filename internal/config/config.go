package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tributary-ai/llm-router-ml/internal/catalog"
	"github.com/tributary-ai/llm-router-ml/internal/monitor"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Engine     EngineConfig     `yaml:"engine"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Logging    LoggingConfig    `yaml:"logging"`
	Security   SecurityConfig   `yaml:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
}

// EngineConfig holds routing engine configuration
type EngineConfig struct {
	DefaultObjective string        `yaml:"default_objective"`
	DriftThreshold   float64       `yaml:"drift_threshold"`
	AlertCooldown    time.Duration `yaml:"alert_cooldown"`
	AccuracyCooldown time.Duration `yaml:"accuracy_cooldown"`
	RandomSeed       int64         `yaml:"random_seed"` // 0 means time-seeded
}

// MonitoringConfig holds performance monitor configuration
type MonitoringConfig struct {
	Thresholds monitor.Config `yaml:"thresholds"`
}

// CatalogConfig holds the provider/model baseline tables
type CatalogConfig struct {
	Providers map[string][]catalog.ModelBaseline `yaml:"providers"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
	Output string `yaml:"output"` // "stdout", "stderr", or file path
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	APIKeys       []string      `yaml:"api_keys"`
	JWTSecret     string        `yaml:"jwt_secret"`
	JWTExpiration time.Duration `yaml:"jwt_expiration"`
	CORS          CORSConfig    `yaml:"cors"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	// Set defaults
	config.setDefaults()

	// Load from file if provided
	if configPath != "" {
		if err := config.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	config.loadFromEnv()

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults sets default configuration values
func (c *Config) setDefaults() {
	// Server defaults
	c.Server = ServerConfig{
		Port:           "8080",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	// Engine defaults
	c.Engine = EngineConfig{
		DefaultObjective: "balanced",
		DriftThreshold:   0.05,
		AlertCooldown:    time.Minute,
		AccuracyCooldown: 5 * time.Minute,
		RandomSeed:       0,
	}

	// Monitoring defaults
	c.Monitoring = MonitoringConfig{
		Thresholds: monitor.DefaultConfig(),
	}

	// Catalog defaults mirror the built-in baseline tables
	c.Catalog = CatalogConfig{}

	// Logging defaults
	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}

	// Security defaults
	c.Security = SecurityConfig{
		APIKeys:       []string{},
		JWTExpiration: 24 * time.Hour,
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key"},
		},
	}
}

// loadFromFile loads configuration from YAML file
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() {
	// Server configuration
	if port := os.Getenv("LLM_ROUTER_PORT"); port != "" {
		c.Server.Port = port
	}

	// Logging configuration
	if level := os.Getenv("LLM_ROUTER_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}

	if format := os.Getenv("LLM_ROUTER_LOG_FORMAT"); format != "" {
		c.Logging.Format = format
	}

	// Engine configuration
	if objective := os.Getenv("LLM_ROUTER_DEFAULT_OBJECTIVE"); objective != "" {
		c.Engine.DefaultObjective = objective
	}

	if seed := os.Getenv("LLM_ROUTER_RANDOM_SEED"); seed != "" {
		if parsed, err := strconv.ParseInt(seed, 10, 64); err == nil {
			c.Engine.RandomSeed = parsed
		}
	}

	// Security configuration
	if secret := os.Getenv("LLM_ROUTER_JWT_SECRET"); secret != "" {
		c.Security.JWTSecret = secret
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	// Validate server port
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}

	// Validate routing objective
	validObjectives := map[string]bool{
		"cost":     true,
		"speed":    true,
		"quality":  true,
		"balanced": true,
	}

	if !validObjectives[c.Engine.DefaultObjective] {
		return fmt.Errorf("invalid default objective: %s", c.Engine.DefaultObjective)
	}

	// Validate logging level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}

	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate sampling strategy
	validStrategies := map[string]bool{
		"uniform":  true,
		"adaptive": true,
		"tiered":   true,
	}

	if !validStrategies[c.Monitoring.Thresholds.SamplingStrategy] {
		return fmt.Errorf("invalid sampling strategy: %s", c.Monitoring.Thresholds.SamplingStrategy)
	}

	if rate := c.Monitoring.Thresholds.BaseSamplingRate; rate <= 0 || rate > 1 {
		return fmt.Errorf("base sampling rate must be in (0,1], got %v", rate)
	}

	if c.Engine.DriftThreshold <= 0 || c.Engine.DriftThreshold >= 1 {
		return fmt.Errorf("drift threshold must be in (0,1), got %v", c.Engine.DriftThreshold)
	}

	// Validate catalog tables when overridden
	for provider, models := range c.Catalog.Providers {
		if len(models) == 0 {
			return fmt.Errorf("provider %q must have at least one model configured", provider)
		}
		for _, m := range models {
			if m.Model == "" {
				return fmt.Errorf("provider %q has a model with an empty name", provider)
			}
			if m.Quality < 0 || m.Quality > 1 {
				return fmt.Errorf("provider %q model %q quality must be in [0,1]", provider, m.Model)
			}
		}
	}

	return nil
}

// BuildCatalog returns the configured catalog, or the built-in default when
// no override is present.
func (c *Config) BuildCatalog() *catalog.Catalog {
	if len(c.Catalog.Providers) == 0 {
		return catalog.Default()
	}
	return catalog.New(c.Catalog.Providers)
}
