// Package config provides configuration management for invision.
// Configuration is loaded from environment variables with sensible defaults.
// Provider secrets are read here and nowhere else.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	// Default values
	DefaultPort            = 8787
	DefaultLogLevel        = "info"
	DefaultDataDir         = ".invision"
	DefaultMetadataBackend = BackendStatic
	DefaultPollInterval    = 5 * time.Second
	DefaultRateLimit       = 30 // analysis requests per minute per client IP

	// Environment variable names
	EnvPort             = "INVISION_PORT"
	EnvLogLevel         = "INVISION_LOG_LEVEL"
	EnvDataDir          = "INVISION_DATA_DIR"
	EnvMetadataBackend  = "INVISION_METADATA_BACKEND"
	EnvPostgresDSN      = "INVISION_POSTGRES_DSN"
	EnvCatalogPath      = "INVISION_CATALOG"
	EnvOnMissing        = "INVISION_ON_MISSING"
	EnvGeminiModel      = "INVISION_GEMINI_MODEL"
	EnvGeminiAPIVersion = "INVISION_GEMINI_API_VERSION"
	EnvReasoningModel   = "INVISION_REASONING_MODEL"
	EnvExtractionModel  = "INVISION_EXTRACTION_MODEL"
	EnvNATSURL          = "INVISION_NATS_URL"
	EnvNATSSubject      = "INVISION_NATS_SUBJECT"
	EnvPollInterval     = "INVISION_POLL_INTERVAL"
	EnvRateLimit        = "INVISION_RATE_LIMIT"
	EnvMediaRoot        = "INVISION_MEDIA_ROOT"

	// Provider secrets
	EnvGoogleAPIKey  = "GOOGLE_API_KEY"
	EnvOpenAIAPIKey  = "OPENAI_API_KEY"
	EnvOpenAIBaseURL = "OPENAI_BASE_URL"

	// Database filename
	DBFilename = "invision.db"

	// Metadata backends
	BackendStatic   = "static"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config defines the application configuration interface
type Config interface {
	Port() int
	LogLevel() string
	DataDir() string
	DBPath() string
	MetadataBackend() string
	PostgresDSN() string
	CatalogPath() string
	OnMissing() string
	GeminiModel() string
	GeminiAPIVersion() string
	ReasoningModel() string
	ExtractionModel() string
	NATSURL() string
	NATSSubject() string
	PollInterval() time.Duration
	RateLimit() int
	MediaRoot() string
	GoogleAPIKey() string
	OpenAIAPIKey() string
	OpenAIBaseURL() string
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	port            int
	logLevel        string
	dataDir         string
	metadataBackend string
	postgresDSN     string
	catalogPath     string
	onMissing       string

	geminiModel      string
	geminiAPIVersion string
	reasoningModel   string
	extractionModel  string

	natsURL      string
	natsSubject  string
	pollInterval time.Duration
	rateLimit    int
	mediaRoot    string

	googleAPIKey  string
	openAIAPIKey  string
	openAIBaseURL string
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	cfg := &EnvConfig{
		port:            DefaultPort,
		logLevel:        DefaultLogLevel,
		dataDir:         defaultDataDir(),
		metadataBackend: DefaultMetadataBackend,
		pollInterval:    DefaultPollInterval,
		rateLimit:       DefaultRateLimit,
	}

	// Override port from environment
	if p := os.Getenv(EnvPort); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPort, err)
		}
		if port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
		}
		cfg.port = port
	}

	if ll := os.Getenv(EnvLogLevel); ll != "" {
		cfg.logLevel = ll
	}

	if dd := os.Getenv(EnvDataDir); dd != "" {
		cfg.dataDir = dd
	}

	if mb := os.Getenv(EnvMetadataBackend); mb != "" {
		mb = strings.ToLower(strings.TrimSpace(mb))
		switch mb {
		case BackendStatic, BackendSQLite, BackendPostgres:
			cfg.metadataBackend = mb
		default:
			return nil, fmt.Errorf("invalid %s: %q (want static, sqlite or postgres)", EnvMetadataBackend, mb)
		}
	}

	cfg.postgresDSN = os.Getenv(EnvPostgresDSN)
	if cfg.metadataBackend == BackendPostgres && cfg.postgresDSN == "" {
		return nil, fmt.Errorf("%s is required when %s=postgres", EnvPostgresDSN, EnvMetadataBackend)
	}

	cfg.catalogPath = os.Getenv(EnvCatalogPath)
	cfg.onMissing = os.Getenv(EnvOnMissing)

	cfg.geminiModel = os.Getenv(EnvGeminiModel)
	cfg.geminiAPIVersion = os.Getenv(EnvGeminiAPIVersion)
	cfg.reasoningModel = os.Getenv(EnvReasoningModel)
	cfg.extractionModel = os.Getenv(EnvExtractionModel)

	cfg.natsURL = os.Getenv(EnvNATSURL)
	cfg.natsSubject = os.Getenv(EnvNATSSubject)

	if pi := os.Getenv(EnvPollInterval); pi != "" {
		d, err := time.ParseDuration(pi)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvPollInterval, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("invalid %s: must be positive", EnvPollInterval)
		}
		cfg.pollInterval = d
	}

	if rl := os.Getenv(EnvRateLimit); rl != "" {
		n, err := strconv.Atoi(rl)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvRateLimit, err)
		}
		if n < 1 {
			return nil, fmt.Errorf("invalid %s: must be at least 1", EnvRateLimit)
		}
		cfg.rateLimit = n
	}

	if mr := strings.TrimSpace(os.Getenv(EnvMediaRoot)); mr != "" {
		abs, err := filepath.Abs(mr)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", EnvMediaRoot, err)
		}
		cfg.mediaRoot = abs
	}

	cfg.googleAPIKey = os.Getenv(EnvGoogleAPIKey)
	cfg.openAIAPIKey = os.Getenv(EnvOpenAIAPIKey)
	cfg.openAIBaseURL = os.Getenv(EnvOpenAIBaseURL)

	return cfg, nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.port
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.logLevel
}

// DataDir returns the data directory path
func (c *EnvConfig) DataDir() string {
	return c.dataDir
}

// DBPath returns the full path to the SQLite database file
func (c *EnvConfig) DBPath() string {
	return filepath.Join(c.dataDir, DBFilename)
}

// MetadataBackend returns static, sqlite or postgres
func (c *EnvConfig) MetadataBackend() string {
	return c.metadataBackend
}

func (c *EnvConfig) PostgresDSN() string {
	return c.postgresDSN
}

// CatalogPath returns the YAML catalog for the static backend; empty means
// the built-in demo catalog.
func (c *EnvConfig) CatalogPath() string {
	return c.catalogPath
}

// OnMissing returns the unknown-camera policy ("fail" or "default:<room>");
// empty means the backend's default.
func (c *EnvConfig) OnMissing() string {
	return c.onMissing
}

func (c *EnvConfig) GeminiModel() string {
	return c.geminiModel
}

func (c *EnvConfig) GeminiAPIVersion() string {
	return c.geminiAPIVersion
}

func (c *EnvConfig) ReasoningModel() string {
	return c.reasoningModel
}

func (c *EnvConfig) ExtractionModel() string {
	return c.extractionModel
}

// NATSURL returns the NATS server URL; empty disables publishing.
func (c *EnvConfig) NATSURL() string {
	return c.natsURL
}

func (c *EnvConfig) NATSSubject() string {
	return c.natsSubject
}

func (c *EnvConfig) PollInterval() time.Duration {
	return c.pollInterval
}

// RateLimit returns the per-IP analysis request limit per minute
func (c *EnvConfig) RateLimit() int {
	return c.rateLimit
}

// MediaRoot is the directory local clips must live under; empty allows any
// readable video file.
func (c *EnvConfig) MediaRoot() string {
	return c.mediaRoot
}

func (c *EnvConfig) GoogleAPIKey() string {
	return c.googleAPIKey
}

func (c *EnvConfig) OpenAIAPIKey() string {
	return c.openAIAPIKey
}

func (c *EnvConfig) OpenAIBaseURL() string {
	return c.openAIBaseURL
}

// defaultDataDir returns the default data directory path
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
