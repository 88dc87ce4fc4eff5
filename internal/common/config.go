package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Document DocumentConfig
	LLM      LLMConfig
	Vision   VisionConfig
	GCP      GCPConfig
	Workflow WorkflowConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
	AutoMigrate      bool
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// DocumentConfig holds PDF tooling configuration
type DocumentConfig struct {
	Pdftotext  string
	Pdftoppm   string
	Pdfimages  string
	UploadDir  string
	RenderZoom float64
}

// LLMConfig holds configuration of the text model used on extracted text
type LLMConfig struct {
	Provider      string // openai | vertex | none
	Model         string
	APIKey        string
	BaseURL       string
	Temperature   float32
	Timeout       time.Duration
	MaxInputChars int
}

// VisionConfig holds configuration of the multimodal model used on page images
type VisionConfig struct {
	Model       string
	MaxTokens   int
	Detail      string
	Concurrency int
}

// GCPConfig holds Google Cloud settings for Vertex AI, Firestore and Storage
type GCPConfig struct {
	ProjectID            string
	Region               string
	CheckpointCollection string
	ExportBucket         string
}

// WorkflowConfig holds extraction workflow settings
type WorkflowConfig struct {
	CheckpointBackend   string // sql | firestore | memory
	CheckpointTTL       time.Duration
	MaxPasswordAttempts int
	RawTextLimit        int
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
			AutoMigrate:      getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		Document: DocumentConfig{
			Pdftotext:  getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdftoppm:   getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Pdfimages:  getEnv("PDFIMAGES_BIN", "pdfimages"),
			UploadDir:  getEnv("UPLOAD_DIR", "/tmp/lab_reports"),
			RenderZoom: getEnvAsFloat64("RENDER_ZOOM", 2.0),
		},
		LLM: LLMConfig{
			Provider:      strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
			Model:         getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			APIKey:        getEnv("OPENAI_API_KEY", ""),
			BaseURL:       getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Temperature:   getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:       getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
			MaxInputChars: getEnvAsInt("LLM_MAX_INPUT_CHARS", 8000),
		},
		Vision: VisionConfig{
			Model:       getEnv("VISION_MODEL", "gpt-4o"),
			MaxTokens:   getEnvAsInt("VISION_MAX_TOKENS", 4000),
			Detail:      getEnv("VISION_DETAIL", "high"),
			Concurrency: getEnvAsInt("VISION_CONCURRENCY", 4),
		},
		GCP: GCPConfig{
			ProjectID:            getEnv("GCP_PROJECT", ""),
			Region:               getEnv("GCP_REGION", "us-central1"),
			CheckpointCollection: getEnv("FIRESTORE_CHECKPOINT_COLLECTION", "lab_extraction_checkpoints"),
			ExportBucket:         getEnv("GCS_EXPORT_BUCKET", ""),
		},
		Workflow: WorkflowConfig{
			CheckpointBackend:   strings.ToLower(getEnv("CHECKPOINT_BACKEND", "sql")),
			CheckpointTTL:       getEnvAsDuration("CHECKPOINT_TTL", 0),
			MaxPasswordAttempts: getEnvAsInt("MAX_PASSWORD_ATTEMPTS", 0),
			RawTextLimit:        getEnvAsInt("RAW_TEXT_LIMIT", 10000),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.GRPCAddr == "" {
		return NewAppError("CONFIG_ERROR", "GRPC_ADDR is required", ErrInvalidInput)
	}
	switch c.LLM.Provider {
	case "openai":
		if c.LLM.APIKey == "" {
			return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required when LLM_PROVIDER=openai", ErrInvalidInput)
		}
	case "vertex":
		if c.GCP.ProjectID == "" {
			return NewAppError("CONFIG_ERROR", "GCP_PROJECT is required when LLM_PROVIDER=vertex", ErrInvalidInput)
		}
	case "none":
	default:
		return NewAppError("CONFIG_ERROR", "LLM_PROVIDER must be one of openai, vertex, none", ErrInvalidInput)
	}
	switch c.Workflow.CheckpointBackend {
	case "sql", "memory":
	case "firestore":
		if c.GCP.ProjectID == "" {
			return NewAppError("CONFIG_ERROR", "GCP_PROJECT is required when CHECKPOINT_BACKEND=firestore", ErrInvalidInput)
		}
	default:
		return NewAppError("CONFIG_ERROR", "CHECKPOINT_BACKEND must be one of sql, firestore, memory", ErrInvalidInput)
	}
	if c.Document.RenderZoom <= 0 {
		return NewAppError("CONFIG_ERROR", "RENDER_ZOOM must be positive", ErrInvalidInput)
	}
	return nil
}
