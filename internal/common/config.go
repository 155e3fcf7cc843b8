package common

import (
	"os"
	"strconv"
	"time"

	"github.com/tobi-adeyemi/invoice-pipeline/constants"
)

// Config holds all application configuration. Loaded once at process start
// and treated as immutable for the process lifetime.
type Config struct {
	Database DatabaseConfig
	Storage  StorageConfig
	OCR      OCRConfig
	LLM      LLMConfig
	Pipeline PipelineConfig
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Driver          string // "sqlite" | "postgres"
	DSN             string
	MaxConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// StorageConfig holds document storage configuration.
type StorageConfig struct {
	UploadDir   string
	MaxUploadMB float64
}

// OCRConfig holds OCR-related configuration.
type OCRConfig struct {
	Backend       string // "structural" | "vision"
	Pdftotext     string
	Pdftoppm      string
	Tesseract     string
	TesseractLang string
	TessdataDir   string
	DPI           int
	MaxPages      int
}

// LLMConfig holds language-model configuration.
type LLMConfig struct {
	BaseURL     string
	Model       string
	VisionModel string
	APIKey      string
	Temperature float32
	Timeout     time.Duration
	PromptFile  string // optional extraction prompt override
}

// PipelineConfig holds the knobs of the extraction state machine.
type PipelineConfig struct {
	ProceedThreshold    float32
	RetryBudget         int
	OCRTimeout          time.Duration
	ExtractTimeout      time.Duration
	AnomalyTimeout      time.Duration
	AnomalyFailureFatal bool // route anomaly-scoring failure to FAILED instead of degrading
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			DSN:             getEnv("DB_URL", "file:invoices.db"),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
		},
		Storage: StorageConfig{
			UploadDir:   getEnv("UPLOAD_DIR", "uploads"),
			MaxUploadMB: getEnvAsFloat64("MAX_UPLOAD_SIZE_MB", 10.0),
		},
		OCR: OCRConfig{
			Backend:       getEnv("OCR_BACKEND", "structural"),
			Pdftotext:     getEnv("PDFTOTEXT_BIN", "pdftotext"),
			Pdftoppm:      getEnv("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:     getEnv("TESSERACT_BIN", "tesseract"),
			TesseractLang: getEnv("TESSERACT_LANG", "eng"),
			TessdataDir:   getEnv("TESSDATA_PREFIX", ""),
			DPI:           getEnvAsInt("OCR_DPI", 300),
			MaxPages:      getEnvAsInt("OCR_MAX_PAGES", 0),
		},
		LLM: LLMConfig{
			BaseURL:     getEnv("OPENAI_BASE_URL", ""),
			Model:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			VisionModel: getEnv("OPENAI_VISION_MODEL", ""),
			APIKey:      getEnv("OPENAI_API_KEY", ""),
			Temperature: getEnvAsFloat32("OPENAI_TEMPERATURE", 0.0),
			Timeout:     getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
			PromptFile:  getEnv("EXTRACTION_PROMPT_FILE", ""),
		},
		Pipeline: PipelineConfig{
			ProceedThreshold:    getEnvAsFloat32("PROCEED_THRESHOLD", constants.DefaultProceedThreshold),
			RetryBudget:         getEnvAsInt("RETRY_BUDGET", constants.DefaultRetryBudget),
			OCRTimeout:          getEnvAsDuration("OCR_TIMEOUT", 2*time.Minute),
			ExtractTimeout:      getEnvAsDuration("EXTRACT_TIMEOUT", 90*time.Second),
			AnomalyTimeout:      getEnvAsDuration("ANOMALY_TIMEOUT", 45*time.Second),
			AnomalyFailureFatal: getEnvAsBool("ANOMALY_FAILURE_FATAL", false),
		},
	}
}

// Validate validates the loaded configuration.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.OCR.Backend != "structural" && c.OCR.Backend != "vision" {
		return NewAppError("CONFIG_ERROR", "OCR_BACKEND must be 'structural' or 'vision'", ErrInvalidInput)
	}
	if c.LLM.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "OPENAI_API_KEY is required", ErrInvalidInput)
	}
	if c.Pipeline.ProceedThreshold < 0 || c.Pipeline.ProceedThreshold > 1 {
		return NewAppError("CONFIG_ERROR", "PROCEED_THRESHOLD must be in [0,1]", ErrInvalidInput)
	}
	if c.Pipeline.RetryBudget < 0 {
		return NewAppError("CONFIG_ERROR", "RETRY_BUDGET must be >= 0", ErrInvalidInput)
	}
	return nil
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

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
