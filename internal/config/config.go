package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"invoicelayout/internal/enrich"
	"invoicelayout/internal/logger"
	"invoicelayout/internal/ocr"
	"invoicelayout/internal/pdftext"
)

type Config struct {
	// Native text backend: tabula or ledongthuc
	PDFBackend string

	// OCR Configuration
	OCREngine   string
	OCRLanguage string
	OCRDPI      int
	OCRTempDir  string

	// Google Cloud Configuration
	GoogleCloudProject    string
	GoogleCloudLocation   string
	DocumentAIProcessorID string

	// Enrichment Configuration
	EnrichProvider string
	OpenAIAPIKey   string
	OpenAIModel    string
	EnrichRetries  int

	// Google Sheets Configuration
	GoogleSheetURL       string
	GoogleSheetWorksheet string

	// Result store directory (SQLite)
	ResultDBDir string

	// Workers
	BatchWorkers int
	PageWorkers  int

	// Optional TOML file overriding extraction thresholds
	ProfilePath string

	// Logging Configuration
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

func Load() (*Config, error) {
	config := &Config{
		PDFBackend:            getEnv("PDF_BACKEND", pdftext.BackendTabula),
		OCREngine:             getEnv("OCR_ENGINE", ocr.EngineNone),
		OCRLanguage:           getEnv("OCR_LANGUAGE", "swe+eng"),
		OCRDPI:                getEnvInt("OCR_DPI", ocr.DefaultDPI),
		OCRTempDir:            getEnv("OCR_TEMP_DIR", ""),
		GoogleCloudProject:    getEnv("GOOGLE_CLOUD_PROJECT", ""),
		GoogleCloudLocation:   getEnv("GOOGLE_CLOUD_LOCATION", "eu"),
		DocumentAIProcessorID: getEnv("DOCUMENT_AI_PROCESSOR_ID", ""),
		EnrichProvider:        getEnv("ENRICH_PROVIDER", enrich.ProviderNone),
		OpenAIAPIKey:          getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:           getEnv("OPENAI_MODEL", enrich.DefaultOpenAIModel),
		EnrichRetries:         getEnvInt("ENRICH_MAX_RETRIES", 3),
		GoogleSheetURL:        getEnv("GOOGLE_SHEET_URL", ""),
		GoogleSheetWorksheet:  getEnv("GOOGLE_SHEET_WORKSHEET", "Invoices"),
		ResultDBDir:           getEnv("RESULT_DB_DIR", ""),
		BatchWorkers:          getEnvInt("BATCH_WORKERS", 4),
		PageWorkers:           getEnvInt("PAGE_WORKERS", 4),
		ProfilePath:           getEnv("PROFILE_PATH", ""),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "console"),
		LogTimeFormat:         getEnv("LOG_TIME_FORMAT", "2006-01-02T15:04:05Z07:00"),
		LogOutput:             getEnv("LOG_OUTPUT", "stderr"),
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// validate checks only what the selected features need.
func (c *Config) validate() error {
	switch strings.ToLower(c.PDFBackend) {
	case pdftext.BackendTabula, pdftext.BackendLedongthuc:
	default:
		return fmt.Errorf("PDF_BACKEND must be %s or %s, got %q", pdftext.BackendTabula, pdftext.BackendLedongthuc, c.PDFBackend)
	}

	switch strings.ToLower(c.OCREngine) {
	case ocr.EngineNone, ocr.EngineVision, ocr.EngineTesseract:
	default:
		return fmt.Errorf("OCR_ENGINE must be none, vision or tesseract, got %q", c.OCREngine)
	}
	if c.OCRDPI < 72 || c.OCRDPI > 1200 {
		return fmt.Errorf("OCR_DPI must be between 72 and 1200, got %d", c.OCRDPI)
	}

	switch strings.ToLower(c.EnrichProvider) {
	case enrich.ProviderNone:
	case enrich.ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when ENRICH_PROVIDER=openai")
		}
	case enrich.ProviderDocumentAI:
		if c.GoogleCloudProject == "" {
			return fmt.Errorf("GOOGLE_CLOUD_PROJECT is required when ENRICH_PROVIDER=documentai")
		}
		if c.DocumentAIProcessorID == "" {
			return fmt.Errorf("DOCUMENT_AI_PROCESSOR_ID is required when ENRICH_PROVIDER=documentai")
		}
	default:
		return fmt.Errorf("ENRICH_PROVIDER must be none, openai or documentai, got %q", c.EnrichProvider)
	}

	if c.BatchWorkers < 1 {
		return fmt.Errorf("BATCH_WORKERS must be positive, got %d", c.BatchWorkers)
	}
	if c.PageWorkers < 1 {
		return fmt.Errorf("PAGE_WORKERS must be positive, got %d", c.PageWorkers)
	}
	return nil
}

// GetLoggerConfig returns a logger configuration from the main config
func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// OCROptions returns the engine selection for ocr.New.
func (c *Config) OCROptions() ocr.Options {
	return ocr.Options{
		Engine:   strings.ToLower(c.OCREngine),
		Language: c.OCRLanguage,
		DPI:      c.OCRDPI,
		TempDir:  c.OCRTempDir,
	}
}

// EnrichOptions returns the provider selection for enrich.New.
func (c *Config) EnrichOptions() enrich.Options {
	return enrich.Options{
		Provider:     strings.ToLower(c.EnrichProvider),
		OpenAIAPIKey: c.OpenAIAPIKey,
		OpenAIModel:  c.OpenAIModel,
		MaxRetries:   c.EnrichRetries,
		ProjectID:    c.GoogleCloudProject,
		Location:     c.GoogleCloudLocation,
		ProcessorID:  c.DocumentAIProcessorID,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
