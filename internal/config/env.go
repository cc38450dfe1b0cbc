package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ProviderModels defines the model used by each pipeline stage.
type ProviderModels struct {
	OCR        string
	Correction string
}

// ProvidersConfig selects the inference engine and carries its credentials.
type ProvidersConfig struct {
	Engine          string // "gemini"|"openai"|"anthropic"
	GeminiAPIKey    string
	GeminiBaseURL   string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	AnthropicURL    string
	Gemini          ProviderModels
	OpenAI          ProviderModels
	Anthropic       ProviderModels
}

// InferenceConfig defines per-request limits and the retry policy.
type InferenceConfig struct {
	RequestTimeout       time.Duration
	MaxOutputTokens      int
	MaxRetries           int
	RetryBackoffStep     time.Duration
	OCRPromptFile        string
	CorrectionPromptFile string
}

// PathsConfig defines where PDFs are read from and results are written to.
type PathsConfig struct {
	InputDir     string
	OutputDir    string
	RawDir       string
	CorrectedDir string
}

// CheckpointConfig enables Redis-backed page checkpoints and run status.
type CheckpointConfig struct {
	RedisURL string
	TTL      time.Duration
}

// PublishConfig enables uploading finished documents to S3.
type PublishConfig struct {
	S3Bucket    string
	S3Prefix    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// MetricsConfig controls the Prometheus listener.
type MetricsConfig struct {
	Addr string
}

// Config is the top-level configuration.
type Config struct {
	Logging    LoggingConfig
	Axiom      AxiomConfig
	Providers  ProvidersConfig
	Inference  InferenceConfig
	Paths      PathsConfig
	Checkpoint CheckpointConfig
	Publish    PublishConfig
	Metrics    MetricsConfig
	Pipeline   PipelineConfig
}

// Load reads optional .env files and then the environment. Missing .env
// files are not an error.
func Load(envFiles ...string) Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
	return FromEnv()
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/pdfocr.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_pdfocr",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	cfg.Providers = ProvidersConfig{
		Engine:          strings.ToLower(getEnv("AI_ENGINE", EngineGemini)),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiBaseURL:   getEnv("GEMINI_BASE_URL", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicURL:    getEnv("ANTHROPIC_BASE_URL", ""),
		Gemini: ProviderModels{
			OCR:        getEnv("GEMINI_OCR_MODEL", "gemini-2.0-flash"),
			Correction: getEnv("GEMINI_CORRECTION_MODEL", "gemini-2.0-flash"),
		},
		OpenAI: ProviderModels{
			OCR:        getEnv("OPENAI_OCR_MODEL", "gpt-4.1"),
			Correction: getEnv("OPENAI_CORRECTION_MODEL", "gpt-4.1-mini"),
		},
		Anthropic: ProviderModels{
			OCR:        getEnv("ANTHROPIC_OCR_MODEL", "claude-3-5-sonnet-latest"),
			Correction: getEnv("ANTHROPIC_CORRECTION_MODEL", "claude-3-5-haiku-latest"),
		},
	}

	cfg.Inference = InferenceConfig{
		RequestTimeout:       parseDuration(getEnv("REQUEST_TIMEOUT", "300s"), 300*time.Second),
		MaxOutputTokens:      parseInt(getEnv("MAX_OUTPUT_TOKENS", "8192"), 8192),
		MaxRetries:           parseInt(getEnv("MAX_RETRIES", "3"), 3),
		RetryBackoffStep:     parseDuration(getEnv("RETRY_BACKOFF_STEP", "10s"), 10*time.Second),
		OCRPromptFile:        getEnv("OCR_PROMPT_FILE", ""),
		CorrectionPromptFile: getEnv("CORRECTION_PROMPT_FILE", ""),
	}

	outDir := getEnv("OUTPUT_DIR", "ocr_output")
	cfg.Paths = PathsConfig{
		InputDir:     getEnv("INPUT_DIR", "ocr_input"),
		OutputDir:    outDir,
		RawDir:       getEnv("RAW_DIR", outDir+"/raw"),
		CorrectedDir: getEnv("CORRECTED_DIR", outDir+"/corrected"),
	}

	cfg.Checkpoint = CheckpointConfig{
		RedisURL: getEnv("REDIS_URL", ""),
		TTL:      parseDuration(getEnv("CHECKPOINT_TTL", "168h"), 7*24*time.Hour),
	}

	cfg.Publish = PublishConfig{
		S3Bucket:    getEnv("AWS_S3_BUCKET", ""),
		S3Prefix:    getEnv("AWS_S3_PREFIX", "ocr"),
		S3Region:    getEnv("AWS_REGION", ""),
		S3Endpoint:  getEnv("AWS_S3_ENDPOINT", ""),
		S3AccessKey: getEnv("AWS_S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("AWS_S3_SECRET_KEY", ""),
	}

	cfg.Metrics = MetricsConfig{Addr: getEnv("METRICS_ADDR", "")}

	cfg.Pipeline = PipelineConfig{
		StartPage:         parseInt(getEnv("START_PAGE", "1"), 1),
		Mode:              Mode(getEnv("OCR_MODE", string(ModeTwoPass))),
		BatchSize:         parseInt(getEnv("BATCH_SIZE", "10"), DefaultBatchSize),
		DPI:               parseInt(getEnv("DPI", "300"), DefaultDPI),
		Workers:           parseInt(getEnv("OCR_WORKERS", "4"), DefaultWorkers),
		CorrectionWorkers: parseInt(getEnv("CORRECTION_WORKERS", "1"), 1),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
