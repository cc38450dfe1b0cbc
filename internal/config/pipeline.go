package config

import (
	"errors"
	"fmt"
)

// Mode selects whether a correction pass follows OCR.
type Mode string

const (
	ModeOnePass Mode = "one-pass"
	ModeTwoPass Mode = "two-pass"
)

const (
	EngineGemini    = "gemini"
	EngineOpenAI    = "openai"
	EngineAnthropic = "anthropic"
)

const (
	DefaultBatchSize = 10
	DefaultDPI       = 300
	DefaultWorkers   = 4
)

// ErrMissingCredential is returned when the selected engine has no API key.
var ErrMissingCredential = errors.New("missing credential")

// Error is a configuration problem detected before any page is processed.
type Error struct {
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Field, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// PipelineConfig is the immutable per-run configuration consumed by the
// orchestrator.
type PipelineConfig struct {
	PDFPath           string
	Source            string // reference the PDF was resolved from, for status and logs
	StartPage         int
	Mode              Mode
	BatchSize         int
	DPI               int
	Workers           int
	CorrectionWorkers int
	RunID             string
	Resume            bool
}

// TwoPass reports whether the correction stage runs.
func (p PipelineConfig) TwoPass() bool { return p.Mode == ModeTwoPass }

// ParseMode accepts "one-pass"/"two-pass" as well as the shorthands "1"/"2".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "1", string(ModeOnePass), "onepass", "one":
		return ModeOnePass, nil
	case "2", string(ModeTwoPass), "twopass", "two":
		return ModeTwoPass, nil
	}
	return "", &Error{Field: "mode", Message: fmt.Sprintf("unknown mode %q (want one-pass or two-pass)", s)}
}

// Validate checks the pipeline invariants.
func (p PipelineConfig) Validate() error {
	if p.PDFPath == "" {
		return &Error{Field: "pdf_path", Message: "required"}
	}
	if p.StartPage < 1 {
		return &Error{Field: "start_page", Message: fmt.Sprintf("must be >= 1, got %d", p.StartPage)}
	}
	if p.Mode != ModeOnePass && p.Mode != ModeTwoPass {
		return &Error{Field: "mode", Message: fmt.Sprintf("unknown mode %q", p.Mode)}
	}
	if p.BatchSize < 1 {
		return &Error{Field: "batch_size", Message: fmt.Sprintf("must be >= 1, got %d", p.BatchSize)}
	}
	if p.DPI < 1 {
		return &Error{Field: "dpi", Message: fmt.Sprintf("must be >= 1, got %d", p.DPI)}
	}
	if p.Workers < 1 {
		return &Error{Field: "worker_count", Message: fmt.Sprintf("must be >= 1, got %d", p.Workers)}
	}
	if p.CorrectionWorkers < 1 {
		return &Error{Field: "correction_workers", Message: fmt.Sprintf("must be >= 1, got %d", p.CorrectionWorkers)}
	}
	if p.Resume && p.RunID == "" {
		return &Error{Field: "run_id", Message: "resume requires a run id"}
	}
	return nil
}

// APIKey returns the credential for the selected engine.
func (p ProvidersConfig) APIKey() string {
	switch p.Engine {
	case EngineOpenAI:
		return p.OpenAIAPIKey
	case EngineAnthropic:
		return p.AnthropicAPIKey
	default:
		return p.GeminiAPIKey
	}
}

// Models returns the stage models for the selected engine.
func (p ProvidersConfig) Models() ProviderModels {
	switch p.Engine {
	case EngineOpenAI:
		return p.OpenAI
	case EngineAnthropic:
		return p.Anthropic
	default:
		return p.Gemini
	}
}

// CredentialEnv names the environment variable holding the engine's key.
func (p ProvidersConfig) CredentialEnv() string {
	switch p.Engine {
	case EngineOpenAI:
		return "OPENAI_API_KEY"
	case EngineAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return "GEMINI_API_KEY"
	}
}

// Validate checks everything outside the per-run pipeline settings.
func (c Config) Validate() error {
	switch c.Providers.Engine {
	case EngineGemini, EngineOpenAI, EngineAnthropic:
	default:
		return &Error{Field: "AI_ENGINE", Message: fmt.Sprintf("unsupported engine %q", c.Providers.Engine)}
	}
	if c.Providers.APIKey() == "" {
		return &Error{Field: c.Providers.CredentialEnv(), Message: "not set", Err: ErrMissingCredential}
	}
	if c.Inference.MaxRetries < 1 {
		return &Error{Field: "MAX_RETRIES", Message: fmt.Sprintf("must be >= 1, got %d", c.Inference.MaxRetries)}
	}
	if c.Inference.RequestTimeout <= 0 {
		return &Error{Field: "REQUEST_TIMEOUT", Message: "must be positive"}
	}
	if c.Inference.MaxOutputTokens < 1 {
		return &Error{Field: "MAX_OUTPUT_TOKENS", Message: "must be positive"}
	}
	return nil
}
