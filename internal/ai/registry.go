package ai

import (
	"fmt"
	"strings"

	"github.com/local/pdfocr/internal/config"
)

// NewClient builds the client for the configured engine.
func NewClient(p config.ProvidersConfig) (Client, error) {
	switch p.Engine {
	case config.EngineGemini, "":
		return NewGeminiClient(p.GeminiAPIKey, p.GeminiBaseURL), nil
	case config.EngineOpenAI:
		return NewOpenAIClient(p.OpenAIAPIKey, p.OpenAIBaseURL), nil
	case config.EngineAnthropic:
		return NewAnthropicClient(p.AnthropicAPIKey, p.AnthropicURL), nil
	}
	return nil, fmt.Errorf("unsupported AI_ENGINE %q", p.Engine)
}

// NewEndpoints returns the OCR and correction endpoints sharing one client.
func NewEndpoints(cfg config.Config, ocrPrompt, correctionPrompt string) (*Endpoint, *Endpoint, error) {
	client, err := NewClient(cfg.Providers)
	if err != nil {
		return nil, nil, err
	}
	models := cfg.Providers.Models()
	ocr := &Endpoint{
		Client:       client,
		Stage:        StageOCR,
		Model:        models.OCR,
		SystemPrompt: ocrPrompt,
		MaxTokens:    cfg.Inference.MaxOutputTokens,
		Timeout:      cfg.Inference.RequestTimeout,
	}
	corr := &Endpoint{
		Client:       client,
		Stage:        StageCorrection,
		Model:        models.Correction,
		SystemPrompt: correctionPrompt,
		MaxTokens:    cfg.Inference.MaxOutputTokens,
		Timeout:      cfg.Inference.RequestTimeout,
	}
	return ocr, corr, nil
}

// BaseURL returns the API root the configured engine talks to.
func BaseURL(p config.ProvidersConfig) string {
	var url, def string
	switch p.Engine {
	case config.EngineOpenAI:
		url, def = p.OpenAIBaseURL, openAIDefaultBaseURL
	case config.EngineAnthropic:
		url, def = p.AnthropicURL, anthropicDefaultBaseURL
	default:
		url, def = p.GeminiBaseURL, geminiDefaultBaseURL
	}
	if url == "" {
		return def
	}
	return strings.TrimRight(url, "/")
}
