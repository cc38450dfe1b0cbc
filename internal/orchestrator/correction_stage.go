package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfocr/internal/ai"
	"github.com/local/pdfocr/internal/metrics"
	"github.com/local/pdfocr/internal/prompts"
	"github.com/local/pdfocr/internal/retrier"
)

// CorrectionStage fixes script-level OCR errors in one page of raw text.
type CorrectionStage struct {
	Endpoint Inferencer
	Policy   retrier.Policy
	// Prompt builds the user turn from raw text; prompts.CorrectionUser when nil.
	Prompt func(raw string) string
}

// Correct returns the corrected text, or raw unchanged when the model keeps
// returning nothing.
func (s *CorrectionStage) Correct(ctx context.Context, label, raw string) (string, error) {
	log.Info().Str("label", label).Msgf("Correcting %s", label)

	if strings.TrimSpace(raw) == "" {
		return raw, nil
	}
	build := s.Prompt
	if build == nil {
		build = prompts.CorrectionUser
	}
	prompt := build(raw)

	out, err := retrier.Do(ctx, s.Policy, label, raw, func(ctx context.Context) (string, error) {
		text, err := s.Endpoint.Infer(ctx, prompt, nil)
		if err != nil {
			return "", err
		}
		// A blank correction would drop the page.
		if text == "" {
			return "", ai.EmptyResponse(ai.StageCorrection, "blank correction")
		}
		return text, nil
	})
	if err != nil {
		return "", fmt.Errorf("correct %s: %w", label, err)
	}
	metrics.IncProcessed(ai.StageCorrection, "ok")
	return strings.TrimSpace(out), nil
}
