package orchestrator

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfocr/internal/ai"
	"github.com/local/pdfocr/internal/imagerender/pngenc"
	"github.com/local/pdfocr/internal/metrics"
	"github.com/local/pdfocr/internal/retrier"
)

// Inferencer is one configured inference stage. image is nil for text-only
// calls.
type Inferencer interface {
	Infer(ctx context.Context, prompt string, image []byte) (string, error)
}

// OCRStage extracts the raw text of one page.
type OCRStage struct {
	Endpoint Inferencer
	Prompt   string
	Policy   retrier.Policy
}

// Process splits img, OCRs each chunk and joins the chunk texts in order.
// Chunks that keep coming back empty contribute an empty string.
func (s *OCRStage) Process(ctx context.Context, img image.Image, pageIndex, total int, label string) (PageResult, error) {
	log.Info().
		Int("page", pageIndex).
		Str("label", label).
		Msgf("OCR %s (OCR page %d/%d)", label, pageIndex, total)

	chunks := SplitPage(img)
	texts := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		png, err := pngenc.Encode(chunk)
		if err != nil {
			return PageResult{}, fmt.Errorf("encode %s chunk %d: %w", label, i+1, err)
		}
		unit := label
		if len(chunks) > 1 {
			unit = fmt.Sprintf("%s [chunk %d/%d]", label, i+1, len(chunks))
		}
		text, err := retrier.Do(ctx, s.Policy, unit, "", func(ctx context.Context) (string, error) {
			return s.Endpoint.Infer(ctx, s.Prompt, png)
		})
		if err != nil {
			return PageResult{}, fmt.Errorf("ocr %s: %w", unit, err)
		}
		texts = append(texts, text)
	}

	metrics.IncProcessed(ai.StageOCR, "ok")
	return PageResult{
		PageIndex: pageIndex,
		Label:     label,
		RawText:   strings.TrimSpace(strings.Join(texts, "\n")),
	}, nil
}
