package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/local/pdfocr/internal/metrics"
)

const (
	StageOCR        = "ocr"
	StageCorrection = "correction"
)

// Endpoint is one configured pipeline stage: a client plus the model, system
// prompt and limits used for every call of that stage. Decoding is always
// deterministic.
type Endpoint struct {
	Client       Client
	Stage        string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Timeout      time.Duration
}

// Infer sends prompt, and image when non-nil, and returns the trimmed text.
// A call that outlives Timeout fails with KindTimeout.
func (e *Endpoint) Infer(ctx context.Context, prompt string, image []byte) (string, error) {
	callCtx := ctx
	cancel := func() {}
	if e.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.Timeout)
	}
	defer cancel()

	req := Request{
		Model:        e.Model,
		SystemPrompt: e.SystemPrompt,
		Prompt:       prompt,
		MaxTokens:    e.MaxTokens,
		Temperature:  0,
	}
	if len(image) > 0 {
		req.Image = image
		req.ImageMIME = "image/png"
	}

	start := time.Now()
	resp, err := e.Client.Do(callCtx, req)
	dur := time.Since(start)

	if err != nil {
		// The per-call deadline fired while the caller is still live.
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && KindOf(err) != KindTimeout {
			err = &InferenceError{Kind: KindTimeout, Provider: e.Client.Name(), Message: "deadline exceeded", Err: err}
		}
		metrics.ObserveProvider(e.Client.Name(), e.Model, e.Stage, KindOf(err).String(), dur)
		return "", err
	}
	metrics.ObserveProvider(e.Client.Name(), e.Model, e.Stage, "ok", dur)
	return strings.TrimSpace(resp.Text), nil
}
