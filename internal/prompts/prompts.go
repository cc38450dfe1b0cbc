// Package prompts holds the instructions sent to the OCR and correction
// stages. System prompts can be replaced from files at startup; the few-shot
// user prompts are fixed.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

//go:embed ocr_system.txt
var ocrSystem string

//go:embed ocr_fewshot.txt
var ocrFewshot string

//go:embed correction_system.txt
var correctionSystem string

//go:embed correction_fewshot.txt
var correctionFewshot string

// Set is the resolved prompt text for one run.
type Set struct {
	OCRSystem        string
	CorrectionSystem string
}

// Default returns the embedded prompts.
func Default() Set {
	return Set{OCRSystem: ocrSystem, CorrectionSystem: correctionSystem}
}

// Load returns the embedded prompts with any non-empty override path read
// in place of the matching system prompt.
func Load(ocrFile, correctionFile string) (Set, error) {
	s := Default()
	if ocrFile != "" {
		text, err := readPrompt(ocrFile)
		if err != nil {
			return Set{}, err
		}
		s.OCRSystem = text
	}
	if correctionFile != "" {
		text, err := readPrompt(correctionFile)
		if err != nil {
			return Set{}, err
		}
		s.CorrectionSystem = text
	}
	return s, nil
}

func readPrompt(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt %s: %w", path, err)
	}
	text := string(b)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("prompt file %s is empty", path)
	}
	return text, nil
}

// OCRUser is the user turn accompanying every page chunk image.
func OCRUser() string { return ocrFewshot }

// CorrectionUser wraps raw OCR output in the correction examples.
func CorrectionUser(raw string) string { return correctionFewshot + raw }
