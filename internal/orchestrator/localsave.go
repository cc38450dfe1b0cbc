package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Outputs are the locations a document was written to. Empty fields were not
// produced.
type Outputs struct {
	RawPath       string
	CorrectedPath string
	RawURL        string
	CorrectedURL  string
}

// Publisher copies a finished file somewhere off the local disk.
type Publisher interface {
	Publish(ctx context.Context, runID, name string, data []byte) (string, error)
}

// Assembler writes {stem}_ocr_raw.txt and, for two-pass runs,
// {stem}_ocr_corrected.txt.
type Assembler struct {
	Stem         string
	RawDir       string
	CorrectedDir string
	RunID        string
	Publisher    Publisher // optional
}

func RawFileName(stem string) string       { return stem + "_ocr_raw.txt" }
func CorrectedFileName(stem string) string { return stem + "_ocr_corrected.txt" }

// Write persists doc. A failed publish is logged, not returned; the local
// files are the result of record.
func (a *Assembler) Write(ctx context.Context, doc *Document) (Outputs, error) {
	var out Outputs

	raw := doc.Raw()
	p, err := writeAtomic(a.RawDir, RawFileName(a.Stem), raw)
	if err != nil {
		return Outputs{}, err
	}
	out.RawPath = p
	log.Info().Str("path", p).Int("pages", len(doc.Pages)).Msg("saved raw OCR text")

	var corrected string
	if doc.TwoPass {
		corrected = doc.Corrected()
		p, err := writeAtomic(a.CorrectedDir, CorrectedFileName(a.Stem), corrected)
		if err != nil {
			return Outputs{}, err
		}
		out.CorrectedPath = p
		log.Info().Str("path", p).Int("pages", len(doc.Pages)).Msg("saved corrected OCR text")
	}

	if a.Publisher != nil {
		out.RawURL = a.publish(ctx, RawFileName(a.Stem), raw)
		if doc.TwoPass {
			out.CorrectedURL = a.publish(ctx, CorrectedFileName(a.Stem), corrected)
		}
	}
	return out, nil
}

func (a *Assembler) publish(ctx context.Context, name, text string) string {
	url, err := a.Publisher.Publish(ctx, a.RunID, name, []byte(text))
	if err != nil {
		log.Warn().Err(err).Str("file", name).Msg("failed to publish output")
		return ""
	}
	return url
}

// writeAtomic writes text to dir/name through a temp file and rename, so a
// crash never leaves a truncated result.
func writeAtomic(dir, name, text string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	final := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	return final, nil
}
