package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPipeline() PipelineConfig {
	return PipelineConfig{
		PDFPath:           "book.pdf",
		StartPage:         1,
		Mode:              ModeTwoPass,
		BatchSize:         10,
		DPI:               300,
		Workers:           4,
		CorrectionWorkers: 1,
	}
}

func TestPipelineConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *PipelineConfig)
		field   string
		wantErr bool
	}{
		{name: "valid", mutate: func(p *PipelineConfig) {}},
		{name: "missing path", mutate: func(p *PipelineConfig) { p.PDFPath = "" }, field: "pdf_path", wantErr: true},
		{name: "start page zero", mutate: func(p *PipelineConfig) { p.StartPage = 0 }, field: "start_page", wantErr: true},
		{name: "bad mode", mutate: func(p *PipelineConfig) { p.Mode = "three-pass" }, field: "mode", wantErr: true},
		{name: "batch size zero", mutate: func(p *PipelineConfig) { p.BatchSize = 0 }, field: "batch_size", wantErr: true},
		{name: "workers zero", mutate: func(p *PipelineConfig) { p.Workers = 0 }, field: "worker_count", wantErr: true},
		{name: "resume without id", mutate: func(p *PipelineConfig) { p.Resume = true }, field: "run_id", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPipeline()
			tt.mutate(&p)
			err := p.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var cerr *Error
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("1")
	require.NoError(t, err)
	assert.Equal(t, ModeOnePass, m)

	m, err = ParseMode("two-pass")
	require.NoError(t, err)
	assert.Equal(t, ModeTwoPass, m)

	_, err = ParseMode("fast")
	assert.Error(t, err)
}

func TestConfigValidateMissingCredential(t *testing.T) {
	t.Setenv("AI_ENGINE", "gemini")
	t.Setenv("GEMINI_API_KEY", "")

	cfg := FromEnv()
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCredential))

	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "GEMINI_API_KEY", cerr.Field)
}

func TestConfigValidateUnknownEngine(t *testing.T) {
	t.Setenv("AI_ENGINE", "watson")
	cfg := FromEnv()
	assert.Error(t, cfg.Validate())
}

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("OUTPUT_DIR", "")
	t.Setenv("BATCH_SIZE", "")
	t.Setenv("OCR_WORKERS", "")
	t.Setenv("REQUEST_TIMEOUT", "")

	cfg := FromEnv()
	assert.Equal(t, DefaultBatchSize, cfg.Pipeline.BatchSize)
	assert.Equal(t, DefaultDPI, cfg.Pipeline.DPI)
	assert.Equal(t, DefaultWorkers, cfg.Pipeline.Workers)
	assert.Equal(t, 300*time.Second, cfg.Inference.RequestTimeout)
	assert.Equal(t, 3, cfg.Inference.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Inference.RetryBackoffStep)
	assert.Equal(t, filepath.Join("ocr_output", "raw"), filepath.Clean(cfg.Paths.RawDir))
	assert.Equal(t, filepath.Join("ocr_output", "corrected"), filepath.Clean(cfg.Paths.CorrectedDir))
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("PDFOCR_TEST_ONLY_KEY=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("PDFOCR_TEST_ONLY_KEY") })

	Load(envFile, filepath.Join(dir, "missing.env"))
	assert.Equal(t, "from-file", os.Getenv("PDFOCR_TEST_ONLY_KEY"))
}
