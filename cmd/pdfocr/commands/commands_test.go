package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfocr/internal/ai"
	"github.com/local/pdfocr/internal/config"
	"github.com/local/pdfocr/internal/orchestrator"
	"github.com/local/pdfocr/internal/retrier"
)

func parsed(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addRunFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestPipelineConfigFlagsOverrideEnv(t *testing.T) {
	base := config.PipelineConfig{StartPage: 1, Mode: config.ModeTwoPass, BatchSize: 10, DPI: 300, Workers: 4, CorrectionWorkers: 1}

	p, err := pipelineConfig(parsed(t, "--mode", "1", "--start-page", "6", "--workers", "8", "--run-id", "abc"), base)
	require.NoError(t, err)
	assert.Equal(t, config.ModeOnePass, p.Mode)
	assert.Equal(t, 6, p.StartPage)
	assert.Equal(t, 8, p.Workers)
	assert.Equal(t, 10, p.BatchSize, "unset flags keep the env value")
	assert.Equal(t, "abc", p.RunID)
	assert.False(t, p.Resume)

	p, err = pipelineConfig(parsed(t), base)
	require.NoError(t, err)
	assert.Equal(t, config.ModeTwoPass, p.Mode)
	assert.NotEmpty(t, p.RunID, "a run id is generated")

	p, err = pipelineConfig(parsed(t, "--resume", "r-9"), base)
	require.NoError(t, err)
	assert.True(t, p.Resume)
	assert.Equal(t, "r-9", p.RunID)

	_, err = pipelineConfig(parsed(t, "--resume", "r-9", "--run-id", "other"), base)
	var cfgErr *config.Error
	assert.ErrorAs(t, err, &cfgErr)

	_, err = pipelineConfig(parsed(t, "--mode", "three"), base)
	assert.ErrorAs(t, err, &cfgErr)
}

func TestInputRef(t *testing.T) {
	parsed(t)
	_, err := inputRef(nil)
	assert.Error(t, err)

	ref, err := inputRef([]string{"gita"})
	require.NoError(t, err)
	assert.Equal(t, "gita", ref)

	parsed(t, "--pdf", "book.pdf")
	ref, err = inputRef(nil)
	require.NoError(t, err)
	assert.Equal(t, "book.pdf", ref)
	_, err = inputRef([]string{"gita"})
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"credential", &config.Error{Field: "GEMINI_API_KEY", Message: "not set", Err: config.ErrMissingCredential}, ExitConfig, "Missing credential"},
		{"config", &config.Error{Field: "batch_size", Message: "must be >= 1"}, ExitConfig, "Configuration error"},
		{"no pages", fmt.Errorf("run: %w", orchestrator.ErrNoPages), ExitNoPages, "No pages found"},
		{"exhausted", fmt.Errorf("page 3: %w", &retrier.ExhaustedError{Attempts: 3, Err: &ai.InferenceError{Kind: ai.KindTimeout, Provider: "gemini", StatusCode: 504}}), ExitExhausted, "aborted after 3 retries"},
		{"interrupted", fmt.Errorf("page 1: %w", context.Canceled), ExitInterrupted, "Interrupted"},
		{"other", errors.New("boom"), ExitFailure, "Error: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, msg := Describe(tt.err)
			assert.Equal(t, tt.code, code)
			assert.Contains(t, msg, tt.msg)
		})
	}
}

func TestListCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	require.NoError(t, os.MkdirAll(in, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(in, "gita.pdf"), []byte("%PDF-1.4"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(in, "notes.txt"), []byte("x"), 0o644))
	t.Setenv("INPUT_DIR", in)
	t.Setenv("LOG_FILE", filepath.Join(dir, "pdfocr.log"))

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--env-file", filepath.Join(dir, "missing.env"), "list"})
	defer rootCmd.SetArgs(nil)
	require.NoError(t, Execute())
	assert.Contains(t, out.String(), "1. gita.pdf")
	assert.NotContains(t, out.String(), "notes.txt")
}
