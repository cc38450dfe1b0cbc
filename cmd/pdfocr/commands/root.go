package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/local/pdfocr/internal/config"
	"github.com/local/pdfocr/internal/logger"
	"github.com/local/pdfocr/internal/metrics"
	"github.com/local/pdfocr/internal/orchestrator"
	"github.com/local/pdfocr/internal/retrier"
)

var (
	envFiles []string
	logLevel string
	pretty   bool

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "pdfocr",
	Short: "OCR scanned Sanskrit, Kannada and English PDFs with a vision model",
	Long: `pdfocr renders a scanned PDF page by page, transcribes every page with a
multimodal model and optionally runs a second text-only correction pass.
Pages are processed in fixed-size batches by a bounded worker pool and the
results are written in page order to {stem}_ocr_raw.txt and
{stem}_ocr_corrected.txt.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load(envFiles...)
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if pretty {
			cfg.Logging.Pretty = true
		}
		if err := logger.Init(logger.Options{
			Level:        cfg.Logging.Level,
			Pretty:       cfg.Logging.Pretty,
			File:         cfg.Logging.File,
			MaxSizeMB:    cfg.Logging.MaxSizeMB,
			MaxBackups:   cfg.Logging.MaxBackups,
			MaxAgeDays:   cfg.Logging.MaxAgeDays,
			Compress:     cfg.Logging.Compress,
			SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
			AxiomAPIKey:  cfg.Axiom.APIKey,
			AxiomOrgID:   cfg.Axiom.OrgID,
			AxiomDataset: cfg.Axiom.Dataset,
			AxiomFlush:   cfg.Axiom.FlushInterval,
		}); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		metrics.Init()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Close()
	},
	RunE: runPipeline,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", false, "human-readable console logs")
	addRunFlags(rootCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// Exit codes returned by Describe.
const (
	ExitFailure     = 1
	ExitConfig      = 2
	ExitNoPages     = 3
	ExitExhausted   = 4
	ExitInterrupted = 130
)

// Describe maps a run error to an exit code and the final message printed
// for it.
func Describe(err error) (int, string) {
	var cfgErr *config.Error
	switch {
	case errors.Is(err, config.ErrMissingCredential):
		return ExitConfig, fmt.Sprintf("Missing credential: %v. Set it in the environment or a .env file.", err)
	case errors.As(err, &cfgErr):
		return ExitConfig, fmt.Sprintf("Configuration error: %v", err)
	case errors.Is(err, orchestrator.ErrNoPages):
		return ExitNoPages, "No pages found in the PDF; nothing was written."
	case retrier.IsExhausted(err):
		return ExitExhausted, fmt.Sprintf("OCR stopped, a request %v. No output was written.", exhaustedCause(err))
	case errors.Is(err, context.Canceled):
		return ExitInterrupted, "Interrupted; no output was written."
	}
	return ExitFailure, fmt.Sprintf("Error: %v", err)
}

func exhaustedCause(err error) string {
	var ee *retrier.ExhaustedError
	if errors.As(err, &ee) {
		return ee.Error()
	}
	return err.Error()
}
