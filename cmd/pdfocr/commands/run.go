package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/pdfocr/internal/ai"
	"github.com/local/pdfocr/internal/config"
	"github.com/local/pdfocr/internal/imagerender"
	"github.com/local/pdfocr/internal/metrics"
	"github.com/local/pdfocr/internal/orchestrator"
	"github.com/local/pdfocr/internal/prompts"
	"github.com/local/pdfocr/internal/retrier"
	"github.com/local/pdfocr/internal/source"
	"github.com/local/pdfocr/internal/statuscheck"
	"github.com/local/pdfocr/internal/storage"
	"github.com/local/pdfocr/internal/store"
)

const staleTempAge = 24 * time.Hour

type runFlags struct {
	pdf               string
	startPage         int
	mode              string
	batchSize         int
	dpi               int
	workers           int
	correctionWorkers int
	runID             string
	resume            string
	preview           int
	skipPreflight     bool
}

var flags runFlags

var runCmd = &cobra.Command{
	Use:   "run [NAME]",
	Short: "OCR one PDF",
	Long: `OCR one PDF. NAME may be a file in INPUT_DIR (the .pdf suffix is optional),
a filesystem path, a file:// or http(s):// URL, or s3://bucket/key.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPipeline,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&flags.pdf, "pdf", "p", "", "PDF to process (path, URL, s3:// or name in INPUT_DIR)")
	f.IntVar(&flags.startPage, "start-page", 1, "physical page that is printed page 1; earlier pages are front matter")
	f.StringVarP(&flags.mode, "mode", "m", string(config.ModeTwoPass), "one-pass (OCR only) or two-pass (OCR + correction)")
	f.IntVar(&flags.batchSize, "batch-size", config.DefaultBatchSize, "pages rendered and held in memory at once")
	f.IntVar(&flags.dpi, "dpi", config.DefaultDPI, "render resolution")
	f.IntVarP(&flags.workers, "workers", "w", config.DefaultWorkers, "concurrent OCR requests")
	f.IntVar(&flags.correctionWorkers, "correction-workers", 1, "concurrent correction requests")
	f.StringVar(&flags.runID, "run-id", "", "run id for status and checkpoints (random when empty)")
	f.StringVar(&flags.resume, "resume", "", "resume the checkpointed run with this id")
	f.IntVar(&flags.preview, "preview", 0, "print the first N characters of each output")
	f.BoolVar(&flags.skipPreflight, "skip-preflight", false, "do not check dependencies before the run")
}

// pipelineConfig overlays the flags the user set onto the env defaults.
func pipelineConfig(cmd *cobra.Command, base config.PipelineConfig) (config.PipelineConfig, error) {
	p := base
	f := cmd.Flags()
	if f.Changed("start-page") {
		p.StartPage = flags.startPage
	}
	mode := string(p.Mode)
	if f.Changed("mode") || mode == "" {
		mode = flags.mode
	}
	m, err := config.ParseMode(mode)
	if err != nil {
		return p, err
	}
	p.Mode = m
	if f.Changed("batch-size") {
		p.BatchSize = flags.batchSize
	}
	if f.Changed("dpi") {
		p.DPI = flags.dpi
	}
	if f.Changed("workers") {
		p.Workers = flags.workers
	}
	if f.Changed("correction-workers") {
		p.CorrectionWorkers = flags.correctionWorkers
	}
	if flags.runID != "" {
		p.RunID = flags.runID
	}
	if flags.resume != "" {
		if p.RunID != "" && p.RunID != flags.resume {
			return p, &config.Error{Field: "resume", Message: fmt.Sprintf("conflicts with --run-id %s", p.RunID)}
		}
		p.RunID = flags.resume
		p.Resume = true
	}
	if p.RunID == "" {
		p.RunID = uuid.NewString()
	}
	return p, nil
}

func inputRef(args []string) (string, error) {
	switch {
	case flags.pdf != "" && len(args) > 0:
		return "", &config.Error{Field: "pdf", Message: "give either --pdf or NAME, not both"}
	case flags.pdf != "":
		return flags.pdf, nil
	case len(args) > 0:
		return args[0], nil
	}
	return "", &config.Error{Field: "pdf", Message: "no input; use --pdf PATH or run NAME (see pdfocr list)"}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ref, err := inputRef(args)
	if err != nil {
		return err
	}
	pipeline, err := pipelineConfig(cmd, cfg.Pipeline)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveMetrics(ctx)

	set, err := prompts.Load(cfg.Inference.OCRPromptFile, cfg.Inference.CorrectionPromptFile)
	if err != nil {
		return &config.Error{Field: "prompts", Message: "cannot load prompt files", Err: err}
	}
	ocrEndpoint, corrEndpoint, err := ai.NewEndpoints(cfg, set.OCRSystem, set.CorrectionSystem)
	if err != nil {
		return &config.Error{Field: "AI_ENGINE", Message: "cannot build inference client", Err: err}
	}

	env, err := openBackends(ctx, true)
	if err != nil {
		return err
	}
	defer env.Close()

	if !flags.skipPreflight {
		sum := env.checker().Summary(ctx)
		if err := sum.Ready(); err != nil {
			return &config.Error{Field: "preflight", Message: "dependencies unavailable", Err: err}
		}
	}

	if n := source.CleanupTemps(staleTempAge); n > 0 {
		log.Info().Int("removed", n).Msg("removed stale downloaded PDFs")
	}

	resolver := &source.Resolver{InputDir: cfg.Paths.InputDir, HTTP: &http.Client{Timeout: 10 * time.Minute}}
	if env.s3 != nil {
		resolver.S3 = env.s3
	}
	in, err := resolver.Resolve(ctx, ref)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", ref, err)
	}
	defer func() {
		if err := in.Close(); err != nil {
			log.Warn().Err(err).Str("path", in.Path).Msg("failed to remove downloaded PDF")
		}
	}()
	pipeline.PDFPath = in.Path
	pipeline.Source = in.Ref

	assembler := &orchestrator.Assembler{
		Stem:         in.Stem,
		RawDir:       cfg.Paths.RawDir,
		CorrectedDir: cfg.Paths.CorrectedDir,
		RunID:        pipeline.RunID,
	}
	deps := orchestrator.Dependencies{
		Counter:    source.NewPageCounter(),
		Renderer:   imagerender.New(),
		OCR:        ocrEndpoint,
		Correction: corrEndpoint,
		Output:     assembler,
		Retry:      retrier.Policy{MaxAttempts: cfg.Inference.MaxRetries, Step: cfg.Inference.RetryBackoffStep},
		OCRPrompt:  prompts.OCRUser(),
	}
	if env.redis != nil {
		deps.Checkpoint = orchestrator.NewCheckpointAdapter(store.NewPageStore(env.redis, cfg.Checkpoint.TTL))
		deps.Status = orchestrator.NewStatusAdapter(store.NewRedisStatus(env.redis, cfg.Checkpoint.TTL))
	}
	if env.s3 != nil {
		assembler.Publisher = &orchestrator.S3Publisher{Uploader: env.s3, Prefix: cfg.Publish.S3Prefix}
	}

	orch, err := orchestrator.New(pipeline, deps)
	if err != nil {
		return err
	}
	res, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s: %d pages\n", pipeline.RunID, len(res.Document.Pages))
	fmt.Fprintf(out, "Raw text:       %s\n", res.Outputs.RawPath)
	if res.Outputs.CorrectedPath != "" {
		fmt.Fprintf(out, "Corrected text: %s\n", res.Outputs.CorrectedPath)
	}
	for _, u := range []string{res.Outputs.RawURL, res.Outputs.CorrectedURL} {
		if u != "" {
			fmt.Fprintf(out, "Published:      %s\n", u)
		}
	}
	if flags.preview > 0 {
		printPreview(cmd, "raw", res.Document.Raw())
		if pipeline.TwoPass() {
			printPreview(cmd, "corrected", res.Document.Corrected())
		}
	}
	return nil
}

func printPreview(cmd *cobra.Command, name, text string) {
	fmt.Fprintf(cmd.OutOrStdout(), "\n--- %s preview ---\n%s\n", name, orchestrator.Preview(text, flags.preview))
}

func serveMetrics(ctx context.Context) {
	if cfg.Metrics.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

// backends holds the optional Redis and S3 connections.
type backends struct {
	redis *redis.Client
	s3    *storage.S3Client
}

// openBackends connects the configured backends. Without ping an unreachable
// Redis is left for the preflight checker to report.
func openBackends(ctx context.Context, ping bool) (*backends, error) {
	b := &backends{}
	if cfg.Checkpoint.RedisURL != "" {
		var (
			c   *redis.Client
			err error
		)
		if ping {
			c, err = store.Connect(ctx, cfg.Checkpoint.RedisURL)
		} else {
			c, err = store.NewClient(cfg.Checkpoint.RedisURL)
		}
		if err != nil {
			return nil, fmt.Errorf("connect checkpoint store: %w", err)
		}
		b.redis = c
	}
	if cfg.Publish.S3Bucket != "" {
		c, err := storage.NewS3Client(ctx, storage.Options{
			Bucket:    cfg.Publish.S3Bucket,
			Region:    cfg.Publish.S3Region,
			Endpoint:  cfg.Publish.S3Endpoint,
			AccessKey: cfg.Publish.S3AccessKey,
			SecretKey: cfg.Publish.S3SecretKey,
		})
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("init s3 client: %w", err)
		}
		b.s3 = c
	}
	return b, nil
}

func (b *backends) checker() *statuscheck.Checker {
	opts := statuscheck.Options{Providers: cfg.Providers, InputDir: cfg.Paths.InputDir}
	if b.redis != nil {
		rdb := b.redis
		opts.Redis = statuscheck.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}
	if b.s3 != nil {
		opts.S3 = b.s3
		opts.S3Bucket = b.s3.Bucket()
	}
	return statuscheck.New(opts)
}

func (b *backends) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
}
