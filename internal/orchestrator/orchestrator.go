package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/local/pdfocr/internal/ai"
	"github.com/local/pdfocr/internal/config"
	"github.com/local/pdfocr/internal/metrics"
	"github.com/local/pdfocr/internal/prompts"
	"github.com/local/pdfocr/internal/retrier"
)

// State is the scheduler's position in a run.
type State string

const (
	StateInit           State = "INIT"
	StateLoadingBatch   State = "LOADING_BATCH"
	StateDispatchingOCR State = "DISPATCHING_OCR"
	StateReordering     State = "REORDERING"
	StateCorrecting     State = "CORRECTING"
	StateReleasing      State = "RELEASING"
	StateFinalized      State = "FINALIZED"
	StateFailed         State = "FAILED"
)

type PageCounter interface {
	CountPages(ctx context.Context, path string) (int, error)
}

// Renderer rasterizes pages first..last (1-based, inclusive) in order.
type Renderer interface {
	RenderPages(ctx context.Context, path string, dpi, first, last int) ([]image.Image, error)
}

// RunMeta identifies the document and mode a run id belongs to.
type RunMeta struct {
	Source     string
	TotalPages int
	StartPage  int
	Mode       config.Mode
}

// Checkpoint persists finished pages so an aborted run can be resumed.
type Checkpoint interface {
	SaveMeta(ctx context.Context, runID string, m RunMeta) error
	GetMeta(ctx context.Context, runID string) (RunMeta, bool, error)
	SavePages(ctx context.Context, runID string, rs []PageResult) error
	LoadPages(ctx context.Context, runID string, first, last int) (map[int]PageResult, error)
}

type Status struct {
	State    string
	Progress int
	Message  string
	Start    *time.Time
	End      *time.Time
	Metadata map[string]any
}

type StatusStore interface {
	Set(ctx context.Context, runID string, st Status) error
	Get(ctx context.Context, runID string) (Status, bool, error)
}

// DocumentWriter persists the finished document.
type DocumentWriter interface {
	Write(ctx context.Context, doc *Document) (Outputs, error)
}

// Dependencies are the collaborators of a run. Checkpoint, Status and
// Output are optional; Correction is required for two-pass runs.
type Dependencies struct {
	Counter    PageCounter
	Renderer   Renderer
	OCR        Inferencer
	Correction Inferencer
	Checkpoint Checkpoint
	Status     StatusStore
	Output     DocumentWriter
	// Retry applies to both stages; Stage is filled in per stage.
	Retry retrier.Policy
	// OCRPrompt is the user turn sent with each chunk; prompts.OCRUser when empty.
	OCRPrompt string
}

// Result is what a finished run produced.
type Result struct {
	Document *Document
	Outputs  Outputs
}

type Orchestrator struct {
	cfg   config.PipelineConfig
	deps  Dependencies
	ocr   *OCRStage
	corr  *CorrectionStage
	start time.Time
	total int
	done  int
}

func New(cfg config.PipelineConfig, deps Dependencies) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Counter == nil || deps.Renderer == nil || deps.OCR == nil {
		return nil, errors.New("orchestrator: counter, renderer and ocr endpoint are required")
	}
	if cfg.TwoPass() && deps.Correction == nil {
		return nil, errors.New("orchestrator: two-pass run without a correction endpoint")
	}
	if cfg.Resume && deps.Checkpoint == nil {
		return nil, &config.Error{Field: "resume", Message: "requires a checkpoint store (set REDIS_URL)"}
	}

	ocrPolicy := deps.Retry
	ocrPolicy.Stage = ai.StageOCR
	corrPolicy := deps.Retry
	corrPolicy.Stage = ai.StageCorrection
	prompt := deps.OCRPrompt
	if prompt == "" {
		prompt = prompts.OCRUser()
	}

	o := &Orchestrator{
		cfg:  cfg,
		deps: deps,
		ocr:  &OCRStage{Endpoint: deps.OCR, Prompt: prompt, Policy: ocrPolicy},
	}
	if deps.Correction != nil {
		o.corr = &CorrectionStage{Endpoint: deps.Correction, Policy: corrPolicy}
	}
	return o, nil
}

// Run processes the whole document batch by batch and persists it through
// Output when set. On error nothing is written.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	o.start = time.Now()
	o.setState(ctx, StateInit, "counting pages")

	res, err := o.run(ctx)
	if err != nil {
		o.fail(err)
		return nil, err
	}
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context) (*Result, error) {
	total, err := o.deps.Counter.CountPages(ctx, o.cfg.PDFPath)
	if err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}
	if total == 0 {
		return nil, ErrNoPages
	}
	o.total = total

	if err := o.prepareCheckpoint(ctx); err != nil {
		return nil, err
	}

	windows := BatchWindows(total, o.cfg.BatchSize)
	log.Info().
		Str("run_id", o.cfg.RunID).
		Str("pdf", o.source()).
		Int("total_pages", total).
		Int("batches", len(windows)).
		Int("batch_size", o.cfg.BatchSize).
		Int("workers", o.cfg.Workers).
		Str("mode", string(o.cfg.Mode)).
		Msg("starting OCR run")

	doc := &Document{TwoPass: o.cfg.TwoPass()}
	for _, w := range windows {
		results, err := o.runBatch(ctx, w)
		if err != nil {
			return nil, err
		}
		doc.Append(results...)
	}

	var outputs Outputs
	if o.deps.Output != nil {
		outputs, err = o.deps.Output.Write(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("write output: %w", err)
		}
	}

	end := time.Now()
	o.setStatus(ctx, Status{
		State:    string(StateFinalized),
		Progress: 100,
		Message:  fmt.Sprintf("%d pages processed", total),
		Start:    &o.start,
		End:      &end,
		Metadata: map[string]any{"raw_path": outputs.RawPath, "corrected_path": outputs.CorrectedPath},
	})
	log.Info().
		Str("run_id", o.cfg.RunID).
		Int("total_pages", total).
		Dur("duration", end.Sub(o.start)).
		Msg("OCR run finalized")
	return &Result{Document: doc, Outputs: outputs}, nil
}

func (o *Orchestrator) prepareCheckpoint(ctx context.Context) error {
	if o.deps.Checkpoint == nil || o.cfg.RunID == "" {
		return nil
	}
	meta := RunMeta{Source: o.source(), TotalPages: o.total, StartPage: o.cfg.StartPage, Mode: o.cfg.Mode}
	if !o.cfg.Resume {
		if err := o.deps.Checkpoint.SaveMeta(ctx, o.cfg.RunID, meta); err != nil {
			log.Warn().Err(err).Str("run_id", o.cfg.RunID).Msg("failed to save run checkpoint metadata")
		}
		return nil
	}
	prev, ok, err := o.deps.Checkpoint.GetMeta(ctx, o.cfg.RunID)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok {
		return fmt.Errorf("run %s: %w", o.cfg.RunID, ErrUnknownRun)
	}
	if prev.TotalPages != o.total || prev.Mode != o.cfg.Mode {
		return fmt.Errorf("run %s has %d pages in %s mode, input has %d pages in %s mode: %w",
			o.cfg.RunID, prev.TotalPages, prev.Mode, o.total, o.cfg.Mode, ErrResumeMismatch)
	}
	log.Info().Str("run_id", o.cfg.RunID).Str("pdf", prev.Source).Msg("resuming run from checkpoint")
	return nil
}

// runBatch takes one window through render, OCR, reorder, correction and
// release. Images never outlive the call.
func (o *Orchestrator) runBatch(ctx context.Context, w BatchWindow) ([]PageResult, error) {
	started := time.Now()
	log.Info().
		Int("batch_start", w.Start).
		Int("batch_end", w.End).
		Msgf("BATCH: Pages %d-%d (%d pages)", w.Start, w.End, w.Size())

	results := make([]PageResult, 0, w.Size())
	resumed, err := o.loadCheckpointed(ctx, w)
	if err != nil {
		return nil, err
	}
	var pending []int
	for p := w.Start; p <= w.End; p++ {
		if r, ok := resumed[p]; ok {
			results = append(results, r)
			continue
		}
		pending = append(pending, p)
	}

	if len(pending) > 0 {
		fresh, err := o.renderAndOCR(ctx, w, pending)
		if err != nil {
			return nil, err
		}

		o.setState(ctx, StateReordering, fmt.Sprintf("ordering pages %s", w))
		SortResults(fresh)

		if o.cfg.TwoPass() {
			o.setState(ctx, StateCorrecting, fmt.Sprintf("correcting pages %s", w))
			if err := o.runCorrection(ctx, fresh); err != nil {
				return nil, err
			}
		}
		o.saveCheckpoint(ctx, fresh)
		results = append(results, fresh...)
	}

	SortResults(results)
	o.done += w.Size()
	o.setState(ctx, StateReleasing, fmt.Sprintf("batch %s done", w))
	debug.FreeOSMemory()

	metrics.ObserveBatch(time.Since(started))
	log.Info().
		Int("batch_start", w.Start).
		Int("batch_end", w.End).
		Dur("duration", time.Since(started)).
		Msgf("Batch %d-%d completed", w.Start, w.End)
	return results, nil
}

// renderAndOCR loads the window's rasters and OCRs the pending pages. The
// rasters are unreachable once it returns.
func (o *Orchestrator) renderAndOCR(ctx context.Context, w BatchWindow, pending []int) ([]PageResult, error) {
	o.setState(ctx, StateLoadingBatch, fmt.Sprintf("rendering pages %s", w))
	images, err := o.deps.Renderer.RenderPages(ctx, o.cfg.PDFPath, o.cfg.DPI, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("render pages %s: %w", w, err)
	}
	if len(images) != w.Size() {
		return nil, fmt.Errorf("render pages %s: got %d images", w, len(images))
	}

	o.setState(ctx, StateDispatchingOCR, fmt.Sprintf("OCR pages %s", w))
	return o.runOCR(ctx, w, images, pending)
}

// runOCR fans pages out to a pool scoped to this batch. A failure stops
// queued pages from starting but in-flight siblings run to completion; the
// pool is always drained before returning.
func (o *Orchestrator) runOCR(ctx context.Context, w BatchWindow, images []image.Image, pages []int) ([]PageResult, error) {
	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed atomic.Bool
		out    = make([]PageResult, 0, len(pages))
	)
	g.SetLimit(o.cfg.Workers)

	for _, p := range pages {
		p := p
		img := images[p-w.Start]
		g.Go(func() error {
			if failed.Load() {
				return nil
			}
			r, err := o.ocr.Process(ctx, img, p, o.total, PageLabel(p, o.cfg.StartPage))
			if err != nil {
				failed.Store(true)
				log.Error().Err(err).Int("page", p).Msg("OCR failed")
				return fmt.Errorf("page %d: %w", p, err)
			}
			mu.Lock()
			out = append(out, r)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// runCorrection fills CorrectedText in place, keeping page order.
func (o *Orchestrator) runCorrection(ctx context.Context, rs []PageResult) error {
	correct := func(i int) error {
		text, err := o.corr.Correct(ctx, rs[i].Label, rs[i].RawText)
		if err != nil {
			return fmt.Errorf("page %d: %w", rs[i].PageIndex, err)
		}
		rs[i].CorrectedText = &text
		return nil
	}

	if o.cfg.CorrectionWorkers <= 1 {
		for i := range rs {
			if err := correct(i); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(o.cfg.CorrectionWorkers)
	for i := range rs {
		i := i
		g.Go(func() error { return correct(i) })
	}
	return g.Wait()
}

func (o *Orchestrator) loadCheckpointed(ctx context.Context, w BatchWindow) (map[int]PageResult, error) {
	if !o.cfg.Resume || o.deps.Checkpoint == nil {
		return nil, nil
	}
	saved, err := o.deps.Checkpoint.LoadPages(ctx, o.cfg.RunID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint pages %s: %w", w, err)
	}
	out := make(map[int]PageResult, len(saved))
	for p, r := range saved {
		// A two-pass checkpoint without correction is redone.
		if o.cfg.TwoPass() && r.CorrectedText == nil {
			continue
		}
		r.PageIndex = p
		r.Label = PageLabel(p, o.cfg.StartPage)
		out[p] = r
		metrics.IncProcessed(ai.StageOCR, "resumed")
	}
	if len(out) > 0 {
		log.Info().Int("pages", len(out)).Str("batch", w.String()).Msg("pages restored from checkpoint")
	}
	return out, nil
}

func (o *Orchestrator) saveCheckpoint(ctx context.Context, rs []PageResult) {
	if o.deps.Checkpoint == nil || o.cfg.RunID == "" {
		return
	}
	if err := o.deps.Checkpoint.SavePages(ctx, o.cfg.RunID, rs); err != nil {
		log.Warn().Err(err).Str("run_id", o.cfg.RunID).Msg("failed to checkpoint pages")
	}
}

func (o *Orchestrator) setState(ctx context.Context, s State, msg string) {
	log.Debug().Str("run_id", o.cfg.RunID).Str("state", string(s)).Msg(msg)
	progress := 0
	if o.total > 0 {
		progress = o.done * 100 / o.total
	}
	o.setStatus(ctx, Status{
		State:    string(s),
		Progress: progress,
		Message:  msg,
		Start:    &o.start,
		Metadata: map[string]any{"pdf": o.source(), "total_pages": o.total, "pages_done": o.done},
	})
}

func (o *Orchestrator) setStatus(ctx context.Context, st Status) {
	metrics.SetState(st.State)
	if o.deps.Status == nil || o.cfg.RunID == "" {
		return
	}
	if err := o.deps.Status.Set(ctx, o.cfg.RunID, st); err != nil {
		log.Warn().Err(err).Str("run_id", o.cfg.RunID).Msg("failed to update run status")
	}
}

func (o *Orchestrator) fail(err error) {
	end := time.Now()
	// The run context may already be cancelled.
	o.setStatus(context.Background(), Status{
		State:    string(StateFailed),
		Progress: o.done * 100 / max(o.total, 1),
		Message:  err.Error(),
		Start:    &o.start,
		End:      &end,
	})
	log.Error().Err(err).Str("run_id", o.cfg.RunID).Int("pages_done", o.done).Msg("OCR run failed")
}

func (o *Orchestrator) source() string {
	if o.cfg.Source != "" {
		return o.cfg.Source
	}
	return o.cfg.PDFPath
}
