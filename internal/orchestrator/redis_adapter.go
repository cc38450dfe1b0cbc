package orchestrator

import (
	"context"

	"github.com/local/pdfocr/internal/config"
	"github.com/local/pdfocr/internal/store"
)

// pageStoreAdapter maps PageResults onto store.PageStore records.
type pageStoreAdapter struct{ s *store.PageStore }

func NewCheckpointAdapter(s *store.PageStore) Checkpoint { return &pageStoreAdapter{s: s} }

func (a *pageStoreAdapter) SaveMeta(ctx context.Context, runID string, m RunMeta) error {
	return a.s.SaveMeta(ctx, runID, store.RunMeta{
		PDF:        m.Source,
		TotalPages: m.TotalPages,
		StartPage:  m.StartPage,
		Mode:       string(m.Mode),
	})
}

func (a *pageStoreAdapter) GetMeta(ctx context.Context, runID string) (RunMeta, bool, error) {
	m, ok, err := a.s.GetMeta(ctx, runID)
	if !ok || err != nil {
		return RunMeta{}, ok, err
	}
	return RunMeta{Source: m.PDF, TotalPages: m.TotalPages, StartPage: m.StartPage, Mode: config.Mode(m.Mode)}, true, nil
}

func (a *pageStoreAdapter) SavePages(ctx context.Context, runID string, rs []PageResult) error {
	recs := make([]store.PageRecord, len(rs))
	for i, r := range rs {
		recs[i] = store.PageRecord{Page: r.PageIndex, Label: r.Label, Raw: r.RawText}
		if r.CorrectedText != nil {
			recs[i].Corrected = *r.CorrectedText
			recs[i].HasCorrected = true
		}
	}
	return a.s.SavePages(ctx, runID, recs)
}

func (a *pageStoreAdapter) LoadPages(ctx context.Context, runID string, first, last int) (map[int]PageResult, error) {
	recs, err := a.s.LoadPages(ctx, runID, first, last)
	if err != nil {
		return nil, err
	}
	out := make(map[int]PageResult, len(recs))
	for p, rec := range recs {
		r := PageResult{PageIndex: p, Label: rec.Label, RawText: rec.Raw}
		if rec.HasCorrected {
			c := rec.Corrected
			r.CorrectedText = &c
		}
		out[p] = r
	}
	return out, nil
}
