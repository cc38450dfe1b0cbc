package orchestrator

import (
	"context"

	"github.com/local/pdfocr/internal/store"
)

type redisStatusAdapter struct{ s *store.RedisStatus }

func NewStatusAdapter(s *store.RedisStatus) StatusStore { return &redisStatusAdapter{s: s} }

func (a *redisStatusAdapter) Set(ctx context.Context, runID string, st Status) error {
	return a.s.Set(ctx, runID, store.Status{
		State:    st.State,
		Progress: st.Progress,
		Message:  st.Message,
		Start:    st.Start,
		End:      st.End,
		Metadata: st.Metadata,
	})
}

func (a *redisStatusAdapter) Get(ctx context.Context, runID string) (Status, bool, error) {
	st, ok, err := a.s.Get(ctx, runID)
	if !ok || err != nil {
		return Status{}, ok, err
	}
	return Status{
		State:    st.State,
		Progress: st.Progress,
		Message:  st.Message,
		Start:    st.Start,
		End:      st.End,
		Metadata: st.Metadata,
	}, true, nil
}
