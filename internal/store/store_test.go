package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Requires a live server: REDIS_TEST_URL=redis://localhost:6379/15
func testClient(t *testing.T) *PageStore {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	c, err := Connect(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return NewPageStore(c, time.Minute)
}

func TestPageStoreRoundTrip(t *testing.T) {
	s := testClient(t)
	ctx := context.Background()
	runID := uuid.NewString()

	require.NoError(t, s.SavePages(ctx, runID, []PageRecord{
		{Page: 1, Label: "[Front Matter p.1]", Raw: "ॐ"},
		{Page: 2, Label: "Page 1", Raw: "raw", Corrected: "fixed", HasCorrected: true},
	}))

	got, err := s.LoadPages(ctx, runID, 1, 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.False(t, got[1].HasCorrected)
	assert.Equal(t, "ॐ", got[1].Raw)
	assert.True(t, got[2].HasCorrected)
	assert.Equal(t, "fixed", got[2].Corrected)
	assert.Equal(t, "Page 1", got[2].Label)
}

func TestRunMeta(t *testing.T) {
	s := testClient(t)
	ctx := context.Background()
	runID := uuid.NewString()

	_, ok, err := s.GetMeta(ctx, runID)
	require.NoError(t, err)
	assert.False(t, ok)

	want := RunMeta{PDF: "gita.pdf", TotalPages: 12, StartPage: 3, Mode: "two-pass"}
	require.NoError(t, s.SaveMeta(ctx, runID, want))
	got, ok, err := s.GetMeta(ctx, runID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestRedisStatus(t *testing.T) {
	ps := testClient(t)
	st := NewRedisStatus(ps.client, time.Minute)
	ctx := context.Background()
	runID := uuid.NewString()

	start := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, st.Set(ctx, runID, Status{
		State:    "CORRECTING",
		Progress: 40,
		Message:  "Batch 1-5",
		Start:    &start,
		Metadata: map[string]interface{}{"pdf": "gita.pdf"},
	}))

	got, ok, err := st.Get(ctx, runID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "CORRECTING", got.State)
	assert.Equal(t, 40, got.Progress)
	require.NotNil(t, got.Start)
	assert.True(t, start.Equal(*got.Start))
	assert.Equal(t, "gita.pdf", got.Metadata["pdf"])
}
