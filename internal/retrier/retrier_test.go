package retrier

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfocr/internal/ai"
)

func testPolicy() Policy { return Policy{MaxAttempts: 3, Stage: ai.StageOCR} }

func TestBackoffIsLinear(t *testing.T) {
	p := Policy{MaxAttempts: 3, Step: 10 * time.Second}
	assert.Equal(t, 10*time.Second, p.Backoff(0))
	assert.Equal(t, 20*time.Second, p.Backoff(1))
	assert.Equal(t, 30*time.Second, p.Backoff(2))
}

func TestWaitsMatchBackoff(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	step := 100 * time.Millisecond
	p := Policy{MaxAttempts: 3, Step: step, Stage: ai.StageOCR}
	var stamps []time.Time
	_, err := Do(context.Background(), p, "Page 4", "", func(context.Context) (string, error) {
		stamps = append(stamps, time.Now())
		return "", &ai.InferenceError{Kind: ai.KindTimeout, Provider: "gemini", StatusCode: 504}
	})
	require.True(t, IsExhausted(err))
	require.Len(t, stamps, 3)

	for i, want := range []time.Duration{step, 2 * step} {
		gap := stamps[i+1].Sub(stamps[i])
		assert.GreaterOrEqual(t, gap, want, "gap %d", i+1)
		assert.Less(t, gap, want+step-10*time.Millisecond, "gap %d", i+1)
	}

	out := buf.String()
	assert.Contains(t, out, "retrying in 100ms")
	assert.Contains(t, out, "retrying in 200ms")
	assert.NotContains(t, out, "retrying in 300ms")
}

func TestEmptyFallsBackAfterAllAttempts(t *testing.T) {
	calls := 0
	out, err := Do(context.Background(), testPolicy(), "Page 1", "", func(context.Context) (string, error) {
		calls++
		return "", ai.EmptyResponse("gemini", "no candidates")
	})
	require.NoError(t, err)
	assert.Equal(t, "", out)
	assert.Equal(t, 3, calls)
}

func TestCorrectionFallbackIsRawText(t *testing.T) {
	raw := "हरिर्हि परमं तत्त्व म्"
	out, err := Do(context.Background(), testPolicy(), "Page 1", raw, func(context.Context) (string, error) {
		return "", ai.EmptyResponse("gemini", "no candidates")
	})
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestTimeoutEscalates(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), testPolicy(), "Page 2", "", func(context.Context) (string, error) {
		calls++
		return "", &ai.InferenceError{Kind: ai.KindTimeout, Provider: "gemini", StatusCode: 504}
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, IsExhausted(err))

	var ee *ExhaustedError
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, 3, ee.Attempts)
	assert.Contains(t, err.Error(), "aborted after 3 retries")
	assert.Equal(t, ai.KindTimeout, ai.KindOf(err))
}

func TestFatalIsNotRetried(t *testing.T) {
	calls := 0
	boom := &ai.InferenceError{Kind: ai.KindFatal, Provider: "gemini", StatusCode: 400}
	_, err := Do(context.Background(), testPolicy(), "Page 3", "", func(context.Context) (string, error) {
		calls++
		return "", boom
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, IsExhausted(err))
	assert.True(t, errors.Is(err, boom))
}

func TestRecoversAfterEmpty(t *testing.T) {
	calls := 0
	out, err := Do(context.Background(), testPolicy(), "Page 4", "", func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", ai.EmptyResponse("gemini", "no candidates")
		}
		return "text", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "text", out)
	assert.Equal(t, 2, calls)
}

func TestMixedLastFailureDecides(t *testing.T) {
	calls := 0
	out, err := Do(context.Background(), testPolicy(), "Page 5", "fb", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", &ai.InferenceError{Kind: ai.KindTimeout, Provider: "gemini"}
		}
		return "", ai.EmptyResponse("gemini", "no candidates")
	})
	require.NoError(t, err)
	assert.Equal(t, "fb", out)
}

func TestCancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := Policy{MaxAttempts: 3, Step: time.Hour, Stage: ai.StageOCR}
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx, p, "Page 6", "", func(context.Context) (string, error) {
		calls++
		return "", ai.EmptyResponse("gemini", "no candidates")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
