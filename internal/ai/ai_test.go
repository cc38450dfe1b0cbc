package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfocr/internal/config"
)

func TestGeminiDo(t *testing.T) {
	var got geminiReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"श्रीगणेशाय "},{"text":"नमः"}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":12,"candidatesTokenCount":4}}`))
	}))
	defer srv.Close()

	c := NewGeminiClient("test-key", srv.URL)
	resp, err := c.Do(context.Background(), Request{
		Model:        "gemini-2.0-flash",
		SystemPrompt: "sys",
		Prompt:       "Extract EXACT printed text:",
		Image:        []byte{1, 2, 3},
		ImageMIME:    "image/png",
		MaxTokens:    8192,
	})
	require.NoError(t, err)
	assert.Equal(t, "श्रीगणेशाय नमः", resp.Text)
	assert.Equal(t, 12, resp.TokensIn)
	assert.Equal(t, 4, resp.TokensOut)

	require.NotNil(t, got.SystemInstruction)
	assert.Equal(t, "sys", got.SystemInstruction.Parts[0].Text)
	require.Len(t, got.Contents, 1)
	require.Len(t, got.Contents[0].Parts, 2)
	assert.Equal(t, "image/png", got.Contents[0].Parts[1].InlineData.MimeType)
	assert.Equal(t, "AQID", got.Contents[0].Parts[1].InlineData.Data)
	assert.Equal(t, 8192, got.GenerationConfig.MaxOutputTokens)
	assert.Equal(t, "text/plain", got.GenerationConfig.ResponseMimeType)
	assert.Zero(t, got.GenerationConfig.Temperature)
	assert.Len(t, got.SafetySettings, 4)
}

func TestGeminiClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   Kind
	}{
		{name: "no candidates", status: 200, body: `{"candidates":[]}`, kind: KindEmpty},
		{name: "blocked prompt", status: 200, body: `{"promptFeedback":{"blockReason":"OTHER"}}`, kind: KindEmpty},
		{name: "gateway timeout", status: 504, body: `upstream timed out`, kind: KindTimeout},
		{name: "bad request", status: 400, body: `{"error":"bad"}`, kind: KindFatal},
		{name: "rate limited", status: 429, body: `{"error":"quota"}`, kind: KindFatal},
		{name: "garbage body", status: 200, body: `not json`, kind: KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewGeminiClient("k", srv.URL).Do(context.Background(), Request{Model: "m", Prompt: "p"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err))
			assert.Equal(t, tt.kind != KindFatal, IsRetryable(err))
			if tt.kind == KindEmpty {
				assert.True(t, errors.Is(err, ErrEmptyResponse))
			}
		})
	}
}

func TestMissingKeyIsFatal(t *testing.T) {
	for _, c := range []Client{NewGeminiClient("", ""), NewOpenAIClient("", ""), NewAnthropicClient("", "")} {
		_, err := c.Do(context.Background(), Request{Prompt: "p"})
		require.Error(t, err, c.Name())
		assert.Equal(t, KindFatal, KindOf(err), c.Name())
	}
}

func TestOpenAIDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var req openAIChatReq
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ನಮಸ್ಕಾರ"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2}}`))
	}))
	defer srv.Close()

	resp, err := NewOpenAIClient("k", srv.URL).Do(context.Background(), Request{Model: "gpt", SystemPrompt: "s", Prompt: "p", Image: []byte{9}})
	require.NoError(t, err)
	assert.Equal(t, "ನಮಸ್ಕಾರ", resp.Text)

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer empty.Close()
	_, err = NewOpenAIClient("k", empty.URL).Do(context.Background(), Request{Prompt: "p"})
	assert.Equal(t, KindEmpty, KindOf(err))
}

func TestAnthropicDo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "k", r.Header.Get("x-api-key"))
		var req anthropicMsgReq
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		assert.Equal(t, "s", req.System)
		require.Len(t, req.Messages[0].Content, 2)
		assert.Equal(t, "image", req.Messages[0].Content[0].Type)
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hello"}],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	resp, err := NewAnthropicClient("k", srv.URL).Do(context.Background(), Request{Model: "c", SystemPrompt: "s", Prompt: "p", Image: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Text)
}

func TestEndpointTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ep := &Endpoint{Client: NewGeminiClient("k", srv.URL), Stage: StageOCR, Model: "m", Timeout: 50 * time.Millisecond}
	_, err := ep.Infer(context.Background(), "p", nil)
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
}

func TestEndpointCancelledIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	ep := &Endpoint{Client: NewGeminiClient("k", srv.URL), Stage: StageOCR, Model: "m", Timeout: time.Minute}
	_, err := ep.Infer(ctx, "p", nil)
	require.Error(t, err)
	assert.Equal(t, KindFatal, KindOf(err))
}

func TestEndpointTrims(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"\n  text \n"}]}}]}`))
	}))
	defer srv.Close()

	ep := &Endpoint{Client: NewGeminiClient("k", srv.URL), Stage: StageCorrection, Model: "m", Timeout: time.Second}
	out, err := ep.Infer(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "text", out)
}

func TestNewEndpoints(t *testing.T) {
	cfg := config.FromEnv()
	cfg.Providers.Engine = config.EngineAnthropic
	cfg.Providers.AnthropicAPIKey = "k"

	ocr, corr, err := NewEndpoints(cfg, "ocr-sys", "corr-sys")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", ocr.Client.Name())
	assert.Equal(t, cfg.Providers.Anthropic.OCR, ocr.Model)
	assert.Equal(t, cfg.Providers.Anthropic.Correction, corr.Model)
	assert.Equal(t, "corr-sys", corr.SystemPrompt)
	assert.Equal(t, StageCorrection, corr.Stage)

	cfg.Providers.Engine = "mistral"
	_, _, err = NewEndpoints(cfg, "", "")
	assert.Error(t, err)
}

func TestKindOfUntyped(t *testing.T) {
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindFatal, KindOf(errors.New("boom")))
	assert.Equal(t, KindFatal, KindOf(nil))
}
