package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

const anthropicDefaultBaseURL = "https://api.anthropic.com/v1"

type AnthropicClient struct {
	http    *http.Client
	apiKey  string
	baseURL string
}

func NewAnthropicClient(apiKey, baseURL string) *AnthropicClient {
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	return &AnthropicClient{http: &http.Client{}, apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *AnthropicClient) Name() string { return "anthropic" }

type anthropicBlock struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicMsgReq struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMsgResp struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (c *AnthropicClient) Do(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, &InferenceError{Kind: KindFatal, Provider: c.Name(), Message: "missing ANTHROPIC_API_KEY"}
	}

	var blocks []anthropicBlock
	if len(req.Image) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/png"
		}
		blocks = append(blocks, anthropicBlock{Type: "image", Source: &anthropicSource{
			Type:      "base64",
			MediaType: mime,
			Data:      base64.StdEncoding.EncodeToString(req.Image),
		}})
	}
	blocks = append(blocks, anthropicBlock{Type: "text", Text: req.Prompt})

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	payload := anthropicMsgReq{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		System:      req.SystemPrompt,
		Temperature: req.Temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: blocks}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, &InferenceError{Kind: KindFatal, Provider: c.Name(), Message: "marshal request", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return Response{}, &InferenceError{Kind: KindFatal, Provider: c.Name(), Message: "build request", Err: err}
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, classifyTransport(c.Name(), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, classifyTransport(c.Name(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Response{}, classifyStatus(c.Name(), resp.StatusCode, raw)
	}

	var r anthropicMsgResp
	if err := json.Unmarshal(raw, &r); err != nil {
		return Response{}, &InferenceError{Kind: KindFatal, Provider: c.Name(), Message: "decode response", Err: err}
	}
	if len(r.Content) == 0 {
		return Response{}, EmptyResponse(c.Name(), "no content")
	}

	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == "" || b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return Response{
		Text:         sb.String(),
		TokensIn:     r.Usage.InputTokens,
		TokensOut:    r.Usage.OutputTokens,
		FinishReason: r.StopReason,
	}, nil
}
