package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const openAIDefaultBaseURL = "https://api.openai.com/v1"

type OpenAIClient struct {
	http    *http.Client
	apiKey  string
	baseURL string
}

func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	if baseURL == "" {
		baseURL = openAIDefaultBaseURL
	}
	return &OpenAIClient{http: &http.Client{}, apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *OpenAIClient) Name() string { return "openai" }

type openAIMessage struct {
	Role    string                   `json:"role"`
	Content []map[string]interface{} `json:"content"`
}

type openAIChatReq struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIChatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *OpenAIClient) Do(ctx context.Context, req Request) (Response, error) {
	if c.apiKey == "" {
		return Response{}, &InferenceError{Kind: KindFatal, Provider: c.Name(), Message: "missing OPENAI_API_KEY"}
	}

	var messages []openAIMessage
	if req.SystemPrompt != "" {
		messages = append(messages, openAIMessage{
			Role:    "system",
			Content: []map[string]interface{}{{"type": "text", "text": req.SystemPrompt}},
		})
	}

	var userContent []map[string]interface{}
	if len(req.Image) > 0 {
		mime := req.ImageMIME
		if mime == "" {
			mime = "image/png"
		}
		imageURL := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(req.Image))
		userContent = append(userContent, map[string]interface{}{
			"type":      "image_url",
			"image_url": map[string]string{"url": imageURL},
		})
	}
	userContent = append(userContent, map[string]interface{}{"type": "text", "text": req.Prompt})
	messages = append(messages, openAIMessage{Role: "user", Content: userContent})

	payload := openAIChatReq{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, &InferenceError{Kind: KindFatal, Provider: c.Name(), Message: "marshal request", Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Response{}, &InferenceError{Kind: KindFatal, Provider: c.Name(), Message: "build request", Err: err}
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
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

	var r openAIChatResp
	if err := json.Unmarshal(raw, &r); err != nil {
		return Response{}, &InferenceError{Kind: KindFatal, Provider: c.Name(), Message: "decode response", Err: err}
	}
	if len(r.Choices) == 0 {
		return Response{}, EmptyResponse(c.Name(), "no choices")
	}

	return Response{
		Text:         r.Choices[0].Message.Content,
		TokensIn:     r.Usage.PromptTokens,
		TokensOut:    r.Usage.CompletionTokens,
		FinishReason: r.Choices[0].FinishReason,
	}, nil
}
